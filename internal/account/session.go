package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"biblioteca.org/internal/audit"
	"biblioteca.org/internal/obs"
)

// Claims carried by a session token.
type Claims struct {
	Username string `json:"username"`
	Role     Role   `json:"role"`
	jwt.RegisteredClaims
}

// LoginResult is the successful login payload: token plus a snapshot of the
// account and its person.
type LoginResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Account   *Account  `json:"user"`
	Person    *Person   `json:"person"`
}

// Login authenticates credentials and issues a session token. Lookup is a
// case-sensitive exact username match; an unknown username, a deactivated
// or soft-deleted account, and a password mismatch are indistinguishable to
// the caller.
func (s *Service) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	if !s.SupportsTokens() {
		return nil, errors.New("account: token secret is not configured")
	}
	if username == "" || password == "" {
		obs.ObserveLogin("denied")
		return nil, ErrUnauthorized
	}
	acc, err := s.store.Accounts().FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			obs.ObserveLogin("denied")
			return nil, ErrUnauthorized
		}
		return nil, err
	}
	if acc.DeletedAt != nil || !acc.IsActive || !VerifyPassword(acc.PasswordHash, password) {
		obs.ObserveLogin("denied")
		return nil, ErrUnauthorized
	}

	if err := s.store.Accounts().SetLastLogin(ctx, acc.ID); err != nil {
		return nil, err
	}
	person, err := s.store.Persons().Find(ctx, acc.PersonID)
	if err != nil {
		return nil, err
	}
	token, expiresAt, err := s.generateToken(acc)
	if err != nil {
		return nil, err
	}
	obs.ObserveLogin("ok")
	return &LoginResult{Token: token, ExpiresAt: expiresAt, Account: acc, Person: person}, nil
}

// Validate verifies a session token's signature and claims. It never
// consults the policy engine; authorization happens per operation.
func (s *Service) Validate(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" || !s.SupportsTokens() {
		return nil, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return s.tokenSecret, nil
	}, jwt.WithTimeFunc(func() time.Time { return s.now() }))
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if err := s.validateClaims(claims); err != nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ChangeOwnPassword rotates the caller's own password. The current password
// must verify; the new one must satisfy policy and differ from the current.
func (s *Service) ChangeOwnPassword(ctx context.Context, accountID, currentPassword, newPassword string) (time.Time, error) {
	acc, err := s.store.Accounts().Find(ctx, accountID)
	if err != nil {
		return time.Time{}, err
	}
	if !VerifyPassword(acc.PasswordHash, currentPassword) {
		return time.Time{}, ErrUnauthorized
	}
	if err := ValidatePassword(newPassword); err != nil {
		return time.Time{}, err
	}
	if newPassword == currentPassword {
		return time.Time{}, fmt.Errorf("%w: la nueva contrasena debe ser distinta", ErrValidation)
	}
	hash, err := HashPassword(newPassword)
	if err != nil {
		return time.Time{}, err
	}
	if err := s.store.Accounts().UpdatePassword(ctx, acc.ID, hash); err != nil {
		return time.Time{}, err
	}
	changedAt := s.now().UTC()
	obs.ObservePasswordReset("own")
	_ = s.rec.Record(ctx, &audit.Entry{
		ActorAccountID:  acc.ID,
		TargetAccountID: acc.ID,
		TargetPersonID:  acc.PersonID,
		Action:          audit.ActionPasswordReset,
	})
	return changedAt, nil
}

// ResetOtherPassword generates a fresh random password for the target
// account, policy permitting. The plaintext is returned exactly once for
// operator handoff.
func (s *Service) ResetOtherPassword(ctx context.Context, actor Actor, targetAccountID string) (string, *Account, error) {
	target, err := s.store.Accounts().Find(ctx, targetAccountID)
	if err != nil {
		return "", nil, err
	}
	if d := CanResetPassword(actor, Target{AccountID: target.ID, Role: target.Role}); !d.Allowed {
		return "", nil, fmt.Errorf("%w: %s", ErrPolicyViolation, d.Reason)
	}
	plaintext, err := s.issuer.IssuePassword("")
	if err != nil {
		return "", nil, err
	}
	hash, err := HashPassword(plaintext)
	if err != nil {
		return "", nil, err
	}
	if err := s.store.Accounts().UpdatePassword(ctx, target.ID, hash); err != nil {
		return "", nil, err
	}
	target.PasswordResetCount++
	obs.ObservePasswordReset("admin")
	_ = s.rec.Record(ctx, &audit.Entry{
		ActorAccountID:  actor.AccountID,
		TargetAccountID: target.ID,
		TargetPersonID:  target.PersonID,
		Action:          audit.ActionPasswordReset,
	})
	return plaintext, target, nil
}

func (s *Service) generateToken(acc *Account) (string, time.Time, error) {
	now := s.now().UTC()
	expiresAt := now.Add(s.tokenTTL)
	claims := Claims{
		Username: acc.Username,
		Role:     acc.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.tokenIssuer,
			Subject:   acc.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.tokenSecret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

func (s *Service) validateClaims(claims *Claims) error {
	if claims.Issuer != s.tokenIssuer {
		return fmt.Errorf("unexpected issuer: %s", claims.Issuer)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return errors.New("subject missing")
	}
	if claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return errors.New("timestamps missing")
	}
	now := s.now().UTC()
	if now.After(claims.ExpiresAt.Time) {
		return errors.New("token expired")
	}
	// Allow a small clock skew of 5 seconds when validating issued-at.
	if claims.IssuedAt.Time.After(now.Add(5 * time.Second)) {
		return errors.New("token issued in the future")
	}
	if claims.ExpiresAt.Time.Before(claims.IssuedAt.Time) {
		return errors.New("token expiry precedes issued-at")
	}
	return nil
}
