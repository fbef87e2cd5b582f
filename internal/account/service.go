package account

import (
	"context"
	"errors"
	"strings"
	"time"

	"biblioteca.org/internal/audit"
)

const defaultTokenTTL = time.Hour

// Service orchestrates provisioning, account management and sessions on top
// of a Store. The role policy engine stays pure; Service loads the context
// each decision needs and enforces the outcome.
type Service struct {
	store  Store
	issuer *Issuer
	rec    *audit.Recorder
	now    func() time.Time

	tokenSecret []byte
	tokenIssuer string
	tokenTTL    time.Duration
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithTokenSecret enables token issuance and verification with the given
// HS256 secret.
func WithTokenSecret(secret string) ServiceOption {
	return func(s *Service) error {
		secret = strings.TrimSpace(secret)
		if secret == "" {
			return errors.New("account: token secret is empty")
		}
		s.tokenSecret = []byte(secret)
		return nil
	}
}

// WithTokenTTL configures session token lifetime.
func WithTokenTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl > 0 {
			s.tokenTTL = ttl
		}
		return nil
	}
}

// WithTokenIssuer overrides the token issuer claim.
func WithTokenIssuer(issuer string) ServiceOption {
	return func(s *Service) error {
		if trimmed := strings.TrimSpace(issuer); trimmed != "" {
			s.tokenIssuer = trimmed
		}
		return nil
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// NewService constructs the account service.
func NewService(store Store, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("account: store is required")
	}
	s := &Service{
		store:       store,
		issuer:      NewIssuer(store.Accounts()),
		rec:         audit.NewRecorder(store.Audit()),
		now:         time.Now,
		tokenIssuer: "biblioteca",
		tokenTTL:    defaultTokenTTL,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// SupportsTokens reports whether token issuance is configured.
func (s *Service) SupportsTokens() bool {
	return len(s.tokenSecret) > 0
}

// ActorFromAccount resolves the policy-engine view of an authenticated
// account: its role plus whether it is the master superadmin (the
// earliest-created non-deleted superadmin).
func (s *Service) ActorFromAccount(ctx context.Context, accountID string) (Actor, error) {
	acc, err := s.store.Accounts().Find(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Actor{}, ErrUnauthorized
		}
		return Actor{}, err
	}
	if acc.DeletedAt != nil || !acc.IsActive {
		return Actor{}, ErrUnauthorized
	}
	actor := Actor{AccountID: acc.ID, Role: acc.Role}
	if acc.Role == RoleSuperadmin {
		master, err := s.store.Accounts().MasterSuperadmin(ctx)
		switch {
		case err == nil:
			actor.IsMaster = master.ID == acc.ID
		case errors.Is(err, ErrNotFound):
			// No superadmin on record yet; cannot be master.
		default:
			return Actor{}, err
		}
	}
	return actor, nil
}

// Audit exposes the recorder for collaborators that append their own
// entries (none today) and for tests.
func (s *Service) Audit() *audit.Recorder {
	return s.rec
}
