package account

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// bcryptCost is deliberately above the library default; account creation is
// rare enough that the extra latency is acceptable.
const bcryptCost = 12

const (
	passwordUpper   = "ABCDEFGHJKLMNPQRSTUVWXYZ"
	passwordLower   = "abcdefghijkmnpqrstuvwxyz"
	passwordDigits  = "23456789"
	passwordCharset = passwordUpper + passwordLower + passwordDigits

	generatedPasswordLength = 10
	minPasswordLength       = 6
	maxUsernameSuffix       = 99
)

// Issuer derives usernames and passwords for new accounts.
type Issuer struct {
	accounts AccountStore
}

// NewIssuer constructs an Issuer backed by the account store, which it
// consults for username collisions.
func NewIssuer(accounts AccountStore) *Issuer {
	return &Issuer{accounts: accounts}
}

// IssueUsername returns the custom username when supplied (failing with
// ErrConflict if taken) or derives one from the person's names: first
// initial plus first family name, lowercased and folded to ASCII, with a
// numeric suffix on collision.
func (i *Issuer) IssueUsername(ctx context.Context, p *Person, custom string) (string, error) {
	custom = strings.TrimSpace(custom)
	if custom != "" {
		taken, err := i.accounts.UsernameExists(ctx, custom)
		if err != nil {
			return "", err
		}
		if taken {
			return "", fmt.Errorf("%w: el nombre de usuario %q ya existe", ErrConflict, custom)
		}
		return custom, nil
	}

	base := usernameSlug(p)
	taken, err := i.accounts.UsernameExists(ctx, base)
	if err != nil {
		return "", err
	}
	if !taken {
		return base, nil
	}
	for n := 2; n <= maxUsernameSuffix; n++ {
		candidate := fmt.Sprintf("%s%d", base, n)
		taken, err := i.accounts.UsernameExists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: no hay nombres de usuario disponibles para %q", ErrConflict, base)
}

// IssuePassword validates an explicit password against policy or, when none
// is supplied, generates a random one containing at least one upper-case
// letter, one lower-case letter and one digit.
func (i *Issuer) IssuePassword(explicit string) (string, error) {
	if explicit != "" {
		if err := ValidatePassword(explicit); err != nil {
			return "", err
		}
		return explicit, nil
	}
	return generatePassword()
}

// ValidatePassword enforces the password policy: minimum length plus one
// upper-case letter, one lower-case letter and one digit.
func ValidatePassword(pw string) error {
	if len(pw) < minPasswordLength {
		return fmt.Errorf("%w: la contrasena debe tener al menos %d caracteres", ErrValidation, minPasswordLength)
	}
	var hasUpper, hasLower, hasDigit bool
	for _, r := range pw {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasUpper || !hasLower || !hasDigit {
		return fmt.Errorf("%w: la contrasena debe incluir mayuscula, minuscula y digito", ErrValidation)
	}
	return nil
}

// HashPassword hashes a plaintext password with bcrypt.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("%w: la contrasena esta vacia", ErrValidation)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword compares a plaintext password with a stored hash.
func VerifyPassword(hash, password string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

func generatePassword() (string, error) {
	// One guaranteed character per class, the rest from the full charset.
	chars := make([]byte, 0, generatedPasswordLength)
	for _, class := range []string{passwordUpper, passwordLower, passwordDigits} {
		c, err := randomChar(class)
		if err != nil {
			return "", err
		}
		chars = append(chars, c)
	}
	for len(chars) < generatedPasswordLength {
		c, err := randomChar(passwordCharset)
		if err != nil {
			return "", err
		}
		chars = append(chars, c)
	}
	if err := shuffle(chars); err != nil {
		return "", err
	}
	return string(chars), nil
}

func randomChar(charset string) (byte, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
	if err != nil {
		return 0, err
	}
	return charset[n.Int64()], nil
}

func shuffle(b []byte) error {
	for i := len(b) - 1; i > 0; i-- {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return err
		}
		j := n.Int64()
		b[i], b[j] = b[j], b[i]
	}
	return nil
}

func usernameSlug(p *Person) string {
	first := foldASCII(strings.TrimSpace(p.Nombre1))
	family := foldASCII(strings.TrimSpace(p.Apellido1))
	var sb strings.Builder
	if first != "" {
		sb.WriteByte(first[0])
	}
	sb.WriteString(family)
	slug := sb.String()
	if slug == "" {
		return "usuario"
	}
	return slug
}

var asciiFolds = map[rune]rune{
	'á': 'a', 'é': 'e', 'í': 'i', 'ó': 'o', 'ú': 'u', 'ü': 'u', 'ñ': 'n',
	'Á': 'a', 'É': 'e', 'Í': 'i', 'Ó': 'o', 'Ú': 'u', 'Ü': 'u', 'Ñ': 'n',
}

// foldASCII lowercases and strips everything outside [a-z0-9], folding the
// Spanish accented letters first so "Muñoz" becomes "munoz".
func foldASCII(s string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(s) {
		if folded, ok := asciiFolds[r]; ok {
			r = folded
		}
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
