package account

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode"
)

// fakeAccounts implements just enough of AccountStore for the Issuer.
type fakeAccounts struct {
	AccountStore
	taken map[string]bool
}

func (f fakeAccounts) UsernameExists(ctx context.Context, username string) (bool, error) {
	return f.taken[username], nil
}

func TestIssueUsernameDerivation(t *testing.T) {
	issuer := NewIssuer(fakeAccounts{taken: map[string]bool{}})
	p := &Person{Nombre1: "María", Apellido1: "Muñoz"}

	got, err := issuer.IssueUsername(context.Background(), p, "")
	if err != nil {
		t.Fatal(err)
	}
	if got != "mmunoz" {
		t.Fatalf("got %q, want mmunoz", got)
	}
}

func TestIssueUsernameCollisionSuffix(t *testing.T) {
	issuer := NewIssuer(fakeAccounts{taken: map[string]bool{
		"jperez": true, "jperez2": true,
	}})
	p := &Person{Nombre1: "Juan", Apellido1: "Pérez"}

	got, err := issuer.IssueUsername(context.Background(), p, "")
	if err != nil {
		t.Fatal(err)
	}
	if got != "jperez3" {
		t.Fatalf("got %q, want jperez3", got)
	}
}

func TestIssueUsernameCustomTaken(t *testing.T) {
	issuer := NewIssuer(fakeAccounts{taken: map[string]bool{"elegido": true}})
	_, err := issuer.IssueUsername(context.Background(), &Person{Nombre1: "A", Apellido1: "B"}, "elegido")
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestIssueUsernameEmptyNames(t *testing.T) {
	issuer := NewIssuer(fakeAccounts{taken: map[string]bool{}})
	got, err := issuer.IssueUsername(context.Background(), &Person{}, "")
	if err != nil {
		t.Fatal(err)
	}
	if got != "usuario" {
		t.Fatalf("got %q, want usuario", got)
	}
}

func TestValidatePassword(t *testing.T) {
	cases := []struct {
		pw string
		ok bool
	}{
		{"Abc123", true},
		{"abc123", false},
		{"ABC123", false},
		{"Abcdef", false},
		{"Ab1", false},
	}
	for _, tc := range cases {
		err := ValidatePassword(tc.pw)
		if tc.ok && err != nil {
			t.Fatalf("%q rejected: %v", tc.pw, err)
		}
		if !tc.ok && !errors.Is(err, ErrValidation) {
			t.Fatalf("%q: expected ErrValidation, got %v", tc.pw, err)
		}
	}
}

func TestGeneratedPasswordSatisfiesPolicy(t *testing.T) {
	issuer := NewIssuer(fakeAccounts{taken: map[string]bool{}})
	for i := 0; i < 20; i++ {
		pw, err := issuer.IssuePassword("")
		if err != nil {
			t.Fatal(err)
		}
		if len(pw) != generatedPasswordLength {
			t.Fatalf("length %d, want %d", len(pw), generatedPasswordLength)
		}
		if err := ValidatePassword(pw); err != nil {
			t.Fatalf("generated password %q fails policy: %v", pw, err)
		}
		for _, r := range pw {
			if !strings.ContainsRune(passwordCharset, r) {
				t.Fatalf("unexpected character %q in %q", r, pw)
			}
		}
	}
}

func TestHashVerifyRoundTrip(t *testing.T) {
	hash, err := HashPassword("Secreto1")
	if err != nil {
		t.Fatal(err)
	}
	if hash == "Secreto1" {
		t.Fatal("hash equals plaintext")
	}
	if !VerifyPassword(hash, "Secreto1") {
		t.Fatal("correct password rejected")
	}
	if VerifyPassword(hash, "secreto1") {
		t.Fatal("wrong password accepted")
	}
	if VerifyPassword("", "Secreto1") {
		t.Fatal("empty hash accepted")
	}
}

func TestFoldASCII(t *testing.T) {
	cases := map[string]string{
		"Muñoz":      "munoz",
		"GARCÍA":     "garcia",
		"O'Brien":    "obrien",
		"De la Cruz": "delacruz",
	}
	for in, want := range cases {
		if got := foldASCII(in); got != want {
			t.Fatalf("foldASCII(%q) = %q, want %q", in, got, want)
		}
	}
	for _, r := range foldASCII("Ñandú 42") {
		if !unicode.IsLower(r) && !unicode.IsDigit(r) {
			t.Fatalf("unexpected rune %q", r)
		}
	}
}
