package account

import (
	"context"

	"biblioteca.org/internal/audit"
)

// Store describes persistence required by the account workflow. Uniqueness
// guarantees (document id, username, one account per person, superadmin
// bound) are enforced by the implementations at write time; the services
// treat the store as the authority under concurrent requests.
type Store interface {
	Persons() PersonStore
	Accounts() AccountStore
	Audit() audit.Store

	// Provision creates a person and its account as one logical unit:
	// either both persist or neither does.
	Provision(ctx context.Context, p *Person, a *Account) error

	// Attach creates an account for an existing, live person and marks the
	// person as having one. Both writes persist or neither does; a missing
	// or soft-deleted person fails with ErrNotFound.
	Attach(ctx context.Context, personID string, a *Account) error
}

// PersonStore manages demographic records. Persons are soft-deleted, never
// removed.
type PersonStore interface {
	Create(ctx context.Context, p *Person) error
	Find(ctx context.Context, id string) (*Person, error)
	FindByDocument(ctx context.Context, documentID string) (*Person, error)
	Update(ctx context.Context, p *Person) error
}

// AccountStore manages login-capable records.
//
// Create must fail with ErrConflict when the username or the person link
// already exists, and with ErrPolicyViolation when inserting a superadmin
// would exceed SuperadminLimit (re-validated inside the write).
type AccountStore interface {
	Create(ctx context.Context, a *Account) error
	Find(ctx context.Context, id string) (*Account, error)
	FindByUsername(ctx context.Context, username string) (*Account, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	Update(ctx context.Context, a *Account) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	SetLastLogin(ctx context.Context, id string) error
	SoftDelete(ctx context.Context, id string) error
	Restore(ctx context.Context, id string) error
	CountSuperadmins(ctx context.Context) (int, error)
	// MasterSuperadmin returns the earliest-created non-deleted superadmin,
	// or ErrNotFound when none exists yet.
	MasterSuperadmin(ctx context.Context) (*Account, error)
}
