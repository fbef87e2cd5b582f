// Package pg implements the account and audit stores on PostgreSQL.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"biblioteca.org/internal/account"
	"biblioteca.org/internal/audit"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
)

// Store wraps a database/sql pool over the pgx stdlib driver.
type Store struct {
	db *sql.DB
}

var _ account.Store = (*Store)(nil)

// Option tunes the pool at Open time.
type Option func(*sql.DB)

func WithMaxOpenConns(n int) Option {
	return func(db *sql.DB) {
		if n > 0 {
			db.SetMaxOpenConns(n)
		}
	}
}

func WithMaxIdleConns(n int) Option {
	return func(db *sql.DB) {
		if n >= 0 {
			db.SetMaxIdleConns(n)
		}
	}
}

func WithConnMaxLifetime(d time.Duration) Option {
	return func(db *sql.DB) {
		if d > 0 {
			db.SetConnMaxLifetime(d)
		}
	}
}

// Open connects and tunes the pool.
func Open(dsn string, opts ...Option) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	for _, opt := range opts {
		opt(db)
	}
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing pool (tests use this with sqlmock).
func NewWithDB(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

// DB exposes the pool for readiness probes.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Persons() account.PersonStore   { return personStore{s.db} }
func (s *Store) Accounts() account.AccountStore { return accountStore{s.db} }
func (s *Store) Audit() audit.Store             { return auditStore{s.db} }

// Provision inserts a person and its account in a single transaction. The
// superadmin bound is re-validated after the insert; an excess rolls the
// whole unit back.
func (s *Store) Provision(ctx context.Context, p *account.Person, a *account.Account) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapUnavailable(err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := insertPerson(ctx, tx, p); err != nil {
		return err
	}
	if err := insertAccount(ctx, tx, a); err != nil {
		return err
	}
	if a.Role == account.RoleSuperadmin {
		if err := checkSuperadminBound(ctx, tx); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return wrapUnavailable(err)
	}
	return nil
}

// Attach inserts an account for an existing person and flips has_account,
// both inside one transaction. A failure on either write leaves the
// database untouched; a missing or soft-deleted person is ErrNotFound.
func (s *Store) Attach(ctx context.Context, personID string, a *account.Account) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapUnavailable(err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := insertAccount(ctx, tx, a); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `
		update persons set has_account = true, updated_at = now()
		where id = $1 and deleted_at is null
	`, personID)
	if err != nil {
		return mapWriteError(err)
	}
	if err := requireRow(res); err != nil {
		return err
	}
	if a.Role == account.RoleSuperadmin {
		if err := checkSuperadminBound(ctx, tx); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return wrapUnavailable(err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Transaction-scoped advisory lock key for superadmin creation.
const superadminLockKey int64 = 811001

// checkSuperadminBound enforces the bound at write time. READ COMMITTED
// alone is not enough: two concurrent inserts would each count only the
// committed rows plus their own. The advisory lock serializes the writers;
// the one that blocked resumes after its peer's transaction ends, so its
// count includes the peer's committed row and the excess creation rolls
// back.
func checkSuperadminBound(ctx context.Context, q execer) error {
	if _, err := q.ExecContext(ctx, `select pg_advisory_xact_lock($1)`, superadminLockKey); err != nil {
		return wrapUnavailable(err)
	}
	var n int
	err := q.QueryRowContext(ctx, `
		select count(*) from accounts
		where role = 'superadmin' and deleted_at is null
	`).Scan(&n)
	if err != nil {
		return wrapUnavailable(err)
	}
	if n > account.SuperadminLimit {
		return account.ErrPolicyViolation
	}
	return nil
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

// mapWriteError translates driver errors into the domain taxonomy.
func mapWriteError(err error) error {
	if pgErr, ok := maybePgError(err); ok {
		switch pgErr.Code {
		case pgErrUniqueViolation:
			return account.ErrConflict
		case pgErrForeignKeyViolation:
			return account.ErrNotFound
		}
	}
	return wrapUnavailable(err)
}

func wrapUnavailable(err error) error {
	return errors.Join(account.ErrUnavailable, err)
}
