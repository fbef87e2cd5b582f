package pg

import (
	"context"
	"database/sql"
	"errors"

	"biblioteca.org/internal/account"
)

const accountColumns = `
	id, username, password_hash, role, is_active, email, person_id,
	password_reset_count, last_login, deleted_at, created_at, updated_at`

type accountStore struct {
	db *sql.DB
}

func insertAccount(ctx context.Context, q execer, a *account.Account) error {
	_, err := q.ExecContext(ctx, `
		insert into accounts (
			id, username, password_hash, role, is_active, email, person_id,
			password_reset_count, created_at, updated_at
		) values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`,
		a.ID, a.Username, a.PasswordHash, string(a.Role), a.IsActive, a.Email, a.PersonID,
		a.PasswordResetCount, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return mapWriteError(err)
	}
	return nil
}

// Create inserts the account inside a transaction so the superadmin bound
// can be re-validated after the write. The unique indexes on username and
// person_id are the race guard for duplicate accounts.
func (as accountStore) Create(ctx context.Context, a *account.Account) error {
	tx, err := as.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapUnavailable(err)
	}
	defer func() { _ = tx.Rollback() }()

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

func (as accountStore) Find(ctx context.Context, id string) (*account.Account, error) {
	row := as.db.QueryRowContext(ctx,
		`select `+accountColumns+` from accounts where id = $1`, id)
	return scanAccount(row)
}

func (as accountStore) FindByUsername(ctx context.Context, username string) (*account.Account, error) {
	// Exact, case-sensitive match.
	row := as.db.QueryRowContext(ctx,
		`select `+accountColumns+` from accounts where username = $1`, username)
	return scanAccount(row)
}

func (as accountStore) UsernameExists(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := as.db.QueryRowContext(ctx,
		`select exists(select 1 from accounts where username = $1)`, username).Scan(&exists)
	if err != nil {
		return false, wrapUnavailable(err)
	}
	return exists, nil
}

func (as accountStore) Update(ctx context.Context, a *account.Account) error {
	res, err := as.db.ExecContext(ctx, `
		update accounts set
			role = $2, is_active = $3, email = $4, updated_at = $5
		where id = $1
	`, a.ID, string(a.Role), a.IsActive, a.Email, a.UpdatedAt)
	if err != nil {
		return mapWriteError(err)
	}
	return requireRow(res)
}

func (as accountStore) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	res, err := as.db.ExecContext(ctx, `
		update accounts set
			password_hash = $2,
			password_reset_count = password_reset_count + 1,
			updated_at = now()
		where id = $1
	`, id, passwordHash)
	if err != nil {
		return mapWriteError(err)
	}
	return requireRow(res)
}

func (as accountStore) SetLastLogin(ctx context.Context, id string) error {
	res, err := as.db.ExecContext(ctx,
		`update accounts set last_login = now() where id = $1`, id)
	if err != nil {
		return mapWriteError(err)
	}
	return requireRow(res)
}

func (as accountStore) SoftDelete(ctx context.Context, id string) error {
	res, err := as.db.ExecContext(ctx, `
		update accounts set deleted_at = now(), is_active = false, updated_at = now()
		where id = $1 and deleted_at is null
	`, id)
	if err != nil {
		return mapWriteError(err)
	}
	return requireRow(res)
}

func (as accountStore) Restore(ctx context.Context, id string) error {
	res, err := as.db.ExecContext(ctx, `
		update accounts set deleted_at = null, is_active = true, updated_at = now()
		where id = $1
	`, id)
	if err != nil {
		return mapWriteError(err)
	}
	return requireRow(res)
}

func (as accountStore) CountSuperadmins(ctx context.Context) (int, error) {
	var n int
	err := as.db.QueryRowContext(ctx, `
		select count(*) from accounts
		where role = 'superadmin' and deleted_at is null
	`).Scan(&n)
	if err != nil {
		return 0, wrapUnavailable(err)
	}
	return n, nil
}

func (as accountStore) MasterSuperadmin(ctx context.Context) (*account.Account, error) {
	row := as.db.QueryRowContext(ctx, `
		select `+accountColumns+` from accounts
		where role = 'superadmin' and deleted_at is null
		order by created_at asc, id asc
		limit 1
	`)
	return scanAccount(row)
}

func scanAccount(row *sql.Row) (*account.Account, error) {
	var (
		a         account.Account
		role      string
		lastLogin sql.NullTime
		deletedAt sql.NullTime
	)
	err := row.Scan(
		&a.ID, &a.Username, &a.PasswordHash, &role, &a.IsActive, &a.Email, &a.PersonID,
		&a.PasswordResetCount, &lastLogin, &deletedAt, &a.CreatedAt, &a.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, account.ErrNotFound
	}
	if err != nil {
		return nil, wrapUnavailable(err)
	}
	a.Role = account.Role(role)
	if lastLogin.Valid {
		t := lastLogin.Time
		a.LastLogin = &t
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		a.DeletedAt = &t
	}
	return &a, nil
}
