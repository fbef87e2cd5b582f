package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"biblioteca.org/internal/account"
)

const personColumns = `
	id, document_id, document_type, nombre1, nombre2, apellido1, apellido2,
	gender, email, phone, address, tipo_persona, grado, grupo, materias,
	nivel, status, has_account, deleted_at, created_at, updated_at`

type personStore struct {
	db *sql.DB
}

func insertPerson(ctx context.Context, q execer, p *account.Person) error {
	materias, err := json.Marshal(p.Materias)
	if err != nil {
		return fmt.Errorf("marshal materias: %w", err)
	}
	_, err = q.ExecContext(ctx, `
		insert into persons (
			id, document_id, document_type, nombre1, nombre2, apellido1, apellido2,
			gender, email, phone, address, tipo_persona, grado, grupo, materias,
			nivel, status, has_account, created_at, updated_at
		) values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
	`,
		p.ID, p.DocumentID, p.DocumentType, p.Nombre1, p.Nombre2, p.Apellido1, p.Apellido2,
		p.Gender, p.Email, p.Phone, p.Address, p.TipoPersona, p.Grado, p.Grupo, materias,
		p.Nivel, p.Status, p.HasAccount, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return mapWriteError(err)
	}
	return nil
}

func (ps personStore) Create(ctx context.Context, p *account.Person) error {
	return insertPerson(ctx, ps.db, p)
}

func (ps personStore) Find(ctx context.Context, id string) (*account.Person, error) {
	row := ps.db.QueryRowContext(ctx,
		`select `+personColumns+` from persons where id = $1`, id)
	return scanPerson(row)
}

func (ps personStore) FindByDocument(ctx context.Context, documentID string) (*account.Person, error) {
	row := ps.db.QueryRowContext(ctx,
		`select `+personColumns+` from persons where document_id = $1 and deleted_at is null`,
		documentID)
	return scanPerson(row)
}

func (ps personStore) Update(ctx context.Context, p *account.Person) error {
	materias, err := json.Marshal(p.Materias)
	if err != nil {
		return fmt.Errorf("marshal materias: %w", err)
	}
	res, err := ps.db.ExecContext(ctx, `
		update persons set
			nombre1 = $2, nombre2 = $3, apellido1 = $4, apellido2 = $5,
			gender = $6, email = $7, phone = $8, address = $9,
			grado = $10, grupo = $11, materias = $12, nivel = $13,
			status = $14, updated_at = $15
		where id = $1
	`,
		p.ID, p.Nombre1, p.Nombre2, p.Apellido1, p.Apellido2,
		p.Gender, p.Email, p.Phone, p.Address,
		p.Grado, p.Grupo, materias, p.Nivel,
		p.Status, p.UpdatedAt,
	)
	if err != nil {
		return mapWriteError(err)
	}
	return requireRow(res)
}

func scanPerson(row *sql.Row) (*account.Person, error) {
	var (
		p           account.Person
		rawMaterias []byte
		deletedAt   sql.NullTime
	)
	err := row.Scan(
		&p.ID, &p.DocumentID, &p.DocumentType, &p.Nombre1, &p.Nombre2, &p.Apellido1, &p.Apellido2,
		&p.Gender, &p.Email, &p.Phone, &p.Address, &p.TipoPersona, &p.Grado, &p.Grupo, &rawMaterias,
		&p.Nivel, &p.Status, &p.HasAccount, &deletedAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, account.ErrNotFound
	}
	if err != nil {
		return nil, wrapUnavailable(err)
	}
	if len(rawMaterias) > 0 {
		if err := json.Unmarshal(rawMaterias, &p.Materias); err != nil {
			return nil, fmt.Errorf("decode materias: %w", err)
		}
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		p.DeletedAt = &t
	}
	return &p, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return wrapUnavailable(err)
	}
	if n == 0 {
		return account.ErrNotFound
	}
	return nil
}
