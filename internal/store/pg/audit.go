package pg

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"biblioteca.org/internal/audit"
)

type auditStore struct {
	db *sql.DB
}

func (st auditStore) Append(ctx context.Context, entry *audit.Entry) error {
	_, err := st.db.ExecContext(ctx, `
		insert into audit_entries (
			id, occurred_at, actor_account_id, target_account_id, target_person_id,
			action, field, old_value, new_value, request_id
		) values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`,
		entry.ID, entry.OccurredAt, entry.ActorAccountID, entry.TargetAccountID, entry.TargetPersonID,
		entry.Action, entry.Field, entry.OldValue, entry.NewValue, entry.RequestID,
	)
	if err != nil {
		return wrapUnavailable(err)
	}
	return nil
}

func (st auditStore) Query(ctx context.Context, f audit.Filter) ([]audit.Entry, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.TargetAccountID != "" {
		where = append(where, "target_account_id = "+arg(f.TargetAccountID))
	}
	if len(f.Actions) > 0 {
		placeholders := make([]string, 0, len(f.Actions))
		for _, a := range f.Actions {
			placeholders = append(placeholders, arg(a))
		}
		where = append(where, "action in ("+strings.Join(placeholders, ", ")+")")
	}
	if !f.From.IsZero() {
		where = append(where, "occurred_at >= "+arg(f.From))
	}
	if !f.To.IsZero() {
		where = append(where, "occurred_at <= "+arg(f.To))
	}

	query := `
		select id, occurred_at, actor_account_id, target_account_id, target_person_id,
		       action, field, old_value, new_value, request_id
		from audit_entries`
	if len(where) > 0 {
		query += " where " + strings.Join(where, " and ")
	}
	query += " order by occurred_at desc, id desc"
	if f.Limit > 0 {
		query += " limit " + arg(f.Limit)
	}

	rows, err := st.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapUnavailable(err)
	}
	defer rows.Close()

	var out []audit.Entry
	for rows.Next() {
		var e audit.Entry
		if err := rows.Scan(
			&e.ID, &e.OccurredAt, &e.ActorAccountID, &e.TargetAccountID, &e.TargetPersonID,
			&e.Action, &e.Field, &e.OldValue, &e.NewValue, &e.RequestID,
		); err != nil {
			return nil, wrapUnavailable(err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapUnavailable(err)
	}
	return out, nil
}
