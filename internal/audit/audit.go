// Package audit keeps an append-only record of who changed what on whose
// account. Entries are persisted through a Store; a write failure degrades
// (logged and counted) but never rolls back the operation it accompanies.
package audit

import (
	"context"
	"errors"
	"time"

	"biblioteca.org/internal/ids"
	"biblioteca.org/internal/obs"
)

// Actions recorded in the ledger.
const (
	ActionCreate        = "CREATE"
	ActionUpdate        = "UPDATE"
	ActionDelete        = "DELETE"
	ActionRestore       = "RESTORE"
	ActionPasswordReset = "PASSWORD_RESET"
)

// ErrUnavailable indicates the audit store could not persist an entry.
var ErrUnavailable = errors.New("audit store unavailable")

// Entry is a single immutable audit record.
type Entry struct {
	ID              string    `json:"id"`
	OccurredAt      time.Time `json:"occurred_at"`
	ActorAccountID  string    `json:"actor_account_id"`
	TargetAccountID string    `json:"target_account_id"`
	TargetPersonID  string    `json:"target_person_id,omitempty"`
	Action          string    `json:"action"`
	Field           string    `json:"field,omitempty"`
	OldValue        string    `json:"old_value,omitempty"`
	NewValue        string    `json:"new_value,omitempty"`
	RequestID       string    `json:"request_id,omitempty"`
}

// Filter narrows audit queries. A zero Filter matches everything.
type Filter struct {
	TargetAccountID string
	Actions         []string
	From            time.Time
	To              time.Time
	Limit           int
}

// Store persists entries. Append never updates or deletes existing rows.
// Query returns entries in reverse-chronological order.
type Store interface {
	Append(ctx context.Context, entry *Entry) error
	Query(ctx context.Context, f Filter) ([]Entry, error)
}

// Recorder fills in entry bookkeeping and applies the degraded-write rule:
// a failed append is logged and counted, and the caller's operation
// proceeds as committed.
type Recorder struct {
	store Store
	now   func() time.Time
}

// NewRecorder wraps a store.
func NewRecorder(store Store) *Recorder {
	return &Recorder{store: store, now: time.Now}
}

// Record persists the entry, stamping ID, timestamp and the request id from
// context. The returned error is informational (ErrUnavailable); mutating
// operations must not treat it as fatal.
func (r *Recorder) Record(ctx context.Context, entry *Entry) error {
	if entry.ID == "" {
		entry.ID = ids.New()
	}
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = r.now().UTC()
	}
	if entry.RequestID == "" {
		entry.RequestID = RequestID(ctx)
	}
	if err := r.store.Append(ctx, entry); err != nil {
		obs.ObserveAuditWriteFailure()
		obs.Warn("audit append failed", map[string]any{
			"action":     entry.Action,
			"target":     entry.TargetAccountID,
			"request_id": entry.RequestID,
			"error":      err.Error(),
		})
		return ErrUnavailable
	}
	return nil
}

// Query proxies to the underlying store.
func (r *Recorder) Query(ctx context.Context, f Filter) ([]Entry, error) {
	return r.store.Query(ctx, f)
}
