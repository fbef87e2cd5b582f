// Package memory provides an in-process implementation of the account and
// audit stores. It backs the test suites and lets the API run without a
// database DSN.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"biblioteca.org/internal/account"
	"biblioteca.org/internal/audit"
)

// Store keeps everything in mutex-guarded maps. All uniqueness guards the
// SQL schema enforces (document id, username, one account per person,
// superadmin bound) are enforced here under the same lock, so concurrent
// provisioning behaves like it does against Postgres.
type Store struct {
	mu sync.Mutex

	persons      map[string]*account.Person
	personsByDoc map[string]string

	accounts         map[string]*account.Account
	accountsByName   map[string]string
	accountsByPerson map[string]string

	audits []audit.Entry

	now func() time.Time
}

// New creates an empty store.
func New() *Store {
	return &Store{
		persons:          make(map[string]*account.Person),
		personsByDoc:     make(map[string]string),
		accounts:         make(map[string]*account.Account),
		accountsByName:   make(map[string]string),
		accountsByPerson: make(map[string]string),
		now:              time.Now,
	}
}

var _ account.Store = (*Store)(nil)

func (s *Store) Persons() account.PersonStore   { return personStore{s} }
func (s *Store) Accounts() account.AccountStore { return accountStore{s} }
func (s *Store) Audit() audit.Store             { return auditStore{s} }

// Provision inserts a person and its account atomically.
func (s *Store) Provision(ctx context.Context, p *account.Person, a *account.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.createPersonLocked(p); err != nil {
		return err
	}
	if err := s.createAccountLocked(a); err != nil {
		delete(s.persons, p.ID)
		delete(s.personsByDoc, p.DocumentID)
		return err
	}
	s.persons[p.ID].HasAccount = true
	return nil
}

// Attach creates an account for an existing person and marks the person,
// all under the one lock so a conflict leaves the person untouched.
func (s *Store) Attach(ctx context.Context, personID string, a *account.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.persons[personID]
	if !ok || p.DeletedAt != nil {
		return fmt.Errorf("%w: persona %s", account.ErrNotFound, personID)
	}
	if err := s.createAccountLocked(a); err != nil {
		return err
	}
	p.HasAccount = true
	p.UpdatedAt = s.now().UTC()
	return nil
}

func (s *Store) createPersonLocked(p *account.Person) error {
	if id, ok := s.personsByDoc[p.DocumentID]; ok {
		if existing := s.persons[id]; existing != nil && existing.DeletedAt == nil {
			return fmt.Errorf("%w: documento duplicado", account.ErrConflict)
		}
	}
	cp := clonePerson(p)
	s.persons[cp.ID] = cp
	s.personsByDoc[cp.DocumentID] = cp.ID
	return nil
}

func (s *Store) createAccountLocked(a *account.Account) error {
	if _, ok := s.accountsByName[a.Username]; ok {
		return fmt.Errorf("%w: nombre de usuario duplicado", account.ErrConflict)
	}
	if _, ok := s.accountsByPerson[a.PersonID]; ok {
		return fmt.Errorf("%w: la persona ya tiene una cuenta", account.ErrConflict)
	}
	if a.Role == account.RoleSuperadmin && s.countSuperadminsLocked() >= account.SuperadminLimit {
		return fmt.Errorf("%w: limite de superadmins alcanzado", account.ErrPolicyViolation)
	}
	ca := cloneAccount(a)
	s.accounts[ca.ID] = ca
	s.accountsByName[ca.Username] = ca.ID
	s.accountsByPerson[ca.PersonID] = ca.ID
	return nil
}

func (s *Store) countSuperadminsLocked() int {
	n := 0
	for _, a := range s.accounts {
		if a.Role == account.RoleSuperadmin && a.DeletedAt == nil {
			n++
		}
	}
	return n
}

// --- persons ---

type personStore struct{ s *Store }

func (ps personStore) Create(ctx context.Context, p *account.Person) error {
	ps.s.mu.Lock()
	defer ps.s.mu.Unlock()
	return ps.s.createPersonLocked(p)
}

func (ps personStore) Find(ctx context.Context, id string) (*account.Person, error) {
	ps.s.mu.Lock()
	defer ps.s.mu.Unlock()
	p, ok := ps.s.persons[id]
	if !ok {
		return nil, fmt.Errorf("%w: persona %s", account.ErrNotFound, id)
	}
	return clonePerson(p), nil
}

func (ps personStore) FindByDocument(ctx context.Context, documentID string) (*account.Person, error) {
	ps.s.mu.Lock()
	defer ps.s.mu.Unlock()
	id, ok := ps.s.personsByDoc[documentID]
	if !ok {
		return nil, fmt.Errorf("%w: documento %s", account.ErrNotFound, documentID)
	}
	return clonePerson(ps.s.persons[id]), nil
}

func (ps personStore) Update(ctx context.Context, p *account.Person) error {
	ps.s.mu.Lock()
	defer ps.s.mu.Unlock()
	if _, ok := ps.s.persons[p.ID]; !ok {
		return fmt.Errorf("%w: persona %s", account.ErrNotFound, p.ID)
	}
	ps.s.persons[p.ID] = clonePerson(p)
	return nil
}

// --- accounts ---

type accountStore struct{ s *Store }

func (as accountStore) Create(ctx context.Context, a *account.Account) error {
	as.s.mu.Lock()
	defer as.s.mu.Unlock()
	return as.s.createAccountLocked(a)
}

func (as accountStore) Find(ctx context.Context, id string) (*account.Account, error) {
	as.s.mu.Lock()
	defer as.s.mu.Unlock()
	a, ok := as.s.accounts[id]
	if !ok {
		return nil, fmt.Errorf("%w: cuenta %s", account.ErrNotFound, id)
	}
	return cloneAccount(a), nil
}

func (as accountStore) FindByUsername(ctx context.Context, username string) (*account.Account, error) {
	as.s.mu.Lock()
	defer as.s.mu.Unlock()
	id, ok := as.s.accountsByName[username]
	if !ok {
		return nil, fmt.Errorf("%w: usuario %s", account.ErrNotFound, username)
	}
	return cloneAccount(as.s.accounts[id]), nil
}

func (as accountStore) UsernameExists(ctx context.Context, username string) (bool, error) {
	as.s.mu.Lock()
	defer as.s.mu.Unlock()
	_, ok := as.s.accountsByName[username]
	return ok, nil
}

func (as accountStore) Update(ctx context.Context, a *account.Account) error {
	as.s.mu.Lock()
	defer as.s.mu.Unlock()
	existing, ok := as.s.accounts[a.ID]
	if !ok {
		return fmt.Errorf("%w: cuenta %s", account.ErrNotFound, a.ID)
	}
	if existing.Username != a.Username {
		return fmt.Errorf("%w: el nombre de usuario es inmutable", account.ErrValidation)
	}
	as.s.accounts[a.ID] = cloneAccount(a)
	return nil
}

func (as accountStore) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	as.s.mu.Lock()
	defer as.s.mu.Unlock()
	a, ok := as.s.accounts[id]
	if !ok {
		return fmt.Errorf("%w: cuenta %s", account.ErrNotFound, id)
	}
	a.PasswordHash = passwordHash
	a.PasswordResetCount++
	a.UpdatedAt = as.s.now().UTC()
	return nil
}

func (as accountStore) SetLastLogin(ctx context.Context, id string) error {
	as.s.mu.Lock()
	defer as.s.mu.Unlock()
	a, ok := as.s.accounts[id]
	if !ok {
		return fmt.Errorf("%w: cuenta %s", account.ErrNotFound, id)
	}
	now := as.s.now().UTC()
	a.LastLogin = &now
	return nil
}

func (as accountStore) SoftDelete(ctx context.Context, id string) error {
	as.s.mu.Lock()
	defer as.s.mu.Unlock()
	a, ok := as.s.accounts[id]
	if !ok {
		return fmt.Errorf("%w: cuenta %s", account.ErrNotFound, id)
	}
	now := as.s.now().UTC()
	a.DeletedAt = &now
	a.IsActive = false
	a.UpdatedAt = now
	return nil
}

func (as accountStore) Restore(ctx context.Context, id string) error {
	as.s.mu.Lock()
	defer as.s.mu.Unlock()
	a, ok := as.s.accounts[id]
	if !ok {
		return fmt.Errorf("%w: cuenta %s", account.ErrNotFound, id)
	}
	a.DeletedAt = nil
	a.IsActive = true
	a.UpdatedAt = as.s.now().UTC()
	return nil
}

func (as accountStore) CountSuperadmins(ctx context.Context) (int, error) {
	as.s.mu.Lock()
	defer as.s.mu.Unlock()
	return as.s.countSuperadminsLocked(), nil
}

func (as accountStore) MasterSuperadmin(ctx context.Context) (*account.Account, error) {
	as.s.mu.Lock()
	defer as.s.mu.Unlock()
	var master *account.Account
	for _, a := range as.s.accounts {
		if a.Role != account.RoleSuperadmin || a.DeletedAt != nil {
			continue
		}
		if master == nil || a.CreatedAt.Before(master.CreatedAt) ||
			(a.CreatedAt.Equal(master.CreatedAt) && a.ID < master.ID) {
			master = a
		}
	}
	if master == nil {
		return nil, fmt.Errorf("%w: no hay superadmins", account.ErrNotFound)
	}
	return cloneAccount(master), nil
}

// --- audit ---

type auditStore struct{ s *Store }

func (st auditStore) Append(ctx context.Context, entry *audit.Entry) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	st.s.audits = append(st.s.audits, *entry)
	return nil
}

func (st auditStore) Query(ctx context.Context, f audit.Filter) ([]audit.Entry, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	var out []audit.Entry
	for _, e := range st.s.audits {
		if f.TargetAccountID != "" && e.TargetAccountID != f.TargetAccountID {
			continue
		}
		if len(f.Actions) > 0 && !containsString(f.Actions, e.Action) {
			continue
		}
		if !f.From.IsZero() && e.OccurredAt.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && e.OccurredAt.After(f.To) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OccurredAt.Equal(out[j].OccurredAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].OccurredAt.After(out[j].OccurredAt)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func clonePerson(p *account.Person) *account.Person {
	cp := *p
	if p.Materias != nil {
		cp.Materias = append([]string(nil), p.Materias...)
	}
	if p.DeletedAt != nil {
		t := *p.DeletedAt
		cp.DeletedAt = &t
	}
	return &cp
}

func cloneAccount(a *account.Account) *account.Account {
	ca := *a
	if a.LastLogin != nil {
		t := *a.LastLogin
		ca.LastLogin = &t
	}
	if a.DeletedAt != nil {
		t := *a.DeletedAt
		ca.DeletedAt = &t
	}
	return &ca
}
