package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"biblioteca.org/internal/account"
	"biblioteca.org/internal/audit"
)

func person(id, doc string) *account.Person {
	return &account.Person{
		ID: id, DocumentID: doc, Nombre1: "N", Apellido1: "A",
		TipoPersona: account.PersonPublic, Status: account.PersonActive,
	}
}

func acct(id, username, personID string, role account.Role, created time.Time) *account.Account {
	return &account.Account{
		ID: id, Username: username, PasswordHash: "x", Role: role,
		IsActive: true, PersonID: personID, CreatedAt: created, UpdatedAt: created,
	}
}

func TestProvisionRollsBackOnAccountConflict(t *testing.T) {
	s := New()
	ctx := context.Background()

	if err := s.Provision(ctx, person("p1", "d1"), acct("a1", "dup", "p1", account.RoleUser, time.Now())); err != nil {
		t.Fatal(err)
	}
	err := s.Provision(ctx, person("p2", "d2"), acct("a2", "dup", "p2", account.RoleUser, time.Now()))
	if !errors.Is(err, account.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	// The second person must not linger after the rollback.
	if _, err := s.Persons().Find(ctx, "p2"); !errors.Is(err, account.ErrNotFound) {
		t.Fatalf("person p2 should be gone, got %v", err)
	}
	if _, err := s.Persons().FindByDocument(ctx, "d2"); !errors.Is(err, account.ErrNotFound) {
		t.Fatalf("document d2 should be free, got %v", err)
	}
}

func TestAttachLeavesPersonUntouchedOnConflict(t *testing.T) {
	s := New()
	ctx := context.Background()

	if err := s.Persons().Create(ctx, person("p1", "d1")); err != nil {
		t.Fatal(err)
	}
	if err := s.Accounts().Create(ctx, acct("a1", "dup", "p1", account.RoleUser, time.Now())); err != nil {
		t.Fatal(err)
	}
	if err := s.Persons().Create(ctx, person("p2", "d2")); err != nil {
		t.Fatal(err)
	}

	err := s.Attach(ctx, "p2", acct("a2", "dup", "p2", account.RoleUser, time.Now()))
	if !errors.Is(err, account.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	p, err := s.Persons().Find(ctx, "p2")
	if err != nil {
		t.Fatal(err)
	}
	if p.HasAccount {
		t.Fatal("failed attach must not mark the person")
	}
	if _, err := s.Accounts().Find(ctx, "a2"); !errors.Is(err, account.ErrNotFound) {
		t.Fatalf("account a2 should be gone, got %v", err)
	}

	if err := s.Attach(ctx, "missing", acct("a3", "u3", "missing", account.RoleUser, time.Now())); !errors.Is(err, account.ErrNotFound) {
		t.Fatalf("unknown person: expected ErrNotFound, got %v", err)
	}

	if err := s.Attach(ctx, "p2", acct("a2", "libre", "p2", account.RoleUser, time.Now())); err != nil {
		t.Fatal(err)
	}
	p, err = s.Persons().Find(ctx, "p2")
	if err != nil {
		t.Fatal(err)
	}
	if !p.HasAccount {
		t.Fatal("successful attach must mark the person")
	}
}

func TestDocumentUniquenessReleasedBySoftDelete(t *testing.T) {
	s := New()
	ctx := context.Background()

	p1 := person("p1", "d1")
	if err := s.Persons().Create(ctx, p1); err != nil {
		t.Fatal(err)
	}
	if err := s.Persons().Create(ctx, person("p2", "d1")); !errors.Is(err, account.ErrConflict) {
		t.Fatalf("live duplicate document: expected ErrConflict, got %v", err)
	}

	now := time.Now()
	p1.DeletedAt = &now
	if err := s.Persons().Update(ctx, p1); err != nil {
		t.Fatal(err)
	}
	if err := s.Persons().Create(ctx, person("p3", "d1")); err != nil {
		t.Fatalf("document should be reusable after soft delete: %v", err)
	}
}

func TestOneAccountPerPerson(t *testing.T) {
	s := New()
	ctx := context.Background()

	if err := s.Persons().Create(ctx, person("p1", "d1")); err != nil {
		t.Fatal(err)
	}
	if err := s.Accounts().Create(ctx, acct("a1", "u1", "p1", account.RoleUser, time.Now())); err != nil {
		t.Fatal(err)
	}
	err := s.Accounts().Create(ctx, acct("a2", "u2", "p1", account.RoleUser, time.Now()))
	if !errors.Is(err, account.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestSuperadminBoundUnderConcurrency(t *testing.T) {
	s := New()
	ctx := context.Background()

	const n = 10
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := string(rune('a' + i))
			errs[i] = s.Provision(ctx,
				person("p-"+id, "d-"+id),
				acct("a-"+id, "sa-"+id, "p-"+id, account.RoleSuperadmin, time.Now()))
		}(i)
	}
	wg.Wait()

	created := 0
	for _, err := range errs {
		switch {
		case err == nil:
			created++
		case errors.Is(err, account.ErrPolicyViolation):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if created != account.SuperadminLimit {
		t.Fatalf("created %d superadmins, want %d", created, account.SuperadminLimit)
	}
	count, err := s.Accounts().CountSuperadmins(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != account.SuperadminLimit {
		t.Fatalf("count %d, want %d", count, account.SuperadminLimit)
	}
}

func TestMasterSuperadminSelection(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for _, id := range []string{"b", "a", "c"} {
		if err := s.Persons().Create(ctx, person("p-"+id, "d-"+id)); err != nil {
			t.Fatal(err)
		}
		created := base
		if id == "c" {
			created = base.Add(time.Hour)
		}
		if err := s.Accounts().Create(ctx, acct("sa-"+id, "u-"+id, "p-"+id, account.RoleSuperadmin, created)); err != nil {
			t.Fatal(err)
		}
	}

	// "a" and "b" tie on created_at; the lower id wins.
	master, err := s.Accounts().MasterSuperadmin(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if master.ID != "sa-a" {
		t.Fatalf("master %s, want sa-a", master.ID)
	}

	if err := s.Accounts().SoftDelete(ctx, "sa-a"); err != nil {
		t.Fatal(err)
	}
	master, err = s.Accounts().MasterSuperadmin(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if master.ID != "sa-b" {
		t.Fatalf("master after delete %s, want sa-b", master.ID)
	}
}

func TestUsernameImmutable(t *testing.T) {
	s := New()
	ctx := context.Background()

	a := acct("a1", "fijo", "p1", account.RoleUser, time.Now())
	if err := s.Accounts().Create(ctx, a); err != nil {
		t.Fatal(err)
	}
	a.Username = "otro"
	if err := s.Accounts().Update(ctx, a); !errors.Is(err, account.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestAuditQueryFilters(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

	entries := []audit.Entry{
		{ID: "1", OccurredAt: base, TargetAccountID: "t1", Action: audit.ActionCreate},
		{ID: "2", OccurredAt: base.Add(time.Hour), TargetAccountID: "t1", Action: audit.ActionUpdate},
		{ID: "3", OccurredAt: base.Add(2 * time.Hour), TargetAccountID: "t2", Action: audit.ActionUpdate},
	}
	for i := range entries {
		if err := s.Audit().Append(ctx, &entries[i]); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.Audit().Query(ctx, audit.Filter{TargetAccountID: "t1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != "2" || got[1].ID != "1" {
		t.Fatalf("target filter, newest first: %+v", got)
	}

	got, err = s.Audit().Query(ctx, audit.Filter{Actions: []string{audit.ActionUpdate}})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("action filter: %+v", got)
	}

	got, err = s.Audit().Query(ctx, audit.Filter{From: base.Add(30 * time.Minute), To: base.Add(90 * time.Minute)})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "2" {
		t.Fatalf("time window filter: %+v", got)
	}

	got, err = s.Audit().Query(ctx, audit.Filter{Limit: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "3" {
		t.Fatalf("limit: %+v", got)
	}
}

func TestClonesAreIsolated(t *testing.T) {
	s := New()
	ctx := context.Background()

	p := person("p1", "d1")
	p.Materias = []string{"mat"}
	if err := s.Persons().Create(ctx, p); err != nil {
		t.Fatal(err)
	}
	got, err := s.Persons().Find(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	got.Materias[0] = "cambiada"
	got.Nombre1 = "Mutado"

	again, err := s.Persons().Find(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if again.Materias[0] != "mat" || again.Nombre1 != "N" {
		t.Fatal("returned clone leaked into the store")
	}
}
