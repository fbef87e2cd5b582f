package account

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"biblioteca.org/internal/audit"
	"biblioteca.org/internal/ids"
	"biblioteca.org/internal/obs"
)

// ProvisionResult is returned by both creation flows. Credentials carries
// the plaintext password exactly once.
type ProvisionResult struct {
	Account     *Account    `json:"user"`
	Person      *Person     `json:"person"`
	Credentials Credentials `json:"credentials"`
}

// ValidatePerson checks the demographic payload, including the
// type-specific required fields.
func ValidatePerson(p *Person) error {
	if strings.TrimSpace(p.DocumentID) == "" {
		return fmt.Errorf("%w: el documento es requerido", ErrValidation)
	}
	if strings.TrimSpace(p.Nombre1) == "" || strings.TrimSpace(p.Apellido1) == "" {
		return fmt.Errorf("%w: nombre y apellido son requeridos", ErrValidation)
	}
	switch p.TipoPersona {
	case PersonStudent:
		if strings.TrimSpace(p.Grado) == "" || strings.TrimSpace(p.Grupo) == "" {
			return fmt.Errorf("%w: grado y grupo son requeridos", ErrValidation)
		}
	case PersonTeacher:
		if len(p.Materias) == 0 {
			return fmt.Errorf("%w: al menos una materia es requerida", ErrValidation)
		}
	case PersonStaff, PersonPublic:
	default:
		return fmt.Errorf("%w: tipo de persona desconocido %q", ErrValidation, p.TipoPersona)
	}
	return nil
}

// CreateForPerson is flow A: provision an account for an existing person.
// The person must exist, not be soft-deleted, and have no account yet. The
// store's uniqueness guard on the person link is the authority under
// concurrent calls; a racing second request fails with ErrConflict.
func (s *Service) CreateForPerson(ctx context.Context, actor Actor, personID string, role Role, customUsername string) (*ProvisionResult, error) {
	p, err := s.store.Persons().Find(ctx, personID)
	if err != nil {
		return nil, err
	}
	if p.DeletedAt != nil {
		return nil, fmt.Errorf("%w: la persona fue eliminada", ErrNotFound)
	}
	if p.HasAccount {
		return nil, fmt.Errorf("%w: la persona ya tiene una cuenta", ErrConflict)
	}
	if err := s.authorizeCreate(ctx, actor, role); err != nil {
		return nil, err
	}

	creds, acc, err := s.buildAccount(ctx, p, role, customUsername, "")
	if err != nil {
		return nil, err
	}
	if err := s.store.Attach(ctx, p.ID, acc); err != nil {
		return nil, err
	}
	p.HasAccount = true

	s.recordCreate(ctx, actor.AccountID, acc)
	return &ProvisionResult{Account: acc, Person: p, Credentials: creds}, nil
}

// CreateWithPerson is flow B: create a person and its account as one
// logical unit. Duplicate document ids fail with ErrConflict; missing
// type-specific fields with ErrValidation.
func (s *Service) CreateWithPerson(ctx context.Context, actor Actor, p *Person, username, password string, role Role) (*ProvisionResult, error) {
	if err := ValidatePerson(p); err != nil {
		return nil, err
	}
	if err := s.ensureDocumentFree(ctx, p.DocumentID); err != nil {
		return nil, err
	}
	if err := s.authorizeCreate(ctx, actor, role); err != nil {
		return nil, err
	}

	s.preparePerson(p)
	creds, acc, err := s.buildAccount(ctx, p, role, username, password)
	if err != nil {
		return nil, err
	}
	if err := s.store.Provision(ctx, p, acc); err != nil {
		return nil, err
	}

	s.recordCreate(ctx, actor.AccountID, acc)
	return &ProvisionResult{Account: acc, Person: p, Credentials: creds}, nil
}

// BootstrapSuperadmin creates a superadmin together with its person record.
// While no superadmin exists the call is open (first-boot path; actor is
// nil); afterwards only the master may use it, subject to the bound.
func (s *Service) BootstrapSuperadmin(ctx context.Context, actor *Actor, p *Person, email, username, password string) (*ProvisionResult, error) {
	count, err := s.store.Accounts().CountSuperadmins(ctx)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		if actor == nil {
			return nil, fmt.Errorf("%w: ya existe un superadmin", ErrPolicyViolation)
		}
		if d := CanCreate(*actor, RoleSuperadmin, count); !d.Allowed {
			return nil, fmt.Errorf("%w: %s", ErrPolicyViolation, d.Reason)
		}
	}
	if err := ValidatePerson(p); err != nil {
		return nil, err
	}
	if err := s.ensureDocumentFree(ctx, p.DocumentID); err != nil {
		return nil, err
	}

	s.preparePerson(p)
	creds, acc, err := s.buildAccount(ctx, p, RoleSuperadmin, username, password)
	if err != nil {
		return nil, err
	}
	acc.Email = strings.TrimSpace(email)
	if err := s.store.Provision(ctx, p, acc); err != nil {
		return nil, err
	}

	actorID := ""
	if actor != nil {
		actorID = actor.AccountID
	}
	s.recordCreate(ctx, actorID, acc)
	return &ProvisionResult{Account: acc, Person: p, Credentials: creds}, nil
}

func (s *Service) authorizeCreate(ctx context.Context, actor Actor, role Role) error {
	count := 0
	if role == RoleSuperadmin {
		var err error
		count, err = s.store.Accounts().CountSuperadmins(ctx)
		if err != nil {
			return err
		}
	}
	if d := CanCreate(actor, role, count); !d.Allowed {
		return fmt.Errorf("%w: %s", ErrPolicyViolation, d.Reason)
	}
	return nil
}

func (s *Service) ensureDocumentFree(ctx context.Context, documentID string) error {
	existing, err := s.store.Persons().FindByDocument(ctx, documentID)
	switch {
	case err == nil && existing.DeletedAt == nil:
		return fmt.Errorf("%w: ya existe una persona con documento %q", ErrConflict, documentID)
	case err != nil && !errors.Is(err, ErrNotFound):
		return err
	}
	return nil
}

func (s *Service) preparePerson(p *Person) {
	now := s.now().UTC()
	if p.ID == "" {
		p.ID = ids.New()
	}
	if p.Status == "" {
		p.Status = PersonActive
	}
	p.HasAccount = true
	p.CreatedAt = now
	p.UpdatedAt = now
}

// buildAccount issues credentials and assembles the account record; it does
// not persist anything.
func (s *Service) buildAccount(ctx context.Context, p *Person, role Role, customUsername, explicitPassword string) (Credentials, *Account, error) {
	username, err := s.issuer.IssueUsername(ctx, p, customUsername)
	if err != nil {
		return Credentials{}, nil, err
	}
	plaintext, err := s.issuer.IssuePassword(explicitPassword)
	if err != nil {
		return Credentials{}, nil, err
	}
	hash, err := HashPassword(plaintext)
	if err != nil {
		return Credentials{}, nil, err
	}
	now := s.now().UTC()
	acc := &Account{
		ID:           ids.New(),
		Username:     username,
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
		Email:        p.Email,
		PersonID:     p.ID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	return Credentials{Username: username, Password: plaintext, Role: role}, acc, nil
}

func (s *Service) recordCreate(ctx context.Context, actorID string, acc *Account) {
	obs.ObserveProvisioned(string(acc.Role))
	_ = s.rec.Record(ctx, &audit.Entry{
		ActorAccountID:  actorID,
		TargetAccountID: acc.ID,
		TargetPersonID:  acc.PersonID,
		Action:          audit.ActionCreate,
		NewValue:        string(acc.Role),
	})
}
