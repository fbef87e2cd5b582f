package account

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"biblioteca.org/internal/audit"
)

// Detail is the account view returned by reads: the account plus its
// linked person.
type Detail struct {
	Account *Account `json:"user"`
	Person  *Person  `json:"person"`
}

// UpdateRequest lists the editable fields. Nil pointers are untouched;
// Materias replaces the whole list when non-nil.
type UpdateRequest struct {
	Email    *string
	Phone    *string
	Address  *string
	Grado    *string
	Grupo    *string
	Materias []string
	Nivel    *string
	Role     *Role
	IsActive *bool
}

func trimmed(p *string) *string {
	if p == nil {
		return nil
	}
	v := strings.TrimSpace(*p)
	return &v
}

// Get loads an account with its person, policy permitting.
func (s *Service) Get(ctx context.Context, actor Actor, accountID string) (*Detail, error) {
	acc, err := s.store.Accounts().Find(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if d := CanView(actor, Target{AccountID: acc.ID, Role: acc.Role}); !d.Allowed {
		return nil, fmt.Errorf("%w: %s", ErrPolicyViolation, d.Reason)
	}
	person, err := s.store.Persons().Find(ctx, acc.PersonID)
	if err != nil {
		return nil, err
	}
	return &Detail{Account: acc, Person: person}, nil
}

// Update applies the requested field changes, checking policy per field.
// Changes whose decision carries RequiresConfirmation are rejected with
// ErrConfirmationRequired unless confirmed is set. Every applied change
// appends one audit entry.
func (s *Service) Update(ctx context.Context, actor Actor, accountID string, req UpdateRequest, confirmed bool) (*Detail, error) {
	acc, err := s.store.Accounts().Find(ctx, accountID)
	if err != nil {
		return nil, err
	}
	person, err := s.store.Persons().Find(ctx, acc.PersonID)
	if err != nil {
		return nil, err
	}
	target := Target{AccountID: acc.ID, Role: acc.Role}

	type change struct {
		field    string
		oldValue string
		newValue string
		apply    func()
	}
	var changes []change
	needsConfirmation := false

	check := func(field string) (Decision, error) {
		d := CanEditField(actor, target, field, person.TipoPersona)
		if !d.Allowed {
			return d, fmt.Errorf("%w: %s", ErrPolicyViolation, d.Reason)
		}
		if d.RequiresConfirmation {
			needsConfirmation = true
		}
		return d, nil
	}

	// Comparisons use the trimmed value so a resubmitted field is a no-op,
	// checked against policy only when it actually changes.
	if v := trimmed(req.Email); v != nil && *v != person.Email {
		if _, err := check("email"); err != nil {
			return nil, err
		}
		nv := *v
		changes = append(changes, change{"email", person.Email, nv, func() {
			person.Email = nv
			acc.Email = nv
		}})
	}
	if v := trimmed(req.Phone); v != nil && *v != person.Phone {
		if _, err := check("phone"); err != nil {
			return nil, err
		}
		nv := *v
		changes = append(changes, change{"phone", person.Phone, nv, func() { person.Phone = nv }})
	}
	if v := trimmed(req.Address); v != nil && *v != person.Address {
		if _, err := check("address"); err != nil {
			return nil, err
		}
		nv := *v
		changes = append(changes, change{"address", person.Address, nv, func() { person.Address = nv }})
	}
	if v := trimmed(req.Grado); v != nil && *v != person.Grado {
		if _, err := check("grado"); err != nil {
			return nil, err
		}
		nv := *v
		changes = append(changes, change{"grado", person.Grado, nv, func() { person.Grado = nv }})
	}
	if v := trimmed(req.Grupo); v != nil && *v != person.Grupo {
		if _, err := check("grupo"); err != nil {
			return nil, err
		}
		nv := *v
		changes = append(changes, change{"grupo", person.Grupo, nv, func() { person.Grupo = nv }})
	}
	if req.Materias != nil {
		oldVal := strings.Join(person.Materias, ",")
		newVal := strings.Join(req.Materias, ",")
		if oldVal != newVal {
			if _, err := check("materias"); err != nil {
				return nil, err
			}
			v := req.Materias
			changes = append(changes, change{"materias", oldVal, newVal, func() { person.Materias = v }})
		}
	}
	if v := trimmed(req.Nivel); v != nil && *v != person.Nivel {
		if _, err := check("nivel"); err != nil {
			return nil, err
		}
		nv := *v
		changes = append(changes, change{"nivel", person.Nivel, nv, func() { person.Nivel = nv }})
	}
	if req.Role != nil && *req.Role != acc.Role {
		count := 0
		if *req.Role == RoleSuperadmin {
			count, err = s.store.Accounts().CountSuperadmins(ctx)
			if err != nil {
				return nil, err
			}
		}
		d := CanChangeRole(actor, target, *req.Role, count)
		if !d.Allowed {
			return nil, fmt.Errorf("%w: %s", ErrPolicyViolation, d.Reason)
		}
		if d.RequiresConfirmation {
			needsConfirmation = true
		}
		v := *req.Role
		changes = append(changes, change{"role", string(acc.Role), string(v), func() { acc.Role = v }})
	}
	if req.IsActive != nil && *req.IsActive != acc.IsActive {
		if _, err := check("is_active"); err != nil {
			return nil, err
		}
		v := *req.IsActive
		changes = append(changes, change{"is_active", strconv.FormatBool(acc.IsActive), strconv.FormatBool(v), func() { acc.IsActive = v }})
	}

	if needsConfirmation && !confirmed {
		return nil, ErrConfirmationRequired
	}
	if len(changes) == 0 {
		return &Detail{Account: acc, Person: person}, nil
	}

	for _, c := range changes {
		c.apply()
	}
	now := s.now().UTC()
	acc.UpdatedAt = now
	person.UpdatedAt = now
	if err := s.store.Accounts().Update(ctx, acc); err != nil {
		return nil, err
	}
	if err := s.store.Persons().Update(ctx, person); err != nil {
		return nil, err
	}
	for _, c := range changes {
		_ = s.rec.Record(ctx, &audit.Entry{
			ActorAccountID:  actor.AccountID,
			TargetAccountID: acc.ID,
			TargetPersonID:  person.ID,
			Action:          audit.ActionUpdate,
			Field:           c.field,
			OldValue:        c.oldValue,
			NewValue:        c.newValue,
		})
	}
	return &Detail{Account: acc, Person: person}, nil
}

// Deactivate soft-deletes the target account. The row stays behind for
// restore; the person record is untouched.
func (s *Service) Deactivate(ctx context.Context, actor Actor, accountID string) error {
	acc, err := s.store.Accounts().Find(ctx, accountID)
	if err != nil {
		return err
	}
	if d := CanDeactivate(actor, Target{AccountID: acc.ID, Role: acc.Role}); !d.Allowed {
		return fmt.Errorf("%w: %s", ErrPolicyViolation, d.Reason)
	}
	if err := s.store.Accounts().SoftDelete(ctx, acc.ID); err != nil {
		return err
	}
	_ = s.rec.Record(ctx, &audit.Entry{
		ActorAccountID:  actor.AccountID,
		TargetAccountID: acc.ID,
		TargetPersonID:  acc.PersonID,
		Action:          audit.ActionDelete,
	})
	return nil
}

// Restore brings back a soft-deleted account.
func (s *Service) Restore(ctx context.Context, actor Actor, accountID string) (*Detail, error) {
	acc, err := s.store.Accounts().Find(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if d := CanRestore(actor, Target{AccountID: acc.ID, Role: acc.Role}); !d.Allowed {
		return nil, fmt.Errorf("%w: %s", ErrPolicyViolation, d.Reason)
	}
	if err := s.store.Accounts().Restore(ctx, acc.ID); err != nil {
		return nil, err
	}
	acc.DeletedAt = nil
	person, err := s.store.Persons().Find(ctx, acc.PersonID)
	if err != nil {
		return nil, err
	}
	_ = s.rec.Record(ctx, &audit.Entry{
		ActorAccountID:  actor.AccountID,
		TargetAccountID: acc.ID,
		TargetPersonID:  acc.PersonID,
		Action:          audit.ActionRestore,
	})
	return &Detail{Account: acc, Person: person}, nil
}

// AuditTrail returns the target account's audit entries, newest first.
func (s *Service) AuditTrail(ctx context.Context, actor Actor, accountID string, limit int) ([]audit.Entry, error) {
	acc, err := s.store.Accounts().Find(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if d := CanView(actor, Target{AccountID: acc.ID, Role: acc.Role}); !d.Allowed {
		return nil, fmt.Errorf("%w: %s", ErrPolicyViolation, d.Reason)
	}
	return s.rec.Query(ctx, audit.Filter{TargetAccountID: acc.ID, Limit: limit})
}

// SystemAudit returns the system-wide audit trail; superadmins only.
func (s *Service) SystemAudit(ctx context.Context, actor Actor, f audit.Filter) ([]audit.Entry, error) {
	if d := CanViewSystemAudit(actor); !d.Allowed {
		return nil, fmt.Errorf("%w: %s", ErrPolicyViolation, d.Reason)
	}
	return s.rec.Query(ctx, f)
}
