package account

// Role policy engine. Every function here is pure: decisions depend only on
// the arguments, never on stored state. Callers load whatever context a
// decision needs (target role, person type, superadmin count) and pass it in.

// Actor identifies who is attempting an operation.
type Actor struct {
	AccountID string
	Role      Role
	IsMaster  bool
}

// Target identifies the account an operation acts on.
type Target struct {
	AccountID string
	Role      Role
}

// Decision is the outcome of a policy check. RequiresConfirmation marks
// changes the calling layer must collect explicit confirmation for before
// retrying (role changes, academic-identity changes).
type Decision struct {
	Allowed              bool
	RequiresConfirmation bool
	Reason               string
}

func allow() Decision             { return Decision{Allowed: true} }
func allowConfirmed() Decision    { return Decision{Allowed: true, RequiresConfirmation: true} }
func deny(reason string) Decision { return Decision{Reason: reason} }

// Contact fields any account holder may edit on their own record.
var selfEditableFields = map[string]bool{
	"email":   true,
	"phone":   true,
	"address": true,
}

// Academic fields gated by the target person's type.
var studentFields = map[string]bool{"grado": true, "grupo": true}
var teacherFields = map[string]bool{"materias": true, "nivel": true}

// CanCreate decides whether the actor may create an account with the given
// role. superadminCount is the current number of non-deleted superadmins;
// the stores re-validate it at write time, this is the fast-path check.
func CanCreate(actor Actor, targetRole Role, superadminCount int) Decision {
	if !targetRole.Valid() {
		return deny("rol desconocido")
	}
	switch actor.Role {
	case RoleSuperadmin:
		if targetRole != RoleSuperadmin {
			return allow()
		}
		if !actor.IsMaster {
			return deny("solo el superadmin maestro puede crear superadmins")
		}
		if superadminCount >= SuperadminLimit {
			return deny("limite de superadmins alcanzado")
		}
		return allow()
	case RoleAdmin:
		if targetRole == RoleUser {
			return allow()
		}
		return deny("un admin solo puede crear cuentas de usuario")
	default:
		return deny("rol sin permisos de creacion")
	}
}

// CanEditField decides whether the actor may edit a single field on the
// target account or its linked person. personType is the target person's
// tipo_persona, used to gate academic fields.
func CanEditField(actor Actor, target Target, field, personType string) Decision {
	if field == "role" || field == "is_active" {
		// Role and status changes have dedicated checks; the generic
		// field path rejects them outright for self-edits.
		if actor.AccountID == target.AccountID {
			return deny("no puede cambiar su propio rol o estado")
		}
	}

	if actor.AccountID == target.AccountID {
		if selfEditableFields[field] {
			return allow()
		}
		return deny("solo puede editar sus datos de contacto")
	}

	switch actor.Role {
	case RoleUser:
		return deny("no puede editar cuentas ajenas")
	case RoleAdmin:
		if target.Role != RoleUser {
			return deny("un admin solo puede editar cuentas de usuario")
		}
	case RoleSuperadmin:
		if target.Role == RoleSuperadmin && !actor.IsMaster {
			return deny("solo el superadmin maestro puede editar superadmins")
		}
	default:
		return deny("rol desconocido")
	}

	if studentFields[field] && personType != PersonStudent {
		return deny("grado y grupo solo aplican a estudiantes")
	}
	if teacherFields[field] && personType != PersonTeacher {
		return deny("materias y nivel solo aplican a profesores")
	}
	if studentFields[field] {
		return allowConfirmed()
	}
	if field == "role" {
		return allowConfirmed()
	}
	return allow()
}

// CanChangeRole decides whether the actor may move the target to newRole.
// Elevation to superadmin is bounded the same way creation is.
func CanChangeRole(actor Actor, target Target, newRole Role, superadminCount int) Decision {
	edit := CanEditField(actor, target, "role", "")
	if !edit.Allowed {
		return edit
	}
	create := CanCreate(actor, newRole, superadminCount)
	if !create.Allowed {
		return create
	}
	return allowConfirmed()
}

// CanDeactivate decides whether the actor may soft-delete the target account.
func CanDeactivate(actor Actor, target Target) Decision {
	if actor.AccountID == target.AccountID {
		return deny("no puede desactivar su propia cuenta")
	}
	return actOnTarget(actor, target)
}

// CanRestore decides whether the actor may restore a soft-deleted account.
// Same lattice as deactivation.
func CanRestore(actor Actor, target Target) Decision {
	return actOnTarget(actor, target)
}

// CanResetPassword decides whether the actor may reset the target's
// password. Own-password changes go through the change-password workflow
// instead and are never granted here.
func CanResetPassword(actor Actor, target Target) Decision {
	if actor.AccountID == target.AccountID {
		return deny("use el cambio de contrasena propio")
	}
	return actOnTarget(actor, target)
}

// CanView decides whether the actor may read the target account's detail
// (including its audit trail). Everyone may read their own record.
func CanView(actor Actor, target Target) Decision {
	if actor.AccountID == target.AccountID {
		return allow()
	}
	return actOnTarget(actor, target)
}

// CanViewSystemAudit decides whether the actor may read the system-wide
// audit trail.
func CanViewSystemAudit(actor Actor) Decision {
	if actor.Role == RoleSuperadmin {
		return allow()
	}
	return deny("solo superadmins pueden ver la auditoria global")
}

// actOnTarget applies the shared actor/target role lattice: admins act on
// users, non-master superadmins on users and admins, the master on anyone.
func actOnTarget(actor Actor, target Target) Decision {
	switch actor.Role {
	case RoleSuperadmin:
		if target.Role == RoleSuperadmin && !actor.IsMaster {
			return deny("solo el superadmin maestro puede actuar sobre superadmins")
		}
		return allow()
	case RoleAdmin:
		if target.Role == RoleUser {
			return allow()
		}
		return deny("un admin solo puede actuar sobre cuentas de usuario")
	default:
		return deny("rol sin permisos administrativos")
	}
}
