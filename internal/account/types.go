// Package account implements the library's account-provisioning and
// authorization workflow: person and account records, the role policy
// engine, credential issuance, provisioning flows and session handling.
package account

import "time"

// Role of a login-capable account.
type Role string

const (
	RoleUser       Role = "user"
	RoleAdmin      Role = "admin"
	RoleSuperadmin Role = "superadmin"
)

// SuperadminLimit bounds how many superadmin accounts may exist at once.
const SuperadminLimit = 3

// Valid reports whether the role is one of the three known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAdmin, RoleSuperadmin:
		return true
	}
	return false
}

// Person categories. The Spanish values mirror the catalog the library
// staff works with; they travel as-is through the API.
const (
	PersonStudent = "estudiante"
	PersonTeacher = "profesor"
	PersonStaff   = "colaborador"
	PersonPublic  = "publico"
)

// Person statuses.
const (
	PersonActive    = "activo"
	PersonSuspended = "suspendido"
	PersonBanned    = "vetado"
)

// Person is a demographic record independent of login capability.
type Person struct {
	ID           string     `json:"id"`
	DocumentID   string     `json:"document_id"`
	DocumentType string     `json:"document_type,omitempty"`
	Nombre1      string     `json:"nombre1"`
	Nombre2      string     `json:"nombre2,omitempty"`
	Apellido1    string     `json:"apellido1"`
	Apellido2    string     `json:"apellido2,omitempty"`
	Gender       string     `json:"gender,omitempty"`
	Email        string     `json:"email,omitempty"`
	Phone        string     `json:"phone,omitempty"`
	Address      string     `json:"address,omitempty"`
	TipoPersona  string     `json:"tipo_persona"`
	Grado        string     `json:"grado,omitempty"`
	Grupo        string     `json:"grupo,omitempty"`
	Materias     []string   `json:"materias,omitempty"`
	Nivel        string     `json:"nivel,omitempty"`
	Status       string     `json:"status"`
	HasAccount   bool       `json:"has_account"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Account is a login-capable record referencing exactly one Person.
type Account struct {
	ID                 string     `json:"id"`
	Username           string     `json:"username"`
	PasswordHash       string     `json:"-"`
	Role               Role       `json:"role"`
	IsActive           bool       `json:"is_active"`
	Email              string     `json:"email,omitempty"`
	PersonID           string     `json:"person_id"`
	PasswordResetCount int        `json:"password_reset_count"`
	LastLogin          *time.Time `json:"last_login,omitempty"`
	DeletedAt          *time.Time `json:"deleted_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// Credentials is the one-time handoff object returned when an account is
// created or its password is reset. The plaintext password appears here
// and nowhere else: never in logs, never in storage.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     Role   `json:"role"`
}
