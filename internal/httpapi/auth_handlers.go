package httpapi

import (
	"net/http"
	"strings"

	"biblioteca.org/internal/account"
	"biblioteca.org/internal/audit"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type createUserRequest struct {
	PersonID       string `json:"personId"`
	Role           string `json:"role"`
	CustomUsername string `json:"customUsername"`
}

// personPayload mirrors the person fields the SPA submits.
type personPayload struct {
	DocumentID   string   `json:"documentId"`
	DocumentType string   `json:"documentType"`
	Nombre1      string   `json:"nombre1"`
	Nombre2      string   `json:"nombre2"`
	Apellido1    string   `json:"apellido1"`
	Apellido2    string   `json:"apellido2"`
	Gender       string   `json:"gender"`
	Email        string   `json:"email"`
	Phone        string   `json:"phone"`
	Address      string   `json:"address"`
	TipoPersona  string   `json:"tipoPersona"`
	Grado        string   `json:"grado"`
	Grupo        string   `json:"grupo"`
	Materias     []string `json:"materias"`
	Nivel        string   `json:"nivel"`
	Status       string   `json:"status"`
}

func (p personPayload) toPerson() *account.Person {
	return &account.Person{
		DocumentID:   strings.TrimSpace(p.DocumentID),
		DocumentType: strings.TrimSpace(p.DocumentType),
		Nombre1:      strings.TrimSpace(p.Nombre1),
		Nombre2:      strings.TrimSpace(p.Nombre2),
		Apellido1:    strings.TrimSpace(p.Apellido1),
		Apellido2:    strings.TrimSpace(p.Apellido2),
		Gender:       strings.TrimSpace(p.Gender),
		Email:        strings.TrimSpace(p.Email),
		Phone:        strings.TrimSpace(p.Phone),
		Address:      strings.TrimSpace(p.Address),
		TipoPersona:  strings.TrimSpace(p.TipoPersona),
		Grado:        strings.TrimSpace(p.Grado),
		Grupo:        strings.TrimSpace(p.Grupo),
		Materias:     p.Materias,
		Nivel:        strings.TrimSpace(p.Nivel),
		Status:       strings.TrimSpace(p.Status),
	}
}

type createUserWithPersonRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
	personPayload
}

type createSuperadminRequest struct {
	Email      string        `json:"email"`
	Username   string        `json:"username"`
	Password   string        `json:"password"`
	PersonData personPayload `json:"personData"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	res, err := a.svc.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		handleAccountError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.login", map[string]any{
		"username": res.Account.Username,
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"token":      res.Token,
		"expires_at": res.ExpiresAt,
		"data": map[string]any{
			"user":   res.Account,
			"person": res.Person,
		},
	})
}

func (a *API) handleValidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	claims, ok := account.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing credentials")
		return
	}
	respond(w, http.StatusOK, map[string]any{
		"account_id": claims.Subject,
		"username":   claims.Username,
		"role":       claims.Role,
		"expires_at": claims.ExpiresAt.Time,
	})
}

func (a *API) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	claims, ok := account.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing credentials")
		return
	}
	var req changePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	changedAt, err := a.svc.ChangeOwnPassword(r.Context(), claims.Subject, req.CurrentPassword, req.NewPassword)
	if err != nil {
		handleAccountError(w, r, err)
		return
	}
	respond(w, http.StatusOK, map[string]any{
		"username":  claims.Username,
		"changedAt": changedAt,
	})
}

func (a *API) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	targetID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/auth/reset-password/"), "/")
	if targetID == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	actor, ok := a.requireActor(w, r)
	if !ok {
		return
	}
	plaintext, target, err := a.svc.ResetOtherPassword(r.Context(), actor, targetID)
	if err != nil {
		handleAccountError(w, r, err)
		return
	}
	respond(w, http.StatusOK, map[string]any{
		"newPassword": plaintext,
		"user":        target,
		"resetBy":     actor.AccountID,
	})
}

func (a *API) handleCreateSuperadmin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req createSuperadminRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	// The route is public only for first boot. When a token accompanies
	// the request, resolve it so the master path works after bootstrap.
	var actor *account.Actor
	if header := r.Header.Get(authHeader); strings.TrimSpace(header) != "" {
		token, err := extractBearerToken(header)
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, err.Error())
			return
		}
		claims, err := a.svc.Validate(token)
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, "invalid token")
			return
		}
		resolved, err := a.svc.ActorFromAccount(r.Context(), claims.Subject)
		if err != nil {
			handleAccountError(w, r, err)
			return
		}
		actor = &resolved
	}

	res, err := a.svc.BootstrapSuperadmin(r.Context(), actor, req.PersonData.toPerson(), req.Email, req.Username, req.Password)
	if err != nil {
		handleAccountError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.superadmin.created", map[string]any{
		"username": res.Account.Username,
	})
	respond(w, http.StatusCreated, res)
}

func (a *API) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	actor, ok := a.requireActor(w, r)
	if !ok {
		return
	}
	var req createUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	role := account.Role(strings.TrimSpace(req.Role))
	if !role.Valid() {
		writeError(w, r, http.StatusBadRequest, "rol desconocido")
		return
	}
	res, err := a.svc.CreateForPerson(r.Context(), actor, strings.TrimSpace(req.PersonID), role, req.CustomUsername)
	if err != nil {
		handleAccountError(w, r, err)
		return
	}
	respond(w, http.StatusCreated, res)
}

func (a *API) handleCreateUserWithPerson(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	actor, ok := a.requireActor(w, r)
	if !ok {
		return
	}
	var req createUserWithPersonRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	role := account.Role(strings.TrimSpace(req.Role))
	if !role.Valid() {
		writeError(w, r, http.StatusBadRequest, "rol desconocido")
		return
	}
	res, err := a.svc.CreateWithPerson(r.Context(), actor, req.toPerson(), req.Username, req.Password, role)
	if err != nil {
		handleAccountError(w, r, err)
		return
	}
	respond(w, http.StatusCreated, res)
}
