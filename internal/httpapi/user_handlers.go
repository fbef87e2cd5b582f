package httpapi

import (
	"net/http"
	"strings"

	"biblioteca.org/internal/account"
	"biblioteca.org/internal/audit"
)

type updateUserRequest struct {
	Email     *string  `json:"email"`
	Phone     *string  `json:"phone"`
	Address   *string  `json:"address"`
	Grado     *string  `json:"grado"`
	Grupo     *string  `json:"grupo"`
	Materias  []string `json:"materias"`
	Nivel     *string  `json:"nivel"`
	Role      *string  `json:"role"`
	IsActive  *bool    `json:"isActive"`
	Confirmed bool     `json:"confirmed"`
}

// handleUserScoped dispatches everything under /api/users/.
//
//	GET    /api/users/audit/system
//	GET    /api/users/{id}
//	PUT    /api/users/{id}
//	DELETE /api/users/{id}
//	POST   /api/users/{id}/restore
//	GET    /api/users/{id}/audit
func (a *API) handleUserScoped(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/users/"), "/")
	if rest == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(rest, "/")

	if parts[0] == "audit" {
		if len(parts) == 2 && parts[1] == "system" {
			a.handleSystemAudit(w, r)
			return
		}
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	id := parts[0]
	switch len(parts) {
	case 1:
		switch r.Method {
		case http.MethodGet:
			a.handleGetUser(w, r, id)
		case http.MethodPut:
			a.handleUpdateUser(w, r, id)
		case http.MethodDelete:
			a.handleDeactivateUser(w, r, id)
		default:
			methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
		}
	case 2:
		switch parts[1] {
		case "restore":
			if r.Method != http.MethodPost {
				methodNotAllowed(w, r, http.MethodPost)
				return
			}
			a.handleRestoreUser(w, r, id)
		case "audit":
			if r.Method != http.MethodGet {
				methodNotAllowed(w, r, http.MethodGet)
				return
			}
			a.handleUserAudit(w, r, id)
		default:
			writeError(w, r, http.StatusNotFound, "resource not found")
		}
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleGetUser(w http.ResponseWriter, r *http.Request, id string) {
	actor, ok := a.requireActor(w, r)
	if !ok {
		return
	}
	detail, err := a.svc.Get(r.Context(), actor, id)
	if err != nil {
		handleAccountError(w, r, err)
		return
	}
	respond(w, http.StatusOK, detail)
}

func (a *API) handleUpdateUser(w http.ResponseWriter, r *http.Request, id string) {
	actor, ok := a.requireActor(w, r)
	if !ok {
		return
	}
	var req updateUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	upd := account.UpdateRequest{
		Email:    req.Email,
		Phone:    req.Phone,
		Address:  req.Address,
		Grado:    req.Grado,
		Grupo:    req.Grupo,
		Materias: req.Materias,
		Nivel:    req.Nivel,
		IsActive: req.IsActive,
	}
	if req.Role != nil {
		role := account.Role(strings.TrimSpace(*req.Role))
		if !role.Valid() {
			writeError(w, r, http.StatusBadRequest, "rol desconocido")
			return
		}
		upd.Role = &role
	}
	detail, err := a.svc.Update(r.Context(), actor, id, upd, req.Confirmed)
	if err != nil {
		handleAccountError(w, r, err)
		return
	}
	respond(w, http.StatusOK, detail)
}

func (a *API) handleDeactivateUser(w http.ResponseWriter, r *http.Request, id string) {
	actor, ok := a.requireActor(w, r)
	if !ok {
		return
	}
	if err := a.svc.Deactivate(r.Context(), actor, id); err != nil {
		handleAccountError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "user.deactivated", map[string]any{
		"target_account_id": id,
	})
	respond(w, http.StatusOK, map[string]any{"deactivated": id})
}

func (a *API) handleRestoreUser(w http.ResponseWriter, r *http.Request, id string) {
	actor, ok := a.requireActor(w, r)
	if !ok {
		return
	}
	detail, err := a.svc.Restore(r.Context(), actor, id)
	if err != nil {
		handleAccountError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "user.restored", map[string]any{
		"target_account_id": id,
	})
	respond(w, http.StatusOK, detail)
}

func (a *API) handleUserAudit(w http.ResponseWriter, r *http.Request, id string) {
	actor, ok := a.requireActor(w, r)
	if !ok {
		return
	}
	limit, err := parseLimit(r.URL.Query().Get("limit"), 50, 500)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	entries, err := a.svc.AuditTrail(r.Context(), actor, id, limit)
	if err != nil {
		handleAccountError(w, r, err)
		return
	}
	respond(w, http.StatusOK, map[string]any{
		"target": id,
		"count":  len(entries),
		"audit":  entries,
	})
}

func (a *API) handleSystemAudit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	actor, ok := a.requireActor(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	limit, err := parseLimit(q.Get("limit"), 100, 1000)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	from, err := parseDate(q.Get("startDate"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "startDate must be RFC3339 or YYYY-MM-DD")
		return
	}
	to, err := parseDate(q.Get("endDate"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "endDate must be RFC3339 or YYYY-MM-DD")
		return
	}
	filter := audit.Filter{From: from, To: to, Limit: limit}
	if action := strings.TrimSpace(q.Get("action")); action != "" {
		filter.Actions = []string{action}
	}
	entries, err := a.svc.SystemAudit(r.Context(), actor, filter)
	if err != nil {
		handleAccountError(w, r, err)
		return
	}
	respond(w, http.StatusOK, map[string]any{
		"count": len(entries),
		"audit": entries,
	})
}
