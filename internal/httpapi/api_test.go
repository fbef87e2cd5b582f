package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"biblioteca.org/internal/account"
	"biblioteca.org/internal/store/memory"
)

func newTestAPI(t *testing.T) http.Handler {
	t.Helper()
	svc, err := account.NewService(memory.New(), account.WithTokenSecret("test-secret"))
	if err != nil {
		t.Fatal(err)
	}
	api := New(svc, ReadyProbe{}, "test", Options{
		RateBurst:     1000,
		RatePerSecond: 1000,
	})
	return api.Handler()
}

func do(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode body %q: %v", rr.Body.String(), err)
	}
	return out
}

func dataField(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	body := decodeBody(t, rr)
	data, ok := body["data"].(map[string]any)
	if !ok {
		t.Fatalf("missing data field: %v", body)
	}
	return data
}

// bootstrapAndLogin creates the first superadmin over the public route and
// returns a session token plus the account id.
func bootstrapAndLogin(t *testing.T, h http.Handler) (token, accountID string) {
	t.Helper()
	rr := do(t, h, http.MethodPost, "/api/auth/create-superadmin", "", map[string]any{
		"email":    "ana@biblioteca.org",
		"password": "Clave123",
		"personData": map[string]any{
			"documentId":  "doc-master",
			"nombre1":     "Ana",
			"apellido1":   "Maestra",
			"tipoPersona": account.PersonStaff,
		},
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("bootstrap: %d %s", rr.Code, rr.Body.String())
	}
	data := dataField(t, rr)
	creds := data["credentials"].(map[string]any)
	username := creds["username"].(string)
	accountID = data["user"].(map[string]any)["id"].(string)

	rr = do(t, h, http.MethodPost, "/api/auth/login", "", map[string]any{
		"username": username,
		"password": "Clave123",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("login: %d %s", rr.Code, rr.Body.String())
	}
	token = decodeBody(t, rr)["token"].(string)
	return token, accountID
}

func createUser(t *testing.T, h http.Handler, token, doc string, extra map[string]any) map[string]any {
	t.Helper()
	payload := map[string]any{
		"username":    "",
		"password":    "",
		"role":        "user",
		"documentId":  doc,
		"nombre1":     "Luis",
		"apellido1":   "Lector",
		"tipoPersona": account.PersonPublic,
	}
	for k, v := range extra {
		payload[k] = v
	}
	rr := do(t, h, http.MethodPost, "/api/auth/create-user-with-person", token, payload)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create user: %d %s", rr.Code, rr.Body.String())
	}
	return dataField(t, rr)
}

func TestHealthAndReady(t *testing.T) {
	h := newTestAPI(t)
	if rr := do(t, h, http.MethodGet, "/healthz", "", nil); rr.Code != http.StatusOK {
		t.Fatalf("healthz: %d", rr.Code)
	}
	if rr := do(t, h, http.MethodGet, "/readyz", "", nil); rr.Code != http.StatusOK {
		t.Fatalf("readyz: %d", rr.Code)
	}
	// The root path is public and unmatched; deeper unknown paths sit
	// behind auth like everything else.
	if rr := do(t, h, http.MethodGet, "/", "", nil); rr.Code != http.StatusNotFound {
		t.Fatalf("root: %d", rr.Code)
	}
	if rr := do(t, h, http.MethodGet, "/no-such-route", "", nil); rr.Code != http.StatusUnauthorized {
		t.Fatalf("unknown route without token: %d", rr.Code)
	}
}

func TestBootstrapLoginValidate(t *testing.T) {
	h := newTestAPI(t)
	token, accountID := bootstrapAndLogin(t, h)

	rr := do(t, h, http.MethodGet, "/api/auth/validate", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("validate: %d %s", rr.Code, rr.Body.String())
	}
	data := dataField(t, rr)
	if data["account_id"] != accountID || data["role"] != "superadmin" {
		t.Fatalf("unexpected claims: %v", data)
	}

	// A second anonymous bootstrap is rejected once a superadmin exists.
	rr = do(t, h, http.MethodPost, "/api/auth/create-superadmin", "", map[string]any{
		"email":    "eva@x.org",
		"password": "Clave123",
		"personData": map[string]any{
			"documentId": "doc-2", "nombre1": "Eva", "apellido1": "Intrusa",
			"tipoPersona": account.PersonStaff,
		},
	})
	if rr.Code != http.StatusForbidden {
		t.Fatalf("second bootstrap: %d %s", rr.Code, rr.Body.String())
	}
}

func TestLoginFailuresAreUniform(t *testing.T) {
	h := newTestAPI(t)
	bootstrapAndLogin(t, h)

	for _, creds := range []map[string]any{
		{"username": "amaestra", "password": "equivocada"},
		{"username": "nadie", "password": "Clave123"},
	} {
		rr := do(t, h, http.MethodPost, "/api/auth/login", "", creds)
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("login %v: %d", creds, rr.Code)
		}
		if decodeBody(t, rr)["error"] != "unauthorized" {
			t.Fatalf("failure detail leaked: %s", rr.Body.String())
		}
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	h := newTestAPI(t)

	rr := do(t, h, http.MethodPost, "/api/auth/create-user", "", map[string]any{
		"personId": "p1", "role": "user",
	})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("missing token: %d", rr.Code)
	}
	rr = do(t, h, http.MethodGet, "/api/users/some-id", "garbage-token", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("bad token: %d", rr.Code)
	}
}

func TestCreateUserWithPersonValidation(t *testing.T) {
	h := newTestAPI(t)
	token, _ := bootstrapAndLogin(t, h)

	rr := do(t, h, http.MethodPost, "/api/auth/create-user-with-person", token, map[string]any{
		"username": "", "password": "", "role": "user",
		"documentId": "doc-est", "nombre1": "Luz", "apellido1": "Diaz",
		"tipoPersona": account.PersonStudent,
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("student without grado/grupo: %d %s", rr.Code, rr.Body.String())
	}

	data := createUser(t, h, token, "doc-est", map[string]any{
		"tipoPersona": account.PersonStudent,
		"grado":       "5", "grupo": "B",
		"nombre1": "Luz", "apellido1": "Diaz",
	})
	creds := data["credentials"].(map[string]any)
	if creds["username"] != "ldiaz" {
		t.Fatalf("username %v, want ldiaz", creds["username"])
	}
	if creds["password"] == "" {
		t.Fatal("expected generated password in response")
	}
}

func TestPolicyDenialsOverHTTP(t *testing.T) {
	h := newTestAPI(t)
	adminToken, _ := bootstrapAndLogin(t, h)

	data := createUser(t, h, adminToken, "doc-u1", nil)
	creds := data["credentials"].(map[string]any)

	rr := do(t, h, http.MethodPost, "/api/auth/login", "", map[string]any{
		"username": creds["username"], "password": creds["password"],
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("user login: %d %s", rr.Code, rr.Body.String())
	}
	userToken := decodeBody(t, rr)["token"].(string)

	// A plain user cannot provision accounts.
	rr = do(t, h, http.MethodPost, "/api/auth/create-user-with-person", userToken, map[string]any{
		"username": "", "password": "", "role": "user",
		"documentId": "doc-u2", "nombre1": "Otro", "apellido1": "Mas",
		"tipoPersona": account.PersonPublic,
	})
	if rr.Code != http.StatusForbidden {
		t.Fatalf("user provisioning: %d %s", rr.Code, rr.Body.String())
	}

	// Nor read the system audit.
	rr = do(t, h, http.MethodGet, "/api/users/audit/system", userToken, nil)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("user system audit: %d", rr.Code)
	}
}

func TestUpdateConfirmationOverHTTP(t *testing.T) {
	h := newTestAPI(t)
	token, _ := bootstrapAndLogin(t, h)

	data := createUser(t, h, token, "doc-est", map[string]any{
		"tipoPersona": account.PersonStudent,
		"grado":       "4", "grupo": "A",
	})
	id := data["user"].(map[string]any)["id"].(string)

	rr := do(t, h, http.MethodPut, "/api/users/"+id, token, map[string]any{
		"grado": "5",
	})
	if rr.Code != http.StatusConflict {
		t.Fatalf("unconfirmed change: %d %s", rr.Code, rr.Body.String())
	}
	if decodeBody(t, rr)["requires_confirmation"] != true {
		t.Fatalf("expected requires_confirmation flag: %s", rr.Body.String())
	}

	rr = do(t, h, http.MethodPut, "/api/users/"+id, token, map[string]any{
		"grado": "5", "confirmed": true,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("confirmed change: %d %s", rr.Code, rr.Body.String())
	}
	person := dataField(t, rr)["person"].(map[string]any)
	if person["grado"] != "5" {
		t.Fatalf("grado %v, want 5", person["grado"])
	}
}

func TestDeactivateRestoreAndAudit(t *testing.T) {
	h := newTestAPI(t)
	token, _ := bootstrapAndLogin(t, h)

	data := createUser(t, h, token, "doc-u1", nil)
	id := data["user"].(map[string]any)["id"].(string)

	if rr := do(t, h, http.MethodDelete, "/api/users/"+id, token, nil); rr.Code != http.StatusOK {
		t.Fatalf("deactivate: %d %s", rr.Code, rr.Body.String())
	}
	rr := do(t, h, http.MethodPost, "/api/users/"+id+"/restore", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("restore: %d %s", rr.Code, rr.Body.String())
	}
	user := dataField(t, rr)["user"].(map[string]any)
	if user["is_active"] != true {
		t.Fatalf("restored user inactive: %v", user)
	}

	rr = do(t, h, http.MethodGet, "/api/users/"+id+"/audit?limit=10", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("audit trail: %d %s", rr.Code, rr.Body.String())
	}
	trail := dataField(t, rr)
	if trail["count"].(float64) < 3 {
		t.Fatalf("expected create/delete/restore entries, got %v", trail["count"])
	}

	rr = do(t, h, http.MethodGet, "/api/users/audit/system?limit=100", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("system audit: %d %s", rr.Code, rr.Body.String())
	}
}

func TestResetPasswordEndpoint(t *testing.T) {
	h := newTestAPI(t)
	token, adminID := bootstrapAndLogin(t, h)

	data := createUser(t, h, token, "doc-u1", nil)
	id := data["user"].(map[string]any)["id"].(string)

	rr := do(t, h, http.MethodPut, "/api/auth/reset-password/"+id, token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("reset: %d %s", rr.Code, rr.Body.String())
	}
	out := dataField(t, rr)
	if out["newPassword"] == "" || out["resetBy"] != adminID {
		t.Fatalf("unexpected reset payload: %v", out)
	}

	// Own password goes through change-password, never the admin reset.
	rr = do(t, h, http.MethodPut, "/api/auth/reset-password/"+adminID, token, nil)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("self reset: %d %s", rr.Code, rr.Body.String())
	}
}

func TestChangePasswordEndpoint(t *testing.T) {
	h := newTestAPI(t)
	token, _ := bootstrapAndLogin(t, h)

	rr := do(t, h, http.MethodPut, "/api/auth/change-password", token, map[string]any{
		"currentPassword": "equivocada",
		"newPassword":     "Nueva123",
	})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("wrong current password: %d", rr.Code)
	}

	rr = do(t, h, http.MethodPut, "/api/auth/change-password", token, map[string]any{
		"currentPassword": "Clave123",
		"newPassword":     "Nueva123",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("change password: %d %s", rr.Code, rr.Body.String())
	}
}

func TestMethodNotAllowed(t *testing.T) {
	h := newTestAPI(t)
	rr := do(t, h, http.MethodGet, "/api/auth/login", "", nil)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET login: %d", rr.Code)
	}
	if rr.Header().Get("Allow") == "" {
		t.Fatal("expected Allow header")
	}
}

func TestUnknownJSONFieldRejected(t *testing.T) {
	h := newTestAPI(t)
	rr := do(t, h, http.MethodPost, "/api/auth/login", "", map[string]any{
		"username": "x", "password": "y", "extra": true,
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("unknown field: %d %s", rr.Code, rr.Body.String())
	}
}
