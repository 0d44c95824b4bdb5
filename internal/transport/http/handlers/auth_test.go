package handlers_test

import (
	"net/http"
	"testing"
)

func TestLogoutRevokesTokenAndIsIdempotent(t *testing.T) {
	s := startServer(t, testConfig())
	token := s.login(t, adminEmail, adminPassword)
	s.me(t, token)

	env := s.do(t, http.MethodPost, "/api/v1/auth/logout", token, nil, http.StatusOK)
	var status map[string]string
	decode(t, env, &status)
	if status["status"] != "logged_out" {
		t.Fatalf("unexpected logout response: %+v", status)
	}

	revoked := s.do(t, http.MethodGet, "/api/v1/auth/me", token, nil, http.StatusUnauthorized)
	assertErrorCode(t, revoked, "token_revoked")

	s.do(t, http.MethodPost, "/api/v1/auth/logout", token, nil, http.StatusOK)
	s.do(t, http.MethodPost, "/api/v1/auth/logout", "not-a-jwt", nil, http.StatusOK)

	// a fresh login is unaffected
	s.me(t, s.login(t, adminEmail, adminPassword))
}

func TestBearerHeaderErrors(t *testing.T) {
	s := startServer(t, testConfig())

	missing := s.do(t, http.MethodGet, "/api/v1/auth/me", "", nil, http.StatusUnauthorized)
	assertErrorCode(t, missing, "token_missing")

	basic, _ := s.doRaw(t, http.MethodGet, "/api/v1/auth/me", "", nil, map[string]string{"Authorization": "Basic abc"}, http.StatusUnauthorized)
	assertErrorCode(t, basic, "token_invalid_format")

	malformed := s.do(t, http.MethodGet, "/api/v1/auth/me", "abc.def.ghi", nil, http.StatusUnauthorized)
	assertErrorCode(t, malformed, "token_malformed")
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	s := startServer(t, testConfig())

	unknown := s.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]any{"email": "nobody@test.local", "password": "Whatever123"}, http.StatusUnauthorized)
	wrong := s.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]any{"email": adminEmail, "password": "Whatever123"}, http.StatusUnauthorized)
	assertErrorCode(t, unknown, "invalid_credentials")
	assertErrorCode(t, wrong, "invalid_credentials")
	if unknown.Error.(map[string]any)["message"] != wrong.Error.(map[string]any)["message"] {
		t.Fatalf("expected identical messages, got %+v and %+v", unknown.Error, wrong.Error)
	}

	// email lookup is case-insensitive
	s.login(t, "  ADMIN@test.local ", adminPassword)
}

func TestLoginRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.LoginRateLimit = 2
	s := startServer(t, cfg)

	body := map[string]any{"email": adminEmail, "password": "Wrong12345"}
	s.do(t, http.MethodPost, "/api/v1/auth/login", "", body, http.StatusUnauthorized)
	s.do(t, http.MethodPost, "/api/v1/auth/login", "", body, http.StatusUnauthorized)
	env, resp := s.doRaw(t, http.MethodPost, "/api/v1/auth/login", "", body, nil, http.StatusTooManyRequests)
	assertErrorCode(t, env, "rate_limited")
	if resp.Header.Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}
	// correct credentials are refused too while the window is full
	s.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]any{"email": adminEmail, "password": adminPassword}, http.StatusTooManyRequests)
}

func TestPasswordChangeInvalidatesSessions(t *testing.T) {
	s := startServer(t, testConfig())
	adminToken := s.login(t, adminEmail, adminPassword)
	_, email := s.createUser(t, adminToken, "employee", "")
	token := s.login(t, email, userPassword)

	wrong := s.do(t, http.MethodPost, "/api/v1/auth/password", token, map[string]any{
		"currentPassword": "Nope12345",
		"newPassword":     "Brandnew123",
	}, http.StatusUnauthorized)
	assertErrorCode(t, wrong, "invalid_credentials")

	weak := s.do(t, http.MethodPost, "/api/v1/auth/password", token, map[string]any{
		"currentPassword": userPassword,
		"newPassword":     "short",
	}, http.StatusBadRequest)
	assertErrorCode(t, weak, "weak_password")

	s.do(t, http.MethodPost, "/api/v1/auth/password", token, map[string]any{
		"currentPassword": userPassword,
		"newPassword":     "Brandnew123",
	}, http.StatusOK)

	stale := s.do(t, http.MethodGet, "/api/v1/auth/me", token, nil, http.StatusUnauthorized)
	assertErrorCode(t, stale, "token_invalidated")
	s.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]any{"email": email, "password": userPassword}, http.StatusUnauthorized)
	s.me(t, s.login(t, email, "Brandnew123"))
}

func TestDeactivationInvalidatesSessions(t *testing.T) {
	s := startServer(t, testConfig())
	adminToken := s.login(t, adminEmail, adminPassword)
	id, email := s.createUser(t, adminToken, "employee", "")
	token := s.login(t, email, userPassword)

	s.do(t, http.MethodPut, "/api/v1/users/"+id, adminToken, map[string]any{"isActive": false}, http.StatusOK)

	stale := s.do(t, http.MethodGet, "/api/v1/auth/me", token, nil, http.StatusUnauthorized)
	assertErrorCode(t, stale, "token_invalidated")

	disabled := s.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]any{"email": email, "password": userPassword}, http.StatusForbidden)
	assertErrorCode(t, disabled, "account_disabled")
	// a wrong password does not reveal the account state
	wrong := s.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]any{"email": email, "password": "Wrong12345"}, http.StatusUnauthorized)
	assertErrorCode(t, wrong, "invalid_credentials")
}

func TestRoleChangeTakesEffectWithoutNewLogin(t *testing.T) {
	s := startServer(t, testConfig())
	adminToken := s.login(t, adminEmail, adminPassword)
	id, email := s.createUser(t, adminToken, "employee", "")
	token := s.login(t, email, userPassword)

	s.do(t, http.MethodGet, "/api/v1/users", token, nil, http.StatusForbidden)
	s.do(t, http.MethodPut, "/api/v1/users/"+id, adminToken, map[string]any{"role": "supervisor"}, http.StatusOK)
	s.do(t, http.MethodGet, "/api/v1/users", token, nil, http.StatusOK)
}

func TestInitCreatesFirstAdminOnce(t *testing.T) {
	cfg := testConfig()
	cfg.SeedAdminEmail = ""
	cfg.SeedAdminPassword = ""
	cfg.InitSecret = "let-me-in"
	s := startServer(t, cfg)

	body := map[string]any{
		"secret":    "wrong",
		"email":     "first@test.local",
		"password":  "FirstAdmin1",
		"firstName": "First",
		"lastName":  "Admin",
	}
	s.do(t, http.MethodPost, "/api/v1/init", "", body, http.StatusForbidden)

	body["secret"] = "let-me-in"
	created := s.do(t, http.MethodPost, "/api/v1/init", "", body, http.StatusCreated)
	var admin struct {
		Role string `json:"role"`
	}
	decode(t, created, &admin)
	if admin.Role != "admin" {
		t.Fatalf("expected admin role, got %q", admin.Role)
	}
	s.login(t, "first@test.local", "FirstAdmin1")

	done := s.do(t, http.MethodPost, "/api/v1/init", "", body, http.StatusConflict)
	assertErrorCode(t, done, "already_initialized")
}

func TestInitDisabledWithoutSecret(t *testing.T) {
	s := startServer(t, testConfig())
	s.do(t, http.MethodPost, "/api/v1/init", "", map[string]any{"secret": ""}, http.StatusNotFound)
}

func TestInitAllowList(t *testing.T) {
	cfg := testConfig()
	cfg.SeedAdminEmail = ""
	cfg.InitSecret = "let-me-in"
	cfg.InitAllowedIPs = []string{"10.9.9.9"}
	s := startServer(t, cfg)
	s.do(t, http.MethodPost, "/api/v1/init", "", map[string]any{"secret": "let-me-in"}, http.StatusForbidden)
}
