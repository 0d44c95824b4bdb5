package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"timeoff/internal/app/server"
	"timeoff/internal/platform/config"
)

const (
	adminEmail    = "admin@test.local"
	adminPassword = "ChangeMe123"
	userPassword  = "Employee123"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   any             `json:"error"`
}

func testConfig() config.Config {
	return config.Config{
		Addr:               ":0",
		JWTSecret:          strings.Repeat("t", 40),
		DataEncryptionKey:  "0123456789abcdef0123456789abcdef",
		AuditChainKey:      "audit-chain-test-key",
		Environment:        "test",
		Ephemeral:          true,
		RunSeed:            true,
		SeedAdminEmail:     adminEmail,
		SeedAdminPassword:  adminPassword,
		KVBackend:          config.KVMemory,
		KVTimeout:          250 * time.Millisecond,
		TokenTTL:           time.Hour,
		BcryptCost:         4,
		LoginRateLimit:     100,
		LoginRateWindow:    time.Minute,
		RateLimitPerMinute: 10000,
		MinReasonLength:    10,
		Timezone:           "UTC",
		EventBroker:        config.BrokerNone,
		EmailFrom:          "no-reply@test.local",
		MaxBodyBytes:       1 << 20,
		MetricsEnabled:     true,
	}
}

// testServer builds the app, starts its job runner and serves it.
type testServer struct {
	app    *server.App
	ts     *httptest.Server
	client *http.Client
}

func startServer(t *testing.T, cfg config.Config) *testServer {
	t.Helper()
	app, err := server.Build(context.Background(), cfg)
	if err != nil {
		t.Fatalf("failed to build app: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	app.Runner.Start(ctx)
	ts := httptest.NewServer(app.Router)
	t.Cleanup(func() {
		ts.Close()
		cancel()
		app.Runner.Wait()
		app.Close()
	})
	return &testServer{app: app, ts: ts, client: ts.Client()}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any, want int) envelope {
	t.Helper()
	env, _ := s.doRaw(t, method, path, token, body, nil, want)
	return env
}

func (s *testServer) doRaw(t *testing.T, method, path, token string, body any, headers map[string]string, want int) (envelope, *http.Response) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, s.ts.URL+path, reader)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response: %v", err)
	}
	if resp.StatusCode != want {
		t.Fatalf("%s %s: expected status %d, got %d: %s", method, path, want, resp.StatusCode, string(raw))
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("failed to decode response: %v (%s)", err, string(raw))
	}
	return env, resp
}

func (s *testServer) login(t *testing.T, email, password string) string {
	t.Helper()
	env := s.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]any{
		"email":    email,
		"password": password,
	}, http.StatusOK)
	var payload struct {
		Token string `json:"token"`
	}
	decode(t, env, &payload)
	if payload.Token == "" {
		t.Fatal("expected token")
	}
	return payload.Token
}

func (s *testServer) createUser(t *testing.T, adminToken, role, supervisorID string) (id, email string) {
	t.Helper()
	email = fmt.Sprintf("%s-%d@example.com", role, time.Now().UnixNano())
	body := map[string]any{
		"email":     email,
		"password":  userPassword,
		"firstName": "Test",
		"lastName":  strings.ToUpper(role[:1]) + role[1:],
		"role":      role,
	}
	if supervisorID != "" {
		body["supervisorId"] = supervisorID
	}
	env := s.do(t, http.MethodPost, "/api/v1/users", adminToken, body, http.StatusCreated)
	var created struct {
		ID string `json:"id"`
	}
	decode(t, env, &created)
	if created.ID == "" {
		t.Fatal("expected user id")
	}
	return created.ID, email
}

func (s *testServer) me(t *testing.T, token string) string {
	t.Helper()
	env := s.do(t, http.MethodGet, "/api/v1/auth/me", token, nil, http.StatusOK)
	var who struct {
		ID string `json:"id"`
	}
	decode(t, env, &who)
	return who.ID
}

type requestView struct {
	ID          string `json:"id"`
	RequesterID string `json:"requesterId"`
	ApproverID  string `json:"approverId"`
	Status      string `json:"status"`
	Comment     string `json:"comment"`
	DecidedBy   string `json:"decidedBy"`
}

func (s *testServer) fileRequest(t *testing.T, token string) requestView {
	t.Helper()
	env := s.do(t, http.MethodPost, "/api/v1/requests", token, map[string]any{
		"date":   tomorrow(),
		"start":  "09:00",
		"end":    "11:30",
		"reason": "Dentist appointment in town",
	}, http.StatusCreated)
	var req requestView
	decode(t, env, &req)
	return req
}

func tomorrow() string {
	return time.Now().UTC().AddDate(0, 0, 1).Format("2006-01-02")
}

func decode(t *testing.T, env envelope, dst any) {
	t.Helper()
	if err := json.Unmarshal(env.Data, dst); err != nil {
		t.Fatalf("failed to decode data: %v (%s)", err, string(env.Data))
	}
}

func envelopeErrorCode(env envelope) string {
	if env.Error == nil {
		return ""
	}
	if m, ok := env.Error.(map[string]any); ok {
		if code, ok := m["code"].(string); ok {
			return code
		}
	}
	return ""
}

func assertErrorCode(t *testing.T, env envelope, want string) {
	t.Helper()
	if code := envelopeErrorCode(env); code != want {
		t.Fatalf("expected error code %q, got %+v", want, env.Error)
	}
}

func assertValidationErrorField(t *testing.T, env envelope, field string) {
	t.Helper()
	if code := envelopeErrorCode(env); code != "validation_error" {
		t.Fatalf("expected validation_error, got %+v", env.Error)
	}
	errMap, ok := env.Error.(map[string]any)
	if !ok {
		t.Fatalf("expected error object, got %T", env.Error)
	}
	details, ok := errMap["details"].(map[string]any)
	if !ok {
		t.Fatalf("expected details object, got %+v", errMap["details"])
	}
	fieldsRaw, ok := details["fields"].([]any)
	if !ok {
		t.Fatalf("expected details.fields array, got %+v", details["fields"])
	}
	for _, item := range fieldsRaw {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if value, _ := entry["field"].(string); value == field {
			return
		}
	}
	t.Fatalf("expected validation field %q in %+v", field, fieldsRaw)
}

// eventually polls cond until it holds or the deadline passes.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
