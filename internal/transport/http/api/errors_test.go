package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"timeoff/internal/domain/auth"
	"timeoff/internal/domain/identity"
	"timeoff/internal/domain/leave"
	"timeoff/internal/domain/org"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"expired token", auth.ErrTokenExpired, http.StatusUnauthorized, "token_expired"},
		{"revoked token", auth.ErrTokenRevoked, http.StatusUnauthorized, "token_revoked"},
		{"wrapped reason", fmt.Errorf("%w: at least 10 characters", leave.ErrReasonTooShort), http.StatusBadRequest, "reason_too_short"},
		{"conflict", leave.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
		{"cycle", org.ErrCycleDetected, http.StatusConflict, "cycle_detected"},
		{"missing identity", identity.ErrNotFound, http.StatusNotFound, "not_found"},
		{"weak password", fmt.Errorf("%w: must contain a digit", identity.ErrWeakPassword), http.StatusBadRequest, "weak_password"},
		{"unknown", errors.New("pq: connection reset"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			status, code, _ := Classify(tc.err)
			if status != tc.status || code != tc.code {
				t.Fatalf("got %d %s, want %d %s", status, code, tc.status, tc.code)
			}
		})
	}
}

func TestFailErrorHidesInternalDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	FailError(rec, errors.New("dial tcp 10.0.0.5:5432: connection refused"), "req-9")

	var env Envelope
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.Code != http.StatusInternalServerError || env.Error.Message != "internal server error" || env.RequestID != "req-9" {
		t.Fatalf("unexpected response %d %+v", rec.Code, env.Error)
	}
}
