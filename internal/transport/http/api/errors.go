package api

import (
	"errors"
	"log/slog"
	"net/http"

	"timeoff/internal/domain/auth"
	"timeoff/internal/domain/identity"
	"timeoff/internal/domain/leave"
	"timeoff/internal/domain/org"
	"timeoff/internal/domain/settings"
	"timeoff/internal/platform/ratelimit"
)

type classified struct {
	err    error
	status int
	code   string
}

// classes is checked in order with errors.Is; the first match wins.
var classes = []classified{
	{auth.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials"},
	{auth.ErrAccountDisabled, http.StatusForbidden, "account_disabled"},
	{auth.ErrTokenMissing, http.StatusUnauthorized, "token_missing"},
	{auth.ErrTokenInvalidFormat, http.StatusUnauthorized, "token_invalid_format"},
	{auth.ErrTokenMalformed, http.StatusUnauthorized, "token_malformed"},
	{auth.ErrTokenExpired, http.StatusUnauthorized, "token_expired"},
	{auth.ErrTokenRevoked, http.StatusUnauthorized, "token_revoked"},
	{auth.ErrTokenInvalidated, http.StatusUnauthorized, "token_invalidated"},
	{auth.ErrForbidden, http.StatusForbidden, "forbidden"},

	{leave.ErrForbidden, http.StatusForbidden, "forbidden"},
	{leave.ErrNotFound, http.StatusNotFound, "not_found"},
	{leave.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
	{leave.ErrInvalidWindow, http.StatusBadRequest, "invalid_window"},
	{leave.ErrPastDate, http.StatusBadRequest, "past_date"},
	{leave.ErrReasonTooShort, http.StatusBadRequest, "reason_too_short"},
	{leave.ErrNoSupervisor, http.StatusBadRequest, "no_supervisor"},

	{org.ErrCycleDetected, http.StatusConflict, "cycle_detected"},
	{org.ErrSupervisorNotFound, http.StatusNotFound, "supervisor_not_found"},
	{org.ErrSupervisorInactive, http.StatusBadRequest, "supervisor_inactive"},
	{org.ErrHasDependents, http.StatusConflict, "has_dependents"},
	{org.ErrSelfDelete, http.StatusBadRequest, "cannot_delete_self"},

	{identity.ErrNotFound, http.StatusNotFound, "not_found"},
	{identity.ErrEmailTaken, http.StatusConflict, "email_taken"},
	{identity.ErrWeakPassword, http.StatusBadRequest, "weak_password"},
	{identity.ErrInvalidRole, http.StatusBadRequest, "invalid_role"},
	{identity.ErrInvalidEmail, http.StatusBadRequest, "invalid_email"},

	{settings.ErrInvalidPort, http.StatusBadRequest, "invalid_smtp_config"},
	{settings.ErrInvalidSender, http.StatusBadRequest, "invalid_smtp_config"},
	{settings.ErrHostRequired, http.StatusBadRequest, "invalid_smtp_config"},

	{ratelimit.ErrTooManyRequests, http.StatusTooManyRequests, "rate_limited"},
}

// Classify maps err to its HTTP status and code. ok is false for errors
// that must not be shown to clients.
func Classify(err error) (status int, code string, ok bool) {
	for _, c := range classes {
		if errors.Is(err, c.err) {
			return c.status, c.code, true
		}
	}
	return http.StatusInternalServerError, "internal_error", false
}

// FailError writes the classified response for err. Unclassified errors
// are logged in full and answered with a generic message.
func FailError(w http.ResponseWriter, err error, requestID string) {
	status, code, ok := Classify(err)
	if !ok {
		slog.Error("unhandled error", "requestId", requestID, "err", err)
		Fail(w, status, code, "internal server error", requestID)
		return
	}
	message := err.Error()
	if status == http.StatusUnauthorized && code == "invalid_credentials" {
		message = "invalid credentials"
	}
	Fail(w, status, code, message, requestID)
}
