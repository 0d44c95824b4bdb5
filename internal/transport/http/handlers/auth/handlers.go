package authhandler

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"timeoff/internal/domain/audit"
	"timeoff/internal/domain/auth"
	"timeoff/internal/domain/identity"
	"timeoff/internal/platform/ratelimit"
	"timeoff/internal/transport/http/api"
	"timeoff/internal/transport/http/middleware"
	"timeoff/internal/transport/http/shared"
)

type Options struct {
	LoginMinDuration time.Duration
	LoginRateLimit   int
	LoginRateWindow  time.Duration
	InitSecret       string
	InitAllowedIPs   []string
}

type Handler struct {
	Auth       *auth.Service
	Identities identity.StoreAPI
	Audit      *audit.Recorder
	Limiter    *ratelimit.Limiter
	Options    Options
	sleep      func(ctx context.Context, d time.Duration)
}

func NewHandler(authService *auth.Service, identities identity.StoreAPI, recorder *audit.Recorder, limiter *ratelimit.Limiter, opts Options) *Handler {
	return &Handler{
		Auth:       authService,
		Identities: identities,
		Audit:      recorder,
		Limiter:    limiter,
		Options:    opts,
		sleep:      sleepContext,
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	requireAuth := middleware.RequireAuth(h.Auth)
	r.Route("/auth", func(r chi.Router) {
		r.With(middleware.RateLimit(h.Limiter, "login", h.Options.LoginRateLimit, h.Options.LoginRateWindow)).Post("/login", h.handleLogin)
		r.Post("/logout", h.handleLogout)
		r.With(requireAuth).Get("/me", h.handleMe)
		r.With(requireAuth, middleware.RateLimit(h.Limiter, "password", h.Options.LoginRateLimit, h.Options.LoginRateWindow)).Post("/password", h.handleChangePassword)
	})
	r.With(middleware.RateLimit(h.Limiter, "init", 3, time.Hour)).Post("/init", h.handleInit)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string            `json:"token"`
	ExpiresAt time.Time         `json:"expiresAt"`
	User      identity.Identity `json:"user"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	start := time.Now()
	defer h.pad(r.Context(), start)

	var payload loginRequest
	if !shared.DecodeJSON(w, r, &payload, reqID) {
		return
	}
	if strings.TrimSpace(payload.Email) == "" || payload.Password == "" {
		api.FailError(w, auth.ErrInvalidCredentials, reqID)
		return
	}

	result, err := h.Auth.Login(r.Context(), payload.Email, payload.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials):
			h.Audit.Log(r.Context(), "", audit.ActionLoginFailed, map[string]string{"email": identity.NormalizeEmail(payload.Email)})
		case errors.Is(err, auth.ErrAccountDisabled):
			h.Audit.Log(r.Context(), "", audit.ActionLoginFailed, map[string]string{"email": identity.NormalizeEmail(payload.Email), "reason": "disabled"})
		}
		api.FailError(w, err, reqID)
		return
	}

	h.Audit.Log(r.Context(), result.Identity.ID, audit.ActionLogin, nil)
	api.Success(w, loginResponse{Token: result.Token, ExpiresAt: result.ExpiresAt, User: result.Identity}, reqID)
}

// pad holds every login response to the configured minimum duration.
func (h *Handler) pad(ctx context.Context, start time.Time) {
	if remaining := h.Options.LoginMinDuration - time.Since(start); remaining > 0 {
		h.sleep(ctx, remaining)
	}
}

func sleepContext(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	token, err := auth.ParseBearer(r.Header.Get("Authorization"))
	if err != nil {
		api.FailError(w, err, reqID)
		return
	}
	subject, err := h.Auth.Logout(r.Context(), token)
	if err != nil {
		api.FailError(w, err, reqID)
		return
	}
	if subject != "" {
		h.Audit.Log(r.Context(), subject, audit.ActionLogout, nil)
	}
	api.Success(w, map[string]string{"status": "logged_out"}, reqID)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	principal, _ := middleware.GetPrincipal(r.Context())
	api.Success(w, principal.Identity, middleware.GetRequestID(r.Context()))
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

func (h *Handler) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	principal, _ := middleware.GetPrincipal(r.Context())

	var payload changePasswordRequest
	if !shared.DecodeJSON(w, r, &payload, reqID) {
		return
	}
	if err := h.Auth.ChangePassword(r.Context(), principal.ID, payload.CurrentPassword, payload.NewPassword); err != nil {
		api.FailError(w, err, reqID)
		return
	}
	h.Audit.Log(r.Context(), principal.ID, audit.ActionPasswordChanged, nil)
	api.Success(w, map[string]string{"status": "password_changed"}, reqID)
}

type initRequest struct {
	Secret    string `json:"secret"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// handleInit creates the first admin. It is disabled without INIT_SECRET
// and refuses once any identity exists.
func (h *Handler) handleInit(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	if h.Options.InitSecret == "" {
		api.Fail(w, http.StatusNotFound, "not_found", "not found", reqID)
		return
	}
	if len(h.Options.InitAllowedIPs) > 0 && !slices.Contains(h.Options.InitAllowedIPs, middleware.GetClientIP(r)) {
		api.Fail(w, http.StatusForbidden, "forbidden", "address not allowed", reqID)
		return
	}

	var payload initRequest
	if !shared.DecodeJSON(w, r, &payload, reqID) {
		return
	}
	if !secretMatches(payload.Secret, h.Options.InitSecret) {
		api.Fail(w, http.StatusForbidden, "forbidden", "invalid secret", reqID)
		return
	}

	count, err := h.Identities.Count(r.Context())
	if err != nil {
		api.FailError(w, err, reqID)
		return
	}
	if count > 0 {
		api.Fail(w, http.StatusConflict, "already_initialized", "system already initialized", reqID)
		return
	}

	v := shared.NewValidator()
	v.Required("firstName", payload.FirstName, "required")
	v.Required("lastName", payload.LastName, "required")
	if err := identity.ValidateEmail(payload.Email); err != nil {
		v.Add("email", "must be a valid email address")
	}
	if v.Reject(w, reqID) {
		return
	}
	if err := identity.ValidatePassword(payload.Password); err != nil {
		api.FailError(w, err, reqID)
		return
	}
	digest, err := h.Auth.Hasher().Hash(payload.Password)
	if err != nil {
		api.FailError(w, err, reqID)
		return
	}
	admin, err := h.Identities.Create(r.Context(), identity.NewIdentity{
		Email:        payload.Email,
		PasswordHash: digest,
		FirstName:    payload.FirstName,
		LastName:     payload.LastName,
		Role:         identity.RoleAdmin,
		Active:       true,
	})
	if err != nil {
		api.FailError(w, err, reqID)
		return
	}
	h.Audit.Log(r.Context(), admin.ID, audit.ActionSystemInitialized, map[string]string{"email": admin.Email})
	api.Created(w, admin, reqID)
}

// secretMatches compares digests so neither content nor length leaks
// through timing.
func secretMatches(got, want string) bool {
	a := sha256.Sum256([]byte(got))
	b := sha256.Sum256([]byte(want))
	return subtle.ConstantTimeCompare(a[:], b[:]) == 1
}
