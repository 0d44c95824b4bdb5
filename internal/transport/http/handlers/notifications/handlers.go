package notificationshandler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"timeoff/internal/domain/audit"
	"timeoff/internal/domain/identity"
	"timeoff/internal/domain/settings"
	"timeoff/internal/platform/email"
	"timeoff/internal/transport/http/api"
	"timeoff/internal/transport/http/middleware"
	"timeoff/internal/transport/http/shared"
)

// Handler exposes the mail relay configuration used for notifications.
type Handler struct {
	Settings *settings.Service
	Mailer   email.Sender
	Authn    middleware.Authenticator
	Audit    *audit.Recorder
}

const testMailTimeout = 15 * time.Second

const testMailBody = `This is a test message from TimeOff Manager.
If you received it, outgoing mail is configured correctly.
`

func NewHandler(service *settings.Service, mailer email.Sender, authn middleware.Authenticator, recorder *audit.Recorder) *Handler {
	return &Handler{Settings: service, Mailer: mailer, Authn: authn, Audit: recorder}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/smtp-config", func(r chi.Router) {
		r.Use(middleware.RequireAuth(h.Authn), middleware.RequireRole(identity.RoleAdmin))
		r.Get("/", h.handleGetSMTP)
		r.Post("/", h.handleUpdateSMTP)
		r.Post("/test", h.handleTestSMTP)
	})
}

func (h *Handler) handleGetSMTP(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	view, err := h.Settings.Get(r.Context())
	if err != nil {
		api.FailError(w, err, reqID)
		return
	}
	api.Success(w, view, reqID)
}

func (h *Handler) handleUpdateSMTP(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	principal, _ := middleware.GetPrincipal(r.Context())

	var payload settings.SMTPUpdate
	if !shared.DecodeJSON(w, r, &payload, reqID) {
		return
	}
	v := shared.NewValidator()
	if payload.Host != nil {
		v.MaxLen("host", *payload.Host, 255)
	}
	if payload.From != nil {
		v.MaxLen("fromEmail", *payload.From, 255)
	}
	if v.Reject(w, reqID) {
		return
	}

	view, err := h.Settings.Update(r.Context(), principal.ID, payload)
	if err != nil {
		api.FailError(w, err, reqID)
		return
	}
	details := map[string]string{
		"enabled": strconv.FormatBool(view.Enabled),
		"host":    view.Host,
		"port":    strconv.Itoa(view.Port),
	}
	if payload.Password != nil && *payload.Password != view.Password {
		details["passwordChanged"] = "true"
	}
	h.Audit.Log(r.Context(), principal.ID, audit.ActionSMTPConfigUpdated, details)
	api.Success(w, view, reqID)
}

type testMailPayload struct {
	To string `json:"testEmail"`
}

// handleTestSMTP sends a message synchronously so delivery errors reach the caller.
func (h *Handler) handleTestSMTP(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	principal, _ := middleware.GetPrincipal(r.Context())

	var payload testMailPayload
	if !shared.DecodeJSON(w, r, &payload, reqID) {
		return
	}
	v := shared.NewValidator()
	if err := identity.ValidateEmail(payload.To); err != nil {
		v.Add("testEmail", "must be a valid email address")
	}
	if v.Reject(w, reqID) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), testMailTimeout)
	defer cancel()
	err := h.Mailer.Send(ctx, payload.To, "Test Email - TimeOff Manager", testMailBody)
	if errors.Is(err, email.ErrDisabled) {
		api.Fail(w, http.StatusConflict, "smtp_disabled", "outgoing mail is disabled", reqID)
		return
	}
	if err != nil {
		slog.Warn("smtp test failed", "component", "notifications", "requestId", reqID, "err", err)
		api.Fail(w, http.StatusBadGateway, "smtp_failed", "test email could not be delivered", reqID)
		return
	}
	h.Audit.Log(r.Context(), principal.ID, audit.ActionSMTPTestSent, map[string]string{"to": payload.To})
	api.Success(w, map[string]any{"sent": true}, reqID)
}
