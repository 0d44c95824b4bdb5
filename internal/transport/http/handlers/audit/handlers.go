package audithandler

import (
	"encoding/csv"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"timeoff/internal/domain/audit"
	"timeoff/internal/domain/identity"
	"timeoff/internal/transport/http/api"
	"timeoff/internal/transport/http/middleware"
	"timeoff/internal/transport/http/shared"
)

type Handler struct {
	Recorder *audit.Recorder
	Authn    middleware.Authenticator
}

func NewHandler(recorder *audit.Recorder, authn middleware.Authenticator) *Handler {
	return &Handler{Recorder: recorder, Authn: authn}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/audit-logs", func(r chi.Router) {
		r.Use(middleware.RequireAuth(h.Authn), middleware.RequireRole(identity.RoleAdmin))
		r.Get("/", h.handleListEntries)
		r.Get("/verify", h.handleVerify)
		r.Get("/export", h.handleExportEntries)
	})
}

func (h *Handler) handleListEntries(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	page := shared.ParsePagination(r, 100, 500)
	filter := audit.Filter{
		ActorID: r.URL.Query().Get("actorId"),
		Action:  strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("action"))),
		Limit:   page.Limit,
		Offset:  page.Offset,
	}
	entries, total, err := h.Recorder.List(r.Context(), filter)
	if err != nil {
		api.FailError(w, err, reqID)
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	w.Header().Set("X-Total-Count", strconv.Itoa(total))
	api.Success(w, entries, reqID)
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	result, err := h.Recorder.Verify(r.Context())
	if err != nil {
		api.FailError(w, err, reqID)
		return
	}
	if !result.Valid {
		slog.Warn("audit chain broken", "component", "audit", "brokenAt", result.BrokenAt)
	}
	api.Success(w, result, reqID)
}

func (h *Handler) handleExportEntries(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename=audit-logs.csv")
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"id", "actor_id", "action", "details", "ip", "request_id", "created_at"}); err != nil {
		slog.Warn("audit export header failed", "err", err)
		return
	}
	err := h.Recorder.Each(r.Context(), func(e audit.Entry) error {
		return writer.Write([]string{
			strconv.FormatInt(e.ID, 10),
			e.ActorID,
			e.Action,
			formatDetails(e.Details),
			e.IP,
			e.RequestID,
			e.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
	})
	if err != nil {
		slog.Warn("audit export row failed", "err", err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		slog.Warn("audit export flush failed", "err", err)
	}
}

func formatDetails(details map[string]string) string {
	keys := make([]string, 0, len(details))
	for k := range details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+details[k])
	}
	return strings.Join(parts, ";")
}
