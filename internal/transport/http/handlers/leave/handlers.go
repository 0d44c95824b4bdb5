package leavehandler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"timeoff/internal/domain/leave"
	"timeoff/internal/platform/kv"
	"timeoff/internal/transport/http/api"
	"timeoff/internal/transport/http/middleware"
	"timeoff/internal/transport/http/shared"
)

const (
	maxReasonLength  = 1000
	maxCommentLength = 1000
)

type Handler struct {
	Engine         *leave.Engine
	Authn          middleware.Authenticator
	Idempotency    kv.Store
	IdempotencyTTL time.Duration
	KVTimeout      time.Duration
}

func NewHandler(engine *leave.Engine, authn middleware.Authenticator, idempotency kv.Store, kvTimeout time.Duration) *Handler {
	return &Handler{
		Engine:         engine,
		Authn:          authn,
		Idempotency:    idempotency,
		IdempotencyTTL: 24 * time.Hour,
		KVTimeout:      kvTimeout,
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/requests", func(r chi.Router) {
		r.Use(middleware.RequireAuth(h.Authn))
		r.Get("/", h.handleListRequests)
		r.With(middleware.Idempotency(h.Idempotency, h.IdempotencyTTL, h.KVTimeout)).Post("/", h.handleCreateRequest)
		r.Get("/{requestID}", h.handleGetRequest)
		r.Put("/{requestID}/accept", h.handleDecide(leave.OutcomeApprove))
		r.Put("/{requestID}/reject", h.handleDecide(leave.OutcomeReject))
		r.Delete("/{requestID}", h.handleCancelRequest)
	})
}

func actorFrom(r *http.Request) leave.Actor {
	principal, _ := middleware.GetPrincipal(r.Context())
	return leave.Actor{ID: principal.ID, Role: principal.Role}
}

func (h *Handler) handleListRequests(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	query := r.URL.Query()

	filter := leave.ListFilter{
		RequesterID: query.Get("requesterId"),
		ApproverID:  query.Get("approverId"),
	}
	if raw := query.Get("status"); raw != "" {
		status, err := leave.ParseStatus(raw)
		if err != nil {
			shared.FailValidation(w, reqID, []shared.ValidationIssue{{Field: "status", Reason: "must be one of pending, approved, rejected, cancelled"}})
			return
		}
		filter.Status = status
	}
	page := shared.ParsePagination(r, 50, 200)
	filter.Limit = page.Limit
	filter.Offset = page.Offset

	items, total, err := h.Engine.List(r.Context(), actorFrom(r), filter)
	if err != nil {
		api.FailError(w, err, reqID)
		return
	}
	if items == nil {
		items = []leave.Request{}
	}
	w.Header().Set("X-Total-Count", strconv.Itoa(total))
	api.Success(w, api.Page{Items: items, Total: total, Limit: filter.Limit, Offset: filter.Offset}, reqID)
}

type createRequestPayload struct {
	Date   string `json:"date"`
	Start  string `json:"start"`
	End    string `json:"end"`
	Reason string `json:"reason"`
}

func (h *Handler) handleCreateRequest(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	var payload createRequestPayload
	if !shared.DecodeJSON(w, r, &payload, reqID) {
		return
	}

	v := shared.NewValidator()
	date, _ := v.Date("date", payload.Date)
	start, _ := v.Clock("start", payload.Start)
	end, _ := v.Clock("end", payload.End)
	v.Required("reason", payload.Reason, "required")
	v.MaxLen("reason", payload.Reason, maxReasonLength)
	if v.Reject(w, reqID) {
		return
	}

	created, err := h.Engine.Create(r.Context(), actorFrom(r).ID, leave.Draft{
		Date:   leave.NewDate(date.Year(), date.Month(), date.Day()),
		Start:  leave.TimeOfDay(start),
		End:    leave.TimeOfDay(end),
		Reason: payload.Reason,
	})
	if err != nil {
		api.FailError(w, err, reqID)
		return
	}
	api.Created(w, created, reqID)
}

func (h *Handler) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	req, err := h.Engine.Get(r.Context(), actorFrom(r), chi.URLParam(r, "requestID"))
	if err != nil {
		api.FailError(w, err, reqID)
		return
	}
	api.Success(w, req, reqID)
}

type decisionPayload struct {
	Comment string `json:"comment"`
}

func (h *Handler) handleDecide(outcome leave.Outcome) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqID := middleware.GetRequestID(r.Context())
		var payload decisionPayload
		if r.ContentLength != 0 && !shared.DecodeJSON(w, r, &payload, reqID) {
			return
		}
		v := shared.NewValidator()
		v.MaxLen("comment", payload.Comment, maxCommentLength)
		if v.Reject(w, reqID) {
			return
		}

		decided, err := h.Engine.Decide(r.Context(), actorFrom(r), chi.URLParam(r, "requestID"), outcome, payload.Comment)
		if err != nil {
			api.FailError(w, err, reqID)
			return
		}
		api.Success(w, decided, reqID)
	}
}

func (h *Handler) handleCancelRequest(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	cancelled, err := h.Engine.Cancel(r.Context(), actorFrom(r), chi.URLParam(r, "requestID"))
	if err != nil {
		api.FailError(w, err, reqID)
		return
	}
	api.Success(w, cancelled, reqID)
}
