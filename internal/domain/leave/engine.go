package leave

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"timeoff/internal/domain/identity"
	"timeoff/internal/requestctx"
)

const DefaultMinReasonLength = 10

const (
	ActionCreated   = "REQUEST_CREATED"
	ActionApproved  = "REQUEST_APPROVED"
	ActionRejected  = "REQUEST_REJECTED"
	ActionCancelled = "REQUEST_CANCELLED"
)

type Options struct {
	MinReasonLength int
	Location        *time.Location
}

// Engine is the request workflow: pending -> approved | rejected | cancelled.
type Engine struct {
	store     StoreAPI
	directory Directory
	notifier  Notifier
	auditor   Auditor
	minReason int
	loc       *time.Location
	now       func() time.Time
}

func NewEngine(store StoreAPI, directory Directory, notifier Notifier, auditor Auditor, opts Options) *Engine {
	if opts.MinReasonLength <= 0 {
		opts.MinReasonLength = DefaultMinReasonLength
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Engine{
		store:     store,
		directory: directory,
		notifier:  notifier,
		auditor:   auditor,
		minReason: opts.MinReasonLength,
		loc:       opts.Location,
		now:       time.Now,
	}
}

func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Create files a pending request addressed to the requester's current
// supervisor.
func (e *Engine) Create(ctx context.Context, requesterID string, draft Draft) (Request, error) {
	requester, err := e.directory.ByID(ctx, requesterID)
	if errors.Is(err, identity.ErrNotFound) {
		return Request{}, ErrNotFound
	}
	if err != nil {
		return Request{}, err
	}
	if requester.SupervisorID == "" {
		return Request{}, ErrNoSupervisor
	}
	approver, err := e.directory.ByID(ctx, requester.SupervisorID)
	if errors.Is(err, identity.ErrNotFound) {
		return Request{}, ErrNoSupervisor
	}
	if err != nil {
		return Request{}, err
	}
	if !approver.Active {
		return Request{}, ErrNoSupervisor
	}
	if draft.End <= draft.Start {
		return Request{}, ErrInvalidWindow
	}
	now := e.now()
	if draft.Date.Before(DateIn(now, e.loc).Time) {
		return Request{}, ErrPastDate
	}
	draft.Reason = strings.TrimSpace(draft.Reason)
	if utf8.RuneCountInString(draft.Reason) < e.minReason {
		return Request{}, fmt.Errorf("%w: at least %d characters", ErrReasonTooShort, e.minReason)
	}

	created, err := e.store.Create(ctx, NewRequest{
		RequesterID: requester.ID,
		ApproverID:  approver.ID,
		Draft:       draft,
		CreatedAt:   now,
	})
	if err != nil {
		return Request{}, err
	}
	e.emit(ctx, EventCreated, created, requester, approver, requester.ID, now)
	return created, nil
}

// Decide approves or rejects. Only the designated approver, or an admin,
// may decide, and only while the request is pending.
func (e *Engine) Decide(ctx context.Context, actor Actor, id string, outcome Outcome, comment string) (Request, error) {
	if outcome != OutcomeApprove && outcome != OutcomeReject {
		return Request{}, fmt.Errorf("unknown outcome %q", outcome)
	}
	req, err := e.store.Get(ctx, id)
	if err != nil {
		return Request{}, err
	}
	if actor.ID != req.ApproverID && !adminOverride(actor) {
		return Request{}, ErrForbidden
	}
	if req.Status != StatusPending {
		return Request{}, ErrInvalidTransition
	}
	now := e.now()
	decided, err := e.store.Transition(ctx, id, outcome.status(), actor.ID, strings.TrimSpace(comment), now)
	if err != nil {
		return Request{}, err
	}
	evType := EventApproved
	if decided.Status == StatusRejected {
		evType = EventRejected
	}
	e.emitByID(ctx, evType, decided, actor.ID, now)
	return decided, nil
}

// Cancel withdraws a pending request. Only its requester may cancel.
func (e *Engine) Cancel(ctx context.Context, actor Actor, id string) (Request, error) {
	req, err := e.store.Get(ctx, id)
	if err != nil {
		return Request{}, err
	}
	if actor.ID != req.RequesterID {
		return Request{}, ErrForbidden
	}
	if req.Status != StatusPending {
		return Request{}, ErrInvalidTransition
	}
	now := e.now()
	cancelled, err := e.store.Transition(ctx, id, StatusCancelled, actor.ID, "", now)
	if err != nil {
		return Request{}, err
	}
	e.emitByID(ctx, EventCancelled, cancelled, actor.ID, now)
	return cancelled, nil
}

// Get returns a request visible to actor: its requester, approver, or an admin.
func (e *Engine) Get(ctx context.Context, actor Actor, id string) (Request, error) {
	req, err := e.store.Get(ctx, id)
	if err != nil {
		return Request{}, err
	}
	if actor.ID != req.RequesterID && actor.ID != req.ApproverID && actor.Role != identity.RoleAdmin {
		return Request{}, ErrForbidden
	}
	return req, nil
}

// List scopes rows by role: employees see their own, supervisors their own
// plus those they approve, admins everything.
func (e *Engine) List(ctx context.Context, actor Actor, filter ListFilter) ([]Request, int, error) {
	vis := Visibility{SubjectID: actor.ID}
	switch actor.Role {
	case identity.RoleAdmin:
		vis = Visibility{All: true}
	case identity.RoleSupervisor:
		vis.AsApprover = true
	}
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return e.store.List(ctx, filter, vis)
}

// adminOverride lets an admin decide requests addressed to someone else.
func adminOverride(actor Actor) bool {
	return actor.Role == identity.RoleAdmin
}

func (e *Engine) emitByID(ctx context.Context, evType EventType, req Request, actorID string, at time.Time) {
	requester, err := e.directory.ByID(ctx, req.RequesterID)
	if err != nil {
		slog.Warn("event requester lookup failed", "component", "leave", "requestId", req.ID, "err", err)
		requester = identity.Identity{ID: req.RequesterID}
	}
	approver, err := e.directory.ByID(ctx, req.ApproverID)
	if err != nil {
		slog.Warn("event approver lookup failed", "component", "leave", "requestId", req.ID, "err", err)
		approver = identity.Identity{ID: req.ApproverID}
	}
	e.emit(ctx, evType, req, requester, approver, actorID, at)
}

// emit hands the committed transition to the notifier and auditor. Neither
// can affect the outcome.
func (e *Engine) emit(ctx context.Context, evType EventType, req Request, requester, approver identity.Identity, actorID string, at time.Time) {
	ctx = requestctx.Detach(ctx)
	ev := Event{Type: evType, Request: req, Requester: requester, Approver: approver, ActorID: actorID, At: at}
	if e.notifier != nil {
		safely("notify", req.ID, func() { e.notifier.Publish(ctx, ev) })
	}
	if e.auditor != nil {
		details := map[string]string{
			"requestId": req.ID,
			"status":    string(req.Status),
			"date":      req.Date.String(),
		}
		if req.Comment != "" {
			details["comment"] = req.Comment
		}
		safely("audit", req.ID, func() { e.auditor.Log(ctx, actorID, auditAction(evType), details) })
	}
}

func auditAction(evType EventType) string {
	switch evType {
	case EventApproved:
		return ActionApproved
	case EventRejected:
		return ActionRejected
	case EventCancelled:
		return ActionCancelled
	default:
		return ActionCreated
	}
}

func safely(what, requestID string, fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("side effect panicked", "component", "leave", "sideEffect", what, "requestId", requestID, "panic", rec)
		}
	}()
	fn()
}
