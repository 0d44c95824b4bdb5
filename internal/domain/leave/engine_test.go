package leave_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"timeoff/internal/domain/identity"
	"timeoff/internal/domain/leave"
	"timeoff/internal/domain/memstore"
	"timeoff/internal/domain/org"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []leave.Event
}

func (n *recordingNotifier) Publish(_ context.Context, ev leave.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
}

func (n *recordingNotifier) types() []leave.EventType {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]leave.EventType, 0, len(n.events))
	for _, ev := range n.events {
		out = append(out, ev.Type)
	}
	return out
}

type panickingNotifier struct{}

func (panickingNotifier) Publish(context.Context, leave.Event) { panic("broker exploded") }

type recordingAuditor struct {
	mu      sync.Mutex
	actions []string
}

func (a *recordingAuditor) Log(_ context.Context, _ string, action string, _ map[string]string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.actions = append(a.actions, action)
}

type panickingAuditor struct{}

func (panickingAuditor) Log(context.Context, string, string, map[string]string) {
	panic("audit store gone")
}

type fixture struct {
	db         *memstore.DB
	engine     *leave.Engine
	notifier   *recordingNotifier
	auditor    *recordingAuditor
	admin      identity.Identity
	supervisor identity.Identity
	employee   identity.Identity
	peer       identity.Identity
	now        time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		db:       memstore.New(),
		notifier: &recordingNotifier{},
		auditor:  &recordingAuditor{},
		now:      time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
	}
	ctx := context.Background()
	ids := f.db.Identities()
	mk := func(email string, role identity.Role, supervisorID string) identity.Identity {
		u, err := ids.Create(ctx, identity.NewIdentity{
			Email: email, FirstName: "F", LastName: email, Role: role, SupervisorID: supervisorID, Active: true,
		})
		if err != nil {
			t.Fatalf("create %s: %v", email, err)
		}
		return u
	}
	f.admin = mk("admin@example.com", identity.RoleAdmin, "")
	f.supervisor = mk("boss@example.com", identity.RoleSupervisor, f.admin.ID)
	f.employee = mk("emp@example.com", identity.RoleEmployee, f.supervisor.ID)
	f.peer = mk("peer@example.com", identity.RoleEmployee, f.supervisor.ID)
	f.engine = f.newEngine(f.notifier, f.auditor, time.UTC)
	return f
}

func (f *fixture) newEngine(n leave.Notifier, a leave.Auditor, loc *time.Location) *leave.Engine {
	return leave.NewEngine(f.db.Requests(), f.db.Identities(), n, a, leave.Options{Location: loc}).
		WithClock(func() time.Time { return f.now })
}

func draft() leave.Draft {
	return leave.Draft{
		Date:   leave.NewDate(2026, 3, 10),
		Start:  9 * 60,
		End:    13 * 60,
		Reason: "medical appointment",
	}
}

func actor(i identity.Identity) leave.Actor {
	return leave.Actor{ID: i.ID, Role: i.Role}
}

func TestCreateAddressesCurrentSupervisor(t *testing.T) {
	f := newFixture(t)
	req, err := f.engine.Create(context.Background(), f.employee.ID, draft())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if req.Status != leave.StatusPending || req.ApproverID != f.supervisor.ID || req.RequesterID != f.employee.ID {
		t.Fatalf("unexpected request %+v", req)
	}
	if got := f.notifier.types(); len(got) != 1 || got[0] != leave.EventCreated {
		t.Fatalf("expected created event, got %v", got)
	}
	if len(f.auditor.actions) != 1 || f.auditor.actions[0] != leave.ActionCreated {
		t.Fatalf("expected created audit, got %v", f.auditor.actions)
	}
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	d := draft()
	d.End = d.Start
	if _, err := f.engine.Create(ctx, f.employee.ID, d); !errors.Is(err, leave.ErrInvalidWindow) {
		t.Fatalf("expected ErrInvalidWindow, got %v", err)
	}

	d = draft()
	d.Date = leave.NewDate(2026, 3, 1)
	if _, err := f.engine.Create(ctx, f.employee.ID, d); !errors.Is(err, leave.ErrPastDate) {
		t.Fatalf("expected ErrPastDate, got %v", err)
	}

	d = draft()
	d.Date = leave.NewDate(2026, 3, 2)
	if _, err := f.engine.Create(ctx, f.employee.ID, d); err != nil {
		t.Fatalf("today should be allowed, got %v", err)
	}

	d = draft()
	d.Reason = "   too short    "
	if _, err := f.engine.Create(ctx, f.employee.ID, d); !errors.Is(err, leave.ErrReasonTooShort) {
		t.Fatalf("expected ErrReasonTooShort, got %v", err)
	}

	d = draft()
	d.Reason = "ñandú ñandú"
	if _, err := f.engine.Create(ctx, f.employee.ID, d); err != nil {
		t.Fatalf("expected multibyte reason to pass, got %v", err)
	}

	if _, err := f.engine.Create(ctx, f.admin.ID, draft()); !errors.Is(err, leave.ErrNoSupervisor) {
		t.Fatalf("expected ErrNoSupervisor for top-level identity, got %v", err)
	}
}

func TestCreateWithInactiveSupervisor(t *testing.T) {
	f := newFixture(t)
	inactive := false
	if _, err := f.db.Identities().Update(context.Background(), f.supervisor.ID, identity.Patch{Active: &inactive}); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, err := f.engine.Create(context.Background(), f.employee.ID, draft()); !errors.Is(err, leave.ErrNoSupervisor) {
		t.Fatalf("expected ErrNoSupervisor, got %v", err)
	}
}

func TestCurrentDateUsesConfiguredZone(t *testing.T) {
	f := newFixture(t)
	// 02:00 UTC on the 2nd is still the 1st eight hours west.
	f.now = time.Date(2026, 3, 2, 2, 0, 0, 0, time.UTC)
	west := f.newEngine(nil, nil, time.FixedZone("UTC-8", -8*3600))
	d := draft()
	d.Date = leave.NewDate(2026, 3, 1)
	if _, err := west.Create(context.Background(), f.employee.ID, d); err != nil {
		t.Fatalf("expected local today to be accepted, got %v", err)
	}
	if _, err := f.engine.Create(context.Background(), f.employee.ID, d); !errors.Is(err, leave.ErrPastDate) {
		t.Fatalf("expected UTC engine to reject, got %v", err)
	}
}

func TestDecideOnlyFromPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req, err := f.engine.Create(ctx, f.employee.ID, draft())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	approved, err := f.engine.Decide(ctx, actor(f.supervisor), req.ID, leave.OutcomeApprove, "  enjoy  ")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved.Status != leave.StatusApproved || approved.DecidedBy != f.supervisor.ID || approved.Comment != "enjoy" || approved.DecidedAt == nil {
		t.Fatalf("unexpected decision %+v", approved)
	}

	if _, err := f.engine.Decide(ctx, actor(f.supervisor), req.ID, leave.OutcomeReject, ""); !errors.Is(err, leave.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if _, err := f.engine.Cancel(ctx, actor(f.employee), req.ID); !errors.Is(err, leave.ErrInvalidTransition) {
		t.Fatalf("expected cancel of approved to fail, got %v", err)
	}
	got, _ := f.db.Requests().Get(ctx, req.ID)
	if got.Status != leave.StatusApproved {
		t.Fatalf("terminal status changed to %s", got.Status)
	}
	if types := f.notifier.types(); len(types) != 2 || types[1] != leave.EventApproved {
		t.Fatalf("unexpected events %v", types)
	}
}

func TestDecideAuthorization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req, _ := f.engine.Create(ctx, f.employee.ID, draft())

	if _, err := f.engine.Decide(ctx, actor(f.employee), req.ID, leave.OutcomeApprove, ""); !errors.Is(err, leave.ErrForbidden) {
		t.Fatalf("requester must not decide, got %v", err)
	}
	if _, err := f.engine.Decide(ctx, actor(f.peer), req.ID, leave.OutcomeApprove, ""); !errors.Is(err, leave.ErrForbidden) {
		t.Fatalf("peer must not decide, got %v", err)
	}
	if _, err := f.engine.Decide(ctx, actor(f.supervisor), "missing", leave.OutcomeApprove, ""); !errors.Is(err, leave.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	rejected, err := f.engine.Decide(ctx, actor(f.admin), req.ID, leave.OutcomeReject, "coverage")
	if err != nil {
		t.Fatalf("admin override: %v", err)
	}
	if rejected.Status != leave.StatusRejected || rejected.DecidedBy != f.admin.ID {
		t.Fatalf("unexpected decision %+v", rejected)
	}
}

func TestForbiddenBeforeInvalidTransition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req, _ := f.engine.Create(ctx, f.employee.ID, draft())
	if _, err := f.engine.Decide(ctx, actor(f.supervisor), req.ID, leave.OutcomeApprove, ""); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := f.engine.Decide(ctx, actor(f.peer), req.ID, leave.OutcomeReject, ""); !errors.Is(err, leave.ErrForbidden) {
		t.Fatalf("expected ErrForbidden on decided request, got %v", err)
	}
}

func TestConcurrentDecisionsHaveOneWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req, _ := f.engine.Create(ctx, f.employee.ID, draft())

	const n = 16
	var wg sync.WaitGroup
	results := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcome := leave.OutcomeApprove
			who := f.supervisor
			if i%2 == 1 {
				outcome = leave.OutcomeReject
				who = f.admin
			}
			_, results[i] = f.engine.Decide(ctx, actor(who), req.ID, outcome, "")
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, leave.ErrInvalidTransition):
		default:
			t.Fatalf("unexpected error %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
	decided := 0
	for _, typ := range f.notifier.types() {
		if typ == leave.EventApproved || typ == leave.EventRejected {
			decided++
		}
	}
	if decided != 1 {
		t.Fatalf("expected one decision event, got %d", decided)
	}
}

func TestCancelRequesterOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req, _ := f.engine.Create(ctx, f.employee.ID, draft())

	if _, err := f.engine.Cancel(ctx, actor(f.admin), req.ID); !errors.Is(err, leave.ErrForbidden) {
		t.Fatalf("admin must not cancel, got %v", err)
	}
	if _, err := f.engine.Cancel(ctx, actor(f.supervisor), req.ID); !errors.Is(err, leave.ErrForbidden) {
		t.Fatalf("approver must not cancel, got %v", err)
	}
	cancelled, err := f.engine.Cancel(ctx, actor(f.employee), req.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != leave.StatusCancelled || cancelled.DecidedBy != "" || cancelled.DecidedAt != nil {
		t.Fatalf("unexpected cancelled request %+v", cancelled)
	}
	if _, err := f.engine.Decide(ctx, actor(f.supervisor), req.ID, leave.OutcomeApprove, ""); !errors.Is(err, leave.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition after cancel, got %v", err)
	}
}

func TestSideEffectFailuresDoNotChangeOutcome(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	engine := f.newEngine(panickingNotifier{}, panickingAuditor{}, time.UTC)

	req, err := engine.Create(ctx, f.employee.ID, draft())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	approved, err := engine.Decide(ctx, actor(f.supervisor), req.ID, leave.OutcomeApprove, "")
	if err != nil || approved.Status != leave.StatusApproved {
		t.Fatalf("expected approval despite side-effect panics, got %+v %v", approved, err)
	}
}

func TestApproverFixedAtCreation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req, _ := f.engine.Create(ctx, f.employee.ID, draft())

	hier := org.New(f.db.Org())
	if _, err := hier.Reassign(ctx, []string{f.employee.ID}, f.admin.ID); err != nil {
		t.Fatalf("reassign: %v", err)
	}
	got, _ := f.db.Requests().Get(ctx, req.ID)
	if got.ApproverID != f.supervisor.ID {
		t.Fatalf("approver changed to %s", got.ApproverID)
	}
	if _, err := f.engine.Decide(ctx, actor(f.supervisor), req.ID, leave.OutcomeApprove, ""); err != nil {
		t.Fatalf("original approver should still decide: %v", err)
	}

	next, err := f.engine.Create(ctx, f.employee.ID, draft())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if next.ApproverID != f.admin.ID {
		t.Fatalf("new request should go to new supervisor, got %s", next.ApproverID)
	}
}

func TestListAndGetScopedByRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mine, _ := f.engine.Create(ctx, f.employee.ID, draft())
	f.now = f.now.Add(time.Minute)
	theirs, _ := f.engine.Create(ctx, f.peer.ID, draft())

	list, total, err := f.engine.List(ctx, actor(f.employee), leave.ListFilter{})
	if err != nil || total != 1 || list[0].ID != mine.ID {
		t.Fatalf("employee should see only own request, got %d %v", total, err)
	}
	_, total, _ = f.engine.List(ctx, actor(f.supervisor), leave.ListFilter{})
	if total != 2 {
		t.Fatalf("supervisor should see both requests they approve, got %d", total)
	}
	list, total, _ = f.engine.List(ctx, actor(f.admin), leave.ListFilter{Status: leave.StatusPending, Limit: 1})
	if total != 2 || len(list) != 1 || list[0].ID != theirs.ID {
		t.Fatalf("admin listing newest first with limit, got %d %+v", total, list)
	}

	if _, err := f.engine.Get(ctx, actor(f.peer), mine.ID); !errors.Is(err, leave.ErrForbidden) {
		t.Fatalf("peer must not read another request, got %v", err)
	}
	if _, err := f.engine.Get(ctx, actor(f.supervisor), mine.ID); err != nil {
		t.Fatalf("approver get: %v", err)
	}
}
