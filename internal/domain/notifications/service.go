package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"timeoff/internal/domain/identity"
	"timeoff/internal/domain/leave"
	"timeoff/internal/platform/email"
	"timeoff/internal/platform/events"
	"timeoff/internal/platform/jobs"
	"timeoff/internal/platform/metrics"
)

// Dispatcher fans workflow events out to the broker and to email. It never
// blocks the caller; delivery runs on the job runner.
type Dispatcher struct {
	jobs      jobs.Enqueuer
	publisher events.Publisher
	mailer    email.Sender
	metrics   *metrics.Collector
}

func New(runner jobs.Enqueuer, publisher events.Publisher, mailer email.Sender, collector *metrics.Collector) *Dispatcher {
	if publisher == nil {
		publisher = events.Noop{}
	}
	return &Dispatcher{jobs: runner, publisher: publisher, mailer: mailer, metrics: collector}
}

// Publish implements leave.Notifier.
func (d *Dispatcher) Publish(ctx context.Context, ev leave.Event) {
	d.jobs.Enqueue(jobs.JobNotify, func(ctx context.Context) error {
		return d.Deliver(ctx, ev)
	})
}

// Deliver publishes ev and mails the party that has to act on it.
func (d *Dispatcher) Deliver(ctx context.Context, ev leave.Event) error {
	var errs []error
	err := d.publisher.Publish(ctx, events.Message{
		Type:       string(ev.Type),
		Key:        ev.Request.ID,
		OccurredAt: ev.At.UTC(),
		Payload:    ev,
	})
	if err != nil {
		d.metrics.NotificationFailure()
		slog.Warn("event publish failed", "component", "notifications", "type", ev.Type, "requestId", ev.Request.ID, "err", err)
		errs = append(errs, err)
	}

	if d.mailer == nil {
		return errors.Join(errs...)
	}
	to, subject, body := compose(ev)
	if to == "" {
		return errors.Join(errs...)
	}
	if err := d.mailer.Send(ctx, to, subject, body); err != nil {
		if errors.Is(err, email.ErrDisabled) {
			slog.Debug("email disabled, notification skipped", "component", "notifications", "type", ev.Type)
			return errors.Join(errs...)
		}
		d.metrics.NotificationFailure()
		slog.Warn("notification email failed", "component", "notifications", "type", ev.Type, "requestId", ev.Request.ID, "err", err)
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// compose picks the recipient: the approver for new and cancelled requests,
// the requester for decisions.
func compose(ev leave.Event) (to, subject, body string) {
	r := ev.Request
	window := fmt.Sprintf("%s %s-%s", r.Date, r.Start, r.End)
	switch ev.Type {
	case leave.EventCreated:
		return ev.Approver.Email, subjectCreated, lines(
			fmt.Sprintf("%s requested leave on %s.", name(ev.Requester), window),
			"Reason: "+r.Reason,
			"Request: "+r.ID,
		)
	case leave.EventApproved, leave.EventRejected:
		subject := subjectApproved
		if ev.Type == leave.EventRejected {
			subject = subjectRejected
		}
		out := []string{
			fmt.Sprintf("Your leave request for %s is %s.", window, r.Status),
		}
		if r.Comment != "" {
			out = append(out, "Comment: "+r.Comment)
		}
		out = append(out, "Request: "+r.ID)
		return ev.Requester.Email, subject, lines(out...)
	case leave.EventCancelled:
		return ev.Approver.Email, subjectCancelled, lines(
			fmt.Sprintf("%s cancelled the leave request for %s.", name(ev.Requester), window),
			"Request: "+r.ID,
		)
	}
	return "", "", ""
}

func name(i identity.Identity) string {
	if n := i.FullName(); n != "" {
		return n
	}
	if i.Email != "" {
		return i.Email
	}
	return "An employee"
}

func lines(parts ...string) string {
	return strings.Join(parts, "\r\n") + "\r\n"
}
