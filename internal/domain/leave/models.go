package leave

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"timeoff/internal/domain/identity"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
)

func ParseStatus(raw string) (Status, error) {
	switch s := Status(strings.ToLower(strings.TrimSpace(raw))); s {
	case StatusPending, StatusApproved, StatusRejected, StatusCancelled:
		return s, nil
	}
	return "", fmt.Errorf("unknown status %q", raw)
}

func (s Status) Terminal() bool {
	return s != StatusPending
}

type Outcome string

const (
	OutcomeApprove Outcome = "approve"
	OutcomeReject  Outcome = "reject"
)

func (o Outcome) status() Status {
	if o == OutcomeApprove {
		return StatusApproved
	}
	return StatusRejected
}

// TimeOfDay is minutes after midnight, written as HH:MM.
type TimeOfDay int

func ParseTimeOfDay(raw string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("time must be HH:MM: %w", err)
	}
	return TimeOfDay(t.Hour()*60 + t.Minute()), nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *TimeOfDay) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseTimeOfDay(raw)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

const DateLayout = "2006-01-02"

// Date is a civil date; the time part is always midnight UTC.
type Date struct {
	time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

func ParseDate(raw string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(raw))
	if err != nil {
		return Date{}, fmt.Errorf("date must be YYYY-MM-DD: %w", err)
	}
	return Date{t}, nil
}

// DateIn returns the civil date of t in loc.
func DateIn(t time.Time, loc *time.Location) Date {
	y, m, d := t.In(loc).Date()
	return NewDate(y, m, d)
}

func (d Date) String() string {
	return d.Format(DateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseDate(raw)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

type Request struct {
	ID          string     `json:"id"`
	RequesterID string     `json:"requesterId"`
	ApproverID  string     `json:"approverId"`
	Date        Date       `json:"date"`
	Start       TimeOfDay  `json:"start"`
	End         TimeOfDay  `json:"end"`
	Reason      string     `json:"reason"`
	Status      Status     `json:"status"`
	Comment     string     `json:"comment,omitempty"`
	DecidedBy   string     `json:"decidedBy,omitempty"`
	DecidedAt   *time.Time `json:"decidedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// Draft is the requester's input to Create.
type Draft struct {
	Date   Date
	Start  TimeOfDay
	End    TimeOfDay
	Reason string
}

type NewRequest struct {
	RequesterID string
	ApproverID  string
	Draft
	CreatedAt time.Time
}

// Actor is whoever performs a workflow operation.
type Actor struct {
	ID   string
	Role identity.Role
}

type ListFilter struct {
	Status      Status
	RequesterID string
	ApproverID  string
	Limit       int
	Offset      int
}

// Visibility restricts listing. All=false limits rows to those where
// SubjectID is the requester, or the approver when AsApprover is set.
type Visibility struct {
	All        bool
	SubjectID  string
	AsApprover bool
}

type EventType string

const (
	EventCreated   EventType = "request_created"
	EventApproved  EventType = "request_approved"
	EventRejected  EventType = "request_rejected"
	EventCancelled EventType = "request_cancelled"
)

// Event is emitted after a transition commits.
type Event struct {
	Type      EventType         `json:"type"`
	Request   Request           `json:"request"`
	Requester identity.Identity `json:"requester"`
	Approver  identity.Identity `json:"approver"`
	ActorID   string            `json:"actorId"`
	At        time.Time         `json:"at"`
}
