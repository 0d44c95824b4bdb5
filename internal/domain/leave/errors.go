package leave

import "errors"

var (
	ErrNotFound          = errors.New("request not found")
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidTransition = errors.New("request is no longer pending")
	ErrInvalidWindow     = errors.New("end time must be after start time")
	ErrPastDate          = errors.New("date is in the past")
	ErrReasonTooShort    = errors.New("reason is too short")
	ErrNoSupervisor      = errors.New("no active supervisor assigned")
)
