package settings

import "errors"

var (
	ErrInvalidPort   = errors.New("smtp port must be between 1 and 65535")
	ErrInvalidSender = errors.New("smtp from address is invalid")
	ErrHostRequired  = errors.New("smtp host is required when email is enabled")
)
