package identity

import "errors"

var (
	ErrNotFound     = errors.New("identity not found")
	ErrEmailTaken   = errors.New("email already registered")
	ErrInvalidRole  = errors.New("invalid role")
	ErrWeakPassword = errors.New("password does not meet policy")
	ErrInvalidEmail = errors.New("invalid email")
)
