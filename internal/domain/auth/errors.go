package auth

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountDisabled    = errors.New("account disabled")
	ErrForbidden          = errors.New("forbidden")

	ErrTokenMissing       = errors.New("token missing")
	ErrTokenInvalidFormat = errors.New("authorization header must be Bearer <token>")
	ErrTokenMalformed     = errors.New("token malformed")
	ErrTokenExpired       = errors.New("token expired")
	ErrTokenRevoked       = errors.New("token revoked")
	ErrTokenInvalidated   = errors.New("token no longer valid")
)

// CredentialFormatError reports a stored digest that cannot be parsed.
// It is logged server-side and surfaced to clients as invalid credentials.
type CredentialFormatError struct {
	Err error
}

func (e *CredentialFormatError) Error() string {
	return fmt.Sprintf("stored credential has invalid format: %v", e.Err)
}

func (e *CredentialFormatError) Unwrap() error {
	return e.Err
}
