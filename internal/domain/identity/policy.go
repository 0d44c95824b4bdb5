package identity

import (
	"fmt"
	"net/mail"
	"unicode"
)

const (
	MinPasswordLength = 8
	// bcrypt ignores input past 72 bytes.
	MaxPasswordLength = 72
)

func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return fmt.Errorf("%w: must be at least %d characters", ErrWeakPassword, MinPasswordLength)
	}
	if len(password) > MaxPasswordLength {
		return fmt.Errorf("%w: must be at most %d bytes", ErrWeakPassword, MaxPasswordLength)
	}
	var upper, lower, digit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !upper {
		return fmt.Errorf("%w: must contain an uppercase letter", ErrWeakPassword)
	}
	if !lower {
		return fmt.Errorf("%w: must contain a lowercase letter", ErrWeakPassword)
	}
	if !digit {
		return fmt.Errorf("%w: must contain a digit", ErrWeakPassword)
	}
	return nil
}

func ValidateEmail(email string) error {
	normalized := NormalizeEmail(email)
	addr, err := mail.ParseAddress(normalized)
	if err != nil || addr.Address != normalized {
		return ErrInvalidEmail
	}
	return nil
}
