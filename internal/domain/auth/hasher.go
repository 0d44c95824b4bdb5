package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"timeoff/internal/domain/identity"
)

// Hasher is the credential store: bcrypt digests with a configurable cost.
type Hasher struct {
	cost int

	dummyOnce sync.Once
	dummy     []byte
	dummyErr  error
}

func NewHasher(cost int) *Hasher {
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	return &Hasher{cost: cost}
}

func (h *Hasher) Hash(password string) (string, error) {
	if len(password) > identity.MaxPasswordLength {
		return "", fmt.Errorf("%w: must be at most %d bytes", identity.ErrWeakPassword, identity.MaxPasswordLength)
	}
	digest, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", err
	}
	return string(digest), nil
}

// Verify reports whether password matches digest. A digest that bcrypt
// cannot parse yields a *CredentialFormatError.
func (h *Hasher) Verify(password, digest string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(digest), []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	case errors.Is(err, bcrypt.ErrPasswordTooLong):
		return false, nil
	default:
		return false, &CredentialFormatError{Err: err}
	}
}

// VerifyDummy spends the same work as Verify against a digest that never
// matches. Used when the account does not exist.
func (h *Hasher) VerifyDummy(password string) {
	h.dummyOnce.Do(func() {
		buf := make([]byte, 16)
		if _, err := rand.Read(buf); err != nil {
			h.dummyErr = err
			return
		}
		h.dummy, h.dummyErr = bcrypt.GenerateFromPassword([]byte(hex.EncodeToString(buf)), h.cost)
	})
	if h.dummyErr != nil {
		return
	}
	_ = bcrypt.CompareHashAndPassword(h.dummy, []byte(password))
}

// Warm precomputes the dummy digest so the first login is not slower.
func (h *Hasher) Warm() {
	h.VerifyDummy("")
}
