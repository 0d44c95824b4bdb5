package audit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/zeebo/blake3"
)

const keyContext = "timeoff 2026-01 audit chain key"

// Chain computes keyed BLAKE3 links: hash = H_k(prev || canonical(entry)).
type Chain struct {
	key [32]byte
}

// NewChain uses key when it is exactly 32 bytes and otherwise derives a
// 32-byte key from it.
func NewChain(key []byte) (*Chain, error) {
	if len(key) == 0 {
		return nil, fmt.Errorf("audit chain key is empty")
	}
	c := &Chain{}
	if len(key) == 32 {
		copy(c.key[:], key)
		return c, nil
	}
	blake3.DeriveKey(keyContext, key, c.key[:])
	return c, nil
}

func (c *Chain) Link(prev []byte, e Entry) ([]byte, error) {
	body, err := canonical(e)
	if err != nil {
		return nil, err
	}
	h, err := blake3.NewKeyed(c.key[:])
	if err != nil {
		return nil, err
	}
	_, _ = h.Write(prev)
	_, _ = h.Write(body)
	return h.Sum(nil), nil
}

// Check recomputes e's link from prev and compares it to e.Hash.
func (c *Chain) Check(prev []byte, e Entry) (bool, error) {
	if !bytes.Equal(prev, e.PrevHash) {
		return false, nil
	}
	want, err := c.Link(prev, e)
	if err != nil {
		return false, err
	}
	return bytes.Equal(want, e.Hash), nil
}

type canonicalEntry struct {
	ActorID   string            `json:"a"`
	Action    string            `json:"c"`
	Details   map[string]string `json:"d"`
	IP        string            `json:"i"`
	RequestID string            `json:"r"`
	CreatedAt string            `json:"t"`
}

// canonical is stable across a database round trip: map keys are sorted by
// encoding/json and timestamps are cut to microseconds.
func canonical(e Entry) ([]byte, error) {
	details := e.Details
	if details == nil {
		details = map[string]string{}
	}
	return json.Marshal(canonicalEntry{
		ActorID:   e.ActorID,
		Action:    e.Action,
		Details:   details,
		IP:        e.IP,
		RequestID: e.RequestID,
		CreatedAt: Normalize(e.CreatedAt).Format(time.RFC3339Nano),
	})
}

// Normalize matches the precision postgres keeps for timestamptz.
func Normalize(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
