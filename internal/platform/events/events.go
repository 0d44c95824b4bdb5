// Package events publishes domain events to an external broker.
package events

import (
	"context"
	"encoding/json"
	"time"
)

// Message is the broker envelope. Key groups related events (request id).
type Message struct {
	Type       string    `json:"type"`
	Key        string    `json:"key"`
	OccurredAt time.Time `json:"occurredAt"`
	Payload    any       `json:"payload"`
}

type Publisher interface {
	Publish(ctx context.Context, msg Message) error
	Close() error
}

type Noop struct{}

func (Noop) Publish(context.Context, Message) error { return nil }
func (Noop) Close() error                           { return nil }

func encode(msg Message) ([]byte, error) {
	if msg.OccurredAt.IsZero() {
		msg.OccurredAt = time.Now().UTC()
	}
	return json.Marshal(msg)
}
