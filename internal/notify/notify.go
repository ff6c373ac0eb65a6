// Package notify delivers committed domain events to list collaborators.
// Backends are fire-and-forget from the caller's point of view; wrap slow
// ones in Async.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Kerhoff/giftpool/internal/models"
)

// Publisher hands one event to the broadcast layer. excludeActorID is the
// user whose action produced the event; they need not be notified.
type Publisher interface {
	Publish(ctx context.Context, listID, excludeActorID int64, eventType models.EventType, payload any) error
}

// Envelope is the wire form written by the Redis and Kafka backends.
type Envelope struct {
	ListID         int64            `json:"list_id"`
	ExcludeActorID int64            `json:"exclude_actor_id"`
	Type           models.EventType `json:"type"`
	Payload        any              `json:"payload"`
}

func encode(listID, excludeActorID int64, eventType models.EventType, payload any) ([]byte, error) {
	raw, err := json.Marshal(Envelope{
		ListID:         listID,
		ExcludeActorID: excludeActorID,
		Type:           eventType,
		Payload:        payload,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s event: %w", eventType, err)
	}
	return raw, nil
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, int64, int64, models.EventType, any) error { return nil }
