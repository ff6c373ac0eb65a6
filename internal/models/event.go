package models

import (
	"time"

	"github.com/google/uuid"
)

// EventType names a committed coordination action.
type EventType string

const (
	EventReservationClaimed    EventType = "reservation.claimed"
	EventReservationPurchased  EventType = "reservation.purchased"
	EventReservationReleased   EventType = "reservation.released"
	EventGroupCreated          EventType = "shared_purchase.created"
	EventGroupUpdated          EventType = "shared_purchase.updated"
	EventGroupDeleted          EventType = "shared_purchase.deleted"
	EventContributionUpserted  EventType = "shared_purchase.contribution"
	EventContributionUpdated   EventType = "shared_purchase.contribution_updated"
	EventContributionCancelled EventType = "shared_purchase.contribution_deleted"
)

// Event is handed to the notification collaborator after commit. Payload is
// always safe to show to the list owner.
type Event struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	ListID     int64     `json:"list_id"`
	ItemID     int64     `json:"item_id"`
	GroupID    *int64    `json:"group_id,omitempty"`
	ActorID    int64     `json:"actor_id"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload"`
}

// NewEvent stamps an event with a fresh identifier.
func NewEvent(t EventType, listID, itemID, actorID int64, groupID *int64, payload any) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       t,
		ListID:     listID,
		ItemID:     itemID,
		GroupID:    groupID,
		ActorID:    actorID,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}
}
