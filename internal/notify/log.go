package notify

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/Kerhoff/giftpool/internal/models"
)

// LogPublisher writes events to the application log. It is the default
// backend when no broker is configured.
type LogPublisher struct {
	logger *logrus.Logger
}

func NewLogPublisher(logger *logrus.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, listID, excludeActorID int64, eventType models.EventType, payload any) error {
	fields := logrus.Fields{
		"event_type":       eventType,
		"list_id":          listID,
		"exclude_actor_id": excludeActorID,
	}
	if ev, ok := payload.(models.Event); ok {
		fields["event_id"] = ev.ID
		fields["item_id"] = ev.ItemID
		if ev.GroupID != nil {
			fields["group_id"] = *ev.GroupID
		}
	}
	p.logger.WithFields(fields).Info("Event published")
	return nil
}
