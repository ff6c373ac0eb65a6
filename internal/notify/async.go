package notify

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Kerhoff/giftpool/internal/metrics"
	"github.com/Kerhoff/giftpool/internal/models"
)

const publishTimeout = 5 * time.Second

type message struct {
	listID         int64
	excludeActorID int64
	eventType      models.EventType
	payload        any
}

// Async decouples callers from a backend with a bounded queue drained by a
// single worker. Publish never blocks: when the queue is full the event is
// dropped and counted.
type Async struct {
	next    Publisher
	logger  *logrus.Logger
	metrics *metrics.Metrics

	queue     chan message
	wg        sync.WaitGroup
	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
}

// NewAsync starts the worker. buffer below 1 is treated as 1.
func NewAsync(next Publisher, buffer int, logger *logrus.Logger, m *metrics.Metrics) *Async {
	if buffer < 1 {
		buffer = 1
	}
	a := &Async{
		next:    next,
		logger:  logger,
		metrics: m,
		queue:   make(chan message, buffer),
	}
	a.wg.Add(1)
	go a.run()
	return a
}

func (a *Async) Publish(_ context.Context, listID, excludeActorID int64, eventType models.EventType, payload any) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		a.drop(eventType, listID, "publisher closed")
		return nil
	}

	select {
	case a.queue <- message{listID: listID, excludeActorID: excludeActorID, eventType: eventType, payload: payload}:
	default:
		a.drop(eventType, listID, "queue full")
	}
	return nil
}

func (a *Async) drop(eventType models.EventType, listID int64, reason string) {
	a.metrics.EventDropped()
	a.logger.WithFields(logrus.Fields{
		"event_type": eventType,
		"list_id":    listID,
	}).Warnf("Dropping event: %s", reason)
}

func (a *Async) run() {
	defer a.wg.Done()
	for msg := range a.queue {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		err := a.next.Publish(ctx, msg.listID, msg.excludeActorID, msg.eventType, msg.payload)
		cancel()

		a.metrics.EventPublished(err)
		if err != nil {
			a.logger.WithError(err).WithFields(logrus.Fields{
				"event_type": msg.eventType,
				"list_id":    msg.listID,
			}).Warn("Failed to publish event")
		}
	}
}

// Close stops accepting events and waits until queued ones are delivered.
func (a *Async) Close() error {
	a.closeOnce.Do(func() {
		a.mu.Lock()
		a.closed = true
		close(a.queue)
		a.mu.Unlock()
	})
	a.wg.Wait()
	return nil
}
