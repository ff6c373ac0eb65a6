package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kerhoff/giftpool/internal/metrics"
	"github.com/Kerhoff/giftpool/internal/models"
)

type recorded struct {
	listID  int64
	exclude int64
	typ     models.EventType
}

type recorder struct {
	mu     sync.Mutex
	events []recorded
	block  chan struct{}
	err    error
}

func (r *recorder) Publish(ctx context.Context, listID, excludeActorID int64, eventType models.EventType, payload any) error {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recorded{listID, excludeActorID, eventType})
	return r.err
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func TestAsync_DeliversAndDrainsOnClose(t *testing.T) {
	logger, _ := test.NewNullLogger()
	rec := &recorder{}
	a := NewAsync(rec, 8, logger, nil)

	for i := 0; i < 5; i++ {
		require.NoError(t, a.Publish(context.Background(), 1, 2, models.EventReservationClaimed, nil))
	}
	require.NoError(t, a.Close())

	assert.Equal(t, 5, rec.count())
	assert.Equal(t, recorded{1, 2, models.EventReservationClaimed}, rec.events[0])
}

func TestAsync_DropsWhenFull(t *testing.T) {
	logger, hook := test.NewNullLogger()
	rec := &recorder{block: make(chan struct{})}
	m := metrics.New()
	a := NewAsync(rec, 1, logger, m)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			_ = a.Publish(context.Background(), 1, 2, models.EventGroupUpdated, nil)
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a stalled backend")
	}

	close(rec.block)
	require.NoError(t, a.Close())

	assert.Less(t, rec.count(), 10)
	assert.NotEmpty(t, hook.Entries)
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
}

func TestAsync_BackendErrorIsSwallowed(t *testing.T) {
	logger, hook := test.NewNullLogger()
	rec := &recorder{err: errors.New("broker down")}
	a := NewAsync(rec, 4, logger, nil)

	require.NoError(t, a.Publish(context.Background(), 3, 4, models.EventGroupDeleted, nil))
	require.NoError(t, a.Close())

	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "Failed to publish event", hook.LastEntry().Message)
}

func TestAsync_PublishAfterCloseIsDropped(t *testing.T) {
	logger, _ := test.NewNullLogger()
	rec := &recorder{}
	a := NewAsync(rec, 4, logger, nil)
	require.NoError(t, a.Close())
	require.NoError(t, a.Close())

	assert.NoError(t, a.Publish(context.Background(), 1, 1, models.EventGroupCreated, nil))
	assert.Equal(t, 0, rec.count())
}

func TestLogPublisher(t *testing.T) {
	logger, hook := test.NewNullLogger()
	p := NewLogPublisher(logger)

	groupID := int64(9)
	ev := models.NewEvent(models.EventContributionUpserted, 1, 5, 2, &groupID, nil)
	require.NoError(t, p.Publish(context.Background(), 1, 2, ev.Type, ev))

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, int64(9), entry.Data["group_id"])
	assert.Equal(t, ev.ID, entry.Data["event_id"])
}

type fakeWriter struct {
	msgs []kafka.Message
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestKafkaPublisher_KeysByList(t *testing.T) {
	w := &fakeWriter{}
	p := &KafkaPublisher{writer: w}

	ev := models.NewEvent(models.EventReservationPurchased, 42, 7, 3, nil, map[string]int{"available_quantity": 0})
	require.NoError(t, p.Publish(context.Background(), 42, 3, ev.Type, ev))

	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, "42", string(msg.Key))
	assert.Equal(t, "event-type", msg.Headers[0].Key)
	assert.Equal(t, string(models.EventReservationPurchased), string(msg.Headers[0].Value))

	var env struct {
		ListID         int64  `json:"list_id"`
		ExcludeActorID int64  `json:"exclude_actor_id"`
		Type           string `json:"type"`
	}
	require.NoError(t, json.Unmarshal(msg.Value, &env))
	assert.Equal(t, int64(42), env.ListID)
	assert.Equal(t, int64(3), env.ExcludeActorID)
}

func TestRedisPublisher_Channel(t *testing.T) {
	rdb := goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:0"})
	defer rdb.Close()

	p := NewRedisPublisherWithClient(rdb, "giftpool")
	assert.Equal(t, "giftpool:list:12", p.Channel(12))
}

func TestNewRedisPublisher_RequiresAddr(t *testing.T) {
	_, err := NewRedisPublisher("", "giftpool")
	assert.Error(t, err)
}
