package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/shipping-service/pkg/cloudevents"
	"github.com/wms-platform/shipping-service/pkg/logging"
)

type fakeRepository struct {
	mu        sync.Mutex
	events    []*OutboxEvent
	published map[string]bool
	retries   map[string]string
}

func newFakeRepository(events ...*OutboxEvent) *fakeRepository {
	return &fakeRepository{
		events:    events,
		published: make(map[string]bool),
		retries:   make(map[string]string),
	}
}

func (r *fakeRepository) SaveAll(ctx context.Context, events []*OutboxEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events...)
	return nil
}

func (r *fakeRepository) FindUnpublished(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*OutboxEvent
	for _, e := range r.events {
		if !r.published[e.ID] && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *fakeRepository) MarkPublished(ctx context.Context, eventID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.published[eventID] = true
	return nil
}

func (r *fakeRepository) IncrementRetry(ctx context.Context, eventID string, errorMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retries[eventID] = errorMsg
	return nil
}

type fakeProducer struct {
	mu     sync.Mutex
	topics []string
	failOn string
}

func (p *fakeProducer) PublishEvent(ctx context.Context, topic string, event *cloudevents.WMSCloudEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if event.Subject == p.failOn {
		return errors.New("broker unavailable")
	}
	p.topics = append(p.topics, topic)
	return nil
}

func (p *fakeProducer) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.topics)
}

func shipmentEvent(t *testing.T, shipmentID string) *OutboxEvent {
	t.Helper()
	factory := cloudevents.NewEventFactory(cloudevents.SourceShipping)
	ce := factory.CreateEvent(context.Background(), "wms.shipping.shipment-created", shipmentID, map[string]string{"shipmentId": shipmentID})
	event, err := NewOutboxEventFromCloudEvent(shipmentID, "Shipment", "wms.shipping.events", ce)
	require.NoError(t, err)
	return event
}

func TestNewOutboxEventFromCloudEvent(t *testing.T) {
	event := shipmentEvent(t, "SHP-1")

	assert.NotEmpty(t, event.ID)
	assert.Equal(t, "SHP-1", event.AggregateID)
	assert.Equal(t, "wms.shipping.shipment-created", event.EventType)
	assert.Equal(t, DefaultMaxRetries, event.MaxRetries)
	assert.False(t, event.IsPublished())
	assert.True(t, event.ShouldRetry())

	ce, err := event.ToCloudEvent()
	require.NoError(t, err)
	assert.Equal(t, "SHP-1", ce.Subject)
}

func TestOutboxEvent_ShouldRetry(t *testing.T) {
	event := shipmentEvent(t, "SHP-1")
	event.RetryCount = event.MaxRetries
	assert.False(t, event.ShouldRetry())

	now := time.Now()
	event.RetryCount = 0
	event.PublishedAt = &now
	assert.False(t, event.ShouldRetry())
}

func TestPublisher_ProcessOnce(t *testing.T) {
	ok := shipmentEvent(t, "SHP-1")
	failing := shipmentEvent(t, "SHP-2")
	repo := newFakeRepository(ok, failing)
	producer := &fakeProducer{failOn: "SHP-2"}

	p := NewPublisher(repo, producer, logging.NewNop(), nil, nil)
	p.ProcessOnce(context.Background())

	assert.True(t, repo.published[ok.ID])
	assert.False(t, repo.published[failing.ID])
	assert.Contains(t, repo.retries[failing.ID], "broker unavailable")
	assert.Equal(t, []string{"wms.shipping.events"}, producer.topics)
	assert.Equal(t, map[string]int{"published": 1, "failed": 1}, p.Stats())
}

func TestPublisher_StartStop(t *testing.T) {
	repo := newFakeRepository(shipmentEvent(t, "SHP-1"))
	producer := &fakeProducer{}

	p := NewPublisher(repo, producer, logging.NewNop(), nil, &PublisherConfig{
		PollInterval: 10 * time.Millisecond,
		BatchSize:    10,
	})
	require.NoError(t, p.Start(context.Background()))
	assert.Error(t, p.Start(context.Background()))

	assert.Eventually(t, func() bool { return producer.count() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, p.Stop())
	assert.Error(t, p.Stop())
}
