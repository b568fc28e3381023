package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"github.com/wms-platform/shipping-service/pkg/cloudevents"
	"github.com/wms-platform/shipping-service/pkg/logging"
	"github.com/wms-platform/shipping-service/pkg/metrics"
)

// ErrCircuitOpen is returned while the broker is considered unavailable.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// EventWriter is anything that can publish one CloudEvent.
type EventWriter interface {
	PublishEvent(ctx context.Context, topic string, event *cloudevents.WMSCloudEvent) error
}

// BreakerConfig holds circuit breaker settings
type BreakerConfig struct {
	Name                  string
	MaxRequests           uint32
	Interval              time.Duration
	Timeout               time.Duration
	FailureThreshold      uint32
	FailureRatioThreshold float64
	MinRequestsToTrip     uint32
}

// DefaultBreakerConfig returns the producer breaker defaults.
func DefaultBreakerConfig() *BreakerConfig {
	return &BreakerConfig{
		Name:                  "kafka-producer",
		MaxRequests:           5,
		Interval:              60 * time.Second,
		Timeout:               30 * time.Second,
		FailureThreshold:      5,
		FailureRatioThreshold: 0.5,
		MinRequestsToTrip:     10,
	}
}

// CircuitBreakerProducer wraps an EventWriter with circuit breaker protection
type CircuitBreakerProducer struct {
	next    EventWriter
	cb      *gobreaker.CircuitBreaker
	name    string
	logger  *logging.Logger
	metrics *metrics.Metrics
}

// NewCircuitBreakerProducer creates a circuit breaker protected producer. m may be nil.
func NewCircuitBreakerProducer(next EventWriter, config *BreakerConfig, logger *logging.Logger, m *metrics.Metrics) *CircuitBreakerProducer {
	if config == nil {
		config = DefaultBreakerConfig()
	}

	p := &CircuitBreakerProducer{next: next, name: config.Name, logger: logger, metrics: m}

	settings := gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.ConsecutiveFailures >= config.FailureThreshold {
				return true
			}
			if counts.Requests >= config.MinRequestsToTrip {
				return float64(counts.TotalFailures)/float64(counts.Requests) >= config.FailureRatioThreshold
			}
			return false
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
			if m != nil {
				m.SetCircuitBreakerState(name, int(to))
				if to == gobreaker.StateOpen {
					m.RecordCircuitBreakerTrip(name)
				}
			}
		},
	}
	p.cb = gobreaker.NewCircuitBreaker(settings)
	return p
}

// PublishEvent publishes a CloudEvent with circuit breaker protection
func (p *CircuitBreakerProducer) PublishEvent(ctx context.Context, topic string, event *cloudevents.WMSCloudEvent) error {
	_, err := p.cb.Execute(func() (interface{}, error) {
		return nil, p.next.PublishEvent(ctx, topic, event)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %s", ErrCircuitOpen, p.name)
	}
	return err
}

// State returns the current breaker state.
func (p *CircuitBreakerProducer) State() gobreaker.State {
	return p.cb.State()
}

// InstrumentedProducer records publish metrics and logs around an EventWriter.
type InstrumentedProducer struct {
	next    EventWriter
	metrics *metrics.Metrics
	logger  *logging.Logger
}

// NewInstrumentedProducer wraps next with metrics and logging.
func NewInstrumentedProducer(next EventWriter, m *metrics.Metrics, logger *logging.Logger) *InstrumentedProducer {
	return &InstrumentedProducer{next: next, metrics: m, logger: logger}
}

// PublishEvent publishes and records the outcome.
func (p *InstrumentedProducer) PublishEvent(ctx context.Context, topic string, event *cloudevents.WMSCloudEvent) error {
	start := time.Now()
	err := p.next.PublishEvent(ctx, topic, event)
	duration := time.Since(start)

	if p.metrics != nil {
		p.metrics.RecordKafkaPublish(topic, event.Type, err == nil, duration)
	}
	p.logger.KafkaPublish(ctx, topic, event.Type, err == nil, duration)
	return err
}

// NewProductionProducer builds the producer chain used by the API: breaker, instrumentation, writer.
func NewProductionProducer(config *Config, m *metrics.Metrics, logger *logging.Logger) (*CircuitBreakerProducer, *Producer) {
	base := NewProducer(config)
	instrumented := NewInstrumentedProducer(base, m, logger)
	return NewCircuitBreakerProducer(instrumented, DefaultBreakerConfig(), logger, m), base
}
