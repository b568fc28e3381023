package application

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zoobzio/clockz"

	"github.com/wms-platform/shipping-service/internal/domain"
	"github.com/wms-platform/shipping-service/pkg/errors"
	"github.com/wms-platform/shipping-service/pkg/logging"
	"github.com/wms-platform/shipping-service/pkg/metrics"
)

// Refresh kinds, used as metric and log labels.
const (
	RefreshKindReference = "reference"
	RefreshKindRates     = "rates"
)

// ReferenceService owns the current reference snapshot. Readers load it once
// per request; refreshes build a new snapshot and swap it in. A failed
// refresh keeps the previous snapshot.
type ReferenceService struct {
	source  domain.ReferenceSource
	origin  domain.Origin
	clock   clockz.Clock
	logger  *logging.Logger
	metrics *metrics.Metrics

	current atomic.Pointer[domain.Snapshot]

	// mu serializes refreshes so versions are assigned in order.
	mu      sync.Mutex
	version int64

	stopOnce sync.Once
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewReferenceService creates a ReferenceService. No snapshot is loaded until
// Refresh or Start is called.
func NewReferenceService(
	source domain.ReferenceSource,
	origin domain.Origin,
	clock clockz.Clock,
	logger *logging.Logger,
	m *metrics.Metrics,
) *ReferenceService {
	if clock == nil {
		clock = clockz.RealClock
	}
	return &ReferenceService{
		source:  source,
		origin:  origin,
		clock:   clock,
		logger:  logger.WithComponent("reference-service"),
		metrics: m,
	}
}

// Snapshot returns the current snapshot, or an unavailable error before the
// first successful load.
func (s *ReferenceService) Snapshot() (*domain.Snapshot, error) {
	snap := s.current.Load()
	if snap == nil {
		return nil, errors.ErrServiceUnavailable("reference data")
	}
	return snap, nil
}

// Refresh reloads reference tables and exchange rates and publishes a new
// snapshot.
func (s *ReferenceService) Refresh(ctx context.Context) (*domain.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.loadAll(ctx)
	if err != nil {
		s.refreshFailed(ctx, RefreshKindReference, err)
		return nil, err
	}

	s.publish(ctx, RefreshKindReference, snap)
	return snap, nil
}

func (s *ReferenceService) loadAll(ctx context.Context) (*domain.Snapshot, error) {
	data, err := s.source.LoadReference(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load reference data: %w", err)
	}
	rates, err := s.source.LoadExchangeRates(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load exchange rates: %w", err)
	}

	now := s.clock.Now()
	return domain.BuildSnapshot(data, rates, s.origin, s.version+1, now, now)
}

// RefreshRates reloads only the exchange rates on top of the current
// reference tables. Without a current snapshot it performs a full refresh.
func (s *ReferenceService) RefreshRates(ctx context.Context) (*domain.Snapshot, error) {
	base := s.current.Load()
	if base == nil {
		return s.Refresh(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// a full refresh may have landed while we waited
	base = s.current.Load()

	rates, err := s.source.LoadExchangeRates(ctx)
	if err != nil {
		err = fmt.Errorf("failed to load exchange rates: %w", err)
		s.refreshFailed(ctx, RefreshKindRates, err)
		return nil, err
	}

	snap, err := base.WithRates(rates, s.version+1, s.clock.Now())
	if err != nil {
		s.refreshFailed(ctx, RefreshKindRates, err)
		return nil, err
	}

	s.publish(ctx, RefreshKindRates, snap)
	return snap, nil
}

func (s *ReferenceService) publish(ctx context.Context, kind string, snap *domain.Snapshot) {
	s.version = snap.Version
	s.current.Store(snap)

	s.metrics.RecordReferenceRefresh(kind, true)
	s.metrics.SetSnapshot(snap.Version, len(snap.Overlaps()))
	s.recordAges(snap)

	s.logger.WithContext(ctx).Info("Reference snapshot published",
		"kind", kind,
		"version", snap.Version,
		"offerings", len(snap.Offerings()),
		"exchangeRates", len(snap.Rates()),
		"overlaps", len(snap.Overlaps()),
	)
	for _, o := range snap.Overlaps() {
		s.logger.Warn("Overlapping rate rules",
			"providerId", o.ProviderID,
			"serviceId", o.ServiceID,
			"zoneId", o.ZoneID,
			"ruleA", o.RuleA,
			"ruleB", o.RuleB,
			"overlapMinKg", o.OverlapMin,
			"overlapMaxKg", o.OverlapMax,
		)
	}
}

func (s *ReferenceService) refreshFailed(ctx context.Context, kind string, err error) {
	s.metrics.RecordReferenceRefresh(kind, false)

	log := s.logger.WithContext(ctx).WithError(err)
	if prev := s.current.Load(); prev != nil {
		log.Error("Reference refresh failed, keeping previous snapshot", "kind", kind, "version", prev.Version)
		return
	}
	log.Error("Reference refresh failed, no snapshot loaded", "kind", kind)
}

func (s *ReferenceService) recordAges(snap *domain.Snapshot) {
	s.metrics.SetReferenceAge(RefreshKindReference, s.clock.Since(snap.LoadedAt))
	s.metrics.SetReferenceAge(RefreshKindRates, s.clock.Since(snap.RatesLoadedAt))
}

// Start loads the first snapshot and then refreshes reference tables and
// exchange rates on their own intervals until Stop is called or ctx ends.
// A zero interval disables that loop.
func (s *ReferenceService) Start(ctx context.Context, referenceInterval, ratesInterval time.Duration) error {
	if _, err := s.Refresh(ctx); err != nil {
		return err
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.loop(ctx, referenceInterval, func(ctx context.Context) { _, _ = s.Refresh(ctx) })
	s.loop(ctx, ratesInterval, func(ctx context.Context) { _, _ = s.RefreshRates(ctx) })

	s.logger.Info("Reference refresh started",
		"referenceInterval", referenceInterval.String(),
		"ratesInterval", ratesInterval.String(),
	)
	return nil
}

func (s *ReferenceService) loop(ctx context.Context, interval time.Duration, refresh func(context.Context)) {
	if interval <= 0 {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.clock.After(interval):
				refresh(ctx)
				if snap := s.current.Load(); snap != nil {
					s.recordAges(snap)
				}
			}
		}
	}()
}

// Stop ends the refresh loops and waits for them to exit.
func (s *ReferenceService) Stop() {
	s.stopOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
	})
	s.wg.Wait()
}

// Summary describes the current snapshot.
func (s *ReferenceService) Summary() (*ReferenceSummaryDTO, error) {
	snap, err := s.Snapshot()
	if err != nil {
		return nil, err
	}
	return ToReferenceSummaryDTO(snap), nil
}

// ValidationReport runs the data-entry checks over the current snapshot:
// overlapping rate windows and the zone partition.
func (s *ReferenceService) ValidationReport() (*ValidationReportDTO, error) {
	snap, err := s.Snapshot()
	if err != nil {
		return nil, err
	}

	data := snap.Data()
	report := &ValidationReportDTO{
		Version:         snap.Version,
		Overlaps:        domain.ValidateRateRules(data.RateRules),
		ZonePartitionOK: true,
	}
	if report.Overlaps == nil {
		report.Overlaps = []domain.RuleOverlap{}
	}
	if _, err := domain.ValidateZonePartition(data.Countries, data.Zones); err != nil {
		report.ZonePartitionOK = false
		report.ZonePartitionError = err.Error()
	}
	return report, nil
}
