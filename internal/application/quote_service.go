package application

import (
	"context"
	"sort"
	"time"

	"github.com/zoobzio/clockz"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wms-platform/shipping-service/internal/domain"
	"github.com/wms-platform/shipping-service/pkg/logging"
	"github.com/wms-platform/shipping-service/pkg/metrics"
	"github.com/wms-platform/shipping-service/pkg/tracing"
)

const tracerName = "github.com/wms-platform/shipping-service/internal/application"

// SnapshotProvider hands out the current reference snapshot.
type SnapshotProvider interface {
	Snapshot() (*domain.Snapshot, error)
}

// Quote is a priced provider service for one package. Cost is in the rate
// rule's currency; Display is the same breakdown converted to the requested
// currency, if any.
type Quote struct {
	Provider        *domain.Provider
	Service         *domain.Service
	Destination     *domain.Destination
	Cost            *domain.CostBreakdown
	Display         *domain.CostBreakdown
	SnapshotVersion int64
	QuotedAt        time.Time
}

// comparable total used to rank quotes
func (q *Quote) rankTotal() *domain.CostBreakdown {
	if q.Display != nil {
		return q.Display
	}
	return q.Cost
}

// QuoteService prices packages: resolve, match, compose and convert against
// a single snapshot per request.
type QuoteService struct {
	snapshots    SnapshotProvider
	matcher      *domain.RateMatcher
	converter    *domain.CurrencyConverter
	baseCurrency string
	clock        clockz.Clock
	logger       *logging.Logger
	metrics      *metrics.Metrics
	tracer       trace.Tracer
}

// NewQuoteService creates a QuoteService. baseCurrency is the currency rate
// shopping ranks in when the caller asks for none.
func NewQuoteService(
	snapshots SnapshotProvider,
	matcher *domain.RateMatcher,
	converter *domain.CurrencyConverter,
	baseCurrency string,
	clock clockz.Clock,
	logger *logging.Logger,
	m *metrics.Metrics,
) *QuoteService {
	if matcher == nil {
		matcher = domain.NewRateMatcher(nil)
	}
	if converter == nil {
		converter = domain.NewCurrencyConverter()
	}
	if clock == nil {
		clock = clockz.RealClock
	}
	return &QuoteService{
		snapshots:    snapshots,
		matcher:      matcher,
		converter:    converter,
		baseCurrency: domain.NormalizeCode(baseCurrency),
		clock:        clock,
		logger:       logger.WithComponent("quote-service"),
		metrics:      m,
		tracer:       otel.Tracer(tracerName),
	}
}

// Resolve resolves a destination against the current snapshot.
func (s *QuoteService) Resolve(ctx context.Context, query ResolveQuery) (*DestinationDTO, error) {
	snap, err := s.snapshots.Snapshot()
	if err != nil {
		return nil, err
	}
	dest, err := snap.Resolve(query.CountryCode, query.StateCode)
	if err != nil {
		return nil, MapDomainError(err)
	}
	dto := ToDestinationDTO(dest)
	return &dto, nil
}

// Quote prices one provider service.
func (s *QuoteService) Quote(ctx context.Context, cmd QuoteCommand) (*QuoteDTO, error) {
	start := s.clock.Now()
	q, err := tracing.Traced(ctx, s.tracer, "QuoteService.Quote", func(ctx context.Context) (*Quote, error) {
		return s.Calculate(ctx, cmd)
	},
		attribute.String("shipping.provider_id", cmd.ProviderID),
		attribute.String("shipping.service_id", cmd.ServiceID),
		attribute.String("shipping.country", cmd.CountryCode),
	)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Warn("Quote rejected",
			"providerId", cmd.ProviderID,
			"serviceId", cmd.ServiceID,
			"country", cmd.CountryCode,
			"code", errorCode(err),
		)
		return nil, MapDomainError(err)
	}

	s.logger.Performance(ctx, "shipping.quote", s.clock.Since(start), true, map[string]any{
		"providerId": q.Provider.ID,
		"serviceId":  q.Service.ID,
	})
	s.logger.Event(ctx, "shipping.quote.calculated", map[string]any{
		"providerId":      q.Provider.ID,
		"serviceId":       q.Service.ID,
		"zoneId":          q.Destination.ZoneID,
		"ruleId":          q.Cost.RuleID,
		"total":           money(q.Cost.Total),
		"currency":        q.Cost.Currency,
		"snapshotVersion": q.SnapshotVersion,
	})
	return ToQuoteDTO(q), nil
}

// Calculate prices one provider service and returns domain errors unmapped.
func (s *QuoteService) Calculate(ctx context.Context, cmd QuoteCommand) (*Quote, error) {
	snap, err := s.snapshots.Snapshot()
	if err != nil {
		return nil, err
	}

	start := s.clock.Now()
	if err := domain.ValidatePackage(cmd.WeightKg, cmd.VolumeCm3, cmd.DeclaredValue); err != nil {
		s.metrics.RecordQuote(cmd.ProviderID, "", errorCode(err), s.clock.Since(start))
		return nil, err
	}
	dest, err := snap.Resolve(cmd.CountryCode, cmd.StateCode)
	if err != nil {
		s.metrics.RecordQuote(cmd.ProviderID, "", errorCode(err), s.clock.Since(start))
		return nil, err
	}

	q, err := s.quoteOn(snap, dest, cmd.ProviderID, cmd.ServiceID, cmd.PackageSpec)
	result := "ok"
	if err != nil {
		result = errorCode(err)
	}
	s.metrics.RecordQuote(cmd.ProviderID, dest.ZoneID, result, s.clock.Since(start))
	return q, err
}

func (s *QuoteService) quoteOn(snap *domain.Snapshot, dest *domain.Destination, providerID, serviceID string, spec PackageSpec) (*Quote, error) {
	rule, err := s.matcher.Match(snap, providerID, serviceID, dest.ZoneID, spec.WeightKg)
	if err != nil {
		return nil, err
	}

	// Match has verified both exist and belong together.
	provider, _ := snap.Provider(providerID)
	service, _ := snap.Service(serviceID)

	if err := domain.CheckProviderLimits(provider, dest, spec.WeightKg, spec.VolumeCm3, spec.WantsInsurance); err != nil {
		return nil, err
	}

	cost, err := domain.Compose(rule, domain.CostInput{
		WeightKg:          spec.WeightKg,
		VolumeCm3:         spec.VolumeCm3,
		DistanceKm:        dest.DistanceKm,
		DistancePrecision: dest.Precision,
		DeclaredValue:     spec.DeclaredValue,
		WantsInsurance:    spec.WantsInsurance,
	})
	if err != nil {
		return nil, err
	}

	q := &Quote{
		Provider:        provider,
		Service:         service,
		Destination:     dest,
		Cost:            cost,
		SnapshotVersion: snap.Version,
		QuotedAt:        s.clock.Now(),
	}
	if spec.Currency != "" {
		display, err := s.converter.ConvertBreakdown(snap, cost, spec.Currency)
		if err != nil {
			return nil, err
		}
		q.Display = display
	}
	return q, nil
}

// ShopRates prices the package with every active provider service, cheapest
// first. The package is validated once up front and an invalid one fails the
// whole request. Offerings the policy rules out (no rate for the zone,
// provider limits, missing exchange rate) are left out.
func (s *QuoteService) ShopRates(ctx context.Context, cmd ShopRatesCommand) ([]QuoteDTO, error) {
	ctx, span := s.tracer.Start(ctx, "QuoteService.ShopRates",
		trace.WithAttributes(attribute.String("shipping.country", cmd.CountryCode)))
	defer span.End()

	snap, err := s.snapshots.Snapshot()
	if err != nil {
		return nil, err
	}

	if err := domain.ValidatePackage(cmd.WeightKg, cmd.VolumeCm3, cmd.DeclaredValue); err != nil {
		span.RecordError(err)
		return nil, MapDomainError(err)
	}
	dest, err := snap.Resolve(cmd.CountryCode, cmd.StateCode)
	if err != nil {
		span.RecordError(err)
		return nil, MapDomainError(err)
	}

	spec := cmd.PackageSpec
	if spec.Currency == "" {
		spec.Currency = s.baseCurrency
	}

	quotes := make([]*Quote, 0, len(snap.Offerings()))
	for _, offering := range snap.Offerings() {
		start := s.clock.Now()
		q, err := s.quoteOn(snap, dest, offering.Provider.ID, offering.Service.ID, spec)
		if err != nil {
			s.metrics.RecordQuote(offering.Provider.ID, dest.ZoneID, errorCode(err), s.clock.Since(start))
			if isKind(err, domain.KindPolicy) {
				s.logger.Debug("Offering skipped",
					"providerId", offering.Provider.ID,
					"serviceId", offering.Service.ID,
					"zoneId", dest.ZoneID,
					"code", errorCode(err),
				)
				continue
			}
			span.RecordError(err)
			return nil, MapDomainError(err)
		}
		s.metrics.RecordQuote(offering.Provider.ID, dest.ZoneID, "ok", s.clock.Since(start))
		quotes = append(quotes, q)
	}

	sort.SliceStable(quotes, func(i, j int) bool {
		a, b := quotes[i], quotes[j]
		if c := a.rankTotal().Total.Cmp(b.rankTotal().Total); c != 0 {
			return c < 0
		}
		if a.Service.TransitDaysMax != b.Service.TransitDaysMax {
			return a.Service.TransitDaysMax < b.Service.TransitDaysMax
		}
		if a.Provider.ID != b.Provider.ID {
			return a.Provider.ID < b.Provider.ID
		}
		return a.Service.ID < b.Service.ID
	})

	dtos := make([]QuoteDTO, 0, len(quotes))
	for _, q := range quotes {
		dtos = append(dtos, *ToQuoteDTO(q))
	}

	s.logger.Event(ctx, "shipping.rates.shopped", map[string]any{
		"country":         dest.CountryCode,
		"zoneId":          dest.ZoneID,
		"offerings":       len(snap.Offerings()),
		"quotes":          len(dtos),
		"snapshotVersion": snap.Version,
	})
	return dtos, nil
}
