package application

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/zoobzio/clockz"

	"github.com/wms-platform/shipping-service/internal/domain"
	"github.com/wms-platform/shipping-service/internal/infrastructure/carriers"
	"github.com/wms-platform/shipping-service/internal/infrastructure/memory"
	"github.com/wms-platform/shipping-service/pkg/logging"
	"github.com/wms-platform/shipping-service/pkg/metrics"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var testOrigin = domain.Origin{CountryCode: "US", Latitude: 40.7128, Longitude: -74.0060}

// stubSource is an in-memory ReferenceSource whose contents and failures
// tests control.
type stubSource struct {
	mu        sync.Mutex
	data      domain.ReferenceData
	rates     []domain.ExchangeRate
	refErr    error
	ratesErr  error
	refLoads  int
	rateLoads int
}

func (s *stubSource) LoadReference(ctx context.Context) (domain.ReferenceData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refLoads++
	return s.data, s.refErr
}

func (s *stubSource) LoadExchangeRates(ctx context.Context) ([]domain.ExchangeRate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rateLoads++
	return s.rates, s.ratesErr
}

func (s *stubSource) loads() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refLoads, s.rateLoads
}

func (s *stubSource) setRates(rates []domain.ExchangeRate, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rates, s.ratesErr = rates, err
}

func (s *stubSource) setReference(data domain.ReferenceData, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data, s.refErr = data, err
}

func rule(id, provider, service, zone, base, perKg, fuel, insurance, customs string) domain.RateRule {
	return domain.RateRule{
		ID:                id,
		ProviderID:        provider,
		ServiceID:         service,
		ZoneID:            zone,
		WeightMinKg:       d("0"),
		WeightMaxKg:       d("30"),
		BaseCost:          d(base),
		CostPerKg:         d(perKg),
		CostPerKm:         d("0"),
		CostPerCm3:        d("0"),
		InsuranceRate:     d(insurance),
		FuelSurchargeRate: d(fuel),
		CustomsFee:        d(customs),
		Currency:          "USD",
		UpdatedAt:         time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func testReferenceData() domain.ReferenceData {
	threshold := d("500")
	euGround := rule("R-EU-GND", "P-UPS", "S-UPS-GND", "Z-EU", "5.00", "1.20", "0.05", "0.01", "3.00")
	euGround.WeightMaxKg = d("10")
	euGround.FreeShippingThreshold = &threshold

	return domain.ReferenceData{
		Countries: []domain.Country{
			{Code: "US", Name: "United States", Latitude: 39.8283, Longitude: -98.5795, DefaultCurrency: "USD", TaxJurisdictionID: "US", ShippingAllowed: true},
			{Code: "CA", Name: "Canada", Latitude: 56.1304, Longitude: -106.3468, DefaultCurrency: "CAD", TaxJurisdictionID: "CA", ShippingAllowed: true},
			{Code: "DE", Name: "Germany", Latitude: 51.1657, Longitude: 10.4515, DefaultCurrency: "EUR", TaxJurisdictionID: "DE", ShippingAllowed: true},
			{Code: "KP", Name: "North Korea", Latitude: 40.3399, Longitude: 127.5101, DefaultCurrency: "KPW", TaxJurisdictionID: "KP", ShippingAllowed: false},
		},
		States: []domain.State{
			{CountryCode: "US", Code: "CA", Name: "California", Latitude: 36.7783, Longitude: -119.4179, TaxJurisdictionID: "US-CA"},
		},
		Zones: []domain.ShippingZone{
			{ID: "Z-DOM", Name: "Domestic", CountryCodes: []string{"US"}},
			{ID: "Z-NA", Name: "North America", CountryCodes: []string{"CA"}},
			{ID: "Z-EU", Name: "Europe", CountryCodes: []string{"DE"}},
		},
		Providers: []domain.Provider{
			{ID: "P-UPS", Name: "UPS", Code: "UPS", MaxWeightKg: d("70"), SupportsInternational: true, SupportsInsurance: true, Active: true},
			{ID: "P-LOCAL", Name: "Local Courier", Code: "LOCAL", MaxWeightKg: d("30"), Active: true},
		},
		Services: []domain.Service{
			{ID: "S-UPS-GND", ProviderID: "P-UPS", Name: "UPS Ground", Code: "GND", TransitDaysMin: 3, TransitDaysMax: 7, Active: true},
			{ID: "S-UPS-EXP", ProviderID: "P-UPS", Name: "UPS Express", Code: "EXP", TransitDaysMin: 1, TransitDaysMax: 2, Active: true},
			{ID: "S-LOCAL-STD", ProviderID: "P-LOCAL", Name: "Local Standard", Code: "STD", TransitDaysMin: 1, TransitDaysMax: 3, Active: true},
		},
		RateRules: []domain.RateRule{
			euGround,
			rule("R-EU-EXP", "P-UPS", "S-UPS-EXP", "Z-EU", "20.00", "2.00", "0.05", "0.01", "3.00"),
			rule("R-DOM-GND", "P-UPS", "S-UPS-GND", "Z-DOM", "6.00", "1.00", "0.05", "0.01", "0"),
			rule("R-DOM-LOCAL", "P-LOCAL", "S-LOCAL-STD", "Z-DOM", "3.00", "0.50", "0", "0", "0"),
		},
	}
}

func testRates(at time.Time) []domain.ExchangeRate {
	return []domain.ExchangeRate{
		{From: "USD", To: "EUR", Rate: d("0.9"), UpdatedAt: at},
		{From: "EUR", To: "USD", Rate: d("1.1"), UpdatedAt: at},
	}
}

func newStubSource() *stubSource {
	return &stubSource{data: testReferenceData(), rates: testRates(time.Now())}
}

func testMetrics() *metrics.Metrics {
	return metrics.New(metrics.DefaultConfig("shipping-test"))
}

func newTestReferenceService(t *testing.T, src *stubSource, clock clockz.Clock) *ReferenceService {
	t.Helper()
	svc := NewReferenceService(src, testOrigin, clock, logging.NewNop(), testMetrics())
	_, err := svc.Refresh(context.Background())
	require.NoError(t, err)
	return svc
}

func newTestQuoteService(t *testing.T) *QuoteService {
	t.Helper()
	ref := newTestReferenceService(t, newStubSource(), nil)
	return NewQuoteService(ref, nil, nil, "USD", nil, logging.NewNop(), testMetrics())
}

type shipmentFixture struct {
	service *ShipmentService
	repo    *memory.ShipmentRepository
	locker  *memory.KeyedLocker
}

func newShipmentFixture(t *testing.T, trackers domain.TrackingNumberGenerator) *shipmentFixture {
	t.Helper()
	if trackers == nil {
		trackers = carriers.NewRegistry("A1B2C3")
	}
	repo := memory.NewShipmentRepository()
	locker := memory.NewKeyedLocker()
	svc := NewShipmentService(repo, newTestQuoteService(t), trackers, locker, nil, logging.NewNop(), testMetrics())
	return &shipmentFixture{service: svc, repo: repo, locker: locker}
}

// euParcel is 2.5kg, 1000cm3, declared 100, insured, to Germany.
func euParcel() PackageSpec {
	return PackageSpec{
		CountryCode:    "DE",
		WeightKg:       d("2.5"),
		VolumeCm3:      d("1000"),
		DeclaredValue:  d("100"),
		WantsInsurance: true,
	}
}

func groundQuote() QuoteCommand {
	return QuoteCommand{PackageSpec: euParcel(), ProviderID: "P-UPS", ServiceID: "S-UPS-GND"}
}
