package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var (
	fixtureT0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	fixtureT1 = fixtureT0.Add(24 * time.Hour)
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func dp(s string) *decimal.Decimal {
	v := d(s)
	return &v
}

// euGroundRule is the UPS ground rule for Europe with free shipping from 500.
func euGroundRule() *RateRule {
	return &RateRule{
		ID:                    "R-EU-GND",
		ProviderID:            "P-UPS",
		ServiceID:             "S-UPS-GND",
		ZoneID:                "Z-EU",
		WeightMinKg:           d("0"),
		WeightMaxKg:           d("10"),
		BaseCost:              d("5.00"),
		CostPerKg:             d("1.20"),
		CostPerKm:             d("0.0005"),
		CostPerCm3:            d("0"),
		InsuranceRate:         d("0.01"),
		FuelSurchargeRate:     d("0.05"),
		CustomsFee:            d("3.00"),
		FreeShippingThreshold: dp("500"),
		Currency:              "USD",
		UpdatedAt:             fixtureT0,
	}
}

func testReferenceData() ReferenceData {
	rule := func(id, provider, service, zone, min, max string, updated time.Time) RateRule {
		return RateRule{
			ID:                id,
			ProviderID:        provider,
			ServiceID:         service,
			ZoneID:            zone,
			WeightMinKg:       d(min),
			WeightMaxKg:       d(max),
			BaseCost:          d("4.00"),
			CostPerKg:         d("0.50"),
			CostPerKm:         d("0.001"),
			CostPerCm3:        d("0.0001"),
			InsuranceRate:     d("0.02"),
			FuelSurchargeRate: d("0.10"),
			CustomsFee:        d("0"),
			Currency:          "USD",
			UpdatedAt:         updated,
		}
	}

	return ReferenceData{
		Countries: []Country{
			{Code: "US", Name: "United States", Latitude: 39.8283, Longitude: -98.5795, DefaultCurrency: "USD", TaxJurisdictionID: "US", ShippingAllowed: true},
			{Code: "CA", Name: "Canada", Latitude: 56.1304, Longitude: -106.3468, DefaultCurrency: "CAD", TaxJurisdictionID: "CA", ShippingAllowed: true},
			{Code: "DE", Name: "Germany", Latitude: 51.1657, Longitude: 10.4515, DefaultCurrency: "EUR", TaxJurisdictionID: "DE", ShippingAllowed: true},
			{Code: "KP", Name: "North Korea", Latitude: 40.3399, Longitude: 127.5101, DefaultCurrency: "KPW", TaxJurisdictionID: "KP", ShippingAllowed: false},
		},
		States: []State{
			{CountryCode: "US", Code: "CA", Name: "California", Latitude: 36.7783, Longitude: -119.4179, TaxJurisdictionID: "US-CA"},
		},
		Zones: []ShippingZone{
			{ID: "Z-DOM", Name: "Domestic", CountryCodes: []string{"US"}},
			{ID: "Z-NA", Name: "North America", CountryCodes: []string{"CA"}},
			{ID: "Z-EU", Name: "Europe", CountryCodes: []string{"DE"}},
		},
		Providers: []Provider{
			{ID: "P-UPS", Name: "UPS", Code: "UPS", MaxWeightKg: d("70"), SupportsInternational: true, SupportsInsurance: true, Active: true},
			{ID: "P-LOCAL", Name: "Local Courier", Code: "LOCAL", MaxWeightKg: d("30"), MaxVolumeCm3: d("100000"), Active: true},
			{ID: "P-OLD", Name: "Retired Carrier", Code: "OLD", SupportsInternational: true, Active: false},
		},
		Services: []Service{
			{ID: "S-UPS-GND", ProviderID: "P-UPS", Name: "Ground", Code: "GND", TransitDaysMin: 3, TransitDaysMax: 5, Active: true},
			{ID: "S-UPS-AIR", ProviderID: "P-UPS", Name: "Air", Code: "AIR", TransitDaysMin: 1, TransitDaysMax: 2, Active: true},
			{ID: "S-LOCAL-STD", ProviderID: "P-LOCAL", Name: "Standard", Code: "STD", TransitDaysMin: 2, TransitDaysMax: 4, Active: true},
			{ID: "S-OLD-STD", ProviderID: "P-OLD", Name: "Standard", Code: "STD", TransitDaysMin: 5, TransitDaysMax: 9, Active: true},
		},
		RateRules: []RateRule{
			*euGroundRule(),
			rule("R-DOM-GND", "P-UPS", "S-UPS-GND", "Z-DOM", "0", "50", fixtureT0),
			rule("R-NA-GND", "P-UPS", "S-UPS-GND", "Z-NA", "0", "50", fixtureT0),
			rule("R-DOM-LOCAL", "P-LOCAL", "S-LOCAL-STD", "Z-DOM", "0", "30", fixtureT0),
			rule("R-OLD", "P-OLD", "S-OLD-STD", "Z-DOM", "0", "30", fixtureT0),
			// Overlapping windows on the air service.
			rule("R-AIR-WIDE-OLD", "P-UPS", "S-UPS-AIR", "Z-EU", "0", "10", fixtureT0),
			rule("R-AIR-WIDE-NEW", "P-UPS", "S-UPS-AIR", "Z-EU", "0", "10", fixtureT1),
			rule("R-AIR-NARROW", "P-UPS", "S-UPS-AIR", "Z-EU", "1", "5", fixtureT0),
		},
	}
}

func testRates(updated time.Time) []ExchangeRate {
	return []ExchangeRate{
		{From: "USD", To: "EUR", Rate: d("0.9"), UpdatedAt: updated},
		{From: "EUR", To: "USD", Rate: d("1.1"), UpdatedAt: updated},
		{From: "USD", To: "CAD", Rate: d("1.35"), UpdatedAt: updated},
	}
}

var testOrigin = Origin{CountryCode: "US", Latitude: 40.7128, Longitude: -74.0060}

func testSnapshot(t *testing.T) *Snapshot {
	t.Helper()
	snap, err := BuildSnapshot(testReferenceData(), testRates(fixtureT0), testOrigin, 1, fixtureT0, fixtureT0)
	require.NoError(t, err)
	return snap
}
