package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHaversineKm(t *testing.T) {
	tests := []struct {
		name                   string
		lat1, lon1, lat2, lon2 float64
		want, tolerance        float64
	}{
		{"same point", 40.7128, -74.0060, 40.7128, -74.0060, 0, 1e-9},
		{"new york to london", 40.7128, -74.0060, 51.5074, -0.1278, 5570, 10},
		{"quarter meridian", 0, 0, 90, 0, EarthRadiusKm * 3.141592653589793 / 2, 1e-6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HaversineKm(tt.lat1, tt.lon1, tt.lat2, tt.lon2)
			assert.InDelta(t, tt.want, got, tt.tolerance)
			assert.InDelta(t, got, HaversineKm(tt.lat2, tt.lon2, tt.lat1, tt.lon1), 1e-9, "symmetric")
		})
	}
}

func TestResolve(t *testing.T) {
	snap := testSnapshot(t)

	tests := []struct {
		name          string
		country       string
		state         string
		wantZone      string
		wantPrecision DistancePrecision
		wantState     string
		wantTax       string
		wantCurrency  string
		international bool
	}{
		{"domestic country", "US", "", "Z-DOM", PrecisionCountryCentroid, "", "US", "USD", false},
		{"known state", "us", "ca", "Z-DOM", PrecisionStateCentroid, "CA", "US-CA", "USD", false},
		{"unknown state falls back to country", "US", "ZZ", "Z-DOM", PrecisionCountryCentroid, "", "US", "USD", false},
		{"international, normalised", " de ", "", "Z-EU", PrecisionCountryCentroid, "", "DE", "EUR", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dest, err := snap.Resolve(tt.country, tt.state)
			require.NoError(t, err)

			assert.Equal(t, tt.wantZone, dest.ZoneID)
			assert.Equal(t, tt.wantPrecision, dest.Precision)
			assert.Equal(t, tt.wantState, dest.StateCode)
			assert.Equal(t, tt.wantTax, dest.TaxJurisdictionID)
			assert.Equal(t, tt.wantCurrency, dest.Currency)
			assert.Equal(t, tt.international, dest.International)
			assert.True(t, dest.DistanceKm.IsPositive())
			assert.LessOrEqual(t, int(-dest.DistanceKm.Exponent()), 3, "distance carries at most metre precision")
		})
	}
}

func TestResolve_StateMovesReferencePoint(t *testing.T) {
	snap := testSnapshot(t)

	country, err := snap.Resolve("US", "")
	require.NoError(t, err)
	state, err := snap.Resolve("US", "CA")
	require.NoError(t, err)

	assert.False(t, country.DistanceKm.Equal(state.DistanceKm))
}

func TestResolve_UnknownCountry(t *testing.T) {
	snap := testSnapshot(t)

	dest, err := snap.Resolve("XX", "")
	assert.Nil(t, dest)
	assert.ErrorIs(t, err, ErrUnknownCountry)

	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindInput, kind)
}

func TestResolve_ShippingNotAllowed(t *testing.T) {
	snap := testSnapshot(t)

	dest, err := snap.Resolve("KP", "")
	assert.Nil(t, dest)
	assert.ErrorIs(t, err, ErrShippingNotAllowed)
	assert.Equal(t, "SHIPPING_NOT_ALLOWED", CodeOf(err))
}
