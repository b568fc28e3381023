package domain

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// EarthRadiusKm is the mean Earth radius used for great-circle distance.
const EarthRadiusKm = 6371.0

// DistancePrecision records which reference point a distance was measured to.
// Distances are centroid approximations, never street-address distances.
type DistancePrecision string

const (
	PrecisionCountryCentroid DistancePrecision = "country_centroid"
	PrecisionStateCentroid   DistancePrecision = "state_centroid"
)

// Destination is the resolved geography of a shipment destination.
type Destination struct {
	CountryCode       string            `json:"countryCode"`
	StateCode         string            `json:"stateCode,omitempty"`
	ZoneID            string            `json:"zoneId"`
	Latitude          float64           `json:"latitude"`
	Longitude         float64           `json:"longitude"`
	Currency          string            `json:"currency"`
	TaxJurisdictionID string            `json:"taxJurisdictionId"`
	DistanceKm        decimal.Decimal   `json:"distanceKm"`
	Precision         DistancePrecision `json:"precision"`
	International     bool              `json:"international"`
}

// HaversineKm returns the great-circle distance between two points in km.
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }

	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusKm * c
}

// Resolve maps a country (and optional state) to its zone, reference point,
// currency and tax jurisdiction, and measures the distance from the origin.
// An unknown state falls back to the country reference point.
func (s *Snapshot) Resolve(countryCode, stateCode string) (*Destination, error) {
	code := NormalizeCode(countryCode)
	country, ok := s.countries[code]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCountry, countryCode)
	}
	if !country.ShippingAllowed {
		return nil, fmt.Errorf("%w: %s", ErrShippingNotAllowed, code)
	}

	dest := &Destination{
		CountryCode:       code,
		ZoneID:            s.zoneByCountry[code],
		Latitude:          country.Latitude,
		Longitude:         country.Longitude,
		Currency:          country.DefaultCurrency,
		TaxJurisdictionID: country.TaxJurisdictionID,
		Precision:         PrecisionCountryCentroid,
		International:     s.origin.CountryCode != "" && code != NormalizeCode(s.origin.CountryCode),
	}

	if st := NormalizeCode(stateCode); st != "" {
		if state, ok := s.states[stateKey{code, st}]; ok {
			dest.StateCode = st
			dest.Latitude = state.Latitude
			dest.Longitude = state.Longitude
			dest.Precision = PrecisionStateCentroid
			if state.TaxJurisdictionID != "" {
				dest.TaxJurisdictionID = state.TaxJurisdictionID
			}
		}
	}

	km := HaversineKm(s.origin.Latitude, s.origin.Longitude, dest.Latitude, dest.Longitude)
	dest.DistanceKm = decimal.NewFromFloat(km).Round(3)
	return dest, nil
}
