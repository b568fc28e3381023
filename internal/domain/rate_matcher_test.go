package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateMatcher_Match(t *testing.T) {
	snap := testSnapshot(t)
	matcher := NewRateMatcher(nil)

	tests := []struct {
		name     string
		provider string
		service  string
		zone     string
		weight   string
		wantRule string
		wantErr  error
	}{
		{name: "single candidate", provider: "P-UPS", service: "S-UPS-GND", zone: "Z-EU", weight: "2.5", wantRule: "R-EU-GND"},
		{name: "lower bound inclusive", provider: "P-UPS", service: "S-UPS-GND", zone: "Z-EU", weight: "0.001", wantRule: "R-EU-GND"},
		{name: "upper bound exclusive", provider: "P-UPS", service: "S-UPS-GND", zone: "Z-EU", weight: "10", wantErr: ErrNoApplicableRate},
		{name: "no rule for zone", provider: "P-LOCAL", service: "S-LOCAL-STD", zone: "Z-EU", weight: "1", wantErr: ErrNoApplicableRate},
		{name: "inactive provider", provider: "P-OLD", service: "S-OLD-STD", zone: "Z-DOM", weight: "1", wantErr: ErrProviderServiceInactive},
		{name: "unknown provider", provider: "P-NONE", service: "S-UPS-GND", zone: "Z-EU", weight: "1", wantErr: ErrUnknownProviderOrService},
		{name: "service of another provider", provider: "P-LOCAL", service: "S-UPS-GND", zone: "Z-EU", weight: "1", wantErr: ErrUnknownProviderOrService},
		{name: "zero weight", provider: "P-UPS", service: "S-UPS-GND", zone: "Z-EU", weight: "0", wantErr: ErrInvalidWeight},
		{name: "overlap picks narrowest", provider: "P-UPS", service: "S-UPS-AIR", zone: "Z-EU", weight: "2", wantRule: "R-AIR-NARROW"},
		{name: "overlap outside narrow window picks newest", provider: "P-UPS", service: "S-UPS-AIR", zone: "Z-EU", weight: "7", wantRule: "R-AIR-WIDE-NEW"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule, err := matcher.Match(snap, tt.provider, tt.service, tt.zone, d(tt.weight))
			if tt.wantErr != nil {
				assert.Nil(t, rule)
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantRule, rule.ID)
		})
	}
}

func TestRateMatcher_InactiveService(t *testing.T) {
	data := testReferenceData()
	data.Services[0].Active = false
	snap, err := BuildSnapshot(data, nil, testOrigin, 1, fixtureT0, fixtureT0)
	require.NoError(t, err)

	_, err = NewRateMatcher(nil).Match(snap, "P-UPS", "S-UPS-GND", "Z-EU", d("1"))
	assert.ErrorIs(t, err, ErrProviderServiceInactive)
}

func TestTieBreakers(t *testing.T) {
	snap := testSnapshot(t)

	tests := []struct {
		policy   TieBreakPolicy
		wantRule string
		wantErr  error
	}{
		{TieBreakNarrowest, "R-AIR-NARROW", nil},
		{TieBreakNewest, "R-AIR-WIDE-NEW", nil},
		{TieBreakReject, "", ErrAmbiguousRate},
	}

	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			tb, err := TieBreakerFor(tt.policy)
			require.NoError(t, err)
			matcher := NewRateMatcher(tb)
			assert.Equal(t, tt.policy, matcher.Policy())

			rule, err := matcher.Match(snap, "P-UPS", "S-UPS-AIR", "Z-EU", d("2"))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantRule, rule.ID)
		})
	}
}

func TestTieBreakers_Deterministic(t *testing.T) {
	a := &RateRule{ID: "B", WeightMinKg: d("0"), WeightMaxKg: d("5"), UpdatedAt: fixtureT0}
	b := &RateRule{ID: "A", WeightMinKg: d("1"), WeightMaxKg: d("6"), UpdatedAt: fixtureT0}

	for _, tb := range []TieBreaker{NarrowestWindowThenNewest{}, NewestFirst{}} {
		first, err := tb.Select([]*RateRule{a, b})
		require.NoError(t, err)
		second, err := tb.Select([]*RateRule{b, a})
		require.NoError(t, err)
		assert.Equal(t, "A", first.ID, "lowest id wins a full tie")
		assert.Equal(t, first, second, "order of candidates does not matter")
	}
}

func TestTieBreakerFor_Unknown(t *testing.T) {
	_, err := TieBreakerFor("cheapest")
	assert.Error(t, err)
}

func TestValidateRateRules(t *testing.T) {
	rules := []RateRule{
		{ID: "a", ProviderID: "p", ServiceID: "s", ZoneID: "z", WeightMinKg: d("0"), WeightMaxKg: d("5")},
		{ID: "b", ProviderID: "p", ServiceID: "s", ZoneID: "z", WeightMinKg: d("5"), WeightMaxKg: d("10")},
		{ID: "c", ProviderID: "p", ServiceID: "s", ZoneID: "z", WeightMinKg: d("8"), WeightMaxKg: d("20")},
		{ID: "d", ProviderID: "p", ServiceID: "s", ZoneID: "other", WeightMinKg: d("0"), WeightMaxKg: d("20")},
	}

	overlaps := ValidateRateRules(rules)

	require.Len(t, overlaps, 1, "adjacent half-open windows do not overlap")
	assert.Equal(t, "b", overlaps[0].RuleA)
	assert.Equal(t, "c", overlaps[0].RuleB)
	assert.Equal(t, "8", overlaps[0].OverlapMin)
	assert.Equal(t, "10", overlaps[0].OverlapMax)
}
