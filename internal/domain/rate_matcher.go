package domain

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// TieBreakPolicy names a rule selection policy for overlapping windows.
type TieBreakPolicy string

const (
	TieBreakNarrowest TieBreakPolicy = "narrowest"
	TieBreakNewest    TieBreakPolicy = "newest"
	TieBreakReject    TieBreakPolicy = "reject"
)

// TieBreaker picks one rule out of several that all cover the same weight.
// candidates is never empty.
type TieBreaker interface {
	Policy() TieBreakPolicy
	Select(candidates []*RateRule) (*RateRule, error)
}

// NarrowestWindowThenNewest prefers the narrowest weight window, then the most
// recently updated rule, then the lowest rule id.
type NarrowestWindowThenNewest struct{}

func (NarrowestWindowThenNewest) Policy() TieBreakPolicy { return TieBreakNarrowest }

func (NarrowestWindowThenNewest) Select(candidates []*RateRule) (*RateRule, error) {
	return pick(candidates, func(a, b *RateRule) bool {
		if c := a.Width().Cmp(b.Width()); c != 0 {
			return c < 0
		}
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.After(b.UpdatedAt)
		}
		return a.ID < b.ID
	}), nil
}

// NewestFirst prefers the most recently updated rule, then the narrowest window.
type NewestFirst struct{}

func (NewestFirst) Policy() TieBreakPolicy { return TieBreakNewest }

func (NewestFirst) Select(candidates []*RateRule) (*RateRule, error) {
	return pick(candidates, func(a, b *RateRule) bool {
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.After(b.UpdatedAt)
		}
		if c := a.Width().Cmp(b.Width()); c != 0 {
			return c < 0
		}
		return a.ID < b.ID
	}), nil
}

// RejectOverlap refuses to choose.
type RejectOverlap struct{}

func (RejectOverlap) Policy() TieBreakPolicy { return TieBreakReject }

func (RejectOverlap) Select(candidates []*RateRule) (*RateRule, error) {
	if len(candidates) > 1 {
		ids := make([]string, len(candidates))
		for i, c := range candidates {
			ids[i] = c.ID
		}
		sort.Strings(ids)
		return nil, fmt.Errorf("%w: rules %v", ErrAmbiguousRate, ids)
	}
	return candidates[0], nil
}

func pick(candidates []*RateRule, less func(a, b *RateRule) bool) *RateRule {
	best := candidates[0]
	for _, c := range candidates[1:] {
		if less(c, best) {
			best = c
		}
	}
	return best
}

// TieBreakerFor returns the tie breaker for a configured policy name.
func TieBreakerFor(policy TieBreakPolicy) (TieBreaker, error) {
	switch policy {
	case TieBreakNarrowest, "":
		return NarrowestWindowThenNewest{}, nil
	case TieBreakNewest:
		return NewestFirst{}, nil
	case TieBreakReject:
		return RejectOverlap{}, nil
	default:
		return nil, fmt.Errorf("unknown tie-break policy %q", policy)
	}
}

// RateMatcher selects the rate rule for a shipment.
type RateMatcher struct {
	tieBreaker TieBreaker
}

// NewRateMatcher creates a matcher. A nil tie breaker means NarrowestWindowThenNewest.
func NewRateMatcher(tb TieBreaker) *RateMatcher {
	if tb == nil {
		tb = NarrowestWindowThenNewest{}
	}
	return &RateMatcher{tieBreaker: tb}
}

// Policy returns the configured tie-break policy.
func (m *RateMatcher) Policy() TieBreakPolicy { return m.tieBreaker.Policy() }

// Match returns the single rule that prices weightKg for the given provider,
// service and zone.
func (m *RateMatcher) Match(snap *Snapshot, providerID, serviceID, zoneID string, weightKg decimal.Decimal) (*RateRule, error) {
	if !weightKg.IsPositive() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidWeight, weightKg)
	}

	provider, ok := snap.providers[providerID]
	if !ok {
		return nil, fmt.Errorf("%w: provider %s", ErrUnknownProviderOrService, providerID)
	}
	service, ok := snap.services[serviceID]
	if !ok || service.ProviderID != providerID {
		return nil, fmt.Errorf("%w: service %s of provider %s", ErrUnknownProviderOrService, serviceID, providerID)
	}
	if !provider.Active || !service.Active {
		return nil, fmt.Errorf("%w: %s/%s", ErrProviderServiceInactive, providerID, serviceID)
	}

	var candidates []*RateRule
	for _, r := range snap.rulesFor(providerID, serviceID, zoneID) {
		if r.Covers(weightKg) {
			candidates = append(candidates, r)
		}
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: %s/%s zone %s weight %skg", ErrNoApplicableRate, providerID, serviceID, zoneID, weightKg)
	}
	if len(candidates) == 1 {
		return candidates[0], nil
	}
	return m.tieBreaker.Select(candidates)
}

// RuleOverlap reports two rules of the same provider, service and zone whose
// weight windows intersect.
type RuleOverlap struct {
	ProviderID string `json:"providerId"`
	ServiceID  string `json:"serviceId"`
	ZoneID     string `json:"zoneId"`
	RuleA      string `json:"ruleA"`
	RuleB      string `json:"ruleB"`
	OverlapMin string `json:"overlapMinKg"`
	OverlapMax string `json:"overlapMaxKg"`
}

// ValidateRateRules finds every pair of overlapping weight windows. Overlap is
// a data-entry warning, not a load failure.
func ValidateRateRules(rules []RateRule) []RuleOverlap {
	groups := make(map[ruleKey][]RateRule)
	var keys []ruleKey
	for _, r := range rules {
		k := ruleKey{r.ProviderID, r.ServiceID, r.ZoneID}
		if _, seen := groups[k]; !seen {
			keys = append(keys, k)
		}
		groups[k] = append(groups[k], r)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.provider != b.provider {
			return a.provider < b.provider
		}
		if a.service != b.service {
			return a.service < b.service
		}
		return a.zone < b.zone
	})

	var overlaps []RuleOverlap
	for _, k := range keys {
		group := groups[k]
		sort.Slice(group, func(i, j int) bool {
			if c := group[i].WeightMinKg.Cmp(group[j].WeightMinKg); c != 0 {
				return c < 0
			}
			return group[i].ID < group[j].ID
		})
		for i := 0; i < len(group); i++ {
			for j := i + 1; j < len(group); j++ {
				// Sorted by min: once b starts at or after a's max, later rules cannot overlap a.
				if group[j].WeightMinKg.GreaterThanOrEqual(group[i].WeightMaxKg) {
					break
				}
				lo := decimal.Max(group[i].WeightMinKg, group[j].WeightMinKg)
				hi := decimal.Min(group[i].WeightMaxKg, group[j].WeightMaxKg)
				overlaps = append(overlaps, RuleOverlap{
					ProviderID: k.provider,
					ServiceID:  k.service,
					ZoneID:     k.zone,
					RuleA:      group[i].ID,
					RuleB:      group[j].ID,
					OverlapMin: lo.String(),
					OverlapMax: hi.String(),
				})
			}
		}
	}
	return overlaps
}
