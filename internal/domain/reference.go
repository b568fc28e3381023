package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Country is immutable reference data for a destination country.
type Country struct {
	Code              string  `json:"code"`
	Name              string  `json:"name"`
	Latitude          float64 `json:"latitude"`
	Longitude         float64 `json:"longitude"`
	DefaultCurrency   string  `json:"defaultCurrency"`
	TaxJurisdictionID string  `json:"taxJurisdictionId"`
	ShippingAllowed   bool    `json:"shippingAllowed"`
}

// State is an optional finer reference point inside a country.
type State struct {
	CountryCode       string  `json:"countryCode"`
	Code              string  `json:"code"`
	Name              string  `json:"name"`
	Latitude          float64 `json:"latitude"`
	Longitude         float64 `json:"longitude"`
	TaxJurisdictionID string  `json:"taxJurisdictionId,omitempty"`
}

// ShippingZone is a named set of countries sharing a pricing tier.
type ShippingZone struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	CountryCodes []string `json:"countryCodes"`
}

// Provider is a carrier. Zero limits mean unlimited.
type Provider struct {
	ID                    string          `json:"id"`
	Name                  string          `json:"name"`
	Code                  string          `json:"code"`
	MaxWeightKg           decimal.Decimal `json:"maxWeightKg"`
	MaxVolumeCm3          decimal.Decimal `json:"maxVolumeCm3"`
	SupportsInternational bool            `json:"supportsInternational"`
	SupportsInsurance     bool            `json:"supportsInsurance"`
	Active                bool            `json:"active"`
}

// Service is a delivery product of one provider.
type Service struct {
	ID             string `json:"id"`
	ProviderID     string `json:"providerId"`
	Name           string `json:"name"`
	Code           string `json:"code"`
	TransitDaysMin int    `json:"transitDaysMin"`
	TransitDaysMax int    `json:"transitDaysMax"`
	Active         bool   `json:"active"`
}

// RateRule prices one (provider, service, zone) for weights in [WeightMinKg, WeightMaxKg).
type RateRule struct {
	ID                    string
	ProviderID            string
	ServiceID             string
	ZoneID                string
	WeightMinKg           decimal.Decimal
	WeightMaxKg           decimal.Decimal
	BaseCost              decimal.Decimal
	CostPerKg             decimal.Decimal
	CostPerKm             decimal.Decimal
	CostPerCm3            decimal.Decimal
	InsuranceRate         decimal.Decimal
	FuelSurchargeRate     decimal.Decimal
	CustomsFee            decimal.Decimal
	FreeShippingThreshold *decimal.Decimal
	Currency              string
	UpdatedAt             time.Time
}

// Covers reports whether weightKg falls in the rule's half-open window.
func (r *RateRule) Covers(weightKg decimal.Decimal) bool {
	return weightKg.GreaterThanOrEqual(r.WeightMinKg) && weightKg.LessThan(r.WeightMaxKg)
}

// Width is the size of the weight window.
func (r *RateRule) Width() decimal.Decimal {
	return r.WeightMaxKg.Sub(r.WeightMinKg)
}

// ExchangeRate converts From into To. Rates are directional.
type ExchangeRate struct {
	From      string          `json:"from"`
	To        string          `json:"to"`
	Rate      decimal.Decimal `json:"rate"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// ReferenceData is the raw table set loaded from a reference source.
type ReferenceData struct {
	Countries []Country
	States    []State
	Zones     []ShippingZone
	Providers []Provider
	Services  []Service
	RateRules []RateRule
}

// Origin is the merchant's shipping origin.
type Origin struct {
	CountryCode string
	Latitude    float64
	Longitude   float64
}

type stateKey struct{ country, state string }

type ruleKey struct{ provider, service, zone string }

type currencyPair struct{ from, to string }

// Offering is an active provider/service pair.
type Offering struct {
	Provider *Provider
	Service  *Service
}

// Snapshot is an immutable, indexed view of the reference data and exchange
// rates. It is never mutated after BuildSnapshot returns; refreshes build a
// new one and swap the pointer.
type Snapshot struct {
	Version       int64
	LoadedAt      time.Time
	RatesLoadedAt time.Time

	origin        Origin
	data          ReferenceData
	countries     map[string]*Country
	states        map[stateKey]*State
	zones         map[string]*ShippingZone
	zoneByCountry map[string]string
	providers     map[string]*Provider
	services      map[string]*Service
	rules         map[ruleKey][]*RateRule
	offerings     []Offering
	overlaps      []RuleOverlap

	rates      map[currencyPair]ExchangeRate
	rateList   []ExchangeRate
	currencies []string
}

// NormalizeCode trims and upper-cases a country, state or currency code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func invalidRef(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidReferenceData, fmt.Sprintf(format, args...))
}

// BuildSnapshot validates data and rates and indexes them. Overlapping rate
// windows are not an error; they are reported by Overlaps.
func BuildSnapshot(data ReferenceData, rates []ExchangeRate, origin Origin, version int64, loadedAt, ratesLoadedAt time.Time) (*Snapshot, error) {
	s := &Snapshot{
		Version:       version,
		LoadedAt:      loadedAt,
		RatesLoadedAt: ratesLoadedAt,
		origin:        origin,
		data:          data,
		countries:     make(map[string]*Country, len(data.Countries)),
		states:        make(map[stateKey]*State, len(data.States)),
		zones:         make(map[string]*ShippingZone, len(data.Zones)),
		zoneByCountry: make(map[string]string, len(data.Countries)),
		providers:     make(map[string]*Provider, len(data.Providers)),
		services:      make(map[string]*Service, len(data.Services)),
		rules:         make(map[ruleKey][]*RateRule),
	}

	for i := range data.Countries {
		c := data.Countries[i]
		c.Code = NormalizeCode(c.Code)
		c.DefaultCurrency = NormalizeCode(c.DefaultCurrency)
		if len(c.Code) != 2 {
			return nil, invalidRef("country code %q", c.Code)
		}
		if _, dup := s.countries[c.Code]; dup {
			return nil, invalidRef("duplicate country %s", c.Code)
		}
		if !validCoordinates(c.Latitude, c.Longitude) {
			return nil, invalidRef("country %s has invalid coordinates", c.Code)
		}
		s.countries[c.Code] = &c
	}

	for i := range data.States {
		st := data.States[i]
		st.CountryCode = NormalizeCode(st.CountryCode)
		st.Code = NormalizeCode(st.Code)
		if _, ok := s.countries[st.CountryCode]; !ok {
			return nil, invalidRef("state %s references unknown country %s", st.Code, st.CountryCode)
		}
		if !validCoordinates(st.Latitude, st.Longitude) {
			return nil, invalidRef("state %s-%s has invalid coordinates", st.CountryCode, st.Code)
		}
		s.states[stateKey{st.CountryCode, st.Code}] = &st
	}

	zoneByCountry, err := ValidateZonePartition(data.Countries, data.Zones)
	if err != nil {
		return nil, err
	}
	s.zoneByCountry = zoneByCountry
	for i := range data.Zones {
		z := data.Zones[i]
		s.zones[z.ID] = &z
	}

	for i := range data.Providers {
		p := data.Providers[i]
		if p.ID == "" {
			return nil, invalidRef("provider without id")
		}
		if _, dup := s.providers[p.ID]; dup {
			return nil, invalidRef("duplicate provider %s", p.ID)
		}
		s.providers[p.ID] = &p
	}

	for i := range data.Services {
		svc := data.Services[i]
		if _, ok := s.providers[svc.ProviderID]; !ok {
			return nil, invalidRef("service %s references unknown provider %s", svc.ID, svc.ProviderID)
		}
		if svc.TransitDaysMin < 0 || svc.TransitDaysMin > svc.TransitDaysMax {
			return nil, invalidRef("service %s transit days %d..%d", svc.ID, svc.TransitDaysMin, svc.TransitDaysMax)
		}
		if _, dup := s.services[svc.ID]; dup {
			return nil, invalidRef("duplicate service %s", svc.ID)
		}
		s.services[svc.ID] = &svc
	}

	ruleIDs := make(map[string]bool, len(data.RateRules))
	for i := range data.RateRules {
		r := data.RateRules[i]
		r.Currency = NormalizeCode(r.Currency)
		if err := s.validateRule(&r); err != nil {
			return nil, err
		}
		if ruleIDs[r.ID] {
			return nil, invalidRef("duplicate rate rule %s", r.ID)
		}
		ruleIDs[r.ID] = true
		key := ruleKey{r.ProviderID, r.ServiceID, r.ZoneID}
		s.rules[key] = append(s.rules[key], &r)
	}

	for _, svc := range s.services {
		p := s.providers[svc.ProviderID]
		if p.Active && svc.Active {
			s.offerings = append(s.offerings, Offering{Provider: p, Service: svc})
		}
	}
	sort.Slice(s.offerings, func(i, j int) bool {
		if s.offerings[i].Provider.ID != s.offerings[j].Provider.ID {
			return s.offerings[i].Provider.ID < s.offerings[j].Provider.ID
		}
		return s.offerings[i].Service.ID < s.offerings[j].Service.ID
	})

	s.overlaps = ValidateRateRules(data.RateRules)

	if err := s.setRates(rates); err != nil {
		return nil, err
	}
	return s, nil
}

// WithRates returns a new snapshot sharing this one's reference tables with
// a fresh exchange rate table.
func (s *Snapshot) WithRates(rates []ExchangeRate, version int64, ratesLoadedAt time.Time) (*Snapshot, error) {
	next := *s
	next.Version = version
	next.RatesLoadedAt = ratesLoadedAt
	if err := next.setRates(rates); err != nil {
		return nil, err
	}
	return &next, nil
}

func (s *Snapshot) setRates(rates []ExchangeRate) error {
	table := make(map[currencyPair]ExchangeRate, len(rates))
	list := make([]ExchangeRate, 0, len(rates))
	for _, r := range rates {
		r.From = NormalizeCode(r.From)
		r.To = NormalizeCode(r.To)
		if len(r.From) != 3 || len(r.To) != 3 || r.From == r.To {
			return invalidRef("exchange rate %s->%s", r.From, r.To)
		}
		if !r.Rate.IsPositive() {
			return invalidRef("exchange rate %s->%s must be positive", r.From, r.To)
		}
		table[currencyPair{r.From, r.To}] = r
		list = append(list, r)
	}
	s.rates = table
	s.rateList = list
	s.currencies = s.collectCurrencies()
	return nil
}

func (s *Snapshot) collectCurrencies() []string {
	seen := make(map[string]bool)
	for _, c := range s.countries {
		if c.DefaultCurrency != "" {
			seen[c.DefaultCurrency] = true
		}
	}
	for _, rs := range s.rules {
		for _, r := range rs {
			seen[r.Currency] = true
		}
	}
	for pair := range s.rates {
		seen[pair.from] = true
		seen[pair.to] = true
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

func (s *Snapshot) validateRule(r *RateRule) error {
	if r.ID == "" {
		return invalidRef("rate rule without id")
	}
	if _, ok := s.providers[r.ProviderID]; !ok {
		return invalidRef("rate rule %s references unknown provider %s", r.ID, r.ProviderID)
	}
	svc, ok := s.services[r.ServiceID]
	if !ok {
		return invalidRef("rate rule %s references unknown service %s", r.ID, r.ServiceID)
	}
	if svc.ProviderID != r.ProviderID {
		return invalidRef("rate rule %s: service %s does not belong to provider %s", r.ID, r.ServiceID, r.ProviderID)
	}
	if _, ok := s.zones[r.ZoneID]; !ok {
		return invalidRef("rate rule %s references unknown zone %s", r.ID, r.ZoneID)
	}
	if r.WeightMinKg.IsNegative() || !r.WeightMaxKg.GreaterThan(r.WeightMinKg) {
		return invalidRef("rate rule %s weight window [%s, %s)", r.ID, r.WeightMinKg, r.WeightMaxKg)
	}
	for name, v := range map[string]decimal.Decimal{
		"baseCost":          r.BaseCost,
		"costPerKg":         r.CostPerKg,
		"costPerKm":         r.CostPerKm,
		"costPerCm3":        r.CostPerCm3,
		"insuranceRate":     r.InsuranceRate,
		"fuelSurchargeRate": r.FuelSurchargeRate,
		"customsFee":        r.CustomsFee,
	} {
		if v.IsNegative() {
			return invalidRef("rate rule %s has negative %s", r.ID, name)
		}
	}
	if r.FreeShippingThreshold != nil && r.FreeShippingThreshold.IsNegative() {
		return invalidRef("rate rule %s has negative free shipping threshold", r.ID)
	}
	if len(r.Currency) != 3 {
		return invalidRef("rate rule %s currency %q", r.ID, r.Currency)
	}
	return nil
}

func validCoordinates(lat, lon float64) bool {
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// ValidateZonePartition checks that every shipping-allowed country belongs to
// exactly one zone and that zones only name known countries. It returns the
// country to zone index.
func ValidateZonePartition(countries []Country, zones []ShippingZone) (map[string]string, error) {
	known := make(map[string]Country, len(countries))
	for _, c := range countries {
		known[NormalizeCode(c.Code)] = c
	}

	index := make(map[string]string, len(countries))
	zoneIDs := make(map[string]bool, len(zones))
	for _, z := range zones {
		if z.ID == "" {
			return nil, fmt.Errorf("%w: zone without id", ErrZonePartition)
		}
		if zoneIDs[z.ID] {
			return nil, fmt.Errorf("%w: duplicate zone %s", ErrZonePartition, z.ID)
		}
		zoneIDs[z.ID] = true
		for _, code := range z.CountryCodes {
			code = NormalizeCode(code)
			if _, ok := known[code]; !ok {
				return nil, fmt.Errorf("%w: zone %s names unknown country %s", ErrZonePartition, z.ID, code)
			}
			if other, taken := index[code]; taken {
				return nil, fmt.Errorf("%w: country %s is in zones %s and %s", ErrZonePartition, code, other, z.ID)
			}
			index[code] = z.ID
		}
	}

	var missing []string
	for code, c := range known {
		if c.ShippingAllowed {
			if _, ok := index[code]; !ok {
				missing = append(missing, code)
			}
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("%w: allowed countries without zone: %s", ErrZonePartition, strings.Join(missing, ","))
	}
	return index, nil
}

// Origin returns the shipping origin the snapshot measures distance from.
func (s *Snapshot) Origin() Origin { return s.origin }

// Data returns the raw reference tables the snapshot was built from.
func (s *Snapshot) Data() ReferenceData { return s.data }

// Country looks up a country by normalized code.
func (s *Snapshot) Country(code string) (*Country, bool) {
	c, ok := s.countries[NormalizeCode(code)]
	return c, ok
}

// Zone looks up a zone by id.
func (s *Snapshot) Zone(id string) (*ShippingZone, bool) {
	z, ok := s.zones[id]
	return z, ok
}

// Provider looks up a provider by id.
func (s *Snapshot) Provider(id string) (*Provider, bool) {
	p, ok := s.providers[id]
	return p, ok
}

// Service looks up a service by id.
func (s *Snapshot) Service(id string) (*Service, bool) {
	svc, ok := s.services[id]
	return svc, ok
}

// Offerings returns active provider/service pairs in a stable order.
func (s *Snapshot) Offerings() []Offering { return s.offerings }

// Overlaps returns the overlapping rule windows found when the snapshot was built.
func (s *Snapshot) Overlaps() []RuleOverlap { return s.overlaps }

// Rates returns the exchange rate table.
func (s *Snapshot) Rates() []ExchangeRate { return s.rateList }

// Currencies returns every currency code the snapshot mentions.
func (s *Snapshot) Currencies() []string { return s.currencies }

// ZoneOf returns the zone of a country.
func (s *Snapshot) ZoneOf(countryCode string) (string, bool) {
	z, ok := s.zoneByCountry[NormalizeCode(countryCode)]
	return z, ok
}

func (s *Snapshot) rulesFor(providerID, serviceID, zoneID string) []*RateRule {
	return s.rules[ruleKey{providerID, serviceID, zoneID}]
}

func (s *Snapshot) rate(from, to string) (ExchangeRate, bool) {
	r, ok := s.rates[currencyPair{from, to}]
	return r, ok
}
