package yamlref

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/zoobzio/clockz"
	"gopkg.in/yaml.v3"

	"github.com/wms-platform/shipping-service/internal/domain"
	"github.com/wms-platform/shipping-service/pkg/middleware"
)

// Document is the on-disk layout of a reference data file. Money and weights
// are strings so no value passes through binary floating point.
type Document struct {
	Countries     []countryRecord  `yaml:"countries" validate:"required,dive"`
	States        []stateRecord    `yaml:"states" validate:"dive"`
	Zones         []zoneRecord     `yaml:"zones" validate:"required,dive"`
	Providers     []providerRecord `yaml:"providers" validate:"required,dive"`
	Services      []serviceRecord  `yaml:"services" validate:"required,dive"`
	RateRules     []rateRuleRecord `yaml:"rateRules" validate:"required,dive"`
	ExchangeRates []rateRecord     `yaml:"exchangeRates" validate:"dive"`
}

type countryRecord struct {
	Code              string  `yaml:"code" validate:"required,country_code"`
	Name              string  `yaml:"name" validate:"required"`
	Latitude          float64 `yaml:"latitude" validate:"gte=-90,lte=90"`
	Longitude         float64 `yaml:"longitude" validate:"gte=-180,lte=180"`
	DefaultCurrency   string  `yaml:"defaultCurrency" validate:"required,currency_code"`
	TaxJurisdictionID string  `yaml:"taxJurisdictionId" validate:"required"`
	ShippingAllowed   bool    `yaml:"shippingAllowed"`
}

type stateRecord struct {
	Country           string  `yaml:"country" validate:"required,country_code"`
	Code              string  `yaml:"code" validate:"required"`
	Name              string  `yaml:"name" validate:"required"`
	Latitude          float64 `yaml:"latitude" validate:"gte=-90,lte=90"`
	Longitude         float64 `yaml:"longitude" validate:"gte=-180,lte=180"`
	TaxJurisdictionID string  `yaml:"taxJurisdictionId"`
}

type zoneRecord struct {
	ID        string   `yaml:"id" validate:"required"`
	Name      string   `yaml:"name" validate:"required"`
	Countries []string `yaml:"countries" validate:"dive,country_code"`
}

type providerRecord struct {
	ID                    string `yaml:"id" validate:"required"`
	Name                  string `yaml:"name" validate:"required"`
	Code                  string `yaml:"code" validate:"required"`
	MaxWeightKg           string `yaml:"maxWeightKg" validate:"omitempty,decimal"`
	MaxVolumeCm3          string `yaml:"maxVolumeCm3" validate:"omitempty,decimal"`
	SupportsInternational bool   `yaml:"supportsInternational"`
	SupportsInsurance     bool   `yaml:"supportsInsurance"`
	Active                bool   `yaml:"active"`
}

type serviceRecord struct {
	ID             string `yaml:"id" validate:"required"`
	Provider       string `yaml:"provider" validate:"required"`
	Name           string `yaml:"name" validate:"required"`
	Code           string `yaml:"code" validate:"required"`
	TransitDaysMin int    `yaml:"transitDaysMin" validate:"gte=0"`
	TransitDaysMax int    `yaml:"transitDaysMax" validate:"gtefield=TransitDaysMin"`
	Active         bool   `yaml:"active"`
}

type rateRuleRecord struct {
	ID                    string    `yaml:"id" validate:"required"`
	Provider              string    `yaml:"provider" validate:"required"`
	Service               string    `yaml:"service" validate:"required"`
	Zone                  string    `yaml:"zone" validate:"required"`
	WeightMinKg           string    `yaml:"weightMinKg" validate:"required,decimal"`
	WeightMaxKg           string    `yaml:"weightMaxKg" validate:"required,decimal"`
	BaseCost              string    `yaml:"baseCost" validate:"required,decimal"`
	CostPerKg             string    `yaml:"costPerKg" validate:"omitempty,decimal"`
	CostPerKm             string    `yaml:"costPerKm" validate:"omitempty,decimal"`
	CostPerCm3            string    `yaml:"costPerCm3" validate:"omitempty,decimal"`
	InsuranceRate         string    `yaml:"insuranceRate" validate:"omitempty,decimal"`
	FuelSurchargeRate     string    `yaml:"fuelSurchargeRate" validate:"omitempty,decimal"`
	CustomsFee            string    `yaml:"customsFee" validate:"omitempty,decimal"`
	FreeShippingThreshold string    `yaml:"freeShippingThreshold" validate:"omitempty,decimal"`
	Currency              string    `yaml:"currency" validate:"required,currency_code"`
	UpdatedAt             time.Time `yaml:"updatedAt"`
}

type rateRecord struct {
	From      string    `yaml:"from" validate:"required,currency_code"`
	To        string    `yaml:"to" validate:"required,currency_code,nefield=From"`
	Rate      string    `yaml:"rate" validate:"required,decimal"`
	UpdatedAt time.Time `yaml:"updatedAt"`
}

// Source is a domain.ReferenceSource reading a YAML file. The file is re-read
// on every load so edits are picked up by the next refresh.
type Source struct {
	path     string
	raw      []byte
	validate *validator.Validate
	clock    clockz.Clock
}

// NewSource reads reference data from path.
func NewSource(path string) (*Source, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("failed to stat reference file: %w", err)
	}
	return &Source{path: path, validate: newValidator(), clock: clockz.RealClock}, nil
}

// NewSourceFromBytes serves reference data from an in-memory document.
func NewSourceFromBytes(raw []byte) *Source {
	return &Source{raw: raw, validate: newValidator(), clock: clockz.RealClock}
}

// WithClock sets the clock used to stamp exchange rates without updatedAt.
func (s *Source) WithClock(clock clockz.Clock) *Source {
	s.clock = clock
	return s
}

func newValidator() *validator.Validate {
	v := validator.New()
	middleware.RegisterValidators(v)
	return v
}

func (s *Source) read() (*Document, error) {
	raw := s.raw
	if s.path != "" {
		var err error
		if raw, err = os.ReadFile(s.path); err != nil {
			return nil, fmt.Errorf("failed to read reference file: %w", err)
		}
	}

	var doc Document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: parse yaml: %v", domain.ErrInvalidReferenceData, err)
	}
	return &doc, nil
}

// LoadReference implements domain.ReferenceSource.
func (s *Source) LoadReference(ctx context.Context) (domain.ReferenceData, error) {
	doc, err := s.read()
	if err != nil {
		return domain.ReferenceData{}, err
	}
	if err := s.validate.Struct(doc); err != nil {
		return domain.ReferenceData{}, fmt.Errorf("%w: %v", domain.ErrInvalidReferenceData, err)
	}
	return doc.toReferenceData()
}

// LoadExchangeRates implements domain.ReferenceSource. Rates without an
// updatedAt are stamped with the load time.
func (s *Source) LoadExchangeRates(ctx context.Context) ([]domain.ExchangeRate, error) {
	doc, err := s.read()
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	rates := make([]domain.ExchangeRate, 0, len(doc.ExchangeRates))
	for _, r := range doc.ExchangeRates {
		if err := s.validate.Struct(&r); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidReferenceData, err)
		}
		rate, err := decimal.NewFromString(r.Rate)
		if err != nil {
			return nil, fmt.Errorf("%w: exchange rate %s->%s: %v", domain.ErrInvalidReferenceData, r.From, r.To, err)
		}
		updated := r.UpdatedAt
		if updated.IsZero() {
			updated = now
		}
		rates = append(rates, domain.ExchangeRate{From: r.From, To: r.To, Rate: rate, UpdatedAt: updated})
	}
	return rates, nil
}

func (doc *Document) toReferenceData() (domain.ReferenceData, error) {
	var out domain.ReferenceData

	for _, c := range doc.Countries {
		out.Countries = append(out.Countries, domain.Country{
			Code:              c.Code,
			Name:              c.Name,
			Latitude:          c.Latitude,
			Longitude:         c.Longitude,
			DefaultCurrency:   c.DefaultCurrency,
			TaxJurisdictionID: c.TaxJurisdictionID,
			ShippingAllowed:   c.ShippingAllowed,
		})
	}
	for _, st := range doc.States {
		out.States = append(out.States, domain.State{
			CountryCode:       st.Country,
			Code:              st.Code,
			Name:              st.Name,
			Latitude:          st.Latitude,
			Longitude:         st.Longitude,
			TaxJurisdictionID: st.TaxJurisdictionID,
		})
	}
	for _, z := range doc.Zones {
		out.Zones = append(out.Zones, domain.ShippingZone{ID: z.ID, Name: z.Name, CountryCodes: z.Countries})
	}

	p := parser{}
	for _, pr := range doc.Providers {
		out.Providers = append(out.Providers, domain.Provider{
			ID:                    pr.ID,
			Name:                  pr.Name,
			Code:                  pr.Code,
			MaxWeightKg:           p.optional("provider "+pr.ID+" maxWeightKg", pr.MaxWeightKg),
			MaxVolumeCm3:          p.optional("provider "+pr.ID+" maxVolumeCm3", pr.MaxVolumeCm3),
			SupportsInternational: pr.SupportsInternational,
			SupportsInsurance:     pr.SupportsInsurance,
			Active:                pr.Active,
		})
	}
	for _, svc := range doc.Services {
		out.Services = append(out.Services, domain.Service{
			ID:             svc.ID,
			ProviderID:     svc.Provider,
			Name:           svc.Name,
			Code:           svc.Code,
			TransitDaysMin: svc.TransitDaysMin,
			TransitDaysMax: svc.TransitDaysMax,
			Active:         svc.Active,
		})
	}
	for _, r := range doc.RateRules {
		field := func(name string) string { return "rate rule " + r.ID + " " + name }
		rule := domain.RateRule{
			ID:                r.ID,
			ProviderID:        r.Provider,
			ServiceID:         r.Service,
			ZoneID:            r.Zone,
			WeightMinKg:       p.required(field("weightMinKg"), r.WeightMinKg),
			WeightMaxKg:       p.required(field("weightMaxKg"), r.WeightMaxKg),
			BaseCost:          p.required(field("baseCost"), r.BaseCost),
			CostPerKg:         p.optional(field("costPerKg"), r.CostPerKg),
			CostPerKm:         p.optional(field("costPerKm"), r.CostPerKm),
			CostPerCm3:        p.optional(field("costPerCm3"), r.CostPerCm3),
			InsuranceRate:     p.optional(field("insuranceRate"), r.InsuranceRate),
			FuelSurchargeRate: p.optional(field("fuelSurchargeRate"), r.FuelSurchargeRate),
			CustomsFee:        p.optional(field("customsFee"), r.CustomsFee),
			Currency:          r.Currency,
			UpdatedAt:         r.UpdatedAt,
		}
		if r.FreeShippingThreshold != "" {
			threshold := p.required(field("freeShippingThreshold"), r.FreeShippingThreshold)
			rule.FreeShippingThreshold = &threshold
		}
		out.RateRules = append(out.RateRules, rule)
	}

	if p.err != nil {
		return domain.ReferenceData{}, p.err
	}
	return out, nil
}

// parser keeps the first decimal parse error.
type parser struct{ err error }

func (p *parser) required(field, s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("%w: %s: %v", domain.ErrInvalidReferenceData, field, err)
	}
	return v
}

func (p *parser) optional(field, s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	return p.required(field, s)
}
