package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	_ "github.com/lib/pq"

	"github.com/wms-platform/shipping-service/internal/domain"
)

//go:embed schema.sql
var schema string

// Source is a domain.ReferenceSource reading the admin console's tables.
type Source struct {
	db *sql.DB
}

// NewSource opens and pings the database.
func NewSource(ctx context.Context, dsn string) (*Source, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres db: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping postgres db: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Source{db: db}, nil
}

// EnsureSchema creates the reference tables if they do not exist.
func (s *Source) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create reference schema: %w", err)
	}
	return nil
}

// DB returns the underlying handle.
func (s *Source) DB() *sql.DB {
	return s.db
}

// Close closes the database connection
func (s *Source) Close() error {
	return s.db.Close()
}

// LoadReference implements domain.ReferenceSource. All tables are read in one
// read-only transaction so the snapshot is consistent.
func (s *Source) LoadReference(ctx context.Context) (domain.ReferenceData, error) {
	var data domain.ReferenceData

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true, Isolation: sql.LevelRepeatableRead})
	if err != nil {
		return data, fmt.Errorf("failed to begin reference read: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	loaders := []struct {
		name string
		load func(context.Context, *sql.Tx, *domain.ReferenceData) error
	}{
		{"countries", loadCountries},
		{"states", loadStates},
		{"zones", loadZones},
		{"providers", loadProviders},
		{"services", loadServices},
		{"rate rules", loadRateRules},
	}
	for _, l := range loaders {
		if err := l.load(ctx, tx, &data); err != nil {
			return domain.ReferenceData{}, fmt.Errorf("failed to load %s: %w", l.name, err)
		}
	}
	return data, tx.Commit()
}

// LoadExchangeRates implements domain.ReferenceSource.
func (s *Source) LoadExchangeRates(ctx context.Context) ([]domain.ExchangeRate, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT from_currency, to_currency, rate, updated_at
        FROM exchange_rates
        ORDER BY from_currency, to_currency`)
	if err != nil {
		return nil, fmt.Errorf("failed to query exchange rates: %w", err)
	}
	defer rows.Close()

	var rates []domain.ExchangeRate
	for rows.Next() {
		var r domain.ExchangeRate
		if err := rows.Scan(&r.From, &r.To, &r.Rate, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan exchange rate: %w", err)
		}
		rates = append(rates, r)
	}
	return rates, rows.Err()
}

func loadCountries(ctx context.Context, tx *sql.Tx, data *domain.ReferenceData) error {
	rows, err := tx.QueryContext(ctx, `
        SELECT code, name, latitude, longitude, default_currency, tax_jurisdiction_id, shipping_allowed
        FROM countries
        ORDER BY code`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var c domain.Country
		if err := rows.Scan(&c.Code, &c.Name, &c.Latitude, &c.Longitude, &c.DefaultCurrency, &c.TaxJurisdictionID, &c.ShippingAllowed); err != nil {
			return err
		}
		data.Countries = append(data.Countries, c)
	}
	return rows.Err()
}

func loadStates(ctx context.Context, tx *sql.Tx, data *domain.ReferenceData) error {
	rows, err := tx.QueryContext(ctx, `
        SELECT country_code, code, name, latitude, longitude, tax_jurisdiction_id
        FROM states
        ORDER BY country_code, code`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var st domain.State
		var tax sql.NullString
		if err := rows.Scan(&st.CountryCode, &st.Code, &st.Name, &st.Latitude, &st.Longitude, &tax); err != nil {
			return err
		}
		st.TaxJurisdictionID = tax.String
		data.States = append(data.States, st)
	}
	return rows.Err()
}

func loadZones(ctx context.Context, tx *sql.Tx, data *domain.ReferenceData) error {
	rows, err := tx.QueryContext(ctx, `
        SELECT z.id, z.name, COALESCE(string_agg(zc.country_code, ',' ORDER BY zc.position, zc.country_code), '')
        FROM shipping_zones z
        LEFT JOIN shipping_zone_countries zc ON zc.zone_id = z.id
        GROUP BY z.id, z.name
        ORDER BY z.id`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var z domain.ShippingZone
		var members string
		if err := rows.Scan(&z.ID, &z.Name, &members); err != nil {
			return err
		}
		if members != "" {
			z.CountryCodes = strings.Split(members, ",")
		}
		data.Zones = append(data.Zones, z)
	}
	return rows.Err()
}

func loadProviders(ctx context.Context, tx *sql.Tx, data *domain.ReferenceData) error {
	rows, err := tx.QueryContext(ctx, `
        SELECT id, name, code, max_weight_kg, max_volume_cm3, supports_international, supports_insurance, active
        FROM shipping_providers
        ORDER BY id`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var p domain.Provider
		var maxWeight, maxVolume decimal.NullDecimal
		if err := rows.Scan(&p.ID, &p.Name, &p.Code, &maxWeight, &maxVolume, &p.SupportsInternational, &p.SupportsInsurance, &p.Active); err != nil {
			return err
		}
		p.MaxWeightKg = maxWeight.Decimal
		p.MaxVolumeCm3 = maxVolume.Decimal
		data.Providers = append(data.Providers, p)
	}
	return rows.Err()
}

func loadServices(ctx context.Context, tx *sql.Tx, data *domain.ReferenceData) error {
	rows, err := tx.QueryContext(ctx, `
        SELECT id, provider_id, name, code, transit_days_min, transit_days_max, active
        FROM shipping_services
        ORDER BY id`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var svc domain.Service
		if err := rows.Scan(&svc.ID, &svc.ProviderID, &svc.Name, &svc.Code, &svc.TransitDaysMin, &svc.TransitDaysMax, &svc.Active); err != nil {
			return err
		}
		data.Services = append(data.Services, svc)
	}
	return rows.Err()
}

func loadRateRules(ctx context.Context, tx *sql.Tx, data *domain.ReferenceData) error {
	rows, err := tx.QueryContext(ctx, `
        SELECT id, provider_id, service_id, zone_id,
               weight_min_kg, weight_max_kg, base_cost, cost_per_kg, cost_per_km, cost_per_cm3,
               insurance_rate, fuel_surcharge_rate, customs_fee, free_shipping_threshold,
               currency, updated_at
        FROM shipping_rate_rules
        ORDER BY id`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var r domain.RateRule
		var threshold decimal.NullDecimal
		if err := rows.Scan(
			&r.ID, &r.ProviderID, &r.ServiceID, &r.ZoneID,
			&r.WeightMinKg, &r.WeightMaxKg, &r.BaseCost, &r.CostPerKg, &r.CostPerKm, &r.CostPerCm3,
			&r.InsuranceRate, &r.FuelSurchargeRate, &r.CustomsFee, &threshold,
			&r.Currency, &r.UpdatedAt,
		); err != nil {
			return err
		}
		if threshold.Valid {
			v := threshold.Decimal
			r.FreeShippingThreshold = &v
		}
		data.RateRules = append(data.RateRules, r)
	}
	return rows.Err()
}
