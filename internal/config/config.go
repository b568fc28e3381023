package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/wms-platform/shipping-service/internal/domain"
	"github.com/wms-platform/shipping-service/pkg/kafka"
	"github.com/wms-platform/shipping-service/pkg/mongodb"
	"github.com/wms-platform/shipping-service/pkg/temporal"
)

// ServiceName is used for logs, metrics, traces and the kafka client id.
const ServiceName = "shipping-service"

// Reference source kinds.
const (
	SourceYAML     = "yaml"
	SourcePostgres = "postgres"
)

// Config holds application configuration
type Config struct {
	ServerAddr  string
	Environment string
	MongoDB     *mongodb.Config
	Kafka       *kafka.Config
	Temporal    *temporal.Config
	// RedisAddress enables the distributed shipment lock. Empty keeps the
	// in-process lock, which is only correct for a single replica.
	RedisAddress string
	Reference    ReferenceConfig
	Origin       domain.Origin
	BaseCurrency string
	TieBreak     domain.TieBreakPolicy
	Currency     CurrencyConfig
	UPSAccount   string
	Tracing      TracingConfig
}

// ReferenceConfig selects where reference data comes from and how often it
// is reloaded.
type ReferenceConfig struct {
	Source               string
	File                 string
	PostgresDSN          string
	RefreshInterval      time.Duration
	RatesRefreshInterval time.Duration
}

type CurrencyConfig struct {
	AllowCross bool
	Pivot      string
	MaxRateAge time.Duration
}

type TracingConfig struct {
	Enabled      bool
	OTLPEndpoint string
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present; variables already set win.
func Load(identity string) (*Config, error) {
	_ = godotenv.Load()

	var errs []string
	fail := func(key string, err error) {
		errs = append(errs, fmt.Sprintf("%s: %v", key, err))
	}

	originLat, err := getEnvFloat("ORIGIN_LATITUDE", 40.7128)
	if err != nil {
		fail("ORIGIN_LATITUDE", err)
	}
	originLon, err := getEnvFloat("ORIGIN_LONGITUDE", -74.0060)
	if err != nil {
		fail("ORIGIN_LONGITUDE", err)
	}
	allowCross, err := getEnvBool("CURRENCY_ALLOW_CROSS", false)
	if err != nil {
		fail("CURRENCY_ALLOW_CROSS", err)
	}
	maxRateAge, err := getEnvDuration("EXCHANGE_RATE_MAX_AGE", 0)
	if err != nil {
		fail("EXCHANGE_RATE_MAX_AGE", err)
	}
	ratesInterval, err := getEnvDuration("RATES_REFRESH_INTERVAL", time.Hour)
	if err != nil {
		fail("RATES_REFRESH_INTERVAL", err)
	}
	referenceInterval, err := getEnvDuration("REFERENCE_REFRESH_INTERVAL", 24*time.Hour)
	if err != nil {
		fail("REFERENCE_REFRESH_INTERVAL", err)
	}
	tracingEnabled, err := getEnvBool("TRACING_ENABLED", true)
	if err != nil {
		fail("TRACING_ENABLED", err)
	}

	source := strings.ToLower(getEnv("REFERENCE_SOURCE", SourceYAML))
	if source != SourceYAML && source != SourcePostgres {
		fail("REFERENCE_SOURCE", fmt.Errorf("must be %q or %q, got %q", SourceYAML, SourcePostgres, source))
	}
	dsn := getEnv("POSTGRES_DSN", "")
	if source == SourcePostgres && dsn == "" {
		fail("POSTGRES_DSN", fmt.Errorf("required when REFERENCE_SOURCE=%s", SourcePostgres))
	}

	tieBreak := domain.TieBreakPolicy(getEnv("RATE_TIE_BREAK", string(domain.TieBreakNarrowest)))
	if _, err := domain.TieBreakerFor(tieBreak); err != nil {
		fail("RATE_TIE_BREAK", err)
	}

	mongoConfig := mongodb.DefaultConfig(ServiceName)
	mongoConfig.URI = getEnv("MONGODB_URI", mongoConfig.URI)
	mongoConfig.Database = getEnv("MONGODB_DATABASE", mongoConfig.Database)
	mongoConfig.ReplicaSet = getEnv("MONGODB_REPLICA_SET", "")
	if mongoConfig.Direct, err = getEnvBool("MONGODB_DIRECT", false); err != nil {
		fail("MONGODB_DIRECT", err)
	}
	if err := mongoConfig.Validate(); err != nil {
		fail("MONGODB_URI", err)
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}

	kafkaConfig := kafka.DefaultConfig()
	kafkaConfig.Brokers = kafka.ParseBrokers(getEnv("KAFKA_BROKERS", "localhost:9092"))
	kafkaConfig.ClientID = ServiceName

	temporalConfig := temporal.DefaultConfig()
	temporalConfig.HostPort = getEnv("TEMPORAL_HOST", temporalConfig.HostPort)
	temporalConfig.Namespace = getEnv("TEMPORAL_NAMESPACE", temporalConfig.Namespace)
	temporalConfig.Identity = identity

	return &Config{
		ServerAddr:   getEnv("SERVER_ADDR", ":8007"),
		Environment:  getEnv("ENVIRONMENT", "development"),
		MongoDB:      mongoConfig,
		Kafka:        kafkaConfig,
		Temporal:     temporalConfig,
		RedisAddress: getEnv("REDIS_ADDRESS", ""),
		Reference: ReferenceConfig{
			Source:               source,
			File:                 getEnv("REFERENCE_FILE", "config/reference.yaml"),
			PostgresDSN:          dsn,
			RefreshInterval:      referenceInterval,
			RatesRefreshInterval: ratesInterval,
		},
		Origin: domain.Origin{
			CountryCode: domain.NormalizeCode(getEnv("ORIGIN_COUNTRY", "US")),
			Latitude:    originLat,
			Longitude:   originLon,
		},
		BaseCurrency: domain.NormalizeCode(getEnv("BASE_CURRENCY", "USD")),
		TieBreak:     tieBreak,
		Currency: CurrencyConfig{
			AllowCross: allowCross,
			Pivot:      domain.NormalizeCode(getEnv("CURRENCY_PIVOT", "USD")),
			MaxRateAge: maxRateAge,
		},
		UPSAccount: getEnv("UPS_SHIPPER_ACCOUNT", "WMS001"),
		Tracing: TracingConfig{
			Enabled:      tracingEnabled,
			OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	return strconv.ParseBool(value)
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	return strconv.ParseFloat(value, 64)
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	return time.ParseDuration(value)
}
