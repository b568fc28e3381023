// Package bootstrap wires the shipping engine from configuration. The API and
// the Temporal worker share it so both run the same services on the same
// stores.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/zoobzio/clockz"

	"github.com/wms-platform/shipping-service/internal/application"
	"github.com/wms-platform/shipping-service/internal/config"
	"github.com/wms-platform/shipping-service/internal/domain"
	"github.com/wms-platform/shipping-service/internal/infrastructure/carriers"
	"github.com/wms-platform/shipping-service/internal/infrastructure/memory"
	mongoRepo "github.com/wms-platform/shipping-service/internal/infrastructure/mongodb"
	"github.com/wms-platform/shipping-service/internal/infrastructure/postgres"
	"github.com/wms-platform/shipping-service/internal/infrastructure/redislock"
	"github.com/wms-platform/shipping-service/internal/infrastructure/yamlref"
	"github.com/wms-platform/shipping-service/pkg/cloudevents"
	"github.com/wms-platform/shipping-service/pkg/idempotency"
	idempotencyMongo "github.com/wms-platform/shipping-service/pkg/idempotency/mongodb"
	"github.com/wms-platform/shipping-service/pkg/logging"
	"github.com/wms-platform/shipping-service/pkg/metrics"
	"github.com/wms-platform/shipping-service/pkg/mongodb"
)

// Dependencies are the ports the application services run on.
type Dependencies struct {
	Source   domain.ReferenceSource
	Repo     domain.ShipmentRepository
	Locker   domain.Locker
	Trackers domain.TrackingNumberGenerator
	Clock    clockz.Clock
}

// Services are the application services of the engine.
type Services struct {
	Reference *application.ReferenceService
	Quotes    *application.QuoteService
	Shipments *application.ShipmentService
}

// NewServices builds the application services. No snapshot is loaded; call
// Reference.Start or Reference.Refresh before serving.
func NewServices(cfg *config.Config, deps Dependencies, logger *logging.Logger, m *metrics.Metrics) (*Services, error) {
	tieBreaker, err := domain.TieBreakerFor(cfg.TieBreak)
	if err != nil {
		return nil, err
	}
	clock := deps.Clock
	if clock == nil {
		clock = clockz.RealClock
	}
	trackers := deps.Trackers
	if trackers == nil {
		trackers = carriers.NewRegistry(cfg.UPSAccount)
	}
	locker := deps.Locker
	if locker == nil {
		locker = memory.NewKeyedLocker()
	}

	converter := &domain.CurrencyConverter{
		AllowCross: cfg.Currency.AllowCross,
		Pivot:      cfg.Currency.Pivot,
		MaxRateAge: cfg.Currency.MaxRateAge,
		Clock:      clock,
	}

	reference := application.NewReferenceService(deps.Source, cfg.Origin, clock, logger, m)
	quotes := application.NewQuoteService(reference, domain.NewRateMatcher(tieBreaker), converter, cfg.BaseCurrency, clock, logger, m)
	shipments := application.NewShipmentService(deps.Repo, quotes, trackers, locker, clock, logger, m)

	return &Services{Reference: reference, Quotes: quotes, Shipments: shipments}, nil
}

// Runtime is the engine running on its production stores.
type Runtime struct {
	*Services
	Mongo      *mongodb.Client
	Repository *mongoRepo.ShipmentRepository
	Locker     domain.Locker

	// IdempotencyKeys stores Idempotency-Key records for the HTTP API.
	IdempotencyKeys idempotency.Repository

	closers []func(context.Context) error
	logger  *logging.Logger
}

// New connects the stores named by cfg, builds the services and starts the
// reference refresh loops. On error everything opened so far is closed.
func New(ctx context.Context, cfg *config.Config, logger *logging.Logger, m *metrics.Metrics) (rt *Runtime, err error) {
	rt = &Runtime{logger: logger}
	defer func() {
		if err != nil {
			rt.Close(context.Background())
			rt = nil
		}
	}()

	mongoClient, err := mongodb.NewClient(ctx, cfg.MongoDB)
	if err != nil {
		return rt, err
	}
	rt.Mongo = mongoClient
	rt.onClose(mongoClient.Close)
	logger.Info("Connected to MongoDB",
		"database", cfg.MongoDB.Database,
		"replicaSet", mongoClient.Deployment().ReplicaSet,
		"sharded", mongoClient.Deployment().Sharded,
	)

	eventFactory := cloudevents.NewEventFactory(cloudevents.SourceShipping)
	repo, err := mongoRepo.NewShipmentRepository(ctx, mongoClient.Database(), eventFactory)
	if err != nil {
		return rt, fmt.Errorf("failed to initialize shipment repository: %w", err)
	}
	rt.Repository = repo

	keys := idempotencyMongo.NewKeyRepository(mongoClient.Database())
	if err := keys.EnsureIndexes(ctx); err != nil {
		return rt, err
	}
	rt.IdempotencyKeys = keys

	source, err := rt.referenceSource(ctx, cfg.Reference)
	if err != nil {
		return rt, err
	}

	locker, err := rt.locker(ctx, cfg)
	if err != nil {
		return rt, err
	}
	rt.Locker = locker

	services, err := NewServices(cfg, Dependencies{Source: source, Repo: repo, Locker: locker}, logger, m)
	if err != nil {
		return rt, err
	}
	rt.Services = services

	if err := services.Reference.Start(context.Background(), cfg.Reference.RefreshInterval, cfg.Reference.RatesRefreshInterval); err != nil {
		return rt, fmt.Errorf("failed to load reference data: %w", err)
	}
	rt.onClose(func(context.Context) error {
		services.Reference.Stop()
		return nil
	})

	return rt, nil
}

func (rt *Runtime) referenceSource(ctx context.Context, cfg config.ReferenceConfig) (domain.ReferenceSource, error) {
	switch cfg.Source {
	case config.SourcePostgres:
		src, err := postgres.NewSource(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		rt.onClose(func(context.Context) error { return src.Close() })
		rt.logger.Info("Reference data source", "kind", config.SourcePostgres)
		return src, nil
	default:
		src, err := yamlref.NewSource(cfg.File)
		if err != nil {
			return nil, err
		}
		rt.logger.Info("Reference data source", "kind", config.SourceYAML, "file", cfg.File)
		return src, nil
	}
}

func (rt *Runtime) locker(ctx context.Context, cfg *config.Config) (domain.Locker, error) {
	if cfg.RedisAddress == "" {
		rt.logger.Warn("REDIS_ADDRESS not set, shipment locks are local to this process")
		return memory.NewKeyedLocker(), nil
	}
	l, err := redislock.NewLocker(ctx, redislock.DefaultConfig(cfg.RedisAddress), rt.logger)
	if err != nil {
		return nil, err
	}
	rt.onClose(func(context.Context) error { return l.Close() })
	rt.logger.Info("Connected to Redis", "address", cfg.RedisAddress)
	return l, nil
}

func (rt *Runtime) onClose(fn func(context.Context) error) {
	rt.closers = append(rt.closers, fn)
}

// HealthCheck reports whether the stores are reachable and a snapshot is
// loaded.
func (rt *Runtime) HealthCheck(ctx context.Context) error {
	if err := rt.Mongo.HealthCheck(ctx); err != nil {
		return err
	}
	if rl, ok := rt.Locker.(*redislock.Locker); ok {
		if err := rl.HealthCheck(ctx); err != nil {
			return err
		}
	}
	_, err := rt.Reference.Snapshot()
	return err
}

// Close releases everything in reverse order of acquisition.
func (rt *Runtime) Close(ctx context.Context) {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](ctx); err != nil {
			rt.logger.WithError(err).Warn("Failed to close resource")
		}
	}
	rt.closers = nil
}
