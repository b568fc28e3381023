package main

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/wms-platform/shipping-service/internal/application"
	"github.com/wms-platform/shipping-service/internal/bootstrap"
	"github.com/wms-platform/shipping-service/internal/domain"
	"github.com/wms-platform/shipping-service/pkg/errors"
	"github.com/wms-platform/shipping-service/pkg/idempotency"
	"github.com/wms-platform/shipping-service/pkg/logging"
	"github.com/wms-platform/shipping-service/pkg/metrics"
	"github.com/wms-platform/shipping-service/pkg/middleware"
)

// routerConfig carries what setupRouter needs besides the services.
type routerConfig struct {
	Metrics        *metrics.Metrics
	Logger         *logging.Logger
	Ready          func() error
	TracingEnabled bool
	// IdempotencyKeys defaults to an in-process store.
	IdempotencyKeys idempotency.Repository
}

func setupRouter(services *bootstrap.Services, cfg routerConfig) *gin.Engine {
	router := gin.New()

	middlewareConfig := middleware.DefaultConfig(serviceName, cfg.Logger.Logger)
	middlewareConfig.EnableTracing = cfg.TracingEnabled
	middleware.Setup(router, middlewareConfig)
	router.Use(middleware.MetricsMiddleware(cfg.Metrics))

	router.NoRoute(middleware.NoRoute())
	router.NoMethod(middleware.NoMethod())
	router.HandleMethodNotAllowed = true

	router.GET("/health", middleware.HealthCheck(serviceName))
	router.GET("/ready", middleware.ReadinessCheck(serviceName, cfg.Ready))
	router.GET("/metrics", middleware.MetricsEndpoint(cfg.Metrics))

	logger := cfg.Logger

	router.GET("/api/v1/geography/resolve", resolveHandler(services.Quotes, logger))

	quotes := router.Group("/api/v1/quotes")
	{
		quotes.POST("", quoteHandler(services.Quotes, logger))
		quotes.POST("/shop", shopRatesHandler(services.Quotes, logger))
	}

	keys := cfg.IdempotencyKeys
	if keys == nil {
		keys = idempotency.NewMemoryRepository()
	}
	idempotencyConfig := idempotency.DefaultConfig(serviceName, keys, logger)
	idempotencyConfig.Metrics = cfg.Metrics

	api := router.Group("/api/v1/shipments")
	api.Use(idempotency.Middleware(idempotencyConfig))
	{
		api.POST("", createShipmentHandler(services.Shipments, logger))
		api.GET("/:shipmentId", getShipmentHandler(services.Shipments, logger))
		api.GET("/:shipmentId/events", listEventsHandler(services.Shipments, logger))
		api.POST("/:shipmentId/events", advanceShipmentHandler(services.Shipments, logger))
		api.POST("/:shipmentId/cancel", cancelShipmentHandler(services.Shipments, logger))
		api.GET("/order/:orderId", getByOrderHandler(services.Shipments, logger))
		api.GET("/tracking/:trackingNumber", getByTrackingHandler(services.Shipments, logger))
	}

	reference := router.Group("/api/v1/reference")
	{
		reference.POST("/refresh", refreshReferenceHandler(services.Reference, logger))
		reference.GET("/validation", validateReferenceHandler(services.Reference, logger))
	}

	return router
}

// packageRequest is the package part of quote and shipment requests. Numbers
// are strings so they reach the engine without a float conversion.
type packageRequest struct {
	Country       string `json:"country" binding:"required,country_code"`
	State         string `json:"state"`
	WeightKg      string `json:"weightKg" binding:"required,decimal"`
	VolumeCm3     string `json:"volumeCm3" binding:"required,decimal"`
	DeclaredValue string `json:"declaredValue" binding:"omitempty,decimal"`
	Insurance     bool   `json:"insurance"`
	Currency      string `json:"currency" binding:"omitempty,currency_code"`
}

func (r packageRequest) toSpec() application.PackageSpec {
	return application.PackageSpec{
		CountryCode:    r.Country,
		StateCode:      r.State,
		WeightKg:       parseDecimal(r.WeightKg),
		VolumeCm3:      parseDecimal(r.VolumeCm3),
		DeclaredValue:  parseDecimal(r.DeclaredValue),
		WantsInsurance: r.Insurance,
		Currency:       r.Currency,
	}
}

// parseDecimal reads a value already checked by the decimal validator.
func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero
	}
	return d
}

type quoteRequest struct {
	packageRequest
	ProviderID string `json:"providerId" binding:"required"`
	ServiceID  string `json:"serviceId" binding:"required"`
}

func (r quoteRequest) toCommand() application.QuoteCommand {
	return application.QuoteCommand{
		PackageSpec: r.toSpec(),
		ProviderID:  r.ProviderID,
		ServiceID:   r.ServiceID,
	}
}

// HTTP Handlers
func resolveHandler(service *application.QuoteService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		query := application.ResolveQuery{
			CountryCode: c.Query("country"),
			StateCode:   c.Query("state"),
		}
		if query.CountryCode == "" {
			responder.RespondValidationError("validation failed", map[string]string{"country": "is required"})
			return
		}

		middleware.AddSpanAttributes(c, map[string]interface{}{
			"shipping.country": query.CountryCode,
			"shipping.state":   query.StateCode,
		})

		dest, err := service.Resolve(c.Request.Context(), query)
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, dest)
	}
}

func quoteHandler(service *application.QuoteService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		var req quoteRequest
		if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}

		middleware.AddSpanAttributes(c, map[string]interface{}{
			"shipping.country":  req.Country,
			"shipping.provider": req.ProviderID,
			"shipping.service":  req.ServiceID,
		})

		quote, err := service.Quote(c.Request.Context(), req.toCommand())
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, quote)
	}
}

func shopRatesHandler(service *application.QuoteService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		var req packageRequest
		if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}

		middleware.AddSpanAttributes(c, map[string]interface{}{
			"shipping.country": req.Country,
		})

		quotes, err := service.ShopRates(c.Request.Context(), application.ShopRatesCommand{PackageSpec: req.toSpec()})
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, quotes)
	}
}

func createShipmentHandler(service *application.ShipmentService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		var req struct {
			quoteRequest
			OrderID     string `json:"orderId" binding:"required"`
			Description string `json:"description"`
		}
		if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}

		middleware.AddSpanAttributes(c, map[string]interface{}{
			"order.id":          req.OrderID,
			"shipping.provider": req.ProviderID,
			"shipping.service":  req.ServiceID,
		})

		shipment, err := service.CreateShipment(c.Request.Context(), application.CreateShipmentCommand{
			QuoteCommand: req.toCommand(),
			OrderID:      req.OrderID,
			Description:  req.Description,
		})
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusCreated, shipment)
	}
}

func getShipmentHandler(service *application.ShipmentService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		query := application.GetShipmentQuery{ShipmentID: c.Param("shipmentId")}

		middleware.AddSpanAttributes(c, map[string]interface{}{
			"shipment.id": query.ShipmentID,
		})

		shipment, err := service.GetShipment(c.Request.Context(), query)
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, shipment)
	}
}

func listEventsHandler(service *application.ShipmentService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		query := application.GetShipmentQuery{ShipmentID: c.Param("shipmentId")}
		middleware.AddSpanAttributes(c, map[string]interface{}{
			"shipment.id": query.ShipmentID,
		})

		events, err := service.ListEvents(c.Request.Context(), query)
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, events)
	}
}

func advanceShipmentHandler(service *application.ShipmentService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		shipmentID := c.Param("shipmentId")

		var req struct {
			Status      string `json:"status" binding:"required"`
			Description string `json:"description"`
			Location    string `json:"location"`
		}
		if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}

		middleware.AddSpanAttributes(c, map[string]interface{}{
			"shipment.id":     shipmentID,
			"shipment.status": req.Status,
		})

		event, err := service.AdvanceShipment(c.Request.Context(), application.AdvanceShipmentCommand{
			ShipmentID:  shipmentID,
			Status:      req.Status,
			Description: req.Description,
			Location:    req.Location,
		})
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, event)
	}
}

func cancelShipmentHandler(service *application.ShipmentService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		shipmentID := c.Param("shipmentId")
		middleware.AddSpanAttributes(c, map[string]interface{}{
			"shipment.id": shipmentID,
		})

		// the body is optional
		var req struct {
			Reason string `json:"reason"`
		}
		if c.Request.ContentLength > 0 {
			if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
				responder.RespondWithAppError(appErr)
				return
			}
		}

		event, err := service.CancelShipment(c.Request.Context(), application.CancelShipmentCommand{
			ShipmentID: shipmentID,
			Reason:     req.Reason,
		})
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, event)
	}
}

func getByOrderHandler(service *application.ShipmentService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		query := application.GetByOrderQuery{OrderID: c.Param("orderId")}
		middleware.AddSpanAttributes(c, map[string]interface{}{
			"order.id": query.OrderID,
		})

		shipments, err := service.GetByOrder(c.Request.Context(), query)
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, shipments)
	}
}

func getByTrackingHandler(service *application.ShipmentService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		query := application.GetByTrackingQuery{TrackingNumber: c.Param("trackingNumber")}
		middleware.AddSpanAttributes(c, map[string]interface{}{
			"tracking.number": query.TrackingNumber,
		})

		shipment, err := service.GetByTracking(c.Request.Context(), query)
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, shipment)
	}
}

func refreshReferenceHandler(service *application.ReferenceService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		kind := c.DefaultQuery("kind", application.RefreshKindReference)
		middleware.AddSpanAttributes(c, map[string]interface{}{
			"reference.kind": kind,
		})

		var err error
		switch kind {
		case application.RefreshKindReference:
			_, err = service.Refresh(c.Request.Context())
		case application.RefreshKindRates:
			_, err = service.RefreshRates(c.Request.Context())
		default:
			responder.RespondValidationError("validation failed", map[string]string{
				"kind": "must be one of: " + application.RefreshKindReference + " " + application.RefreshKindRates,
			})
			return
		}
		if err != nil {
			responder.RespondWithError(refreshError(err))
			return
		}

		summary, err := service.Summary()
		if err != nil {
			responder.RespondWithError(err)
			return
		}
		c.JSON(http.StatusOK, summary)
	}
}

// refreshError reports rejected reference data as a policy failure of the
// data set and an unreachable source as unavailable. The previous snapshot
// stays in service either way.
func refreshError(err error) error {
	if kind, ok := domain.KindOf(err); ok && kind == domain.KindReference {
		return errors.ErrPolicy(err.Error()).WithCode(domain.CodeOf(err)).Wrap(err)
	}
	if _, ok := domain.KindOf(err); ok {
		return application.MapDomainError(err)
	}
	return errors.ErrServiceUnavailable("reference source").Wrap(err)
}

func validateReferenceHandler(service *application.ReferenceService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		report, err := service.ValidationReport()
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusOK, report)
	}
}
