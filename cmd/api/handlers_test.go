package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/shipping-service/internal/application"
	"github.com/wms-platform/shipping-service/internal/bootstrap"
	"github.com/wms-platform/shipping-service/internal/config"
	"github.com/wms-platform/shipping-service/internal/domain"
	"github.com/wms-platform/shipping-service/internal/infrastructure/carriers"
	"github.com/wms-platform/shipping-service/internal/infrastructure/memory"
	"github.com/wms-platform/shipping-service/internal/infrastructure/yamlref"
	"github.com/wms-platform/shipping-service/pkg/errors"
	"github.com/wms-platform/shipping-service/pkg/idempotency"
	"github.com/wms-platform/shipping-service/pkg/logging"
	"github.com/wms-platform/shipping-service/pkg/metrics"
	"github.com/wms-platform/shipping-service/pkg/middleware"
)

const testReference = `
countries:
  - { code: US, name: United States, latitude: 39.8283, longitude: -98.5795, defaultCurrency: USD, taxJurisdictionId: US, shippingAllowed: true }
  - { code: DE, name: Germany, latitude: 51.1657, longitude: 10.4515, defaultCurrency: EUR, taxJurisdictionId: DE, shippingAllowed: true }
  - { code: KP, name: North Korea, latitude: 40.3399, longitude: 127.5101, defaultCurrency: KPW, taxJurisdictionId: KP, shippingAllowed: false }
zones:
  - { id: Z-DOM, name: Domestic, countries: [US] }
  - { id: Z-EU, name: Europe, countries: [DE] }
providers:
  - { id: P-UPS, name: United Parcel Service, code: UPS, maxWeightKg: "70", supportsInternational: true, supportsInsurance: true, active: true }
services:
  - { id: S-UPS-GND, provider: P-UPS, name: UPS Ground, code: GND, transitDaysMin: 3, transitDaysMax: 7, active: true }
rateRules:
  - { id: R-EU-GND, provider: P-UPS, service: S-UPS-GND, zone: Z-EU, weightMinKg: "0", weightMaxKg: "10", baseCost: "5.00", costPerKg: "1.20", insuranceRate: "0.01", fuelSurchargeRate: "0.05", customsFee: "3.00", freeShippingThreshold: "500", currency: USD, updatedAt: 2026-01-01T00:00:00Z }
  - { id: R-DOM-GND, provider: P-UPS, service: S-UPS-GND, zone: Z-DOM, weightMinKg: "0", weightMaxKg: "70", baseCost: "6.00", costPerKg: "1.00", fuelSurchargeRate: "0.05", currency: USD, updatedAt: 2026-01-01T00:00:00Z }
exchangeRates:
  - { from: USD, to: EUR, rate: "0.9" }
`

type testServer struct {
	router   *gin.Engine
	services *bootstrap.Services
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		Origin:       domain.Origin{CountryCode: "US", Latitude: 40.7128, Longitude: -74.0060},
		BaseCurrency: "USD",
		TieBreak:     domain.TieBreakNarrowest,
	}
	logger := logging.NewNop()
	m := metrics.New(metrics.DefaultConfig("shipping-test"))

	services, err := bootstrap.NewServices(cfg, bootstrap.Dependencies{
		Source:   yamlref.NewSourceFromBytes([]byte(testReference)),
		Repo:     memory.NewShipmentRepository(),
		Trackers: carriers.NewRegistry("A1B2C3"),
	}, logger, m)
	require.NoError(t, err)
	_, err = services.Reference.Refresh(context.Background())
	require.NoError(t, err)

	router := setupRouter(services, routerConfig{
		Metrics: m,
		Logger:  logger,
		Ready: func() error {
			_, err := services.Reference.Snapshot()
			return err
		},
	})
	return &testServer{router: router, services: services}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var raw []byte
	if body != nil {
		var err error
		raw, err = json.Marshal(body)
		require.NoError(t, err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func quoteBody() map[string]interface{} {
	return map[string]interface{}{
		"country":       "DE",
		"weightKg":      "2.5",
		"volumeCm3":     "1000",
		"declaredValue": "100",
		"insurance":     true,
		"providerId":    "P-UPS",
		"serviceId":     "S-UPS-GND",
	}
}

func TestHealthAndReady(t *testing.T) {
	s := newTestServer(t)

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/health", nil).Code)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/ready", nil).Code)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/metrics", nil).Code)
}

func TestResolveHandler(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/api/v1/geography/resolve?country=de", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	dest := decode[application.DestinationDTO](t, w)
	assert.Equal(t, "DE", dest.CountryCode)
	assert.Equal(t, "Z-EU", dest.ZoneID)
	assert.True(t, dest.International)

	w = s.do(t, http.MethodGet, "/api/v1/geography/resolve", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/geography/resolve?country=ZZ", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "UNKNOWN_COUNTRY", decode[middleware.APIErrorResponse](t, w).Code)
}

func TestQuoteHandler(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/v1/quotes", quoteBody())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	quote := decode[application.QuoteDTO](t, w)
	assert.Equal(t, "R-EU-GND", quote.Cost.RuleID)
	assert.Equal(t, "8.00", quote.Cost.Freight)
	assert.Equal(t, "0.40", quote.Cost.FuelSurcharge)
	assert.Equal(t, "1.00", quote.Cost.Insurance)
	assert.Equal(t, "3.00", quote.Cost.Customs)
	assert.Equal(t, "12.40", quote.Cost.Total)
	assert.Equal(t, int64(1), quote.SnapshotVersion)
}

func TestQuoteHandler_DisplayCurrency(t *testing.T) {
	s := newTestServer(t)

	body := quoteBody()
	body["currency"] = "EUR"
	w := s.do(t, http.MethodPost, "/api/v1/quotes", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	quote := decode[application.QuoteDTO](t, w)
	assert.Equal(t, "12.40", quote.Cost.Total)
	require.NotNil(t, quote.Display)
	assert.Equal(t, "EUR", quote.Display.Currency)
	assert.Equal(t, "11.16", quote.Display.Total)
}

func TestQuoteHandler_Errors(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name       string
		mutate     func(map[string]interface{})
		wantStatus int
		wantCode   string
	}{
		{"missing weight", func(b map[string]interface{}) { delete(b, "weightKg") }, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"weight not a number", func(b map[string]interface{}) { b["weightKg"] = "heavy" }, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"bad currency code", func(b map[string]interface{}) { b["currency"] = "euro" }, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"zero weight", func(b map[string]interface{}) { b["weightKg"] = "0" }, http.StatusBadRequest, "INVALID_WEIGHT"},
		{"unknown country", func(b map[string]interface{}) { b["country"] = "ZZ" }, http.StatusBadRequest, "UNKNOWN_COUNTRY"},
		{"shipping not allowed", func(b map[string]interface{}) { b["country"] = "KP" }, http.StatusUnprocessableEntity, "SHIPPING_NOT_ALLOWED"},
		{"over the heaviest window", func(b map[string]interface{}) { b["weightKg"] = "12" }, http.StatusUnprocessableEntity, "NO_APPLICABLE_RATE"},
		{"no exchange rate", func(b map[string]interface{}) { b["currency"] = "JPY" }, http.StatusUnprocessableEntity, "NO_EXCHANGE_RATE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := quoteBody()
			tt.mutate(body)

			w := s.do(t, http.MethodPost, "/api/v1/quotes", body)
			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())

			resp := decode[middleware.APIErrorResponse](t, w)
			assert.Equal(t, tt.wantCode, resp.Code)
			assert.Equal(t, "/api/v1/quotes", resp.Path)
			assert.False(t, resp.Retryable)
		})
	}
}

func TestQuoteHandler_UnsupportedContentType(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/quotes", strings.NewReader("country=DE"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
}

func TestShopRatesHandler(t *testing.T) {
	s := newTestServer(t)

	body := quoteBody()
	delete(body, "providerId")
	delete(body, "serviceId")

	w := s.do(t, http.MethodPost, "/api/v1/quotes/shop", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	quotes := decode[[]application.QuoteDTO](t, w)
	require.Len(t, quotes, 1)
	assert.Equal(t, "S-UPS-GND", quotes[0].ServiceID)
	assert.Equal(t, "12.40", quotes[0].Cost.Total)
}

func createShipment(t *testing.T, s *testServer, orderID string) application.ShipmentDTO {
	t.Helper()
	body := quoteBody()
	body["orderId"] = orderID

	w := s.do(t, http.MethodPost, "/api/v1/shipments", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[application.ShipmentDTO](t, w)
}

func TestShipmentLifecycleHandlers(t *testing.T) {
	s := newTestServer(t)

	created := createShipment(t, s, "ORD-100")
	assert.Equal(t, "created", created.Status)
	assert.True(t, strings.HasPrefix(created.TrackingNumber, "1ZA1B2C3"))
	assert.Equal(t, "12.40", created.Cost.Total)

	w := s.do(t, http.MethodGet, "/api/v1/shipments/"+created.ShipmentID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, created.TrackingNumber, decode[application.ShipmentDTO](t, w).TrackingNumber)

	w = s.do(t, http.MethodGet, "/api/v1/shipments/tracking/"+created.TrackingNumber, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, created.ShipmentID, decode[application.ShipmentDTO](t, w).ShipmentID)

	// delivered straight from created is rejected
	w = s.do(t, http.MethodPost, "/api/v1/shipments/"+created.ShipmentID+"/events", map[string]string{"status": "delivered"})
	require.Equal(t, http.StatusConflict, w.Code, w.Body.String())
	assert.Equal(t, "INVALID_TRANSITION", decode[middleware.APIErrorResponse](t, w).Code)

	for _, status := range []string{"picked_up", "in_transit", "delivered"} {
		w = s.do(t, http.MethodPost, "/api/v1/shipments/"+created.ShipmentID+"/events", map[string]string{
			"status":   status,
			"location": "Hamburg",
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, status, decode[application.ShipmentEventDTO](t, w).Status)
	}

	w = s.do(t, http.MethodGet, "/api/v1/shipments/"+created.ShipmentID+"/events", nil)
	require.Equal(t, http.StatusOK, w.Code)
	events := decode[[]application.ShipmentEventDTO](t, w)
	require.Len(t, events, 4)
	for i, ev := range events {
		assert.Equal(t, int64(i+1), ev.Seq)
	}

	w = s.do(t, http.MethodGet, "/api/v1/shipments/"+created.ShipmentID, nil)
	shipment := decode[application.ShipmentDTO](t, w)
	assert.Equal(t, "delivered", shipment.Status)
	assert.Equal(t, events[3].EventID, shipment.LastEventID)
}

func TestCancelShipmentHandler(t *testing.T) {
	s := newTestServer(t)
	created := createShipment(t, s, "ORD-200")

	w := s.do(t, http.MethodPost, "/api/v1/shipments/"+created.ShipmentID+"/cancel", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "cancelled", decode[application.ShipmentEventDTO](t, w).Status)

	w = s.do(t, http.MethodPost, "/api/v1/shipments/"+created.ShipmentID+"/events", map[string]string{"status": "picked_up"})
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "SHIPMENT_CLOSED", decode[middleware.APIErrorResponse](t, w).Code)
}

func TestShipmentHandlers_NotFoundAndValidation(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/api/v1/shipments/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "RESOURCE_NOT_FOUND", decode[middleware.APIErrorResponse](t, w).Code)

	w = s.do(t, http.MethodGet, "/api/v1/shipments/missing/events", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/shipments/missing/events", map[string]string{"status": "picked_up"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	created := createShipment(t, s, "ORD-300")
	w = s.do(t, http.MethodPost, "/api/v1/shipments/"+created.ShipmentID+"/events", map[string]string{"status": "lost"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_STATUS", decode[middleware.APIErrorResponse](t, w).Code)

	body := quoteBody()
	w = s.do(t, http.MethodPost, "/api/v1/shipments", body)
	assert.Equal(t, http.StatusBadRequest, w.Code, "orderId is required")
}

func TestGetByOrderHandler(t *testing.T) {
	s := newTestServer(t)
	first := createShipment(t, s, "ORD-400")
	second := createShipment(t, s, "ORD-400")

	w := s.do(t, http.MethodGet, "/api/v1/shipments/order/ORD-400", nil)
	require.Equal(t, http.StatusOK, w.Code)
	shipments := decode[[]application.ShipmentDTO](t, w)
	require.Len(t, shipments, 2)
	ids := []string{shipments[0].ShipmentID, shipments[1].ShipmentID}
	assert.ElementsMatch(t, []string{first.ShipmentID, second.ShipmentID}, ids)

	w = s.do(t, http.MethodGet, "/api/v1/shipments/order/ORD-NONE", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]", strings.TrimSpace(w.Body.String()))
}

func TestCreateShipmentHandler_IdempotencyKey(t *testing.T) {
	s := newTestServer(t)
	body := quoteBody()
	body["orderId"] = "ORD-500"
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	post := func(key string, payload []byte) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/shipments", bytes.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(idempotency.HeaderIdempotencyKey, key)
		w := httptest.NewRecorder()
		s.router.ServeHTTP(w, req)
		return w
	}

	first := post("ord-500-create", raw)
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())
	retried := post("ord-500-create", raw)
	require.Equal(t, http.StatusCreated, retried.Code)
	assert.Equal(t, "true", retried.Header().Get(idempotency.HeaderReplayed))
	assert.Equal(t,
		decode[application.ShipmentDTO](t, first).ShipmentID,
		decode[application.ShipmentDTO](t, retried).ShipmentID)

	w := s.do(t, http.MethodGet, "/api/v1/shipments/order/ORD-500", nil)
	assert.Len(t, decode[[]application.ShipmentDTO](t, w), 1)

	body["weightKg"] = "3"
	changed, err := json.Marshal(body)
	require.NoError(t, err)
	mismatch := post("ord-500-create", changed)
	assert.Equal(t, http.StatusUnprocessableEntity, mismatch.Code)
	assert.Equal(t, idempotency.CodeParameterMismatch, decode[middleware.APIErrorResponse](t, mismatch).Code)
}

func TestReferenceHandlers(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/v1/reference/refresh?kind=rates", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	summary := decode[application.ReferenceSummaryDTO](t, w)
	assert.Equal(t, int64(2), summary.Version)
	assert.Equal(t, 1, summary.Offerings)

	w = s.do(t, http.MethodPost, "/api/v1/reference/refresh", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(3), decode[application.ReferenceSummaryDTO](t, w).Version)

	w = s.do(t, http.MethodPost, "/api/v1/reference/refresh?kind=everything", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/reference/validation", nil)
	require.Equal(t, http.StatusOK, w.Code)
	report := decode[application.ValidationReportDTO](t, w)
	assert.True(t, report.ZonePartitionOK)
	assert.Empty(t, report.Overlaps)
}

func TestRefreshError(t *testing.T) {
	rejected := errors.FromError(refreshError(domain.ErrZonePartition))
	assert.Equal(t, http.StatusUnprocessableEntity, rejected.HTTPStatus)
	assert.Equal(t, "ZONE_PARTITION_VIOLATION", rejected.Code)

	unreachable := errors.FromError(refreshError(assert.AnError))
	assert.Equal(t, http.StatusServiceUnavailable, unreachable.HTTPStatus)
	assert.True(t, unreachable.Retryable)
}
