package idempotency

import (
	"bytes"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/zoobzio/clockz"

	"github.com/wms-platform/shipping-service/pkg/errors"
	"github.com/wms-platform/shipping-service/pkg/logging"
	"github.com/wms-platform/shipping-service/pkg/metrics"
	"github.com/wms-platform/shipping-service/pkg/middleware"
)

const (
	// HeaderIdempotencyKey is the HTTP header name for the idempotency key
	HeaderIdempotencyKey = "Idempotency-Key"

	// HeaderReplayed marks a response served from the idempotency store.
	HeaderReplayed = "Idempotent-Replayed"

	// DefaultLockTimeout is how long an unfinished request holds its key.
	DefaultLockTimeout = time.Minute

	// DefaultRetentionPeriod is how long completed responses are replayed.
	DefaultRetentionPeriod = 24 * time.Hour

	// DefaultMaxResponseSize is the largest response body that is stored.
	DefaultMaxResponseSize = 1 << 20
)

// Error codes returned by the middleware.
const (
	CodeKeyInvalid        = "IDEMPOTENCY_KEY_INVALID"
	CodeParameterMismatch = "IDEMPOTENCY_PARAMETER_MISMATCH"
	CodeConcurrentRequest = "IDEMPOTENCY_CONCURRENT_REQUEST"
)

// Config holds configuration for the idempotency middleware
type Config struct {
	Service    string
	Repository Repository
	Logger     *logging.Logger

	// Metrics may be nil.
	Metrics *metrics.Metrics
	Clock   clockz.Clock

	MaxKeyLength    int
	LockTimeout     time.Duration
	RetentionPeriod time.Duration
	MaxResponseSize int
}

// DefaultConfig returns a configuration with the default limits.
func DefaultConfig(service string, repo Repository, logger *logging.Logger) *Config {
	return &Config{
		Service:         service,
		Repository:      repo,
		Logger:          logger,
		Clock:           clockz.RealClock,
		MaxKeyLength:    DefaultMaxKeyLength,
		LockTimeout:     DefaultLockTimeout,
		RetentionPeriod: DefaultRetentionPeriod,
		MaxResponseSize: DefaultMaxResponseSize,
	}
}

// responseWriter wraps gin.ResponseWriter to capture response data
type responseWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *responseWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *responseWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Middleware replays the stored response of a mutating request that carries
// an Idempotency-Key already seen with the same method, path and body.
// Requests without the header pass through. Responses with status 409 or 5xx
// are not stored, so the client may retry them under the same key.
func Middleware(cfg *Config) gin.HandlerFunc {
	if cfg.Clock == nil {
		cfg.Clock = clockz.RealClock
	}
	logger := cfg.Logger.WithComponent("idempotency")

	return func(c *gin.Context) {
		if !isMutatingMethod(c.Request.Method) {
			c.Next()
			return
		}

		key := NormalizeKey(c.GetHeader(HeaderIdempotencyKey))
		if key == "" {
			c.Next()
			return
		}

		responder := middleware.NewErrorResponder(c, logger.Logger)
		path := c.FullPath()
		if err := ValidateKey(key, cfg.MaxKeyLength); err != nil {
			responder.RespondWithAppError(errors.ErrValidation(err.Error()).WithCode(CodeKeyInvalid))
			c.Abort()
			return
		}

		var body []byte
		if c.Request.Body != nil {
			raw, err := io.ReadAll(c.Request.Body)
			if err != nil {
				responder.RespondWithAppError(errors.ErrBadRequest("failed to read request body"))
				c.Abort()
				return
			}
			body = raw
			c.Request.Body = io.NopCloser(bytes.NewReader(body))
		}

		now := cfg.Clock.Now().UTC()
		record := &Record{
			ID:                 RecordID(cfg.Service, key),
			Key:                key,
			Service:            cfg.Service,
			RequestPath:        c.Request.URL.Path,
			RequestMethod:      c.Request.Method,
			RequestFingerprint: Fingerprint(c.Request.Method, c.Request.URL.Path, body),
			LockToken:          uuid.NewString(),
			LockedAt:           &now,
			CreatedAt:          now,
			ExpiresAt:          now.Add(cfg.RetentionPeriod),
		}

		ctx := c.Request.Context()
		stored, acquired, err := cfg.Repository.AcquireLock(ctx, record, now.Add(-cfg.LockTimeout))
		if err != nil {
			observe(cfg, path, "storage_error")
			responder.RespondWithAppError(errors.ErrServiceUnavailable("idempotency store").Wrap(err))
			c.Abort()
			return
		}

		if !acquired {
			switch {
			case stored.RequestFingerprint != record.RequestFingerprint:
				observe(cfg, path, "mismatch")
				responder.RespondWithAppError(
					errors.ErrPolicy("request differs from the original request with this idempotency key").
						WithCode(CodeParameterMismatch))
			case stored.IsCompleted():
				observe(cfg, path, "hit")
				logger.WithContext(ctx).Info("Replaying idempotent response", "key", key, "path", path, "status", stored.ResponseCode)
				for k, v := range stored.ResponseHeaders {
					c.Header(k, v)
				}
				c.Header(HeaderReplayed, "true")
				c.Data(stored.ResponseCode, stored.ResponseHeaders["Content-Type"], stored.ResponseBody)
			default:
				observe(cfg, path, "concurrent")
				responder.RespondWithAppError(
					errors.ErrConcurrencyConflict("a request with this idempotency key is in progress").
						WithCode(CodeConcurrentRequest))
			}
			c.Abort()
			return
		}

		observe(cfg, path, "miss")
		writer := &responseWriter{ResponseWriter: c.Writer, body: &bytes.Buffer{}}
		c.Writer = writer

		c.Next()

		status := writer.Status()
		if status >= http.StatusInternalServerError || status == http.StatusConflict || writer.body.Len() > cfg.MaxResponseSize {
			if err := cfg.Repository.ReleaseLock(ctx, record.ID, record.LockToken); err != nil {
				logger.WithContext(ctx).WithError(err).Warn("Failed to release idempotency key", "key", key)
			}
			return
		}

		headers := map[string]string{"Content-Type": writer.Header().Get("Content-Type")}
		if err := cfg.Repository.StoreResponse(ctx, record.ID, record.LockToken, status, writer.body.Bytes(), headers, cfg.Clock.Now().UTC()); err != nil {
			observe(cfg, path, "storage_error")
			logger.WithContext(ctx).WithError(err).Error("Failed to store idempotent response", "key", key)
		}
	}
}

func observe(cfg *Config, path, result string) {
	if cfg.Metrics != nil {
		cfg.Metrics.RecordIdempotency(path, result)
	}
}

func isMutatingMethod(method string) bool {
	return method == http.MethodPost ||
		method == http.MethodPut ||
		method == http.MethodPatch ||
		method == http.MethodDelete
}
