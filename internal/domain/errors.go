package domain

import "errors"

// ErrorKind classifies a domain error by how the caller should react.
type ErrorKind string

const (
	// KindInput means the caller sent malformed data.
	KindInput ErrorKind = "input"
	// KindPolicy means the request is valid but the business cannot serve it.
	KindPolicy ErrorKind = "policy"
	// KindState means a lifecycle operation was attempted out of order.
	KindState ErrorKind = "state"
	// KindConflict means a concurrent writer won; re-read and retry.
	KindConflict ErrorKind = "conflict"
	// KindReference means the loaded reference data is inconsistent.
	KindReference ErrorKind = "reference"
)

// Error is a classified domain error. Sentinels are compared with errors.Is
// and usually wrapped with the offending value.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
}

func (e *Error) Error() string { return e.Message }

func newError(kind ErrorKind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Input errors
var (
	ErrUnknownCountry       = newError(KindInput, "UNKNOWN_COUNTRY", "unknown country")
	ErrInvalidWeight        = newError(KindInput, "INVALID_WEIGHT", "weight must be positive")
	ErrInvalidVolume        = newError(KindInput, "INVALID_VOLUME", "volume must be positive")
	ErrInvalidDeclaredValue = newError(KindInput, "INVALID_DECLARED_VALUE", "declared value must not be negative")
	ErrInvalidDistance      = newError(KindInput, "INVALID_DISTANCE", "distance must not be negative")
	ErrInvalidStatus        = newError(KindInput, "INVALID_STATUS", "unknown shipment status")
	ErrInvalidCurrency      = newError(KindInput, "INVALID_CURRENCY", "invalid currency code")
	ErrInvalidShipment      = newError(KindInput, "INVALID_SHIPMENT", "invalid shipment")
	ErrRequestKeyReused     = newError(KindInput, "REQUEST_KEY_REUSED", "request key already created a shipment for another order")
)

// Policy errors
var (
	ErrShippingNotAllowed        = newError(KindPolicy, "SHIPPING_NOT_ALLOWED", "shipping to this country is not allowed")
	ErrProviderServiceInactive   = newError(KindPolicy, "PROVIDER_SERVICE_INACTIVE", "provider or service is inactive")
	ErrNoApplicableRate          = newError(KindPolicy, "NO_APPLICABLE_RATE", "no rate rule applies")
	ErrAmbiguousRate             = newError(KindPolicy, "AMBIGUOUS_RATE", "more than one rate rule applies")
	ErrNoExchangeRate            = newError(KindPolicy, "NO_EXCHANGE_RATE", "no exchange rate for currency pair")
	ErrStaleExchangeRate         = newError(KindPolicy, "STALE_EXCHANGE_RATE", "exchange rate is older than the allowed age")
	ErrExceedsProviderLimits     = newError(KindPolicy, "EXCEEDS_PROVIDER_LIMITS", "package exceeds provider limits")
	ErrInternationalNotSupported = newError(KindPolicy, "INTERNATIONAL_NOT_SUPPORTED", "provider does not ship internationally")
	ErrInsuranceNotSupported     = newError(KindPolicy, "INSURANCE_NOT_SUPPORTED", "provider does not offer insurance")
	ErrTrackingNumberExhausted   = newError(KindPolicy, "TRACKING_NUMBER_EXHAUSTED", "could not allocate a unique tracking number")
	ErrUnknownProviderOrService  = newError(KindPolicy, "UNKNOWN_PROVIDER_SERVICE", "unknown provider or service")
)

// State errors
var (
	ErrInvalidTransition = newError(KindState, "INVALID_TRANSITION", "invalid shipment status transition")
	ErrShipmentClosed    = newError(KindState, "SHIPMENT_CLOSED", "shipment is closed")
)

// Conflict errors
var (
	ErrConcurrencyConflict     = newError(KindConflict, "CONCURRENCY_CONFLICT", "shipment was modified concurrently")
	ErrDuplicateTrackingNumber = newError(KindConflict, "DUPLICATE_TRACKING_NUMBER", "tracking number already in use")
	ErrDuplicateRequestKey     = newError(KindConflict, "DUPLICATE_REQUEST_KEY", "a shipment was already created for this request key")
)

// Reference data errors
var (
	ErrInvalidReferenceData = newError(KindReference, "INVALID_REFERENCE_DATA", "invalid reference data")
	ErrZonePartition        = newError(KindReference, "ZONE_PARTITION_VIOLATION", "zones do not partition allowed countries")
)

// KindOf returns the kind of the first domain error in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind, true
	}
	return "", false
}

// CodeOf returns the code of the first domain error in err's chain.
func CodeOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}
