package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"regexp"
	"strings"
	"time"
)

// DefaultMaxKeyLength is the longest Idempotency-Key accepted.
const DefaultMaxKeyLength = 255

var (
	// ErrKeyInvalid indicates that the idempotency key format is invalid
	ErrKeyInvalid = errors.New("idempotency key may only contain letters, digits, '-' and '_'")

	// ErrKeyTooLong indicates that the idempotency key exceeds the maximum length
	ErrKeyTooLong = errors.New("idempotency key is too long")

	// ErrLockLost is returned when a record is no longer held by the caller's lock token.
	ErrLockLost = errors.New("idempotency lock is no longer held")
)

var keyPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Record is a stored idempotency key together with the response of the
// request that first used it.
type Record struct {
	ID                 string     `bson:"_id"`
	Key                string     `bson:"key"`
	Service            string     `bson:"service"`
	RequestPath        string     `bson:"requestPath"`
	RequestMethod      string     `bson:"requestMethod"`
	RequestFingerprint string     `bson:"requestFingerprint"`
	LockToken          string     `bson:"lockToken,omitempty"`
	LockedAt           *time.Time `bson:"lockedAt,omitempty"`

	ResponseCode    int               `bson:"responseCode,omitempty"`
	ResponseBody    []byte            `bson:"responseBody,omitempty"`
	ResponseHeaders map[string]string `bson:"responseHeaders,omitempty"`

	CreatedAt   time.Time  `bson:"createdAt"`
	CompletedAt *time.Time `bson:"completedAt,omitempty"`
	ExpiresAt   time.Time  `bson:"expiresAt"`
}

// RecordID is the storage id of key within service.
func RecordID(service, key string) string {
	return service + "/" + key
}

// IsCompleted reports whether a response has been stored.
func (r *Record) IsCompleted() bool {
	return r.CompletedAt != nil
}

// ValidateKey checks the format and length of an idempotency key.
func ValidateKey(key string, maxLength int) error {
	if maxLength <= 0 {
		maxLength = DefaultMaxKeyLength
	}
	if len(key) > maxLength {
		return ErrKeyTooLong
	}
	if !keyPattern.MatchString(key) {
		return ErrKeyInvalid
	}
	return nil
}

// NormalizeKey trims surrounding whitespace.
func NormalizeKey(key string) string {
	return strings.TrimSpace(key)
}

// Fingerprint hashes the parts of a request that must match on replay.
func Fingerprint(method, path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{0})
	h.Write([]byte(path))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}
