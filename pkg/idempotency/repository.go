package idempotency

import (
	"context"
	"sync"
	"time"
)

// Repository stores idempotency records. Implementations must make
// AcquireLock atomic per record id.
type Repository interface {
	// AcquireLock takes the lock on record unless another request holds a
	// lock newer than staleBefore or a response is already stored. It returns
	// the stored record and whether the caller now owns the lock.
	AcquireLock(ctx context.Context, record *Record, staleBefore time.Time) (*Record, bool, error)

	// StoreResponse completes the record owned by lockToken.
	StoreResponse(ctx context.Context, id, lockToken string, code int, body []byte, headers map[string]string, completedAt time.Time) error

	// ReleaseLock drops the lock so the request can be retried.
	ReleaseLock(ctx context.Context, id, lockToken string) error
}

// MemoryRepository keeps records in process. Expired records are dropped
// lazily when their id is reused.
type MemoryRepository struct {
	mu      sync.Mutex
	records map[string]*Record
}

// NewMemoryRepository creates an empty in-process repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{records: make(map[string]*Record)}
}

func (r *MemoryRepository) AcquireLock(ctx context.Context, record *Record, staleBefore time.Time) (*Record, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.records[record.ID]
	if ok && !existing.ExpiresAt.IsZero() && !existing.ExpiresAt.After(record.CreatedAt) {
		delete(r.records, record.ID)
		ok = false
	}

	if !ok {
		stored := *record
		r.records[record.ID] = &stored
		copied := stored
		return &copied, true, nil
	}

	if existing.IsCompleted() || (existing.LockedAt != nil && existing.LockedAt.After(staleBefore)) {
		copied := *existing
		return &copied, false, nil
	}

	// stale lock: take it over
	existing.LockToken = record.LockToken
	existing.LockedAt = record.LockedAt
	copied := *existing
	return &copied, true, nil
}

func (r *MemoryRepository) StoreResponse(ctx context.Context, id, lockToken string, code int, body []byte, headers map[string]string, completedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.records[id]
	if !ok || existing.LockToken != lockToken {
		return ErrLockLost
	}
	existing.ResponseCode = code
	existing.ResponseBody = append([]byte(nil), body...)
	existing.ResponseHeaders = headers
	existing.CompletedAt = &completedAt
	existing.LockedAt = nil
	existing.LockToken = ""
	return nil
}

func (r *MemoryRepository) ReleaseLock(ctx context.Context, id, lockToken string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.records[id]
	if !ok || existing.LockToken != lockToken {
		return ErrLockLost
	}
	delete(r.records, id)
	return nil
}
