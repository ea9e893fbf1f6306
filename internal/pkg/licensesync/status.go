package licensesync

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/google/uuid"
)

// Status is the process-wide view of the sync engine.
type Status struct {
	InProgress bool    `json:"in_progress"`
	LastResult *Result `json:"last_result"`
}

// StatusTracker records whether a sync is in progress and the outcome of the
// last run. Implementations must be safe for concurrent readers while a run
// is in flight; LastResult is swapped as a whole, never mutated in place.
type StatusTracker interface {
	// Begin marks a run as in progress. Returns false when one already is.
	Begin() bool
	// End clears the in-progress flag. A non-nil result replaces the last
	// result atomically; nil keeps the previous one (fatal-abort path).
	End(result *Result)
	// Status returns the current snapshot.
	Status() Status
}

// memoryTracker is the single-instance tracker used in production and tests.
type memoryTracker struct {
	mu         sync.RWMutex
	inProgress bool
	lastResult *Result
}

// NewMemoryTracker creates an in-memory status tracker.
func NewMemoryTracker() StatusTracker {
	return &memoryTracker{}
}

func (t *memoryTracker) Begin() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.inProgress {
		return false
	}
	t.inProgress = true
	return true
}

func (t *memoryTracker) End(result *Result) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inProgress = false
	if result != nil {
		t.lastResult = result
	}
}

func (t *memoryTracker) Status() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return Status{
		InProgress: t.inProgress,
		LastResult: t.lastResult,
	}
}

// RunLock prevents overlapping sync runs across app instances. The in-process
// tracker already serializes runs within one instance; the lock extends the
// guard to multi-instance deployments.
type RunLock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context)
}

const (
	runLockKey = "license_sync:lock"
	runLockTTL = 30 * time.Minute
)

type redisRunLock struct {
	client *redis.Client
	token  string
}

// NewRedisRunLock creates a cross-instance run lock on the shared cache.
func NewRedisRunLock(client *redis.Client) RunLock {
	return &redisRunLock{
		client: client,
		token:  uuid.New().String(),
	}
}

func (l *redisRunLock) Acquire(ctx context.Context) (bool, error) {
	return l.client.SetNX(ctx, runLockKey, l.token, runLockTTL).Result()
}

func (l *redisRunLock) Release(ctx context.Context) {
	// Only delete our own lock; a crashed holder's lock expires via TTL.
	val, err := l.client.Get(ctx, runLockKey).Result()
	if err != nil || val != l.token {
		return
	}
	_ = l.client.Del(ctx, runLockKey).Err()
}
