package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deduper remembers which overdue transitions were already announced. The
// engine is stateless and reports the same transition on every read, so
// the notifier delivers only when MarkNotified returns true.
type Deduper interface {
	// MarkNotified records key for ttl. It returns true if the key was new.
	MarkNotified(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Close() error
}

// =============================================================================
// MEMORY DEDUPER - single instance deployments and tests
// =============================================================================

type MemoryDeduper struct {
	mu        sync.Mutex
	entries   map[string]time.Time
	now       func() time.Time
	stopChan  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewMemoryDeduper starts a background sweep of expired keys.
func NewMemoryDeduper() *MemoryDeduper {
	d := &MemoryDeduper{
		entries:  make(map[string]time.Time),
		now:      time.Now,
		stopChan: make(chan struct{}),
	}
	d.wg.Add(1)
	go d.cleanupLoop()
	return d
}

// WithClock replaces the clock used for expiry.
func (d *MemoryDeduper) WithClock(now func() time.Time) *MemoryDeduper {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.now = now
	return d
}

func (d *MemoryDeduper) MarkNotified(_ context.Context, key string, ttl time.Duration) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if expiresAt, ok := d.entries[key]; ok && now.Before(expiresAt) {
		return false, nil
	}
	d.entries[key] = now.Add(ttl)
	return true, nil
}

// Size returns the number of tracked keys.
func (d *MemoryDeduper) Size() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}

func (d *MemoryDeduper) Close() error {
	d.closeOnce.Do(func() {
		close(d.stopChan)
		d.wg.Wait()
	})
	return nil
}

func (d *MemoryDeduper) cleanupLoop() {
	defer d.wg.Done()

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-d.stopChan:
			return
		case <-ticker.C:
			d.cleanup()
		}
	}
}

func (d *MemoryDeduper) cleanup() {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	for key, expiresAt := range d.entries {
		if !now.Before(expiresAt) {
			delete(d.entries, key)
		}
	}
}

// =============================================================================
// REDIS DEDUPER - shared across server instances
// =============================================================================

const defaultKeyPrefix = "solarpay:overdue:"

type RedisDeduper struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisDeduper wraps an existing client. An empty prefix uses
// "solarpay:overdue:".
func NewRedisDeduper(client *redis.Client, keyPrefix string) *RedisDeduper {
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}
	return &RedisDeduper{client: client, keyPrefix: keyPrefix}
}

// MarkNotified uses SETNX with TTL, so two instances scanning the same
// account announce a transition once.
func (d *RedisDeduper) MarkNotified(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := d.client.SetNX(ctx, d.keyPrefix+key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark overdue notification: %w", err)
	}
	return ok, nil
}

func (d *RedisDeduper) Close() error {
	return d.client.Close()
}
