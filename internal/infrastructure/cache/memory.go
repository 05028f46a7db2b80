package cache

import (
	"context"
	"sync"
	"time"

	"github.com/scontrini/backend/internal/domain"
)

// DefaultCleanupInterval is how often expired hypotheses are swept
const DefaultCleanupInterval = 10 * time.Minute

type entry struct {
	value      domain.Hypothesis
	expiration time.Time
}

// HypothesisCache is a thread-safe in-memory domain.InterpretationCache with TTL support
type HypothesisCache struct {
	data  map[string]entry
	mutex sync.RWMutex
	now   func() time.Time
	stop  chan struct{}
	once  sync.Once
}

// NewHypothesisCache creates the cache and starts the expiry sweeper.
// A non-positive interval uses DefaultCleanupInterval.
func NewHypothesisCache(cleanupInterval time.Duration) *HypothesisCache {
	if cleanupInterval <= 0 {
		cleanupInterval = DefaultCleanupInterval
	}
	c := &HypothesisCache{
		data: make(map[string]entry),
		now:  time.Now,
		stop: make(chan struct{}),
	}
	go c.cleanupExpired(cleanupInterval)
	return c
}

// Get returns a copy of the cached hypothesis or domain.ErrCacheMiss
func (c *HypothesisCache) Get(ctx context.Context, key string) (*domain.Hypothesis, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	item, exists := c.data[key]
	if !exists || c.now().After(item.expiration) {
		return nil, domain.ErrCacheMiss
	}
	h := clone(item.value)
	return &h, nil
}

// Set stores a copy of value for ttl
func (c *HypothesisCache) Set(ctx context.Context, key string, value *domain.Hypothesis, ttl time.Duration) error {
	if value == nil {
		return domain.ErrInvalidRequest
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.data[key] = entry{
		value:      clone(*value),
		expiration: c.now().Add(ttl),
	}
	return nil
}

// Size returns the number of stored entries, expired ones included until swept
func (c *HypothesisCache) Size() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.data)
}

// Close stops the sweeper. It is safe to call more than once.
func (c *HypothesisCache) Close() error {
	c.once.Do(func() { close(c.stop) })
	return nil
}

func (c *HypothesisCache) cleanupExpired(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

func (c *HypothesisCache) sweep() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	now := c.now()
	for key, item := range c.data {
		if now.After(item.expiration) {
			delete(c.data, key)
		}
	}
}

func clone(h domain.Hypothesis) domain.Hypothesis {
	h.Tags = append([]string(nil), h.Tags...)
	return h
}
