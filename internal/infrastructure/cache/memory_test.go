package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scontrini/backend/internal/domain"
)

func newTestCache(t *testing.T) *HypothesisCache {
	t.Helper()
	c := NewHypothesisCache(time.Hour)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

var latte = domain.Hypothesis{
	Text:        "Latte Parzialmente Scremato 1L",
	ProductType: "latte",
	Size:        "1",
	UnitType:    "L",
	Category:    "Latticini",
	Tags:        []string{"latte", "parzialmente scremato"},
}

func TestHypothesisCache_SetAndGet(t *testing.T) {
	ctx := context.Background()

	t.Run("store and retrieve", func(t *testing.T) {
		c := newTestCache(t)
		require.NoError(t, c.Set(ctx, "LATTE PS\x00Coop", &latte, time.Minute))

		got, err := c.Get(ctx, "LATTE PS\x00Coop")

		require.NoError(t, err)
		assert.Equal(t, latte, *got)
	})

	t.Run("missing key", func(t *testing.T) {
		c := newTestCache(t)
		_, err := c.Get(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrCacheMiss)
	})

	t.Run("expired entry", func(t *testing.T) {
		c := newTestCache(t)
		now := time.Now()
		c.now = func() time.Time { return now }
		require.NoError(t, c.Set(ctx, "k", &latte, time.Minute))

		c.now = func() time.Time { return now.Add(2 * time.Minute) }
		_, err := c.Get(ctx, "k")

		assert.ErrorIs(t, err, domain.ErrCacheMiss)
	})

	t.Run("nil value", func(t *testing.T) {
		c := newTestCache(t)
		assert.ErrorIs(t, c.Set(ctx, "k", nil, time.Minute), domain.ErrInvalidRequest)
	})

	t.Run("stored value is isolated from callers", func(t *testing.T) {
		c := newTestCache(t)
		h := latte
		h.Tags = []string{"latte"}
		require.NoError(t, c.Set(ctx, "k", &h, time.Minute))
		h.Tags[0] = "mutated"

		got, err := c.Get(ctx, "k")
		require.NoError(t, err)
		got.Tags[0] = "mutated again"

		again, err := c.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, []string{"latte"}, again.Tags)
	})
}

func TestHypothesisCache_Size(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)
	for i := range 3 {
		require.NoError(t, c.Set(ctx, fmt.Sprintf("k%d", i), &latte, time.Minute))
	}
	assert.Equal(t, 3, c.Size())

	require.NoError(t, c.Set(ctx, "k0", &latte, time.Hour))
	assert.Equal(t, 3, c.Size(), "overwrite keeps one entry per key")
}

func TestHypothesisCache_Sweep(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)
	now := time.Now()
	c.now = func() time.Time { return now }
	require.NoError(t, c.Set(ctx, "short", &latte, time.Second))
	require.NoError(t, c.Set(ctx, "long", &latte, time.Hour))

	c.now = func() time.Time { return now.Add(time.Minute) }
	c.sweep()

	assert.Equal(t, 1, c.Size())
	_, err := c.Get(ctx, "long")
	assert.NoError(t, err)
}

func TestHypothesisCache_CleanupLoop(t *testing.T) {
	c := NewHypothesisCache(5 * time.Millisecond)
	defer c.Close()
	require.NoError(t, c.Set(context.Background(), "k", &latte, time.Millisecond))

	assert.Eventually(t, func() bool { return c.Size() == 0 }, time.Second, 5*time.Millisecond)
}

func TestHypothesisCache_Close(t *testing.T) {
	c := NewHypothesisCache(time.Hour)
	assert.NoError(t, c.Close())
	assert.NoError(t, c.Close())
}

func TestHypothesisCache_Concurrency(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			key := fmt.Sprintf("k%d", i%5)
			_ = c.Set(ctx, key, &latte, time.Minute)
			_, _ = c.Get(ctx, key)
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, c.Size())
}
