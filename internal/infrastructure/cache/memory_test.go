package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creatorpulse/backend/internal/domain"
)

// fakeClock lets tests move time without sleeping
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t = f.t.Add(d)
}

func newTestMemoryCache(t *testing.T, maxEntries int) (*MemoryCache, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)}
	c := NewMemoryCache(time.Hour, maxEntries)
	c.now = clock.Now
	t.Cleanup(func() { _ = c.Close() })
	return c, clock
}

func TestMemoryCache_SetGet(t *testing.T) {
	c, _ := newTestMemoryCache(t, 0)
	ctx := context.Background()

	payload := []byte(`[{"sourcePlatform":"tiktok","sourceId":"1729"}]`)
	require.NoError(t, c.Set(ctx, "catalog:tiktok:item:1729", payload, time.Minute))

	got, err := c.Get(ctx, "catalog:tiktok:item:1729")
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	_, err = c.Get(ctx, "catalog:tiktok:item:missing")
	assert.ErrorIs(t, err, domain.ErrCacheMiss)
}

func TestMemoryCache_StoresCopies(t *testing.T) {
	c, _ := newTestMemoryCache(t, 0)
	ctx := context.Background()

	value := []byte("stanley")
	require.NoError(t, c.Set(ctx, "k", value, time.Minute))
	value[0] = 'X'

	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "stanley", string(got))

	got[0] = 'Y'
	again, _ := c.Get(ctx, "k")
	assert.Equal(t, "stanley", string(again))
}

func TestMemoryCache_Expiry(t *testing.T) {
	c, clock := newTestMemoryCache(t, 0)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))

	clock.Advance(59 * time.Second)
	ok, _ := c.Exists(ctx, "k")
	assert.True(t, ok)

	clock.Advance(time.Second)
	ok, _ = c.Exists(ctx, "k")
	assert.False(t, ok)
	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, domain.ErrCacheMiss)
}

func TestMemoryCache_NonPositiveTTLDeletes(t *testing.T) {
	c, _ := newTestMemoryCache(t, 0)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	require.NoError(t, c.Set(ctx, "k", []byte("v"), 0))
	assert.Equal(t, 0, c.Len())
}

func TestMemoryCache_Delete(t *testing.T) {
	c, _ := newTestMemoryCache(t, 0)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	require.NoError(t, c.Delete(ctx, "k"))
	require.NoError(t, c.Delete(ctx, "never-set"))

	ok, err := c.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryCache_EvictsWhenFull(t *testing.T) {
	ctx := context.Background()

	t.Run("expired entries go first", func(t *testing.T) {
		c, clock := newTestMemoryCache(t, 2)
		require.NoError(t, c.Set(ctx, "short", []byte("1"), time.Second))
		require.NoError(t, c.Set(ctx, "long", []byte("2"), time.Hour))
		clock.Advance(2 * time.Second)

		require.NoError(t, c.Set(ctx, "new", []byte("3"), time.Hour))
		assert.Equal(t, 2, c.Len())
		_, err := c.Get(ctx, "long")
		assert.NoError(t, err)
	})

	t.Run("otherwise the soonest to expire", func(t *testing.T) {
		c, _ := newTestMemoryCache(t, 2)
		require.NoError(t, c.Set(ctx, "a", []byte("1"), time.Hour))
		require.NoError(t, c.Set(ctx, "b", []byte("2"), time.Minute))

		require.NoError(t, c.Set(ctx, "c", []byte("3"), time.Hour))
		assert.Equal(t, 2, c.Len())
		_, err := c.Get(ctx, "b")
		assert.ErrorIs(t, err, domain.ErrCacheMiss)
		_, err = c.Get(ctx, "a")
		assert.NoError(t, err)
	})

	t.Run("overwriting a key never evicts", func(t *testing.T) {
		c, _ := newTestMemoryCache(t, 2)
		require.NoError(t, c.Set(ctx, "a", []byte("1"), time.Hour))
		require.NoError(t, c.Set(ctx, "b", []byte("2"), time.Minute))
		require.NoError(t, c.Set(ctx, "b", []byte("3"), time.Minute))

		got, err := c.Get(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, "1", string(got))
	})
}

func TestMemoryCache_Sweep(t *testing.T) {
	c, clock := newTestMemoryCache(t, 0)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, c.Set(ctx, fmt.Sprintf("k%d", i), []byte("v"), time.Duration(i+1)*time.Minute))
	}
	clock.Advance(3 * time.Minute)

	c.mu.Lock()
	removed := c.sweep(clock.Now())
	c.mu.Unlock()

	assert.Equal(t, 3, removed)
	assert.Equal(t, 2, c.Len())
}

func TestMemoryCache_ConcurrentAccess(t *testing.T) {
	c := NewMemoryCache(time.Millisecond, 64)
	defer c.Close()
	ctx := context.Background()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("catalog:amazon:search:%d", (w*200+i)%100)
				_ = c.Set(ctx, key, []byte("v"), time.Second)
				_, _ = c.Get(ctx, key)
				_, _ = c.Exists(ctx, key)
			}
		}(w)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Len(), 64)
}

func TestMemoryCache_CloseIsIdempotent(t *testing.T) {
	c := NewMemoryCache(time.Minute, 0)
	assert.NoError(t, c.Close())
	assert.NoError(t, c.Close())
}
