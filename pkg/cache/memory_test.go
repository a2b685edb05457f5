package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestCache(t *testing.T, opts ...MemoryOption) (*MemoryCache, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	opts = append([]MemoryOption{WithMemoryClock(clock.Now), WithMemoryCleanup(0)}, opts...)
	mc := NewMemoryCache(opts...)
	t.Cleanup(func() { _ = mc.Close() })
	return mc, clock
}

func TestMemoryCache_SetGetStructRoundTrip(t *testing.T) {
	mc, _ := newTestCache(t)
	ctx := context.Background()

	type result struct {
		Executed bool   `json:"executed"`
		Message  string `json:"message"`
	}
	require.NoError(t, mc.Set(ctx, "alert:1", result{Executed: true, Message: "ok"}, time.Minute))

	var got result
	require.NoError(t, mc.Get(ctx, "alert:1", &got))
	assert.Equal(t, result{Executed: true, Message: "ok"}, got)

	var s string
	require.NoError(t, mc.Set(ctx, "plain", "value", 0))
	require.NoError(t, mc.Get(ctx, "plain", &s))
	assert.Equal(t, "value", s)
}

func TestMemoryCache_MissAndExpiry(t *testing.T) {
	mc, clock := newTestCache(t)
	ctx := context.Background()

	var s string
	assert.ErrorIs(t, mc.Get(ctx, "missing", &s), ErrCacheMiss)

	require.NoError(t, mc.Set(ctx, "k", "v", time.Second))
	ok, err := mc.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)

	clock.Advance(2 * time.Second)
	ok, err = mc.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.ErrorIs(t, mc.Get(ctx, "k", &s), ErrCacheMiss)
}

func TestMemoryCache_TryLock(t *testing.T) {
	mc, clock := newTestCache(t)
	ctx := context.Background()

	ok, err := mc.TryLock(ctx, "alert:a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = mc.TryLock(ctx, "alert:a", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second claim must fail while held")

	require.NoError(t, mc.Unlock(ctx, "alert:a"))
	ok, err = mc.TryLock(ctx, "alert:a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	clock.Advance(2 * time.Minute)
	ok, err = mc.TryLock(ctx, "alert:a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "expired lock is reclaimable")
}

func TestMemoryCache_TryLockConcurrentSingleWinner(t *testing.T) {
	mc, _ := newTestCache(t)
	ctx := context.Background()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := mc.TryLock(ctx, "same", time.Minute)
			if err == nil && ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestMemoryCache_EvictsLeastRecentlyUsed(t *testing.T) {
	mc, clock := newTestCache(t, WithMemoryMaxSize(2))
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "a", "1", 0))
	clock.Advance(time.Millisecond)
	require.NoError(t, mc.Set(ctx, "b", "2", 0))
	clock.Advance(time.Millisecond)

	var s string
	require.NoError(t, mc.Get(ctx, "a", &s)) // a is now fresher than b
	clock.Advance(time.Millisecond)
	require.NoError(t, mc.Set(ctx, "c", "3", 0))

	assert.Equal(t, 2, mc.Len())
	assert.ErrorIs(t, mc.Get(ctx, "b", &s), ErrCacheMiss)
	require.NoError(t, mc.Get(ctx, "a", &s))
	assert.Equal(t, "1", s)
}

func TestMemoryCache_DeleteAndClose(t *testing.T) {
	mc, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "a", "1", 0))
	require.NoError(t, mc.Set(ctx, "b", "2", 0))
	require.NoError(t, mc.Delete(ctx, "a", "b"))
	assert.Equal(t, 0, mc.Len())

	assert.NoError(t, mc.Close())
	assert.NoError(t, mc.Close())
}

func TestGenerateKey(t *testing.T) {
	assert.Equal(t, "alert:abc", GenerateKey("alert", "abc"))
}
