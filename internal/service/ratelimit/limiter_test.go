package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLimiter_BurstThenRefill(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := New(3, 1).WithClock(func() time.Time { return now })

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("1.2.3.4"), "burst %d", i)
	}
	assert.False(t, l.Allow("1.2.3.4"))
	assert.True(t, l.Allow("5.6.7.8"), "keys are independent")

	now = now.Add(1500 * time.Millisecond)
	assert.True(t, l.Allow("1.2.3.4"))
	assert.False(t, l.Allow("1.2.3.4"))

	now = now.Add(time.Hour)
	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("1.2.3.4"), "refill is capped at capacity")
	}
	assert.False(t, l.Allow("1.2.3.4"))
}

func TestLimiter_Sweep(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := New(100, 1).WithClock(func() time.Time { return now })
	l.Allow("a")
	now = now.Add(time.Minute)
	l.Allow("b")

	assert.Equal(t, 1, l.Sweep(30*time.Second))
	assert.Len(t, l.m, 1)
}

func TestLimiter_AllowSweepsIdleBuckets(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := New(2, 1).WithClock(func() time.Time { return now })
	l.Allow("a")
	l.Allow("b")
	assert.Len(t, l.m, 2)

	now = now.Add(2 * time.Minute)
	l.Allow("c")
	assert.Len(t, l.m, 1)
	assert.Contains(t, l.m, "c")
}
