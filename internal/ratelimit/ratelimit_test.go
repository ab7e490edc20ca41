package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

type manualClock struct {
	now time.Time
}

func (c *manualClock) Now() time.Time { return c.now }

func TestAllowSeparatesKeys(t *testing.T) {
	clock := &manualClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	limiter := New(rate.Every(time.Minute), 2, 0, clock.Now)

	assert.True(t, limiter.Allow("user-a"))
	assert.True(t, limiter.Allow("user-a"))
	assert.False(t, limiter.Allow("user-a"))
	assert.True(t, limiter.Allow("user-b"))

	clock.now = clock.now.Add(time.Minute)
	assert.True(t, limiter.Allow("user-a"))
	assert.False(t, limiter.Allow("user-a"))
}

func TestPerMinuteDisabled(t *testing.T) {
	limiter := PerMinute(0)
	for i := 0; i < 100; i++ {
		assert.True(t, limiter.Allow("user-a"))
	}
}

func TestIdleKeysAreSwept(t *testing.T) {
	clock := &manualClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	limiter := New(rate.Every(time.Second), 1, time.Minute, clock.Now)

	limiter.Allow("user-a")
	limiter.Allow("user-b")
	assert.Equal(t, 2, limiter.Len())

	clock.now = clock.now.Add(2 * time.Minute)
	limiter.Allow("user-c")
	assert.Equal(t, 1, limiter.Len())
}
