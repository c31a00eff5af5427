package recording

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterWindow(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	now := time.Unix(1000, 0)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("room1"))
	assert.True(t, rl.Allow("room1"))
	assert.False(t, rl.Allow("room1"))
	assert.True(t, rl.Allow("room2"))

	now = now.Add(61 * time.Second)
	assert.True(t, rl.Allow("room1"))
}

func TestRateLimiterRetryAfter(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	now := time.Unix(1000, 0)
	rl.now = func() time.Time { return now }

	_, ok := rl.Reserve("room1")
	assert.True(t, ok)
	now = now.Add(20 * time.Second)
	_, ok = rl.Reserve("room1")
	assert.True(t, ok)

	now = now.Add(10 * time.Second)
	wait, ok := rl.Reserve("room1")
	assert.False(t, ok)
	assert.Equal(t, 30*time.Second, wait)

	// A rejected attempt does not extend the window.
	now = now.Add(wait + time.Second)
	_, ok = rl.Reserve("room1")
	assert.True(t, ok)
}

func TestRateLimiterPrune(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	now := time.Unix(1000, 0)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("room1"))
	now = now.Add(45 * time.Second)
	assert.True(t, rl.Allow("room2"))
	assert.Equal(t, 0, rl.Prune())

	now = now.Add(30 * time.Second)
	assert.Equal(t, 1, rl.Prune())
	assert.Len(t, rl.attempts, 1)
	assert.False(t, rl.Allow("room2"))
	assert.True(t, rl.Allow("room1"))

	var disabled *RateLimiter
	assert.Equal(t, 0, disabled.Prune())
}

func TestRateLimiterDisabled(t *testing.T) {
	var rl *RateLimiter
	assert.True(t, rl.Allow("room1"))

	rl = NewRateLimiter(0, time.Minute)
	for range 5 {
		assert.True(t, rl.Allow("room1"))
	}
}

func TestParseAction(t *testing.T) {
	a, err := ParseAction("stop")
	assert.NoError(t, err)
	assert.Equal(t, ActionStop, a)

	_, err = ParseAction("")
	assert.ErrorIs(t, err, ErrUnknownAction)
}
