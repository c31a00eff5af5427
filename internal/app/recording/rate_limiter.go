package recording

import (
	"sync"
	"time"

	"github.com/dkeye/Recorder/internal/domain"
)

// RateLimiter bounds start attempts per conference within a sliding window.
// Attempts are kept oldest first.
type RateLimiter struct {
	mu       sync.Mutex
	attempts map[domain.ConferenceID][]time.Time
	limit    int
	window   time.Duration
	now      func() time.Time
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		attempts: make(map[domain.ConferenceID][]time.Time),
		limit:    limit,
		window:   window,
		now:      time.Now,
	}
}

func (rl *RateLimiter) Allow(conf domain.ConferenceID) bool {
	_, ok := rl.Reserve(conf)
	return ok
}

// Reserve records an attempt for conf when the window has room. Otherwise
// it reports how long until the oldest attempt leaves the window.
func (rl *RateLimiter) Reserve(conf domain.ConferenceID) (time.Duration, bool) {
	if rl == nil || rl.limit <= 0 {
		return 0, true
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	kept := rl.expire(conf, now)
	if len(kept) >= rl.limit {
		return kept[0].Add(rl.window).Sub(now), false
	}
	rl.attempts[conf] = append(kept, now)
	return 0, true
}

// Prune forgets conferences without attempts inside the window and returns
// how many were dropped.
func (rl *RateLimiter) Prune() int {
	if rl == nil {
		return 0
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	dropped := 0
	for conf := range rl.attempts {
		if rl.expire(conf, now) == nil {
			dropped++
		}
	}
	return dropped
}

func (rl *RateLimiter) expire(conf domain.ConferenceID, now time.Time) []time.Time {
	attempts := rl.attempts[conf]
	cutoff := now.Add(-rl.window)
	i := 0
	for i < len(attempts) && !attempts[i].After(cutoff) {
		i++
	}
	if i == len(attempts) {
		delete(rl.attempts, conf)
		return nil
	}
	attempts = attempts[i:]
	rl.attempts[conf] = attempts
	return attempts
}
