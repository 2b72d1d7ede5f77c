package hub

import (
	"sync"
	"time"
)

// stateLimiter collapses typing/presence bursts: per key, an event passes
// when its state differs from the last delivered one, or when the window
// has elapsed. State transitions always pass, so the trailing state wins
// and a burst of identical events within the window is dropped.
type stateLimiter struct {
	mu     sync.Mutex
	window time.Duration
	last   map[string]stateAt
}

type stateAt struct {
	state bool
	at    time.Time
}

func newStateLimiter(window time.Duration) *stateLimiter {
	return &stateLimiter{window: window, last: make(map[string]stateAt)}
}

func (l *stateLimiter) allow(key string, state bool) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	prev, ok := l.last[key]
	if ok && prev.state == state && now.Sub(prev.at) < l.window {
		return false
	}
	l.last[key] = stateAt{state: state, at: now}
	return true
}

// forget drops the key so the next event passes unconditionally.
func (l *stateLimiter) forget(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.last, key)
}
