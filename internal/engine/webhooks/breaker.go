package webhooks

import (
	"sync"
	"time"
)

type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

// Breaker stops hammering the automation endpoint after threshold
// consecutive failures. After cooldown a single probe is let through; its
// outcome closes or re-opens the breaker.
type Breaker struct {
	mu            sync.Mutex
	state         breakerState
	failures      int
	threshold     int
	cooldown      time.Duration
	reopenAt      time.Time
	probeInFlight bool
	now           func() time.Time
}

func NewBreaker(threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	return &Breaker{threshold: threshold, cooldown: cooldown, now: time.Now}
}

// Allow reports whether a request may be sent now. A true result in the
// open state claims the single half-open probe.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case breakerOpen:
		if b.now().Before(b.reopenAt) || b.probeInFlight {
			return false
		}
		b.state = breakerHalfOpen
		b.probeInFlight = true
		return true
	case breakerHalfOpen:
		if b.probeInFlight {
			return false
		}
		b.probeInFlight = true
		return true
	default:
		return true
	}
}

func (b *Breaker) Success() {
	b.mu.Lock()
	b.failures = 0
	b.state = breakerClosed
	b.probeInFlight = false
	b.mu.Unlock()
}

func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == breakerHalfOpen {
		b.trip()
		return
	}

	b.failures++
	if b.failures >= b.threshold {
		b.trip()
	}
}

func (b *Breaker) trip() {
	b.state = breakerOpen
	b.reopenAt = b.now().Add(b.cooldown)
	b.probeInFlight = false
}
