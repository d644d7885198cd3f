package webhooks

import "time"

type Decision int

const (
	Delivered Decision = iota
	Retry
	GiveUp
)

func (d Decision) String() string {
	switch d {
	case Delivered:
		return "delivered"
	case Retry:
		return "retry"
	default:
		return "failed"
	}
}

// Retrier decides what happens to an outbox message after an attempt.
//
//   - 2xx → Delivered
//   - 408, 429, 5xx, 0 (network error, breaker open) → Retry while attempts remain
//   - other 4xx → GiveUp (the receiver rejected the payload; resending will not help)
type Retrier struct {
	schedule []time.Duration
}

func NewRetrier(schedule []time.Duration) *Retrier {
	if len(schedule) == 0 {
		schedule = []time.Duration{10 * time.Second, 30 * time.Second, 2 * time.Minute, 10 * time.Minute, 30 * time.Minute}
	}
	return &Retrier{schedule: schedule}
}

func (r *Retrier) Decide(statusCode, attempts, maxAttempts int) Decision {
	if statusCode >= 200 && statusCode < 300 {
		return Delivered
	}

	retryable := statusCode == 0 || statusCode == 408 || statusCode == 429 || statusCode >= 500
	if !retryable {
		return GiveUp
	}
	if attempts < maxAttempts {
		return Retry
	}
	return GiveUp
}

// NextAttempt returns when attempt number attempts+1 is due; the last
// schedule step repeats.
func (r *Retrier) NextAttempt(from time.Time, attempts int) time.Time {
	idx := attempts - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(r.schedule) {
		idx = len(r.schedule) - 1
	}
	return from.Add(r.schedule[idx])
}
