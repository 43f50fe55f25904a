package pipeline

import "time"

const DefaultMaxAttempts = 3

// RetryPolicy maps an attempt number (1-based) to the delay before the next
// attempt.
type RetryPolicy interface {
	NextDelay(attempt int) time.Duration
}

// ScheduleRetryPolicy replays a fixed delay schedule. Attempts beyond the
// schedule reuse the last entry.
type ScheduleRetryPolicy struct {
	Delays []time.Duration
}

func DefaultRetryPolicy() ScheduleRetryPolicy {
	return ScheduleRetryPolicy{
		Delays: []time.Duration{10 * time.Second, time.Minute, 5 * time.Minute},
	}
}

func (p ScheduleRetryPolicy) NextDelay(attempt int) time.Duration {
	delays := p.Delays
	if len(delays) == 0 {
		delays = DefaultRetryPolicy().Delays
	}
	if attempt < 1 {
		attempt = 1
	}
	if attempt > len(delays) {
		attempt = len(delays)
	}
	return delays[attempt-1]
}
