// Package backoff computes reconnect delays.
package backoff

import "time"

// Strategy yields the delay before the next reconnect attempt.
type Strategy interface {
	NextDelay() time.Duration
	Reset()
}

// ExponentialBackoff doubles the delay on each attempt, starting at min and capped at max.
// It is not safe for concurrent use.
type ExponentialBackoff struct {
	minDelay     time.Duration
	maxDelay     time.Duration
	currentDelay time.Duration
}

var _ Strategy = (*ExponentialBackoff)(nil)

// NewExponentialBackoff creates a backoff from minDelay to maxDelay. A non-positive minDelay
// yields no delay at all.
func NewExponentialBackoff(minDelay, maxDelay time.Duration) *ExponentialBackoff {
	if maxDelay < minDelay {
		maxDelay = minDelay
	}

	return &ExponentialBackoff{
		minDelay:     minDelay,
		maxDelay:     maxDelay,
		currentDelay: minDelay,
	}
}

// NextDelay returns the current delay and doubles it for the next call.
func (e *ExponentialBackoff) NextDelay() time.Duration {
	if e.minDelay <= 0 {
		return 0
	}

	delay := e.currentDelay
	e.currentDelay *= 2
	if e.currentDelay > e.maxDelay {
		e.currentDelay = e.maxDelay
	}

	return delay
}

// Reset restarts the sequence from the minimum delay.
func (e *ExponentialBackoff) Reset() {
	e.currentDelay = e.minDelay
}
