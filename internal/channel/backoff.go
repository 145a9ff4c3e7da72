package channel

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

// Backoff computes reconnect delays. With a multiplier of 1 and no jitter
// every delay equals Initial.
type Backoff struct {
	Initial    time.Duration // first delay
	Max        time.Duration // cap; zero means Initial
	Multiplier float64       // growth per attempt; values below 1 are treated as 1
	Jitter     float64       // jitter factor 0-1

	attempt int
	mu      sync.Mutex
}

// NewFixedBackoff returns a backoff that always waits delay.
func NewFixedBackoff(delay time.Duration) *Backoff {
	return NewBackoffWithConfig(delay, delay, 1, 0)
}

// NewBackoffWithConfig creates a Backoff with custom configuration.
func NewBackoffWithConfig(initial, max time.Duration, multiplier, jitter float64) *Backoff {
	return &Backoff{
		Initial:    initial,
		Max:        max,
		Multiplier: multiplier,
		Jitter:     jitter,
	}
}

// Next returns the next delay and increments the attempt counter.
func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	multiplier := b.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}
	max := b.Max
	if max < b.Initial {
		max = b.Initial
	}

	delay := float64(b.Initial) * math.Pow(multiplier, float64(b.attempt))
	if delay > float64(max) {
		delay = float64(max)
	}

	if b.Jitter > 0 {
		jitterRange := delay * b.Jitter
		delay = delay + (rand.Float64()*2-1)*jitterRange
	}
	if delay < 0 {
		delay = float64(b.Initial)
	}

	b.attempt++
	return time.Duration(delay)
}

// Reset resets the attempt counter to zero.
func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.attempt = 0
}

// Attempt returns the current attempt number.
func (b *Backoff) Attempt() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempt
}
