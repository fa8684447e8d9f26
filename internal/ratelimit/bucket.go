// Package ratelimit provides a token bucket used to cap reconnect attempts,
// so a flapping stream cannot dial in a tight loop.
package ratelimit

import (
	"sync"
	"time"
)

// Bucket is a token bucket. It starts full and refills continuously at the
// configured rate, up to its capacity. Safe for concurrent use.
type Bucket struct {
	mu         sync.Mutex
	tokens     float64
	capacity   float64
	refillRate float64 // tokens per second
	last       time.Time
}

// NewBucket creates a bucket holding capacity tokens that refills at rate
// tokens per second.
func NewBucket(capacity, rate float64) *Bucket {
	return &Bucket{
		tokens:     capacity,
		capacity:   capacity,
		refillRate: rate,
		last:       time.Now(),
	}
}

func (b *Bucket) refill() {
	now := time.Now()
	b.tokens += now.Sub(b.last).Seconds() * b.refillRate
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
	b.last = now
}

// Allow consumes one token if available.
func (b *Bucket) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill()
	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// Available returns the current token count.
func (b *Bucket) Available() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill()
	return b.tokens
}
