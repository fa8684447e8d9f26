package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBurstThenExhaustion(t *testing.T) {
	b := NewBucket(3, 0.001)

	for i := 0; i < 3; i++ {
		assert.True(t, b.Allow())
	}
	assert.False(t, b.Allow())
}

func TestRefill(t *testing.T) {
	b := NewBucket(1, 100) // 100 tokens per second

	assert.True(t, b.Allow())
	assert.False(t, b.Allow())

	time.Sleep(30 * time.Millisecond)
	assert.True(t, b.Allow())
}

func TestCapacityCapsRefill(t *testing.T) {
	b := NewBucket(2, 1000)
	time.Sleep(20 * time.Millisecond)
	assert.LessOrEqual(t, b.Available(), 2.0)
}
