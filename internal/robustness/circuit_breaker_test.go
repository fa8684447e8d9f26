package robustness

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var errProbe = errors.New("probe failed")

func fail() error { return errProbe }
func ok() error   { return nil }

func TestOpensAfterThresholdFailures(t *testing.T) {
	cb := NewCircuitBreaker(3, time.Hour)

	for i := 0; i < 2; i++ {
		assert.ErrorIs(t, cb.Execute(fail), errProbe)
		assert.Equal(t, StateClosed, cb.CurrentState())
	}

	assert.ErrorIs(t, cb.Execute(fail), errProbe)
	assert.Equal(t, StateOpen, cb.CurrentState())

	// Open breaker rejects without running fn.
	ran := false
	err := cb.Execute(func() error { ran = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, ran)
}

func TestSuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker(3, time.Hour)

	assert.Error(t, cb.Execute(fail))
	assert.Error(t, cb.Execute(fail))
	assert.NoError(t, cb.Execute(ok))

	// The run restarts: two more failures do not trip a threshold of three.
	assert.Error(t, cb.Execute(fail))
	assert.Error(t, cb.Execute(fail))
	assert.Equal(t, StateClosed, cb.CurrentState())
}

func TestHalfOpenProbeDecidesState(t *testing.T) {
	cb := NewCircuitBreaker(1, 10*time.Millisecond)

	assert.Error(t, cb.Execute(fail))
	assert.Equal(t, StateOpen, cb.CurrentState())

	time.Sleep(20 * time.Millisecond)

	// A failed half-open probe reopens immediately.
	assert.ErrorIs(t, cb.Execute(fail), errProbe)
	assert.Equal(t, StateOpen, cb.CurrentState())

	time.Sleep(20 * time.Millisecond)

	// A successful probe closes the breaker.
	assert.NoError(t, cb.Execute(ok))
	assert.Equal(t, StateClosed, cb.CurrentState())
}
