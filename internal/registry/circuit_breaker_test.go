package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CIRISAI/CIRISAgent-sub001/internal/model"
)

func TestBreaker_OpensAfterConsecutiveFailuresReachThreshold(t *testing.T) {
	b := newBreaker(BreakerConfig{FailureThreshold: 3, BaseCooldown: time.Minute, MaxCooldown: time.Hour})

	b.record(false)
	b.record(false)
	assert.Equal(t, model.CircuitClosed, b.state())

	b.record(false)
	assert.Equal(t, model.CircuitOpen, b.state())
}

func TestBreaker_SuccessResetsConsecutiveFailureCounter(t *testing.T) {
	b := newBreaker(BreakerConfig{FailureThreshold: 3, BaseCooldown: time.Minute, MaxCooldown: time.Hour})

	b.record(false)
	b.record(false)
	b.record(true)
	b.record(false)
	b.record(false)

	assert.Equal(t, model.CircuitClosed, b.state(), "the success in between should have reset the streak")
}

func TestBreaker_TransitionsOpenToHalfOpenOnceCooldownElapses(t *testing.T) {
	b := newBreaker(BreakerConfig{FailureThreshold: 1, BaseCooldown: time.Millisecond, MaxCooldown: time.Second})

	b.record(false)
	require.Equal(t, model.CircuitOpen, b.state())

	time.Sleep(5 * time.Millisecond)

	assert.Equal(t, model.CircuitHalfOpen, b.state())
}

func TestBreaker_HalfOpenSuccessCloses(t *testing.T) {
	b := newBreaker(BreakerConfig{FailureThreshold: 1, BaseCooldown: time.Millisecond, MaxCooldown: time.Second})
	b.record(false)
	time.Sleep(5 * time.Millisecond)
	require.Equal(t, model.CircuitHalfOpen, b.state())

	b.record(true)

	assert.Equal(t, model.CircuitClosed, b.state())
}

func TestBreaker_HalfOpenFailureReopensWithExponentialCooldown(t *testing.T) {
	b := newBreaker(BreakerConfig{FailureThreshold: 1, BaseCooldown: 10 * time.Millisecond, MaxCooldown: time.Second})
	b.record(false) // opens, cooldown = 10ms
	time.Sleep(15 * time.Millisecond)
	require.Equal(t, model.CircuitHalfOpen, b.state())

	b.record(false) // reopens, cooldown should double to ~20ms

	assert.Equal(t, model.CircuitOpen, b.state())
	time.Sleep(15 * time.Millisecond)
	assert.Equal(t, model.CircuitOpen, b.state(), "doubled cooldown should not have elapsed yet")
	time.Sleep(15 * time.Millisecond)
	assert.Equal(t, model.CircuitHalfOpen, b.state())
}

func TestBreaker_OpenIgnoresStrayResults(t *testing.T) {
	b := newBreaker(BreakerConfig{FailureThreshold: 1, BaseCooldown: time.Hour, MaxCooldown: time.Hour})
	b.record(false)
	require.Equal(t, model.CircuitOpen, b.state())

	b.record(true)

	assert.Equal(t, model.CircuitOpen, b.state(), "a stray result while open must not reopen or close early")
}

// TestBreaker_ResetOnOpenBreakerAdmitsOneProbeViaHalfOpen exercises S6: "a
// targeted reset of the LLM capability returns A to half-open" rather than
// unconditionally closing it.
func TestBreaker_ResetOnOpenBreakerAdmitsOneProbeViaHalfOpen(t *testing.T) {
	b := newBreaker(BreakerConfig{FailureThreshold: 1, BaseCooldown: time.Hour, MaxCooldown: time.Hour})
	b.record(false)
	require.Equal(t, model.CircuitOpen, b.state())

	b.reset()

	assert.Equal(t, model.CircuitHalfOpen, b.state())
	assert.True(t, b.AdmitProbe(), "half-open after reset should admit its first probe")
}

func TestBreaker_ResetOnClosedBreakerStaysClosed(t *testing.T) {
	b := newBreaker(DefaultBreakerConfig())
	require.Equal(t, model.CircuitClosed, b.state())

	b.reset()

	assert.Equal(t, model.CircuitClosed, b.state())
}

func TestBreaker_AdmitProbeOnlyAllowsOneInFlightProbePerHalfOpenWindow(t *testing.T) {
	b := newBreaker(BreakerConfig{FailureThreshold: 1, BaseCooldown: time.Millisecond, MaxCooldown: time.Second})
	b.record(false)
	time.Sleep(5 * time.Millisecond)
	require.Equal(t, model.CircuitHalfOpen, b.state())

	assert.True(t, b.AdmitProbe())
	assert.False(t, b.AdmitProbe(), "a second concurrent probe must not be admitted")
}

func TestBreaker_AdmitProbeAlwaysAllowsWhenNotHalfOpen(t *testing.T) {
	b := newBreaker(DefaultBreakerConfig())
	assert.True(t, b.AdmitProbe())
	assert.True(t, b.AdmitProbe())
}
