package registry

import (
	"sync"
	"time"

	"github.com/CIRISAI/CIRISAgent-sub001/internal/model"
)

// BreakerConfig configures the per-provider circuit breaker (§4.1).
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens
	// the circuit. Default 5.
	FailureThreshold int
	// BaseCooldown is how long the circuit stays open before probing.
	// Default 30s.
	BaseCooldown time.Duration
	// MaxCooldown caps the exponential backoff applied to repeated
	// half-open failures.
	MaxCooldown time.Duration
}

// DefaultBreakerConfig returns the spec's stated defaults (§4.1: "N
// consecutive failures (default 5) opens the circuit ... cooldown
// (default 30s)").
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		BaseCooldown:     30 * time.Second,
		MaxCooldown:      10 * time.Minute,
	}
}

// breaker is a single provider's circuit breaker state machine
// {closed, open, half_open} with consecutive-failure counting and
// exponential cooldown, per §3's Circuit Breaker entity.
type breaker struct {
	mu                  sync.Mutex
	cfg                 BreakerConfig
	current             model.CircuitState
	consecutiveFailures int
	cooldownUntil       time.Time
	openCount           int // number of times opened, drives exponential backoff
	halfOpenInFlight    bool
}

func newBreaker(cfg BreakerConfig) *breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.BaseCooldown <= 0 {
		cfg.BaseCooldown = 30 * time.Second
	}
	if cfg.MaxCooldown <= 0 {
		cfg.MaxCooldown = 10 * time.Minute
	}
	return &breaker{cfg: cfg, current: model.CircuitClosed}
}

// state returns the breaker's current state, transitioning open->half_open
// once the cooldown has elapsed.
func (b *breaker) state() model.CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stateLocked()
}

func (b *breaker) stateLocked() model.CircuitState {
	if b.current == model.CircuitOpen && time.Now().After(b.cooldownUntil) {
		b.current = model.CircuitHalfOpen
		b.halfOpenInFlight = false
	}
	return b.current
}

// record reports the outcome of a call made while the breaker permitted
// execution (§4.1: "on each call result, the caller reports
// success/failure").
func (b *breaker) record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	state := b.stateLocked()
	switch state {
	case model.CircuitClosed:
		if success {
			b.consecutiveFailures = 0
			return
		}
		b.consecutiveFailures++
		if b.consecutiveFailures >= b.cfg.FailureThreshold {
			b.open()
		}
	case model.CircuitHalfOpen:
		if success {
			b.close()
		} else {
			b.open()
		}
	case model.CircuitOpen:
		// A stray result arriving after the breaker already reopened;
		// ignore, the next probe will re-evaluate.
	}
}

func (b *breaker) open() {
	b.current = model.CircuitOpen
	b.openCount++
	cooldown := b.cfg.BaseCooldown * time.Duration(1<<uint(min(b.openCount-1, 10)))
	if cooldown > b.cfg.MaxCooldown {
		cooldown = b.cfg.MaxCooldown
	}
	b.cooldownUntil = time.Now().Add(cooldown)
	b.consecutiveFailures = 0
}

func (b *breaker) close() {
	b.current = model.CircuitClosed
	b.consecutiveFailures = 0
	b.openCount = 0
	b.halfOpenInFlight = false
}

// reset forces an open (or half-open) breaker back to half_open, admitting
// one probe, matching S6 ("a targeted reset of the LLM capability returns A
// to half-open") (§4.1 "Resetting must act only on the targeted
// capability/provider"). A breaker that is already closed stays closed.
func (b *breaker) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current == model.CircuitClosed {
		b.close()
		return
	}
	b.current = model.CircuitHalfOpen
	b.consecutiveFailures = 0
	b.halfOpenInFlight = false
}

// AdmitProbe reports whether a half-open breaker should admit this call as
// its single probe (§4.1: "admitting one probe").
func (b *breaker) AdmitProbe() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stateLocked() != model.CircuitHalfOpen {
		return true
	}
	if b.halfOpenInFlight {
		return false
	}
	b.halfOpenInFlight = true
	return true
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
