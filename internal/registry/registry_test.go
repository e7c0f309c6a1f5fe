package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CIRISAI/CIRISAgent-sub001/internal/cerr"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/logging"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/model"
)

func newTestRegistry() *Registry {
	return New(logging.NoOp(), DefaultBreakerConfig())
}

func TestRegistry_RegisterRejectsDuplicateInstanceRef(t *testing.T) {
	r := newTestRegistry()
	require.NoError(t, r.Register("llm", model.ProviderEntry{InstanceRef: "primary"}, "a"))

	err := r.Register("llm", model.ProviderEntry{InstanceRef: "primary"}, "b")

	require.Error(t, err)
	assert.True(t, cerr.Is(err, cerr.KindValidation))
}

func TestRegistry_RegisterAllowsSameInstanceRefOnDifferentCapabilities(t *testing.T) {
	r := newTestRegistry()
	require.NoError(t, r.Register("llm", model.ProviderEntry{InstanceRef: "shared"}, "a"))

	err := r.Register("memory", model.ProviderEntry{InstanceRef: "shared"}, "b")

	assert.NoError(t, err)
}

func TestRegistry_GetPriorityStrategyPrefersLowestPriorityThenHighestWeight(t *testing.T) {
	r := newTestRegistry()
	require.NoError(t, r.Register("llm", model.ProviderEntry{
		InstanceRef: "low-priority", Priority: 5, Weight: 1, Strategy: model.StrategyPriority,
	}, "low"))
	require.NoError(t, r.Register("llm", model.ProviderEntry{
		InstanceRef: "high-priority-a", Priority: 1, Weight: 1, Strategy: model.StrategyPriority,
	}, "a"))
	require.NoError(t, r.Register("llm", model.ProviderEntry{
		InstanceRef: "high-priority-b", Priority: 1, Weight: 10, Strategy: model.StrategyPriority,
	}, "b"))

	p, ok := r.Get("llm")

	require.True(t, ok)
	assert.Equal(t, "high-priority-b", p.Entry.InstanceRef, "same priority breaks ties by highest weight")
}

func TestRegistry_GetRoundRobinStrategyCyclesThroughEligibleProviders(t *testing.T) {
	r := newTestRegistry()
	require.NoError(t, r.Register("tool", model.ProviderEntry{InstanceRef: "t1", Strategy: model.StrategyRoundRobin}, "1"))
	require.NoError(t, r.Register("tool", model.ProviderEntry{InstanceRef: "t2", Strategy: model.StrategyRoundRobin}, "2"))

	seen := make([]string, 0, 4)
	for i := 0; i < 4; i++ {
		p, ok := r.Get("tool")
		require.True(t, ok)
		seen = append(seen, p.Entry.InstanceRef)
	}

	assert.Equal(t, []string{"t1", "t2", "t1", "t2"}, seen)
}

func TestRegistry_GetWeightedRandomStrategyOnlyPicksEligibleProviders(t *testing.T) {
	r := newTestRegistry()
	require.NoError(t, r.Register("tool", model.ProviderEntry{
		InstanceRef: "heavy", Weight: 100, Strategy: model.StrategyWeightedRandom,
	}, "h"))
	require.NoError(t, r.Register("tool", model.ProviderEntry{
		InstanceRef: "light", Weight: 0.001, Strategy: model.StrategyWeightedRandom,
	}, "l"))

	for i := 0; i < 20; i++ {
		p, ok := r.Get("tool")
		require.True(t, ok)
		assert.Contains(t, []string{"heavy", "light"}, p.Entry.InstanceRef)
	}
}

func TestRegistry_GetExcludesCircuitOpenProviders(t *testing.T) {
	r := newTestRegistry()
	require.NoError(t, r.Register("llm", model.ProviderEntry{
		InstanceRef: "flaky", Priority: 0, Strategy: model.StrategyPriority,
	}, "a"))
	require.NoError(t, r.Register("llm", model.ProviderEntry{
		InstanceRef: "backup", Priority: 1, Strategy: model.StrategyPriority,
	}, "b"))

	for i := 0; i < DefaultBreakerConfig().FailureThreshold; i++ {
		r.ReportResult("llm", "flaky", false)
	}

	p, ok := r.Get("llm")
	require.True(t, ok)
	assert.Equal(t, "backup", p.Entry.InstanceRef)
}

func TestRegistry_GetReturnsFalseWhenNoProviderRegistered(t *testing.T) {
	r := newTestRegistry()
	_, ok := r.Get("wise")
	assert.False(t, ok)
}

// TestRegistry_ResetProviderCircuitBreakerIsolatesSiblingsAndCapabilities
// exercises invariant 4 / S6: a targeted reset must only affect the named
// provider, leaving siblings on the same capability and providers on
// other capabilities untouched.
func TestRegistry_ResetProviderCircuitBreakerIsolatesSiblingsAndCapabilities(t *testing.T) {
	r := newTestRegistry()
	require.NoError(t, r.Register("llm", model.ProviderEntry{InstanceRef: "a", Priority: 0, Strategy: model.StrategyPriority}, "a"))
	require.NoError(t, r.Register("llm", model.ProviderEntry{InstanceRef: "b", Priority: 1, Strategy: model.StrategyPriority}, "b"))
	require.NoError(t, r.Register("memory", model.ProviderEntry{InstanceRef: "a", Priority: 0, Strategy: model.StrategyPriority}, "a"))

	for i := 0; i < DefaultBreakerConfig().FailureThreshold; i++ {
		r.ReportResult("llm", "a", false)
		r.ReportResult("llm", "b", false)
		r.ReportResult("memory", "a", false)
	}
	state, _ := r.State("llm", "a")
	require.Equal(t, model.CircuitOpen, state)

	r.ResetProviderCircuitBreaker("llm", "a")

	llmA, _ := r.State("llm", "a")
	llmB, _ := r.State("llm", "b")
	memA, _ := r.State("memory", "a")
	assert.Equal(t, model.CircuitHalfOpen, llmA, "targeted reset admits one probe, not a full close")
	assert.Equal(t, model.CircuitOpen, llmB, "sibling on the same capability stays untouched")
	assert.Equal(t, model.CircuitOpen, memA, "provider on a different capability stays untouched")
}

func TestRegistry_ResetCircuitBreakersScopedToCapabilityLeavesOthersOpen(t *testing.T) {
	r := newTestRegistry()
	require.NoError(t, r.Register("llm", model.ProviderEntry{InstanceRef: "a", Strategy: model.StrategyPriority}, "a"))
	require.NoError(t, r.Register("memory", model.ProviderEntry{InstanceRef: "a", Strategy: model.StrategyPriority}, "a"))

	for i := 0; i < DefaultBreakerConfig().FailureThreshold; i++ {
		r.ReportResult("llm", "a", false)
		r.ReportResult("memory", "a", false)
	}

	r.ResetCircuitBreakers("memory")

	llmState, _ := r.State("llm", "a")
	memState, _ := r.State("memory", "a")
	assert.Equal(t, model.CircuitOpen, llmState, "a reset scoped to memory must not reset llm")
	assert.Equal(t, model.CircuitHalfOpen, memState)
}
