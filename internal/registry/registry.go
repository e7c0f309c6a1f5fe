// Package registry implements the L0 Service Registry (§4.1): a
// multi-provider store keyed by capability, with priority/round-robin/
// weighted-random selection and a per-provider circuit breaker. It is
// grounded on the teacher framework's core.Discovery + core.CircuitBreaker
// pair, generalized from "tools and agents" to arbitrary typed
// capabilities (communication, memory, llm, tool, runtimecontrol, wise).
package registry

import (
	"math/rand"
	"sort"
	"sync"

	"github.com/CIRISAI/CIRISAgent-sub001/internal/cerr"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/logging"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/model"
)

// Provider is a registered backend instance: opaque to the registry beyond
// its entry metadata. Buses type-assert Instance to their capability's
// concrete interface.
type Provider struct {
	Entry    model.ProviderEntry
	Instance interface{}
	breaker  *breaker
}

// key identifies a provider within a capability.
type key struct {
	capability  string
	instanceRef string
}

// Registry is a many-reader/single-writer store of providers keyed by
// capability (§5 "Service registry: many-reader single-writer").
type Registry struct {
	mu        sync.RWMutex
	providers map[string][]*Provider // capability -> providers
	cursor    map[string]int         // capability -> round-robin cursor
	logger    logging.Logger
	breakerCfg BreakerConfig
}

// New creates an empty Registry.
func New(logger logging.Logger, cfg BreakerConfig) *Registry {
	if logger == nil {
		logger = logging.NoOp()
	}
	return &Registry{
		providers:  make(map[string][]*Provider),
		cursor:     make(map[string]int),
		logger:     logger.WithComponent("registry"),
		breakerCfg: cfg,
	}
}

// Register adds a provider for a capability. Duplicate (capability,
// instance_ref) pairs are rejected (§4.1 failure semantics).
func (r *Registry) Register(capability string, entry model.ProviderEntry, instance interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry.Capability = capability
	for _, p := range r.providers[capability] {
		if p.Entry.InstanceRef == entry.InstanceRef {
			return cerr.New("registry.Register", cerr.KindValidation,
				"duplicate (capability, instance_ref): "+capability+"/"+entry.InstanceRef)
		}
	}

	p := &Provider{Entry: entry, Instance: instance, breaker: newBreaker(r.breakerCfg)}
	r.providers[capability] = append(r.providers[capability], p)
	r.logger.Info("provider registered", logging.Fields{
		"capability": capability, "instance_ref": entry.InstanceRef, "priority": entry.Priority,
	})
	return nil
}

// Remove deletes a provider from a capability's pool.
func (r *Registry) Remove(capability, instanceRef string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.providers[capability]
	for i, p := range list {
		if p.Entry.InstanceRef == instanceRef {
			r.providers[capability] = append(list[:i], list[i+1:]...)
			r.logger.Info("provider removed", logging.Fields{"capability": capability, "instance_ref": instanceRef})
			return
		}
	}
}

// Get selects one eligible provider for a capability using its declared
// selection strategy (§4.1). Returns nil, false if none are eligible.
func (r *Registry) Get(capability string) (*Provider, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	eligible := make([]*Provider, 0, len(r.providers[capability]))
	for _, p := range r.providers[capability] {
		if p.breaker.state() != model.CircuitOpen {
			eligible = append(eligible, p)
		}
	}
	if len(eligible) == 0 {
		return nil, false
	}

	strategy := eligible[0].Entry.Strategy
	switch strategy {
	case model.StrategyRoundRobin:
		cursor := r.cursor[capability]
		chosen := eligible[cursor%len(eligible)]
		r.cursor[capability] = cursor + 1
		return chosen, true
	case model.StrategyWeightedRandom:
		return weightedPick(eligible), true
	default: // priority, and unset defaults to priority
		sort.SliceStable(eligible, func(i, j int) bool {
			if eligible[i].Entry.Priority != eligible[j].Entry.Priority {
				return eligible[i].Entry.Priority < eligible[j].Entry.Priority
			}
			return eligible[i].Entry.Weight > eligible[j].Entry.Weight
		})
		return eligible[0], true
	}
}

// All returns every registered provider for a capability, eligible or not,
// for health reporting.
func (r *Registry) All(capability string) []*Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Provider, len(r.providers[capability]))
	copy(out, r.providers[capability])
	return out
}

func weightedPick(providers []*Provider) *Provider {
	total := 0.0
	for _, p := range providers {
		w := p.Entry.Weight
		if w <= 0 {
			w = 1
		}
		total += w
	}
	if total <= 0 {
		return providers[0]
	}
	r := rand.Float64() * total
	for _, p := range providers {
		w := p.Entry.Weight
		if w <= 0 {
			w = 1
		}
		if r < w {
			return p
		}
		r -= w
	}
	return providers[len(providers)-1]
}

// ReportResult records the outcome of a call made against instanceRef for
// capability, feeding its circuit breaker. Circuit breaker operations
// never error (§4.1 failure semantics).
func (r *Registry) ReportResult(capability, instanceRef string, success bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.providers[capability] {
		if p.Entry.InstanceRef == instanceRef {
			p.breaker.record(success)
			return
		}
	}
}

// State returns the circuit state of one provider, for health reporting.
func (r *Registry) State(capability, instanceRef string) (model.CircuitState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.providers[capability] {
		if p.Entry.InstanceRef == instanceRef {
			return p.breaker.state(), true
		}
	}
	return "", false
}

// ResetCircuitBreakers resets breaker state. When capability is non-empty,
// only that capability's providers are touched; invariant 4 (§8) requires
// this never leaks into unrelated capabilities.
func (r *Registry) ResetCircuitBreakers(capability string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if capability == "" {
		for _, list := range r.providers {
			for _, p := range list {
				p.breaker.reset()
			}
		}
		return
	}
	for _, p := range r.providers[capability] {
		p.breaker.reset()
	}
}

// ResetProviderCircuitBreaker resets exactly one provider's breaker,
// leaving every other provider (including siblings in the same
// capability) untouched.
func (r *Registry) ResetProviderCircuitBreaker(capability, instanceRef string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.providers[capability] {
		if p.Entry.InstanceRef == instanceRef {
			p.breaker.reset()
			return
		}
	}
}

// Health reports per-provider circuit state for a capability.
type Health struct {
	InstanceRef string            `json:"instance_ref"`
	State       model.CircuitState `json:"state"`
	Priority    int               `json:"priority"`
}

// HealthReport returns the health of every provider for a capability.
func (r *Registry) HealthReport(capability string) []Health {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Health, 0, len(r.providers[capability]))
	for _, p := range r.providers[capability] {
		out = append(out, Health{InstanceRef: p.Entry.InstanceRef, State: p.breaker.state(), Priority: p.Entry.Priority})
	}
	return out
}
