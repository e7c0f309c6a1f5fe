package bus

import (
	"context"

	"github.com/CIRISAI/CIRISAgent-sub001/internal/cerr"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/logging"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/model"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/registry"
)

// MemoryBackend is the graph read/write interface a Memory provider must
// implement (§4.2: "Memory Bus — graph read/write; enforces node schema
// validation").
type MemoryBackend interface {
	Upsert(ctx context.Context, node model.GraphNode) error
	Get(ctx context.Context, id model.NodeID) (*model.GraphNode, error)
	Delete(ctx context.Context, id model.NodeID) error
	Edge(ctx context.Context, edge model.GraphEdge) error
}

// MemoryBus is the Memory capability's typed façade.
type MemoryBus struct {
	base
}

// NewMemoryBus constructs the graph memory bus.
func NewMemoryBus(reg *registry.Registry, logger logging.Logger) *MemoryBus {
	return &MemoryBus{base: newBase("memory", reg, logger, DefaultRetryPolicy())}
}

// validateNode rejects nodes with an empty schema-required identity; real
// attribute-schema validation is delegated to the concrete graph store,
// which is the only place that knows a node type's declared schema.
func validateNode(node model.GraphNode) error {
	if node.ID.Scope == "" || node.ID.NodeType == "" || node.ID.NodeID == "" {
		return cerr.New("MemoryBus.validate", cerr.KindValidation, "graph node id must set scope, node_type, and node_id")
	}
	return nil
}

// Write upserts a graph node. Idempotent on an identical payload (§8
// round-trip property).
func (m *MemoryBus) Write(ctx context.Context, thought *model.Thought, node model.GraphNode) error {
	if err := validateNode(node); err != nil {
		return err
	}
	ctx = stampSpan(ctx, thought)
	return m.dispatch(ctx, func(instance interface{}) error {
		backend, ok := instance.(MemoryBackend)
		if !ok {
			return cerr.New("MemoryBus.Write", cerr.KindValidation, "provider does not implement MemoryBackend")
		}
		return backend.Upsert(ctx, node)
	})
}

// Read fetches a graph node by id.
func (m *MemoryBus) Read(ctx context.Context, thought *model.Thought, id model.NodeID) (*model.GraphNode, error) {
	ctx = stampSpan(ctx, thought)
	var result *model.GraphNode
	err := m.dispatch(ctx, func(instance interface{}) error {
		backend, ok := instance.(MemoryBackend)
		if !ok {
			return cerr.New("MemoryBus.Read", cerr.KindValidation, "provider does not implement MemoryBackend")
		}
		node, err := backend.Get(ctx, id)
		result = node
		return err
	})
	return result, err
}

// Delete removes or anonymizes a graph node (backing FORGET, §4.5).
func (m *MemoryBus) Delete(ctx context.Context, thought *model.Thought, id model.NodeID) error {
	ctx = stampSpan(ctx, thought)
	return m.dispatch(ctx, func(instance interface{}) error {
		backend, ok := instance.(MemoryBackend)
		if !ok {
			return cerr.New("MemoryBus.Delete", cerr.KindValidation, "provider does not implement MemoryBackend")
		}
		return backend.Delete(ctx, id)
	})
}

// WriteEdge writes a typed relationship between two nodes.
func (m *MemoryBus) WriteEdge(ctx context.Context, thought *model.Thought, edge model.GraphEdge) error {
	ctx = stampSpan(ctx, thought)
	return m.dispatch(ctx, func(instance interface{}) error {
		backend, ok := instance.(MemoryBackend)
		if !ok {
			return cerr.New("MemoryBus.WriteEdge", cerr.KindValidation, "provider does not implement MemoryBackend")
		}
		return backend.Edge(ctx, edge)
	})
}
