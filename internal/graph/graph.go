// Package graph implements the graph memory store backing the Memory Bus
// (§3 "Graph Node"/"Graph Edge", §4.2, §5 "writes ... serialized by node
// id"). The in-process store here is the default for tests and
// single-occurrence deployments; `internal/persistence` provides the
// durable sqlite/postgres-backed implementation of the same
// bus.MemoryBackend interface (persistence.GraphAdapter) for production use.
package graph

import (
	"context"
	"sync"

	"github.com/CIRISAI/CIRISAgent-sub001/internal/cerr"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/model"
)

// key renders a NodeID to a map key; scope/type/id together are the
// node's full identity (§3).
func key(id model.NodeID) string {
	return id.Scope + "\x00" + id.NodeType + "\x00" + id.NodeID
}

// nodeLock is a per-node mutex, so concurrent writes to different nodes
// never contend but writes to the same node id are serialized (§5).
type nodeLock struct {
	mu sync.Mutex
}

// Store is an in-process graph memory implementation of
// bus.MemoryBackend, storing versioned nodes and typed edges.
type Store struct {
	mu    sync.RWMutex
	nodes map[string]model.GraphNode
	edges map[string][]model.GraphEdge
	locks map[string]*nodeLock
}

// New constructs an empty Store.
func New() *Store {
	return &Store{
		nodes: make(map[string]model.GraphNode),
		edges: make(map[string][]model.GraphEdge),
		locks: make(map[string]*nodeLock),
	}
}

func (s *Store) lockFor(k string) *nodeLock {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[k]
	if !ok {
		l = &nodeLock{}
		s.locks[k] = l
	}
	return l
}

// Upsert writes node, bumping its version when it already exists. The
// write is serialized against any other write to the same node id.
func (s *Store) Upsert(ctx context.Context, node model.GraphNode) error {
	k := key(node.ID)
	lock := s.lockFor(k)
	lock.mu.Lock()
	defer lock.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.nodes[k]
	if ok {
		node.Version = existing.Version + 1
		node.CreatedAt = existing.CreatedAt
	} else {
		node.Version = 1
		if node.CreatedAt.IsZero() {
			node.CreatedAt = node.UpdatedAt
		}
	}
	s.nodes[k] = node
	return nil
}

// Get fetches a node by id, or nil if it does not exist (RECALL returns
// an empty result rather than an error on a miss).
func (s *Store) Get(ctx context.Context, id model.NodeID) (*model.GraphNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	node, ok := s.nodes[key(id)]
	if !ok {
		return nil, nil
	}
	out := node
	return &out, nil
}

// Delete removes a node (backing FORGET, §4.5) and the edges attached to
// it in either direction.
func (s *Store) Delete(ctx context.Context, id model.NodeID) error {
	k := key(id)
	lock := s.lockFor(k)
	lock.mu.Lock()
	defer lock.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.nodes[k]; !ok {
		return cerr.New("graph.Store.Delete", cerr.KindValidation, "node not found")
	}
	delete(s.nodes, k)
	delete(s.edges, k)
	for from, edges := range s.edges {
		kept := edges[:0]
		for _, e := range edges {
			if key(e.To) != k {
				kept = append(kept, e)
			}
		}
		s.edges[from] = kept
	}
	return nil
}

// Edge records a typed relationship between two nodes.
func (s *Store) Edge(ctx context.Context, edge model.GraphEdge) error {
	fromKey := key(edge.From)
	lock := s.lockFor(fromKey)
	lock.mu.Lock()
	defer lock.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.nodes[fromKey]; !ok {
		return cerr.New("graph.Store.Edge", cerr.KindValidation, "source node not found")
	}
	if _, ok := s.nodes[key(edge.To)]; !ok {
		return cerr.New("graph.Store.Edge", cerr.KindValidation, "target node not found")
	}
	s.edges[fromKey] = append(s.edges[fromKey], edge)
	return nil
}

// Edges returns the outbound edges recorded for a node, for diagnostics
// and the DSAR export path (§6).
func (s *Store) Edges(ctx context.Context, from model.NodeID) ([]model.GraphEdge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	edges := s.edges[key(from)]
	out := make([]model.GraphEdge, len(edges))
	copy(out, edges)
	return out, nil
}
