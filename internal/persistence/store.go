// Package persistence defines the dialect-abstracted Store contract (§6:
// "both single-file embedded and networked SQL backends") implemented by
// internal/persistence/sqlite (modernc.org/sqlite, pure Go, no cgo) and
// internal/persistence/postgres (jackc/pgx/v5). Every other package talks
// to this interface, never to a concrete driver, so swapping dialects
// never touches gate/processor/audit/graph call sites. Grounded in idiom
// on nevindra-oasis's store/sqlite and store/postgres packages, which
// implement one oasis.Store interface behind two drivers the same way.
package persistence

import (
	"context"

	"github.com/CIRISAI/CIRISAgent-sub001/internal/model"
)

// Store is the full persistence surface CIRIS needs: task/thought
// lifecycle, consent records, credit balances, the audit chain, and graph
// memory. One concrete type per dialect implements all of it so a single
// connection pool backs every concern.
type Store interface {
	TaskStore
	ThoughtStore
	ConsentStore
	Ledger
	AuditStore
	GraphStore

	// Init creates schema objects if they do not already exist (idempotent,
	// run at startup before migrations in deployments that use
	// internal/persistence/migrations instead).
	Init(ctx context.Context) error
	// Close releases the underlying connection/pool.
	Close() error
}

// TaskStore persists tasks (§3), matching internal/processor.TaskStore.
type TaskStore interface {
	SaveTask(ctx context.Context, task *model.Task) error
	GetTask(ctx context.Context, taskID string) (*model.Task, error)
	// ListTasks returns the most recent tasks for one occurrence, newest
	// first, bounded by limit. Backs GET /v1/agent/history (§6).
	ListTasks(ctx context.Context, occurrenceID string, limit int) ([]*model.Task, error)
}

// ThoughtStore persists thoughts (§3), matching internal/processor.ThoughtStore.
type ThoughtStore interface {
	SaveThought(ctx context.Context, thought *model.Thought) error
	ReadyThoughts(ctx context.Context, occurrenceID string, limit int) ([]*model.Thought, error)
}

// ConsentStore persists consent records (§3, §4.6), matching internal/gate.ConsentStore.
type ConsentStore interface {
	GetConsent(ctx context.Context, subjectID string) (*model.ConsentRecord, bool, error)
	PutConsent(ctx context.Context, record model.ConsentRecord) error
}

// Ledger persists Commons Credits balances (§4.6), matching internal/gate.Ledger.
type Ledger interface {
	CreditBalance(ctx context.Context, subjectID string) (int, error)
	CreditDebit(ctx context.Context, subjectID string, amount int) error
}

// AuditStore persists the hash-chained audit log (§3), matching internal/audit.Store.
type AuditStore interface {
	AppendAudit(entry model.AuditEntry) error
	AuditTail(occurrenceID string) (model.AuditEntry, bool, error)
	AuditAll(occurrenceID string) ([]model.AuditEntry, error)
}

// GraphStore persists graph memory nodes/edges (§3), matching bus.MemoryBackend.
type GraphStore interface {
	UpsertNode(ctx context.Context, node model.GraphNode) error
	GetNode(ctx context.Context, id model.NodeID) (*model.GraphNode, error)
	DeleteNode(ctx context.Context, id model.NodeID) error
	WriteEdge(ctx context.Context, edge model.GraphEdge) error
}
