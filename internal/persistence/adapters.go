package persistence

import (
	"context"

	"github.com/CIRISAI/CIRISAgent-sub001/internal/model"
)

// TaskAdapter narrows a Store to internal/processor.TaskStore's exact
// method names (Save/Get), which differ from Store's SaveTask/GetTask to
// avoid a name collision with ThoughtAdapter on the same concrete type.
type TaskAdapter struct{ Store TaskStore }

func (a TaskAdapter) Save(ctx context.Context, task *model.Task) error {
	return a.Store.SaveTask(ctx, task)
}

func (a TaskAdapter) Get(ctx context.Context, taskID string) (*model.Task, error) {
	return a.Store.GetTask(ctx, taskID)
}

// List narrows a Store to internal/httpapi's TaskLister.
func (a TaskAdapter) List(ctx context.Context, occurrenceID string, limit int) ([]*model.Task, error) {
	return a.Store.ListTasks(ctx, occurrenceID, limit)
}

// ThoughtAdapter narrows a Store to internal/processor.ThoughtStore.
type ThoughtAdapter struct{ Store ThoughtStore }

func (a ThoughtAdapter) Save(ctx context.Context, thought *model.Thought) error {
	return a.Store.SaveThought(ctx, thought)
}

func (a ThoughtAdapter) ReadyThoughts(ctx context.Context, occurrenceID string, limit int) ([]*model.Thought, error) {
	return a.Store.ReadyThoughts(ctx, occurrenceID, limit)
}

// ConsentAdapter narrows a Store to internal/gate.ConsentStore.
type ConsentAdapter struct{ Store ConsentStore }

func (a ConsentAdapter) Get(ctx context.Context, subjectID string) (*model.ConsentRecord, bool, error) {
	return a.Store.GetConsent(ctx, subjectID)
}

func (a ConsentAdapter) Put(ctx context.Context, record model.ConsentRecord) error {
	return a.Store.PutConsent(ctx, record)
}

// LedgerAdapter narrows a Store to internal/gate.Ledger.
type LedgerAdapter struct{ Store Ledger }

func (a LedgerAdapter) Balance(ctx context.Context, subjectID string) (int, error) {
	return a.Store.CreditBalance(ctx, subjectID)
}

func (a LedgerAdapter) Debit(ctx context.Context, subjectID string, amount int) error {
	return a.Store.CreditDebit(ctx, subjectID, amount)
}

// AuditAdapter narrows a Store to internal/audit.Store.
type AuditAdapter struct{ Store AuditStore }

func (a AuditAdapter) Append(entry model.AuditEntry) error { return a.Store.AppendAudit(entry) }

func (a AuditAdapter) Tail(occurrenceID string) (model.AuditEntry, bool, error) {
	return a.Store.AuditTail(occurrenceID)
}

func (a AuditAdapter) All(occurrenceID string) ([]model.AuditEntry, error) {
	return a.Store.AuditAll(occurrenceID)
}

// GraphAdapter narrows a Store to bus.MemoryBackend.
type GraphAdapter struct{ Store GraphStore }

func (a GraphAdapter) Upsert(ctx context.Context, node model.GraphNode) error {
	return a.Store.UpsertNode(ctx, node)
}

func (a GraphAdapter) Get(ctx context.Context, id model.NodeID) (*model.GraphNode, error) {
	return a.Store.GetNode(ctx, id)
}

func (a GraphAdapter) Delete(ctx context.Context, id model.NodeID) error {
	return a.Store.DeleteNode(ctx, id)
}

func (a GraphAdapter) Edge(ctx context.Context, edge model.GraphEdge) error {
	return a.Store.WriteEdge(ctx, edge)
}
