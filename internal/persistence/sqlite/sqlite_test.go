package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CIRISAI/CIRISAgent-sub001/internal/cerr"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:", nil)
	require.NoError(t, err)
	require.NoError(t, s.Init(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_TaskRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	task := &model.Task{
		TaskID:       "t1",
		Origin:       model.Origin{AdapterID: "cli", ChannelID: "c1", SubjectID: "sub1"},
		InitialInput: "hello",
		Status:       model.TaskPending,
		OccurrenceID: "occ1",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, s.SaveTask(ctx, task))

	got, err := s.GetTask(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "hello", got.InitialInput)
	assert.Equal(t, model.TaskPending, got.Status)

	task.Status = model.TaskActive
	task.RoundCount = 2
	require.NoError(t, s.SaveTask(ctx, task))
	got, err = s.GetTask(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, model.TaskActive, got.Status)
	assert.Equal(t, 2, got.RoundCount)
}

func TestStore_GetTaskMissingReturnsNilNotError(t *testing.T) {
	s := newTestStore(t)
	got, err := s.GetTask(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStore_ListTasksReturnsNewestFirstScopedToOccurrence(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"t1", "t2", "t3"} {
		require.NoError(t, s.SaveTask(ctx, &model.Task{
			TaskID: id, OccurrenceID: "occ1",
			CreatedAt: base.Add(time.Duration(i) * time.Minute), UpdatedAt: base,
		}))
	}
	require.NoError(t, s.SaveTask(ctx, &model.Task{
		TaskID: "other-occ", OccurrenceID: "occ2", CreatedAt: base, UpdatedAt: base,
	}))

	tasks, err := s.ListTasks(ctx, "occ1", 10)
	require.NoError(t, err)
	require.Len(t, tasks, 3)
	assert.Equal(t, "t3", tasks[0].TaskID)
	assert.Equal(t, "t1", tasks[2].TaskID)
}

func TestStore_ThoughtReadyOnlyReturnsNewState(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.SaveTask(ctx, &model.Task{TaskID: "t1", OccurrenceID: "occ1", CreatedAt: now, UpdatedAt: now}))

	ready := &model.Thought{ThoughtID: "th1", TaskID: "t1", State: model.ThoughtNew, CreatedAt: now, Content: model.ContextBundle{SystemSnapshot: "s"}}
	inFlight := &model.Thought{ThoughtID: "th2", TaskID: "t1", State: model.ThoughtInFlight, CreatedAt: now.Add(time.Second)}
	require.NoError(t, s.SaveThought(ctx, ready))
	require.NoError(t, s.SaveThought(ctx, inFlight))

	got, err := s.ReadyThoughts(ctx, "occ1", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "th1", got[0].ThoughtID)
	assert.Equal(t, "s", got[0].Content.SystemSnapshot)
}

func TestStore_ConsentRoundTripAndRevocation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rec := model.ConsentRecord{
		SubjectID:  "sub1",
		Stream:     model.ConsentTemporary,
		Categories: []model.DataCategory{model.CategoryEssential},
		GrantedAt:  now,
		ExpiresAt:  now.Add(model.TemporaryTTL),
	}
	require.NoError(t, s.PutConsent(ctx, rec))

	got, ok, err := s.GetConsent(ctx, "sub1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Nil(t, got.RevokedAt)

	revokedAt := now.Add(time.Hour)
	rec.RevokedAt = &revokedAt
	require.NoError(t, s.PutConsent(ctx, rec))

	got, ok, err = s.GetConsent(ctx, "sub1")
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, got.RevokedAt)
	assert.True(t, got.RevokedAt.Equal(revokedAt))
}

func TestStore_GetConsentMissingReturnsFalseNotError(t *testing.T) {
	s := newTestStore(t)
	_, ok, err := s.GetConsent(context.Background(), "nobody")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_CreditDebitInsufficientBalanceIsCreditDenied(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	bal, err := s.CreditBalance(ctx, "sub1")
	require.NoError(t, err)
	assert.Equal(t, 0, bal)

	err = s.CreditDebit(ctx, "sub1", 1)
	require.Error(t, err)
	assert.True(t, cerr.Is(err, cerr.KindCreditDenied))
}

func TestStore_CreditDebitSucceedsAndPersists(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.db.ExecContext(ctx, `INSERT INTO credit_balances (subject_id, balance) VALUES (?, ?)`, "sub1", 5)
	require.NoError(t, err)

	require.NoError(t, s.CreditDebit(ctx, "sub1", 1))
	bal, err := s.CreditBalance(ctx, "sub1")
	require.NoError(t, err)
	assert.Equal(t, 4, bal)
}

func TestStore_AuditAppendAndTailOrdering(t *testing.T) {
	s := newTestStore(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := uint64(1); i <= 3; i++ {
		require.NoError(t, s.AppendAudit(model.AuditEntry{
			OccurrenceID: "occ1", Seq: i, Kind: model.AuditAction,
			EntryHash: []byte{byte(i)}, Payload: []byte("p"), CreatedAt: now,
		}))
	}
	tail, ok, err := s.AuditTail("occ1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(3), tail.Seq)

	all, err := s.AuditAll("occ1")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, uint64(1), all[0].Seq)
	assert.Equal(t, uint64(3), all[2].Seq)
}

func TestStore_GraphNodeUpsertIncrementsVersionAndEdgeRequiresBothEndpoints(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := model.NodeID{Scope: "local", NodeType: "note", NodeID: "a"}
	b := model.NodeID{Scope: "local", NodeType: "note", NodeID: "b"}

	require.NoError(t, s.UpsertNode(ctx, model.GraphNode{ID: a, Attributes: map[string]string{"text": "1"}}))
	got, err := s.GetNode(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Version)

	require.NoError(t, s.UpsertNode(ctx, model.GraphNode{ID: a, Attributes: map[string]string{"text": "2"}}))
	got, err = s.GetNode(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Version)

	err = s.WriteEdge(ctx, model.GraphEdge{From: a, To: b, Relationship: "relates_to"})
	assert.Error(t, err, "edge to a nonexistent node must fail")
}

func TestStore_DeleteNodePrunesEdges(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := model.NodeID{Scope: "local", NodeType: "note", NodeID: "a"}
	b := model.NodeID{Scope: "local", NodeType: "note", NodeID: "b"}
	require.NoError(t, s.UpsertNode(ctx, model.GraphNode{ID: a}))
	require.NoError(t, s.UpsertNode(ctx, model.GraphNode{ID: b}))
	require.NoError(t, s.WriteEdge(ctx, model.GraphEdge{From: a, To: b, Relationship: "relates_to"}))

	require.NoError(t, s.DeleteNode(ctx, b))

	var count int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM graph_edges`).Scan(&count))
	assert.Zero(t, count)
}
