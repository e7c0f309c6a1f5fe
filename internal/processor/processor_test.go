package processor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CIRISAI/CIRISAgent-sub001/internal/model"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/pipeline"
)

type fakeTaskStore struct {
	mu    sync.Mutex
	tasks map[string]*model.Task
}

func newFakeTaskStore(tasks ...*model.Task) *fakeTaskStore {
	s := &fakeTaskStore{tasks: make(map[string]*model.Task)}
	for _, t := range tasks {
		s.tasks[t.TaskID] = t
	}
	return s
}

func (s *fakeTaskStore) Save(ctx context.Context, task *model.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[task.TaskID] = task
	return nil
}

func (s *fakeTaskStore) Get(ctx context.Context, taskID string) (*model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tasks[taskID], nil
}

type fakeThoughtStore struct {
	mu       sync.Mutex
	ready    []*model.Thought
	saved    map[string]*model.Thought
}

func newFakeThoughtStore(ready ...*model.Thought) *fakeThoughtStore {
	return &fakeThoughtStore{ready: ready, saved: make(map[string]*model.Thought)}
}

func (s *fakeThoughtStore) Save(ctx context.Context, thought *model.Thought) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved[thought.ThoughtID] = thought
	return nil
}

func (s *fakeThoughtStore) ReadyThoughts(ctx context.Context, occurrenceID string, limit int) ([]*model.Thought, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.ready) == 0 {
		return nil, nil
	}
	n := limit
	if n > len(s.ready) {
		n = len(s.ready)
	}
	out := s.ready[:n]
	s.ready = s.ready[n:]
	return out, nil
}

// stubPipeline lets tests observe how many times Run was invoked without
// constructing the full DMA/conscience/finalizer chain.
type stubPipeline struct {
	calls int
	mu    sync.Mutex
}

func TestProcessor_InitialStateIsWakeup(t *testing.T) {
	p := New(Config{OccurrenceID: "occ-1"}, &pipeline.Pipeline{}, newFakeTaskStore(), newFakeThoughtStore())
	assert.Equal(t, StateWakeup, p.State())
}

func TestProcessor_TransitionRefusesDisabledStates(t *testing.T) {
	p := New(Config{OccurrenceID: "occ-1"}, &pipeline.Pipeline{}, newFakeTaskStore(), newFakeThoughtStore())

	require.NoError(t, p.Transition(StateWork))
	assert.Equal(t, StateWork, p.State())

	err := p.Transition(StatePlay)
	assert.Error(t, err)
	assert.Equal(t, StateWork, p.State(), "a refused transition must not change state")

	err = p.Transition(StateSolitude)
	assert.Error(t, err)

	err = p.Transition(StateDream)
	assert.Error(t, err)
}

func TestProcessor_PauseResume(t *testing.T) {
	p := New(Config{OccurrenceID: "occ-1"}, &pipeline.Pipeline{}, newFakeTaskStore(), newFakeThoughtStore())
	assert.False(t, p.Paused())

	require.NoError(t, p.Pause(context.Background()))
	assert.True(t, p.Paused())

	require.NoError(t, p.Resume(context.Background()))
	assert.False(t, p.Paused())
}

func TestProcessor_AdvanceSkipsThoughtFromForeignOccurrence(t *testing.T) {
	task := &model.Task{TaskID: "t1", OccurrenceID: "occ-other", Status: model.TaskActive}
	thought := &model.Thought{ThoughtID: "th1", TaskID: "t1"}

	tasks := newFakeTaskStore(task)
	thoughts := newFakeThoughtStore()

	p := New(Config{OccurrenceID: "occ-mine"}, &pipeline.Pipeline{}, tasks, thoughts)
	p.advance(context.Background(), thought)

	saved, err := tasks.Get(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, 0, saved.RoundCount, "pipeline must never run against a task from another occurrence")
}

func TestMetrics_RollingMeanBoundedToWindow(t *testing.T) {
	m := NewMetrics()
	for i := 0; i < thoughtWindowSize+10; i++ {
		m.RecordThought(1 * time.Second)
	}
	assert.InDelta(t, 1.0, m.MeanSecondsPerThought(), 0.001)
	assert.Equal(t, uint64(thoughtWindowSize+10), m.ThoughtsProcessed())
}

func TestMetrics_MeanReflectsRecentWindowOnly(t *testing.T) {
	m := NewMetrics()
	for i := 0; i < thoughtWindowSize; i++ {
		m.RecordThought(10 * time.Second)
	}
	// One fast thought evicts the oldest slow sample.
	m.RecordThought(0)
	mean := m.MeanSecondsPerThought()
	assert.Less(t, mean, 10.0)
}

func TestProcessor_SingleStepAdvancesExactlyOneThought(t *testing.T) {
	task := &model.Task{TaskID: "t1", OccurrenceID: "occ-1", Status: model.TaskActive}
	th1 := &model.Thought{ThoughtID: "th1", TaskID: "t1"}
	th2 := &model.Thought{ThoughtID: "th2", TaskID: "t1"}

	tasks := newFakeTaskStore(task)
	thoughts := newFakeThoughtStore(th1, th2)

	p := New(Config{OccurrenceID: "occ-1"}, &pipeline.Pipeline{
		Ethical:     noopDMA{},
		CommonSense: noopDMA{},
		Domain:      noopDMA{},
		ASPDMA:      noopASPDMA{},
		Finalizer:   noopFinalizer{},
		Dispatcher:  noopDispatcher{},
	}, tasks, thoughts)

	res, err := p.SingleStep(context.Background())
	require.NoError(t, err)
	step, ok := res.(SingleStepResult)
	require.True(t, ok)
	assert.Equal(t, "th1", step.ThoughtID)

	remaining, err := thoughts.ReadyThoughts(context.Background(), "occ-1", 10)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "th2", remaining[0].ThoughtID)
}

type noopDMA struct{}

func (noopDMA) Evaluate(ctx context.Context, thought *model.Thought) (model.DMAResult, error) {
	return model.DMAResult{Kind: model.DMAEthical, Score: 1}, nil
}

type noopASPDMA struct{}

func (noopASPDMA) Select(ctx context.Context, thought *model.Thought, ethical, commonSense, domain model.DMAResult, extraReason string) (model.ActionDecision, error) {
	return model.ActionDecision{ActionType: model.ActionTaskComplete}, nil
}

type noopFinalizer struct{}

func (noopFinalizer) Finalize(ctx context.Context, rc *pipeline.RoundContext, thought *model.Thought, decision model.ActionDecision, conscienceFailed bool, conscienceReason string) model.ActionDecision {
	return decision
}

type noopDispatcher struct{}

func (noopDispatcher) Dispatch(ctx context.Context, thought *model.Thought, decision model.ActionDecision) (model.HandlerOutcome, error) {
	return model.HandlerOutcome{Status: model.HandlerCompleted}, nil
}
