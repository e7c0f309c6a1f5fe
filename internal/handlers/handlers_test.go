package handlers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CIRISAI/CIRISAgent-sub001/internal/bus"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/cerr"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/graph"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/logging"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/model"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/registry"
)

type fakeCommBackend struct {
	sent []string
	err  error
}

func (f *fakeCommBackend) Send(ctx context.Context, channelID, message string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, channelID+":"+message)
	return nil
}

type fakeToolBackend struct {
	result bus.ToolExecutionResult
	err    error
}

func (f *fakeToolBackend) Catalogue(ctx context.Context) ([]string, error) {
	return []string{"lookup"}, nil
}

func (f *fakeToolBackend) Execute(ctx context.Context, name string, params map[string]string) (bus.ToolExecutionResult, error) {
	return f.result, f.err
}

func newTestDependencies(t *testing.T, comm *fakeCommBackend, tool *fakeToolBackend) Dependencies {
	t.Helper()
	reg := registry.New(logging.NoOp(), registry.DefaultBreakerConfig())

	require.NoError(t, reg.Register("communication", model.ProviderEntry{
		InstanceRef: "comm", Priority: 0, Strategy: model.StrategyPriority,
	}, comm))
	require.NoError(t, reg.Register("memory", model.ProviderEntry{
		InstanceRef: "mem", Priority: 0, Strategy: model.StrategyPriority,
	}, graph.New()))
	require.NoError(t, reg.Register("tool", model.ProviderEntry{
		InstanceRef: "tool", Priority: 0, Strategy: model.StrategyPriority,
	}, tool))

	return Dependencies{
		Communication: bus.NewCommunicationBus(reg, logging.NoOp()),
		Memory:        bus.NewMemoryBus(reg, logging.NoOp()),
		Tool:          bus.NewToolBus(reg, logging.NoOp()),
	}
}

func TestDispatcher_DispatchRoutesSpeakToCommunicationBus(t *testing.T) {
	comm := &fakeCommBackend{}
	d := NewDispatcher(logging.NoOp(), newTestDependencies(t, comm, &fakeToolBackend{}))
	thought := &model.Thought{ThoughtID: "th1", TaskID: "task1"}
	decision := model.ActionDecision{
		ActionType: model.ActionSpeak,
		Params:     model.ActionParams{Speak: &model.SpeakParams{ChannelID: "c1", Content: "hello"}},
	}

	outcome, err := d.Dispatch(context.Background(), thought, decision)

	require.NoError(t, err)
	assert.Equal(t, model.HandlerCompleted, outcome.Status)
	assert.Equal(t, []string{"c1:hello"}, comm.sent)
}

func TestDispatcher_DispatchReportsFailedOutcomeOnHandlerError(t *testing.T) {
	comm := &fakeCommBackend{}
	d := NewDispatcher(logging.NoOp(), newTestDependencies(t, comm, &fakeToolBackend{}))
	thought := &model.Thought{ThoughtID: "th1", TaskID: "task1"}
	// Missing Speak params triggers a validation error inside SpeakHandler.
	decision := model.ActionDecision{ActionType: model.ActionSpeak}

	outcome, err := d.Dispatch(context.Background(), thought, decision)

	require.Error(t, err)
	assert.Equal(t, model.HandlerFailed, outcome.Status)
	assert.Equal(t, string(cerr.KindValidation), outcome.FailureCode)
}

func TestDispatcher_DispatchRejectsUnregisteredActionType(t *testing.T) {
	comm := &fakeCommBackend{}
	d := NewDispatcher(logging.NoOp(), newTestDependencies(t, comm, &fakeToolBackend{}))
	thought := &model.Thought{ThoughtID: "th1", TaskID: "task1"}

	_, err := d.Dispatch(context.Background(), thought, model.ActionDecision{ActionType: "BOGUS"})

	assert.Error(t, err)
}

func TestDispatcher_DispatchRoutesMemorizeAndRefusesManagedAttribute(t *testing.T) {
	d := NewDispatcher(logging.NoOp(), newTestDependencies(t, &fakeCommBackend{}, &fakeToolBackend{}))
	thought := &model.Thought{ThoughtID: "th1", TaskID: "task1"}

	ok := model.ActionDecision{
		ActionType: model.ActionMemorize,
		Params: model.ActionParams{Memorize: &model.MemorizeParams{Node: model.GraphNode{
			ID:         model.NodeID{Scope: "local", NodeType: "note", NodeID: "n1"},
			Attributes: map[string]string{"text": "hello"},
		}}},
	}
	outcome, err := d.Dispatch(context.Background(), thought, ok)
	require.NoError(t, err)
	assert.Equal(t, model.HandlerCompleted, outcome.Status)

	managed := model.ActionDecision{
		ActionType: model.ActionMemorize,
		Params: model.ActionParams{Memorize: &model.MemorizeParams{Node: model.GraphNode{
			ID:         model.NodeID{Scope: "local", NodeType: "note", NodeID: "n2"},
			Attributes: map[string]string{"user_id": "u1"},
		}}},
	}
	_, err = d.Dispatch(context.Background(), thought, managed)
	assert.Error(t, err)
}

func TestDispatcher_DispatchRoutesRecallAndAppendsGraphMemory(t *testing.T) {
	d := NewDispatcher(logging.NoOp(), newTestDependencies(t, &fakeCommBackend{}, &fakeToolBackend{}))
	thought := &model.Thought{ThoughtID: "th1", TaskID: "task1"}

	memorize := model.ActionDecision{
		ActionType: model.ActionMemorize,
		Params: model.ActionParams{Memorize: &model.MemorizeParams{Node: model.GraphNode{
			ID:         model.NodeID{Scope: "local", NodeType: "note", NodeID: "n1"},
			Attributes: map[string]string{"text": "hello"},
		}}},
	}
	_, err := d.Dispatch(context.Background(), thought, memorize)
	require.NoError(t, err)

	recall := model.ActionDecision{
		ActionType: model.ActionRecall,
		Params:     model.ActionParams{Recall: &model.RecallParams{Query: model.NodeID{Scope: "local", NodeType: "note", NodeID: "n1"}}},
	}
	outcome, err := d.Dispatch(context.Background(), thought, recall)
	require.NoError(t, err)
	assert.Equal(t, model.HandlerCompleted, outcome.Status)
	require.Len(t, thought.Content.GraphMemories, 1)
	assert.Equal(t, "n1", thought.Content.GraphMemories[0].ID.NodeID)
}

func TestDispatcher_DispatchRoutesToolAndRequestsFollowUp(t *testing.T) {
	tool := &fakeToolBackend{result: bus.ToolExecutionResult{Success: true, Output: "42"}}
	d := NewDispatcher(logging.NoOp(), newTestDependencies(t, &fakeCommBackend{}, tool))
	thought := &model.Thought{ThoughtID: "th1", TaskID: "task1"}
	decision := model.ActionDecision{
		ActionType: model.ActionTool,
		Params:     model.ActionParams{Tool: &model.ToolParams{Name: "lookup"}},
	}

	outcome, err := d.Dispatch(context.Background(), thought, decision)

	require.NoError(t, err)
	assert.True(t, outcome.RequestsFollowUp)
	require.NotNil(t, outcome.ToolCorrelation)
	assert.Equal(t, "42", outcome.ToolCorrelation.Outcome)
}

func TestObserveHandler_HandleIsIdempotentOnDuplicateExternalID(t *testing.T) {
	h := NewObserveHandler(bus.NewToolBus(registry.New(logging.NoOp(), registry.DefaultBreakerConfig()), logging.NoOp()))
	thought := &model.Thought{ThoughtID: "th1", TaskID: "task1"}
	decision := model.ActionDecision{
		ActionType: model.ActionObserve,
		Params:     model.ActionParams{Observe: &model.ObserveParams{ChannelID: "c1", ExternalID: "ext1"}},
	}

	first, err := h.Handle(context.Background(), thought, decision)
	require.NoError(t, err)
	second, err := h.Handle(context.Background(), thought, decision)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestTerminalHandlers_HandleReturnCompleted(t *testing.T) {
	thought := &model.Thought{}
	for _, h := range []Handler{&RejectHandler{}, &DeferHandler{}, &TaskCompleteHandler{}} {
		outcome, err := h.Handle(context.Background(), thought, model.ActionDecision{})
		require.NoError(t, err)
		assert.Equal(t, model.HandlerCompleted, outcome.Status)
	}
}

func TestPonderHandler_HandleRequestsFollowUpWithReflection(t *testing.T) {
	h := &PonderHandler{}
	decision := model.ActionDecision{Params: model.ActionParams{Ponder: &model.PonderParams{Reflection: "need more data"}}}

	outcome, err := h.Handle(context.Background(), &model.Thought{}, decision)

	require.NoError(t, err)
	assert.True(t, outcome.RequestsFollowUp)
	assert.Equal(t, "need more data", outcome.FollowUpMarker)
}
