package handlers

import (
	"context"
	"sync"

	"github.com/CIRISAI/CIRISAgent-sub001/internal/bus"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/cerr"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/model"
)

// SpeakHandler sends a reply via the Communication Bus (§4.5 External).
type SpeakHandler struct {
	bus *bus.CommunicationBus
}

func (h *SpeakHandler) Handle(ctx context.Context, thought *model.Thought, decision model.ActionDecision) (model.HandlerOutcome, error) {
	if decision.Params.Speak == nil {
		return model.HandlerOutcome{}, cerr.New("SpeakHandler.Handle", cerr.KindValidation, "missing speak params")
	}
	if err := h.bus.Send(ctx, thought, decision.Params.Speak.ChannelID, decision.Params.Speak.Content); err != nil {
		return model.HandlerOutcome{}, err
	}
	return model.HandlerOutcome{Status: model.HandlerCompleted}, nil
}

// ToolHandler executes a tool via the Tool Bus and attaches the result as
// a correlation to the next thought's context (§4.5).
type ToolHandler struct {
	bus *bus.ToolBus
}

func (h *ToolHandler) Handle(ctx context.Context, thought *model.Thought, decision model.ActionDecision) (model.HandlerOutcome, error) {
	if decision.Params.Tool == nil {
		return model.HandlerOutcome{}, cerr.New("ToolHandler.Handle", cerr.KindValidation, "missing tool params")
	}
	result, err := h.bus.Execute(ctx, thought, decision.Params.Tool.Name, decision.Params.Tool.Params)
	if err != nil {
		return model.HandlerOutcome{}, err
	}

	corr := &model.Correlation{
		TaskID:    thought.TaskID,
		ThoughtID: thought.ThoughtID,
		SpanID:    thought.ThoughtID,
		Kind:      "tool",
		Outcome:   result.Output,
	}
	return model.HandlerOutcome{
		Status:           model.HandlerCompleted,
		RequestsFollowUp: true,
		FollowUpReason:   "pending tool result",
		FollowUpMarker:   "tool_result",
		ToolCorrelation:  corr,
	}, nil
}

// observeSeen tracks (channel, external_id) pairs already processed so
// OBSERVE is idempotent on duplicate inbound events (§4.5, §8 round-trip
// property).
type observeSeen struct {
	mu   sync.Mutex
	seen map[string]model.HandlerOutcome
}

// ObserveHandler handles OBSERVE (§4.5 External). It records the
// (channel, external_id) pair and returns a completed outcome; it does not
// fetch any state from the channel, and its tool bus is not called. It
// never requests a follow-up thought — an Open Question resolved
// conservatively (SPEC_FULL.md, DESIGN.md).
type ObserveHandler struct {
	tool *bus.ToolBus
	dedupe *observeSeen
}

// NewObserveHandler constructs the OBSERVE handler with its own dedupe
// table, scoped to one dispatcher instance.
func NewObserveHandler(tool *bus.ToolBus) *ObserveHandler {
	return &ObserveHandler{tool: tool, dedupe: &observeSeen{seen: make(map[string]model.HandlerOutcome)}}
}

func (h *ObserveHandler) Handle(ctx context.Context, thought *model.Thought, decision model.ActionDecision) (model.HandlerOutcome, error) {
	if decision.Params.Observe == nil {
		return model.HandlerOutcome{}, cerr.New("ObserveHandler.Handle", cerr.KindValidation, "missing observe params")
	}
	key := decision.Params.Observe.ChannelID + "/" + decision.Params.Observe.ExternalID

	h.dedupe.mu.Lock()
	if cached, ok := h.dedupe.seen[key]; ok {
		h.dedupe.mu.Unlock()
		return cached, nil
	}
	h.dedupe.mu.Unlock()

	outcome := model.HandlerOutcome{Status: model.HandlerCompleted}

	h.dedupe.mu.Lock()
	h.dedupe.seen[key] = outcome
	h.dedupe.mu.Unlock()

	return outcome, nil
}
