package handlers

import (
	"context"

	"github.com/CIRISAI/CIRISAgent-sub001/internal/model"
)

// RejectHandler declines the task with a reason; terminal (§4.5 Deferral).
type RejectHandler struct{}

func (h *RejectHandler) Handle(ctx context.Context, thought *model.Thought, decision model.ActionDecision) (model.HandlerOutcome, error) {
	return model.HandlerOutcome{Status: model.HandlerCompleted}, nil
}

// PonderHandler schedules a follow-up thought with added reflection
// (§4.5 Deferral). Follow-up chains are bounded by the processor's round
// budget (§4.4), not by this handler.
type PonderHandler struct{}

func (h *PonderHandler) Handle(ctx context.Context, thought *model.Thought, decision model.ActionDecision) (model.HandlerOutcome, error) {
	reflection := ""
	if decision.Params.Ponder != nil {
		reflection = decision.Params.Ponder.Reflection
	}
	return model.HandlerOutcome{
		Status:           model.HandlerCompleted,
		RequestsFollowUp: true,
		FollowUpReason:   "ponder reflection",
		FollowUpMarker:   reflection,
	}, nil
}

// DeferHandler schedules the task for later or hands it to a human
// authority; terminal for this round (§4.5 Deferral).
type DeferHandler struct{}

func (h *DeferHandler) Handle(ctx context.Context, thought *model.Thought, decision model.ActionDecision) (model.HandlerOutcome, error) {
	return model.HandlerOutcome{Status: model.HandlerCompleted}, nil
}

// TaskCompleteHandler marks the task terminal-complete (§4.5 Terminal).
type TaskCompleteHandler struct{}

func (h *TaskCompleteHandler) Handle(ctx context.Context, thought *model.Thought, decision model.ActionDecision) (model.HandlerOutcome, error) {
	return model.HandlerOutcome{Status: model.HandlerCompleted}, nil
}
