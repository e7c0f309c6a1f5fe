package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CIRISAI/CIRISAgent-sub001/internal/model"
)

func TestDefaultFinalizer_FinalizeForcesDeferWhenConscienceFailed(t *testing.T) {
	f := &DefaultFinalizer{}
	rc := &RoundContext{Task: &model.Task{RoundCount: 2}}
	thought := &model.Thought{}

	decision := f.Finalize(context.Background(), rc, thought,
		model.ActionDecision{ActionType: model.ActionSpeak}, true, "too risky")

	assert.Equal(t, model.ActionDefer, decision.ActionType)
	require.NotNil(t, decision.Params.Defer)
	assert.Equal(t, "too risky", decision.Params.Defer.Reason)
}

func TestDefaultFinalizer_FinalizeForcesDeferOnRoundBudgetExhaustedWithNonTerminalProposal(t *testing.T) {
	f := &DefaultFinalizer{}
	rc := &RoundContext{Task: &model.Task{RoundCount: model.MaxRounds}}
	thought := &model.Thought{}

	decision := f.Finalize(context.Background(), rc, thought,
		model.ActionDecision{ActionType: model.ActionSpeak}, false, "")

	assert.Equal(t, model.ActionDefer, decision.ActionType)
	assert.Equal(t, "round_budget_exhausted", decision.Params.Defer.Reason)
}

func TestDefaultFinalizer_FinalizeAllowsTerminalActionOnRoundBudgetExhausted(t *testing.T) {
	f := &DefaultFinalizer{}
	rc := &RoundContext{Task: &model.Task{RoundCount: model.MaxRounds}}
	thought := &model.Thought{}

	decision := f.Finalize(context.Background(), rc, thought,
		model.ActionDecision{ActionType: model.ActionTaskComplete}, false, "")

	assert.Equal(t, model.ActionTaskComplete, decision.ActionType)
}

func TestDefaultFinalizer_FinalizeDowngradesSpeakToDeferWhenPaused(t *testing.T) {
	f := &DefaultFinalizer{}
	rc := &RoundContext{Task: &model.Task{RoundCount: 1}, Paused: true}
	thought := &model.Thought{}

	decision := f.Finalize(context.Background(), rc, thought,
		model.ActionDecision{ActionType: model.ActionSpeak}, false, "")

	assert.Equal(t, model.ActionDefer, decision.ActionType)
	assert.Equal(t, "paused", decision.Params.Defer.Reason)
}

func TestDefaultFinalizer_FinalizeDoesNotDowngradeNonSpeakWhenPaused(t *testing.T) {
	f := &DefaultFinalizer{}
	rc := &RoundContext{Task: &model.Task{RoundCount: 1}, Paused: true}
	thought := &model.Thought{}

	decision := f.Finalize(context.Background(), rc, thought,
		model.ActionDecision{ActionType: model.ActionObserve}, false, "")

	assert.Equal(t, model.ActionObserve, decision.ActionType)
}

func TestDefaultFinalizer_FinalizeBiasesToTaskCompleteAfterSpeakWithNoFollowUpMarker(t *testing.T) {
	f := &DefaultFinalizer{}
	rc := &RoundContext{Task: &model.Task{RoundCount: 1}, PreviousWasSpeak: true}
	thought := &model.Thought{}

	decision := f.Finalize(context.Background(), rc, thought,
		model.ActionDecision{ActionType: model.ActionPonder}, false, "")

	assert.Equal(t, model.ActionTaskComplete, decision.ActionType)
}

func TestDefaultFinalizer_FinalizeHonorsFollowUpMarkerAfterSpeak(t *testing.T) {
	f := &DefaultFinalizer{}
	rc := &RoundContext{Task: &model.Task{RoundCount: 1}, PreviousWasSpeak: true}
	thought := &model.Thought{Content: model.ContextBundle{FollowUpMarker: "awaiting_reply"}}

	decision := f.Finalize(context.Background(), rc, thought,
		model.ActionDecision{ActionType: model.ActionPonder}, false, "")

	assert.Equal(t, model.ActionPonder, decision.ActionType)
}

func TestDefaultFinalizer_FinalizeReturnsDecisionUnchangedWhenNoOverrideApplies(t *testing.T) {
	f := &DefaultFinalizer{}
	rc := &RoundContext{Task: &model.Task{RoundCount: 1}}
	thought := &model.Thought{}

	decision := f.Finalize(context.Background(), rc, thought,
		model.ActionDecision{ActionType: model.ActionTool, Rationale: "use the lookup tool"}, false, "")

	assert.Equal(t, model.ActionTool, decision.ActionType)
	assert.Equal(t, "use the lookup tool", decision.Rationale)
}
