package pipeline

import (
	"context"

	"github.com/CIRISAI/CIRISAgent-sub001/internal/logging"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/model"
)

// DefaultFinalizer implements FINALIZE_ACTION's deterministic override
// rules (§4.3 step 8, §4.4 round budget, §9 "Exceptions for control flow
// ... become typed result unions"). Every override here is a pure
// function of (RoundContext, proposed decision, conscience outcome) — no
// probabilistic nudging.
type DefaultFinalizer struct {
	Logger logging.Logger
}

// Finalize applies, in order: the conscience-failure-forces-DEFER rule,
// the round-7 terminal-only rule, the paused-state downgrade, and the
// post-SPEAK strong bias to TASK_COMPLETE. The first rule that applies
// decides the result.
func (f *DefaultFinalizer) Finalize(ctx context.Context, rc *RoundContext, thought *model.Thought, decision model.ActionDecision, conscienceFailed bool, conscienceReason string) model.ActionDecision {
	logger := f.Logger
	if logger == nil {
		logger = logging.NoOp()
	}

	// Conscience failed twice (or once with no further recursion possible):
	// force DEFER with the aggregated reason (§4.3 step 7, §8 boundary
	// behavior "Conscience fails twice").
	if conscienceFailed {
		logger.InfoContext(ctx, "finalize: conscience forced defer", logging.Fields{"reason": conscienceReason})
		return model.ActionDecision{
			ActionType: model.ActionDefer,
			Params:     model.ActionParams{Defer: &model.DeferParams{Reason: conscienceReason}},
			Rationale:  "conscience validation failed after recursion",
		}
	}

	// Round budget: on round 7 only terminal actions are admissible (§4.4,
	// §8 invariant 1, boundary "Round 7 with a SPEAK-eligible proposal").
	if rc.Task.RoundCount >= model.MaxRounds && !decision.ActionType.IsTerminal() {
		logger.InfoContext(ctx, "finalize: round budget exhausted", logging.Fields{"round": rc.Task.RoundCount})
		return model.ActionDecision{
			ActionType: model.ActionDefer,
			Params:     model.ActionParams{Defer: &model.DeferParams{Reason: "round_budget_exhausted"}},
			Rationale:  "round 7 reached with a non-terminal proposal",
		}
	}

	// Paused state forbids SPEAK: deterministic downgrade (§4.3 step 8
	// example).
	if rc.Paused && decision.ActionType == model.ActionSpeak {
		logger.InfoContext(ctx, "finalize: paused, downgrading SPEAK to DEFER", nil)
		return model.ActionDecision{
			ActionType: model.ActionDefer,
			Params:     model.ActionParams{Defer: &model.DeferParams{Reason: "paused"}},
			Rationale:  "runtime is paused; SPEAK is not permitted",
		}
	}

	// Strong bias to TASK_COMPLETE after SPEAK (§4.3, §8 invariant 7):
	// unless this round's context carries an explicit follow-up marker,
	// the action following a SPEAK must be TASK_COMPLETE.
	if rc.PreviousWasSpeak && !thought.Content.HasFollowUpMarker() && decision.ActionType != model.ActionTaskComplete {
		return model.ActionDecision{
			ActionType: model.ActionTaskComplete,
			Rationale:  "strong bias to TASK_COMPLETE after SPEAK with no follow-up marker",
		}
	}

	return decision
}
