// Package pipeline implements the H3ERE decision pipeline (§4.3): a fixed
// 11-step state machine that transforms a task's current thought into an
// action selection and executes its handler, with one capped recursive
// re-evaluation when an ethical check fails. Grounded in idiom on the
// teacher framework's workflow step-sequencing
// (orchestration/workflow_engine.go) but implements entirely new CIRIS
// semantics: this state machine does not exist in the teacher.
package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/CIRISAI/CIRISAgent-sub001/internal/cerr"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/logging"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/model"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/telemetry"
)

// Step names the 11 fixed step points (§4.3).
type Step string

const (
	StepStartRound         Step = "START_ROUND"
	StepGatherContext      Step = "GATHER_CONTEXT"
	StepPerformDMAs        Step = "PERFORM_DMAS"
	StepPerformASPDMA      Step = "PERFORM_ASPDMA"
	StepConscience         Step = "CONSCIENCE"
	StepRecursiveASPDMA    Step = "RECURSIVE_ASPDMA"
	StepRecursiveConscience Step = "RECURSIVE_CONSCIENCE"
	StepFinalizeAction     Step = "FINALIZE_ACTION"
	StepPerformAction      Step = "PERFORM_ACTION"
	StepActionComplete     Step = "ACTION_COMPLETE"
	StepRoundComplete      Step = "ROUND_COMPLETE"
)

// EthicalDMA, CommonSenseDMA, DomainSpecificDMA are the three concurrent
// DMAs evaluated in PERFORM_DMAS (§4.3 step 3). Each is independent; their
// aggregation (by PERFORM_ASPDMA) must be a pure function of the three
// outputs regardless of which finished first (determinism requirement).
type EthicalDMA interface {
	Evaluate(ctx context.Context, thought *model.Thought) (model.DMAResult, error)
}

type CommonSenseDMA interface {
	Evaluate(ctx context.Context, thought *model.Thought) (model.DMAResult, error)
}

type DomainSpecificDMA interface {
	Evaluate(ctx context.Context, thought *model.Thought) (model.DMAResult, error)
}

// ActionSelectionDMA performs PERFORM_ASPDMA / RECURSIVE_ASPDMA (§4.3 steps
// 4 and 6): a single LLM-backed evaluation choosing a proposed action from
// the three DMA results. extraReason is non-empty only on recursion, when
// it carries the prior conscience failure's reason appended to context.
type ActionSelectionDMA interface {
	Select(ctx context.Context, thought *model.Thought, ethical, commonSense, domain model.DMAResult, extraReason string) (model.ActionDecision, error)
}

// Conscience performs CONSCIENCE / RECURSIVE_CONSCIENCE (§4.3 steps 5 and
// 7): the ethical post-check over a selected action.
type Conscience interface {
	Validate(ctx context.Context, thought *model.Thought, decision model.ActionDecision) (model.ConscienceResult, error)
}

// Finalizer applies FINALIZE_ACTION overrides (§4.3 step 8): state-driven
// downgrades (paused, round budget) and the post-SPEAK TASK_COMPLETE bias.
// It is the single place typed result unions funnel into a final decision
// (§9 "Exceptions for control flow ... become typed result unions").
type Finalizer interface {
	Finalize(ctx context.Context, rc *RoundContext, thought *model.Thought, decision model.ActionDecision, conscienceFailed bool, conscienceReason string) model.ActionDecision
}

// Dispatcher performs PERFORM_ACTION (§4.3 step 9): routes the finalized
// decision to its action handler.
type Dispatcher interface {
	Dispatch(ctx context.Context, thought *model.Thought, decision model.ActionDecision) (model.HandlerOutcome, error)
}

// Recorder persists outcomes and correlations at ACTION_COMPLETE (§4.3 step
// 10): tasks, thoughts, and audit entries.
type Recorder interface {
	RecordAction(ctx context.Context, thought *model.Thought, decision model.ActionDecision, outcome model.HandlerOutcome, conscienceResults []model.ConscienceResult) error
}

// WiseGate consults the Wise Bus on behalf of GATHER_CONTEXT for a thought
// that declares it needs a capability (§4.2 Wise Bus, invariant 6). A
// prohibited declared capability must surface as an error the pipeline
// turns into a REJECT before any DMA runs, so no provider is ever consulted
// for a prohibited request even if one happens to be registered (S3).
type WiseGate interface {
	Consult(ctx context.Context, declaredCapability string) error
}

// RoundContext carries everything a single pipeline run needs about the
// task state surrounding the thought: the round budget, pause state, and
// previous-round markers needed for the post-SPEAK bias (§4.3).
type RoundContext struct {
	Task          *model.Task
	Paused        bool
	PreviousWasSpeak bool
}

// Pipeline wires the DMAs, conscience, finalizer, dispatcher, and recorder
// into the fixed 11-step sequence.
type Pipeline struct {
	Ethical     EthicalDMA
	CommonSense CommonSenseDMA
	Domain      DomainSpecificDMA
	ASPDMA      ActionSelectionDMA
	Conscience  Conscience
	Finalizer   Finalizer
	Dispatcher  Dispatcher
	Recorder    Recorder
	Logger      logging.Logger
	// Wise gates a thought's declared capability against the Wise Bus
	// before DMAs run. Nil means no gating is performed (no declared
	// capability can ever be consulted).
	Wise WiseGate
	// Tracer emits one trace span per Run invocation (§3 "one per handler
	// invocation and per bus call"). Nil means no span is created.
	Tracer *telemetry.Tracer
}

// Result is the complete per-step trace of one pipeline run, used both for
// normal completion and for the single-step debugging surface (§4.4).
type Result struct {
	StepsExecuted  []Step
	ContextBundle  model.ContextBundle
	EthicalResult  model.DMAResult
	CommonSenseResult model.DMAResult
	DomainResult   model.DMAResult
	ProposedAction model.ActionDecision
	ConscienceResults []model.ConscienceResult
	FinalAction    model.ActionDecision
	HandlerOutcome model.HandlerOutcome
	FollowUpRequested bool
	FollowUpReason    string
	TaskTerminal      bool
	Err               error
}

// Run executes the full 11-step sequence for one thought in one round
// (§4.3). It never panics across step boundaries; a failure is reified
// into Result.Err and Run returns at the failing step, so the later steps
// (FINALIZE_ACTION included) do not run for that round. A HandlerFailure
// from PERFORM_ACTION is the exception: it is kept as the handler outcome
// and the round continues.
func (p *Pipeline) Run(ctx context.Context, rc *RoundContext, thought *model.Thought) *Result {
	result := &Result{}
	logger := p.Logger
	if logger == nil {
		logger = logging.NoOp()
	}

	if p.Tracer != nil {
		var finish func(outcome string) model.Correlation
		ctx, finish = p.Tracer.StartSpan(ctx, rc.Task.TaskID, thought.ThoughtID, "pipeline_round", "pipeline.Run")
		defer func() {
			outcome := "ok"
			if result.Err != nil {
				outcome = "error"
			}
			corr := finish(outcome)
			logger.DebugContext(ctx, "pipeline round span", logging.Fields{"span_id": corr.SpanID, "duration_ms": corr.Duration.Milliseconds()})
		}()
	}

	record := func(step Step) {
		result.StepsExecuted = append(result.StepsExecuted, step)
		logger.DebugContext(ctx, "pipeline step", logging.Fields{"step": string(step), "thought_id": thought.ThoughtID})
	}

	// 1. START_ROUND
	record(StepStartRound)
	if !rc.Task.CanAdvanceRound() {
		result.Err = cerr.New("pipeline.StartRound", cerr.KindBudgetExhausted, "round_count exceeds 7")
		return result
	}
	rc.Task.RoundCount++
	thought.Round = rc.Task.RoundCount

	// 2. GATHER_CONTEXT
	record(StepGatherContext)
	result.ContextBundle = thought.Content

	if p.Wise != nil && thought.Content.DeclaredCapability != "" {
		if err := p.Wise.Consult(ctx, thought.Content.DeclaredCapability); err != nil {
			if cerr.Is(err, cerr.KindProhibited) {
				reject := model.ActionDecision{
					ActionType: model.ActionReject,
					Params:     model.ActionParams{Reject: &model.RejectParams{Reason: "prohibited_capability"}},
					Rationale:  err.Error(),
				}
				return p.finalize(ctx, rc, thought, result, reject, false, "")
			}
			result.Err = err
			return result
		}
	}

	// 3. PERFORM_DMAS — concurrent, barrier-joined; aggregation is a pure
	// function of the three outputs regardless of arrival order.
	record(StepPerformDMAs)
	ethical, commonSense, domain, err := p.performDMAs(ctx, thought)
	if err != nil {
		result.Err = err
		return result
	}
	result.EthicalResult, result.CommonSenseResult, result.DomainResult = ethical, commonSense, domain

	// 4. PERFORM_ASPDMA
	record(StepPerformASPDMA)
	proposed, err := p.ASPDMA.Select(ctx, thought, ethical, commonSense, domain, "")
	if err != nil {
		result.Err = err
		return result
	}
	result.ProposedAction = proposed
	decision := proposed

	// 5. CONSCIENCE (skipped for exempt actions)
	conscienceFailed := false
	conscienceReason := ""
	if !decision.ActionType.IsConscienceExempt() {
		record(StepConscience)
		cres, err := p.Conscience.Validate(ctx, thought, decision)
		if err != nil {
			result.Err = err
			return result
		}
		result.ConscienceResults = append(result.ConscienceResults, cres)
		if !cres.Passed {
			conscienceFailed = true
			conscienceReason = cres.Reason

			// 6. RECURSIVE_ASPDMA — at most one recursion per thought.
			record(StepRecursiveASPDMA)
			thought.Content.ConscienceReason = cres.Reason
			recursed, err := p.ASPDMA.Select(ctx, thought, ethical, commonSense, domain, cres.Reason)
			if err != nil {
				result.Err = err
				return result
			}
			decision = recursed

			if !decision.ActionType.IsConscienceExempt() {
				// 7. RECURSIVE_CONSCIENCE
				record(StepRecursiveConscience)
				cres2, err := p.Conscience.Validate(ctx, thought, decision)
				if err != nil {
					result.Err = err
					return result
				}
				result.ConscienceResults = append(result.ConscienceResults, cres2)
				if !cres2.Passed {
					conscienceReason = fmt.Sprintf("conscience_blocked(x2): %s; %s", cres.Reason, cres2.Reason)
				} else {
					conscienceFailed = false
				}
			} else {
				conscienceFailed = false
			}
		}
	}

	return p.finalize(ctx, rc, thought, result, decision, conscienceFailed, conscienceReason)
}

// finalize runs FINALIZE_ACTION through ROUND_COMPLETE (§4.3 steps 8-11).
// It is shared by the normal 11-step sequence and by short-circuit paths
// (e.g. a Wise Bus prohibited-capability REJECT) that skip straight from
// GATHER_CONTEXT to finalization without running any DMA.
func (p *Pipeline) finalize(ctx context.Context, rc *RoundContext, thought *model.Thought, result *Result, decision model.ActionDecision, conscienceFailed bool, conscienceReason string) *Result {
	logger := p.Logger
	if logger == nil {
		logger = logging.NoOp()
	}
	record := func(step Step) {
		result.StepsExecuted = append(result.StepsExecuted, step)
		logger.DebugContext(ctx, "pipeline step", logging.Fields{"step": string(step), "thought_id": thought.ThoughtID})
	}

	// 8. FINALIZE_ACTION
	record(StepFinalizeAction)
	final := p.Finalizer.Finalize(ctx, rc, thought, decision, conscienceFailed, conscienceReason)
	result.FinalAction = final

	// 9. PERFORM_ACTION
	record(StepPerformAction)
	outcome, err := p.Dispatcher.Dispatch(ctx, thought, final)
	if err != nil && !cerr.Is(err, cerr.KindHandlerFailure) {
		result.Err = err
		return result
	}
	result.HandlerOutcome = outcome

	// 10. ACTION_COMPLETE
	record(StepActionComplete)
	if p.Recorder != nil {
		if err := p.Recorder.RecordAction(ctx, thought, final, outcome, result.ConscienceResults); err != nil {
			result.Err = err
			return result
		}
	}

	// 11. ROUND_COMPLETE
	record(StepRoundComplete)
	thought.State = model.ThoughtCompleted
	if outcome.RequestsFollowUp && outcome.Status == model.HandlerCompleted {
		result.FollowUpRequested = true
		result.FollowUpReason = outcome.FollowUpReason
	}
	if final.ActionType.IsTerminal() {
		result.TaskTerminal = true
		rc.Task.Status = terminalStatus(final.ActionType)
		if final.ActionType == model.ActionDefer && final.Params.Defer != nil {
			rc.Task.TerminationReason = final.Params.Defer.Reason
		}
		if final.ActionType == model.ActionReject && final.Params.Reject != nil {
			rc.Task.TerminationReason = final.Params.Reject.Reason
		}
	}

	return result
}

func terminalStatus(action model.ActionType) model.TaskStatus {
	switch action {
	case model.ActionTaskComplete:
		return model.TaskCompleted
	case model.ActionReject:
		return model.TaskRejected
	case model.ActionDefer:
		return model.TaskDeferred
	default:
		return model.TaskActive
	}
}

// performDMAs runs the three DMAs concurrently and joins them at a
// barrier (§5: "DMAs ... fan out to three concurrent evaluations joined by
// barrier"). No short-circuit: all three must complete or the first error
// is surfaced.
func (p *Pipeline) performDMAs(ctx context.Context, thought *model.Thought) (ethical, commonSense, domain model.DMAResult, err error) {
	var wg sync.WaitGroup
	var ethErr, csErr, domErr error
	wg.Add(3)
	go func() {
		defer wg.Done()
		ethical, ethErr = p.Ethical.Evaluate(ctx, thought)
	}()
	go func() {
		defer wg.Done()
		commonSense, csErr = p.CommonSense.Evaluate(ctx, thought)
	}()
	go func() {
		defer wg.Done()
		domain, domErr = p.Domain.Evaluate(ctx, thought)
	}()
	wg.Wait()

	for _, e := range []error{ethErr, csErr, domErr} {
		if e != nil {
			return model.DMAResult{}, model.DMAResult{}, model.DMAResult{}, e
		}
	}
	return ethical, commonSense, domain, nil
}
