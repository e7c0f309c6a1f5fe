package processor

import (
	"context"

	"github.com/CIRISAI/CIRISAgent-sub001/internal/cerr"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/model"
)

// SingleStepResult is returned by SingleStep: the processor advances
// exactly one ready thought through the pipeline and reports its outcome,
// regardless of the paused flag (§4.4 debugging surface).
type SingleStepResult struct {
	ThoughtID  string              `json:"thought_id"`
	StepsRun   int                 `json:"steps_run"`
	FinalAction model.ActionType   `json:"final_action"`
	Err        string              `json:"error,omitempty"`
}

// Pause implements bus.RuntimeControlBackend: the processor registers
// itself as the runtimecontrol capability's sole provider so adapters
// reach it through the bus+registry path like any other capability.
func (p *Processor) Pause(ctx context.Context) error {
	p.pausedFlag.Store(true)
	return nil
}

// Resume implements bus.RuntimeControlBackend.
func (p *Processor) Resume(ctx context.Context) error {
	p.pausedFlag.Store(false)
	return nil
}

// SingleStep implements bus.RuntimeControlBackend: it advances exactly
// one ready thought irrespective of the paused flag, then re-freezes.
func (p *Processor) SingleStep(ctx context.Context) (interface{}, error) {
	thoughts, err := p.thoughts.ReadyThoughts(ctx, p.cfg.OccurrenceID, 1)
	if err != nil {
		return nil, cerr.Wrap("Processor.SingleStep", cerr.KindFatal, err)
	}
	if len(thoughts) == 0 {
		return SingleStepResult{}, nil
	}
	p.advance(ctx, thoughts[0])
	return SingleStepResult{ThoughtID: thoughts[0].ThoughtID}, nil
}

// Shutdown implements bus.RuntimeControlBackend: it drains in-flight
// rounds and moves the processor into SHUTDOWN.
func (p *Processor) Shutdown(ctx context.Context) error {
	p.Stop()
	return nil
}
