// Package handlers implements the ten action handlers (§4.5): closed,
// typed functions invoked by PERFORM_ACTION. Grounded in idiom on the
// teacher framework's capability-dispatch pattern (core/agent.go), but
// the ten CIRIS actions and their side-effect rules are new.
package handlers

import (
	"context"

	"github.com/CIRISAI/CIRISAgent-sub001/internal/cerr"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/logging"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/model"
)

// Handler is a closed, typed per-action function: handle(action_params,
// context) -> HandlerOutcome (§4.5).
type Handler interface {
	Handle(ctx context.Context, thought *model.Thought, decision model.ActionDecision) (model.HandlerOutcome, error)
}

// Dispatcher implements pipeline.Dispatcher by routing to the registered
// handler for the decision's action type. Unexpected errors from a
// handler are reported as a failed outcome with a taxonomy code, never
// retried within the same round (§4.5).
type Dispatcher struct {
	handlers map[model.ActionType]Handler
	logger   logging.Logger
}

// NewDispatcher builds a dispatcher with all ten action handlers wired.
func NewDispatcher(logger logging.Logger, deps Dependencies) *Dispatcher {
	if logger == nil {
		logger = logging.NoOp()
	}
	d := &Dispatcher{handlers: make(map[model.ActionType]Handler), logger: logger.WithComponent("handlers")}
	d.handlers[model.ActionSpeak] = &SpeakHandler{bus: deps.Communication}
	d.handlers[model.ActionTool] = &ToolHandler{bus: deps.Tool}
	d.handlers[model.ActionObserve] = NewObserveHandler(deps.Tool)
	d.handlers[model.ActionMemorize] = &MemorizeHandler{bus: deps.Memory}
	d.handlers[model.ActionRecall] = &RecallHandler{bus: deps.Memory}
	d.handlers[model.ActionForget] = &ForgetHandler{bus: deps.Memory}
	d.handlers[model.ActionReject] = &RejectHandler{}
	d.handlers[model.ActionPonder] = &PonderHandler{}
	d.handlers[model.ActionDefer] = &DeferHandler{}
	d.handlers[model.ActionTaskComplete] = &TaskCompleteHandler{}
	return d
}

// Dispatch runs the handler registered for decision.ActionType.
func (d *Dispatcher) Dispatch(ctx context.Context, thought *model.Thought, decision model.ActionDecision) (model.HandlerOutcome, error) {
	h, ok := d.handlers[decision.ActionType]
	if !ok {
		return model.HandlerOutcome{}, cerr.New("Dispatcher.Dispatch", cerr.KindValidation, "no handler registered for "+string(decision.ActionType))
	}
	outcome, err := h.Handle(ctx, thought, decision)
	if err != nil {
		d.logger.ErrorContext(ctx, "handler failed", logging.Fields{"action": string(decision.ActionType), "error": err.Error()})
		return model.HandlerOutcome{
			Status:         model.HandlerFailed,
			FailureCode:    failureCode(err),
			FailureMessage: err.Error(),
		}, cerr.Wrap("Dispatcher.Dispatch", cerr.KindHandlerFailure, err)
	}
	return outcome, nil
}

func failureCode(err error) string {
	switch {
	case cerr.Is(err, cerr.KindManagedAttr):
		return string(cerr.KindManagedAttr)
	case cerr.Is(err, cerr.KindValidation):
		return string(cerr.KindValidation)
	case cerr.Is(err, cerr.KindTimeout):
		return string(cerr.KindTimeout)
	case cerr.Is(err, cerr.KindCircuitOpen):
		return string(cerr.KindCircuitOpen)
	default:
		return string(cerr.KindHandlerFailure)
	}
}
