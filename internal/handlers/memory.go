package handlers

import (
	"context"

	"github.com/CIRISAI/CIRISAgent-sub001/internal/bus"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/cerr"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/model"
)

// MemorizeHandler writes to the Memory Bus, refusing to write
// system-managed attributes directly (§4.5: ManagedAttribute failure, no
// side effect).
type MemorizeHandler struct {
	bus *bus.MemoryBus
}

func (h *MemorizeHandler) Handle(ctx context.Context, thought *model.Thought, decision model.ActionDecision) (model.HandlerOutcome, error) {
	if decision.Params.Memorize == nil {
		return model.HandlerOutcome{}, cerr.New("MemorizeHandler.Handle", cerr.KindValidation, "missing memorize params")
	}
	node := decision.Params.Memorize.Node
	for attr := range node.Attributes {
		if model.ManagedAttributes[attr] {
			return model.HandlerOutcome{}, cerr.New("MemorizeHandler.Handle", cerr.KindManagedAttr, "attribute is system-managed: "+attr)
		}
	}
	if err := h.bus.Write(ctx, thought, node); err != nil {
		return model.HandlerOutcome{}, err
	}
	return model.HandlerOutcome{Status: model.HandlerCompleted}, nil
}

// RecallHandler reads from the Memory Bus (§4.5).
type RecallHandler struct {
	bus *bus.MemoryBus
}

func (h *RecallHandler) Handle(ctx context.Context, thought *model.Thought, decision model.ActionDecision) (model.HandlerOutcome, error) {
	if decision.Params.Recall == nil {
		return model.HandlerOutcome{}, cerr.New("RecallHandler.Handle", cerr.KindValidation, "missing recall params")
	}
	node, err := h.bus.Read(ctx, thought, decision.Params.Recall.Query)
	if err != nil {
		return model.HandlerOutcome{}, err
	}
	if node != nil {
		thought.Content.GraphMemories = append(thought.Content.GraphMemories, *node)
	}
	return model.HandlerOutcome{Status: model.HandlerCompleted}, nil
}

// ForgetHandler deletes a graph node via the Memory Bus (§4.5).
type ForgetHandler struct {
	bus *bus.MemoryBus
}

func (h *ForgetHandler) Handle(ctx context.Context, thought *model.Thought, decision model.ActionDecision) (model.HandlerOutcome, error) {
	if decision.Params.Forget == nil {
		return model.HandlerOutcome{}, cerr.New("ForgetHandler.Handle", cerr.KindValidation, "missing forget params")
	}
	if err := h.bus.Delete(ctx, thought, decision.Params.Forget.Target); err != nil {
		return model.HandlerOutcome{}, err
	}
	return model.HandlerOutcome{Status: model.HandlerCompleted}, nil
}
