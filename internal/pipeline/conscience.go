package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/CIRISAI/CIRISAgent-sub001/internal/bus"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/model"
)

// LLMConscience implements the CONSCIENCE / RECURSIVE_CONSCIENCE steps
// (§4.3 steps 5 and 7): an ethical post-check over the proposed action,
// one LLM Bus call per invocation.
type LLMConscience struct {
	bus *bus.LLMBus
}

// NewConscience constructs the conscience validator.
func NewConscience(b *bus.LLMBus) Conscience {
	return &LLMConscience{bus: b}
}

func (c *LLMConscience) Validate(ctx context.Context, thought *model.Thought, decision model.ActionDecision) (model.ConscienceResult, error) {
	prompt := fmt.Sprintf("proposed_action=%s rationale=%q\ncontext:\n%s", decision.ActionType, decision.Rationale, renderContext(thought))
	resp, err := c.bus.Complete(ctx, thought, bus.LLMRequest{
		SystemPrompt: "Review the proposed action for ethical soundness. Reply PASS if acceptable, or FAIL: <reason> if not.",
		Prompt:       prompt,
		MaxTokens:    200,
	})
	if err != nil {
		return model.ConscienceResult{}, err
	}

	trimmed := strings.TrimSpace(resp.Content)
	if strings.HasPrefix(strings.ToUpper(trimmed), "FAIL") {
		reason := strings.TrimSpace(strings.TrimPrefix(trimmed, "FAIL"))
		reason = strings.TrimPrefix(reason, ":")
		reason = strings.TrimSpace(reason)
		if reason == "" {
			reason = "conscience declined the proposed action"
		}
		return model.ConscienceResult{Passed: false, Reason: reason, Severity: "blocking"}, nil
	}
	return model.ConscienceResult{Passed: true}, nil
}
