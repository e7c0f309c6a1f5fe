package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/CIRISAI/CIRISAgent-sub001/internal/bus"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/model"
)

// llmDMA is the shared shape of the three PERFORM_DMAS evaluators: each
// issues one LLM Bus completion with a role-specific system prompt and
// folds the response into a DMAResult.
type llmDMA struct {
	bus          *bus.LLMBus
	kind         model.DMAKind
	systemPrompt string
}

func (d *llmDMA) Evaluate(ctx context.Context, thought *model.Thought) (model.DMAResult, error) {
	prompt := renderContext(thought)
	resp, err := d.bus.Complete(ctx, thought, bus.LLMRequest{
		SystemPrompt: d.systemPrompt,
		Prompt:       prompt,
		MaxTokens:    512,
	})
	if err != nil {
		return model.DMAResult{}, err
	}
	return model.DMAResult{
		Kind:      d.kind,
		Score:     1.0,
		Rationale: resp.Content,
		Findings:  map[string]string{"raw": resp.Content},
	}, nil
}

// NewEthicalDMA constructs the Ethical principle-check DMA (§4.3 step 3).
func NewEthicalDMA(b *bus.LLMBus) EthicalDMA {
	return &llmDMA{bus: b, kind: model.DMAEthical, systemPrompt: "Evaluate the proposed context against core ethical principles. Identify any concerns."}
}

// NewCommonSenseDMA constructs the Common Sense DMA.
func NewCommonSenseDMA(b *bus.LLMBus) CommonSenseDMA {
	return &llmDMA{bus: b, kind: model.DMACommonSense, systemPrompt: "Evaluate the proposed context for plausibility and common-sense coherence."}
}

// NewDomainSpecificDMA constructs the Domain-Specific DMA.
func NewDomainSpecificDMA(b *bus.LLMBus) DomainSpecificDMA {
	return &llmDMA{bus: b, kind: model.DMADomainSpecific, systemPrompt: "Evaluate the proposed context against domain-specific operating constraints."}
}

func renderContext(thought *model.Thought) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "task=%s thought=%s\n", thought.TaskID, thought.ThoughtID)
	fmt.Fprintf(&sb, "system: %s\nidentity: %s\n", thought.Content.SystemSnapshot, thought.Content.Identity)
	for _, line := range thought.Content.RecentConversation {
		fmt.Fprintf(&sb, "conversation: %s\n", line)
	}
	if thought.Content.ConscienceReason != "" {
		fmt.Fprintf(&sb, "prior conscience concern: %s\n", thought.Content.ConscienceReason)
	}
	return sb.String()
}

// llmASPDMA implements ActionSelectionDMA (§4.3 steps 4 and 6): a single
// LLM call selecting one proposed action from the three DMA results.
type llmASPDMA struct {
	bus *bus.LLMBus
}

// NewActionSelectionDMA constructs the ASPDMA.
func NewActionSelectionDMA(b *bus.LLMBus) ActionSelectionDMA {
	return &llmASPDMA{bus: b}
}

func (a *llmASPDMA) Select(ctx context.Context, thought *model.Thought, ethical, commonSense, domain model.DMAResult, extraReason string) (model.ActionDecision, error) {
	prompt := renderContext(thought)
	prompt += fmt.Sprintf("ethical=%q common_sense=%q domain=%q\n", ethical.Rationale, commonSense.Rationale, domain.Rationale)
	if extraReason != "" {
		prompt += fmt.Sprintf("address this conscience objection before proposing again: %s\n", extraReason)
	}

	resp, err := a.bus.Complete(ctx, thought, bus.LLMRequest{
		SystemPrompt: "Select exactly one action (SPEAK, TOOL, OBSERVE, MEMORIZE, RECALL, FORGET, REJECT, PONDER, DEFER, TASK_COMPLETE) for this thought.",
		Prompt:       prompt,
		MaxTokens:    256,
	})
	if err != nil {
		return model.ActionDecision{}, err
	}

	return model.ActionDecision{
		ActionType: parseActionType(resp.Content),
		Params:     model.ActionParams{Speak: &model.SpeakParams{ChannelID: defaultChannel(thought), Content: resp.Content}},
		Rationale:  resp.Content,
	}, nil
}

func defaultChannel(thought *model.Thought) string {
	if thought.Content.Extra != nil {
		if ch, ok := thought.Content.Extra["channel_id"]; ok {
			return ch
		}
	}
	return ""
}

// parseActionType returns the first action keyword, in the candidate
// order below (TASK_COMPLETE first), that appears anywhere in the
// upper-cased LLM response, defaulting to SPEAK when none is present — a
// conservative fallback favoring a reviewable, conscience-gated action
// over silently dropping the thought.
func parseActionType(content string) model.ActionType {
	upper := strings.ToUpper(content)
	for _, candidate := range []model.ActionType{
		model.ActionTaskComplete, model.ActionSpeak, model.ActionTool, model.ActionObserve,
		model.ActionMemorize, model.ActionRecall, model.ActionForget, model.ActionReject,
		model.ActionPonder, model.ActionDefer,
	} {
		if strings.Contains(upper, string(candidate)) {
			return candidate
		}
	}
	return model.ActionSpeak
}
