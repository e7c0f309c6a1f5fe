package bus

import (
	"context"

	"github.com/CIRISAI/CIRISAgent-sub001/internal/cerr"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/logging"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/model"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/registry"
)

// LLMRequest is a request/response unit for the LLM Bus.
type LLMRequest struct {
	Prompt       string
	SystemPrompt string
	MaxTokens    int
}

// LLMResponse carries the generated content plus token/cost usage for
// correlation recording (§4.2).
type LLMResponse struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
}

// LLMBackend is the interface an LLM provider must implement.
type LLMBackend interface {
	Complete(ctx context.Context, req LLMRequest) (LLMResponse, error)
}

// LLMBus supports primary/secondary providers with automatic failover on
// circuit-open (§4.2).
type LLMBus struct {
	base
}

// NewLLMBus constructs the LLM bus.
func NewLLMBus(reg *registry.Registry, logger logging.Logger) *LLMBus {
	return &LLMBus{base: newBase("llm", reg, logger, DefaultRetryPolicy())}
}

// Complete issues a completion request, failing over across registered
// providers in priority order when the current one is circuit-open.
func (l *LLMBus) Complete(ctx context.Context, thought *model.Thought, req LLMRequest) (LLMResponse, error) {
	ctx = stampSpan(ctx, thought)

	var finish func(outcome string) model.Correlation
	if l.tracer != nil {
		ctx, finish = l.tracer.StartSpan(ctx, thought.TaskID, thought.ThoughtID, "llm_completion", "bus.llm.Complete")
	}

	var resp LLMResponse
	err := l.failover(ctx, func(instance interface{}) error {
		backend, ok := instance.(LLMBackend)
		if !ok {
			return cerr.New("LLMBus.Complete", cerr.KindValidation, "provider does not implement LLMBackend")
		}
		r, err := backend.Complete(ctx, req)
		resp = r
		return err
	})

	if finish != nil {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		corr := finish(outcome)
		corr.PromptTokens = resp.PromptTokens
		corr.CompletionTokens = resp.CompletionTokens
		l.logger.InfoContext(ctx, "llm completion correlation", logging.Fields{
			"span_id": corr.SpanID, "outcome": corr.Outcome,
			"prompt_tokens": corr.PromptTokens, "completion_tokens": corr.CompletionTokens,
		})
	}

	if err != nil {
		if cerr.Is(err, cerr.KindCircuitOpen) {
			return LLMResponse{}, cerr.New("LLMBus.Complete", cerr.KindCircuitOpen, "no_providers")
		}
		return LLMResponse{}, err
	}
	return resp, nil
}
