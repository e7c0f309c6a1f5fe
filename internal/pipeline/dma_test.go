package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CIRISAI/CIRISAgent-sub001/internal/bus"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/llm/providers/mock"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/logging"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/model"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/registry"
)

func newTestLLMBus(t *testing.T, backend bus.LLMBackend) *bus.LLMBus {
	t.Helper()
	reg := registry.New(logging.NoOp(), registry.DefaultBreakerConfig())
	err := reg.Register("llm", model.ProviderEntry{
		InstanceRef: "test-llm",
		Priority:    1,
		Strategy:    model.StrategyPriority,
	}, backend)
	require.NoError(t, err)
	return bus.NewLLMBus(reg, logging.NoOp())
}

func newTestThought() *model.Thought {
	return &model.Thought{
		ThoughtID: "th1",
		TaskID:    "task1",
		Content: model.ContextBundle{
			SystemSnapshot: "snapshot",
			Identity:       "identity",
		},
	}
}

func TestNewEthicalDMA_EvaluateReturnsEthicalKindResult(t *testing.T) {
	llmBus := newTestLLMBus(t, &mock.Client{})
	dma := NewEthicalDMA(llmBus)

	result, err := dma.Evaluate(context.Background(), newTestThought())

	require.NoError(t, err)
	assert.Equal(t, model.DMAEthical, result.Kind)
	assert.NotEmpty(t, result.Rationale)
}

func TestNewCommonSenseDMA_EvaluateReturnsCommonSenseKindResult(t *testing.T) {
	llmBus := newTestLLMBus(t, &mock.Client{})
	dma := NewCommonSenseDMA(llmBus)

	result, err := dma.Evaluate(context.Background(), newTestThought())

	require.NoError(t, err)
	assert.Equal(t, model.DMACommonSense, result.Kind)
}

func TestNewDomainSpecificDMA_EvaluateReturnsDomainKindResult(t *testing.T) {
	llmBus := newTestLLMBus(t, &mock.Client{})
	dma := NewDomainSpecificDMA(llmBus)

	result, err := dma.Evaluate(context.Background(), newTestThought())

	require.NoError(t, err)
	assert.Equal(t, model.DMADomainSpecific, result.Kind)
}

func TestNewEthicalDMA_EvaluatePropagatesBackendError(t *testing.T) {
	llmBus := newTestLLMBus(t, &mock.Client{Err: assertError("backend down")})
	dma := NewEthicalDMA(llmBus)

	_, err := dma.Evaluate(context.Background(), newTestThought())

	assert.Error(t, err)
}

func TestNewActionSelectionDMA_SelectParsesActionKeywordFromResponse(t *testing.T) {
	llmBus := newTestLLMBus(t, &mock.Client{
		CompleteFunc: func(ctx context.Context, req bus.LLMRequest) (bus.LLMResponse, error) {
			return bus.LLMResponse{Content: "TASK_COMPLETE: nothing further to do"}, nil
		},
	})
	aspdma := NewActionSelectionDMA(llmBus)
	thought := newTestThought()

	decision, err := aspdma.Select(context.Background(), thought,
		model.DMAResult{Kind: model.DMAEthical},
		model.DMAResult{Kind: model.DMACommonSense},
		model.DMAResult{Kind: model.DMADomainSpecific},
		"")

	require.NoError(t, err)
	assert.Equal(t, model.ActionTaskComplete, decision.ActionType)
}

func TestNewActionSelectionDMA_SelectDefaultsToSpeakOnUnrecognizedResponse(t *testing.T) {
	llmBus := newTestLLMBus(t, &mock.Client{
		CompleteFunc: func(ctx context.Context, req bus.LLMRequest) (bus.LLMResponse, error) {
			return bus.LLMResponse{Content: "I am unsure what to do here."}, nil
		},
	})
	aspdma := NewActionSelectionDMA(llmBus)
	thought := newTestThought()

	decision, err := aspdma.Select(context.Background(), thought,
		model.DMAResult{}, model.DMAResult{}, model.DMAResult{}, "")

	require.NoError(t, err)
	assert.Equal(t, model.ActionSpeak, decision.ActionType)
}

func TestNewActionSelectionDMA_SelectIncludesExtraReasonOnRecursion(t *testing.T) {
	var capturedPrompt string
	llmBus := newTestLLMBus(t, &mock.Client{
		CompleteFunc: func(ctx context.Context, req bus.LLMRequest) (bus.LLMResponse, error) {
			capturedPrompt = req.Prompt
			return bus.LLMResponse{Content: "DEFER"}, nil
		},
	})
	aspdma := NewActionSelectionDMA(llmBus)
	thought := newTestThought()

	_, err := aspdma.Select(context.Background(), thought,
		model.DMAResult{}, model.DMAResult{}, model.DMAResult{}, "too risky")

	require.NoError(t, err)
	assert.Contains(t, capturedPrompt, "too risky")
}
