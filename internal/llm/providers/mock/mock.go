// Package mock implements bus.LLMBackend for development and tests,
// grounded on the injectable-function mock idiom in
// itsneelabh-gomind/ai/client_test.go's mockAIClient (a closure override
// with a canned default), promoted here from a test-only type to a real
// package so internal/config's mock-mode wiring has something concrete
// to construct.
package mock

import (
	"context"
	"fmt"

	"github.com/CIRISAI/CIRISAgent-sub001/internal/bus"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/cerr"
)

// Client is a scriptable bus.LLMBackend. CompleteFunc, when set,
// overrides the canned default response — the same override pattern the
// teacher's mockAIClient uses for unit tests.
type Client struct {
	CompleteFunc func(ctx context.Context, req bus.LLMRequest) (bus.LLMResponse, error)
	// Err, when set, makes every Complete call fail with this error.
	Err error
}

// Complete implements bus.LLMBackend.
func (c *Client) Complete(ctx context.Context, req bus.LLMRequest) (bus.LLMResponse, error) {
	if c.Err != nil {
		return bus.LLMResponse{}, cerr.Wrap("mock.Complete", cerr.KindFatal, c.Err)
	}
	if c.CompleteFunc != nil {
		return c.CompleteFunc(ctx, req)
	}
	return bus.LLMResponse{
		Content:          fmt.Sprintf("mock response to: %s", req.Prompt),
		PromptTokens:     len(req.Prompt) / 4,
		CompletionTokens: 8,
	}, nil
}
