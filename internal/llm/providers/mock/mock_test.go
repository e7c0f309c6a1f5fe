package mock

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CIRISAI/CIRISAgent-sub001/internal/bus"
)

func TestClient_DefaultResponse(t *testing.T) {
	c := &Client{}
	resp, err := c.Complete(context.Background(), bus.LLMRequest{Prompt: "hello"})
	require.NoError(t, err)
	assert.Contains(t, resp.Content, "hello")
}

func TestClient_CompleteFuncOverride(t *testing.T) {
	c := &Client{
		CompleteFunc: func(ctx context.Context, req bus.LLMRequest) (bus.LLMResponse, error) {
			return bus.LLMResponse{Content: "scripted"}, nil
		},
	}
	resp, err := c.Complete(context.Background(), bus.LLMRequest{Prompt: "anything"})
	require.NoError(t, err)
	assert.Equal(t, "scripted", resp.Content)
}

func TestClient_ErrReturnsWrappedError(t *testing.T) {
	c := &Client{Err: errors.New("boom")}
	_, err := c.Complete(context.Background(), bus.LLMRequest{})
	assert.Error(t, err)
}
