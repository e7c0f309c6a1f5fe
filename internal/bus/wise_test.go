package bus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CIRISAI/CIRISAgent-sub001/internal/cerr"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/logging"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/model"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/registry"
)

type fakeWiseBackend struct {
	called bool
	resp   WiseResponse
	err    error
}

func (f *fakeWiseBackend) Consult(ctx context.Context, req WiseRequest) (WiseResponse, error) {
	f.called = true
	return f.resp, f.err
}

// TestWiseBus_ConsultRejectsProhibitedCapabilityWithoutTouchingProvider
// exercises invariant 6 / S3: a prohibited declared capability must
// surface Prohibited even when a provider is registered for "wise", and
// that provider must never be called.
func TestWiseBus_ConsultRejectsProhibitedCapabilityWithoutTouchingProvider(t *testing.T) {
	reg := registry.New(logging.NoOp(), registry.DefaultBreakerConfig())
	backend := &fakeWiseBackend{resp: WiseResponse{Guidance: "should never be returned"}}
	require.NoError(t, reg.Register("wise", model.ProviderEntry{InstanceRef: "w1"}, backend))
	w := NewWiseBus(reg, logging.NoOp())

	_, err := w.Consult(context.Background(), WiseRequest{DeclaredCapability: "medical_diagnosis"})

	require.Error(t, err)
	assert.True(t, cerr.Is(err, cerr.KindProhibited))
	assert.False(t, backend.called, "no provider may be consulted for a prohibited capability")
}

func TestWiseBus_ConsultAllowsNonProhibitedCapabilityThroughToProvider(t *testing.T) {
	reg := registry.New(logging.NoOp(), registry.DefaultBreakerConfig())
	backend := &fakeWiseBackend{resp: WiseResponse{Guidance: "ask a human"}}
	require.NoError(t, reg.Register("wise", model.ProviderEntry{InstanceRef: "w1"}, backend))
	w := NewWiseBus(reg, logging.NoOp())

	resp, err := w.Consult(context.Background(), WiseRequest{DeclaredCapability: "weather_lookup"})

	require.NoError(t, err)
	assert.True(t, backend.called)
	assert.Equal(t, "ask a human", resp.Guidance)
}

func TestWiseBus_ConsultSurfacesCircuitOpenWhenNoProviderRegistered(t *testing.T) {
	reg := registry.New(logging.NoOp(), registry.DefaultBreakerConfig())
	w := NewWiseBus(reg, logging.NoOp())

	_, err := w.Consult(context.Background(), WiseRequest{DeclaredCapability: "weather_lookup"})

	require.Error(t, err)
	assert.True(t, cerr.Is(err, cerr.KindCircuitOpen))
}
