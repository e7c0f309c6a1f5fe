package pipeline

import (
	"context"

	"github.com/CIRISAI/CIRISAgent-sub001/internal/bus"
)

// busWiseGate adapts a *bus.WiseBus into the pipeline's WiseGate port so
// GATHER_CONTEXT can consult it without the pipeline package depending on
// bus wire types beyond this one call.
type busWiseGate struct {
	bus *bus.WiseBus
}

// NewWiseGate wraps a Wise Bus for use as a Pipeline's WiseGate.
func NewWiseGate(b *bus.WiseBus) WiseGate {
	return &busWiseGate{bus: b}
}

// Consult asks the Wise Bus whether declaredCapability may proceed. An
// empty declaredCapability never needs gating, so it is a no-op here too;
// Pipeline.Run already skips the call in that case, this guard just keeps
// the gate safe to call directly in tests.
func (g *busWiseGate) Consult(ctx context.Context, declaredCapability string) error {
	if declaredCapability == "" {
		return nil
	}
	_, err := g.bus.Consult(ctx, bus.WiseRequest{DeclaredCapability: declaredCapability})
	return err
}
