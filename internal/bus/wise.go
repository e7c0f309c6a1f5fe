package bus

import (
	"context"

	"github.com/CIRISAI/CIRISAgent-sub001/internal/cerr"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/logging"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/registry"
)

// ProhibitedCapabilities is the denylist of guidance capabilities the Wise
// Bus must reject before reaching any provider (§4.2, §8 invariant 6).
// No provider registration can override this set.
var ProhibitedCapabilities = map[string]bool{
	"medical_diagnosis":       true,
	"medical_treatment":       true,
	"financial_trading":       true,
	"financial_advice":        true,
	"legal_advice":            true,
	"emergency_coordination":  true,
}

// WiseRequest is a wisdom/guidance or deferral request.
type WiseRequest struct {
	DeclaredCapability string
	Question           string
}

// WiseResponse carries the guidance returned, or a deferral marker.
type WiseResponse struct {
	Guidance string
	Deferred bool
}

// WiseBackend is the interface a Wise provider must implement.
type WiseBackend interface {
	Consult(ctx context.Context, req WiseRequest) (WiseResponse, error)
}

// WiseBus enforces the Prohibited Capabilities set at the bus boundary,
// ahead of provider selection (§4.2).
type WiseBus struct {
	base
}

// NewWiseBus constructs the wise/guidance bus.
func NewWiseBus(reg *registry.Registry, logger logging.Logger) *WiseBus {
	return &WiseBus{base: newBase("wise", reg, logger, DefaultRetryPolicy())}
}

// Consult rejects any request whose declared capability is prohibited
// before a provider is ever selected, surfacing a Prohibited error
// (§8 invariant 6, S3).
func (w *WiseBus) Consult(ctx context.Context, req WiseRequest) (WiseResponse, error) {
	if ProhibitedCapabilities[req.DeclaredCapability] {
		w.logger.WarnContext(ctx, "rejected prohibited capability", logging.Fields{"capability": req.DeclaredCapability})
		return WiseResponse{}, cerr.New("WiseBus.Consult", cerr.KindProhibited, "prohibited_capability:"+req.DeclaredCapability)
	}

	var resp WiseResponse
	err := w.dispatch(ctx, func(instance interface{}) error {
		backend, ok := instance.(WiseBackend)
		if !ok {
			return cerr.New("WiseBus.Consult", cerr.KindValidation, "provider does not implement WiseBackend")
		}
		r, err := backend.Consult(ctx, req)
		resp = r
		return err
	})
	return resp, err
}
