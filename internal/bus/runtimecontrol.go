package bus

import (
	"context"

	"github.com/CIRISAI/CIRISAgent-sub001/internal/cerr"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/logging"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/registry"
)

// RuntimeControlBackend is implemented by the processor (it registers
// itself as the sole runtimecontrol provider) so adapters can request
// pause/resume/single-step/shutdown through the same registry+bus path as
// every other capability (§4.2).
type RuntimeControlBackend interface {
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	SingleStep(ctx context.Context) (interface{}, error)
	Shutdown(ctx context.Context) error
}

// RuntimeControlBus is the Runtime Control capability's typed façade.
type RuntimeControlBus struct {
	base
}

// NewRuntimeControlBus constructs the runtime-control bus.
func NewRuntimeControlBus(reg *registry.Registry, logger logging.Logger) *RuntimeControlBus {
	return &RuntimeControlBus{base: newBase("runtimecontrol", reg, logger, DefaultRetryPolicy())}
}

func (r *RuntimeControlBus) Pause(ctx context.Context) error {
	return r.dispatch(ctx, func(instance interface{}) error {
		backend, ok := instance.(RuntimeControlBackend)
		if !ok {
			return cerr.New("RuntimeControlBus.Pause", cerr.KindValidation, "provider does not implement RuntimeControlBackend")
		}
		return backend.Pause(ctx)
	})
}

func (r *RuntimeControlBus) Resume(ctx context.Context) error {
	return r.dispatch(ctx, func(instance interface{}) error {
		backend, ok := instance.(RuntimeControlBackend)
		if !ok {
			return cerr.New("RuntimeControlBus.Resume", cerr.KindValidation, "provider does not implement RuntimeControlBackend")
		}
		return backend.Resume(ctx)
	})
}

func (r *RuntimeControlBus) SingleStep(ctx context.Context) (interface{}, error) {
	var result interface{}
	err := r.dispatch(ctx, func(instance interface{}) error {
		backend, ok := instance.(RuntimeControlBackend)
		if !ok {
			return cerr.New("RuntimeControlBus.SingleStep", cerr.KindValidation, "provider does not implement RuntimeControlBackend")
		}
		res, err := backend.SingleStep(ctx)
		result = res
		return err
	})
	return result, err
}

func (r *RuntimeControlBus) Shutdown(ctx context.Context) error {
	return r.dispatch(ctx, func(instance interface{}) error {
		backend, ok := instance.(RuntimeControlBackend)
		if !ok {
			return cerr.New("RuntimeControlBus.Shutdown", cerr.KindValidation, "provider does not implement RuntimeControlBackend")
		}
		return backend.Shutdown(ctx)
	})
}
