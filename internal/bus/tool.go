package bus

import (
	"context"

	"github.com/CIRISAI/CIRISAgent-sub001/internal/cerr"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/logging"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/model"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/registry"
)

// ToolExecutionResult is the typed result of a tool invocation (§4.2).
type ToolExecutionResult struct {
	Success bool
	Output  string
	Error   string
}

// ToolBackend is the interface a Tool provider must implement: a
// catalogue plus execution.
type ToolBackend interface {
	Catalogue(ctx context.Context) ([]string, error)
	Execute(ctx context.Context, name string, params map[string]string) (ToolExecutionResult, error)
}

// ToolBus is the Tool capability's typed façade.
type ToolBus struct {
	base
}

// NewToolBus constructs the tool bus.
func NewToolBus(reg *registry.Registry, logger logging.Logger) *ToolBus {
	return &ToolBus{base: newBase("tool", reg, logger, DefaultRetryPolicy())}
}

// Catalogue lists tools available from the currently eligible provider.
func (t *ToolBus) Catalogue(ctx context.Context) ([]string, error) {
	var names []string
	err := t.dispatch(ctx, func(instance interface{}) error {
		backend, ok := instance.(ToolBackend)
		if !ok {
			return cerr.New("ToolBus.Catalogue", cerr.KindValidation, "provider does not implement ToolBackend")
		}
		list, err := backend.Catalogue(ctx)
		names = list
		return err
	})
	return names, err
}

// Execute runs a named tool with params, returning a typed result (§4.2).
func (t *ToolBus) Execute(ctx context.Context, thought *model.Thought, name string, params map[string]string) (ToolExecutionResult, error) {
	ctx = stampSpan(ctx, thought)
	var result ToolExecutionResult
	err := t.dispatch(ctx, func(instance interface{}) error {
		backend, ok := instance.(ToolBackend)
		if !ok {
			return cerr.New("ToolBus.Execute", cerr.KindValidation, "provider does not implement ToolBackend")
		}
		r, err := backend.Execute(ctx, name, params)
		result = r
		return err
	})
	return result, err
}
