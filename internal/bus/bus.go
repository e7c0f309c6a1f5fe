// Package bus implements the six typed message buses (§4.2): thin
// orchestration layers over the service registry that add request shape
// validation, correlation stamping, retry policy, and per-capability
// policy gates. Grounded on the teacher framework's service-facade
// pattern (core.Discovery + resilience.Retry) generalized to CIRIS's six
// capabilities.
package bus

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/CIRISAI/CIRISAgent-sub001/internal/cerr"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/logging"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/model"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/registry"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/telemetry"
)

// RetryPolicy configures the exponential backoff applied to recoverable
// bus-call failures (§7: Timeout/CircuitOpen are recoverable).
type RetryPolicy struct {
	MaxElapsed time.Duration
	MaxRetries uint
}

// DefaultRetryPolicy mirrors the teacher's resilience defaults: bounded
// retries within the round-level deadline (§5 "Cancellation & timeouts").
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxElapsed: 5 * time.Second, MaxRetries: 2}
}

// base is embedded by every concrete bus; it holds the shared registry
// handle, logger, and retry policy, and implements correlation stamping
// and circuit-aware dispatch common to all six buses.
type base struct {
	capability string
	reg        *registry.Registry
	logger     logging.Logger
	retry      RetryPolicy
	tracer     *telemetry.Tracer
}

func newBase(capability string, reg *registry.Registry, logger logging.Logger, retry RetryPolicy) base {
	if logger == nil {
		logger = logging.NoOp()
	}
	return base{capability: capability, reg: reg, logger: logger.WithComponent("bus/" + capability), retry: retry}
}

// SetTracer attaches a Tracer so dispatch emits one trace span per bus
// call (§3 "one per handler invocation and per bus call"). Nil-safe: a
// bus with no tracer attached just skips span creation.
func (b *base) SetTracer(t *telemetry.Tracer) {
	b.tracer = t
}

// dispatch selects a provider for the bus's capability, stamps the
// correlation id from context onto the call, executes fn against the
// provider instance with retry on recoverable errors, and reports the
// outcome to the circuit breaker. fn receives the provider's Instance and
// must type-assert it to the bus's concrete backend interface.
func (b base) dispatch(ctx context.Context, fn func(instance interface{}) error) (err error) {
	corrID, _ := logging.CorrelationID(ctx)
	if b.tracer != nil {
		var finish func(outcome string) model.Correlation
		ctx, finish = b.tracer.StartSpan(ctx, "", corrID, "bus_call", "bus."+b.capability+".dispatch")
		defer func() {
			outcome := "ok"
			if err != nil {
				outcome = "error"
			}
			corr := finish(outcome)
			b.logger.DebugContext(ctx, "bus call span", logging.Fields{"span_id": corr.SpanID, "duration_ms": corr.Duration.Milliseconds()})
		}()
	}

	provider, ok := b.reg.Get(b.capability)
	if !ok {
		err = cerr.New("bus.dispatch", cerr.KindCircuitOpen, "no eligible provider for capability "+b.capability)
		return err
	}

	b.logger.DebugContext(ctx, "dispatching", logging.Fields{
		"capability": b.capability, "instance_ref": provider.Entry.InstanceRef, "correlation_id": corrID,
	})

	operation := func() (struct{}, error) {
		err := fn(provider.Instance)
		if err != nil && cerr.IsRetryable(err) {
			return struct{}{}, err
		}
		if err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, nil
	}

	opts := []backoff.RetryOption{backoff.WithMaxElapsedTime(b.retry.MaxElapsed)}
	if b.retry.MaxRetries > 0 {
		opts = append(opts, backoff.WithMaxTries(b.retry.MaxRetries+1))
	}
	_, err = backoff.Retry(ctx, operation, opts...)

	b.reg.ReportResult(b.capability, provider.Entry.InstanceRef, err == nil)
	return err
}

// failover is used by the LLM Bus for primary/secondary failover on
// circuit-open (§4.2). Each attempt calls the provider the registry
// selects; the registry never selects a circuit-open provider, so an open
// primary is skipped in favour of the next eligible one. After a failed
// call the registry is asked again, and the loop stops with that error as
// soon as it returns a provider already tried (a provider whose circuit
// is still closed after the failure is selected again), so a single
// failing call does not move on to a lower-priority provider.
func (b base) failover(ctx context.Context, fn func(instance interface{}) error) error {
	tried := map[string]bool{}
	var lastErr error
	for i := 0; i < 8; i++ { // bounded: at most this many distinct providers exist in practice
		provider, ok := b.reg.Get(b.capability)
		if !ok {
			if lastErr != nil {
				return lastErr
			}
			return cerr.New("bus.failover", cerr.KindCircuitOpen, "no eligible provider for capability "+b.capability)
		}
		if tried[provider.Entry.InstanceRef] {
			break
		}
		tried[provider.Entry.InstanceRef] = true

		err := fn(provider.Instance)
		b.reg.ReportResult(b.capability, provider.Entry.InstanceRef, err == nil)
		if err == nil {
			return nil
		}
		lastErr = err
		if !cerr.Is(err, cerr.KindCircuitOpen) && !cerr.IsRetryable(err) {
			return err
		}
	}
	if lastErr != nil {
		return lastErr
	}
	return cerr.New("bus.failover", cerr.KindCircuitOpen, "exhausted providers for "+b.capability)
}

// stampSpan returns a context carrying the given thought's span id as the
// correlation id, per §4.2 "All buses must ... propagate a correlation_id
// (= current thought's span id) into every outbound call."
func stampSpan(ctx context.Context, thought *model.Thought) context.Context {
	return logging.WithCorrelationID(ctx, thought.ThoughtID)
}
