// Package telemetry wires OpenTelemetry tracing over every bus call and
// each pipeline round (§3's Correlation/Trace Span entity), exporting via OTLP
// gRPC in production and stdout in development, grounded on the
// zero-config MeterProvider/TracerProvider bootstrap shown by
// 99souls-ariadne's engine/telemetry/metrics package, generalized from
// metrics to spans.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/CIRISAI/CIRISAgent-sub001/internal/cerr"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/model"
)

// Tracer wraps an OTel TracerProvider scoped to one CIRIS occurrence.
type Tracer struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// New builds a Tracer. When otlpEndpoint is empty, spans export to
// stdout (development default); otherwise they ship via OTLP/gRPC.
func New(ctx context.Context, serviceName, otlpEndpoint string) (*Tracer, error) {
	var exporter sdktrace.SpanExporter
	var err error
	if otlpEndpoint == "" {
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
	} else {
		exporter, err = otlptracegrpc.New(ctx, otlptracegrpc.WithEndpoint(otlpEndpoint), otlptracegrpc.WithInsecure())
	}
	if err != nil {
		return nil, cerr.Wrap("telemetry.New", cerr.KindFatal, err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
	)
	otel.SetTracerProvider(provider)
	return &Tracer{provider: provider, tracer: provider.Tracer(serviceName)}, nil
}

// Shutdown flushes pending spans and releases the exporter.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if err := t.provider.Shutdown(ctx); err != nil {
		return cerr.Wrap("telemetry.Shutdown", cerr.KindFatal, err)
	}
	return nil
}

// StartSpan begins a span for one pipeline round or bus call, returning
// the updated context and a finish function that records the outcome
// and returns a model.Correlation for the audit/logging layer.
func (t *Tracer) StartSpan(ctx context.Context, taskID, thoughtID, kind, name string) (context.Context, func(outcome string) model.Correlation) {
	started := time.Now()
	spanCtx, span := t.tracer.Start(ctx, name)
	sc := span.SpanContext()

	finish := func(outcome string) model.Correlation {
		span.End()
		return model.Correlation{
			TaskID:    taskID,
			ThoughtID: thoughtID,
			SpanID:    sc.SpanID().String(),
			StartedAt: started,
			Duration:  time.Since(started),
			Outcome:   outcome,
			Kind:      kind,
		}
	}
	return spanCtx, finish
}
