// Package promexport exposes CIRIS's runtime counters in Prometheus text
// format (§6 Telemetry), grounded on 99souls-ariadne's
// engine/telemetry/metrics/prometheus.go PrometheusProvider: a private
// registry, lazily-registered vectors, and a cached promhttp.Handler.
package promexport

import (
	"net/http"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Exporter holds CIRIS's fixed metric set: there is no dynamic
// registration surface here, unlike the teacher's general-purpose
// Provider, because the set of things CIRIS measures is closed
// (rounds, thoughts, handler outcomes, gate decisions).
type Exporter struct {
	registry *prom.Registry
	handler  http.Handler

	ThoughtsProcessed  prom.Counter
	RoundsRun          prom.Counter
	SecondsPerThought  prom.Gauge
	HandlerOutcomes    *prom.CounterVec
	GateRejections     *prom.CounterVec
	ConscienceFailures prom.Counter
}

// New builds an Exporter with its own private registry, so CIRIS's
// metrics never collide with a host process's default registry.
func New() *Exporter {
	reg := prom.NewRegistry()

	e := &Exporter{
		registry: reg,
		ThoughtsProcessed: prom.NewCounter(prom.CounterOpts{
			Name: "ciris_thoughts_processed_total",
			Help: "Total thoughts advanced through the pipeline.",
		}),
		RoundsRun: prom.NewCounter(prom.CounterOpts{
			Name: "ciris_rounds_run_total",
			Help: "Total processor rounds executed.",
		}),
		SecondsPerThought: prom.NewGauge(prom.GaugeOpts{
			Name: "ciris_seconds_per_thought",
			Help: "Rolling mean wall time per thought over the last 100 thoughts.",
		}),
		HandlerOutcomes: prom.NewCounterVec(prom.CounterOpts{
			Name: "ciris_handler_outcomes_total",
			Help: "Handler invocations by action type and outcome.",
		}, []string{"action_type", "outcome"}),
		GateRejections: prom.NewCounterVec(prom.CounterOpts{
			Name: "ciris_gate_rejections_total",
			Help: "Admission rejections by reason.",
		}, []string{"reason"}),
		ConscienceFailures: prom.NewCounter(prom.CounterOpts{
			Name: "ciris_conscience_failures_total",
			Help: "Total actions blocked by the conscience step.",
		}),
	}

	reg.MustRegister(
		e.ThoughtsProcessed, e.RoundsRun, e.SecondsPerThought,
		e.HandlerOutcomes, e.GateRejections, e.ConscienceFailures,
	)
	e.handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	return e
}

// Handler serves Prometheus text-format output for the /v1/telemetry
// metrics-export route.
func (e *Exporter) Handler() http.Handler { return e.handler }
