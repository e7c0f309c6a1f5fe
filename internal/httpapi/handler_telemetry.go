package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// telemetryUnifiedResponse is the merged view (§6 "Telemetry: unified
// (merged view)") combining processor counters with per-capability
// provider health, since an operator watching one dashboard needs both.
type telemetryUnifiedResponse struct {
	ThoughtsProcessed uint64                      `json:"thoughts_processed"`
	RoundsRun         uint64                      `json:"rounds_run"`
	SecondsPerThought float64                     `json:"seconds_per_thought"`
	CognitiveState    string                      `json:"cognitive_state"`
	Capabilities      map[string][]ProviderHealth `json:"capabilities"`
}

func (s *Server) handleTelemetryUnified(c *gin.Context) {
	metrics := s.deps.Processor.Metrics()
	capabilities := make(map[string][]ProviderHealth, len(systemCapabilities))
	for _, capability := range systemCapabilities {
		reports := s.deps.Registry.HealthReport(capability)
		providers := make([]ProviderHealth, 0, len(reports))
		for _, h := range reports {
			providers = append(providers, ProviderHealth{InstanceRef: h.InstanceRef, State: string(h.State), Priority: h.Priority})
		}
		capabilities[capability] = providers
	}

	c.JSON(http.StatusOK, telemetryUnifiedResponse{
		ThoughtsProcessed: metrics.ThoughtsProcessed(),
		RoundsRun:         metrics.RoundsRun(),
		SecondsPerThought: metrics.MeanSecondsPerThought(),
		CognitiveState:    string(s.deps.Processor.State()),
		Capabilities:      capabilities,
	})
}

// handleTelemetryMetrics serves Prometheus text-format output (§6
// "metrics export (Prometheus/Graphite text formats)"); Graphite export
// is not implemented in this core since no pack dependency speaks that
// wire format.
func (s *Server) handleTelemetryMetrics(c *gin.Context) {
	s.deps.PromExporter.Handler().ServeHTTP(c.Writer, c.Request)
}

// handleTelemetryTraces returns a fixed {"export":"otlp","status":"streaming"}
// body (§6 "OTLP traces"). internal/telemetry pushes spans as they
// complete (to the OTLP endpoint when one is configured, to stdout
// otherwise), so this route replays no spans; it does not check whether
// a tracer was constructed or which exporter it uses.
func (s *Server) handleTelemetryTraces(c *gin.Context) {
	c.JSON(http.StatusOK, tracesResponse{Export: "otlp", Status: "streaming"})
}

type tracesResponse struct {
	Export string `json:"export"`
	Status string `json:"status"`
}
