package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// systemCapabilities is the fixed set of capabilities services/health
// reports on (§4.1's registry is generic, but CIRIS only ever registers
// these six).
var systemCapabilities = []string{"communication", "memory", "llm", "tool", "runtimecontrol", "wise"}

func (s *Server) handleSystemHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:       "ok",
		OccurrenceID: s.deps.OccurrenceID,
		State:        string(s.deps.Processor.State()),
		Paused:       s.deps.Processor.Paused(),
	})
}

func (s *Server) handleServicesHealth(c *gin.Context) {
	capabilities := make(map[string][]ProviderHealth, len(systemCapabilities))
	for _, capability := range systemCapabilities {
		reports := s.deps.Registry.HealthReport(capability)
		providers := make([]ProviderHealth, 0, len(reports))
		for _, h := range reports {
			providers = append(providers, ProviderHealth{InstanceRef: h.InstanceRef, State: string(h.State), Priority: h.Priority})
		}
		capabilities[capability] = providers
	}
	c.JSON(http.StatusOK, ServiceHealthResponse{Capabilities: capabilities})
}

func (s *Server) handlePause(c *gin.Context) {
	if err := s.deps.RuntimeControl.Pause(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, StatusResponse{Status: "paused"})
}

func (s *Server) handleResume(c *gin.Context) {
	if err := s.deps.RuntimeControl.Resume(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, StatusResponse{Status: "resumed"})
}
