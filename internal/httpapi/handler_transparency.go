package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// handleTransparencyStats serves CIRIS's public statistics feed (§6
// "Transparency: public statistics feed (no auth)"): no identity,
// content, or per-subject data ever appears here, only aggregate
// processor counters.
func (s *Server) handleTransparencyStats(c *gin.Context) {
	metrics := s.deps.Processor.Metrics()
	c.JSON(http.StatusOK, TransparencyStatsResponse{
		ThoughtsProcessed: metrics.ThoughtsProcessed(),
		RoundsRun:         metrics.RoundsRun(),
		SecondsPerThought: metrics.MeanSecondsPerThought(),
	})
}
