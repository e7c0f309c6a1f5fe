package promexport

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExporter_HandlerServesRegisteredMetrics(t *testing.T) {
	e := New()
	e.ThoughtsProcessed.Add(3)
	e.HandlerOutcomes.WithLabelValues("SPEAK", "success").Inc()

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	e.Handler().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "ciris_thoughts_processed_total 3"))
	assert.True(t, strings.Contains(body, `ciris_handler_outcomes_total{action_type="SPEAK",outcome="success"} 1`))
}

func TestNew_DoesNotPanicOnDoubleConstruction(t *testing.T) {
	assert.NotPanics(t, func() {
		_ = New()
		_ = New()
	})
}
