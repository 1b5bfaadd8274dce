package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestItemProcessed(t *testing.T) {
	m := New()
	m.ItemProcessed("download", "ok")
	m.ItemProcessed("download", "ok")
	m.ItemProcessed("download", "error")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.stageItems.WithLabelValues("download", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.stageItems.WithLabelValues("download", "error")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ItemProcessed("scrape", "ok")
	m.SearchServed(3)
	m.OutboundHook()(httptest.NewRequest(http.MethodGet, "/", nil), nil, nil)
}

func TestHandlerExposesCounters(t *testing.T) {
	m := New()
	m.ItemProcessed("verify", "mismatch")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `irdin_stage_items_total{outcome="mismatch",stage="verify"} 1`))
}
