package jobmetrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
)

func scrape(reg *prometheus.Registry) string {
	rr := httptest.NewRecorder()
	promhttp.HandlerFor(reg, promhttp.HandlerOpts{}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	return rr.Body.String()
}

func TestTrackerCountsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	assert.NoError(t, m.Track("scan").End(nil))
	boom := errors.New("boom")
	assert.ErrorIs(t, m.Track("scan").End(boom), boom)

	body := scrape(reg)
	assert.Contains(t, body, `stockflow_jobs_total{job="scan",status="success"} 1`)
	assert.Contains(t, body, `stockflow_jobs_total{job="scan",status="failure"} 1`)
	assert.Contains(t, body, `stockflow_jobs_failures_total{job="scan"} 1`)
	assert.Contains(t, body, `stockflow_job_duration_seconds_count{job="scan"} 2`)
}

func TestLowStockGaugeOverwrites(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.SetLowStock(7, 4)
	m.SetLowStock(7, 1)
	m.AddNotification("dispatch")

	body := scrape(reg)
	assert.Contains(t, body, `stockflow_low_stock_records{warehouse="7"} 1`)
	assert.Contains(t, body, `stockflow_notifications_total{workflow="dispatch"} 1`)
}

func TestNilMetricsTrackerPassesErrorThrough(t *testing.T) {
	var m *Metrics
	boom := errors.New("boom")
	assert.ErrorIs(t, m.Track("scan").End(boom), boom)
	m.SetLowStock(1, 2)
	m.AddNotification("x")
}
