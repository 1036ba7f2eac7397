package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// TestMetrics_Usable verifies that all Prometheus metrics can be used without
// panic, ensuring label dimensions match usage across packages.
func TestMetrics_Usable(t *testing.T) {
	HTTPRequestsTotal.WithLabelValues("POST", "/weather", "2xx").Inc()
	HTTPRequestDuration.WithLabelValues("POST", "/weather").Observe(0.01)
	SlashCommandsTotal.WithLabelValues(OutcomeForecast).Inc()
	UpstreamCallsTotal.WithLabelValues("geocoder", "success").Inc()
	UpstreamDuration.WithLabelValues("forecast", "server_error").Observe(0.1)
	CacheRequestsTotal.WithLabelValues("hit").Inc()
	CacheErrorsTotal.WithLabelValues("get").Inc()
	RecordLocationQuery("us:seattle")
	CacheWarmingTotal.Inc()
	CacheWarmingDurationSeconds.Observe(0.2)
}

// TestMetricLocationLabel verifies tracked keys keep their label and others
// collapse into "other".
func TestMetricLocationLabel(t *testing.T) {
	SetTrackedLocations([]string{"us:seattle", "si:london"})
	defer SetTrackedLocations(nil)

	if got := MetricLocationLabel("us:seattle"); got != "us:seattle" {
		t.Errorf("MetricLocationLabel(us:seattle) = %q", got)
	}
	if got := MetricLocationLabel("us:unknown-city"); got != "other" {
		t.Errorf("MetricLocationLabel(us:unknown-city) = %q, want other", got)
	}
}

// TestMetricsHandler_ServesPrometheusFormat verifies that MetricsHandler serves
// Prometheus text exposition format with correct HTTP status and metric output.
func TestMetricsHandler_ServesPrometheusFormat(t *testing.T) {
	HTTPRequestsTotal.WithLabelValues("GET", "/health", "2xx").Inc()

	handler := MetricsHandler()
	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("MetricsHandler status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "httpRequestsTotal") {
		t.Error("MetricsHandler response should contain metric output")
	}
}
