package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestCollectors_Gatherable(t *testing.T) {
	// Use a custom registry to avoid conflicts with other tests
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		BreakerState,
		BreakerTransitions,
		BreakerCalls,
		BreakerSlowCalls,
		BreakerNotPermitted,
		RetryAttempts,
		BulkheadInFlight,
		BulkheadRejections,
		RateLimitRejections,
	)

	if _, err := reg.Gather(); err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
}

func TestBreakerCollectors_Update(t *testing.T) {
	BreakerState.WithLabelValues("payments").Set(1)
	BreakerTransitions.WithLabelValues("payments", "closed", "open").Inc()
	BreakerCalls.WithLabelValues("payments", "success").Inc()
	BreakerCalls.WithLabelValues("payments", "failure").Inc()
	BreakerCalls.WithLabelValues("payments", "ignored").Inc()
	BreakerSlowCalls.WithLabelValues("payments").Inc()
	BreakerNotPermitted.WithLabelValues("payments").Inc()
	// Should not panic
}

func TestRetryAndBulkheadCollectors_Update(t *testing.T) {
	RetryAttempts.WithLabelValues("search").Inc()
	BulkheadInFlight.WithLabelValues("search").Set(3)
	BulkheadRejections.WithLabelValues("search").Inc()
	RateLimitRejections.WithLabelValues("search").Inc()
	// Should not panic
}

func TestHandler_ReturnsPrometheusFormat(t *testing.T) {
	// Register metrics with default registry for handler test
	Init()

	// Increment a counter so there's output
	BreakerTransitions.WithLabelValues("test", "closed", "open").Inc()
	BreakerState.WithLabelValues("test").Set(1)

	h := Handler()
	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	body, _ := io.ReadAll(rec.Body)
	bodyStr := string(body)

	if !strings.Contains(bodyStr, "resilience_circuitbreaker_transitions_total") {
		t.Error("expected resilience_circuitbreaker_transitions_total in metrics output")
	}
	if !strings.Contains(bodyStr, "resilience_circuitbreaker_state") {
		t.Error("expected resilience_circuitbreaker_state in metrics output")
	}
}
