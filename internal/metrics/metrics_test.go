package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dvloznov/statement-scrubber/internal/redact"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatalf("reading metrics: %v", err)
	}
	return string(body)
}

func TestMetrics_ObserveScrub(t *testing.T) {
	m := New("test")

	_, report := redact.Default().ScrubWithReport("Mail a@b.com or c@d.org\n15/03/2024 UBER TRIP 245.00")
	m.ObserveScrub(report)

	out := scrape(t, m)
	for _, want := range []string{
		`test_redactions_total{rule="email"} 2`,
		`test_lines_scrubbed_total{kind="transaction"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestMetrics_RunsAndAttempts(t *testing.T) {
	m := New("test")
	m.ObserveModelAttempt("gemini-2.5-flash", "rate_limited")
	m.ObserveModelAttempt("gemini-2.5-flash", "rate_limited")
	m.ObserveModelAttempt("gemini-2.0-flash", "success")
	m.ObserveRun("SUCCESS", 3*time.Second)
	m.ObserveHTTPRequest("/analyze", "200")

	out := scrape(t, m)
	for _, want := range []string{
		`test_model_attempts_total{model="gemini-2.5-flash",outcome="rate_limited"} 2`,
		`test_model_attempts_total{model="gemini-2.0-flash",outcome="success"} 1`,
		`test_analysis_runs_total{status="SUCCESS"} 1`,
		`test_analysis_duration_seconds_count 1`,
		`test_http_requests_total{code="200",route="/analyze"} 1`,
		`go_goroutines`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestNew_IndependentRegistries(t *testing.T) {
	a := New("test")
	b := New("test")
	a.ObserveRun("FAILED", time.Second)

	if strings.Contains(scrape(t, b), `test_analysis_runs_total{status="FAILED"}`) {
		t.Error("metrics leaked across registries")
	}
}
