package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCounterAndGauge(t *testing.T) {
	c := NewMetricsCollector()

	ctr := c.Counter("test_total", "help")
	ctr.Inc()
	ctr.Add(2)
	if got := ctr.Value(); got != 3 {
		t.Errorf("counter = %d, want 3", got)
	}
	if again := c.Counter("test_total", "help"); again != ctr {
		t.Error("same name returned a different counter")
	}

	g := c.Gauge("test_gauge", "help")
	g.Set(10)
	g.Inc()
	g.Dec()
	if got := g.Value(); got != 10 {
		t.Errorf("gauge = %d, want 10", got)
	}
}

func TestHandlerExposition(t *testing.T) {
	c := NewMetricsCollector()
	c.Counter("demo_total", "A demo counter").Add(5)
	c.Gauge("demo_lag_ms", "A demo gauge").Set(42)

	rec := httptest.NewRecorder()
	c.Handler()(rec, httptest.NewRequest("GET", "/metrics", nil))

	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("content type = %q", ct)
	}
	body := rec.Body.String()
	for _, want := range []string{
		"# TYPE demo_total counter",
		"demo_total 5",
		"# TYPE demo_lag_ms gauge",
		"demo_lag_ms 42",
		"warmachine_uptime_seconds",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("exposition missing %q:\n%s", want, body)
		}
	}
}
