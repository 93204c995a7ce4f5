package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCounterGaugeHistogram(t *testing.T) {
	c := NewCollector()

	ctr := c.Counter("test_total", "test counter", "")
	ctr.Inc()
	ctr.Add(2)
	if ctr.Value() != 3 {
		t.Fatalf("counter = %d, want 3", ctr.Value())
	}
	if c.Counter("test_total", "test counter", "") != ctr {
		t.Fatal("counter not deduplicated by name")
	}

	g := c.Gauge("test_gauge", "test gauge", "")
	g.Set(5)
	g.Inc()
	g.Dec()
	if g.Value() != 5 {
		t.Fatalf("gauge = %d, want 5", g.Value())
	}

	h := c.Histogram("test_seconds", "test histogram", "", []float64{1, 10})
	h.Observe(0.5)
	h.Observe(5)
	h.Observe(50)
	if h.count != 3 {
		t.Fatalf("histogram count = %d, want 3", h.count)
	}
	if h.buckets[0].count != 1 || h.buckets[1].count != 2 {
		t.Fatalf("bucket counts = %d, %d", h.buckets[0].count, h.buckets[1].count)
	}
}

func TestHandler_RendersExpositionFormat(t *testing.T) {
	c := NewCollector()
	c.Counter("demo_total", "demo counter", "").Add(7)
	c.Gauge("demo_gauge", "demo gauge", "").Set(2)
	c.Histogram("demo_seconds", "demo histogram", "", []float64{1}).Observe(0.2)

	rec := httptest.NewRecorder()
	c.Handler()(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	for _, want := range []string{
		"siriuschat_uptime_seconds",
		"# TYPE demo_total counter",
		"demo_total 7",
		"# TYPE demo_gauge gauge",
		"demo_gauge 2",
		"# TYPE demo_seconds histogram",
		`demo_seconds_bucket{le="1"} 1`,
		"demo_seconds_count 1",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("exposition output lacks %q:\n%s", want, body)
		}
	}
}
