package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilCollector(t *testing.T) {
	var c *Collector
	c.Attempt("cubert", "ok")
	c.Captured("cubert", 3, time.Second)
	c.Cycle(1, "paired")
	c.Orphan(nil)
}

func TestCounts(t *testing.T) {
	c := New()
	c.Attempt("thorlabs", "device_error")
	c.Attempt("thorlabs", "device_error")
	c.Attempt("thorlabs", "ok")
	c.Orphan(nil)
	c.Orphan(errors.New("permission denied"))
	c.Cycle(7, "failed")

	if v := testutil.ToFloat64(c.Attempts.WithLabelValues("thorlabs", "device_error")); v != 2 {
		t.Errorf("expected 2 device errors, got %v", v)
	}
	if v := testutil.ToFloat64(c.Orphans); v != 1 {
		t.Errorf("expected 1 orphan, got %v", v)
	}
	if v := testutil.ToFloat64(c.CleanupErrors); v != 1 {
		t.Errorf("expected 1 cleanup error, got %v", v)
	}
	if v := testutil.ToFloat64(c.LastIndex); v != 7 {
		t.Errorf("expected last index 7, got %v", v)
	}
}

func TestHandler(t *testing.T) {
	c := New()
	c.Cycle(1, "paired")
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `hsicap_cycles_total{result="paired"} 1`) {
		t.Errorf("cycle counter missing from exposition:\n%s", body)
	}
}
