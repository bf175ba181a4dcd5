// Package metrics holds the prometheus instruments for a capture session.
// A nil *Collector is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector groups the capture instruments on one registry
type Collector struct {
	reg *prometheus.Registry

	Attempts       *prometheus.CounterVec
	Cycles         *prometheus.CounterVec
	Orphans        prometheus.Counter
	CleanupErrors  prometheus.Counter
	SNR            *prometheus.GaugeVec
	CaptureSeconds *prometheus.HistogramVec
	LastIndex      prometheus.Gauge
}

// New creates a collector with its own registry, which also carries the Go
// runtime and process collectors
func New() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)
	return &Collector{
		reg: reg,
		Attempts: f.NewCounterVec(prometheus.CounterOpts{
			Subsystem: "hsicap",
			Name:      "capture_attempts_total",
			Help:      "Capture attempts per camera, by outcome (ok, device_error, low_snr, write_error).",
		}, []string{"camera", "outcome"}),
		Cycles: f.NewCounterVec(prometheus.CounterOpts{
			Subsystem: "hsicap",
			Name:      "cycles_total",
			Help:      "Capture cycles, by result (paired, failed, skipped).",
		}, []string{"result"}),
		Orphans: f.NewCounter(prometheus.CounterOpts{
			Subsystem: "hsicap",
			Name:      "orphans_removed_total",
			Help:      "Files deleted because the partner camera failed.",
		}),
		CleanupErrors: f.NewCounter(prometheus.CounterOpts{
			Subsystem: "hsicap",
			Name:      "cleanup_errors_total",
			Help:      "Orphan deletions that failed.",
		}),
		SNR: f.NewGaugeVec(prometheus.GaugeOpts{
			Subsystem: "hsicap",
			Name:      "last_snr",
			Help:      "SNR of the last accepted frame per camera.",
		}, []string{"camera"}),
		CaptureSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Subsystem: "hsicap",
			Name:      "capture_duration_seconds",
			Help:      "Time from first attempt to a persisted frame.",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"camera"}),
		LastIndex: f.NewGauge(prometheus.GaugeOpts{
			Subsystem: "hsicap",
			Name:      "last_index",
			Help:      "Index of the last capture cycle.",
		}),
	}
}

// Registry exposes the underlying registry
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.reg
}

// Handler serves the registry in the prometheus exposition format
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{})
}

// Attempt counts one capture attempt
func (c *Collector) Attempt(camera, outcome string) {
	if c == nil {
		return
	}
	c.Attempts.WithLabelValues(camera, outcome).Inc()
}

// Captured records an accepted frame
func (c *Collector) Captured(camera string, snr float64, took time.Duration) {
	if c == nil {
		return
	}
	c.SNR.WithLabelValues(camera).Set(snr)
	c.CaptureSeconds.WithLabelValues(camera).Observe(took.Seconds())
}

// Cycle counts a finished cycle
func (c *Collector) Cycle(index int, result string) {
	if c == nil {
		return
	}
	c.Cycles.WithLabelValues(result).Inc()
	c.LastIndex.Set(float64(index))
}

// Orphan counts an orphan deletion, failed or not
func (c *Collector) Orphan(err error) {
	if c == nil {
		return
	}
	if err != nil {
		c.CleanupErrors.Inc()
		return
	}
	c.Orphans.Inc()
}
