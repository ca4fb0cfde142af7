// Package metrics exposes Prometheus collectors for scan activity.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gpsmap"

// Metrics groups the collectors on a private registry. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	Registry     *prometheus.Registry
	Scans        *prometheus.CounterVec
	CaptureFiles prometheus.Counter
	Records      prometheus.Counter
	Skipped      *prometheus.CounterVec
	Credentials  prometheus.Gauge
	ScanDuration prometheus.Histogram
}

// New creates and registers all collectors, plus the Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		Scans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scans_total",
			Help:      "Directory scans by mode.",
		}, []string{"mode"}),
		CaptureFiles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_files_total",
			Help:      "Capture files seen across scans.",
		}),
		Records: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_total",
			Help:      "Access point records produced across scans.",
		}),
		Skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "skipped_files_total",
			Help:      "Position files skipped, by error code.",
		}, []string{"code"}),
		Credentials: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "credentials",
			Help:      "Entries in the current credential index.",
		}),
		ScanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scan_duration_seconds",
			Help:      "Wall time of directory scans.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(
		m.Scans, m.CaptureFiles, m.Records, m.Skipped, m.Credentials, m.ScanDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveScan records the outcome of one scan.
func (m *Metrics) ObserveScan(incremental bool, captures, records int, took time.Duration) {
	if m == nil {
		return
	}
	mode := "full"
	if incremental {
		mode = "incremental"
	}
	m.Scans.WithLabelValues(mode).Inc()
	m.CaptureFiles.Add(float64(captures))
	m.Records.Add(float64(records))
	m.ScanDuration.Observe(took.Seconds())
}

// ObserveSkip records one skipped position file.
func (m *Metrics) ObserveSkip(code string) {
	if m == nil {
		return
	}
	m.Skipped.WithLabelValues(code).Inc()
}

// SetCredentials records the size of the credential index.
func (m *Metrics) SetCredentials(n int) {
	if m == nil {
		return
	}
	m.Credentials.Set(float64(n))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
