// Package metrics holds the Prometheus collectors for the scan pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Drop stages
const (
	StageResolve  = "resolve"
	StageFetch    = "fetch"
	StageClassify = "classify"
)

// Metrics groups the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	Scans           *prometheus.CounterVec
	Drops           *prometheus.CounterVec
	Classifications *prometheus.CounterVec
	ScanDuration    prometheus.Histogram
}

// New creates the collectors and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Scans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signaldeck_scans_total",
			Help: "Scan cycles by outcome.",
		}, []string{"outcome"}),
		Drops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signaldeck_instrument_drops_total",
			Help: "Instruments dropped from a scan, by stage and reason.",
		}, []string{"stage", "reason"}),
		Classifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signaldeck_classifications_total",
			Help: "Classifier outcomes: signal, no_trade, below_floor, error.",
		}, []string{"outcome"}),
		ScanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signaldeck_scan_duration_seconds",
			Help:    "Wall time of completed scan cycles.",
			Buckets: []float64{1, 5, 10, 20, 30, 60, 120, 300},
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Scans, m.Drops, m.Classifications, m.ScanDuration)
	}
	return m
}

// ScanFinished records a scan outcome and, for successful scans, its duration
func (m *Metrics) ScanFinished(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.Scans.WithLabelValues(outcome).Inc()
	if outcome == "done" {
		m.ScanDuration.Observe(seconds)
	}
}

// Dropped records an instrument leaving the pipeline
func (m *Metrics) Dropped(stage, reason string) {
	if m == nil {
		return
	}
	m.Drops.WithLabelValues(stage, reason).Inc()
}

// Classified records one classifier outcome
func (m *Metrics) Classified(outcome string) {
	if m == nil {
		return
	}
	m.Classifications.WithLabelValues(outcome).Inc()
}
