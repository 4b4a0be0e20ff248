// Package metrics exposes run statistics as Prometheus metrics.
//
// A weaver run is a short-lived process, so metrics are collected on a
// private registry and written to a node-exporter textfile at the end of the
// run instead of being scraped.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/solatis/weaver/internal/types"
	"github.com/solatis/weaver/internal/weave"
)

const metricsNamespace = "weaver"

// RunMetrics implements weave.Observer.
type RunMetrics struct {
	registry *prometheus.Registry

	ClassesTotal     *prometheus.CounterVec
	EditsTotal       *prometheus.CounterVec
	ClassSeconds     prometheus.Histogram
	StatesTotal      *prometheus.CounterVec
	LastRunTimestamp prometheus.Gauge
	LastRunSuccess   prometheus.Gauge
}

var _ weave.Observer = (*RunMetrics)(nil)

// New registers the run metrics on a fresh registry.
func New() *RunMetrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &RunMetrics{
		registry: reg,
		ClassesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "classes_total",
			Help:      "Classes that received edits, by outcome (written or skipped)",
		}, []string{"state"}),
		EditsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "edits_total",
			Help:      "Edits handed to the bytecode editor, by kind",
		}, []string{"kind"}),
		ClassSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "class_duration_seconds",
			Help:      "Time to resolve, weave and write one class",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
		StatesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "run_state_transitions_total",
			Help:      "Run state machine transitions, by target state",
		}, []string{"state"}),
		LastRunTimestamp: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished",
		}),
		LastRunSuccess: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "last_run_success",
			Help:      "1 if the last run finished, 0 if it aborted",
		}),
	}
}

// StateChanged counts the transition and records the outcome of finished
// runs.
func (m *RunMetrics) StateChanged(_ types.RunID, s weave.State) {
	m.StatesTotal.WithLabelValues(string(s)).Inc()
	switch s {
	case weave.StateDone:
		m.LastRunSuccess.Set(1)
		m.LastRunTimestamp.SetToCurrentTime()
	case weave.StateAborted:
		m.LastRunSuccess.Set(0)
		m.LastRunTimestamp.SetToCurrentTime()
	}
}

// ClassDone counts a class and its edits.
func (m *RunMetrics) ClassDone(_ types.RunID, r weave.ClassResult, elapsed time.Duration) {
	m.ClassSeconds.Observe(elapsed.Seconds())
	if len(r.Edits) == 0 {
		return
	}
	m.ClassesTotal.WithLabelValues(string(r.State)).Inc()
	for _, e := range r.Edits {
		m.EditsTotal.WithLabelValues(string(e.Kind)).Inc()
	}
}

// Registry returns the registry holding the run metrics.
func (m *RunMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile writes every metric to path in the text exposition format.
func (m *RunMetrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
