// CLAUDE:SUMMARY Prometheus counters for one pipeline run, flushed to a node_exporter textfile at the end of each run.
// Package metrics counts pipeline activity with Prometheus collectors on a
// private registry and writes them to a textfile for node_exporter.
//
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "babelfeed"

// Metrics holds the pipeline collectors.
type Metrics struct {
	reg *prometheus.Registry

	fetched      *prometheus.CounterVec
	captured     *prometheus.CounterVec
	sourceErrors *prometheus.CounterVec
	formatted    *prometheus.CounterVec
	translations *prometheus.CounterVec
	recycles     prometheus.Counter
	published    *prometheus.CounterVec
	archived     *prometheus.CounterVec
	stageSeconds *prometheus.GaugeVec
	lastRun      prometheus.Gauge
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		fetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "items_fetched_total",
			Help: "Items decoded from source payloads",
		}, []string{"source"}),
		captured: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "raw_captures_total",
			Help: "Raw captures written",
		}, []string{"source"}),
		sourceErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "source_errors_total",
			Help: "Source URLs that failed to fetch or decode",
		}, []string{"source"}),
		formatted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "formatted_items_total",
			Help: "Formatted items written",
		}, []string{"site"}),
		translations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "translations_total",
			Help: "Translated field/language pairs by resulting state",
		}, []string{"state"}),
		recycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "session_recycles_total",
			Help: "Translation session recycles",
		}),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "published_items_total",
			Help: "Items merged into the live store",
		}, []string{"site"}),
		archived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "archived_items_total",
			Help: "Items moved from the live store to the archive",
		}, []string{"site"}),
		stageSeconds: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "stage_duration_seconds",
			Help: "Duration of the last run of each stage",
		}, []string{"stage"}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "last_run_timestamp_seconds",
			Help: "Unix time of the last finished run",
		}),
	}
	m.reg.MustRegister(m.fetched, m.captured, m.sourceErrors, m.formatted,
		m.translations, m.recycles, m.published, m.archived, m.stageSeconds, m.lastRun)
	return m
}

// Registry exposes the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

func (m *Metrics) Fetched(source string, n int) {
	if m != nil {
		m.fetched.WithLabelValues(source).Add(float64(n))
	}
}

func (m *Metrics) Captured(source string) {
	if m != nil {
		m.captured.WithLabelValues(source).Inc()
	}
}

func (m *Metrics) SourceError(source string) {
	if m != nil {
		m.sourceErrors.WithLabelValues(source).Inc()
	}
}

func (m *Metrics) Formatted(site string) {
	if m != nil {
		m.formatted.WithLabelValues(site).Inc()
	}
}

// Translations adds count pairs that ended in state.
func (m *Metrics) Translations(state string, count int) {
	if m != nil && count > 0 {
		m.translations.WithLabelValues(state).Add(float64(count))
	}
}

// Recycles adds n session recycles.
func (m *Metrics) Recycles(n int) {
	if m != nil && n > 0 {
		m.recycles.Add(float64(n))
	}
}

func (m *Metrics) Published(site string, n int) {
	if m != nil {
		m.published.WithLabelValues(site).Add(float64(n))
	}
}

func (m *Metrics) Archived(site string, n int) {
	if m != nil {
		m.archived.WithLabelValues(site).Add(float64(n))
	}
}

// Stage records how long stage took.
func (m *Metrics) Stage(stage string, d time.Duration) {
	if m != nil {
		m.stageSeconds.WithLabelValues(stage).Set(d.Seconds())
	}
}

// RunFinished stamps the end of a run.
func (m *Metrics) RunFinished(at time.Time) {
	if m != nil {
		m.lastRun.Set(float64(at.Unix()))
	}
}

// WriteTextfile writes every collector in the text exposition format.
// An empty path is a no-op.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.reg); err != nil {
		return fmt.Errorf("metrics: write %s: %w", path, err)
	}
	return nil
}
