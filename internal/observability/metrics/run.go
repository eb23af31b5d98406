package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tphakala/birdnotifier/internal/errors"
)

const namespace = "birdnotifier"

// RunMetrics contains the Prometheus metrics describing one notification run.
// Runs are short lived batch jobs, so most values are gauges describing the last run.
type RunMetrics struct {
	ObservationsFetched  prometheus.Gauge
	ObservationsExcluded *prometheus.GaugeVec // by filter: species, notified
	ObservationsNotified prometheus.Gauge
	LedgerEntries        prometheus.Gauge
	LedgerEvicted        prometheus.Gauge

	RunDuration          prometheus.Gauge
	RunSuccess           prometheus.Gauge
	LastRunTimestamp     prometheus.Gauge
	LastSuccessTimestamp prometheus.Gauge
	RunFailures          *prometheus.CounterVec // by stage, error_category

	now func() time.Time
}

// NewRunMetrics creates the run metrics and registers them with registry.
func NewRunMetrics(registry *prometheus.Registry) (*RunMetrics, error) {
	m := &RunMetrics{now: time.Now}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register run metrics: %w", err)
	}
	return m, nil
}

func (m *RunMetrics) initMetrics() {
	m.ObservationsFetched = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "observations_fetched",
		Help:      "Unique notable observations returned by eBird in the last run",
	})
	m.ObservationsExcluded = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "observations_excluded",
		Help:      "Observations removed by each filter in the last run",
	}, []string{"filter"})
	m.ObservationsNotified = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "observations_notified",
		Help:      "Observations included in the notification sent by the last run",
	})
	m.LedgerEntries = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "ledger_entries",
		Help:      "Entries in the notified ledger after the last update",
	})
	m.LedgerEvicted = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "ledger_evicted",
		Help:      "Ledger entries evicted by age in the last run",
	})

	m.RunDuration = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "run_duration_seconds",
		Help:      "Wall time of the last run",
	})
	m.RunSuccess = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "run_success",
		Help:      "Whether the last run completed (1) or failed (0)",
	})
	m.LastRunTimestamp = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_run_timestamp_seconds",
		Help:      "Unix time the last run finished",
	})
	m.LastSuccessTimestamp = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_success_timestamp_seconds",
		Help:      "Unix time the last successful run finished",
	})
	m.RunFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "run_failures_total",
		Help:      "Failed runs by pipeline stage and error category",
	}, []string{"stage", "error_category"})
}

// RecordFetched implements RunRecorder.
func (m *RunMetrics) RecordFetched(count int) {
	m.ObservationsFetched.Set(float64(count))
}

// RecordFiltered implements RunRecorder.
func (m *RunMetrics) RecordFiltered(excludedSpecies, alreadyNotified int) {
	m.ObservationsExcluded.WithLabelValues("species").Set(float64(excludedSpecies))
	m.ObservationsExcluded.WithLabelValues("notified").Set(float64(alreadyNotified))
}

// RecordNotified implements RunRecorder.
func (m *RunMetrics) RecordNotified(count int) {
	m.ObservationsNotified.Set(float64(count))
}

// RecordLedger implements RunRecorder.
func (m *RunMetrics) RecordLedger(entries, evicted int) {
	m.LedgerEntries.Set(float64(entries))
	m.LedgerEvicted.Set(float64(evicted))
}

// RecordRun implements RunRecorder.
func (m *RunMetrics) RecordRun(duration time.Duration, stage string, err error) {
	finished := float64(m.now().Unix())
	m.RunDuration.Set(duration.Seconds())
	m.LastRunTimestamp.Set(finished)

	if err != nil {
		m.RunSuccess.Set(0)
		m.RunFailures.WithLabelValues(stage, string(errors.CategoryOf(err))).Inc()
		return
	}
	m.RunSuccess.Set(1)
	m.LastSuccessTimestamp.Set(finished)
}

// Describe implements prometheus.Collector.
func (m *RunMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.ObservationsFetched.Describe(ch)
	m.ObservationsExcluded.Describe(ch)
	m.ObservationsNotified.Describe(ch)
	m.LedgerEntries.Describe(ch)
	m.LedgerEvicted.Describe(ch)
	m.RunDuration.Describe(ch)
	m.RunSuccess.Describe(ch)
	m.LastRunTimestamp.Describe(ch)
	m.LastSuccessTimestamp.Describe(ch)
	m.RunFailures.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *RunMetrics) Collect(ch chan<- prometheus.Metric) {
	m.ObservationsFetched.Collect(ch)
	m.ObservationsExcluded.Collect(ch)
	m.ObservationsNotified.Collect(ch)
	m.LedgerEntries.Collect(ch)
	m.LedgerEvicted.Collect(ch)
	m.RunDuration.Collect(ch)
	m.RunSuccess.Collect(ch)
	m.LastRunTimestamp.Collect(ch)
	m.LastSuccessTimestamp.Collect(ch)
	m.RunFailures.Collect(ch)
}
