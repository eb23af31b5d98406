// Package metrics provides custom Prometheus metrics for birdnotifier runs.
package metrics

import "time"

// RunRecorder defines the minimal interface the notification pipeline records through.
// Components depend on this abstraction rather than on concrete collectors.
type RunRecorder interface {
	// RecordFetched records how many unique observations the source returned.
	RecordFetched(count int)

	// RecordFiltered records how many observations each filter removed.
	RecordFiltered(excludedSpecies, alreadyNotified int)

	// RecordNotified records the size of the batch handed to the notifier, zero when skipped.
	RecordNotified(count int)

	// RecordLedger records the ledger size after update and the entries evicted.
	RecordLedger(entries, evicted int)

	// RecordRun records the outcome of a run. stage is empty on success.
	RecordRun(duration time.Duration, stage string, err error)
}

// NoOpRecorder discards everything
type NoOpRecorder struct{}

func (NoOpRecorder) RecordFetched(int) {}
func (NoOpRecorder) RecordFiltered(int, int) {}
func (NoOpRecorder) RecordNotified(int) {}
func (NoOpRecorder) RecordLedger(int, int) {}
func (NoOpRecorder) RecordRun(time.Duration, string, error) {}

var _ RunRecorder = NoOpRecorder{}
var _ RunRecorder = (*RunMetrics)(nil)
