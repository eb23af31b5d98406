package notifier

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/birdnotifier/internal/errors"
	"github.com/tphakala/birdnotifier/internal/ledger"
	"github.com/tphakala/birdnotifier/internal/logger"
	"github.com/tphakala/birdnotifier/internal/observability/metrics"
	"github.com/tphakala/birdnotifier/internal/observation"
)

const ledgerPath = "/var/lib/birdnotifier/.previouslyNotified"

// fixedNow is the clock of every pipeline test, the eviction cutoff for two days back
// is 4/6/2024 12:00.
var fixedNow = time.Date(2024, 4, 10, 12, 0, 0, 0, time.Local)

func testLogger() logger.Logger {
	return logger.NewSlogLogger(io.Discard, logger.LogLevelError, time.UTC)
}

// fakeSource returns canned observations
type fakeSource struct {
	obs    []observation.Observation
	err    error
	calls  int
	region string
	days   int
}

func (s *fakeSource) RecentNotable(_ context.Context, region string, daysBack int) ([]observation.Observation, error) {
	s.calls++
	s.region, s.days = region, daysBack
	if s.err != nil {
		return nil, s.err
	}
	return s.obs, nil
}

// fakeNotifier records delivered batches
type fakeNotifier struct {
	batches [][]observation.Observation
	err     error
}

func (n *fakeNotifier) Notify(_ context.Context, obs []observation.Observation) error {
	if n.err != nil {
		return n.err
	}
	n.batches = append(n.batches, obs)
	return nil
}

func obs(t *testing.T, id, name, rendered string) observation.Observation {
	t.Helper()
	ts, err := observation.ParseTimestamp(rendered)
	require.NoError(t, err)
	return observation.Observation{ID: id, CommonName: name, ObservedAt: ts, ChecklistID: "S" + id}
}

func ids(batch []observation.Observation) []string {
	out := make([]string, 0, len(batch))
	for i := range batch {
		out = append(out, batch[i].ID)
	}
	return out
}

func newTestPipeline(t *testing.T, fs afero.Fs, cfg Config, src Source, n Notifier, opts ...Option) *Pipeline {
	t.Helper()
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	p, err := New(cfg, fs, src, n, testLogger(), opts...)
	require.NoError(t, err)
	return p
}

func defaultConfig() Config {
	return Config{Region: "US-NY", DaysBack: 2, LedgerPath: ledgerPath}
}

func readLedger(t *testing.T, fs afero.Fs) string {
	t.Helper()
	data, err := afero.ReadFile(fs, ledgerPath)
	require.NoError(t, err)
	return string(data)
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	src, n := &fakeSource{}, &fakeNotifier{}
	tests := []struct {
		name   string
		cfg    Config
		src    Source
		notify Notifier
	}{
		{"missing region", Config{DaysBack: 2}, src, n},
		{"zero days", Config{Region: "US-NY"}, src, n},
		{"negative days", Config{Region: "US-NY", DaysBack: -1}, src, n},
		{"missing source", defaultConfig(), nil, n},
		{"missing notifier", defaultConfig(), src, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := New(tt.cfg, afero.NewMemMapFs(), tt.src, tt.notify, testLogger())
			require.Error(t, err)
			assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
		})
	}
}

func TestRunFirstRun(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	src := &fakeSource{obs: []observation.Observation{
		obs(t, "OBS1", "Canada Goose", "4/9/2024 7:09"),
		obs(t, "OBS2", "Mallard", "4/8/2024"),
	}}
	n := &fakeNotifier{}
	p := newTestPipeline(t, fs, defaultConfig(), src, n, WithRunID(func() string { return "run-1" }))

	res, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "US-NY", src.region)
	assert.Equal(t, 2, src.days)
	require.Len(t, n.batches, 1)
	assert.Equal(t, []string{"OBS1", "OBS2"}, ids(n.batches[0]))

	assert.Equal(t, Result{
		RunID:         "run-1",
		Stage:         StageDone,
		LedgerState:   ledger.StateLoaded,
		Fetched:       2,
		Notified:      2,
		LedgerEntries: 2,
	}, res)
	assert.Equal(t, "OBS1,4/9/2024 7:09\nOBS2,4/8/2024\n", readLedger(t, fs))
}

func TestRunFiltersExcludedAndNotified(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, ledgerPath, []byte("OBS2,4/8/2024\nOLD,4/1/2024\n"), 0o644))

	src := &fakeSource{obs: []observation.Observation{
		obs(t, "OBS1", "Canada Goose", "4/9/2024 7:09"),
		obs(t, "OBS2", "Mallard", "4/8/2024"),
		obs(t, "OBS3", "Snowy Owl", "4/9/2024 16:45"),
		obs(t, "OBS4", "canada goose", "4/9/2024"),
	}}
	n := &fakeNotifier{}
	cfg := defaultConfig()
	cfg.Exclude = []string{"Canada Goose"}

	res, err := newTestPipeline(t, fs, cfg, src, n).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, n.batches, 1)
	assert.Equal(t, []string{"OBS3", "OBS4"}, ids(n.batches[0]), "exclusion is case sensitive")
	assert.Equal(t, 1, res.ExcludedSpecies)
	assert.Equal(t, 1, res.AlreadyNotified)
	assert.Equal(t, 1, res.Evicted)
	assert.Equal(t, "OBS2,4/8/2024\nOBS3,4/9/2024 16:45\nOBS4,4/9/2024\n", readLedger(t, fs))
}

func TestRunSkipsEmptyBatch(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, ledgerPath, []byte("OBS1,4/9/2024\nOLD,4/6/2024 11:59\n"), 0o644))

	src := &fakeSource{obs: []observation.Observation{obs(t, "OBS1", "Snowy Owl", "4/9/2024")}}
	n := &fakeNotifier{}

	res, err := newTestPipeline(t, fs, defaultConfig(), src, n).Run(context.Background())
	require.NoError(t, err)

	assert.Empty(t, n.batches)
	assert.Equal(t, StageDone, res.Stage)
	assert.Equal(t, 0, res.Notified)
	assert.Equal(t, 1, res.Evicted)
	assert.Equal(t, "OBS1,4/9/2024\n", readLedger(t, fs))
}

func TestRunIsIdempotent(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	src := &fakeSource{obs: []observation.Observation{
		obs(t, "OBS1", "Canada Goose", "4/9/2024 7:09"),
		obs(t, "OBS2", "Mallard", "4/8/2024"),
	}}
	n := &fakeNotifier{}
	p := newTestPipeline(t, fs, defaultConfig(), src, n)

	_, err := p.Run(context.Background())
	require.NoError(t, err)
	first := readLedger(t, fs)

	res, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Len(t, n.batches, 1, "second run sends nothing")
	assert.Equal(t, 2, res.AlreadyNotified)
	assert.Equal(t, first, readLedger(t, fs))
}

func TestRunDisabledLedger(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	src := &fakeSource{obs: []observation.Observation{obs(t, "OBS1", "Snowy Owl", "4/9/2024")}}
	n := &fakeNotifier{}
	cfg := defaultConfig()
	cfg.LedgerPath = ""
	p := newTestPipeline(t, fs, cfg, src, n)

	for range 2 {
		res, err := p.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, ledger.StateDisabled, res.LedgerState)
	}
	assert.Len(t, n.batches, 2, "without a ledger every run notifies")

	files, err := afero.ReadDir(fs, "/")
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestRunFailures(t *testing.T) {
	t.Parallel()

	fetchErr := errors.Newf("eBird API error (status 503)").Category(errors.CategoryFetch).Build()
	sendErr := errors.Newf("smtp: connection refused").Category(errors.CategorySend).Build()

	tests := []struct {
		name         string
		ledger       string
		readOnly     bool
		sourceErr    error
		notifyErr    error
		wantStage    Stage
		wantCategory errors.ErrorCategory
		wantFetch    bool
		wantSent     bool
	}{
		{
			name:         "malformed ledger",
			ledger:       "OBS9;4/9/2024\n",
			wantStage:    StageLedgerLoaded,
			wantCategory: errors.CategoryLedgerLoad,
		},
		{
			name:         "fetch failure",
			ledger:       "OBS9,4/9/2024\n",
			sourceErr:    fetchErr,
			wantStage:    StageObservationsFetched,
			wantCategory: errors.CategoryFetch,
			wantFetch:    true,
		},
		{
			name:         "send failure",
			ledger:       "OBS9,4/9/2024\n",
			notifyErr:    sendErr,
			wantStage:    StageNotified,
			wantCategory: errors.CategorySend,
			wantFetch:    true,
		},
		{
			name:         "persist failure after send",
			ledger:       "OBS9,4/9/2024\n",
			readOnly:     true,
			wantStage:    StagePersisted,
			wantCategory: errors.CategoryLedgerSave,
			wantFetch:    true,
			wantSent:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			base := afero.NewMemMapFs()
			require.NoError(t, afero.WriteFile(base, ledgerPath, []byte(tt.ledger), 0o644))
			fs := base
			if tt.readOnly {
				fs = afero.NewReadOnlyFs(base)
			}

			src := &fakeSource{
				obs: []observation.Observation{obs(t, "OBS1", "Snowy Owl", "4/9/2024")},
				err: tt.sourceErr,
			}
			n := &fakeNotifier{err: tt.notifyErr}

			res, err := newTestPipeline(t, fs, defaultConfig(), src, n).Run(context.Background())
			require.Error(t, err)

			var stageErr *StageError
			require.ErrorAs(t, err, &stageErr)
			assert.Equal(t, tt.wantStage, stageErr.Stage)
			assert.True(t, errors.IsCategory(err, tt.wantCategory))
			assert.Contains(t, err.Error(), string(tt.wantStage)+": ")
			assert.Equal(t, StageFailed, res.Stage)

			assert.Equal(t, tt.wantFetch, src.calls == 1)
			assert.Equal(t, tt.wantSent, len(n.batches) == 1)
			assert.Equal(t, tt.ledger, readLedger(t, base), "ledger file is untouched")
		})
	}
}

func TestRunRecordsMetrics(t *testing.T) {
	t.Parallel()

	run, err := metrics.NewRunMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, ledgerPath, []byte("OBS2,4/8/2024\nOLD,4/1/2024\n"), 0o644))
	src := &fakeSource{obs: []observation.Observation{
		obs(t, "OBS1", "Canada Goose", "4/9/2024 7:09"),
		obs(t, "OBS2", "Mallard", "4/8/2024"),
		obs(t, "OBS3", "Snowy Owl", "4/9/2024"),
	}}
	cfg := defaultConfig()
	cfg.Exclude = []string{"Canada Goose"}

	p := newTestPipeline(t, fs, cfg, src, &fakeNotifier{}, WithRecorder(run))
	_, err = p.Run(context.Background())
	require.NoError(t, err)

	assert.InDelta(t, 3, testutil.ToFloat64(run.ObservationsFetched), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(run.ObservationsExcluded.WithLabelValues("species")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(run.ObservationsExcluded.WithLabelValues("notified")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(run.ObservationsNotified), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(run.LedgerEntries), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(run.LedgerEvicted), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(run.RunSuccess), 0)

	src.err = fmt.Errorf("dial tcp: connection refused")
	_, err = p.Run(context.Background())
	require.Error(t, err)
	assert.InDelta(t, 0, testutil.ToFloat64(run.RunSuccess), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(run.RunFailures.WithLabelValues("ObservationsFetched", "generic")), 0)
}

func TestCanAdvance(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from, to Stage
		want     bool
	}{
		{StageStart, StageLedgerLoaded, true},
		{StageStart, StageObservationsFetched, false},
		{StageFiltered, StageNotified, true},
		{StageFiltered, StageSkippedEmpty, true},
		{StageSkippedEmpty, StageNotified, false},
		{StageSkippedEmpty, StageLedgerUpdated, true},
		{StagePersisted, StageDone, true},
		{StageLedgerUpdated, StageFailed, true},
		{StageDone, StageFailed, false},
		{StageFailed, StageStart, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, canAdvance(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestStageError(t *testing.T) {
	t.Parallel()

	inner := fmt.Errorf("boom")
	err := &StageError{Stage: StagePersisted, Err: inner}
	assert.Equal(t, "Persisted: boom", err.Error())
	assert.ErrorIs(t, err, inner)
}
