// Package notifier runs one notification cycle: load the notified ledger, fetch recent
// notable observations, drop excluded species and sightings notified before, e-mail the
// rest, then merge, evict and persist the ledger.
package notifier

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/tphakala/birdnotifier/internal/errors"
	"github.com/tphakala/birdnotifier/internal/ledger"
	"github.com/tphakala/birdnotifier/internal/logger"
	"github.com/tphakala/birdnotifier/internal/observability/metrics"
	"github.com/tphakala/birdnotifier/internal/observation"
)

// Source returns recent notable observations for a region.
type Source interface {
	RecentNotable(ctx context.Context, region string, daysBack int) ([]observation.Observation, error)
}

// Notifier delivers a batch of new observations.
type Notifier interface {
	Notify(ctx context.Context, obs []observation.Observation) error
}

// Config holds the per-run settings of the pipeline.
type Config struct {
	Region     string
	DaysBack   int
	Exclude    []string // common names, matched exactly
	LedgerPath string   // empty disables persistence
}

// Result summarizes a run. Fields after the failing stage stay zero.
type Result struct {
	RunID           string
	Stage           Stage // Done or Failed
	LedgerState     ledger.State
	Fetched         int
	ExcludedSpecies int
	AlreadyNotified int
	Notified        int
	Evicted         int
	LedgerEntries   int
	Duration        time.Duration
}

// Pipeline wires a source, a notifier and the ledger file.
type Pipeline struct {
	config   Config
	fs       afero.Fs
	source   Source
	notifier Notifier
	recorder metrics.RunRecorder
	log      logger.Logger
	now      func() time.Time
	runID    func() string
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithClock overrides the clock used for eviction and timing.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// WithRecorder sets the run metrics recorder.
func WithRecorder(r metrics.RunRecorder) Option {
	return func(p *Pipeline) { p.recorder = r }
}

// WithRunID overrides run id generation.
func WithRunID(gen func() string) Option {
	return func(p *Pipeline) { p.runID = gen }
}

// New creates a pipeline. source and notifier are required.
func New(config Config, fsys afero.Fs, source Source, notifier Notifier, log logger.Logger, opts ...Option) (*Pipeline, error) {
	switch {
	case config.Region == "":
		return nil, errors.ValidationError("region is required")
	case config.DaysBack <= 0:
		return nil, errors.ValidationError(fmt.Sprintf("days back must be positive, got %d", config.DaysBack))
	case source == nil || notifier == nil:
		return nil, errors.ValidationError("observation source and notifier are required")
	}
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	if log == nil {
		log = logger.Global()
	}

	p := &Pipeline{
		config:   config,
		fs:       fsys,
		source:   source,
		notifier: notifier,
		recorder: metrics.NoOpRecorder{},
		log:      log.Module("notifier"),
		now:      time.Now,
		runID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// run tracks the state machine of a single Run call
type run struct {
	stage  Stage
	log    logger.Logger
	result Result
}

func (r *run) advance(to Stage) {
	if !canAdvance(r.stage, to) {
		panic(fmt.Sprintf("notifier: illegal transition %s -> %s", r.stage, to))
	}
	r.log.Debug("Stage reached", logger.String("from", string(r.stage)), logger.String("to", string(to)))
	r.stage = to
}

// Run executes one cycle. A failure aborts the run immediately and is returned as a
// *StageError naming the state that was not reached. A notification that was sent is
// never rolled back, so a persist failure after sending means duplicates next run.
func (p *Pipeline) Run(ctx context.Context) (Result, error) {
	start := p.now()
	runID := p.runID()
	ctx = logger.WithTraceID(ctx, runID)

	r := &run{
		stage:  StageStart,
		log:    p.log.WithContext(ctx),
		result: Result{RunID: runID},
	}
	r.log.Info("Run started",
		logger.String("region", p.config.Region),
		logger.Int("days_back", p.config.DaysBack))

	if err := p.execute(ctx, r, start); err != nil {
		failed := r.stage
		r.stage = StageFailed
		r.result.Stage = StageFailed
		r.result.Duration = p.now().Sub(start)
		p.recorder.RecordRun(r.result.Duration, string(err.Stage), err.Err)
		r.log.Debug("Run failed", logger.String("after", string(failed)), logger.String("stage", string(err.Stage)))
		return r.result, err
	}

	r.advance(StageDone)
	r.result.Stage = StageDone
	r.result.Duration = p.now().Sub(start)
	p.recorder.RecordRun(r.result.Duration, "", nil)

	r.log.Info("Run completed",
		logger.Int("fetched", r.result.Fetched),
		logger.Int("notified", r.result.Notified),
		logger.Int("evicted", r.result.Evicted),
		logger.Int("ledger_entries", r.result.LedgerEntries),
		logger.Duration("elapsed", r.result.Duration))
	return r.result, nil
}

func (p *Pipeline) execute(ctx context.Context, r *run, now time.Time) *StageError {
	book, err := ledger.Load(p.fs, p.config.LedgerPath)
	if err != nil {
		return &StageError{Stage: StageLedgerLoaded, Err: err}
	}
	r.result.LedgerState = book.State()
	r.advance(StageLedgerLoaded)
	r.log.Debug("Ledger loaded",
		logger.String("state", book.State().String()),
		logger.Int("entries", book.Len()))

	fetched, err := p.source.RecentNotable(ctx, p.config.Region, p.config.DaysBack)
	if err != nil {
		return &StageError{Stage: StageObservationsFetched, Err: err}
	}
	r.result.Fetched = len(fetched)
	p.recorder.RecordFetched(len(fetched))
	r.advance(StageObservationsFetched)

	kept := observation.ExcludeBySpecies(fetched, p.config.Exclude)
	fresh := observation.ExcludeAlreadyNotified(kept, book)
	r.result.ExcludedSpecies = len(fetched) - len(kept)
	r.result.AlreadyNotified = len(kept) - len(fresh)
	p.recorder.RecordFiltered(r.result.ExcludedSpecies, r.result.AlreadyNotified)
	r.advance(StageFiltered)
	r.log.Debug("Observations filtered",
		logger.Int("excluded_species", r.result.ExcludedSpecies),
		logger.Int("already_notified", r.result.AlreadyNotified),
		logger.Int("new", len(fresh)))

	if len(fresh) == 0 {
		p.recorder.RecordNotified(0)
		r.advance(StageSkippedEmpty)
		r.log.Info("No new observations, nothing to send")
	} else {
		if err := p.notifier.Notify(ctx, fresh); err != nil {
			return &StageError{Stage: StageNotified, Err: err}
		}
		r.result.Notified = len(fresh)
		p.recorder.RecordNotified(len(fresh))
		r.advance(StageNotified)
	}

	book.Merge(fresh)
	evicted, err := book.Evict(now, p.config.DaysBack)
	if err != nil {
		return &StageError{Stage: StageLedgerUpdated, Err: err}
	}
	r.result.Evicted = evicted
	r.result.LedgerEntries = book.Len()
	p.recorder.RecordLedger(book.Len(), evicted)
	r.advance(StageLedgerUpdated)

	if err := book.Persist(); err != nil {
		return &StageError{Stage: StagePersisted, Err: err}
	}
	r.result.LedgerState = book.State()
	r.advance(StagePersisted)
	return nil
}
