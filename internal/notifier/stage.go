package notifier

import (
	"fmt"
	"slices"
)

// Stage is a state of the run state machine.
type Stage string

// Run states in order. Notified and SkippedEmpty are alternatives.
const (
	StageStart               Stage = "Start"
	StageLedgerLoaded        Stage = "LedgerLoaded"
	StageObservationsFetched Stage = "ObservationsFetched"
	StageFiltered            Stage = "Filtered"
	StageNotified            Stage = "Notified"
	StageSkippedEmpty        Stage = "SkippedEmpty"
	StageLedgerUpdated       Stage = "LedgerUpdated"
	StagePersisted           Stage = "Persisted"
	StageDone                Stage = "Done"
	StageFailed              Stage = "Failed"
)

// next lists the legal successors of each state. Every non-terminal state may also fail.
var next = map[Stage][]Stage{
	StageStart:               {StageLedgerLoaded},
	StageLedgerLoaded:        {StageObservationsFetched},
	StageObservationsFetched: {StageFiltered},
	StageFiltered:            {StageNotified, StageSkippedEmpty},
	StageNotified:            {StageLedgerUpdated},
	StageSkippedEmpty:        {StageLedgerUpdated},
	StageLedgerUpdated:       {StagePersisted},
	StagePersisted:           {StageDone},
}

// Terminal reports whether no transition leaves s.
func (s Stage) Terminal() bool {
	return s == StageDone || s == StageFailed
}

// canAdvance reports whether from -> to is a legal transition
func canAdvance(from, to Stage) bool {
	if to == StageFailed {
		return !from.Terminal()
	}
	return slices.Contains(next[from], to)
}

// StageError reports the stage a run was attempting when it failed.
type StageError struct {
	Stage Stage // the state that could not be reached
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
