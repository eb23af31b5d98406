// Package ledger persists the IDs of observations already notified so that later runs
// skip them. The file holds one "id,timestamp" line per entry.
package ledger

import (
	"bufio"
	"bytes"
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/tphakala/birdnotifier/internal/errors"
	"github.com/tphakala/birdnotifier/internal/observation"
)

// State describes where the ledger contents came from
type State int

const (
	// StateDisabled means no path is configured, nothing is read or written
	StateDisabled State = iota
	// StateAbsent means the file does not exist yet, the first run
	StateAbsent
	// StateLoaded means the file was read, possibly with zero entries
	StateLoaded
)

func (s State) String() string {
	switch s {
	case StateDisabled:
		return "disabled"
	case StateAbsent:
		return "absent"
	case StateLoaded:
		return "loaded"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Entry is one notified observation
type Entry struct {
	ID        string
	Timestamp string // observation time in the M/D/YYYY[ H:MM] form
}

// Ledger is the ordered set of notified observations for one run
type Ledger struct {
	fs      afero.Fs
	path    string
	state   State
	entries []Entry
	index   map[string]struct{}
}

// Load reads the ledger at path. An empty path returns a disabled ledger, a missing
// file an empty one. Malformed lines fail with a CategoryLedgerLoad error naming the line.
// Blank lines are skipped and a repeated ID keeps its first entry.
func Load(fsys afero.Fs, path string) (*Ledger, error) {
	l := &Ledger{fs: fsys, path: path, index: make(map[string]struct{})}
	if path == "" {
		l.state = StateDisabled
		return l, nil
	}

	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			l.state = StateAbsent
			return l, nil
		}
		return nil, errors.New(fmt.Errorf("failed to read ledger: %w", err)).
			Component("ledger").
			Category(errors.CategoryLedgerLoad).
			FileContext(path, 0).
			Build()
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSuffix(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		entry, err := parseLine(line)
		if err != nil {
			return nil, errors.New(fmt.Errorf("malformed ledger line %d: %w", lineNo, err)).
				Component("ledger").
				Category(errors.CategoryLedgerLoad).
				FileContext(path, lineNo).
				Build()
		}

		if _, dup := l.index[entry.ID]; dup {
			continue
		}
		l.index[entry.ID] = struct{}{}
		l.entries = append(l.entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.New(fmt.Errorf("failed to scan ledger: %w", err)).
			Component("ledger").
			Category(errors.CategoryLedgerLoad).
			FileContext(path, lineNo).
			Build()
	}

	l.state = StateLoaded
	return l, nil
}

// parseLine splits "id,timestamp" and checks the timestamp decodes
func parseLine(line string) (Entry, error) {
	fields := strings.Split(line, ",")
	if len(fields) != 2 {
		return Entry{}, fmt.Errorf("expected 2 comma-separated fields, got %d", len(fields))
	}
	if fields[0] == "" {
		return Entry{}, fmt.Errorf("empty observation id")
	}
	if _, err := observation.ParseTimestamp(fields[1]); err != nil {
		return Entry{}, err
	}
	return Entry{ID: fields[0], Timestamp: fields[1]}, nil
}

// State reports where the ledger came from
func (l *Ledger) State() State { return l.state }

// Path returns the backing file, empty when disabled
func (l *Ledger) Path() string { return l.path }

// Len returns the number of entries
func (l *Ledger) Len() int { return len(l.entries) }

// Entries returns a copy of the entries in ledger order
func (l *Ledger) Entries() []Entry { return slices.Clone(l.entries) }

// Contains reports whether id was already notified
func (l *Ledger) Contains(id string) bool {
	_, ok := l.index[id]
	return ok
}

// Evict drops entries observed strictly before now minus twice daysBack days and
// returns how many were removed. An entry whose timestamp does not parse fails the
// eviction with a CategoryDecode error and leaves the ledger unchanged.
func (l *Ledger) Evict(now time.Time, daysBack int) (int, error) {
	// Entries hold wall clocks, compare against the wall clock of now
	cutoff := observation.WallClock(now.In(time.Local)).AddDate(0, 0, -2*daysBack)

	kept := make([]Entry, 0, len(l.entries))
	for _, e := range l.entries {
		ts, err := observation.ParseTimestamp(e.Timestamp)
		if err != nil {
			return 0, errors.New(fmt.Errorf("ledger entry %s: %w", e.ID, err)).
				Component("ledger").
				Category(errors.CategoryDecode).
				Context("observation_id", e.ID).
				Build()
		}
		if !ts.Before(cutoff) {
			kept = append(kept, e)
		}
	}

	removed := len(l.entries) - len(kept)
	l.entries = kept
	l.reindex()
	return removed, nil
}

// Merge appends one entry per observation. Callers pass observations not yet in the ledger.
func (l *Ledger) Merge(obs []observation.Observation) {
	for i := range obs {
		l.entries = append(l.entries, Entry{ID: obs[i].ID, Timestamp: obs[i].ObservedAt.Render()})
		l.index[obs[i].ID] = struct{}{}
	}
}

// Persist replaces the ledger file with the current entries, a no-op when disabled.
// The file is written to a temporary sibling first and renamed over the old one.
func (l *Ledger) Persist() error {
	if l.state == StateDisabled {
		return nil
	}

	var buf bytes.Buffer
	for _, e := range l.entries {
		buf.WriteString(e.ID)
		buf.WriteByte(',')
		buf.WriteString(e.Timestamp)
		buf.WriteByte('\n')
	}

	if err := writeFileAtomic(l.fs, l.path, buf.Bytes()); err != nil {
		return errors.New(fmt.Errorf("failed to save ledger: %w", err)).
			Component("ledger").
			Category(errors.CategoryLedgerSave).
			FileContext(l.path, 0).
			Context("entries", len(l.entries)).
			Build()
	}

	l.state = StateLoaded
	return nil
}

func (l *Ledger) reindex() {
	l.index = make(map[string]struct{}, len(l.entries))
	for _, e := range l.entries {
		l.index[e.ID] = struct{}{}
	}
}

// writeFileAtomic writes data to a temporary file next to path and renames it into place
func writeFileAtomic(fsys afero.Fs, path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := afero.TempFile(fsys, dir, "."+filepath.Base(path)+"-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = fsys.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = fsys.Remove(tmpName)
		return err
	}
	if err := fsys.Rename(tmpName, path); err != nil {
		_ = fsys.Remove(tmpName)
		return err
	}
	return nil
}
