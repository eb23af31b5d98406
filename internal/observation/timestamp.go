package observation

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tphakala/birdnotifier/internal/errors"
)

// eBird obsDt layouts
const (
	eBirdDateLayout     = "2006-01-02"
	eBirdDateTimeLayout = "2006-01-02 15:04"
)

// Timestamp is a civil date with an optional time of day at minute precision. eBird
// reports the wall clock of the observation region, so the fields are carried in UTC
// where no offset or DST transition can shift them.
type Timestamp struct {
	t       time.Time
	hasTime bool
}

// NewTimestamp builds a Timestamp from the wall clock of t in its own location,
// truncated to the minute, or to midnight when hasTime is false.
func NewTimestamp(t time.Time, hasTime bool) Timestamp {
	hour, minute := 0, 0
	if hasTime {
		hour, minute = t.Hour(), t.Minute()
	}
	return Timestamp{
		t:       time.Date(t.Year(), t.Month(), t.Day(), hour, minute, 0, 0, time.UTC),
		hasTime: hasTime,
	}
}

// WallClock returns the wall clock of t in its own location as a UTC time, the
// representation Timestamp compares against.
func WallClock(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

// Time returns the wall clock in UTC, midnight when no time of day is known.
func (ts Timestamp) Time() time.Time { return ts.t }

// HasTime reports whether the time of day is known.
func (ts Timestamp) HasTime() bool { return ts.hasTime }

// IsZero reports whether ts was never set.
func (ts Timestamp) IsZero() bool { return ts.t.IsZero() }

// Equal reports whether both timestamps carry the same instant and precision.
func (ts Timestamp) Equal(o Timestamp) bool {
	return ts.hasTime == o.hasTime && ts.t.Equal(o.t)
}

// Before reports whether ts is strictly before the wall clock of t.
func (ts Timestamp) Before(t time.Time) bool { return ts.t.Before(WallClock(t)) }

// Render formats ts as M/D/YYYY or M/D/YYYY H:MM, the ledger file format.
func (ts Timestamp) Render() string {
	date := fmt.Sprintf("%d/%d/%d", int(ts.t.Month()), ts.t.Day(), ts.t.Year())
	if !ts.hasTime {
		return date
	}
	return fmt.Sprintf("%s %d:%02d", date, ts.t.Hour(), ts.t.Minute())
}

// String implements fmt.Stringer.
func (ts Timestamp) String() string { return ts.Render() }

// DecodeTimestamp decodes an eBird date, either "2006-01-02" or "2006-01-02 15:04".
// A non-empty clock ("15:04") supplies the time of day for a date-only value.
func DecodeTimestamp(date, clock string) (Timestamp, error) {
	date = strings.TrimSpace(date)
	clock = strings.TrimSpace(clock)

	if d, c, ok := strings.Cut(date, " "); ok {
		if clock != "" && clock != strings.TrimSpace(c) {
			return Timestamp{}, decodeError("conflicting time of day", date+" / "+clock)
		}
		date, clock = d, strings.TrimSpace(c)
	}

	if clock == "" {
		t, err := time.Parse(eBirdDateLayout, date)
		if err != nil {
			return Timestamp{}, decodeError(err.Error(), date)
		}
		return Timestamp{t: t}, nil
	}

	t, err := time.Parse(eBirdDateTimeLayout, date+" "+clock)
	if err != nil {
		return Timestamp{}, decodeError(err.Error(), date+" "+clock)
	}
	return Timestamp{t: t, hasTime: true}, nil
}

// ParseTimestamp parses the Render form back into a Timestamp.
func ParseTimestamp(s string) (Timestamp, error) {
	datePart, clockPart, hasTime := strings.Cut(s, " ")

	fields := strings.Split(datePart, "/")
	if len(fields) != 3 {
		return Timestamp{}, decodeError("expected M/D/YYYY", s)
	}

	month, err := parseField(fields[0], 1, 12)
	if err != nil {
		return Timestamp{}, decodeError("month "+err.Error(), s)
	}
	day, err := parseField(fields[1], 1, 31)
	if err != nil {
		return Timestamp{}, decodeError("day "+err.Error(), s)
	}
	year, err := parseField(fields[2], 1, 9999)
	if err != nil {
		return Timestamp{}, decodeError("year "+err.Error(), s)
	}

	hour, minute := 0, 0
	if hasTime {
		h, m, ok := strings.Cut(clockPart, ":")
		if !ok {
			return Timestamp{}, decodeError("expected H:MM", s)
		}
		if hour, err = parseField(h, 0, 23); err != nil {
			return Timestamp{}, decodeError("hour "+err.Error(), s)
		}
		if len(m) != 2 {
			return Timestamp{}, decodeError("minute must have two digits", s)
		}
		if minute, err = parseField(m, 0, 59); err != nil {
			return Timestamp{}, decodeError("minute "+err.Error(), s)
		}
	}

	t := time.Date(year, time.Month(month), day, hour, minute, 0, 0, time.UTC)
	// time.Date normalizes 2/30 to 3/1, reject instead
	if t.Day() != day || int(t.Month()) != month || t.Hour() != hour || t.Minute() != minute {
		return Timestamp{}, decodeError("day out of range for month", s)
	}
	return Timestamp{t: t, hasTime: hasTime}, nil
}

// parseField parses an unsigned decimal within [lo, hi]
func parseField(s string, lo, hi int) (int, error) {
	if s == "" || strings.TrimLeft(s, "0123456789") != "" {
		return 0, fmt.Errorf("%q is not a number", s)
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", s)
	}
	if n < lo || n > hi {
		return 0, fmt.Errorf("%d out of range [%d, %d]", n, lo, hi)
	}
	return n, nil
}

func decodeError(reason, input string) error {
	return errors.Newf("invalid timestamp %q: %s", input, reason).
		Component("observation").
		Category(errors.CategoryDecode).
		Context("input", input).
		Build()
}
