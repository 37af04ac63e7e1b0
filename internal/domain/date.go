package domain

import (
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// Epoch is an absolute time in milliseconds since the Unix epoch (UTC).
type Epoch int64

// InvalidEpoch is returned when a date string cannot be parsed.
const InvalidEpoch Epoch = math.MinInt64

const (
	dayLayout  = "2006-01-02"
	endOfDayMS = 24*60*60*1000 - 1
)

// Anchor selects how a bare calendar date is pinned to an absolute time.
type Anchor int

const (
	// AnchorExact parses full timestamps as given; a bare date means UTC midnight.
	AnchorExact Anchor = iota
	// AnchorStart pins a bare date to 00:00:00.000 UTC.
	AnchorStart
	// AnchorEnd pins a bare date to 23:59:59.999 UTC.
	AnchorEnd
)

func (a Anchor) String() string {
	switch a {
	case AnchorStart:
		return "start"
	case AnchorEnd:
		return "end"
	default:
		return "exact"
	}
}

var bareDateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// exactLayouts are tried before falling back to dateparse, which is lenient
// but does not honour explicit offsets in every format.
var exactLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// Valid reports whether e is a real time value rather than the failure sentinel.
func (e Epoch) Valid() bool {
	return e != InvalidEpoch
}

// Time converts e to a UTC time. The zero time is returned for InvalidEpoch.
func (e Epoch) Time() time.Time {
	if !e.Valid() {
		return time.Time{}
	}
	return time.UnixMilli(int64(e)).UTC()
}

// EpochFromTime converts t to an Epoch, truncating to the millisecond.
func EpochFromTime(t time.Time) Epoch {
	if t.IsZero() {
		return InvalidEpoch
	}
	return Epoch(t.UnixMilli())
}

// ParseDate converts a date string to an Epoch using the given anchor.
// Start and end anchors accept only bare YYYY-MM-DD dates. The exact anchor also
// accepts full timestamps; timestamps without an offset are read as UTC.
// InvalidEpoch is returned for empty, malformed or unparsable input.
func ParseDate(s string, anchor Anchor) Epoch {
	s = strings.TrimSpace(s)
	if s == "" {
		return InvalidEpoch
	}

	if bareDateRe.MatchString(s) {
		day, err := time.ParseInLocation(dayLayout, s, time.UTC)
		if err != nil {
			return InvalidEpoch
		}
		e := Epoch(day.UnixMilli())
		if anchor == AnchorEnd {
			e += endOfDayMS
		}
		return e
	}

	if anchor != AnchorExact {
		return InvalidEpoch
	}

	for _, layout := range exactLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return Epoch(t.UnixMilli())
		}
	}

	// Ambiguous day/month orders and results before year 1 are corrupt values.
	t, err := dateparse.ParseStrict(s)
	if err != nil || t.Year() < 1 {
		return InvalidEpoch
	}
	return Epoch(t.UnixMilli())
}

// FormatDate renders e as a UTC calendar date. It returns "" for InvalidEpoch.
func FormatDate(e Epoch) string {
	if !e.Valid() {
		return ""
	}
	return e.Time().Format(dayLayout)
}
