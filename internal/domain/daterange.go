package domain

import (
	"fmt"
	"strings"
)

// DateRange is an inclusive [Start, End] window of absolute times.
type DateRange struct {
	Start Epoch `json:"start"`
	End   Epoch `json:"end"`
}

// Control identifies which bound of a range widget changed.
type Control int

const (
	ControlStart Control = iota
	ControlEnd
)

func (c Control) String() string {
	if c == ControlEnd {
		return "end"
	}
	return "start"
}

// Anchor returns the date anchor a bare calendar date should use for this control.
func (c Control) Anchor() Anchor {
	if c == ControlEnd {
		return AnchorEnd
	}
	return AnchorStart
}

// ParseControl maps a range widget control id to a Control. Ids such as
// "start", "startDate" or "date-start" name the lower bound.
func ParseControl(id string) (Control, error) {
	id = strings.ToLower(strings.TrimSpace(id))
	switch {
	case strings.Contains(id, "start"), id == "from", id == "min":
		return ControlStart, nil
	case strings.Contains(id, "end"), id == "to", id == "max":
		return ControlEnd, nil
	default:
		return ControlStart, fmt.Errorf("unknown range control %q", id)
	}
}

// Valid reports whether both bounds are set and ordered.
func (r DateRange) Valid() bool {
	return r.Start.Valid() && r.End.Valid() && r.Start <= r.End
}

// Contains reports whether e falls inside the window, bounds included.
func (r DateRange) Contains(e Epoch) bool {
	return e.Valid() && r.Start <= e && e <= r.End
}

// Move sets one bound and clamps it against the other so Start <= End holds.
// The bound that was just moved is the one that gets clamped.
func (r DateRange) Move(c Control, value Epoch) DateRange {
	switch c {
	case ControlEnd:
		r.End = value
		if r.Start.Valid() && r.End < r.Start {
			r.End = r.Start
		}
	default:
		r.Start = value
		if r.End.Valid() && r.Start > r.End {
			r.Start = r.End
		}
	}
	return r
}

func (r DateRange) String() string {
	return FormatDate(r.Start) + ".." + FormatDate(r.End)
}
