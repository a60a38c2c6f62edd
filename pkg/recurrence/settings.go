package recurrence

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/klokku/eventkit/pkg/date"
)

var ErrUnsupported = errors.New("recurrence frequency not supported")

type Frequency int

const (
	DoNotRepeat Frequency = iota
	Daily
	Weekly
	Monthly
	// Yearly is recognized but not evaluated: it never produces an occurrence.
	Yearly
)

var frequencyNames = []string{"doNotRepeat", "daily", "weekly", "monthly", "yearly"}

func (f Frequency) String() string {
	if f < 0 || int(f) >= len(frequencyNames) {
		return fmt.Sprintf("Frequency(%d)", int(f))
	}
	return frequencyNames[f]
}

func (f Frequency) MarshalText() ([]byte, error) {
	if f < 0 || int(f) >= len(frequencyNames) {
		return nil, fmt.Errorf("unknown frequency %d", int(f))
	}
	return []byte(f.String()), nil
}

func (f *Frequency) UnmarshalText(text []byte) error {
	for i, name := range frequencyNames {
		if strings.EqualFold(name, string(text)) {
			*f = Frequency(i)
			return nil
		}
	}
	return fmt.Errorf("unknown frequency %q", string(text))
}

// EndOn selects how the end of a series is interpreted.
type EndOn int

const (
	Never EndOn = iota
	On
	After
)

var endOnNames = []string{"never", "on", "after"}

func (e EndOn) String() string {
	if e < 0 || int(e) >= len(endOnNames) {
		return fmt.Sprintf("EndOn(%d)", int(e))
	}
	return endOnNames[e]
}

func (e EndOn) MarshalText() ([]byte, error) {
	if e < 0 || int(e) >= len(endOnNames) {
		return nil, fmt.Errorf("unknown end condition %d", int(e))
	}
	return []byte(e.String()), nil
}

func (e *EndOn) UnmarshalText(text []byte) error {
	for i, name := range endOnNames {
		if strings.EqualFold(name, string(text)) {
			*e = EndOn(i)
			return nil
		}
	}
	return fmt.Errorf("unknown end condition %q", string(text))
}

// Settings describe a recurring series. They are treated as immutable values:
// every edit goes through a With* method that returns a copy.
type Settings struct {
	StartDate date.Date `json:"startDate"`
	// EndDate is nil for an unbounded series. For EndOn After it holds the
	// date derived at construction time and is never recomputed.
	EndDate *date.Date `json:"endDate,omitempty"`
	// Interval is the occurrence count for EndOn After.
	Interval  int       `json:"interval"`
	Frequency Frequency `json:"frequency"`
	EndOn     EndOn     `json:"endOn"`
	// Weekdays holds Monday-based indexes (0 = Monday). Only weekly series use it.
	Weekdays     []int       `json:"weekdays"`
	ExcludeDates []date.Date `json:"excludeDates,omitempty"`
}

// NewSettings returns s with defaults applied: an interval of 1 and the
// start date's weekday when no weekdays are given.
func NewSettings(s Settings) Settings {
	out := s.clone()
	if out.Interval < 1 {
		out.Interval = 1
	}
	if len(out.Weekdays) == 0 {
		out.Weekdays = []int{out.StartDate.WeekdayIndex()}
	}
	return out
}

// NewSettingsWithCalculatedEndDate is NewSettings followed by a one-off
// derivation of EndDate from the end condition. s.EndDate is the date the
// caller supplied. When nothing can be derived for an On or After condition
// the supplied date is kept.
func NewSettingsWithCalculatedEndDate(s Settings) Settings {
	out := NewSettings(s)
	derived := DeriveEndDate(out.StartDate, out.EndDate, out)
	if derived != nil {
		out.EndDate = derived
	} else if out.EndOn == Never || out.Frequency == DoNotRepeat {
		out.EndDate = nil
	}
	return out
}

// WithExcludedDate returns a copy with d appended to the exclusion list.
func (s Settings) WithExcludedDate(d date.Date) Settings {
	out := s.clone()
	if !out.IsExcluded(d) {
		out.ExcludeDates = append(out.ExcludeDates, d)
	}
	return out
}

// WithEndDate returns a copy ending on d.
func (s Settings) WithEndDate(d date.Date) Settings {
	out := s.clone()
	out.EndDate = &d
	return out
}

func (s Settings) IsExcluded(d date.Date) bool {
	return slices.Contains(s.ExcludeDates, d)
}

func (s Settings) Equal(other Settings) bool {
	if s.StartDate != other.StartDate ||
		s.Interval != other.Interval ||
		s.Frequency != other.Frequency ||
		s.EndOn != other.EndOn {
		return false
	}
	if (s.EndDate == nil) != (other.EndDate == nil) {
		return false
	}
	if s.EndDate != nil && *s.EndDate != *other.EndDate {
		return false
	}
	return slices.Equal(s.Weekdays, other.Weekdays) && slices.Equal(s.ExcludeDates, other.ExcludeDates)
}

func (s Settings) clone() Settings {
	out := s
	if s.EndDate != nil {
		end := *s.EndDate
		out.EndDate = &end
	}
	out.Weekdays = slices.Clone(s.Weekdays)
	out.ExcludeDates = slices.Clone(s.ExcludeDates)
	return out
}
