package recurrence

import (
	"slices"

	"github.com/klokku/eventkit/pkg/date"
)

// OccursOn reports whether a series anchored on eventStart has an occurrence
// on current. Excluded dates never occur. All end date comparisons are
// inclusive except the monthly series with EndOn Never, which stops strictly
// before its end date.
func OccursOn(current, eventStart date.Date, s Settings) bool {
	if s.IsExcluded(current) {
		return false
	}

	switch s.Frequency {
	case Daily:
		return onOrBeforeEnd(current, s.EndDate)
	case Weekly:
		return slices.Contains(s.Weekdays, current.WeekdayIndex()) && onOrBeforeEnd(current, s.EndDate)
	case Monthly:
		return occursMonthly(current, eventStart, s)
	case Yearly:
		return false
	default:
		return false
	}
}

func occursMonthly(current, eventStart date.Date, s Settings) bool {
	if current.Before(eventStart) || current.Day != eventStart.Day {
		return false
	}
	if s.EndOn == Never {
		return s.EndDate == nil || current.Before(*s.EndDate)
	}
	return s.EndDate != nil && !current.After(*s.EndDate)
}

func onOrBeforeEnd(current date.Date, end *date.Date) bool {
	return end == nil || !current.After(*end)
}

// DeriveEndDate computes the last day of a series from its end condition.
// supplied is the end date given by the caller; for EndOn After it is the
// base of daily series and the answer for an occurrence count of one or less.
// A nil result means the series has no derivable end.
func DeriveEndDate(start date.Date, supplied *date.Date, s Settings) *date.Date {
	if s.Frequency == DoNotRepeat || s.EndOn == Never {
		return nil
	}

	switch s.EndOn {
	case On:
		if s.Frequency == Yearly || supplied == nil {
			return nil
		}
		end := *supplied
		return &end
	case After:
		return deriveAfter(start, supplied, s)
	}
	return nil
}

func deriveAfter(start date.Date, supplied *date.Date, s Settings) *date.Date {
	base := start
	if supplied != nil {
		base = *supplied
	}
	if s.Frequency == Yearly {
		return nil
	}
	if s.Interval <= 1 {
		return &base
	}

	var end date.Date
	switch s.Frequency {
	case Daily:
		end = base.AddDays(s.Interval - 1)
	case Weekly:
		last, ok := nthWeekdayOccurrence(start, s.Weekdays, s.Interval)
		if !ok {
			return nil
		}
		end = last
	case Monthly:
		end = start.AddMonths(s.Interval - 1)
	default:
		return nil
	}
	return &end
}

// nthWeekdayOccurrence walks forward from start, counting days whose weekday
// is in weekdays, and returns the n-th counted day.
func nthWeekdayOccurrence(start date.Date, weekdays []int, n int) (date.Date, bool) {
	var valid [7]bool
	hasValid := false
	for _, wd := range weekdays {
		if wd >= 0 && wd < 7 {
			valid[wd] = true
			hasValid = true
		}
	}
	if !hasValid {
		return date.Date{}, false
	}

	count := 0
	for d := start; ; d = d.AddDays(1) {
		if valid[d.WeekdayIndex()] {
			count++
			if count == n {
				return d, true
			}
		}
	}
}
