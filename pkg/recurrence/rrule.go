package recurrence

import (
	"fmt"
	"time"

	"github.com/teambition/rrule-go"
)

var rruleWeekdays = []rrule.Weekday{rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA, rrule.SU}

// RRule renders s as an RFC 5545 RRULE value (without the "RRULE:" prefix).
// Excluded dates are not part of the rule; they are exported as EXDATE by the
// caller. The rule always has an interval of one since series are not spaced.
func RRule(s Settings) (string, error) {
	opt := rrule.ROption{Interval: 1}

	switch s.Frequency {
	case Daily:
		opt.Freq = rrule.DAILY
	case Weekly:
		opt.Freq = rrule.WEEKLY
		for _, wd := range s.Weekdays {
			if wd >= 0 && wd < len(rruleWeekdays) {
				opt.Byweekday = append(opt.Byweekday, rruleWeekdays[wd])
			}
		}
		if len(opt.Byweekday) == 0 {
			return "", fmt.Errorf("weekly series without weekdays: %w", ErrUnsupported)
		}
	case Monthly:
		opt.Freq = rrule.MONTHLY
		opt.Bymonthday = []int{s.StartDate.Day}
	default:
		return "", fmt.Errorf("%s: %w", s.Frequency, ErrUnsupported)
	}

	if s.EndDate != nil {
		last := *s.EndDate
		if s.Frequency == Monthly && s.EndOn == Never {
			last = last.AddDays(-1)
		}
		opt.Until = last.Time(time.UTC).Add(24*time.Hour - time.Second)
	}

	if _, err := rrule.NewRRule(opt); err != nil {
		return "", fmt.Errorf("invalid recurrence rule: %w", err)
	}
	return opt.RRuleString(), nil
}
