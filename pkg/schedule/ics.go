package schedule

import (
	"errors"
	"io"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/klokku/eventkit/pkg/date"
	"github.com/klokku/eventkit/pkg/recurrence"
	log "github.com/sirupsen/logrus"
)

const (
	icsProductId       = "-//klokku//eventkit//EN"
	icsDateFormat      = "20060102"
	icsTimestampFormat = "20060102T150405Z"
)

// BuildCalendar renders events as an iCalendar feed. Series become one VEVENT
// with an RRULE and one EXDATE per excluded day. Series the rule encoder does
// not support are exported as their first occurrence only.
func BuildCalendar(events []Event, stamp time.Time) *ics.Calendar {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId(icsProductId)

	for _, e := range events {
		vevent := cal.AddEvent(e.Payload.UID.String())
		vevent.SetDtStampTime(stamp)
		vevent.SetSummary(e.Title)
		if e.Description != "" {
			vevent.SetDescription(e.Description)
		}

		fullDay := e.IsFullDay()
		if fullDay {
			// DTEND of an all-day VEVENT is exclusive
			vevent.SetAllDayStartAt(e.StartTime)
			vevent.SetAllDayEndAt(e.EndDate().AddDays(1).Time(e.EndTime.Location()))
		} else {
			vevent.SetStartAt(e.StartTime)
			vevent.SetEndAt(e.EndTime)
		}

		if e.Recurrence == nil {
			continue
		}
		rule, err := recurrence.RRule(*e.Recurrence)
		if err != nil {
			if !errors.Is(err, recurrence.ErrUnsupported) {
				log.Errorf("failed to encode recurrence of event %s: %v", e.Payload.UID, err)
			} else {
				log.Debugf("exporting event %s without recurrence: %v", e.Payload.UID, err)
			}
			continue
		}
		vevent.AddRrule(rule)
		for _, excluded := range e.Recurrence.ExcludeDates {
			if fullDay {
				vevent.AddExdate(excluded.Time(time.UTC).Format(icsDateFormat), ics.WithValue(string(ics.ValueDataTypeDate)))
			} else {
				vevent.AddExdate(occurrenceStart(excluded, e.StartTime).UTC().Format(icsTimestampFormat))
			}
		}
	}
	return cal
}

// WriteICS writes the iCalendar feed of events to w.
func WriteICS(w io.Writer, events []Event, stamp time.Time) error {
	return BuildCalendar(events, stamp).SerializeTo(w)
}

// occurrenceStart is the start instant of the occurrence on d of a series
// starting at start.
func occurrenceStart(d date.Date, start time.Time) time.Time {
	h, m, s := start.Clock()
	return time.Date(d.Year, d.Month, d.Day, h, m, s, 0, start.Location())
}
