package calendar

import (
	"fmt"
	"strings"

	"github.com/klokku/eventkit/pkg/date"
)

// DeleteMode selects which occurrences of a series a deletion affects.
type DeleteMode int

const (
	// DeleteAll removes the whole series.
	DeleteAll DeleteMode = iota
	// DeleteCurrent removes a single occurrence by excluding its date.
	DeleteCurrent
	// DeleteFollowing ends the series the day before the given date.
	DeleteFollowing
)

var deleteModeNames = []string{"all", "current", "following"}

func (m DeleteMode) String() string {
	if m < 0 || int(m) >= len(deleteModeNames) {
		return fmt.Sprintf("DeleteMode(%d)", int(m))
	}
	return deleteModeNames[m]
}

func ParseDeleteMode(s string) (DeleteMode, error) {
	for i, name := range deleteModeNames {
		if strings.EqualFold(name, s) {
			return DeleteMode(i), nil
		}
	}
	return 0, fmt.Errorf("unknown delete mode %q", s)
}

// DeleteRecurrenceEvent deletes occurrences of the series e starting from d.
// Edits never modify e's settings: a new event with new settings replaces e
// through Update. Deleting from a non-recurring event removes it, and
// deleting the following occurrences from the first day on removes the series.
// A series never ends later than it did before.
func (c *Controller[T]) DeleteRecurrenceEvent(d date.Date, e Event[T], mode DeleteMode) error {
	if e.Recurrence == nil {
		c.Remove(e)
		return nil
	}

	switch mode {
	case DeleteAll:
		c.Remove(e)
		return nil
	case DeleteCurrent:
		return c.Update(e, e.withRecurrence(e.Recurrence.WithExcludedDate(d)))
	case DeleteFollowing:
		if !d.After(e.Date()) {
			c.Remove(e)
			return nil
		}
		end := d.AddDays(-1)
		if e.Recurrence.EndDate != nil && e.Recurrence.EndDate.Before(end) {
			end = *e.Recurrence.EndDate
		}
		return c.Update(e, e.withRecurrence(e.Recurrence.WithEndDate(end)))
	default:
		return fmt.Errorf("delete recurrence event: %v", mode)
	}
}
