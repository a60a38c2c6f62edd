package calendar

import (
	"errors"
	"testing"
	"time"

	"github.com/klokku/eventkit/internal/event_bus"
	"github.com/klokku/eventkit/internal/utils"
	"github.com/klokku/eventkit/pkg/date"
	"github.com/klokku/eventkit/pkg/recurrence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type changeRecorder struct {
	operations []string
	counts     []int
}

func recordChanges(t *testing.T, c *Controller[payload]) *changeRecorder {
	t.Helper()
	rec := &changeRecorder{}
	unsubscribe := event_bus.SubscribeTyped(c.Bus(), event_bus.CalendarEventsChangedType,
		func(e event_bus.EventT[event_bus.CalendarEventsChanged]) error {
			rec.operations = append(rec.operations, e.Data.Operation)
			rec.counts = append(rec.counts, e.Data.EventCount)
			return nil
		})
	t.Cleanup(unsubscribe)
	return rec
}

func newTestController(now time.Time, opts ...Option[payload]) *Controller[payload] {
	clock := &utils.MockClock{}
	clock.SetNow(now)
	return NewController(append([]Option[payload]{WithClock[payload](clock)}, opts...)...)
}

func dailySeries(title string, from, to date.Date) Event[payload] {
	settings := recurrence.NewSettingsWithCalculatedEndDate(recurrence.Settings{
		StartDate: from,
		EndDate:   &to,
		Frequency: recurrence.Daily,
		EndOn:     recurrence.On,
	})
	start := from.Time(time.UTC).Add(9 * time.Hour)
	return Event[payload]{
		Title:      title,
		StartTime:  start,
		EndTime:    start.Add(time.Hour),
		Recurrence: &settings,
	}
}

func TestController_NotifiesOncePerMutation(t *testing.T) {
	c := newTestController(at(2024, 1, 1, 0, 0))
	rec := recordChanges(t, c)
	first := timedEvent("first", at(2024, 1, 1, 8, 0), at(2024, 1, 1, 9, 0))
	second := timedEvent("second", at(2024, 1, 1, 10, 0), at(2024, 1, 1, 11, 0))
	third := timedEvent("third", at(2024, 1, 2, 10, 0), at(2024, 1, 2, 11, 0))
	moved := timedEvent("third", at(2024, 1, 3, 10, 0), at(2024, 1, 3, 11, 0))

	require.NoError(t, c.Add(first))
	require.NoError(t, c.AddAll(second, third))
	require.NoError(t, c.Update(third, moved))
	c.Remove(first)
	c.RemoveAll(second, moved)
	removed := c.RemoveWhere(func(Event[payload]) bool { return true })

	assert.Equal(t, 0, removed)
	assert.Equal(t, []string{"add", "addAll", "update", "remove", "removeAll", "removeWhere"}, rec.operations)
	assert.Equal(t, []int{1, 3, 3, 2, 0, 0}, rec.counts)
}

func TestController_RemovingUnknownEventStillNotifies(t *testing.T) {
	c := newTestController(at(2024, 1, 1, 0, 0))
	rec := recordChanges(t, c)

	c.Remove(timedEvent("ghost", at(2024, 1, 1, 8, 0), at(2024, 1, 1, 9, 0)))

	assert.Equal(t, []string{"remove"}, rec.operations)
}

func TestController_InvalidEventIsRejectedWithoutNotification(t *testing.T) {
	c := newTestController(at(2024, 1, 1, 0, 0))
	rec := recordChanges(t, c)

	err := c.Add(timedEvent("backwards", at(2024, 1, 1, 9, 0), at(2024, 1, 1, 8, 0)))

	assert.ErrorIs(t, err, ErrInvalidEventTime)
	assert.Empty(t, rec.operations)
	assert.Empty(t, c.Events())
}

func TestController_AddAllIsAllOrNothing(t *testing.T) {
	c := newTestController(at(2024, 1, 1, 0, 0))
	rec := recordChanges(t, c)
	valid := timedEvent("valid", at(2024, 1, 1, 8, 0), at(2024, 1, 1, 9, 0))
	invalid := timedEvent("invalid", at(2024, 1, 1, 9, 0), at(2024, 1, 1, 8, 0))

	err := c.AddAll(valid, invalid)

	require.Error(t, err)
	var validationErr *ValidationError
	assert.ErrorAs(t, err, &validationErr)
	assert.Empty(t, c.Events())
	assert.Empty(t, rec.operations)
}

func TestController_FailingObserverDoesNotUndoMutation(t *testing.T) {
	c := newTestController(at(2024, 1, 1, 0, 0))
	c.Bus().Subscribe(event_bus.CalendarEventsChangedType, func(event_bus.Event) error {
		return errors.New("observer failed")
	})
	c.Bus().Subscribe(event_bus.CalendarEventsChangedType, func(event_bus.Event) error {
		panic("observer panicked")
	})
	rec := recordChanges(t, c)
	e := timedEvent("kept", at(2024, 1, 1, 8, 0), at(2024, 1, 1, 9, 0))

	require.NoError(t, c.Add(e))

	assert.Equal(t, []Event[payload]{e}, c.Events())
	assert.Equal(t, []string{"add"}, rec.operations, "later observers still run")
}

func TestController_SharedEventBus(t *testing.T) {
	bus := event_bus.NewEventBus()
	c := NewController(WithEventBus[payload](bus))

	assert.Same(t, bus, c.Bus())
}

func TestController_WithSorter(t *testing.T) {
	latestFirst := func(a, b Event[payload]) int { return b.StartTime.Compare(a.StartTime) }
	c := newTestController(at(2024, 1, 1, 0, 0), WithSorter[payload](latestFirst))
	early := timedEvent("early", at(2024, 1, 1, 8, 0), at(2024, 1, 1, 9, 0))
	late := timedEvent("late", at(2024, 1, 1, 15, 0), at(2024, 1, 1, 16, 0))

	require.NoError(t, c.AddAll(early, late))

	assert.Equal(t, []Event[payload]{late, early}, c.EventsOnDay(date.New(2024, 1, 1), false))
}

type titleFilter struct {
	title string
}

func (f titleFilter) EventsOnDay(day date.Date, events []Event[payload]) []Event[payload] {
	var out []Event[payload]
	for _, e := range events {
		if e.Title == f.title && e.OccursOnDate(day) {
			out = append(out, e)
		}
	}
	return out
}

func TestController_DayFilterReplacesSelection(t *testing.T) {
	c := newTestController(at(2024, 1, 1, 0, 0), WithDayFilter[payload](titleFilter{title: "gym"}))
	gym := timedEvent("gym", at(2024, 1, 1, 18, 0), at(2024, 1, 1, 19, 0))
	work := timedEvent("work", at(2024, 1, 1, 9, 0), at(2024, 1, 1, 17, 0))
	require.NoError(t, c.AddAll(gym, work))

	assert.Equal(t, []Event[payload]{gym}, c.EventsOnDay(date.New(2024, 1, 1), false))
}

func TestController_UpdateFilterNotifiesOnlyOnChange(t *testing.T) {
	c := newTestController(at(2024, 1, 1, 0, 0))
	rec := recordChanges(t, c)
	gym := timedEvent("gym", at(2024, 1, 1, 18, 0), at(2024, 1, 1, 19, 0))
	work := timedEvent("work", at(2024, 1, 1, 9, 0), at(2024, 1, 1, 17, 0))
	require.NoError(t, c.AddAll(gym, work))

	c.UpdateFilter(titleFilter{title: "work"})
	c.UpdateFilter(titleFilter{title: "work"})
	assert.Equal(t, []Event[payload]{work}, c.EventsOnDay(date.New(2024, 1, 1), true))

	c.UpdateFilter(titleFilter{title: "gym"})
	c.UpdateFilter(nil)
	c.UpdateFilter(nil)

	assert.Equal(t, []string{"addAll", "updateFilter", "updateFilter", "updateFilter"}, rec.operations)
	assert.Equal(t, []Event[payload]{work, gym}, c.EventsOnDay(date.New(2024, 1, 1), true))
}

func TestController_UpdateFilterWithFuncAlwaysNotifies(t *testing.T) {
	c := newTestController(at(2024, 1, 1, 0, 0))
	rec := recordChanges(t, c)
	none := DayFilterFunc[payload](func(date.Date, []Event[payload]) []Event[payload] { return nil })

	c.UpdateFilter(none)
	c.UpdateFilter(none)

	assert.Len(t, rec.operations, 2)
}

func TestController_RepeatedEvents(t *testing.T) {
	series := dailySeries("walk", date.New(2024, 1, 1), date.New(2024, 1, 10))

	t.Run("future occurrences inside the series", func(t *testing.T) {
		c := newTestController(at(2023, 12, 31, 12, 0))
		require.NoError(t, c.Add(series))

		assert.Equal(t, []Event[payload]{series}, c.RepeatedEvents(date.New(2024, 1, 2)))
		assert.Equal(t, []Event[payload]{series}, c.RepeatedEvents(date.New(2024, 1, 10)))
		assert.Empty(t, c.RepeatedEvents(date.New(2024, 1, 11)))
	})

	t.Run("the first day is covered by the stored event", func(t *testing.T) {
		c := newTestController(at(2023, 12, 31, 12, 0))
		require.NoError(t, c.Add(series))

		assert.Empty(t, c.RepeatedEvents(date.New(2024, 1, 1)))
		assert.Equal(t, []Event[payload]{series}, c.AllEventsOnDay(date.New(2024, 1, 1)))
	})

	t.Run("days that are not after now produce nothing", func(t *testing.T) {
		c := newTestController(at(2024, 1, 5, 12, 0))
		require.NoError(t, c.Add(series))

		assert.Empty(t, c.RepeatedEvents(date.New(2024, 1, 3)))
		assert.Empty(t, c.RepeatedEvents(date.New(2024, 1, 5)))
		assert.Equal(t, []Event[payload]{series}, c.RepeatedEvents(date.New(2024, 1, 6)))
	})

	t.Run("follows the clock", func(t *testing.T) {
		clock := &utils.MockClock{}
		clock.SetNow(at(2024, 1, 2, 12, 0))
		c := NewController(WithClock[payload](clock))
		require.NoError(t, c.Add(series))
		require.NotEmpty(t, c.RepeatedEvents(date.New(2024, 1, 4)))

		clock.Advance(48 * time.Hour)

		assert.Empty(t, c.RepeatedEvents(date.New(2024, 1, 4)))
	})
}

func TestController_WeeklySeriesWithDerivedEnd(t *testing.T) {
	settings := recurrence.NewSettingsWithCalculatedEndDate(recurrence.Settings{
		StartDate: date.New(2024, 11, 12),
		Interval:  3,
		Frequency: recurrence.Weekly,
		EndOn:     recurrence.After,
		Weekdays:  []int{1, 2},
	})
	series := Event[payload]{
		Title:      "swimming",
		StartTime:  at(2024, 11, 12, 7, 0),
		EndTime:    at(2024, 11, 12, 8, 0),
		Recurrence: &settings,
	}
	c := newTestController(at(2024, 11, 1, 0, 0))
	require.NoError(t, c.Add(series))

	var days []date.Date
	for d := date.New(2024, 11, 11); !d.After(date.New(2024, 11, 30)); d = d.AddDays(1) {
		if len(c.AllEventsOnDay(d)) > 0 {
			days = append(days, d)
		}
	}

	assert.Equal(t, []date.Date{
		date.New(2024, 11, 12),
		date.New(2024, 11, 13),
		date.New(2024, 11, 19),
	}, days)
}

func TestController_AllEventsOnDaySkipsExcludedDates(t *testing.T) {
	c := newTestController(at(2023, 12, 31, 12, 0))
	series := dailySeries("walk", date.New(2024, 1, 1), date.New(2024, 1, 10))
	excluded := series.withRecurrence(series.Recurrence.WithExcludedDate(date.New(2024, 1, 1)).
		WithExcludedDate(date.New(2024, 1, 3)))
	single := timedEvent("dentist", at(2024, 1, 3, 14, 0), at(2024, 1, 3, 15, 0))
	require.NoError(t, c.AddAll(excluded, single))

	assert.Empty(t, c.AllEventsOnDay(date.New(2024, 1, 1)), "the stored first occurrence is excluded too")
	assert.Equal(t, []Event[payload]{single}, c.AllEventsOnDay(date.New(2024, 1, 3)))
	assert.Equal(t, []Event[payload]{excluded}, c.AllEventsOnDay(date.New(2024, 1, 4)))
}

func TestController_Find(t *testing.T) {
	c := newTestController(at(2024, 1, 1, 0, 0))
	e := Event[payload]{Title: "tagged", StartTime: at(2024, 1, 1, 8, 0), EndTime: at(2024, 1, 1, 9, 0), Payload: payload{ID: 7}}
	require.NoError(t, c.Add(e))

	found, ok := c.Find(func(e Event[payload]) bool { return e.Payload.ID == 7 })
	assert.True(t, ok)
	assert.Equal(t, e, found)

	_, ok = c.Find(func(e Event[payload]) bool { return e.Payload.ID == 8 })
	assert.False(t, ok)
}
