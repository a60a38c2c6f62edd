package calendar

import (
	"context"
	"errors"
	"reflect"
	"slices"

	"github.com/klokku/eventkit/internal/event_bus"
	"github.com/klokku/eventkit/internal/utils"
	"github.com/klokku/eventkit/pkg/date"
	"github.com/klokku/eventkit/pkg/recurrence"
	log "github.com/sirupsen/logrus"
)

// DayFilter replaces the built-in selection of events for a day. It receives
// every event held by the controller.
type DayFilter[T comparable] interface {
	EventsOnDay(day date.Date, events []Event[T]) []Event[T]
}

// DayFilterFunc adapts a function to DayFilter.
type DayFilterFunc[T comparable] func(day date.Date, events []Event[T]) []Event[T]

func (f DayFilterFunc[T]) EventsOnDay(day date.Date, events []Event[T]) []Event[T] {
	return f(day, events)
}

type Option[T comparable] func(*Controller[T])

func WithDayFilter[T comparable](filter DayFilter[T]) Option[T] {
	return func(c *Controller[T]) {
		c.filter = filter
	}
}

// WithSorter sets the ordering used by every category of the store.
func WithSorter[T comparable](compare Comparator[T]) Option[T] {
	return func(c *Controller[T]) {
		c.compare = compare
	}
}

// WithClock sets the source of "now" used by RepeatedEvents.
func WithClock[T comparable](clock utils.Clock) Option[T] {
	return func(c *Controller[T]) {
		c.clock = clock
	}
}

// WithEventBus makes the controller publish its change notifications on bus.
func WithEventBus[T comparable](bus *event_bus.EventBus) Option[T] {
	return func(c *Controller[T]) {
		c.bus = bus
	}
}

// Controller is the facade over a Store. Every public mutation publishes one
// event_bus.CalendarEventsChanged after the store has committed the change.
// Observers that fail or panic are logged and never undo the mutation.
//
// Like Store, a Controller has a single owner; callers sharing it between
// goroutines must serialize access themselves.
type Controller[T comparable] struct {
	store   *Store[T]
	filter  DayFilter[T]
	compare Comparator[T]
	clock   utils.Clock
	bus     *event_bus.EventBus
}

func NewController[T comparable](opts ...Option[T]) *Controller[T] {
	c := &Controller[T]{
		clock: utils.SystemClock{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.bus == nil {
		c.bus = event_bus.NewEventBus()
	}
	c.store = NewStore(c.compare)
	return c
}

// Bus returns the bus change notifications are published on.
func (c *Controller[T]) Bus() *event_bus.EventBus {
	return c.bus
}

func (c *Controller[T]) Add(e Event[T]) error {
	if err := c.store.AddEvent(e); err != nil {
		return err
	}
	c.notify("add")
	return nil
}

// AddAll adds events as one change. When any event is invalid nothing is
// added and the joined validation errors are returned.
func (c *Controller[T]) AddAll(events ...Event[T]) error {
	var errs []error
	for _, e := range events {
		if err := e.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	for _, e := range events {
		// already validated, AddEvent cannot fail here
		_ = c.store.AddEvent(e)
	}
	c.notify("addAll")
	return nil
}

func (c *Controller[T]) Remove(e Event[T]) {
	c.store.RemoveEvent(e)
	c.notify("remove")
}

func (c *Controller[T]) RemoveAll(events ...Event[T]) {
	for _, e := range events {
		c.store.RemoveEvent(e)
	}
	c.notify("removeAll")
}

// Update replaces old with updated. An unknown old event is not an error:
// updated is still added.
func (c *Controller[T]) Update(old, updated Event[T]) error {
	if err := c.store.UpdateEvent(old, updated); err != nil {
		return err
	}
	c.notify("update")
	return nil
}

func (c *Controller[T]) RemoveWhere(predicate func(Event[T]) bool) int {
	removed := c.store.RemoveWhere(predicate)
	c.notify("removeWhere")
	return removed
}

// EventsOnDay returns the events stored for d. An installed DayFilter takes
// over the selection completely and includeFullDay is then ignored.
func (c *Controller[T]) EventsOnDay(d date.Date, includeFullDay bool) []Event[T] {
	if c.filter != nil {
		return c.filter.EventsOnDay(d, c.store.Events())
	}
	return c.store.EventsOnDay(d, includeFullDay)
}

// AllEventsOnDay combines the stored events of d with the recurring series
// that have an occurrence on d, leaving out series that exclude d.
func (c *Controller[T]) AllEventsOnDay(d date.Date) []Event[T] {
	out := make([]Event[T], 0)
	for _, e := range c.EventsOnDay(d, true) {
		if !e.IsExcludedOn(d) {
			out = append(out, e)
		}
	}
	for _, e := range c.RepeatedEvents(d) {
		if !e.IsExcludedOn(d) {
			out = append(out, e)
		}
	}
	return out
}

// RepeatedEvents returns the recurring series occurring on d. Occurrences are
// only produced for days that start after now and after the series' own
// first day.
func (c *Controller[T]) RepeatedEvents(d date.Date) []Event[T] {
	out := make([]Event[T], 0)
	now := c.clock.Now()
	if !d.Time(now.Location()).After(now) {
		return out
	}

	for _, e := range c.store.Events() {
		if e.Recurrence == nil || !d.After(e.Date()) {
			continue
		}
		if recurrence.OccursOn(d, e.Date(), *e.Recurrence) {
			out = append(out, e)
		}
	}
	return out
}

func (c *Controller[T]) FullDayEvents(d date.Date) []Event[T] {
	return c.store.FullDayEvents(d)
}

func (c *Controller[T]) Events() []Event[T] {
	return c.store.Events()
}

func (c *Controller[T]) EventsByDay() map[date.Date][]Event[T] {
	return c.store.EventsByDay()
}

func (c *Controller[T]) RangingEvents() []Event[T] {
	return c.store.RangingEvents()
}

func (c *Controller[T]) AllFullDayEvents() []Event[T] {
	return c.store.AllFullDayEvents()
}

// Find returns the first stored event matching predicate.
func (c *Controller[T]) Find(predicate func(Event[T]) bool) (Event[T], bool) {
	events := c.store.Events()
	i := slices.IndexFunc(events, predicate)
	if i < 0 {
		return Event[T]{}, false
	}
	return events[i], true
}

// UpdateFilter installs filter, or removes the current one when filter is
// nil. Observers are notified only when the filter changed. Filters whose
// dynamic type is not comparable, like DayFilterFunc, always count as changed.
func (c *Controller[T]) UpdateFilter(filter DayFilter[T]) {
	if sameFilter(c.filter, filter) {
		return
	}
	c.filter = filter
	c.notify("updateFilter")
}

func sameFilter[T comparable](a, b DayFilter[T]) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	typ := reflect.TypeOf(a)
	if typ != reflect.TypeOf(b) || !typ.Comparable() {
		return false
	}
	return a == b
}

func (c *Controller[T]) notify(operation string) {
	payload := event_bus.CalendarEventsChanged{Operation: operation, EventCount: c.store.Len()}
	log.Tracef("calendar: %s, %d events stored", operation, payload.EventCount)
	err := c.bus.Publish(event_bus.NewEvent(context.Background(), event_bus.CalendarEventsChangedType, payload))
	if err != nil {
		log.Warnf("calendar: change observers failed after %s: %v", operation, err)
	}
}
