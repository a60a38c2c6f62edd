package calendar

import (
	"maps"
	"slices"
	"sort"

	"github.com/klokku/eventkit/pkg/date"
)

// Comparator orders events inside every category of a Store.
type Comparator[T comparable] func(a, b Event[T]) int

// ByStartTime is the default ordering: earlier start first.
func ByStartTime[T comparable](a, b Event[T]) int {
	return a.StartTime.Compare(b.StartTime)
}

// Store keeps events indexed for day lookups. Every stored event is in the
// flat list and in exactly one category: the day map for single-day events,
// the ranging list, or the full-day list.
//
// A Store has a single owner and is not safe for concurrent use.
type Store[T comparable] struct {
	events    []Event[T]
	singleDay map[date.Date][]Event[T]
	ranging   []Event[T]
	fullDay   []Event[T]
	compare   Comparator[T]
}

// NewStore creates an empty store. A nil comparator means ByStartTime.
func NewStore[T comparable](compare Comparator[T]) *Store[T] {
	if compare == nil {
		compare = ByStartTime[T]
	}
	return &Store[T]{
		singleDay: make(map[date.Date][]Event[T]),
		compare:   compare,
	}
}

// AddEvent stores e. Adding an event equal to a stored one does nothing.
// An event ending before it starts is rejected and the store is unchanged.
func (s *Store[T]) AddEvent(e Event[T]) error {
	if err := e.Validate(); err != nil {
		return err
	}
	if s.Contains(e) {
		return nil
	}

	switch {
	case e.IsFullDay():
		s.fullDay = s.insertSorted(s.fullDay, e)
	case e.IsRanging():
		s.ranging = s.insertSorted(s.ranging, e)
	default:
		day := e.Date()
		s.singleDay[day] = s.insertSorted(s.singleDay[day], e)
	}
	s.events = append(s.events, e)
	return nil
}

// RemoveEvent removes e and reports whether it was stored. The flat list is
// only touched when the event was found in its category.
func (s *Store[T]) RemoveEvent(e Event[T]) bool {
	if !s.removeFromCategory(e) {
		return false
	}
	s.events, _ = removeEqual(s.events, e)
	return true
}

// UpdateEvent replaces old with updated. When old is not stored the call
// degrades to adding updated. An invalid replacement leaves old in place.
func (s *Store[T]) UpdateEvent(old, updated Event[T]) error {
	if err := updated.Validate(); err != nil {
		return err
	}
	s.RemoveEvent(old)
	return s.AddEvent(updated)
}

// RemoveWhere removes every event matching predicate and returns how many
// were removed. The predicate is called exactly once per stored event.
func (s *Store[T]) RemoveWhere(predicate func(Event[T]) bool) int {
	matched := make([]bool, len(s.events))
	for i, e := range s.events {
		matched[i] = predicate(e)
	}

	kept := make([]Event[T], 0, len(s.events))
	removed := 0
	for i, e := range s.events {
		if !matched[i] {
			kept = append(kept, e)
			continue
		}
		s.removeFromCategory(e)
		removed++
	}
	s.events = kept
	return removed
}

// EventsOnDay returns the single-day events of d, the ranging events whose
// span covers d and, when includeFullDay is set, the full-day events covering d.
func (s *Store[T]) EventsOnDay(d date.Date, includeFullDay bool) []Event[T] {
	bucket := s.singleDay[d]
	out := make([]Event[T], 0, len(bucket))
	out = append(out, bucket...)
	for _, e := range s.ranging {
		if e.OccursOnDate(d) {
			out = append(out, e)
		}
	}
	if includeFullDay {
		out = append(out, s.FullDayEvents(d)...)
	}
	return out
}

// FullDayEvents returns the full-day events whose span covers d.
func (s *Store[T]) FullDayEvents(d date.Date) []Event[T] {
	out := make([]Event[T], 0)
	for _, e := range s.fullDay {
		if e.OccursOnDate(d) {
			out = append(out, e)
		}
	}
	return out
}

func (s *Store[T]) Contains(e Event[T]) bool {
	return slices.ContainsFunc(s.events, e.Equal)
}

func (s *Store[T]) Len() int {
	return len(s.events)
}

// Events returns every stored event in insertion order.
func (s *Store[T]) Events() []Event[T] {
	return slices.Clone(s.events)
}

// EventsByDay returns the single-day index.
func (s *Store[T]) EventsByDay() map[date.Date][]Event[T] {
	out := maps.Clone(s.singleDay)
	for day, bucket := range out {
		out[day] = slices.Clone(bucket)
	}
	return out
}

func (s *Store[T]) RangingEvents() []Event[T] {
	return slices.Clone(s.ranging)
}

func (s *Store[T]) AllFullDayEvents() []Event[T] {
	return slices.Clone(s.fullDay)
}

func (s *Store[T]) removeFromCategory(e Event[T]) bool {
	var removed bool
	switch {
	case e.IsFullDay():
		s.fullDay, removed = removeEqual(s.fullDay, e)
	case e.IsRanging():
		s.ranging, removed = removeEqual(s.ranging, e)
	default:
		day := e.Date()
		var bucket []Event[T]
		bucket, removed = removeEqual(s.singleDay[day], e)
		if len(bucket) == 0 {
			delete(s.singleDay, day)
		} else {
			s.singleDay[day] = bucket
		}
	}
	return removed
}

// insertSorted inserts e after every element that does not sort after it,
// keeping insertion order among equal keys.
func (s *Store[T]) insertSorted(list []Event[T], e Event[T]) []Event[T] {
	i := sort.Search(len(list), func(i int) bool {
		return s.compare(list[i], e) > 0
	})
	return slices.Insert(list, i, e)
}

func removeEqual[T comparable](list []Event[T], e Event[T]) ([]Event[T], bool) {
	i := slices.IndexFunc(list, e.Equal)
	if i < 0 {
		return list, false
	}
	list = slices.Delete(list, i, i+1)
	if len(list) == 0 {
		return nil, true
	}
	return list, true
}
