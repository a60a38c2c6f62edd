package calendar

import (
	"errors"
	"fmt"
	"time"

	"github.com/klokku/eventkit/pkg/date"
	"github.com/klokku/eventkit/pkg/recurrence"
)

var ErrInvalidEventTime = errors.New("event ends before it starts")

// ValidationError rejects an event whose end is earlier than its start.
type ValidationError struct {
	StartTime time.Time
	EndTime   time.Time
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%v: start %s, end %s", ErrInvalidEventTime,
		e.StartTime.Format(time.RFC3339), e.EndTime.Format(time.RFC3339))
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidEventTime
}

// Event is a calendar entry carrying an opaque payload. Events are values:
// two events with equal fields are the same event for every store operation.
//
// An event whose start and end both fall on midnight is a full-day event and
// covers every day from Date() to EndDate() inclusive, so a one-day full-day
// event starts and ends at midnight of the same day.
type Event[T comparable] struct {
	Title       string
	Description string
	StartTime   time.Time
	EndTime     time.Time
	// Recurrence is non-nil for a recurring series. Stored settings are never
	// modified; edits replace the event with one pointing at new settings.
	Recurrence *recurrence.Settings
	Payload    T
}

// Date is the day the event starts on.
func (e Event[T]) Date() date.Date {
	return date.Of(e.StartTime)
}

// EndDate is the day the event ends on.
func (e Event[T]) EndDate() date.Date {
	return date.Of(e.EndTime)
}

func (e Event[T]) IsFullDay() bool {
	return isMidnight(e.StartTime) && isMidnight(e.EndTime)
}

// IsRanging reports whether a timed event spans more than one calendar day.
func (e Event[T]) IsRanging() bool {
	return e.EndDate().After(e.Date()) && !e.IsFullDay()
}

func (e Event[T]) IsRecurring() bool {
	return e.Recurrence != nil
}

// OccursOnDate reports whether d lies within the event's own span, ignoring
// recurrence.
func (e Event[T]) OccursOnDate(d date.Date) bool {
	return !d.Before(e.Date()) && !d.After(e.EndDate())
}

// IsExcludedOn reports whether the event's series excludes d.
func (e Event[T]) IsExcludedOn(d date.Date) bool {
	return e.Recurrence != nil && e.Recurrence.IsExcluded(d)
}

func (e Event[T]) Validate() error {
	if e.EndTime.Before(e.StartTime) {
		return &ValidationError{StartTime: e.StartTime, EndTime: e.EndTime}
	}
	return nil
}

// Equal compares events by value. Times must match as instants and in their
// UTC offset, since the wall clock decides the days an event covers.
func (e Event[T]) Equal(other Event[T]) bool {
	if e.Title != other.Title ||
		e.Description != other.Description ||
		!sameWallClock(e.StartTime, other.StartTime) ||
		!sameWallClock(e.EndTime, other.EndTime) ||
		e.Payload != other.Payload {
		return false
	}
	if e.Recurrence == nil || other.Recurrence == nil {
		return e.Recurrence == nil && other.Recurrence == nil
	}
	return e.Recurrence.Equal(*other.Recurrence)
}

// withRecurrence returns a copy of e referencing s.
func (e Event[T]) withRecurrence(s recurrence.Settings) Event[T] {
	e.Recurrence = &s
	return e
}

func sameWallClock(a, b time.Time) bool {
	_, aOffset := a.Zone()
	_, bOffset := b.Zone()
	return a.Equal(b) && aOffset == bOffset
}

func isMidnight(t time.Time) bool {
	h, m, s := t.Clock()
	return h == 0 && m == 0 && s == 0 && t.Nanosecond() == 0
}
