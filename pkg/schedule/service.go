package schedule

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/klokku/eventkit/internal/event_bus"
	"github.com/klokku/eventkit/pkg/calendar"
	"github.com/klokku/eventkit/pkg/date"
	log "github.com/sirupsen/logrus"
)

// Service hosts a single calendar controller and keeps it in step with the
// repository. The controller is not safe for concurrent use, so every method
// holds the service lock.
type Service struct {
	mu             sync.Mutex
	repo           Repository
	calendar       *calendar.Controller[Metadata]
	includeFullDay bool
}

func NewService(repo Repository, includeFullDay bool, opts ...calendar.Option[Metadata]) *Service {
	c := calendar.NewController(opts...)
	event_bus.SubscribeTyped(c.Bus(), event_bus.CalendarEventsChangedType,
		func(e event_bus.EventT[event_bus.CalendarEventsChanged]) error {
			log.Debugf("calendar changed by %s, %d events stored", e.Data.Operation, e.Data.EventCount)
			return nil
		})
	return &Service{
		repo:           repo,
		calendar:       c,
		includeFullDay: includeFullDay,
	}
}

// Load reads every stored event into the calendar.
func (s *Service) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	events, err := s.repo.GetEvents(ctx)
	if err != nil {
		return fmt.Errorf("failed to load events: %w", err)
	}
	if err := s.calendar.AddAll(events...); err != nil {
		return fmt.Errorf("failed to load events: %w", err)
	}
	log.Infof("Loaded %d calendar events", len(events))
	return nil
}

func (s *Service) AddEvent(ctx context.Context, event Event) (Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := event.Validate(); err != nil {
		return Event{}, err
	}
	eventUid, err := s.repo.StoreEvent(ctx, event)
	if err != nil {
		return Event{}, fmt.Errorf("failed to store event: %w", err)
	}
	event.Payload = Metadata{UID: eventUid}

	if err := s.calendar.Add(event); err != nil {
		return Event{}, err
	}
	return event, nil
}

// AddEvents stores all events in one transaction. Nothing is stored when any
// of them is invalid.
func (s *Service) AddEvents(ctx context.Context, events []Event) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for _, e := range events {
		if err := e.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	stored := make([]Event, 0, len(events))
	err := s.repo.WithTransaction(ctx, func(repo Repository) error {
		for _, e := range events {
			eventUid, err := repo.StoreEvent(ctx, e)
			if err != nil {
				return fmt.Errorf("failed to store event: %w", err)
			}
			e.Payload = Metadata{UID: eventUid}
			stored = append(stored, e)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to perform transaction: %w", err)
	}

	if err := s.calendar.AddAll(stored...); err != nil {
		return nil, err
	}
	return stored, nil
}

func (s *Service) GetEvent(eventUid uuid.UUID) (Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.find(eventUid)
}

// UpdateEvent replaces the stored event with the same UID.
func (s *Service) UpdateEvent(ctx context.Context, event Event) (Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, err := s.find(event.Payload.UID)
	if err != nil {
		return Event{}, err
	}
	if err := event.Validate(); err != nil {
		return Event{}, err
	}
	if err := s.repo.UpdateEvent(ctx, event); err != nil {
		return Event{}, fmt.Errorf("failed to update event: %w", err)
	}

	if err := s.calendar.Update(old, event); err != nil {
		return Event{}, err
	}
	return event, nil
}

func (s *Service) DeleteEvent(ctx context.Context, eventUid uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, err := s.find(eventUid)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteEvent(ctx, eventUid); err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}
	s.calendar.Remove(old)
	return nil
}

// DeleteOccurrence deletes occurrences of a series starting from d. The
// calendar decides whether the series survives; the outcome is then written
// to the repository and undone in the calendar when that write fails.
func (s *Service) DeleteOccurrence(ctx context.Context, eventUid uuid.UUID, d date.Date, mode calendar.DeleteMode) (*Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, err := s.find(eventUid)
	if err != nil {
		return nil, err
	}
	if err := s.calendar.DeleteRecurrenceEvent(d, old, mode); err != nil {
		return nil, err
	}

	current, err := s.find(eventUid)
	if errors.Is(err, ErrEventNotFound) {
		if err := s.repo.DeleteEvent(ctx, eventUid); err != nil {
			s.restore(nil, old)
			return nil, fmt.Errorf("failed to delete event: %w", err)
		}
		return nil, nil
	}

	if err := s.repo.UpdateEvent(ctx, current); err != nil {
		s.restore(&current, old)
		return nil, fmt.Errorf("failed to update event: %w", err)
	}
	return &current, nil
}

func (s *Service) restore(current *Event, old Event) {
	var err error
	if current != nil {
		err = s.calendar.Update(*current, old)
	} else {
		err = s.calendar.Add(old)
	}
	if err != nil {
		log.Errorf("failed to restore event %s: %v", old.Payload.UID, err)
	}
}

func (s *Service) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calendar.Events()
}

// EventsOnDay returns everything happening on d, recurring occurrences
// included. Full-day events are left out unless the service includes them.
func (s *Service) EventsOnDay(d date.Date) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	events := s.calendar.AllEventsOnDay(d)
	if s.includeFullDay {
		return events
	}
	out := make([]Event, 0, len(events))
	for _, e := range events {
		if !e.IsFullDay() {
			out = append(out, e)
		}
	}
	return out
}

func (s *Service) FullDayEvents(d date.Date) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calendar.FullDayEvents(d)
}

func (s *Service) find(eventUid uuid.UUID) (Event, error) {
	e, ok := s.calendar.Find(func(e Event) bool {
		return e.Payload.UID == eventUid
	})
	if !ok {
		return Event{}, fmt.Errorf("event %s: %w", eventUid, ErrEventNotFound)
	}
	return e, nil
}
