package schedule

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/klokku/eventkit/pkg/calendar"
	"github.com/klokku/eventkit/pkg/date"
	"github.com/klokku/eventkit/pkg/recurrence"
)

var ErrEventNotFound = errors.New("calendar event not found")

// Metadata is the payload every scheduled event carries. The UID keys the
// event in the repository.
type Metadata struct {
	UID uuid.UUID
}

type Event = calendar.Event[Metadata]

type EventDTO struct {
	UID         string               `json:"uid"`
	Title       string               `json:"title"`
	Description string               `json:"description,omitempty"`
	StartTime   time.Time            `json:"start"`
	EndTime     time.Time            `json:"end"`
	AllDay      bool                 `json:"allDay"`
	Recurrence  *recurrence.Settings `json:"recurrence,omitempty"`
}

func eventToDTO(e Event) EventDTO {
	dto := EventDTO{
		Title:       e.Title,
		Description: e.Description,
		StartTime:   e.StartTime,
		EndTime:     e.EndTime,
		AllDay:      e.IsFullDay(),
		Recurrence:  e.Recurrence,
	}
	if e.Payload.UID != uuid.Nil {
		dto.UID = e.Payload.UID.String()
	}
	return dto
}

// dtoToEvent converts a request body into an event. All-day events are moved
// to midnight of their start and end days. Recurrence settings get their
// defaults, and their end date is derived only when deriveEndDate is set: a
// series' end date is derived once, when the series is created, and stored
// events already carry the derived value.
func dtoToEvent(dto EventDTO, deriveEndDate bool) (Event, error) {
	e := Event{
		Title:       dto.Title,
		Description: dto.Description,
		StartTime:   dto.StartTime,
		EndTime:     dto.EndTime,
	}
	if dto.UID != "" {
		uid, err := uuid.Parse(dto.UID)
		if err != nil {
			return Event{}, err
		}
		e.Payload.UID = uid
	}
	if dto.AllDay {
		e.StartTime = date.Of(dto.StartTime).Time(dto.StartTime.Location())
		e.EndTime = date.Of(dto.EndTime).Time(dto.EndTime.Location())
	}
	if dto.Recurrence != nil {
		settings := *dto.Recurrence
		if settings.StartDate.IsZero() {
			settings.StartDate = e.Date()
		}
		if deriveEndDate {
			settings = recurrence.NewSettingsWithCalculatedEndDate(settings)
		} else {
			settings = recurrence.NewSettings(settings)
		}
		e.Recurrence = &settings
	}
	return e, nil
}

func eventsToDTOs(events []Event) []EventDTO {
	dtos := make([]EventDTO, 0, len(events))
	for _, e := range events {
		dtos = append(dtos, eventToDTO(e))
	}
	return dtos
}
