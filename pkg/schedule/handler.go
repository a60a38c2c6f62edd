package schedule

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/klokku/eventkit/internal/rest"
	"github.com/klokku/eventkit/internal/utils"
	"github.com/klokku/eventkit/pkg/calendar"
	"github.com/klokku/eventkit/pkg/date"
	log "github.com/sirupsen/logrus"
)

type Handler struct {
	schedule *Service
	clock    utils.Clock
}

func NewHandler(s *Service, clock utils.Clock) *Handler {
	return &Handler{schedule: s, clock: clock}
}

// GetDay godoc
// @Summary Events of a day
// @Description Stored events and recurring occurrences happening on the given date
// @Tags Calendar
// @Produce json
// @Param date query string true "Date (YYYY-MM-DD)"
// @Success 200 {array} EventDTO
// @Failure 400 {object} rest.ErrorResponse "Invalid date"
// @Router /api/calendar/day [get]
func (h *Handler) GetDay(w http.ResponseWriter, r *http.Request) {
	d, ok := dateParam(w, r)
	if !ok {
		return
	}
	log.Tracef("Getting events of %s", d)
	writeJSON(w, http.StatusOK, eventsToDTOs(h.schedule.EventsOnDay(d)))
}

// GetFullDay godoc
// @Summary Full-day events of a day
// @Tags Calendar
// @Produce json
// @Param date query string true "Date (YYYY-MM-DD)"
// @Success 200 {array} EventDTO
// @Failure 400 {object} rest.ErrorResponse "Invalid date"
// @Router /api/calendar/day/full [get]
func (h *Handler) GetFullDay(w http.ResponseWriter, r *http.Request) {
	d, ok := dateParam(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, eventsToDTOs(h.schedule.FullDayEvents(d)))
}

func (h *Handler) GetEvents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, eventsToDTOs(h.schedule.Events()))
}

func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	eventUid, ok := eventUidParam(w, r)
	if !ok {
		return
	}
	event, err := h.schedule.GetEvent(eventUid)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, eventToDTO(event))
}

// CreateEvent godoc
// @Summary Create an event
// @Tags Calendar
// @Accept json
// @Produce json
// @Param event body EventDTO true "Event"
// @Success 201 {object} EventDTO
// @Failure 400 {object} rest.ErrorResponse "Invalid request body"
// @Failure 422 {object} rest.ErrorResponse "Event ends before it starts"
// @Router /api/calendar/event [post]
func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var eventDTO EventDTO
	if err := json.NewDecoder(r.Body).Decode(&eventDTO); err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	event, err := dtoToEvent(eventDTO, true)
	if err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid event uid", err.Error())
		return
	}

	created, err := h.schedule.AddEvent(r.Context(), event)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, eventToDTO(created))
}

// CreateEvents stores a list of events at once. Either all of them are
// created or none.
func (h *Handler) CreateEvents(w http.ResponseWriter, r *http.Request) {
	var eventDTOs []EventDTO
	if err := json.NewDecoder(r.Body).Decode(&eventDTOs); err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	events := make([]Event, 0, len(eventDTOs))
	for _, dto := range eventDTOs {
		event, err := dtoToEvent(dto, true)
		if err != nil {
			rest.WriteError(w, http.StatusBadRequest, "Invalid event uid", err.Error())
			return
		}
		events = append(events, event)
	}

	created, err := h.schedule.AddEvents(r.Context(), events)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, eventsToDTOs(created))
}

func (h *Handler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	eventUid, ok := eventUidParam(w, r)
	if !ok {
		return
	}
	var eventDTO EventDTO
	if err := json.NewDecoder(r.Body).Decode(&eventDTO); err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	eventDTO.UID = ""
	event, err := dtoToEvent(eventDTO, false)
	if err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	event.Payload = Metadata{UID: eventUid}

	updated, err := h.schedule.UpdateEvent(r.Context(), event)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, eventToDTO(updated))
}

func (h *Handler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	eventUid, ok := eventUidParam(w, r)
	if !ok {
		return
	}
	if err := h.schedule.DeleteEvent(r.Context(), eventUid); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteOccurrence godoc
// @Summary Delete occurrences of a recurring event
// @Description mode is one of all, current, following. Responds with the
// @Description remaining series, or 204 when the series is gone.
// @Tags Calendar
// @Produce json
// @Param eventUid path string true "Event UID"
// @Param date query string true "Occurrence date (YYYY-MM-DD)"
// @Param mode query string true "Delete mode"
// @Success 200 {object} EventDTO
// @Success 204
// @Failure 400 {object} rest.ErrorResponse "Invalid date or mode"
// @Failure 404 {object} rest.ErrorResponse "Event not found"
// @Router /api/calendar/event/{eventUid}/occurrence [delete]
func (h *Handler) DeleteOccurrence(w http.ResponseWriter, r *http.Request) {
	eventUid, ok := eventUidParam(w, r)
	if !ok {
		return
	}
	d, ok := dateParam(w, r)
	if !ok {
		return
	}
	mode, err := calendar.ParseDeleteMode(r.URL.Query().Get("mode"))
	if err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid delete mode", "'mode' must be one of all, current, following")
		return
	}

	remaining, err := h.schedule.DeleteOccurrence(r.Context(), eventUid, d, mode)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if remaining == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, eventToDTO(*remaining))
}

// ExportICS godoc
// @Summary iCalendar feed of every event
// @Tags Calendar
// @Produce text/calendar
// @Success 200 {string} string "iCalendar data"
// @Router /api/calendar/ics [get]
func (h *Handler) ExportICS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="calendar.ics"`)
	w.WriteHeader(http.StatusOK)
	if err := WriteICS(w, h.schedule.Events(), h.clock.Now()); err != nil {
		log.Errorf("failed to write ics feed: %v", err)
	}
}

func dateParam(w http.ResponseWriter, r *http.Request) (date.Date, bool) {
	d, err := date.Parse(r.URL.Query().Get("date"))
	if err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid date format", "'date' must be in YYYY-MM-DD format")
		return date.Date{}, false
	}
	return d, true
}

func eventUidParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	eventUid, err := uuid.Parse(mux.Vars(r)["eventUid"])
	if err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid event uid", err.Error())
		return uuid.Nil, false
	}
	return eventUid, true
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrEventNotFound):
		rest.WriteError(w, http.StatusNotFound, "Event not found", err.Error())
	case errors.Is(err, calendar.ErrInvalidEventTime):
		rest.WriteError(w, http.StatusUnprocessableEntity, "Invalid event time", err.Error())
	default:
		log.Errorf("calendar request failed: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Errorf("failed to encode response: %v", err)
	}
}
