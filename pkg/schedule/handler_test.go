package schedule

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/klokku/eventkit/internal/rest"
	"github.com/klokku/eventkit/internal/utils"
	"github.com/klokku/eventkit/pkg/date"
	"github.com/klokku/eventkit/pkg/recurrence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupHandlerTest(t *testing.T) (*Handler, *Service) {
	service, _ := setupService(t, true)
	clock := &utils.MockClock{}
	clock.SetNow(stamp)
	return NewHandler(service, clock), service
}

func jsonBody(t *testing.T, v any) *bytes.Buffer {
	t.Helper()
	body, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewBuffer(body)
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) rest.ErrorResponse {
	t.Helper()
	var errResponse rest.ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&errResponse))
	return errResponse
}

func TestCreateEvent(t *testing.T) {
	t.Run("should create an event", func(t *testing.T) {
		// given
		handler, service := setupHandlerTest(t)
		dto := EventDTO{Title: "standup", StartTime: at(2024, 1, 2, 9, 0), EndTime: at(2024, 1, 2, 9, 15)}
		req := httptest.NewRequest(http.MethodPost, "/api/calendar/event", jsonBody(t, dto))
		w := httptest.NewRecorder()

		// when
		handler.CreateEvent(w, req)

		// then
		assert.Equal(t, http.StatusCreated, w.Code)
		var created EventDTO
		require.NoError(t, json.NewDecoder(w.Body).Decode(&created))
		assert.NotEmpty(t, created.UID)
		assert.Equal(t, "standup", created.Title)
		assert.False(t, created.AllDay)
		assert.Len(t, service.Events(), 1)
	})

	t.Run("should normalize an all-day event to midnight", func(t *testing.T) {
		// given
		handler, service := setupHandlerTest(t)
		dto := EventDTO{Title: "holiday", StartTime: at(2024, 1, 2, 10, 0), EndTime: at(2024, 1, 3, 15, 0), AllDay: true}
		req := httptest.NewRequest(http.MethodPost, "/api/calendar/event", jsonBody(t, dto))
		w := httptest.NewRecorder()

		// when
		handler.CreateEvent(w, req)

		// then
		require.Equal(t, http.StatusCreated, w.Code)
		full := service.FullDayEvents(date.New(2024, 1, 3))
		require.Len(t, full, 1)
		assert.Equal(t, at(2024, 1, 2, 0, 0), full[0].StartTime)
		assert.Equal(t, at(2024, 1, 3, 0, 0), full[0].EndTime)
	})

	t.Run("should derive the end date of a series", func(t *testing.T) {
		// given
		handler, _ := setupHandlerTest(t)
		body := `{"title":"swimming","start":"2024-11-12T07:00:00Z","end":"2024-11-12T08:00:00Z",
			"recurrence":{"interval":3,"frequency":"weekly","endOn":"after","weekdays":[1,2]}}`
		req := httptest.NewRequest(http.MethodPost, "/api/calendar/event", strings.NewReader(body))
		w := httptest.NewRecorder()

		// when
		handler.CreateEvent(w, req)

		// then
		require.Equal(t, http.StatusCreated, w.Code)
		var created EventDTO
		require.NoError(t, json.NewDecoder(w.Body).Decode(&created))
		require.NotNil(t, created.Recurrence)
		assert.Equal(t, date.New(2024, 11, 12), created.Recurrence.StartDate)
		assert.Equal(t, date.New(2024, 11, 19), *created.Recurrence.EndDate)
	})

	t.Run("should reject a malformed body", func(t *testing.T) {
		handler, _ := setupHandlerTest(t)
		req := httptest.NewRequest(http.MethodPost, "/api/calendar/event", strings.NewReader("{"))
		w := httptest.NewRecorder()

		handler.CreateEvent(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "Invalid request body", decodeError(t, w).Error)
	})

	t.Run("should reject an event ending before it starts", func(t *testing.T) {
		handler, service := setupHandlerTest(t)
		dto := EventDTO{Title: "backwards", StartTime: at(2024, 1, 2, 9, 0), EndTime: at(2024, 1, 2, 8, 0)}
		req := httptest.NewRequest(http.MethodPost, "/api/calendar/event", jsonBody(t, dto))
		w := httptest.NewRecorder()

		handler.CreateEvent(w, req)

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Equal(t, "Invalid event time", decodeError(t, w).Error)
		assert.Empty(t, service.Events())
	})
}

func TestCreateEvents(t *testing.T) {
	handler, service := setupHandlerTest(t)
	dtos := []EventDTO{
		{Title: "first", StartTime: at(2024, 1, 2, 9, 0), EndTime: at(2024, 1, 2, 10, 0)},
		{Title: "second", StartTime: at(2024, 1, 2, 11, 0), EndTime: at(2024, 1, 2, 12, 0)},
	}
	req := httptest.NewRequest(http.MethodPost, "/api/calendar/event/batch", jsonBody(t, dtos))
	w := httptest.NewRecorder()

	handler.CreateEvents(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Len(t, service.Events(), 2)
}

func TestGetDay(t *testing.T) {
	t.Run("should return the events of the day", func(t *testing.T) {
		// given
		handler, service := setupHandlerTest(t)
		_, err := service.AddEvent(ctx, dailyWalk())
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodGet, "/api/calendar/day?date=2024-01-03", nil)
		w := httptest.NewRecorder()

		// when
		handler.GetDay(w, req)

		// then
		assert.Equal(t, http.StatusOK, w.Code)
		var dtos []EventDTO
		require.NoError(t, json.NewDecoder(w.Body).Decode(&dtos))
		require.Len(t, dtos, 1)
		assert.Equal(t, "walk", dtos[0].Title)
	})

	t.Run("should return an empty list for a free day", func(t *testing.T) {
		handler, _ := setupHandlerTest(t)
		req := httptest.NewRequest(http.MethodGet, "/api/calendar/day?date=2024-01-03", nil)
		w := httptest.NewRecorder()

		handler.GetDay(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, "[]", w.Body.String())
	})

	t.Run("should reject an invalid date", func(t *testing.T) {
		handler, _ := setupHandlerTest(t)
		req := httptest.NewRequest(http.MethodGet, "/api/calendar/day?date=03.01.2024", nil)
		w := httptest.NewRecorder()

		handler.GetDay(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		errResponse := decodeError(t, w)
		assert.Equal(t, "Invalid date format", errResponse.Error)
		assert.Contains(t, errResponse.Details, "YYYY-MM-DD")
	})
}

func TestGetFullDay(t *testing.T) {
	handler, service := setupHandlerTest(t)
	_, err := service.AddEvents(ctx, []Event{
		{Title: "vacation", StartTime: at(2024, 7, 1, 0, 0), EndTime: at(2024, 7, 5, 0, 0)},
		meeting("standup", at(2024, 7, 2, 9, 0)),
	})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/api/calendar/day/full?date=2024-07-02", nil)
	w := httptest.NewRecorder()

	handler.GetFullDay(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var dtos []EventDTO
	require.NoError(t, json.NewDecoder(w.Body).Decode(&dtos))
	require.Len(t, dtos, 1)
	assert.Equal(t, "vacation", dtos[0].Title)
	assert.True(t, dtos[0].AllDay)
}

func TestGetEvent(t *testing.T) {
	handler, service := setupHandlerTest(t)
	created, err := service.AddEvent(ctx, meeting("standup", at(2024, 1, 2, 9, 0)))
	require.NoError(t, err)

	t.Run("should return the event", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/calendar/event/"+created.Payload.UID.String(), nil)
		req = mux.SetURLVars(req, map[string]string{"eventUid": created.Payload.UID.String()})
		w := httptest.NewRecorder()

		handler.GetEvent(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("should return 404 for an unknown uid", func(t *testing.T) {
		unknown := uuid.New().String()
		req := mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/api/calendar/event/"+unknown, nil),
			map[string]string{"eventUid": unknown})
		w := httptest.NewRecorder()

		handler.GetEvent(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("should return 400 for a malformed uid", func(t *testing.T) {
		req := mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/api/calendar/event/abc", nil),
			map[string]string{"eventUid": "abc"})
		w := httptest.NewRecorder()

		handler.GetEvent(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestUpdateEvent(t *testing.T) {
	t.Run("should update the event", func(t *testing.T) {
		// given
		handler, service := setupHandlerTest(t)
		created, err := service.AddEvent(ctx, meeting("standup", at(2024, 1, 2, 9, 0)))
		require.NoError(t, err)
		uid := created.Payload.UID.String()
		dto := EventDTO{Title: "retro", StartTime: at(2024, 1, 2, 15, 0), EndTime: at(2024, 1, 2, 16, 0)}
		req := mux.SetURLVars(httptest.NewRequest(http.MethodPut, "/api/calendar/event/"+uid, jsonBody(t, dto)),
			map[string]string{"eventUid": uid})
		w := httptest.NewRecorder()

		// when
		handler.UpdateEvent(w, req)

		// then
		assert.Equal(t, http.StatusOK, w.Code)
		events := service.Events()
		require.Len(t, events, 1)
		assert.Equal(t, "retro", events[0].Title)
		assert.Equal(t, created.Payload, events[0].Payload)
	})

	t.Run("should keep the derived end date of a series saved unchanged", func(t *testing.T) {
		// given
		handler, service := setupHandlerTest(t)
		dto := EventDTO{
			Title:     "stretching",
			StartTime: at(2024, 1, 1, 7, 0),
			EndTime:   at(2024, 1, 1, 7, 30),
			Recurrence: &recurrence.Settings{
				Interval:  3,
				Frequency: recurrence.Daily,
				EndOn:     recurrence.After,
			},
		}
		w := httptest.NewRecorder()
		handler.CreateEvent(w, httptest.NewRequest(http.MethodPost, "/api/calendar/event", jsonBody(t, dto)))
		require.Equal(t, http.StatusCreated, w.Code)
		var created EventDTO
		require.NoError(t, json.NewDecoder(w.Body).Decode(&created))
		require.NotNil(t, created.Recurrence.EndDate)
		assert.Equal(t, date.New(2024, 1, 3), *created.Recurrence.EndDate)

		for range 2 {
			// when
			getReq := mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/api/calendar/event/"+created.UID, nil),
				map[string]string{"eventUid": created.UID})
			getW := httptest.NewRecorder()
			handler.GetEvent(getW, getReq)
			require.Equal(t, http.StatusOK, getW.Code)
			var fetched EventDTO
			require.NoError(t, json.NewDecoder(getW.Body).Decode(&fetched))

			putReq := mux.SetURLVars(httptest.NewRequest(http.MethodPut, "/api/calendar/event/"+created.UID, jsonBody(t, fetched)),
				map[string]string{"eventUid": created.UID})
			putW := httptest.NewRecorder()
			handler.UpdateEvent(putW, putReq)

			// then
			require.Equal(t, http.StatusOK, putW.Code)
			events := service.Events()
			require.Len(t, events, 1)
			require.NotNil(t, events[0].Recurrence.EndDate)
			assert.Equal(t, date.New(2024, 1, 3), *events[0].Recurrence.EndDate)
		}
	})

	t.Run("should return 404 for an unknown uid", func(t *testing.T) {
		handler, _ := setupHandlerTest(t)
		uid := uuid.New().String()
		dto := EventDTO{Title: "retro", StartTime: at(2024, 1, 2, 15, 0), EndTime: at(2024, 1, 2, 16, 0)}
		req := mux.SetURLVars(httptest.NewRequest(http.MethodPut, "/api/calendar/event/"+uid, jsonBody(t, dto)),
			map[string]string{"eventUid": uid})
		w := httptest.NewRecorder()

		handler.UpdateEvent(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "Event not found", decodeError(t, w).Error)
	})
}

func TestDeleteEvent(t *testing.T) {
	handler, service := setupHandlerTest(t)
	created, err := service.AddEvent(ctx, meeting("standup", at(2024, 1, 2, 9, 0)))
	require.NoError(t, err)
	uid := created.Payload.UID.String()
	req := mux.SetURLVars(httptest.NewRequest(http.MethodDelete, "/api/calendar/event/"+uid, nil),
		map[string]string{"eventUid": uid})
	w := httptest.NewRecorder()

	handler.DeleteEvent(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, service.Events())
}

func TestDeleteOccurrence(t *testing.T) {
	newRequest := func(uid, query string) *http.Request {
		req := httptest.NewRequest(http.MethodDelete, "/api/calendar/event/"+uid+"/occurrence?"+query, nil)
		return mux.SetURLVars(req, map[string]string{"eventUid": uid})
	}

	t.Run("should end the series for following", func(t *testing.T) {
		// given
		handler, service := setupHandlerTest(t)
		series, err := service.AddEvent(ctx, dailyWalk())
		require.NoError(t, err)
		w := httptest.NewRecorder()

		// when
		handler.DeleteOccurrence(w, newRequest(series.Payload.UID.String(), "date=2024-01-05&mode=following"))

		// then
		assert.Equal(t, http.StatusOK, w.Code)
		var remaining EventDTO
		require.NoError(t, json.NewDecoder(w.Body).Decode(&remaining))
		require.NotNil(t, remaining.Recurrence)
		assert.Equal(t, date.New(2024, 1, 4), *remaining.Recurrence.EndDate)
	})

	t.Run("should respond with no content when the series is gone", func(t *testing.T) {
		handler, service := setupHandlerTest(t)
		series, err := service.AddEvent(ctx, dailyWalk())
		require.NoError(t, err)
		w := httptest.NewRecorder()

		handler.DeleteOccurrence(w, newRequest(series.Payload.UID.String(), "date=2024-01-05&mode=all"))

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Empty(t, service.Events())
	})

	t.Run("should reject an unknown mode", func(t *testing.T) {
		handler, service := setupHandlerTest(t)
		series, err := service.AddEvent(ctx, dailyWalk())
		require.NoError(t, err)
		w := httptest.NewRecorder()

		handler.DeleteOccurrence(w, newRequest(series.Payload.UID.String(), "date=2024-01-05&mode=everything"))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "Invalid delete mode", decodeError(t, w).Error)
		assert.Len(t, service.Events(), 1)
	})

	t.Run("should return 404 for an unknown uid", func(t *testing.T) {
		handler, _ := setupHandlerTest(t)
		w := httptest.NewRecorder()

		handler.DeleteOccurrence(w, newRequest(uuid.New().String(), "date=2024-01-05&mode=current"))

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestExportICS(t *testing.T) {
	handler, service := setupHandlerTest(t)
	series := dailyWalk()
	settings := series.Recurrence.WithExcludedDate(date.New(2024, 1, 3))
	series.Recurrence = &settings
	_, err := service.AddEvent(ctx, series)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/api/calendar/ics", nil)
	w := httptest.NewRecorder()

	handler.ExportICS(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/calendar; charset=utf-8", w.Header().Get("Content-Type"))
	body := w.Body.String()
	assert.Contains(t, body, "BEGIN:VCALENDAR")
	assert.Contains(t, body, "RRULE:FREQ=DAILY")
	assert.Contains(t, body, "EXDATE:20240103T090000Z")
	assert.Contains(t, body, "DTSTAMP:"+stamp.Format("20060102T150405Z"))
}

func TestEventDTO_RecurrenceJSON(t *testing.T) {
	end := date.New(2024, 1, 10)
	dto := eventToDTO(Event{
		Title:      "walk",
		StartTime:  at(2024, 1, 1, 9, 0),
		EndTime:    at(2024, 1, 1, 10, 0),
		Recurrence: &recurrence.Settings{StartDate: date.New(2024, 1, 1), EndDate: &end, Interval: 1, Frequency: recurrence.Daily, EndOn: recurrence.On, Weekdays: []int{0}},
		Payload:    Metadata{UID: uuid.MustParse("7d444840-9dc0-11d1-b245-5ffdce74fad2")},
	})

	body, err := json.Marshal(dto)
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"uid": "7d444840-9dc0-11d1-b245-5ffdce74fad2",
		"title": "walk",
		"start": "2024-01-01T09:00:00Z",
		"end": "2024-01-01T10:00:00Z",
		"allDay": false,
		"recurrence": {
			"startDate": "2024-01-01",
			"endDate": "2024-01-10",
			"interval": 1,
			"frequency": "daily",
			"endOn": "on",
			"weekdays": [0]
		}
	}`, string(body))
}
