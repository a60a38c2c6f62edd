package app

import (
	"github.com/gorilla/mux"
)

// RegisterRoutes registers all HTTP routes on the router.
func RegisterRoutes(r *mux.Router, deps *Dependencies) {
	// Calendar days
	r.HandleFunc("/api/calendar/day", deps.ScheduleHandler.GetDay).Queries("date", "{date}").Methods("GET")
	r.HandleFunc("/api/calendar/day/full", deps.ScheduleHandler.GetFullDay).Queries("date", "{date}").Methods("GET")

	// Calendar events
	r.HandleFunc("/api/calendar/event", deps.ScheduleHandler.GetEvents).Methods("GET")
	r.HandleFunc("/api/calendar/event", deps.ScheduleHandler.CreateEvent).Methods("POST")
	r.HandleFunc("/api/calendar/event/batch", deps.ScheduleHandler.CreateEvents).Methods("POST")
	r.HandleFunc("/api/calendar/event/{eventUid}", deps.ScheduleHandler.GetEvent).Methods("GET")
	r.HandleFunc("/api/calendar/event/{eventUid}", deps.ScheduleHandler.UpdateEvent).Methods("PUT")
	r.HandleFunc("/api/calendar/event/{eventUid}", deps.ScheduleHandler.DeleteEvent).Methods("DELETE")
	r.HandleFunc("/api/calendar/event/{eventUid}/occurrence", deps.ScheduleHandler.DeleteOccurrence).
		Queries("date", "{date}", "mode", "{mode}").Methods("DELETE")

	// iCalendar feed
	r.HandleFunc("/api/calendar/ics", deps.ScheduleHandler.ExportICS).Methods("GET")
}
