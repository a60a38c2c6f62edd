package event_bus

// CalendarEventsChangedType is published once after every successful
// mutation of a calendar event controller.
const CalendarEventsChangedType EventType = "calendar.events.changed"

type CalendarEventsChanged struct {
	// Operation names the public call that caused the change, e.g. "add".
	Operation string
	// EventCount is the number of stored events after the change.
	EventCount int
}
