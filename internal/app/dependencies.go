package app

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/klokku/eventkit/internal/config"
	"github.com/klokku/eventkit/internal/event_bus"
	"github.com/klokku/eventkit/internal/utils"
	"github.com/klokku/eventkit/pkg/calendar"
	"github.com/klokku/eventkit/pkg/schedule"
	log "github.com/sirupsen/logrus"
)

// Dependencies holds all services and handlers for the application.
type Dependencies struct {
	Clock    utils.Clock
	EventBus *event_bus.EventBus

	ScheduleRepository schedule.Repository
	ScheduleService    *schedule.Service
	ScheduleHandler    *schedule.Handler
}

// BuildDependencies initializes and wires all application services and handlers.
// db is nil when the calendar is kept in memory only.
func BuildDependencies(db *pgxpool.Pool, cfg config.Application) *Dependencies {
	deps := &Dependencies{}

	deps.Clock = utils.SystemClock{}
	deps.EventBus = event_bus.NewEventBus()

	if db != nil {
		deps.ScheduleRepository = schedule.NewRepository(db)
	} else {
		log.Warn("Calendar persistence is in memory, events are lost on restart")
		deps.ScheduleRepository = schedule.NewRepositoryStub()
	}
	deps.ScheduleService = schedule.NewService(
		deps.ScheduleRepository,
		cfg.Calendar.IncludeFullDay,
		calendar.WithClock[schedule.Metadata](deps.Clock),
		calendar.WithEventBus[schedule.Metadata](deps.EventBus),
	)
	deps.ScheduleHandler = schedule.NewHandler(deps.ScheduleService, deps.Clock)

	return deps
}
