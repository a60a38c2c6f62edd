package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/klokku/eventkit/internal/config"
	"github.com/klokku/eventkit/internal/database"
	"github.com/klokku/eventkit/pkg/schedule"
	log "github.com/sirupsen/logrus"
)

// Application wires configuration, database, router, and server lifecycle.
type Application struct {
	cfg       config.Application
	db        *pgxpool.Pool
	router    *mux.Router
	srv       *http.Server
	publisher *schedule.ICSPublisher
}

// NewApplication constructs the full HTTP application, ready to Run().
func NewApplication(ctx context.Context, configPath string) (*Application, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	db, err := openDatabase(ctx, cfg, true)
	if err != nil {
		return nil, err
	}
	deps, err := loadDependencies(ctx, db, cfg)
	if err != nil {
		return nil, err
	}

	r := mux.NewRouter()
	SetupMiddleware(r)
	RegisterRoutes(r, deps)

	srv := &http.Server{
		Handler:      r,
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		WriteTimeout: 15 * time.Second,
		ReadTimeout:  15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	a := &Application{cfg: cfg, db: db, router: r, srv: srv}
	if cfg.ICS.Path != "" {
		a.publisher = schedule.NewICSPublisher(deps.ScheduleService, deps.Clock, cfg.ICS.Path)
	}
	return a, nil
}

// Run serves HTTP until ctx is cancelled, then shuts the server down.
func (a *Application) Run(ctx context.Context) error {
	defer a.close()

	if a.publisher != nil {
		if err := a.publisher.Start(a.cfg.ICS.Schedule); err != nil {
			return err
		}
	}

	errs := make(chan error, 1)
	go func() {
		log.Infof("Starting server on %s", a.srv.Addr)
		errs <- a.srv.ListenAndServe()
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
		log.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errs; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (a *Application) close() {
	if a.publisher != nil {
		a.publisher.Stop()
	}
	if a.db != nil {
		a.db.Close()
	}
}

// Migrate applies the database migrations without starting the server.
func Migrate(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Calendar.Persistence != config.PersistencePostgres {
		return fmt.Errorf("nothing to migrate with %q persistence", cfg.Calendar.Persistence)
	}
	return database.Migrate(cfg.Database)
}

// ExportICS writes the iCalendar feed of every stored event to w.
func ExportICS(ctx context.Context, configPath string, w io.Writer) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	db, err := openDatabase(ctx, cfg, false)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}
	deps, err := loadDependencies(ctx, db, cfg)
	if err != nil {
		return err
	}
	return schedule.WriteICS(w, deps.ScheduleService.Events(), deps.Clock.Now())
}

// openDatabase returns nil when the calendar is kept in memory.
func openDatabase(ctx context.Context, cfg config.Application, migrate bool) (*pgxpool.Pool, error) {
	if cfg.Calendar.Persistence != config.PersistencePostgres {
		return nil, nil
	}
	if migrate {
		if err := database.Migrate(cfg.Database); err != nil {
			return nil, err
		}
	}
	return database.Open(ctx, cfg.Database)
}

func loadDependencies(ctx context.Context, db *pgxpool.Pool, cfg config.Application) (*Dependencies, error) {
	deps := BuildDependencies(db, cfg)
	if err := deps.ScheduleService.Load(ctx); err != nil {
		if db != nil {
			db.Close()
		}
		return nil, err
	}
	return deps, nil
}
