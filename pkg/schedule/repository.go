package schedule

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/klokku/eventkit/pkg/recurrence"
	log "github.com/sirupsen/logrus"
)

type Repository interface {
	WithTransaction(ctx context.Context, fn func(repo Repository) error) error
	StoreEvent(ctx context.Context, event Event) (uuid.UUID, error)
	GetEvents(ctx context.Context) ([]Event, error)
	UpdateEvent(ctx context.Context, event Event) error
	DeleteEvent(ctx context.Context, eventUid uuid.UUID) error
}

type RepositoryImpl struct {
	db *pgxpool.Pool
	tx pgx.Tx
}

func NewRepository(db *pgxpool.Pool) *RepositoryImpl {
	return &RepositoryImpl{db: db}
}

// getQueryer returns the appropriate database interface for queries (either tx or db)
func (r *RepositoryImpl) getQueryer() interface {
	Exec(ctx context.Context, query string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, query string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, query string, args ...interface{}) pgx.Row
} {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

func (r *RepositoryImpl) WithTransaction(ctx context.Context, fn func(repo Repository) error) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		// The Rollback will be a no-op if the transaction was already committed
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			log.Errorf("rollback error: %v", rbErr)
		}
	}()

	txRepo := &RepositoryImpl{db: r.db, tx: tx}

	if err := fn(txRepo); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

func (r *RepositoryImpl) StoreEvent(ctx context.Context, event Event) (uuid.UUID, error) {
	query := `INSERT INTO calendar_event (
                            uid,
                            title,
                            description,
                            start_time,
                            start_utc_offset,
                            end_time,
                            end_utc_offset,
                            recurrence
						) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	recurrenceJson, err := marshalRecurrence(event.Recurrence)
	if err != nil {
		return uuid.Nil, err
	}

	uid := uuid.New()
	_, err = r.getQueryer().Exec(ctx, query,
		uid,
		event.Title,
		event.Description,
		event.StartTime,
		utcOffset(event.StartTime),
		event.EndTime,
		utcOffset(event.EndTime),
		recurrenceJson,
	)
	if err != nil {
		err := fmt.Errorf("could not execute query: %w", err)
		log.Error(err)
		return uuid.Nil, err
	}

	return uid, nil
}

func (r *RepositoryImpl) GetEvents(ctx context.Context) ([]Event, error) {
	query := `SELECT uid, title, description, start_time, start_utc_offset, end_time, end_utc_offset, recurrence
              FROM calendar_event
			  ORDER BY start_time, created_at`

	rows, err := r.getQueryer().Query(ctx, query)
	if err != nil {
		err := fmt.Errorf("could not query calendar events: %w", err)
		log.Error(err)
		return nil, err
	}
	defer rows.Close()

	events := make([]Event, 0, 10)
	for rows.Next() {
		var uid uuid.UUID
		var title, description string
		var startTime, endTime time.Time
		var startOffset, endOffset int
		var recurrenceJson []byte
		err := rows.Scan(&uid, &title, &description, &startTime, &startOffset, &endTime, &endOffset, &recurrenceJson)
		if err != nil {
			err := fmt.Errorf("could not scan row: %w", err)
			log.Error(err)
			return nil, err
		}
		settings, err := unmarshalRecurrence(recurrenceJson)
		if err != nil {
			err := fmt.Errorf("could not decode recurrence of event %s: %w", uid, err)
			log.Error(err)
			return nil, err
		}
		events = append(events, Event{
			Title:       title,
			Description: description,
			StartTime:   inOffset(startTime, startOffset),
			EndTime:     inOffset(endTime, endOffset),
			Recurrence:  settings,
			Payload:     Metadata{UID: uid},
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("could not read calendar events: %w", err)
	}
	return events, nil
}

func (r *RepositoryImpl) UpdateEvent(ctx context.Context, event Event) error {
	query := `UPDATE calendar_event
			  SET title = $1, description = $2, start_time = $3, start_utc_offset = $4,
			      end_time = $5, end_utc_offset = $6, recurrence = $7
			  WHERE uid = $8`

	recurrenceJson, err := marshalRecurrence(event.Recurrence)
	if err != nil {
		return err
	}

	result, err := r.getQueryer().Exec(ctx, query,
		event.Title,
		event.Description,
		event.StartTime,
		utcOffset(event.StartTime),
		event.EndTime,
		utcOffset(event.EndTime),
		recurrenceJson,
		event.Payload.UID,
	)
	if err != nil {
		err := fmt.Errorf("could not execute query: %w", err)
		log.Error(err)
		return err
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("update event %s: %w", event.Payload.UID, ErrEventNotFound)
	}
	return nil
}

func (r *RepositoryImpl) DeleteEvent(ctx context.Context, eventUid uuid.UUID) error {
	query := `DELETE FROM calendar_event WHERE uid = $1`
	result, err := r.getQueryer().Exec(ctx, query, eventUid)
	if err != nil {
		err := fmt.Errorf("could not execute query: %w", err)
		log.Error(err)
		return err
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("delete event %s: %w", eventUid, ErrEventNotFound)
	}
	return nil
}

// The wall clock of an event decides which days it covers, so the UTC offset
// is stored next to every instant and restored on read.
func utcOffset(t time.Time) int {
	_, offset := t.Zone()
	return offset
}

func inOffset(t time.Time, offset int) time.Time {
	if offset == 0 {
		return t.UTC()
	}
	return t.In(time.FixedZone("", offset))
}

func marshalRecurrence(settings *recurrence.Settings) ([]byte, error) {
	if settings == nil {
		return nil, nil
	}
	data, err := json.Marshal(settings)
	if err != nil {
		return nil, fmt.Errorf("could not encode recurrence: %w", err)
	}
	return data, nil
}

func unmarshalRecurrence(data []byte) (*recurrence.Settings, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var settings recurrence.Settings
	if err := json.Unmarshal(data, &settings); err != nil {
		return nil, err
	}
	return &settings, nil
}
