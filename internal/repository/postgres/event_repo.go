package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"campusattend/internal/clock"
	"campusattend/internal/domain"
	"campusattend/internal/repository/watch"
)

const eventColumns = `id, title, description, date, location, created_by, rsvps, checked_in, created_at, updated_at`

// setColumns whitelists the array columns that AddToSet/RemoveFromSet may touch.
var setColumns = map[domain.SetField]string{
	domain.FieldRSVPs:     "rsvps",
	domain.FieldCheckedIn: "checked_in",
}

// defaultResyncInterval re-runs the upcoming query even without notifications,
// so events that drift into the past leave the snapshot.
const defaultResyncInterval = time.Minute

// ChangeSource signals that the events table changed.
type ChangeSource interface {
	Subscribe() (<-chan struct{}, func())
}

type eventRepository struct {
	DB      *sql.DB
	clock   clock.Clock
	changes ChangeSource
	logger  *slog.Logger
	resync  time.Duration
}

// NewEventRepository returns a postgres-backed event store. changes may be nil,
// in which case live queries only refresh on the resync interval.
func NewEventRepository(db *sql.DB, c clock.Clock, changes ChangeSource, logger *slog.Logger) domain.EventRepository {
	return &eventRepository{
		DB:      db,
		clock:   c,
		changes: changes,
		logger:  logger,
		resync:  defaultResyncInterval,
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*domain.Event, error) {
	e := &domain.Event{}
	var rsvps, checkedIn []string
	if err := row.Scan(
		&e.ID, &e.Title, &e.Description, &e.Date, &e.Location, &e.CreatedBy,
		pq.Array(&rsvps), pq.Array(&checkedIn), &e.CreatedAt, &e.UpdatedAt,
	); err != nil {
		return nil, err
	}
	e.RSVPs = domain.NewUserSet(rsvps...)
	e.CheckedIn = domain.NewUserSet(checkedIn...)
	return e, nil
}

func (r *eventRepository) Create(ctx context.Context, e *domain.Event) error {
	query := `
		INSERT INTO events (id, title, description, date, location, created_by, rsvps, checked_in, created_at, updated_at)
		VALUES (COALESCE(NULLIF($1, ''), gen_random_uuid()::text), $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`
	err := r.DB.QueryRowContext(ctx, query,
		e.ID, e.Title, e.Description, e.Date, e.Location, e.CreatedBy,
		pq.Array(e.RSVPs.Sorted()), pq.Array(e.CheckedIn.Sorted()), e.CreatedAt, e.UpdatedAt,
	).Scan(&e.ID)
	return translate(err)
}

func (r *eventRepository) GetByID(ctx context.Context, id string) (*domain.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE id = $1`
	e, err := scanEvent(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, translate(err)
	}
	return e, nil
}

// Update applies the non-nil fields of upd. Concurrent updates are last-writer-wins.
func (r *eventRepository) Update(ctx context.Context, id string, upd domain.EventUpdate, updatedAt time.Time) (*domain.Event, error) {
	query := `
		UPDATE events SET
			title = COALESCE($2, title),
			description = COALESCE($3, description),
			date = COALESCE($4, date),
			location = COALESCE($5, location),
			updated_at = $6
		WHERE id = $1
		RETURNING ` + eventColumns
	var probe domain.Event
	upd.Apply(&probe)
	e, err := scanEvent(r.DB.QueryRowContext(ctx, query, id,
		nullIfUnset(upd.Title != nil, probe.Title),
		nullIfUnset(upd.Description != nil, probe.Description),
		nullTime(upd.Date),
		nullIfUnset(upd.Location != nil, probe.Location),
		updatedAt,
	))
	if err != nil {
		return nil, translate(err)
	}
	return e, nil
}

func nullIfUnset(set bool, v string) sql.NullString {
	return sql.NullString{String: v, Valid: set}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func (r *eventRepository) Delete(ctx context.Context, id string) error {
	result, err := r.DB.ExecContext(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return translate(err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// AddToSet unions userID into the array column without introducing duplicates.
func (r *eventRepository) AddToSet(ctx context.Context, id string, field domain.SetField, userID string) error {
	col, ok := setColumns[field]
	if !ok {
		return fmt.Errorf("unknown set field %q: %w", field, domain.ErrInvalidInput)
	}
	query := fmt.Sprintf(`
		UPDATE events SET
			%[1]s = CASE WHEN $2 = ANY(%[1]s) THEN %[1]s ELSE array_append(%[1]s, $2) END,
			updated_at = CASE WHEN $2 = ANY(%[1]s) THEN updated_at ELSE $3 END
		WHERE id = $1
	`, col)
	err := r.execSetMutation(ctx, query, id, userID)
	if field == domain.FieldCheckedIn && isCheckViolation(err) {
		return fmt.Errorf("check in %s: %w", userID, domain.ErrNotRSVPd)
	}
	return err
}

// RemoveFromSet removes userID from the array column. Removing a non-member is a no-op.
func (r *eventRepository) RemoveFromSet(ctx context.Context, id string, field domain.SetField, userID string) error {
	col, ok := setColumns[field]
	if !ok {
		return fmt.Errorf("unknown set field %q: %w", field, domain.ErrInvalidInput)
	}
	query := fmt.Sprintf(`
		UPDATE events SET
			%[1]s = array_remove(%[1]s, $2),
			updated_at = CASE WHEN $2 = ANY(%[1]s) THEN $3 ELSE updated_at END
		WHERE id = $1
	`, col)
	err := r.execSetMutation(ctx, query, id, userID)
	if field == domain.FieldRSVPs && isCheckViolation(err) {
		return fmt.Errorf("remove rsvp %s: %w", userID, domain.ErrCheckedIn)
	}
	return err
}

func (r *eventRepository) execSetMutation(ctx context.Context, query, id, userID string) error {
	result, err := r.DB.ExecContext(ctx, query, id, userID, r.clock.Now())
	if err != nil {
		return translate(err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func isCheckViolation(err error) bool {
	var perr *pq.Error
	return errors.As(err, &perr) && perr.Code == "23514"
}

func (r *eventRepository) listUpcoming(ctx context.Context) ([]*domain.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE date >= $1 ORDER BY date ASC, id ASC`
	rows, err := r.DB.QueryContext(ctx, query, r.clock.Now())
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()
	events := make([]*domain.Event, 0)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, translate(err)
		}
		events = append(events, e)
	}
	return events, translate(rows.Err())
}

// WatchUpcoming re-runs the upcoming query on every change notification and
// on the resync interval. Query failures are delivered as snapshot errors.
func (r *eventRepository) WatchUpcoming(ctx context.Context) (domain.Subscription, error) {
	ctx, cancel := context.WithCancel(ctx)
	feed := watch.NewFeed(cancel)

	var changes <-chan struct{}
	unsubscribe := func() {}
	if r.changes != nil {
		changes, unsubscribe = r.changes.Subscribe()
	}

	refresh := func() {
		events, err := r.listUpcoming(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			r.logger.Warn("upcoming events query failed", "err", err)
		}
		feed.Publish(domain.EventsSnapshot{Events: events, Err: err})
	}

	go func() {
		defer unsubscribe()
		defer feed.Close()
		ticker := time.NewTicker(r.resync)
		defer ticker.Stop()

		refresh()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				refresh()
			case _, ok := <-changes:
				if !ok {
					changes = nil
					continue
				}
				refresh()
			}
		}
	}()
	return feed, nil
}

func (r *eventRepository) Ping(ctx context.Context) error {
	return translate(r.DB.PingContext(ctx))
}
