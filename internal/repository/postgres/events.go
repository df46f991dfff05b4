package postgresrepo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kirinyoku/campusgo/internal/domain"
)

type EventRepo struct {
	db DB
}

const eventColumns = `id, title, capacity, start_date, end_date, status`

func scanEvent(row pgx.Row, e *domain.Event) error {
	var status string
	if err := row.Scan(&e.ID, &e.Title, &e.Capacity, &e.StartDate, &e.EndDate, &status); err != nil {
		return err
	}
	e.Status = domain.EventStatus(status)
	return nil
}

// Get retrieves an event by its ID.
//
// Returns:
//   - *domain.Event: the event when found.
//   - error: repository.ErrNotFound if the event is not found.
func (r *EventRepo) Get(ctx context.Context, id uuid.UUID) (*domain.Event, error) {
	const op = "postgresrepo.EventRepo.Get"

	var e domain.Event
	err := scanEvent(r.db.QueryRow(ctx,
		`SELECT `+eventColumns+`
		 FROM events WHERE id = $1`,
		id,
	), &e)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &e, nil
}

// GetForUpdate retrieves an event and locks its row until the surrounding
// transaction ends. Registrations for one event serialize on this lock.
//
// Returns:
//   - *domain.Event: the event when found.
//   - error: repository.ErrNotFound if the event is not found.
func (r *EventRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Event, error) {
	const op = "postgresrepo.EventRepo.GetForUpdate"

	var e domain.Event
	err := scanEvent(r.db.QueryRow(ctx,
		`SELECT `+eventColumns+`
		 FROM events WHERE id = $1
		 FOR UPDATE`,
		id,
	), &e)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &e, nil
}

// ListStartingBetween lists published events whose start falls in [from, to].
func (r *EventRepo) ListStartingBetween(ctx context.Context, from, to time.Time) ([]domain.Event, error) {
	const op = "postgresrepo.EventRepo.ListStartingBetween"

	return r.list(ctx, op,
		`SELECT `+eventColumns+`
		 FROM events
		 WHERE status = 'PUBLISHED' AND start_date BETWEEN $1 AND $2
		 ORDER BY start_date`,
		from, to,
	)
}

// ListEndingBetween lists published events whose end falls in [from, to].
func (r *EventRepo) ListEndingBetween(ctx context.Context, from, to time.Time) ([]domain.Event, error) {
	const op = "postgresrepo.EventRepo.ListEndingBetween"

	return r.list(ctx, op,
		`SELECT `+eventColumns+`
		 FROM events
		 WHERE status = 'PUBLISHED' AND end_date BETWEEN $1 AND $2
		 ORDER BY end_date`,
		from, to,
	)
}

func (r *EventRepo) list(ctx context.Context, op, sql string, args ...any) ([]domain.Event, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	var out []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := scanEvent(rows, &e); err != nil {
			return nil, wrapDBErr(op, err)
		}

		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}
