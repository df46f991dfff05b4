package postgresrepo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kirinyoku/campusgo/internal/domain"
	"github.com/kirinyoku/campusgo/internal/repository"
)

type CheckInRepo struct {
	db DB
}

// Insert records a check-in exactly once. The unique (user_id, event_id)
// constraint arbitrates concurrent attempts: the loser inserts nothing and
// gets repository.ErrConflict.
func (r *CheckInRepo) Insert(ctx context.Context, c *domain.CheckIn) error {
	const op = "postgresrepo.CheckInRepo.Insert"

	var id uuid.UUID
	err := r.db.QueryRow(ctx,
		`INSERT INTO check_ins(id, user_id, event_id, method, checked_in_by_staff_id, checked_in_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (user_id, event_id) DO NOTHING
		 RETURNING id`,
		c.ID, c.UserID, c.EventID, string(c.Method), c.CheckedInBy, c.CheckedInAt,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%s: %w", op, repository.ErrConflict)
		}
		return wrapDBErr(op, err)
	}

	return nil
}

// GetByUserAndEvent returns the check-in of a user for an event.
//
// Returns:
//   - error: repository.ErrNotFound if the user has not checked in.
func (r *CheckInRepo) GetByUserAndEvent(ctx context.Context, userID, eventID uuid.UUID) (*domain.CheckIn, error) {
	const op = "postgresrepo.CheckInRepo.GetByUserAndEvent"

	var (
		c      domain.CheckIn
		method string
	)
	err := r.db.QueryRow(ctx,
		`SELECT id, user_id, event_id, method, checked_in_by_staff_id, checked_in_at
		 FROM check_ins
		 WHERE user_id = $1 AND event_id = $2`,
		userID, eventID,
	).Scan(&c.ID, &c.UserID, &c.EventID, &method, &c.CheckedInBy, &c.CheckedInAt)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	c.Method = domain.CheckInMethod(method)

	return &c, nil
}

func (r *CheckInRepo) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]domain.CheckIn, error) {
	const op = "postgresrepo.CheckInRepo.ListByEvent"

	rows, err := r.db.Query(ctx,
		`SELECT id, user_id, event_id, method, checked_in_by_staff_id, checked_in_at
		 FROM check_ins
		 WHERE event_id = $1
		 ORDER BY checked_in_at DESC`,
		eventID,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	out := []domain.CheckIn{}
	for rows.Next() {
		var (
			c      domain.CheckIn
			method string
		)
		if err := rows.Scan(&c.ID, &c.UserID, &c.EventID, &method, &c.CheckedInBy, &c.CheckedInAt); err != nil {
			return nil, wrapDBErr(op, err)
		}
		c.Method = domain.CheckInMethod(method)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}
