package postgresrepo

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/kirinyoku/campusgo/internal/repository"
)

type StaffRepo struct {
	db DB
}

func (r *StaffRepo) IsAssigned(ctx context.Context, eventID, staffID uuid.UUID) (bool, error) {
	const op = "postgresrepo.StaffRepo.IsAssigned"

	var ok bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS(
		     SELECT 1 FROM event_staff WHERE event_id = $1 AND staff_id = $2
		 )`,
		eventID, staffID,
	).Scan(&ok)
	if err != nil {
		return false, wrapDBErr(op, err)
	}

	return ok, nil
}

// Assign adds a staff member to an event.
//
// Returns:
//   - error: repository.ErrConflict if the assignment already exists.
//   - error: repository.ErrNotFound if the event does not exist.
func (r *StaffRepo) Assign(ctx context.Context, eventID, staffID uuid.UUID) error {
	const op = "postgresrepo.StaffRepo.Assign"

	if _, err := r.db.Exec(ctx,
		`INSERT INTO event_staff(event_id, staff_id)
		 VALUES ($1, $2)`,
		eventID, staffID,
	); err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

func (r *StaffRepo) Unassign(ctx context.Context, eventID, staffID uuid.UUID) error {
	const op = "postgresrepo.StaffRepo.Unassign"

	tag, err := r.db.Exec(ctx,
		`DELETE FROM event_staff WHERE event_id = $1 AND staff_id = $2`,
		eventID, staffID,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, repository.ErrNotFound)
	}

	return nil
}

func (r *StaffRepo) ListStaff(ctx context.Context, eventID uuid.UUID) ([]uuid.UUID, error) {
	const op = "postgresrepo.StaffRepo.ListStaff"

	rows, err := r.db.Query(ctx,
		`SELECT staff_id FROM event_staff WHERE event_id = $1 ORDER BY staff_id`,
		eventID,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	ids := []uuid.UUID{}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, wrapDBErr(op, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return ids, nil
}
