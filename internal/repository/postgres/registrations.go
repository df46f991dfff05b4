package postgresrepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kirinyoku/campusgo/internal/domain"
	"github.com/kirinyoku/campusgo/internal/repository"
)

type RegistrationRepo struct {
	db DB
}

const registrationColumns = `id, user_id, event_id, code, status, registered_at`

func scanRegistration(row pgx.Row, r *domain.Registration) error {
	var status string
	if err := row.Scan(&r.ID, &r.UserID, &r.EventID, &r.Code, &status, &r.RegisteredAt); err != nil {
		return err
	}
	r.Status = domain.RegistrationStatus(status)
	return nil
}

// Insert persists a registration. A colliding code leaves the transaction
// usable so the caller can retry with a fresh code.
//
// Returns:
//   - error: repository.ErrCodeTaken if the code is already used.
//   - error: repository.ErrConflict if the user is already registered.
func (r *RegistrationRepo) Insert(ctx context.Context, reg *domain.Registration) error {
	const op = "postgresrepo.RegistrationRepo.Insert"

	var id uuid.UUID
	err := r.db.QueryRow(ctx,
		`INSERT INTO registrations(id, user_id, event_id, code, status, registered_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (code) DO NOTHING
		 RETURNING id`,
		reg.ID, reg.UserID, reg.EventID, reg.Code, string(reg.Status), reg.RegisteredAt,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%s: %w", op, repository.ErrCodeTaken)
		}
		return wrapDBErr(op, err)
	}

	return nil
}

// Get retrieves a registration by its ID.
//
// Returns:
//   - error: repository.ErrNotFound if the registration is not found.
func (r *RegistrationRepo) Get(ctx context.Context, id uuid.UUID) (*domain.Registration, error) {
	const op = "postgresrepo.RegistrationRepo.Get"

	var reg domain.Registration
	err := scanRegistration(r.db.QueryRow(ctx,
		`SELECT `+registrationColumns+`
		 FROM registrations WHERE id = $1`,
		id,
	), &reg)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &reg, nil
}

// GetByCode resolves a scanned ticket code.
//
// Returns:
//   - error: repository.ErrNotFound if no registration carries the code.
func (r *RegistrationRepo) GetByCode(ctx context.Context, code string) (*domain.Registration, error) {
	const op = "postgresrepo.RegistrationRepo.GetByCode"

	var reg domain.Registration
	err := scanRegistration(r.db.QueryRow(ctx,
		`SELECT `+registrationColumns+`
		 FROM registrations WHERE code = $1`,
		code,
	), &reg)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &reg, nil
}

func (r *RegistrationRepo) GetByUserAndEvent(ctx context.Context, userID, eventID uuid.UUID) (*domain.Registration, error) {
	const op = "postgresrepo.RegistrationRepo.GetByUserAndEvent"

	var reg domain.Registration
	err := scanRegistration(r.db.QueryRow(ctx,
		`SELECT `+registrationColumns+`
		 FROM registrations
		 WHERE user_id = $1 AND event_id = $2`,
		userID, eventID,
	), &reg)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &reg, nil
}

func (r *RegistrationRepo) CountConfirmed(ctx context.Context, eventID uuid.UUID) (int64, error) {
	const op = "postgresrepo.RegistrationRepo.CountConfirmed"

	var n int64
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*)
		 FROM registrations
		 WHERE event_id = $1 AND status = 'CONFIRMED'`,
		eventID,
	).Scan(&n)
	if err != nil {
		return 0, wrapDBErr(op, err)
	}

	return n, nil
}

// Delete removes a registration, freeing its capacity slot.
//
// Returns:
//   - error: repository.ErrNotFound if the registration does not exist.
func (r *RegistrationRepo) Delete(ctx context.Context, id uuid.UUID) error {
	const op = "postgresrepo.RegistrationRepo.Delete"

	tag, err := r.db.Exec(ctx, `DELETE FROM registrations WHERE id = $1`, id)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, repository.ErrNotFound)
	}

	return nil
}

func (r *RegistrationRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.RegistrationWithEvent, error) {
	const op = "postgresrepo.RegistrationRepo.ListByUser"

	rows, err := r.db.Query(ctx,
		`SELECT r.id, r.user_id, r.event_id, r.code, r.status, r.registered_at,
		        e.id, e.title, e.capacity, e.start_date, e.end_date, e.status
		 FROM registrations r
		 JOIN events e ON e.id = r.event_id
		 WHERE r.user_id = $1
		 ORDER BY r.registered_at DESC`,
		userID,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	out := []domain.RegistrationWithEvent{}
	for rows.Next() {
		var (
			item        domain.RegistrationWithEvent
			regStatus   string
			eventStatus string
		)

		if err := rows.Scan(
			&item.Registration.ID,
			&item.Registration.UserID,
			&item.Registration.EventID,
			&item.Registration.Code,
			&regStatus,
			&item.Registration.RegisteredAt,
			&item.Event.ID,
			&item.Event.Title,
			&item.Event.Capacity,
			&item.Event.StartDate,
			&item.Event.EndDate,
			&eventStatus,
		); err != nil {
			return nil, wrapDBErr(op, err)
		}

		item.Registration.Status = domain.RegistrationStatus(regStatus)
		item.Event.Status = domain.EventStatus(eventStatus)
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

// ListByEvent lists an event's registrations with their check-in state.
func (r *RegistrationRepo) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]domain.AttendeeRow, error) {
	const op = "postgresrepo.RegistrationRepo.ListByEvent"

	rows, err := r.db.Query(ctx,
		`SELECT r.id, r.user_id, r.event_id, r.code, r.status, r.registered_at, c.checked_in_at
		 FROM registrations r
		 LEFT JOIN check_ins c ON c.user_id = r.user_id AND c.event_id = r.event_id
		 WHERE r.event_id = $1
		 ORDER BY r.registered_at DESC`,
		eventID,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	out := []domain.AttendeeRow{}
	for rows.Next() {
		var (
			row       domain.AttendeeRow
			status    string
			checkedAt *time.Time
		)

		if err := rows.Scan(
			&row.Registration.ID,
			&row.Registration.UserID,
			&row.Registration.EventID,
			&row.Registration.Code,
			&status,
			&row.Registration.RegisteredAt,
			&checkedAt,
		); err != nil {
			return nil, wrapDBErr(op, err)
		}

		row.Registration.Status = domain.RegistrationStatus(status)
		row.CheckedIn = checkedAt != nil
		row.CheckedInAt = checkedAt
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

func (r *RegistrationRepo) ConfirmedUserIDs(ctx context.Context, eventID uuid.UUID) ([]uuid.UUID, error) {
	const op = "postgresrepo.RegistrationRepo.ConfirmedUserIDs"

	rows, err := r.db.Query(ctx,
		`SELECT user_id
		 FROM registrations
		 WHERE event_id = $1 AND status = 'CONFIRMED'`,
		eventID,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	var ids []uuid.UUID
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
