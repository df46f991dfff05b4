package postgresrepo

import (
	"context"

	"github.com/google/uuid"
	"github.com/kirinyoku/campusgo/internal/domain"
)

// UserRepo reads contact details from the users table owned by the auth
// service. It never writes.
type UserRepo struct {
	db DB
}

func (r *UserRepo) Contact(ctx context.Context, id uuid.UUID) (*domain.UserContact, error) {
	const op = "postgresrepo.UserRepo.Contact"

	var c domain.UserContact
	err := r.db.QueryRow(ctx,
		`SELECT id, name, email FROM users WHERE id = $1`,
		id,
	).Scan(&c.ID, &c.Name, &c.Email)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &c, nil
}
