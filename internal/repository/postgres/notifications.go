package postgresrepo

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/kirinyoku/campusgo/internal/domain"
)

type NotificationRepo struct {
	db DB
}

// InsertMany stores notifications in a single batch round trip.
func (r *NotificationRepo) InsertMany(ctx context.Context, ns []domain.Notification) error {
	const op = "postgresrepo.NotificationRepo.InsertMany"

	if len(ns) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, n := range ns {
		batch.Queue(
			`INSERT INTO notifications(id, user_id, type, title, message, read, sent_at)
			 VALUES ($1, $2, $3, $4, $5, false, $6)`,
			n.ID, n.UserID, string(n.Type), n.Title, n.Message, n.SentAt,
		)
	}
	if err := r.db.SendBatch(ctx, batch).Close(); err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}
