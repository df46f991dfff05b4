package postgresrepo

import (
	"context"

	"github.com/google/uuid"
	"github.com/kirinyoku/campusgo/internal/domain"
)

type AnnouncementRepo struct {
	db DB
}

func (r *AnnouncementRepo) Insert(ctx context.Context, a *domain.Announcement) error {
	const op = "postgresrepo.AnnouncementRepo.Insert"

	if _, err := r.db.Exec(ctx,
		`INSERT INTO announcements(id, event_id, title, content, priority, published_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		a.ID, a.EventID, a.Title, a.Content, string(a.Priority), a.PublishedAt,
	); err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

// ListByEvent lists announcements, most urgent and most recent first.
func (r *AnnouncementRepo) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]domain.Announcement, error) {
	const op = "postgresrepo.AnnouncementRepo.ListByEvent"

	rows, err := r.db.Query(ctx,
		`SELECT id, event_id, title, content, priority, published_at
		 FROM announcements
		 WHERE event_id = $1
		 ORDER BY CASE priority
		              WHEN 'URGENT' THEN 3
		              WHEN 'HIGH' THEN 2
		              WHEN 'NORMAL' THEN 1
		              ELSE 0
		          END DESC,
		          published_at DESC`,
		eventID,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	out := []domain.Announcement{}
	for rows.Next() {
		var (
			a        domain.Announcement
			priority string
		)
		if err := rows.Scan(&a.ID, &a.EventID, &a.Title, &a.Content, &priority, &a.PublishedAt); err != nil {
			return nil, wrapDBErr(op, err)
		}
		a.Priority = domain.AnnouncementPriority(priority)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}
