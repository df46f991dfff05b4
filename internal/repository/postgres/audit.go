package postgresrepo

import (
	"context"

	"github.com/kirinyoku/campusgo/internal/domain"
)

// AuditRepo is append-only.
type AuditRepo struct {
	db DB
}

func (r *AuditRepo) Append(ctx context.Context, e *domain.AuditEntry) error {
	const op = "postgresrepo.AuditRepo.Append"

	details := e.Details
	if details == nil {
		details = map[string]any{}
	}

	if _, err := r.db.Exec(ctx,
		`INSERT INTO audit_logs(id, actor_id, action, entity_type, entity_id, details, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, e.ActorID, e.Action, e.EntityType, e.EntityID, details, e.CreatedAt,
	); err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}
