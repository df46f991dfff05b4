package staff

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/campusgo/internal/apperr"
	"github.com/kirinyoku/campusgo/internal/domain"
	"github.com/kirinyoku/campusgo/internal/repository"
	"github.com/kirinyoku/campusgo/internal/uow"
)

var (
	ErrUnauthenticated  = apperr.E(apperr.Unauthorized, "authentication required")
	ErrAdminOnly        = apperr.E(apperr.Forbidden, "admin role required")
	ErrDoorRoleOnly     = apperr.E(apperr.Forbidden, "staff or admin role required")
	ErrEventNotFound    = apperr.E(apperr.NotFound, "event not found")
	ErrStaffNotFound    = apperr.E(apperr.NotFound, "staff member not found")
	ErrAlreadyAssigned  = apperr.E(apperr.AlreadyExists, "staff member already assigned to this event")
	ErrNotAssigned      = apperr.E(apperr.NotFound, "staff member is not assigned to this event")
	ErrMissingStaffUser = apperr.E(apperr.InvalidArgument, "staff_id is required")
)

// Service manages the staff assignment table consulted by check-in.
type Service struct {
	tx uow.Runner
}

func New(tx uow.Runner) *Service {
	return &Service{tx: tx}
}

// Assign grants staffID check-in authority for eventID. Admin only.
func (s *Service) Assign(ctx context.Context, actor domain.Actor, eventID, staffID uuid.UUID) (domain.Effects, error) {
	const op = "service.staff.Assign"

	return s.change(ctx, op, actor, eventID, staffID, domain.EffectStaffAssigned,
		func(ctx context.Context, repos repository.Repos) error {
			err := repos.Staff().Assign(ctx, eventID, staffID)
			switch {
			case errors.Is(err, repository.ErrConflict):
				return ErrAlreadyAssigned
			case errors.Is(err, repository.ErrNotFound):
				return ErrStaffNotFound
			}
			return err
		})
}

// Unassign revokes staffID's authority for eventID. Admin only.
func (s *Service) Unassign(ctx context.Context, actor domain.Actor, eventID, staffID uuid.UUID) (domain.Effects, error) {
	const op = "service.staff.Unassign"

	return s.change(ctx, op, actor, eventID, staffID, domain.EffectStaffUnassigned,
		func(ctx context.Context, repos repository.Repos) error {
			err := repos.Staff().Unassign(ctx, eventID, staffID)
			if errors.Is(err, repository.ErrNotFound) {
				return ErrNotAssigned
			}
			return err
		})
}

func (s *Service) change(
	ctx context.Context,
	op string,
	actor domain.Actor,
	eventID, staffID uuid.UUID,
	kind domain.EffectKind,
	apply func(ctx context.Context, repos repository.Repos) error,
) (domain.Effects, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if staffID == uuid.Nil {
		return nil, fmt.Errorf("%s: %w", op, ErrMissingStaffUser)
	}

	var effects domain.Effects

	err := s.tx.Do(ctx, func(
		ctx context.Context,
		repos repository.Repos,
		after func(uow.AfterCommit),
	) error {
		ev, err := repos.Events().Get(ctx, eventID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrEventNotFound
			}
			return err
		}

		if err := apply(ctx, repos); err != nil {
			return err
		}

		eff := domain.Effect{
			Kind:       kind,
			ActorID:    actor.ID,
			UserIDs:    []uuid.UUID{staffID},
			EventID:    ev.ID,
			EventTitle: ev.Title,
			EntityID:   staffID,
			At:         time.Now().UTC(),
		}

		after(func(context.Context) {
			effects = append(effects, eff)
		})

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return effects, nil
}

// ListStaff returns the staff assigned to eventID. Admin and staff only.
func (s *Service) ListStaff(ctx context.Context, actor domain.Actor, eventID uuid.UUID) ([]uuid.UUID, error) {
	const op = "service.staff.ListStaff"

	if !actor.Authenticated() {
		return nil, fmt.Errorf("%s: %w", op, ErrUnauthenticated)
	}

	if !actor.CanOperateDoor() {
		return nil, fmt.Errorf("%s: %w", op, ErrDoorRoleOnly)
	}

	var ids []uuid.UUID

	err := s.tx.DoWithOpts(ctx, uow.Options{Isolation: uow.ReadCommitted, ReadOnly: true}, func(
		ctx context.Context,
		repos repository.Repos,
		_ func(uow.AfterCommit),
	) error {
		if _, err := repos.Events().Get(ctx, eventID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrEventNotFound
			}
			return err
		}

		var err error
		ids, err = repos.Staff().ListStaff(ctx, eventID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if ids == nil {
		ids = []uuid.UUID{}
	}

	return ids, nil
}

func requireAdmin(actor domain.Actor) error {
	if !actor.Authenticated() {
		return ErrUnauthenticated
	}
	if !actor.IsAdmin() {
		return ErrAdminOnly
	}
	return nil
}
