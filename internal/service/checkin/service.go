package checkin

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/campusgo/internal/domain"
	"github.com/kirinyoku/campusgo/internal/repository"
	"github.com/kirinyoku/campusgo/internal/uow"
)

type Config struct {
	OpensBefore time.Duration
	ClosesAfter time.Duration
	// Now overrides the clock. Nil means time.Now.
	Now func() time.Time
}

type Service struct {
	tx  uow.Runner
	cfg Config
}

func New(tx uow.Runner, cfg Config) *Service {
	if cfg.OpensBefore <= 0 {
		cfg.OpensBefore = DefaultOpensBefore
	}

	if cfg.ClosesAfter <= 0 {
		cfg.ClosesAfter = DefaultClosesAfter
	}

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Service{tx: tx, cfg: cfg}
}

// WindowFor returns the check-in window of an event starting at start.
func (s *Service) WindowFor(start time.Time) Window {
	return windowFor(start, s.cfg.OpensBefore, s.cfg.ClosesAfter)
}

// CheckIn validates a ticket code and records attendance exactly once.
//
// Checks run in a fixed order and the first failure is returned: actor
// role, code, ticket state, event state, time window, existing check-in,
// staff assignment. The ledger's unique (user, event) constraint decides
// concurrent attempts; the loser gets AlreadyCheckedInError with the
// winner's timestamp.
//
// Parameters:
//   - ctx: request-scoped context.
//   - actor: the operator at the door.
//   - code: the scanned or typed ticket code.
//   - method: QR_CODE or MANUAL; metadata only.
//
// Returns:
//   - *domain.CheckIn: the recorded check-in.
//   - domain.Effects: post-commit effects for the dispatcher.
//   - error: ErrNotDoorRole, ErrInvalidCode, ErrNotConfirmed, ErrEventNotActive,
//     OutOfWindowError, AlreadyCheckedInError, ErrNotAssigned.
func (s *Service) CheckIn(
	ctx context.Context,
	actor domain.Actor,
	code string,
	method domain.CheckInMethod,
) (*domain.CheckIn, domain.Effects, error) {
	const op = "service.checkin.CheckIn"

	if !actor.Authenticated() || !actor.CanOperateDoor() {
		return nil, nil, fmt.Errorf("%s: %w", op, ErrNotDoorRole)
	}

	if method == "" {
		method = domain.MethodQRCode
	}

	if !method.Valid() {
		return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidMethod)
	}

	code = strings.TrimSpace(code)
	if code == "" {
		return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidCode)
	}

	var (
		out     *domain.CheckIn
		effects domain.Effects
	)

	opts := uow.Options{Isolation: uow.ReadCommitted}

	err := s.tx.DoWithOpts(ctx, opts, func(
		ctx context.Context,
		repos repository.Repos,
		after func(uow.AfterCommit),
	) error {
		reg, err := repos.Registrations().GetByCode(ctx, code)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrInvalidCode
			}
			return err
		}

		if reg.Status != domain.RegistrationConfirmed {
			return ErrNotConfirmed
		}

		ev, err := repos.Events().Get(ctx, reg.EventID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrEventNotFound
			}
			return err
		}

		if ev.Status != domain.EventPublished {
			return ErrEventNotActive
		}

		// Postgres keeps microseconds; the caller must see what a later reader will.
		now := s.cfg.Now().UTC().Truncate(time.Microsecond)
		if err := s.WindowFor(ev.StartDate).Check(now); err != nil {
			return err
		}

		if err := alreadyCheckedIn(ctx, repos.CheckIns(), reg.UserID, reg.EventID); err != nil {
			return err
		}

		if actor.Role == domain.RoleStaff {
			ok, err := repos.Staff().IsAssigned(ctx, ev.ID, actor.ID)
			if err != nil {
				return err
			}
			if !ok {
				return ErrNotAssigned
			}
		}

		operator := actor.ID
		rec := &domain.CheckIn{
			ID:          uuid.New(),
			UserID:      reg.UserID,
			EventID:     reg.EventID,
			Method:      method,
			CheckedInBy: &operator,
			CheckedInAt: now,
		}

		if err := repos.CheckIns().Insert(ctx, rec); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				if err := alreadyCheckedIn(ctx, repos.CheckIns(), reg.UserID, reg.EventID); err != nil {
					return err
				}
				return AlreadyCheckedInError{}
			}
			return err
		}

		eff := domain.Effect{
			Kind:       domain.EffectCheckedIn,
			ActorID:    actor.ID,
			UserIDs:    []uuid.UUID{reg.UserID},
			EventID:    ev.ID,
			EventTitle: ev.Title,
			EventStart: ev.StartDate,
			EventEnd:   ev.EndDate,
			EntityID:   rec.ID,
			Method:     method,
			At:         now,
		}

		after(func(context.Context) {
			out = rec
			effects = append(effects, eff)
		})

		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	return out, effects, nil
}

// alreadyCheckedIn returns AlreadyCheckedInError if the ledger holds a
// check-in for the pair, nil if it does not.
func alreadyCheckedIn(ctx context.Context, ledger repository.CheckInLedger, userID, eventID uuid.UUID) error {
	prior, err := ledger.GetByUserAndEvent(ctx, userID, eventID)
	switch {
	case err == nil:
		return AlreadyCheckedInError{CheckedInAt: prior.CheckedInAt}
	case errors.Is(err, repository.ErrNotFound):
		return nil
	default:
		return err
	}
}
