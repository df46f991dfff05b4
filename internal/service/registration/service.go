package registration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/campusgo/internal/domain"
	"github.com/kirinyoku/campusgo/internal/repository"
	"github.com/kirinyoku/campusgo/internal/uow"
)

type Config struct {
	// NewCode overrides the ticket code generator. Nil means NewCode.
	NewCode CodeFunc
	// Now overrides the clock. Nil means time.Now.
	Now func() time.Time
}

var registerTx = uow.Options{Isolation: uow.ReadCommitted}

type Service struct {
	tx      uow.Runner
	newCode CodeFunc
	now     func() time.Time
}

func New(tx uow.Runner, cfg Config) *Service {
	if cfg.NewCode == nil {
		cfg.NewCode = NewCode
	}

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Service{
		tx:      tx,
		newCode: cfg.NewCode,
		now:     cfg.Now,
	}
}

// Register issues a ticket for userID to eventID.
//
// The event row is locked for the duration of the transaction, so count and
// insert cannot interleave with another registration for the same event.
// The transaction runs at READ COMMITTED: a registrant that waited for the
// lock must count with a snapshot taken after the previous holder committed.
//
// Parameters:
//   - ctx: request-scoped context.
//   - userID: the attendee; callers pass the authenticated actor's id.
//   - eventID: the event to register for.
//
// Returns:
//   - *domain.Registration: the CONFIRMED ticket.
//   - domain.Effects: post-commit effects for the dispatcher.
//   - error: ErrEventNotFound, ErrEventNotOpen, ErrFullyBooked, ErrAlreadyRegistered.
func (s *Service) Register(
	ctx context.Context,
	userID, eventID uuid.UUID,
) (*domain.Registration, domain.Effects, error) {
	const op = "service.registration.Register"

	if userID == uuid.Nil {
		return nil, nil, fmt.Errorf("%s: %w", op, ErrUnauthenticated)
	}

	var (
		out     *domain.Registration
		effects domain.Effects
	)

	err := s.tx.DoWithOpts(ctx, registerTx, func(
		ctx context.Context,
		repos repository.Repos,
		after func(uow.AfterCommit),
	) error {
		ev, err := repos.Events().GetForUpdate(ctx, eventID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrEventNotFound
			}
			return err
		}

		if ev.Status != domain.EventPublished {
			return ErrEventNotOpen
		}

		n, err := repos.Registrations().CountConfirmed(ctx, eventID)
		if err != nil {
			return err
		}

		if n >= int64(ev.Capacity) {
			return ErrFullyBooked
		}

		_, err = repos.Registrations().GetByUserAndEvent(ctx, userID, eventID)
		switch {
		case err == nil:
			return ErrAlreadyRegistered
		case !errors.Is(err, repository.ErrNotFound):
			return err
		}

		now := s.now().UTC().Truncate(time.Microsecond)
		reg := &domain.Registration{
			ID:           uuid.New(),
			UserID:       userID,
			EventID:      eventID,
			Status:       domain.RegistrationConfirmed,
			RegisteredAt: now,
		}

		if err := s.insert(ctx, repos.Registrations(), reg); err != nil {
			return err
		}

		eff := domain.Effect{
			Kind:       domain.EffectRegistered,
			ActorID:    userID,
			UserIDs:    []uuid.UUID{userID},
			EventID:    ev.ID,
			EventTitle: ev.Title,
			EventStart: ev.StartDate,
			EventEnd:   ev.EndDate,
			EntityID:   reg.ID,
			At:         now,
		}

		after(func(context.Context) {
			out = reg
			effects = append(effects, eff)
		})

		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	return out, effects, nil
}

// insert persists reg, regenerating the code once on a collision.
func (s *Service) insert(ctx context.Context, store repository.TicketStore, reg *domain.Registration) error {
	for attempt := 0; attempt < 2; attempt++ {
		code, err := s.newCode(reg.UserID, reg.EventID, reg.RegisteredAt)
		if err != nil {
			return err
		}
		reg.Code = code

		err = store.Insert(ctx, reg)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, repository.ErrCodeTaken):
			continue
		case errors.Is(err, repository.ErrConflict):
			return ErrAlreadyRegistered
		default:
			return err
		}
	}

	return errCodeCollision
}

// Cancel deletes a registration, freeing its capacity slot.
//
// Parameters:
//   - ctx: request-scoped context.
//   - actor: the caller; must own the ticket or be an admin.
//   - registrationID: ID of the registration to cancel.
//
// Returns:
//   - domain.Effects: post-commit effects for the dispatcher.
//   - error: ErrRegistrationNotFound, ErrNotOwner.
func (s *Service) Cancel(
	ctx context.Context,
	actor domain.Actor,
	registrationID uuid.UUID,
) (domain.Effects, error) {
	const op = "service.registration.Cancel"

	if !actor.Authenticated() {
		return nil, fmt.Errorf("%s: %w", op, ErrUnauthenticated)
	}

	var effects domain.Effects

	err := s.tx.Do(ctx, func(
		ctx context.Context,
		repos repository.Repos,
		after func(uow.AfterCommit),
	) error {
		reg, err := repos.Registrations().Get(ctx, registrationID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrRegistrationNotFound
			}
			return err
		}

		if !actor.Owns(reg.UserID) {
			return ErrNotOwner
		}

		if err := repos.Registrations().Delete(ctx, reg.ID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrRegistrationNotFound
			}
			return err
		}

		eff := domain.Effect{
			Kind:     domain.EffectRegistrationCancelled,
			ActorID:  actor.ID,
			UserIDs:  []uuid.UUID{reg.UserID},
			EventID:  reg.EventID,
			EntityID: reg.ID,
			At:       s.now().UTC(),
		}

		if ev, err := repos.Events().Get(ctx, reg.EventID); err == nil {
			eff.EventTitle = ev.Title
			eff.EventStart = ev.StartDate
			eff.EventEnd = ev.EndDate
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
