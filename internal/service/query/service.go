package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/campusgo/internal/domain"
	"github.com/kirinyoku/campusgo/internal/repository"
	redisrepo "github.com/kirinyoku/campusgo/internal/repository/redis"
	"github.com/kirinyoku/campusgo/internal/uow"
)

type Config struct {
	EventSummaryTTL time.Duration
}

// Service answers read-side queries. Only the event summary is cached; the
// registration and check-in paths never read through it.
type Service struct {
	tx    uow.Runner
	cache *redisrepo.Cache
	cfg   Config
}

// New returns a query service. cache may be nil, in which case every read
// goes to the store.
func New(tx uow.Runner, cache *redisrepo.Cache, cfg Config) *Service {
	if cfg.EventSummaryTTL <= 0 {
		cfg.EventSummaryTTL = 15 * time.Second
	}

	return &Service{
		tx:    tx,
		cache: cache,
		cfg:   cfg,
	}
}

var readOnly = uow.Options{Isolation: uow.ReadCommitted, ReadOnly: true}

func (s *Service) read(ctx context.Context, fn func(ctx context.Context, repos repository.Repos) error) error {
	return s.tx.DoWithOpts(ctx, readOnly, func(ctx context.Context, repos repository.Repos, _ func(uow.AfterCommit)) error {
		return fn(ctx, repos)
	})
}

// GetEventSummary retrieves an event with its confirmed and remaining seat
// counts, utilizing a caching layer to improve performance.
//
// Parameters:
//   - ctx: request-scoped context.
//   - eventID: ID of the event.
//
// Returns:
//   - *domain.EventSummary: the event and its counts.
//   - error: query.ErrEventNotFound if the event is not found.
func (s *Service) GetEventSummary(ctx context.Context, eventID uuid.UUID) (*domain.EventSummary, error) {
	const op = "service.query.GetEventSummary"

	load := func(ctx context.Context) (domain.EventSummary, error) {
		var out domain.EventSummary

		err := s.read(ctx, func(ctx context.Context, repos repository.Repos) error {
			ev, err := repos.Events().Get(ctx, eventID)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return ErrEventNotFound
				}
				return err
			}

			n, err := repos.Registrations().CountConfirmed(ctx, eventID)
			if err != nil {
				return err
			}

			out = domain.EventSummary{
				Event:      *ev,
				Registered: n,
				Remaining:  max(int64(ev.Capacity)-n, 0),
			}
			return nil
		})

		return out, err
	}

	var (
		summary domain.EventSummary
		err     error
	)

	if s.cache != nil {
		summary, err = redisrepo.ReadThrough(ctx, s.cache, redisrepo.KeyEventSummary(eventID), s.cfg.EventSummaryTTL, load)
	} else {
		summary, err = load(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &summary, nil
}

// ListMyRegistrations returns the actor's tickets with their events, newest
// first.
func (s *Service) ListMyRegistrations(ctx context.Context, actor domain.Actor) ([]domain.RegistrationWithEvent, error) {
	const op = "service.query.ListMyRegistrations"

	if !actor.Authenticated() {
		return nil, fmt.Errorf("%s: %w", op, ErrUnauthenticated)
	}

	var out []domain.RegistrationWithEvent
	err := s.read(ctx, func(ctx context.Context, repos repository.Repos) error {
		var err error
		out, err = repos.Registrations().ListByUser(ctx, actor.ID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return out, nil
}

// GetTicket returns a registration with its event.
//
// Returns:
//   - error: query.ErrRegistrationNotFound if the registration does not exist.
//   - error: query.ErrNotTicketOwner if the actor is neither owner nor admin.
func (s *Service) GetTicket(ctx context.Context, actor domain.Actor, registrationID uuid.UUID) (*domain.RegistrationWithEvent, error) {
	const op = "service.query.GetTicket"

	if !actor.Authenticated() {
		return nil, fmt.Errorf("%s: %w", op, ErrUnauthenticated)
	}

	var out domain.RegistrationWithEvent
	err := s.read(ctx, func(ctx context.Context, repos repository.Repos) error {
		reg, err := repos.Registrations().Get(ctx, registrationID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrRegistrationNotFound
			}
			return err
		}

		if !actor.Owns(reg.UserID) {
			return ErrNotTicketOwner
		}

		ev, err := repos.Events().Get(ctx, reg.EventID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrEventNotFound
			}
			return err
		}

		out = domain.RegistrationWithEvent{Registration: *reg, Event: *ev}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &out, nil
}

// ListEventRegistrations lists attendees with their check-in state. Admins
// and staff assigned to the event only.
func (s *Service) ListEventRegistrations(ctx context.Context, actor domain.Actor, eventID uuid.UUID) ([]domain.AttendeeRow, error) {
	const op = "service.query.ListEventRegistrations"

	var out []domain.AttendeeRow
	err := s.read(ctx, func(ctx context.Context, repos repository.Repos) error {
		if err := authorizeEventStaff(ctx, repos, actor, eventID); err != nil {
			return err
		}

		var err error
		out, err = repos.Registrations().ListByEvent(ctx, eventID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return out, nil
}

// ListEventCheckIns lists an event's check-ins, latest first. Admins and
// staff assigned to the event only.
func (s *Service) ListEventCheckIns(ctx context.Context, actor domain.Actor, eventID uuid.UUID) ([]domain.CheckIn, error) {
	const op = "service.query.ListEventCheckIns"

	var out []domain.CheckIn
	err := s.read(ctx, func(ctx context.Context, repos repository.Repos) error {
		if err := authorizeEventStaff(ctx, repos, actor, eventID); err != nil {
			return err
		}

		var err error
		out, err = repos.CheckIns().ListByEvent(ctx, eventID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return out, nil
}

// AuthorizeEventStaff reports whether actor may watch eventID's door.
func (s *Service) AuthorizeEventStaff(ctx context.Context, actor domain.Actor, eventID uuid.UUID) error {
	const op = "service.query.AuthorizeEventStaff"

	if err := s.read(ctx, func(ctx context.Context, repos repository.Repos) error {
		return authorizeEventStaff(ctx, repos, actor, eventID)
	}); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func authorizeEventStaff(ctx context.Context, repos repository.Repos, actor domain.Actor, eventID uuid.UUID) error {
	if !actor.Authenticated() {
		return ErrUnauthenticated
	}

	if _, err := repos.Events().Get(ctx, eventID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrEventNotFound
		}
		return err
	}

	if actor.IsAdmin() {
		return nil
	}

	if actor.Role != domain.RoleStaff {
		return ErrNotEventStaff
	}

	ok, err := repos.Staff().IsAssigned(ctx, eventID, actor.ID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotEventStaff
	}

	return nil
}
