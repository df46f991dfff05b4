package announcement

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/campusgo/internal/apperr"
	"github.com/kirinyoku/campusgo/internal/domain"
	"github.com/kirinyoku/campusgo/internal/repository"
	redisrepo "github.com/kirinyoku/campusgo/internal/repository/redis"
	"github.com/kirinyoku/campusgo/internal/uow"
)

var (
	ErrUnauthenticated = apperr.E(apperr.Unauthorized, "authentication required")
	ErrForbidden       = apperr.E(apperr.Forbidden, "only admins and assigned staff may post announcements")
	ErrEventNotFound   = apperr.E(apperr.NotFound, "event not found")
	ErrEmptyTitle      = apperr.E(apperr.InvalidArgument, "title is required")
	ErrEmptyContent    = apperr.E(apperr.InvalidArgument, "content is required")
	ErrBadPriority     = apperr.E(apperr.InvalidArgument, "priority must be LOW, NORMAL, HIGH or URGENT")
)

type Input struct {
	EventID  uuid.UUID
	Title    string
	Content  string
	Priority domain.AnnouncementPriority
}

const listTTL = 30 * time.Second

type Service struct {
	tx    uow.Runner
	cache *redisrepo.Cache
	now   func() time.Time
}

// New returns an announcement service. cache may be nil.
func New(tx uow.Runner, cache *redisrepo.Cache) *Service {
	return &Service{tx: tx, cache: cache, now: time.Now}
}

// Create posts an announcement and fans it out to every confirmed registrant.
//
// Returns:
//   - *domain.Announcement: the stored announcement.
//   - domain.Effects: one announcement effect addressed to all attendees.
//   - error: ErrForbidden, ErrEventNotFound or a validation error.
func (s *Service) Create(
	ctx context.Context,
	actor domain.Actor,
	in Input,
) (*domain.Announcement, domain.Effects, error) {
	const op = "service.announcement.Create"

	if !actor.Authenticated() {
		return nil, nil, fmt.Errorf("%s: %w", op, ErrUnauthenticated)
	}

	if !actor.CanOperateDoor() {
		return nil, nil, fmt.Errorf("%s: %w", op, ErrForbidden)
	}

	in.Title = strings.TrimSpace(in.Title)
	in.Content = strings.TrimSpace(in.Content)

	if in.Title == "" {
		return nil, nil, fmt.Errorf("%s: %w", op, ErrEmptyTitle)
	}

	if in.Content == "" {
		return nil, nil, fmt.Errorf("%s: %w", op, ErrEmptyContent)
	}

	if in.Priority == "" {
		in.Priority = domain.PriorityNormal
	}

	if !in.Priority.Valid() {
		return nil, nil, fmt.Errorf("%s: %w", op, ErrBadPriority)
	}

	var (
		out     *domain.Announcement
		effects domain.Effects
	)

	err := s.tx.Do(ctx, func(
		ctx context.Context,
		repos repository.Repos,
		after func(uow.AfterCommit),
	) error {
		ev, err := repos.Events().Get(ctx, in.EventID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrEventNotFound
			}
			return err
		}

		if !actor.IsAdmin() {
			ok, err := repos.Staff().IsAssigned(ctx, ev.ID, actor.ID)
			if err != nil {
				return err
			}
			if !ok {
				return ErrForbidden
			}
		}

		a := &domain.Announcement{
			ID:          uuid.New(),
			EventID:     ev.ID,
			Title:       in.Title,
			Content:     in.Content,
			Priority:    in.Priority,
			PublishedAt: s.now().UTC().Truncate(time.Microsecond),
		}

		if err := repos.Announcements().Insert(ctx, a); err != nil {
			return err
		}

		recipients, err := repos.Registrations().ConfirmedUserIDs(ctx, ev.ID)
		if err != nil {
			return err
		}

		eff := domain.Effect{
			Kind:       domain.EffectAnnouncement,
			ActorID:    actor.ID,
			UserIDs:    recipients,
			EventID:    ev.ID,
			EventTitle: ev.Title,
			EventStart: ev.StartDate,
			EventEnd:   ev.EndDate,
			EntityID:   a.ID,
			Title:      a.Title,
			At:         a.PublishedAt,
		}

		after(func(context.Context) {
			out = a
			effects = append(effects, eff)
		})

		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	return out, effects, nil
}

// List returns an event's announcements, most urgent first. The list is
// cached until the next announcement effect invalidates it.
func (s *Service) List(ctx context.Context, eventID uuid.UUID) ([]domain.Announcement, error) {
	const op = "service.announcement.List"

	load := func(ctx context.Context) ([]domain.Announcement, error) {
		var out []domain.Announcement

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
			out, err = repos.Announcements().ListByEvent(ctx, eventID)
			return err
		})

		return out, err
	}

	var (
		out []domain.Announcement
		err error
	)

	if s.cache != nil {
		out, err = redisrepo.ReadThrough(ctx, s.cache, redisrepo.KeyEventAnnouncements(eventID), listTTL, load)
	} else {
		out, err = load(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return out, nil
}
