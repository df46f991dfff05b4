package reminder

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/campusgo/internal/domain"
	"github.com/kirinyoku/campusgo/internal/repository"
	"github.com/kirinyoku/campusgo/internal/uow"
)

// Claimer deduplicates reminders across sweeps and replicas. ClaimReminder
// reports true exactly once per (kind, event) within ttl.
type Claimer interface {
	ClaimReminder(ctx context.Context, kind domain.EffectKind, eventID uuid.UUID, ttl time.Duration) (bool, error)
}

type Config struct {
	StartingSoonLead time.Duration
	FeedbackLead     time.Duration
	// Slack widens each lookup on both sides so a sweep running slightly
	// off schedule still catches its events.
	Slack     time.Duration
	DedupeTTL time.Duration
	Now       func() time.Time
}

type Service struct {
	tx     uow.Runner
	claims Claimer
	cfg    Config
}

func New(tx uow.Runner, claims Claimer, cfg Config) *Service {
	if cfg.StartingSoonLead <= 0 {
		cfg.StartingSoonLead = time.Hour
	}

	if cfg.FeedbackLead <= 0 {
		cfg.FeedbackLead = 15 * time.Minute
	}

	if cfg.Slack <= 0 {
		cfg.Slack = time.Minute
	}

	if cfg.DedupeTTL <= 0 {
		cfg.DedupeTTL = 6 * time.Hour
	}

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Service{tx: tx, claims: claims, cfg: cfg}
}

type due struct {
	kind       domain.EffectKind
	event      domain.Event
	recipients []uuid.UUID
}

// Sweep finds published events starting in about StartingSoonLead and
// events ending in about FeedbackLead, and returns one effect per event
// not already reminded.
func (s *Service) Sweep(ctx context.Context) (domain.Effects, error) {
	const op = "service.reminder.Sweep"

	now := s.cfg.Now().UTC()

	var batch []due

	err := s.tx.DoWithOpts(ctx, uow.Options{Isolation: uow.ReadCommitted, ReadOnly: true}, func(
		ctx context.Context,
		repos repository.Repos,
		_ func(uow.AfterCommit),
	) error {
		batch = batch[:0]

		center := now.Add(s.cfg.StartingSoonLead)
		starting, err := repos.Events().ListStartingBetween(ctx, center.Add(-s.cfg.Slack), center.Add(s.cfg.Slack))
		if err != nil {
			return err
		}

		center = now.Add(s.cfg.FeedbackLead)
		ending, err := repos.Events().ListEndingBetween(ctx, center.Add(-s.cfg.Slack), center.Add(s.cfg.Slack))
		if err != nil {
			return err
		}

		collect := func(kind domain.EffectKind, events []domain.Event) error {
			for _, ev := range events {
				ids, err := repos.Registrations().ConfirmedUserIDs(ctx, ev.ID)
				if err != nil {
					return err
				}
				if len(ids) == 0 {
					continue
				}
				batch = append(batch, due{kind: kind, event: ev, recipients: ids})
			}
			return nil
		}

		if err := collect(domain.EffectStartingSoon, starting); err != nil {
			return err
		}

		return collect(domain.EffectFeedbackReminder, ending)
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var effects domain.Effects

	for _, d := range batch {
		ok, err := s.claims.ClaimReminder(ctx, d.kind, d.event.ID, s.cfg.DedupeTTL)
		if err != nil {
			return effects, fmt.Errorf("%s: %w", op, err)
		}
		if !ok {
			continue
		}

		effects = append(effects, domain.Effect{
			Kind:       d.kind,
			UserIDs:    d.recipients,
			EventID:    d.event.ID,
			EventTitle: d.event.Title,
			EventStart: d.event.StartDate,
			EventEnd:   d.event.EndDate,
			EntityID:   d.event.ID,
			At:         now,
		})
	}

	return effects, nil
}

// LocalClaimer is an in-process Claimer for single-replica deployments
// without Redis.
type LocalClaimer struct {
	mu     sync.Mutex
	now    func() time.Time
	claims map[string]time.Time
}

func NewLocalClaimer() *LocalClaimer {
	return &LocalClaimer{now: time.Now, claims: map[string]time.Time{}}
}

func (c *LocalClaimer) ClaimReminder(_ context.Context, kind domain.EffectKind, eventID uuid.UUID, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	key := string(kind) + ":" + eventID.String()

	if exp, ok := c.claims[key]; ok && now.Before(exp) {
		return false, nil
	}

	for k, exp := range c.claims {
		if !now.Before(exp) {
			delete(c.claims, k)
		}
	}

	c.claims[key] = now.Add(ttl)
	return true, nil
}
