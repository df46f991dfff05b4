// Package dispatch performs the side effects of committed units of work:
// in-app notifications, audit entries, e-mail, cache invalidation and live
// updates. Every sink is best effort; a failure is logged and never reaches
// the caller whose request produced the effect.
package dispatch

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/campusgo/internal/domain"
	"github.com/kirinyoku/campusgo/internal/notify"
	"github.com/kirinyoku/campusgo/internal/repository"
)

const (
	defaultQueueSize = 1024
	defaultTimeout   = 10 * time.Second
)

// Invalidator drops cached read models of an event.
type Invalidator interface {
	InvalidateEvent(ctx context.Context, eventID uuid.UUID) error
}

// Publisher pushes live updates to dashboard streams.
type Publisher interface {
	PublishEventChanged(ctx context.Context, eventID uuid.UUID) error
	PublishCheckIn(ctx context.Context, eventID, userID uuid.UUID, method string, at time.Time) error
}

type Config struct {
	QueueSize int
	// Timeout bounds the handling of one effect.
	Timeout time.Duration
}

// Deps are the sinks. Cache and Publisher may be nil.
type Deps struct {
	Repos     repository.Repos
	Mailer    notify.Mailer
	Cache     Invalidator
	Publisher Publisher
}

type Dispatcher struct {
	log           *slog.Logger
	notifications *NotificationSink
	audit         *AuditSink
	users         repository.UserDirectory
	mailer        notify.Mailer
	cache         Invalidator
	pub           Publisher
	timeout       time.Duration
	queue         chan domain.Effect
}

func New(log *slog.Logger, deps Deps, cfg Config) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	return &Dispatcher{
		log:           log.With("component", "dispatch"),
		notifications: NewNotificationSink(deps.Repos.Notifications()),
		audit:         NewAuditSink(deps.Repos.Audit()),
		users:         deps.Repos.Users(),
		mailer:        deps.Mailer,
		cache:         deps.Cache,
		pub:           deps.Publisher,
		timeout:       cfg.Timeout,
		queue:         make(chan domain.Effect, cfg.QueueSize),
	}
}

// Enqueue never blocks. Effects that do not fit in the queue are dropped
// and logged.
func (d *Dispatcher) Enqueue(effects domain.Effects) {
	for _, e := range effects {
		select {
		case d.queue <- e:
		default:
			d.log.Warn("effect dropped, queue full",
				"kind", e.Kind, "event_id", e.EventID, "entity_id", e.EntityID)
		}
	}
}

// Run handles queued effects until ctx is done, then drains what is left.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			d.drain(context.WithoutCancel(ctx))
			return nil
		case e := <-d.queue:
			d.Handle(ctx, e)
		}
	}
}

func (d *Dispatcher) drain(ctx context.Context) {
	for {
		select {
		case e := <-d.queue:
			d.Handle(ctx, e)
		default:
			return
		}
	}
}

// Handle performs one effect synchronously.
func (d *Dispatcher) Handle(ctx context.Context, e domain.Effect) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	defer cancel()

	log := d.log.With("kind", e.Kind, "event_id", e.EventID, "entity_id", e.EntityID)

	switch e.Kind {
	case domain.EffectRegistered:
		d.step(log, "notify", d.notifications.NotifyBulk(ctx, e.UserIDs, domain.NotifyRegistrationConfirmed,
			"Registration Confirmed",
			fmt.Sprintf(`You have successfully registered for "%s". Event starts on %s.`,
				e.EventTitle, e.EventStart.UTC().Format("Jan 2, 2006 15:04 MST"))))
		d.step(log, "audit", d.audit.LogAction(ctx, e.ActorID, "REGISTRATION_CREATED", "registration",
			e.EntityID, map[string]any{"event_id": e.EventID.String()}))
		d.mailEach(ctx, log, e)
		d.invalidate(ctx, log, e.EventID)
		d.publishChanged(ctx, log, e.EventID)

	case domain.EffectRegistrationCancelled:
		d.step(log, "audit", d.audit.LogAction(ctx, e.ActorID, "REGISTRATION_CANCELLED", "registration",
			e.EntityID, map[string]any{"user_id": firstOrNil(e.UserIDs).String(), "event_id": e.EventID.String()}))
		d.invalidate(ctx, log, e.EventID)
		d.publishChanged(ctx, log, e.EventID)

	case domain.EffectCheckedIn:
		d.step(log, "notify", d.notifications.NotifyBulk(ctx, e.UserIDs, domain.NotifyCheckInSuccess,
			"Check-in Successful",
			fmt.Sprintf(`You have successfully checked in to "%s". Enjoy the event!`, e.EventTitle)))
		d.step(log, "audit", d.audit.LogAction(ctx, e.ActorID, "CHECK_IN", "check_in",
			e.EntityID, map[string]any{
				"user_id":  firstOrNil(e.UserIDs).String(),
				"event_id": e.EventID.String(),
				"method":   string(e.Method),
			}))
		d.invalidate(ctx, log, e.EventID)
		if d.pub != nil {
			d.step(log, "publish", d.pub.PublishCheckIn(ctx, e.EventID, firstOrNil(e.UserIDs), string(e.Method), e.At))
		}

	case domain.EffectAnnouncement:
		d.step(log, "notify", d.notifications.NotifyBulk(ctx, e.UserIDs, domain.NotifyAnnouncement,
			"New Announcement",
			fmt.Sprintf(`New announcement for "%s": %s`, e.EventTitle, e.Title)))
		d.step(log, "audit", d.audit.LogAction(ctx, e.ActorID, "ANNOUNCEMENT_CREATED", "announcement",
			e.EntityID, map[string]any{"event_id": e.EventID.String(), "recipients": len(e.UserIDs)}))
		d.invalidate(ctx, log, e.EventID)

	case domain.EffectStartingSoon:
		d.step(log, "notify", d.notifications.NotifyBulk(ctx, e.UserIDs, domain.NotifyEventReminder,
			"Event Starting Soon",
			fmt.Sprintf(`Reminder: "%s" will start in approximately 1 hour at %s.`,
				e.EventTitle, e.EventStart.UTC().Format("15:04 MST"))))

	case domain.EffectFeedbackReminder:
		d.step(log, "notify", d.notifications.NotifyBulk(ctx, e.UserIDs, domain.NotifyEventReminder,
			"Feedback Reminder",
			fmt.Sprintf(`"%s" will end in about 15 minutes. Please prepare to submit your feedback after the event.`,
				e.EventTitle)))

	case domain.EffectStaffAssigned, domain.EffectStaffUnassigned:
		action := "STAFF_ASSIGNED"
		if e.Kind == domain.EffectStaffUnassigned {
			action = "STAFF_UNASSIGNED"
		}
		d.step(log, "audit", d.audit.LogAction(ctx, e.ActorID, action, "event",
			e.EventID, map[string]any{"staff_id": e.EntityID.String()}))

	default:
		log.Warn("unknown effect kind")
	}
}

func (d *Dispatcher) mailEach(ctx context.Context, log *slog.Logger, e domain.Effect) {
	if d.mailer == nil {
		return
	}

	for _, id := range e.UserIDs {
		c, err := d.users.Contact(ctx, id)
		if err != nil {
			log.Warn("mail skipped, no contact", "user_id", id, "err", err)
			continue
		}
		if c.Email == "" {
			continue
		}

		d.step(log, "mail", d.mailer.Send(ctx, registrationMail(c, e)))
	}
}

func registrationMail(c *domain.UserContact, e domain.Effect) notify.Mail {
	start := e.EventStart.UTC().Format("Mon, Jan 2, 2006 15:04 MST")
	return notify.Mail{
		To:      c.Email,
		Subject: fmt.Sprintf("Registration confirmed: %s", e.EventTitle),
		HTML: fmt.Sprintf(
			"<p>Hi %s,</p><p>You are registered for <strong>%s</strong>. The event starts on %s.</p>"+
				"<p>Your ticket is available in the app.</p>",
			html.EscapeString(c.Name), html.EscapeString(e.EventTitle), start),
		Text: fmt.Sprintf("Hi %s,\n\nYou are registered for %q. The event starts on %s.\n"+
			"Your ticket is available in the app.\n", c.Name, e.EventTitle, start),
	}
}

func (d *Dispatcher) invalidate(ctx context.Context, log *slog.Logger, eventID uuid.UUID) {
	if d.cache == nil {
		return
	}
	d.step(log, "invalidate", d.cache.InvalidateEvent(ctx, eventID))
}

func (d *Dispatcher) publishChanged(ctx context.Context, log *slog.Logger, eventID uuid.UUID) {
	if d.pub == nil {
		return
	}
	d.step(log, "publish", d.pub.PublishEventChanged(ctx, eventID))
}

func (d *Dispatcher) step(log *slog.Logger, name string, err error) {
	if err != nil {
		log.Warn("effect step failed", "step", name, "err", err)
	}
}

func firstOrNil(ids []uuid.UUID) uuid.UUID {
	if len(ids) == 0 {
		return uuid.Nil
	}
	return ids[0]
}
