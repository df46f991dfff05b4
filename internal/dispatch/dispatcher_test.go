package dispatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/campusgo/internal/domain"
	"github.com/kirinyoku/campusgo/internal/notify"
	"github.com/kirinyoku/campusgo/internal/repository/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMailer struct {
	mu   sync.Mutex
	sent []notify.Mail
	err  error
}

func (m *fakeMailer) Send(_ context.Context, mail notify.Mail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, mail)
	return nil
}

type fakeSinks struct {
	mu          sync.Mutex
	invalidated []uuid.UUID
	changed     []uuid.UUID
	checkIns    []string
}

func (f *fakeSinks) InvalidateEvent(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated = append(f.invalidated, id)
	return nil
}

func (f *fakeSinks) PublishEventChanged(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.changed = append(f.changed, id)
	return nil
}

func (f *fakeSinks) PublishCheckIn(_ context.Context, _, _ uuid.UUID, method string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checkIns = append(f.checkIns, method)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newDispatcher(t *testing.T, mailer notify.Mailer) (*Dispatcher, *memory.Store, *fakeSinks) {
	t.Helper()

	store := memory.New()
	sinks := &fakeSinks{}
	d := New(discardLogger(), Deps{
		Repos:     store.Repos(),
		Mailer:    mailer,
		Cache:     sinks,
		Publisher: sinks,
	}, Config{QueueSize: 4, Timeout: time.Second})

	return d, store, sinks
}

func TestHandle_Registered(t *testing.T) {
	mailer := &fakeMailer{}
	d, store, sinks := newDispatcher(t, mailer)

	user := domain.UserContact{ID: uuid.New(), Name: "Ada", Email: "ada@uni.example"}
	store.SeedUser(user)

	e := domain.Effect{
		Kind:       domain.EffectRegistered,
		ActorID:    user.ID,
		UserIDs:    []uuid.UUID{user.ID},
		EventID:    uuid.New(),
		EventTitle: "Go Meetup",
		EventStart: time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC),
		EntityID:   uuid.New(),
	}
	d.Handle(context.Background(), e)

	ns := store.Notifications()
	require.Len(t, ns, 1)
	assert.Equal(t, domain.NotifyRegistrationConfirmed, ns[0].Type)
	assert.Equal(t, "Registration Confirmed", ns[0].Title)
	assert.Contains(t, ns[0].Message, `"Go Meetup"`)

	audit := store.AuditEntries()
	require.Len(t, audit, 1)
	assert.Equal(t, "REGISTRATION_CREATED", audit[0].Action)
	require.NotNil(t, audit[0].EntityID)
	assert.Equal(t, e.EntityID, *audit[0].EntityID)

	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "ada@uni.example", mailer.sent[0].To)
	assert.Contains(t, mailer.sent[0].Subject, "Go Meetup")

	assert.Equal(t, []uuid.UUID{e.EventID}, sinks.invalidated)
	assert.Equal(t, []uuid.UUID{e.EventID}, sinks.changed)
}

func TestHandle_FailingMailerDoesNotStopOtherSinks(t *testing.T) {
	d, store, sinks := newDispatcher(t, &fakeMailer{err: errors.New("ses down")})

	user := domain.UserContact{ID: uuid.New(), Name: "Bo", Email: "bo@uni.example"}
	store.SeedUser(user)

	d.Handle(context.Background(), domain.Effect{
		Kind:    domain.EffectRegistered,
		UserIDs: []uuid.UUID{user.ID},
		EventID: uuid.New(),
	})

	assert.Len(t, store.Notifications(), 1)
	assert.Len(t, store.AuditEntries(), 1)
	assert.Len(t, sinks.changed, 1)
}

func TestHandle_CheckedIn(t *testing.T) {
	d, store, sinks := newDispatcher(t, nil)
	staffID, userID := uuid.New(), uuid.New()

	d.Handle(context.Background(), domain.Effect{
		Kind:       domain.EffectCheckedIn,
		ActorID:    staffID,
		UserIDs:    []uuid.UUID{userID},
		EventID:    uuid.New(),
		EventTitle: "Hackathon",
		EntityID:   uuid.New(),
		Method:     domain.MethodManual,
		At:         time.Now(),
	})

	ns := store.Notifications()
	require.Len(t, ns, 1)
	assert.Equal(t, userID, ns[0].UserID)
	assert.Equal(t, `You have successfully checked in to "Hackathon". Enjoy the event!`, ns[0].Message)

	audit := store.AuditEntries()
	require.Len(t, audit, 1)
	assert.Equal(t, "CHECK_IN", audit[0].Action)
	assert.Equal(t, "MANUAL", audit[0].Details["method"])
	require.NotNil(t, audit[0].ActorID)
	assert.Equal(t, staffID, *audit[0].ActorID)

	assert.Equal(t, []string{"MANUAL"}, sinks.checkIns)
}

func TestHandle_Reminders(t *testing.T) {
	d, store, _ := newDispatcher(t, nil)
	recipients := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}

	d.Handle(context.Background(), domain.Effect{
		Kind:       domain.EffectStartingSoon,
		UserIDs:    recipients,
		EventID:    uuid.New(),
		EventTitle: "Career Fair",
		EventStart: time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC),
	})
	d.Handle(context.Background(), domain.Effect{
		Kind:       domain.EffectFeedbackReminder,
		UserIDs:    recipients[:1],
		EventID:    uuid.New(),
		EventTitle: "Career Fair",
	})

	ns := store.Notifications()
	require.Len(t, ns, 4)
	for _, n := range ns {
		assert.Equal(t, domain.NotifyEventReminder, n.Type)
	}
	assert.Equal(t, "Event Starting Soon", ns[0].Title)
	assert.Contains(t, ns[0].Message, "10:00 UTC")
	assert.Equal(t, "Feedback Reminder", ns[3].Title)
	assert.Empty(t, store.AuditEntries())
}

func TestEnqueue_DropsWhenFullAndRunDrains(t *testing.T) {
	d, store, _ := newDispatcher(t, nil)

	var effects domain.Effects
	for range 6 {
		effects = append(effects, domain.Effect{
			Kind:    domain.EffectStaffAssigned,
			EventID: uuid.New(),
		})
	}
	d.Enqueue(effects)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, d.Run(ctx))

	audit := store.AuditEntries()
	assert.Len(t, audit, 4)
	for _, a := range audit {
		assert.Equal(t, "STAFF_ASSIGNED", a.Action)
	}
}
