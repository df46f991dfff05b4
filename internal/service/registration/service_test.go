package registration

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/campusgo/internal/apperr"
	"github.com/kirinyoku/campusgo/internal/domain"
	"github.com/kirinyoku/campusgo/internal/repository"
	"github.com/kirinyoku/campusgo/internal/repository/memory"
	"github.com/kirinyoku/campusgo/internal/uow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func seedEvent(store *memory.Store, capacity int, status domain.EventStatus) domain.Event {
	ev := domain.Event{
		ID:        uuid.New(),
		Title:     "Distributed Systems Meetup",
		Capacity:  capacity,
		StartDate: fixedNow.Add(24 * time.Hour),
		EndDate:   fixedNow.Add(26 * time.Hour),
		Status:    status,
	}
	store.SeedEvent(ev)
	return ev
}

func newService(store *memory.Store) *Service {
	return New(store, Config{Now: func() time.Time { return fixedNow }})
}

func confirmedCount(t *testing.T, store *memory.Store, eventID uuid.UUID) int64 {
	t.Helper()
	n, err := store.Repos().Registrations().CountConfirmed(context.Background(), eventID)
	require.NoError(t, err)
	return n
}

func TestRegister_Success(t *testing.T) {
	store := memory.New()
	ev := seedEvent(store, 10, domain.EventPublished)
	svc := newService(store)
	user := uuid.New()

	reg, effects, err := svc.Register(context.Background(), user, ev.ID)
	require.NoError(t, err)

	assert.Equal(t, domain.RegistrationConfirmed, reg.Status)
	assert.Equal(t, user, reg.UserID)
	assert.Equal(t, ev.ID, reg.EventID)
	assert.Len(t, reg.Code, MaxCodeLen)
	assert.Equal(t, fixedNow, reg.RegisteredAt)

	require.Len(t, effects, 1)
	assert.Equal(t, domain.EffectRegistered, effects[0].Kind)
	assert.Equal(t, []uuid.UUID{user}, effects[0].UserIDs)
	assert.Equal(t, ev.Title, effects[0].EventTitle)

	stored, err := store.Repos().Registrations().GetByCode(context.Background(), reg.Code)
	require.NoError(t, err)
	assert.Equal(t, reg.ID, stored.ID)
}

func TestRegister_Preconditions(t *testing.T) {
	store := memory.New()
	svc := newService(store)

	published := seedEvent(store, 5, domain.EventPublished)
	draft := seedEvent(store, 5, domain.EventDraft)
	cancelled := seedEvent(store, 5, domain.EventCancelled)
	full := seedEvent(store, 1, domain.EventPublished)

	existing := uuid.New()
	_, _, err := svc.Register(context.Background(), existing, published.ID)
	require.NoError(t, err)
	_, _, err = svc.Register(context.Background(), uuid.New(), full.ID)
	require.NoError(t, err)

	tests := []struct {
		name    string
		userID  uuid.UUID
		eventID uuid.UUID
		wantErr error
		kind    apperr.Kind
	}{
		{name: "missing event", userID: uuid.New(), eventID: uuid.New(), wantErr: ErrEventNotFound, kind: apperr.NotFound},
		{name: "draft event", userID: uuid.New(), eventID: draft.ID, wantErr: ErrEventNotOpen, kind: apperr.InvalidState},
		{name: "cancelled event", userID: uuid.New(), eventID: cancelled.ID, wantErr: ErrEventNotOpen, kind: apperr.InvalidState},
		{name: "full event", userID: uuid.New(), eventID: full.ID, wantErr: ErrFullyBooked, kind: apperr.CapacityExceeded},
		{name: "already registered", userID: existing, eventID: published.ID, wantErr: ErrAlreadyRegistered, kind: apperr.AlreadyExists},
		{name: "anonymous", userID: uuid.Nil, eventID: published.ID, wantErr: ErrUnauthenticated, kind: apperr.Unauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg, effects, err := svc.Register(context.Background(), tt.userID, tt.eventID)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.kind, apperr.KindOf(err))
			assert.Nil(t, reg)
			assert.Empty(t, effects)
		})
	}
}

func TestRegister_ConcurrentNeverOverbooks(t *testing.T) {
	const (
		capacity = 5
		attempts = 50
	)

	store := memory.New()
	ev := seedEvent(store, capacity, domain.EventPublished)
	svc := newService(store)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
	)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := svc.Register(context.Background(), uuid.New(), ev.ID)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, ErrFullyBooked):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}

	wg.Wait()

	assert.Equal(t, capacity, succeeded)
	assert.Equal(t, attempts-capacity, rejected)
	assert.Equal(t, int64(capacity), confirmedCount(t, store, ev.ID))
}

func TestCancel_FreesSlotForNextRegistrant(t *testing.T) {
	store := memory.New()
	ev := seedEvent(store, 1, domain.EventPublished)
	svc := newService(store)
	ctx := context.Background()

	userA := domain.Actor{ID: uuid.New(), Role: domain.RoleStudent}
	userB := domain.Actor{ID: uuid.New(), Role: domain.RoleStudent}

	ticket, _, err := svc.Register(ctx, userA.ID, ev.ID)
	require.NoError(t, err)

	_, _, err = svc.Register(ctx, userB.ID, ev.ID)
	require.ErrorIs(t, err, ErrFullyBooked)

	effects, err := svc.Cancel(ctx, userA, ticket.ID)
	require.NoError(t, err)
	require.Len(t, effects, 1)
	assert.Equal(t, domain.EffectRegistrationCancelled, effects[0].Kind)
	assert.Equal(t, int64(0), confirmedCount(t, store, ev.ID))

	_, _, err = svc.Register(ctx, userB.ID, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), confirmedCount(t, store, ev.ID))

	_, _, err = svc.Register(ctx, uuid.New(), ev.ID)
	assert.ErrorIs(t, err, ErrFullyBooked)
}

func TestCancel_Authorization(t *testing.T) {
	store := memory.New()
	ev := seedEvent(store, 10, domain.EventPublished)
	svc := newService(store)
	ctx := context.Background()

	owner := uuid.New()
	ticket, _, err := svc.Register(ctx, owner, ev.ID)
	require.NoError(t, err)

	t.Run("other student is forbidden", func(t *testing.T) {
		_, err := svc.Cancel(ctx, domain.Actor{ID: uuid.New(), Role: domain.RoleStudent}, ticket.ID)
		assert.ErrorIs(t, err, ErrNotOwner)
		assert.Equal(t, apperr.Forbidden, apperr.KindOf(err))
	})

	t.Run("staff is forbidden", func(t *testing.T) {
		_, err := svc.Cancel(ctx, domain.Actor{ID: uuid.New(), Role: domain.RoleStaff}, ticket.ID)
		assert.ErrorIs(t, err, ErrNotOwner)
	})

	t.Run("anonymous is unauthorized", func(t *testing.T) {
		_, err := svc.Cancel(ctx, domain.Actor{}, ticket.ID)
		assert.Equal(t, apperr.Unauthorized, apperr.KindOf(err))
	})

	t.Run("unknown registration", func(t *testing.T) {
		_, err := svc.Cancel(ctx, domain.Actor{ID: owner, Role: domain.RoleStudent}, uuid.New())
		assert.ErrorIs(t, err, ErrRegistrationNotFound)
	})

	t.Run("admin may cancel", func(t *testing.T) {
		admin := domain.Actor{ID: uuid.New(), Role: domain.RoleAdmin}
		effects, err := svc.Cancel(ctx, admin, ticket.ID)
		require.NoError(t, err)
		require.Len(t, effects, 1)
		assert.Equal(t, admin.ID, effects[0].ActorID)
		assert.Equal(t, []uuid.UUID{owner}, effects[0].UserIDs)
	})
}

func TestRegister_CodeCollision(t *testing.T) {
	store := memory.New()
	ev := seedEvent(store, 10, domain.EventPublished)
	ctx := context.Background()

	fixed := func(uuid.UUID, uuid.UUID, time.Time) (string, error) { return "taken", nil }
	first := New(store, Config{NewCode: fixed})
	_, _, err := first.Register(ctx, uuid.New(), ev.ID)
	require.NoError(t, err)

	t.Run("regenerates once", func(t *testing.T) {
		calls := 0
		gen := func(u, e uuid.UUID, at time.Time) (string, error) {
			calls++
			if calls == 1 {
				return "taken", nil
			}
			return NewCode(u, e, at)
		}

		reg, _, err := New(store, Config{NewCode: gen}).Register(ctx, uuid.New(), ev.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, calls)
		assert.NotEqual(t, "taken", reg.Code)
	})

	t.Run("second collision is internal", func(t *testing.T) {
		before := confirmedCount(t, store, ev.ID)

		_, _, err := New(store, Config{NewCode: fixed}).Register(ctx, uuid.New(), ev.ID)
		require.Error(t, err)
		assert.Equal(t, apperr.Internal, apperr.KindOf(err))
		assert.Equal(t, before, confirmedCount(t, store, ev.ID))
	})
}

// optsRecorder records the options of every unit of work it forwards.
type optsRecorder struct {
	*memory.Store
	seen []uow.Options
}

func (r *optsRecorder) Do(ctx context.Context, fn uow.Func) error {
	return r.DoWithOpts(ctx, uow.Options{}, fn)
}

func (r *optsRecorder) DoWithOpts(ctx context.Context, opts uow.Options, fn uow.Func) error {
	r.seen = append(r.seen, opts)
	return r.Store.DoWithOpts(ctx, opts, fn)
}

func TestRegister_LocksEventAtReadCommitted(t *testing.T) {
	store := memory.New()
	ev := seedEvent(store, 3, domain.EventPublished)
	runner := &optsRecorder{Store: store}
	svc := New(runner, Config{Now: func() time.Time { return fixedNow }})

	_, _, err := svc.Register(context.Background(), uuid.New(), ev.ID)
	require.NoError(t, err)

	require.Len(t, runner.seen, 1)
	assert.Equal(t, uow.ReadCommitted, runner.seen[0].Isolation)
	assert.False(t, runner.seen[0].ReadOnly)
}

func TestRegister_TimestampHasStorePrecision(t *testing.T) {
	store := memory.New()
	ev := seedEvent(store, 3, domain.EventPublished)
	now := fixedNow.Add(123456789 * time.Nanosecond)
	svc := New(store, Config{Now: func() time.Time { return now }})

	reg, effects, err := svc.Register(context.Background(), uuid.New(), ev.ID)
	require.NoError(t, err)

	want := fixedNow.Add(123456 * time.Microsecond)
	assert.Equal(t, want, reg.RegisteredAt)
	assert.Equal(t, want, effects[0].At)

	err = store.Do(context.Background(), func(ctx context.Context, repos repository.Repos, _ func(uow.AfterCommit)) error {
		stored, err := repos.Registrations().Get(ctx, reg.ID)
		require.NoError(t, err)
		assert.True(t, reg.RegisteredAt.Equal(stored.RegisteredAt))
		return nil
	})
	require.NoError(t, err)
}
