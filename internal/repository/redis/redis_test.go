package redisrepo

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/kirinyoku/campusgo/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return mr, rdb
}

type summary struct {
	Registered int64 `json:"registered"`
}

func TestReadThrough(t *testing.T) {
	mr, rdb := newClient(t)
	cache := NewCache(rdb)
	ctx := context.Background()
	eventID := uuid.New()
	key := KeyEventSummary(eventID)

	var loads atomic.Int32
	loader := func(context.Context) (summary, error) {
		loads.Add(1)
		time.Sleep(20 * time.Millisecond)
		return summary{Registered: 7}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := ReadThrough(ctx, cache, key, time.Minute, loader)
			assert.NoError(t, err)
			assert.Equal(t, int64(7), v.Registered)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), loads.Load())
	assert.True(t, mr.Exists(key))

	require.NoError(t, cache.InvalidateEvent(ctx, eventID))
	assert.False(t, mr.Exists(key))

	_, err := ReadThrough(ctx, cache, key, time.Minute, loader)
	require.NoError(t, err)
	assert.Equal(t, int32(2), loads.Load())

	mr.FastForward(2 * time.Minute)
	assert.False(t, mr.Exists(key))
}

func TestIdempotencyStore(t *testing.T) {
	_, rdb := newClient(t)
	store := NewIdempotencyStore(rdb, time.Hour)
	ctx := context.Background()
	key := KeyIdemRegister(uuid.New(), "abc-123")
	const fp = "f1"

	ok, err := store.AcquireLock(ctx, key, fp, 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.AcquireLock(ctx, key, fp, 30*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	_, found, err := store.GetResult(ctx, key, fp)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.SaveResult(ctx, key, fp, `{"id":"x"}`))

	payload, found, err := store.GetResult(ctx, key, fp)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, `{"id":"x"}`, payload)

	require.NoError(t, store.Release(ctx, key))
	_, found, _ = store.GetResult(ctx, key, fp)
	assert.False(t, found)
}

func TestIdempotencyStore_KeyBoundToRequest(t *testing.T) {
	_, rdb := newClient(t)
	store := NewIdempotencyStore(rdb, time.Hour)
	ctx := context.Background()
	key := KeyIdemRegister(uuid.New(), "shared")

	ok, err := store.AcquireLock(ctx, key, "first", 30*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	_, _, err = store.GetResult(ctx, key, "second")
	assert.ErrorIs(t, err, ErrKeyReused, "while locked")

	require.NoError(t, store.SaveResult(ctx, key, "first", `{"a":1}`))

	_, found, err := store.GetResult(ctx, key, "second")
	assert.ErrorIs(t, err, ErrKeyReused, "after completion")
	assert.False(t, found)

	payload, found, err := store.GetResult(ctx, key, "first")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, `{"a":1}`, payload)
}

func TestClaimReminder(t *testing.T) {
	mr, rdb := newClient(t)
	store := NewIdempotencyStore(rdb, time.Hour)
	ctx := context.Background()
	eventID := uuid.New()

	ok, err := store.ClaimReminder(ctx, domain.EffectStartingSoon, eventID, 6*time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.ClaimReminder(ctx, domain.EffectStartingSoon, eventID, 6*time.Hour)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = store.ClaimReminder(ctx, domain.EffectFeedbackReminder, eventID, 6*time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)

	mr.FastForward(7 * time.Hour)

	ok, err = store.ClaimReminder(ctx, domain.EffectStartingSoon, eventID, 6*time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSlidingWindowLimiter(t *testing.T) {
	_, rdb := newClient(t)
	limiter := NewSlidingWindowLimiter(rdb, "checkin", 3, time.Minute)
	now := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		d, err := limiter.Allow(ctx, "staff-1")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Equal(t, int64(i), d.Current)
	}

	d, err := limiter.Allow(ctx, "staff-1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, int64(3), d.Current)
	assert.Equal(t, time.Minute, d.RetryAfter)

	other, err := limiter.Allow(ctx, "staff-2")
	require.NoError(t, err)
	assert.True(t, other.Allowed)

	now = now.Add(61 * time.Second)
	d, err = limiter.Allow(ctx, "staff-1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, int64(1), d.Current)
}

func TestPubSub(t *testing.T) {
	_, rdb := newClient(t)
	ps := NewEventsPubSub(rdb)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan Message, 4)
	ready := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		done <- ps.Subscribe(ctx, ready, func(_ context.Context, msg Message) { got <- msg })
	}()

	select {
	case <-ready:
	case <-time.After(2 * time.Second):
		t.Fatal("subscription not confirmed")
	}

	eventID, userID := uuid.New(), uuid.New()
	at := time.Date(2026, 4, 1, 17, 5, 0, 0, time.UTC)

	require.NoError(t, ps.PublishEventChanged(ctx, eventID))
	require.NoError(t, ps.PublishCheckIn(ctx, eventID, userID, "QR_CODE", at))

	var msgs []Message
	for len(msgs) < 2 {
		select {
		case m := <-got:
			msgs = append(msgs, m)
		case <-time.After(2 * time.Second):
			t.Fatalf("received %d of 2 messages", len(msgs))
		}
	}

	assert.Equal(t, MsgEventChanged, msgs[0].Type)
	assert.Equal(t, eventID, msgs[0].EventID)
	assert.Equal(t, MsgCheckedIn, msgs[1].Type)
	assert.Equal(t, userID, msgs[1].UserID)
	assert.True(t, at.Equal(msgs[1].CheckedInAt))

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
