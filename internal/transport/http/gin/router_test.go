package httpgin

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/kirinyoku/campusgo/internal/auth"
	"github.com/kirinyoku/campusgo/internal/domain"
	"github.com/kirinyoku/campusgo/internal/live"
	"github.com/kirinyoku/campusgo/internal/repository/memory"
	redisrepo "github.com/kirinyoku/campusgo/internal/repository/redis"
	"github.com/kirinyoku/campusgo/internal/service"
	"github.com/kirinyoku/campusgo/internal/service/reminder"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "router-test-secret"

type recordingSink struct {
	mu      sync.Mutex
	effects domain.Effects
}

func (s *recordingSink) Enqueue(effects domain.Effects) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.effects = append(s.effects, effects...)
}

func (s *recordingSink) kinds() []domain.EffectKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.EffectKind
	for _, e := range s.effects {
		out = append(out, e.Kind)
	}
	return out
}

type denyLimiter struct{}

func (denyLimiter) Allow(context.Context, string) (redisrepo.Decision, error) {
	return redisrepo.Decision{Allowed: false, Current: 5, RetryAfter: 42 * time.Second}, nil
}

type testEnv struct {
	router *gin.Engine
	store  *memory.Store
	sink   *recordingSink
	broker *live.Broker
	issuer *auth.Issuer
	event  domain.Event
}

func newEnv(t *testing.T, mutate func(*Deps)) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memory.New()
	ev := domain.Event{
		ID:        uuid.New(),
		Title:     "Robotics Demo Day",
		Capacity:  2,
		StartDate: time.Now().Add(30 * time.Minute).UTC().Truncate(time.Second),
		EndDate:   time.Now().Add(3 * time.Hour).UTC().Truncate(time.Second),
		Status:    domain.EventPublished,
	}
	store.SeedEvent(ev)

	env := &testEnv{
		store:  store,
		sink:   &recordingSink{},
		broker: live.NewBroker(8),
		issuer: auth.NewIssuer(testSecret, time.Hour),
		event:  ev,
	}

	deps := Deps{
		Services:        service.NewServices(store, nil, reminder.NewLocalClaimer(), service.Config{}),
		Effects:         env.sink,
		Verifier:        auth.NewVerifier(testSecret),
		Feed:            env.broker,
		RequestTimeout:  5 * time.Second,
		StreamHeartbeat: time.Hour,
	}
	if mutate != nil {
		mutate(&deps)
	}

	env.router = NewRouter(deps, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return env
}

func (e *testEnv) actor(t *testing.T, role domain.Role) (domain.Actor, string) {
	t.Helper()
	a := domain.Actor{ID: uuid.New(), Role: role}
	tok, err := e.issuer.Issue(a)
	require.NoError(t, err)
	return a, tok
}

func (e *testEnv) assign(t *testing.T, staffID uuid.UUID) {
	t.Helper()
	require.NoError(t, e.store.Repos().Staff().Assign(context.Background(), e.event.ID, staffID))
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	}

	req := httptest.NewRequest(method, path, rdr)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeErr(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func (e *testEnv) register(t *testing.T, token string) domain.Registration {
	t.Helper()
	w := e.do(t, http.MethodPost, "/registrations", token, RegisterRequest{EventID: e.event.ID.String()})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp RegistrationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Registration
}

func TestHealthzIsPublic(t *testing.T) {
	env := newEnv(t, nil)
	w := env.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuth(t *testing.T) {
	env := newEnv(t, nil)

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"not bearer", "Basic abc"},
		{"bad token", "Bearer nope"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/registrations", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			env.router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, "UNAUTHORIZED", decodeErr(t, w).Kind)
		})
	}
}

func TestRegister(t *testing.T) {
	env := newEnv(t, nil)
	student, tok := env.actor(t, domain.RoleStudent)

	reg := env.register(t, tok)
	assert.Equal(t, student.ID, reg.UserID)
	assert.Equal(t, domain.RegistrationConfirmed, reg.Status)
	assert.Len(t, reg.Code, 64)

	w := env.do(t, http.MethodPost, "/registrations", tok, RegisterRequest{EventID: env.event.ID.String()})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "ALREADY_EXISTS", decodeErr(t, w).Kind)

	_, other := env.actor(t, domain.RoleStudent)
	env.register(t, other)

	_, third := env.actor(t, domain.RoleStudent)
	w = env.do(t, http.MethodPost, "/registrations", third, RegisterRequest{EventID: env.event.ID.String()})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "CAPACITY_EXCEEDED", decodeErr(t, w).Kind)

	w = env.do(t, http.MethodPost, "/registrations", third, RegisterRequest{EventID: uuid.NewString()})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodPost, "/registrations", third, map[string]string{"event_id": "42"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_ARGUMENT", decodeErr(t, w).Kind)

	assert.Equal(t, []domain.EffectKind{domain.EffectRegistered, domain.EffectRegistered}, env.sink.kinds())
}

func TestRegister_Idempotent(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	env := newEnv(t, func(d *Deps) {
		d.Idempotency = redisrepo.NewIdempotencyStore(rdb, time.Hour)
	})
	_, tok := env.actor(t, domain.RoleStudent)
	body := RegisterRequest{EventID: env.event.ID.String()}

	first := env.do(t, http.MethodPost, "/registrations", tok, body, "Idempotency-Key", "k-1")
	require.Equal(t, http.StatusCreated, first.Code)

	second := env.do(t, http.MethodPost, "/registrations", tok, body, "Idempotency-Key", "k-1")
	require.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, "k-1", second.Header().Get("Idempotency-Key"))
	assert.JSONEq(t, first.Body.String(), second.Body.String())

	assert.Len(t, env.sink.kinds(), 1)
}

func TestRegister_IdempotencyKeyBoundToEvent(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	env := newEnv(t, func(d *Deps) {
		d.Idempotency = redisrepo.NewIdempotencyStore(rdb, time.Hour)
	})
	other := env.event
	other.ID = uuid.New()
	other.Title = "Second Workshop"
	env.store.SeedEvent(other)

	_, tok := env.actor(t, domain.RoleStudent)

	first := env.do(t, http.MethodPost, "/registrations", tok, RegisterRequest{EventID: env.event.ID.String()}, "Idempotency-Key", "k-2")
	require.Equal(t, http.StatusCreated, first.Code)

	reused := env.do(t, http.MethodPost, "/registrations", tok, RegisterRequest{EventID: other.ID.String()}, "Idempotency-Key", "k-2")
	assert.Equal(t, http.StatusConflict, reused.Code)
	assert.Equal(t, "CONFLICT", decodeErr(t, reused).Kind)

	n, err := env.store.Repos().Registrations().CountConfirmed(context.Background(), other.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, env.sink.kinds(), 1)
}

func TestRegister_RateLimited(t *testing.T) {
	env := newEnv(t, func(d *Deps) { d.RegisterLimiter = denyLimiter{} })
	_, tok := env.actor(t, domain.RoleStudent)

	w := env.do(t, http.MethodPost, "/registrations", tok, RegisterRequest{EventID: env.event.ID.String()})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "42", w.Header().Get("Retry-After"))
	assert.Equal(t, "RATE_LIMITED", decodeErr(t, w).Kind)
}

func TestCancel(t *testing.T) {
	env := newEnv(t, nil)
	_, owner := env.actor(t, domain.RoleStudent)
	_, stranger := env.actor(t, domain.RoleStudent)
	reg := env.register(t, owner)

	w := env.do(t, http.MethodDelete, "/registrations/"+reg.ID.String(), stranger, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(t, http.MethodDelete, "/registrations/"+reg.ID.String(), owner, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = env.do(t, http.MethodDelete, "/registrations/"+reg.ID.String(), owner, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodDelete, "/registrations/not-a-uuid", owner, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCheckIn(t *testing.T) {
	env := newEnv(t, nil)
	_, studentTok := env.actor(t, domain.RoleStudent)
	staff, staffTok := env.actor(t, domain.RoleStaff)
	_, strangerTok := env.actor(t, domain.RoleStaff)
	env.assign(t, staff.ID)

	reg := env.register(t, studentTok)

	w := env.do(t, http.MethodPost, "/checkin", studentTok, CheckInRequest{Code: reg.Code})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(t, http.MethodPost, "/checkin", staffTok, CheckInRequest{Code: "bogus"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "invalid code", decodeErr(t, w).Error)

	w = env.do(t, http.MethodPost, "/checkin", staffTok, CheckInRequest{Code: reg.Code, Method: "BLUETOOTH"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/checkin", strangerTok, CheckInRequest{Code: reg.Code})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "not assigned to this event", decodeErr(t, w).Error)

	w = env.do(t, http.MethodPost, "/checkin", staffTok, CheckInRequest{Code: reg.Code})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp CheckInResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, domain.MethodQRCode, resp.CheckIn.Method)
	require.NotNil(t, resp.CheckIn.CheckedInBy)
	assert.Equal(t, staff.ID, *resp.CheckIn.CheckedInBy)

	w = env.do(t, http.MethodPost, "/checkin/manual", staffTok, ManualCheckInRequest{Code: reg.Code})
	assert.Equal(t, http.StatusConflict, w.Code)
	er := decodeErr(t, w)
	assert.Equal(t, "CONFLICT", er.Kind)
	assert.Equal(t, resp.CheckIn.CheckedInAt.UTC().Format(time.RFC3339Nano), er.Details["checked_in_at"])

	assert.Contains(t, env.sink.kinds(), domain.EffectCheckedIn)
}

func TestCheckIn_OutOfWindow(t *testing.T) {
	env := newEnv(t, nil)
	env.event.StartDate = time.Now().Add(3 * time.Hour).UTC()
	env.event.EndDate = env.event.StartDate.Add(time.Hour)
	env.store.SeedEvent(env.event)

	_, studentTok := env.actor(t, domain.RoleStudent)
	_, adminTok := env.actor(t, domain.RoleAdmin)
	reg := env.register(t, studentTok)

	w := env.do(t, http.MethodPost, "/checkin", adminTok, CheckInRequest{Code: reg.Code, Method: "manual"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	er := decodeErr(t, w)
	assert.Equal(t, "OUT_OF_WINDOW", er.Kind)
	assert.Equal(t, "too_early", er.Details["reason"])
}

func TestGetEvent_ETag(t *testing.T) {
	env := newEnv(t, nil)
	_, tok := env.actor(t, domain.RoleStudent)
	env.register(t, tok)

	w := env.do(t, http.MethodGet, "/events/"+env.event.ID.String(), tok, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var s domain.EventSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &s))
	assert.EqualValues(t, 1, s.Registered)
	assert.EqualValues(t, 1, s.Remaining)

	tag := w.Header().Get("ETag")
	require.NotEmpty(t, tag)

	w = env.do(t, http.MethodGet, "/events/"+env.event.ID.String(), tok, nil, "If-None-Match", tag)
	assert.Equal(t, http.StatusNotModified, w.Code)
}

func TestTicketDownloads(t *testing.T) {
	env := newEnv(t, nil)
	_, owner := env.actor(t, domain.RoleStudent)
	_, stranger := env.actor(t, domain.RoleStudent)
	reg := env.register(t, owner)

	w := env.do(t, http.MethodGet, "/registrations/"+reg.ID.String()+"/qr?size=128", owner, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))

	w = env.do(t, http.MethodGet, "/registrations/"+reg.ID.String()+"/ticket.pdf", owner, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF-")))

	w = env.do(t, http.MethodGet, "/registrations/"+reg.ID.String()+"/qr", stranger, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestStaffAndAnnouncements(t *testing.T) {
	env := newEnv(t, nil)
	_, adminTok := env.actor(t, domain.RoleAdmin)
	staff, staffTok := env.actor(t, domain.RoleStaff)
	_, studentTok := env.actor(t, domain.RoleStudent)
	base := "/events/" + env.event.ID.String()

	w := env.do(t, http.MethodPost, base+"/staff", staffTok, AssignStaffRequest{StaffID: staff.ID.String()})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(t, http.MethodPost, base+"/staff", adminTok, AssignStaffRequest{StaffID: staff.ID.String()})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = env.do(t, http.MethodPost, base+"/staff", adminTok, AssignStaffRequest{StaffID: staff.ID.String()})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(t, http.MethodGet, base+"/staff", staffTok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list StaffListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, []string{staff.ID.String()}, list.StaffIDs)

	env.register(t, studentTok)

	w = env.do(t, http.MethodPost, base+"/announcements", staffTok,
		CreateAnnouncementRequest{Title: "Room change", Content: "We moved to B-201", Priority: "high"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = env.do(t, http.MethodPost, base+"/announcements", studentTok,
		CreateAnnouncementRequest{Title: "x", Content: "y"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(t, http.MethodGet, base+"/announcements", studentTok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var anns []domain.Announcement
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &anns))
	require.Len(t, anns, 1)
	assert.Equal(t, domain.PriorityHigh, anns[0].Priority)

	w = env.do(t, http.MethodGet, base+"/registrations", staffTok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var rows []domain.AttendeeRow
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rows))
	assert.Len(t, rows, 1)

	w = env.do(t, http.MethodDelete, base+"/staff/"+staff.ID.String(), adminTok, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = env.do(t, http.MethodGet, base+"/registrations", staffTok, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	assert.Equal(t, []domain.EffectKind{
		domain.EffectStaffAssigned,
		domain.EffectRegistered,
		domain.EffectAnnouncement,
		domain.EffectStaffUnassigned,
	}, env.sink.kinds())
}

func TestCheckInStream(t *testing.T) {
	env := newEnv(t, nil)
	staff, staffTok := env.actor(t, domain.RoleStaff)
	env.assign(t, staff.ID)

	srv := httptest.NewServer(env.router)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		srv.URL+"/events/"+env.event.ID.String()+"/checkins/stream", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+staffTok)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	require.NoError(t, err)
	assert.Equal(t, "text/event-stream", mediaType)

	lines := bufio.NewScanner(resp.Body)
	waitFor := func(event string) string {
		for lines.Scan() {
			name, ok := strings.CutPrefix(lines.Text(), "event:")
			if ok && strings.TrimSpace(name) == event {
				require.True(t, lines.Scan())
				return lines.Text()
			}
		}
		t.Fatalf("stream ended before %q", event)
		return ""
	}

	waitFor("ready")

	userID := uuid.New()
	require.NoError(t, env.broker.PublishCheckIn(ctx, env.event.ID, userID, "QR_CODE", time.Now()))

	data := waitFor(live.TypeCheckedIn)
	assert.Contains(t, data, userID.String())
}

func TestCheckInStream_Forbidden(t *testing.T) {
	env := newEnv(t, nil)
	_, tok := env.actor(t, domain.RoleStaff)

	w := env.do(t, http.MethodGet, "/events/"+env.event.ID.String()+"/checkins/stream", tok, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
