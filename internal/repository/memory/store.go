// Package memory is an in-process implementation of the repositories and
// the unit of work. Units of work are serialized behind a single lock and
// run on a copy of the state that replaces the live one only on commit, so
// the uniqueness and capacity guarantees match the Postgres store.
package memory

import (
	"context"
	"maps"
	"slices"

	"github.com/google/uuid"
	"github.com/kirinyoku/campusgo/internal/domain"
	"github.com/kirinyoku/campusgo/internal/repository"
	"github.com/kirinyoku/campusgo/internal/uow"
)

type state struct {
	events        map[uuid.UUID]domain.Event
	registrations map[uuid.UUID]domain.Registration
	checkIns      map[uuid.UUID]domain.CheckIn
	staff         map[uuid.UUID]map[uuid.UUID]struct{}
	notifications []domain.Notification
	audit         []domain.AuditEntry
	announcements map[uuid.UUID]domain.Announcement
	users         map[uuid.UUID]domain.UserContact
}

func newState() *state {
	return &state{
		events:        map[uuid.UUID]domain.Event{},
		registrations: map[uuid.UUID]domain.Registration{},
		checkIns:      map[uuid.UUID]domain.CheckIn{},
		staff:         map[uuid.UUID]map[uuid.UUID]struct{}{},
		announcements: map[uuid.UUID]domain.Announcement{},
		users:         map[uuid.UUID]domain.UserContact{},
	}
}

func (s *state) clone() *state {
	staff := make(map[uuid.UUID]map[uuid.UUID]struct{}, len(s.staff))
	for eventID, set := range s.staff {
		staff[eventID] = maps.Clone(set)
	}

	return &state{
		events:        maps.Clone(s.events),
		registrations: maps.Clone(s.registrations),
		checkIns:      maps.Clone(s.checkIns),
		staff:         staff,
		notifications: slices.Clone(s.notifications),
		audit:         slices.Clone(s.audit),
		announcements: maps.Clone(s.announcements),
		users:         maps.Clone(s.users),
	}
}

// Store holds all data in memory. The zero value is not usable; call New.
// Store guards its state with a one-slot semaphore rather than a mutex so a
// unit of work waiting for the store can give up when its context ends.
type Store struct {
	sem chan struct{}
	st  *state
}

var _ uow.Runner = (*Store)(nil)

func New() *Store {
	return &Store{sem: make(chan struct{}, 1), st: newState()}
}

// Do runs fn against a private copy of the state. The copy becomes the live
// state only if fn returns nil; hooks run after that, outside the lock.
func (s *Store) Do(ctx context.Context, fn uow.Func) error {
	return s.DoWithOpts(ctx, uow.Options{}, fn)
}

// DoWithOpts ignores the isolation level: every unit of work is already
// fully serialized.
func (s *Store) DoWithOpts(ctx context.Context, _ uow.Options, fn uow.Func) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	hooks, err := s.run(ctx, fn)
	if err != nil {
		return err
	}

	for _, h := range hooks {
		h(ctx)
	}

	return nil
}

// run applies fn to a copy of the state under the lock and commits the copy
// if fn succeeds.
func (s *Store) run(ctx context.Context, fn uow.Func) ([]uow.AfterCommit, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.release()

	var hooks []uow.AfterCommit

	work := s.st.clone()
	err := fn(ctx, repos{base: base{st: work}}, func(h uow.AfterCommit) {
		hooks = append(hooks, h)
	})
	if err != nil {
		return nil, err
	}

	s.st = work

	return hooks, nil
}

func (s *Store) acquire(ctx context.Context) error {
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) lock() { s.sem <- struct{}{} }

func (s *Store) release() { <-s.sem }

// Repos returns repositories that each lock the store per call.
func (s *Store) Repos() repository.Repos {
	return repos{base: base{s: s}}
}

// SeedEvent upserts an event. The catalog is owned by another subsystem;
// this is how tests and local runs populate it.
func (s *Store) SeedEvent(e domain.Event) {
	s.lock()
	defer s.release()
	s.st.events[e.ID] = e
}

func (s *Store) SeedUser(u domain.UserContact) {
	s.lock()
	defer s.release()
	s.st.users[u.ID] = u
}

// Notifications returns a copy of every stored notification.
func (s *Store) Notifications() []domain.Notification {
	s.lock()
	defer s.release()
	return slices.Clone(s.st.notifications)
}

// AuditEntries returns a copy of the audit log in append order.
func (s *Store) AuditEntries() []domain.AuditEntry {
	s.lock()
	defer s.release()
	return slices.Clone(s.st.audit)
}

// base gives a repository access to the state. Inside a unit of work st is
// the private copy; otherwise s is set and every call takes the lock.
type base struct {
	st *state
	s  *Store
}

func (b base) view(fn func(st *state) error) error {
	if b.s != nil {
		b.s.lock()
		defer b.s.release()
		return fn(b.s.st)
	}
	return fn(b.st)
}

type repos struct {
	base base
}

func (r repos) Events() repository.EventReader              { return &eventRepo{r.base} }
func (r repos) Registrations() repository.TicketStore       { return &registrationRepo{r.base} }
func (r repos) CheckIns() repository.CheckInLedger          { return &checkInRepo{r.base} }
func (r repos) Staff() repository.StaffAssignments          { return &staffRepo{r.base} }
func (r repos) Notifications() repository.NotificationStore { return &notificationRepo{r.base} }
func (r repos) Audit() repository.AuditStore                { return &auditRepo{r.base} }
func (r repos) Announcements() repository.AnnouncementStore { return &announcementRepo{r.base} }
func (r repos) Users() repository.UserDirectory             { return &userRepo{r.base} }
