package memory

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/campusgo/internal/domain"
	"github.com/kirinyoku/campusgo/internal/repository"
)

type eventRepo struct{ b base }

func (r *eventRepo) Get(_ context.Context, id uuid.UUID) (*domain.Event, error) {
	const op = "memory.EventRepo.Get"

	var out *domain.Event
	err := r.b.view(func(st *state) error {
		e, ok := st.events[id]
		if !ok {
			return fmt.Errorf("%s: %w", op, repository.ErrNotFound)
		}
		out = &e
		return nil
	})

	return out, err
}

// GetForUpdate is Get: units of work never overlap here.
func (r *eventRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Event, error) {
	return r.Get(ctx, id)
}

func (r *eventRepo) ListStartingBetween(_ context.Context, from, to time.Time) ([]domain.Event, error) {
	return r.list(func(e domain.Event) bool { return between(e.StartDate, from, to) })
}

func (r *eventRepo) ListEndingBetween(_ context.Context, from, to time.Time) ([]domain.Event, error) {
	return r.list(func(e domain.Event) bool { return between(e.EndDate, from, to) })
}

func (r *eventRepo) list(match func(domain.Event) bool) ([]domain.Event, error) {
	out := []domain.Event{}
	err := r.b.view(func(st *state) error {
		for _, e := range st.events {
			if e.Status == domain.EventPublished && match(e) {
				out = append(out, e)
			}
		}
		return nil
	})

	slices.SortFunc(out, func(a, b domain.Event) int { return a.StartDate.Compare(b.StartDate) })

	return out, err
}

func between(t, from, to time.Time) bool {
	return !t.Before(from) && !t.After(to)
}

type registrationRepo struct{ b base }

func (r *registrationRepo) Insert(_ context.Context, reg *domain.Registration) error {
	const op = "memory.RegistrationRepo.Insert"

	return r.b.view(func(st *state) error {
		for _, existing := range st.registrations {
			if existing.Code == reg.Code {
				return fmt.Errorf("%s: %w", op, repository.ErrCodeTaken)
			}
			if existing.UserID == reg.UserID && existing.EventID == reg.EventID {
				return fmt.Errorf("%s: %w", op, repository.ErrConflict)
			}
		}
		if _, ok := st.events[reg.EventID]; !ok {
			return fmt.Errorf("%s: %w", op, repository.ErrNotFound)
		}

		st.registrations[reg.ID] = *reg
		return nil
	})
}

func (r *registrationRepo) Get(_ context.Context, id uuid.UUID) (*domain.Registration, error) {
	return r.find("memory.RegistrationRepo.Get", func(reg domain.Registration) bool {
		return reg.ID == id
	})
}

func (r *registrationRepo) GetByCode(_ context.Context, code string) (*domain.Registration, error) {
	return r.find("memory.RegistrationRepo.GetByCode", func(reg domain.Registration) bool {
		return reg.Code == code
	})
}

func (r *registrationRepo) GetByUserAndEvent(_ context.Context, userID, eventID uuid.UUID) (*domain.Registration, error) {
	return r.find("memory.RegistrationRepo.GetByUserAndEvent", func(reg domain.Registration) bool {
		return reg.UserID == userID && reg.EventID == eventID
	})
}

func (r *registrationRepo) find(op string, match func(domain.Registration) bool) (*domain.Registration, error) {
	var out *domain.Registration
	err := r.b.view(func(st *state) error {
		for _, reg := range st.registrations {
			if match(reg) {
				out = &reg
				return nil
			}
		}
		return fmt.Errorf("%s: %w", op, repository.ErrNotFound)
	})

	return out, err
}

func (r *registrationRepo) CountConfirmed(_ context.Context, eventID uuid.UUID) (int64, error) {
	var n int64
	err := r.b.view(func(st *state) error {
		for _, reg := range st.registrations {
			if reg.EventID == eventID && reg.Status == domain.RegistrationConfirmed {
				n++
			}
		}
		return nil
	})

	return n, err
}

func (r *registrationRepo) Delete(_ context.Context, id uuid.UUID) error {
	const op = "memory.RegistrationRepo.Delete"

	return r.b.view(func(st *state) error {
		if _, ok := st.registrations[id]; !ok {
			return fmt.Errorf("%s: %w", op, repository.ErrNotFound)
		}
		delete(st.registrations, id)
		return nil
	})
}

func (r *registrationRepo) ListByUser(_ context.Context, userID uuid.UUID) ([]domain.RegistrationWithEvent, error) {
	out := []domain.RegistrationWithEvent{}
	err := r.b.view(func(st *state) error {
		for _, reg := range st.registrations {
			if reg.UserID != userID {
				continue
			}
			out = append(out, domain.RegistrationWithEvent{
				Registration: reg,
				Event:        st.events[reg.EventID],
			})
		}
		return nil
	})

	slices.SortFunc(out, func(a, b domain.RegistrationWithEvent) int {
		return b.Registration.RegisteredAt.Compare(a.Registration.RegisteredAt)
	})

	return out, err
}

func (r *registrationRepo) ListByEvent(_ context.Context, eventID uuid.UUID) ([]domain.AttendeeRow, error) {
	out := []domain.AttendeeRow{}
	err := r.b.view(func(st *state) error {
		for _, reg := range st.registrations {
			if reg.EventID != eventID {
				continue
			}

			row := domain.AttendeeRow{Registration: reg}
			if c, ok := checkInFor(st, reg.UserID, eventID); ok {
				at := c.CheckedInAt
				row.CheckedIn = true
				row.CheckedInAt = &at
			}
			out = append(out, row)
		}
		return nil
	})

	slices.SortFunc(out, func(a, b domain.AttendeeRow) int {
		return b.Registration.RegisteredAt.Compare(a.Registration.RegisteredAt)
	})

	return out, err
}

func (r *registrationRepo) ConfirmedUserIDs(_ context.Context, eventID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.b.view(func(st *state) error {
		for _, reg := range st.registrations {
			if reg.EventID == eventID && reg.Status == domain.RegistrationConfirmed {
				ids = append(ids, reg.UserID)
			}
		}
		return nil
	})

	return ids, err
}

type checkInRepo struct{ b base }

func checkInFor(st *state, userID, eventID uuid.UUID) (domain.CheckIn, bool) {
	for _, c := range st.checkIns {
		if c.UserID == userID && c.EventID == eventID {
			return c, true
		}
	}
	return domain.CheckIn{}, false
}

func (r *checkInRepo) Insert(_ context.Context, c *domain.CheckIn) error {
	const op = "memory.CheckInRepo.Insert"

	return r.b.view(func(st *state) error {
		if _, ok := checkInFor(st, c.UserID, c.EventID); ok {
			return fmt.Errorf("%s: %w", op, repository.ErrConflict)
		}
		st.checkIns[c.ID] = *c
		return nil
	})
}

func (r *checkInRepo) GetByUserAndEvent(_ context.Context, userID, eventID uuid.UUID) (*domain.CheckIn, error) {
	const op = "memory.CheckInRepo.GetByUserAndEvent"

	var out *domain.CheckIn
	err := r.b.view(func(st *state) error {
		c, ok := checkInFor(st, userID, eventID)
		if !ok {
			return fmt.Errorf("%s: %w", op, repository.ErrNotFound)
		}
		out = &c
		return nil
	})

	return out, err
}

func (r *checkInRepo) ListByEvent(_ context.Context, eventID uuid.UUID) ([]domain.CheckIn, error) {
	out := []domain.CheckIn{}
	err := r.b.view(func(st *state) error {
		for _, c := range st.checkIns {
			if c.EventID == eventID {
				out = append(out, c)
			}
		}
		return nil
	})

	slices.SortFunc(out, func(a, b domain.CheckIn) int { return b.CheckedInAt.Compare(a.CheckedInAt) })

	return out, err
}

type staffRepo struct{ b base }

func (r *staffRepo) IsAssigned(_ context.Context, eventID, staffID uuid.UUID) (bool, error) {
	var ok bool
	err := r.b.view(func(st *state) error {
		_, ok = st.staff[eventID][staffID]
		return nil
	})

	return ok, err
}

func (r *staffRepo) Assign(_ context.Context, eventID, staffID uuid.UUID) error {
	const op = "memory.StaffRepo.Assign"

	return r.b.view(func(st *state) error {
		if _, ok := st.events[eventID]; !ok {
			return fmt.Errorf("%s: %w", op, repository.ErrNotFound)
		}

		set, ok := st.staff[eventID]
		if !ok {
			set = map[uuid.UUID]struct{}{}
			st.staff[eventID] = set
		}
		if _, dup := set[staffID]; dup {
			return fmt.Errorf("%s: %w", op, repository.ErrConflict)
		}

		set[staffID] = struct{}{}
		return nil
	})
}

func (r *staffRepo) Unassign(_ context.Context, eventID, staffID uuid.UUID) error {
	const op = "memory.StaffRepo.Unassign"

	return r.b.view(func(st *state) error {
		if _, ok := st.staff[eventID][staffID]; !ok {
			return fmt.Errorf("%s: %w", op, repository.ErrNotFound)
		}
		delete(st.staff[eventID], staffID)
		return nil
	})
}

func (r *staffRepo) ListStaff(_ context.Context, eventID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.b.view(func(st *state) error {
		ids = slices.Collect(maps.Keys(st.staff[eventID]))
		return nil
	})

	slices.SortFunc(ids, func(a, b uuid.UUID) int { return cmp.Compare(a.String(), b.String()) })

	return ids, err
}

type notificationRepo struct{ b base }

func (r *notificationRepo) InsertMany(_ context.Context, ns []domain.Notification) error {
	return r.b.view(func(st *state) error {
		st.notifications = append(st.notifications, ns...)
		return nil
	})
}

type auditRepo struct{ b base }

func (r *auditRepo) Append(_ context.Context, e *domain.AuditEntry) error {
	return r.b.view(func(st *state) error {
		entry := *e
		if entry.Details == nil {
			entry.Details = map[string]any{}
		}
		st.audit = append(st.audit, entry)
		return nil
	})
}

type announcementRepo struct{ b base }

func (r *announcementRepo) Insert(_ context.Context, a *domain.Announcement) error {
	const op = "memory.AnnouncementRepo.Insert"

	return r.b.view(func(st *state) error {
		if _, ok := st.events[a.EventID]; !ok {
			return fmt.Errorf("%s: %w", op, repository.ErrNotFound)
		}
		st.announcements[a.ID] = *a
		return nil
	})
}

func (r *announcementRepo) ListByEvent(_ context.Context, eventID uuid.UUID) ([]domain.Announcement, error) {
	out := []domain.Announcement{}
	err := r.b.view(func(st *state) error {
		for _, a := range st.announcements {
			if a.EventID == eventID {
				out = append(out, a)
			}
		}
		return nil
	})

	slices.SortFunc(out, func(a, b domain.Announcement) int {
		if c := cmp.Compare(b.Priority.Rank(), a.Priority.Rank()); c != 0 {
			return c
		}
		return b.PublishedAt.Compare(a.PublishedAt)
	})

	return out, err
}

type userRepo struct{ b base }

func (r *userRepo) Contact(_ context.Context, id uuid.UUID) (*domain.UserContact, error) {
	const op = "memory.UserRepo.Contact"

	var out *domain.UserContact
	err := r.b.view(func(st *state) error {
		u, ok := st.users[id]
		if !ok {
			return fmt.Errorf("%s: %w", op, repository.ErrNotFound)
		}
		out = &u
		return nil
	})

	return out, err
}
