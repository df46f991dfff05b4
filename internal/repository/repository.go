package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/campusgo/internal/domain"
)

// EventReader is the read-only view of the event catalog.
type EventReader interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.Event, error)
	// GetForUpdate reads the event and holds a row lock until the
	// surrounding transaction ends.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Event, error)
	ListStartingBetween(ctx context.Context, from, to time.Time) ([]domain.Event, error)
	ListEndingBetween(ctx context.Context, from, to time.Time) ([]domain.Event, error)
}

// TicketStore persists registrations. Insert returns ErrCodeTaken when the
// code collides and ErrConflict when (user, event) is already registered.
type TicketStore interface {
	Insert(ctx context.Context, r *domain.Registration) error
	Get(ctx context.Context, id uuid.UUID) (*domain.Registration, error)
	GetByCode(ctx context.Context, code string) (*domain.Registration, error)
	GetByUserAndEvent(ctx context.Context, userID, eventID uuid.UUID) (*domain.Registration, error)
	CountConfirmed(ctx context.Context, eventID uuid.UUID) (int64, error)
	Delete(ctx context.Context, id uuid.UUID) error
	ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.RegistrationWithEvent, error)
	ListByEvent(ctx context.Context, eventID uuid.UUID) ([]domain.AttendeeRow, error)
	ConfirmedUserIDs(ctx context.Context, eventID uuid.UUID) ([]uuid.UUID, error)
}

// CheckInLedger persists check-ins. Insert returns ErrConflict when a
// check-in for (user, event) already exists; the row is left untouched.
type CheckInLedger interface {
	Insert(ctx context.Context, c *domain.CheckIn) error
	GetByUserAndEvent(ctx context.Context, userID, eventID uuid.UUID) (*domain.CheckIn, error)
	ListByEvent(ctx context.Context, eventID uuid.UUID) ([]domain.CheckIn, error)
}

type StaffAssignments interface {
	IsAssigned(ctx context.Context, eventID, staffID uuid.UUID) (bool, error)
	Assign(ctx context.Context, eventID, staffID uuid.UUID) error
	Unassign(ctx context.Context, eventID, staffID uuid.UUID) error
	ListStaff(ctx context.Context, eventID uuid.UUID) ([]uuid.UUID, error)
}

type NotificationStore interface {
	InsertMany(ctx context.Context, ns []domain.Notification) error
}

type AuditStore interface {
	Append(ctx context.Context, e *domain.AuditEntry) error
}

type AnnouncementStore interface {
	Insert(ctx context.Context, a *domain.Announcement) error
	ListByEvent(ctx context.Context, eventID uuid.UUID) ([]domain.Announcement, error)
}

type UserDirectory interface {
	Contact(ctx context.Context, id uuid.UUID) (*domain.UserContact, error)
}

// Repos is the set of repositories bound to one transaction (or to the
// pool when used outside a unit of work).
type Repos interface {
	Events() EventReader
	Registrations() TicketStore
	CheckIns() CheckInLedger
	Staff() StaffAssignments
	Notifications() NotificationStore
	Audit() AuditStore
	Announcements() AnnouncementStore
	Users() UserDirectory
}
