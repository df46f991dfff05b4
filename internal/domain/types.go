package domain

import (
	"time"

	"github.com/google/uuid"
)

type EventStatus string

const (
	EventDraft     EventStatus = "DRAFT"
	EventPublished EventStatus = "PUBLISHED"
	EventCancelled EventStatus = "CANCELLED"
)

type RegistrationStatus string

const (
	RegistrationConfirmed RegistrationStatus = "CONFIRMED"
	RegistrationCancelled RegistrationStatus = "CANCELLED"
)

type CheckInMethod string

const (
	MethodQRCode CheckInMethod = "QR_CODE"
	MethodManual CheckInMethod = "MANUAL"
)

func (m CheckInMethod) Valid() bool {
	return m == MethodQRCode || m == MethodManual
}

type Event struct {
	ID        uuid.UUID   `json:"id"`
	Title     string      `json:"title"`
	Capacity  int         `json:"capacity"`
	StartDate time.Time   `json:"start_date"`
	EndDate   time.Time   `json:"end_date"`
	Status    EventStatus `json:"status"`
}

// Registration is a ticket: a confirmed intent to attend bound to a unique
// opaque code. The code is the only lookup key used by check-in.
type Registration struct {
	ID           uuid.UUID          `json:"id"`
	UserID       uuid.UUID          `json:"user_id"`
	EventID      uuid.UUID          `json:"event_id"`
	Code         string             `json:"code"`
	Status       RegistrationStatus `json:"status"`
	RegisteredAt time.Time          `json:"registered_at"`
}

// CheckIn is the attendance record of truth. At most one exists per
// (UserID, EventID) and it is never mutated or deleted.
type CheckIn struct {
	ID          uuid.UUID     `json:"id"`
	UserID      uuid.UUID     `json:"user_id"`
	EventID     uuid.UUID     `json:"event_id"`
	Method      CheckInMethod `json:"method"`
	CheckedInBy *uuid.UUID    `json:"checked_in_by_staff_id"`
	CheckedInAt time.Time     `json:"checked_in_at"`
}

type StaffAssignment struct {
	EventID uuid.UUID `json:"event_id"`
	StaffID uuid.UUID `json:"staff_id"`
}

type EventSummary struct {
	Event      Event `json:"event"`
	Registered int64 `json:"registered"`
	Remaining  int64 `json:"remaining"`
}

type RegistrationWithEvent struct {
	Registration Registration `json:"registration"`
	Event        Event        `json:"event"`
}

type AttendeeRow struct {
	Registration Registration `json:"registration"`
	CheckedIn    bool         `json:"checked_in"`
	CheckedInAt  *time.Time   `json:"checked_in_at,omitempty"`
}

type UserContact struct {
	ID    uuid.UUID
	Name  string
	Email string
}

type NotificationType string

const (
	NotifyRegistrationConfirmed NotificationType = "REGISTRATION_CONFIRMED"
	NotifyCheckInSuccess        NotificationType = "CHECK_IN_SUCCESS"
	NotifyAnnouncement          NotificationType = "ANNOUNCEMENT"
	NotifyEventReminder         NotificationType = "EVENT_REMINDER"
)

type Notification struct {
	ID      uuid.UUID        `json:"id"`
	UserID  uuid.UUID        `json:"user_id"`
	Type    NotificationType `json:"type"`
	Title   string           `json:"title"`
	Message string           `json:"message"`
	Read    bool             `json:"read"`
	SentAt  time.Time        `json:"sent_at"`
}

type AuditEntry struct {
	ID         uuid.UUID      `json:"id"`
	ActorID    *uuid.UUID     `json:"actor_id"`
	Action     string         `json:"action"`
	EntityType string         `json:"entity_type"`
	EntityID   *uuid.UUID     `json:"entity_id"`
	Details    map[string]any `json:"details"`
	CreatedAt  time.Time      `json:"created_at"`
}

type AnnouncementPriority string

const (
	PriorityLow    AnnouncementPriority = "LOW"
	PriorityNormal AnnouncementPriority = "NORMAL"
	PriorityHigh   AnnouncementPriority = "HIGH"
	PriorityUrgent AnnouncementPriority = "URGENT"
)

// Rank orders priorities for listing; unknown values rank lowest.
func (p AnnouncementPriority) Rank() int {
	switch p {
	case PriorityUrgent:
		return 3
	case PriorityHigh:
		return 2
	case PriorityNormal:
		return 1
	default:
		return 0
	}
}

func (p AnnouncementPriority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

type Announcement struct {
	ID          uuid.UUID            `json:"id"`
	EventID     uuid.UUID            `json:"event_id"`
	Title       string               `json:"title"`
	Content     string               `json:"content"`
	Priority    AnnouncementPriority `json:"priority"`
	PublishedAt time.Time            `json:"published_at"`
}
