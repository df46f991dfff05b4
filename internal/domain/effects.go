package domain

import (
	"time"

	"github.com/google/uuid"
)

type EffectKind string

const (
	EffectRegistered            EffectKind = "registered"
	EffectRegistrationCancelled EffectKind = "registration_cancelled"
	EffectCheckedIn             EffectKind = "checked_in"
	EffectAnnouncement          EffectKind = "announcement"
	EffectStartingSoon          EffectKind = "starting_soon"
	EffectFeedbackReminder      EffectKind = "feedback_reminder"
	EffectStaffAssigned         EffectKind = "staff_assigned"
	EffectStaffUnassigned       EffectKind = "staff_unassigned"
)

// Effect is a side effect produced by a committed unit of work. Services
// return effects instead of performing them; a dispatcher drains them after
// the response is decided.
type Effect struct {
	Kind       EffectKind
	ActorID    uuid.UUID
	UserIDs    []uuid.UUID
	EventID    uuid.UUID
	EventTitle string
	EventStart time.Time
	EventEnd   time.Time
	EntityID   uuid.UUID
	Method     CheckInMethod
	Title      string
	At         time.Time
}

type Effects []Effect
