package redisrepo

import (
	"fmt"

	"github.com/google/uuid"
)

const ns = "campusgo:v1"

func KeyEventSummary(eventID uuid.UUID) string {
	return fmt.Sprintf("%s:event:%s:summary", ns, eventID)
}

func KeyEventAnnouncements(eventID uuid.UUID) string {
	return fmt.Sprintf("%s:event:%s:announcements", ns, eventID)
}

func KeyRateLimit(scope, id string) string {
	return fmt.Sprintf("%s:rl:%s:%s", ns, scope, id)
}

func KeyIdemRegister(userID uuid.UUID, idemKey string) string {
	return fmt.Sprintf("%s:idem:registrations:%s:%s", ns, userID, idemKey)
}

func KeyReminder(kind string, eventID uuid.UUID) string {
	return fmt.Sprintf("%s:reminder:%s:%s", ns, kind, eventID)
}

func ChannelEventsChanged() string {
	return ns + ":events:changed"
}

func ChannelCheckIns() string {
	return ns + ":checkins"
}
