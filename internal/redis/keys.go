package redisx

import (
	"fmt"

	"github.com/google/uuid"
)

const ns = "eventhub:v1"

func KeyEventSummary(eventID uuid.UUID) string {
	return fmt.Sprintf("%s:event:%s:summary", ns, eventID)
}

func KeyEventStats(eventID uuid.UUID) string {
	return fmt.Sprintf("%s:event:%s:stats", ns, eventID)
}

func KeyOrganizerStats(organizerID uuid.UUID) string {
	return fmt.Sprintf("%s:organizer:%s:stats", ns, organizerID)
}

func KeyRateLimit(scope, id string) string {
	return fmt.Sprintf("%s:rl:%s:%s", ns, scope, id)
}

func ChannelBookingsChanged() string {
	return ns + ":bookings:changed"
}
