// Package ticket issues the opaque codes that prove a paid booking.
//
// A code binds together the event, the attendee, the booking and the moment
// of issuance. The encoding is stable: audit tooling can parse a code back
// into its constituent identifiers without touching the ledger.
package ticket

import (
	"encoding/base32"
	"encoding/binary"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

const prefix = "TKT-"

// payload: eventID (16) + attendeeID (16) + bookingID (16) + issued-at unix nano (8).
const payloadLen = 16 + 16 + 16 + 8

var encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

var ErrMalformedCode = errors.New("malformed ticket code")

// Code is the decoded form of a ticket code.
type Code struct {
	EventID    uuid.UUID
	AttendeeID uuid.UUID
	BookingID  uuid.UUID
	IssuedAt   time.Time
}

// Issue mints the code for a booking. Uniqueness across the whole system
// follows from the booking ID being embedded verbatim; callers must persist
// the code once and return the stored value on re-issue.
func Issue(eventID, attendeeID, bookingID uuid.UUID, issuedAt time.Time) string {
	buf := make([]byte, 0, payloadLen)
	buf = append(buf, eventID[:]...)
	buf = append(buf, attendeeID[:]...)
	buf = append(buf, bookingID[:]...)
	buf = binary.BigEndian.AppendUint64(buf, uint64(issuedAt.UnixNano()))

	return prefix + encoding.EncodeToString(buf)
}

// Parse decodes a code back into its components.
//
// Returns:
//   - Code: the decoded identifiers and issuance time.
//   - error: ticket.ErrMalformedCode if the value is not a ticket code.
func Parse(code string) (Code, error) {
	raw, ok := strings.CutPrefix(code, prefix)
	if !ok {
		return Code{}, ErrMalformedCode
	}

	buf, err := encoding.DecodeString(raw)
	if err != nil || len(buf) != payloadLen {
		return Code{}, ErrMalformedCode
	}

	var c Code
	copy(c.EventID[:], buf[0:16])
	copy(c.AttendeeID[:], buf[16:32])
	copy(c.BookingID[:], buf[32:48])
	c.IssuedAt = time.Unix(0, int64(binary.BigEndian.Uint64(buf[48:56]))).UTC()

	return c, nil
}
