package registration

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MaxCodeLen bounds the ticket code so it fits a QR code at a low version.
const MaxCodeLen = 64

// CodeFunc derives a ticket code for a user and event at a given instant.
type CodeFunc func(userID, eventID uuid.UUID, at time.Time) (string, error)

// NewCode packs the user and event ids, the timestamp in nanoseconds and
// 8 random bytes into 48 bytes and encodes them URL-safe without padding.
// The encoding is exactly MaxCodeLen characters, so nothing is truncated.
func NewCode(userID, eventID uuid.UUID, at time.Time) (string, error) {
	const op = "service.registration.NewCode"

	var buf [48]byte
	copy(buf[0:16], userID[:])
	copy(buf[16:32], eventID[:])
	binary.BigEndian.PutUint64(buf[32:40], uint64(at.UnixNano()))

	if _, err := rand.Read(buf[40:48]); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	code := base64.RawURLEncoding.EncodeToString(buf[:])
	if len(code) > MaxCodeLen {
		code = code[:MaxCodeLen]
	}

	return code, nil
}
