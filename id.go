package crewsim

import (
	"time"

	"github.com/google/uuid"
)

// NewID generates a globally unique, time-sortable UUIDv7 (RFC 9562).
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// NowMillis returns the current time as Unix milliseconds, the clock unit
// used by snapshots and trigger bookkeeping.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}
