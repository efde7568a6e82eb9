// Package ids generates credential and event identifiers.
package ids

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewCredentialID returns a fresh urn:uuid credential identifier.
func NewCredentialID() string {
	return "urn:uuid:" + uuid.NewString()
}

// NewEventID returns a lexicographically sortable identifier for t.
func NewEventID(t time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}
