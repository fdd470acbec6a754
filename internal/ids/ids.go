// Package ids generates identifiers for stored records.
package ids

import (
	mathrand "math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// New returns a random UUID for members, groups, expenses and obligations.
func New() string {
	return uuid.New().String()
}

// NewSortable returns a lexicographically sortable identifier stamped with t.
// Settlements use it so history sorts by creation even when timestamps tie.
func NewSortable(t time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}
