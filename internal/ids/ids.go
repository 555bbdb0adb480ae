// Package ids generates order and fill identifiers.
package ids

import (
	cryptoRand "crypto/rand"
	"encoding/binary"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// Source produces identifiers stamped with the event time.
type Source interface {
	New(at time.Time) string
}

// ULIDSource returns time-sortable ULIDs. Identifiers generated within the
// same millisecond stay lexicographically increasing.
type ULIDSource struct {
	mu      sync.Mutex
	entropy io.Reader
}

// NewULIDSource returns a deterministic source: the same seed and the same
// sequence of timestamps yield the same identifiers.
func NewULIDSource(seed int64) *ULIDSource {
	return &ULIDSource{entropy: ulid.Monotonic(rand.New(rand.NewSource(seed)), 0)}
}

// NewRandomULIDSource returns a source seeded from crypto/rand.
func NewRandomULIDSource() *ULIDSource {
	var seed int64
	_ = binary.Read(cryptoRand.Reader, binary.LittleEndian, &seed)
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return NewULIDSource(seed)
}

// New returns a ULID string for at.
func (s *ULIDSource) New(at time.Time) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := ulid.New(ulid.Timestamp(at.UTC()), s.entropy)
	if err != nil {
		// Monotonic entropy only fails on overflow within one millisecond.
		panic(err)
	}
	return id.String()
}

// UUIDSource returns random version 4 UUIDs. Exchanges accept them as
// client order identifiers.
type UUIDSource struct{}

// New returns a fresh UUID; the time is ignored.
func (UUIDSource) New(time.Time) string {
	return uuid.NewString()
}
