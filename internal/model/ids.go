package model

import (
	"strings"
	"sync"

	"github.com/google/uuid"
)

// LocalIDPrefix marks identifiers minted on this client.
const LocalIDPrefix = "LOCAL-"

// IsLocalID reports whether id was minted on this client and still needs
// remapping before it can be sent to the remote system.
func IsLocalID(id string) bool {
	return strings.HasPrefix(id, LocalIDPrefix)
}

// IDGenerator mints identifiers. Implemented by UUIDv7Generator (production)
// and FixedIDGenerator (tests).
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 identifiers.
//
// Thread-safety: stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate returns a hyphenated UUIDv7.
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// NewLocalID mints a local identifier from gen.
func NewLocalID(gen IDGenerator) string {
	return LocalIDPrefix + gen.Generate()
}

// FixedIDGenerator returns predetermined identifiers in order.
//
// Thread-safety: safe for concurrent use via internal mutex.
type FixedIDGenerator struct {
	mu  sync.Mutex
	ids []string
	idx int
}

// NewFixedIDGenerator creates a generator that returns ids in order.
func NewFixedIDGenerator(ids ...string) *FixedIDGenerator {
	return &FixedIDGenerator{ids: ids}
}

// Generate returns the next predetermined id.
// Panics if all ids have been consumed, which catches test misconfiguration.
func (g *FixedIDGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.ids) {
		panic("FixedIDGenerator: all ids exhausted")
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}
