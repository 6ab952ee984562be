package core

import (
	"fmt"
	"io"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// IDGenerator produces globally unique opaque identifiers.
type IDGenerator interface {
	NewID() string
}

// UUIDGenerator issues random (v4) UUIDs.
type UUIDGenerator struct{}

func (UUIDGenerator) NewID() string {
	return uuid.NewString()
}

// ULIDGenerator issues lexicographically sortable ULIDs. IDs from one
// generator are strictly increasing.
type ULIDGenerator struct {
	mu      sync.Mutex
	entropy io.Reader
}

func NewULIDGenerator() *ULIDGenerator {
	src := rand.New(rand.NewSource(time.Now().UnixNano()))
	return &ULIDGenerator{entropy: ulid.Monotonic(src, 0)}
}

func (g *ULIDGenerator) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy).String()
}

// NewIDGenerator returns the generator for strategy: "uuid" or "ulid".
func NewIDGenerator(strategy string) (IDGenerator, error) {
	switch strings.ToLower(strategy) {
	case "", "uuid":
		return UUIDGenerator{}, nil
	case "ulid":
		return NewULIDGenerator(), nil
	default:
		return nil, fmt.Errorf("unknown id strategy %q", strategy)
	}
}
