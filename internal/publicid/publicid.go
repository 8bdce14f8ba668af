// Package publicid issues durable public-facing identifiers. Internal
// snowflake IDs never leave the API surface; records expose a prefixed ULID
// instead so internal renumbering stays invisible.
package publicid

import (
	"crypto/rand"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/fx"
)

// Entity kinds with registered prefixes.
const (
	KindCommission = "commission"
	KindRule       = "commission_rule"
)

var prefixes = map[string]string{
	KindCommission: "comm",
	KindRule:       "rule",
}

var ErrUnknownKind = errors.New("unknown entity kind")

// Generator issues unique public IDs per entity kind. Monotonic entropy keeps
// IDs sortable within a process; uniqueness across processes comes from the
// ULID randomness.
type Generator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

func NewGenerator() *Generator {
	return &Generator{
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// Generate returns a new public ID for the entity kind, e.g. "comm_01J...".
func (g *Generator) Generate(kind string) (string, error) {
	prefix, ok := prefixes[strings.TrimSpace(kind)]
	if !ok {
		return "", ErrUnknownKind
	}

	g.mu.Lock()
	id, err := ulid.New(ulid.Timestamp(time.Now().UTC()), g.entropy)
	g.mu.Unlock()
	if err != nil {
		return "", err
	}

	return prefix + "_" + id.String(), nil
}

// Module wires the public ID generator.
var Module = fx.Module("publicid",
	fx.Provide(NewGenerator),
)
