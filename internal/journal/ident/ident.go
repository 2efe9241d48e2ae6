// Package ident generates record identifiers.
//
// An identifier is "<kind>_<time>_<random>": the entity kind, the creation
// time in base-36 milliseconds and eight hex characters taken from a random
// UUID. Identifiers sort roughly by creation time. Two generated in the same
// millisecond differ only by their random part, so collisions are unlikely
// but not impossible.
package ident

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mschirtzinger/tradejournal/internal/journal/schema"
)

// Generator creates identifiers. The zero value uses the wall clock.
type Generator struct {
	// Now returns the creation time. Nil means time.Now.
	Now func() time.Time
}

// New returns an identifier for a new record of the given kind. It never
// blocks and never fails.
func (g *Generator) New(kind schema.Kind) string {
	now := time.Now
	if g != nil && g.Now != nil {
		now = g.Now
	}
	ms := now().UnixMilli()
	if ms < 0 {
		ms = 0
	}
	random := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return string(kind) + "_" + strconv.FormatInt(ms, 36) + "_" + random
}

var generated = regexp.MustCompile(`^([a-z]+)_([0-9a-z]+)_([0-9a-f]{8})$`)

// Valid reports whether id has the generated format for kind.
func Valid(kind schema.Kind, id string) bool {
	m := generated.FindStringSubmatch(id)
	return m != nil && m[1] == string(kind)
}

// Time returns the creation time encoded in a generated identifier.
func Time(id string) (time.Time, bool) {
	m := generated.FindStringSubmatch(id)
	if m == nil {
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(m[2], 36, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(ms).UTC(), true
}
