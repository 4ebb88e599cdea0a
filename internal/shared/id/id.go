// Package id provides centralized ID generation for scoped contexts.
//
// Every generated identifier is lexicographically sortable by creation time:
//   - ULID (default): 26 characters, Crockford base32
//   - UUIDv7: canonical 36 character form, time-ordered
//
// Correlation and operation ids are produced through the Source interface so
// tests can substitute deterministic generators.
package id

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// Format selects the textual id format produced by a Generator.
type Format string

const (
	FormatULID   Format = "ulid"
	FormatUUIDv7 Format = "uuidv7"
)

// ParseFormat converts a configuration string into a Format.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatULID:
		return FormatULID, nil
	case FormatUUIDv7:
		return FormatUUIDv7, nil
	default:
		return "", fmt.Errorf("unknown id format %q", s)
	}
}

// Source produces unique, sortable identifiers.
type Source interface {
	NewID() string
}

// SourceFunc adapts a plain function to Source.
type SourceFunc func() string

// NewID calls f.
func (f SourceFunc) NewID() string { return f() }

// Generator generates sortable ids with optional prefixes
type Generator struct {
	format    Format
	entropy   io.Reader
	entropyMu sync.Mutex // Protects entropy reader
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the singleton ULID generator
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a ULID generator backed by crypto/rand
func NewGenerator() *Generator {
	return &Generator{
		format:  FormatULID,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// NewGeneratorWithFormat creates a generator for the given format
func NewGeneratorWithFormat(format Format) *Generator {
	g := NewGenerator()
	g.format = format
	return g
}

// NewGeneratorWithEntropy creates a ULID generator with a custom entropy source.
// Useful for testing with deterministic entropy.
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{
		format:  FormatULID,
		entropy: entropy,
	}
}

// Format reports the format this generator produces.
func (g *Generator) Format() Format {
	return g.format
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// NewID creates a new id in the generator's format.
func (g *Generator) NewID() string {
	if g.format == FormatUUIDv7 {
		u, err := uuid.NewV7()
		if err == nil {
			return u.String()
		}
		// Fall back to ULID; both orderings are time based.
	}
	return g.Generate().String()
}

// GenerateWithPrefix creates a prefixed id string
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.NewID())
}

// IsValid checks if an id string is a valid ULID or UUID
func IsValid(id string) bool {
	if _, err := ulid.ParseStrict(id); err == nil {
		return true
	}
	_, err := uuid.Parse(id)
	return err == nil && len(id) == 36
}

// Timestamp extracts the embedded creation time from a ULID or UUIDv7
func Timestamp(id string) (time.Time, error) {
	if parsed, err := ulid.ParseStrict(id); err == nil {
		return ulid.Time(parsed.Time()), nil
	}
	u, err := uuid.Parse(id)
	if err != nil {
		return time.Time{}, fmt.Errorf("not a sortable id: %q", id)
	}
	if u.Version() != 7 {
		return time.Time{}, fmt.Errorf("uuid %q is version %d, not 7", id, u.Version())
	}
	sec, nsec := u.Time().UnixTime()
	return time.Unix(sec, nsec), nil
}

// Bytes returns the 128-bit binary form of a ULID or UUID string.
func Bytes(id string) ([16]byte, bool) {
	if parsed, err := ulid.ParseStrict(id); err == nil {
		return [16]byte(parsed), true
	}
	if len(id) == 32 {
		var out [16]byte
		if _, err := hex.Decode(out[:], []byte(id)); err == nil {
			return out, true
		}
		return [16]byte{}, false
	}
	if u, err := uuid.Parse(id); err == nil && len(id) == 36 {
		return [16]byte(u), true
	}
	return [16]byte{}, false
}
