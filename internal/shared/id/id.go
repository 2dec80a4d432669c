// Package id provides centralized ID generation for the kernel.
//
// This package offers type-safe ULID generation with:
//   - Lexicographic sortability: Enables efficient time-based queries
//   - Prefixed types: Type-specific prefixes for debugging (evt_*, trc_*, dump_*)
//   - Type safety: Separate types prevent ID misuse
//   - Performance: ~2μs per ULID
//
// Process and frame identities stay small integers (PIDs, frame numbers)
// because they live in the syscall ABI; ULIDs cover everything that
// leaves the kernel through the monitor (events, traces, dumps).
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ============================================================================
// Type-Safe ID Wrappers
// ============================================================================

// EventID identifies a kernel event on the monitor stream
type EventID string

// TraceID identifies a monitor API request
type TraceID string

// DumpID identifies a state dump artifact
type DumpID string

// BootID identifies one kernel boot
type BootID string

// ============================================================================
// ID Prefixes (for debugging and type identification)
// ============================================================================

const (
	EventPrefix = "evt"
	TracePrefix = "trc"
	DumpPrefix  = "dump"
	BootPrefix  = "boot"
)

// ============================================================================
// ULID Generator (Primary)
// ============================================================================

// Generator generates ULIDs with optional prefixes
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex // Protects entropy reader
}

var (
	// Default generator with cryptographically secure entropy
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the singleton generator instance
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a new ULID generator
func NewGenerator() *Generator {
	return &Generator{
		entropy: rand.Reader,
	}
}

// NewGeneratorWithEntropy creates a generator with custom entropy source
// Useful for testing with deterministic entropy
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{
		entropy: entropy,
	}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateString creates a new ULID as a string
func (g *Generator) GenerateString() string {
	return g.Generate().String()
}

// GenerateWithPrefix creates a prefixed ULID string
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.GenerateString())
}

// ============================================================================
// Typed ID Generators
// ============================================================================

// NewEventID generates a new kernel event ID
func NewEventID() EventID {
	return EventID(Default().GenerateWithPrefix(EventPrefix))
}

// NewTraceID generates a new monitor request trace ID
func NewTraceID() TraceID {
	return TraceID(Default().GenerateWithPrefix(TracePrefix))
}

// NewDumpID generates a new state dump ID
func NewDumpID() DumpID {
	return DumpID(Default().GenerateWithPrefix(DumpPrefix))
}

// NewBootID generates a new boot ID
func NewBootID() BootID {
	return BootID(Default().GenerateWithPrefix(BootPrefix))
}

// ============================================================================
// Type Conversion and Validation
// ============================================================================

// String methods for ID types
func (id EventID) String() string { return string(id) }
func (id TraceID) String() string { return string(id) }
func (id DumpID) String() string  { return string(id) }
func (id BootID) String() string  { return string(id) }

// IsValid checks if an ID string is a valid ULID
func IsValid(id string) bool {
	_, err := ulid.Parse(id)
	return err == nil
}

// Parse parses a ULID string
func Parse(id string) (ulid.ULID, error) {
	return ulid.Parse(id)
}

// Timestamp extracts the timestamp from a ULID
func Timestamp(id string) (time.Time, error) {
	parsed, err := Parse(id)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}
