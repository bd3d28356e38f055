// Package id generates the sortable identifiers used by the harness.
//
// Every ID is a ULID, optionally behind a short type prefix so logs stay
// readable (sess_*, trace_*, span_*). ULIDs sort by creation time, which
// keeps span and session listings in start order without a timestamp.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// SessionID identifies one bootstrapped applet session
type SessionID string

// TraceID identifies a chain of spans across one harness request
type TraceID string

// SpanID identifies a single traced operation
type SpanID string

const (
	SessionPrefix = "sess"
	TracePrefix   = "trace"
	SpanPrefix    = "span"
)

// Generator generates ULIDs with optional prefixes
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex // Protects entropy
	now       func() time.Time
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the process-wide generator
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a generator backed by crypto/rand with monotonic
// entropy, so IDs minted in the same millisecond still sort in order.
func NewGenerator() *Generator {
	return NewGeneratorWithEntropy(ulid.Monotonic(rand.Reader, 0))
}

// NewGeneratorWithEntropy creates a generator with a custom entropy source.
// Tests pass a deterministic reader.
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{entropy: entropy, now: time.Now}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(g.now()), g.entropy)
}

// GenerateString creates a new ULID as a string
func (g *Generator) GenerateString() string {
	return g.Generate().String()
}

// GenerateWithPrefix creates a prefixed ULID string
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.GenerateString())
}

// NewSessionID generates a new session ID
func NewSessionID() SessionID {
	return SessionID(Default().GenerateWithPrefix(SessionPrefix))
}

// NewTraceID generates a new trace ID
func NewTraceID() TraceID {
	return TraceID(Default().GenerateWithPrefix(TracePrefix))
}

// NewSpanID generates a new span ID
func NewSpanID() SpanID {
	return SpanID(Default().GenerateWithPrefix(SpanPrefix))
}

func (id SessionID) String() string { return string(id) }
func (id TraceID) String() string   { return string(id) }
func (id SpanID) String() string    { return string(id) }

// Parse parses a ULID, with or without a type prefix
func Parse(s string) (ulid.ULID, error) {
	if i := strings.LastIndexByte(s, '_'); i >= 0 {
		s = s[i+1:]
	}
	return ulid.Parse(s)
}

// IsValid reports whether s is a ULID, with or without a type prefix
func IsValid(s string) bool {
	_, err := Parse(s)
	return err == nil
}

// Timestamp extracts the creation time from an ID
func Timestamp(s string) (time.Time, error) {
	parsed, err := Parse(s)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}
