package id

import (
	"bytes"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestGenerate(t *testing.T) {
	gen := NewGenerator()

	id1 := gen.Generate()
	id2 := gen.Generate()

	if id1.String() == id2.String() {
		t.Error("Generated IDs should be unique")
	}
}

func TestGenerateString(t *testing.T) {
	id := NewGenerator().GenerateString()

	if len(id) != 26 {
		t.Errorf("ULID should be 26 characters, got %d", len(id))
	}
}

func TestTypedIDGeneration(t *testing.T) {
	tests := []struct {
		id     string
		prefix string
	}{
		{NewSessionID().String(), "sess_"},
		{NewTraceID().String(), "trace_"},
		{NewSpanID().String(), "span_"},
	}

	for _, tt := range tests {
		if !strings.HasPrefix(tt.id, tt.prefix) {
			t.Errorf("ID should start with %q, got: %s", tt.prefix, tt.id)
		}
		if !IsValid(tt.id) {
			t.Errorf("prefixed ID should parse: %s", tt.id)
		}
	}
}

func TestIsValid(t *testing.T) {
	if !IsValid(NewGenerator().GenerateString()) {
		t.Error("generated ULID should be valid")
	}
	for _, bad := range []string{"", "not-a-ulid", "sess_", "sess_123"} {
		if IsValid(bad) {
			t.Errorf("%q should be invalid", bad)
		}
	}
}

func TestTimestamp(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	gen := NewGeneratorWithEntropy(bytes.NewReader(make([]byte, 64)))
	gen.now = func() time.Time { return fixed }

	ts, err := Timestamp(gen.GenerateWithPrefix(SpanPrefix))
	if err != nil {
		t.Fatalf("Timestamp failed: %v", err)
	}
	if !ts.Equal(fixed) {
		t.Errorf("expected %v, got %v", fixed, ts)
	}

	if _, err := Timestamp("garbage"); err == nil {
		t.Error("expected error for invalid ID")
	}
}

func TestMonotonicOrdering(t *testing.T) {
	gen := NewGenerator()

	ids := make([]string, 100)
	for i := range ids {
		ids[i] = gen.GenerateString()
	}

	if !sort.StringsAreSorted(ids) {
		t.Error("IDs from one generator should sort in creation order")
	}
}

func TestConcurrentGeneration(t *testing.T) {
	gen := NewGenerator()
	const workers, per = 8, 50

	var (
		mu   sync.Mutex
		seen = make(map[string]struct{}, workers*per)
		wg   sync.WaitGroup
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < per; i++ {
				s := gen.GenerateString()
				mu.Lock()
				seen[s] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != workers*per {
		t.Errorf("expected %d unique IDs, got %d", workers*per, len(seen))
	}
}
