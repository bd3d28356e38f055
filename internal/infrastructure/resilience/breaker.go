package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	ErrCircuitOpen     = errors.New("circuit breaker is open")
	ErrTooManyRequests = errors.New("too many requests")
)

// State represents the circuit breaker state
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Settings configures the circuit breaker behavior
type Settings struct {
	// MaxProbes is the number of calls let through while half-open
	MaxProbes uint32
	// Window is how long failure counts accumulate while closed
	Window time.Duration
	// Cooldown is how long the breaker stays open before probing
	Cooldown time.Duration
	// ShouldTrip decides, after a counted failure, whether to open
	ShouldTrip func(counts Counts) bool
	// Counts decides whether an error counts against the endpoint.
	// Remote application errors usually should not.
	Counts func(err error) bool
	// OnStateChange is called whenever the state changes
	OnStateChange func(name string, from State, to State)
	// Now overrides the clock, for tests
	Now func() time.Time
}

// Counts holds the statistics for the current generation
type Counts struct {
	Calls                uint32
	Successes            uint32
	Failures             uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

// Breaker guards calls to one remote endpoint
type Breaker struct {
	name     string
	settings Settings

	mu         sync.Mutex
	state      State  // Protected by mu
	counts     Counts // Protected by mu
	generation uint64 // Protected by mu
	deadline   time.Time
}

// New creates a new circuit breaker with the given settings
func New(name string, settings Settings) *Breaker {
	if settings.MaxProbes == 0 {
		settings.MaxProbes = 1
	}
	if settings.Window == 0 {
		settings.Window = 60 * time.Second
	}
	if settings.Cooldown == 0 {
		settings.Cooldown = 30 * time.Second
	}
	if settings.ShouldTrip == nil {
		settings.ShouldTrip = func(counts Counts) bool {
			return counts.ConsecutiveFailures >= 5
		}
	}
	if settings.Counts == nil {
		settings.Counts = func(err error) bool { return err != nil }
	}
	if settings.Now == nil {
		settings.Now = time.Now
	}

	b := &Breaker{name: name, settings: settings}
	b.deadline = settings.Now().Add(settings.Window)
	return b
}

// Name returns the name of the circuit breaker
func (b *Breaker) Name() string {
	return b.name
}

// State returns the current state of the circuit breaker
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.advance(b.settings.Now())
	return b.state
}

// Counts returns a copy of the current counts
func (b *Breaker) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.counts
}

// Do runs fn through the breaker. A cancelled context is returned as is
// and never counted as an endpoint failure.
func Do[T any](ctx context.Context, b *Breaker, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	gen, err := b.admit()
	if err != nil {
		return zero, err
	}

	result, err := fn(ctx)
	failed := err != nil && ctx.Err() == nil && b.settings.Counts(err)
	b.record(gen, !failed)
	return result, err
}

func (b *Breaker) admit() (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.advance(b.settings.Now())
	switch {
	case b.state == StateOpen:
		return b.generation, ErrCircuitOpen
	case b.state == StateHalfOpen && b.counts.Calls >= b.settings.MaxProbes:
		return b.generation, ErrTooManyRequests
	}
	b.counts.Calls++
	return b.generation, nil
}

func (b *Breaker) record(gen uint64, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.settings.Now()
	b.advance(now)
	if gen != b.generation {
		// Result belongs to a window that has already been reset.
		return
	}

	if ok {
		b.counts.Successes++
		b.counts.ConsecutiveSuccesses++
		b.counts.ConsecutiveFailures = 0
		if b.state == StateHalfOpen && b.counts.ConsecutiveSuccesses >= b.settings.MaxProbes {
			b.transition(StateClosed, now)
		}
		return
	}

	b.counts.Failures++
	b.counts.ConsecutiveFailures++
	b.counts.ConsecutiveSuccesses = 0
	switch b.state {
	case StateClosed:
		if b.settings.ShouldTrip(b.counts) {
			b.transition(StateOpen, now)
		}
	case StateHalfOpen:
		b.transition(StateOpen, now)
	}
}

// advance applies time-based transitions. Caller holds mu.
func (b *Breaker) advance(now time.Time) {
	switch b.state {
	case StateClosed:
		if now.After(b.deadline) {
			b.generation++
			b.counts = Counts{}
			b.deadline = now.Add(b.settings.Window)
		}
	case StateOpen:
		if now.After(b.deadline) {
			b.transition(StateHalfOpen, now)
		}
	}
}

// transition moves to a new state and starts a new generation. Caller holds mu.
func (b *Breaker) transition(to State, now time.Time) {
	if b.state == to {
		return
	}
	from := b.state
	b.state = to
	b.generation++
	b.counts = Counts{}

	switch to {
	case StateClosed:
		b.deadline = now.Add(b.settings.Window)
	case StateOpen:
		b.deadline = now.Add(b.settings.Cooldown)
	case StateHalfOpen:
		b.deadline = time.Time{}
	}

	if b.settings.OnStateChange != nil {
		b.settings.OnStateChange(b.name, from, to)
	}
}
