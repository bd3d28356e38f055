package signing

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/neighbourhoods/forum-applet/internal/infrastructure/logging"
	"github.com/neighbourhoods/forum-applet/internal/infrastructure/monitoring"
	"github.com/neighbourhoods/forum-applet/internal/shared/types"
)

// ErrAuthorizationFailed matches every *AuthorizationError
var ErrAuthorizationFailed = errors.New("authorization failed")

// AuthorizationError reports which cell could not be authorized
type AuthorizationError struct {
	CellID types.CellID
	Err    error
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("authorize cell %s: %v", e.CellID, e.Err)
}

func (e *AuthorizationError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrAuthorizationFailed) hold
func (e *AuthorizationError) Is(target error) bool {
	return target == ErrAuthorizationFailed
}

// Policy decides what a single failure does to a batch
type Policy string

const (
	// PolicyAbort cancels the batch on the first failure
	PolicyAbort Policy = "abort"
	// PolicySkip records failures and continues
	PolicySkip Policy = "skip"
)

// ParsePolicy validates a policy name
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(s); p {
	case PolicyAbort, PolicySkip:
		return p, nil
	default:
		return "", fmt.Errorf("unknown authorization policy %q", s)
	}
}

// Granter registers signing credentials for a cell on the admin endpoint
type Granter interface {
	AuthorizeSigningCredentials(ctx context.Context, cell types.CellID) error
}

// Report summarizes one AuthorizeAll batch in input order
type Report struct {
	Authorized []types.CellID
	Failed     []*AuthorizationError
}

// OK reports whether every cell in the batch was authorized
func (r *Report) OK() bool {
	return len(r.Failed) == 0
}

// Authorizer grants signing credentials per cell, at most once per session
type Authorizer struct {
	granter Granter
	policy  Policy
	workers int
	log     *logging.Logger
	metrics *monitoring.Metrics

	done  sync.Map // cell key -> struct{}
	group singleflight.Group
}

// Option configures an Authorizer
type Option func(*Authorizer)

// WithPolicy sets the batch failure policy
func WithPolicy(p Policy) Option {
	return func(a *Authorizer) { a.policy = p }
}

// WithWorkers bounds concurrent grants; values below one mean unbounded
func WithWorkers(n int) Option {
	return func(a *Authorizer) { a.workers = n }
}

// WithLogger sets the logger
func WithLogger(l *logging.Logger) Option {
	return func(a *Authorizer) { a.log = l.Component("signing") }
}

// WithMetrics records authorization outcomes
func WithMetrics(m *monitoring.Metrics) Option {
	return func(a *Authorizer) { a.metrics = m }
}

// New creates an authorizer backed by granter
func New(granter Granter, opts ...Option) *Authorizer {
	a := &Authorizer{
		granter: granter,
		policy:  PolicyAbort,
		workers: 4,
		log:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Policy returns the configured batch policy
func (a *Authorizer) Policy() Policy {
	return a.policy
}

// Authorized reports whether cell has been authorized in this session
func (a *Authorizer) Authorized(cell types.CellID) bool {
	_, ok := a.done.Load(cell.Key())
	return ok
}

// Authorize grants credentials for cell unless that already succeeded
func (a *Authorizer) Authorize(ctx context.Context, cell types.CellID) error {
	if cell.IsZero() {
		return &AuthorizationError{CellID: cell, Err: errors.New("empty cell id")}
	}
	key := cell.Key()
	if _, ok := a.done.Load(key); ok {
		a.record("cached")
		return nil
	}

	// The grant is shared by all waiters on this cell and outlives the
	// caller that started it; each caller stops waiting on its own ctx.
	flight := a.group.DoChan(key, func() (any, error) {
		if _, ok := a.done.Load(key); ok {
			return nil, nil
		}
		if err := a.granter.AuthorizeSigningCredentials(context.WithoutCancel(ctx), cell); err != nil {
			return nil, err
		}
		a.done.Store(key, struct{}{})
		return nil, nil
	})
	var err error
	select {
	case res := <-flight:
		err = res.Err
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		a.record("failed")
		a.log.Warn("Cell authorization failed", zap.Stringer("cell", cell), zap.Error(err))
		return &AuthorizationError{CellID: cell, Err: err}
	}
	a.record("granted")
	a.log.Debug("Cell authorized", zap.Stringer("cell", cell))
	return nil
}

// AuthorizeAll authorizes every cell concurrently. The report is always
// returned; under PolicyAbort the error is the first failure.
func (a *Authorizer) AuthorizeAll(ctx context.Context, cells []types.CellID) (*Report, error) {
	results := make([]error, len(cells))
	attempted := make([]bool, len(cells))

	g, gctx := errgroup.WithContext(ctx)
	if a.workers > 0 {
		g.SetLimit(a.workers)
	}

	for i, cell := range cells {
		if a.policy == PolicyAbort && gctx.Err() != nil {
			break
		}
		i, cell := i, cell
		g.Go(func() error {
			if a.policy == PolicyAbort && gctx.Err() != nil {
				return nil
			}
			attempted[i] = true
			err := a.Authorize(gctx, cell)
			results[i] = err
			if a.policy == PolicyAbort {
				return err
			}
			return nil
		})
	}
	firstErr := g.Wait()

	report := &Report{}
	for i, cell := range cells {
		if !attempted[i] {
			continue
		}
		var authErr *AuthorizationError
		switch {
		case results[i] == nil:
			report.Authorized = append(report.Authorized, cell)
		case errors.As(results[i], &authErr):
			report.Failed = append(report.Failed, authErr)
		}
	}

	a.log.Info("Cell authorization finished",
		zap.String("policy", string(a.policy)),
		zap.Int("cells", len(cells)),
		zap.Int("authorized", len(report.Authorized)),
		zap.Int("failed", len(report.Failed)),
	)
	if a.policy == PolicyAbort && firstErr != nil {
		return report, firstErr
	}
	return report, nil
}

func (a *Authorizer) record(outcome string) {
	if a.metrics != nil {
		a.metrics.RecordAuthorization(outcome)
	}
}
