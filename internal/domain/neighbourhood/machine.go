package neighbourhood

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/neighbourhoods/forum-applet/internal/domain/cells"
	"github.com/neighbourhoods/forum-applet/internal/infrastructure/logging"
	"github.com/neighbourhoods/forum-applet/internal/infrastructure/monitoring"
	"github.com/neighbourhoods/forum-applet/internal/shared/types"
)

// cloneName is the display name given to every sensemaker clone
const cloneName = "sensemaker-dna"

// sharedCloneIndex is the position of the canonical clone in the role's
// cell list; index 0 is the template cell.
const sharedCloneIndex = 1

// CloneCreator clones a role's template cell
type CloneCreator interface {
	CreateCloneCell(ctx context.Context, req types.CreateCloneCellRequest) (*types.ClonedCell, error)
}

// Authorizer grants signing credentials for one cell
type Authorizer interface {
	Authorize(ctx context.Context, cell types.CellID) error
}

// Registrar registers the applet config against a sensemaker
type Registrar interface {
	RegisterApplet(ctx context.Context, cfg types.AppletConfigInput) (*types.AppletConfig, error)
}

// StoreOpener attaches a store to the clone a handle references
type StoreOpener interface {
	Open(handle *Handle) (Registrar, error)
}

// StoreOpenerFunc adapts a function to StoreOpener
type StoreOpenerFunc func(handle *Handle) (Registrar, error)

// Open calls f
func (f StoreOpenerFunc) Open(handle *Handle) (Registrar, error) { return f(handle) }

// Config parameterizes one neighbourhood
type Config struct {
	AppID          string
	SensemakerRole string
	Neighbourhood  string
	WizardVersion  string
	// LocalAgent is recorded as community activator by Create
	LocalAgent string
	// Endpoint is the app endpoint address recorded in handles
	Endpoint     string
	JoinGrace    time.Duration
	AppletConfig types.AppletConfigInput
}

// Deps are the machine's collaborators
type Deps struct {
	Clones  CloneCreator
	Signer  Authorizer
	Stores  StoreOpener
	Logger  *logging.Logger
	Metrics *monitoring.Metrics
	// Wait blocks for the join grace interval; defaults to a timer
	Wait func(ctx context.Context, d time.Duration) error
}

// Listener observes state changes. It runs outside the machine's lock.
type Listener func(from, to State)

// Machine is the provisioning state machine of one session
type Machine struct {
	cfg  Config
	deps Deps
	log  *logging.Logger

	mu           sync.Mutex
	state        State               // Protected by mu
	handle       *Handle             // Protected by mu
	store        Registrar           // Protected by mu
	pending      *Handle             // Protected by mu
	pendingStore Registrar           // Protected by mu
	inFlight     bool                // Protected by mu
	action       Action              // Protected by mu
	activator    string              // Protected by mu
	config       *types.AppletConfig // Protected by mu
	lastErr      error               // Protected by mu
	listeners    []Listener          // Protected by mu
}

// New computes the initial state from the sensemaker role's cells. With two
// or more cells it attaches to the clone at index 1 and starts Provisioned.
func New(cfg Config, deps Deps, roleCells types.CellList) (*Machine, error) {
	if deps.Clones == nil || deps.Signer == nil || deps.Stores == nil {
		return nil, errors.New("neighbourhood: clone creator, authorizer and store opener are required")
	}
	if deps.Logger == nil {
		deps.Logger = logging.NewNop()
	}
	if deps.Wait == nil {
		deps.Wait = sleep
	}

	m := &Machine{
		cfg:   cfg,
		deps:  deps,
		log:   deps.Logger.Component("neighbourhood").With(zap.String("neighbourhood", cfg.Neighbourhood)),
		state: Unprovisioned,
	}

	if len(roleCells) <= sharedCloneIndex {
		m.log.Info("No shared sensemaker clone yet", zap.Int("cells", len(roleCells)))
		if deps.Metrics != nil {
			deps.Metrics.ProvisioningState.Set(float64(Unprovisioned))
		}
		return m, nil
	}

	if err := m.resume(roleCells); err != nil {
		return nil, err
	}
	return m, nil
}

// resume attaches to the existing shared clone without creating or joining
func (m *Machine) resume(roleCells types.CellList) error {
	desc := roleCells[sharedCloneIndex]
	if _, err := cells.ResolveIdentifier(desc); err != nil {
		return &ProvisioningError{Action: ActionResume, Stage: StageAttach, Err: err}
	}
	clone, ok := desc.(types.ClonedCell)
	if !ok {
		return &ProvisioningError{
			Action: ActionResume,
			Stage:  StageAttach,
			Err:    fmt.Errorf("%w: expected a clone at index %d, got %s", cells.ErrUnrecognizedCellShape, sharedCloneIndex, desc.Kind()),
		}
	}
	if extra := len(roleCells) - sharedCloneIndex - 1; extra > 0 {
		m.log.Warn("Multiple sensemaker clones found, using the first",
			zap.String("clone", clone.CloneID),
			zap.Int("ignored", extra),
		)
	}

	handle := newHandle(m.cfg.Endpoint, m.cfg.SensemakerRole, clone)
	store, err := m.deps.Stores.Open(handle)
	if err != nil {
		return &ProvisioningError{Action: ActionResume, Stage: StageAttach, Err: err}
	}
	if props, err := clone.SensemakerProperties(); err == nil {
		m.activator = props.SensemakerConfig.CommunityActivator
	}

	m.state = Provisioned
	m.handle = handle
	m.store = store
	m.action = ActionResume
	m.log.Info("Attached to existing sensemaker clone",
		zap.String("clone", clone.CloneID),
		zap.Stringer("cell", clone.CellID),
	)
	m.recordTransition(Unprovisioned, Provisioned)
	return nil
}

// Create founds the neighbourhood with the local agent as activator
func (m *Machine) Create(ctx context.Context) (*Handle, error) {
	return m.provision(ctx, ActionCreate, m.cfg.LocalAgent)
}

// Join enters a neighbourhood founded by activator. A configuration that is
// not yet visible after the grace interval yields
// ErrConfigurationNotYetVisible and leaves the machine Provisioning.
func (m *Machine) Join(ctx context.Context, activator string) (*Handle, error) {
	if activator == "" {
		return nil, ErrMissingActivator
	}
	return m.provision(ctx, ActionJoin, activator)
}

func (m *Machine) provision(ctx context.Context, action Action, activator string) (*Handle, error) {
	m.mu.Lock()
	if m.inFlight {
		m.mu.Unlock()
		return nil, ErrProvisioningInFlight
	}
	if m.state != Unprovisioned {
		state := m.state
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s while %s", ErrInvalidTransition, action, state)
	}
	m.state = Provisioning
	m.inFlight = true
	m.action = action
	m.activator = activator
	m.lastErr = nil
	m.mu.Unlock()
	m.notify(Unprovisioned, Provisioning)

	log := m.log.With(zap.String("action", string(action)), zap.String("activator", activator))
	log.Info("Provisioning neighbourhood")

	handle, store, err := m.attachNewClone(ctx, action, activator)
	if err != nil {
		return nil, m.fail(log, err)
	}

	if action == ActionJoin {
		err := m.runStage(action, StageGrace, func() error {
			return m.deps.Wait(ctx, m.cfg.JoinGrace)
		})
		if err != nil {
			return nil, m.deferRegistration(log, handle, store, err)
		}
	}

	var config *types.AppletConfig
	err = m.runStage(action, StageRegister, func() error {
		var err error
		config, err = store.RegisterApplet(ctx, m.cfg.AppletConfig)
		return err
	})
	if err != nil {
		if action == ActionJoin {
			return nil, m.deferRegistration(log, handle, store, err)
		}
		return nil, m.fail(log, err)
	}

	m.complete(handle, store, config)
	log.Info("Neighbourhood provisioned", zap.String("clone", handle.CloneLabel))
	return handle, nil
}

// attachNewClone runs create_clone, authorize and attach in that order
func (m *Machine) attachNewClone(ctx context.Context, action Action, activator string) (*Handle, Registrar, error) {
	props := types.SensemakerProperties{
		SensemakerConfig: types.SensemakerConfig{
			Neighbourhood:      m.cfg.Neighbourhood,
			WizardVersion:      m.cfg.WizardVersion,
			CommunityActivator: activator,
		},
		AppletConfigs: []types.AppletConfigInput{},
	}

	var clone *types.ClonedCell
	err := m.runStage(action, StageCreateClone, func() error {
		modifiers, err := props.Modifiers()
		if err != nil {
			return err
		}
		clone, err = m.deps.Clones.CreateCloneCell(ctx, types.CreateCloneCellRequest{
			AppID:     m.cfg.AppID,
			RoleName:  m.cfg.SensemakerRole,
			Modifiers: modifiers,
			Name:      cloneName,
		})
		if err == nil && clone == nil {
			err = errors.New("runtime returned no clone")
		}
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	err = m.runStage(action, StageAuthorize, func() error {
		return m.deps.Signer.Authorize(ctx, clone.CellID)
	})
	if err != nil {
		return nil, nil, err
	}

	handle := newHandle(m.cfg.Endpoint, m.cfg.SensemakerRole, *clone)
	var store Registrar
	err = m.runStage(action, StageAttach, func() error {
		var err error
		store, err = m.deps.Stores.Open(handle)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return handle, store, nil
}

// RetryConfiguration re-attempts registration after a Join reported
// ErrConfigurationNotYetVisible. On success the machine is Provisioned.
func (m *Machine) RetryConfiguration(ctx context.Context) (*Handle, error) {
	m.mu.Lock()
	if m.inFlight {
		m.mu.Unlock()
		return nil, ErrProvisioningInFlight
	}
	if m.state == Provisioned {
		handle := m.handle
		m.mu.Unlock()
		return handle, nil
	}
	if m.pending == nil {
		state := m.state
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: nothing to retry while %s", ErrInvalidTransition, state)
	}
	handle, store := m.pending, m.pendingStore
	m.inFlight = true
	m.mu.Unlock()

	log := m.log.With(zap.String("action", string(ActionRetry)), zap.String("clone", handle.CloneLabel))

	var config *types.AppletConfig
	err := m.runStage(ActionRetry, StageRegister, func() error {
		var err error
		config, err = store.RegisterApplet(ctx, m.cfg.AppletConfig)
		return err
	})
	if err != nil {
		return nil, m.deferRegistration(log, handle, store, err)
	}

	m.complete(handle, store, config)
	log.Info("Neighbourhood configuration visible, provisioned")
	return handle, nil
}

// fail rolls back to Unprovisioned
func (m *Machine) fail(log *logging.Logger, err error) error {
	m.mu.Lock()
	m.state = Unprovisioned
	m.inFlight = false
	m.lastErr = err
	m.mu.Unlock()

	log.Error("Neighbourhood provisioning failed", zap.Error(err))
	m.notify(Provisioning, Unprovisioned)
	return err
}

// deferRegistration keeps the attached clone pending and stays Provisioning
func (m *Machine) deferRegistration(log *logging.Logger, handle *Handle, store Registrar, cause error) error {
	// Must not match ErrProvisioningFailed.
	var perr *ProvisioningError
	if errors.As(cause, &perr) {
		cause = fmt.Errorf("%s: %w", perr.Stage, perr.Err)
	}
	err := fmt.Errorf("%w: %w", ErrConfigurationNotYetVisible, cause)

	m.mu.Lock()
	m.pending = handle
	m.pendingStore = store
	m.inFlight = false
	m.lastErr = err
	m.mu.Unlock()

	log.Warn("Neighbourhood configuration not yet visible, retry later",
		zap.String("clone", handle.CloneLabel),
		zap.Error(cause),
	)
	return err
}

func (m *Machine) complete(handle *Handle, store Registrar, config *types.AppletConfig) {
	m.mu.Lock()
	m.state = Provisioned
	m.handle = handle
	m.store = store
	m.config = config
	m.pending = nil
	m.pendingStore = nil
	m.inFlight = false
	m.lastErr = nil
	m.mu.Unlock()

	m.notify(Provisioning, Provisioned)
}

// runStage times fn and wraps its failure with the stage
func (m *Machine) runStage(action Action, stage Stage, fn func() error) error {
	start := time.Now()
	err := fn()
	status := "success"
	if err != nil {
		status = "error"
	}
	if m.deps.Metrics != nil {
		m.deps.Metrics.RecordStage(string(action), string(stage), status, time.Since(start))
	}
	if err != nil {
		return &ProvisioningError{Action: action, Stage: stage, Err: err}
	}
	return nil
}

// OnStateChange registers l for every later state change
func (m *Machine) OnStateChange(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

func (m *Machine) notify(from, to State) {
	m.mu.Lock()
	listeners := append([]Listener(nil), m.listeners...)
	m.mu.Unlock()

	m.recordTransition(from, to)
	m.log.Debug("Provisioning state changed",
		zap.Stringer("from", from),
		zap.Stringer("to", to),
	)
	for _, l := range listeners {
		l(from, to)
	}
}

func (m *Machine) recordTransition(from, to State) {
	if m.deps.Metrics != nil {
		m.deps.Metrics.RecordTransition(from.String(), to.String(), int(to))
	}
}

// State returns the current state
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Handle returns the attached clone; nil unless Provisioned
func (m *Machine) Handle() *Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handle
}

// Store returns the store attached to the shared clone; nil unless
// Provisioned
func (m *Machine) Store() Registrar {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store
}

// Snapshot returns the current state for reporting
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Snapshot{
		State:     m.state,
		Handle:    m.handle,
		Pending:   m.pending,
		InFlight:  m.inFlight,
		Action:    m.action,
		Activator: m.activator,
		Config:    m.config,
	}
	if m.lastErr != nil {
		s.LastError = m.lastErr.Error()
	}
	return s
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
