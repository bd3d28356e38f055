// Package sensemaker is the client of a neighbourhood's shared sensemaker
// cell.
package sensemaker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"go.uber.org/zap"

	"github.com/neighbourhoods/forum-applet/internal/conductor"
	"github.com/neighbourhoods/forum-applet/internal/infrastructure/logging"
	"github.com/neighbourhoods/forum-applet/internal/shared/types"
)

// Zome and functions of the sensemaker cell
const (
	Zome                = "sensemaker_main"
	FnCheckAppletConfig = "check_if_applet_config_exists"
	FnRegisterApplet    = "register_applet"
	FnGetAppletConfig   = "get_applet_config"
)

// ErrConfigNotFound is returned when no config is registered under a name
var ErrConfigNotFound = errors.New("sensemaker: applet config not found")

// ZomeCaller performs zome calls addressed by role name or clone label
type ZomeCaller interface {
	CallZome(ctx context.Context, call conductor.RoleZomeCall) (cbor.RawMessage, error)
}

// Store talks to one sensemaker cell
type Store struct {
	endpoint ZomeCaller
	label    string
	log      *logging.Logger

	mu      sync.RWMutex
	configs map[string]*types.AppletConfig // Protected by mu
}

// New binds a store to the cell named by roleOrLabel on endpoint
func New(endpoint ZomeCaller, roleOrLabel string, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Store{
		endpoint: endpoint,
		label:    roleOrLabel,
		log:      logger.Component("sensemaker").With(zap.String("cell", roleOrLabel)),
		configs:  make(map[string]*types.AppletConfig),
	}
}

// RegisterApplet returns the config registered under cfg.Name, registering
// cfg first when none exists. Repeated calls return the same config.
func (s *Store) RegisterApplet(ctx context.Context, cfg types.AppletConfigInput) (*types.AppletConfig, error) {
	if cfg.Name == "" {
		return nil, errors.New("sensemaker: applet config has no name")
	}
	if existing := s.cached(cfg.Name); existing != nil {
		return existing, nil
	}

	existing, err := s.CheckAppletConfig(ctx, cfg.Name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		s.log.Debug("Applet config already registered", zap.String("applet", cfg.Name))
		return existing, nil
	}

	var registered types.AppletConfig
	if err := s.call(ctx, FnRegisterApplet, cfg, &registered); err != nil {
		return nil, err
	}
	s.remember(&registered)
	s.log.Info("Applet config registered",
		zap.String("applet", registered.Name),
		zap.Int("dimensions", len(registered.Dimensions)),
		zap.Int("resource_defs", len(registered.ResourceDefs)),
	)
	return &registered, nil
}

// CheckAppletConfig returns the config registered under name, or nil
func (s *Store) CheckAppletConfig(ctx context.Context, name string) (*types.AppletConfig, error) {
	var existing *types.AppletConfig
	if err := s.call(ctx, FnCheckAppletConfig, name, &existing); err != nil {
		return nil, err
	}
	if existing != nil {
		s.remember(existing)
	}
	return existing, nil
}

// AppletConfig fetches the config registered under name
func (s *Store) AppletConfig(ctx context.Context, name string) (*types.AppletConfig, error) {
	if cfg := s.cached(name); cfg != nil {
		return cfg, nil
	}
	var cfg *types.AppletConfig
	if err := s.call(ctx, FnGetAppletConfig, name, &cfg); err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, name)
	}
	s.remember(cfg)
	return cfg, nil
}

func (s *Store) call(ctx context.Context, fn string, payload, out any) error {
	raw, err := s.endpoint.CallZome(ctx, conductor.RoleZomeCall{
		RoleName: s.label,
		ZomeName: Zome,
		FnName:   fn,
		Payload:  payload,
	})
	if err != nil {
		return fmt.Errorf("sensemaker %s: %w", fn, err)
	}
	if err := conductor.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("sensemaker %s: decode result: %w", fn, err)
	}
	return nil
}

func (s *Store) cached(name string) *types.AppletConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.configs[name]
}

func (s *Store) remember(cfg *types.AppletConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs[cfg.Name] = cfg
}
