package bootstrap

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/neighbourhoods/forum-applet/internal/conductor"
	"github.com/neighbourhoods/forum-applet/internal/domain/applet"
	"github.com/neighbourhoods/forum-applet/internal/domain/cells"
	"github.com/neighbourhoods/forum-applet/internal/domain/neighbourhood"
	"github.com/neighbourhoods/forum-applet/internal/domain/signing"
	"github.com/neighbourhoods/forum-applet/internal/infrastructure/config"
	"github.com/neighbourhoods/forum-applet/internal/infrastructure/logging"
	"github.com/neighbourhoods/forum-applet/internal/infrastructure/monitoring"
	"github.com/neighbourhoods/forum-applet/internal/sensemaker"
	"github.com/neighbourhoods/forum-applet/internal/shared/hash"
	"github.com/neighbourhoods/forum-applet/internal/shared/id"
	"github.com/neighbourhoods/forum-applet/internal/shared/types"
)

// Session is one bootstrapped applet instance. It owns the conductor
// connections and everything built on them.
type Session struct {
	id      id.SessionID
	cfg     *config.Config
	log     *logging.Logger
	metrics *monitoring.Metrics

	provider   *conductor.Provider
	directory  *cells.Directory
	authorizer *signing.Authorizer
	report     *signing.Report
	machine    *neighbourhood.Machine
	applet     *applet.Applet
	agent      types.AgentPubKey
	appletCfg  types.AppletConfigInput
}

// Start runs the bootstrap pipeline: connect, enumerate cells, authorize
// every cell, then build the provisioning state machine from the
// sensemaker role. metrics may be nil.
func Start(ctx context.Context, cfg *config.Config, logger *logging.Logger, metrics *monitoring.Metrics) (*Session, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	sessionID := id.NewSessionID()
	logger = logger.With(zap.String("session", sessionID.String()))
	log := logger.Component("bootstrap")

	appletCfg, err := applet.LoadConfig(cfg.Applet.ConfigPath)
	if err != nil {
		return nil, err
	}
	policy, err := signing.ParsePolicy(cfg.Neighbourhood.AuthPolicy)
	if err != nil {
		return nil, err
	}

	provider := conductor.NewProvider(cfg.Conductor,
		conductor.WithLogger(logger),
		conductor.WithMetrics(metrics),
	)
	manifest, err := provider.Connect(ctx, cfg.Applet.InstalledAppID)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	s := &Session{
		id:        sessionID,
		cfg:       cfg,
		log:       log,
		metrics:   metrics,
		provider:  provider,
		appletCfg: appletCfg,
	}
	if err := s.init(ctx, manifest, policy, logger); err != nil {
		_ = provider.Close()
		return nil, err
	}
	return s, nil
}

func (s *Session) init(ctx context.Context, manifest *types.Manifest, policy signing.Policy, logger *logging.Logger) error {
	dir, err := cells.NewDirectory(manifest)
	if err != nil {
		return err
	}
	s.directory = dir

	agent, err := dir.AgentKey(s.cfg.Applet.PrimaryRole)
	if err != nil {
		return fmt.Errorf("resolve local agent: %w", err)
	}
	s.agent = agent

	ids, err := dir.Identifiers()
	if err != nil {
		return fmt.Errorf("enumerate cells: %w", err)
	}

	s.authorizer = signing.New(s.provider.Admin(),
		signing.WithPolicy(policy),
		signing.WithWorkers(s.cfg.Neighbourhood.AuthWorkers),
		signing.WithLogger(logger),
		signing.WithMetrics(s.metrics),
	)
	report, err := s.authorizer.AuthorizeAll(ctx, ids)
	s.report = report
	if err != nil {
		return err
	}
	for _, f := range report.Failed {
		s.log.Warn("Continuing without signing credentials", zap.Stringer("cell", f.CellID), zap.Error(f.Err))
	}

	roleCells, err := dir.Sensemaker(s.cfg.Neighbourhood.SensemakerRole)
	if err != nil {
		return err
	}

	agentClient := s.provider.Agent()
	machine, err := neighbourhood.New(neighbourhood.Config{
		AppID:          s.cfg.Applet.InstalledAppID,
		SensemakerRole: s.cfg.Neighbourhood.SensemakerRole,
		Neighbourhood:  s.cfg.Neighbourhood.Name,
		WizardVersion:  s.cfg.Neighbourhood.WizardVersion,
		LocalAgent:     hash.Encode(agent),
		Endpoint:       s.provider.App().URL(),
		JoinGrace:      s.cfg.Neighbourhood.JoinGrace,
		AppletConfig:   s.appletCfg,
	}, neighbourhood.Deps{
		Clones: s.provider.Admin(),
		Signer: s.authorizer,
		Stores: neighbourhood.StoreOpenerFunc(func(h *neighbourhood.Handle) (neighbourhood.Registrar, error) {
			return sensemaker.New(agentClient, h.CloneLabel, logger), nil
		}),
		Logger:  logger,
		Metrics: s.metrics,
	}, roleCells)
	if err != nil {
		return err
	}
	s.machine = machine
	s.applet = applet.New(machine, agent, logger)

	s.log.Info("Bootstrap complete",
		zap.String("agent", hash.Encode(agent)),
		zap.Int("cells", len(ids)),
		zap.Int("authorized", len(report.Authorized)),
		zap.Stringer("state", machine.State()),
	)
	return nil
}

// Create founds the neighbourhood
func (s *Session) Create(ctx context.Context) (*neighbourhood.Handle, error) {
	return s.machine.Create(ctx)
}

// Join joins the neighbourhood founded by activator
func (s *Session) Join(ctx context.Context, activator string) (*neighbourhood.Handle, error) {
	return s.machine.Join(ctx, activator)
}

// RetryConfiguration finishes a join whose config was not yet visible
func (s *Session) RetryConfiguration(ctx context.Context) (*neighbourhood.Handle, error) {
	return s.machine.RetryConfiguration(ctx)
}

// Renderers builds the host bundle from the session's own endpoints
func (s *Session) Renderers(infos []applet.AppletInfo) (*applet.RendererBundle, error) {
	if infos == nil {
		infos = []applet.AppletInfo{{
			Name:           s.appletCfg.Name,
			InstalledAppID: s.cfg.Applet.InstalledAppID,
			Neighbourhood:  s.cfg.Neighbourhood.Name,
		}}
	}
	return s.applet.AppletRenderers(s.provider.App(), s.provider.Agent(), s.provider.Admin(), applet.Services{}, infos)
}

// ID returns the session identifier attached to every log line
func (s *Session) ID() id.SessionID { return s.id }

// Machine returns the provisioning state machine
func (s *Session) Machine() *neighbourhood.Machine { return s.machine }

// Applet returns the host-facing applet
func (s *Session) Applet() *applet.Applet { return s.applet }

// Provider returns the conductor connections
func (s *Session) Provider() *conductor.Provider { return s.provider }

// Directory returns the cell directory built at startup
func (s *Session) Directory() *cells.Directory { return s.directory }

// Report returns the startup authorization report
func (s *Session) Report() *signing.Report { return s.report }

// Agent returns the local agent key
func (s *Session) Agent() types.AgentPubKey { return s.agent }

// Close tears down the conductor connections
func (s *Session) Close() error {
	return s.provider.Close()
}
