package conductor

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/neighbourhoods/forum-applet/internal/infrastructure/config"
	"github.com/neighbourhoods/forum-applet/internal/infrastructure/logging"
	"github.com/neighbourhoods/forum-applet/internal/shared/types"
)

// Provider owns both conductor endpoints for one session. It is constructed
// once, passed by reference to every collaborator and closed when the
// session ends.
type Provider struct {
	cfg   config.ConductorConfig
	opts  []Option
	log   *logging.Logger
	creds *CredentialStore

	admin    *AdminClient
	app      *AppClient
	agent    *AppAgentClient
	manifest *types.Manifest
}

// NewProvider prepares a provider for the configured agent's ports
func NewProvider(cfg config.ConductorConfig, opts ...Option) *Provider {
	o := buildOptions(opts)
	opts = append([]Option{WithRequestTimeout(cfg.RequestTimeout)}, opts...)
	return &Provider{
		cfg:   cfg,
		opts:  opts,
		log:   o.logger.Component("provider"),
		creds: NewCredentialStore(),
	}
}

// Connect dials the admin endpoint, then the app endpoint, and fetches the
// manifest of appID.
func (p *Provider) Connect(ctx context.Context, appID string) (*types.Manifest, error) {
	if p.admin != nil {
		return nil, errors.New("provider already connected")
	}
	adminURL, err := p.cfg.AdminURL()
	if err != nil {
		return nil, err
	}
	appURL, err := p.cfg.AppURL()
	if err != nil {
		return nil, err
	}

	admin, err := ConnectAdmin(ctx, adminURL, p.creds, p.opts...)
	if err != nil {
		return nil, err
	}
	app, err := ConnectApp(ctx, appURL, p.creds, p.opts...)
	if err != nil {
		_ = admin.Close()
		return nil, err
	}

	manifest, err := app.AppInfo(ctx, appID)
	if err != nil {
		_ = app.Close()
		_ = admin.Close()
		return nil, fmt.Errorf("fetch manifest: %w", err)
	}

	p.admin = admin
	p.app = app
	p.agent = NewAppAgentClient(app, appID, manifest)
	p.manifest = manifest

	p.log.Info("Conductor session established",
		zap.Int("agent", p.cfg.Agent),
		zap.String("app_id", appID),
		zap.Strings("roles", manifest.RoleNames()),
	)
	return manifest, nil
}

// Admin returns the admin client; nil before Connect
func (p *Provider) Admin() *AdminClient { return p.admin }

// App returns the app client; nil before Connect
func (p *Provider) App() *AppClient { return p.app }

// Agent returns the app agent client; nil before Connect
func (p *Provider) Agent() *AppAgentClient { return p.agent }

// Manifest returns the manifest fetched by Connect
func (p *Provider) Manifest() *types.Manifest { return p.manifest }

// Credentials returns the session's signing credentials
func (p *Provider) Credentials() *CredentialStore { return p.creds }

// Close tears down both endpoints
func (p *Provider) Close() error {
	var errs []error
	if p.app != nil {
		errs = append(errs, p.app.Close())
	}
	if p.admin != nil {
		errs = append(errs, p.admin.Close())
	}
	p.app, p.admin, p.agent = nil, nil, nil
	return errors.Join(errs...)
}
