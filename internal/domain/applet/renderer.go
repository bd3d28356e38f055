package applet

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/neighbourhoods/forum-applet/internal/conductor"
	"github.com/neighbourhoods/forum-applet/internal/domain/neighbourhood"
	"github.com/neighbourhoods/forum-applet/internal/infrastructure/logging"
	"github.com/neighbourhoods/forum-applet/internal/shared/hash"
	"github.com/neighbourhoods/forum-applet/internal/shared/types"
)

// ElementName is the custom element the full renderer mounts
const ElementName = "forum-applet"

// ErrNotProvisioned is returned by AppletRenderers before the neighbourhood
// is provisioned
var ErrNotProvisioned = errors.New("applet: neighbourhood not provisioned")

// Endpoints are the conductor clients the applet renders against
type Endpoints struct {
	App      *conductor.AppClient
	AppAgent *conductor.AppAgentClient
	Admin    *conductor.AdminClient
}

// Services are the shared-state clients the host provides
type Services struct {
	Sensemaker neighbourhood.Registrar
}

// AppletInfo describes one applet instance known to the host
type AppletInfo struct {
	Name           string `json:"name"`
	InstalledAppID string `json:"installed_app_id"`
	Neighbourhood  string `json:"neighbourhood"`
}

// Element is a mountable custom element
type Element struct {
	Name       string            `json:"name"`
	Attributes map[string]string `json:"attributes"`
}

// Surface is the host-provided mount point
type Surface interface {
	Mount(el Element) error
}

// BlockRenderer renders one named block onto a surface
type BlockRenderer func(surface Surface) error

// RendererBundle is what the host mounts. It carries everything downstream
// rendering needs: endpoints, the sensemaker handle and the local agent.
type RendererBundle struct {
	Endpoints Endpoints
	Handle    *neighbourhood.Handle
	Agent     types.AgentPubKey
	Services  Services
	Applets   []AppletInfo
	Blocks    map[string]BlockRenderer
}

// Render builds the bundle for a provisioned neighbourhood. Calling it in
// any other state, or without a handle or agent, is a programming error and
// panics.
func Render(state neighbourhood.State, handle *neighbourhood.Handle, endpoints Endpoints, agent types.AgentPubKey) *RendererBundle {
	if state != neighbourhood.Provisioned {
		panic(fmt.Sprintf("applet: render called while %s", state))
	}
	if handle == nil {
		panic("applet: render called without a sensemaker handle")
	}
	if len(agent) == 0 {
		panic("applet: render called without an agent key")
	}
	return &RendererBundle{
		Endpoints: endpoints,
		Handle:    handle,
		Agent:     agent,
		Blocks:    map[string]BlockRenderer{},
	}
}

// Element describes the full applet view
func (b *RendererBundle) Element() Element {
	attrs := map[string]string{
		"agent-pub-key":    hash.Encode(b.Agent),
		"sensemaker-role":  b.Handle.RoleName,
		"sensemaker-clone": b.Handle.CloneLabel,
		"sensemaker-cell":  b.Handle.Cell,
	}
	if b.Handle.Endpoint != "" {
		attrs["app-url"] = b.Handle.Endpoint
	}
	if b.Endpoints.AppAgent != nil {
		attrs["installed-app-id"] = b.Endpoints.AppAgent.AppID()
	}
	if b.Endpoints.Admin != nil {
		attrs["admin-url"] = b.Endpoints.Admin.URL()
	}
	return Element{Name: ElementName, Attributes: attrs}
}

// Full mounts the applet element on surface
func (b *RendererBundle) Full(surface Surface) error {
	if surface == nil {
		return errors.New("applet: nil surface")
	}
	return surface.Mount(b.Element())
}

// StateSource exposes the provisioning state the applet renders from
type StateSource interface {
	Snapshot() neighbourhood.Snapshot
	Store() neighbourhood.Registrar
}

// Applet is the host-facing entry point
type Applet struct {
	source StateSource
	agent  types.AgentPubKey
	log    *logging.Logger
}

// New creates an applet for the local agent
func New(source StateSource, agent types.AgentPubKey, logger *logging.Logger) *Applet {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Applet{source: source, agent: agent, log: logger.Component("applet")}
}

// AppletRenderers is the renderer factory the host calls. Before the
// neighbourhood is provisioned it returns ErrNotProvisioned so the host can
// keep showing its waiting view. Without a host sensemaker service the
// store attached by the state machine is used.
func (a *Applet) AppletRenderers(app *conductor.AppClient, appAgent *conductor.AppAgentClient, admin *conductor.AdminClient, services Services, infos []AppletInfo) (*RendererBundle, error) {
	snap := a.source.Snapshot()
	if snap.State != neighbourhood.Provisioned || snap.Handle == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotProvisioned, snap.State)
	}

	bundle := Render(snap.State, snap.Handle, Endpoints{App: app, AppAgent: appAgent, Admin: admin}, a.agent)
	if services.Sensemaker == nil {
		services.Sensemaker = a.source.Store()
	}
	bundle.Services = services
	bundle.Applets = infos

	a.log.Debug("Renderers built",
		zap.String("clone", snap.Handle.CloneLabel),
		zap.Int("applets", len(infos)),
	)
	return bundle, nil
}

// RecordingSurface keeps mounted elements in memory
type RecordingSurface struct {
	mu       sync.Mutex
	elements []Element
}

// Mount records el
func (s *RecordingSurface) Mount(el Element) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.elements = append(s.elements, el)
	return nil
}

// Elements returns the mounted elements in order
func (s *RecordingSurface) Elements() []Element {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Element(nil), s.elements...)
}
