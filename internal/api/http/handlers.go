package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/neighbourhoods/forum-applet/internal/bootstrap"
	"github.com/neighbourhoods/forum-applet/internal/conductor"
	"github.com/neighbourhoods/forum-applet/internal/domain/applet"
	"github.com/neighbourhoods/forum-applet/internal/domain/neighbourhood"
	"github.com/neighbourhoods/forum-applet/internal/infrastructure/logging"
	"github.com/neighbourhoods/forum-applet/internal/infrastructure/tracing"
)

// Controller is the applet session the harness drives
type Controller interface {
	Status() bootstrap.Status
	Create(ctx context.Context) (*neighbourhood.Handle, error)
	Join(ctx context.Context, activator string) (*neighbourhood.Handle, error)
	RetryConfiguration(ctx context.Context) (*neighbourhood.Handle, error)
	Renderers(infos []applet.AppletInfo) (*applet.RendererBundle, error)
}

// Handlers contains all harness HTTP handlers
type Handlers struct {
	ctrl          Controller
	tracer        *tracing.Tracer
	log           *logging.Logger
	actionTimeout time.Duration
}

// NewHandlers creates a new handler set. tracer may be nil. Provisioning
// actions outlive the request that started them and are bounded by
// actionTimeout instead; zero leaves them unbounded.
func NewHandlers(ctrl Controller, tracer *tracing.Tracer, logger *logging.Logger, actionTimeout time.Duration) *Handlers {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Handlers{ctrl: ctrl, tracer: tracer, log: logger.Component("api"), actionTimeout: actionTimeout}
}

// JoinRequest is the body of POST /neighbourhood/join
type JoinRequest struct {
	Activator string `json:"activator"`
}

// Health reports liveness and the provisioning state
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"state":  h.ctrl.Status().Neighbourhood.State,
	})
}

// Status returns the session summary
func (h *Handlers) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.ctrl.Status())
}

// CreateNeighbourhood founds the neighbourhood
func (h *Handlers) CreateNeighbourhood(c *gin.Context) {
	h.provision(c, neighbourhood.ActionCreate, h.ctrl.Create)
}

// JoinNeighbourhood joins the neighbourhood founded by the given activator
func (h *Handlers) JoinNeighbourhood(c *gin.Context) {
	var req JoinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid join request: " + err.Error()})
		return
	}
	h.provision(c, neighbourhood.ActionJoin, func(ctx context.Context) (*neighbourhood.Handle, error) {
		return h.ctrl.Join(ctx, req.Activator)
	})
}

// RetryConfiguration finishes a join whose configuration was not yet visible
func (h *Handlers) RetryConfiguration(c *gin.Context) {
	h.provision(c, neighbourhood.ActionRetry, h.ctrl.RetryConfiguration)
}

// Applet mounts the full renderer on an in-memory surface and returns
// what was mounted
func (h *Handlers) Applet(c *gin.Context) {
	bundle, err := h.ctrl.Renderers(nil)
	if err != nil {
		h.fail(c, err)
		return
	}

	surface := &applet.RecordingSurface{}
	if err := bundle.Full(surface); err != nil {
		h.fail(c, err)
		return
	}

	blocks := make([]string, 0, len(bundle.Blocks))
	for name := range bundle.Blocks {
		blocks = append(blocks, name)
	}
	c.JSON(http.StatusOK, gin.H{
		"elements": surface.Elements(),
		"blocks":   blocks,
		"applets":  bundle.Applets,
		"handle":   bundle.Handle,
	})
}

func (h *Handlers) provision(c *gin.Context, action neighbourhood.Action, run func(context.Context) (*neighbourhood.Handle, error)) {
	// Detached from the client connection: a disconnect after create_clone
	// must not roll the clone back.
	ctx := context.WithoutCancel(c.Request.Context())
	if h.actionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.actionTimeout)
		defer cancel()
	}
	var span *tracing.Span
	if h.tracer != nil {
		span, ctx = h.tracer.StartSpan(ctx, "neighbourhood."+string(action))
		defer func() {
			span.Finish()
			h.tracer.Submit(span)
		}()
	}

	handle, err := run(ctx)
	snapshot := h.ctrl.Status().Neighbourhood
	if span != nil {
		span.SetTag("state", snapshot.State.String())
	}

	if err != nil {
		if span != nil {
			span.SetError(err)
		}
		if errors.Is(err, neighbourhood.ErrConfigurationNotYetVisible) {
			h.log.Info("Neighbourhood configuration not yet visible",
				zap.String("action", string(action)), zap.Error(err))
			c.JSON(http.StatusAccepted, gin.H{
				"success":       false,
				"retry":         true,
				"error":         err.Error(),
				"neighbourhood": snapshot,
			})
			return
		}
		h.log.Warn("Provisioning request failed", zap.String("action", string(action)), zap.Error(err))
		_ = c.Error(err)
		c.JSON(statusFor(err), gin.H{
			"success":       false,
			"error":         err.Error(),
			"neighbourhood": snapshot,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"handle":  handle,
		"state":   snapshot.State,
	})
}

func (h *Handlers) fail(c *gin.Context, err error) {
	_ = c.Error(err)
	c.JSON(statusFor(err), gin.H{"success": false, "error": err.Error()})
}

// statusFor maps pipeline errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, neighbourhood.ErrMissingActivator):
		return http.StatusBadRequest
	case errors.Is(err, neighbourhood.ErrInvalidTransition),
		errors.Is(err, neighbourhood.ErrProvisioningInFlight),
		errors.Is(err, applet.ErrNotProvisioned):
		return http.StatusConflict
	case errors.Is(err, conductor.ErrConnectionClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, neighbourhood.ErrProvisioningFailed):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
