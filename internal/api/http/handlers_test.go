package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/neighbourhoods/forum-applet/internal/bootstrap"
	"github.com/neighbourhoods/forum-applet/internal/conductor"
	"github.com/neighbourhoods/forum-applet/internal/domain/applet"
	"github.com/neighbourhoods/forum-applet/internal/domain/neighbourhood"
)

type mockController struct {
	mock.Mock
	status bootstrap.Status
}

func (m *mockController) Status() bootstrap.Status { return m.status }

func (m *mockController) Create(ctx context.Context) (*neighbourhood.Handle, error) {
	args := m.Called(ctx)
	h, _ := args.Get(0).(*neighbourhood.Handle)
	return h, args.Error(1)
}

func (m *mockController) Join(ctx context.Context, activator string) (*neighbourhood.Handle, error) {
	args := m.Called(ctx, activator)
	h, _ := args.Get(0).(*neighbourhood.Handle)
	return h, args.Error(1)
}

func (m *mockController) RetryConfiguration(ctx context.Context) (*neighbourhood.Handle, error) {
	args := m.Called(ctx)
	h, _ := args.Get(0).(*neighbourhood.Handle)
	return h, args.Error(1)
}

func (m *mockController) Renderers(infos []applet.AppletInfo) (*applet.RendererBundle, error) {
	args := m.Called(infos)
	b, _ := args.Get(0).(*applet.RendererBundle)
	return b, args.Error(1)
}

func setup(t *testing.T) (*mockController, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ctrl := &mockController{}
	ctrl.status.Neighbourhood.State = neighbourhood.Unprovisioned
	t.Cleanup(func() { ctrl.AssertExpectations(t) })

	h := NewHandlers(ctrl, nil, nil, time.Minute)
	r := gin.New()
	r.GET("/health", h.Health)
	r.GET("/status", h.Status)
	r.GET("/applet", h.Applet)
	r.POST("/neighbourhood/create", h.CreateNeighbourhood)
	r.POST("/neighbourhood/join", h.JoinNeighbourhood)
	r.POST("/neighbourhood/configuration/retry", h.RetryConfiguration)
	return ctrl, r
}

func do(r *gin.Engine, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var out map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w, out
}

func TestHealth(t *testing.T) {
	_, r := setup(t)

	w, body := do(r, http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "unprovisioned", body["state"])
}

func TestCreateNeighbourhoodSucceeds(t *testing.T) {
	ctrl, r := setup(t)
	handle := &neighbourhood.Handle{RoleName: "sensemaker", CloneLabel: "sensemaker.0"}
	ctrl.On("Create", mock.Anything).Return(handle, nil).Run(func(mock.Arguments) {
		ctrl.status.Neighbourhood.State = neighbourhood.Provisioned
	})

	w, body := do(r, http.MethodPost, "/neighbourhood/create", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "provisioned", body["state"])
	assert.Equal(t, "sensemaker.0", body["handle"].(map[string]any)["clone_label"])
}

func TestCreateOutlivesClientDisconnect(t *testing.T) {
	ctrl, r := setup(t)
	live := mock.MatchedBy(func(ctx context.Context) bool {
		_, bounded := ctx.Deadline()
		return ctx.Err() == nil && bounded
	})
	ctrl.On("Create", live).Return(&neighbourhood.Handle{CloneLabel: "sensemaker.0"}, nil).Once()

	reqCtx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/neighbourhood/create", nil).WithContext(reqCtx)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestJoinPassesActivator(t *testing.T) {
	ctrl, r := setup(t)
	ctrl.On("Join", mock.Anything, "uhCAkactivator").Return(&neighbourhood.Handle{}, nil)

	w, _ := do(r, http.MethodPost, "/neighbourhood/join", `{"activator":"uhCAkactivator"}`)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestJoinRejectsMalformedBody(t *testing.T) {
	_, r := setup(t)

	w, body := do(r, http.MethodPost, "/neighbourhood/join", `{"activator":`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, body["error"], "invalid join request")
}

func TestJoinNotYetVisibleIsAccepted(t *testing.T) {
	ctrl, r := setup(t)
	ctrl.status.Neighbourhood.State = neighbourhood.Provisioning
	ctrl.status.Neighbourhood.Pending = &neighbourhood.Handle{CloneLabel: "sensemaker.0"}
	notVisible := fmt.Errorf("%w: %w", neighbourhood.ErrConfigurationNotYetVisible, errors.New("no config"))
	ctrl.On("Join", mock.Anything, "agentA").Return(nil, notVisible)

	w, body := do(r, http.MethodPost, "/neighbourhood/join", `{"activator":"agentA"}`)

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, true, body["retry"])
	nh := body["neighbourhood"].(map[string]any)
	assert.Equal(t, "provisioning", nh["state"])
	assert.NotNil(t, nh["pending"])
}

func TestRetryConfiguration(t *testing.T) {
	ctrl, r := setup(t)
	ctrl.On("RetryConfiguration", mock.Anything).Return(&neighbourhood.Handle{CloneLabel: "sensemaker.0"}, nil)

	w, _ := do(r, http.MethodPost, "/neighbourhood/configuration/retry", "")

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestProvisioningErrorStatusCodes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"missing activator", neighbourhood.ErrMissingActivator, http.StatusBadRequest},
		{"invalid transition", fmt.Errorf("%w: create while provisioned", neighbourhood.ErrInvalidTransition), http.StatusConflict},
		{"in flight", neighbourhood.ErrProvisioningInFlight, http.StatusConflict},
		{"stage failure", &neighbourhood.ProvisioningError{Action: neighbourhood.ActionCreate, Stage: neighbourhood.StageCreateClone, Err: errors.New("boom")}, http.StatusBadGateway},
		{"connection closed", fmt.Errorf("call: %w", conductor.ErrConnectionClosed), http.StatusServiceUnavailable},
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout},
		{"other", errors.New("unexpected"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl, r := setup(t)
			ctrl.On("Create", mock.Anything).Return(nil, tt.err)

			w, body := do(r, http.MethodPost, "/neighbourhood/create", "")

			assert.Equal(t, tt.want, w.Code)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tt.err.Error(), body["error"])
		})
	}
}

func TestAppletBeforeProvisioning(t *testing.T) {
	ctrl, r := setup(t)
	ctrl.On("Renderers", []applet.AppletInfo(nil)).Return(nil, applet.ErrNotProvisioned)

	w, _ := do(r, http.MethodGet, "/applet", "")

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestAppletMountsElement(t *testing.T) {
	ctrl, r := setup(t)
	handle := &neighbourhood.Handle{RoleName: "sensemaker", CloneLabel: "sensemaker.0", Cell: "uhC0k"}
	bundle := applet.Render(neighbourhood.Provisioned, handle, applet.Endpoints{}, []byte("agent"))
	ctrl.On("Renderers", []applet.AppletInfo(nil)).Return(bundle, nil)

	w, body := do(r, http.MethodGet, "/applet", "")

	require.Equal(t, http.StatusOK, w.Code)
	elements := body["elements"].([]any)
	require.Len(t, elements, 1)
	el := elements[0].(map[string]any)
	assert.Equal(t, applet.ElementName, el["name"])
	assert.Equal(t, "sensemaker.0", el["attributes"].(map[string]any)["sensemaker-clone"])
}
