package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neighbourhoods/forum-applet/internal/bootstrap"
	"github.com/neighbourhoods/forum-applet/internal/infrastructure/config"
	"github.com/neighbourhoods/forum-applet/internal/infrastructure/logging"
	"github.com/neighbourhoods/forum-applet/internal/infrastructure/server"
	"github.com/neighbourhoods/forum-applet/internal/infrastructure/tracing"
	"github.com/neighbourhoods/forum-applet/internal/sensemaker"
	"github.com/neighbourhoods/forum-applet/internal/shared/hash"
	"github.com/neighbourhoods/forum-applet/internal/shared/types"
	"github.com/neighbourhoods/forum-applet/tests/helpers/testutil"
)

func newServer(t *testing.T, fake *testutil.FakeConductor) *server.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Default()
	cfg.Conductor = fake.Config()
	cfg.Neighbourhood.JoinGrace = 10 * time.Millisecond
	cfg.Logging.Development = true

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv, err := server.NewServer(ctx, cfg, logging.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })
	return srv
}

func serve(srv *server.Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func TestHarnessCreateFlow(t *testing.T) {
	fake := testutil.NewFakeConductor(t)
	fake.InstallApp(testutil.Manifest(t, "alice", 0))
	srv := newServer(t, fake)

	w := serve(srv, http.MethodGet, "/applet", "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = serve(srv, http.MethodPost, "/neighbourhood/create", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotEmpty(t, w.Header().Get(tracing.HeaderTraceID))

	// A second create is an invalid transition.
	w = serve(srv, http.MethodPost, "/neighbourhood/create", "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = serve(srv, http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, w.Code)
	var st bootstrap.Status
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.Equal(t, testutil.AppID, st.AppID)
	assert.Equal(t, hash.Encode(testutil.AgentKey("alice")), st.Agent)
	// Roles reflect the manifest fetched at startup; the new clone is
	// reported through the neighbourhood handle.
	assert.Equal(t, 1, st.Roles[testutil.SensemakerRole])
	require.NotNil(t, st.Neighbourhood.Handle)
	clone := fake.Manifest(testutil.AppID).CellInfo[testutil.SensemakerRole][1].(types.ClonedCell)
	assert.Equal(t, clone.CloneID, st.Neighbourhood.Handle.CloneLabel)
	assert.Equal(t, clone.CellID.String(), st.Neighbourhood.Handle.Cell)

	w = serve(srv, http.MethodGet, "/applet", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), st.Neighbourhood.Handle.CloneLabel)

	w = serve(srv, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "applet_provisioning_transitions_total")
	assert.Contains(t, w.Body.String(), "applet_http_requests_total")
}

func TestHarnessJoinFlow(t *testing.T) {
	fake := testutil.NewFakeConductor(t)
	fake.InstallApp(testutil.Manifest(t, "bob", 0))
	srv := newServer(t, fake)

	w := serve(srv, http.MethodPost, "/neighbourhood/join", `{"activator":""}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	activator := hash.Encode(testutil.AgentKey("alice"))
	fake.FailNext(sensemaker.FnCheckAppletConfig, 1)
	w = serve(srv, http.MethodPost, "/neighbourhood/join", `{"activator":"`+activator+`"}`)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	w = serve(srv, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "provisioning")

	w = serve(srv, http.MethodPost, "/neighbourhood/configuration/retry", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"state":"provisioned"`)
}

func TestNewServerFailsWithoutApp(t *testing.T) {
	fake := testutil.NewFakeConductor(t)

	cfg := config.Default()
	cfg.Conductor = fake.Config()

	_, err := server.NewServer(context.Background(), cfg, logging.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bootstrap applet")
}
