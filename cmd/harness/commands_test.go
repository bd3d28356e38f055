package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neighbourhoods/forum-applet/internal/bootstrap"
	"github.com/neighbourhoods/forum-applet/internal/domain/neighbourhood"
	"github.com/neighbourhoods/forum-applet/internal/shared/hash"
	"github.com/neighbourhoods/forum-applet/tests/helpers/testutil"
)

func pointAt(t *testing.T, fake *testutil.FakeConductor) {
	t.Helper()
	cc := fake.Config()
	t.Setenv("HC_HOST", cc.Host)
	t.Setenv("HC_PORT", strconv.Itoa(cc.AppPort))
	t.Setenv("ADMIN_PORT", strconv.Itoa(cc.AdminPort))
	t.Setenv("HC_PORT_2", strconv.Itoa(cc.AppPort2))
	t.Setenv("ADMIN_PORT_2", strconv.Itoa(cc.AdminPort2))
	t.Setenv("NH_JOIN_GRACE", "10ms")
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestStatusCommand(t *testing.T) {
	fake := testutil.NewFakeConductor(t)
	fake.InstallApp(testutil.Manifest(t, "alice", 0))
	pointAt(t, fake)

	out, err := run(t, "status", "--agent", "2")
	require.NoError(t, err)

	var st bootstrap.Status
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.Equal(t, 2, st.AgentIndex)
	assert.Equal(t, hash.Encode(testutil.AgentKey("alice")), st.Agent)
	assert.Equal(t, neighbourhood.Unprovisioned, st.Neighbourhood.State)
}

func TestCreateThenStatusResumes(t *testing.T) {
	fake := testutil.NewFakeConductor(t)
	fake.InstallApp(testutil.Manifest(t, "alice", 0))
	pointAt(t, fake)

	out, err := run(t, "create")
	require.NoError(t, err)
	var handle neighbourhood.Handle
	require.NoError(t, json.Unmarshal([]byte(out), &handle))
	assert.Equal(t, testutil.SensemakerRole, handle.RoleName)

	out, err = run(t, "status")
	require.NoError(t, err)
	var st bootstrap.Status
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.Equal(t, neighbourhood.Provisioned, st.Neighbourhood.State)
	require.NotNil(t, st.Neighbourhood.Handle)
	assert.Equal(t, handle.CloneLabel, st.Neighbourhood.Handle.CloneLabel)
}

func TestJoinRequiresActivator(t *testing.T) {
	_, err := run(t, "join")
	require.Error(t, err)
}

func TestInvalidAgentFlag(t *testing.T) {
	_, err := run(t, "status", "--agent", "3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid AGENT")
}
