package bootstrap_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neighbourhoods/forum-applet/internal/bootstrap"
	"github.com/neighbourhoods/forum-applet/internal/conductor"
	"github.com/neighbourhoods/forum-applet/internal/domain/applet"
	"github.com/neighbourhoods/forum-applet/internal/domain/cells"
	"github.com/neighbourhoods/forum-applet/internal/domain/neighbourhood"
	"github.com/neighbourhoods/forum-applet/internal/domain/signing"
	"github.com/neighbourhoods/forum-applet/internal/infrastructure/config"
	"github.com/neighbourhoods/forum-applet/internal/infrastructure/monitoring"
	"github.com/neighbourhoods/forum-applet/internal/sensemaker"
	"github.com/neighbourhoods/forum-applet/internal/shared/hash"
	"github.com/neighbourhoods/forum-applet/internal/shared/types"
	"github.com/neighbourhoods/forum-applet/tests/helpers/testutil"
)

func testConfig(fake *testutil.FakeConductor) *config.Config {
	cfg := config.Default()
	cfg.Conductor = fake.Config()
	cfg.Neighbourhood.JoinGrace = 10 * time.Millisecond
	return cfg
}

func start(t *testing.T, cfg *config.Config) *bootstrap.Session {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s, err := bootstrap.Start(ctx, cfg, nil, monitoring.NewMetrics())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func indexOf(calls []string, op string) int {
	for i, c := range calls {
		if c == op {
			return i
		}
	}
	return -1
}

// Scenario A
func TestCreateNeighbourhood(t *testing.T) {
	fake := testutil.NewFakeConductor(t)
	fake.InstallApp(testutil.Manifest(t, "alice", 0))
	s := start(t, testConfig(fake))

	require.Equal(t, neighbourhood.Unprovisioned, s.Machine().State())
	_, err := s.Renderers(nil)
	assert.ErrorIs(t, err, applet.ErrNotProvisioned)

	handle, err := s.Create(context.Background())
	require.NoError(t, err)
	assert.Equal(t, neighbourhood.Provisioned, s.Machine().State())

	smCells := fake.Manifest(testutil.AppID).CellInfo[testutil.SensemakerRole]
	require.Len(t, smCells, 2)
	clone, ok := smCells[1].(types.ClonedCell)
	require.True(t, ok)
	assert.Equal(t, clone.CloneID, handle.CloneLabel)
	assert.True(t, clone.CellID.Equal(handle.CellID))

	props, err := clone.SensemakerProperties()
	require.NoError(t, err)
	assert.Equal(t, hash.Encode(testutil.AgentKey("alice")), props.SensemakerConfig.CommunityActivator)
	assert.Equal(t, "todo test", props.SensemakerConfig.Neighbourhood)
	assert.Empty(t, clone.DnaModifiers.NetworkSeed)

	// create -> authorize -> register, strictly in order
	calls := fake.Calls()
	create := indexOf(calls, conductor.RequestCreateCloneCell)
	require.GreaterOrEqual(t, create, 0)
	grant := indexOf(calls[create:], conductor.RequestGrantZomeCallCapability)
	require.GreaterOrEqual(t, grant, 0)
	register := indexOf(calls[create+grant:], sensemaker.FnRegisterApplet)
	require.GreaterOrEqual(t, register, 0)
	assert.True(t, fake.Granted(clone.CellID))

	cfg, ok := fake.AppletConfig(clone.CellID, "forum")
	require.True(t, ok)
	assert.Contains(t, cfg.Dimensions, "total_likeness")

	bundle, err := s.Renderers(nil)
	require.NoError(t, err)
	surface := &applet.RecordingSurface{}
	require.NoError(t, bundle.Full(surface))
	require.Len(t, surface.Elements(), 1)
	assert.Equal(t, clone.CloneID, surface.Elements()[0].Attributes["sensemaker-clone"])
	assert.Equal(t, testutil.AppID, surface.Elements()[0].Attributes["installed-app-id"])
}

// Scenario B
func TestResumeExistingNeighbourhood(t *testing.T) {
	fake := testutil.NewFakeConductor(t)
	manifest := testutil.Manifest(t, "alice", 0)
	manifest.CellInfo[testutil.SensemakerRole] = append(manifest.CellInfo[testutil.SensemakerRole],
		testutil.Cloned(testutil.SensemakerRole, "alice", "L1"))
	fake.InstallApp(manifest)

	s := start(t, testConfig(fake))

	assert.Equal(t, neighbourhood.Provisioned, s.Machine().State())
	assert.Equal(t, "L1", s.Machine().Handle().CloneLabel)
	assert.NotContains(t, fake.Calls(), conductor.RequestCreateCloneCell)

	_, err := s.Create(context.Background())
	assert.ErrorIs(t, err, neighbourhood.ErrInvalidTransition)
	assert.NotContains(t, fake.Calls(), conductor.RequestCreateCloneCell)
}

// Scenario C
func TestJoinWithDelayedConfiguration(t *testing.T) {
	fake := testutil.NewFakeConductor(t)
	fake.InstallApp(testutil.Manifest(t, "bob", 0))
	s := start(t, testConfig(fake))

	fake.FailNext(sensemaker.FnCheckAppletConfig, 1)
	_, err := s.Join(context.Background(), "agentB")
	require.ErrorIs(t, err, neighbourhood.ErrConfigurationNotYetVisible)
	assert.NotErrorIs(t, err, neighbourhood.ErrProvisioningFailed)
	assert.Equal(t, neighbourhood.Provisioning, s.Machine().State())

	st := s.Status()
	require.NotNil(t, st.Neighbourhood.Pending)
	assert.Equal(t, "agentB", st.Neighbourhood.Activator)

	handle, err := s.RetryConfiguration(context.Background())
	require.NoError(t, err)
	assert.Equal(t, neighbourhood.Provisioned, s.Machine().State())

	clone := fake.Manifest(testutil.AppID).CellInfo[testutil.SensemakerRole][1].(types.ClonedCell)
	assert.Equal(t, clone.CloneID, handle.CloneLabel)
	props, err := clone.SensemakerProperties()
	require.NoError(t, err)
	assert.Equal(t, "agentB", props.SensemakerConfig.CommunityActivator)
}

// Scenario D
func TestSkipPolicyContinuesPastFailedCell(t *testing.T) {
	fake := testutil.NewFakeConductor(t)
	manifest := testutil.Manifest(t, "alice", 3)
	fake.InstallApp(manifest)
	denied := manifest.CellInfo[testutil.SensemakerRole][3].(types.ClonedCell).CellID
	fake.DenyGrant(denied)

	cfg := testConfig(fake)
	cfg.Neighbourhood.AuthPolicy = string(signing.PolicySkip)
	s := start(t, cfg)

	report := s.Report()
	assert.Len(t, report.Authorized, 4)
	require.Len(t, report.Failed, 1)
	assert.True(t, report.Failed[0].CellID.Equal(denied))

	ids, err := s.Directory().Identifiers()
	require.NoError(t, err)
	assert.Len(t, ids, 5)

	st := s.Status()
	assert.Equal(t, s.ID().String(), st.SessionID)
	assert.True(t, strings.HasPrefix(st.SessionID, "sess_"))
	assert.Equal(t, 4, st.Authorized)
	require.Len(t, st.Failed, 1)
	assert.Equal(t, denied.String(), st.Failed[0].Cell)
	assert.Equal(t, neighbourhood.Provisioned, st.Neighbourhood.State)
}

func TestAbortPolicyFailsStartup(t *testing.T) {
	fake := testutil.NewFakeConductor(t)
	manifest := testutil.Manifest(t, "alice", 0)
	fake.InstallApp(manifest)
	fake.DenyGrant(manifest.CellInfo[testutil.ForumRole][0].(types.ProvisionedCell).CellID)

	_, err := bootstrap.Start(context.Background(), testConfig(fake), nil, nil)
	assert.ErrorIs(t, err, signing.ErrAuthorizationFailed)
}

func TestMissingPrimaryRoleFailsStartup(t *testing.T) {
	fake := testutil.NewFakeConductor(t)
	manifest := testutil.Manifest(t, "alice", 0)
	delete(manifest.CellInfo, testutil.ForumRole)
	fake.InstallApp(manifest)

	_, err := bootstrap.Start(context.Background(), testConfig(fake), nil, nil)
	assert.ErrorIs(t, err, cells.ErrRoleNotFound)
}

func TestUnrecognizedCellFailsStartup(t *testing.T) {
	fake := testutil.NewFakeConductor(t)
	manifest := testutil.Manifest(t, "alice", 0)
	manifest.CellInfo["extra"] = types.CellList{types.StemCell{Name: "stem"}}
	fake.InstallApp(manifest)

	_, err := bootstrap.Start(context.Background(), testConfig(fake), nil, nil)
	assert.ErrorIs(t, err, cells.ErrUnrecognizedCellShape)
}

func TestMissingSensemakerRoleStartsUnprovisioned(t *testing.T) {
	fake := testutil.NewFakeConductor(t)
	fake.InstallApp(testutil.Manifest(t, "alice", -1))

	s := start(t, testConfig(fake))
	assert.Equal(t, neighbourhood.Unprovisioned, s.Machine().State())

	_, err := s.Create(context.Background())
	require.ErrorIs(t, err, neighbourhood.ErrProvisioningFailed)
	var perr *neighbourhood.ProvisioningError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, neighbourhood.StageCreateClone, perr.Stage)
	assert.Equal(t, neighbourhood.Unprovisioned, s.Machine().State())
}
