package sensemaker_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neighbourhoods/forum-applet/internal/conductor"
	"github.com/neighbourhoods/forum-applet/internal/sensemaker"
	"github.com/neighbourhoods/forum-applet/internal/shared/types"
	"github.com/neighbourhoods/forum-applet/tests/helpers/testutil"
)

func setup(t *testing.T) (*testutil.FakeConductor, *conductor.Provider, types.ClonedCell) {
	t.Helper()
	fake := testutil.NewFakeConductor(t)
	manifest := testutil.Manifest(t, "alice", 1)
	fake.InstallApp(manifest)

	p := conductor.NewProvider(fake.Config())
	t.Cleanup(func() { _ = p.Close() })
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := p.Connect(ctx, testutil.AppID)
	require.NoError(t, err)

	clone := manifest.CellInfo[testutil.SensemakerRole][1].(types.ClonedCell)
	require.NoError(t, p.Admin().AuthorizeSigningCredentials(ctx, clone.CellID))
	return fake, p, clone
}

func forumConfig() types.AppletConfigInput {
	return types.AppletConfigInput{
		Name:       "forum",
		Ranges:     []types.Range{{Name: "1-scale", Min: 0, Max: 1}},
		Dimensions: []types.DimensionInput{{Name: "like", Range: "1-scale"}},
	}
}

func TestRegisterAppletChecksThenRegisters(t *testing.T) {
	fake, p, clone := setup(t)
	store := sensemaker.New(p.Agent(), clone.CloneID, nil)

	cfg, err := store.RegisterApplet(context.Background(), forumConfig())
	require.NoError(t, err)
	assert.Equal(t, "forum", cfg.Name)
	assert.Contains(t, cfg.Dimensions, "like")

	assert.Equal(t, []string{
		conductor.RequestAppInfo,
		conductor.RequestGrantZomeCallCapability,
		sensemaker.FnCheckAppletConfig,
		sensemaker.FnRegisterApplet,
	}, fake.Calls())

	stored, ok := fake.AppletConfig(clone.CellID, "forum")
	require.True(t, ok)
	assert.Equal(t, stored.Dimensions["like"], cfg.Dimensions["like"])
}

func TestRegisterAppletIsIdempotent(t *testing.T) {
	fake, p, clone := setup(t)

	first, err := sensemaker.New(p.Agent(), clone.CloneID, nil).RegisterApplet(context.Background(), forumConfig())
	require.NoError(t, err)

	// A fresh store finds the existing config instead of registering again.
	second, err := sensemaker.New(p.Agent(), clone.CloneID, nil).RegisterApplet(context.Background(), forumConfig())
	require.NoError(t, err)
	assert.Equal(t, first.Ranges, second.Ranges)

	registers := 0
	for _, c := range fake.Calls() {
		if c == sensemaker.FnRegisterApplet {
			registers++
		}
	}
	assert.Equal(t, 1, registers)
}

func TestRegisterAppletSurfacesFailures(t *testing.T) {
	fake, p, clone := setup(t)
	fake.FailNext(sensemaker.FnCheckAppletConfig, 1)

	_, err := sensemaker.New(p.Agent(), clone.CloneID, nil).RegisterApplet(context.Background(), forumConfig())
	require.Error(t, err)
	assert.True(t, conductor.IsRemote(err))
	assert.NotContains(t, fake.Calls(), sensemaker.FnRegisterApplet)
}

func TestRegisterAppletRequiresName(t *testing.T) {
	_, p, clone := setup(t)
	_, err := sensemaker.New(p.Agent(), clone.CloneID, nil).RegisterApplet(context.Background(), types.AppletConfigInput{})
	assert.Error(t, err)
}

func TestAppletConfig(t *testing.T) {
	_, p, clone := setup(t)
	store := sensemaker.New(p.Agent(), clone.CloneID, nil)

	_, err := store.AppletConfig(context.Background(), "forum")
	assert.ErrorIs(t, err, sensemaker.ErrConfigNotFound)

	_, err = store.RegisterApplet(context.Background(), forumConfig())
	require.NoError(t, err)
	cfg, err := sensemaker.New(p.Agent(), clone.CloneID, nil).AppletConfig(context.Background(), "forum")
	require.NoError(t, err)
	assert.Equal(t, "forum", cfg.Name)
}

func TestUnauthorizedCellIsRejected(t *testing.T) {
	_, p, _ := setup(t)

	_, err := sensemaker.New(p.Agent(), testutil.SensemakerRole, nil).RegisterApplet(context.Background(), forumConfig())
	assert.ErrorIs(t, err, conductor.ErrNotAuthorized)
}
