package testutil_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neighbourhoods/forum-applet/internal/conductor"
	"github.com/neighbourhoods/forum-applet/tests/helpers/testutil"
)

func TestFakeConductorAnswersAndRejects(t *testing.T) {
	fake := testutil.NewFakeConductor(t)
	fake.InstallApp(testutil.Manifest(t, "alice", 0))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	app, err := conductor.ConnectApp(ctx, fake.AppURL(), conductor.NewCredentialStore())
	require.NoError(t, err)
	defer app.Close()

	manifest, err := app.AppInfo(ctx, testutil.AppID)
	require.NoError(t, err)
	assert.Equal(t, testutil.AppID, manifest.InstalledAppID)

	fake.FailNext(conductor.RequestAppInfo, 1)
	_, err = app.AppInfo(ctx, testutil.AppID)
	require.Error(t, err)
	assert.True(t, conductor.IsRemote(err))

	// The connection stays usable after a rejected request.
	_, err = app.AppInfo(ctx, testutil.AppID)
	require.NoError(t, err)
	assert.Equal(t, []string{conductor.RequestAppInfo, conductor.RequestAppInfo, conductor.RequestAppInfo}, fake.Calls())
}
