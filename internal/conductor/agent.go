package conductor

import (
	"context"
	"fmt"
	"sync"

	"github.com/fxamacker/cbor/v2"

	"github.com/neighbourhoods/forum-applet/internal/shared/types"
)

// RoleZomeCall addresses a zome function by role name or clone label
// instead of by cell id
type RoleZomeCall struct {
	RoleName string
	ZomeName string
	FnName   string
	Payload  any
}

// AppAgentClient is an app endpoint bound to one installed app. It resolves
// role names and clone labels through the app's manifest.
type AppAgentClient struct {
	app   *AppClient
	appID string

	mu       sync.RWMutex
	manifest *types.Manifest // Protected by mu
}

// NewAppAgentClient binds app to appID, seeding it with a known manifest
// (may be nil; it is fetched on first use).
func NewAppAgentClient(app *AppClient, appID string, manifest *types.Manifest) *AppAgentClient {
	return &AppAgentClient{app: app, appID: appID, manifest: manifest}
}

// AppID returns the installed app id
func (c *AppAgentClient) AppID() string {
	return c.appID
}

// URL returns the endpoint address
func (c *AppAgentClient) URL() string {
	return c.app.URL()
}

// Refresh re-fetches the manifest
func (c *AppAgentClient) Refresh(ctx context.Context) (*types.Manifest, error) {
	m, err := c.app.AppInfo(ctx, c.appID)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.manifest = m
	c.mu.Unlock()
	return m, nil
}

// ResolveCell finds the cell for a role name or clone label, refreshing the
// manifest once when the name is unknown (a clone may be newer than it).
func (c *AppAgentClient) ResolveCell(ctx context.Context, name string) (types.CellID, error) {
	c.mu.RLock()
	m := c.manifest
	c.mu.RUnlock()

	if m != nil {
		if id, ok := lookupCell(m, name); ok {
			return id, nil
		}
	}

	m, err := c.Refresh(ctx)
	if err != nil {
		return types.CellID{}, err
	}
	if id, ok := lookupCell(m, name); ok {
		return id, nil
	}
	return types.CellID{}, fmt.Errorf("%w: %q in app %s", ErrCellNotFound, name, c.appID)
}

// CallZome resolves the role and performs the call
func (c *AppAgentClient) CallZome(ctx context.Context, call RoleZomeCall) (cbor.RawMessage, error) {
	cell, err := c.ResolveCell(ctx, call.RoleName)
	if err != nil {
		return nil, err
	}
	return c.app.CallZome(ctx, ZomeCall{
		CellID:   cell,
		ZomeName: call.ZomeName,
		FnName:   call.FnName,
		Payload:  call.Payload,
	})
}

func lookupCell(m *types.Manifest, name string) (types.CellID, bool) {
	if cells, ok := m.CellInfo[name]; ok {
		for _, d := range cells {
			if p, ok := d.(types.ProvisionedCell); ok {
				return p.CellID, true
			}
		}
	}
	for _, cells := range m.CellInfo {
		for _, d := range cells {
			if cl, ok := d.(types.ClonedCell); ok && cl.CloneID == name {
				return cl.CellID, true
			}
		}
	}
	return types.CellID{}, false
}
