package conductor

import (
	"context"
	"fmt"

	"github.com/neighbourhoods/forum-applet/internal/shared/types"
)

// Admin request types
const (
	RequestGrantZomeCallCapability = "grant_zome_call_capability"
	RequestCreateCloneCell         = "create_clone_cell"
)

// signingGrantTag labels the capability grants this client creates
const signingGrantTag = "zome-call-signing-key"

// CapAccess restricts a grant to holders of the secret signing as assignees
type CapAccess struct {
	Secret    []byte              `cbor:"secret"`
	Assignees []types.AgentPubKey `cbor:"assignees"`
}

// CapGrant is a zome call capability grant
type CapGrant struct {
	Tag       string    `cbor:"tag"`
	Functions string    `cbor:"functions"`
	Access    CapAccess `cbor:"access"`
}

// GrantZomeCallCapabilityRequest grants a capability on one cell
type GrantZomeCallCapabilityRequest struct {
	CellID   types.CellID `cbor:"cell_id"`
	CapGrant CapGrant     `cbor:"cap_grant"`
}

// AdminClient talks to the conductor's administrative endpoint
type AdminClient struct {
	sock  *socket
	creds *CredentialStore
}

// ConnectAdmin dials the admin endpoint at url
func ConnectAdmin(ctx context.Context, url string, creds *CredentialStore, opts ...Option) (*AdminClient, error) {
	sock, err := dial(ctx, "admin", url, buildOptions(opts))
	if err != nil {
		return nil, err
	}
	if creds == nil {
		creds = NewCredentialStore()
	}
	return &AdminClient{sock: sock, creds: creds}, nil
}

// URL returns the endpoint address
func (a *AdminClient) URL() string {
	return a.sock.url
}

// AuthorizeSigningCredentials generates credentials for cell, grants them a
// capability on the conductor and stores them for zome call signing.
func (a *AdminClient) AuthorizeSigningCredentials(ctx context.Context, cell types.CellID) error {
	if cell.IsZero() {
		return fmt.Errorf("authorize signing credentials: empty cell id")
	}
	creds, err := NewSigningCredentials()
	if err != nil {
		return err
	}

	req := GrantZomeCallCapabilityRequest{
		CellID: cell,
		CapGrant: CapGrant{
			Tag:       signingGrantTag,
			Functions: "all",
			Access: CapAccess{
				Secret:    creds.CapSecret,
				Assignees: []types.AgentPubKey{creds.SigningKey},
			},
		},
	}
	if err := a.sock.request(ctx, RequestGrantZomeCallCapability, req, nil); err != nil {
		return err
	}

	a.creds.Put(cell, creds)
	return nil
}

// CreateCloneCell asks the conductor to clone a role's template cell
func (a *AdminClient) CreateCloneCell(ctx context.Context, req types.CreateCloneCellRequest) (*types.ClonedCell, error) {
	var cell types.ClonedCell
	if err := a.sock.request(ctx, RequestCreateCloneCell, req, &cell); err != nil {
		return nil, err
	}
	if cell.CellID.IsZero() || cell.CloneID == "" {
		return nil, fmt.Errorf("%s: conductor returned an incomplete clone", RequestCreateCloneCell)
	}
	return &cell, nil
}

// Close closes the connection
func (a *AdminClient) Close() error {
	return a.sock.close()
}
