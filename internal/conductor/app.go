package conductor

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/neighbourhoods/forum-applet/internal/shared/types"
)

// App request types
const (
	RequestAppInfo  = "app_info"
	RequestCallZome = "call_zome"
)

const zomeCallTTL = 5 * time.Minute

// AppInfoRequest asks for an installed app's manifest
type AppInfoRequest struct {
	InstalledAppID string `cbor:"installed_app_id"`
}

// ZomeCall is an unsigned call to one zome function
type ZomeCall struct {
	CellID     types.CellID
	ZomeName   string
	FnName     string
	Payload    any
	Provenance types.AgentPubKey
}

// UnsignedZomeCall is the exact structure whose bytes get signed
type UnsignedZomeCall struct {
	CellID     types.CellID      `cbor:"cell_id"`
	ZomeName   string            `cbor:"zome_name"`
	FnName     string            `cbor:"fn_name"`
	Payload    []byte            `cbor:"payload"`
	CapSecret  []byte            `cbor:"cap_secret"`
	Provenance types.AgentPubKey `cbor:"provenance"`
	Nonce      []byte            `cbor:"nonce"`
	ExpiresAt  int64             `cbor:"expires_at"`
}

// SignedZomeCall is what travels to the conductor
type SignedZomeCall struct {
	UnsignedZomeCall
	Signature []byte `cbor:"signature"`
}

// AppClient talks to the conductor's application endpoint
type AppClient struct {
	sock  *socket
	creds *CredentialStore
	now   func() time.Time
}

// ConnectApp dials the app endpoint at url
func ConnectApp(ctx context.Context, url string, creds *CredentialStore, opts ...Option) (*AppClient, error) {
	sock, err := dial(ctx, "app", url, buildOptions(opts))
	if err != nil {
		return nil, err
	}
	if creds == nil {
		creds = NewCredentialStore()
	}
	return &AppClient{sock: sock, creds: creds, now: time.Now}, nil
}

// URL returns the endpoint address
func (a *AppClient) URL() string {
	return a.sock.url
}

// AppInfo fetches the manifest of an installed app
func (a *AppClient) AppInfo(ctx context.Context, appID string) (*types.Manifest, error) {
	var manifest *types.Manifest
	if err := a.sock.request(ctx, RequestAppInfo, AppInfoRequest{InstalledAppID: appID}, &manifest); err != nil {
		return nil, err
	}
	if manifest == nil {
		return nil, fmt.Errorf("%w: %s", ErrAppNotInstalled, appID)
	}
	return manifest, nil
}

// CallZome signs and sends a zome call, returning the raw result payload
func (a *AppClient) CallZome(ctx context.Context, call ZomeCall) (cbor.RawMessage, error) {
	creds, ok := a.creds.Get(call.CellID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotAuthorized, call.CellID)
	}

	signed, err := a.sign(call, creds)
	if err != nil {
		return nil, err
	}

	var out cbor.RawMessage
	if err := a.sock.request(ctx, RequestCallZome, signed, &out); err != nil {
		return nil, fmt.Errorf("%s/%s: %w", call.ZomeName, call.FnName, err)
	}
	return out, nil
}

func (a *AppClient) sign(call ZomeCall, creds SigningCredentials) (*SignedZomeCall, error) {
	payload, err := Marshal(call.Payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s/%s payload: %w", call.ZomeName, call.FnName, err)
	}
	nonce := make([]byte, 32)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	provenance := call.Provenance
	if len(provenance) == 0 {
		provenance = creds.SigningKey
	}

	unsigned := UnsignedZomeCall{
		CellID:     call.CellID,
		ZomeName:   call.ZomeName,
		FnName:     call.FnName,
		Payload:    payload,
		CapSecret:  creds.CapSecret,
		Provenance: provenance,
		Nonce:      nonce,
		ExpiresAt:  a.now().Add(zomeCallTTL).UnixMicro(),
	}
	data, err := Marshal(unsigned)
	if err != nil {
		return nil, fmt.Errorf("encode %s/%s call: %w", call.ZomeName, call.FnName, err)
	}

	return &SignedZomeCall{UnsignedZomeCall: unsigned, Signature: creds.Sign(data)}, nil
}

// Close closes the connection
func (a *AppClient) Close() error {
	return a.sock.close()
}
