package testutil

import (
	"bytes"
	"crypto/ed25519"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/gorilla/websocket"
	"golang.org/x/crypto/blake2b"

	"github.com/neighbourhoods/forum-applet/internal/conductor"
	"github.com/neighbourhoods/forum-applet/internal/infrastructure/config"
	"github.com/neighbourhoods/forum-applet/internal/shared/types"
)

// Sensemaker zome functions served by the fake conductor
const (
	SensemakerZome          = "sensemaker_main"
	FnCheckAppletConfig     = "check_if_applet_config_exists"
	FnRegisterApplet        = "register_applet"
	FnGetAppletConfig       = "get_applet_config"
	errTypeInternal         = "internal_error"
	errTypeUnauthorized     = "unauthorized"
	errTypeRoleNotFound     = "role_not_found"
	errTypeInvalidRequest   = "invalid_request"
	errTypeZomeFnNotExposed = "zome_fn_not_exposed"
)

// FakeConductor serves the admin and app endpoints over real websockets
// from in-memory state. Sensemaker configs are keyed by DNA hash, so two
// agents whose clones share a DNA see the same documents.
type FakeConductor struct {
	t testing.TB

	admin *httptest.Server
	app   *httptest.Server

	mu       sync.Mutex
	apps     map[string]*types.Manifest
	grants   map[string][]conductor.CapGrant
	configs  map[string]map[string]types.AppletConfig
	calls    []string
	failures map[string]int
	denied   map[string]bool
	conns    map[*websocket.Conn]struct{}
}

// NewFakeConductor starts both endpoints; they are closed with the test
func NewFakeConductor(t testing.TB) *FakeConductor {
	t.Helper()

	f := &FakeConductor{
		t:        t,
		apps:     make(map[string]*types.Manifest),
		grants:   make(map[string][]conductor.CapGrant),
		configs:  make(map[string]map[string]types.AppletConfig),
		failures: make(map[string]int),
		denied:   make(map[string]bool),
		conns:    make(map[*websocket.Conn]struct{}),
	}
	f.admin = httptest.NewServer(f.endpoint(f.handleAdmin))
	f.app = httptest.NewServer(f.endpoint(f.handleApp))
	t.Cleanup(f.Close)
	return f
}

// AdminURL returns the websocket URL of the admin endpoint
func (f *FakeConductor) AdminURL() string { return wsURL(f.admin) }

// AppURL returns the websocket URL of the app endpoint
func (f *FakeConductor) AppURL() string { return wsURL(f.app) }

// Config returns conductor settings pointing agent 1 and 2 at this fake
func (f *FakeConductor) Config() config.ConductorConfig {
	adminHost, adminPort := hostPort(f.t, f.admin)
	_, appPort := hostPort(f.t, f.app)
	return config.ConductorConfig{
		Agent:          1,
		Host:           adminHost,
		AppPort:        appPort,
		AppPort2:       appPort,
		AdminPort:      adminPort,
		AdminPort2:     adminPort,
		RequestTimeout: 5 * time.Second,
	}
}

// InstallApp makes m available through app_info
func (f *FakeConductor) InstallApp(m *types.Manifest) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.apps[m.InstalledAppID] = m
}

// Manifest returns a copy of the current manifest of appID
func (f *FakeConductor) Manifest(appID string) *types.Manifest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return copyManifest(f.apps[appID])
}

// FailNext makes the next n occurrences of op fail. op is a request type or
// a zome function name.
func (f *FakeConductor) FailNext(op string, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[op] += n
}

// DenyGrant makes every capability grant for cell fail
func (f *FakeConductor) DenyGrant(cell types.CellID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.denied[cell.Key()] = true
}

// Calls returns the operations served so far, in order. Zome calls are
// recorded by function name.
func (f *FakeConductor) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// Granted reports whether cell holds a capability grant
func (f *FakeConductor) Granted(cell types.CellID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.grants[cell.Key()]) > 0
}

// AppletConfig returns the config registered under name in the DNA of cell
func (f *FakeConductor) AppletConfig(cell types.CellID, name string) (types.AppletConfig, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cfg, ok := f.configs[string(cell.DnaHash)][name]
	return cfg, ok
}

// Close shuts both endpoints down and drops live connections
func (f *FakeConductor) Close() {
	f.mu.Lock()
	for c := range f.conns {
		_ = c.Close()
	}
	f.mu.Unlock()
	f.admin.Close()
	f.app.Close()
}

type handler func(req conductor.Request) (any, *conductor.RemoteError)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (f *FakeConductor) endpoint(h handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		f.mu.Lock()
		f.conns[conn] = struct{}{}
		f.mu.Unlock()

		defer func() {
			f.mu.Lock()
			delete(f.conns, conn)
			f.mu.Unlock()
			_ = conn.Close()
		}()

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var env conductor.Envelope
			if err := conductor.Unmarshal(data, &env); err != nil || env.Kind != conductor.KindRequest {
				continue
			}
			var req conductor.Request
			if err := conductor.Unmarshal(env.Data, &req); err != nil {
				continue
			}

			out, rerr := h(req)
			resp := respond(req.Type, out, rerr)
			body, err := conductor.Marshal(resp)
			if err != nil {
				f.t.Errorf("fake conductor: encode response: %v", err)
				return
			}
			frame, err := conductor.Marshal(conductor.Envelope{ID: env.ID, Kind: conductor.KindResponse, Data: body})
			if err != nil {
				f.t.Errorf("fake conductor: encode frame: %v", err)
				return
			}
			if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				return
			}
		}
	}
}

func respond(reqType string, out any, rerr *conductor.RemoteError) conductor.Response {
	if rerr != nil {
		data, _ := conductor.Marshal(rerr)
		return conductor.Response{Type: conductor.ResponseError, Data: data}
	}
	data, err := conductor.Marshal(out)
	if err != nil {
		data, _ = conductor.Marshal(&conductor.RemoteError{Type: errTypeInternal, Message: err.Error()})
		return conductor.Response{Type: conductor.ResponseError, Data: data}
	}
	return conductor.Response{Type: reqType, Data: data}
}

// injected consumes one scheduled failure for op; callers hold mu
func (f *FakeConductor) injected(op string) *conductor.RemoteError {
	f.calls = append(f.calls, op)
	if f.failures[op] > 0 {
		f.failures[op]--
		return &conductor.RemoteError{Type: errTypeInternal, Message: "injected failure: " + op}
	}
	return nil
}

func (f *FakeConductor) handleAdmin(req conductor.Request) (any, *conductor.RemoteError) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if rerr := f.injected(req.Type); rerr != nil {
		return nil, rerr
	}

	switch req.Type {
	case conductor.RequestGrantZomeCallCapability:
		var grant conductor.GrantZomeCallCapabilityRequest
		if err := conductor.Unmarshal(req.Data, &grant); err != nil {
			return nil, invalid(err)
		}
		if f.denied[grant.CellID.Key()] {
			return nil, &conductor.RemoteError{Type: errTypeUnauthorized, Message: "grant denied for " + grant.CellID.String()}
		}
		if !f.hasCell(grant.CellID) {
			return nil, &conductor.RemoteError{Type: errTypeInvalidRequest, Message: "no such cell " + grant.CellID.String()}
		}
		f.grants[grant.CellID.Key()] = append(f.grants[grant.CellID.Key()], grant.CapGrant)
		return nil, nil

	case conductor.RequestCreateCloneCell:
		var clone types.CreateCloneCellRequest
		if err := conductor.Unmarshal(req.Data, &clone); err != nil {
			return nil, invalid(err)
		}
		return f.createClone(clone)

	default:
		return nil, &conductor.RemoteError{Type: errTypeInvalidRequest, Message: "unknown admin request " + req.Type}
	}
}

func (f *FakeConductor) createClone(req types.CreateCloneCellRequest) (any, *conductor.RemoteError) {
	m, ok := f.apps[req.AppID]
	if !ok {
		return nil, &conductor.RemoteError{Type: errTypeInvalidRequest, Message: "app not installed: " + req.AppID}
	}
	cells, ok := m.CellInfo[req.RoleName]
	if !ok || len(cells) == 0 {
		return nil, &conductor.RemoteError{Type: errTypeRoleNotFound, Message: req.RoleName}
	}
	original, ok := cells[0].(types.ProvisionedCell)
	if !ok {
		return nil, &conductor.RemoteError{Type: errTypeInvalidRequest, Message: "role has no provisioned cell: " + req.RoleName}
	}

	h, _ := blake2b.New256(nil)
	h.Write(original.CellID.DnaHash)
	h.Write([]byte(req.Modifiers.NetworkSeed))
	h.Write(req.Modifiers.Properties)
	sum := h.Sum(nil)
	dna := append(append(append([]byte{}, dnaPrefix...), sum...), sum[:4]...)

	label := CloneLabel(req.RoleName, len(cells)-1)
	cell := types.ClonedCell{
		CellID:          types.NewCellID(dna, m.AgentPubKey),
		CloneID:         label,
		OriginalDnaHash: original.CellID.DnaHash,
		DnaModifiers:    req.Modifiers,
		Name:            req.Name,
		Enabled:         true,
	}
	if cell.Name == "" {
		cell.Name = label
	}
	m.CellInfo[req.RoleName] = append(cells, cell)
	return cell, nil
}

func (f *FakeConductor) handleApp(req conductor.Request) (any, *conductor.RemoteError) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch req.Type {
	case conductor.RequestAppInfo:
		if rerr := f.injected(req.Type); rerr != nil {
			return nil, rerr
		}
		var info conductor.AppInfoRequest
		if err := conductor.Unmarshal(req.Data, &info); err != nil {
			return nil, invalid(err)
		}
		m, ok := f.apps[info.InstalledAppID]
		if !ok {
			return nil, nil
		}
		return copyManifest(m), nil

	case conductor.RequestCallZome:
		var call conductor.SignedZomeCall
		if err := conductor.Unmarshal(req.Data, &call); err != nil {
			return nil, invalid(err)
		}
		if rerr := f.injected(call.FnName); rerr != nil {
			return nil, rerr
		}
		if rerr := f.verify(call); rerr != nil {
			return nil, rerr
		}
		return f.callZome(call)

	default:
		return nil, &conductor.RemoteError{Type: errTypeInvalidRequest, Message: "unknown app request " + req.Type}
	}
}

// verify checks the signature and that the signer holds a grant on the cell
func (f *FakeConductor) verify(call conductor.SignedZomeCall) *conductor.RemoteError {
	data, err := conductor.Marshal(call.UnsignedZomeCall)
	if err != nil {
		return invalid(err)
	}
	if len(call.Provenance) != 39 {
		return &conductor.RemoteError{Type: errTypeUnauthorized, Message: "malformed provenance"}
	}
	digest := blake2b.Sum256(data)
	if !ed25519.Verify(ed25519.PublicKey(call.Provenance[3:35]), digest[:], call.Signature) {
		return &conductor.RemoteError{Type: errTypeUnauthorized, Message: "bad signature"}
	}
	for _, g := range f.grants[call.CellID.Key()] {
		if !bytes.Equal(g.Access.Secret, call.CapSecret) {
			continue
		}
		for _, a := range g.Access.Assignees {
			if bytes.Equal(a, call.Provenance) {
				return nil
			}
		}
	}
	return &conductor.RemoteError{Type: errTypeUnauthorized, Message: "no capability grant for caller on " + call.CellID.String()}
}

func (f *FakeConductor) callZome(call conductor.SignedZomeCall) (any, *conductor.RemoteError) {
	if call.ZomeName != SensemakerZome {
		return nil, &conductor.RemoteError{Type: errTypeZomeFnNotExposed, Message: call.ZomeName + "/" + call.FnName}
	}
	dna := string(call.CellID.DnaHash)

	switch call.FnName {
	case FnCheckAppletConfig, FnGetAppletConfig:
		var name string
		if err := cbor.Unmarshal(call.Payload, &name); err != nil {
			return nil, invalid(err)
		}
		cfg, ok := f.configs[dna][name]
		if !ok {
			return nil, nil
		}
		return cfg, nil

	case FnRegisterApplet:
		var input types.AppletConfigInput
		if err := cbor.Unmarshal(call.Payload, &input); err != nil {
			return nil, invalid(err)
		}
		if input.Name == "" {
			return nil, &conductor.RemoteError{Type: errTypeInvalidRequest, Message: "applet config has no name"}
		}
		if existing, ok := f.configs[dna][input.Name]; ok {
			return existing, nil
		}
		cfg := registered(input)
		if f.configs[dna] == nil {
			f.configs[dna] = make(map[string]types.AppletConfig)
		}
		f.configs[dna][input.Name] = cfg
		return cfg, nil

	default:
		return nil, &conductor.RemoteError{Type: errTypeZomeFnNotExposed, Message: call.ZomeName + "/" + call.FnName}
	}
}

func registered(in types.AppletConfigInput) types.AppletConfig {
	entry := func(kind, name string) []byte {
		sum := blake2b.Sum256([]byte(in.Name + "/" + kind + "/" + name))
		return sum[:]
	}
	cfg := types.AppletConfig{
		Name:             in.Name,
		Ranges:           map[string][]byte{},
		Dimensions:       map[string][]byte{},
		ResourceDefs:     map[string][]byte{},
		Methods:          map[string][]byte{},
		CulturalContexts: map[string][]byte{},
	}
	for _, r := range in.Ranges {
		cfg.Ranges[r.Name] = entry("range", r.Name)
	}
	for _, d := range in.Dimensions {
		cfg.Dimensions[d.Name] = entry("dimension", d.Name)
	}
	for _, r := range in.ResourceDefs {
		cfg.ResourceDefs[r.Name] = entry("resource_def", r.Name)
	}
	for _, m := range in.Methods {
		cfg.Methods[m.Name] = entry("method", m.Name)
	}
	for _, c := range in.CulturalContexts {
		cfg.CulturalContexts[c.Name] = entry("cultural_context", c.Name)
	}
	return cfg
}

func (f *FakeConductor) hasCell(id types.CellID) bool {
	for _, m := range f.apps {
		for _, cells := range m.CellInfo {
			for _, c := range cells {
				switch v := c.(type) {
				case types.ProvisionedCell:
					if v.CellID.Equal(id) {
						return true
					}
				case types.ClonedCell:
					if v.CellID.Equal(id) {
						return true
					}
				}
			}
		}
	}
	return false
}

func invalid(err error) *conductor.RemoteError {
	return &conductor.RemoteError{Type: errTypeInvalidRequest, Message: err.Error()}
}

func copyManifest(m *types.Manifest) *types.Manifest {
	if m == nil {
		return nil
	}
	out := *m
	out.CellInfo = make(map[string]types.CellList, len(m.CellInfo))
	for role, cells := range m.CellInfo {
		out.CellInfo[role] = append(types.CellList(nil), cells...)
	}
	return &out
}

func wsURL(s *httptest.Server) string {
	return "ws" + s.URL[len("http"):]
}

func hostPort(t testing.TB, s *httptest.Server) (string, int) {
	t.Helper()
	u, err := url.Parse(s.URL)
	if err != nil {
		t.Fatalf("parse %s: %v", s.URL, err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatalf("port of %s: %v", s.URL, err)
	}
	return u.Hostname(), port
}
