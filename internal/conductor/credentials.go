package conductor

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"sync"

	"golang.org/x/crypto/blake2b"

	"github.com/neighbourhoods/forum-applet/internal/shared/types"
)

const capSecretSize = 64

// agentKeyPrefix is the three-byte type prefix the runtime puts on agent keys
var agentKeyPrefix = []byte{0x84, 0x20, 0x24}

// SigningCredentials authorize zome calls against one cell
type SigningCredentials struct {
	CapSecret  []byte
	PrivateKey ed25519.PrivateKey
	SigningKey types.AgentPubKey
}

// NewSigningCredentials generates a fresh key pair and cap secret
func NewSigningCredentials() (SigningCredentials, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return SigningCredentials{}, fmt.Errorf("generate signing key: %w", err)
	}
	secret := make([]byte, capSecretSize)
	if _, err := rand.Read(secret); err != nil {
		return SigningCredentials{}, fmt.Errorf("generate cap secret: %w", err)
	}
	return SigningCredentials{
		CapSecret:  secret,
		PrivateKey: priv,
		SigningKey: AgentKeyFromEd25519(pub),
	}, nil
}

// Sign signs the blake2b-256 digest of data
func (c SigningCredentials) Sign(data []byte) []byte {
	digest := blake2b.Sum256(data)
	return ed25519.Sign(c.PrivateKey, digest[:])
}

// AgentKeyFromEd25519 wraps a raw ed25519 key in the runtime's agent key
// layout: type prefix, 32 key bytes, 4 location bytes.
func AgentKeyFromEd25519(pub ed25519.PublicKey) types.AgentPubKey {
	key := make([]byte, 0, len(agentKeyPrefix)+len(pub)+4)
	key = append(key, agentKeyPrefix...)
	key = append(key, pub...)
	key = append(key, location(pub)...)
	return key
}

// location folds a blake2b-128 digest of core into four bytes
func location(core []byte) []byte {
	h, _ := blake2b.New(16, nil)
	h.Write(core)
	sum := h.Sum(nil)

	loc := []byte{sum[0], sum[1], sum[2], sum[3]}
	for i := 4; i < len(sum); i += 4 {
		loc[0] ^= sum[i]
		loc[1] ^= sum[i+1]
		loc[2] ^= sum[i+2]
		loc[3] ^= sum[i+3]
	}
	return loc
}

// CredentialStore holds signing credentials per cell for one session
type CredentialStore struct {
	mu    sync.RWMutex
	creds map[string]SigningCredentials // Protected by mu
}

// NewCredentialStore creates an empty store
func NewCredentialStore() *CredentialStore {
	return &CredentialStore{creds: make(map[string]SigningCredentials)}
}

// Put stores credentials for a cell, replacing older ones
func (s *CredentialStore) Put(cell types.CellID, creds SigningCredentials) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds[cell.Key()] = creds
}

// Get returns the credentials for a cell
func (s *CredentialStore) Get(cell types.CellID) (SigningCredentials, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.creds[cell.Key()]
	return c, ok
}

// Len returns the number of authorized cells
func (s *CredentialStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.creds)
}
