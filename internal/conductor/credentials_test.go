package conductor

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/blake2b"

	"github.com/neighbourhoods/forum-applet/internal/shared/types"
)

func TestSigningCredentials(t *testing.T) {
	creds, err := NewSigningCredentials()
	require.NoError(t, err)

	assert.Len(t, creds.CapSecret, capSecretSize)
	require.Len(t, creds.SigningKey, 39)
	assert.Equal(t, agentKeyPrefix, []byte(creds.SigningKey[:3]))

	msg := []byte("zome call bytes")
	sig := creds.Sign(msg)
	digest := blake2b.Sum256(msg)
	pub := ed25519.PublicKey(creds.SigningKey[3:35])
	assert.True(t, ed25519.Verify(pub, digest[:], sig))
	assert.False(t, ed25519.Verify(pub, msg, sig))
}

func TestAgentKeyLocationIsStable(t *testing.T) {
	pub := make(ed25519.PublicKey, ed25519.PublicKeySize)
	a := AgentKeyFromEd25519(pub)
	b := AgentKeyFromEd25519(pub)
	assert.Equal(t, a, b)
	assert.Equal(t, location(pub), []byte(a[35:]))
}

func TestCredentialStore(t *testing.T) {
	store := NewCredentialStore()
	cell := types.NewCellID([]byte{1, 2, 3}, []byte{4, 5, 6})

	_, ok := store.Get(cell)
	assert.False(t, ok)

	creds, err := NewSigningCredentials()
	require.NoError(t, err)
	store.Put(cell, creds)

	got, ok := store.Get(types.NewCellID([]byte{1, 2, 3}, []byte{4, 5, 6}))
	require.True(t, ok)
	assert.Equal(t, creds.SigningKey, got.SigningKey)
	assert.Equal(t, 1, store.Len())
}

func TestDecodeResponse(t *testing.T) {
	data, err := Marshal(RemoteError{Type: "internal_error", Message: "boom"})
	require.NoError(t, err)

	err = decodeResponse("app_info", Response{Type: ResponseError, Data: data}, nil)
	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, "app_info", remote.Request)
	assert.Equal(t, "boom", remote.Message)

	err = decodeResponse("app_info", Response{Type: "call_zome"}, nil)
	require.Error(t, err)
	assert.False(t, IsRemote(err))

	var out string
	payload, err := Marshal("ok")
	require.NoError(t, err)
	require.NoError(t, decodeResponse("x", Response{Type: "x", Data: payload}, &out))
	assert.Equal(t, "ok", out)
}
