// Package testutil provides fixtures, mocks and a fake conductor for tests.
package testutil

import (
	"crypto/ed25519"
	"strconv"
	"testing"

	"golang.org/x/crypto/blake2b"

	"github.com/neighbourhoods/forum-applet/internal/conductor"
	"github.com/neighbourhoods/forum-applet/internal/shared/types"
)

// Conventional names used across tests
const (
	AppID          = "forum"
	ForumRole      = "forum"
	SensemakerRole = "sensemaker"
)

var dnaPrefix = []byte{0x84, 0x2d, 0x24}

// DnaHash derives a deterministic DNA hash from seed
func DnaHash(seed string) types.DnaHash {
	sum := blake2b.Sum256([]byte("dna:" + seed))
	out := make([]byte, 0, 39)
	out = append(out, dnaPrefix...)
	out = append(out, sum[:]...)
	return append(out, sum[:4]...)
}

// AgentKey derives a deterministic agent key from seed
func AgentKey(seed string) types.AgentPubKey {
	sum := blake2b.Sum256([]byte("agent:" + seed))
	return conductor.AgentKeyFromEd25519(ed25519.NewKeyFromSeed(sum[:]).Public().(ed25519.PublicKey))
}

// CellID builds a cell id from two seeds
func CellID(dna, agent string) types.CellID {
	return types.NewCellID(DnaHash(dna), AgentKey(agent))
}

// Provisioned builds a provisioned cell descriptor
func Provisioned(dna, agent string) types.ProvisionedCell {
	return types.ProvisionedCell{CellID: CellID(dna, agent), Name: dna}
}

// Cloned builds a cloned cell descriptor with the given label
func Cloned(dna, agent, label string) types.ClonedCell {
	return types.ClonedCell{
		CellID:          CellID(dna+"/"+label, agent),
		CloneID:         label,
		OriginalDnaHash: DnaHash(dna),
		Name:            label,
		Enabled:         true,
	}
}

// Manifest builds the forum app manifest for agent. sensemakerClones adds
// that many cloned sensemaker cells after the provisioned one; a negative
// count leaves the sensemaker role out entirely.
func Manifest(t testing.TB, agent string, sensemakerClones int) *types.Manifest {
	t.Helper()

	m := &types.Manifest{
		InstalledAppID: AppID,
		AgentPubKey:    AgentKey(agent),
		CellInfo: map[string]types.CellList{
			ForumRole: {Provisioned(ForumRole, agent)},
		},
		Status: "running",
	}
	if sensemakerClones < 0 {
		return m
	}

	cells := types.CellList{Provisioned(SensemakerRole, agent)}
	for i := 0; i < sensemakerClones; i++ {
		cells = append(cells, Cloned(SensemakerRole, agent, CloneLabel(SensemakerRole, i)))
	}
	m.CellInfo[SensemakerRole] = cells
	return m
}

// CloneLabel is the label the fake conductor gives the n-th clone of role
func CloneLabel(role string, n int) string {
	return role + "." + strconv.Itoa(n)
}
