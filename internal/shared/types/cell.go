package types

import (
	"bytes"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/neighbourhoods/forum-applet/internal/shared/hash"
)

// DnaHash identifies the DNA a cell runs
type DnaHash []byte

// AgentPubKey identifies an agent across the network
type AgentPubKey []byte

// String returns the multibase text form of the key
func (k AgentPubKey) String() string {
	return hash.Encode(k)
}

// CellID addresses one cell instance network-wide
type CellID struct {
	_           struct{} `cbor:",toarray"`
	DnaHash     DnaHash
	AgentPubKey AgentPubKey
}

// NewCellID builds a cell id from its two halves
func NewCellID(dna DnaHash, agent AgentPubKey) CellID {
	return CellID{DnaHash: dna, AgentPubKey: agent}
}

// IsZero reports whether either half of the id is missing
func (c CellID) IsZero() bool {
	return len(c.DnaHash) == 0 || len(c.AgentPubKey) == 0
}

// Equal compares two ids byte for byte
func (c CellID) Equal(other CellID) bool {
	return bytes.Equal(c.DnaHash, other.DnaHash) && bytes.Equal(c.AgentPubKey, other.AgentPubKey)
}

// Key returns a comparable map key for the id
func (c CellID) Key() string {
	return string(c.DnaHash) + "\x00" + string(c.AgentPubKey)
}

// String renders the id as "<dna>:<agent>" in multibase text
func (c CellID) String() string {
	return hash.Encode(c.DnaHash) + ":" + hash.Encode(c.AgentPubKey)
}

// CellKind tags the descriptor variants
type CellKind string

const (
	KindProvisioned CellKind = "provisioned"
	KindCloned      CellKind = "cloned"
	KindStem        CellKind = "stem"
)

// CellDescriptor is one entry of a role's cell list. Implementations are
// limited to this package.
type CellDescriptor interface {
	Kind() CellKind
	sealed()
}

// ProvisionedCell is the original cell installed with the app
type ProvisionedCell struct {
	CellID       CellID       `cbor:"cell_id"`
	DnaModifiers DnaModifiers `cbor:"dna_modifiers"`
	Name         string       `cbor:"name"`
}

// ClonedCell is a copy of a template cell under a clone label
type ClonedCell struct {
	CellID          CellID       `cbor:"cell_id"`
	CloneID         string       `cbor:"clone_id"`
	OriginalDnaHash DnaHash      `cbor:"original_dna_hash"`
	DnaModifiers    DnaModifiers `cbor:"dna_modifiers"`
	Name            string       `cbor:"name"`
	Enabled         bool         `cbor:"enabled"`
}

// StemCell is a cell the runtime knows about but has not instantiated
type StemCell struct {
	OriginalDnaHash DnaHash      `cbor:"original_dna_hash"`
	DnaModifiers    DnaModifiers `cbor:"dna_modifiers"`
	Name            string       `cbor:"name,omitempty"`
}

// UnknownCell preserves a descriptor whose tag this build does not know
type UnknownCell struct {
	Tag string
	Raw cbor.RawMessage
}

func (ProvisionedCell) Kind() CellKind { return KindProvisioned }
func (ClonedCell) Kind() CellKind      { return KindCloned }
func (StemCell) Kind() CellKind        { return KindStem }
func (u UnknownCell) Kind() CellKind   { return CellKind(u.Tag) }

func (ProvisionedCell) sealed() {}
func (ClonedCell) sealed()      {}
func (StemCell) sealed()        {}
func (UnknownCell) sealed()     {}

// CellList is a role's ordered cell sequence. On the wire every element is
// a single-key map naming its variant.
type CellList []CellDescriptor

// MarshalCBOR encodes each descriptor as {tag: body}
func (l CellList) MarshalCBOR() ([]byte, error) {
	out := make([]map[string]cbor.RawMessage, 0, len(l))
	for i, d := range l {
		var (
			tag  string
			body any
		)
		switch c := d.(type) {
		case ProvisionedCell:
			tag, body = string(KindProvisioned), c
		case ClonedCell:
			tag, body = string(KindCloned), c
		case StemCell:
			tag, body = string(KindStem), c
		case UnknownCell:
			out = append(out, map[string]cbor.RawMessage{c.Tag: c.Raw})
			continue
		default:
			return nil, fmt.Errorf("cell %d: cannot encode %T", i, d)
		}
		raw, err := cbor.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("cell %d: %w", i, err)
		}
		out = append(out, map[string]cbor.RawMessage{tag: raw})
	}
	return cbor.Marshal(out)
}

// UnmarshalCBOR decodes tagged descriptors. Unknown tags decode to
// UnknownCell instead of failing so the directory can report them.
func (l *CellList) UnmarshalCBOR(data []byte) error {
	var raw []map[string]cbor.RawMessage
	if err := cbor.Unmarshal(data, &raw); err != nil {
		return err
	}

	list := make(CellList, 0, len(raw))
	for i, entry := range raw {
		if len(entry) != 1 {
			return fmt.Errorf("cell %d: expected one variant tag, got %d", i, len(entry))
		}
		for tag, body := range entry {
			d, err := decodeCell(tag, body)
			if err != nil {
				return fmt.Errorf("cell %d (%s): %w", i, tag, err)
			}
			list = append(list, d)
		}
	}
	*l = list
	return nil
}

func decodeCell(tag string, body cbor.RawMessage) (CellDescriptor, error) {
	switch CellKind(tag) {
	case KindProvisioned:
		var c ProvisionedCell
		err := cbor.Unmarshal(body, &c)
		return c, err
	case KindCloned:
		var c ClonedCell
		err := cbor.Unmarshal(body, &c)
		return c, err
	case KindStem:
		var c StemCell
		err := cbor.Unmarshal(body, &c)
		return c, err
	default:
		return UnknownCell{Tag: tag, Raw: body}, nil
	}
}
