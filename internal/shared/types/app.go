package types

import (
	"fmt"
	"sort"

	"github.com/fxamacker/cbor/v2"
)

// Manifest describes an installed application: its id, the agent it runs
// as and every cell grouped by role. It is fetched once per connection and
// treated as read-only afterwards.
type Manifest struct {
	InstalledAppID string              `cbor:"installed_app_id"`
	AgentPubKey    AgentPubKey         `cbor:"agent_pub_key"`
	CellInfo       map[string]CellList `cbor:"cell_info"`
	Status         string              `cbor:"status,omitempty"`
}

// RoleNames returns the manifest roles in sorted order
func (m *Manifest) RoleNames() []string {
	names := make([]string, 0, len(m.CellInfo))
	for name := range m.CellInfo {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DnaModifiers alter a DNA's hash when a cell is provisioned or cloned
type DnaModifiers struct {
	NetworkSeed string          `cbor:"network_seed"`
	Properties  cbor.RawMessage `cbor:"properties,omitempty"`
}

// CreateCloneCellRequest asks the runtime to clone a role's template cell
type CreateCloneCellRequest struct {
	AppID     string       `cbor:"app_id"`
	RoleName  string       `cbor:"role_name"`
	Modifiers DnaModifiers `cbor:"modifiers"`
	Name      string       `cbor:"name,omitempty"`
}

// SensemakerConfig names the neighbourhood a sensemaker clone belongs to
type SensemakerConfig struct {
	Neighbourhood      string `cbor:"neighbourhood" json:"neighbourhood"`
	WizardVersion      string `cbor:"wizard_version" json:"wizard_version"`
	CommunityActivator string `cbor:"community_activator" json:"community_activator"`
}

// SensemakerProperties is the properties payload of a sensemaker clone
type SensemakerProperties struct {
	SensemakerConfig SensemakerConfig    `cbor:"sensemaker_config" json:"sensemaker_config"`
	AppletConfigs    []AppletConfigInput `cbor:"applet_configs" json:"applet_configs"`
}

// Modifiers encodes the properties into clone modifiers with an empty
// network seed, so every member of the neighbourhood derives the same DNA.
func (p SensemakerProperties) Modifiers() (DnaModifiers, error) {
	if p.AppletConfigs == nil {
		p.AppletConfigs = []AppletConfigInput{}
	}
	raw, err := cbor.Marshal(p)
	if err != nil {
		return DnaModifiers{}, fmt.Errorf("encode sensemaker properties: %w", err)
	}
	return DnaModifiers{NetworkSeed: "", Properties: raw}, nil
}

// SensemakerProperties decodes the clone's properties payload
func (c ClonedCell) SensemakerProperties() (SensemakerProperties, error) {
	var props SensemakerProperties
	if len(c.DnaModifiers.Properties) == 0 {
		return props, fmt.Errorf("clone %s has no properties", c.CloneID)
	}
	if err := cbor.Unmarshal(c.DnaModifiers.Properties, &props); err != nil {
		return props, fmt.Errorf("decode properties of clone %s: %w", c.CloneID, err)
	}
	return props, nil
}
