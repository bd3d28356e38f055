package neighbourhood

import (
	"fmt"

	"github.com/neighbourhoods/forum-applet/internal/shared/types"
)

// State is the provisioning state of the neighbourhood
type State int

const (
	Unprovisioned State = iota
	Provisioning
	Provisioned
)

func (s State) String() string {
	switch s {
	case Unprovisioned:
		return "unprovisioned"
	case Provisioning:
		return "provisioning"
	case Provisioned:
		return "provisioned"
	default:
		return "unknown"
	}
}

// MarshalText renders the state name
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name
func (s *State) UnmarshalText(text []byte) error {
	for _, st := range []State{Unprovisioned, Provisioning, Provisioned} {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown provisioning state %q", text)
}

// Action names the entry point that started a pipeline
type Action string

const (
	ActionCreate Action = "create"
	ActionJoin   Action = "join"
	ActionResume Action = "resume"
	ActionRetry  Action = "retry"
)

// Stage names one step of the pipeline
type Stage string

const (
	StageCreateClone Stage = "create_clone"
	StageAuthorize   Stage = "authorize"
	StageAttach      Stage = "attach"
	StageGrace       Stage = "grace"
	StageRegister    Stage = "register_config"
)

// Handle references the attached sensemaker clone. It is immutable once
// created.
type Handle struct {
	Endpoint   string       `json:"endpoint"`
	RoleName   string       `json:"role_name"`
	CloneLabel string       `json:"clone_label"`
	CellID     types.CellID `json:"-"`
	Cell       string       `json:"cell_id"`
}

func newHandle(endpoint, role string, clone types.ClonedCell) *Handle {
	return &Handle{
		Endpoint:   endpoint,
		RoleName:   role,
		CloneLabel: clone.CloneID,
		CellID:     clone.CellID,
		Cell:       clone.CellID.String(),
	}
}

// Snapshot is a point-in-time view for status reporting
type Snapshot struct {
	State     State               `json:"state"`
	Handle    *Handle             `json:"handle,omitempty"`
	Pending   *Handle             `json:"pending,omitempty"`
	InFlight  bool                `json:"in_flight"`
	Action    Action              `json:"action,omitempty"`
	Activator string              `json:"community_activator,omitempty"`
	Config    *types.AppletConfig `json:"applet_config,omitempty"`
	LastError string              `json:"last_error,omitempty"`
}
