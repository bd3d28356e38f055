package bootstrap

import (
	"github.com/neighbourhoods/forum-applet/internal/domain/neighbourhood"
	"github.com/neighbourhoods/forum-applet/internal/shared/hash"
)

// Status is the session summary served by the harness
type Status struct {
	SessionID     string                 `json:"session_id"`
	AppID         string                 `json:"installed_app_id"`
	Agent         string                 `json:"agent_pub_key"`
	AgentIndex    int                    `json:"agent_index"`
	AdminURL      string                 `json:"admin_url"`
	AppURL        string                 `json:"app_url"`
	Roles         map[string]int         `json:"roles"`
	Authorized    int                    `json:"authorized"`
	Failed        []FailedCell           `json:"failed,omitempty"`
	Neighbourhood neighbourhood.Snapshot `json:"neighbourhood"`
}

// FailedCell is a cell that could not be authorized
type FailedCell struct {
	Cell  string `json:"cell_id"`
	Error string `json:"error"`
}

// Status summarizes the session
func (s *Session) Status() Status {
	manifest := s.directory.Manifest()
	roles := make(map[string]int, len(manifest.CellInfo))
	for role, list := range manifest.CellInfo {
		roles[role] = len(list)
	}

	st := Status{
		SessionID:     s.id.String(),
		AppID:         manifest.InstalledAppID,
		Agent:         hash.Encode(s.agent),
		AgentIndex:    s.cfg.Conductor.Agent,
		AdminURL:      s.provider.Admin().URL(),
		AppURL:        s.provider.App().URL(),
		Roles:         roles,
		Neighbourhood: s.machine.Snapshot(),
	}
	if s.report != nil {
		st.Authorized = len(s.report.Authorized)
		for _, f := range s.report.Failed {
			st.Failed = append(st.Failed, FailedCell{Cell: f.CellID.String(), Error: f.Err.Error()})
		}
	}
	return st
}
