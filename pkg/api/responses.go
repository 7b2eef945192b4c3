package api

import (
	"github.com/codeready-toolchain/worldline/pkg/config"
	"github.com/codeready-toolchain/worldline/pkg/store"
)

// SessionResponse is the shape returned by create/get session endpoints.
type SessionResponse struct {
	SessionID         string `json:"session_id"`
	Title             string `json:"title,omitempty"`
	WorldPreset       string `json:"world_preset,omitempty"`
	Running           bool   `json:"running"`
	TickLabel         string `json:"tick_label,omitempty"`
	PostGenDelaySec   int    `json:"post_gen_delay_sec,omitempty"`
	ActiveBranchID    string `json:"active_branch_id"`
	OutputLanguage    string `json:"output_language,omitempty"`
	TimelineStartISO  string `json:"timeline_start_iso"`
	TimelineStepValue int    `json:"timeline_step_value"`
	TimelineStepUnit  string `json:"timeline_step_unit"`
}

func sessionResponse(sess *store.Session) SessionResponse {
	return SessionResponse{
		SessionID:         sess.ID,
		Title:             sess.Title,
		WorldPreset:       sess.WorldPreset,
		Running:           sess.Running,
		TickLabel:         sess.TickLabel,
		PostGenDelaySec:   sess.PostGenDelaySec,
		ActiveBranchID:    sess.ActiveBranchID,
		OutputLanguage:    sess.OutputLanguage,
		TimelineStartISO:  sess.TimelineStartISO,
		TimelineStepValue: sess.TimelineStepValue,
		TimelineStepUnit:  string(sess.TimelineStepUnit),
	}
}

// RunningResponse is returned by the start/pause/resume command endpoints.
type RunningResponse struct {
	Running bool `json:"running"`
}

func runningResponse(state config.RunnerState) RunningResponse {
	return RunningResponse{Running: state == config.StateRunning}
}

// BranchResponse mirrors store.Branch for JSON responses.
type BranchResponse struct {
	ID                string  `json:"id"`
	SessionID         string  `json:"session_id"`
	Name              string  `json:"name"`
	ParentBranchID    *string `json:"parent_branch_id,omitempty"`
	ForkFromMessageID *string `json:"fork_from_message_id,omitempty"`
	IsArchived        bool    `json:"is_archived"`
}

func branchResponse(b *store.Branch) BranchResponse {
	return BranchResponse{
		ID: b.ID, SessionID: b.SessionID, Name: b.Name,
		ParentBranchID: b.ParentBranchID, ForkFromMessageID: b.ForkFromMessageID,
		IsArchived: b.IsArchived,
	}
}

// BranchListResponse is returned by GET /api/branch/{id}.
type BranchListResponse struct {
	Branches       []BranchResponse `json:"branches"`
	ActiveBranchID string           `json:"active_branch_id"`
}
