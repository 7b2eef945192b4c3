package api

import "github.com/codeready-toolchain/worldline/pkg/config"

// createSessionRequest is the body of POST /api/session/create.
type createSessionRequest struct {
	Title             string `json:"title"`
	WorldPreset       string `json:"world_preset"`
	TickLabel         string `json:"tick_label"`
	PostGenDelaySec   *int   `json:"post_gen_delay_sec"`
	OutputLanguage    string `json:"output_language"`
	TimelineStartISO  string `json:"timeline_start_iso"`
	TimelineStepValue int    `json:"timeline_step_value"`
	TimelineStepUnit  string `json:"timeline_step_unit"`
}

// settingsPatchRequest is the body of PATCH /api/session/{id}/settings.
type settingsPatchRequest struct {
	TickLabel         *string `json:"tick_label"`
	PostGenDelaySec   *int    `json:"post_gen_delay_sec"`
	OutputLanguage    *string `json:"output_language"`
	TimelineStartISO  *string `json:"timeline_start_iso"`
	TimelineStepValue *int    `json:"timeline_step_value"`
	TimelineStepUnit  *string `json:"timeline_step_unit"`
}

// setProviderRequest is the body of POST /api/provider/{id}/set.
type setProviderRequest struct {
	Provider  string `json:"provider"`
	BaseURL   string `json:"base_url"`
	APIKey    string `json:"api_key"`
	ModelName string `json:"model_name"`
}

// selectModelRequest is the body of POST /api/provider/{id}/select-model.
type selectModelRequest struct {
	ModelName string `json:"model_name"`
}

// forkRequest is the body of POST /api/branch/{id}/fork.
type forkRequest struct {
	FromMessageID *string `json:"from_message_id"`
}

// switchBranchRequest is the body of POST /api/branch/{id}/switch.
type switchBranchRequest struct {
	BranchID string `json:"branch_id"`
}

// editMessageRequest is the body of PATCH /api/message/{id}/{message_id}.
type editMessageRequest struct {
	Content        *string `json:"content"`
	ReportSnapshot *string `json:"report_snapshot"`
}

// interventionRequest is the body of POST /api/intervention/{id}.
type interventionRequest struct {
	BranchID string `json:"branch_id"`
	Content  string `json:"content"`
}

// debugSettingsPatchRequest is the body of PATCH /api/debug/settings.
type debugSettingsPatchRequest struct {
	DefaultPostGenDelaySec int                    `json:"default_post_gen_delay_sec"`
	DefaultTickLabel       string                 `json:"default_tick_label"`
	EventDice              config.EventDiceConfig `json:"event_dice"`
}
