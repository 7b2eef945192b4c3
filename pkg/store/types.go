package store

import (
	"time"

	"github.com/codeready-toolchain/worldline/pkg/config"
)

// Session is the root aggregate of one worldline simulation.
type Session struct {
	ID                 string
	Title              string
	WorldPreset        string
	Running            bool
	TickLabel          string
	PostGenDelaySec    int
	ActiveBranchID     string
	OutputLanguage     string
	TimelineStartISO   string
	TimelineStepValue  int
	TimelineStepUnit   config.TimelineStepUnit
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// SessionSettingsPatch carries the subset of Session fields mutable via
// PATCH /api/session/{id}/settings. A nil pointer field means "leave as is".
type SessionSettingsPatch struct {
	TickLabel         *string
	PostGenDelaySec   *int
	OutputLanguage    *string
	TimelineStartISO  *string
	TimelineStepValue *int
	TimelineStepUnit  *config.TimelineStepUnit
}

// Branch identifies one timeline lineage within a session.
type Branch struct {
	ID                string
	SessionID         string
	Name              string
	ParentBranchID    *string
	ForkFromMessageID *string
	IsArchived        bool
	CreatedAt         time.Time
}

// TimelineMessage is one append-only entry in a branch's history.
type TimelineMessage struct {
	ID             string
	SessionID      string
	BranchID       string
	Seq            int
	Role           config.MessageRole
	Content        string
	TimeJumpLabel  string
	ModelProvider  string
	ModelName      string
	TokenIn        *int
	TokenOut       *int
	IsUserEdited   bool
	ReportSnapshot string // JSON-encoded; empty means none
	CreatedAt      time.Time
}

// MessagePatch carries the subset of TimelineMessage fields mutable via
// edit_message. A nil pointer means "leave as is".
type MessagePatch struct {
	Content        *string
	ReportSnapshot *string
}

// UserIntervention is a pending free-text directive enqueued against a branch.
type UserIntervention struct {
	ID         string
	SessionID  string
	BranchID   string
	Content    string
	Status     config.InterventionStatus
	CreatedAt  time.Time
	ConsumedAt *time.Time
}

// ProviderConfig is the per-session LLM provider binding. APIKeyEncrypted
// is the AEAD-sealed ciphertext; the plaintext never appears on this type.
type ProviderConfig struct {
	SessionID        string
	Provider         config.ProviderType
	BaseURL          string
	APIKeyEncrypted  []byte
	ModelName        string
	ExtraJSON        string
	UpdatedAt        time.Time
}

// HasAPIKey reports whether a key is configured, per invariant I5.
func (p ProviderConfig) HasAPIKey() bool {
	return len(p.APIKeyEncrypted) > 0
}

// ProviderConfigView is the client-facing projection of ProviderConfig that
// never exposes ciphertext or plaintext, only whether a key is configured.
type ProviderConfigView struct {
	Provider   config.ProviderType `json:"provider"`
	BaseURL    string              `json:"base_url"`
	ModelName  string              `json:"model_name"`
	HasAPIKey  bool                `json:"has_api_key"`
}

// View projects a ProviderConfig to its client-facing shape.
func (p ProviderConfig) View() ProviderConfigView {
	return ProviderConfigView{
		Provider:  p.Provider,
		BaseURL:   p.BaseURL,
		ModelName: p.ModelName,
		HasAPIKey: p.HasAPIKey(),
	}
}

// SessionSummary is one row of the session history listing.
type SessionSummary struct {
	SessionID string    `json:"session_id"`
	Title     string    `json:"title"`
	UpdatedAt time.Time `json:"updated_at"`
	Running   bool      `json:"running"`
}
