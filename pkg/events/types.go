// Package events implements the per-session Event Bus (§4.4): an
// in-process broadcast of typed events to any number of websocket
// subscribers, with fan-out and a slow-consumer drop-oldest policy.
//
// Grounded in this codebase's pkg/events.ConnectionManager (connection
// registry, channel subscription sets, non-blocking broadcast) and the
// older pkg/api.WSHub (simpler single-process channel fan-out), with the
// Postgres NOTIFY/LISTEN cross-pod distribution (catchup_adapter.go,
// listener.go) dropped — §5 Non-goals exclude distributed/multi-node
// coordination, so one process's in-memory bus is the whole system.
package events

import "github.com/codeready-toolchain/worldline/pkg/store"

// Type discriminates the event variants of §4.4.
type Type string

// Recognized event types.
const (
	TypeSessionState    Type = "session_state"
	TypeMessageCreated  Type = "message_created"
	TypeMessageUpdated  Type = "message_updated"
	TypeBranchSwitched  Type = "branch_switched"
	TypeModelsLoaded    Type = "models_loaded"
	TypeError           Type = "error"
)

// Event is the envelope delivered to every subscriber of a session's
// channel. Exactly one of the typed payload fields is populated,
// matching Type.
type Event struct {
	Type Type `json:"type"`

	SessionState   *SessionStatePayload   `json:"session_state,omitempty"`
	MessageCreated *MessagePayload        `json:"message_created,omitempty"`
	MessageUpdated *MessagePayload        `json:"message_updated,omitempty"`
	BranchSwitched *BranchSwitchedPayload `json:"branch_switched,omitempty"`
	ModelsLoaded   *ModelsLoadedPayload   `json:"models_loaded,omitempty"`
	Error          *ErrorPayload          `json:"error,omitempty"`
}

// SessionStatePayload is the payload for session_state events.
type SessionStatePayload struct {
	Running bool `json:"running"`
}

// MessagePayload is the shared payload shape for message_created and
// message_updated events.
type MessagePayload struct {
	BranchID string               `json:"branch_id"`
	Message  store.TimelineMessage `json:"message"`
}

// BranchSwitchedPayload is the payload for branch_switched events.
type BranchSwitchedPayload struct {
	ActiveBranchID string `json:"active_branch_id"`
}

// ModelsLoadedPayload is the payload for models_loaded events.
type ModelsLoadedPayload struct {
	Provider string   `json:"provider"`
	Models   []string `json:"models"`
}

// ErrorPayload is the payload for error events (§7's user-visible error
// shape, carried over the Event Bus instead of an HTTP response since the
// triggering request may have long since returned).
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
}
