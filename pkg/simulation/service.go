// Package simulation implements the Simulation Service (§4.6): a thin
// façade mapping HTTP commands onto Store and Runner operations, enforcing
// the preconditions the transport layer itself should never have to know
// about. Grounded in this codebase's pkg/services/session_service.go
// (transactional service methods returning typed errors a handler layer
// maps to status codes) and pkg/services/errors.go (sentinel + typed
// ValidationError pair), adapted from ent-transaction method bodies to
// thin wrappers over pkg/store's narrow repository calls plus pkg/runner
// command dispatch.
package simulation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/codeready-toolchain/worldline/pkg/config"
	"github.com/codeready-toolchain/worldline/pkg/events"
	"github.com/codeready-toolchain/worldline/pkg/memory"
	"github.com/codeready-toolchain/worldline/pkg/prompt"
	"github.com/codeready-toolchain/worldline/pkg/providers"
	"github.com/codeready-toolchain/worldline/pkg/runner"
	"github.com/codeready-toolchain/worldline/pkg/secret"
	"github.com/codeready-toolchain/worldline/pkg/store"
)

// listModelsTimeout bounds the list_models provider call (§5).
const listModelsTimeout = 30 * time.Second

// Service is the Simulation Service. One instance is constructed at
// process startup and shared by every HTTP handler.
type Service struct {
	store     *store.Store
	registry  *providers.Registry
	builder   *prompt.Builder
	bus       *events.Bus
	memory    *memory.Safe
	eventDice config.EventDiceConfig

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	runners map[string]*runner.Runner
}

// New constructs a Service. runCtx's cancellation (or a call to Shutdown)
// stops every session's Runner task.
func New(runCtx context.Context, st *store.Store, registry *providers.Registry, builder *prompt.Builder, bus *events.Bus, mem *memory.Safe, eventDice config.EventDiceConfig) *Service {
	ctx, cancel := context.WithCancel(runCtx)
	return &Service{
		store:     st,
		registry:  registry,
		builder:   builder,
		bus:       bus,
		memory:    mem,
		eventDice: eventDice,
		ctx:       ctx,
		cancel:    cancel,
		runners:   make(map[string]*runner.Runner),
	}
}

// Shutdown stops every session's Runner task. Safe to call once at
// process exit.
func (s *Service) Shutdown() { s.cancel() }

// CreateSession creates the session and its initial "main" branch, then
// starts (but does not Start) its Runner task — the task idles in IDLE
// until a subsequent Start command (§4.6, I3: exactly one Runner per
// session).
func (s *Service) CreateSession(ctx context.Context, in store.CreateSessionInput) (*store.Session, *store.Branch, error) {
	if in.WorldPreset == "" {
		return nil, nil, NewValidationError("world_preset", "required")
	}
	if in.TickLabel == "" {
		return nil, nil, NewValidationError("tick_label", "required")
	}

	sess, branch, err := s.store.CreateSession(ctx, in)
	if err != nil {
		return nil, nil, fmt.Errorf("simulation: create session: %w", err)
	}

	s.spawnRunner(sess.ID)
	return sess, branch, nil
}

func (s *Service) spawnRunner(sessionID string) *runner.Runner {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.runners[sessionID]; ok {
		return r
	}
	r := runner.New(sessionID, s.store, s.registry, s.builder, s.bus, s.memory, s.eventDice)
	s.runners[sessionID] = r
	go r.Run(s.ctx)
	return r
}

func (s *Service) runnerFor(sessionID string) (*runner.Runner, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runners[sessionID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return r, nil
}

// Attach (re)starts a session's Runner task without issuing a Start
// command — used by cmd/worldlined at process startup to give every
// persisted session a live task behind its sessionID again.
func (s *Service) Attach(sessionID string) *runner.Runner {
	return s.spawnRunner(sessionID)
}

// Start enforces §4.6's precondition — a ProviderConfig with a non-empty
// model_name — before issuing the Start command to the session's Runner.
func (s *Service) Start(ctx context.Context, sessionID string) error {
	cfg, err := s.store.GetProviderConfig(ctx, sessionID)
	if err != nil || cfg.ModelName == "" {
		return ErrNoModelSelected
	}
	r, err := s.runnerFor(sessionID)
	if err != nil {
		return err
	}
	r.Start()
	return nil
}

// Pause issues the Pause command to the session's Runner.
func (s *Service) Pause(sessionID string) error {
	r, err := s.runnerFor(sessionID)
	if err != nil {
		return err
	}
	r.Pause()
	return nil
}

// Resume issues the Resume command to the session's Runner, exposed as
// POST /api/session/{id}/resume.
func (s *Service) Resume(sessionID string) error {
	r, err := s.runnerFor(sessionID)
	if err != nil {
		return err
	}
	r.Resume()
	return nil
}

// RunnerState reports a session's current Runner state, used by the
// transport layer to render {running} in command responses.
func (s *Service) RunnerState(sessionID string) (config.RunnerState, error) {
	r, err := s.runnerFor(sessionID)
	if err != nil {
		return "", err
	}
	return r.State(), nil
}

// Fork creates a new branch from sourceBranchID, optionally cut at
// fromMessageID, and notifies the memory collaborator (§4.6, §6.4).
func (s *Service) Fork(ctx context.Context, sessionID, sourceBranchID string, fromMessageID *string) (*store.Branch, error) {
	branch, err := s.store.ForkBranch(ctx, sourceBranchID, fromMessageID)
	if err != nil {
		return nil, fmt.Errorf("simulation: fork branch: %w", err)
	}

	msgs, err := s.store.ListTimeline(ctx, branch.ID, 0)
	cutSeq := 0
	if err == nil && len(msgs) > 0 {
		cutSeq = msgs[len(msgs)-1].Seq
	}
	s.memory.OnFork(ctx, sessionID, sourceBranchID, branch.ID, cutSeq)

	return branch, nil
}

// SwitchBranch updates the session's active branch. The Runner picks up
// the change on its next round boundary, never mid-round (§4.6).
func (s *Service) SwitchBranch(ctx context.Context, sessionID, branchID string) error {
	if err := s.store.SwitchActiveBranch(ctx, sessionID, branchID); err != nil {
		return fmt.Errorf("simulation: switch branch: %w", err)
	}
	s.bus.Publish(sessionID, events.Event{
		Type:           events.TypeBranchSwitched,
		BranchSwitched: &events.BranchSwitchedPayload{ActiveBranchID: branchID},
	})
	return nil
}

// DeleteLastMessage refuses to delete while the session's Runner is
// RUNNING (§4.6 scenario 4: 409 BUSY), rather than racing the Store's own
// per-branch lock — a 409 reported deterministically is more useful to a
// client than one that depends on append timing.
func (s *Service) DeleteLastMessage(ctx context.Context, sessionID, branchID string) (*int, error) {
	r, err := s.runnerFor(sessionID)
	if err == nil && r.State() == config.StateRunning {
		return nil, store.ErrBusy
	}
	var lastID string
	if tail, err := s.store.ListTimeline(ctx, branchID, 1); err == nil && len(tail) > 0 {
		lastID = tail[0].ID
	}

	seq, err := s.store.DeleteLastMessage(ctx, branchID)
	if err != nil {
		return nil, err
	}
	s.memory.OnMessageDeleted(ctx, sessionID, branchID, lastID)
	return seq, nil
}

// EditMessage is permitted in any Runner state (§4.6: "edits do not
// reorder history") and deliberately does not notify the memory
// collaborator — see the OPEN QUESTIONS decision in SPEC_FULL.md.
func (s *Service) EditMessage(ctx context.Context, messageID string, patch store.MessagePatch) (*store.TimelineMessage, error) {
	msg, err := s.store.EditMessage(ctx, messageID, patch)
	if err != nil {
		return nil, fmt.Errorf("simulation: edit message: %w", err)
	}
	s.bus.Publish(msg.SessionID, events.Event{
		Type:           events.TypeMessageUpdated,
		MessageUpdated: &events.MessagePayload{BranchID: msg.BranchID, Message: *msg},
	})
	return msg, nil
}

// Intervene enqueues a pending intervention on branchID, requiring it to
// exist and be non-archived (§4.6).
func (s *Service) Intervene(ctx context.Context, sessionID, branchID, content string) (*store.UserIntervention, error) {
	if content == "" {
		return nil, NewValidationError("content", "required")
	}
	branch, err := s.store.GetBranch(ctx, branchID)
	if err != nil {
		return nil, err
	}
	if branch.IsArchived {
		return nil, ErrBranchArchived
	}
	return s.store.CreateIntervention(ctx, sessionID, branchID, content)
}

// SetProvider binds a session to provider/baseURL/modelName, sealing
// apiKeyPlain via the Store (§6.1 "provider/set"). An empty apiKeyPlain
// preserves any previously sealed key (see pkg/store.UpsertProviderConfig).
func (s *Service) SetProvider(ctx context.Context, sessionID string, provider config.ProviderType, baseURL string, apiKeyPlain secret.Value, modelName string) (*store.ProviderConfigView, error) {
	if !provider.IsValid() {
		return nil, NewValidationError("provider", "unrecognized provider")
	}
	cfg, err := s.store.UpsertProviderConfig(ctx, sessionID, provider, baseURL, apiKeyPlain, modelName)
	if err != nil {
		return nil, fmt.Errorf("simulation: set provider: %w", err)
	}
	view := cfg.View()
	return &view, nil
}

// SelectModel updates only the model_name of a session's existing
// provider binding (§6.1 "select-model"; §8 scenario 6).
func (s *Service) SelectModel(ctx context.Context, sessionID, modelName string) (*store.ProviderConfigView, error) {
	if modelName == "" {
		return nil, NewValidationError("model_name", "required")
	}
	cfg, err := s.store.SelectModel(ctx, sessionID, modelName)
	if err != nil {
		return nil, err
	}
	view := cfg.View()
	return &view, nil
}

// ListModels fetches the chat-capable model list for the session's
// currently bound provider, using its stored base URL and API key, and
// publishes a models_loaded event for any connected client (§6.1, §6.3).
func (s *Service) ListModels(ctx context.Context, sessionID string) ([]string, error) {
	cfg, err := s.store.GetProviderConfig(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	provider, err := s.registry.Resolve(cfg.Provider)
	if err != nil {
		return nil, err
	}
	apiKey, err := s.store.DecryptAPIKey(cfg)
	if err != nil {
		return nil, fmt.Errorf("simulation: decrypt api key: %w", err)
	}

	listCtx, cancel := context.WithTimeout(ctx, listModelsTimeout)
	defer cancel()
	models, err := provider.ListModels(listCtx, providers.Config{
		BaseURL: cfg.BaseURL, APIKey: apiKey.Expose(), ModelName: cfg.ModelName,
	})
	if err != nil {
		return nil, err
	}

	s.bus.Publish(sessionID, events.Event{
		Type:         events.TypeModelsLoaded,
		ModelsLoaded: &events.ModelsLoadedPayload{Provider: string(cfg.Provider), Models: models},
	})
	return models, nil
}

// UpdateSettings applies a settings patch (§6.1 "PATCH .../settings").
func (s *Service) UpdateSettings(ctx context.Context, sessionID string, patch store.SessionSettingsPatch) (*store.Session, error) {
	sess, err := s.store.UpdateSessionSettings(ctx, sessionID, patch)
	if err != nil {
		return nil, fmt.Errorf("simulation: update settings: %w", err)
	}
	return sess, nil
}
