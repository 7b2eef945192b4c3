// Package runner implements the Runner (§4.5): one cooperative task per
// session driving the generation state machine. It is grounded in this
// codebase's pkg/queue.Worker run loop (select over a stop channel, a
// health-tracking struct, jittered backoff between poll attempts) and
// pkg/queue.WorkerPool's session cancel-function registry, generalized
// from "poll a shared pending-sessions queue" to "drive one session's own
// command channel" since this system has exactly one Runner task per
// session (I3) rather than a pool of workers claiming from a shared table.
package runner

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/codeready-toolchain/worldline/pkg/config"
	"github.com/codeready-toolchain/worldline/pkg/events"
	"github.com/codeready-toolchain/worldline/pkg/memory"
	"github.com/codeready-toolchain/worldline/pkg/prompt"
	"github.com/codeready-toolchain/worldline/pkg/providers"
	"github.com/codeready-toolchain/worldline/pkg/store"
)

// Command is one of the four asynchronously delivered, idempotent
// commands the Simulation Service sends to a Runner (§4.5).
type Command string

// Recognized commands.
const (
	CmdStart  Command = "start"
	CmdPause  Command = "pause"
	CmdResume Command = "resume"
	CmdStop   Command = "stop"
)

// recentWindowSize bounds the Snapshot step's timeline read (§4.3: "up to
// 20 most recent entries").
const recentWindowSize = 20

// generateTimeout bounds the one suspension point that may take real
// time (§4.2, §5).
const generateTimeout = 90 * time.Second

// backoffSchedule is the fixed retry/backoff sequence (§4.5, §9).
var backoffSchedule = []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}

// Runner drives one session's generation state machine. Exactly one
// Runner exists per session (I3); the Simulation Service constructs it
// once, per session, and holds it for the session's lifetime.
type Runner struct {
	sessionID string

	store     *store.Store
	registry  *providers.Registry
	builder   *prompt.Builder
	bus       *events.Bus
	memory    *memory.Safe
	eventDice config.EventDiceConfig

	cmdCh chan Command

	mu         sync.Mutex
	state      config.RunnerState
	retryCount int

	log *slog.Logger
}

// New constructs a Runner for sessionID in the IDLE state. The caller is
// responsible for calling Run in its own goroutine.
func New(sessionID string, st *store.Store, registry *providers.Registry, builder *prompt.Builder, bus *events.Bus, mem *memory.Safe, eventDice config.EventDiceConfig) *Runner {
	return &Runner{
		sessionID: sessionID,
		store:     st,
		registry:  registry,
		builder:   builder,
		bus:       bus,
		memory:    mem,
		eventDice: eventDice,
		cmdCh:     make(chan Command, 16),
		state:     config.StateIdle,
		log:       slog.With("session_id", sessionID),
	}
}

// State returns the Runner's current state.
func (r *Runner) State() config.RunnerState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Runner) setState(s config.RunnerState) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

// Start, Pause, Resume and Stop enqueue the named command. Each is
// idempotent (§4.5: "Start/Start = Start" etc.) — the state machine in
// applyCommand no-ops on a command that doesn't apply to the current
// state, so sending the same command twice in a row is always safe.
func (r *Runner) Start()  { r.cmdCh <- CmdStart }
func (r *Runner) Pause()  { r.cmdCh <- CmdPause }
func (r *Runner) Resume() { r.cmdCh <- CmdResume }
func (r *Runner) Stop()   { r.cmdCh <- CmdStop }

// Run is the per-session cooperative task's main loop. It blocks until
// ctx is cancelled or a Stop command transitions the Runner to STOPPED,
// both of which are terminal (§4.5). Call it in its own goroutine.
func (r *Runner) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			r.setState(config.StateStopped)
			return
		}

		r.drainPendingCommands(ctx)

		switch r.State() {
		case config.StateStopped:
			return
		case config.StateRunning:
			r.runRound(ctx)
		default: // IDLE, PAUSED, ERROR_BACKOFF: wait for the next command.
			select {
			case cmd := <-r.cmdCh:
				r.applyCommand(ctx, cmd)
			case <-ctx.Done():
				r.setState(config.StateStopped)
				return
			}
		}
	}
}

// drainPendingCommands applies every command already queued without
// blocking, so e.g. a Start sent while IDLE takes effect before the next
// iteration's state switch.
func (r *Runner) drainPendingCommands(ctx context.Context) {
	for {
		select {
		case cmd := <-r.cmdCh:
			r.applyCommand(ctx, cmd)
		default:
			return
		}
	}
}

func (r *Runner) applyCommand(ctx context.Context, cmd Command) {
	switch cmd {
	case CmdStart:
		if r.State() == config.StateRunning {
			return
		}
		r.retryCount = 0
		r.transitionRunning(ctx, true)
	case CmdPause:
		if r.State() != config.StateRunning {
			return
		}
		r.transitionRunning(ctx, false)
	case CmdResume:
		s := r.State()
		if s != config.StatePaused && s != config.StateErrorBackoff {
			return
		}
		r.retryCount = 0
		r.transitionRunning(ctx, true)
	case CmdStop:
		r.setState(config.StateStopped)
		r.persistRunning(ctx, false)
	}
}

func (r *Runner) transitionRunning(ctx context.Context, running bool) {
	if running {
		r.setState(config.StateRunning)
	} else {
		r.setState(config.StatePaused)
	}
	r.persistRunning(ctx, running)
}

func (r *Runner) persistRunning(ctx context.Context, running bool) {
	if err := r.store.SetRunning(ctx, r.sessionID, running); err != nil {
		r.log.Warn("failed to persist running flag", "error", err)
	}
	r.bus.Publish(r.sessionID, events.Event{
		Type:         events.TypeSessionState,
		SessionState: &events.SessionStatePayload{Running: running},
	})
}

// errorBackoff transitions to ERROR_BACKOFF and emits the §7 error event.
// This is the shared emission path for every way a round can fail:
// snapshot and prepare errors, provider resolution and key decryption
// errors, generate failures and persist failure.
func (r *Runner) errorBackoff(code, message, hint string) {
	r.setState(config.StateErrorBackoff)
	r.bus.Publish(r.sessionID, events.Event{
		Type:  events.TypeError,
		Error: &events.ErrorPayload{Code: code, Message: message, Hint: hint},
	})
}
