package runner

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/codeready-toolchain/worldline/pkg/config"
	"github.com/codeready-toolchain/worldline/pkg/events"
	"github.com/codeready-toolchain/worldline/pkg/prompt"
	"github.com/codeready-toolchain/worldline/pkg/providers"
	"github.com/codeready-toolchain/worldline/pkg/store"
)

// runRound executes exactly one Snapshot → Prepare → Build → Generate →
// Persist → Publish → post-generation-delay sequence (§4.5). It runs to
// completion, to an ERROR_BACKOFF transition, or to STOPPED. Commands are
// never applied during a generate call or a write: a Stop arriving during
// a retry backoff is applied at once and ends the round without another
// attempt, other commands seen then are put back on the queue, and
// commands arriving during the post-generation delay are applied there.
func (r *Runner) runRound(ctx context.Context) {
	session, err := r.store.GetSession(ctx, r.sessionID)
	if err != nil {
		r.log.Error("snapshot: failed to load session", "error", err)
		r.errorBackoff("SESSION_LOAD_FAILED", err.Error(), "")
		return
	}

	providerCfg, err := r.store.GetProviderConfig(ctx, session.ID)
	if err != nil {
		r.log.Error("snapshot: no provider configured", "error", err)
		r.errorBackoff("NO_MODEL_SELECTED", "no model is selected for this session", "select a provider and model before starting")
		return
	}

	window, err := r.store.ListTimeline(ctx, session.ActiveBranchID, recentWindowSize)
	if err != nil {
		r.log.Error("snapshot: failed to load recent window", "error", err)
		r.errorBackoff("TIMELINE_LOAD_FAILED", err.Error(), "")
		return
	}

	consumed, err := r.store.ConsumePendingInterventions(ctx, session.ActiveBranchID)
	if err != nil {
		r.log.Error("prepare: failed to consume interventions", "error", err)
		r.errorBackoff("INTERVENTION_CONSUME_FAILED", err.Error(), "")
		return
	}

	snippets := r.memory.RetrieveContext(ctx, session.ID, session.ActiveBranchID, session.TickLabel, 5, 2000)

	msgs := r.builder.Build(prompt.Input{
		WorldPreset:    session.WorldPreset,
		TickLabel:      session.TickLabel,
		RecentWindow:   window,
		Interventions:  consumed,
		MemorySnippets: snippets,
		OutputLanguage: session.OutputLanguage,
		EventDice:      r.eventDice,
	})

	provider, err := r.registry.Resolve(providerCfg.Provider)
	if err != nil {
		r.requeue(ctx, consumed)
		r.errorBackoff("UNKNOWN_PROVIDER", err.Error(), "")
		return
	}

	apiKey, err := r.store.DecryptAPIKey(providerCfg)
	if err != nil {
		r.requeue(ctx, consumed)
		r.errorBackoff("API_KEY_DECRYPT_FAILED", err.Error(), "")
		return
	}

	cfg := providers.Config{
		BaseURL:   providerCfg.BaseURL,
		APIKey:    apiKey.Expose(),
		ModelName: providerCfg.ModelName,
	}
	opts := providers.GenerateOptions{
		MaxOutputChars: 8000,
		Temperature:    0.8,
		ResponseFormat: providers.FormatJSON,
	}

	result, genErr := r.generateWithRetry(ctx, provider, cfg, msgs, opts)
	if genErr != nil {
		r.requeue(ctx, consumed)
		if r.State() == config.StateStopped {
			return // Stop arrived during a retry backoff
		}
		r.handleGenerateFailure(genErr)
		return
	}

	report, ok := prompt.ParseReport(result.Text)
	content := result.Text
	snapshot := ""
	timeJump := session.TickLabel
	if ok {
		content = report.Summary
		timeJump = report.TimeAdvance
		if b, err := json.Marshal(report); err == nil {
			snapshot = string(b)
		}
	}

	message, err := r.store.AppendMessage(ctx, session.ActiveBranchID, store.AppendMessageInput{
		Role:           config.RoleSystemReport,
		Content:        content,
		TimeJumpLabel:  timeJump,
		ModelProvider:  string(providerCfg.Provider),
		ModelName:      providerCfg.ModelName,
		TokenIn:        result.TokenIn,
		TokenOut:       result.TokenOut,
		ReportSnapshot: snapshot,
	})
	if err != nil {
		r.requeue(ctx, consumed)
		r.log.Error("persist: failed to append message", "error", err)
		r.errorBackoff("PERSIST_FAILED", err.Error(), "")
		return
	}

	r.bus.Publish(session.ID, events.Event{
		Type:           events.TypeMessageCreated,
		MessageCreated: &events.MessagePayload{BranchID: session.ActiveBranchID, Message: *message},
	})
	r.memory.OnMessagePersisted(ctx, session.ID, session.ActiveBranchID, *message)

	r.retryCount = 0
	r.sleepPostGenDelay(ctx, time.Duration(session.PostGenDelaySec)*time.Second)
}

// generateWithRetry calls provider.Generate, retrying transient failures
// per the fixed backoff schedule (§4.5, §9): up to len(backoffSchedule)
// retries, i.e. up to len(backoffSchedule)+1 total attempts. A non-
// transient error (ClientError, ProtocolError) is never retried.
func (r *Runner) generateWithRetry(ctx context.Context, provider providers.Provider, cfg providers.Config, msgs []providers.Message, opts providers.GenerateOptions) (*providers.GenerateResult, error) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		genCtx, cancel := context.WithTimeout(ctx, generateTimeout)
		result, err := provider.Generate(genCtx, cfg, msgs, opts)
		cancel()
		if err == nil {
			return result, nil
		}
		lastErr = err

		var transient *providers.TransientError
		if !errors.As(err, &transient) {
			return nil, err // not retryable
		}
		if attempt >= len(backoffSchedule) {
			return nil, err // retries exhausted
		}

		r.retryCount = attempt + 1
		if !r.sleepInterruptibleByStop(ctx, backoffSchedule[attempt]) {
			return nil, lastErr
		}
	}
}

// sleepInterruptibleByStop waits for d, ctx cancellation, or a queued Stop
// command (applied immediately so shutdown during backoff is bounded by
// the remaining sleep, not the full schedule). It returns false if the
// wait was cut short by cancellation or Stop. Any other command seen
// while waiting is set aside and replayed onto cmdCh before returning, so
// the main loop's next drain observes it once the round finishes —
// transitions other than Stop are never applied mid-retry.
func (r *Runner) sleepInterruptibleByStop(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	var deferred []Command
	for {
		select {
		case <-timer.C:
			r.replay(deferred)
			return true
		case <-ctx.Done():
			r.replay(deferred)
			return false
		case cmd := <-r.cmdCh:
			if cmd == CmdStop {
				r.setState(config.StateStopped)
				r.persistRunning(ctx, false)
				return false
			}
			deferred = append(deferred, cmd)
		}
	}
}

// replay pushes previously set-aside commands back onto cmdCh. cmdCh's
// buffer (16) comfortably absorbs the handful of commands a round could
// see queued during one retry backoff.
func (r *Runner) replay(cmds []Command) {
	for _, cmd := range cmds {
		r.cmdCh <- cmd
	}
}

// sleepPostGenDelay is the round's final step (§4.5): it waits out the
// session's configured post-generation delay, applying any command that
// arrives so a Pause/Stop issued during the delay is observed at this
// safe checkpoint rather than after an extra idle cycle.
func (r *Runner) sleepPostGenDelay(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	for {
		select {
		case <-timer.C:
			return
		case <-ctx.Done():
			return
		case cmd := <-r.cmdCh:
			r.applyCommand(ctx, cmd)
			if r.State() != config.StateRunning {
				return
			}
		}
	}
}

func (r *Runner) handleGenerateFailure(err error) {
	var clientErr *providers.ClientError
	var transientErr *providers.TransientError
	var protocolErr *providers.ProtocolError
	switch {
	case errors.As(err, &clientErr):
		r.errorBackoff("PROVIDER_CLIENT_ERROR", err.Error(), "check the provider base URL, API key, and model name")
	case errors.As(err, &transientErr):
		r.errorBackoff("PROVIDER_RETRIES_EXHAUSTED", err.Error(), "resume once the provider is reachable again")
	case errors.As(err, &protocolErr):
		r.errorBackoff("PROVIDER_PROTOCOL_ERROR", err.Error(), "")
	default:
		r.errorBackoff("GENERATE_FAILED", err.Error(), "")
	}
}

func (r *Runner) requeue(ctx context.Context, consumed []store.UserIntervention) {
	if len(consumed) == 0 {
		return
	}
	ids := make([]string, len(consumed))
	for i, iv := range consumed {
		ids[i] = iv.ID
	}
	if err := r.store.RequeueInterventions(ctx, ids); err != nil {
		r.log.Error("failed to requeue interventions after round failure", "error", err)
	}
}
