package runner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/worldline/pkg/config"
	"github.com/codeready-toolchain/worldline/pkg/database"
	"github.com/codeready-toolchain/worldline/pkg/events"
	"github.com/codeready-toolchain/worldline/pkg/memory"
	"github.com/codeready-toolchain/worldline/pkg/prompt"
	"github.com/codeready-toolchain/worldline/pkg/providers"
	"github.com/codeready-toolchain/worldline/pkg/secret"
	"github.com/codeready-toolchain/worldline/pkg/store"
)

type testHarness struct {
	store    *store.Store
	bus      *events.Bus
	registry *providers.Registry
	session  *store.Session
	branch   *store.Branch
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()
	ctx := context.Background()

	client, err := database.NewClient(ctx, database.Config{Path: "file::memory:?cache=shared", MaxOpenConns: 1})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	keyer, err := secret.NewKeyer("test-app-secret-key")
	require.NoError(t, err)

	st := store.New(client.DB(), keyer)
	sess, branch, err := st.CreateSession(ctx, store.CreateSessionInput{
		Title: "t", WorldPreset: "a steampunk city", TickLabel: "1 month",
		// A long post-generation delay keeps the Runner in its first round's
		// delay until the test issues Stop, so exactly one message is written.
		PostGenDelaySec: 60, TimelineStartISO: "2026-01-01T00:00:00Z",
	})
	require.NoError(t, err)

	_, err = st.UpsertProviderConfig(ctx, sess.ID, config.ProviderMock, "", secret.NewValue(""), "fixture-v1")
	require.NoError(t, err)

	registry := providers.NewRegistry()

	return &testHarness{
		store:    st,
		bus:      events.NewBus(),
		registry: registry,
		session:  sess,
		branch:   branch,
	}
}

func (h *testHarness) newRunner() *Runner {
	return New(h.session.ID, h.store, h.registry, prompt.NewBuilder(), h.bus, memory.NewSafe(memory.NewNoop()), config.EventDiceConfig{})
}

func TestRunnerCompletesOneRoundWithMockProvider(t *testing.T) {
	h := newHarness(t)
	r := h.newRunner()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() { r.Run(ctx); close(done) }()

	r.Start()
	require.Eventually(t, func() bool {
		msgs, err := h.store.ListTimeline(context.Background(), h.branch.ID, 0)
		return err == nil && len(msgs) == 1
	}, 2*time.Second, 10*time.Millisecond)

	r.Stop()
	waitDone(t, done)
	assert.Equal(t, config.StateStopped, r.State())
}

func TestRunnerConsumesInterventionIntoPrompt(t *testing.T) {
	h := newHarness(t)
	mock := providers.NewMock()
	h.registry.Register(config.ProviderMock, mock)
	r := h.newRunner()

	_, err := h.store.CreateIntervention(context.Background(), h.session.ID, h.branch.ID, "send reinforcements to the eastern wall")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() { r.Run(ctx); close(done) }()

	r.Start()
	require.Eventually(t, func() bool {
		msgs, err := h.store.ListTimeline(context.Background(), h.branch.ID, 0)
		return err == nil && len(msgs) == 1
	}, 2*time.Second, 10*time.Millisecond)

	r.Stop()
	waitDone(t, done)

	captured := mock.(interface{ LastPrompt() []providers.Message }).LastPrompt()
	require.NotEmpty(t, captured)
	found := false
	for _, m := range captured {
		if m.Role == "user" && contains(m.Content, "send reinforcements to the eastern wall") {
			found = true
		}
	}
	assert.True(t, found, "expected consumed intervention content in prompt")
}

func TestRunnerRetriesTransientFailuresThenSucceeds(t *testing.T) {
	h := newHarness(t)
	h.registry.Register(config.ProviderMock, providers.NewFlaky(providers.NewMock(), 3))
	r := h.newRunner()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() { r.Run(ctx); close(done) }()

	start := time.Now()
	r.Start()
	require.Eventually(t, func() bool {
		msgs, err := h.store.ListTimeline(context.Background(), h.branch.ID, 0)
		return err == nil && len(msgs) == 1
	}, 10*time.Second, 10*time.Millisecond)
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 7*time.Second, "expected the full 1s+2s+4s backoff schedule to elapse")
	assert.Equal(t, config.StateRunning, r.State())

	r.Stop()
	waitDone(t, done)
}

func TestRunnerEntersErrorBackoffAfterExhaustingRetries(t *testing.T) {
	h := newHarness(t)
	h.registry.Register(config.ProviderMock, providers.NewFlaky(providers.NewMock(), 4))
	r := h.newRunner()

	sub := h.bus.Subscribe(h.session.ID)
	defer sub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() { r.Run(ctx); close(done) }()

	r.Start()
	require.Eventually(t, func() bool {
		return r.State() == config.StateErrorBackoff
	}, 10*time.Second, 10*time.Millisecond)

	msgs, err := h.store.ListTimeline(context.Background(), h.branch.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, msgs, "a failed round must not persist a message")

	r.Stop()
	waitDone(t, done)
}

func TestRunnerPauseResumeIsIdempotent(t *testing.T) {
	h := newHarness(t)
	r := h.newRunner()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() { r.Run(ctx); close(done) }()

	r.Pause()
	r.Pause()
	assert.Equal(t, config.StateIdle, r.State(), "pausing an idle runner is a no-op")

	r.Start()
	require.Eventually(t, func() bool { return r.State() == config.StateRunning }, time.Second, 5*time.Millisecond)
	r.Start()
	assert.Equal(t, config.StateRunning, r.State())

	r.Stop()
	waitDone(t, done)
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not stop")
	}
}

func contains(haystack, needle string) bool {
	return len(haystack) >= len(needle) && indexOf(haystack, needle) >= 0
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}
