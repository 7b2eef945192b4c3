package simulation

import (
	"context"
	"errors"
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

func newTestService(t *testing.T) *Service {
	t.Helper()
	ctx := context.Background()

	client, err := database.NewClient(ctx, database.Config{Path: "file::memory:?cache=shared", MaxOpenConns: 1})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	keyer, err := secret.NewKeyer("test-app-secret-key")
	require.NoError(t, err)

	st := store.New(client.DB(), keyer)
	registry := providers.NewRegistry()
	svc := New(ctx, st, registry, prompt.NewBuilder(), events.NewBus(), memory.NewSafe(memory.NewNoop()), config.EventDiceConfig{})
	t.Cleanup(svc.Shutdown)
	return svc
}

func TestStartWithoutModelReturnsNoModelSelected(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	sess, _, err := svc.CreateSession(ctx, store.CreateSessionInput{
		Title: "t", WorldPreset: "a steampunk city", TickLabel: "1 month", TimelineStartISO: "2026-01-01T00:00:00Z",
	})
	require.NoError(t, err)

	err = svc.Start(ctx, sess.ID)
	assert.ErrorIs(t, err, ErrNoModelSelected)
}

func TestProviderSwitchRequiresReselection(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	sess, _, err := svc.CreateSession(ctx, store.CreateSessionInput{
		Title: "t", WorldPreset: "p", TickLabel: "1 month", TimelineStartISO: "2026-01-01T00:00:00Z",
	})
	require.NoError(t, err)

	_, err = svc.SetProvider(ctx, sess.ID, config.ProviderMock, "", secret.NewValue("k"), "fixture-v1")
	require.NoError(t, err)
	require.NoError(t, svc.Start(ctx, sess.ID))
	require.NoError(t, svc.Pause(sess.ID))

	_, err = svc.SetProvider(ctx, sess.ID, config.ProviderDeepSeek, "https://api.deepseek.com", secret.NewValue("k"), "")
	require.NoError(t, err)

	err = svc.Start(ctx, sess.ID)
	assert.ErrorIs(t, err, ErrNoModelSelected)

	_, err = svc.SelectModel(ctx, sess.ID, "deepseek-chat")
	require.NoError(t, err)
	assert.NoError(t, svc.Start(ctx, sess.ID))
}

func TestForkIsolation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	sess, main, err := svc.CreateSession(ctx, store.CreateSessionInput{
		Title: "t", WorldPreset: "p", TickLabel: "1 month", TimelineStartISO: "2026-01-01T00:00:00Z",
	})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := svc.store.AppendMessage(ctx, main.ID, store.AppendMessageInput{Role: config.RoleSystemReport, Content: "r"})
		require.NoError(t, err)
	}

	forked, err := svc.Fork(ctx, sess.ID, main.ID, nil)
	require.NoError(t, err)

	_, err = svc.store.AppendMessage(ctx, forked.ID, store.AppendMessageInput{Role: config.RoleSystemReport, Content: "branch-only"})
	require.NoError(t, err)

	mainMsgs, err := svc.store.ListTimeline(ctx, main.ID, 0)
	require.NoError(t, err)
	assert.Len(t, mainMsgs, 3, "parent branch must not see the fork's new message")

	forkedMsgs, err := svc.store.ListTimeline(ctx, forked.ID, 0)
	require.NoError(t, err)
	assert.Len(t, forkedMsgs, 4)
}

func TestDeleteLastMessageBusyWhileRunning(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	sess, main, err := svc.CreateSession(ctx, store.CreateSessionInput{
		Title: "t", WorldPreset: "p", TickLabel: "1 month", TimelineStartISO: "2026-01-01T00:00:00Z",
	})
	require.NoError(t, err)
	_, err = svc.SetProvider(ctx, sess.ID, config.ProviderMock, "", secret.NewValue(""), "fixture-v1")
	require.NoError(t, err)
	_, err = svc.store.AppendMessage(ctx, main.ID, store.AppendMessageInput{Role: config.RoleSystemReport, Content: "r"})
	require.NoError(t, err)

	require.NoError(t, svc.Start(ctx, sess.ID))
	require.Eventually(t, func() bool {
		st, err := svc.RunnerState(sess.ID)
		return err == nil && st == config.StateRunning
	}, time.Second, 5*time.Millisecond)

	_, err = svc.DeleteLastMessage(ctx, sess.ID, main.ID)
	assert.True(t, errors.Is(err, store.ErrBusy))

	require.NoError(t, svc.Pause(sess.ID))
	require.Eventually(t, func() bool {
		st, err := svc.RunnerState(sess.ID)
		return err == nil && st == config.StatePaused
	}, time.Second, 5*time.Millisecond)

	_, err = svc.DeleteLastMessage(ctx, sess.ID, main.ID)
	assert.NoError(t, err)
}

func TestInterveneRequiresExistingBranch(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	sess, main, err := svc.CreateSession(ctx, store.CreateSessionInput{
		Title: "t", WorldPreset: "p", TickLabel: "1 month", TimelineStartISO: "2026-01-01T00:00:00Z",
	})
	require.NoError(t, err)

	_, err = svc.Intervene(ctx, sess.ID, main.ID, "send reinforcements")
	require.NoError(t, err)

	_, err = svc.Intervene(ctx, sess.ID, "nonexistent-branch", "x")
	assert.Error(t, err)
}

func TestEditMessageAllowedWhileRunning(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	sess, main, err := svc.CreateSession(ctx, store.CreateSessionInput{
		Title: "t", WorldPreset: "p", TickLabel: "1 month", TimelineStartISO: "2026-01-01T00:00:00Z",
	})
	require.NoError(t, err)
	_, err = svc.SetProvider(ctx, sess.ID, config.ProviderMock, "", secret.NewValue(""), "fixture-v1")
	require.NoError(t, err)
	msg, err := svc.store.AppendMessage(ctx, main.ID, store.AppendMessageInput{Role: config.RoleSystemReport, Content: "original"})
	require.NoError(t, err)

	require.NoError(t, svc.Start(ctx, sess.ID))
	require.Eventually(t, func() bool {
		st, err := svc.RunnerState(sess.ID)
		return err == nil && st == config.StateRunning
	}, time.Second, 5*time.Millisecond)

	edited := "corrected account of events"
	updated, err := svc.EditMessage(ctx, msg.ID, store.MessagePatch{Content: &edited})
	require.NoError(t, err)
	assert.Equal(t, edited, updated.Content)
	assert.True(t, updated.IsUserEdited)
}
