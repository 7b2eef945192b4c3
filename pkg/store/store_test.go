package store

import (
	"context"
	"database/sql"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"

	"github.com/codeready-toolchain/worldline/pkg/config"
	"github.com/codeready-toolchain/worldline/pkg/secret"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", "file::memory:?cache=shared")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(schemaSQL)
	require.NoError(t, err)

	keyer, err := secret.NewKeyer("test-app-secret-key")
	require.NoError(t, err)

	return New(db, keyer)
}

func newSession(t *testing.T, s *Store) (*Session, *Branch) {
	t.Helper()
	sess, branch, err := s.CreateSession(context.Background(), CreateSessionInput{
		Title: "t", WorldPreset: "a steampunk city", TickLabel: "1 month",
		PostGenDelaySec: 0, TimelineStartISO: "2026-01-01T00:00:00Z",
	})
	require.NoError(t, err)
	return sess, branch
}

func TestAppendMessageDenseSeq(t *testing.T) {
	s := newTestStore(t)
	_, branch := newSession(t, s)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		msg, err := s.AppendMessage(ctx, branch.ID, AppendMessageInput{
			Role: config.RoleSystemReport, Content: "report",
		})
		require.NoError(t, err)
		assert.Equal(t, i, msg.Seq)
	}

	msgs, err := s.ListTimeline(ctx, branch.ID, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	for i, m := range msgs {
		assert.Equal(t, i+1, m.Seq)
	}
}

func TestDeleteLastMessageDecreasesMaxSeqByOne(t *testing.T) {
	s := newTestStore(t)
	_, branch := newSession(t, s)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := s.AppendMessage(ctx, branch.ID, AppendMessageInput{Role: config.RoleSystemReport, Content: "x"})
		require.NoError(t, err)
	}

	seq, err := s.DeleteLastMessage(ctx, branch.ID)
	require.NoError(t, err)
	require.NotNil(t, seq)
	assert.Equal(t, 3, *seq)

	msgs, err := s.ListTimeline(ctx, branch.ID, 0)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
	assert.Equal(t, 2, msgs[len(msgs)-1].Seq)
}

func TestDeleteLastMessageBusyWhileAppendHoldsLock(t *testing.T) {
	s := newTestStore(t)
	_, branch := newSession(t, s)

	lock := s.lockFor(branch.ID)
	lock.Lock()
	defer lock.Unlock()

	_, err := s.DeleteLastMessage(context.Background(), branch.ID)
	assert.ErrorIs(t, err, ErrBusy)
}

func TestForkIsolation(t *testing.T) {
	s := newTestStore(t)
	_, main := newSession(t, s)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := s.AppendMessage(ctx, main.ID, AppendMessageInput{Role: config.RoleSystemReport, Content: "x"})
		require.NoError(t, err)
	}

	forked, err := s.ForkBranch(ctx, main.ID, nil)
	require.NoError(t, err)

	forkedMsgs, err := s.ListTimeline(ctx, forked.ID, 0)
	require.NoError(t, err)
	assert.Len(t, forkedMsgs, 3)
	assert.Equal(t, 3, forkedMsgs[len(forkedMsgs)-1].Seq)

	// appends to the fork must not appear on main, and vice versa
	_, err = s.AppendMessage(ctx, forked.ID, AppendMessageInput{Role: config.RoleSystemReport, Content: "on-fork"})
	require.NoError(t, err)

	mainMsgs, err := s.ListTimeline(ctx, main.ID, 0)
	require.NoError(t, err)
	assert.Len(t, mainMsgs, 3)

	forkedMsgs, err = s.ListTimeline(ctx, forked.ID, 0)
	require.NoError(t, err)
	assert.Len(t, forkedMsgs, 4)
}

func TestConsumeThenRequeueInterventions(t *testing.T) {
	s := newTestStore(t)
	sess, branch := newSession(t, s)
	ctx := context.Background()

	iv, err := s.CreateIntervention(ctx, sess.ID, branch.ID, "a drought strikes the north")
	require.NoError(t, err)

	consumed, err := s.ConsumePendingInterventions(ctx, branch.ID)
	require.NoError(t, err)
	require.Len(t, consumed, 1)
	assert.Equal(t, config.InterventionConsumed, consumed[0].Status)

	// simulate a failed round: requeue
	err = s.RequeueInterventions(ctx, []string{iv.ID})
	require.NoError(t, err)

	pendingAgain, err := s.ConsumePendingInterventions(ctx, branch.ID)
	require.NoError(t, err)
	require.Len(t, pendingAgain, 1)
	assert.Equal(t, iv.ID, pendingAgain[0].ID)
}

func TestProviderConfigRoundTripNeverPersistsPlaintext(t *testing.T) {
	s := newTestStore(t)
	sess, _ := newSession(t, s)
	ctx := context.Background()

	_, err := s.UpsertProviderConfig(ctx, sess.ID, config.ProviderMock, "https://example.invalid",
		secret.NewValue("sk-super-secret-token"), "")
	require.NoError(t, err)

	cfg, err := s.GetProviderConfig(ctx, sess.ID)
	require.NoError(t, err)
	assert.True(t, cfg.HasAPIKey())
	assert.NotContains(t, string(cfg.APIKeyEncrypted), "sk-super-secret-token")

	plain, err := s.DecryptAPIKey(cfg)
	require.NoError(t, err)
	assert.Equal(t, "sk-super-secret-token", plain.Expose())

	view := cfg.View()
	assert.True(t, view.HasAPIKey)
}

func TestConcurrentAppendsStayDense(t *testing.T) {
	s := newTestStore(t)
	_, branch := newSession(t, s)
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := s.AppendMessage(ctx, branch.ID, AppendMessageInput{Role: config.RoleSystemReport, Content: "x"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	msgs, err := s.ListTimeline(ctx, branch.ID, 0)
	require.NoError(t, err)
	require.Len(t, msgs, n)
	seen := make(map[int]bool)
	for _, m := range msgs {
		seen[m.Seq] = true
	}
	for i := 1; i <= n; i++ {
		assert.True(t, seen[i], "missing seq %d", i)
	}
}

func TestSwitchActiveBranchToForkedBranch(t *testing.T) {
	s := newTestStore(t)
	sess, main := newSession(t, s)
	ctx := context.Background()

	forked, err := s.ForkBranch(ctx, main.ID, nil)
	require.NoError(t, err)

	err = s.SwitchActiveBranch(ctx, sess.ID, forked.ID)
	require.NoError(t, err)

	got, err := s.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, forked.ID, got.ActiveBranchID)
}

// schemaSQL mirrors the tables (not the indexes) of pkg/database's embedded
// schema.sql so store tests don't
// need to depend on pkg/database (which would make this an integration
// test against a real file); kept in lockstep manually since both are
// reviewed together.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS sessions (
    id                   TEXT PRIMARY KEY,
    title                TEXT NOT NULL,
    world_preset         TEXT NOT NULL,
    running              INTEGER NOT NULL DEFAULT 0,
    tick_label           TEXT NOT NULL,
    post_gen_delay_sec   INTEGER NOT NULL DEFAULT 5,
    active_branch_id     TEXT,
    output_language      TEXT NOT NULL DEFAULT 'en',
    timeline_start_iso   TEXT NOT NULL,
    timeline_step_value  INTEGER NOT NULL DEFAULT 1,
    timeline_step_unit   TEXT NOT NULL DEFAULT 'month',
    created_at           TEXT NOT NULL,
    updated_at           TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS branches (
    id                   TEXT PRIMARY KEY,
    session_id           TEXT NOT NULL REFERENCES sessions(id),
    name                 TEXT NOT NULL,
    parent_branch_id     TEXT,
    fork_from_message_id TEXT,
    is_archived          INTEGER NOT NULL DEFAULT 0,
    created_at           TEXT NOT NULL,
    UNIQUE(session_id, name)
);

CREATE TABLE IF NOT EXISTS timeline_messages (
    id               TEXT PRIMARY KEY,
    session_id       TEXT NOT NULL REFERENCES sessions(id),
    branch_id        TEXT NOT NULL REFERENCES branches(id),
    seq              INTEGER NOT NULL,
    role             TEXT NOT NULL,
    content          TEXT NOT NULL,
    time_jump_label  TEXT,
    model_provider   TEXT,
    model_name       TEXT,
    token_in         INTEGER,
    token_out        INTEGER,
    is_user_edited   INTEGER NOT NULL DEFAULT 0,
    report_snapshot  TEXT,
    created_at       TEXT NOT NULL,
    UNIQUE(branch_id, seq)
);

CREATE TABLE IF NOT EXISTS user_interventions (
    id           TEXT PRIMARY KEY,
    session_id   TEXT NOT NULL REFERENCES sessions(id),
    branch_id    TEXT NOT NULL REFERENCES branches(id),
    content      TEXT NOT NULL,
    status       TEXT NOT NULL DEFAULT 'pending',
    created_at   TEXT NOT NULL,
    consumed_at  TEXT
);

CREATE TABLE IF NOT EXISTS provider_configs (
    session_id        TEXT PRIMARY KEY REFERENCES sessions(id),
    provider          TEXT NOT NULL,
    base_url          TEXT NOT NULL DEFAULT '',
    api_key_encrypted BLOB,
    model_name        TEXT NOT NULL DEFAULT '',
    extra_json        TEXT NOT NULL DEFAULT '{}',
    updated_at        TEXT NOT NULL
);
`
