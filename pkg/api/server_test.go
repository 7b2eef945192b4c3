package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/worldline/pkg/config"
	"github.com/codeready-toolchain/worldline/pkg/database"
	"github.com/codeready-toolchain/worldline/pkg/events"
	"github.com/codeready-toolchain/worldline/pkg/memory"
	"github.com/codeready-toolchain/worldline/pkg/prompt"
	"github.com/codeready-toolchain/worldline/pkg/providers"
	"github.com/codeready-toolchain/worldline/pkg/secret"
	"github.com/codeready-toolchain/worldline/pkg/simulation"
	"github.com/codeready-toolchain/worldline/pkg/store"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	ctx := context.Background()

	client, err := database.NewClient(ctx, database.Config{Path: "file::memory:?cache=shared", MaxOpenConns: 1})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	keyer, err := secret.NewKeyer("test-app-secret-key")
	require.NoError(t, err)

	st := store.New(client.DB(), keyer)
	bus := events.NewBus()
	sim := simulation.New(ctx, st, providers.NewRegistry(), prompt.NewBuilder(), bus, memory.NewSafe(memory.NewNoop()), config.EventDiceConfig{})
	t.Cleanup(sim.Shutdown)

	cfg := &config.Config{DefaultTickLabel: "1 month", DefaultPostGenDelaySec: 5}
	return NewServer(cfg, client, st, sim, bus)
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func TestCreateAndGetSession(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/session/create", createSessionRequest{
		WorldPreset: "a steampunk city", TickLabel: "1 month", TimelineStartISO: "2026-01-01T00:00:00Z",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var created SessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotEmpty(t, created.SessionID)
	assert.NotEmpty(t, created.ActiveBranchID)
	assert.False(t, created.Running)

	rec = doJSON(t, s, http.MethodGet, "/api/session/"+created.SessionID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got SessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, created.SessionID, got.SessionID)
}

func TestStartWithoutModelReturns409(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/session/create", createSessionRequest{
		WorldPreset: "p", TickLabel: "1 month", TimelineStartISO: "2026-01-01T00:00:00Z",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var created SessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = doJSON(t, s, http.MethodPost, "/api/session/"+created.SessionID+"/start", nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
	assert.Equal(t, "NO_MODEL_SELECTED", errResp.Code)
}

func TestSetProviderThenStartSucceeds(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/session/create", createSessionRequest{
		WorldPreset: "p", TickLabel: "1 month", PostGenDelaySec: intPtr(0), TimelineStartISO: "2026-01-01T00:00:00Z",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var created SessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = doJSON(t, s, http.MethodPost, "/api/provider/"+created.SessionID+"/set", setProviderRequest{
		Provider: "mock", ModelName: "fixture-v1",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, s, http.MethodPost, "/api/session/"+created.SessionID+"/start", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var running RunningResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &running))
	assert.True(t, running.Running)
}

func TestDeleteLastMessageRequiresBranchID(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, s, http.MethodDelete, "/api/message/some-id/last", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func intPtr(v int) *int { return &v }
