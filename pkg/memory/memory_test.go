package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/worldline/pkg/store"
)

func TestNoopReturnsEmptySnippets(t *testing.T) {
	m := NewNoop()
	snippets, err := m.RetrieveContext(context.Background(), "s1", "b1", "q", 5, 100)
	require.NoError(t, err)
	assert.Empty(t, snippets)
}

type failingCollaborator struct{}

func (failingCollaborator) RetrieveContext(ctx context.Context, sessionID, branchID, queryText string, maxSnippets, maxChars int) ([]string, error) {
	return nil, errors.New("boom")
}
func (failingCollaborator) OnMessagePersisted(ctx context.Context, sessionID, branchID string, message store.TimelineMessage) {
	panic("boom")
}
func (failingCollaborator) OnMessageDeleted(ctx context.Context, sessionID, branchID, messageID string) {
	panic("boom")
}
func (failingCollaborator) OnFork(ctx context.Context, sessionID, sourceBranchID, newBranchID string, cutSeq int) {
	panic("boom")
}

func TestSafeSwallowsErrorsAndPanics(t *testing.T) {
	s := NewSafe(failingCollaborator{})
	snippets := s.RetrieveContext(context.Background(), "s1", "b1", "q", 5, 100)
	assert.Empty(t, snippets)

	assert.NotPanics(t, func() {
		s.OnMessagePersisted(context.Background(), "s1", "b1", store.TimelineMessage{})
		s.OnMessageDeleted(context.Background(), "s1", "b1", "m1")
		s.OnFork(context.Background(), "s1", "b1", "b2", 3)
	})
}
