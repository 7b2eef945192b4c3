package memory

import (
	"context"
	"log/slog"

	"github.com/codeready-toolchain/worldline/pkg/store"
)

// Safe wraps a Collaborator so that any failure it returns is logged and
// swallowed rather than propagated into the Runner's round (§6.4: "Failures
// from this collaborator MUST NOT abort a round... the round proceeds
// with empty snippets").
type Safe struct {
	inner Collaborator
}

// NewSafe wraps inner. The Runner is constructed with a Safe, never a raw
// Collaborator, so call sites never need their own try/catch around it.
func NewSafe(inner Collaborator) *Safe {
	return &Safe{inner: inner}
}

// RetrieveContext returns inner's snippets, or an empty slice if inner
// errored. The error is logged, never returned.
func (s *Safe) RetrieveContext(ctx context.Context, sessionID, branchID, queryText string, maxSnippets, maxChars int) []string {
	snippets, err := s.inner.RetrieveContext(ctx, sessionID, branchID, queryText, maxSnippets, maxChars)
	if err != nil {
		slog.Warn("memory collaborator retrieve_context failed, proceeding with empty snippets",
			"session_id", sessionID, "branch_id", branchID, "error", err)
		return nil
	}
	return snippets
}

// OnMessagePersisted notifies inner, recovering from any panic so an
// unreliable collaborator can never take down a round.
func (s *Safe) OnMessagePersisted(ctx context.Context, sessionID, branchID string, message store.TimelineMessage) {
	defer s.recoverAndLog("on_message_persisted", sessionID)
	s.inner.OnMessagePersisted(ctx, sessionID, branchID, message)
}

// OnMessageDeleted notifies inner, recovering from any panic.
func (s *Safe) OnMessageDeleted(ctx context.Context, sessionID, branchID, messageID string) {
	defer s.recoverAndLog("on_message_deleted", sessionID)
	s.inner.OnMessageDeleted(ctx, sessionID, branchID, messageID)
}

// OnFork notifies inner, recovering from any panic.
func (s *Safe) OnFork(ctx context.Context, sessionID, sourceBranchID, newBranchID string, cutSeq int) {
	defer s.recoverAndLog("on_fork", sessionID)
	s.inner.OnFork(ctx, sessionID, sourceBranchID, newBranchID, cutSeq)
}

func (s *Safe) recoverAndLog(hook, sessionID string) {
	if r := recover(); r != nil {
		slog.Error("memory collaborator hook panicked, ignoring",
			"hook", hook, "session_id", sessionID, "recovered", r)
	}
}
