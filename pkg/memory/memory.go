// Package memory defines the optional long-term-memory collaborator hook
// surface (§6.4) and a no-op default, grounded in this codebase's
// nil-guarded optional collaborators in pkg/api/server.go
// (healthMonitor, warningService — "may be nil" fields checked at every
// call site) generalized into an always-non-nil implementation so the
// Runner never special-cases "memory disabled".
package memory

import (
	"context"

	"github.com/codeready-toolchain/worldline/pkg/store"
)

// Collaborator is the hook surface a pluggable long-term-memory/RAG
// module implements (§6.4). It is an opaque external collaborator: the
// Runner calls through this interface and never inspects its internals.
type Collaborator interface {
	// RetrieveContext returns up to maxSnippets short strings, each at
	// most maxChars long, relevant to queryText on branchID. An empty
	// slice (with no error) is always a valid response.
	RetrieveContext(ctx context.Context, sessionID, branchID, queryText string, maxSnippets, maxChars int) ([]string, error)

	// OnMessagePersisted notifies the collaborator that a new message
	// was appended, so it may index it asynchronously.
	OnMessagePersisted(ctx context.Context, sessionID, branchID string, message store.TimelineMessage)

	// OnMessageDeleted notifies the collaborator that a message was
	// removed (via delete_last_message), invalidating any memory items
	// that referenced it (§4.1 "tie-breaking and edge cases").
	OnMessageDeleted(ctx context.Context, sessionID, branchID, messageID string)

	// OnFork notifies the collaborator that newBranchID was forked from
	// sourceBranchID at cutSeq, so memory items with seq<=cutSeq can be
	// carried forward onto the new branch.
	OnFork(ctx context.Context, sessionID, sourceBranchID, newBranchID string, cutSeq int)
}

// noop is the MEMORY_MODE=off default: every call is a cheap, always-
// successful no-op. It never special-cases "no collaborator configured"
// because it IS the always-present stand-in for that case.
type noop struct{}

// NewNoop constructs the no-op Collaborator used when MEMORY_MODE=off.
func NewNoop() Collaborator { return noop{} }

func (noop) RetrieveContext(ctx context.Context, sessionID, branchID, queryText string, maxSnippets, maxChars int) ([]string, error) {
	return nil, nil
}

func (noop) OnMessagePersisted(ctx context.Context, sessionID, branchID string, message store.TimelineMessage) {
}

func (noop) OnMessageDeleted(ctx context.Context, sessionID, branchID, messageID string) {}

func (noop) OnFork(ctx context.Context, sessionID, sourceBranchID, newBranchID string, cutSeq int) {}
