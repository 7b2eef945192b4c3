package providers

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"strings"
	"sync/atomic"
)

// mockProvider is the deterministic "mock" variant required by §4.2 for
// tests: it never performs I/O, and its generated text is a pure function
// of the seed derived from the input messages, so tests using it can
// assert on exact prompt/response content.
type mockProvider struct {
	captured atomic.Pointer[[]Message]
}

// NewMock constructs the "mock" variant adapter.
func NewMock() Provider { return &mockProvider{} }

func (p *mockProvider) ListModels(ctx context.Context, cfg Config) ([]string, error) {
	return []string{"fixture-v1", "fixture-v2"}, nil
}

func (p *mockProvider) Generate(ctx context.Context, cfg Config, messages []Message, opts GenerateOptions) (*GenerateResult, error) {
	msgs := append([]Message(nil), messages...)
	p.captured.Store(&msgs)

	seed := seedFromMessages(messages)
	text := fmt.Sprintf(`{"title":"Round %d","time_advance":"one step","summary":"a quiet, uneventful period passes.","events":[],"risks":[]}`, seed%1000)

	in, out := len(messages), len(text)/4
	return &GenerateResult{Text: text, TokenIn: &in, TokenOut: &out, Raw: text}, nil
}

// LastPrompt returns the messages passed to the most recent Generate call,
// letting tests assert a consumed intervention's content reached the
// prompt (spec §8 scenario 2).
func (p *mockProvider) LastPrompt() []Message {
	ptr := p.captured.Load()
	if ptr == nil {
		return nil
	}
	return *ptr
}

func seedFromMessages(messages []Message) uint64 {
	var sb strings.Builder
	for _, m := range messages {
		sb.WriteString(m.Role)
		sb.WriteByte('\x00')
		sb.WriteString(m.Content)
		sb.WriteByte('\x00')
	}
	sum := sha256.Sum256([]byte(sb.String()))
	return binary.BigEndian.Uint64(sum[:8])
}

// flakyProvider wraps another Provider and fails the first N Generate
// calls with a TransientError before delegating to the wrapped provider.
// It exists purely to drive the retry/backoff scenario (§8 scenario 5) in
// tests; it is not one of the wire-protocol variants and is never selected
// by provider name.
type flakyProvider struct {
	inner      Provider
	remaining  atomic.Int64
}

// NewFlaky wraps inner so its first failures calls to Generate fail with a
// TransientError before delegating to inner.
func NewFlaky(inner Provider, failures int) Provider {
	f := &flakyProvider{inner: inner}
	f.remaining.Store(int64(failures))
	return f
}

func (f *flakyProvider) ListModels(ctx context.Context, cfg Config) ([]string, error) {
	return f.inner.ListModels(ctx, cfg)
}

func (f *flakyProvider) Generate(ctx context.Context, cfg Config, messages []Message, opts GenerateOptions) (*GenerateResult, error) {
	if f.remaining.Add(-1) >= 0 {
		return nil, &TransientError{Cause: fmt.Errorf("flaky provider: simulated transient failure")}
	}
	return f.inner.Generate(ctx, cfg, messages, opts)
}
