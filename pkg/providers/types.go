// Package providers implements the polymorphic LLM provider adapter set
// {openai, deepseek, ollama, gemini, mock}, grounded in this codebase's
// hand-rolled net/http provider clients rather than a single vendor SDK,
// since no one dependency in this codebase's ecosystem speaks all four
// wire protocols uniformly.
package providers

import "context"

// Message is one role-tagged entry of the provider-neutral message list
// produced by the Prompt Builder.
type Message struct {
	Role    string // "system" | "user"
	Content string
}

// ResponseFormat selects whether the provider should be asked to return
// strict JSON or free text.
type ResponseFormat string

// Recognized response formats.
const (
	FormatJSON ResponseFormat = "json"
	FormatText ResponseFormat = "text"
)

// GenerateOptions are the tunables passed through to generate (§4.2).
type GenerateOptions struct {
	MaxOutputChars int
	Temperature    float64
	ResponseFormat ResponseFormat
	Stop           []string
}

// GenerateResult is the outcome of one non-streaming generate call.
type GenerateResult struct {
	Text     string
	TokenIn  *int
	TokenOut *int
	Raw      string // the raw response body, retained for debugging only
}

// Config is the per-call configuration passed to every ListModels and
// Generate call. Adapters hold no hidden global state.
type Config struct {
	BaseURL   string
	APIKey    string // plaintext; caller decrypts immediately before use and never logs it
	ModelName string
	Extra     map[string]any
}

// Provider is the capability {list_models, generate} every variant
// implements. Adapters are stateless per call (§5 shared-resource policy).
type Provider interface {
	// ListModels returns chat-capable model identifiers. Timeout: 30s,
	// applied to ctx by each HTTP adapter.
	ListModels(ctx context.Context, cfg Config) ([]string, error)
	// Generate sends messages and returns the model's completion.
	// Timeout: 90s, applied to ctx by each HTTP adapter.
	Generate(ctx context.Context, cfg Config, messages []Message, opts GenerateOptions) (*GenerateResult, error)
}
