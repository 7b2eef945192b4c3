package providers

import (
	"fmt"
	"sync"

	"github.com/codeready-toolchain/worldline/pkg/config"
)

// Registry resolves a config.ProviderType to its variant adapter,
// grounded on goclaw's cmd/gateway_providers.go registration pattern
// (register-by-name into a shared registry), generalized from runtime
// API-key-gated registration to this system's fixed {openai, deepseek,
// ollama, gemini, mock} variant set (§4.2), since every variant is
// always constructible here — the per-session ProviderConfig supplies
// the key, not process startup.
type Registry struct {
	mu        sync.RWMutex
	providers map[config.ProviderType]Provider
}

// NewRegistry constructs a Registry pre-populated with the five required
// variants. Dynamic provider switching (§6.1 "provider/set") only ever
// needs to change which entry a session's ProviderConfig names — the
// adapters themselves are stateless and shared (§4.2).
func NewRegistry() *Registry {
	r := &Registry{providers: make(map[config.ProviderType]Provider)}
	r.Register(config.ProviderOpenAI, NewOpenAI())
	r.Register(config.ProviderDeepSeek, NewDeepSeek())
	r.Register(config.ProviderOllama, NewOllama())
	r.Register(config.ProviderGemini, NewGemini())
	r.Register(config.ProviderMock, NewMock())
	return r
}

// Register installs or replaces the adapter for name. Exposed so tests
// can swap in a flaky/mock provider without reconstructing the registry.
func (r *Registry) Register(name config.ProviderType, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = p
}

// Resolve returns the adapter for name, or ErrUnknownProvider.
func (r *Registry) Resolve(name config.ProviderType) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	return p, nil
}
