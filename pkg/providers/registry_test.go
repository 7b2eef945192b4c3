package providers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/worldline/pkg/config"
)

func TestRegistryResolvesAllRequiredVariants(t *testing.T) {
	r := NewRegistry()
	for _, name := range []config.ProviderType{
		config.ProviderOpenAI, config.ProviderDeepSeek, config.ProviderOllama,
		config.ProviderGemini, config.ProviderMock,
	} {
		p, err := r.Resolve(name)
		require.NoError(t, err)
		assert.NotNil(t, p)
	}
}

func TestRegistryResolveUnknownProvider(t *testing.T) {
	r := NewRegistry()
	_, err := r.Resolve(config.ProviderType("carrier-pigeon"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestRegistryRegisterOverridesForTests(t *testing.T) {
	r := NewRegistry()
	flaky := NewFlaky(NewMock(), 3)
	r.Register(config.ProviderMock, flaky)
	p, err := r.Resolve(config.ProviderMock)
	require.NoError(t, err)
	assert.Same(t, flaky, p)
}
