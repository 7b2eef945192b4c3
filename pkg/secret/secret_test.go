package secret

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealOpenRoundTrip(t *testing.T) {
	k, err := NewKeyer("super-secret-passphrase")
	require.NoError(t, err)

	box, err := k.Seal(NewValue("sk-test-abc123"))
	require.NoError(t, err)
	assert.NotEmpty(t, box)

	opened, err := k.Open(box)
	require.NoError(t, err)
	assert.Equal(t, "sk-test-abc123", opened.Expose())
}

func TestSealEmptyValueProducesEmptyBox(t *testing.T) {
	k, err := NewKeyer("super-secret-passphrase")
	require.NoError(t, err)

	box, err := k.Seal(NewValue(""))
	require.NoError(t, err)
	assert.Empty(t, box)

	opened, err := k.Open(box)
	require.NoError(t, err)
	assert.True(t, opened.Empty())
}

func TestOpenWrongKeyFails(t *testing.T) {
	k1, _ := NewKeyer("passphrase-one")
	k2, _ := NewKeyer("passphrase-two")

	box, err := k1.Seal(NewValue("sk-test-abc123"))
	require.NoError(t, err)

	_, err = k2.Open(box)
	assert.ErrorIs(t, err, ErrDecryptFailed)
}

func TestNewKeyerRejectsEmptyPassphrase(t *testing.T) {
	_, err := NewKeyer("")
	assert.ErrorIs(t, err, ErrEmptyAppSecret)
}

func TestValueStringPanics(t *testing.T) {
	v := NewValue("sk-test-abc123")
	assert.Panics(t, func() {
		_ = v.String()
	})
}
