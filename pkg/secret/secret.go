// Package secret wraps plaintext credentials so they cannot accidentally
// leak through logging, error messages, or JSON responses, and provides
// AEAD sealing for at-rest storage of provider API keys.
package secret

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
)

// ErrEmptyAppSecret is returned when APP_SECRET_KEY is missing or empty.
var ErrEmptyAppSecret = errors.New("secret: APP_SECRET_KEY must not be empty")

// ErrDecryptFailed is returned when a sealed box cannot be opened, either
// because the key is wrong or the ciphertext was tampered with.
var ErrDecryptFailed = errors.New("secret: decryption failed")

// Value wraps a plaintext secret in memory. Its String and Format methods
// panic instead of returning the plaintext. A direct call to String
// panics; the fmt package recovers a panic raised during formatting and
// prints a "%!v(PANIC=...)" marker in place of the value, so an accidental
// "%v" writes no key into a log line.
type Value struct {
	plain string
}

// NewValue wraps a plaintext string.
func NewValue(plain string) Value {
	return Value{plain: plain}
}

// Expose returns the plaintext. Callers must not pass the result to any
// logging or formatting call; use it only to build the outbound request.
func (v Value) Expose() string {
	return v.plain
}

// Empty reports whether the wrapped secret is the empty string.
func (v Value) Empty() bool {
	return v.plain == ""
}

// String panics. Values must never be formatted.
func (v Value) String() string {
	panic("secret.Value must not be formatted or logged")
}

// Format panics for every verb, including %v and %s, for the same reason.
func (v Value) Format(f fmt.State, verb rune) {
	panic("secret.Value must not be formatted or logged")
}

// Keyer derives a 32-byte AES-256 key from an operator-supplied passphrase.
// It is deterministic: the same passphrase always derives the same key, so
// ciphertext sealed by one process can be opened by another with the same
// APP_SECRET_KEY.
type Keyer struct {
	key [32]byte
}

// NewKeyer derives an AEAD key from the given passphrase. Returns
// ErrEmptyAppSecret if passphrase is empty.
func NewKeyer(passphrase string) (*Keyer, error) {
	if passphrase == "" {
		return nil, ErrEmptyAppSecret
	}
	return &Keyer{key: sha256.Sum256([]byte(passphrase))}, nil
}

// Seal encrypts plain under AES-256-GCM with a random nonce and returns
// nonce||ciphertext. An empty plaintext seals to an empty ciphertext (no
// key configured), matching invariant I5: api_key_encrypted is non-empty
// iff a key is configured.
func (k *Keyer) Seal(plain Value) ([]byte, error) {
	if plain.Empty() {
		return nil, nil
	}
	block, err := aes.NewCipher(k.key[:])
	if err != nil {
		return nil, fmt.Errorf("secret: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("secret: new gcm: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("secret: generate nonce: %w", err)
	}
	return gcm.Seal(nonce, nonce, []byte(plain.Expose()), nil), nil
}

// Open decrypts a box produced by Seal. An empty box opens to an empty
// Value without error (no key was ever configured).
func (k *Keyer) Open(box []byte) (Value, error) {
	if len(box) == 0 {
		return Value{}, nil
	}
	block, err := aes.NewCipher(k.key[:])
	if err != nil {
		return Value{}, fmt.Errorf("secret: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return Value{}, fmt.Errorf("secret: new gcm: %w", err)
	}
	if len(box) < gcm.NonceSize() {
		return Value{}, ErrDecryptFailed
	}
	nonce, ciphertext := box[:gcm.NonceSize()], box[gcm.NonceSize():]
	plain, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return Value{}, ErrDecryptFailed
	}
	return Value{plain: string(plain)}, nil
}
