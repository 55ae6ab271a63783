// Package secrets seals model API keys before they reach the database.
// Sealed values are self-describing strings, so a database written without a
// keyring (plaintext keys) keeps working after one is configured.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
)

// tokenPrefix marks a sealed value. Format:
// enc:v1:<key id>:<base64 nonce>:<base64 ciphertext>
const tokenPrefix = "enc:v1:"

type Keyring struct {
	currentKeyID string
	keys         map[string][]byte
}

func NewKeyring(currentKeyID string, keys map[string][]byte) (*Keyring, error) {
	if currentKeyID == "" {
		return nil, fmt.Errorf("current key id is empty")
	}
	if _, ok := keys[currentKeyID]; !ok {
		return nil, fmt.Errorf("current key id %q not found", currentKeyID)
	}
	cp := make(map[string][]byte, len(keys))
	for id, key := range keys {
		if len(key) != 32 {
			return nil, fmt.Errorf("key %q must be 32 bytes", id)
		}
		buf := make([]byte, len(key))
		copy(buf, key)
		cp[id] = buf
	}
	return &Keyring{currentKeyID: currentKeyID, keys: cp}, nil
}

// IsSealed reports whether a stored value carries the sealed-token prefix.
func IsSealed(value string) bool {
	return strings.HasPrefix(value, tokenPrefix)
}

// Seal encrypts plaintext under the current key. Empty input stays empty so
// absent API keys round-trip without a token.
func (k *Keyring) Seal(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	aead, err := newAEAD(k.keys[k.currentKeyID])
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("nonce: %w", err)
	}
	ct := aead.Seal(nil, nonce, []byte(plaintext), []byte(k.currentKeyID))
	return tokenPrefix + k.currentKeyID + ":" +
		base64.RawStdEncoding.EncodeToString(nonce) + ":" +
		base64.RawStdEncoding.EncodeToString(ct), nil
}

// Open decrypts a sealed token. Values without the token prefix are returned
// unchanged; they predate the keyring.
func (k *Keyring) Open(value string) (string, error) {
	if !IsSealed(value) {
		return value, nil
	}
	rest := strings.TrimPrefix(value, tokenPrefix)
	parts := strings.SplitN(rest, ":", 3)
	if len(parts) != 3 {
		return "", fmt.Errorf("malformed sealed value")
	}
	keyID := parts[0]
	key, ok := k.keys[keyID]
	if !ok {
		return "", fmt.Errorf("unknown key id %q", keyID)
	}
	nonce, err := base64.RawStdEncoding.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("decode nonce: %w", err)
	}
	ct, err := base64.RawStdEncoding.DecodeString(parts[2])
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}
	aead, err := newAEAD(key)
	if err != nil {
		return "", err
	}
	pt, err := aead.Open(nil, nonce, ct, []byte(keyID))
	if err != nil {
		return "", fmt.Errorf("open sealed value: %w", err)
	}
	return string(pt), nil
}

// Reseal re-encrypts a value under the current key, used when rotating the
// active master key.
func (k *Keyring) Reseal(value string) (string, error) {
	plain, err := k.Open(value)
	if err != nil {
		return "", err
	}
	return k.Seal(plain)
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}
	return aead, nil
}
