// Package vault stores genomic payloads encrypted at rest. Plaintext never
// touches the vault directory; each payload is sealed with XChaCha20-Poly1305
// under a key derived from the configured secret.
package vault

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/chacha20poly1305"
)

// ErrNotFound is returned when the referenced ciphertext does not exist.
var ErrNotFound = errors.New("vault: payload not found")

// Vault seals payloads into a directory and opens them again by reference.
type Vault struct {
	dir string
	key [chacha20poly1305.KeySize]byte
}

// New creates a vault rooted at dir. The secret may be any non-empty string;
// it is stretched to the cipher key size with SHA-256.
func New(dir, secret string) (*Vault, error) {
	if secret == "" {
		return nil, errors.New("vault: encryption secret is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create vault dir: %w", err)
	}
	v := &Vault{dir: dir}
	v.key = sha256.Sum256([]byte(secret))
	return v, nil
}

// Seal encrypts plaintext and writes it under the given name, returning the
// path of the ciphertext file.
func (v *Vault) Seal(name string, plaintext []byte) (string, error) {
	aead, err := chacha20poly1305.NewX(v.key[:])
	if err != nil {
		return "", fmt.Errorf("init cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, plaintext, nil)

	path := filepath.Join(v.dir, name+".enc")
	if err := os.WriteFile(path, sealed, 0o600); err != nil {
		return "", fmt.Errorf("write ciphertext: %w", err)
	}
	return path, nil
}

// Open reads the ciphertext at ref and returns the decrypted payload.
func (v *Vault) Open(ref string) ([]byte, error) {
	sealed, err := os.ReadFile(ref)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read ciphertext: %w", err)
	}

	aead, err := chacha20poly1305.NewX(v.key[:])
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	if len(sealed) < aead.NonceSize() {
		return nil, errors.New("vault: ciphertext truncated")
	}

	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt payload: %w", err)
	}
	return plaintext, nil
}
