package settings

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltSize   = 16
	keySize    = 32 // AES-256
	iterations = 100000

	// defaultPassphrase only obfuscates local files; deployments set SETTINGS_PASSPHRASE
	defaultPassphrase = "voicedesk-local-keys"
)

var (
	// ErrCiphertextTooShort is returned for data that cannot hold a salt and nonce
	ErrCiphertextTooShort = errors.New("ciphertext too short")
	// ErrDecryptFailed is returned when authentication of the ciphertext fails
	ErrDecryptFailed = errors.New("decryption failed: invalid passphrase or corrupted data")
)

// Crypto encrypts provider secrets and key snapshots at rest.
// Each message gets its own salt, so the derived AES key differs per message.
type Crypto struct {
	passphrase string
}

// NewCrypto creates a new Crypto instance, falling back to the built-in passphrase
func NewCrypto(passphrase string) (*Crypto, error) {
	if passphrase == "" {
		passphrase = defaultPassphrase
	}
	return &Crypto{passphrase: passphrase}, nil
}

// aead derives the AES-GCM cipher for a salt
func (c *Crypto) aead(salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(c.passphrase), salt, iterations, keySize, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Encrypt seals plaintext as salt || nonce || ciphertext
func (c *Crypto) Encrypt(plaintext []byte) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, err
	}

	gcm, err := c.aead(salt)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	out := make([]byte, 0, saltSize+len(nonce)+len(plaintext)+gcm.Overhead())
	out = append(out, salt...)
	out = append(out, nonce...)
	return gcm.Seal(out, nonce, plaintext, nil), nil
}

// Decrypt opens data produced by Encrypt
func (c *Crypto) Decrypt(data []byte) ([]byte, error) {
	if len(data) < saltSize {
		return nil, ErrCiphertextTooShort
	}

	gcm, err := c.aead(data[:saltSize])
	if err != nil {
		return nil, err
	}

	rest := data[saltSize:]
	if len(rest) < gcm.NonceSize() {
		return nil, ErrCiphertextTooShort
	}

	plaintext, err := gcm.Open(nil, rest[:gcm.NonceSize()], rest[gcm.NonceSize():], nil)
	if err != nil {
		return nil, ErrDecryptFailed
	}

	return plaintext, nil
}

// EncryptString encrypts a single secret
func (c *Crypto) EncryptString(secret string) ([]byte, error) {
	return c.Encrypt([]byte(secret))
}

// DecryptString decrypts a single secret
func (c *Crypto) DecryptString(data []byte) (string, error) {
	plaintext, err := c.Decrypt(data)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}
