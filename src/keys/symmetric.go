package keys

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"
)

const (
	// KeySize is the length of every symmetric key in the hierarchy (AES-256).
	KeySize = 32
	// NonceSize is the AES-GCM nonce length prepended to every symmetric blob.
	NonceSize = 12
	// TagSize is the AES-GCM authentication tag length.
	TagSize = 16
)

// Encryptor provides AES-256-GCM encryption under a single key.
// Blobs are laid out as nonce (12) || ciphertext || tag.
type Encryptor struct {
	gcm cipher.AEAD
}

// NewEncryptor creates an Encryptor from a raw 32-byte key.
func NewEncryptor(key []byte) (*Encryptor, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: must be %d bytes, got %d", ErrInvalidKeyLength, KeySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &Encryptor{gcm: gcm}, nil
}

// Encrypt seals plaintext under a fresh random nonce.
func (e *Encryptor) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	// Seal appends ciphertext+tag to nonce
	return e.gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens a nonce || ciphertext blob. Unlike a pass-through store
// encryptor, any failure is reported: a wrong key must never yield bytes.
func (e *Encryptor) Decrypt(blob []byte) ([]byte, error) {
	if len(blob) < NonceSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrCiphertextTooShort, len(blob))
	}

	nonce, sealed := blob[:NonceSize], blob[NonceSize:]
	plaintext, err := e.gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}

	return plaintext, nil
}

// EncryptSymmetric encrypts plaintext under key.
func EncryptSymmetric(key, plaintext []byte) ([]byte, error) {
	enc, err := NewEncryptor(key)
	if err != nil {
		return nil, err
	}
	return enc.Encrypt(plaintext)
}

// DecryptSymmetric decrypts a blob produced by EncryptSymmetric.
func DecryptSymmetric(key, blob []byte) ([]byte, error) {
	enc, err := NewEncryptor(key)
	if err != nil {
		return nil, err
	}
	return enc.Decrypt(blob)
}

// GenerateKey returns a fresh random 256-bit symmetric key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return key, nil
}
