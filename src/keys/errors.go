package keys

import "errors"

// Cryptographic failures are local decisions (wrong key, corrupted blob) and
// are never retried.
var (
	// ErrInvalidKeyLength indicates a symmetric or X25519 key is not 32 bytes
	ErrInvalidKeyLength = errors.New("invalid key length")

	// ErrDecryptionFailed indicates an authentication tag mismatch or an unusable peer key
	ErrDecryptionFailed = errors.New("decryption failed")

	// ErrCiphertextTooShort indicates a symmetric blob shorter than its nonce
	ErrCiphertextTooShort = errors.New("ciphertext too short")

	// ErrDataTooShort indicates a sealed blob shorter than ephemeral key + nonce
	ErrDataTooShort = errors.New("sealed data too short")

	// ErrKeyUnavailable indicates a project key could not be reached through the hierarchy
	ErrKeyUnavailable = errors.New("key unavailable")

	// ErrMalformedBlob indicates a wire blob is not valid base64 or is structurally impossible
	ErrMalformedBlob = errors.New("malformed encrypted blob")

	// ErrInvalidToken indicates a CLI token or identity ID that cannot be parsed
	ErrInvalidToken = errors.New("invalid token")

	// ErrInvalidMnemonic indicates a recovery phrase with too few words
	ErrInvalidMnemonic = errors.New("invalid recovery phrase")
)
