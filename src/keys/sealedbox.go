package keys

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/curve25519"
)

// PublicKeySize is the length of an X25519 public or private key.
const PublicKeySize = 32

// SealedOverhead is the fixed prefix of a sealed blob: ephemeral key and nonce.
const SealedOverhead = PublicKeySize + NonceSize

// Identity is an X25519 keypair. The private half never leaves the device
// that generated it.
type Identity struct {
	PrivateKey []byte
	PublicKey  []byte
}

// GenerateIdentity creates a new random X25519 keypair.
func GenerateIdentity() (*Identity, error) {
	priv := make([]byte, curve25519.ScalarSize)
	if _, err := io.ReadFull(rand.Reader, priv); err != nil {
		return nil, fmt.Errorf("failed to generate private key: %w", err)
	}
	return IdentityFromPrivateKey(priv)
}

// IdentityFromPrivateKey recomputes the public half of a keypair.
func IdentityFromPrivateKey(priv []byte) (*Identity, error) {
	if len(priv) != curve25519.ScalarSize {
		return nil, fmt.Errorf("%w: private key must be %d bytes, got %d", ErrInvalidKeyLength, curve25519.ScalarSize, len(priv))
	}
	pub, err := curve25519.X25519(priv, curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("failed to derive public key: %w", err)
	}
	return &Identity{PrivateKey: priv, PublicKey: pub}, nil
}

// SealTo encrypts payload for the holder of recipientPub.
//
// An ephemeral keypair is generated per call; the AES key is SHA-256 of the
// X25519 shared secret. Output: ephemeralPub (32) || nonce (12) || ciphertext.
// This is the primitive used throughout the organization/team/project
// hierarchy and for device master-key approval. CLI tokens use SealToToken.
func SealTo(recipientPub, payload []byte) ([]byte, error) {
	if len(recipientPub) != PublicKeySize {
		return nil, fmt.Errorf("%w: public key must be %d bytes, got %d", ErrInvalidKeyLength, PublicKeySize, len(recipientPub))
	}

	eph, err := GenerateIdentity()
	if err != nil {
		return nil, err
	}

	key, err := hashedSharedKey(eph.PrivateKey, recipientPub)
	if err != nil {
		return nil, err
	}

	sealed, err := EncryptSymmetric(key, payload)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, PublicKeySize+len(sealed))
	out = append(out, eph.PublicKey...)
	return append(out, sealed...), nil
}

// OpenSealed decrypts a blob produced by SealTo with the recipient's private key.
func OpenSealed(recipientPriv, blob []byte) ([]byte, error) {
	if len(blob) < SealedOverhead {
		return nil, fmt.Errorf("%w: %d bytes", ErrDataTooShort, len(blob))
	}
	if len(recipientPriv) != curve25519.ScalarSize {
		return nil, fmt.Errorf("%w: private key must be %d bytes, got %d", ErrInvalidKeyLength, curve25519.ScalarSize, len(recipientPriv))
	}

	ephPub := blob[:PublicKeySize]
	// X25519 ignores the top bit, so a flipped bit there would otherwise go unnoticed
	if ephPub[PublicKeySize-1]&0x80 != 0 {
		return nil, ErrDecryptionFailed
	}

	key, err := hashedSharedKey(recipientPriv, ephPub)
	if err != nil {
		return nil, ErrDecryptionFailed
	}

	return DecryptSymmetric(key, blob[PublicKeySize:])
}

func hashedSharedKey(priv, peerPub []byte) ([]byte, error) {
	shared, err := curve25519.X25519(priv, peerPub)
	if err != nil {
		return nil, fmt.Errorf("X25519 key exchange failed: %w", err)
	}
	sum := sha256.Sum256(shared)
	return sum[:], nil
}
