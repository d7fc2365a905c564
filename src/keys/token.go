package keys

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

// CLI bearer tokens use HKDF-SHA256 key derivation throughout. This is a
// separate primitive from the hash-derived sealed box used by the hierarchy
// and the two must not be mixed.
const (
	// TokenPrefix starts every CLI token.
	TokenPrefix = "envie_"
	// TokenBytes is the amount of randomness behind a token.
	TokenBytes = 32
	// TokenPrefixLength is how much of the encoded token is kept for display.
	TokenPrefixLength = 3

	identityIDSize = 16

	infoIdentityID = "envie-identity-id"
	infoPrivateKey = "envie-private-key"
	infoEncrypt    = "envie-encrypt"
)

// TokenIdentity is everything derived from a CLI token.
type TokenIdentity struct {
	Token string
	// Prefix is the first characters after TokenPrefix, safe to show in listings.
	Prefix string
	// IdentityID is sent by the CLI in the X-CLI-Identity header.
	IdentityID string
	// IdentityIDHash is the only token-derived value the server stores.
	IdentityIDHash string
	PrivateKey     []byte
	PublicKey      []byte
}

// GenerateToken creates a new random CLI token and its derived identity.
func GenerateToken() (*TokenIdentity, error) {
	raw := make([]byte, TokenBytes)
	if _, err := io.ReadFull(rand.Reader, raw); err != nil {
		return nil, fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return deriveTokenIdentity(raw)
}

// ParseToken validates a CLI token string and re-derives its identity.
func ParseToken(token string) (*TokenIdentity, error) {
	if !strings.HasPrefix(token, TokenPrefix) {
		return nil, fmt.Errorf("%w: must start with %q", ErrInvalidToken, TokenPrefix)
	}

	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(token, TokenPrefix))
	if err != nil {
		return nil, fmt.Errorf("%w: bad encoding: %v", ErrInvalidToken, err)
	}
	if len(raw) != TokenBytes {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidToken, TokenBytes, len(raw))
	}

	return deriveTokenIdentity(raw)
}

func deriveTokenIdentity(raw []byte) (*TokenIdentity, error) {
	idBytes, err := hkdfDerive(raw, infoIdentityID, identityIDSize)
	if err != nil {
		return nil, fmt.Errorf("failed to derive identity ID: %w", err)
	}

	priv, err := hkdfDerive(raw, infoPrivateKey, curve25519.ScalarSize)
	if err != nil {
		return nil, fmt.Errorf("failed to derive private key: %w", err)
	}
	pub, err := curve25519.X25519(priv, curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("failed to derive public key: %w", err)
	}

	encoded := base64.RawURLEncoding.EncodeToString(raw)
	sum := sha256.Sum256(idBytes)

	return &TokenIdentity{
		Token:          TokenPrefix + encoded,
		Prefix:         encoded[:TokenPrefixLength],
		IdentityID:     hex.EncodeToString(idBytes),
		IdentityIDHash: hex.EncodeToString(sum[:]),
		PrivateKey:     priv,
		PublicKey:      pub,
	}, nil
}

// HashIdentityID maps the hex identity ID presented by a CLI to the value
// stored server-side.
func HashIdentityID(identityID string) (string, error) {
	idBytes, err := hex.DecodeString(identityID)
	if err != nil || len(idBytes) != identityIDSize {
		return "", fmt.Errorf("%w: identity ID must be %d hex-encoded bytes", ErrInvalidToken, identityIDSize)
	}
	sum := sha256.Sum256(idBytes)
	return hex.EncodeToString(sum[:]), nil
}

// SealToToken encrypts payload (normally a project key) to a token's public
// key using X25519 + HKDF + AES-GCM. Layout matches SealTo.
func SealToToken(tokenPub, payload []byte) ([]byte, error) {
	if len(tokenPub) != PublicKeySize {
		return nil, fmt.Errorf("%w: public key must be %d bytes, got %d", ErrInvalidKeyLength, PublicKeySize, len(tokenPub))
	}

	eph, err := GenerateIdentity()
	if err != nil {
		return nil, err
	}
	key, err := hkdfSharedKey(eph.PrivateKey, tokenPub)
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

// OpenForToken decrypts a SealToToken blob with the token's derived private key.
func OpenForToken(tokenPriv, blob []byte) ([]byte, error) {
	if len(blob) < SealedOverhead {
		return nil, fmt.Errorf("%w: %d bytes", ErrDataTooShort, len(blob))
	}
	key, err := hkdfSharedKey(tokenPriv, blob[:PublicKeySize])
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return DecryptSymmetric(key, blob[PublicKeySize:])
}

func hkdfSharedKey(priv, peerPub []byte) ([]byte, error) {
	shared, err := curve25519.X25519(priv, peerPub)
	if err != nil {
		return nil, fmt.Errorf("X25519 key exchange failed: %w", err)
	}
	return hkdfDerive(shared, infoEncrypt, KeySize)
}

func hkdfDerive(secret []byte, info string, length int) ([]byte, error) {
	reader := hkdf.New(sha256.New, secret, nil, []byte(info))
	out := make([]byte, length)
	if _, err := io.ReadFull(reader, out); err != nil {
		return nil, err
	}
	return out, nil
}
