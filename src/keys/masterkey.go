package keys

import (
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	minMnemonicWords   = 12
	mnemonicIterations = 2048
	mnemonicSeedSize   = 64
)

// DeriveMasterKey turns a recovery phrase into the user's 256-bit master key:
// a BIP39-style PBKDF2 seed, hashed down with SHA-256.
func DeriveMasterKey(mnemonic, passphrase string) ([]byte, error) {
	words := strings.Fields(mnemonic)
	if len(words) < minMnemonicWords {
		return nil, fmt.Errorf("%w: need at least %d words, got %d", ErrInvalidMnemonic, minMnemonicWords, len(words))
	}

	normalized := strings.Join(words, " ")
	seed := pbkdf2.Key([]byte(normalized), []byte("mnemonic"+passphrase), mnemonicIterations, mnemonicSeedSize, sha512.New)
	key := sha256.Sum256(seed)
	return key[:], nil
}

// WrapMasterKeyForDevice seals the master key to a newly approved device.
func WrapMasterKeyForDevice(masterKey, devicePub []byte) ([]byte, error) {
	if len(masterKey) != KeySize {
		return nil, fmt.Errorf("%w: master key must be %d bytes, got %d", ErrInvalidKeyLength, KeySize, len(masterKey))
	}
	return SealTo(devicePub, masterKey)
}

// UnwrapMasterKey opens a device's copy of the master key.
func UnwrapMasterKey(devicePriv, blob []byte) ([]byte, error) {
	key, err := OpenSealed(devicePriv, blob)
	if err != nil {
		return nil, err
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: unwrapped master key has %d bytes", ErrInvalidKeyLength, len(key))
	}
	return key, nil
}
