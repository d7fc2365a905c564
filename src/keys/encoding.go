package keys

import (
	"encoding/base64"
	"fmt"
)

// EncodeBlob renders a binary blob for JSON transport (standard base64).
func EncodeBlob(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// DecodeBlob parses a base64 wire blob.
func DecodeBlob(s string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBlob, err)
	}
	return b, nil
}

// ValidateSymmetricBlob checks that s could be an EncryptSymmetric output.
// It never decrypts; the server uses it to reject garbage it must store blind.
func ValidateSymmetricBlob(s string) error {
	b, err := DecodeBlob(s)
	if err != nil {
		return err
	}
	if len(b) < NonceSize+TagSize {
		return fmt.Errorf("%w: %d bytes is shorter than nonce and tag", ErrMalformedBlob, len(b))
	}
	return nil
}

// ValidateSealedBlob checks that s could be a SealTo or SealToToken output.
func ValidateSealedBlob(s string) error {
	b, err := DecodeBlob(s)
	if err != nil {
		return err
	}
	if len(b) < SealedOverhead+TagSize {
		return fmt.Errorf("%w: %d bytes is shorter than a sealed box", ErrMalformedBlob, len(b))
	}
	return nil
}
