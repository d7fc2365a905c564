package keys

import (
	"fmt"
	"sort"
)

// SealedItem is an identified ciphertext: a config value, a wrapped FEK or
// a team's wrapped project key.
type SealedItem struct {
	ID   string
	Blob []byte
}

// RotationInput is the client-side state needed to rotate a project key.
type RotationInput struct {
	CurrentProjectKey []byte
	ConfigValues      []SealedItem
	FileFEKs          []SealedItem
	// TeamKeys maps team ID to plaintext team key for every team with access.
	TeamKeys map[string][]byte
}

// RotationBundle is the re-encrypted material submitted to the server.
type RotationBundle struct {
	NewProjectKey []byte
	ConfigValues  []SealedItem
	FileFEKs      []SealedItem
	TeamWraps     []SealedItem
}

// BuildRotation generates a new project key and re-encrypts everything the
// old key protected. It runs wherever the current project key is available;
// the server only ever sees the resulting ciphertexts.
func BuildRotation(in RotationInput) (*RotationBundle, error) {
	oldEnc, err := NewEncryptor(in.CurrentProjectKey)
	if err != nil {
		return nil, fmt.Errorf("current project key: %w", err)
	}

	newKey, err := GenerateKey()
	if err != nil {
		return nil, err
	}
	newEnc, err := NewEncryptor(newKey)
	if err != nil {
		return nil, err
	}

	values, err := reencrypt(oldEnc, newEnc, in.ConfigValues, "config item")
	if err != nil {
		return nil, err
	}
	feks, err := reencrypt(oldEnc, newEnc, in.FileFEKs, "file")
	if err != nil {
		return nil, err
	}

	teamIDs := make([]string, 0, len(in.TeamKeys))
	for id := range in.TeamKeys {
		teamIDs = append(teamIDs, id)
	}
	sort.Strings(teamIDs)

	wraps := make([]SealedItem, 0, len(teamIDs))
	for _, id := range teamIDs {
		wrapped, err := EncryptSymmetric(in.TeamKeys[id], newKey)
		if err != nil {
			return nil, fmt.Errorf("wrapping project key for team %s: %w", id, err)
		}
		wraps = append(wraps, SealedItem{ID: id, Blob: wrapped})
	}

	return &RotationBundle{
		NewProjectKey: newKey,
		ConfigValues:  values,
		FileFEKs:      feks,
		TeamWraps:     wraps,
	}, nil
}

func reencrypt(oldEnc, newEnc *Encryptor, items []SealedItem, kind string) ([]SealedItem, error) {
	out := make([]SealedItem, 0, len(items))
	for _, item := range items {
		plaintext, err := oldEnc.Decrypt(item.Blob)
		if err != nil {
			return nil, fmt.Errorf("re-encrypting %s %s: %w", kind, item.ID, err)
		}
		sealed, err := newEnc.Encrypt(plaintext)
		if err != nil {
			return nil, fmt.Errorf("re-encrypting %s %s: %w", kind, item.ID, err)
		}
		out = append(out, SealedItem{ID: item.ID, Blob: sealed})
	}
	return out, nil
}
