package services

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"slices"
	"sort"

	"github.com/envie/envie-server/src/models"
	"github.com/google/uuid"
)

func sortedIDStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	sort.Strings(out)
	return out
}

func configItemIDs(items []models.ConfigItem) []uuid.UUID {
	ids := make([]uuid.UUID, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	return ids
}

// hashConfigItems digests id, value and name of every item ordered by ID.
// Each field is length-prefixed so shifting bytes between value and name
// changes the digest.
func hashConfigItems(items []models.ConfigItem) string {
	sorted := slices.Clone(items)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].ID.String() < sorted[j].ID.String()
	})

	h := sha256.New()
	var size [8]byte
	for _, it := range sorted {
		for _, field := range []string{it.ID.String(), it.Value, it.Name} {
			binary.BigEndian.PutUint64(size[:], uint64(len(field)))
			h.Write(size[:])
			h.Write([]byte(field))
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

func takeSnapshot(state *models.ProjectState) models.RotationSnapshot {
	return models.RotationSnapshot{
		ConfigItemIDs:          sortedIDStrings(configItemIDs(state.ConfigItems)),
		TeamIDs:                sortedIDStrings(state.TeamIDs),
		SecretManagerConfigIDs: sortedIDStrings(state.SecretManagerConfigIDs),
		ConfigItemsHash:        hashConfigItems(state.ConfigItems),
	}
}

// staleReason returns the first difference between snap and the live state,
// or "" when the rotation still applies
func staleReason(snap models.RotationSnapshot, state *models.ProjectState) string {
	current := takeSnapshot(state)
	switch {
	case !slices.Equal(snap.ConfigItemIDs, current.ConfigItemIDs):
		return models.StaleConfigItems
	case !slices.Equal(snap.TeamIDs, current.TeamIDs):
		return models.StaleTeams
	case !slices.Equal(snap.SecretManagerConfigIDs, current.SecretManagerConfigIDs):
		return models.StaleSecretManagerConfigs
	case snap.ConfigItemsHash != current.ConfigItemsHash:
		return models.StaleConfigValues
	}
	return ""
}
