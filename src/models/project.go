package models

import (
	"time"

	"github.com/google/uuid"
)

// Project owns a set of config items encrypted under one project key
type Project struct {
	ID             uuid.UUID `json:"id"`
	OrganizationID uuid.UUID `json:"organizationId"`
	Name           string    `json:"name"`
	KeyVersion     int       `json:"keyVersion"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// ConfigItem is one environment variable; Value is ciphertext under the project key
type ConfigItem struct {
	ID        uuid.UUID `json:"id"`
	ProjectID uuid.UUID `json:"projectId"`
	Name      string    `json:"name"`
	Value     string    `json:"value"`
	Position  int       `json:"position"`
	Category  *string   `json:"category,omitempty"`
	Sensitive bool      `json:"sensitive"`
}

// FileFEK is a project file's wrapped file encryption key
type FileFEK struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	EncryptedFEK string    `json:"encryptedFek"`
}

// ProjectState is the live protected state of a project, read inside the
// transaction that validates or commits a rotation
type ProjectState struct {
	ConfigItems            []ConfigItem
	TeamIDs                []uuid.UUID
	SecretManagerConfigIDs []uuid.UUID
	FileIDs                []uuid.UUID
}

// ProjectConfig is the client's view of current ciphertexts
type ProjectConfig struct {
	ProjectID  uuid.UUID    `json:"projectId"`
	KeyVersion int          `json:"keyVersion"`
	Items      []ConfigItem `json:"items"`
}

// TeamKeyMaterial is a team with project access and its org-wrapped team key
type TeamKeyMaterial struct {
	TeamID              uuid.UUID `json:"teamId"`
	Name                string    `json:"name"`
	EncryptedKey        string    `json:"encryptedKey"`
	EncryptedProjectKey string    `json:"encryptedProjectKey"`
}

// KeyMaterial is every wrap a caller needs to reach the project key client-side.
// EncryptedTeamKey is set for team members; EncryptedOrganizationKey for org admins.
type KeyMaterial struct {
	ProjectID                uuid.UUID         `json:"projectId"`
	KeyVersion               int               `json:"keyVersion"`
	TeamID                   *uuid.UUID        `json:"teamId,omitempty"`
	EncryptedTeamKey         string            `json:"encryptedTeamKey,omitempty"`
	EncryptedOrganizationKey string            `json:"encryptedOrganizationKey,omitempty"`
	EncryptedProjectKey      string            `json:"encryptedProjectKey"`
	Teams                    []TeamKeyMaterial `json:"teams"`
}
