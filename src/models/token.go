package models

import (
	"time"

	"github.com/google/uuid"
)

// ProjectToken is a CLI bearer token scoped to one project.
// The server keeps only the hash of the token's derived identity ID.
type ProjectToken struct {
	ID                  uuid.UUID  `json:"id"`
	ProjectID           uuid.UUID  `json:"projectId"`
	Name                string     `json:"name"`
	TokenPrefix         string     `json:"tokenPrefix"`
	IdentityIDHash      string     `json:"-"`
	EncryptedProjectKey string     `json:"-"`
	ExpiresAt           *time.Time `json:"expiresAt"`
	LastUsedAt          *time.Time `json:"lastUsedAt"`
	CreatedBy           uuid.UUID  `json:"createdBy"`
	CreatedAt           time.Time  `json:"createdAt"`
}

// IsExpired returns true once ExpiresAt has passed
func (t *ProjectToken) IsExpired(now time.Time) bool {
	return t.ExpiresAt != nil && now.After(*t.ExpiresAt)
}

// CreateProjectTokenRequest registers a token generated client-side
type CreateProjectTokenRequest struct {
	Name                string    `json:"name" binding:"required,min=1,max=255"`
	ExpiresAt           time.Time `json:"expiresAt" binding:"required"`
	TokenPrefix         string    `json:"tokenPrefix" binding:"required,len=3"`
	IdentityIDHash      string    `json:"identityIdHash" binding:"required,len=64,hexadecimal"`
	EncryptedProjectKey string    `json:"encryptedProjectKey" binding:"required"`
}

// CLIConfigItem is a config item as delivered to the CLI
type CLIConfigItem struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	EncryptedValue string    `json:"encryptedValue"`
	Position       int       `json:"position"`
	Category       *string   `json:"category,omitempty"`
}

// CLIProjectConfig is everything a CLI token holder needs to decrypt a project
type CLIProjectConfig struct {
	ProjectID           uuid.UUID       `json:"projectId"`
	ProjectName         string          `json:"projectName"`
	KeyVersion          int             `json:"keyVersion"`
	EncryptedProjectKey string          `json:"encryptedProjectKey"`
	Items               []CLIConfigItem `json:"items"`
}

// CLIVerifyResult describes the token a CLI request authenticated with
type CLIVerifyResult struct {
	TokenID     uuid.UUID  `json:"tokenId"`
	TokenName   string     `json:"tokenName"`
	ProjectID   uuid.UUID  `json:"projectId"`
	ProjectName string     `json:"projectName"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
}
