package models

import (
	"time"

	"github.com/google/uuid"
)

// RotationTTL is how long a pending rotation waits for quorum
const RotationTTL = 24 * time.Hour

// TeamEncryptedKey is the new project key wrapped under one team's key
type TeamEncryptedKey struct {
	TeamID              uuid.UUID `json:"teamId"`
	EncryptedProjectKey string    `json:"encryptedProjectKey"`
}

// ReEncryptedConfigItem is a config value re-encrypted under the new project key
type ReEncryptedConfigItem struct {
	ID    uuid.UUID `json:"id"`
	Value string    `json:"value"`
}

// ReEncryptedFileFEK is a file key re-wrapped under the new project key
type ReEncryptedFileFEK struct {
	ID           uuid.UUID `json:"id"`
	EncryptedFEK string    `json:"encryptedFek"`
}

// InitiateRotationRequest is the client-built rotation bundle
type InitiateRotationRequest struct {
	TeamEncryptedKeys      []TeamEncryptedKey      `json:"teamEncryptedKeys" binding:"required"`
	ReEncryptedConfigItems []ReEncryptedConfigItem `json:"reEncryptedConfigItems" binding:"required"`
	ReEncryptedFileFEKs    []ReEncryptedFileFEK    `json:"reEncryptedFileFEKs"`
}

// RotationSnapshot captures protected project state at proposal time
type RotationSnapshot struct {
	ConfigItemIDs          []string
	TeamIDs                []string
	SecretManagerConfigIDs []string
	ConfigItemsHash        string
}

// PendingRotation is a proposed project key rotation and its payload
type PendingRotation struct {
	ID                uuid.UUID          `json:"id"`
	ProjectID         uuid.UUID          `json:"projectId"`
	InitiatedBy       uuid.UUID          `json:"initiatedBy"`
	NewVersion        int                `json:"newVersion"`
	Status            RotationStatus     `json:"status"`
	RequiredApprovals int                `json:"requiredApprovals"`
	ExpiresAt         time.Time          `json:"expiresAt"`
	Approvals         []RotationApproval `json:"approvals"`
	CreatedAt         time.Time          `json:"createdAt"`
	UpdatedAt         time.Time          `json:"updatedAt"`

	TeamEncryptedKeys []TeamEncryptedKey      `json:"-"`
	ConfigItems       []ReEncryptedConfigItem `json:"-"`
	FileFEKs          []ReEncryptedFileFEK    `json:"-"`
	Snapshot          RotationSnapshot        `json:"-"`
}

// IsExpired reports whether the rotation missed its deadline
func (r *PendingRotation) IsExpired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// RotationApproval is one administrator's vote on a rotation
type RotationApproval struct {
	ID                 uuid.UUID `json:"id"`
	RotationID         uuid.UUID `json:"rotationId"`
	UserID             uuid.UUID `json:"userId"`
	Approved           bool      `json:"approved"`
	VerifiedDecryption bool      `json:"verifiedDecryption"`
	Comment            string    `json:"comment,omitempty"`
	CreatedAt          time.Time `json:"createdAt"`
}

// RotationView is the response to a pending-rotation lookup
type RotationView struct {
	Pending             *PendingRotation `json:"pending"`
	StaleRotationExists bool             `json:"staleRotationExists,omitempty"`
}

// InitiateResult is the outcome of proposing a rotation
type InitiateResult struct {
	Committed             bool       `json:"committed"`
	NewVersion            int        `json:"newVersion"`
	RotationID            *uuid.UUID `json:"rotationId,omitempty"`
	RequiredApprovals     int        `json:"requiredApprovals,omitempty"`
	ExpiresAt             *time.Time `json:"expiresAt,omitempty"`
	TokensInvalidated     int64      `json:"tokensInvalidated,omitempty"`
	TokensToBeInvalidated int64      `json:"tokensToBeInvalidated,omitempty"`
}

// ApproveResult is the outcome of an approval vote
type ApproveResult struct {
	Committed         bool  `json:"committed"`
	NewVersion        int   `json:"newVersion,omitempty"`
	CurrentApprovals  int   `json:"currentApprovals"`
	RequiredApprovals int   `json:"requiredApprovals"`
	TokensInvalidated int64 `json:"tokensInvalidated,omitempty"`
}
