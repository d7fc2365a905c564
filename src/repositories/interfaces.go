package repositories

import (
	"context"
	"time"

	"github.com/envie/envie-server/src/models"
	"github.com/google/uuid"
)

// AccessRepository reads the membership data used for authorization.
// Role values are returned as stored; callers normalize case.
type AccessRepository interface {
	// GetProject returns ErrNotFound when the project does not exist
	GetProject(ctx context.Context, projectID uuid.UUID) (*models.Project, error)

	// Memberships return nil, nil when the user has none
	GetOrgMembership(ctx context.Context, orgID, userID uuid.UUID) (*models.OrgMembership, error)
	GetTeamMembership(ctx context.Context, projectID, userID uuid.UUID) (*models.TeamMembership, error)

	// Administrators
	OrgAdminIDs(ctx context.Context, orgID uuid.UUID) ([]uuid.UUID, error)
	ProjectTeamAdminIDs(ctx context.Context, projectID uuid.UUID) ([]uuid.UUID, error)

	// AccessibleProjectIDs covers team memberships and orgs the user administers
	AccessibleProjectIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
}

// ProjectRepository reads the ciphertexts a client needs to build a rotation
type ProjectRepository interface {
	ListConfigItems(ctx context.Context, projectID uuid.UUID) ([]models.ConfigItem, error)
	ListFileFEKs(ctx context.Context, projectID uuid.UUID) ([]models.FileFEK, error)
	ListTeamKeyMaterial(ctx context.Context, projectID uuid.UUID) ([]models.TeamKeyMaterial, error)
}

// TokenRepository defines the interface for project token data access
type TokenRepository interface {
	// Create returns ErrUniqueViolation when the identity hash is taken
	Create(ctx context.Context, token *models.ProjectToken) error
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]models.ProjectToken, error)
	Delete(ctx context.Context, projectID, tokenID uuid.UUID) (int64, error)
	GetByIdentityHash(ctx context.Context, identityIDHash string) (*models.ProjectToken, error)
	TouchLastUsed(ctx context.Context, tokenID uuid.UUID, at time.Time) error
}

// RotationStore runs rotation transitions inside a single transaction.
// The transaction commits when fn returns nil and rolls back otherwise.
type RotationStore interface {
	InTx(ctx context.Context, fn func(tx RotationTx) error) error
}

// RotationTx is the set of reads and writes available to a rotation transition
type RotationTx interface {
	// LockProject takes a row lock on the project; ErrNotFound if missing
	LockProject(ctx context.Context, projectID uuid.UUID) (*models.Project, error)
	ProjectState(ctx context.Context, projectID uuid.UUID) (*models.ProjectState, error)

	// Rotations
	GetPendingRotation(ctx context.Context, projectID uuid.UUID) (*models.PendingRotation, error)
	GetRotation(ctx context.Context, projectID, rotationID uuid.UUID) (*models.PendingRotation, error)
	ListPendingRotations(ctx context.Context, projectIDs []uuid.UUID) ([]*models.PendingRotation, error)
	CreateRotation(ctx context.Context, rotation *models.PendingRotation) error
	SetRotationStatus(ctx context.Context, rotationID uuid.UUID, status models.RotationStatus) error

	// Votes
	ListVotes(ctx context.Context, rotationID uuid.UUID) ([]models.RotationApproval, error)
	CreateVote(ctx context.Context, vote *models.RotationApproval) error

	// Commit writes; each returns the number of rows affected
	SetKeyVersion(ctx context.Context, projectID uuid.UUID, version int) (int64, error)
	UpdateConfigValue(ctx context.Context, projectID, itemID uuid.UUID, value string) (int64, error)
	UpdateTeamProjectKey(ctx context.Context, projectID, teamID uuid.UUID, encryptedProjectKey string) (int64, error)
	UpdateFileFEK(ctx context.Context, projectID, fileID uuid.UUID, encryptedFEK string) (int64, error)
	DeleteProjectTokens(ctx context.Context, projectID uuid.UUID) (int64, error)
	CountProjectTokens(ctx context.Context, projectID uuid.UUID) (int64, error)
}
