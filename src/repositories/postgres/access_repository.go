package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/envie/envie-server/src/models"
	"github.com/envie/envie-server/src/repositories"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AccessRepository reads organization and team memberships
type AccessRepository struct {
	pool *pgxpool.Pool
}

// NewAccessRepository creates a new access repository
func NewAccessRepository(pool *pgxpool.Pool) *AccessRepository {
	return &AccessRepository{pool: pool}
}

func (r *AccessRepository) GetProject(ctx context.Context, projectID uuid.UUID) (*models.Project, error) {
	var p models.Project
	err := r.pool.QueryRow(ctx,
		"SELECT id, organization_id, name, key_version, created_at, updated_at FROM projects WHERE id = $1",
		projectID,
	).Scan(&p.ID, &p.OrganizationID, &p.Name, &p.KeyVersion, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	return &p, nil
}

func (r *AccessRepository) GetOrgMembership(ctx context.Context, orgID, userID uuid.UUID) (*models.OrgMembership, error) {
	var m models.OrgMembership
	var role string
	err := r.pool.QueryRow(ctx,
		"SELECT role, COALESCE(encrypted_organization_key, '') FROM organization_users WHERE organization_id = $1 AND user_id = $2",
		orgID, userID,
	).Scan(&role, &m.EncryptedOrganizationKey)
	if err != nil {
		if err = mapError(err); errors.Is(err, repositories.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get organization membership: %w", err)
	}
	m.Role = models.Role(role)
	return &m, nil
}

// GetTeamMembership picks the caller's strongest role when several of their
// teams share the project
func (r *AccessRepository) GetTeamMembership(ctx context.Context, projectID, userID uuid.UUID) (*models.TeamMembership, error) {
	var m models.TeamMembership
	var role string
	err := r.pool.QueryRow(ctx, `
		SELECT tu.team_id, tu.role, tu.encrypted_team_key, tp.encrypted_project_key
		FROM team_projects tp
		JOIN team_users tu ON tu.team_id = tp.team_id
		WHERE tp.project_id = $1 AND tu.user_id = $2
		ORDER BY CASE lower(tu.role) WHEN 'owner' THEN 0 WHEN 'admin' THEN 1 ELSE 2 END, tu.team_id
		LIMIT 1`,
		projectID, userID,
	).Scan(&m.TeamID, &role, &m.EncryptedTeamKey, &m.EncryptedProjectKey)
	if err != nil {
		if err = mapError(err); errors.Is(err, repositories.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get team membership: %w", err)
	}
	m.Role = models.Role(role)
	return &m, nil
}

func (r *AccessRepository) OrgAdminIDs(ctx context.Context, orgID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx,
		"SELECT user_id FROM organization_users WHERE organization_id = $1 AND lower(role) IN ('owner', 'admin')",
		orgID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query organization admins: %w", err)
	}
	return collectIDs(rows)
}

func (r *AccessRepository) ProjectTeamAdminIDs(ctx context.Context, projectID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT tu.user_id
		FROM team_projects tp
		JOIN team_users tu ON tu.team_id = tp.team_id
		WHERE tp.project_id = $1 AND lower(tu.role) IN ('owner', 'admin')`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query team admins: %w", err)
	}
	return collectIDs(rows)
}

func (r *AccessRepository) AccessibleProjectIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT tp.project_id
		FROM team_projects tp
		JOIN team_users tu ON tu.team_id = tp.team_id
		WHERE tu.user_id = $1
		UNION
		SELECT p.id
		FROM projects p
		JOIN organization_users ou ON ou.organization_id = p.organization_id
		WHERE ou.user_id = $1 AND lower(ou.role) IN ('owner', 'admin')`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query accessible projects: %w", err)
	}
	return collectIDs(rows)
}

// Ensure AccessRepository implements the interface
var _ repositories.AccessRepository = (*AccessRepository)(nil)
