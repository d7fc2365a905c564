package mock

import (
	"context"

	"github.com/envie/envie-server/src/models"
	"github.com/envie/envie-server/src/repositories"
	"github.com/google/uuid"
)

// AccessRepository is a mock implementation of repositories.AccessRepository
type AccessRepository struct {
	// Function stubs that can be overridden in tests
	GetProjectFunc           func(ctx context.Context, projectID uuid.UUID) (*models.Project, error)
	GetOrgMembershipFunc     func(ctx context.Context, orgID, userID uuid.UUID) (*models.OrgMembership, error)
	GetTeamMembershipFunc    func(ctx context.Context, projectID, userID uuid.UUID) (*models.TeamMembership, error)
	OrgAdminIDsFunc          func(ctx context.Context, orgID uuid.UUID) ([]uuid.UUID, error)
	ProjectTeamAdminIDsFunc  func(ctx context.Context, projectID uuid.UUID) ([]uuid.UUID, error)
	AccessibleProjectIDsFunc func(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)

	// Call tracking
	Calls map[string][]interface{}
}

// NewAccessRepository creates a new mock access repository
func NewAccessRepository() *AccessRepository {
	return &AccessRepository{
		Calls: make(map[string][]interface{}),
	}
}

func (m *AccessRepository) GetProject(ctx context.Context, projectID uuid.UUID) (*models.Project, error) {
	m.Calls["GetProject"] = append(m.Calls["GetProject"], projectID)
	if m.GetProjectFunc != nil {
		return m.GetProjectFunc(ctx, projectID)
	}
	return nil, repositories.ErrNotFound
}

func (m *AccessRepository) GetOrgMembership(ctx context.Context, orgID, userID uuid.UUID) (*models.OrgMembership, error) {
	m.Calls["GetOrgMembership"] = append(m.Calls["GetOrgMembership"], []interface{}{orgID, userID})
	if m.GetOrgMembershipFunc != nil {
		return m.GetOrgMembershipFunc(ctx, orgID, userID)
	}
	return nil, nil
}

func (m *AccessRepository) GetTeamMembership(ctx context.Context, projectID, userID uuid.UUID) (*models.TeamMembership, error) {
	m.Calls["GetTeamMembership"] = append(m.Calls["GetTeamMembership"], []interface{}{projectID, userID})
	if m.GetTeamMembershipFunc != nil {
		return m.GetTeamMembershipFunc(ctx, projectID, userID)
	}
	return nil, nil
}

func (m *AccessRepository) OrgAdminIDs(ctx context.Context, orgID uuid.UUID) ([]uuid.UUID, error) {
	m.Calls["OrgAdminIDs"] = append(m.Calls["OrgAdminIDs"], orgID)
	if m.OrgAdminIDsFunc != nil {
		return m.OrgAdminIDsFunc(ctx, orgID)
	}
	return nil, nil
}

func (m *AccessRepository) ProjectTeamAdminIDs(ctx context.Context, projectID uuid.UUID) ([]uuid.UUID, error) {
	m.Calls["ProjectTeamAdminIDs"] = append(m.Calls["ProjectTeamAdminIDs"], projectID)
	if m.ProjectTeamAdminIDsFunc != nil {
		return m.ProjectTeamAdminIDsFunc(ctx, projectID)
	}
	return nil, nil
}

func (m *AccessRepository) AccessibleProjectIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	m.Calls["AccessibleProjectIDs"] = append(m.Calls["AccessibleProjectIDs"], userID)
	if m.AccessibleProjectIDsFunc != nil {
		return m.AccessibleProjectIDsFunc(ctx, userID)
	}
	return nil, nil
}

// Ensure AccessRepository implements the interface
var _ repositories.AccessRepository = (*AccessRepository)(nil)
