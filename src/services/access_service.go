package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/envie/envie-server/src/models"
	"github.com/envie/envie-server/src/repositories"
	"github.com/google/uuid"
)

// AccessService resolves project permissions and rotation quorum
type AccessService struct {
	repo repositories.AccessRepository
}

// NewAccessService creates a new access service
func NewAccessService(repo repositories.AccessRepository) *AccessService {
	return &AccessService{repo: repo}
}

func normalizeRole(role models.Role) models.Role {
	return models.Role(strings.ToLower(strings.TrimSpace(string(role))))
}

// Project loads a project without any permission check
func (s *AccessService) Project(ctx context.Context, projectID uuid.UUID) (*models.Project, error) {
	project, err := s.repo.GetProject(ctx, projectID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("failed to load project: %w", err)
	}
	return project, nil
}

// ProjectAccess resolves what userID may do on projectID.
// Users outside every team with access need an org role above member.
func (s *AccessService) ProjectAccess(ctx context.Context, userID, projectID uuid.UUID) (*models.ProjectAccess, error) {
	project, err := s.Project(ctx, projectID)
	if err != nil {
		return nil, err
	}

	access := &models.ProjectAccess{Project: project}

	org, err := s.repo.GetOrgMembership(ctx, project.OrganizationID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load organization role: %w", err)
	}
	if org != nil {
		org.Role = normalizeRole(org.Role)
		access.Org = org
		access.OrgRole = org.Role
	}

	team, err := s.repo.GetTeamMembership(ctx, projectID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load team membership: %w", err)
	}
	if team != nil {
		team.Role = normalizeRole(team.Role)
		access.Team = team
		access.TeamRole = team.Role
	}

	if access.Team == nil && (access.OrgRole == "" || access.OrgRole == models.RoleMember) {
		return nil, ErrAccessDenied
	}

	access.CanEdit = access.TeamRole.IsAdmin() || access.OrgRole.IsAdmin()
	return access, nil
}

// RequireEdit is ProjectAccess plus the CanEdit check
func (s *AccessService) RequireEdit(ctx context.Context, userID, projectID uuid.UUID) (*models.ProjectAccess, error) {
	access, err := s.ProjectAccess(ctx, userID, projectID)
	if err != nil {
		return nil, err
	}
	if !access.CanEdit {
		return nil, ErrAccessDenied
	}
	return access, nil
}

// ProjectAdminIDs returns the deduplicated org and team administrators of a project
func (s *AccessService) ProjectAdminIDs(ctx context.Context, projectID, orgID uuid.UUID) ([]uuid.UUID, error) {
	orgAdmins, err := s.repo.OrgAdminIDs(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list organization admins: %w", err)
	}
	teamAdmins, err := s.repo.ProjectTeamAdminIDs(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list team admins: %w", err)
	}

	seen := make(map[uuid.UUID]struct{}, len(orgAdmins)+len(teamAdmins))
	admins := make([]uuid.UUID, 0, len(orgAdmins)+len(teamAdmins))
	for _, id := range append(orgAdmins, teamAdmins...) {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		admins = append(admins, id)
	}
	return admins, nil
}

// RequiredApprovals is 0 for a lone administrator and 1 otherwise
func (s *AccessService) RequiredApprovals(ctx context.Context, projectID, orgID uuid.UUID) (int, error) {
	admins, err := s.ProjectAdminIDs(ctx, projectID, orgID)
	if err != nil {
		return 0, err
	}
	if len(admins) <= 1 {
		return 0, nil
	}
	return 1, nil
}

// AccessibleProjectIDs lists projects reachable through teams or org administration
func (s *AccessService) AccessibleProjectIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	ids, err := s.repo.AccessibleProjectIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list accessible projects: %w", err)
	}
	return ids, nil
}
