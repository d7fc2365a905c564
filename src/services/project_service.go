package services

import (
	"context"
	"fmt"

	"github.com/envie/envie-server/src/models"
	"github.com/envie/envie-server/src/repositories"
	"github.com/google/uuid"
)

// ProjectService serves the ciphertexts and wraps a client needs to decrypt
// a project or build a rotation
type ProjectService struct {
	projects repositories.ProjectRepository
	access   *AccessService
}

// NewProjectService creates a new project service
func NewProjectService(projects repositories.ProjectRepository, access *AccessService) *ProjectService {
	return &ProjectService{projects: projects, access: access}
}

// Config returns the project's current config ciphertexts
func (s *ProjectService) Config(ctx context.Context, userID, projectID uuid.UUID) (*models.ProjectConfig, error) {
	access, err := s.access.ProjectAccess(ctx, userID, projectID)
	if err != nil {
		return nil, err
	}

	items, err := s.projects.ListConfigItems(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list config items: %w", err)
	}
	if items == nil {
		items = []models.ConfigItem{}
	}

	return &models.ProjectConfig{
		ProjectID:  projectID,
		KeyVersion: access.Project.KeyVersion,
		Items:      items,
	}, nil
}

// KeyMaterial returns the wraps leading from the caller to the project key.
// Org administrators also get every team's org-wrapped key.
func (s *ProjectService) KeyMaterial(ctx context.Context, userID, projectID uuid.UUID) (*models.KeyMaterial, error) {
	access, err := s.access.ProjectAccess(ctx, userID, projectID)
	if err != nil {
		return nil, err
	}

	km := &models.KeyMaterial{
		ProjectID:  projectID,
		KeyVersion: access.Project.KeyVersion,
		Teams:      []models.TeamKeyMaterial{},
	}
	if access.Team != nil {
		teamID := access.Team.TeamID
		km.TeamID = &teamID
		km.EncryptedTeamKey = access.Team.EncryptedTeamKey
		km.EncryptedProjectKey = access.Team.EncryptedProjectKey
	}

	if access.OrgRole.IsAdmin() && access.Org != nil {
		km.EncryptedOrganizationKey = access.Org.EncryptedOrganizationKey

		teams, err := s.projects.ListTeamKeyMaterial(ctx, projectID)
		if err != nil {
			return nil, fmt.Errorf("failed to list team key material: %w", err)
		}
		if teams != nil {
			km.Teams = teams
		}
	}

	return km, nil
}

// FileFEKs returns the wrapped file keys of the project
func (s *ProjectService) FileFEKs(ctx context.Context, userID, projectID uuid.UUID) ([]models.FileFEK, error) {
	if _, err := s.access.ProjectAccess(ctx, userID, projectID); err != nil {
		return nil, err
	}

	feks, err := s.projects.ListFileFEKs(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list file keys: %w", err)
	}
	if feks == nil {
		feks = []models.FileFEK{}
	}
	return feks, nil
}

// CLIConfig returns what an authenticated CLI token may decrypt
func (s *ProjectService) CLIConfig(ctx context.Context, token *models.ProjectToken, projectID uuid.UUID) (*models.CLIProjectConfig, error) {
	if token.ProjectID != projectID {
		return nil, ErrAccessDenied
	}

	project, err := s.access.Project(ctx, projectID)
	if err != nil {
		return nil, err
	}

	items, err := s.projects.ListConfigItems(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list config items: %w", err)
	}

	cliItems := make([]models.CLIConfigItem, len(items))
	for i, it := range items {
		cliItems[i] = models.CLIConfigItem{
			ID:             it.ID,
			Name:           it.Name,
			EncryptedValue: it.Value,
			Position:       it.Position,
			Category:       it.Category,
		}
	}

	return &models.CLIProjectConfig{
		ProjectID:           project.ID,
		ProjectName:         project.Name,
		KeyVersion:          project.KeyVersion,
		EncryptedProjectKey: token.EncryptedProjectKey,
		Items:               cliItems,
	}, nil
}

// CLIVerify describes the token and its project
func (s *ProjectService) CLIVerify(ctx context.Context, token *models.ProjectToken) (*models.CLIVerifyResult, error) {
	project, err := s.access.Project(ctx, token.ProjectID)
	if err != nil {
		return nil, err
	}

	return &models.CLIVerifyResult{
		TokenID:     token.ID,
		TokenName:   token.Name,
		ProjectID:   token.ProjectID,
		ProjectName: project.Name,
		ExpiresAt:   token.ExpiresAt,
	}, nil
}
