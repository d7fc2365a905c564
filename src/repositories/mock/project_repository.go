package mock

import (
	"context"

	"github.com/envie/envie-server/src/models"
	"github.com/envie/envie-server/src/repositories"
	"github.com/google/uuid"
)

// ProjectRepository is a mock implementation of repositories.ProjectRepository
type ProjectRepository struct {
	// Function stubs that can be overridden in tests
	ListConfigItemsFunc     func(ctx context.Context, projectID uuid.UUID) ([]models.ConfigItem, error)
	ListFileFEKsFunc        func(ctx context.Context, projectID uuid.UUID) ([]models.FileFEK, error)
	ListTeamKeyMaterialFunc func(ctx context.Context, projectID uuid.UUID) ([]models.TeamKeyMaterial, error)

	// Call tracking
	Calls map[string][]interface{}
}

// NewProjectRepository creates a new mock project repository
func NewProjectRepository() *ProjectRepository {
	return &ProjectRepository{
		Calls: make(map[string][]interface{}),
	}
}

func (m *ProjectRepository) ListConfigItems(ctx context.Context, projectID uuid.UUID) ([]models.ConfigItem, error) {
	m.Calls["ListConfigItems"] = append(m.Calls["ListConfigItems"], projectID)
	if m.ListConfigItemsFunc != nil {
		return m.ListConfigItemsFunc(ctx, projectID)
	}
	return nil, nil
}

func (m *ProjectRepository) ListFileFEKs(ctx context.Context, projectID uuid.UUID) ([]models.FileFEK, error) {
	m.Calls["ListFileFEKs"] = append(m.Calls["ListFileFEKs"], projectID)
	if m.ListFileFEKsFunc != nil {
		return m.ListFileFEKsFunc(ctx, projectID)
	}
	return nil, nil
}

func (m *ProjectRepository) ListTeamKeyMaterial(ctx context.Context, projectID uuid.UUID) ([]models.TeamKeyMaterial, error) {
	m.Calls["ListTeamKeyMaterial"] = append(m.Calls["ListTeamKeyMaterial"], projectID)
	if m.ListTeamKeyMaterialFunc != nil {
		return m.ListTeamKeyMaterialFunc(ctx, projectID)
	}
	return nil, nil
}

// Ensure ProjectRepository implements the interface
var _ repositories.ProjectRepository = (*ProjectRepository)(nil)
