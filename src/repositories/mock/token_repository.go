package mock

import (
	"context"
	"time"

	"github.com/envie/envie-server/src/models"
	"github.com/envie/envie-server/src/repositories"
	"github.com/google/uuid"
)

// TokenRepository is a mock implementation of repositories.TokenRepository
type TokenRepository struct {
	// Function stubs that can be overridden in tests
	CreateFunc            func(ctx context.Context, token *models.ProjectToken) error
	ListByProjectFunc     func(ctx context.Context, projectID uuid.UUID) ([]models.ProjectToken, error)
	DeleteFunc            func(ctx context.Context, projectID, tokenID uuid.UUID) (int64, error)
	GetByIdentityHashFunc func(ctx context.Context, identityIDHash string) (*models.ProjectToken, error)
	TouchLastUsedFunc     func(ctx context.Context, tokenID uuid.UUID, at time.Time) error

	// Call tracking
	Calls map[string][]interface{}
}

// NewTokenRepository creates a new mock token repository
func NewTokenRepository() *TokenRepository {
	return &TokenRepository{
		Calls: make(map[string][]interface{}),
	}
}

func (m *TokenRepository) Create(ctx context.Context, token *models.ProjectToken) error {
	m.Calls["Create"] = append(m.Calls["Create"], token)
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, token)
	}
	return nil
}

func (m *TokenRepository) ListByProject(ctx context.Context, projectID uuid.UUID) ([]models.ProjectToken, error) {
	m.Calls["ListByProject"] = append(m.Calls["ListByProject"], projectID)
	if m.ListByProjectFunc != nil {
		return m.ListByProjectFunc(ctx, projectID)
	}
	return nil, nil
}

func (m *TokenRepository) Delete(ctx context.Context, projectID, tokenID uuid.UUID) (int64, error) {
	m.Calls["Delete"] = append(m.Calls["Delete"], []interface{}{projectID, tokenID})
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, projectID, tokenID)
	}
	return 0, nil
}

func (m *TokenRepository) GetByIdentityHash(ctx context.Context, identityIDHash string) (*models.ProjectToken, error) {
	m.Calls["GetByIdentityHash"] = append(m.Calls["GetByIdentityHash"], identityIDHash)
	if m.GetByIdentityHashFunc != nil {
		return m.GetByIdentityHashFunc(ctx, identityIDHash)
	}
	return nil, repositories.ErrNotFound
}

func (m *TokenRepository) TouchLastUsed(ctx context.Context, tokenID uuid.UUID, at time.Time) error {
	m.Calls["TouchLastUsed"] = append(m.Calls["TouchLastUsed"], tokenID)
	if m.TouchLastUsedFunc != nil {
		return m.TouchLastUsedFunc(ctx, tokenID, at)
	}
	return nil
}

// Ensure TokenRepository implements the interface
var _ repositories.TokenRepository = (*TokenRepository)(nil)
