package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/envie/envie-server/src/keys"
	"github.com/envie/envie-server/src/logging"
	"github.com/envie/envie-server/src/metrics"
	"github.com/envie/envie-server/src/models"
	"github.com/envie/envie-server/src/repositories"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// TokenService manages project-scoped CLI tokens.
// Tokens are generated client-side; the server stores the identity hash and
// the project key sealed to the token.
type TokenService struct {
	repo   repositories.TokenRepository
	access *AccessService
	now    func() time.Time
	log    zerolog.Logger
}

// NewTokenService creates a new token service
func NewTokenService(repo repositories.TokenRepository, access *AccessService) *TokenService {
	return &TokenService{
		repo:   repo,
		access: access,
		now:    time.Now,
		log:    logging.NewLogger("tokens"),
	}
}

// Create registers a client-generated token for projectID
func (s *TokenService) Create(ctx context.Context, userID, projectID uuid.UUID, req *models.CreateProjectTokenRequest) (*models.ProjectToken, error) {
	if _, err := s.access.RequireEdit(ctx, userID, projectID); err != nil {
		return nil, err
	}

	now := s.now()
	if !req.ExpiresAt.After(now) {
		return nil, fmt.Errorf("%w: expiration must be in the future", ErrInvalidToken)
	}
	if err := keys.ValidateSealedBlob(req.EncryptedProjectKey); err != nil {
		return nil, fmt.Errorf("%w: encrypted project key: %w", ErrInvalidToken, err)
	}

	expiresAt := req.ExpiresAt
	token := &models.ProjectToken{
		ID:                  uuid.New(),
		ProjectID:           projectID,
		Name:                req.Name,
		TokenPrefix:         req.TokenPrefix,
		IdentityIDHash:      req.IdentityIDHash,
		EncryptedProjectKey: req.EncryptedProjectKey,
		ExpiresAt:           &expiresAt,
		CreatedBy:           userID,
		CreatedAt:           now,
	}
	if err := s.repo.Create(ctx, token); err != nil {
		if errors.Is(err, repositories.ErrUniqueViolation) {
			return nil, ErrTokenExists
		}
		return nil, fmt.Errorf("failed to create token: %w", err)
	}

	s.log.Info().
		Str("project_id", projectID.String()).
		Str("token_id", token.ID.String()).
		Msg("project token created")
	return token, nil
}

// List returns the project's tokens, newest first
func (s *TokenService) List(ctx context.Context, userID, projectID uuid.UUID) ([]models.ProjectToken, error) {
	if _, err := s.access.RequireEdit(ctx, userID, projectID); err != nil {
		return nil, err
	}

	tokens, err := s.repo.ListByProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tokens: %w", err)
	}
	if tokens == nil {
		tokens = []models.ProjectToken{}
	}
	return tokens, nil
}

// Delete revokes one token
func (s *TokenService) Delete(ctx context.Context, userID, projectID, tokenID uuid.UUID) error {
	if _, err := s.access.RequireEdit(ctx, userID, projectID); err != nil {
		return err
	}

	n, err := s.repo.Delete(ctx, projectID, tokenID)
	if err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	if n == 0 {
		return ErrTokenNotFound
	}
	return nil
}

// Authenticate resolves the hex identity ID sent by the CLI to its token
func (s *TokenService) Authenticate(ctx context.Context, identityID string) (*models.ProjectToken, error) {
	hash, err := keys.HashIdentityID(identityID)
	if err != nil {
		metrics.CLIAuthFailures.WithLabelValues("malformed").Inc()
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	token, err := s.repo.GetByIdentityHash(ctx, hash)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			metrics.CLIAuthFailures.WithLabelValues("unknown").Inc()
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to look up token: %w", err)
	}

	now := s.now()
	if token.IsExpired(now) {
		metrics.CLIAuthFailures.WithLabelValues("expired").Inc()
		return nil, ErrTokenExpired
	}

	if err := s.repo.TouchLastUsed(ctx, token.ID, now); err != nil {
		s.log.Warn().Err(err).Str("token_id", token.ID.String()).Msg("failed to record token use")
	} else {
		token.LastUsedAt = &now
	}
	return token, nil
}
