package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/envie/envie-server/src/models"
	"github.com/envie/envie-server/src/repositories"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const tokenColumns = `id, project_id, name, token_prefix, identity_id_hash, encrypted_project_key,
	expires_at, last_used_at, created_by, created_at`

// TokenRepository stores CLI project tokens
type TokenRepository struct {
	pool *pgxpool.Pool
}

// NewTokenRepository creates a new token repository
func NewTokenRepository(pool *pgxpool.Pool) *TokenRepository {
	return &TokenRepository{pool: pool}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanToken(row rowScanner) (*models.ProjectToken, error) {
	var t models.ProjectToken
	err := row.Scan(&t.ID, &t.ProjectID, &t.Name, &t.TokenPrefix, &t.IdentityIDHash, &t.EncryptedProjectKey,
		&t.ExpiresAt, &t.LastUsedAt, &t.CreatedBy, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *TokenRepository) Create(ctx context.Context, token *models.ProjectToken) error {
	if token.ID == uuid.Nil {
		token.ID = uuid.New()
	}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO project_tokens (id, project_id, name, token_prefix, identity_id_hash,
			encrypted_project_key, expires_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at`,
		token.ID, token.ProjectID, token.Name, token.TokenPrefix, token.IdentityIDHash,
		token.EncryptedProjectKey, token.ExpiresAt, token.CreatedBy,
	).Scan(&token.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create project token: %w", mapError(err))
	}
	return nil
}

func (r *TokenRepository) ListByProject(ctx context.Context, projectID uuid.UUID) ([]models.ProjectToken, error) {
	rows, err := r.pool.Query(ctx,
		"SELECT "+tokenColumns+" FROM project_tokens WHERE project_id = $1 ORDER BY created_at DESC",
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query project tokens: %w", err)
	}
	defer rows.Close()

	tokens := []models.ProjectToken{}
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project token: %w", err)
		}
		tokens = append(tokens, *t)
	}
	return tokens, rows.Err()
}

func (r *TokenRepository) Delete(ctx context.Context, projectID, tokenID uuid.UUID) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		"DELETE FROM project_tokens WHERE id = $1 AND project_id = $2",
		tokenID, projectID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete project token: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *TokenRepository) GetByIdentityHash(ctx context.Context, identityIDHash string) (*models.ProjectToken, error) {
	t, err := scanToken(r.pool.QueryRow(ctx,
		"SELECT "+tokenColumns+" FROM project_tokens WHERE identity_id_hash = $1",
		identityIDHash,
	))
	if err != nil {
		return nil, mapError(err)
	}
	return t, nil
}

func (r *TokenRepository) TouchLastUsed(ctx context.Context, tokenID uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx, "UPDATE project_tokens SET last_used_at = $2 WHERE id = $1", tokenID, at)
	return err
}

// Ensure TokenRepository implements the interface
var _ repositories.TokenRepository = (*TokenRepository)(nil)
