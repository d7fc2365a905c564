package postgres

import (
	"context"
	"fmt"

	"github.com/envie/envie-server/src/models"
	"github.com/envie/envie-server/src/repositories"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// querier is satisfied by both the pool and a transaction
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// ProjectRepository reads project ciphertexts
type ProjectRepository struct {
	pool *pgxpool.Pool
}

// NewProjectRepository creates a new project repository
func NewProjectRepository(pool *pgxpool.Pool) *ProjectRepository {
	return &ProjectRepository{pool: pool}
}

func (r *ProjectRepository) ListConfigItems(ctx context.Context, projectID uuid.UUID) ([]models.ConfigItem, error) {
	return listConfigItems(ctx, r.pool, projectID)
}

func (r *ProjectRepository) ListFileFEKs(ctx context.Context, projectID uuid.UUID) ([]models.FileFEK, error) {
	rows, err := r.pool.Query(ctx,
		"SELECT id, name, encrypted_fek FROM project_files WHERE project_id = $1 ORDER BY name, id",
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query project files: %w", err)
	}
	defer rows.Close()

	feks := []models.FileFEK{}
	for rows.Next() {
		var f models.FileFEK
		if err := rows.Scan(&f.ID, &f.Name, &f.EncryptedFEK); err != nil {
			return nil, fmt.Errorf("failed to scan project file: %w", err)
		}
		feks = append(feks, f)
	}
	return feks, rows.Err()
}

func (r *ProjectRepository) ListTeamKeyMaterial(ctx context.Context, projectID uuid.UUID) ([]models.TeamKeyMaterial, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT t.id, t.name, t.encrypted_key, tp.encrypted_project_key
		FROM team_projects tp
		JOIN teams t ON t.id = tp.team_id
		WHERE tp.project_id = $1
		ORDER BY t.name, t.id`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query project teams: %w", err)
	}
	defer rows.Close()

	teams := []models.TeamKeyMaterial{}
	for rows.Next() {
		var t models.TeamKeyMaterial
		if err := rows.Scan(&t.TeamID, &t.Name, &t.EncryptedKey, &t.EncryptedProjectKey); err != nil {
			return nil, fmt.Errorf("failed to scan project team: %w", err)
		}
		teams = append(teams, t)
	}
	return teams, rows.Err()
}

func listConfigItems(ctx context.Context, q querier, projectID uuid.UUID) ([]models.ConfigItem, error) {
	rows, err := q.Query(ctx, `
		SELECT id, project_id, name, value, position, category, sensitive
		FROM config_items
		WHERE project_id = $1
		ORDER BY position, name`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query config items: %w", err)
	}
	defer rows.Close()

	items := []models.ConfigItem{}
	for rows.Next() {
		var it models.ConfigItem
		if err := rows.Scan(&it.ID, &it.ProjectID, &it.Name, &it.Value, &it.Position, &it.Category, &it.Sensitive); err != nil {
			return nil, fmt.Errorf("failed to scan config item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// Ensure ProjectRepository implements the interface
var _ repositories.ProjectRepository = (*ProjectRepository)(nil)
