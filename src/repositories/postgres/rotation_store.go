package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/envie/envie-server/src/models"
	"github.com/envie/envie-server/src/repositories"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const rotationColumns = `id, project_id, initiated_by, new_version, status, required_approvals, expires_at,
	team_encrypted_keys, config_items, file_feks,
	snapshot_config_item_ids, snapshot_team_ids, snapshot_secret_manager_config_ids, snapshot_config_items_hash,
	created_at, updated_at`

// RotationStore runs rotation transitions in pgx transactions
type RotationStore struct {
	pool *pgxpool.Pool
}

// NewRotationStore creates a new rotation store
func NewRotationStore(pool *pgxpool.Pool) *RotationStore {
	return &RotationStore{pool: pool}
}

// InTx runs fn in a read-committed transaction. Serialization between
// transitions on one project comes from LockProject.
func (s *RotationStore) InTx(ctx context.Context, fn func(tx repositories.RotationTx) error) error {
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(&rotationTx{tx: tx})
	})
}

type rotationTx struct {
	tx pgx.Tx
}

func (t *rotationTx) LockProject(ctx context.Context, projectID uuid.UUID) (*models.Project, error) {
	var p models.Project
	err := t.tx.QueryRow(ctx,
		"SELECT id, organization_id, name, key_version, created_at, updated_at FROM projects WHERE id = $1 FOR UPDATE",
		projectID,
	).Scan(&p.ID, &p.OrganizationID, &p.Name, &p.KeyVersion, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	return &p, nil
}

func (t *rotationTx) ProjectState(ctx context.Context, projectID uuid.UUID) (*models.ProjectState, error) {
	items, err := listConfigItems(ctx, t.tx, projectID)
	if err != nil {
		return nil, err
	}

	state := &models.ProjectState{ConfigItems: items}

	idQueries := []struct {
		sql  string
		dest *[]uuid.UUID
	}{
		{"SELECT team_id FROM team_projects WHERE project_id = $1", &state.TeamIDs},
		{"SELECT id FROM secret_manager_configs WHERE project_id = $1", &state.SecretManagerConfigIDs},
		{"SELECT id FROM project_files WHERE project_id = $1", &state.FileIDs},
	}
	for _, q := range idQueries {
		rows, err := t.tx.Query(ctx, q.sql, projectID)
		if err != nil {
			return nil, fmt.Errorf("failed to read project state: %w", err)
		}
		ids, err := collectIDs(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to read project state: %w", err)
		}
		*q.dest = ids
	}

	return state, nil
}

func scanRotation(row rowScanner) (*models.PendingRotation, error) {
	var r models.PendingRotation
	var status string
	err := row.Scan(&r.ID, &r.ProjectID, &r.InitiatedBy, &r.NewVersion, &status, &r.RequiredApprovals, &r.ExpiresAt,
		&r.TeamEncryptedKeys, &r.ConfigItems, &r.FileFEKs,
		&r.Snapshot.ConfigItemIDs, &r.Snapshot.TeamIDs, &r.Snapshot.SecretManagerConfigIDs, &r.Snapshot.ConfigItemsHash,
		&r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	r.Status = models.RotationStatus(status)
	return &r, nil
}

func (t *rotationTx) GetPendingRotation(ctx context.Context, projectID uuid.UUID) (*models.PendingRotation, error) {
	r, err := scanRotation(t.tx.QueryRow(ctx,
		"SELECT "+rotationColumns+" FROM pending_key_rotations WHERE project_id = $1 AND status = 'pending'",
		projectID,
	))
	if err != nil {
		if err = mapError(err); errors.Is(err, repositories.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get pending rotation: %w", err)
	}
	return r, nil
}

func (t *rotationTx) GetRotation(ctx context.Context, projectID, rotationID uuid.UUID) (*models.PendingRotation, error) {
	r, err := scanRotation(t.tx.QueryRow(ctx,
		"SELECT "+rotationColumns+" FROM pending_key_rotations WHERE id = $1 AND project_id = $2",
		rotationID, projectID,
	))
	if err != nil {
		return nil, mapError(err)
	}
	return r, nil
}

func (t *rotationTx) ListPendingRotations(ctx context.Context, projectIDs []uuid.UUID) ([]*models.PendingRotation, error) {
	rows, err := t.tx.Query(ctx,
		"SELECT "+rotationColumns+" FROM pending_key_rotations WHERE status = 'pending' AND project_id = ANY($1) ORDER BY created_at",
		projectIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending rotations: %w", err)
	}
	defer rows.Close()

	var rotations []*models.PendingRotation
	for rows.Next() {
		r, err := scanRotation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pending rotation: %w", err)
		}
		rotations = append(rotations, r)
	}
	return rotations, rows.Err()
}

func (t *rotationTx) CreateRotation(ctx context.Context, r *models.PendingRotation) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	fileFEKs := r.FileFEKs
	if fileFEKs == nil {
		fileFEKs = []models.ReEncryptedFileFEK{}
	}
	err := t.tx.QueryRow(ctx, `
		INSERT INTO pending_key_rotations (id, project_id, initiated_by, new_version, status, required_approvals,
			expires_at, team_encrypted_keys, config_items, file_feks,
			snapshot_config_item_ids, snapshot_team_ids, snapshot_secret_manager_config_ids, snapshot_config_items_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at, updated_at`,
		r.ID, r.ProjectID, r.InitiatedBy, r.NewVersion, string(r.Status), r.RequiredApprovals,
		r.ExpiresAt, r.TeamEncryptedKeys, r.ConfigItems, fileFEKs,
		r.Snapshot.ConfigItemIDs, r.Snapshot.TeamIDs, r.Snapshot.SecretManagerConfigIDs, r.Snapshot.ConfigItemsHash,
	).Scan(&r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create rotation: %w", mapError(err))
	}
	return nil
}

func (t *rotationTx) SetRotationStatus(ctx context.Context, rotationID uuid.UUID, status models.RotationStatus) error {
	tag, err := t.tx.Exec(ctx,
		"UPDATE pending_key_rotations SET status = $2, updated_at = NOW() WHERE id = $1",
		rotationID, string(status),
	)
	if err != nil {
		return fmt.Errorf("failed to set rotation status: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return repositories.ErrNotFound
	}
	return nil
}

func (t *rotationTx) ListVotes(ctx context.Context, rotationID uuid.UUID) ([]models.RotationApproval, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT id, rotation_id, user_id, approved, verified_decryption, COALESCE(comment, ''), created_at
		FROM key_rotation_approvals
		WHERE rotation_id = $1
		ORDER BY created_at`,
		rotationID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query rotation votes: %w", err)
	}
	defer rows.Close()

	votes := []models.RotationApproval{}
	for rows.Next() {
		var v models.RotationApproval
		if err := rows.Scan(&v.ID, &v.RotationID, &v.UserID, &v.Approved, &v.VerifiedDecryption, &v.Comment, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan rotation vote: %w", err)
		}
		votes = append(votes, v)
	}
	return votes, rows.Err()
}

func (t *rotationTx) CreateVote(ctx context.Context, v *models.RotationApproval) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	err := t.tx.QueryRow(ctx, `
		INSERT INTO key_rotation_approvals (id, rotation_id, user_id, approved, verified_decryption, comment)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''))
		RETURNING created_at`,
		v.ID, v.RotationID, v.UserID, v.Approved, v.VerifiedDecryption, v.Comment,
	).Scan(&v.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record vote: %w", mapError(err))
	}
	return nil
}

func (t *rotationTx) exec(ctx context.Context, sql string, args ...any) (int64, error) {
	tag, err := t.tx.Exec(ctx, sql, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (t *rotationTx) SetKeyVersion(ctx context.Context, projectID uuid.UUID, version int) (int64, error) {
	return t.exec(ctx, "UPDATE projects SET key_version = $2, updated_at = NOW() WHERE id = $1", projectID, version)
}

func (t *rotationTx) UpdateConfigValue(ctx context.Context, projectID, itemID uuid.UUID, value string) (int64, error) {
	return t.exec(ctx,
		"UPDATE config_items SET value = $3, updated_at = NOW() WHERE id = $1 AND project_id = $2",
		itemID, projectID, value)
}

func (t *rotationTx) UpdateTeamProjectKey(ctx context.Context, projectID, teamID uuid.UUID, encryptedProjectKey string) (int64, error) {
	return t.exec(ctx,
		"UPDATE team_projects SET encrypted_project_key = $3 WHERE team_id = $1 AND project_id = $2",
		teamID, projectID, encryptedProjectKey)
}

func (t *rotationTx) UpdateFileFEK(ctx context.Context, projectID, fileID uuid.UUID, encryptedFEK string) (int64, error) {
	return t.exec(ctx,
		"UPDATE project_files SET encrypted_fek = $3 WHERE id = $1 AND project_id = $2",
		fileID, projectID, encryptedFEK)
}

func (t *rotationTx) DeleteProjectTokens(ctx context.Context, projectID uuid.UUID) (int64, error) {
	return t.exec(ctx, "DELETE FROM project_tokens WHERE project_id = $1", projectID)
}

func (t *rotationTx) CountProjectTokens(ctx context.Context, projectID uuid.UUID) (int64, error) {
	var n int64
	err := t.tx.QueryRow(ctx, "SELECT COUNT(*) FROM project_tokens WHERE project_id = $1", projectID).Scan(&n)
	return n, err
}

// Ensure RotationStore implements the interface
var _ repositories.RotationStore = (*RotationStore)(nil)
