package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/envie/envie-server/src/database"
	"github.com/envie/envie-server/src/keys"
	"github.com/envie/envie-server/src/models"
	"github.com/envie/envie-server/src/repositories"
	"github.com/envie/envie-server/src/services"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type storeFixture struct {
	tdb       *database.TestDB
	orgID     uuid.UUID
	projectID uuid.UUID
	admin     uuid.UUID
	member    uuid.UUID
	teamID    uuid.UUID
	itemID    uuid.UUID
}

func newStoreFixture(t *testing.T, tdb *database.TestDB) *storeFixture {
	t.Helper()
	ctx := context.Background()

	f := &storeFixture{tdb: tdb}
	var err error

	f.admin, err = tdb.CreateTestUser("admin-" + uuid.NewString() + "@example.com")
	require.NoError(t, err)
	f.member, err = tdb.CreateTestUser("member-" + uuid.NewString() + "@example.com")
	require.NoError(t, err)

	f.orgID, f.projectID, err = tdb.CreateTestProject("api")
	require.NoError(t, err)

	// legacy capitalized role; the store returns it verbatim
	_, err = tdb.Pool.Exec(ctx,
		"INSERT INTO organization_users (organization_id, user_id, role, encrypted_organization_key) VALUES ($1, $2, 'Owner', 'org-sealed')",
		f.orgID, f.admin)
	require.NoError(t, err)

	f.teamID, err = tdb.CreateTestTeam(f.orgID, f.projectID, f.member, "member")
	require.NoError(t, err)
	f.itemID, err = tdb.CreateTestConfigItem(f.projectID, "DATABASE_URL", "ciphertext-v1")
	require.NoError(t, err)

	return f
}

func (f *storeFixture) pendingRotation() *models.PendingRotation {
	return &models.PendingRotation{
		ProjectID:         f.projectID,
		InitiatedBy:       f.admin,
		NewVersion:        2,
		Status:            models.RotationPending,
		RequiredApprovals: 1,
		ExpiresAt:         time.Now().Add(models.RotationTTL),
		TeamEncryptedKeys: []models.TeamEncryptedKey{{TeamID: f.teamID, EncryptedProjectKey: "team-wrapped-v2"}},
		ConfigItems:       []models.ReEncryptedConfigItem{{ID: f.itemID, Value: "ciphertext-v2"}},
		Snapshot: models.RotationSnapshot{
			ConfigItemIDs:          []string{f.itemID.String()},
			TeamIDs:                []string{f.teamID.String()},
			SecretManagerConfigIDs: []string{},
			ConfigItemsHash:        "hash",
		},
	}
}

func TestRotationStore_OnePendingPerProject(t *testing.T) {
	database.WithTestDB(t, func(tdb *database.TestDB) {
		f := newStoreFixture(t, tdb)
		store := NewRotationStore(tdb.Pool)
		ctx := context.Background()

		require.NoError(t, store.InTx(ctx, func(tx repositories.RotationTx) error {
			return tx.CreateRotation(ctx, f.pendingRotation())
		}))

		err := store.InTx(ctx, func(tx repositories.RotationTx) error {
			return tx.CreateRotation(ctx, f.pendingRotation())
		})
		assert.ErrorIs(t, err, repositories.ErrUniqueViolation)

		// a settled rotation frees the slot
		require.NoError(t, store.InTx(ctx, func(tx repositories.RotationTx) error {
			pending, err := tx.GetPendingRotation(ctx, f.projectID)
			require.NoError(t, err)
			require.NotNil(t, pending)
			return tx.SetRotationStatus(ctx, pending.ID, models.RotationCancelled)
		}))
		assert.NoError(t, store.InTx(ctx, func(tx repositories.RotationTx) error {
			return tx.CreateRotation(ctx, f.pendingRotation())
		}))
	})
}

func TestRotationStore_RoundTrip(t *testing.T) {
	database.WithTestDB(t, func(tdb *database.TestDB) {
		f := newStoreFixture(t, tdb)
		store := NewRotationStore(tdb.Pool)
		ctx := context.Background()
		want := f.pendingRotation()

		require.NoError(t, store.InTx(ctx, func(tx repositories.RotationTx) error {
			return tx.CreateRotation(ctx, want)
		}))

		require.NoError(t, store.InTx(ctx, func(tx repositories.RotationTx) error {
			got, err := tx.GetRotation(ctx, f.projectID, want.ID)
			require.NoError(t, err)
			assert.Equal(t, models.RotationPending, got.Status)
			assert.Equal(t, want.TeamEncryptedKeys, got.TeamEncryptedKeys)
			assert.Equal(t, want.ConfigItems, got.ConfigItems)
			assert.Empty(t, got.FileFEKs)
			assert.Equal(t, want.Snapshot.ConfigItemIDs, got.Snapshot.ConfigItemIDs)
			assert.Equal(t, "hash", got.Snapshot.ConfigItemsHash)

			_, err = tx.GetRotation(ctx, uuid.New(), want.ID)
			assert.ErrorIs(t, err, repositories.ErrNotFound)

			state, err := tx.ProjectState(ctx, f.projectID)
			require.NoError(t, err)
			assert.Equal(t, []uuid.UUID{f.teamID}, state.TeamIDs)
			require.Len(t, state.ConfigItems, 1)
			assert.Equal(t, "ciphertext-v1", state.ConfigItems[0].Value)
			return nil
		}))
	})
}

func TestRotationStore_DuplicateVote(t *testing.T) {
	database.WithTestDB(t, func(tdb *database.TestDB) {
		f := newStoreFixture(t, tdb)
		store := NewRotationStore(tdb.Pool)
		ctx := context.Background()
		rotation := f.pendingRotation()

		err := store.InTx(ctx, func(tx repositories.RotationTx) error {
			if err := tx.CreateRotation(ctx, rotation); err != nil {
				return err
			}
			if err := tx.CreateVote(ctx, &models.RotationApproval{RotationID: rotation.ID, UserID: f.member, Approved: true}); err != nil {
				return err
			}
			return tx.CreateVote(ctx, &models.RotationApproval{RotationID: rotation.ID, UserID: f.member, Approved: false})
		})

		assert.ErrorIs(t, err, repositories.ErrUniqueViolation)
	})
}

func TestRotationStore_RollbackOnError(t *testing.T) {
	database.WithTestDB(t, func(tdb *database.TestDB) {
		f := newStoreFixture(t, tdb)
		store := NewRotationStore(tdb.Pool)
		ctx := context.Background()
		boom := errors.New("boom")

		err := store.InTx(ctx, func(tx repositories.RotationTx) error {
			if _, err := tx.SetKeyVersion(ctx, f.projectID, 2); err != nil {
				return err
			}
			if _, err := tx.UpdateConfigValue(ctx, f.projectID, f.itemID, "ciphertext-v2"); err != nil {
				return err
			}
			return boom
		})
		require.ErrorIs(t, err, boom)

		require.NoError(t, store.InTx(ctx, func(tx repositories.RotationTx) error {
			project, err := tx.LockProject(ctx, f.projectID)
			require.NoError(t, err)
			assert.Equal(t, 1, project.KeyVersion)

			state, err := tx.ProjectState(ctx, f.projectID)
			require.NoError(t, err)
			assert.Equal(t, "ciphertext-v1", state.ConfigItems[0].Value)
			return nil
		}))
	})
}

// validCiphertext is any well-formed symmetric blob
func validCiphertext(t *testing.T) string {
	t.Helper()
	key, err := keys.GenerateKey()
	require.NoError(t, err)
	blob, err := keys.EncryptSymmetric(key, []byte("payload"))
	require.NoError(t, err)
	return keys.EncodeBlob(blob)
}

func TestRotationService_SecondInitiateAlreadyPending(t *testing.T) {
	database.WithTestDB(t, func(tdb *database.TestDB) {
		f := newStoreFixture(t, tdb)
		ctx := context.Background()

		second, err := tdb.CreateTestUser("admin2-" + uuid.NewString() + "@example.com")
		require.NoError(t, err)
		_, err = tdb.Pool.Exec(ctx,
			"INSERT INTO organization_users (organization_id, user_id, role) VALUES ($1, $2, 'admin')",
			f.orgID, second)
		require.NoError(t, err)

		store := NewRotationStore(tdb.Pool)
		svc := services.NewRotationService(store, services.NewAccessService(NewAccessRepository(tdb.Pool)))
		req := &models.InitiateRotationRequest{
			TeamEncryptedKeys:      []models.TeamEncryptedKey{{TeamID: f.teamID, EncryptedProjectKey: validCiphertext(t)}},
			ReEncryptedConfigItems: []models.ReEncryptedConfigItem{{ID: f.itemID, Value: validCiphertext(t)}},
		}

		result, err := svc.Initiate(ctx, f.admin, f.projectID, req)
		require.NoError(t, err)
		assert.False(t, result.Committed)

		_, err = svc.Initiate(ctx, second, f.projectID, req)
		assert.ErrorIs(t, err, services.ErrAlreadyPending)
	})
}

func TestRotationService_CommitRevokesTokens(t *testing.T) {
	database.WithTestDB(t, func(tdb *database.TestDB) {
		f := newStoreFixture(t, tdb)
		ctx := context.Background()

		access := services.NewAccessService(NewAccessRepository(tdb.Pool))
		tokens := services.NewTokenService(NewTokenRepository(tdb.Pool), access)
		rotations := services.NewRotationService(NewRotationStore(tdb.Pool), access)

		tok, err := keys.GenerateToken()
		require.NoError(t, err)
		projectKey, err := keys.GenerateKey()
		require.NoError(t, err)
		sealed, err := keys.SealToToken(tok.PublicKey, projectKey)
		require.NoError(t, err)

		_, err = tokens.Create(ctx, f.admin, f.projectID, &models.CreateProjectTokenRequest{
			Name:                "deploy",
			ExpiresAt:           time.Now().Add(time.Hour),
			TokenPrefix:         tok.Prefix,
			IdentityIDHash:      tok.IdentityIDHash,
			EncryptedProjectKey: keys.EncodeBlob(sealed),
		})
		require.NoError(t, err)

		_, err = tokens.Authenticate(ctx, tok.IdentityID)
		require.NoError(t, err)

		result, err := rotations.Initiate(ctx, f.admin, f.projectID, &models.InitiateRotationRequest{
			TeamEncryptedKeys:      []models.TeamEncryptedKey{{TeamID: f.teamID, EncryptedProjectKey: validCiphertext(t)}},
			ReEncryptedConfigItems: []models.ReEncryptedConfigItem{{ID: f.itemID, Value: validCiphertext(t)}},
		})
		require.NoError(t, err)
		require.True(t, result.Committed, "a sole admin commits immediately")
		assert.EqualValues(t, 1, result.TokensInvalidated)

		_, err = tokens.Authenticate(ctx, tok.IdentityID)
		assert.ErrorIs(t, err, services.ErrTokenNotFound)
	})
}

func TestAccessRepository(t *testing.T) {
	database.WithTestDB(t, func(tdb *database.TestDB) {
		f := newStoreFixture(t, tdb)
		repo := NewAccessRepository(tdb.Pool)
		ctx := context.Background()

		org, err := repo.GetOrgMembership(ctx, f.orgID, f.admin)
		require.NoError(t, err)
		require.NotNil(t, org)
		assert.Equal(t, models.Role("Owner"), org.Role)

		none, err := repo.GetOrgMembership(ctx, f.orgID, f.member)
		require.NoError(t, err)
		assert.Nil(t, none)

		team, err := repo.GetTeamMembership(ctx, f.projectID, f.member)
		require.NoError(t, err)
		require.NotNil(t, team)
		assert.Equal(t, f.teamID, team.TeamID)
		assert.Equal(t, "team-wrapped", team.EncryptedProjectKey)

		admins, err := repo.OrgAdminIDs(ctx, f.orgID)
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{f.admin}, admins)

		_, err = repo.GetProject(ctx, uuid.New())
		assert.ErrorIs(t, err, repositories.ErrNotFound)
	})
}

func TestTokenRepository(t *testing.T) {
	database.WithTestDB(t, func(tdb *database.TestDB) {
		f := newStoreFixture(t, tdb)
		repo := NewTokenRepository(tdb.Pool)
		ctx := context.Background()

		expires := time.Now().Add(time.Hour).UTC().Truncate(time.Microsecond)
		token := &models.ProjectToken{
			ID:                  uuid.New(),
			ProjectID:           f.projectID,
			Name:                "ci",
			TokenPrefix:         "abc",
			IdentityIDHash:      "aa" + uuid.NewString()[:30] + "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb",
			EncryptedProjectKey: "sealed",
			ExpiresAt:           &expires,
			CreatedBy:           f.admin,
		}
		require.NoError(t, repo.Create(ctx, token))

		dup := *token
		dup.ID = uuid.New()
		assert.ErrorIs(t, repo.Create(ctx, &dup), repositories.ErrUniqueViolation)

		got, err := repo.GetByIdentityHash(ctx, token.IdentityIDHash)
		require.NoError(t, err)
		assert.Equal(t, token.ID, got.ID)
		assert.Nil(t, got.LastUsedAt)

		require.NoError(t, repo.TouchLastUsed(ctx, token.ID, time.Now()))
		got, err = repo.GetByIdentityHash(ctx, token.IdentityIDHash)
		require.NoError(t, err)
		assert.NotNil(t, got.LastUsedAt)

		n, err := repo.Delete(ctx, uuid.New(), token.ID)
		require.NoError(t, err)
		assert.Zero(t, n, "delete is scoped to the project")

		n, err = repo.Delete(ctx, f.projectID, token.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		_, err = repo.GetByIdentityHash(ctx, token.IdentityIDHash)
		assert.ErrorIs(t, err, repositories.ErrNotFound)
	})
}
