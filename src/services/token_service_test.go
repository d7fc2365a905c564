package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/envie/envie-server/src/keys"
	"github.com/envie/envie-server/src/models"
	"github.com/envie/envie-server/src/repositories"
	"github.com/envie/envie-server/src/repositories/mock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tokenFixture struct {
	project models.Project
	admin   uuid.UUID
	member  uuid.UUID
	repo    *mock.TokenRepository
	svc     *TokenService
	clock   time.Time
}

func newTokenFixture(t *testing.T) *tokenFixture {
	t.Helper()

	f := &tokenFixture{
		project: models.Project{ID: uuid.New(), OrganizationID: uuid.New(), Name: "api", KeyVersion: 3},
		admin:   uuid.New(),
		member:  uuid.New(),
		repo:    mock.NewTokenRepository(),
		clock:   time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC),
	}
	access := testProjectAccess(f.project,
		map[uuid.UUID]models.Role{f.admin: models.RoleAdmin},
		map[uuid.UUID]models.Role{f.member: models.RoleMember},
	)
	f.svc = NewTokenService(f.repo, NewAccessService(access))
	f.svc.now = func() time.Time { return f.clock }
	return f
}

// createRequest builds a request the way the CLI does: generate a token and
// seal the project key to it
func (f *tokenFixture) createRequest(t *testing.T) (*models.CreateProjectTokenRequest, *keys.TokenIdentity) {
	t.Helper()

	tok, err := keys.GenerateToken()
	require.NoError(t, err)
	projectKey, err := keys.GenerateKey()
	require.NoError(t, err)
	sealed, err := keys.SealToToken(tok.PublicKey, projectKey)
	require.NoError(t, err)

	return &models.CreateProjectTokenRequest{
		Name:                "ci",
		ExpiresAt:           f.clock.Add(30 * 24 * time.Hour),
		TokenPrefix:         tok.Prefix,
		IdentityIDHash:      tok.IdentityIDHash,
		EncryptedProjectKey: keys.EncodeBlob(sealed),
	}, tok
}

func TestTokenService_Create(t *testing.T) {
	f := newTokenFixture(t)
	req, _ := f.createRequest(t)

	token, err := f.svc.Create(context.Background(), f.admin, f.project.ID, req)

	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, token.ID)
	assert.Equal(t, f.project.ID, token.ProjectID)
	assert.Equal(t, req.IdentityIDHash, token.IdentityIDHash)
	assert.Equal(t, f.admin, token.CreatedBy)
	require.NotNil(t, token.ExpiresAt)
	assert.Equal(t, req.ExpiresAt, *token.ExpiresAt)
	assert.Len(t, f.repo.Calls["Create"], 1)
}

func TestTokenService_CreateValidation(t *testing.T) {
	tests := []struct {
		name    string
		userID  func(f *tokenFixture) uuid.UUID
		mutate  func(f *tokenFixture, req *models.CreateProjectTokenRequest)
		wantErr error
	}{
		{
			name:    "team member cannot create",
			userID:  func(f *tokenFixture) uuid.UUID { return f.member },
			wantErr: ErrAccessDenied,
		},
		{
			name: "expiry in the past",
			mutate: func(f *tokenFixture, req *models.CreateProjectTokenRequest) {
				req.ExpiresAt = f.clock.Add(-time.Minute)
			},
			wantErr: ErrInvalidToken,
		},
		{
			name: "expiry exactly now",
			mutate: func(f *tokenFixture, req *models.CreateProjectTokenRequest) {
				req.ExpiresAt = f.clock
			},
			wantErr: ErrInvalidToken,
		},
		{
			name: "sealed key too short",
			mutate: func(f *tokenFixture, req *models.CreateProjectTokenRequest) {
				req.EncryptedProjectKey = keys.EncodeBlob(make([]byte, 16))
			},
			wantErr: ErrInvalidToken,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newTokenFixture(t)
			req, _ := f.createRequest(t)
			userID := f.admin
			if tt.userID != nil {
				userID = tt.userID(f)
			}
			if tt.mutate != nil {
				tt.mutate(f, req)
			}

			_, err := f.svc.Create(context.Background(), userID, f.project.ID, req)

			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, f.repo.Calls["Create"])
		})
	}
}

func TestTokenService_CreateDuplicate(t *testing.T) {
	f := newTokenFixture(t)
	f.repo.CreateFunc = func(ctx context.Context, token *models.ProjectToken) error {
		return fmt.Errorf("%w: identity_id_hash", repositories.ErrUniqueViolation)
	}
	req, _ := f.createRequest(t)

	_, err := f.svc.Create(context.Background(), f.admin, f.project.ID, req)

	assert.ErrorIs(t, err, ErrTokenExists)
}

func TestTokenService_ListReturnsEmptySlice(t *testing.T) {
	f := newTokenFixture(t)

	tokens, err := f.svc.List(context.Background(), f.admin, f.project.ID)

	require.NoError(t, err)
	assert.NotNil(t, tokens)
	assert.Empty(t, tokens)

	_, err = f.svc.List(context.Background(), f.member, f.project.ID)
	assert.ErrorIs(t, err, ErrAccessDenied)
}

func TestTokenService_Delete(t *testing.T) {
	f := newTokenFixture(t)
	existing := uuid.New()
	f.repo.DeleteFunc = func(ctx context.Context, projectID, tokenID uuid.UUID) (int64, error) {
		if projectID == f.project.ID && tokenID == existing {
			return 1, nil
		}
		return 0, nil
	}

	assert.NoError(t, f.svc.Delete(context.Background(), f.admin, f.project.ID, existing))
	assert.ErrorIs(t, f.svc.Delete(context.Background(), f.admin, f.project.ID, uuid.New()), ErrTokenNotFound)
}

func TestTokenService_Authenticate(t *testing.T) {
	f := newTokenFixture(t)
	req, tok := f.createRequest(t)
	stored, err := f.svc.Create(context.Background(), f.admin, f.project.ID, req)
	require.NoError(t, err)

	f.repo.GetByIdentityHashFunc = func(ctx context.Context, hash string) (*models.ProjectToken, error) {
		if hash != stored.IdentityIDHash {
			return nil, repositories.ErrNotFound
		}
		copied := *stored
		return &copied, nil
	}
	var touched time.Time
	f.repo.TouchLastUsedFunc = func(ctx context.Context, tokenID uuid.UUID, at time.Time) error {
		touched = at
		return nil
	}

	t.Run("valid identity", func(t *testing.T) {
		got, err := f.svc.Authenticate(context.Background(), tok.IdentityID)

		require.NoError(t, err)
		assert.Equal(t, stored.ID, got.ID)
		require.NotNil(t, got.LastUsedAt)
		assert.Equal(t, f.clock, touched)

		// the sealed project key opens with the token the CLI holds
		blob, err := keys.DecodeBlob(got.EncryptedProjectKey)
		require.NoError(t, err)
		_, err = keys.OpenForToken(tok.PrivateKey, blob)
		assert.NoError(t, err)
	})

	t.Run("malformed identity", func(t *testing.T) {
		_, err := f.svc.Authenticate(context.Background(), "not-hex")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("unknown identity", func(t *testing.T) {
		other, err := keys.GenerateToken()
		require.NoError(t, err)

		_, err = f.svc.Authenticate(context.Background(), other.IdentityID)
		assert.ErrorIs(t, err, ErrTokenNotFound)
	})

	t.Run("expired token", func(t *testing.T) {
		f.clock = stored.ExpiresAt.Add(time.Second)
		defer func() { f.clock = stored.CreatedAt }()

		_, err := f.svc.Authenticate(context.Background(), tok.IdentityID)
		assert.ErrorIs(t, err, ErrTokenExpired)
	})

	t.Run("touch failure does not reject", func(t *testing.T) {
		f.repo.TouchLastUsedFunc = func(ctx context.Context, tokenID uuid.UUID, at time.Time) error {
			return errors.New("read-only replica")
		}

		got, err := f.svc.Authenticate(context.Background(), tok.IdentityID)
		require.NoError(t, err)
		assert.Nil(t, got.LastUsedAt)
	})
}
