package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/envie/envie-server/src/keys"
	"github.com/envie/envie-server/src/metrics"
	"github.com/envie/envie-server/src/middleware"
	"github.com/envie/envie-server/src/models"
	"github.com/envie/envie-server/src/repositories"
	"github.com/envie/envie-server/src/repositories/mock"
	"github.com/envie/envie-server/src/services"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const testJWTSecret = "handler-test-secret-0123456789abcdef"

// testEnv is the full router over real services and in-memory storage.
// The project has one team, one config item and one CLI token.
type testEnv struct {
	t          *testing.T
	router     *gin.Engine
	store      *mock.RotationStore
	tokens     map[string]*models.ProjectToken
	project    models.Project
	projectKey []byte
	teamID     uuid.UUID
	teamKey    []byte
	admins     []uuid.UUID
	member     uuid.UUID
}

func newTestEnv(t *testing.T, adminCount int) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	e := &testEnv{
		t:       t,
		store:   mock.NewRotationStore(),
		tokens:  make(map[string]*models.ProjectToken),
		project: models.Project{ID: uuid.New(), OrganizationID: uuid.New(), Name: "web", KeyVersion: 1},
		teamID:  uuid.New(),
		member:  uuid.New(),
	}
	for i := 0; i < adminCount; i++ {
		e.admins = append(e.admins, uuid.New())
	}

	var err error
	if e.projectKey, err = keys.GenerateKey(); err != nil {
		t.Fatalf("failed to generate project key: %v", err)
	}
	if e.teamKey, err = keys.GenerateKey(); err != nil {
		t.Fatalf("failed to generate team key: %v", err)
	}

	e.store.AddProject(e.project)
	e.store.SetTeamKey(e.project.ID, e.teamID, e.seal(e.teamKey, e.projectKey))
	e.store.AddConfigItem(models.ConfigItem{
		ID:        uuid.New(),
		ProjectID: e.project.ID,
		Name:      "SECRET",
		Value:     e.seal(e.projectKey, []byte("hunter2")),
	})
	e.store.AddToken(e.project.ID, uuid.New())

	access := services.NewAccessService(e.accessRepository())
	projectRepo := mock.NewProjectRepository()
	projectRepo.ListConfigItemsFunc = func(ctx context.Context, projectID uuid.UUID) ([]models.ConfigItem, error) {
		return e.store.ConfigItems(projectID), nil
	}
	tokenService := services.NewTokenService(e.tokenRepository(), access)
	projectService := services.NewProjectService(projectRepo, access)

	e.router = gin.New()
	e.router.Use(middleware.RequestIDMiddleware())
	SetupRoutes(e.router, Handlers{
		Health:    NewHealthHandler(stubHealth{}),
		Rotations: NewRotationHandler(services.NewRotationService(e.store, access)),
		Tokens:    NewTokenHandler(tokenService),
		Projects:  NewProjectHandler(projectService),
		CLI:       NewCLIHandler(projectService),
	}, RouteConfig{
		JWTSecret:     testJWTSecret,
		CLIAuth:       tokenService,
		RotationLimit: middleware.RateLimitConfig{RequestsPerMinute: 6000, Burst: 100},
		CLILimit:      middleware.RateLimitConfig{RequestsPerMinute: 6000, Burst: 100},
		Metrics:       metrics.Handler(),
	})
	return e
}

func (e *testEnv) accessRepository() *mock.AccessRepository {
	repo := mock.NewAccessRepository()
	repo.GetProjectFunc = func(ctx context.Context, projectID uuid.UUID) (*models.Project, error) {
		if projectID != e.project.ID {
			return nil, repositories.ErrNotFound
		}
		p := e.store.Project(projectID)
		return &p, nil
	}
	repo.GetOrgMembershipFunc = func(ctx context.Context, orgID, userID uuid.UUID) (*models.OrgMembership, error) {
		for _, admin := range e.admins {
			if admin == userID {
				return &models.OrgMembership{Role: models.RoleAdmin}, nil
			}
		}
		if userID == e.member {
			return &models.OrgMembership{Role: models.RoleMember}, nil
		}
		return nil, nil
	}
	repo.GetTeamMembershipFunc = func(ctx context.Context, projectID, userID uuid.UUID) (*models.TeamMembership, error) {
		if userID == e.member {
			return &models.TeamMembership{TeamID: e.teamID, Role: models.RoleMember}, nil
		}
		return nil, nil
	}
	repo.OrgAdminIDsFunc = func(ctx context.Context, orgID uuid.UUID) ([]uuid.UUID, error) {
		return e.admins, nil
	}
	repo.AccessibleProjectIDsFunc = func(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
		return []uuid.UUID{e.project.ID}, nil
	}
	return repo
}

func (e *testEnv) tokenRepository() *mock.TokenRepository {
	repo := mock.NewTokenRepository()
	repo.CreateFunc = func(ctx context.Context, token *models.ProjectToken) error {
		if _, exists := e.tokens[token.IdentityIDHash]; exists {
			return repositories.ErrUniqueViolation
		}
		e.tokens[token.IdentityIDHash] = token
		e.store.AddToken(token.ProjectID, token.ID)
		return nil
	}
	// a committed rotation clears the store's token set
	repo.GetByIdentityHashFunc = func(ctx context.Context, hash string) (*models.ProjectToken, error) {
		token, ok := e.tokens[hash]
		if !ok || !e.store.HasToken(token.ProjectID, token.ID) {
			return nil, repositories.ErrNotFound
		}
		copied := *token
		return &copied, nil
	}
	repo.ListByProjectFunc = func(ctx context.Context, projectID uuid.UUID) ([]models.ProjectToken, error) {
		var out []models.ProjectToken
		for _, token := range e.tokens {
			if token.ProjectID == projectID && e.store.HasToken(projectID, token.ID) {
				out = append(out, *token)
			}
		}
		return out, nil
	}
	return repo
}

func (e *testEnv) seal(key, plaintext []byte) string {
	e.t.Helper()
	blob, err := keys.EncryptSymmetric(key, plaintext)
	if err != nil {
		e.t.Fatalf("failed to encrypt: %v", err)
	}
	return keys.EncodeBlob(blob)
}

// do sends a request as user; uuid.Nil sends no credentials
func (e *testEnv) do(method, path string, user uuid.UUID, body interface{}) *httptest.ResponseRecorder {
	e.t.Helper()

	req := httptest.NewRequest(method, path, jsonBody(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != uuid.Nil {
		token, err := middleware.GenerateUserToken(testJWTSecret, user, time.Hour)
		if err != nil {
			e.t.Fatalf("failed to generate user token: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// rotationRequest re-encrypts the current store contents under a fresh key
func (e *testEnv) rotationRequest() (models.InitiateRotationRequest, []byte) {
	e.t.Helper()

	in := keys.RotationInput{
		CurrentProjectKey: e.projectKey,
		TeamKeys:          map[string][]byte{e.teamID.String(): e.teamKey},
	}
	for _, it := range e.store.ConfigItems(e.project.ID) {
		blob, err := keys.DecodeBlob(it.Value)
		if err != nil {
			e.t.Fatalf("failed to decode config value: %v", err)
		}
		in.ConfigValues = append(in.ConfigValues, keys.SealedItem{ID: it.ID.String(), Blob: blob})
	}

	bundle, err := keys.BuildRotation(in)
	if err != nil {
		e.t.Fatalf("failed to build rotation: %v", err)
	}

	var req models.InitiateRotationRequest
	for _, v := range bundle.ConfigValues {
		req.ReEncryptedConfigItems = append(req.ReEncryptedConfigItems, models.ReEncryptedConfigItem{
			ID: uuid.MustParse(v.ID), Value: keys.EncodeBlob(v.Blob),
		})
	}
	for _, w := range bundle.TeamWraps {
		req.TeamEncryptedKeys = append(req.TeamEncryptedKeys, models.TeamEncryptedKey{
			TeamID: uuid.MustParse(w.ID), EncryptedProjectKey: keys.EncodeBlob(w.Blob),
		})
	}
	req.ReEncryptedFileFEKs = []models.ReEncryptedFileFEK{}
	return req, bundle.NewProjectKey
}

func TestRouter_OpsEndpoints(t *testing.T) {
	e := newTestEnv(t, 1)

	for _, path := range []string{"/health", "/ready", "/info", "/metrics"} {
		t.Run(path, func(t *testing.T) {
			assertStatusCode(t, e.do(http.MethodGet, path, uuid.Nil, nil), http.StatusOK)
		})
	}
}

func TestRouter_RequiresAuthentication(t *testing.T) {
	e := newTestEnv(t, 1)

	paths := []string{
		"/projects/" + e.project.ID.String() + "/rotation",
		"/projects/" + e.project.ID.String() + "/config",
		"/projects/" + e.project.ID.String() + "/tokens",
		"/pending-rotations",
	}
	for _, path := range paths {
		t.Run(path, func(t *testing.T) {
			w := e.do(http.MethodGet, path, uuid.Nil, nil)
			assertStatusCode(t, w, http.StatusUnauthorized)
			assertErrorCode(t, w, "unauthorized")
		})
	}

	w := e.do(http.MethodGet, "/cli/verify", uuid.Nil, nil)
	assertStatusCode(t, w, http.StatusUnauthorized)
}

func TestRouter_RotationFlow(t *testing.T) {
	e := newTestEnv(t, 2)
	rotationPath := "/projects/" + e.project.ID.String() + "/rotation"
	req, newKey := e.rotationRequest()

	w := e.do(http.MethodPost, rotationPath, e.admins[0], req)
	assertStatusCode(t, w, http.StatusCreated)
	initiated := decodeJSON(t, w)
	if initiated["committed"] != false {
		t.Fatalf("expected pending rotation, got %s", w.Body.String())
	}
	rotationID, _ := initiated["rotationId"].(string)
	if rotationID == "" {
		t.Fatalf("expected rotationId in %s", w.Body.String())
	}

	w = e.do(http.MethodGet, rotationPath, e.member, nil)
	assertStatusCode(t, w, http.StatusOK)
	if decodeJSON(t, w)["pending"] == nil {
		t.Errorf("expected pending rotation in %s", w.Body.String())
	}

	w = e.do(http.MethodPost, rotationPath, e.admins[1], req)
	assertStatusCode(t, w, http.StatusConflict)
	assertErrorCode(t, w, "already_pending")

	approvePath := rotationPath + "/" + rotationID + "/approve"

	w = e.do(http.MethodPost, approvePath, e.admins[0], nil)
	assertStatusCode(t, w, http.StatusForbidden)
	assertErrorCode(t, w, "self_approval")

	w = e.do(http.MethodPost, approvePath, e.member, nil)
	assertStatusCode(t, w, http.StatusForbidden)
	assertErrorCode(t, w, "access_denied")

	w = e.do(http.MethodPost, approvePath, e.admins[1], map[string]bool{"verifiedDecryption": true})
	assertStatusCode(t, w, http.StatusOK)
	if decodeJSON(t, w)["committed"] != true {
		t.Fatalf("expected committed rotation, got %s", w.Body.String())
	}

	if got := e.store.Project(e.project.ID).KeyVersion; got != 2 {
		t.Errorf("expected key version 2, got %d", got)
	}
	for _, it := range e.store.ConfigItems(e.project.ID) {
		blob, err := keys.DecodeBlob(it.Value)
		if err != nil {
			t.Fatalf("failed to decode value: %v", err)
		}
		plaintext, err := keys.DecryptSymmetric(newKey, blob)
		if err != nil || string(plaintext) != "hunter2" {
			t.Errorf("config value not re-encrypted under the new key: %v", err)
		}
	}
	if n := e.store.TokenCount(e.project.ID); n != 0 {
		t.Errorf("expected tokens invalidated, %d left", n)
	}

	w = e.do(http.MethodGet, rotationPath, e.admins[0], nil)
	assertStatusCode(t, w, http.StatusOK)
	if pending, ok := decodeJSON(t, w)["pending"]; !ok || pending != nil {
		t.Errorf("expected no pending rotation, got %s", w.Body.String())
	}
}

func TestRouter_SingleAdminCommitsOnInitiate(t *testing.T) {
	e := newTestEnv(t, 1)
	req, _ := e.rotationRequest()

	w := e.do(http.MethodPost, "/projects/"+e.project.ID.String()+"/rotation", e.admins[0], req)

	assertStatusCode(t, w, http.StatusOK)
	response := decodeJSON(t, w)
	if response["committed"] != true {
		t.Errorf("expected committed rotation, got %s", w.Body.String())
	}
	if response["newVersion"] != float64(2) {
		t.Errorf("expected newVersion 2, got %v", response["newVersion"])
	}
}

func TestRouter_CommittedRotationRevokesCLITokens(t *testing.T) {
	e := newTestEnv(t, 1)

	tok, err := keys.GenerateToken()
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}
	sealed, err := keys.SealToToken(tok.PublicKey, e.projectKey)
	if err != nil {
		t.Fatalf("failed to seal project key: %v", err)
	}
	w := e.do(http.MethodPost, "/projects/"+e.project.ID.String()+"/tokens", e.admins[0], models.CreateProjectTokenRequest{
		Name:                "deploy",
		ExpiresAt:           time.Now().Add(24 * time.Hour).UTC(),
		TokenPrefix:         tok.Prefix,
		IdentityIDHash:      tok.IdentityIDHash,
		EncryptedProjectKey: keys.EncodeBlob(sealed),
	})
	assertStatusCode(t, w, http.StatusCreated)

	verify := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/cli/verify", nil)
		req.Header.Set(middleware.CLIIdentityHeader, tok.IdentityID)
		w := httptest.NewRecorder()
		e.router.ServeHTTP(w, req)
		return w
	}
	assertStatusCode(t, verify(), http.StatusOK)

	req, _ := e.rotationRequest()
	w = e.do(http.MethodPost, "/projects/"+e.project.ID.String()+"/rotation", e.admins[0], req)
	assertStatusCode(t, w, http.StatusOK)
	if got := decodeJSON(t, w)["tokensInvalidated"]; got != float64(2) {
		t.Errorf("expected 2 tokens invalidated, got %v", got)
	}

	assertStatusCode(t, verify(), http.StatusUnauthorized)
}

func TestRouter_StaleApprovalReturnsReason(t *testing.T) {
	e := newTestEnv(t, 2)
	rotationPath := "/projects/" + e.project.ID.String() + "/rotation"
	req, _ := e.rotationRequest()

	w := e.do(http.MethodPost, rotationPath, e.admins[0], req)
	assertStatusCode(t, w, http.StatusCreated)
	rotationID, _ := decodeJSON(t, w)["rotationId"].(string)

	item := e.store.ConfigItems(e.project.ID)[0]
	e.store.SetConfigItemValue(e.project.ID, item.ID, e.seal(e.projectKey, []byte("rotated-by-hand")))

	w = e.do(http.MethodPost, rotationPath+"/"+rotationID+"/approve", e.admins[1], nil)

	assertStatusCode(t, w, http.StatusConflict)
	response := decodeJSON(t, w)
	if response["code"] != "stale" {
		t.Errorf("expected code 'stale', got %v", response["code"])
	}
	if response["reason"] != models.StaleConfigValues {
		t.Errorf("expected reason %q, got %v", models.StaleConfigValues, response["reason"])
	}
}

func TestRouter_RotationValidation(t *testing.T) {
	e := newTestEnv(t, 1)
	rotationPath := "/projects/" + e.project.ID.String() + "/rotation"

	t.Run("invalid project id", func(t *testing.T) {
		w := e.do(http.MethodGet, "/projects/not-a-uuid/rotation", e.admins[0], nil)
		assertStatusCode(t, w, http.StatusBadRequest)
	})

	t.Run("unknown project", func(t *testing.T) {
		w := e.do(http.MethodGet, "/projects/"+uuid.NewString()+"/rotation", e.admins[0], nil)
		assertStatusCode(t, w, http.StatusNotFound)
		assertErrorCode(t, w, "project_not_found")
	})

	t.Run("malformed body", func(t *testing.T) {
		w := e.do(http.MethodPost, rotationPath, e.admins[0], "{not json")
		assertStatusCode(t, w, http.StatusBadRequest)
	})

	t.Run("member cannot initiate", func(t *testing.T) {
		req, _ := e.rotationRequest()
		w := e.do(http.MethodPost, rotationPath, e.member, req)
		assertStatusCode(t, w, http.StatusForbidden)
		assertErrorCode(t, w, "access_denied")
	})

	t.Run("missing config item", func(t *testing.T) {
		req, _ := e.rotationRequest()
		req.ReEncryptedConfigItems = []models.ReEncryptedConfigItem{}
		w := e.do(http.MethodPost, rotationPath, e.admins[0], req)
		assertStatusCode(t, w, http.StatusBadRequest)
		assertErrorCode(t, w, "incomplete_config_set")
	})

	t.Run("unknown rotation", func(t *testing.T) {
		w := e.do(http.MethodPost, rotationPath+"/"+uuid.NewString()+"/approve", e.admins[0], nil)
		assertStatusCode(t, w, http.StatusNotFound)
		assertErrorCode(t, w, "rotation_not_found")
	})
}

func TestRouter_PendingRotations(t *testing.T) {
	e := newTestEnv(t, 2)
	req, _ := e.rotationRequest()

	w := e.do(http.MethodPost, "/projects/"+e.project.ID.String()+"/rotation", e.admins[0], req)
	assertStatusCode(t, w, http.StatusCreated)

	w = e.do(http.MethodGet, "/pending-rotations", e.admins[1], nil)
	assertStatusCode(t, w, http.StatusOK)
	pending, ok := decodeJSON(t, w)["pendingRotations"].([]interface{})
	if !ok || len(pending) != 1 {
		t.Errorf("expected one pending rotation, got %s", w.Body.String())
	}
}

func TestRouter_Tokens(t *testing.T) {
	e := newTestEnv(t, 1)
	tokensPath := "/projects/" + e.project.ID.String() + "/tokens"

	tok, err := keys.GenerateToken()
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}
	sealed, err := keys.SealToToken(tok.PublicKey, e.projectKey)
	if err != nil {
		t.Fatalf("failed to seal project key: %v", err)
	}
	create := models.CreateProjectTokenRequest{
		Name:                "deploy",
		ExpiresAt:           time.Now().Add(24 * time.Hour).UTC(),
		TokenPrefix:         tok.Prefix,
		IdentityIDHash:      tok.IdentityIDHash,
		EncryptedProjectKey: keys.EncodeBlob(sealed),
	}

	t.Run("binding errors", func(t *testing.T) {
		bad := create
		bad.IdentityIDHash = "short"
		w := e.do(http.MethodPost, tokensPath, e.admins[0], bad)
		assertStatusCode(t, w, http.StatusBadRequest)
		assertErrorCode(t, w, "bad_request")
	})

	t.Run("member cannot create", func(t *testing.T) {
		w := e.do(http.MethodPost, tokensPath, e.member, create)
		assertStatusCode(t, w, http.StatusForbidden)
	})

	w := e.do(http.MethodPost, tokensPath, e.admins[0], create)
	assertStatusCode(t, w, http.StatusCreated)
	created := decodeJSON(t, w)
	if _, leaked := created["identityIdHash"]; leaked {
		t.Error("identity hash must not be returned")
	}

	w = e.do(http.MethodPost, tokensPath, e.admins[0], create)
	assertStatusCode(t, w, http.StatusConflict)
	assertErrorCode(t, w, "token_exists")

	w = e.do(http.MethodGet, tokensPath, e.admins[0], nil)
	assertStatusCode(t, w, http.StatusOK)
	listed, ok := decodeJSON(t, w)["tokens"].([]interface{})
	if !ok || len(listed) != 1 {
		t.Errorf("expected one token, got %s", w.Body.String())
	}

	t.Run("cli verify", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/cli/verify", nil)
		req.Header.Set(middleware.CLIIdentityHeader, tok.IdentityID)
		w := httptest.NewRecorder()
		e.router.ServeHTTP(w, req)

		assertStatusCode(t, w, http.StatusOK)
		response := decodeJSON(t, w)
		if response["tokenName"] != "deploy" || response["projectName"] != "web" {
			t.Errorf("unexpected verify response: %s", w.Body.String())
		}
	})

	t.Run("cli config", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/cli/projects/"+e.project.ID.String()+"/config", nil)
		req.Header.Set(middleware.CLIIdentityHeader, tok.IdentityID)
		w := httptest.NewRecorder()
		e.router.ServeHTTP(w, req)

		assertStatusCode(t, w, http.StatusOK)
		var cfg models.CLIProjectConfig
		if err := json.Unmarshal(w.Body.Bytes(), &cfg); err != nil {
			t.Fatalf("failed to parse config: %v", err)
		}
		if len(cfg.Items) != 1 {
			t.Fatalf("expected one item, got %d", len(cfg.Items))
		}
		blob, err := keys.DecodeBlob(cfg.EncryptedProjectKey)
		if err != nil {
			t.Fatalf("failed to decode sealed key: %v", err)
		}
		projectKey, err := keys.OpenForToken(tok.PrivateKey, blob)
		if err != nil {
			t.Fatalf("token could not open project key: %v", err)
		}
		valueBlob, _ := keys.DecodeBlob(cfg.Items[0].EncryptedValue)
		value, err := keys.DecryptSymmetric(projectKey, valueBlob)
		if err != nil || string(value) != "hunter2" {
			t.Errorf("expected decrypted value 'hunter2', got %q (%v)", value, err)
		}
	})

	t.Run("cli config for another project", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/cli/projects/"+uuid.NewString()+"/config", nil)
		req.Header.Set(middleware.CLIIdentityHeader, tok.IdentityID)
		w := httptest.NewRecorder()
		e.router.ServeHTTP(w, req)

		assertStatusCode(t, w, http.StatusForbidden)
	})

	t.Run("cli unknown identity", func(t *testing.T) {
		other, _ := keys.GenerateToken()
		req := httptest.NewRequest(http.MethodGet, "/cli/verify", nil)
		req.Header.Set(middleware.CLIIdentityHeader, other.IdentityID)
		w := httptest.NewRecorder()
		e.router.ServeHTTP(w, req)

		assertStatusCode(t, w, http.StatusUnauthorized)
	})
}
