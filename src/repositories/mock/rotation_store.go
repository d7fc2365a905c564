package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/envie/envie-server/src/models"
	"github.com/envie/envie-server/src/repositories"
	"github.com/google/uuid"
)

// RotationStore is an in-memory repositories.RotationStore.
// Each InTx works on a copy of the state that replaces the original only
// when fn returns nil, so a failed transaction leaves nothing behind.
type RotationStore struct {
	mu    sync.Mutex
	state *memState

	// Failure injection; when set these replace the default behaviour
	UpdateConfigValueFunc    func(projectID, itemID uuid.UUID, value string) (int64, error)
	UpdateTeamProjectKeyFunc func(projectID, teamID uuid.UUID, key string) (int64, error)
	UpdateFileFEKFunc        func(projectID, fileID uuid.UUID, fek string) (int64, error)
	DeleteProjectTokensFunc  func(projectID uuid.UUID) (int64, error)

	// ProjectStateFunc sees the stored state and may return a different one
	ProjectStateFunc func(projectID uuid.UUID, state *models.ProjectState) (*models.ProjectState, error)

	// Call tracking
	Calls map[string][]interface{}
}

type memState struct {
	projects       map[uuid.UUID]models.Project
	items          map[uuid.UUID][]models.ConfigItem
	teamKeys       map[uuid.UUID]map[uuid.UUID]string
	files          map[uuid.UUID]map[uuid.UUID]string
	secretManagers map[uuid.UUID][]uuid.UUID
	tokens         map[uuid.UUID][]uuid.UUID
	rotations      map[uuid.UUID]models.PendingRotation
	votes          map[uuid.UUID][]models.RotationApproval
}

func newMemState() *memState {
	return &memState{
		projects:       make(map[uuid.UUID]models.Project),
		items:          make(map[uuid.UUID][]models.ConfigItem),
		teamKeys:       make(map[uuid.UUID]map[uuid.UUID]string),
		files:          make(map[uuid.UUID]map[uuid.UUID]string),
		secretManagers: make(map[uuid.UUID][]uuid.UUID),
		tokens:         make(map[uuid.UUID][]uuid.UUID),
		rotations:      make(map[uuid.UUID]models.PendingRotation),
		votes:          make(map[uuid.UUID][]models.RotationApproval),
	}
}

func (s *memState) clone() *memState {
	c := newMemState()
	for k, v := range s.projects {
		c.projects[k] = v
	}
	for k, v := range s.items {
		c.items[k] = append([]models.ConfigItem(nil), v...)
	}
	for k, v := range s.teamKeys {
		c.teamKeys[k] = cloneStrings(v)
	}
	for k, v := range s.files {
		c.files[k] = cloneStrings(v)
	}
	for k, v := range s.secretManagers {
		c.secretManagers[k] = append([]uuid.UUID(nil), v...)
	}
	for k, v := range s.tokens {
		c.tokens[k] = append([]uuid.UUID(nil), v...)
	}
	for k, v := range s.rotations {
		c.rotations[k] = v
	}
	for k, v := range s.votes {
		c.votes[k] = append([]models.RotationApproval(nil), v...)
	}
	return c
}

func cloneStrings(m map[uuid.UUID]string) map[uuid.UUID]string {
	c := make(map[uuid.UUID]string, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

// NewRotationStore creates an empty in-memory store
func NewRotationStore() *RotationStore {
	return &RotationStore{
		state: newMemState(),
		Calls: make(map[string][]interface{}),
	}
}

func (m *RotationStore) InTx(ctx context.Context, fn func(tx repositories.RotationTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls["InTx"] = append(m.Calls["InTx"], nil)
	work := m.state.clone()
	if err := fn(&memTx{store: m, s: work}); err != nil {
		return err
	}
	m.state = work
	return nil
}

// Seeding helpers

func (m *RotationStore) AddProject(p models.Project) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.projects[p.ID] = p
}

func (m *RotationStore) AddConfigItem(item models.ConfigItem) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.items[item.ProjectID] = append(m.state.items[item.ProjectID], item)
}

// SetConfigItemValue changes a value outside any rotation
func (m *RotationStore) SetConfigItemValue(projectID, itemID uuid.UUID, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, it := range m.state.items[projectID] {
		if it.ID == itemID {
			m.state.items[projectID][i].Value = value
		}
	}
}

func (m *RotationStore) SetTeamKey(projectID, teamID uuid.UUID, encryptedProjectKey string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.teamKeys[projectID] == nil {
		m.state.teamKeys[projectID] = make(map[uuid.UUID]string)
	}
	m.state.teamKeys[projectID][teamID] = encryptedProjectKey
}

func (m *RotationStore) AddFile(projectID, fileID uuid.UUID, encryptedFEK string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.files[projectID] == nil {
		m.state.files[projectID] = make(map[uuid.UUID]string)
	}
	m.state.files[projectID][fileID] = encryptedFEK
}

func (m *RotationStore) AddSecretManagerConfig(projectID, configID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.secretManagers[projectID] = append(m.state.secretManagers[projectID], configID)
}

func (m *RotationStore) AddToken(projectID, tokenID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.tokens[projectID] = append(m.state.tokens[projectID], tokenID)
}

// Inspection helpers

func (m *RotationStore) Project(projectID uuid.UUID) models.Project {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.projects[projectID]
}

func (m *RotationStore) ConfigItems(projectID uuid.UUID) []models.ConfigItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.ConfigItem(nil), m.state.items[projectID]...)
}

func (m *RotationStore) TeamKey(projectID, teamID uuid.UUID) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.teamKeys[projectID][teamID]
}

func (m *RotationStore) FileFEK(projectID, fileID uuid.UUID) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.files[projectID][fileID]
}

func (m *RotationStore) TokenCount(projectID uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.state.tokens[projectID])
}

// HasToken reports whether tokenID survives for projectID
func (m *RotationStore) HasToken(projectID, tokenID uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.state.tokens[projectID] {
		if id == tokenID {
			return true
		}
	}
	return false
}

func (m *RotationStore) Rotation(rotationID uuid.UUID) (models.PendingRotation, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.state.rotations[rotationID]
	return r, ok
}

// RotationCount returns how many rotation rows exist for the project
func (m *RotationStore) RotationCount(projectID uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.state.rotations {
		if r.ProjectID == projectID {
			n++
		}
	}
	return n
}

// ModifyRotation edits a stored rotation in place, e.g. to move its deadline
func (m *RotationStore) ModifyRotation(rotationID uuid.UUID, fn func(*models.PendingRotation)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rot := m.state.rotations[rotationID]
	fn(&rot)
	m.state.rotations[rotationID] = rot
}

// memTx is one transaction's view of the store
type memTx struct {
	store *RotationStore
	s     *memState
}

func (t *memTx) record(name string, args ...interface{}) {
	t.store.Calls[name] = append(t.store.Calls[name], args)
}

func (t *memTx) LockProject(ctx context.Context, projectID uuid.UUID) (*models.Project, error) {
	t.record("LockProject", projectID)
	p, ok := t.s.projects[projectID]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &p, nil
}

func (t *memTx) ProjectState(ctx context.Context, projectID uuid.UUID) (*models.ProjectState, error) {
	t.record("ProjectState", projectID)
	state := &models.ProjectState{
		ConfigItems:            append([]models.ConfigItem(nil), t.s.items[projectID]...),
		SecretManagerConfigIDs: append([]uuid.UUID(nil), t.s.secretManagers[projectID]...),
	}
	for teamID := range t.s.teamKeys[projectID] {
		state.TeamIDs = append(state.TeamIDs, teamID)
	}
	for fileID := range t.s.files[projectID] {
		state.FileIDs = append(state.FileIDs, fileID)
	}
	if t.store.ProjectStateFunc != nil {
		return t.store.ProjectStateFunc(projectID, state)
	}
	return state, nil
}

func (t *memTx) GetPendingRotation(ctx context.Context, projectID uuid.UUID) (*models.PendingRotation, error) {
	t.record("GetPendingRotation", projectID)
	for _, r := range t.s.rotations {
		if r.ProjectID == projectID && r.Status == models.RotationPending {
			return &r, nil
		}
	}
	return nil, nil
}

func (t *memTx) GetRotation(ctx context.Context, projectID, rotationID uuid.UUID) (*models.PendingRotation, error) {
	t.record("GetRotation", projectID, rotationID)
	r, ok := t.s.rotations[rotationID]
	if !ok || r.ProjectID != projectID {
		return nil, repositories.ErrNotFound
	}
	return &r, nil
}

func (t *memTx) ListPendingRotations(ctx context.Context, projectIDs []uuid.UUID) ([]*models.PendingRotation, error) {
	t.record("ListPendingRotations", projectIDs)
	wanted := make(map[uuid.UUID]bool, len(projectIDs))
	for _, id := range projectIDs {
		wanted[id] = true
	}
	var out []*models.PendingRotation
	for _, r := range t.s.rotations {
		if wanted[r.ProjectID] && r.Status == models.RotationPending {
			r := r
			out = append(out, &r)
		}
	}
	return out, nil
}

func (t *memTx) CreateRotation(ctx context.Context, r *models.PendingRotation) error {
	t.record("CreateRotation", r)
	if r.Status == models.RotationPending {
		for _, existing := range t.s.rotations {
			if existing.ProjectID == r.ProjectID && existing.Status == models.RotationPending {
				return fmt.Errorf("%w: one pending rotation per project", repositories.ErrUniqueViolation)
			}
		}
	}
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	t.s.rotations[r.ID] = *r
	return nil
}

func (t *memTx) SetRotationStatus(ctx context.Context, rotationID uuid.UUID, status models.RotationStatus) error {
	t.record("SetRotationStatus", rotationID, status)
	r, ok := t.s.rotations[rotationID]
	if !ok {
		return repositories.ErrNotFound
	}
	r.Status = status
	t.s.rotations[rotationID] = r
	return nil
}

func (t *memTx) ListVotes(ctx context.Context, rotationID uuid.UUID) ([]models.RotationApproval, error) {
	t.record("ListVotes", rotationID)
	return append([]models.RotationApproval{}, t.s.votes[rotationID]...), nil
}

func (t *memTx) CreateVote(ctx context.Context, v *models.RotationApproval) error {
	t.record("CreateVote", v)
	for _, existing := range t.s.votes[v.RotationID] {
		if existing.UserID == v.UserID {
			return fmt.Errorf("%w: one vote per user", repositories.ErrUniqueViolation)
		}
	}
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	t.s.votes[v.RotationID] = append(t.s.votes[v.RotationID], *v)
	return nil
}

func (t *memTx) SetKeyVersion(ctx context.Context, projectID uuid.UUID, version int) (int64, error) {
	t.record("SetKeyVersion", projectID, version)
	p, ok := t.s.projects[projectID]
	if !ok {
		return 0, nil
	}
	p.KeyVersion = version
	t.s.projects[projectID] = p
	return 1, nil
}

func (t *memTx) UpdateConfigValue(ctx context.Context, projectID, itemID uuid.UUID, value string) (int64, error) {
	t.record("UpdateConfigValue", projectID, itemID)
	if t.store.UpdateConfigValueFunc != nil {
		return t.store.UpdateConfigValueFunc(projectID, itemID, value)
	}
	items := t.s.items[projectID]
	for i := range items {
		if items[i].ID == itemID {
			items[i].Value = value
			return 1, nil
		}
	}
	return 0, nil
}

func (t *memTx) UpdateTeamProjectKey(ctx context.Context, projectID, teamID uuid.UUID, encryptedProjectKey string) (int64, error) {
	t.record("UpdateTeamProjectKey", projectID, teamID)
	if t.store.UpdateTeamProjectKeyFunc != nil {
		return t.store.UpdateTeamProjectKeyFunc(projectID, teamID, encryptedProjectKey)
	}
	if _, ok := t.s.teamKeys[projectID][teamID]; !ok {
		return 0, nil
	}
	t.s.teamKeys[projectID][teamID] = encryptedProjectKey
	return 1, nil
}

func (t *memTx) UpdateFileFEK(ctx context.Context, projectID, fileID uuid.UUID, encryptedFEK string) (int64, error) {
	t.record("UpdateFileFEK", projectID, fileID)
	if t.store.UpdateFileFEKFunc != nil {
		return t.store.UpdateFileFEKFunc(projectID, fileID, encryptedFEK)
	}
	if _, ok := t.s.files[projectID][fileID]; !ok {
		return 0, nil
	}
	t.s.files[projectID][fileID] = encryptedFEK
	return 1, nil
}

func (t *memTx) DeleteProjectTokens(ctx context.Context, projectID uuid.UUID) (int64, error) {
	t.record("DeleteProjectTokens", projectID)
	if t.store.DeleteProjectTokensFunc != nil {
		return t.store.DeleteProjectTokensFunc(projectID)
	}
	n := int64(len(t.s.tokens[projectID]))
	delete(t.s.tokens, projectID)
	return n, nil
}

func (t *memTx) CountProjectTokens(ctx context.Context, projectID uuid.UUID) (int64, error) {
	t.record("CountProjectTokens", projectID)
	return int64(len(t.s.tokens[projectID])), nil
}

// Ensure RotationStore implements the interface
var _ repositories.RotationStore = (*RotationStore)(nil)
