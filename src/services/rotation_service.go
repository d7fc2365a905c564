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

// RotationService coordinates multi-party project key rotation.
// Every transition runs in one transaction that first locks the project row.
// Expired and stale rotations are settled lazily by whichever call finds them.
type RotationService struct {
	store  repositories.RotationStore
	access *AccessService
	ttl    time.Duration
	now    func() time.Time
	log    zerolog.Logger
}

// NewRotationService creates a new rotation service
func NewRotationService(store repositories.RotationStore, access *AccessService) *RotationService {
	return &RotationService{
		store:  store,
		access: access,
		ttl:    models.RotationTTL,
		now:    time.Now,
		log:    logging.NewLogger("rotation"),
	}
}

// logger prefers the request-scoped logger when one is attached
func (s *RotationService) logger(ctx context.Context) *zerolog.Logger {
	if zerolog.Ctx(ctx).GetLevel() != zerolog.Disabled {
		l := logging.ComponentLogger(ctx, "rotation")
		return &l
	}
	return &s.log
}

// transition is a status change to report once its transaction commits
type transition struct {
	rotationID uuid.UUID
	status     models.RotationStatus
	reason     string
}

func (s *RotationService) report(ctx context.Context, projectID uuid.UUID, transitions []transition) {
	for _, t := range transitions {
		metrics.RotationTransitions.WithLabelValues(string(t.status)).Inc()
		event := s.logger(ctx).Info().
			Str("project_id", projectID.String()).
			Str("status", string(t.status))
		if t.rotationID != uuid.Nil {
			event = event.Str("rotation_id", t.rotationID.String())
		}
		if t.reason != "" {
			event = event.Str("reason", t.reason)
		}
		event.Msg("key rotation transition")
	}
}

func (s *RotationService) reportFailure(ctx context.Context, projectID uuid.UUID, err error) {
	if errors.Is(err, ErrCommitFailed) {
		metrics.RotationCommitFailures.Inc()
		s.logger(ctx).Error().Err(err).Str("project_id", projectID.String()).Msg("key rotation commit rolled back")
	}
}

func lockProject(ctx context.Context, tx repositories.RotationTx, projectID uuid.UUID) (*models.Project, error) {
	project, err := tx.LockProject(ctx, projectID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("failed to lock project: %w", err)
	}
	return project, nil
}

// pendingRotation loads rotationID and insists it is still pending
func pendingRotation(ctx context.Context, tx repositories.RotationTx, projectID, rotationID uuid.UUID) (*models.PendingRotation, error) {
	rotation, err := tx.GetRotation(ctx, projectID, rotationID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrRotationNotFound
		}
		return nil, fmt.Errorf("failed to load rotation: %w", err)
	}
	if rotation.Status != models.RotationPending {
		return nil, ErrRotationNotFound
	}
	return rotation, nil
}

// settle marks a pending rotation expired or stale when it no longer applies.
// It returns the zero transition when the rotation is still live.
func (s *RotationService) settle(ctx context.Context, tx repositories.RotationTx, rotation *models.PendingRotation, state *models.ProjectState) (transition, error) {
	var t transition
	switch {
	case rotation.IsExpired(s.now()):
		t = transition{rotationID: rotation.ID, status: models.RotationExpired}
	default:
		reason := staleReason(rotation.Snapshot, state)
		if reason == "" {
			return transition{}, nil
		}
		t = transition{rotationID: rotation.ID, status: models.RotationStale, reason: reason}
	}

	if err := tx.SetRotationStatus(ctx, rotation.ID, t.status); err != nil {
		return transition{}, fmt.Errorf("failed to mark rotation %s: %w", t.status, err)
	}
	rotation.Status = t.status
	return t, nil
}

func settledError(t transition) error {
	if t.status == models.RotationStale {
		return &StaleError{Reason: t.reason}
	}
	return ErrExpired
}

func hasVoted(votes []models.RotationApproval, userID uuid.UUID) bool {
	for _, v := range votes {
		if v.UserID == userID {
			return true
		}
	}
	return false
}

func countApprovals(votes []models.RotationApproval) int {
	n := 0
	for _, v := range votes {
		if v.Approved {
			n++
		}
	}
	return n
}

// Initiate proposes a rotation built client-side. With a single administrator
// it commits immediately and no rotation row is written.
func (s *RotationService) Initiate(ctx context.Context, userID, projectID uuid.UUID, req *models.InitiateRotationRequest) (*models.InitiateResult, error) {
	access, err := s.access.RequireEdit(ctx, userID, projectID)
	if err != nil {
		return nil, err
	}

	required, err := s.access.RequiredApprovals(ctx, projectID, access.Project.OrganizationID)
	if err != nil {
		return nil, err
	}

	var (
		result      *models.InitiateResult
		outcome     error
		transitions []transition
	)
	err = s.store.InTx(ctx, func(tx repositories.RotationTx) error {
		project, err := lockProject(ctx, tx, projectID)
		if err != nil {
			return err
		}

		state, err := tx.ProjectState(ctx, projectID)
		if err != nil {
			return fmt.Errorf("failed to read project state: %w", err)
		}

		existing, err := tx.GetPendingRotation(ctx, projectID)
		if err != nil {
			return fmt.Errorf("failed to check pending rotation: %w", err)
		}
		if existing != nil {
			t, err := s.settle(ctx, tx, existing, state)
			if err != nil {
				return err
			}
			if t.status == "" {
				outcome = ErrAlreadyPending
				return nil
			}
			transitions = append(transitions, t)
		}

		// A validation failure still commits the settle above
		if err := validatePayload(req, state); err != nil {
			outcome = err
			return nil
		}

		tokenCount, err := tx.CountProjectTokens(ctx, projectID)
		if err != nil {
			return fmt.Errorf("failed to count project tokens: %w", err)
		}

		rotation := &models.PendingRotation{
			ProjectID:         projectID,
			InitiatedBy:       userID,
			NewVersion:        project.KeyVersion + 1,
			Status:            models.RotationPending,
			RequiredApprovals: required,
			ExpiresAt:         s.now().Add(s.ttl),
			TeamEncryptedKeys: req.TeamEncryptedKeys,
			ConfigItems:       req.ReEncryptedConfigItems,
			FileFEKs:          req.ReEncryptedFileFEKs,
			Snapshot:          takeSnapshot(state),
		}

		if required == 0 {
			invalidated, err := commitRotation(ctx, tx, project, rotation)
			if err != nil {
				return err
			}
			result = &models.InitiateResult{
				Committed:         true,
				NewVersion:        rotation.NewVersion,
				TokensInvalidated: invalidated,
			}
			transitions = append(transitions, transition{status: models.RotationApproved})
			return nil
		}

		rotation.ID = uuid.New()
		if err := tx.CreateRotation(ctx, rotation); err != nil {
			if errors.Is(err, repositories.ErrUniqueViolation) {
				return ErrAlreadyPending
			}
			return fmt.Errorf("failed to create rotation: %w", err)
		}

		expiresAt := rotation.ExpiresAt
		result = &models.InitiateResult{
			Committed:             false,
			NewVersion:            rotation.NewVersion,
			RotationID:            &rotation.ID,
			RequiredApprovals:     required,
			ExpiresAt:             &expiresAt,
			TokensToBeInvalidated: tokenCount,
		}
		transitions = append(transitions, transition{rotationID: rotation.ID, status: models.RotationPending})
		return nil
	})
	if err != nil {
		s.reportFailure(ctx, projectID, err)
		return nil, err
	}

	s.report(ctx, projectID, transitions)
	if outcome != nil {
		return nil, outcome
	}
	if result.Committed {
		metrics.RotationCommits.WithLabelValues("immediate").Inc()
		metrics.TokensInvalidated.Add(float64(result.TokensInvalidated))
	}
	return result, nil
}

// Approve records an approval and commits once quorum is reached
func (s *RotationService) Approve(ctx context.Context, userID, projectID, rotationID uuid.UUID, verifiedDecryption bool) (*models.ApproveResult, error) {
	if _, err := s.access.RequireEdit(ctx, userID, projectID); err != nil {
		return nil, err
	}

	var (
		result      *models.ApproveResult
		outcome     error
		transitions []transition
	)
	err := s.store.InTx(ctx, func(tx repositories.RotationTx) error {
		project, err := lockProject(ctx, tx, projectID)
		if err != nil {
			return err
		}

		rotation, err := pendingRotation(ctx, tx, projectID, rotationID)
		if err != nil {
			return err
		}
		if rotation.InitiatedBy == userID {
			return ErrSelfApproval
		}

		votes, err := tx.ListVotes(ctx, rotation.ID)
		if err != nil {
			return fmt.Errorf("failed to list votes: %w", err)
		}
		if hasVoted(votes, userID) {
			return ErrDuplicateVote
		}

		state, err := tx.ProjectState(ctx, projectID)
		if err != nil {
			return fmt.Errorf("failed to read project state: %w", err)
		}
		t, err := s.settle(ctx, tx, rotation, state)
		if err != nil {
			return err
		}
		if t.status != "" {
			transitions = append(transitions, t)
			outcome = settledError(t)
			return nil
		}

		vote := &models.RotationApproval{
			ID:                 uuid.New(),
			RotationID:         rotation.ID,
			UserID:             userID,
			Approved:           true,
			VerifiedDecryption: verifiedDecryption,
		}
		if err := tx.CreateVote(ctx, vote); err != nil {
			if errors.Is(err, repositories.ErrUniqueViolation) {
				return ErrDuplicateVote
			}
			return fmt.Errorf("failed to record approval: %w", err)
		}

		approvals := countApprovals(votes) + 1
		result = &models.ApproveResult{
			CurrentApprovals:  approvals,
			RequiredApprovals: rotation.RequiredApprovals,
		}
		if approvals < rotation.RequiredApprovals {
			return nil
		}

		// Quorum reached; the state may have moved since it was first read
		state, err = tx.ProjectState(ctx, projectID)
		if err != nil {
			return fmt.Errorf("failed to read project state: %w", err)
		}
		if reason := staleReason(rotation.Snapshot, state); reason != "" {
			if err := tx.SetRotationStatus(ctx, rotation.ID, models.RotationStale); err != nil {
				return fmt.Errorf("failed to mark rotation stale: %w", err)
			}
			transitions = append(transitions, transition{rotationID: rotation.ID, status: models.RotationStale, reason: reason})
			result = nil
			outcome = &StaleError{Reason: reason}
			return nil
		}

		invalidated, err := commitRotation(ctx, tx, project, rotation)
		if err != nil {
			return err
		}
		result.Committed = true
		result.NewVersion = rotation.NewVersion
		result.TokensInvalidated = invalidated
		transitions = append(transitions, transition{rotationID: rotation.ID, status: models.RotationApproved})
		return nil
	})
	if err != nil {
		s.reportFailure(ctx, projectID, err)
		return nil, err
	}

	s.report(ctx, projectID, transitions)
	if outcome != nil {
		return nil, outcome
	}
	if result.Committed {
		metrics.RotationCommits.WithLabelValues("approved").Inc()
		metrics.TokensInvalidated.Add(float64(result.TokensInvalidated))
	}
	return result, nil
}

// Reject records a negative vote and ends the rotation
func (s *RotationService) Reject(ctx context.Context, userID, projectID, rotationID uuid.UUID, comment string) error {
	if _, err := s.access.RequireEdit(ctx, userID, projectID); err != nil {
		return err
	}

	var (
		outcome     error
		transitions []transition
	)
	err := s.store.InTx(ctx, func(tx repositories.RotationTx) error {
		if _, err := lockProject(ctx, tx, projectID); err != nil {
			return err
		}

		rotation, err := pendingRotation(ctx, tx, projectID, rotationID)
		if err != nil {
			return err
		}
		if rotation.InitiatedBy == userID {
			return ErrSelfApproval
		}

		votes, err := tx.ListVotes(ctx, rotation.ID)
		if err != nil {
			return fmt.Errorf("failed to list votes: %w", err)
		}
		if hasVoted(votes, userID) {
			return ErrDuplicateVote
		}

		state, err := tx.ProjectState(ctx, projectID)
		if err != nil {
			return fmt.Errorf("failed to read project state: %w", err)
		}
		t, err := s.settle(ctx, tx, rotation, state)
		if err != nil {
			return err
		}
		if t.status != "" {
			transitions = append(transitions, t)
			outcome = settledError(t)
			return nil
		}

		vote := &models.RotationApproval{
			ID:         uuid.New(),
			RotationID: rotation.ID,
			UserID:     userID,
			Approved:   false,
			Comment:    comment,
		}
		if err := tx.CreateVote(ctx, vote); err != nil {
			if errors.Is(err, repositories.ErrUniqueViolation) {
				return ErrDuplicateVote
			}
			return fmt.Errorf("failed to record rejection: %w", err)
		}
		if err := tx.SetRotationStatus(ctx, rotation.ID, models.RotationRejected); err != nil {
			return fmt.Errorf("failed to mark rotation rejected: %w", err)
		}
		transitions = append(transitions, transition{rotationID: rotation.ID, status: models.RotationRejected})
		return nil
	})
	if err != nil {
		return err
	}

	s.report(ctx, projectID, transitions)
	return outcome
}

// Cancel withdraws a pending rotation; only its initiator may do so
func (s *RotationService) Cancel(ctx context.Context, userID, projectID, rotationID uuid.UUID) error {
	if _, err := s.access.ProjectAccess(ctx, userID, projectID); err != nil {
		return err
	}

	err := s.store.InTx(ctx, func(tx repositories.RotationTx) error {
		if _, err := lockProject(ctx, tx, projectID); err != nil {
			return err
		}

		rotation, err := pendingRotation(ctx, tx, projectID, rotationID)
		if err != nil {
			return err
		}
		if rotation.InitiatedBy != userID {
			return ErrNotInitiator
		}

		if err := tx.SetRotationStatus(ctx, rotation.ID, models.RotationCancelled); err != nil {
			return fmt.Errorf("failed to cancel rotation: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.report(ctx, projectID, []transition{{rotationID: rotationID, status: models.RotationCancelled}})
	return nil
}

// Get returns the project's live pending rotation with its votes
func (s *RotationService) Get(ctx context.Context, userID, projectID uuid.UUID) (*models.RotationView, error) {
	if _, err := s.access.ProjectAccess(ctx, userID, projectID); err != nil {
		return nil, err
	}

	view := &models.RotationView{}
	var transitions []transition
	err := s.store.InTx(ctx, func(tx repositories.RotationTx) error {
		if _, err := lockProject(ctx, tx, projectID); err != nil {
			return err
		}

		rotation, err := tx.GetPendingRotation(ctx, projectID)
		if err != nil {
			return fmt.Errorf("failed to load pending rotation: %w", err)
		}
		if rotation == nil {
			return nil
		}

		state, err := tx.ProjectState(ctx, projectID)
		if err != nil {
			return fmt.Errorf("failed to read project state: %w", err)
		}
		t, err := s.settle(ctx, tx, rotation, state)
		if err != nil {
			return err
		}
		if t.status != "" {
			transitions = append(transitions, t)
			view.StaleRotationExists = t.status == models.RotationStale
			return nil
		}

		votes, err := tx.ListVotes(ctx, rotation.ID)
		if err != nil {
			return fmt.Errorf("failed to list votes: %w", err)
		}
		rotation.Approvals = votes
		view.Pending = rotation
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.report(ctx, projectID, transitions)
	return view, nil
}

// PendingForUser lists live rotations awaiting the user's vote across every
// project they can reach. Rotations they initiated or voted on are omitted.
func (s *RotationService) PendingForUser(ctx context.Context, userID uuid.UUID) ([]*models.PendingRotation, error) {
	pending := []*models.PendingRotation{}

	projectIDs, err := s.access.AccessibleProjectIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(projectIDs) == 0 {
		return pending, nil
	}

	var candidates []*models.PendingRotation
	err = s.store.InTx(ctx, func(tx repositories.RotationTx) error {
		candidates, err = tx.ListPendingRotations(ctx, projectIDs)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list pending rotations: %w", err)
	}

	for _, candidate := range candidates {
		if candidate.InitiatedBy == userID {
			continue
		}

		var (
			live        *models.PendingRotation
			transitions []transition
		)
		err := s.store.InTx(ctx, func(tx repositories.RotationTx) error {
			if _, err := lockProject(ctx, tx, candidate.ProjectID); err != nil {
				return err
			}
			rotation, err := pendingRotation(ctx, tx, candidate.ProjectID, candidate.ID)
			if err != nil {
				if errors.Is(err, ErrRotationNotFound) {
					return nil
				}
				return err
			}

			state, err := tx.ProjectState(ctx, candidate.ProjectID)
			if err != nil {
				return fmt.Errorf("failed to read project state: %w", err)
			}
			t, err := s.settle(ctx, tx, rotation, state)
			if err != nil {
				return err
			}
			if t.status != "" {
				transitions = append(transitions, t)
				return nil
			}

			votes, err := tx.ListVotes(ctx, rotation.ID)
			if err != nil {
				return fmt.Errorf("failed to list votes: %w", err)
			}
			if hasVoted(votes, userID) {
				return nil
			}
			rotation.Approvals = votes
			live = rotation
			return nil
		})
		if err != nil {
			if errors.Is(err, ErrProjectNotFound) {
				continue
			}
			return nil, err
		}

		s.report(ctx, candidate.ProjectID, transitions)
		if live != nil {
			pending = append(pending, live)
		}
	}

	return pending, nil
}

// validatePayload checks the bundle covers exactly the live project state and
// that every blob is structurally sound. Nothing is decrypted.
func validatePayload(req *models.InitiateRotationRequest, state *models.ProjectState) error {
	itemIDs := make(map[uuid.UUID]bool, len(state.ConfigItems))
	for _, it := range state.ConfigItems {
		itemIDs[it.ID] = false
	}
	if len(req.ReEncryptedConfigItems) != len(itemIDs) {
		return ErrIncompleteConfigSet
	}
	for _, it := range req.ReEncryptedConfigItems {
		seen, ok := itemIDs[it.ID]
		if !ok || seen {
			return ErrIncompleteConfigSet
		}
		itemIDs[it.ID] = true
	}

	teamIDs := make(map[uuid.UUID]bool, len(state.TeamIDs))
	for _, id := range state.TeamIDs {
		teamIDs[id] = false
	}
	if len(req.TeamEncryptedKeys) != len(teamIDs) {
		return ErrIncompleteTeamSet
	}
	for _, tk := range req.TeamEncryptedKeys {
		seen, ok := teamIDs[tk.TeamID]
		if !ok || seen {
			return ErrIncompleteTeamSet
		}
		teamIDs[tk.TeamID] = true
	}

	fileIDs := make(map[uuid.UUID]bool, len(state.FileIDs))
	for _, id := range state.FileIDs {
		fileIDs[id] = false
	}
	for _, f := range req.ReEncryptedFileFEKs {
		seen, ok := fileIDs[f.ID]
		if !ok || seen {
			return fmt.Errorf("%w: unknown or repeated file %s", ErrMalformedPayload, f.ID)
		}
		fileIDs[f.ID] = true
		if err := keys.ValidateSymmetricBlob(f.EncryptedFEK); err != nil {
			return fmt.Errorf("%w: file %s: %w", ErrMalformedPayload, f.ID, err)
		}
	}

	for _, it := range req.ReEncryptedConfigItems {
		if err := keys.ValidateSymmetricBlob(it.Value); err != nil {
			return fmt.Errorf("%w: config item %s: %w", ErrMalformedPayload, it.ID, err)
		}
	}
	for _, tk := range req.TeamEncryptedKeys {
		if err := keys.ValidateSymmetricBlob(tk.EncryptedProjectKey); err != nil {
			return fmt.Errorf("%w: team %s: %w", ErrMalformedPayload, tk.TeamID, err)
		}
	}

	return nil
}

func expectOneRow(n int64, err error) error {
	if err != nil {
		return err
	}
	if n != 1 {
		return fmt.Errorf("%d rows affected, expected 1", n)
	}
	return nil
}

// commitRotation applies a rotation inside tx and returns how many project
// tokens were deleted. Any error leaves the caller to roll back.
func commitRotation(ctx context.Context, tx repositories.RotationTx, project *models.Project, rotation *models.PendingRotation) (int64, error) {
	fail := func(step string, err error) (int64, error) {
		return 0, fmt.Errorf("%w: %s: %w", ErrCommitFailed, step, err)
	}

	if rotation.NewVersion != project.KeyVersion+1 {
		return fail("key version", fmt.Errorf("project is at version %d, rotation targets %d", project.KeyVersion, rotation.NewVersion))
	}
	if err := expectOneRow(tx.SetKeyVersion(ctx, project.ID, rotation.NewVersion)); err != nil {
		return fail("update key version", err)
	}

	for _, it := range rotation.ConfigItems {
		if err := expectOneRow(tx.UpdateConfigValue(ctx, project.ID, it.ID, it.Value)); err != nil {
			return fail("update config item "+it.ID.String(), err)
		}
	}

	for _, tk := range rotation.TeamEncryptedKeys {
		if err := expectOneRow(tx.UpdateTeamProjectKey(ctx, project.ID, tk.TeamID, tk.EncryptedProjectKey)); err != nil {
			return fail("update team key "+tk.TeamID.String(), err)
		}
	}

	for _, f := range rotation.FileFEKs {
		if err := expectOneRow(tx.UpdateFileFEK(ctx, project.ID, f.ID, f.EncryptedFEK)); err != nil {
			return fail("update file key "+f.ID.String(), err)
		}
	}

	if rotation.ID != uuid.Nil {
		if err := tx.SetRotationStatus(ctx, rotation.ID, models.RotationApproved); err != nil {
			return fail("mark rotation approved", err)
		}
	}

	deleted, err := tx.DeleteProjectTokens(ctx, project.ID)
	if err != nil {
		return fail("delete project tokens", err)
	}
	return deleted, nil
}
