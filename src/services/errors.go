package services

import (
	"errors"
	"fmt"
)

// Sentinel errors for explicit error handling
// These errors allow callers to distinguish between different failure modes
// using errors.Is() instead of string matching

var (
	// ErrAccessDenied indicates the caller lacks the required project permission
	ErrAccessDenied = errors.New("access denied")

	// ErrProjectNotFound indicates the project does not exist
	ErrProjectNotFound = errors.New("project not found")

	// ErrRotationNotFound indicates no pending rotation matches the request
	ErrRotationNotFound = errors.New("rotation not found")

	// ErrAlreadyPending indicates the project already has a live pending rotation
	ErrAlreadyPending = errors.New("a key rotation is already pending for this project")

	// ErrSelfApproval indicates the initiator tried to vote on their own rotation
	ErrSelfApproval = errors.New("the initiator cannot vote on their own rotation")

	// ErrNotInitiator indicates only the initiator may perform the operation
	ErrNotInitiator = errors.New("only the initiator can cancel a rotation")

	// ErrDuplicateVote indicates the caller already voted on this rotation
	ErrDuplicateVote = errors.New("already voted on this rotation")

	// ErrExpired indicates the rotation passed its deadline
	ErrExpired = errors.New("rotation has expired")

	// ErrStale indicates protected project state changed since the proposal
	ErrStale = errors.New("rotation is stale")

	// ErrIncompleteConfigSet indicates the payload does not cover exactly the project's config items
	ErrIncompleteConfigSet = errors.New("re-encrypted config items do not match the project")

	// ErrIncompleteTeamSet indicates the payload does not cover exactly the teams with access
	ErrIncompleteTeamSet = errors.New("team encrypted keys do not match the teams with access")

	// ErrMalformedPayload indicates a structurally invalid blob or reference
	ErrMalformedPayload = errors.New("malformed rotation payload")

	// ErrCommitFailed indicates the rotation could not be applied; nothing was written
	ErrCommitFailed = errors.New("failed to commit key rotation")

	// ErrTokenNotFound indicates the project token does not exist
	ErrTokenNotFound = errors.New("token not found")

	// ErrTokenExpired indicates the project token is past its expiry
	ErrTokenExpired = errors.New("token has expired")

	// ErrTokenExists indicates a token with the same identity is already registered
	ErrTokenExists = errors.New("token already exists")

	// ErrInvalidToken indicates a token request failed validation
	ErrInvalidToken = errors.New("invalid token")
)

// StaleError carries the first detected staleness reason
type StaleError struct {
	Reason string
}

func (e *StaleError) Error() string {
	return fmt.Sprintf("%s: %s", ErrStale.Error(), e.Reason)
}

// Is lets errors.Is(err, ErrStale) match
func (e *StaleError) Is(target error) bool {
	return target == ErrStale
}
