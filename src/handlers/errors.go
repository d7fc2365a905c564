package handlers

import (
	"errors"
	"net/http"

	"github.com/envie/envie-server/src/logging"
	"github.com/envie/envie-server/src/middleware"
	"github.com/envie/envie-server/src/services"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// errorStatus maps a service sentinel to its HTTP status and error code
type errorStatus struct {
	err    error
	status int
	code   string
}

var errorStatuses = []errorStatus{
	{services.ErrAccessDenied, http.StatusForbidden, "access_denied"},
	{services.ErrProjectNotFound, http.StatusNotFound, "project_not_found"},
	{services.ErrRotationNotFound, http.StatusNotFound, "rotation_not_found"},
	{services.ErrAlreadyPending, http.StatusConflict, "already_pending"},
	{services.ErrSelfApproval, http.StatusForbidden, "self_approval"},
	{services.ErrNotInitiator, http.StatusForbidden, "not_initiator"},
	{services.ErrDuplicateVote, http.StatusConflict, "duplicate_vote"},
	{services.ErrExpired, http.StatusGone, "expired"},
	{services.ErrIncompleteConfigSet, http.StatusBadRequest, "incomplete_config_set"},
	{services.ErrIncompleteTeamSet, http.StatusBadRequest, "incomplete_team_set"},
	{services.ErrMalformedPayload, http.StatusBadRequest, "malformed_payload"},
	{services.ErrCommitFailed, http.StatusInternalServerError, "commit_failed"},
	{services.ErrTokenNotFound, http.StatusNotFound, "token_not_found"},
	{services.ErrTokenExpired, http.StatusUnauthorized, "token_expired"},
	{services.ErrTokenExists, http.StatusConflict, "token_exists"},
	{services.ErrInvalidToken, http.StatusBadRequest, "invalid_token"},
}

// respondError writes the error body for err. Client errors carry the full
// message; server errors only the sentinel text.
func respondError(c *gin.Context, err error) {
	_ = c.Error(err)

	var stale *services.StaleError
	if errors.As(err, &stale) {
		c.JSON(http.StatusConflict, gin.H{
			"error":  err.Error(),
			"code":   "stale",
			"reason": stale.Reason,
		})
		return
	}

	for _, es := range errorStatuses {
		if !errors.Is(err, es.err) {
			continue
		}
		message := err.Error()
		if es.status >= http.StatusInternalServerError {
			message = es.err.Error()
		}
		c.JSON(es.status, gin.H{"error": message, "code": es.code})
		return
	}

	logging.FromContext(c.Request.Context()).Error().Err(err).Msg("unhandled error")
	c.JSON(http.StatusInternalServerError, gin.H{
		"error": "internal server error",
		"code":  "internal",
	})
}

func respondBadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": message, "code": "bad_request"})
}

// parseUUIDParam reads a UUID path parameter, answering 400 when it is invalid
func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		respondBadRequest(c, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

// requireUserID returns the authenticated user, answering 401 when absent
func requireUserID(c *gin.Context) (uuid.UUID, bool) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required", "code": "unauthorized"})
		return uuid.Nil, false
	}
	return userID, true
}
