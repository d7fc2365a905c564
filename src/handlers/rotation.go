package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/envie/envie-server/src/models"
	"github.com/envie/envie-server/src/services"
	"github.com/gin-gonic/gin"
)

// RotationHandler serves the key rotation endpoints
type RotationHandler struct {
	rotations *services.RotationService
}

// NewRotationHandler creates a new rotation handler
func NewRotationHandler(rotations *services.RotationService) *RotationHandler {
	return &RotationHandler{rotations: rotations}
}

type approveRequest struct {
	VerifiedDecryption bool `json:"verifiedDecryption"`
}

type rejectRequest struct {
	Comment string `json:"comment" binding:"max=1000"`
}

// bindOptionalJSON binds the body when there is one
func bindOptionalJSON(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindJSON(obj); err != nil && !errors.Is(err, io.EOF) {
		respondBadRequest(c, err.Error())
		return false
	}
	return true
}

// HandleGet returns the project's pending rotation
func (h *RotationHandler) HandleGet(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	projectID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	view, err := h.rotations.Get(c.Request.Context(), userID, projectID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// HandleInitiate proposes a new rotation
func (h *RotationHandler) HandleInitiate(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	projectID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req models.InitiateRotationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err.Error())
		return
	}

	result, err := h.rotations.Initiate(c.Request.Context(), userID, projectID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusCreated
	if result.Committed {
		status = http.StatusOK
	}
	c.JSON(status, result)
}

// HandleApprove votes for a rotation
func (h *RotationHandler) HandleApprove(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	projectID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	rotationID, ok := parseUUIDParam(c, "rotationId")
	if !ok {
		return
	}

	var req approveRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	result, err := h.rotations.Approve(c.Request.Context(), userID, projectID, rotationID, req.VerifiedDecryption)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// HandleReject votes against a rotation
func (h *RotationHandler) HandleReject(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	projectID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	rotationID, ok := parseUUIDParam(c, "rotationId")
	if !ok {
		return
	}

	var req rejectRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	if err := h.rotations.Reject(c.Request.Context(), userID, projectID, rotationID, req.Comment); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "rotation rejected"})
}

// HandleCancel withdraws the caller's own rotation
func (h *RotationHandler) HandleCancel(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	projectID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	rotationID, ok := parseUUIDParam(c, "rotationId")
	if !ok {
		return
	}

	if err := h.rotations.Cancel(c.Request.Context(), userID, projectID, rotationID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "rotation cancelled"})
}

// HandlePendingForUser lists rotations waiting on the caller's vote
func (h *RotationHandler) HandlePendingForUser(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	pending, err := h.rotations.PendingForUser(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pendingRotations": pending})
}
