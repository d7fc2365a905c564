package handlers

import (
	"net/http"

	"github.com/envie/envie-server/src/services"
	"github.com/gin-gonic/gin"
)

// ProjectHandler serves the ciphertexts clients need to decrypt or rotate
type ProjectHandler struct {
	projects *services.ProjectService
}

// NewProjectHandler creates a new project handler
func NewProjectHandler(projects *services.ProjectService) *ProjectHandler {
	return &ProjectHandler{projects: projects}
}

// HandleConfig returns current config ciphertexts and key version
func (h *ProjectHandler) HandleConfig(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	projectID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	cfg, err := h.projects.Config(c.Request.Context(), userID, projectID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

// HandleKeyMaterial returns the caller's wrap chain
func (h *ProjectHandler) HandleKeyMaterial(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	projectID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	km, err := h.projects.KeyMaterial(c.Request.Context(), userID, projectID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, km)
}

// HandleFileFEKs returns wrapped file keys
func (h *ProjectHandler) HandleFileFEKs(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	projectID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	feks, err := h.projects.FileFEKs(c.Request.Context(), userID, projectID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"files": feks})
}
