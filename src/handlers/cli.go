package handlers

import (
	"net/http"

	"github.com/envie/envie-server/src/middleware"
	"github.com/envie/envie-server/src/services"
	"github.com/gin-gonic/gin"
)

// CLIHandler serves requests authenticated by a project token
type CLIHandler struct {
	projects *services.ProjectService
}

// NewCLIHandler creates a new CLI handler
func NewCLIHandler(projects *services.ProjectService) *CLIHandler {
	return &CLIHandler{projects: projects}
}

// HandleConfig returns the project config sealed for the calling token
func (h *CLIHandler) HandleConfig(c *gin.Context) {
	token := middleware.GetCLIToken(c)
	if token == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required", "code": "unauthorized"})
		return
	}
	projectID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	cfg, err := h.projects.CLIConfig(c.Request.Context(), token, projectID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

// HandleVerify describes the calling token
func (h *CLIHandler) HandleVerify(c *gin.Context) {
	token := middleware.GetCLIToken(c)
	if token == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required", "code": "unauthorized"})
		return
	}

	result, err := h.projects.CLIVerify(c.Request.Context(), token)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
