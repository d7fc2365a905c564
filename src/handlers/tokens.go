package handlers

import (
	"net/http"

	"github.com/envie/envie-server/src/models"
	"github.com/envie/envie-server/src/services"
	"github.com/gin-gonic/gin"
)

// TokenHandler serves project token management
type TokenHandler struct {
	tokens *services.TokenService
}

// NewTokenHandler creates a new token handler
func NewTokenHandler(tokens *services.TokenService) *TokenHandler {
	return &TokenHandler{tokens: tokens}
}

// HandleCreate registers a client-generated token
func (h *TokenHandler) HandleCreate(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	projectID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req models.CreateProjectTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err.Error())
		return
	}

	token, err := h.tokens.Create(c.Request.Context(), userID, projectID, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, token)
}

// HandleList lists the project's tokens
func (h *TokenHandler) HandleList(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	projectID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	tokens, err := h.tokens.List(c.Request.Context(), userID, projectID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tokens": tokens})
}

// HandleDelete revokes a token
func (h *TokenHandler) HandleDelete(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	projectID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	tokenID, ok := parseUUIDParam(c, "tokenId")
	if !ok {
		return
	}

	if err := h.tokens.Delete(c.Request.Context(), userID, projectID, tokenID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "token deleted"})
}
