package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/envie/envie-server/src/logging"
	"github.com/envie/envie-server/src/models"
	"github.com/envie/envie-server/src/services"
	"github.com/gin-gonic/gin"
)

const (
	// CLIIdentityHeader carries the hex identity ID derived from a CLI token
	CLIIdentityHeader = "X-CLI-Identity"
	// CLITokenKey is the context key for the authenticated project token
	CLITokenKey = "cli_token"
)

// CLIAuthenticator resolves a CLI identity to its project token
type CLIAuthenticator interface {
	Authenticate(ctx context.Context, identityID string) (*models.ProjectToken, error)
}

// CLIAuthMiddleware authenticates requests from the CLI by identity header
func CLIAuthMiddleware(auth CLIAuthenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		identityID := c.GetHeader(CLIIdentityHeader)
		if identityID == "" {
			abortWithError(c, http.StatusUnauthorized, "unauthorized", "missing "+CLIIdentityHeader+" header")
			return
		}

		token, err := auth.Authenticate(c.Request.Context(), identityID)
		if err != nil {
			switch {
			case errors.Is(err, services.ErrInvalidToken):
				abortWithError(c, http.StatusUnauthorized, "invalid_token", "invalid identity ID format")
			case errors.Is(err, services.ErrTokenNotFound):
				abortWithError(c, http.StatusUnauthorized, "invalid_token", "invalid or unknown token")
			case errors.Is(err, services.ErrTokenExpired):
				abortWithError(c, http.StatusUnauthorized, "token_expired", "token has expired")
			default:
				logging.FromContext(c.Request.Context()).Error().Err(err).Msg("CLI authentication failed")
				abortWithError(c, http.StatusInternalServerError, "internal", "failed to authenticate token")
			}
			return
		}

		c.Set(CLITokenKey, token)
		c.Request = c.Request.WithContext(logging.WithFields(c.Request.Context(), "token_id", token.ID.String()))
		c.Next()
	}
}

// GetCLIToken returns the token stored by CLIAuthMiddleware
func GetCLIToken(c *gin.Context) *models.ProjectToken {
	v, exists := c.Get(CLITokenKey)
	if !exists {
		return nil
	}
	token, _ := v.(*models.ProjectToken)
	return token
}
