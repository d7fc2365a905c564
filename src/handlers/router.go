package handlers

import (
	"net/http"

	"github.com/envie/envie-server/src/middleware"
	"github.com/gin-gonic/gin"
)

// Handlers groups everything mounted by SetupRoutes
type Handlers struct {
	Health    *HealthHandler
	Rotations *RotationHandler
	Tokens    *TokenHandler
	Projects  *ProjectHandler
	CLI       *CLIHandler
}

// RouteConfig carries route-level middleware settings
type RouteConfig struct {
	JWTSecret     string
	CLIAuth       middleware.CLIAuthenticator
	RotationLimit middleware.RateLimitConfig
	CLILimit      middleware.RateLimitConfig
	// Metrics is served on /metrics when set
	Metrics http.Handler
}

// SetupRoutes mounts the API on router
func SetupRoutes(router *gin.Engine, h Handlers, cfg RouteConfig) {
	// Health check endpoints
	router.GET("/health", h.Health.HandleHealth)
	router.GET("/ready", h.Health.HandleReady)
	router.GET("/info", h.Health.HandleInfo)
	if cfg.Metrics != nil {
		router.GET("/metrics", gin.WrapH(cfg.Metrics))
	}

	// User API (JWT)
	api := router.Group("/", middleware.UserAuthMiddleware(cfg.JWTSecret))
	rotationWrites := middleware.NewUserRateLimitingMiddleware(cfg.RotationLimit)

	api.GET("/projects/:id/rotation", h.Rotations.HandleGet)
	api.POST("/projects/:id/rotation", rotationWrites, h.Rotations.HandleInitiate)
	api.POST("/projects/:id/rotation/:rotationId/approve", rotationWrites, h.Rotations.HandleApprove)
	api.POST("/projects/:id/rotation/:rotationId/reject", rotationWrites, h.Rotations.HandleReject)
	api.DELETE("/projects/:id/rotation/:rotationId", rotationWrites, h.Rotations.HandleCancel)
	api.GET("/pending-rotations", h.Rotations.HandlePendingForUser)

	api.GET("/projects/:id/config", h.Projects.HandleConfig)
	api.GET("/projects/:id/key-material", h.Projects.HandleKeyMaterial)
	api.GET("/projects/:id/files-feks", h.Projects.HandleFileFEKs)

	api.POST("/projects/:id/tokens", h.Tokens.HandleCreate)
	api.GET("/projects/:id/tokens", h.Tokens.HandleList)
	api.DELETE("/projects/:id/tokens/:tokenId", h.Tokens.HandleDelete)

	// CLI API (project token identity)
	cli := router.Group("/cli",
		middleware.NewIPRateLimitingMiddleware(cfg.CLILimit),
		middleware.CLIAuthMiddleware(cfg.CLIAuth),
	)
	cli.GET("/projects/:id/config", h.CLI.HandleConfig)
	cli.GET("/verify", h.CLI.HandleVerify)
}
