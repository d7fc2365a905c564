package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/envie/envie-server/src/config"
	"github.com/envie/envie-server/src/database"
	"github.com/envie/envie-server/src/handlers"
	"github.com/envie/envie-server/src/logging"
	"github.com/envie/envie-server/src/metrics"
	"github.com/envie/envie-server/src/middleware"
	"github.com/envie/envie-server/src/repositories/postgres"
	"github.com/envie/envie-server/src/services"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logging
	logging.Setup(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	})

	log.Info().
		Int("port", cfg.Port).
		Str("log_level", cfg.LogLevel).
		Str("version", handlers.Version).
		Msg("starting server")

	if err := middleware.CheckJWTSecret(cfg.JWTSecret); err != nil {
		log.Fatal().Err(err).Msg("invalid JWT secret")
	}

	// Initialize database
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	db, err := database.New(ctx, cfg.DatabaseURL)
	cancel()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize database")
	}
	defer db.Close()

	log.Info().Msg("database connected")

	// Initialize repositories and services
	pool := db.GetPool()
	accessService := services.NewAccessService(postgres.NewAccessRepository(pool))
	rotationService := services.NewRotationService(postgres.NewRotationStore(pool), accessService)
	tokenService := services.NewTokenService(postgres.NewTokenRepository(pool), accessService)
	projectService := services.NewProjectService(postgres.NewProjectRepository(pool), accessService)

	// Create Gin router
	router := gin.New()

	// Add middleware
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggingMiddleware())
	router.Use(gin.Recovery())
	router.Use(cors.New(corsConfig(cfg.AllowedOrigins)))

	routeCfg := handlers.RouteConfig{
		JWTSecret: cfg.JWTSecret,
		CLIAuth:   tokenService,
		RotationLimit: middleware.RateLimitConfig{
			RequestsPerMinute: cfg.RotationRateLimitPerMinute,
			Burst:             cfg.RotationRateLimitBurst,
		},
		CLILimit: middleware.RateLimitConfig{
			RequestsPerMinute: cfg.CLIRateLimitPerMinute,
		},
	}
	if cfg.MetricsEnabled {
		routeCfg.Metrics = metrics.Handler()
	}

	handlers.SetupRoutes(router, handlers.Handlers{
		Health:    handlers.NewHealthHandler(db),
		Rotations: handlers.NewRotationHandler(rotationService),
		Tokens:    handlers.NewTokenHandler(tokenService),
		Projects:  handlers.NewProjectHandler(projectService),
		CLI:       handlers.NewCLIHandler(projectService),
	}, routeCfg)

	// Create HTTP server with timeouts (G112: protect from Slowloris attack)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().Int("port", cfg.Port).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigChan

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	// Graceful shutdown with timeout
	ctx, cancel = context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}

	log.Info().Msg("server shut down successfully")
}

// corsConfig allows the comma-separated origins, or localhost only when none are set
func corsConfig(allowedOrigins string) cors.Config {
	var origins []string
	for _, o := range strings.Split(allowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000", "http://localhost:5173"}
	}

	return cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.CLIIdentityHeader},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
}
