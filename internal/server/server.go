// Package server owns the HTTP server lifecycle: route setup, startup and
// graceful shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/forkcast/backend/config"
	"github.com/forkcast/backend/internal/api"
	"github.com/forkcast/backend/internal/middleware"
)

// Server wraps gin with graceful shutdown.
type Server struct {
	router *gin.Engine
	http   *http.Server
	cfg    *config.Config
	logger *zap.Logger
}

// New builds the router, registers every API route and prepares the HTTP
// server without starting it.
func New(cfg *config.Config, deps api.Deps) *Server {
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(deps.Logger))
	router.Use(middleware.CORS(cfg.Server.CORSOrigins))

	api.SetupAPI(router, deps)

	// Recipe images are served straight off disk when S3 isn't configured.
	if cfg.Storage.Bucket == "" {
		router.Static("/images", cfg.Storage.ImageDir)
	}

	return &Server{
		router: router,
		cfg:    cfg,
		logger: deps.Logger,
		http: &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
			Handler: router,
		},
	}
}

// Start listens until the server is shut down or fails.
func (s *Server) Start() error {
	s.logger.Info("server listening", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests within the configured timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Server.ShutdownTimeout)
	defer cancel()
	return s.http.Shutdown(ctx)
}

// Router exposes the underlying engine for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}
