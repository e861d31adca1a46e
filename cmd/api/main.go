package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/forkcast/backend/config"
	"github.com/forkcast/backend/internal/api"
	"github.com/forkcast/backend/internal/database"
	"github.com/forkcast/backend/internal/server"
	"github.com/forkcast/backend/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	db, err := database.New(&cfg.Database)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	if err := database.Migrate(db); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}
	if err := database.Seed(db); err != nil {
		logger.Fatal("failed to seed database", zap.Error(err))
	}

	ctx := context.Background()

	redisClient, err := database.NewRedisClient(&cfg.Redis)
	if err != nil {
		logger.Warn("redis unavailable, import jobs will run synchronously", zap.Error(err))
		redisClient = nil
	}

	var llm service.LLMClient
	if cfg.AI.APIKey != "" {
		llm, err = service.NewGeminiClient(ctx, cfg.AI.APIKey, cfg.AI.Model)
		if err != nil {
			logger.Warn("AI client unavailable, AI features disabled", zap.Error(err))
		} else {
			defer llm.Close()
		}
	} else {
		logger.Info("no AI API key configured, AI features disabled")
	}

	images, err := service.NewImageService(ctx, &cfg.Storage, logger)
	if err != nil {
		logger.Fatal("failed to initialize image storage", zap.Error(err))
	}

	srv := server.New(cfg, api.Deps{
		DB:     db,
		Redis:  redisClient,
		Config: cfg,
		Logger: logger,
		LLM:    llm,
		Images: images,
	})

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		if err != nil {
			logger.Fatal("server error", zap.Error(err))
		}
	case sig := <-quit:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	if err := srv.Shutdown(context.Background()); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	var zapCfg zap.Config
	if cfg.App.Environment == "production" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}
	if level, err := zapcore.ParseLevel(cfg.App.LogLevel); err == nil {
		zapCfg.Level = zap.NewAtomicLevelAt(level)
	}
	return zapCfg.Build()
}
