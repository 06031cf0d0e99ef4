package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"static-deploy/internal/config"
	"static-deploy/internal/pkg/logger"
	"static-deploy/internal/server"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(config.Options{
		ConfigFile: os.Getenv("DEPLOY_CONFIG_FILE"),
		EnvFile:    os.Getenv("DEPLOY_ENV_FILE"),
	})
	if err != nil {
		logger.Must("info", "console").Fatal("failed to load configuration", zap.Error(err))
	}

	appLogger := logger.Must(cfg.Logging.Level, cfg.Logging.Format)
	defer appLogger.Sync()
	zap.ReplaceGlobals(appLogger.Logger)

	if err := server.Run(ctx, cfg, appLogger); err != nil {
		appLogger.Fatal("failed to start server", zap.Error(err))
	}
}
