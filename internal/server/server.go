// Package server wires the control API and runs it until its context ends.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"static-deploy/internal/config"
	"static-deploy/internal/deploy"
	"static-deploy/internal/handler"
	"static-deploy/internal/pkg/logger"
	"static-deploy/internal/router"
	"static-deploy/internal/service"
)

const shutdownTimeout = 10 * time.Second

// NewEngine builds the API for cfg. Deployments started through it are
// cancelled when ctx ends.
func NewEngine(ctx context.Context, cfg *config.Config, dial deploy.Dialer, run deploy.RunFunc, log *logger.Logger) (*gin.Engine, *service.DeployService) {
	deployService := service.NewDeployService(ctx, cfg, dial, run, log)
	sshService := service.NewSSHService(cfg, dial, log)
	diagnoseService := service.NewDiagnoseService(cfg, dial, run, log)

	engine := router.New(cfg.Server.AllowOrigins, log, router.Handlers{
		Deploy:   handler.NewDeployHandler(deployService, cfg.Server.AllowOrigins, log),
		SSH:      handler.NewSSHHandler(sshService),
		Diagnose: handler.NewDiagnoseHandler(diagnoseService),
	})
	return engine, deployService
}

// Run serves the API on cfg.Server.Addr. Encrypted keys need their
// passphrase in the config since there is no terminal to prompt on.
func Run(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	gin.SetMode(gin.ReleaseMode)

	engine, deployService := NewEngine(ctx, cfg, deploy.SSHDialer(cfg, nil), deploy.LocalRun, log)
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", zap.String("address", cfg.Server.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	deployService.Wait()
	return nil
}
