package service

import (
	"context"
	"fmt"

	"static-deploy/internal/config"
	"static-deploy/internal/deploy"
	"static-deploy/internal/model"
	"static-deploy/internal/pkg/logger"
	"static-deploy/pkg/utils"
)

type SSHService struct {
	cfg    *config.Config
	dial   deploy.Dialer
	logger *logger.Logger
}

func NewSSHService(cfg *config.Config, dial deploy.Dialer, logger *logger.Logger) *SSHService {
	return &SSHService{
		cfg:    cfg,
		dial:   dial,
		logger: logger,
	}
}

// TestConnection connects to the configured target and collects a few
// facts about it.
func (s *SSHService) TestConnection(ctx context.Context) *model.SSHTestResponse {
	target := s.cfg.Login()
	s.logger.SSHConnectionAttempt("test", target)

	remote, err := s.dial(ctx)
	if err != nil {
		s.logger.Sugar().Errorf("SSH connection failed for %s: %v", target, err)
		return &model.SSHTestResponse{
			Success: false,
			Message: fmt.Sprintf("cannot connect to %s", target),
			Details: []string{
				"✗ SSH connection test failed",
				utils.NewSSHError(err).Error(),
			},
		}
	}
	defer remote.Close()

	details := []string{"✓ SSH connection successful"}

	if result, err := remote.ExecuteCommand(ctx, "whoami"); err == nil {
		details = append(details, fmt.Sprintf("✓ Current user: %s", result.Stdout))
	}

	if result, err := remote.ExecuteCommand(ctx, "uname -a"); err == nil {
		details = append(details, fmt.Sprintf("✓ System: %s", result.Stdout))
	}

	parent := utils.ShellQuote(s.cfg.Diagnose.WebRoot)
	if result, err := remote.ExecuteCommand(ctx, "df -h "+parent+" | tail -1"); err == nil {
		details = append(details, fmt.Sprintf("✓ Disk: %s", result.Stdout))
	}

	s.logger.Sugar().Infof("SSH connection successful for %s", target)
	return &model.SSHTestResponse{
		Success: true,
		Message: fmt.Sprintf("connected to %s", target),
		Details: details,
	}
}

// Target describes the configured target without credentials.
func (s *SSHService) Target() *model.Target {
	return &model.Target{
		Host:      s.cfg.Target.Host,
		Port:      s.cfg.Target.Port,
		Username:  s.cfg.Target.User,
		RemoteDir: s.cfg.Paths.RemoteDir,
		SiteURL:   s.cfg.Diagnose.SiteURL,
		Domain:    s.cfg.Diagnose.Domain,
		Service:   s.cfg.Deploy.Service,
	}
}
