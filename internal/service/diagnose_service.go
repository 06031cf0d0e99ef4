package service

import (
	"context"

	"static-deploy/internal/config"
	"static-deploy/internal/deploy"
	"static-deploy/internal/diagnose"
	"static-deploy/internal/model"
	"static-deploy/internal/pkg/logger"
	"static-deploy/internal/report"
)

type DiagnoseService struct {
	cfg    *config.Config
	dial   deploy.Dialer
	run    deploy.RunFunc
	logger *logger.Logger

	// resolver overrides DNS lookups of the domain check when set.
	resolver diagnose.Resolver
}

func NewDiagnoseService(cfg *config.Config, dial deploy.Dialer, run deploy.RunFunc, logger *logger.Logger) *DiagnoseService {
	return &DiagnoseService{
		cfg:    cfg,
		dial:   dial,
		run:    run,
		logger: logger,
	}
}

func (s *DiagnoseService) Deployment(ctx context.Context) (*model.DiagnoseResponse, error) {
	rec := report.NewRecorder()
	summary, err := diagnose.NewDebugger(s.cfg, s.dial, s.run, rec, s.logger).Run(ctx)
	if err != nil {
		return nil, err
	}
	return &model.DiagnoseResponse{
		Success: summary.Failed == 0,
		Summary: summary,
		Lines:   rec.Lines(),
	}, nil
}

func (s *DiagnoseService) Domain(ctx context.Context, domain string) (*model.DiagnoseResponse, error) {
	rec := report.NewRecorder()
	checker := diagnose.NewDomainChecker(s.cfg, s.dial, rec, s.logger)
	if s.resolver != nil {
		checker.SetResolver(s.resolver)
	}
	summary, err := checker.Run(ctx, domain)
	if err != nil {
		return nil, err
	}
	return &model.DiagnoseResponse{
		Success: summary.Failed == 0,
		Summary: summary,
		Lines:   rec.Lines(),
	}, nil
}
