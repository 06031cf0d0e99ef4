package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"static-deploy/internal/config"
	"static-deploy/internal/deploy"
	"static-deploy/internal/model"
	"static-deploy/internal/pkg/logger"
	"static-deploy/internal/report"
)

// ErrDeployRunning is returned by Start while another deployment is active.
var ErrDeployRunning = errors.New("a deployment is already running")

type task struct {
	id       string
	status   string
	step     string
	done     int
	total    int
	recorder *report.Recorder
	result   *deploy.Result
	err      error
	started  time.Time
	finished time.Time
}

// DeployService runs deployments in the background, one at a time, and
// keeps their progress for polling and streaming.
type DeployService struct {
	ctx    context.Context
	cfg    *config.Config
	dial   deploy.Dialer
	run    deploy.RunFunc
	logger *logger.Logger

	mu      sync.Mutex
	tasks   map[string]*task
	running string
	wg      sync.WaitGroup
}

// NewDeployService ties every deployment to ctx, so cancelling it stops
// whatever is running.
func NewDeployService(ctx context.Context, cfg *config.Config, dial deploy.Dialer, run deploy.RunFunc, logger *logger.Logger) *DeployService {
	return &DeployService{
		ctx:    ctx,
		cfg:    cfg,
		dial:   dial,
		run:    run,
		logger: logger,
		tasks:  make(map[string]*task),
	}
}

// Start launches a deployment and returns its task ID. While one is running
// it returns that task's ID with ErrDeployRunning.
func (s *DeployService) Start(req *model.DeployRequest) (string, error) {
	s.mu.Lock()
	if s.running != "" {
		id := s.running
		s.mu.Unlock()
		return id, ErrDeployRunning
	}
	t := &task{
		id:       uuid.New().String(),
		status:   model.StatusDeploying,
		total:    len(deploy.Steps),
		recorder: report.NewRecorder(),
		started:  time.Now(),
	}
	s.tasks[t.id] = t
	s.running = t.id
	s.mu.Unlock()

	s.logger.Info("deployment started", zap.String("task", t.id), zap.Bool("skip_build", req.SkipBuild))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.execute(t, deploy.Options{
			SkipBuild: req.SkipBuild,
			Progress: func(step string, done, total int) {
				s.mu.Lock()
				t.step, t.done, t.total = step, done, total
				s.mu.Unlock()
			},
		})
	}()
	return t.id, nil
}

func (s *DeployService) execute(t *task, opts deploy.Options) {
	deployer := deploy.NewDeployer(s.cfg, s.dial, s.run, t.recorder, s.logger)
	res, err := deployer.Run(s.ctx, opts)

	s.mu.Lock()
	t.result, t.err = res, err
	t.finished = time.Now()
	switch {
	case err == nil:
		t.status = model.StatusSuccess
		t.done = t.total
	case errors.Is(err, context.Canceled):
		t.status = model.StatusCancelled
	default:
		t.status = model.StatusError
	}
	s.running = ""
	s.mu.Unlock()

	if err != nil {
		t.recorder.Error("Deployment failed: %v", err)
		s.logger.Error("deployment finished with error", zap.String("task", t.id), zap.Error(err))
	} else {
		s.logger.Info("deployment finished", zap.String("task", t.id))
	}
	t.recorder.Close()
}

// Progress reports the state of a task.
func (s *DeployService) Progress(id string) (*model.ProgressResponse, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, false
	}

	resp := &model.ProgressResponse{
		Success:   t.status != model.StatusError && t.status != model.StatusCancelled,
		TaskID:    t.id,
		Status:    t.status,
		Step:      t.step,
		Logs:      t.recorder.Texts(),
		Result:    t.result,
		StartedAt: t.started,
	}
	if t.total > 0 {
		resp.Progress = float64(t.done*100) / float64(t.total)
	}
	if t.err != nil {
		resp.Error = t.err.Error()
		resp.FailedStep, _ = deploy.FailedStep(t.err)
	}
	if !t.finished.IsZero() {
		finished := t.finished
		resp.FinishedAt = &finished
	}
	return resp, true
}

// Subscribe returns the lines logged so far and a channel of later ones,
// closed when the task finishes.
func (s *DeployService) Subscribe(id string, buffer int) ([]report.Line, <-chan report.Line, func(), bool) {
	s.mu.Lock()
	t, ok := s.tasks[id]
	s.mu.Unlock()
	if !ok {
		return nil, nil, nil, false
	}
	backlog, ch, cancel := t.recorder.Subscribe(buffer)
	return backlog, ch, cancel, true
}

// Running returns the ID of the active task, if any.
func (s *DeployService) Running() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Wait blocks until every started deployment has returned.
func (s *DeployService) Wait() {
	s.wg.Wait()
}
