// Package deploy builds the static site locally and ships it to the target
// host as an ordered list of fatal and advisory steps.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"static-deploy/internal/config"
	"static-deploy/internal/pkg/execx"
	"static-deploy/internal/pkg/logger"
	"static-deploy/internal/pkg/ssh"
	"static-deploy/internal/report"
)

const (
	StepToolchain    = "toolchain"
	StepKeyFile      = "key-file"
	StepProjectFile  = "project-file"
	StepClean        = "clean"
	StepBuild        = "build"
	StepBuildOutput  = "build-output"
	StepConnect      = "connect"
	StepBackup       = "backup"
	StepMkdir        = "mkdir"
	StepChownUpload  = "chown-upload"
	StepUpload       = "upload"
	StepPermissions  = "permissions"
	StepDaemonReload = "daemon-reload"
	StepRestart      = "restart"
	StepStatus       = "status"
	StepCleanup      = "cleanup"
)

// Steps lists every step in execution order.
var Steps = []string{
	StepToolchain, StepKeyFile, StepProjectFile, StepClean, StepBuild, StepBuildOutput,
	StepConnect, StepBackup, StepMkdir, StepChownUpload, StepUpload, StepPermissions,
	StepDaemonReload, StepRestart, StepStatus, StepCleanup,
}

// Remote is the connection to the target host.
type Remote interface {
	ExecuteCommand(ctx context.Context, cmd string) (*ssh.CommandResult, error)
	UploadDir(ctx context.Context, localDir, remoteDir string) (ssh.UploadStats, error)
	Close() error
}

// Dialer opens a Remote.
type Dialer func(ctx context.Context) (Remote, error)

// RunFunc runs a local command line.
type RunFunc func(ctx context.Context, commandLine string) (execx.Result, error)

// SSHDialer connects with the configured target and key.
func SSHDialer(cfg *config.Config, prompt func(string) ([]byte, error)) Dialer {
	return func(ctx context.Context) (Remote, error) {
		client := ssh.NewClient(SSHConfig(cfg, prompt))
		if err := client.Connect(ctx); err != nil {
			return nil, err
		}
		return client, nil
	}
}

// SSHConfig maps the target section onto the transport config.
func SSHConfig(cfg *config.Config, prompt func(string) ([]byte, error)) ssh.SSHConfig {
	return ssh.SSHConfig{
		Host:           cfg.Target.Host,
		Port:           cfg.Target.Port,
		Username:       cfg.Target.User,
		KeyPath:        cfg.Target.KeyPath,
		Passphrase:     cfg.Target.Passphrase,
		KnownHostsPath: cfg.Target.KnownHostsPath,
		StrictHostKey:  cfg.Target.StrictHostKey,
		ConnectTimeout: cfg.Target.ConnectTimeout,
		Prompt:         prompt,
	}
}

// LocalRun runs build tooling without a deadline.
func LocalRun(ctx context.Context, commandLine string) (execx.Result, error) {
	return execx.Shell(ctx, 0, commandLine)
}

type Options struct {
	// SkipBuild deploys the existing build output without invoking the toolchain.
	SkipBuild bool
	// Progress is called after every step with the number of steps finished.
	Progress func(step string, done, total int)
}

type Result struct {
	BackupPath    string          `json:"backupPath,omitempty"`
	BackupCreated bool            `json:"backupCreated"`
	Upload        ssh.UploadStats `json:"upload"`
	ServiceActive bool            `json:"serviceActive"`
	Removed       []string        `json:"removed,omitempty"`
	Warnings      []string        `json:"warnings,omitempty"`
	URL           string          `json:"url"`
}

type Deployer struct {
	cfg      *config.Config
	cmds     Commands
	dial     Dialer
	run      RunFunc
	reporter report.Reporter
	logger   *logger.Logger
	now      func() time.Time
}

func NewDeployer(cfg *config.Config, dial Dialer, run RunFunc, reporter report.Reporter, log *logger.Logger) *Deployer {
	if log == nil {
		log = logger.Nop()
	}
	return &Deployer{
		cfg:      cfg,
		cmds:     NewCommands(cfg),
		dial:     dial,
		run:      run,
		reporter: reporter,
		logger:   log,
		now:      time.Now,
	}
}

type runState struct {
	d      *Deployer
	opts   Options
	result *Result
	done   int
}

func (r *runState) step(ctx context.Context, name, description string, sev Severity, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.d.reporter.Step("%s", description)
	r.d.logger.DeploymentStep(name, r.d.cfg.Login())

	err := fn()
	r.done++
	if r.opts.Progress != nil {
		r.opts.Progress(name, r.done, len(Steps))
	}

	if err == nil {
		r.d.logger.DeploymentSuccess(name)
		r.d.reporter.Success("%s completed", description)
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	r.d.reporter.Error("%s failed: %v", description, err)
	if sev == Fatal {
		r.d.logger.DeploymentError(name, err)
		return &StepError{Step: name, Severity: Fatal, Err: err}
	}
	r.d.logger.DeploymentWarning(name, err)
	r.result.Warnings = append(r.result.Warnings, fmt.Sprintf("%s: %v", name, err))
	return nil
}

func (r *runState) skip(name string) {
	r.done++
	if r.opts.Progress != nil {
		r.opts.Progress(name, r.done, len(Steps))
	}
}

// Run performs one deployment. Every local precondition and the build are
// checked before the first network call.
func (d *Deployer) Run(ctx context.Context, opts Options) (*Result, error) {
	cfg := d.cfg
	res := &Result{URL: cfg.Diagnose.SiteURL}
	r := &runState{d: d, opts: opts, result: res}
	stamp := d.now().Format(BackupTimeLayout)

	d.reporter.Header("Static Site Deployment")
	d.reporter.Info("Deploying to: %s:%s", cfg.Login(), cfg.Paths.RemoteDir)

	if opts.SkipBuild {
		r.skip(StepToolchain)
	} else if err := r.step(ctx, StepToolchain, "Checking build toolchain", Fatal, func() error {
		out, err := d.run(ctx, cfg.Build.VersionCommand)
		if err != nil {
			return fmt.Errorf("%q is not runnable, make sure the toolchain is installed and in PATH: %w", cfg.Build.VersionCommand, err)
		}
		d.logger.Debug("toolchain version", zap.String("output", firstLine(out.Stdout)))
		return nil
	}); err != nil {
		return res, err
	}

	if err := r.step(ctx, StepKeyFile, "Checking SSH key", Fatal, func() error {
		return checkReadableFile(cfg.Target.KeyPath)
	}); err != nil {
		return res, err
	}

	if err := r.step(ctx, StepProjectFile, "Checking project descriptor", Fatal, func() error {
		if err := checkReadableFile(cfg.Paths.ProjectFile); err != nil {
			return fmt.Errorf("%w, run from the project root", err)
		}
		return nil
	}); err != nil {
		return res, err
	}

	if opts.SkipBuild || !cfg.Build.Clean {
		r.skip(StepClean)
	} else if err := r.step(ctx, StepClean, "Cleaning previous build", Advisory, func() error {
		return os.RemoveAll(cfg.Paths.BuildDir)
	}); err != nil {
		return res, err
	}

	if opts.SkipBuild {
		r.skip(StepBuild)
	} else if err := r.step(ctx, StepBuild, "Building web app", Fatal, func() error {
		out, err := d.run(ctx, cfg.Build.Command)
		return withStderr(err, strings.TrimSpace(out.Stderr))
	}); err != nil {
		return res, err
	}

	if err := r.step(ctx, StepBuildOutput, "Checking build output", Fatal, func() error {
		n, err := CountFiles(cfg.Paths.BuildDir)
		if err != nil {
			return fmt.Errorf("build directory %s not found: %w", cfg.Paths.BuildDir, err)
		}
		if n == 0 {
			return fmt.Errorf("build directory %s is empty", cfg.Paths.BuildDir)
		}
		d.reporter.Info("%s contains %d files", cfg.Paths.BuildDir, n)
		return nil
	}); err != nil {
		return res, err
	}

	var remote Remote
	if err := r.step(ctx, StepConnect, "Connecting to "+cfg.Login(), Fatal, func() error {
		var err error
		remote, err = d.dial(ctx)
		return err
	}); err != nil {
		return res, err
	}
	defer remote.Close()

	exec := func(cmd string) (*ssh.CommandResult, error) {
		out, err := remote.ExecuteCommand(ctx, cmd)
		if err != nil && out != nil {
			err = withStderr(err, out.Stderr)
		}
		return out, err
	}

	if err := r.step(ctx, StepBackup, "Creating backup on server", Advisory, func() error {
		out, err := exec(d.cmds.Backup(stamp))
		if err != nil {
			return err
		}
		if strings.Contains(out.Stdout, BackupCreatedMarker) {
			res.BackupCreated = true
			res.BackupPath = d.cmds.BackupPath(stamp)
		}
		return nil
	}); err != nil {
		return res, err
	}

	if err := r.step(ctx, StepMkdir, "Creating remote directory", Fatal, func() error {
		_, err := exec(d.cmds.Mkdir())
		return err
	}); err != nil {
		return res, err
	}

	if err := r.step(ctx, StepChownUpload, "Setting upload permissions", Advisory, func() error {
		_, err := exec(d.cmds.ChownForUpload())
		return err
	}); err != nil {
		return res, err
	}

	if err := r.step(ctx, StepUpload, "Uploading files to server", Fatal, func() error {
		stats, err := remote.UploadDir(ctx, cfg.Paths.BuildDir, cfg.Paths.RemoteDir)
		res.Upload = stats
		if err != nil {
			return err
		}
		d.reporter.Info("Uploaded %d files (%d bytes)", stats.Files, stats.Bytes)
		return nil
	}); err != nil {
		return res, err
	}

	if err := r.step(ctx, StepPermissions, "Setting web server permissions", Advisory, func() error {
		_, err := exec(d.cmds.WebPermissions())
		return err
	}); err != nil {
		return res, err
	}

	if !cfg.Deploy.ReloadDaemon {
		r.skip(StepDaemonReload)
	} else if err := r.step(ctx, StepDaemonReload, "Reloading systemd daemon", Advisory, func() error {
		_, err := exec(d.cmds.DaemonReload())
		return err
	}); err != nil {
		return res, err
	}

	restartDesc := "Restarting " + cfg.Deploy.Service
	if err := r.step(ctx, StepRestart, restartDesc, Advisory, func() error {
		_, err := exec(d.cmds.Restart())
		if err != nil {
			d.reporter.Warn("Failed to restart %s. You may need to restart it manually.", cfg.Deploy.Service)
		}
		return err
	}); err != nil {
		return res, err
	}

	if err := r.step(ctx, StepStatus, "Checking "+cfg.Deploy.Service+" status", Advisory, func() error {
		out, err := exec(d.cmds.IsActive())
		var stdout string
		if out != nil {
			stdout = out.Stdout
		}
		if IsActive(stdout) {
			res.ServiceActive = true
			d.reporter.Success("%s is running", cfg.Deploy.Service)
			return nil
		}
		if err == nil {
			err = fmt.Errorf("unexpected status %q", strings.TrimSpace(stdout))
		}
		return fmt.Errorf("%s may not be running properly: %w", cfg.Deploy.Service, err)
	}); err != nil {
		return res, err
	}

	if err := r.step(ctx, StepCleanup, "Cleaning up old backups", Advisory, func() error {
		out, err := exec(d.cmds.ListBackups())
		if err != nil {
			return err
		}
		expired := ExpiredBackups(out.Stdout, d.cmds.BackupPrefix(), cfg.Deploy.BackupRetention)
		if len(expired) == 0 {
			return nil
		}
		paths := make([]string, len(expired))
		for i, b := range expired {
			paths[i] = b.Path
		}
		if _, err := exec(d.cmds.RemoveBackups(paths)); err != nil {
			return err
		}
		res.Removed = paths
		d.reporter.Info("Removed %d old backup(s)", len(paths))
		return nil
	}); err != nil {
		return res, err
	}

	d.reporter.Success("Deployment completed successfully!")
	d.reporter.Info("Your app should be available at: %s", res.URL)
	if res.BackupCreated {
		d.reporter.Info("Backup created at: %s", res.BackupPath)
	} else {
		d.reporter.Info("No previous deployment found, no backup created")
	}
	if len(res.Warnings) > 0 {
		d.reporter.Warn("Completed with %d warning(s)", len(res.Warnings))
	}
	return res, nil
}

// ListBackups returns the retained backups on the target, newest first.
func (d *Deployer) ListBackups(ctx context.Context) ([]Backup, error) {
	remote, err := d.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer remote.Close()

	out, err := remote.ExecuteCommand(ctx, d.cmds.ListBackups())
	if err != nil {
		return nil, fmt.Errorf("list backups: %w", err)
	}
	return ParseBackups(out.Stdout, d.cmds.BackupPrefix()), nil
}

func checkReadableFile(path string) error {
	if path == "" {
		return errors.New("path not configured")
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%s not found", path)
		}
		return fmt.Errorf("%s is not readable: %w", path, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	return nil
}

// CountFiles returns the number of regular files below dir.
func CountFiles(dir string) (int, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return 0, err
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("%s is not a directory", dir)
	}
	n := 0
	err = filepath.WalkDir(dir, func(_ string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !entry.IsDir() {
			n++
		}
		return nil
	})
	return n, err
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
