package diagnose

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"static-deploy/internal/config"
	"static-deploy/internal/deploy"
	"static-deploy/internal/pkg/logger"
	"static-deploy/internal/pkg/ssh"
	"static-deploy/internal/report"
	"static-deploy/pkg/utils"
)

const (
	CheckToolchain   = "Build toolchain installation"
	CheckProjectFile = "Project descriptor"
	CheckBuildOutput = "Build output"
	CheckKeyFile     = "SSH key"
	CheckSSHPort     = "SSH port reachable"
	CheckSSH         = "SSH connection"
	CheckRemoteDir   = "Remote directory exists"
	CheckPermissions = "Directory permissions"
	CheckService     = "Web server status"
	CheckSiteConfig  = "Site configuration"
	CheckListening   = "Port listening status"
	CheckHTTP        = "Web access"
	CheckErrorLog    = "Web server error log"
)

// PortProbe reports whether a TCP port on the target accepts connections.
type PortProbe func(ctx context.Context, port int) bool

// Debugger walks through every place a deployment can break, from the
// local build to the HTTP response, and keeps going after failures.
type Debugger struct {
	cfg      *config.Config
	dial     deploy.Dialer
	run      deploy.RunFunc
	portOpen PortProbe
	client   *http.Client
	reporter report.Reporter
	logger   *logger.Logger
}

func NewDebugger(cfg *config.Config, dial deploy.Dialer, run deploy.RunFunc, reporter report.Reporter, log *logger.Logger) *Debugger {
	if log == nil {
		log = logger.Nop()
	}
	return &Debugger{
		cfg:      cfg,
		dial:     dial,
		run:      run,
		portOpen: TCPPortProbe(cfg),
		client:   &http.Client{Timeout: cfg.Diagnose.HTTPTimeout},
		reporter: reporter,
		logger:   log,
	}
}

// TCPPortProbe dials the configured host directly, bounded by the connect
// timeout.
func TCPPortProbe(cfg *config.Config) PortProbe {
	client := ssh.NewClient(deploy.SSHConfig(cfg, nil))
	return func(ctx context.Context, port int) bool {
		return client.IsPortOpen(ctx, port, cfg.Target.ConnectTimeout)
	}
}

func (d *Debugger) sudo(cmd string) string {
	if d.cfg.Deploy.UseSudo {
		return "sudo " + cmd
	}
	return cmd
}

func (d *Debugger) remoteDirCmd() string {
	dir := utils.ShellQuote(d.cfg.Paths.RemoteDir)
	return fmt.Sprintf("if [ -d %s ]; then echo exists; else echo missing; fi", dir)
}

func (d *Debugger) permissionsCmd() string {
	return fmt.Sprintf("ls -la %s/ | grep %s",
		utils.ShellQuote(d.cfg.Diagnose.WebRoot), utils.ShellQuote(d.cfg.SiteName()))
}

func (d *Debugger) siteConfigCmd() string {
	return fmt.Sprintf("ls -la %s/ | grep %s",
		utils.ShellQuote(d.cfg.Diagnose.SitesEnabledDir), utils.ShellQuote(d.cfg.SiteName()))
}

func (d *Debugger) listeningCmd() string {
	port := fmt.Sprintf(":%d ", d.cfg.Diagnose.Port)
	return fmt.Sprintf("(%s 2>/dev/null || %s) | grep %s",
		d.sudo("netstat -tlnp"), d.sudo("ss -tlnp"), utils.ShellQuote(port))
}

func (d *Debugger) errorLogCmd() string {
	return d.sudo(fmt.Sprintf("tail -%d %s", d.cfg.Diagnose.LogLines, utils.ShellQuote(d.cfg.Diagnose.ErrorLog)))
}

// Run performs every check and returns them all. The error is non-nil only
// when ctx ends the run early.
func (d *Debugger) Run(ctx context.Context) (*Summary, error) {
	cfg := d.cfg
	p := newProbe(d.reporter, d.logger)

	d.reporter.Header("Deployment Debugger")
	d.reporter.Info("Target: %s:%s", cfg.Login(), cfg.Paths.RemoteDir)

	d.reporter.Section("1. LOCAL ENVIRONMENT CHECKS")
	p.local(ctx, d.run, CheckToolchain, cfg.Build.VersionCommand)
	if _, err := os.Stat(cfg.Paths.ProjectFile); err == nil {
		p.record(CheckProjectFile, true, fmt.Sprintf("%s found, in project directory", cfg.Paths.ProjectFile))
	} else {
		p.record(CheckProjectFile, false, fmt.Sprintf("%s not found, not in project directory", cfg.Paths.ProjectFile))
	}
	if n, err := deploy.CountFiles(cfg.Paths.BuildDir); err == nil {
		p.record(CheckBuildOutput, true, fmt.Sprintf("%s directory exists", cfg.Paths.BuildDir))
		d.reporter.Info("   Contains %d files", n)
	} else {
		p.record(CheckBuildOutput, false, fmt.Sprintf("%s directory not found, run %q first", cfg.Paths.BuildDir, cfg.Build.Command))
	}
	if _, err := os.Stat(cfg.Target.KeyPath); err == nil {
		p.record(CheckKeyFile, true, fmt.Sprintf("SSH key found at %s", cfg.Target.KeyPath))
	} else {
		p.record(CheckKeyFile, false, fmt.Sprintf("SSH key not found at %s", cfg.Target.KeyPath))
	}
	if err := ctx.Err(); err != nil {
		return p.summary, err
	}

	d.reporter.Section("2. SSH CONNECTION TEST")
	if d.portOpen(ctx, cfg.Target.Port) {
		p.record(CheckSSHPort, true, fmt.Sprintf("Port %d on %s accepts connections", cfg.Target.Port, cfg.Target.Host))
	} else {
		p.record(CheckSSHPort, false, fmt.Sprintf("Port %d on %s is not reachable", cfg.Target.Port, cfg.Target.Host))
	}
	d.logger.SSHConnectionAttempt("diagnose", cfg.Login())
	p.connect(ctx, d.dial)
	defer p.close()
	p.remoteCmd(ctx, CheckSSH, "echo Connection successful")
	if err := ctx.Err(); err != nil {
		return p.summary, err
	}

	d.reporter.Section("3. REMOTE SERVER CHECKS")
	p.remoteCmd(ctx, CheckRemoteDir, d.remoteDirCmd())
	p.remoteCmd(ctx, CheckPermissions, d.permissionsCmd())
	p.remoteCmd(ctx, CheckService, d.sudo("systemctl is-active "+utils.ShellQuote(cfg.Deploy.Service)))
	p.remoteCmd(ctx, CheckSiteConfig, d.siteConfigCmd())
	p.remoteCmd(ctx, CheckListening, d.listeningCmd())
	if err := ctx.Err(); err != nil {
		return p.summary, err
	}

	d.reporter.Section("4. WEB ACCESS TEST")
	d.probeSite(ctx, p)
	if err := ctx.Err(); err != nil {
		return p.summary, err
	}

	d.reporter.Section("5. %s ERROR LOGS (last %d lines)", strings.ToUpper(cfg.Deploy.Service), cfg.Diagnose.LogLines)
	p.remoteCmd(ctx, CheckErrorLog, d.errorLogCmd())

	d.reporter.Info("\n%s", strings.Repeat("=", 50))
	d.reporter.Info("Debug complete. Check the results above to identify issues.")
	d.reporter.Info("\nCommon issues:")
	d.reporter.Info("- If SSH fails: check the firewall or security group allows SSH (port %d)", cfg.Target.Port)
	d.reporter.Info("- If web access fails: check the firewall or security group allows HTTP (port %d)", cfg.Diagnose.Port)
	d.reporter.Info("- If the site config is missing: set up the %s configuration", cfg.Deploy.Service)
	d.reporter.Info("- If the directory is missing: the deploy command creates it")

	d.logger.Info("diagnostics finished",
		zap.Int("passed", p.summary.Passed),
		zap.Int("failed", p.summary.Failed),
	)
	return p.summary, nil
}

func (d *Debugger) probeSite(ctx context.Context, p *probe) {
	url := d.cfg.Diagnose.SiteURL
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		p.record(CheckHTTP, false, fmt.Sprintf("Invalid site URL %q: %v", url, err))
		return
	}
	start := time.Now()
	resp, err := d.client.Do(req)
	if err != nil {
		p.record(CheckHTTP, false, fmt.Sprintf("Error accessing site: %v", err))
		return
	}
	resp.Body.Close()

	c := Check{Name: CheckHTTP, Command: "GET " + url, Status: resp.StatusCode}
	if resp.StatusCode >= 400 {
		p.recordCheck(c, false, fmt.Sprintf("HTTP Error: %s", resp.Status))
		return
	}
	p.recordCheck(c, true, fmt.Sprintf("Site is accessible at %s", url))
	d.reporter.Info("   Response code: %d (%s)", resp.StatusCode, time.Since(start).Round(time.Millisecond))
}
