package diagnose

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"static-deploy/internal/config"
	"static-deploy/internal/deploy"
	"static-deploy/internal/pkg/execx"
	"static-deploy/internal/pkg/ssh"
	"static-deploy/internal/report"
)

type reply struct {
	stdout string
	stderr string
	code   int
}

// scriptedRemote answers known commands and fails everything else with 127.
type scriptedRemote struct {
	replies  map[string]reply
	executed []string
	closed   bool
}

func (r *scriptedRemote) ExecuteCommand(_ context.Context, cmd string) (*ssh.CommandResult, error) {
	r.executed = append(r.executed, cmd)
	rep, ok := r.replies[cmd]
	if !ok {
		rep = reply{stderr: "command not found", code: 127}
	}
	res := &ssh.CommandResult{Stdout: rep.stdout, Stderr: rep.stderr, ExitCode: rep.code}
	if rep.code != 0 {
		return res, fmt.Errorf("remote command exited with status %d", rep.code)
	}
	return res, nil
}

func (r *scriptedRemote) UploadDir(context.Context, string, string) (ssh.UploadStats, error) {
	return ssh.UploadStats{}, errors.New("not supported")
}

func (r *scriptedRemote) Close() error {
	r.closed = true
	return nil
}

func dialTo(r *scriptedRemote) deploy.Dialer {
	return func(context.Context) (deploy.Remote, error) { return r, nil }
}

func failingDial(context.Context) (deploy.Remote, error) {
	return nil, errors.New("ssh dial 203.0.113.10:22: i/o timeout")
}

func toolchain(_ context.Context, commandLine string) (execx.Result, error) {
	return execx.Result{Stdout: "Flutter 3.24.0 • channel stable"}, nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	build := filepath.Join(root, "build", "web")
	if err := os.MkdirAll(build, 0o755); err != nil {
		t.Fatal(err)
	}
	for name, content := range map[string]string{
		filepath.Join(root, "pubspec.yaml"):  "name: app",
		filepath.Join(root, "id_rsa"):        "key",
		filepath.Join(build, "index.html"):   "<html></html>",
		filepath.Join(build, "main.dart.js"): "js",
	} {
		if err := os.WriteFile(name, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
	}

	return &config.Config{
		Target: config.TargetConfig{
			Host:           "203.0.113.10",
			Port:           22,
			User:           "deploy",
			KeyPath:        filepath.Join(root, "id_rsa"),
			ConnectTimeout: time.Second,
		},
		Paths: config.PathsConfig{
			RemoteDir:   "/var/www/app",
			BuildDir:    build,
			ProjectFile: filepath.Join(root, "pubspec.yaml"),
		},
		Build: config.BuildConfig{
			Command:        "flutter build web --release",
			VersionCommand: "flutter --version",
		},
		Deploy: config.DeployConfig{UseSudo: true, Service: "nginx"},
		Diagnose: config.DiagnoseConfig{
			Domain:          "example.com",
			SitesEnabledDir: "/etc/nginx/sites-enabled",
			WebRoot:         "/var/www",
			ErrorLog:        "/var/log/nginx/error.log",
			LogLines:        10,
			Port:            80,
			HTTPTimeout:     2 * time.Second,
		},
	}
}

func newTestDebugger(cfg *config.Config, dial deploy.Dialer, rec *report.Recorder) *Debugger {
	d := NewDebugger(cfg, dial, toolchain, rec, nil)
	d.portOpen = func(context.Context, int) bool { return true }
	return d
}

func healthyReplies(d *Debugger) map[string]reply {
	return map[string]reply{
		"echo Connection successful":     {stdout: "Connection successful"},
		d.remoteDirCmd():                 {stdout: "exists"},
		d.permissionsCmd():               {stdout: "drwxr-xr-x 3 www-data www-data 4096 May  1 10:00 app"},
		"sudo systemctl is-active nginx": {stdout: "active"},
		d.siteConfigCmd():                {stdout: "lrwxrwxrwx 1 root root 34 May  1 app -> /etc/nginx/sites-available/app"},
		d.listeningCmd():                 {stdout: "tcp 0 0 0.0.0.0:80 0.0.0.0:* LISTEN 812/nginx"},
		d.errorLogCmd():                  {stdout: ""},
	}
}

func TestDebuggerHealthyTarget(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html></html>"))
	}))
	defer srv.Close()

	cfg := testConfig(t)
	cfg.Diagnose.SiteURL = srv.URL
	rec := report.NewRecorder()
	remote := &scriptedRemote{}
	d := newTestDebugger(cfg, dialTo(remote), rec)
	remote.replies = healthyReplies(d)

	summary, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Failed != 0 {
		for _, c := range summary.Checks {
			if !c.OK {
				t.Errorf("%s failed: %s", c.Name, c.Error)
			}
		}
	}
	if summary.Passed != 13 {
		t.Errorf("passed = %d, want 13", summary.Passed)
	}
	if c, _ := summary.Find(CheckHTTP); c.Status != http.StatusOK {
		t.Errorf("http status = %d", c.Status)
	}
	if !remote.closed {
		t.Error("connection left open")
	}

	out := strings.Join(rec.Texts(), "\n")
	for _, want := range []string{
		"Testing: Remote directory exists",
		"   Command: if [ -d /var/www/app ]; then echo exists; else echo missing; fi",
		"   Output: exists",
		"   Contains 2 files",
		"Site is accessible at " + srv.URL,
		"Response code: 200",
		"Common issues:",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}
}

func TestDebuggerCommands(t *testing.T) {
	d := newTestDebugger(testConfig(t), failingDial, report.NewRecorder())
	tests := map[string]string{
		d.permissionsCmd(): "ls -la /var/www/ | grep app",
		d.siteConfigCmd():  "ls -la /etc/nginx/sites-enabled/ | grep app",
		d.listeningCmd():   "(sudo netstat -tlnp 2>/dev/null || sudo ss -tlnp) | grep ':80 '",
		d.errorLogCmd():    "sudo tail -10 /var/log/nginx/error.log",
	}
	for got, want := range tests {
		if got != want {
			t.Errorf("got %q, want %q", got, want)
		}
	}
}

func TestDebuggerContinuesWithoutSSH(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cfg := testConfig(t)
	cfg.Diagnose.SiteURL = srv.URL
	cfg.Target.KeyPath = filepath.Join(t.TempDir(), "missing.pem")
	rec := report.NewRecorder()
	d := newTestDebugger(cfg, failingDial, rec)
	d.portOpen = func(context.Context, int) bool { return false }

	summary, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(summary.Checks) != 13 {
		t.Fatalf("every check must be reported, got %d", len(summary.Checks))
	}
	for _, name := range []string{CheckKeyFile, CheckSSHPort, CheckSSH, CheckRemoteDir, CheckService, CheckErrorLog} {
		c, ok := summary.Find(name)
		if !ok || c.OK {
			t.Errorf("%s should fail: %+v", name, c)
		}
	}
	sshCheck, _ := summary.Find(CheckSSH)
	if !strings.Contains(sshCheck.Error, "i/o timeout") || sshCheck.ExitCode != -1 {
		t.Errorf("ssh check = %+v", sshCheck)
	}
	web, _ := summary.Find(CheckHTTP)
	if web.OK || web.Status != http.StatusServiceUnavailable {
		t.Errorf("http check = %+v", web)
	}
	if toolchainCheck, _ := summary.Find(CheckToolchain); !toolchainCheck.OK {
		t.Error("local checks should still pass")
	}
	if !strings.Contains(strings.Join(rec.Texts(), "\n"), "HTTP Error: 503 Service Unavailable") {
		t.Error("missing HTTP error line")
	}
}

func TestDebuggerReportsExitCode(t *testing.T) {
	cfg := testConfig(t)
	cfg.Diagnose.SiteURL = "http://127.0.0.1:1"
	rec := report.NewRecorder()
	remote := &scriptedRemote{}
	d := newTestDebugger(cfg, dialTo(remote), rec)
	remote.replies = healthyReplies(d)
	remote.replies["sudo systemctl is-active nginx"] = reply{stdout: "inactive", code: 3}

	summary, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	c, _ := summary.Find(CheckService)
	if c.OK || c.ExitCode != 3 {
		t.Errorf("service check = %+v", c)
	}
	out := strings.Join(rec.Texts(), "\n")
	if !strings.Contains(out, "Failed (exit code: 3)") || !strings.Contains(out, "Error accessing site") {
		t.Errorf("output:\n%s", out)
	}
}

type fakeResolver map[string][]string

func (f fakeResolver) LookupHost(_ context.Context, host string) ([]string, error) {
	if addrs, ok := f[host]; ok {
		return addrs, nil
	}
	return nil, fmt.Errorf("lookup %s: no such host", host)
}

func domainReplies(refs, roots reply) map[string]reply {
	return map[string]reply{
		"sudo ls -la /etc/nginx/sites-enabled/":                         {stdout: "lrwxrwxrwx 1 root root 34 May  1 app"},
		"sudo grep -rF example.com /etc/nginx/sites-enabled/":           refs,
		"sudo grep -r 'root ' /etc/nginx/sites-enabled/ | grep -v '#'": roots,
		"ls -la /var/www/":                                              {stdout: "drwxr-xr-x 3 www-data www-data 4096 May  1 app"},
	}
}

func TestDomainCheckerHealthy(t *testing.T) {
	cfg := testConfig(t)
	rec := report.NewRecorder()
	remote := &scriptedRemote{}
	c := NewDomainChecker(cfg, dialTo(remote), rec, nil)
	c.resolver = fakeResolver{"example.com": {"203.0.113.10"}}
	remote.replies = domainReplies(
		reply{stdout: "/etc/nginx/sites-enabled/app:    server_name example.com www.example.com;"},
		reply{stdout: "/etc/nginx/sites-enabled/app:    root /var/www/app;"},
	)

	summary, err := c.Run(context.Background(), "")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Failed != 0 || summary.Passed != 5 {
		t.Fatalf("summary = %+v", summary)
	}
	out := strings.Join(rec.Texts(), "\n")
	for _, want := range []string{
		"Domain resolves to: 203.0.113.10",
		"Domain points to your server",
		"Found domain references:",
		"   /etc/nginx/sites-enabled/app:    root /var/www/app;",
		"Next Steps:",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}
	if strings.Contains(out, "No site serves") {
		t.Error("document root matches the remote directory")
	}
}

func TestDomainCheckerMismatch(t *testing.T) {
	cfg := testConfig(t)
	rec := report.NewRecorder()
	remote := &scriptedRemote{}
	c := NewDomainChecker(cfg, dialTo(remote), rec, nil)
	c.resolver = fakeResolver{"other.example.org": {"198.51.100.1"}}
	remote.replies = domainReplies(reply{code: 1}, reply{stdout: "default:    root /var/www/html;"})
	remote.replies["sudo grep -rF other.example.org /etc/nginx/sites-enabled/"] = reply{code: 1}

	summary, err := c.Run(context.Background(), "other.example.org")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	dns, _ := summary.Find(CheckDNS)
	if dns.OK {
		t.Error("DNS check should fail for a different IP")
	}
	refs, _ := summary.Find(CheckDomainConfig)
	if !refs.OK {
		t.Errorf("grep without matches is not a failure: %+v", refs)
	}
	out := strings.Join(rec.Texts(), "\n")
	for _, want := range []string{
		"Domain points to a different IP (not 203.0.113.10)",
		"No domain-specific configuration found",
		"No site serves /var/www/app",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}
}

func TestDomainCheckerResolvesHostName(t *testing.T) {
	cfg := testConfig(t)
	cfg.Target.Host = "web.example.net"
	remote := &scriptedRemote{}
	c := NewDomainChecker(cfg, dialTo(remote), report.NewRecorder(), nil)
	c.resolver = fakeResolver{
		"example.com":     {"2001:db8::1", "192.0.2.5"},
		"web.example.net": {"192.0.2.5"},
	}
	remote.replies = domainReplies(reply{code: 1}, reply{code: 1})

	summary, err := c.Run(context.Background(), "example.com")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if dns, _ := summary.Find(CheckDNS); !dns.OK {
		t.Errorf("dns = %+v", dns)
	}
}

func TestDomainCheckerWithoutSSH(t *testing.T) {
	cfg := testConfig(t)
	c := NewDomainChecker(cfg, failingDial, report.NewRecorder(), nil)
	c.resolver = fakeResolver{"example.com": {"203.0.113.10"}}

	summary, err := c.Run(context.Background(), "")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Passed != 1 || summary.Failed != 4 {
		t.Errorf("summary = %+v", summary)
	}
}

func TestDomainCheckerRequiresDomain(t *testing.T) {
	cfg := testConfig(t)
	cfg.Diagnose.Domain = ""
	c := NewDomainChecker(cfg, failingDial, report.NewRecorder(), nil)

	if _, err := c.Run(context.Background(), ""); err == nil {
		t.Fatal("expected an error without a domain")
	}
	if _, err := c.Run(context.Background(), "bad domain"); err == nil {
		t.Fatal("expected an error for an invalid domain")
	}
}
