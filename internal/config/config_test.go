package config

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

func setRequired(t *testing.T) {
	t.Setenv("DEPLOY_TARGET_HOST", "203.0.113.10")
	t.Setenv("DEPLOY_TARGET_USER", "deploy")
	t.Setenv("DEPLOY_TARGET_KEY_PATH", "/home/deploy/.ssh/id_rsa")
	t.Setenv("DEPLOY_PATHS_REMOTE_DIR", "/var/www/app/")
}

func TestLoadFromEnvironment(t *testing.T) {
	setRequired(t)
	t.Setenv("DEPLOY_TARGET_CONNECT_TIMEOUT", "10s")
	t.Setenv("DEPLOY_DEPLOY_BACKUP_RETENTION", "5")

	cfg, err := Load(Options{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Target.Host != "203.0.113.10" || cfg.Target.Port != 22 {
		t.Errorf("target = %+v", cfg.Target)
	}
	if cfg.Target.ConnectTimeout != 10*time.Second {
		t.Errorf("connect timeout = %s", cfg.Target.ConnectTimeout)
	}
	if cfg.Paths.RemoteDir != "/var/www/app" {
		t.Errorf("remote dir should lose its trailing slash: %q", cfg.Paths.RemoteDir)
	}
	if cfg.Deploy.BackupRetention != 5 {
		t.Errorf("retention = %d", cfg.Deploy.BackupRetention)
	}
	if cfg.Paths.BuildDir != "build/web" || cfg.Deploy.Service != "nginx" || cfg.Deploy.WebOwner != "www-data:www-data" {
		t.Errorf("defaults not applied: %+v %+v", cfg.Paths, cfg.Deploy)
	}
	if cfg.Diagnose.SiteURL != "http://203.0.113.10" {
		t.Errorf("site url = %q", cfg.Diagnose.SiteURL)
	}
	if cfg.Login() != "deploy@203.0.113.10" || cfg.Address() != "203.0.113.10:22" || cfg.SiteName() != "app" {
		t.Errorf("login=%q address=%q site=%q", cfg.Login(), cfg.Address(), cfg.SiteName())
	}
}

func TestLoadFileWithEnvOverride(t *testing.T) {
	file := writeFile(t, "deploy.yaml", `
target:
  host: example.com
  user: web
  key_path: /keys/id_ed25519
  port: 2222
paths:
  remote_dir: /srv/site
deploy:
  use_sudo: false
  service: apache2
logging:
  level: DEBUG
  format: JSON
`)
	t.Setenv("DEPLOY_DEPLOY_SERVICE", "nginx")

	cfg, err := Load(Options{ConfigFile: file})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Target.Port != 2222 || cfg.Target.Host != "example.com" {
		t.Errorf("target = %+v", cfg.Target)
	}
	if cfg.Deploy.UseSudo {
		t.Error("use_sudo from file ignored")
	}
	if cfg.Deploy.Service != "nginx" {
		t.Errorf("env should override file, service = %q", cfg.Deploy.Service)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("logging = %+v", cfg.Logging)
	}
}

func TestLoadEnvFile(t *testing.T) {
	env := writeFile(t, "prod.env", strings.Join([]string{
		"DEPLOY_TARGET_HOST=198.51.100.7",
		"DEPLOY_TARGET_USER=ubuntu",
		"DEPLOY_TARGET_KEY_PATH=/keys/prod",
		"DEPLOY_PATHS_REMOTE_DIR=/var/www/prod",
	}, "\n"))
	for _, key := range []string{"DEPLOY_TARGET_HOST", "DEPLOY_TARGET_USER", "DEPLOY_TARGET_KEY_PATH", "DEPLOY_PATHS_REMOTE_DIR"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	cfg, err := Load(Options{EnvFile: env})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Target.Host != "198.51.100.7" || cfg.Paths.RemoteDir != "/var/www/prod" {
		t.Errorf("env file not applied: %+v %+v", cfg.Target, cfg.Paths)
	}
}

func TestLoadMissingExplicitFiles(t *testing.T) {
	setRequired(t)
	missing := filepath.Join(t.TempDir(), "nope")

	if _, err := Load(Options{EnvFile: missing}); err == nil {
		t.Error("explicit env file that does not exist must fail")
	}
	if _, err := Load(Options{ConfigFile: missing + ".yaml"}); err == nil {
		t.Error("explicit config file that does not exist must fail")
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	file := writeFile(t, "deploy.yaml", `
target:
  port: 70000
paths:
  remote_dir: relative/dir
deploy:
  backup_retention: 0
  dir_mode: "rwx"
  web_owner: "a:b:c"
logging:
  format: xml
`)
	_, err := Load(Options{ConfigFile: file})
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{
		"target.host is required",
		"target.user is required",
		"target.key_path is required",
		"target.port",
		"paths.remote_dir",
		"deploy.backup_retention=0",
		`deploy.dir_mode="rwx"`,
		"deploy.web_owner",
		`logging.format="xml"`,
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error missing %q:\n%v", want, err)
		}
	}
}

func TestValidateRejectsRoot(t *testing.T) {
	setRequired(t)
	t.Setenv("DEPLOY_PATHS_REMOTE_DIR", "/")

	if _, err := Load(Options{}); err == nil {
		t.Fatal("remote_dir / must be rejected")
	}
}

func TestValidateStrictHostKeyNeedsKnownHosts(t *testing.T) {
	setRequired(t)
	t.Setenv("DEPLOY_TARGET_STRICT_HOST_KEY", "true")

	_, err := Load(Options{})
	if err == nil || !strings.Contains(err.Error(), "known_hosts_path") {
		t.Fatalf("err = %v", err)
	}
}

func TestLoadIPv6Host(t *testing.T) {
	setRequired(t)
	t.Setenv("DEPLOY_TARGET_HOST", "2001:db8::10")

	cfg, err := Load(Options{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Diagnose.SiteURL != "http://[2001:db8::10]" {
		t.Errorf("site url = %q", cfg.Diagnose.SiteURL)
	}
	u, err := url.Parse(cfg.Diagnose.SiteURL)
	if err != nil {
		t.Fatalf("parse site url: %v", err)
	}
	if u.Hostname() != "2001:db8::10" || u.Port() != "" {
		t.Errorf("site url resolves to host=%q port=%q", u.Hostname(), u.Port())
	}
	if cfg.Address() != "[2001:db8::10]:22" {
		t.Errorf("address = %q", cfg.Address())
	}
}

func TestRedacted(t *testing.T) {
	cfg := &Config{Target: TargetConfig{Passphrase: "hunter2"}, Server: ServerConfig{AllowOrigins: []string{"a"}}}
	out := cfg.Redacted()
	if out.Target.Passphrase != "********" {
		t.Errorf("passphrase leaked: %q", out.Target.Passphrase)
	}
	out.Server.AllowOrigins[0] = "b"
	if cfg.Target.Passphrase != "hunter2" || cfg.Server.AllowOrigins[0] != "a" {
		t.Error("Redacted must not modify the original")
	}
}
