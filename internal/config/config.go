package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvPrefix         = "DEPLOY"
	DefaultConfigName = "deploy"
	DefaultEnvFile    = ".env"
)

type Config struct {
	Target   TargetConfig   `mapstructure:"target" yaml:"target"`
	Paths    PathsConfig    `mapstructure:"paths" yaml:"paths"`
	Build    BuildConfig    `mapstructure:"build" yaml:"build"`
	Deploy   DeployConfig   `mapstructure:"deploy" yaml:"deploy"`
	Diagnose DiagnoseConfig `mapstructure:"diagnose" yaml:"diagnose"`
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
}

// TargetConfig describes the single host deployments go to.
type TargetConfig struct {
	Host           string        `mapstructure:"host" yaml:"host"`
	Port           int           `mapstructure:"port" yaml:"port"`
	User           string        `mapstructure:"user" yaml:"user"`
	KeyPath        string        `mapstructure:"key_path" yaml:"key_path"`
	Passphrase     string        `mapstructure:"passphrase" yaml:"passphrase"`
	KnownHostsPath string        `mapstructure:"known_hosts_path" yaml:"known_hosts_path"`
	StrictHostKey  bool          `mapstructure:"strict_host_key" yaml:"strict_host_key"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`
}

type PathsConfig struct {
	RemoteDir   string `mapstructure:"remote_dir" yaml:"remote_dir"`
	BuildDir    string `mapstructure:"build_dir" yaml:"build_dir"`
	ProjectFile string `mapstructure:"project_file" yaml:"project_file"`
}

type BuildConfig struct {
	Command        string `mapstructure:"command" yaml:"command"`
	VersionCommand string `mapstructure:"version_command" yaml:"version_command"`
	Clean          bool   `mapstructure:"clean" yaml:"clean"`
}

type DeployConfig struct {
	BackupRetention int    `mapstructure:"backup_retention" yaml:"backup_retention"`
	UseSudo         bool   `mapstructure:"use_sudo" yaml:"use_sudo"`
	WebOwner        string `mapstructure:"web_owner" yaml:"web_owner"`
	DirMode         string `mapstructure:"dir_mode" yaml:"dir_mode"`
	Service         string `mapstructure:"service" yaml:"service"`
	ReloadDaemon    bool   `mapstructure:"reload_daemon" yaml:"reload_daemon"`
	CleanRemote     bool   `mapstructure:"clean_remote" yaml:"clean_remote"`
}

type DiagnoseConfig struct {
	Domain          string        `mapstructure:"domain" yaml:"domain"`
	SitesEnabledDir string        `mapstructure:"sites_enabled_dir" yaml:"sites_enabled_dir"`
	WebRoot         string        `mapstructure:"web_root" yaml:"web_root"`
	ErrorLog        string        `mapstructure:"error_log" yaml:"error_log"`
	LogLines        int           `mapstructure:"log_lines" yaml:"log_lines"`
	Port            int           `mapstructure:"port" yaml:"port"`
	SiteURL         string        `mapstructure:"site_url" yaml:"site_url"`
	HTTPTimeout     time.Duration `mapstructure:"http_timeout" yaml:"http_timeout"`
}

type ServerConfig struct {
	Addr         string   `mapstructure:"addr" yaml:"addr"`
	AllowOrigins []string `mapstructure:"allow_origins" yaml:"allow_origins"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// Options selects where configuration is read from. Empty fields fall back
// to ./deploy.{yaml,toml,json} and ./.env, both optional.
type Options struct {
	ConfigFile string
	EnvFile    string
}

var defaults = map[string]any{
	"target.host":             "",
	"target.port":             22,
	"target.user":             "",
	"target.key_path":         "",
	"target.passphrase":       "",
	"target.known_hosts_path": "",
	"target.strict_host_key":  false,
	"target.connect_timeout":  5 * time.Second,

	"paths.remote_dir":   "",
	"paths.build_dir":    "build/web",
	"paths.project_file": "pubspec.yaml",

	"build.command":         "flutter build web --release",
	"build.version_command": "flutter --version",
	"build.clean":           true,

	"deploy.backup_retention": 3,
	"deploy.use_sudo":         true,
	"deploy.web_owner":        "www-data:www-data",
	"deploy.dir_mode":         "755",
	"deploy.service":          "nginx",
	"deploy.reload_daemon":    true,
	"deploy.clean_remote":     true,

	"diagnose.domain":            "",
	"diagnose.sites_enabled_dir": "/etc/nginx/sites-enabled",
	"diagnose.web_root":          "/var/www",
	"diagnose.error_log":         "/var/log/nginx/error.log",
	"diagnose.log_lines":         10,
	"diagnose.port":              80,
	"diagnose.site_url":          "",
	"diagnose.http_timeout":      5 * time.Second,

	"server.addr":          "127.0.0.1:8080",
	"server.allow_origins": []string{"http://localhost:3000"},

	"logging.level":  "info",
	"logging.format": "console",
}

// Load reads the .env file, the config file and DEPLOY_* environment
// variables, in increasing order of precedence, and validates the result.
func Load(opts Options) (*Config, error) {
	if err := loadEnvFile(opts.EnvFile); err != nil {
		return nil, err
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %q: %w", opts.ConfigFile, err)
		}
	} else {
		v.SetConfigName(DefaultConfigName)
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := new(Config)
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to unmarshal config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadEnvFile(file string) error {
	explicit := file != ""
	if !explicit {
		file = DefaultEnvFile
	}
	if _, err := os.Stat(file); err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("env file %q: %w", file, err)
	}
	if err := godotenv.Load(file); err != nil {
		return fmt.Errorf("load env file %q: %w", file, err)
	}
	return nil
}

func (c *Config) applyDefaults() {
	c.Paths.RemoteDir = strings.TrimRight(strings.TrimSpace(c.Paths.RemoteDir), "/")
	if c.Diagnose.SiteURL == "" && c.Target.Host != "" {
		c.Diagnose.SiteURL = siteURL(c.Target.Host)
	}
	if c.Deploy.WebOwner == "" {
		c.Deploy.WebOwner = "www-data:www-data"
	}
	c.Logging.Level = strings.ToLower(c.Logging.Level)
	c.Logging.Format = strings.ToLower(c.Logging.Format)
}

// Address returns host:port for dialing the target.
func (c *Config) Address() string {
	return net.JoinHostPort(c.Target.Host, strconv.Itoa(c.Target.Port))
}

// siteURL is the plain http URL of host, bracketing IPv6 literals.
func siteURL(host string) string {
	if ip := net.ParseIP(host); ip != nil && ip.To4() == nil {
		host = "[" + host + "]"
	}
	return (&url.URL{Scheme: "http", Host: host}).String()
}

// Login returns user@host as shown to the operator.
func (c *Config) Login() string {
	return c.Target.User + "@" + c.Target.Host
}

// SiteName is the last element of the remote directory, used to find the
// matching nginx site config and web root entry.
func (c *Config) SiteName() string {
	return path.Base(c.Paths.RemoteDir)
}

// Redacted returns a copy safe to print.
func (c *Config) Redacted() Config {
	out := *c
	if out.Target.Passphrase != "" {
		out.Target.Passphrase = "********"
	}
	out.Server.AllowOrigins = append([]string(nil), c.Server.AllowOrigins...)
	return out
}
