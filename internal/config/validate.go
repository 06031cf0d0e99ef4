package config

import (
	"fmt"
	"path"
	"strconv"
	"strings"

	"static-deploy/pkg/utils"
)

func (c *Config) Validate() error {
	var errs []string

	if strings.TrimSpace(c.Target.Host) == "" {
		errs = append(errs, "target.host is required (DEPLOY_TARGET_HOST)")
	} else if err := utils.ValidateHost(c.Target.Host); err != nil {
		errs = append(errs, fmt.Sprintf("target.host: %v", err))
	}
	if err := utils.ValidatePort(c.Target.Port); err != nil {
		errs = append(errs, fmt.Sprintf("target.port: %v", err))
	}
	if strings.TrimSpace(c.Target.User) == "" {
		errs = append(errs, "target.user is required (DEPLOY_TARGET_USER)")
	} else if err := utils.ValidateUsername(c.Target.User); err != nil {
		errs = append(errs, fmt.Sprintf("target.user: %v", err))
	}
	if strings.TrimSpace(c.Target.KeyPath) == "" {
		errs = append(errs, "target.key_path is required (DEPLOY_TARGET_KEY_PATH)")
	}
	if c.Target.StrictHostKey && c.Target.KnownHostsPath == "" {
		errs = append(errs, "target.known_hosts_path is required when target.strict_host_key is set")
	}
	if c.Target.ConnectTimeout <= 0 {
		errs = append(errs, "target.connect_timeout must be positive")
	}

	if c.Paths.RemoteDir == "" {
		errs = append(errs, "paths.remote_dir is required (DEPLOY_PATHS_REMOTE_DIR)")
	} else if err := utils.ValidateRemotePath(c.Paths.RemoteDir); err != nil {
		errs = append(errs, fmt.Sprintf("paths.remote_dir: %v", err))
	} else if path.Clean(c.Paths.RemoteDir) == "/" {
		errs = append(errs, "paths.remote_dir must not be /")
	}
	if strings.TrimSpace(c.Paths.BuildDir) == "" {
		errs = append(errs, "paths.build_dir is required")
	}

	if c.Deploy.BackupRetention < 1 {
		errs = append(errs, fmt.Sprintf("deploy.backup_retention=%d must be at least 1", c.Deploy.BackupRetention))
	}
	if _, err := strconv.ParseUint(c.Deploy.DirMode, 8, 32); err != nil {
		errs = append(errs, fmt.Sprintf("deploy.dir_mode=%q is not an octal mode", c.Deploy.DirMode))
	}
	if err := utils.ValidateOwner(c.Deploy.WebOwner); err != nil {
		errs = append(errs, fmt.Sprintf("deploy.web_owner: %v", err))
	}
	if strings.TrimSpace(c.Deploy.Service) == "" {
		errs = append(errs, "deploy.service is required")
	}

	if c.Diagnose.LogLines < 1 {
		errs = append(errs, "diagnose.log_lines must be at least 1")
	}
	if c.Diagnose.HTTPTimeout <= 0 {
		errs = append(errs, "diagnose.http_timeout must be positive")
	}
	if err := utils.ValidatePort(c.Diagnose.Port); err != nil {
		errs = append(errs, fmt.Sprintf("diagnose.port: %v", err))
	}

	if len(c.Server.AllowOrigins) == 0 {
		errs = append(errs, "server.allow_origins must list at least one origin")
	}

	switch c.Logging.Format {
	case "console", "json":
	default:
		errs = append(errs, fmt.Sprintf("logging.format=%q unsupported (console or json)", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}
