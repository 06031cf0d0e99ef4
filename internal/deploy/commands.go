package deploy

import (
	"fmt"
	"strings"

	"static-deploy/internal/config"
	"static-deploy/pkg/utils"
)

// BackupTimeLayout is the suffix format of backup directories.
const BackupTimeLayout = "20060102_150405"

const backupInfix = "_backup_"

// BackupCreatedMarker is echoed by the backup command when a copy was made.
const BackupCreatedMarker = "backup-created"

// Commands formats the remote shell commands for one target directory.
type Commands struct {
	RemoteDir string
	User      string
	WebOwner  string
	DirMode   string
	Service   string
	UseSudo   bool
	// CleanRemote empties the remote directory before upload so it ends up
	// holding exactly the build output.
	CleanRemote bool
}

func NewCommands(cfg *config.Config) Commands {
	return Commands{
		RemoteDir: cfg.Paths.RemoteDir,
		User:      cfg.Target.User,
		WebOwner:  cfg.Deploy.WebOwner,
		DirMode:   cfg.Deploy.DirMode,
		Service:   cfg.Deploy.Service,
		UseSudo:   cfg.Deploy.UseSudo,

		CleanRemote: cfg.Deploy.CleanRemote,
	}
}

func (c Commands) sudo(cmd string) string {
	if c.UseSudo {
		return "sudo " + cmd
	}
	return cmd
}

func (c Commands) dir() string {
	return utils.ShellQuote(c.RemoteDir)
}

// BackupPath is the sibling directory a deploy at stamp copies into.
func (c Commands) BackupPath(stamp string) string {
	return c.RemoteDir + backupInfix + stamp
}

// BackupPrefix is the path prefix shared by every backup directory.
func (c Commands) BackupPrefix() string {
	return c.RemoteDir + backupInfix
}

// Backup copies the live directory to its backup path. It exits 1 when that
// path already exists, since cp -r would nest the copy inside it.
func (c Commands) Backup(stamp string) string {
	backup := utils.ShellQuote(c.BackupPath(stamp))
	exists := utils.ShellQuote(c.BackupPath(stamp) + " already exists")
	return fmt.Sprintf("if [ -d %s ]; then if [ -e %s ]; then echo %s >&2; exit 1; fi; %s && echo %s; fi",
		c.dir(), backup, exists, c.sudo(fmt.Sprintf("cp -r %s %s", c.dir(), backup)), BackupCreatedMarker)
}

func (c Commands) Mkdir() string {
	mkdir := c.sudo("mkdir -p " + c.dir())
	if !c.CleanRemote {
		return mkdir
	}
	return mkdir + " && " + c.sudo(fmt.Sprintf("find %s -mindepth 1 -delete", c.dir()))
}

func (c Commands) ChownForUpload() string {
	owner := utils.ShellQuote(c.User + ":" + c.User)
	return c.sudo(fmt.Sprintf("chown -R %s %s", owner, c.dir()))
}

func (c Commands) WebPermissions() string {
	return fmt.Sprintf("%s && %s",
		c.sudo(fmt.Sprintf("chown -R %s %s", utils.ShellQuote(c.WebOwner), c.dir())),
		c.sudo(fmt.Sprintf("chmod -R %s %s", c.DirMode, c.dir())))
}

func (c Commands) DaemonReload() string {
	return c.sudo("systemctl daemon-reload")
}

func (c Commands) Restart() string {
	return c.sudo("systemctl restart " + utils.ShellQuote(c.Service))
}

func (c Commands) IsActive() string {
	return c.sudo("systemctl is-active " + utils.ShellQuote(c.Service))
}

// ListBackups prints one backup directory per line, nothing when none exist.
func (c Commands) ListBackups() string {
	return fmt.Sprintf("ls -1d %s* 2>/dev/null || true", utils.ShellQuote(c.BackupPrefix()))
}

func (c Commands) RemoveBackups(paths []string) string {
	quoted := make([]string, len(paths))
	for i, p := range paths {
		quoted[i] = utils.ShellQuote(p)
	}
	return c.sudo("rm -rf -- " + strings.Join(quoted, " "))
}
