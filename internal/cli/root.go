// Package cli implements the static-deploy command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"static-deploy/internal/config"
	"static-deploy/internal/deploy"
	"static-deploy/internal/pkg/logger"
	"static-deploy/internal/pkg/ssh"
	"static-deploy/internal/report"
)

// errCancelled marks a run interrupted by the operator. The message has
// already been printed.
var errCancelled = errors.New("cancelled")

type app struct {
	opts    config.Options
	verbose bool
	noColor bool

	stdout io.Writer
	stderr io.Writer

	cfg *config.Config
	log *logger.Logger

	dial func(cfg *config.Config) deploy.Dialer
	run  deploy.RunFunc
}

func newApp() *app {
	return &app{
		stdout: os.Stdout,
		stderr: os.Stderr,
		dial: func(cfg *config.Config) deploy.Dialer {
			return deploy.SSHDialer(cfg, ssh.TerminalPrompt)
		},
		run: deploy.LocalRun,
	}
}

func (a *app) console() *report.Console {
	return report.NewConsole(a.stdout, a.noColor)
}

// load reads configuration and builds the logger. Operator output goes to
// stdout through the console, so the logger stays at warn unless verbose.
func (a *app) load() error {
	cfg, err := config.Load(a.opts)
	if err != nil {
		return err
	}
	a.cfg = cfg
	level := "warn"
	if a.verbose {
		level = "debug"
	}
	return a.reloadLogger(level)
}

func (a *app) reloadLogger(level string) error {
	log, err := logger.New(level, a.cfg.Logging.Format)
	if err != nil {
		return err
	}
	if a.log != nil {
		_ = a.log.Sync()
	}
	a.log = log
	zap.ReplaceGlobals(log.Logger)
	return nil
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "static-deploy",
		Short: "Build a Flutter web app and ship it to an nginx host over SSH",
		Long: fmt.Sprintf(`%s

Builds the web bundle, backs up the live copy, uploads the new one,
fixes ownership and restarts the web server. The debug and check-domain
commands diagnose a target that does not serve what you expect.`,
			color.New(color.Bold).Sprint("static-deploy")),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if a.noColor {
				color.NoColor = true
			}
			return a.load()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	flags := root.PersistentFlags()
	flags.StringVarP(&a.opts.ConfigFile, "config", "c", "", "config file (default ./deploy.yaml if present)")
	flags.StringVar(&a.opts.EnvFile, "env-file", "", "dotenv file to load (default ./.env if present)")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "log debug details to stderr")
	flags.BoolVar(&a.noColor, "no-color", false, "disable colored output")

	root.AddCommand(
		newDeployCommand(a),
		newDebugCommand(a),
		newCheckDomainCommand(a),
		newBackupsCommand(a),
		newConfigCommand(a),
		newServeCommand(a),
	)
	return root
}

// Execute runs the command line and returns the process exit code.
func Execute(ctx context.Context, args []string) int {
	return execute(ctx, newApp(), args)
}

func execute(ctx context.Context, a *app, args []string) int {
	root := newRootCommand(a)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errCancelled) {
			red := color.New(color.FgRed).SprintFunc()
			fmt.Fprintf(a.stderr, "%s %v\n", red("Error:"), err)
		}
		return 1
	}
	return 0
}
