package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"static-deploy/internal/deploy"
	"static-deploy/internal/report"
	"static-deploy/pkg/utils"
)

func newDeployCommand(a *app) *cobra.Command {
	var (
		opts       deploy.Options
		transcript string
	)
	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Build the web app and deploy it to the target",
		Long: `Builds the Flutter web bundle and replaces the remote directory with it.

The live copy is backed up first and only the newest backups are kept.
Failures after the upload are reported as warnings since the new files
are already in place.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			console := a.console()
			var reporter report.Reporter = console
			if transcript != "" {
				f, err := os.Create(transcript)
				if err != nil {
					return fmt.Errorf("create transcript: %w", err)
				}
				defer f.Close()
				reporter = report.Multi{console, report.NewConsole(f, true)}
			}
			deployer := deploy.NewDeployer(a.cfg, a.dial(a.cfg), a.run, reporter, a.log)

			start := time.Now()
			_, err := deployer.Run(cmd.Context(), opts)
			switch {
			case err == nil:
				console.Info("Finished in %s", time.Since(start).Round(time.Second))
				return nil
			case errors.Is(err, context.Canceled):
				console.Warn("Deployment cancelled by user")
				return errCancelled
			}

			var se *deploy.StepError
			if errors.As(err, &se) {
				return utils.NewDeployError(se.Step, se.Err)
			}
			return fmt.Errorf("deployment failed: %w", err)
		},
	}
	cmd.Flags().BoolVar(&opts.SkipBuild, "skip-build", false, "upload the existing build output without rebuilding")
	cmd.Flags().StringVar(&transcript, "transcript", "", "also write the deployment output, uncolored, to this file")
	return cmd
}

func newBackupsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "backups",
		Short: "List backups of the remote directory, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			console := a.console()
			deployer := deploy.NewDeployer(a.cfg, a.dial(a.cfg), a.run, console, a.log)

			backups, err := deployer.ListBackups(cmd.Context())
			if err != nil {
				return err
			}
			if len(backups) == 0 {
				console.Info("No backups of %s found", a.cfg.Paths.RemoteDir)
				return nil
			}
			for _, b := range backups {
				console.Info("%s  %s", b.Created.Format(time.DateTime), b.Path)
			}
			console.Info("%d backup(s), retention %d", len(backups), a.cfg.Deploy.BackupRetention)
			return nil
		},
	}
}
