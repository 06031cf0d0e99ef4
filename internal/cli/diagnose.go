package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"static-deploy/internal/diagnose"
	"static-deploy/internal/report"
)

func newDebugCommand(a *app) *cobra.Command {
	var strict bool
	cmd := &cobra.Command{
		Use:   "debug",
		Short: "Run diagnostics against the local project and the target",
		Long: `Checks the local toolchain and build output, SSH reachability, the remote
directory, the web server and the site itself. Every check runs even when
an earlier one fails.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			console := a.console()
			summary, err := diagnose.NewDebugger(a.cfg, a.dial(a.cfg), a.run, console, a.log).Run(cmd.Context())
			return a.finishDiagnostics(console, summary, err, strict)
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "exit non-zero when any check fails")
	return cmd
}

func newCheckDomainCommand(a *app) *cobra.Command {
	var (
		domain string
		strict bool
	)
	cmd := &cobra.Command{
		Use:   "check-domain",
		Short: "Check DNS and nginx configuration for a domain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			console := a.console()
			summary, err := diagnose.NewDomainChecker(a.cfg, a.dial(a.cfg), console, a.log).Run(cmd.Context(), domain)
			return a.finishDiagnostics(console, summary, err, strict)
		},
	}
	cmd.Flags().StringVarP(&domain, "domain", "d", "", "domain to check (default diagnose.domain)")
	cmd.Flags().BoolVar(&strict, "strict", false, "exit non-zero when any check fails")
	return cmd
}

func (a *app) finishDiagnostics(console report.Reporter, summary *diagnose.Summary, err error, strict bool) error {
	if errors.Is(err, context.Canceled) {
		console.Warn("Diagnostics cancelled by user")
		return errCancelled
	}
	if err != nil {
		return err
	}
	if summary.Failed == 0 {
		console.Success("All %d checks passed", summary.Passed)
		return nil
	}
	console.Warn("%d of %d checks failed", summary.Failed, len(summary.Checks))
	if strict {
		return fmt.Errorf("%d check(s) failed", summary.Failed)
	}
	return nil
}
