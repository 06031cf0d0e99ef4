package cli

import (
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"static-deploy/internal/server"
)

func newConfigCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the merged configuration as YAML with secrets masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(a.cfg.Redacted())
		},
	})
	return cmd
}

func newServeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP control API",
		Long: `Serves deploy, progress, streaming and diagnostic endpoints on server.addr.
Encrypted keys need target.passphrase since there is no terminal to
prompt on.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// The API logs requests, so it gets the configured level.
			if !a.verbose {
				if err := a.reloadLogger(a.cfg.Logging.Level); err != nil {
					return err
				}
			}
			return server.Run(cmd.Context(), a.cfg, a.log)
		},
	}
}
