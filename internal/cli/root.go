package cli

import (
	"github.com/spf13/cobra"
)

// Execute builds and runs the CLI.
func Execute() error {
	var (
		cfgFile  string
		logLevel string
	)

	rootCmd := &cobra.Command{
		Use:   "azmon-shipper",
		Short: "Ships local logs to an Azure Monitor Logs Ingestion endpoint",
		Long: `azmon-shipper is a log shipping agent. It tails local sources (files,
the systemd journal, stdin), parses and enriches each line, batches the
results, and posts them to the Logs Ingestion endpoint of an Azure Monitor
Data Collection Rule.

Authentication uses a service principal when tenant_id, client_id and
client_secret are configured, and ambient identity (managed identity,
workload identity, az login) otherwise. The access token is refreshed in
the background for the lifetime of the process.

Hot-reload: when a config file is specified, changes are applied without a
restart where possible; changes to ingestors or the endpoint need one.`,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(
		NewRunCmd(&cfgFile, &logLevel),
		NewValidateCmd(&cfgFile),
		NewVersionCmd(),
	)

	return rootCmd.Execute()
}
