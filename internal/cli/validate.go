package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/GabrielNunesIT/azmon-shipper/internal/config"
	"github.com/GabrielNunesIT/azmon-shipper/internal/delivery"
)

// NewValidateCmd creates the validate command. Validation is offline: it
// never contacts the endpoint or the identity provider.
func NewValidateCmd(cfgFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgFile)
			if err != nil {
				return fmt.Errorf("configuration error: %w", err)
			}

			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("configuration invalid: %w", err)
			}

			ingestors := 0
			for _, enabled := range []bool{
				cfg.Ingestors.File.Enabled,
				cfg.Ingestors.Journal.Enabled,
				cfg.Ingestors.Stdin.Enabled,
			} {
				if enabled {
					ingestors++
				}
			}

			credential := "ambient identity"
			if cfg.Azure.HasClientSecret() {
				credential = "service principal"
			}

			fmt.Printf("Configuration valid:\n")
			fmt.Printf("  Ingestors:  %d enabled\n", ingestors)
			fmt.Printf("  Endpoint:   %s\n", delivery.EndpointURL(cfg.Azure.EndpointHost, cfg.Azure.ImmutableID, cfg.Azure.StreamName))
			fmt.Printf("  Credential: %s\n", credential)
			return nil
		},
	}
}
