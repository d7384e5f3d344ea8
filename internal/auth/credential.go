// Package auth acquires and maintains the bearer token used against the
// ingestion endpoint.
package auth

import (
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"

	"github.com/GabrielNunesIT/azmon-shipper/internal/config"
)

// TokenScope is the resource all tokens are requested for. The endpoint
// accepts Logs Ingestion tokens only; the scope is not configurable.
const TokenScope = "https://monitor.azure.com//.default"

// NewCredential selects the credential from config. A complete
// tenant/client/secret triple selects an explicit service principal;
// otherwise credentials are discovered from the environment (managed
// identity, workload identity, az login), first provider wins.
func NewCredential(cfg config.AzureConfig) (azcore.TokenCredential, error) {
	if cfg.HasClientSecret() {
		cred, err := azidentity.NewClientSecretCredential(cfg.TenantID, cfg.ClientID, cfg.ClientSecret, nil)
		if err != nil {
			return nil, fmt.Errorf("client secret credential: %w", err)
		}
		return cred, nil
	}

	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("default azure credential: %w", err)
	}
	return cred, nil
}
