package testutil

import (
	"context"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
)

// StaticCredential is a TokenCredential that always returns itself as the
// bearer secret. It keeps network-free tests out of the identity provider.
type StaticCredential string

// GetToken implements azcore.TokenCredential.
func (s StaticCredential) GetToken(ctx context.Context, opts policy.TokenRequestOptions) (azcore.AccessToken, error) {
	return azcore.AccessToken{
		Token:     string(s),
		ExpiresOn: time.Now().Add(time.Hour),
	}, nil
}
