package auth

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/GabrielNunesIT/go-libs/logger"
)

// DefaultRefreshPeriod is the refresh interval used when none is configured.
const DefaultRefreshPeriod = time.Hour

// FetchError wraps a failure to obtain a token from the identity provider.
// It is fatal at startup and recoverable during scheduled refresh.
type FetchError struct {
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("token fetch failed: %v", e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Authenticator holds the current bearer token and keeps it fresh.
//
// The token is replaced wholesale under a write lock; readers copy it out
// under a read lock, so a reader never observes a torn value and never
// blocks on network I/O. Delivery calls read the token at most once per
// request and hold no reference beyond it.
type Authenticator struct {
	cred   azcore.TokenCredential
	scope  string
	period time.Duration
	logger logger.ILogger

	mu    sync.RWMutex
	token string

	refreshed chan struct{}
}

// NewAuthenticator fetches the initial token synchronously and returns an
// Authenticator holding it. If the first fetch fails the service must not
// start: the error (a *FetchError) is returned and no refresh loop exists
// yet. Run starts the refresh loop.
func NewAuthenticator(ctx context.Context, cred azcore.TokenCredential, period time.Duration, log logger.ILogger) (*Authenticator, error) {
	if period <= 0 {
		period = DefaultRefreshPeriod
	}
	a := &Authenticator{
		cred:      cred,
		scope:     TokenScope,
		period:    period,
		logger:    log.SubLogger("Authenticator"),
		refreshed: make(chan struct{}, 1),
	}

	tk, err := a.fetch(ctx)
	if err != nil {
		return nil, err
	}
	a.token = tk.Token
	a.logger.Debugf("initial token acquired: expires=%s", tk.ExpiresOn.UTC().Format(time.RFC3339))

	return a, nil
}

// Token returns a copy of the current bearer secret. It never blocks on
// I/O and never fails.
func (a *Authenticator) Token() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.token
}

// Apply sets the Authorization header on an outgoing request.
func (a *Authenticator) Apply(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+a.Token())
}

// Refreshed signals completed refreshes. The channel holds at most one
// pending signal; unconsumed signals are coalesced.
func (a *Authenticator) Refreshed() <-chan struct{} {
	return a.refreshed
}

// Run refreshes the token on a fixed interval until ctx is canceled.
// The first refresh happens one full period after the initial fetch.
// A failed refresh keeps the previous token; the next tick tries again.
// Ticks are strictly sequential: each fetch completes before the next
// tick is considered.
func (a *Authenticator) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.period)
	defer ticker.Stop()

	a.logger.Debugf("token refresh loop started: interval=%s", a.period)

	for {
		select {
		case <-ctx.Done():
			a.logger.Debug("token refresh loop stopped")
			return nil

		case <-ticker.C:
			tk, err := a.fetch(ctx)
			if err != nil {
				a.logger.Errorf("token refresh failed, keeping previous token: %v", err)
				continue
			}

			a.replace(tk.Token)
			a.notifyRefreshed()
			a.logger.Infof("bearer token refreshed: expires=%s", tk.ExpiresOn.UTC().Format(time.RFC3339))
		}
	}
}

// fetch requests a fresh token for the fixed scope.
func (a *Authenticator) fetch(ctx context.Context) (azcore.AccessToken, error) {
	tk, err := a.cred.GetToken(ctx, policy.TokenRequestOptions{Scopes: []string{a.scope}})
	if err != nil {
		return azcore.AccessToken{}, &FetchError{Err: err}
	}
	return tk, nil
}

// replace atomically swaps the stored token.
func (a *Authenticator) replace(token string) {
	a.mu.Lock()
	a.token = token
	a.mu.Unlock()
}

// notifyRefreshed publishes a refresh signal without blocking. A signal
// already pending means the observer will see this refresh too.
func (a *Authenticator) notifyRefreshed() {
	select {
	case a.refreshed <- struct{}{}:
	default:
	}
}
