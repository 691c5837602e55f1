// Package dispatcher implements the Integration Dispatcher (C3): the
// in-process router for every third-party API call. Per spec.md §4.3,
// on every call it resolves the caller's credential, refreshes an
// expired access token, optionally serves a cached read, and otherwise
// routes to the adapter.
package dispatcher

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/slok/goresilience"
	"github.com/slok/goresilience/circuitbreaker"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	"golang.org/x/oauth2"

	"github.com/workflowd/workflowd/engine/core"
	"github.com/workflowd/workflowd/engine/credential"
	"github.com/workflowd/workflowd/engine/eventlog"
	"github.com/workflowd/workflowd/engine/integration/github"
	"github.com/workflowd/workflowd/engine/integration/gmail"
	"github.com/workflowd/workflowd/engine/integration/slack"
	"github.com/workflowd/workflowd/engine/integration/webhook"
	"github.com/workflowd/workflowd/engine/kind"
	"github.com/workflowd/workflowd/pkg/config"
)

// cacheEntry TTLs per spec.md §4.3.
const (
	ttlGmailLabels     = 5 * time.Minute
	ttlGmailProfile    = 10 * time.Minute
	ttlSlackChannels   = 5 * time.Minute
	ttlSlackUsers      = 5 * time.Minute
	ttlSlackWorkspace  = 10 * time.Minute
	ttlSlackCurrentUsr = 10 * time.Minute
	ttlGitHubRepos     = 5 * time.Minute
	ttlGitHubCurrentUsr = 10 * time.Minute
)

// Dispatcher routes calls to per-app adapters after resolving and, if
// necessary, refreshing the caller's OAuth credential.
type Dispatcher struct {
	creds     credential.Store
	events    eventlog.Recorder
	providers config.ProvidersConfig
	cache     *ristretto.Cache[string, any]
	limiters  map[credential.AppName]*limiter.Limiter
	breaker   goresilience.Runner
	webhook   *webhook.Client
}

// New builds a Dispatcher. providers carries the per-app OAuth client
// config (client id/secret/token url) used only for the refresh path.
func New(creds credential.Store, events eventlog.Recorder, providers config.ProvidersConfig) (*Dispatcher, error) {
	cache, err := ristretto.NewCache(&ristretto.Config[string, any]{
		NumCounters: 1e5,
		MaxCost:     1 << 24,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("dispatcher: creating cache: %w", err)
	}
	rate, err := limiter.NewRateFromFormatted("20-S")
	if err != nil {
		return nil, fmt.Errorf("dispatcher: parsing rate: %w", err)
	}
	store := memory.NewStore()
	limiters := make(map[credential.AppName]*limiter.Limiter, 4)
	for _, app := range []credential.AppName{credential.AppGmail, credential.AppSlack, credential.AppGitHub, credential.AppWebhook} {
		limiters[app] = limiter.New(store, rate)
	}
	breaker := goresilience.RunnerChain(circuitbreaker.NewMiddleware(circuitbreaker.Config{
		ErrorPercentThresholdToOpen: 50,
		MinimumRequestToOpen:        5,
		SuccessfulRequiredOnHalfOpen: 2,
		WaitDurationInOpenState:      5 * time.Second,
		MetricsSlidingWindowBucketQuantity: 10,
		MetricsBucketDuration:              time.Second,
	}))
	return &Dispatcher{
		creds:     creds,
		events:    events,
		providers: providers,
		cache:     cache,
		limiters:  limiters,
		breaker:   breaker,
		webhook:   webhook.New(),
	}, nil
}

// token resolves and, if needed, refreshes the access token for
// (userID, app), per spec.md §4.3 step 1-2.
func (d *Dispatcher) token(ctx context.Context, userID core.ID, app credential.AppName) (string, error) {
	cred, err := d.creds.Load(ctx, userID, app)
	if err != nil {
		return "", kind.New(kind.NotConnected, fmt.Errorf("please connect your %s account", app))
	}
	if !cred.IsExpired(time.Now()) {
		return cred.AccessToken.Value(), nil
	}
	newToken, expiresAt, err := d.refresh(ctx, app, cred.RefreshToken.Value())
	if err != nil {
		// Per spec.md §7, a failed refresh is ReauthRequired; the outbound
		// email notification is the out-of-scope collaborator's job.
		return "", kind.New(kind.ReauthRequired, fmt.Errorf("refreshing %s token: %w", app, err))
	}
	if err := d.creds.UpdateAccess(ctx, userID, app, newToken, expiresAt); err != nil {
		return "", fmt.Errorf("dispatcher: persisting refreshed token: %w", err)
	}
	_ = d.events.Record(ctx, eventlog.TokenRefreshedEvent(userID, string(app)))
	return newToken, nil
}

// refresh exchanges a refresh token for a fresh access token using the
// provider's token endpoint, via golang.org/x/oauth2.
func (d *Dispatcher) refresh(ctx context.Context, app credential.AppName, refreshToken string) (string, *time.Time, error) {
	creds, ok := d.providerCredentials(app)
	if !ok {
		return "", nil, fmt.Errorf("no OAuth client config for app %q", app)
	}
	oauthCfg := &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret.Value(),
		Endpoint:     oauth2.Endpoint{TokenURL: creds.TokenURL},
	}
	src := oauthCfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return "", nil, err
	}
	var expiresAt *time.Time
	if !tok.Expiry.IsZero() {
		e := tok.Expiry
		expiresAt = &e
	}
	return tok.AccessToken, expiresAt, nil
}

func (d *Dispatcher) providerCredentials(app credential.AppName) (config.ProviderCredentials, bool) {
	switch app {
	case credential.AppGmail:
		return d.providers.Gmail, true
	case credential.AppSlack:
		return d.providers.Slack, true
	case credential.AppGitHub:
		return d.providers.GitHub, true
	default:
		return config.ProviderCredentials{}, false
	}
}

// cached runs fn, serving a cached result when one exists and is within
// ttl. ttl == 0 disables caching for this call, per spec.md §4.3's
// closed cacheable-method list.
func cached[T any](ctx context.Context, d *Dispatcher, key string, ttl time.Duration, fn func() (T, error)) (T, error) {
	var zero T
	if ttl > 0 {
		if v, ok := d.cache.Get(key); ok {
			if t, ok := v.(T); ok {
				return t, nil
			}
		}
	}
	limit, err := d.limiters[appFromCacheKey(key)].Get(ctx, key)
	if err == nil && limit.Reached {
		return zero, kind.NewRateLimited(fmt.Errorf("dispatcher: local rate limit exceeded"), int(limit.Reset))
	}
	var result T
	var callErr error
	runErr := d.breaker.Run(ctx, func(ctx context.Context) error {
		result, callErr = fn()
		return callErr
	})
	if runErr != nil && callErr == nil {
		return zero, kind.New(kind.Transient, fmt.Errorf("dispatcher: circuit open: %w", runErr))
	}
	if callErr != nil {
		return zero, callErr
	}
	if ttl > 0 {
		d.cache.SetWithTTL(key, result, 1, ttl)
	}
	return result, nil
}

func appFromCacheKey(key string) credential.AppName {
	for _, app := range []credential.AppName{credential.AppGmail, credential.AppSlack, credential.AppGitHub, credential.AppWebhook} {
		if len(key) >= len(app) && key[:len(app)] == string(app) {
			return app
		}
	}
	return credential.AppWebhook
}

// Gmail returns a token-bound view over the Gmail adapter for userID.
func (d *Dispatcher) Gmail(ctx context.Context, userID core.ID) (*GmailOps, error) {
	tok, err := d.token(ctx, userID, credential.AppGmail)
	if err != nil {
		return nil, err
	}
	return &GmailOps{d: d, userID: userID, client: gmail.New(tok)}, nil
}

// Slack returns a token-bound view over the Slack adapter for userID.
func (d *Dispatcher) Slack(ctx context.Context, userID core.ID) (*SlackOps, error) {
	tok, err := d.token(ctx, userID, credential.AppSlack)
	if err != nil {
		return nil, err
	}
	return &SlackOps{d: d, userID: userID, client: slack.New(tok)}, nil
}

// GitHub returns a token-bound view over the GitHub adapter for userID.
func (d *Dispatcher) GitHub(ctx context.Context, userID core.ID) (*GitHubOps, error) {
	tok, err := d.token(ctx, userID, credential.AppGitHub)
	if err != nil {
		return nil, err
	}
	return &GitHubOps{d: d, userID: userID, client: github.New(tok)}, nil
}

// Webhook has no credential — it is not an OAuth-connected app.
func (d *Dispatcher) Webhook() *webhook.Client { return d.webhook }
