// Package auth supplies outbound OAuth2 credentials for api components.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"workflow-orchestrator/backend/internal/config"

	"github.com/coreos/go-oidc"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// ErrUnknownProfile is returned for a credential profile that is not configured.
var ErrUnknownProfile = errors.New("unknown credential profile")

// Logger defines the logging interface compatible with the application logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// Provider hands out HTTP clients that authenticate with a named
// client-credentials profile. Clients and their tokens are cached per profile.
type Provider struct {
	profiles map[string]config.CredentialProfile
	base     *http.Client
	logger   Logger

	mu      sync.Mutex
	clients map[string]*http.Client
}

// New creates a Provider. base carries the transport used both for token
// requests and for the authenticated calls; nil means http.DefaultClient.
func New(profiles map[string]config.CredentialProfile, base *http.Client, logger Logger) *Provider {
	if base == nil {
		base = http.DefaultClient
	}
	return &Provider{
		profiles: profiles,
		base:     base,
		logger:   logger,
		clients:  make(map[string]*http.Client),
	}
}

// Has reports whether a profile is configured.
func (p *Provider) Has(name string) bool {
	_, ok := p.profiles[name]
	return ok
}

// Client returns an HTTP client for the named profile. When the profile
// names an issuer instead of a token URL, the token endpoint is discovered
// on first use.
func (p *Provider) Client(ctx context.Context, name string) (*http.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.clients[name]; ok {
		return c, nil
	}
	profile, ok := p.profiles[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProfile, name)
	}

	tokenURL := profile.TokenURL
	if tokenURL == "" {
		provider, err := oidc.NewProvider(oidc.ClientContext(ctx, p.base), profile.Issuer)
		if err != nil {
			return nil, fmt.Errorf("discovering token endpoint for %q: %w", name, err)
		}
		tokenURL = provider.Endpoint().TokenURL
		if p.logger != nil {
			p.logger.Debug("discovered token endpoint", "profile", name, "issuer", profile.Issuer, "token_url", tokenURL)
		}
	}

	cc := &clientcredentials.Config{
		ClientID:       profile.ClientID,
		ClientSecret:   profile.ClientSecret,
		TokenURL:       tokenURL,
		Scopes:         profile.Scopes,
		EndpointParams: endpointParams(profile.Params),
	}

	// token refreshes outlive the request that first built the client
	tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, p.base)
	client := &http.Client{
		Transport: &oauth2.Transport{
			Source: cc.TokenSource(tokenCtx),
			Base:   p.base.Transport,
		},
		Timeout: p.base.Timeout,
	}
	p.clients[name] = client
	return client, nil
}

func endpointParams(params map[string]string) url.Values {
	if len(params) == 0 {
		return nil
	}
	v := url.Values{}
	for k, val := range params {
		v.Set(k, val)
	}
	return v
}
