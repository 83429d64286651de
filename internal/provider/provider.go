// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package provider adapts heterogeneous external search backends to a
// uniform client interface. Each backend (Perplexity, Exa, Brave)
// implements Backend per the Strategy pattern; new providers are added
// by implementing the interface, not by branching on type.
// Implements: prd003-search (provider adapters);
//
//	docs/ARCHITECTURE § Search Providers.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/time/rate"

	"github.com/meshintel/deepresearch/pkg/types"
)

// Backend error categories. Adapters translate backend-specific failures
// (auth, rate limit, malformed response) into exactly one of these; the
// searcher treats all three identically as "this provider failed for
// this call".
var (
	ErrUnavailable = errors.New("provider unavailable")
	ErrRateLimited = errors.New("provider rate limited")
	ErrBadResponse = errors.New("provider bad response")
)

// Options holds per-call search parameters.
type Options struct {
	// MaxResults caps the number of hits requested from the backend.
	MaxResults int
}

// Backend searches a single external provider.
type Backend interface {
	Name() string
	Kind() types.ProviderKind

	// Search runs one query and returns raw hits. Errors wrap one of
	// ErrUnavailable, ErrRateLimited, or ErrBadResponse.
	Search(ctx context.Context, query string, opts Options) ([]types.SearchResult, error)

	// Ping performs a minimal request to check the backend is reachable
	// and credentials are accepted.
	Ping(ctx context.Context) error
}

// classifyStatus maps an HTTP status code to a backend error category.
func classifyStatus(name string, code int) error {
	switch {
	case code == http.StatusTooManyRequests:
		return fmt.Errorf("%s: HTTP %d: %w", name, code, ErrRateLimited)
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fmt.Errorf("%s: HTTP %d: %w", name, code, ErrUnavailable)
	case code >= 500:
		return fmt.Errorf("%s: HTTP %d: %w", name, code, ErrUnavailable)
	default:
		return fmt.Errorf("%s: HTTP %d: %w", name, code, ErrBadResponse)
	}
}

// transportError wraps a network-level failure as ErrUnavailable.
func transportError(name string, err error) error {
	return fmt.Errorf("%s: %v: %w", name, err, ErrUnavailable)
}

// decodeError wraps a malformed-response failure as ErrBadResponse.
func decodeError(name string, err error) error {
	return fmt.Errorf("%s: %v: %w", name, err, ErrBadResponse)
}

// Throttled wraps a backend with a shared rate limiter. The limiter is
// safe under concurrent access, so one Throttled value serves all
// concurrent calls for its provider.
type Throttled struct {
	Backend
	limiter *rate.Limiter
}

// Throttle wraps b so that calls are spaced at most rps per second with
// a burst of one. A non-positive rps returns b unchanged.
func Throttle(b Backend, rps float64) Backend {
	if rps <= 0 {
		return b
	}
	return &Throttled{Backend: b, limiter: rate.NewLimiter(rate.Limit(rps), 1)}
}

// Search waits for the rate limiter before delegating.
func (t *Throttled) Search(ctx context.Context, query string, opts Options) ([]types.SearchResult, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, transportError(t.Name(), err)
	}
	return t.Backend.Search(ctx, query, opts)
}

// FromConfig constructs the enabled backends, each wrapped with its
// configured rate limiter. The returned slice is ordered by kind:
// conversational, semantic, keyword.
func FromConfig(cfg types.SearchConfig, client *http.Client) []Backend {
	var backends []Backend
	if cfg.Perplexity.Enabled {
		backends = append(backends, Throttle(&PerplexityBackend{
			Client:    client,
			APIKey:    cfg.Perplexity.APIKey,
			UserAgent: cfg.UserAgent,
		}, cfg.Perplexity.RequestsPerSecond))
	}
	if cfg.Exa.Enabled {
		backends = append(backends, Throttle(&ExaBackend{
			Client:    client,
			APIKey:    cfg.Exa.APIKey,
			UserAgent: cfg.UserAgent,
		}, cfg.Exa.RequestsPerSecond))
	}
	if cfg.Brave.Enabled {
		backends = append(backends, Throttle(&BraveBackend{
			Client:    client,
			APIKey:    cfg.Brave.APIKey,
			UserAgent: cfg.UserAgent,
		}, cfg.Brave.RequestsPerSecond))
	}
	return backends
}
