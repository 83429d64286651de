// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package httpapi

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/meshintel/deepresearch/internal/provider"
)

// healthCacheTTL bounds how often providers are pinged. Health checks
// hit real provider endpoints, so results are reused across requests.
const healthCacheTTL = 30 * time.Second

// healthProbeTimeout bounds each individual ping.
const healthProbeTimeout = 5 * time.Second

type providerDetail struct {
	Kind  string `json:"kind"`
	Error string `json:"error,omitempty"`
}

type healthResponse struct {
	// Status is "ok" when every provider is reachable, "degraded"
	// otherwise.
	Status    string                    `json:"status"`
	Providers map[string]bool           `json:"providers"`
	Details   map[string]providerDetail `json:"details,omitempty"`
	CheckedAt time.Time                 `json:"checked_at"`
}

// anyReachable reports whether at least one provider responded.
func (r healthResponse) anyReachable() bool {
	for _, up := range r.Providers {
		if up {
			return true
		}
	}
	return false
}

// healthCache memoizes the last probe result for its TTL.
type healthCache struct {
	ttl time.Duration

	mu      sync.Mutex
	last    healthResponse
	lastSet time.Time
}

func newHealthCache(ttl time.Duration) *healthCache {
	return &healthCache{ttl: ttl}
}

// get returns the cached response, or runs probe and caches its result.
func (c *healthCache) get(ctx context.Context, probe func(context.Context) healthResponse) healthResponse {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.lastSet.IsZero() && time.Since(c.lastSet) < c.ttl {
		return c.last
	}
	c.last = probe(ctx)
	c.lastSet = time.Now()
	return c.last
}

func (s *Server) providerHealth(w http.ResponseWriter, r *http.Request) {
	resp := s.health.get(r.Context(), s.probeProviders)

	status := http.StatusOK
	if !resp.anyReachable() {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// probeProviders pings every backend concurrently. The overall status is
// ok only when every configured provider responds.
func (s *Server) probeProviders(ctx context.Context) healthResponse {
	type probeResult struct {
		name string
		kind string
		err  error
	}
	results := make([]probeResult, len(s.backends))

	var wg sync.WaitGroup
	for i, b := range s.backends {
		wg.Add(1)
		go func(i int, b provider.Backend) {
			defer wg.Done()
			probeCtx, cancel := context.WithTimeout(ctx, healthProbeTimeout)
			defer cancel()
			results[i] = probeResult{name: b.Name(), kind: b.Kind().String(), err: b.Ping(probeCtx)}
		}(i, b)
	}
	wg.Wait()

	resp := healthResponse{
		Status:    "ok",
		Providers: make(map[string]bool, len(results)),
		Details:   make(map[string]providerDetail, len(results)),
		CheckedAt: time.Now().UTC(),
	}
	for _, r := range results {
		detail := providerDetail{Kind: r.kind}
		if r.err != nil {
			detail.Error = r.err.Error()
			resp.Status = "degraded"
		}
		resp.Providers[r.name] = r.err == nil
		resp.Details[r.name] = detail
	}
	if len(results) == 0 {
		resp.Status = "degraded"
	}
	return resp
}
