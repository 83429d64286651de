// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// HTTPConfig holds shared HTTP settings used by stages that make network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "deepresearch/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent"`
}

// ProviderConfig holds credentials and limits for one search provider.
type ProviderConfig struct {
	// Enabled controls whether the provider is constructed at startup.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// APIKey authenticates against the provider.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// RequestsPerSecond caps the shared rate limiter for the provider.
	// Zero means no throttle.
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second"`
}

// SearchConfig holds settings for the search phase.
type SearchConfig struct {
	HTTPConfig `yaml:",inline"`

	// ProviderTimeout bounds each individual provider call (default 15s).
	ProviderTimeout time.Duration `json:"provider_timeout" yaml:"provider_timeout"`

	// MaxResultsPerProvider caps hits requested per provider per
	// sub-question (default 10).
	MaxResultsPerProvider int `json:"max_results_per_provider" yaml:"max_results_per_provider"`

	// Providers configures the individual backends.
	Perplexity ProviderConfig `json:"perplexity" yaml:"perplexity"`
	Exa        ProviderConfig `json:"exa" yaml:"exa"`
	Brave      ProviderConfig `json:"brave" yaml:"brave"`
}

// FetchConfig holds settings for the fetch phase.
type FetchConfig struct {
	HTTPConfig `yaml:",inline"`

	// Concurrency caps in-flight fetches regardless of queue depth
	// (default 20).
	Concurrency int `json:"concurrency" yaml:"concurrency"`

	// FetchTimeout bounds each individual fetch (default 10s).
	FetchTimeout time.Duration `json:"fetch_timeout" yaml:"fetch_timeout"`

	// MaxDocumentBytes caps extracted text per document (default 256 KiB).
	MaxDocumentBytes int `json:"max_document_bytes" yaml:"max_document_bytes"`
}

// RankConfig holds settings for the ranking phase.
type RankConfig struct {
	// DomainCap is the maximum accepted sources per distinct domain per
	// sub-question (default 5).
	DomainCap int `json:"domain_cap" yaml:"domain_cap"`

	// PrefixWords bounds how much extracted text participates in the
	// relevance computation (default 1500 words).
	PrefixWords int `json:"prefix_words" yaml:"prefix_words"`
}

// ReasoningConfig holds settings for the delegated text-reasoning capability.
type ReasoningConfig struct {
	// Model is the model identifier (e.g. "claude-sonnet-4-5-20250929").
	Model string `json:"model" yaml:"model"`

	// APIKey is the authentication key for the reasoning API.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// MaxRetries is the number of retry attempts for failed calls (default 3).
	MaxRetries int `json:"max_retries" yaml:"max_retries"`
}

// CheckpointConfig holds settings for the checkpoint store.
type CheckpointConfig struct {
	// Path is the SQLite database file (default "deepresearch.db").
	Path string `json:"path" yaml:"path"`
}

// ServerConfig holds settings for the HTTP control API.
type ServerConfig struct {
	// Addr is the listen address (default ":8080").
	Addr string `json:"addr" yaml:"addr"`
}

// OrchestratorConfig holds run-level limits enforced by the orchestrator.
type OrchestratorConfig struct {
	// RunBudget is the per-run wall-clock budget; exceeding it fails the
	// run regardless of phase (default 120s).
	RunBudget time.Duration `json:"run_budget" yaml:"run_budget"`

	// DefaultMaxSources applies when a run omits max_sources (default 20).
	DefaultMaxSources int `json:"default_max_sources" yaml:"default_max_sources"`

	// DefaultMaxDepth applies when a run omits max_depth (default 3).
	DefaultMaxDepth int `json:"default_max_depth" yaml:"default_max_depth"`
}

// PipelineConfig groups all stage configurations for the pipeline.
type PipelineConfig struct {
	Search       SearchConfig       `json:"search" yaml:"search"`
	Fetch        FetchConfig        `json:"fetch" yaml:"fetch"`
	Rank         RankConfig         `json:"rank" yaml:"rank"`
	Reasoning    ReasoningConfig    `json:"reasoning" yaml:"reasoning"`
	Checkpoint   CheckpointConfig   `json:"checkpoint" yaml:"checkpoint"`
	Server       ServerConfig       `json:"server" yaml:"server"`
	Orchestrator OrchestratorConfig `json:"orchestrator" yaml:"orchestrator"`
}

// WithDefaults returns a copy of the config with zero values replaced by
// the documented defaults.
func (c PipelineConfig) WithDefaults() PipelineConfig {
	if c.Search.ProviderTimeout <= 0 {
		c.Search.ProviderTimeout = 15 * time.Second
	}
	if c.Search.MaxResultsPerProvider <= 0 {
		c.Search.MaxResultsPerProvider = 10
	}
	if c.Search.Timeout <= 0 {
		c.Search.Timeout = 15 * time.Second
	}
	if c.Search.UserAgent == "" {
		c.Search.UserAgent = "deepresearch/0.1"
	}
	if c.Fetch.Concurrency <= 0 {
		c.Fetch.Concurrency = 20
	}
	if c.Fetch.FetchTimeout <= 0 {
		c.Fetch.FetchTimeout = 10 * time.Second
	}
	if c.Fetch.MaxDocumentBytes <= 0 {
		c.Fetch.MaxDocumentBytes = 256 << 10
	}
	if c.Fetch.Timeout <= 0 {
		c.Fetch.Timeout = 10 * time.Second
	}
	if c.Fetch.UserAgent == "" {
		c.Fetch.UserAgent = "deepresearch/0.1"
	}
	if c.Rank.DomainCap <= 0 {
		c.Rank.DomainCap = 5
	}
	if c.Rank.PrefixWords <= 0 {
		c.Rank.PrefixWords = 1500
	}
	if c.Reasoning.MaxRetries <= 0 {
		c.Reasoning.MaxRetries = 3
	}
	if c.Checkpoint.Path == "" {
		c.Checkpoint.Path = "deepresearch.db"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Orchestrator.RunBudget <= 0 {
		c.Orchestrator.RunBudget = 120 * time.Second
	}
	if c.Orchestrator.DefaultMaxSources <= 0 {
		c.Orchestrator.DefaultMaxSources = 20
	}
	if c.Orchestrator.DefaultMaxDepth <= 0 {
		c.Orchestrator.DefaultMaxDepth = 3
	}
	return c
}
