// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/meshintel/deepresearch/internal/checkpoint"
	"github.com/meshintel/deepresearch/internal/fetcher"
	"github.com/meshintel/deepresearch/internal/orchestrator"
	"github.com/meshintel/deepresearch/internal/provider"
	"github.com/meshintel/deepresearch/internal/reasoning"
	"github.com/meshintel/deepresearch/pkg/types"
)

const defaultReasoningModel = "claude-sonnet-4-5-20250929"

// app bundles the assembled pipeline for one command invocation.
type app struct {
	cfg      types.PipelineConfig
	logger   *zap.Logger
	store    checkpoint.Store
	backends []provider.Backend
	orch     *orchestrator.Orchestrator
}

func (a *app) close() {
	a.orch.Close()
	_ = a.store.Close()
	_ = a.logger.Sync()
}

// buildApp assembles the pipeline from viper configuration and loaded
// secrets. inMemory selects the non-durable checkpoint store for
// one-shot runs.
func buildApp(cmd *cobra.Command, inMemory bool) (*app, error) {
	cfg := pipelineConfig()

	if cfg.Reasoning.APIKey == "" {
		return nil, fmt.Errorf("reasoning API key required: put it in .secrets/anthropic-api-key or set reasoning.api_key")
	}

	logger, err := buildLogger(cmd)
	if err != nil {
		return nil, err
	}

	var store checkpoint.Store
	if inMemory {
		store = checkpoint.NewMemoryStore()
	} else {
		store, err = checkpoint.NewSQLiteStore(cfg.Checkpoint.Path)
		if err != nil {
			return nil, err
		}
	}

	searchClient := &http.Client{Timeout: cfg.Search.Timeout}
	backends := provider.FromConfig(cfg.Search, searchClient)
	if len(backends) == 0 {
		_ = store.Close()
		return nil, fmt.Errorf("no search providers configured: put keys in .secrets/ (perplexity-api-key, exa-api-key, brave-api-key)")
	}

	engine := reasoning.NewClaudeEngine(cfg.Reasoning, &http.Client{Timeout: 60 * time.Second})
	f := fetcher.New(&http.Client{Timeout: cfg.Fetch.Timeout}, cfg.Fetch, logger)

	return &app{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		backends: backends,
		orch:     orchestrator.New(store, engine, backends, f, cfg, logger),
	}, nil
}

func buildLogger(cmd *cobra.Command) (*zap.Logger, error) {
	verbose, _ := cmd.Flags().GetBool("verbose")
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// pipelineConfig assembles stage configuration from viper keys and
// secret files, then applies documented defaults.
func pipelineConfig() types.PipelineConfig {
	cfg := types.PipelineConfig{}

	cfg.Search.ProviderTimeout = viper.GetDuration("search.provider_timeout")
	cfg.Search.MaxResultsPerProvider = viper.GetInt("search.max_results_per_provider")
	cfg.Search.Timeout = viper.GetDuration("search.timeout")
	cfg.Search.UserAgent = viper.GetString("search.user_agent")
	cfg.Search.Perplexity = providerConfig("perplexity")
	cfg.Search.Exa = providerConfig("exa")
	cfg.Search.Brave = providerConfig("brave")

	cfg.Fetch.Concurrency = viper.GetInt("fetch.concurrency")
	cfg.Fetch.FetchTimeout = viper.GetDuration("fetch.timeout")
	cfg.Fetch.MaxDocumentBytes = viper.GetInt("fetch.max_document_bytes")
	cfg.Fetch.UserAgent = viper.GetString("fetch.user_agent")

	cfg.Rank.DomainCap = viper.GetInt("rank.domain_cap")
	cfg.Rank.PrefixWords = viper.GetInt("rank.prefix_words")

	cfg.Reasoning.Model = viper.GetString("reasoning.model")
	if cfg.Reasoning.Model == "" {
		cfg.Reasoning.Model = defaultReasoningModel
	}
	cfg.Reasoning.APIKey = secretDefault("anthropic-api-key", viper.GetString("reasoning.api_key"))
	cfg.Reasoning.MaxRetries = viper.GetInt("reasoning.max_retries")

	cfg.Checkpoint.Path = viper.GetString("checkpoint.path")
	cfg.Server.Addr = viper.GetString("server.addr")

	cfg.Orchestrator.RunBudget = viper.GetDuration("orchestrator.run_budget")
	cfg.Orchestrator.DefaultMaxSources = viper.GetInt("orchestrator.default_max_sources")
	cfg.Orchestrator.DefaultMaxDepth = viper.GetInt("orchestrator.default_max_depth")

	return cfg.WithDefaults()
}

// providerConfig reads one provider's settings. A provider is enabled
// when it has a key and is not explicitly disabled.
func providerConfig(name string) types.ProviderConfig {
	key := secretDefault(name+"-api-key", viper.GetString(name+".api_key"))
	return types.ProviderConfig{
		Enabled:           key != "" && !viper.GetBool(name+".disabled"),
		APIKey:            key,
		RequestsPerSecond: viper.GetFloat64(name + ".requests_per_second"),
	}
}
