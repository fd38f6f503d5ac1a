package main

import (
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/persona-cli/internal/cost"
	"github.com/sells-group/persona-cli/internal/fusion"
	"github.com/sells-group/persona-cli/internal/pipeline"
	"github.com/sells-group/persona-cli/internal/resilience"
	"github.com/sells-group/persona-cli/internal/store"
	"github.com/sells-group/persona-cli/internal/telemetry"
	anthropicpkg "github.com/sells-group/persona-cli/pkg/anthropic"
	"github.com/sells-group/persona-cli/pkg/firecrawl"
	"github.com/sells-group/persona-cli/pkg/jina"
)

// newOrchestrator builds an Orchestrator from cfg. Live mode swaps the
// simulated collaborators for Jina, Firecrawl and Anthropic.
func newOrchestrator(repo store.Repository, observers ...pipeline.Observer) *pipeline.Orchestrator {
	opts := []pipeline.Option{
		pipeline.WithPipelineConfig(cfg.Pipeline),
		pipeline.WithCompliance(cfg.Compliance),
		pipeline.WithFusionDefaults(cfg.FusionDefaults()),
		pipeline.WithPolicy(fusion.PolicyByName(cfg.Fusion.Policy, cfg.Fusion.EvidenceBlend)),
		pipeline.WithLiveMode(cfg.Pipeline.LiveMode),
	}
	for _, obs := range observers {
		opts = append(opts, pipeline.WithObserver(obs))
	}

	if inst, err := telemetry.NewInstruments(telemetry.Meter()); err != nil {
		zap.L().Warn("metrics unavailable", zap.Error(err))
	} else {
		opts = append(opts, pipeline.WithInstruments(inst))
	}

	if cfg.Pipeline.LiveMode {
		opts = append(opts, liveCollaborators()...)
	}
	return pipeline.New(repo, opts...)
}

// liveCosts accumulates estimated spend of live collaborators for the
// lifetime of the command. Nil outside live mode.
var liveCosts *cost.Tracker

func liveCollaborators() []pipeline.Option {
	retry := resilience.FromConfig(cfg.Retry)
	if liveCosts == nil {
		liveCosts = cost.NewTracker(cost.NewCalculator(cost.DefaultRates()))
	}

	jinaOpts := []jina.Option{}
	if cfg.Jina.SearchBaseURL != "" {
		jinaOpts = append(jinaOpts, jina.WithSearchBaseURL(cfg.Jina.SearchBaseURL))
	}
	firecrawlClient := firecrawl.NewClient(cfg.Firecrawl.Key, firecrawl.WithBaseURL(cfg.Firecrawl.BaseURL))

	opts := []pipeline.Option{
		pipeline.WithDiscoverer(&pipeline.JinaDiscoverer{
			Client:     jina.NewClient(cfg.Jina.Key, jinaOpts...),
			MaxQueries: cfg.Jina.MaxQueries,
			Retry:      retry,
			Breaker:    resilience.NewBreaker("jina", 5, 30*time.Second),
			Costs:      liveCosts,
		}),
		pipeline.WithFetcher(&pipeline.FirecrawlFetcher{
			Client:    firecrawlClient,
			BatchSize: cfg.Firecrawl.BatchSize,
			Retry:     retry,
			Breaker:   resilience.NewBreaker("firecrawl", 5, 30*time.Second),
			Costs:     liveCosts,
		}),
	}

	if cfg.Anthropic.Key == "" {
		zap.L().Info("anthropic key not set, alias expansion disabled")
		opts = append(opts, pipeline.WithAliasExpander(nil))
	} else {
		opts = append(opts, pipeline.WithAliasExpander(&pipeline.AnthropicAliasExpander{
			Client: anthropicpkg.NewClient(cfg.Anthropic.Key),
			Model:  cfg.Anthropic.Model,
			Retry:  retry,
			Costs:  liveCosts,
		}))
	}
	return opts
}

// withDefaults fills request fields the config provides defaults for.
func withDefaults(req pipeline.Request) pipeline.Request {
	if req.Sources == nil {
		req.Sources = cfg.SourceDefaults()
	}
	return req
}
