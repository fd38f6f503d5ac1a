package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/persona-cli/internal/model"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Fusion     FusionConfig     `yaml:"fusion" mapstructure:"fusion"`
	Sources    SourcesConfig    `yaml:"sources" mapstructure:"sources"`
	Compliance ComplianceConfig `yaml:"compliance" mapstructure:"compliance"`
	Jina       JinaConfig       `yaml:"jina" mapstructure:"jina"`
	Firecrawl  FirecrawlConfig  `yaml:"firecrawl" mapstructure:"firecrawl"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Retry      RetryConfig      `yaml:"retry" mapstructure:"retry"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Telemetry  TelemetryConfig  `yaml:"telemetry" mapstructure:"telemetry"`
	Export     ExportConfig     `yaml:"export" mapstructure:"export"`
}

// StoreConfig configures the run repository backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// PipelineConfig configures orchestration.
type PipelineConfig struct {
	LiveMode                bool    `yaml:"live_mode" mapstructure:"live_mode"`
	CollaboratorTimeoutSecs int     `yaml:"collaborator_timeout_secs" mapstructure:"collaborator_timeout_secs"`
	StageDelayMs            int     `yaml:"stage_delay_ms" mapstructure:"stage_delay_ms"`
	MaxCandidates           int     `yaml:"max_candidates" mapstructure:"max_candidates"`
	QualityThreshold        float64 `yaml:"quality_threshold" mapstructure:"quality_threshold"`
	QuotesPerAttribute      int     `yaml:"quotes_per_attribute" mapstructure:"quotes_per_attribute"`
}

// FusionConfig holds default fusion weights applied when a request omits them.
type FusionConfig struct {
	Global        float64            `yaml:"global" mapstructure:"global"`
	StrictMode    bool               `yaml:"strict_mode" mapstructure:"strict_mode"`
	PerAttribute  map[string]float64 `yaml:"per_attribute" mapstructure:"per_attribute"`
	Policy        string             `yaml:"policy" mapstructure:"policy"`
	EvidenceBlend float64            `yaml:"evidence_blend" mapstructure:"evidence_blend"`
}

// SourcesConfig holds the default allocation percentages.
type SourcesConfig struct {
	AIGeneration  int `yaml:"ai_generation" mapstructure:"ai_generation"`
	WebExtraction int `yaml:"web_extraction" mapstructure:"web_extraction"`
	FileUpload    int `yaml:"file_upload" mapstructure:"file_upload"`
	Questionnaire int `yaml:"questionnaire" mapstructure:"questionnaire"`
}

// ComplianceConfig configures fetch scheduling.
type ComplianceConfig struct {
	RequestsPerSecond float64  `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int      `yaml:"burst" mapstructure:"burst"`
	BlockedDomains    []string `yaml:"blocked_domains" mapstructure:"blocked_domains"`
}

// JinaConfig holds Jina search settings used for live discovery.
type JinaConfig struct {
	Key           string `yaml:"key" mapstructure:"key"`
	SearchBaseURL string `yaml:"search_base_url" mapstructure:"search_base_url"`
	MaxQueries    int    `yaml:"max_queries" mapstructure:"max_queries"`
}

// FirecrawlConfig holds Firecrawl settings used for live fetching.
type FirecrawlConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	BaseURL   string `yaml:"base_url" mapstructure:"base_url"`
	BatchSize int    `yaml:"batch_size" mapstructure:"batch_size"`
}

// AnthropicConfig holds Anthropic settings used for alias expansion.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// RetryConfig configures collaborator retries.
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	MaxConcurrentRuns int `yaml:"max_concurrent_runs" mapstructure:"max_concurrent_runs"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// TelemetryConfig configures OpenTelemetry export. An empty endpoint disables it.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint" mapstructure:"otlp_endpoint"`
	Insecure     bool   `yaml:"insecure" mapstructure:"insecure"`
	ServiceName  string `yaml:"service_name" mapstructure:"service_name"`
}

// ExportConfig configures verification pack output.
type ExportConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PERSONA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "persona.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("pipeline.live_mode", false)
	v.SetDefault("pipeline.collaborator_timeout_secs", 30)
	v.SetDefault("pipeline.stage_delay_ms", 0)
	v.SetDefault("pipeline.max_candidates", 120)
	v.SetDefault("pipeline.quality_threshold", 0.5)
	v.SetDefault("pipeline.quotes_per_attribute", 3)
	v.SetDefault("fusion.global", 0.7)
	v.SetDefault("fusion.strict_mode", false)
	v.SetDefault("fusion.policy", "placeholder")
	v.SetDefault("fusion.evidence_blend", 0.3)
	v.SetDefault("sources.ai_generation", 40)
	v.SetDefault("sources.web_extraction", 15)
	v.SetDefault("sources.file_upload", 15)
	v.SetDefault("sources.questionnaire", 30)
	v.SetDefault("compliance.requests_per_second", 2.0)
	v.SetDefault("compliance.burst", 4)
	v.SetDefault("jina.search_base_url", "https://s.jina.ai")
	v.SetDefault("jina.max_queries", 6)
	v.SetDefault("firecrawl.base_url", "https://api.firecrawl.dev/v2")
	v.SetDefault("firecrawl.batch_size", 10)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 500)
	v.SetDefault("retry.max_backoff_ms", 10000)
	v.SetDefault("batch.max_concurrent_runs", 3)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("telemetry.service_name", "persona-cli")
	v.SetDefault("export.dir", "exports")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command mode depends on. Modes are run,
// batch, serve and inspect (read-only commands).
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Store.Driver {
	case "sqlite", "memory":
	case "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required for postgres")
		}
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q is not one of sqlite, postgres, memory", c.Store.Driver))
	}

	switch mode {
	case "inspect":
	case "run", "batch", "serve":
		errs = append(errs, c.validatePipeline()...)
		if c.Pipeline.LiveMode {
			errs = append(errs, c.validateLive()...)
		}
		if mode == "batch" && (c.Batch.MaxConcurrentRuns < 1 || c.Batch.MaxConcurrentRuns > 20) {
			errs = append(errs, "batch.max_concurrent_runs must be between 1 and 20")
		}
		if mode == "serve" && (c.Server.Port <= 0 || c.Server.Port > 65535) {
			errs = append(errs, "server.port must be > 0 and <= 65535")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validatePipeline() []string {
	var errs []string
	if c.Pipeline.CollaboratorTimeoutSecs <= 0 {
		errs = append(errs, "pipeline.collaborator_timeout_secs must be > 0")
	}
	if c.Pipeline.MaxCandidates <= 0 {
		errs = append(errs, "pipeline.max_candidates must be > 0")
	}
	if c.Pipeline.QualityThreshold < 0 || c.Pipeline.QualityThreshold > 1 {
		errs = append(errs, "pipeline.quality_threshold must be between 0 and 1")
	}
	if c.Fusion.Global < 0 || c.Fusion.Global > 1 {
		errs = append(errs, "fusion.global must be between 0 and 1")
	}
	if c.Compliance.RequestsPerSecond <= 0 {
		errs = append(errs, "compliance.requests_per_second must be > 0")
	}
	s := c.Sources
	for _, w := range []int{s.AIGeneration, s.WebExtraction, s.FileUpload, s.Questionnaire} {
		if w < 0 || w > 100 {
			errs = append(errs, "sources weights must be between 0 and 100")
			break
		}
	}
	return errs
}

func (c *Config) validateLive() []string {
	var errs []string
	if c.Jina.Key == "" {
		errs = append(errs, "jina.key is required in live mode")
	}
	if c.Firecrawl.Key == "" {
		errs = append(errs, "firecrawl.key is required in live mode")
	}
	return errs
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}

// FusionDefaults converts the fusion section into model weights.
func (c *Config) FusionDefaults() model.FusionWeights {
	w := model.FusionWeights{
		Global:       c.Fusion.Global,
		StrictMode:   c.Fusion.StrictMode,
		PerAttribute: make(map[model.AttributeKey]float64, len(c.Fusion.PerAttribute)),
	}
	for k, v := range c.Fusion.PerAttribute {
		w.PerAttribute[model.AttributeKey(k)] = v
	}
	return w
}

// SourceDefaults converts the sources section into an allocation list.
// A source configured at zero starts disabled.
func (c *Config) SourceDefaults() []model.Source {
	weights := map[model.SourceKey]int{
		model.SourceAIGeneration:  c.Sources.AIGeneration,
		model.SourceWebExtraction: c.Sources.WebExtraction,
		model.SourceFileUpload:    c.Sources.FileUpload,
		model.SourceQuestionnaire: c.Sources.Questionnaire,
	}
	out := make([]model.Source, 0, len(weights))
	for _, k := range model.SourceKeys() {
		out = append(out, model.Source{Key: k, Label: k.Label(), Weight: weights[k], Enabled: weights[k] > 0})
	}
	return out
}
