package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store       StoreConfig       `yaml:"store" mapstructure:"store"`
	Registry    RegistryConfig    `yaml:"registry" mapstructure:"registry"`
	Normalize   NormalizeConfig   `yaml:"normalize" mapstructure:"normalize"`
	Dedupe      DedupeConfig      `yaml:"dedupe" mapstructure:"dedupe"`
	Analyze     AnalyzeConfig     `yaml:"analyze" mapstructure:"analyze"`
	Propagate   PropagateConfig   `yaml:"propagate" mapstructure:"propagate"`
	Recommend   RecommendConfig   `yaml:"recommend" mapstructure:"recommend"`
	Orchestrate OrchestrateConfig `yaml:"orchestrate" mapstructure:"orchestrate"`
	Anthropic   AnthropicConfig   `yaml:"anthropic" mapstructure:"anthropic"`
	Server      ServerConfig      `yaml:"server" mapstructure:"server"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// RegistryConfig points at optional fixture overrides for the static
// reference data. Empty paths fall back to the embedded defaults.
type RegistryConfig struct {
	TaxonomyPath   string `yaml:"taxonomy_path" mapstructure:"taxonomy_path"`
	FrameworksPath string `yaml:"frameworks_path" mapstructure:"frameworks_path"`
}

// NormalizeConfig configures the risk normalizer.
type NormalizeConfig struct {
	MinLength           int     `yaml:"min_length" mapstructure:"min_length"`
	ConfidenceThreshold float64 `yaml:"confidence_threshold" mapstructure:"confidence_threshold"`
	StrategyTimeoutSecs int     `yaml:"strategy_timeout_secs" mapstructure:"strategy_timeout_secs"`
	MaxConcurrency      int     `yaml:"max_concurrency" mapstructure:"max_concurrency"`
	Strategy            string  `yaml:"strategy" mapstructure:"strategy"`
}

// StrategyTimeout returns the configured per-statement classification
// timeout.
func (c NormalizeConfig) StrategyTimeout() time.Duration {
	return time.Duration(c.StrategyTimeoutSecs) * time.Second
}

// DedupeConfig configures the deduplicator.
type DedupeConfig struct {
	SimilarityThreshold float64 `yaml:"similarity_threshold" mapstructure:"similarity_threshold"`
}

// AnalyzeConfig configures the BSI engine.
type AnalyzeConfig struct {
	Epsilon           float64 `yaml:"epsilon" mapstructure:"epsilon"`
	HighRiskThreshold float64 `yaml:"high_risk_threshold" mapstructure:"high_risk_threshold"`
}

// PropagateConfig configures the risk propagation model.
type PropagateConfig struct {
	Weight float64 `yaml:"weight" mapstructure:"weight"`
	Cap    float64 `yaml:"cap" mapstructure:"cap"`
}

// RecommendConfig configures the recommendation engine.
type RecommendConfig struct {
	// NearZeroDocPct is the documented percentage at or below which a
	// recommendation requires supporting evidence.
	NearZeroDocPct float64 `yaml:"near_zero_doc_pct" mapstructure:"near_zero_doc_pct"`
}

// OrchestrateConfig configures the action orchestrator.
type OrchestrateConfig struct {
	EscalationAgeHours int `yaml:"escalation_age_hours" mapstructure:"escalation_age_hours"`
}

// EscalationAge returns the age after which a pending review item is
// re-notified.
func (c OrchestrateConfig) EscalationAge() time.Duration {
	return time.Duration(c.EscalationAgeHours) * time.Hour
}

// AnthropicConfig holds settings for the learned classification strategy.
type AnthropicConfig struct {
	Key            string  `yaml:"key" mapstructure:"key"`
	Model          string  `yaml:"model" mapstructure:"model"`
	MaxTokens      int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	RequestsPerSec float64 `yaml:"requests_per_sec" mapstructure:"requests_per_sec"`
}

// ServerConfig configures the reporting server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SENTINEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "sentinel.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("normalize.min_length", 20)
	v.SetDefault("normalize.confidence_threshold", 0.35)
	v.SetDefault("normalize.strategy_timeout_secs", 30)
	v.SetDefault("normalize.max_concurrency", 8)
	v.SetDefault("normalize.strategy", "rule")
	v.SetDefault("dedupe.similarity_threshold", 0.6)
	v.SetDefault("analyze.epsilon", 1e-9)
	v.SetDefault("analyze.high_risk_threshold", 0.5)
	v.SetDefault("propagate.weight", 0.25)
	v.SetDefault("propagate.cap", 1.0)
	v.SetDefault("recommend.near_zero_doc_pct", 1.0)
	v.SetDefault("orchestrate.escalation_age_hours", 72)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 256)
	v.SetDefault("anthropic.requests_per_sec", 2.0)

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
