package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Apify    ApifyConfig    `yaml:"apify" mapstructure:"apify"`
	OpenAI   OpenAIConfig   `yaml:"openai" mapstructure:"openai"`
	Verifier VerifierConfig `yaml:"verifier" mapstructure:"verifier"`
	Research ResearchConfig `yaml:"research" mapstructure:"research"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ApifyConfig holds content-source (Apify actor) API settings.
type ApifyConfig struct {
	Key            string `yaml:"key" mapstructure:"key"`
	BaseURL        string `yaml:"base_url" mapstructure:"base_url"`
	ContentActor   string `yaml:"content_actor" mapstructure:"content_actor"`
	ListingActor   string `yaml:"listing_actor" mapstructure:"listing_actor"`
	RunTimeoutSecs int    `yaml:"run_timeout_secs" mapstructure:"run_timeout_secs"`
}

// OpenAIConfig holds embedding API settings.
type OpenAIConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// VerifierConfig holds email verification API settings.
type VerifierConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// ResearchConfig configures the orchestrator, reveal scheduler and scorer.
type ResearchConfig struct {
	Platform            string `yaml:"platform" mapstructure:"platform"`
	MaxKeywords         int    `yaml:"max_keywords" mapstructure:"max_keywords"`
	RevealWindowHours   int    `yaml:"reveal_window_hours" mapstructure:"reveal_window_hours"`
	WeeklyWindowHours   int    `yaml:"weekly_window_hours" mapstructure:"weekly_window_hours"`
	RevealIntervalMins  int    `yaml:"reveal_interval_mins" mapstructure:"reveal_interval_mins"`
	CacheTTLHours       int    `yaml:"cache_ttl_hours" mapstructure:"cache_ttl_hours"`
	ScoreBatchSize      int    `yaml:"score_batch_size" mapstructure:"score_batch_size"`
	ScoreBatchDelayMs   int    `yaml:"score_batch_delay_ms" mapstructure:"score_batch_delay_ms"`
	ScoreMaxChars       int    `yaml:"score_max_chars" mapstructure:"score_max_chars"`
	DefaultLeadIndustry string `yaml:"default_lead_industry" mapstructure:"default_lead_industry"`
}

// ServerConfig configures the dashboard-facing HTTP API.
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
	v.SetEnvPrefix("REACHLOOP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("apify.base_url", "https://api.apify.com/v2")
	v.SetDefault("apify.run_timeout_secs", 300)
	v.SetDefault("openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("openai.model", "text-embedding-3-small")
	v.SetDefault("verifier.base_url", "https://api.millionverifier.com")
	v.SetDefault("research.platform", "reddit")
	v.SetDefault("research.max_keywords", 5)
	v.SetDefault("research.reveal_window_hours", 168)
	v.SetDefault("research.weekly_window_hours", 24)
	v.SetDefault("research.reveal_interval_mins", 15)
	v.SetDefault("research.cache_ttl_hours", 4380)
	v.SetDefault("research.score_batch_size", 20)
	v.SetDefault("research.score_batch_delay_ms", 1000)
	v.SetDefault("research.score_max_chars", 2000)
	v.SetDefault("research.default_lead_industry", "general")

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
