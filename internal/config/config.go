package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config contains all runtime settings for the chat relay service.
type Config struct {
	BindAddr         string        `mapstructure:"bind_addr"`
	ShutdownTimeout  time.Duration `mapstructure:"shutdown_timeout"`
	LogLevel         string        `mapstructure:"log_level"`
	MetricsNamespace string        `mapstructure:"metrics_namespace"`
	AllowAnyOrigin   bool          `mapstructure:"allow_any_origin"`

	DatabaseURL string `mapstructure:"database_url"`

	LLMAPIKey      string        `mapstructure:"llm_api_key"`
	LLMBaseURL     string        `mapstructure:"llm_base_url"`
	LLMModel       string        `mapstructure:"llm_model"`
	LLMTemperature float64       `mapstructure:"llm_temperature"`
	LLMMaxTokens   int           `mapstructure:"llm_max_tokens"`
	SummaryTokens  int           `mapstructure:"summary_tokens"`
	SystemPrompt   string        `mapstructure:"system_prompt"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`

	EmbeddingModel string  `mapstructure:"embedding_model"`
	EmbeddingDim   int     `mapstructure:"embedding_dim"`
	MatchThreshold float64 `mapstructure:"match_threshold"`
	MatchCount     int     `mapstructure:"match_count"`
}

// Load reads settings from environment variables (and an optional config.yaml
// in the working directory) and applies safe defaults.
func Load() (Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("bind_addr", ":8080")
	v.SetDefault("shutdown_timeout", 15*time.Second)
	v.SetDefault("log_level", "info")
	v.SetDefault("metrics_namespace", "echosession")
	v.SetDefault("allow_any_origin", false)
	v.SetDefault("database_url", "")
	v.SetDefault("llm_api_key", "")
	v.SetDefault("llm_base_url", "")
	v.SetDefault("llm_model", "llama-3.3-70b-versatile")
	v.SetDefault("llm_temperature", 0.7)
	v.SetDefault("llm_max_tokens", 1024)
	v.SetDefault("summary_tokens", 512)
	v.SetDefault("system_prompt", "")
	v.SetDefault("read_timeout", 120*time.Second)
	v.SetDefault("embedding_model", "text-embedding-3-small")
	v.SetDefault("embedding_dim", 1536)
	v.SetDefault("match_threshold", 0.1)
	v.SetDefault("match_count", 3)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if strings.TrimSpace(cfg.LLMModel) == "" {
		return Config{}, fmt.Errorf("llm_model must not be empty")
	}
	if cfg.LLMMaxTokens <= 0 {
		return Config{}, fmt.Errorf("llm_max_tokens must be positive")
	}
	if cfg.SummaryTokens <= 0 {
		return Config{}, fmt.Errorf("summary_tokens must be positive")
	}
	if cfg.EmbeddingDim <= 0 {
		return Config{}, fmt.Errorf("embedding_dim must be positive")
	}
	if cfg.MatchCount <= 0 {
		return Config{}, fmt.Errorf("match_count must be positive")
	}
	if cfg.ReadTimeout < 5*time.Second {
		return Config{}, fmt.Errorf("read_timeout must be at least 5s")
	}

	return cfg, nil
}
