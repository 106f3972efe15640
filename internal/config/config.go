package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Providers ProvidersConfig `yaml:"providers" mapstructure:"providers"`
	Gateway   GatewayConfig   `yaml:"gateway" mapstructure:"gateway"`
	Batch     BatchConfig     `yaml:"batch" mapstructure:"batch"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Output    OutputConfig    `yaml:"output" mapstructure:"output"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// ProvidersConfig holds credentials for every supported vision provider.
type ProvidersConfig struct {
	Gemini    ProviderConfig `yaml:"gemini" mapstructure:"gemini"`
	OpenAI    ProviderConfig `yaml:"openai" mapstructure:"openai"`
	Anthropic ProviderConfig `yaml:"anthropic" mapstructure:"anthropic"`
}

// ProviderConfig holds one provider's primary key plus ordered fallbacks.
type ProviderConfig struct {
	Key          string   `yaml:"key" mapstructure:"key"`
	FallbackKeys []string `yaml:"fallback_keys" mapstructure:"fallback_keys"`
}

// GatewayConfig configures provider calls and the retry shell around them.
type GatewayConfig struct {
	GeminiModel    string `yaml:"gemini_model" mapstructure:"gemini_model"`
	GeminiBaseURL  string `yaml:"gemini_base_url" mapstructure:"gemini_base_url"`
	OpenAIModel    string `yaml:"openai_model" mapstructure:"openai_model"`
	OpenAIBaseURL  string `yaml:"openai_base_url" mapstructure:"openai_base_url"`
	AnthropicModel string `yaml:"anthropic_model" mapstructure:"anthropic_model"`
	MaxTokens      int64  `yaml:"max_tokens" mapstructure:"max_tokens"`

	MaxAttempts          int `yaml:"max_attempts" mapstructure:"max_attempts"`
	RateLimitBackoffSecs int `yaml:"rate_limit_backoff_secs" mapstructure:"rate_limit_backoff_secs"`
	TransportBackoffSecs int `yaml:"transport_backoff_secs" mapstructure:"transport_backoff_secs"`
	CallTimeoutSecs      int `yaml:"call_timeout_secs" mapstructure:"call_timeout_secs"`
}

// BatchConfig configures batch pacing and the server-side worker bound.
type BatchConfig struct {
	InterJobDelaySecs int `yaml:"inter_job_delay_secs" mapstructure:"inter_job_delay_secs"`
	RetryCooldownSecs int `yaml:"retry_cooldown_secs" mapstructure:"retry_cooldown_secs"`
	RetryDelaySecs    int `yaml:"retry_delay_secs" mapstructure:"retry_delay_secs"`
	MaxConcurrentJobs int `yaml:"max_concurrent_jobs" mapstructure:"max_concurrent_jobs"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// StoreConfig configures the optional results database. An empty driver
// disables persistence.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// OutputConfig configures where the CLI path writes result files.
type OutputConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// maxFallbackKeySlots is how many numbered env key slots are scanned per
// provider (PREFIX_API_KEY_1 .. PREFIX_API_KEY_10).
const maxFallbackKeySlots = 10

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("BILLSCAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// The classic key names work alongside the BILLSCAN_ prefix so a .env
	// written for the provider SDKs keeps working.
	v.BindEnv("providers.gemini.key", "BILLSCAN_PROVIDERS_GEMINI_KEY", "GEMINI_API_KEY")
	v.BindEnv("providers.openai.key", "BILLSCAN_PROVIDERS_OPENAI_KEY", "OPENAI_API_KEY")
	v.BindEnv("providers.anthropic.key", "BILLSCAN_PROVIDERS_ANTHROPIC_KEY", "ANTHROPIC_API_KEY")

	// Defaults
	v.SetDefault("gateway.gemini_model", "gemini-2.5-flash")
	v.SetDefault("gateway.gemini_base_url", "https://generativelanguage.googleapis.com")
	v.SetDefault("gateway.openai_model", "gpt-4o")
	v.SetDefault("gateway.openai_base_url", "https://api.openai.com/v1")
	v.SetDefault("gateway.anthropic_model", "claude-3-5-sonnet-20240620")
	v.SetDefault("gateway.max_tokens", 4000)
	v.SetDefault("gateway.max_attempts", 3)
	v.SetDefault("gateway.rate_limit_backoff_secs", 5)
	v.SetDefault("gateway.transport_backoff_secs", 2)
	v.SetDefault("gateway.call_timeout_secs", 120)
	v.SetDefault("batch.inter_job_delay_secs", 2)
	v.SetDefault("batch.retry_cooldown_secs", 5)
	v.SetDefault("batch.retry_delay_secs", 3)
	v.SetDefault("batch.max_concurrent_jobs", 10)
	v.SetDefault("server.port", 8000)
	v.SetDefault("store.driver", "")
	v.SetDefault("output.dir", ".")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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

	// Numbered fallback slots come straight from the environment; they are
	// appended after any fallbacks listed in the config file.
	cfg.Providers.Gemini.FallbackKeys = append(cfg.Providers.Gemini.FallbackKeys, numberedKeys("GEMINI")...)
	cfg.Providers.OpenAI.FallbackKeys = append(cfg.Providers.OpenAI.FallbackKeys, numberedKeys("OPENAI")...)
	cfg.Providers.Anthropic.FallbackKeys = append(cfg.Providers.Anthropic.FallbackKeys, numberedKeys("ANTHROPIC")...)

	return &cfg, nil
}

// numberedKeys scans PREFIX_API_KEY_1 through PREFIX_API_KEY_10 in order.
func numberedKeys(prefix string) []string {
	var keys []string
	for i := 1; i <= maxFallbackKeySlots; i++ {
		if key := os.Getenv(fmt.Sprintf("%s_API_KEY_%d", prefix, i)); key != "" {
			keys = append(keys, key)
		}
	}
	return keys
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
