package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/tanshuai2008/HouSmart-test/internal/store"
)

// Model providers.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

// Config holds the full application configuration.
type Config struct {
	Model     ModelConfig     `yaml:"model" mapstructure:"model"`
	RateLimit RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`
	Cache     CacheConfig     `yaml:"cache" mapstructure:"cache"`
	Features  FeaturesConfig  `yaml:"features" mapstructure:"features"`
	Geocode   GeocodeConfig   `yaml:"geocode" mapstructure:"geocode"`
	Census    CensusConfig    `yaml:"census" mapstructure:"census"`
	Market    MarketConfig    `yaml:"market" mapstructure:"market"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	// ReloadIntervalSecs enables periodic re-reading in long-running
	// commands. 0 disables it.
	ReloadIntervalSecs int `yaml:"reload_interval_secs" mapstructure:"reload_interval_secs"`
}

// ModelConfig configures the generative model and its credentials.
type ModelConfig struct {
	Provider        string   `yaml:"provider" mapstructure:"provider"`
	Name            string   `yaml:"name" mapstructure:"name"`
	Temperature     float64  `yaml:"temperature" mapstructure:"temperature"`
	MaxTokens       int      `yaml:"max_tokens" mapstructure:"max_tokens"`
	APIKeys         []string `yaml:"api_keys" mapstructure:"api_keys"`
	BaseURL         string   `yaml:"base_url" mapstructure:"base_url"`
	AttemptsPerKey  int      `yaml:"attempts_per_key" mapstructure:"attempts_per_key"`
	CallTimeoutSecs int      `yaml:"call_timeout_secs" mapstructure:"call_timeout_secs"`
	TotalBudgetSecs int      `yaml:"total_budget_secs" mapstructure:"total_budget_secs"`
}

// CallTimeout bounds one model call.
func (m ModelConfig) CallTimeout() time.Duration {
	return time.Duration(m.CallTimeoutSecs) * time.Second
}

// TotalBudget bounds one analysis including retries and rotation.
func (m ModelConfig) TotalBudget() time.Duration {
	return time.Duration(m.TotalBudgetSecs) * time.Second
}

// Keys returns the configured API keys. A single comma-separated entry,
// as set through the environment, is split.
func (m ModelConfig) Keys() []string {
	var out []string
	for _, k := range m.APIKeys {
		for _, part := range strings.Split(k, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// RateLimitConfig configures the model call limiter.
type RateLimitConfig struct {
	WindowSecs      int `yaml:"window_secs" mapstructure:"window_secs"`
	MaxCalls        int `yaml:"max_calls" mapstructure:"max_calls"`
	MinGapMillis    int `yaml:"min_gap_millis" mapstructure:"min_gap_millis"`
	MaxJitterMillis int `yaml:"max_jitter_millis" mapstructure:"max_jitter_millis"`
	FullWaitSecs    int `yaml:"full_wait_secs" mapstructure:"full_wait_secs"`
}

// Window is the sliding window length.
func (r RateLimitConfig) Window() time.Duration { return time.Duration(r.WindowSecs) * time.Second }

// MinGap is the minimum spacing between calls.
func (r RateLimitConfig) MinGap() time.Duration {
	return time.Duration(r.MinGapMillis) * time.Millisecond
}

// MaxJitter is the upper bound of the random spacing added to MinGap.
func (r RateLimitConfig) MaxJitter() time.Duration {
	return time.Duration(r.MaxJitterMillis) * time.Millisecond
}

// FullWait is the pause before re-checking a full window.
func (r RateLimitConfig) FullWait() time.Duration {
	return time.Duration(r.FullWaitSecs) * time.Second
}

// CacheConfig configures the result cache and its backend.
type CacheConfig struct {
	store.Options `yaml:",inline" mapstructure:",squash"`
	TTLHours      int  `yaml:"ttl_hours" mapstructure:"ttl_hours"`
	Coalesce      bool `yaml:"coalesce" mapstructure:"coalesce"`
}

// TTL is the entry lifetime.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLHours) * time.Hour
}

// FeaturesConfig switches pipeline stages.
type FeaturesConfig struct {
	EnableGeocoding  bool `yaml:"enable_geocoding" mapstructure:"enable_geocoding"`
	EnableStatistics bool `yaml:"enable_statistics" mapstructure:"enable_statistics"`
	EnableMarketData bool `yaml:"enable_market_data" mapstructure:"enable_market_data"`
	EnableModel      bool `yaml:"enable_model" mapstructure:"enable_model"`
}

// GeocodeConfig configures address resolution.
type GeocodeConfig struct {
	GeoapifyKey string  `yaml:"geoapify_key" mapstructure:"geoapify_key"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RateLimit   float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// CensusConfig configures the ACS statistics API.
type CensusConfig struct {
	APIKey      string  `yaml:"api_key" mapstructure:"api_key"`
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RateLimit   float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	KeepRaw     bool    `yaml:"keep_raw" mapstructure:"keep_raw"`
}

// MarketConfig configures POI and rent lookups. Places reuse the geocode
// Geoapify key.
type MarketConfig struct {
	RentcastKey string `yaml:"rentcast_key" mapstructure:"rentcast_key"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	ShutdownSecs   int      `yaml:"shutdown_secs" mapstructure:"shutdown_secs"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from ./config.yaml and the environment.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile reads configuration from path, or from ./config.yaml when path
// is empty. A missing default file is not an error.
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	// Config file
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	// Environment
	v.SetEnvPrefix("HOUSMART")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("model.provider", ProviderAnthropic)
	v.SetDefault("model.name", "claude-haiku-4-5-20251001")
	v.SetDefault("model.temperature", 0.7)
	v.SetDefault("model.max_tokens", 2048)
	v.SetDefault("model.api_keys", []string{})
	v.SetDefault("model.base_url", "")
	v.SetDefault("model.attempts_per_key", 6)
	v.SetDefault("model.call_timeout_secs", 60)
	v.SetDefault("model.total_budget_secs", 180)
	v.SetDefault("rate_limit.window_secs", 60)
	v.SetDefault("rate_limit.max_calls", 15)
	v.SetDefault("rate_limit.min_gap_millis", 2500)
	v.SetDefault("rate_limit.max_jitter_millis", 500)
	v.SetDefault("rate_limit.full_wait_secs", 5)
	v.SetDefault("cache.driver", store.DriverSQLite)
	v.SetDefault("cache.dir", ".")
	v.SetDefault("cache.dsn", "")
	v.SetDefault("cache.redis.addr", "")
	v.SetDefault("cache.redis.prefix", "housmart:")
	v.SetDefault("cache.s3.endpoint", "")
	v.SetDefault("cache.s3.bucket", "")
	v.SetDefault("cache.s3.access_key", "")
	v.SetDefault("cache.s3.secret_key", "")
	v.SetDefault("cache.ttl_hours", 240)
	v.SetDefault("cache.coalesce", false)
	v.SetDefault("features.enable_geocoding", true)
	v.SetDefault("features.enable_statistics", true)
	v.SetDefault("features.enable_market_data", true)
	v.SetDefault("features.enable_model", true)
	v.SetDefault("geocode.geoapify_key", "")
	v.SetDefault("geocode.timeout_secs", 5)
	v.SetDefault("geocode.rate_limit", 10.0)
	v.SetDefault("census.api_key", "")
	v.SetDefault("census.base_url", "https://api.census.gov/data/2022/acs/acs5")
	v.SetDefault("census.timeout_secs", 5)
	v.SetDefault("census.rate_limit", 10.0)
	v.SetDefault("census.keep_raw", false)
	v.SetDefault("market.rentcast_key", "")
	v.SetDefault("market.timeout_secs", 10)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_secs", 15)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("reload_interval_secs", 0)
}

// Validate checks ranges and the settings the given mode needs. Modes are
// "analyze" and "serve".
func (c *Config) Validate(mode string) error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	switch c.Model.Provider {
	case ProviderAnthropic, ProviderOpenAI:
	default:
		add("model.provider must be %q or %q", ProviderAnthropic, ProviderOpenAI)
	}
	if c.Features.EnableModel && strings.TrimSpace(c.Model.Name) == "" {
		add("model.name is required")
	}
	if c.Model.Temperature < 0 || c.Model.Temperature > 2 {
		add("model.temperature must be between 0 and 2")
	}
	if c.Model.MaxTokens <= 0 {
		add("model.max_tokens must be > 0")
	}
	if c.Model.AttemptsPerKey < 1 || c.Model.AttemptsPerKey > 20 {
		add("model.attempts_per_key must be between 1 and 20")
	}
	if c.Model.CallTimeoutSecs <= 0 || c.Model.TotalBudgetSecs <= 0 {
		add("model timeouts must be > 0")
	}
	if c.RateLimit.WindowSecs <= 0 || c.RateLimit.MaxCalls <= 0 {
		add("rate_limit.window_secs and rate_limit.max_calls must be > 0")
	}
	if c.RateLimit.MinGapMillis < 0 || c.RateLimit.MaxJitterMillis < 0 || c.RateLimit.FullWaitSecs <= 0 {
		add("rate_limit spacing must be >= 0 and full_wait_secs > 0")
	}
	if c.Cache.TTLHours <= 0 {
		add("cache.ttl_hours must be > 0")
	}
	if c.ReloadIntervalSecs < 0 {
		add("reload_interval_secs must be >= 0")
	}

	switch mode {
	case "analyze":
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			add("server.port must be > 0 and <= 65535")
		}
	default:
		add("unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: invalid: %s", strings.Join(problems, "; "))
	}
	return nil
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
