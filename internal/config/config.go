// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration. It is built once per
// process (or per test) and passed explicitly to every component that needs it.
type Config struct {
	Logger   LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	LLM      LLMRouterConfig `mapstructure:"llm" yaml:"llm"`
	Humanoid HumanoidConfig  `mapstructure:"humanoid" yaml:"humanoid"`
	Session  SessionConfig   `mapstructure:"session" yaml:"session"`
	Database DatabaseConfig  `mapstructure:"database" yaml:"database"`
	Server   ServerConfig    `mapstructure:"server" yaml:"server"`
}

// LoggerConfig defines all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color names for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// DatabaseConfig holds the journal connection details. An empty URL disables
// persistence.
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// ServerConfig configures the launcher HTTP endpoint.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr" yaml:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// LLMProvider defines the supported model providers.
type LLMProvider string

const (
	ProviderGemini LLMProvider = "gemini"
)

// LLMRouterConfig configures the model routing logic.
type LLMRouterConfig struct {
	DefaultFastModel     string                    `mapstructure:"default_fast_model" yaml:"default_fast_model"`
	DefaultPowerfulModel string                    `mapstructure:"default_powerful_model" yaml:"default_powerful_model"`
	Models               map[string]LLMModelConfig `mapstructure:"models" yaml:"models"`
}

// LLMModelConfig defines the configuration for a single model.
type LLMModelConfig struct {
	Provider          LLMProvider       `mapstructure:"provider" yaml:"provider"`
	Model             string            `mapstructure:"model" yaml:"model"`
	APIKey            string            `mapstructure:"api_key" yaml:"api_key"`
	APITimeout        time.Duration     `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature       float32           `mapstructure:"temperature" yaml:"temperature"`
	TopP              float32           `mapstructure:"top_p" yaml:"top_p"`
	TopK              int               `mapstructure:"top_k" yaml:"top_k"`
	MaxTokens         int               `mapstructure:"max_tokens" yaml:"max_tokens"`
	RequestsPerMinute float64           `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
	MaxRetryElapsed   time.Duration     `mapstructure:"max_retry_elapsed" yaml:"max_retry_elapsed"`
	SafetyFilters     map[string]string `mapstructure:"safety_filters" yaml:"safety_filters"`
}

// ProtocolMode selects how pointer clicks are expressed by the oracle.
type ProtocolMode string

const (
	// ModeDirect accepts coordinate-bearing clicks.
	ModeDirect ProtocolMode = "direct"
	// ModeConfirm requires a MOVE followed by a position-free CLICK.
	ModeConfirm ProtocolMode = "confirm"
)

// SessionConfig bounds a single objective's execution.
type SessionConfig struct {
	Mode               ProtocolMode `mapstructure:"mode" yaml:"mode"`
	MaxAttemptsPerStep int          `mapstructure:"max_attempts_per_step" yaml:"max_attempts_per_step"`
	// MaxSteps is the global iteration ceiling. Zero means unbounded.
	MaxSteps          int           `mapstructure:"max_steps" yaml:"max_steps"`
	IterationDelay    time.Duration `mapstructure:"iteration_delay" yaml:"iteration_delay"`
	BackoffStep       time.Duration `mapstructure:"backoff_step" yaml:"backoff_step"`
	BackoffCap        time.Duration `mapstructure:"backoff_cap" yaml:"backoff_cap"`
	BatchDepth        int           `mapstructure:"batch_depth" yaml:"batch_depth"`
	HistoryLimit      int           `mapstructure:"history_limit" yaml:"history_limit"`
	PostBatchDescribe bool          `mapstructure:"post_batch_describe" yaml:"post_batch_describe"`
	OracleTimeout     time.Duration `mapstructure:"oracle_timeout" yaml:"oracle_timeout"`
}

// HumanoidConfig holds the tunable parameters of the motion and typing
// models. Mean/StdDev pairs are sampled once per session.
type HumanoidConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	FittsAMean   float64 `mapstructure:"fitts_a_mean" yaml:"fitts_a_mean"`
	FittsAStdDev float64 `mapstructure:"fitts_a_stddev" yaml:"fitts_a_stddev"`
	FittsBMean   float64 `mapstructure:"fitts_b_mean" yaml:"fitts_b_mean"`
	FittsBStdDev float64 `mapstructure:"fitts_b_stddev" yaml:"fitts_b_stddev"`

	// Motion duration is clamped to [MinMoveDuration, MaxMoveDuration].
	MinMoveDuration time.Duration `mapstructure:"min_move_duration" yaml:"min_move_duration"`
	MaxMoveDuration time.Duration `mapstructure:"max_move_duration" yaml:"max_move_duration"`

	GaussianStrengthMean   float64 `mapstructure:"gaussian_strength_mean" yaml:"gaussian_strength_mean"`
	GaussianStrengthStdDev float64 `mapstructure:"gaussian_strength_stddev" yaml:"gaussian_strength_stddev"`
	PerlinAmplitudeMean    float64 `mapstructure:"perlin_amplitude_mean" yaml:"perlin_amplitude_mean"`
	PerlinAmplitudeStdDev  float64 `mapstructure:"perlin_amplitude_stddev" yaml:"perlin_amplitude_stddev"`

	ClickHoldMinMs int `mapstructure:"click_hold_min_ms" yaml:"click_hold_min_ms"`
	ClickHoldMaxMs int `mapstructure:"click_hold_max_ms" yaml:"click_hold_max_ms"`

	KeyHoldMeanMs   float64 `mapstructure:"key_hold_mean_ms" yaml:"key_hold_mean_ms"`
	KeyHoldStdDevMs float64 `mapstructure:"key_hold_stddev_ms" yaml:"key_hold_stddev_ms"`
	// KeyIntervalMs is the nominal inter-character delay when typing.
	KeyIntervalMs     float64 `mapstructure:"key_interval_ms" yaml:"key_interval_ms"`
	KeyIntervalStdDev float64 `mapstructure:"key_interval_stddev" yaml:"key_interval_stddev"`
	KeyIntervalMinMs  float64 `mapstructure:"key_interval_min_ms" yaml:"key_interval_min_ms"`
}

// NewDefaultConfig creates a new configuration populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults registers every default value on the given viper instance.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "deskpilot")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- LLM --
	// Model keys must not contain dots; viper treats them as path separators.
	v.SetDefault("llm.default_fast_model", "flash")
	v.SetDefault("llm.default_powerful_model", "pro")
	v.SetDefault("llm.models", map[string]interface{}{
		"flash": map[string]interface{}{
			"provider":            string(ProviderGemini),
			"model":               "gemini-2.5-flash",
			"api_timeout":         "60s",
			"temperature":         0.2,
			"top_p":               0.95,
			"top_k":               40,
			"max_tokens":          1024,
			"requests_per_minute": 30.0,
			"max_retry_elapsed":   "1m",
		},
		"pro": map[string]interface{}{
			"provider":            string(ProviderGemini),
			"model":               "gemini-2.5-pro",
			"api_timeout":         "120s",
			"temperature":         0.2,
			"top_p":               0.95,
			"top_k":               40,
			"max_tokens":          2048,
			"requests_per_minute": 10.0,
			"max_retry_elapsed":   "2m",
		},
	})

	// -- Humanoid --
	v.SetDefault("humanoid.enabled", true)
	v.SetDefault("humanoid.fitts_a_mean", 100.0)
	v.SetDefault("humanoid.fitts_a_stddev", 15.0)
	v.SetDefault("humanoid.fitts_b_mean", 120.0)
	v.SetDefault("humanoid.fitts_b_stddev", 20.0)
	v.SetDefault("humanoid.min_move_duration", "150ms")
	v.SetDefault("humanoid.max_move_duration", "1200ms")
	v.SetDefault("humanoid.gaussian_strength_mean", 0.5)
	v.SetDefault("humanoid.gaussian_strength_stddev", 0.1)
	v.SetDefault("humanoid.perlin_amplitude_mean", 2.5)
	v.SetDefault("humanoid.perlin_amplitude_stddev", 0.5)
	v.SetDefault("humanoid.click_hold_min_ms", 50)
	v.SetDefault("humanoid.click_hold_max_ms", 120)
	v.SetDefault("humanoid.key_hold_mean_ms", 55.0)
	v.SetDefault("humanoid.key_hold_stddev_ms", 15.0)
	v.SetDefault("humanoid.key_interval_ms", 50.0)
	v.SetDefault("humanoid.key_interval_stddev", 15.0)
	v.SetDefault("humanoid.key_interval_min_ms", 20.0)

	// -- Session --
	v.SetDefault("session.mode", string(ModeDirect))
	v.SetDefault("session.max_attempts_per_step", 5)
	v.SetDefault("session.max_steps", 0)
	v.SetDefault("session.iteration_delay", "500ms")
	v.SetDefault("session.backoff_step", "500ms")
	v.SetDefault("session.backoff_cap", "10s")
	v.SetDefault("session.batch_depth", 3)
	v.SetDefault("session.history_limit", 20)
	v.SetDefault("session.post_batch_describe", true)
	v.SetDefault("session.oracle_timeout", "90s")

	// -- Database --
	v.SetDefault("database.url", "")

	// -- Server --
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.shutdown_timeout", "10s")
}

// NewConfigFromViper unmarshals and validates a configuration from viper.
// API keys may come from GOOGLE_API_KEY or DESKPILOT_LLM_API_KEY and are
// applied to every Gemini model that does not carry its own.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	_ = v.BindEnv("llm.api_key", "DESKPILOT_LLM_API_KEY", "GOOGLE_API_KEY")
	_ = v.BindEnv("database.url", "DESKPILOT_DATABASE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	apiKey := v.GetString("llm.api_key")
	if apiKey == "" {
		apiKey = os.Getenv("GOOGLE_API_KEY")
	}
	cfg.applyAPIKey(apiKey)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyAPIKey(key string) {
	if key == "" {
		return
	}
	for name, m := range c.LLM.Models {
		if m.Provider == ProviderGemini && m.APIKey == "" {
			m.APIKey = key
			c.LLM.Models[name] = m
		}
	}
}

// Validate checks the configuration for values the runtime cannot work with.
func (c *Config) Validate() error {
	if err := c.Session.Validate(); err != nil {
		return fmt.Errorf("session configuration invalid: %w", err)
	}
	if c.Humanoid.MaxMoveDuration < c.Humanoid.MinMoveDuration {
		return fmt.Errorf("humanoid.max_move_duration must not be less than humanoid.min_move_duration")
	}
	if c.Humanoid.ClickHoldMaxMs < c.Humanoid.ClickHoldMinMs {
		return fmt.Errorf("humanoid.click_hold_max_ms must not be less than humanoid.click_hold_min_ms")
	}
	for _, name := range []string{c.LLM.DefaultFastModel, c.LLM.DefaultPowerfulModel} {
		if _, ok := c.LLM.Models[name]; !ok {
			return fmt.Errorf("llm model '%s' is referenced as a default but not configured", name)
		}
	}
	return nil
}

// Validate checks the session bounds.
func (s SessionConfig) Validate() error {
	switch s.Mode {
	case ModeDirect, ModeConfirm:
	default:
		return fmt.Errorf("session.mode must be one of [%s, %s], got '%s'", ModeDirect, ModeConfirm, s.Mode)
	}
	if s.MaxAttemptsPerStep <= 0 {
		return fmt.Errorf("session.max_attempts_per_step must be a positive integer")
	}
	if s.MaxSteps < 0 {
		return fmt.Errorf("session.max_steps must not be negative")
	}
	if s.BatchDepth <= 0 {
		return fmt.Errorf("session.batch_depth must be a positive integer")
	}
	if s.BackoffCap < s.IterationDelay {
		return fmt.Errorf("session.backoff_cap must not be less than session.iteration_delay")
	}
	if s.IterationDelay < 0 || s.BackoffStep < 0 {
		return fmt.Errorf("session delays must not be negative")
	}
	return nil
}
