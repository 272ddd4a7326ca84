// Package config loads livecoach settings from a YAML file, a .env file and
// LIVECOACH_-prefixed environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/AltairaLabs/livecoach/prompt"
	"github.com/AltairaLabs/livecoach/providers"
)

// EnvPrefix prefixes every environment override, e.g. LIVECOACH_PROVIDER or
// LIVECOACH_HISTORY_REDIS_ADDR.
const EnvPrefix = "LIVECOACH"

// History backends.
const (
	HistoryMemory = "memory"
	HistoryRedis  = "redis"
	HistoryNone   = "none"
)

// knownProviders get per-provider defaults so their keys can be overridden
// from the environment.
var knownProviders = []string{"gemini", "groq", "openrouter"}

// Config is the full application configuration.
type Config struct {
	Provider     string   `mapstructure:"provider"`
	APIKey       string   `mapstructure:"api_key"`
	Profile      string   `mapstructure:"profile"`
	Language     string   `mapstructure:"language"`
	CustomPrompt string   `mapstructure:"custom_prompt"`
	Tools        []string `mapstructure:"tools"`
	LogLevel     string   `mapstructure:"log_level"`

	Providers   map[string]ProviderConfig `mapstructure:"providers"`
	Audio       AudioConfig               `mapstructure:"audio"`
	Screenshots ScreenshotConfig          `mapstructure:"screenshots"`
	History     HistoryConfig             `mapstructure:"history"`
	Metrics     MetricsConfig             `mapstructure:"metrics"`
	Telemetry   TelemetryConfig           `mapstructure:"telemetry"`
}

// ProviderConfig overrides adapter defaults for one provider.
type ProviderConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	Model          string        `mapstructure:"model"`
	TextModel      string        `mapstructure:"text_model"`
	VisionModel    string        `mapstructure:"vision_model"`
	MaxImages      int           `mapstructure:"max_images"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	DialTimeout    time.Duration `mapstructure:"dial_timeout"`
	SetupTimeout   time.Duration `mapstructure:"setup_timeout"`
}

// AudioConfig configures the external audio helper.
type AudioConfig struct {
	Command      string   `mapstructure:"command"`
	Args         []string `mapstructure:"args"`
	Channels     int      `mapstructure:"channels"`
	DebugDumpDir string   `mapstructure:"debug_dump_dir"`
}

// ScreenshotConfig configures periodic screen capture.
type ScreenshotConfig struct {
	Command  string        `mapstructure:"command"`
	Args     []string      `mapstructure:"args"`
	Interval time.Duration `mapstructure:"interval"`
	MaxWidth int           `mapstructure:"max_width"`
	Quality  int           `mapstructure:"quality"`
}

// HistoryConfig selects where conversation turns are persisted.
type HistoryConfig struct {
	Backend   string        `mapstructure:"backend"`
	RedisAddr string        `mapstructure:"redis_addr"`
	TTL       time.Duration `mapstructure:"ttl"`
}

// MetricsConfig configures the Prometheus endpoint. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// TelemetryConfig configures OTLP trace export. An empty endpoint disables it.
type TelemetryConfig struct {
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
}

// SetDefaults registers every key with its default value on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("provider", "gemini")
	v.SetDefault("api_key", "")
	v.SetDefault("profile", "interview")
	v.SetDefault("language", "en-US")
	v.SetDefault("custom_prompt", "")
	v.SetDefault("tools", []string{providers.ToolGoogleSearch})
	v.SetDefault("log_level", "info")

	for _, name := range knownProviders {
		prefix := "providers." + name + "."
		v.SetDefault(prefix+"base_url", "")
		v.SetDefault(prefix+"model", "")
		v.SetDefault(prefix+"text_model", "")
		v.SetDefault(prefix+"vision_model", "")
		v.SetDefault(prefix+"max_images", 0)
		v.SetDefault(prefix+"request_timeout", 60*time.Second)
		v.SetDefault(prefix+"dial_timeout", 10*time.Second)
		v.SetDefault(prefix+"setup_timeout", 10*time.Second)
	}

	v.SetDefault("audio.command", "")
	v.SetDefault("audio.args", []string{})
	v.SetDefault("audio.channels", 2)
	v.SetDefault("audio.debug_dump_dir", "")

	v.SetDefault("screenshots.command", "")
	v.SetDefault("screenshots.args", []string{})
	v.SetDefault("screenshots.interval", 5*time.Second)
	v.SetDefault("screenshots.max_width", 1920)
	v.SetDefault("screenshots.quality", 80)

	v.SetDefault("history.backend", HistoryMemory)
	v.SetDefault("history.redis_addr", "")
	v.SetDefault("history.ttl", 7*24*time.Hour)

	v.SetDefault("metrics.addr", "")
	v.SetDefault("telemetry.otlp_endpoint", "")
}

// Load reads cfgFile (or livecoach.yaml from the working directory and
// ~/.config/livecoach) into v and decodes it. A missing config file or .env
// file is not an error.
func Load(v *viper.Viper, cfgFile string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading .env: %w", err)
	}

	SetDefaults(v)
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("livecoach")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home + "/.config/livecoach")
		}
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	cfg.Provider = strings.ToLower(strings.TrimSpace(cfg.Provider))
	cfg.APIKey = cfg.ResolveAPIKey()
	return &cfg, nil
}

// ResolveAPIKey returns the configured key, falling back to the provider's
// conventional environment variable such as GEMINI_API_KEY.
func (c *Config) ResolveAPIKey() string {
	if c.APIKey != "" {
		return c.APIKey
	}
	if d, ok := providers.Lookup(c.Provider); ok && d.APIKeyEnv != "" {
		return os.Getenv(d.APIKeyEnv)
	}
	return ""
}

// ProviderConfig converts the settings for name into adapter config.
func (c *Config) ProviderConfig(name string) providers.Config {
	pc := c.Providers[strings.ToLower(name)]
	model := pc.Model
	if pc.TextModel != "" {
		model = pc.TextModel
	}
	return providers.Config{
		APIKey:         c.APIKey,
		BaseURL:        pc.BaseURL,
		Model:          model,
		VisionModel:    pc.VisionModel,
		MaxImages:      pc.MaxImages,
		RequestTimeout: pc.RequestTimeout,
		DialTimeout:    pc.DialTimeout,
		SetupTimeout:   pc.SetupTimeout,
		AppName:        "livecoach",
	}
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error
	if _, ok := providers.Lookup(c.Provider); !ok {
		errs = append(errs, &providers.UnknownProviderError{Name: c.Provider})
	}
	if c.APIKey == "" {
		errs = append(errs, fmt.Errorf("no API key for provider %q", c.Provider))
	}
	if !prompt.Exists(c.Profile) {
		errs = append(errs, fmt.Errorf("unknown profile %q (available: %s)", c.Profile, strings.Join(prompt.Names(), ", ")))
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("invalid log_level %q", c.LogLevel))
	}
	if c.Audio.Channels != 1 && c.Audio.Channels != 2 {
		errs = append(errs, fmt.Errorf("audio.channels must be 1 or 2, got %d", c.Audio.Channels))
	}
	if c.Screenshots.Command != "" && c.Screenshots.Interval <= 0 {
		errs = append(errs, errors.New("screenshots.interval must be positive"))
	}
	if q := c.Screenshots.Quality; q < 1 || q > 100 {
		errs = append(errs, fmt.Errorf("screenshots.quality must be 1-100, got %d", q))
	}
	switch c.History.Backend {
	case HistoryMemory, HistoryNone:
	case HistoryRedis:
		if c.History.RedisAddr == "" {
			errs = append(errs, errors.New("history.redis_addr is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown history.backend %q", c.History.Backend))
	}
	return errors.Join(errs...)
}
