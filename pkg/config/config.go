package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	AI        AIConfig        `mapstructure:"ai" yaml:"ai"`
	Output    OutputConfig    `mapstructure:"output" yaml:"output"`
	Fetch     FetchConfig     `mapstructure:"fetch" yaml:"fetch"`
	Cache     CacheConfig     `mapstructure:"cache" yaml:"cache"`
	Bridge    BridgeConfig    `mapstructure:"bridge" yaml:"bridge"`
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
}

// AIConfig selects and tunes the classification provider
type AIConfig struct {
	Provider          string `mapstructure:"provider" yaml:"provider"`
	APIKey            string `mapstructure:"api_key" yaml:"api_key"`
	Model             string `mapstructure:"model" yaml:"model"`
	BaseURL           string `mapstructure:"base_url" yaml:"base_url"`
	BatchSize         int    `mapstructure:"batch_size" yaml:"batch_size"`
	Concurrency       int    `mapstructure:"concurrency" yaml:"concurrency"`
	RequestsPerMinute int    `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
}

// OutputConfig controls vault generation
type OutputConfig struct {
	Dir          string `mapstructure:"dir" yaml:"dir"`
	VaultName    string `mapstructure:"vault_name" yaml:"vault_name"`
	IncludeMedia bool   `mapstructure:"include_media" yaml:"include_media"`
	CreateIndex  bool   `mapstructure:"create_index" yaml:"create_index"`
	Language     string `mapstructure:"language" yaml:"language"`
}

// FetchConfig contains bookmark source settings
type FetchConfig struct {
	Cookie   string `mapstructure:"cookie" yaml:"cookie"`
	JSONPath string `mapstructure:"json_path" yaml:"json_path"`
	Limit    int    `mapstructure:"limit" yaml:"limit"`
	PageSize int    `mapstructure:"page_size" yaml:"page_size"`
	QueryID  string `mapstructure:"query_id" yaml:"query_id"`
	BaseURL  string `mapstructure:"base_url" yaml:"base_url"`
}

// CacheConfig points at the classification cache database
type CacheConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// BridgeConfig describes how the desktop bridge launches the CLI
type BridgeConfig struct {
	Command []string      `mapstructure:"command" yaml:"command"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// ServerConfig contains server-specific configuration
type ServerConfig struct {
	Port           int      `mapstructure:"port" yaml:"port"`
	SessionAPIKey  string   `mapstructure:"session_api_key" yaml:"session_api_key"`
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
}

// TelemetryConfig contains telemetry configuration
type TelemetryConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`
}

// LogConfig contains logging configuration
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	JSON  bool   `mapstructure:"json" yaml:"json"`
}

// Dir returns the per-user configuration directory
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".tweetvault"), nil
}

// Load loads the configuration from viper
func Load() (*Config, error) {
	cfg := &Config{}

	SetDefaults()

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, err
	}

	if err := postProcess(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// SetDefaults registers default values and environment bindings on the global viper instance
func SetDefaults() {
	setDefaults(viper.GetViper())

	// Environment variable mappings
	_ = viper.BindEnv("ai.api_key", "TWEETVAULT_AI_API_KEY", "TWEETVAULT_API_KEY")
	_ = viper.BindEnv("fetch.cookie", "TWEETVAULT_FETCH_COOKIE", "TWEETVAULT_COOKIE")
	_ = viper.BindEnv("server.session_api_key", "TWEETVAULT_SERVER_SESSION_API_KEY", "SESSION_API_KEY")
	_ = viper.BindEnv("telemetry.endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ai.provider", "claude")
	v.SetDefault("ai.batch_size", 0) // provider default
	v.SetDefault("ai.concurrency", 1)
	v.SetDefault("ai.requests_per_minute", 0) // unlimited

	v.SetDefault("output.dir", "./tweetvault-output")
	v.SetDefault("output.vault_name", "TweetVault")
	v.SetDefault("output.include_media", true)
	v.SetDefault("output.create_index", true)
	v.SetDefault("output.language", "en")

	v.SetDefault("fetch.limit", 100)
	v.SetDefault("fetch.page_size", 20)
	v.SetDefault("fetch.base_url", "https://x.com")

	v.SetDefault("cache.enabled", true)

	v.SetDefault("bridge.timeout", "30m")

	v.SetDefault("server.port", 8765)
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("telemetry.enabled", false)

	v.SetDefault("log.level", "warn")
	v.SetDefault("log.json", false)
}

// WriteDefault writes a config file holding only the defaults. Secrets from the
// environment are never written. An existing file is kept unless overwrite is set.
func WriteDefault(path string, overwrite bool) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	if overwrite {
		return v.WriteConfigAs(path)
	}
	return v.SafeWriteConfigAs(path)
}

func postProcess(cfg *Config) error {
	cfg.AI.Provider = strings.ToLower(strings.TrimSpace(cfg.AI.Provider))
	if cfg.AI.Provider == "" {
		cfg.AI.Provider = "claude"
	}

	if cfg.Cache.Path == "" {
		dir, err := Dir()
		if err != nil {
			return err
		}
		cfg.Cache.Path = filepath.Join(dir, "cache.db")
	}
	cfg.Cache.Path = expandHome(cfg.Cache.Path)
	cfg.Output.Dir = expandHome(cfg.Output.Dir)
	cfg.Fetch.JSONPath = expandHome(cfg.Fetch.JSONPath)

	// The bridge drives this very binary unless told otherwise
	if len(cfg.Bridge.Command) == 0 {
		exe, err := os.Executable()
		if err != nil {
			return err
		}
		cfg.Bridge.Command = []string{exe}
	}

	if cfg.Fetch.PageSize <= 0 {
		cfg.Fetch.PageSize = 20
	}
	if cfg.AI.Concurrency <= 0 {
		cfg.AI.Concurrency = 1
	}

	return nil
}

// Redacted returns a copy with secrets masked, for display
func (c Config) Redacted() Config {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "***"
	}
	c.AI.APIKey = mask(c.AI.APIKey)
	c.Fetch.Cookie = mask(c.Fetch.Cookie)
	c.Server.SessionAPIKey = mask(c.Server.SessionAPIKey)
	return c
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
