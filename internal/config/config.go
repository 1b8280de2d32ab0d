// File: internal/config/config.go
package config

import (
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	Browser BrowserConfig `mapstructure:"browser" yaml:"browser"`
	Network NetworkConfig `mapstructure:"network" yaml:"network"`
	Submit  SubmitConfig  `mapstructure:"submit" yaml:"submit"`
	Store   StoreConfig   `mapstructure:"store" yaml:"store"`
}

// LoggerConfig holds all the configuration for the logger.
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

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig holds settings for the headless browser used during extraction.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	IgnoreTLSErrors   bool          `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	Args              []string      `mapstructure:"args" yaml:"args"`
	ReadyTimeout      time.Duration `mapstructure:"ready_timeout" yaml:"ready_timeout"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	UserAgent         string        `mapstructure:"user_agent" yaml:"user_agent"`
}

// NetworkConfig tunes the HTTP transport used for submissions.
type NetworkConfig struct {
	Timeout         time.Duration     `mapstructure:"timeout" yaml:"timeout"`
	IgnoreTLSErrors bool              `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	ForceHTTP2      bool              `mapstructure:"force_http2" yaml:"force_http2"`
	Proxy           string            `mapstructure:"proxy" yaml:"proxy"`
	Headers         map[string]string `mapstructure:"headers" yaml:"headers"`
}

// SubmitConfig controls pacing of the bulk submission loop.
type SubmitConfig struct {
	MinDelay time.Duration `mapstructure:"min_delay" yaml:"min_delay"`
	MaxDelay time.Duration `mapstructure:"max_delay" yaml:"max_delay"`
	// MaxRate caps submissions per second. Zero disables the cap.
	MaxRate float64 `mapstructure:"max_rate" yaml:"max_rate"`
	Seed    uint64  `mapstructure:"seed" yaml:"seed"`
}

// StoreConfig selects where extracted schemas are cached.
type StoreConfig struct {
	Backend     string `mapstructure:"backend" yaml:"backend"`
	CacheDir    string `mapstructure:"cache_dir" yaml:"cache_dir"`
	DatabaseURL string `mapstructure:"database_url" yaml:"-"`
}

const (
	StoreBackendFile     = "file"
	StoreBackendPostgres = "postgres"
)

var (
	globalConfig *Config
	mu           sync.RWMutex
)

// Set installs the process-wide configuration.
func Set(cfg *Config) {
	mu.Lock()
	defer mu.Unlock()
	globalConfig = cfg
}

// Get returns the process-wide configuration, falling back to defaults.
func Get() *Config {
	mu.RLock()
	cfg := globalConfig
	mu.RUnlock()
	if cfg == nil {
		return NewDefaultConfig()
	}
	return cfg
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "formsurge")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 28)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.ready_timeout", "15s")
	v.SetDefault("browser.navigation_timeout", "60s")
	v.SetDefault("browser.user_agent", DefaultUserAgent)

	// -- Network --
	v.SetDefault("network.timeout", "30s")
	v.SetDefault("network.ignore_tls_errors", false)
	v.SetDefault("network.force_http2", true)
	v.SetDefault("network.proxy", "")

	// -- Submit --
	v.SetDefault("submit.min_delay", "300ms")
	v.SetDefault("submit.max_delay", "1500ms")
	v.SetDefault("submit.max_rate", 0.0)
	v.SetDefault("submit.seed", 0)

	// -- Store --
	v.SetDefault("store.backend", StoreBackendFile)
	v.SetDefault("store.cache_dir", ".")
}

// DefaultUserAgent is the desktop Chrome identity shared by the browser and the HTTP session.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// The DSN carries credentials, keep it out of config files.
	_ = v.BindEnv("store.database_url", "FORMSURGE_STORE_DATABASE_URL", "DATABASE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Browser.ReadyTimeout <= 0 {
		return fmt.Errorf("browser.ready_timeout must be a positive duration")
	}
	if c.Network.Timeout <= 0 {
		return fmt.Errorf("network.timeout must be a positive duration")
	}
	if c.Network.Proxy != "" {
		if u, err := url.Parse(c.Network.Proxy); err != nil || u.Host == "" {
			return fmt.Errorf("network.proxy must be an absolute URL")
		}
	}
	if err := c.Submit.Validate(); err != nil {
		return fmt.Errorf("submit configuration invalid: %w", err)
	}
	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("store configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the pacing settings.
func (s *SubmitConfig) Validate() error {
	if s.MinDelay < 0 || s.MaxDelay < 0 {
		return fmt.Errorf("delays must not be negative")
	}
	if s.MaxDelay < s.MinDelay {
		return fmt.Errorf("max_delay (%s) must not be below min_delay (%s)", s.MaxDelay, s.MinDelay)
	}
	if s.MaxRate < 0 {
		return fmt.Errorf("max_rate must not be negative")
	}
	return nil
}

// Validate checks the store backend selection.
func (s *StoreConfig) Validate() error {
	switch strings.ToLower(s.Backend) {
	case StoreBackendFile:
		if s.CacheDir == "" {
			return fmt.Errorf("cache_dir is required for the file backend")
		}
	case StoreBackendPostgres:
		if s.DatabaseURL == "" {
			return fmt.Errorf("database URL is required for the postgres backend. Ensure FORMSURGE_STORE_DATABASE_URL is set")
		}
	default:
		return fmt.Errorf("unsupported backend %q", s.Backend)
	}
	return nil
}
