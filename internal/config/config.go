// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Browser() BrowserConfig
	Popup() PopupConfig
	Store() StoreConfig

	// Browser Setters
	SetBrowserRemoteURL(string)
	SetBrowserTabID(string)
	SetBrowserHeadless(bool)
	SetBrowserStartURL(string)

	// Popup Setters
	SetPopupResponseTimeout(time.Duration)

	// Store Setters
	SetStoreBackend(string)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	BrowserCfg BrowserConfig `mapstructure:"browser" yaml:"browser"`
	PopupCfg   PopupConfig   `mapstructure:"popup" yaml:"popup"`
	StoreCfg   StoreConfig   `mapstructure:"store" yaml:"store"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig   { return c.LoggerCfg }
func (c *Config) Browser() BrowserConfig { return c.BrowserCfg }
func (c *Config) Popup() PopupConfig     { return c.PopupCfg }
func (c *Config) Store() StoreConfig     { return c.StoreCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetBrowserRemoteURL(u string) { c.BrowserCfg.RemoteURL = u }
func (c *Config) SetBrowserTabID(id string)    { c.BrowserCfg.TabID = id }
func (c *Config) SetBrowserHeadless(b bool)    { c.BrowserCfg.Headless = b }
func (c *Config) SetBrowserStartURL(u string)  { c.BrowserCfg.StartURL = u }

func (c *Config) SetPopupResponseTimeout(d time.Duration) { c.PopupCfg.ResponseTimeout = d }

func (c *Config) SetStoreBackend(b string) { c.StoreCfg.Backend = b }

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

// BrowserConfig selects the browser the popup drives. With RemoteURL set the
// CLI attaches to a running browser; otherwise it launches one.
type BrowserConfig struct {
	RemoteURL string   `mapstructure:"remote_url" yaml:"remote_url"`
	ExecPath  string   `mapstructure:"exec_path" yaml:"exec_path"`
	Headless  bool     `mapstructure:"headless" yaml:"headless"`
	Args      []string `mapstructure:"args" yaml:"args"`
	// TabID picks a target by id. Empty means the first page target.
	TabID string `mapstructure:"tab_id" yaml:"tab_id"`
	// StartURL is loaded into the tab after it is opened, when set.
	StartURL string `mapstructure:"start_url" yaml:"start_url"`
}

// PopupConfig holds controller behaviour and the initial section toggles.
type PopupConfig struct {
	ResponseTimeout         time.Duration `mapstructure:"response_timeout" yaml:"response_timeout"`
	HelpVisible             bool          `mapstructure:"help_visible" yaml:"help_visible"`
	ContextVisible          bool          `mapstructure:"context_visible" yaml:"context_visible"`
	ResolverVisible         bool          `mapstructure:"resolver_visible" yaml:"resolver_visible"`
	FrameDesignationVisible bool          `mapstructure:"frame_designation_visible" yaml:"frame_designation_visible"`
	FrameIDVisible          bool          `mapstructure:"frame_id_visible" yaml:"frame_id_visible"`
	// CSS is the popup stylesheet answered to requestInsertStyleToPopup.
	CSS string `mapstructure:"css" yaml:"css"`
}

// StoreConfig selects where the popup session snapshot is kept.
type StoreConfig struct {
	Backend  string              `mapstructure:"backend" yaml:"backend"`
	File     FileStoreConfig     `mapstructure:"file" yaml:"file"`
	Postgres PostgresStoreConfig `mapstructure:"postgres" yaml:"postgres"`
	Redis    RedisStoreConfig    `mapstructure:"redis" yaml:"redis"`
}

// Store backends.
const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

type FileStoreConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

type PostgresStoreConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

type RedisStoreConfig struct {
	URL string        `mapstructure:"url" yaml:"url"`
	Key string        `mapstructure:"key" yaml:"key"`
	TTL time.Duration `mapstructure:"ttl" yaml:"ttl"`
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

// DefaultPopupCSS styles the result tables.
const DefaultPopupCSS = `
.results-message { font-weight: bold; }
.results-frame-id { color: cyan; }
.details-header { font-weight: bold; text-decoration: underline; }
.page-count { font-style: italic; }
`

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "tryxpath")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 10)
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

	// -- Browser --
	v.SetDefault("browser.remote_url", "")
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.args", []string{})
	v.SetDefault("browser.tab_id", "")
	v.SetDefault("browser.start_url", "")

	// -- Popup --
	v.SetDefault("popup.response_timeout", "10s")
	v.SetDefault("popup.help_visible", false)
	v.SetDefault("popup.context_visible", false)
	v.SetDefault("popup.resolver_visible", false)
	v.SetDefault("popup.frame_designation_visible", false)
	v.SetDefault("popup.frame_id_visible", false)
	v.SetDefault("popup.css", DefaultPopupCSS)

	// -- Store --
	v.SetDefault("store.backend", BackendFile)
	v.SetDefault("store.file.path", "~/.tryxpath/popup_state.json")
	v.SetDefault("store.postgres.url", "")
	v.SetDefault("store.redis.url", "redis://localhost:6379/0")
	v.SetDefault("store.redis.key", "tryxpath:popup_state")
	v.SetDefault("store.redis.ttl", "0s")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for connection strings.
	_ = v.BindEnv("store.postgres.url", "TRYXPATH_DATABASE_URL")
	_ = v.BindEnv("store.redis.url", "TRYXPATH_REDIS_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if cfg.StoreCfg.File.Path != "" {
		expanded, err := homedir.Expand(cfg.StoreCfg.File.Path)
		if err != nil {
			return nil, fmt.Errorf("expanding store.file.path: %w", err)
		}
		cfg.StoreCfg.File.Path = expanded
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.PopupCfg.ResponseTimeout < 0 {
		return fmt.Errorf("popup.response_timeout must not be negative")
	}
	if err := c.StoreCfg.Validate(); err != nil {
		return fmt.Errorf("store configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the store backend selection and its settings.
func (s *StoreConfig) Validate() error {
	switch strings.ToLower(s.Backend) {
	case BackendFile:
		if s.File.Path == "" {
			return fmt.Errorf("file.path is required for the file backend")
		}
	case BackendPostgres:
		if s.Postgres.URL == "" {
			return fmt.Errorf("postgres.url is required for the postgres backend")
		}
	case BackendRedis:
		if s.Redis.URL == "" {
			return fmt.Errorf("redis.url is required for the redis backend")
		}
		if s.Redis.Key == "" {
			return fmt.Errorf("redis.key is required for the redis backend")
		}
		if s.Redis.TTL < 0 {
			return fmt.Errorf("redis.ttl must not be negative")
		}
	default:
		return fmt.Errorf("unknown backend %q (want file, postgres or redis)", s.Backend)
	}
	return nil
}
