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
	Synthesis() SynthesisConfig
	Snapshot() SnapshotConfig
	Replay() ReplayConfig
	Run() RunConfig
	SetRunConfig(rc RunConfig)

	// Browser Setters
	SetBrowserHeadless(bool)
	SetBrowserConcurrency(int)

	// Replay Setters
	SetReplayNoFallback(bool)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	BrowserCfg   BrowserConfig   `mapstructure:"browser" yaml:"browser"`
	SynthesisCfg SynthesisConfig `mapstructure:"synthesis" yaml:"synthesis"`
	SnapshotCfg  SnapshotConfig  `mapstructure:"snapshot" yaml:"snapshot"`
	ReplayCfg    ReplayConfig    `mapstructure:"replay" yaml:"replay"`
	// RunCfg gets its marching orders from CLI flags, not the config file.
	RunCfg RunConfig `mapstructure:"-" yaml:"-"`
}

func (c *Config) Logger() LoggerConfig       { return c.LoggerCfg }
func (c *Config) Browser() BrowserConfig     { return c.BrowserCfg }
func (c *Config) Synthesis() SynthesisConfig { return c.SynthesisCfg }
func (c *Config) Snapshot() SnapshotConfig   { return c.SnapshotCfg }
func (c *Config) Replay() ReplayConfig       { return c.ReplayCfg }
func (c *Config) Run() RunConfig             { return c.RunCfg }

func (c *Config) SetRunConfig(rc RunConfig)   { c.RunCfg = rc }
func (c *Config) SetBrowserHeadless(b bool)   { c.BrowserCfg.Headless = b }
func (c *Config) SetBrowserConcurrency(n int) { c.BrowserCfg.Concurrency = n }
func (c *Config) SetReplayNoFallback(b bool)  { c.ReplayCfg.NoFallback = b }

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

// BrowserConfig holds settings for the Chrome instance that drives live runs.
type BrowserConfig struct {
	Headless        bool `mapstructure:"headless" yaml:"headless"`
	IgnoreTLSErrors bool `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	// Concurrency caps how many suite files run in parallel, one tab each.
	Concurrency int `mapstructure:"concurrency" yaml:"concurrency"`

	ExecPath          string         `mapstructure:"exec_path" yaml:"exec_path"`
	Args              []string       `mapstructure:"args" yaml:"args"`
	Viewport          map[string]int `mapstructure:"viewport" yaml:"viewport"`
	NavigationTimeout time.Duration  `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
}

// SynthesisConfig tunes selector synthesis and verification.
type SynthesisConfig struct {
	Timeout            time.Duration `mapstructure:"timeout" yaml:"timeout"`
	ProbeTimeout       time.Duration `mapstructure:"probe_timeout" yaml:"probe_timeout"`
	MaxProbesPerSecond float64       `mapstructure:"max_probes_per_second" yaml:"max_probes_per_second"`
	MaxAncestorDepth   int           `mapstructure:"max_ancestor_depth" yaml:"max_ancestor_depth"`
	ShortTextLimit     int           `mapstructure:"short_text_limit" yaml:"short_text_limit"`
	TestIDAttribute    string        `mapstructure:"testid_attribute" yaml:"testid_attribute"`
}

// Snapshot backends.
const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
)

// SnapshotConfig selects and configures the snapshot store backend.
type SnapshotConfig struct {
	Backend       string         `mapstructure:"backend" yaml:"backend"`
	DirName       string         `mapstructure:"dir_name" yaml:"dir_name"`
	LegacyDirName string         `mapstructure:"legacy_dir_name" yaml:"legacy_dir_name"`
	Postgres      PostgresConfig `mapstructure:"postgres" yaml:"postgres"`
}

// PostgresConfig holds the connection details for a PostgreSQL database.
type PostgresConfig struct {
	URL      string `mapstructure:"url" yaml:"url"`
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	User     string `mapstructure:"user" yaml:"user"`
	Password string `mapstructure:"password" yaml:"password"`
	DBName   string `mapstructure:"dbname" yaml:"dbname"`
	SSLMode  string `mapstructure:"sslmode" yaml:"sslmode"`
}

// DSN returns URL when set, otherwise a keyword/value connection string.
func (p PostgresConfig) DSN() string {
	if p.URL != "" {
		return p.URL
	}
	parts := []string{
		fmt.Sprintf("host=%s", p.Host),
		fmt.Sprintf("port=%d", p.Port),
		fmt.Sprintf("user=%s", p.User),
		fmt.Sprintf("dbname=%s", p.DBName),
		fmt.Sprintf("sslmode=%s", p.SSLMode),
	}
	if p.Password != "" {
		parts = append(parts, fmt.Sprintf("password=%s", p.Password))
	}
	return strings.Join(parts, " ")
}

// ReplayConfig configures snapshot replay.
type ReplayConfig struct {
	StepTimeout time.Duration `mapstructure:"step_timeout" yaml:"step_timeout"`
	// NoFallback reports a divergence instead of regenerating live.
	NoFallback bool `mapstructure:"no_fallback" yaml:"no_fallback"`
}

// RunConfig holds settings populated from CLI flags for a specific run.
type RunConfig struct {
	Suites     []string
	Report     string
	Format     string
	Parallel   int
	Regenerate bool
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
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
	v.SetDefault("logger.service_name", "mimic")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.concurrency", 4)
	v.SetDefault("browser.navigation_timeout", "30s")
	v.SetDefault("browser.viewport", map[string]int{"width": 1280, "height": 800})

	// -- Synthesis --
	v.SetDefault("synthesis.timeout", "5s")
	v.SetDefault("synthesis.probe_timeout", "2s")
	v.SetDefault("synthesis.max_probes_per_second", 0.0)
	v.SetDefault("synthesis.max_ancestor_depth", 10)
	v.SetDefault("synthesis.short_text_limit", 80)
	v.SetDefault("synthesis.testid_attribute", "data-testid")

	// -- Snapshot --
	v.SetDefault("snapshot.backend", BackendFile)
	v.SetDefault("snapshot.dir_name", "__mimic__")
	v.SetDefault("snapshot.legacy_dir_name", ".mimic-snapshots")
	v.SetDefault("snapshot.postgres.host", "localhost")
	v.SetDefault("snapshot.postgres.port", 5432)
	v.SetDefault("snapshot.postgres.user", "postgres")
	v.SetDefault("snapshot.postgres.password", "") // Should be set via env var
	v.SetDefault("snapshot.postgres.dbname", "mimic")
	v.SetDefault("snapshot.postgres.sslmode", "disable")

	// -- Replay --
	v.SetDefault("replay.step_timeout", "30s")
	v.SetDefault("replay.no_fallback", false)
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data
	_ = v.BindEnv("snapshot.postgres.password", "MIMIC_PG_PASSWORD")
	_ = v.BindEnv("snapshot.postgres.url", "MIMIC_DATABASE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// expandPaths resolves a leading ~ in file system paths.
func (c *Config) expandPaths() error {
	for _, p := range []*string{&c.LoggerCfg.LogFile, &c.BrowserCfg.ExecPath} {
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("expanding path %q: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.BrowserCfg.Concurrency <= 0 {
		return fmt.Errorf("browser.concurrency must be a positive integer")
	}
	if err := c.SynthesisCfg.Validate(); err != nil {
		return fmt.Errorf("synthesis configuration invalid: %w", err)
	}
	if err := c.SnapshotCfg.Validate(); err != nil {
		return fmt.Errorf("snapshot configuration invalid: %w", err)
	}
	if c.ReplayCfg.StepTimeout < 0 {
		return fmt.Errorf("replay.step_timeout must not be negative")
	}
	return nil
}

// Validate checks the synthesis settings.
func (s SynthesisConfig) Validate() error {
	if s.Timeout <= 0 {
		return fmt.Errorf("timeout must be a positive duration")
	}
	if s.ProbeTimeout < 0 {
		return fmt.Errorf("probe_timeout must not be negative")
	}
	if s.MaxProbesPerSecond < 0 {
		return fmt.Errorf("max_probes_per_second must not be negative")
	}
	if s.MaxAncestorDepth <= 0 {
		return fmt.Errorf("max_ancestor_depth must be greater than 0")
	}
	if s.ShortTextLimit <= 0 {
		return fmt.Errorf("short_text_limit must be greater than 0")
	}
	if strings.TrimSpace(s.TestIDAttribute) == "" {
		return fmt.Errorf("testid_attribute is required")
	}
	return nil
}

// Validate checks the snapshot store settings.
func (s SnapshotConfig) Validate() error {
	switch s.Backend {
	case BackendFile:
		if s.DirName == "" || strings.ContainsAny(s.DirName, `/\`) {
			return fmt.Errorf("dir_name must be a single directory name, got %q", s.DirName)
		}
	case BackendPostgres:
		if s.Postgres.URL == "" && s.Postgres.Host == "" {
			return fmt.Errorf("postgres.url or postgres.host is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown backend %q (want %q or %q)", s.Backend, BackendFile, BackendPostgres)
	}
	return nil
}
