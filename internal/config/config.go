package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/fpmake/internal/foundation/errors"
)

// CurrentVersion is the config schema version written by Init.
const CurrentVersion = 1

// DefaultPath is the configuration file looked up when --config is not given.
const DefaultPath = "fpmake.yaml"

// Config represents the fpmake project configuration.
type Config struct {
	Version   int             `yaml:"version"`
	Project   ProjectConfig   `yaml:"project"`
	Sources   SourcesConfig   `yaml:"sources"`
	Toolchain ToolchainConfig `yaml:"toolchain"`
	Link      LinkConfig      `yaml:"link"`
	Build     BuildConfig     `yaml:"build"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	History   HistoryConfig   `yaml:"history"`
	Events    EventsConfig    `yaml:"events"`
	Watch     WatchConfig     `yaml:"watch"`
}

// ProjectConfig names the final artifact and the directory everything resolves against.
type ProjectConfig struct {
	Output        string `yaml:"output"`
	BaseDirectory string `yaml:"base_directory,omitempty"`
}

// SourcesConfig lists the roots scanned for translation units.
type SourcesConfig struct {
	Directories []string `yaml:"directories"`
}

// ToolchainConfig selects compiler drivers and per-unit flags.
type ToolchainConfig struct {
	C             string   `yaml:"c"`
	CXX           string   `yaml:"cxx"`
	CompileFlags  []string `yaml:"compile_flags,omitempty"`
	StandardFlags []string `yaml:"standard_flags,omitempty"`
}

// LinkConfig holds flags and libraries applied only at link time.
type LinkConfig struct {
	Flags        []string            `yaml:"flags,omitempty"`
	Libs         []string            `yaml:"libs,omitempty"`
	PlatformLibs map[string][]string `yaml:"platform_libs,omitempty"`
}

// BuildConfig controls the object tree, the fingerprint cache and concurrency.
type BuildConfig struct {
	ObjectDir       string `yaml:"object_dir"`
	CacheFile       string `yaml:"cache_file"`
	Jobs            int    `yaml:"jobs"`
	FingerprintJobs int    `yaml:"fingerprint_jobs"`
}

// LoggingConfig controls the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls Prometheus export.
type MetricsConfig struct {
	Textfile string `yaml:"textfile,omitempty"`
	Listen   string `yaml:"listen,omitempty"`
}

// HistoryConfig points at the SQLite build history database. Empty disables history.
type HistoryConfig struct {
	Database string `yaml:"database"`
}

// EventsConfig configures optional NATS build notifications.
type EventsConfig struct {
	NATSURL string `yaml:"nats_url,omitempty"`
	Subject string `yaml:"subject,omitempty"`
}

// WatchConfig controls the watch command.
type WatchConfig struct {
	Debounce string `yaml:"debounce,omitempty"`
	Interval string `yaml:"interval,omitempty"`
}

// Load reads, expands, defaults and validates the configuration at configPath.
func Load(configPath string) (*Config, error) {
	loadEnvFile()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, errors.ConfigError("configuration file not found").
			WithContext("path", configPath).
			Build()
	}

	// #nosec G304 - configPath is supplied by the operator
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryConfig, "failed to read config file").
			WithContext("path", configPath).
			Build()
	}

	cfg, err := Parse([]byte(os.ExpandEnv(string(data))))
	if err != nil {
		return nil, err
	}

	// A relative base directory is relative to the config file, not the caller's cwd.
	// It must be absolute: the toolchain runs inside it and receives resolved paths.
	base := cfg.Project.BaseDirectory
	if !filepath.IsAbs(base) {
		base = filepath.Join(filepath.Dir(configPath), base)
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryConfig, "failed to resolve base directory").
			WithContext("path", base).
			Build()
	}
	cfg.Project.BaseDirectory = abs
	return cfg, nil
}

// Parse decodes raw YAML, applies defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.WrapError(err, errors.CategoryConfig, "failed to unmarshal config").Build()
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Version == 0 {
		c.Version = CurrentVersion
	}
	if c.Project.BaseDirectory == "" {
		c.Project.BaseDirectory = "."
	}
	if c.Toolchain.C == "" {
		c.Toolchain.C = "clang"
	}
	if c.Toolchain.CXX == "" {
		c.Toolchain.CXX = "clang++"
	}
	if c.Build.ObjectDir == "" {
		c.Build.ObjectDir = "obj"
	}
	if c.Build.CacheFile == "" {
		c.Build.CacheFile = filepath.Join(".fpmake", "fingerprints.json")
	}
	if c.Logging.Level == "" {
		c.Logging.Level = string(LogLevelInfo)
	}
	if c.Logging.Format == "" {
		c.Logging.Format = string(LogFormatText)
	}
	if c.Events.Subject == "" {
		c.Events.Subject = "fpmake.builds"
	}
	if c.Watch.Debounce == "" {
		c.Watch.Debounce = "500ms"
	}
}

// Resolve returns p relative to the project base directory unless it is absolute.
func (c *Config) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Project.BaseDirectory, p)
}

// CompileJobs returns the compile concurrency limit.
func (c *Config) CompileJobs() int {
	if c.Build.Jobs > 0 {
		return c.Build.Jobs
	}
	return runtime.NumCPU()
}

// FingerprintJobs returns the preprocessing concurrency limit.
func (c *Config) FingerprintJobs() int {
	if c.Build.FingerprintJobs > 0 {
		return c.Build.FingerprintJobs
	}
	return runtime.NumCPU()
}

// LinkLibs returns the configured libraries followed by those for goos.
func (c *Config) LinkLibs(goos string) []string {
	libs := make([]string, 0, len(c.Link.Libs)+len(c.Link.PlatformLibs[goos]))
	libs = append(libs, c.Link.Libs...)
	libs = append(libs, c.Link.PlatformLibs[goos]...)
	return libs
}

// DebounceDuration parses watch.debounce. Validate guarantees it parses.
func (c *Config) DebounceDuration() time.Duration {
	d, _ := time.ParseDuration(c.Watch.Debounce)
	return d
}

// RebuildInterval parses watch.interval; zero means no periodic rebuild.
func (c *Config) RebuildInterval() time.Duration {
	if c.Watch.Interval == "" {
		return 0
	}
	d, _ := time.ParseDuration(c.Watch.Interval)
	return d
}

// String renders a short summary for logs.
func (c *Config) String() string {
	return fmt.Sprintf("output=%s sources=%v objects=%s", c.Project.Output, c.Sources.Directories, c.Build.ObjectDir)
}
