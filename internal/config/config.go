// Package config loads the application configuration from environment
// variables (prefix METRO) with an optional YAML file overlay.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	Paths     PathsConfig     `yaml:"paths" envconfig:"PATHS"`
	Derive    DeriveConfig    `yaml:"derive" envconfig:"DERIVE"`
	Telemetry TelemetryConfig `yaml:"telemetry" envconfig:"TELEMETRY"`
}

// ServerConfig configures the optional status listener that exposes run
// progress and Prometheus metrics while a batch executes.
type ServerConfig struct {
	Addr            string        `yaml:"addr" envconfig:"ADDR" default:""`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" default:"15s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" default:"info"`
	Format   string `yaml:"format" envconfig:"FORMAT" default:"json"`
	Output   string `yaml:"output" envconfig:"OUTPUT" default:"stdout"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH" default:"logs/derive.log"`
}

// PathsConfig contains file system paths configuration.
type PathsConfig struct {
	InputDir  string `yaml:"input_dir" envconfig:"INPUT_DIR" default:"data/in"`
	OutputDir string `yaml:"output_dir" envconfig:"OUTPUT_DIR" default:"data/out"`
}

// DeriveConfig contains the derivation parameters.
type DeriveConfig struct {
	// BaselinePeriod anchors backward imputation. Zero means use the
	// earliest period present in the observation table.
	BaselinePeriod int `yaml:"baseline_period" envconfig:"BASELINE_PERIOD" default:"0"`
	// WeightTolerance bounds the allowed deviation of a crosswalk weight
	// group's sum from 1.0.
	WeightTolerance float64 `yaml:"weight_tolerance" envconfig:"WEIGHT_TOLERANCE" default:"0.001"`
	// DiversityCategory names the category whose leaf counts feed the
	// diversity index.
	DiversityCategory string `yaml:"diversity_category" envconfig:"DIVERSITY_CATEGORY" default:"ethnic_origin"`
	// Workers caps per-stage parallelism. Zero means one worker per CPU.
	Workers int `yaml:"workers" envconfig:"WORKERS" default:"0"`
}

// TelemetryConfig selects the telemetry exporters.
type TelemetryConfig struct {
	TraceExporter  string `yaml:"trace_exporter" envconfig:"TRACE_EXPORTER" default:""`
	MetricExporter string `yaml:"metric_exporter" envconfig:"METRIC_EXPORTER" default:"prometheus"`
	Environment    string `yaml:"environment" envconfig:"ENVIRONMENT" default:"development"`
}

// Load loads configuration from environment variables and, when configFile
// names an existing file, overlays values from it. Environment variables win.
func Load(configFile string) (*Config, error) {
	var cfg Config

	if err := envconfig.Process("METRO", &cfg); err != nil {
		return nil, fmt.Errorf("load config from env: %w", err)
	}

	if configFile != "" {
		if _, err := os.Stat(configFile); err == nil {
			fileCfg, err := loadFromFile(configFile)
			if err != nil {
				return nil, fmt.Errorf("load config from file: %w", err)
			}
			cfg = mergeConfigs(*fileCfg, cfg)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadFromFile loads configuration from a YAML file.
func loadFromFile(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// mergeConfigs merges file config with env config (env takes precedence).
func mergeConfigs(fileCfg, envCfg Config) Config {
	if envCfg.Server.Addr == "" {
		envCfg.Server.Addr = fileCfg.Server.Addr
	}
	if envCfg.Logging.Level == "info" && fileCfg.Logging.Level != "" {
		envCfg.Logging.Level = fileCfg.Logging.Level
	}
	if envCfg.Logging.Format == "json" && fileCfg.Logging.Format != "" {
		envCfg.Logging.Format = fileCfg.Logging.Format
	}
	if envCfg.Logging.Output == "stdout" && fileCfg.Logging.Output != "" {
		envCfg.Logging.Output = fileCfg.Logging.Output
	}
	if envCfg.Paths.InputDir == "data/in" && fileCfg.Paths.InputDir != "" {
		envCfg.Paths.InputDir = fileCfg.Paths.InputDir
	}
	if envCfg.Paths.OutputDir == "data/out" && fileCfg.Paths.OutputDir != "" {
		envCfg.Paths.OutputDir = fileCfg.Paths.OutputDir
	}
	if envCfg.Derive.BaselinePeriod == 0 {
		envCfg.Derive.BaselinePeriod = fileCfg.Derive.BaselinePeriod
	}
	if envCfg.Derive.DiversityCategory == "ethnic_origin" && fileCfg.Derive.DiversityCategory != "" {
		envCfg.Derive.DiversityCategory = fileCfg.Derive.DiversityCategory
	}
	if envCfg.Derive.Workers == 0 {
		envCfg.Derive.Workers = fileCfg.Derive.Workers
	}
	return envCfg
}

// validate checks the configuration for values the pipeline cannot run with.
func (c *Config) validate() error {
	if c.Derive.WeightTolerance <= 0 {
		return fmt.Errorf("weight tolerance must be positive, got %g", c.Derive.WeightTolerance)
	}
	if c.Derive.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", c.Derive.Workers)
	}
	if c.Derive.DiversityCategory == "" {
		return fmt.Errorf("diversity category cannot be empty")
	}

	switch c.Logging.Format {
	case "json", "text":
	default:
		c.Logging.Format = "json"
	}
	switch c.Logging.Output {
	case "stdout", "file", "both":
	default:
		c.Logging.Output = "stdout"
	}
	if c.Logging.FilePath == "" {
		c.Logging.FilePath = "logs/derive.log"
	}

	return nil
}
