// Package config loads the application configuration from environment
// variables (prefix TIMESLICE) layered over an optional YAML file, with
// validation of the window geometry and expression definitions.
package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"

	ierrors "timeslice/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Input   InputConfig   `yaml:"input" envconfig:"INPUT"`
	Window  WindowConfig  `yaml:"window" envconfig:"WINDOW"`
	Columns []ColumnSpec  `yaml:"columns" ignored:"true"`
	Filters []string      `yaml:"filters" ignored:"true"`
	Output  OutputConfig  `yaml:"output" envconfig:"OUTPUT"`
	Logging LoggingConfig `yaml:"logging" envconfig:"LOGGING"`
	Metrics MetricsConfig `yaml:"metrics" envconfig:"METRICS"`
}

// InputConfig describes where raw rows come from
type InputConfig struct {
	Path      string   `yaml:"path" envconfig:"PATH"`
	Format    string   `yaml:"format" envconfig:"FORMAT" default:"csv" validate:"oneof=csv excel"`
	Sheet     string   `yaml:"sheet" envconfig:"SHEET"`
	Delimiter string   `yaml:"delimiter" envconfig:"DELIMITER"`
	Encoding  string   `yaml:"encoding" envconfig:"ENCODING" default:"utf-8"`
	Header    []string `yaml:"header" ignored:"true"`
	HasHeader *bool    `yaml:"has_header" ignored:"true"`
}

// WindowConfig describes the window geometry and padding
type WindowConfig struct {
	Size          int                `yaml:"size" envconfig:"SIZE" default:"1000" validate:"min=1"`
	Offset        int                `yaml:"offset" envconfig:"OFFSET" default:"500" validate:"min=0"`
	BeforePadding map[string]float64 `yaml:"before_padding" ignored:"true"`
	AfterPadding  map[string]float64 `yaml:"after_padding" ignored:"true"`
	OnEvalError   string             `yaml:"on_eval_error" envconfig:"ON_EVAL_ERROR" default:"skip" validate:"oneof=skip partial"`
}

// ColumnSpec declares one derived column as a name and expression
type ColumnSpec struct {
	Name       string `yaml:"name" validate:"required"`
	Expression string `yaml:"expression" validate:"required"`
}

// OutputConfig describes where transformed rows go
type OutputConfig struct {
	Path   string `yaml:"path" envconfig:"PATH"`
	Format string `yaml:"format" envconfig:"FORMAT" default:"csv" validate:"oneof=csv jsonl"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" default:"info"`
	Output   string `yaml:"output" envconfig:"OUTPUT" default:"console"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH" default:"logs/timeslice.log"`
}

// MetricsConfig controls the Prometheus metrics endpoint
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" envconfig:"ENABLED" default:"false"`
	Addr    string `yaml:"addr" envconfig:"ADDR" default:":9090"`
}

// Load loads configuration from environment variables and an optional
// config file.
func Load(configFile string) (*Config, error) {
	var cfg Config

	if err := envconfig.Process("TIMESLICE", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if configFile != "" {
		if _, err := os.Stat(configFile); err == nil {
			fileCfg, err := loadFromFile(configFile)
			if err != nil {
				return nil, fmt.Errorf("failed to load config from file: %w", err)
			}
			cfg = mergeConfigs(*fileCfg, cfg)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// loadFromFile loads configuration from a YAML file
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

// mergeConfigs overlays env-provided values on top of the file values.
// Environment variables win for scalar settings; list settings come from
// the file only.
func mergeConfigs(file, env Config) Config {
	merged := file
	if env.Input.Path != "" {
		merged.Input.Path = env.Input.Path
	}
	if env.Input.Format != "csv" {
		merged.Input.Format = env.Input.Format
	}
	if env.Input.Sheet != "" {
		merged.Input.Sheet = env.Input.Sheet
	}
	if env.Input.Delimiter != "" {
		merged.Input.Delimiter = env.Input.Delimiter
	}
	if env.Input.Encoding != "utf-8" {
		merged.Input.Encoding = env.Input.Encoding
	}
	if env.Window.Size != 1000 {
		merged.Window.Size = env.Window.Size
	}
	if env.Window.Offset != 500 {
		merged.Window.Offset = env.Window.Offset
	}
	if env.Window.OnEvalError != "skip" {
		merged.Window.OnEvalError = env.Window.OnEvalError
	}
	if env.Output.Path != "" {
		merged.Output.Path = env.Output.Path
	}
	if env.Output.Format != "csv" {
		merged.Output.Format = env.Output.Format
	}
	if env.Logging.Level != "info" {
		merged.Logging.Level = env.Logging.Level
	}
	if env.Logging.Output != "console" {
		merged.Logging.Output = env.Logging.Output
	}
	if env.Logging.FilePath != "logs/timeslice.log" {
		merged.Logging.FilePath = env.Logging.FilePath
	}
	if env.Metrics.Enabled {
		merged.Metrics.Enabled = true
	}
	if env.Metrics.Addr != ":9090" {
		merged.Metrics.Addr = env.Metrics.Addr
	}
	if merged.Window.Size == 0 {
		merged.Window.Size = 1000
		merged.Window.Offset = 500
	}
	if merged.Input.Format == "" {
		merged.Input.Format = "csv"
	}
	if merged.Output.Format == "" {
		merged.Output.Format = "csv"
	}
	if merged.Window.OnEvalError == "" {
		merged.Window.OnEvalError = "skip"
	}
	if merged.Logging.Level == "" {
		merged.Logging.Level = "info"
	}
	if merged.Logging.Output == "" {
		merged.Logging.Output = "console"
	}
	return merged
}

// Validate checks the configuration for consistency
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	if c.Window.Offset >= c.Window.Size {
		return ierrors.Configf("window offset must be smaller than window size, got offset=%d size=%d",
			c.Window.Offset, c.Window.Size)
	}
	seen := make(map[string]struct{}, len(c.Columns))
	for _, col := range c.Columns {
		if _, dup := seen[col.Name]; dup {
			return ierrors.Configf("derived column %q declared twice", col.Name)
		}
		seen[col.Name] = struct{}{}
	}
	return nil
}
