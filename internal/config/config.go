// Package config loads and validates the diagnostic pipeline configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"texdoctor/internal/fileutil"
	"texdoctor/internal/yamlutil"
)

// Sentinel errors for config operations.
var (
	ErrConfigNotFound  = errors.New("config file not found")
	ErrEmptyConfigName = errors.New("config name cannot be empty")
	ErrConfigParse     = errors.New("failed to parse config")
	ErrInvalidTimeout  = errors.New("invalid timeout")
	ErrEmptyToolPath   = errors.New("tool path cannot be empty")
)

// Default timeouts for the external tool invocations.
const (
	DefaultConvertTimeout = 60 * time.Second
	DefaultCompileTimeout = 120 * time.Second
)

// Config holds all configuration for a diagnostic run.
type Config struct {
	Tools    ToolsConfig    `yaml:"tools"`
	Timeouts TimeoutsConfig `yaml:"timeouts"`
	Report   ReportConfig   `yaml:"report"`
	Debug    bool           `yaml:"debug"`
}

// ToolsConfig names the external converter and compiler executables. Paths
// may be bare names resolved via PATH or absolute paths. ExtraArgs are
// appended after the fixed non-interactive flags.
type ToolsConfig struct {
	Converter          string   `yaml:"converter"`
	ConverterExtraArgs []string `yaml:"converterExtraArgs"`
	Compiler           string   `yaml:"compiler"`
	CompilerExtraArgs  []string `yaml:"compilerExtraArgs"`
}

// TimeoutsConfig bounds the conversion and compilation calls. Values use
// Go duration syntax ("30s", "2m"); empty means the default.
type TimeoutsConfig struct {
	Convert string `yaml:"convert"`
	Compile string `yaml:"compile"`
}

// ReportConfig controls final report rendering. Color is never inferred
// from a TTY so that stage output stays deterministic across the worker
// process boundary.
type ReportConfig struct {
	Color          bool `yaml:"color"`
	ShowToolOutput bool `yaml:"showToolOutput"`
}

// DefaultConfig returns the standard toolchain with default timeouts.
func DefaultConfig() *Config {
	return &Config{
		Tools: ToolsConfig{
			Converter: "pandoc",
			Compiler:  "pdflatex",
		},
	}
}

// Validate checks tool paths and timeout syntax.
func (c *Config) Validate() error {
	if c.Tools.Converter == "" {
		return fmt.Errorf("%w: tools.converter", ErrEmptyToolPath)
	}
	if c.Tools.Compiler == "" {
		return fmt.Errorf("%w: tools.compiler", ErrEmptyToolPath)
	}
	if _, err := parseTimeout(c.Timeouts.Convert, DefaultConvertTimeout); err != nil {
		return fmt.Errorf("timeouts.convert: %w", err)
	}
	if _, err := parseTimeout(c.Timeouts.Compile, DefaultCompileTimeout); err != nil {
		return fmt.Errorf("timeouts.compile: %w", err)
	}
	return nil
}

// ConvertTimeout returns the bound for the conversion call.
func (c *Config) ConvertTimeout() time.Duration {
	d, _ := parseTimeout(c.Timeouts.Convert, DefaultConvertTimeout)
	return d
}

// CompileTimeout returns the bound for the compilation call.
func (c *Config) CompileTimeout() time.Duration {
	d, _ := parseTimeout(c.Timeouts.Compile, DefaultCompileTimeout)
	return d
}

func parseTimeout(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeout, s)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%w: %q (must be positive)", ErrInvalidTimeout, s)
	}
	return d, nil
}

// LoadConfig loads configuration from a file path or config name.
// If nameOrPath contains a path separator, it's treated as a file path.
// Otherwise, it's treated as a config name and searched in standard
// locations. Returns error if the file is not found (no silent fallback).
func LoadConfig(nameOrPath string) (*Config, error) {
	if nameOrPath == "" {
		return nil, ErrEmptyConfigName
	}

	var configPath string
	var err error

	if fileutil.IsFilePath(nameOrPath) {
		configPath = nameOrPath
	} else {
		configPath, err = resolveConfigPath(nameOrPath)
		if err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- config path is user-provided
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, configPath)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yamlutil.UnmarshalStrict(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigParse, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// resolveConfigPath searches for a config file by name in standard locations.
// Tries extensions in order: .yaml, .yml
// Tries locations in order: current directory, ~/.config/texdoctor/
func resolveConfigPath(name string) (string, error) {
	extensions := []string{".yaml", ".yml"}
	triedPaths := make([]string, 0, len(extensions)*2) // 2 locations

	// Try current directory first (both extensions)
	for _, ext := range extensions {
		localPath := name + ext
		if fileutil.FileExists(localPath) {
			return localPath, nil
		}
		triedPaths = append(triedPaths, localPath)
	}

	// Try user config directory (both extensions)
	userConfigDir, err := os.UserConfigDir()
	if err == nil {
		for _, ext := range extensions {
			userPath := filepath.Join(userConfigDir, "texdoctor", name+ext)
			if fileutil.FileExists(userPath) {
				return userPath, nil
			}
			triedPaths = append(triedPaths, userPath)
		}
	}

	return "", fmt.Errorf("%w: tried %s", ErrConfigNotFound, strings.Join(triedPaths, ", "))
}
