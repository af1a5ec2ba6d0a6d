// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the prover configuration: an embedded default
// config.yaml overlaid by an optional user file, validated with
// go-playground/validator struct tags.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianProver/pkg/logging"
	"github.com/AleutianAI/AleutianProver/services/prover/store"
	"github.com/AleutianAI/AleutianProver/services/prover/telemetry"
)

// =============================================================================
// Constants (file size limits)
// =============================================================================

// MaxYAMLFileSize is the maximum allowed config file size (1MB).
const MaxYAMLFileSize = 1024 * 1024

//go:embed config.yaml
var defaultConfigYAML []byte

// Package-level error definitions.
var (
	ErrTooLarge      = errors.New("config file too large")
	ErrInvalidConfig = errors.New("invalid config")
)

var validate = validator.New()

// =============================================================================
// Types
// =============================================================================

// Config is the root configuration.
type Config struct {
	Logging   LoggingConfig   `yaml:"logging" validate:"required"`
	Telemetry TelemetryConfig `yaml:"telemetry" validate:"required"`
	Search    SearchConfig    `yaml:"search" validate:"required"`
	Journal   JournalConfig   `yaml:"journal"`
	Server    ServerConfig    `yaml:"server" validate:"required"`
}

// LoggingConfig configures pkg/logging.
type LoggingConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
	Dir   string `yaml:"dir"`
	JSON  bool   `yaml:"json"`
}

// TelemetryConfig mirrors telemetry.Config with validation.
type TelemetryConfig struct {
	ServiceName    string `yaml:"service_name" validate:"required"`
	ServiceVersion string `yaml:"service_version"`
	Environment    string `yaml:"environment"`
	TraceExporter  string `yaml:"trace_exporter" validate:"oneof=otlp stdout none"`
	MetricExporter string `yaml:"metric_exporter" validate:"oneof=prometheus stdout none"`
	OTLPEndpoint   string `yaml:"otlp_endpoint" validate:"required_if=TraceExporter otlp"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
}

// SearchConfig bounds tactic runs.
type SearchConfig struct {
	// MaxSolutions is how many proof states are pulled from a tactic.
	MaxSolutions int `yaml:"max_solutions" validate:"min=1,max=1000"`

	// ReportFailure sets the initial failure reporting flag.
	ReportFailure bool `yaml:"report_failure"`
}

// JournalConfig configures the BadgerDB proof journal.
type JournalConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Path     string `yaml:"path" validate:"required_if=Enabled true InMemory false"`
	InMemory bool   `yaml:"in_memory"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Addr string `yaml:"addr" validate:"required,hostname_port"`

	// RateLimit is run requests per second; 0 disables limiting.
	RateLimit float64 `yaml:"rate_limit" validate:"gte=0"`
	Burst     int     `yaml:"burst" validate:"gte=0"`
}

// =============================================================================
// Loading
// =============================================================================

// Default returns the embedded configuration.
func Default() (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(defaultConfigYAML, &cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded config: %w", err)
	}
	return &cfg, nil
}

// Load returns the embedded configuration overlaid with the file at path.
//
// Description:
//
//	Fields present in the file replace the embedded defaults; absent fields
//	keep them. An empty path returns the validated defaults.
//
// Outputs:
//   - *Config: The validated configuration.
//   - error: ErrTooLarge, ErrInvalidConfig, YAML or I/O errors.
func Load(path string) (*Config, error) {
	cfg, err := Default()
	if err != nil {
		return nil, err
	}
	if path != "" {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("resolving path: %w", err)
		}
		info, err := os.Stat(absPath)
		if err != nil {
			return nil, fmt.Errorf("stat file: %w", err)
		}
		if info.Size() > MaxYAMLFileSize {
			return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrTooLarge, info.Size(), MaxYAMLFileSize)
		}
		data, err := os.ReadFile(absPath)
		if err != nil {
			return nil, fmt.Errorf("reading file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("unmarshaling %s: %w", path, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the struct tags.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// =============================================================================
// Conversions
// =============================================================================

// LoggingConfig returns the pkg/logging configuration for service.
func (c *Config) LoggingConfig(service string) logging.Config {
	level, err := logging.ParseLevel(c.Logging.Level)
	if err != nil {
		level = logging.LevelInfo
	}
	return logging.Config{
		Level:   level,
		LogDir:  c.Logging.Dir,
		Service: service,
		JSON:    c.Logging.JSON,
	}
}

// TelemetryConfig returns the telemetry configuration.
func (c *Config) TelemetryConfig() telemetry.Config {
	t := c.Telemetry
	return telemetry.Config{
		ServiceName:    t.ServiceName,
		ServiceVersion: t.ServiceVersion,
		Environment:    t.Environment,
		TraceExporter:  t.TraceExporter,
		MetricExporter: t.MetricExporter,
		OTLPEndpoint:   t.OTLPEndpoint,
		OTLPInsecure:   t.OTLPInsecure,
	}
}

// StoreConfig returns the journal configuration. The path has ~ expanded.
func (c *Config) StoreConfig() store.Config {
	if c.Journal.InMemory {
		return store.InMemoryConfig()
	}
	cfg := store.DefaultConfig(expandPath(c.Journal.Path))
	cfg.GCInterval = 10 * time.Minute
	return cfg
}

func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}
