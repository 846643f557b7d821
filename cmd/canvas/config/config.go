// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the canvas CLI configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/AleutianAI/AleutianCanvas/services/canvas/telemetry"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Generation providers.
const (
	ProviderOpenAI = "openai"
	ProviderMock   = "mock"
)

// Config is the whole canvas configuration file.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Generation GenerationConfig `yaml:"generation"`
	Logging    LoggingConfig    `yaml:"logging"`
	Telemetry  telemetry.Config `yaml:"telemetry"`
}

type ServerConfig struct {
	Addr string `yaml:"addr" validate:"required,hostname_port"`
}

type StorageConfig struct {
	// Path holds the catalog and saved canvases.
	Path           string        `yaml:"path" validate:"required_without=InMemory"`
	InMemory       bool          `yaml:"in_memory"`
	GCInterval     time.Duration `yaml:"gc_interval" validate:"gte=0"`
	GCDiscardRatio float64       `yaml:"gc_discard_ratio" validate:"gte=0,lt=1"`
}

type GenerationConfig struct {
	Provider string `yaml:"provider" validate:"required,oneof=openai mock"`

	// APIKey is usually left empty; OPENAI_API_KEY is read at startup.
	APIKey      string `yaml:"api_key,omitempty"`
	BaseURL     string `yaml:"base_url,omitempty" validate:"omitempty,url"`
	TextModel   string `yaml:"text_model"`
	ImageModel  string `yaml:"image_model"`
	SpeechModel string `yaml:"speech_model"`
	Voice       string `yaml:"voice"`

	// RequestsPerSecond paces provider calls. Zero means unlimited.
	RequestsPerSecond float64       `yaml:"requests_per_second" validate:"gte=0"`
	Burst             int           `yaml:"burst" validate:"gte=0"`
	Timeout           time.Duration `yaml:"timeout" validate:"gte=0"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Format string `yaml:"format" validate:"omitempty,oneof=auto text json"`
	Dir    string `yaml:"dir,omitempty"`
}

var validate = validator.New()

// DefaultConfig returns the configuration written on first run.
func DefaultConfig() Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return Config{
		Server: ServerConfig{Addr: "127.0.0.1:12310"},
		Storage: StorageConfig{
			Path:           filepath.Join(home, ".aleutian", "canvas", "db"),
			GCInterval:     time.Hour,
			GCDiscardRatio: 0.5,
		},
		Generation: GenerationConfig{
			Provider:          ProviderOpenAI,
			TextModel:         "gpt-4o-mini",
			ImageModel:        "dall-e-3",
			SpeechModel:       "tts-1",
			Voice:             "alloy",
			RequestsPerSecond: 2,
			Burst:             4,
			Timeout:           2 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "auto",
		},
		Telemetry: telemetry.DefaultConfig(),
	}
}

// DefaultPath is ~/.aleutian/canvas.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not find the user's home directory: %w", err)
	}
	return filepath.Join(home, ".aleutian", "canvas.yaml"), nil
}

// Load reads the file at path, creating it with defaults if it does not
// exist. Fields missing from the file keep their defaults. OPENAI_API_KEY
// overrides generation.api_key.
//
// Outputs:
//
//	Config - The validated configuration.
//	bool - True if the file was created by this call.
//	error - Read, parse, or validation failure.
func Load(path string) (Config, bool, error) {
	created := false
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if err := createDefault(path); err != nil {
			return Config{}, false, err
		}
		created = true
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, created, fmt.Errorf("failed to read the config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, created, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		cfg.Generation.APIKey = key
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, created, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, created, nil
}

// Validate checks struct constraints.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func createDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create the config directory: %w", err)
	}
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return err
	}
	// May later hold an API key.
	return os.WriteFile(path, data, 0o600)
}
