// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/AleutianAI/AleutianCanvas/cmd/canvas/config"
	"github.com/AleutianAI/AleutianCanvas/pkg/logging"
	"github.com/AleutianAI/AleutianCanvas/services/canvas/catalog"
	"github.com/AleutianAI/AleutianCanvas/services/canvas/graph"
	"github.com/AleutianAI/AleutianCanvas/services/canvas/storage/badger"
	"github.com/AleutianAI/AleutianCanvas/services/llm"
)

// app carries what every subcommand needs once the root command has
// loaded the configuration.
type app struct {
	cfg    config.Config
	logger *logging.Logger

	// gen is built lazily; commands that never generate do not need an
	// API key.
	gen llm.Generator
}

func newLogger(cfg config.LoggingConfig) *logging.Logger {
	return logging.New(logging.Config{
		Level:   logging.ParseLevel(cfg.Level),
		Format:  parseFormat(cfg.Format),
		LogDir:  cfg.Dir,
		Service: "canvas",
	})
}

func parseFormat(s string) logging.Format {
	switch strings.ToLower(s) {
	case "text":
		return logging.FormatText
	case "json":
		return logging.FormatJSON
	default:
		return logging.FormatAuto
	}
}

// generator builds the provider stack: provider, per-call timeout, rate
// limit, then logging outermost so logged durations include waiting.
func (a *app) generator() (llm.Generator, error) {
	if a.gen != nil {
		return a.gen, nil
	}
	cfg := a.cfg.Generation
	logger := a.logger.Slog()

	var base llm.Generator
	switch cfg.Provider {
	case config.ProviderMock:
		logger.Warn("using the mock generation provider")
		base = llm.NewMockGenerator()
	default:
		g, err := llm.NewOpenAIGenerator(llm.OpenAIConfig{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			TextModel:   cfg.TextModel,
			ImageModel:  cfg.ImageModel,
			SpeechModel: cfg.SpeechModel,
			Voice:       cfg.Voice,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("generation provider: %w", err)
		}
		base = g
	}

	gen := llm.NewTimeout(base, cfg.Timeout)
	gen = llm.NewRateLimited(gen, cfg.RequestsPerSecond, cfg.Burst)
	a.gen = llm.NewLogged(gen, logger)
	return a.gen, nil
}

func (a *app) openDB() (*badger.DB, error) {
	s := a.cfg.Storage
	db, err := badger.Open(badger.Config{
		Path:           s.Path,
		InMemory:       s.InMemory,
		SyncWrites:     true,
		Logger:         a.logger.Slog(),
		GCInterval:     s.GCInterval,
		GCDiscardRatio: s.GCDiscardRatio,
	})
	if err != nil {
		return nil, fmt.Errorf("opening canvas storage: %w", err)
	}
	return db, nil
}

// withCatalog opens the database for the duration of fn.
func (a *app) withCatalog(fn func(*catalog.Catalog) error) error {
	db, err := a.openDB()
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			a.logger.Warn("closing canvas storage", slog.String("error", err.Error()))
		}
	}()
	return fn(catalog.New(db, a.logger.Slog()))
}

// loadStore reads a canvas file into a new store.
func loadStore(path string) (*graph.Store, error) {
	snap, err := graph.LoadFile(path)
	if err != nil {
		return nil, err
	}
	return graph.NewStoreFrom(snap), nil
}
