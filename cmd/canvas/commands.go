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

	"github.com/AleutianAI/AleutianCanvas/cmd/canvas/config"
	"github.com/spf13/cobra"
)

// rootFlags are shared by every subcommand.
type rootFlags struct {
	configPath string
	logLevel   string
	mock       bool
	inMemory   bool
}

// newRootCmd builds the command tree. Each call returns a fresh tree so
// tests can execute commands independently.
func newRootCmd() *cobra.Command {
	return newCommandTree(&app{})
}

func newCommandTree(a *app) *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:   "canvas",
		Short: "Serve and script Aleutian node canvases",
		Long: `canvas runs the backend of the Aleutian node editor.

A canvas is a graph of AI pipeline nodes (prompt tools, script writers,
image and audio generators) joined by typed ports. Besides serving the
editor API, canvas can resolve port values, lay out ports, run single
nodes and run script chains straight from a canvas file.

Examples:
  canvas serve --canvas story.json --watch
  canvas resolve story.json analyzer-1 character-0
  canvas chain story.json modifier-1
  canvas catalog export catalog.json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd, flags)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Close()
			}
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "config file (default ~/.aleutian/canvas.yaml)")
	pf.StringVar(&flags.logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")
	pf.BoolVar(&flags.mock, "mock", false, "use the offline mock generation provider")
	pf.BoolVar(&flags.inMemory, "ephemeral", false, "keep the catalog in memory only")

	root.AddCommand(
		newServeCmd(a),
		newResolveCmd(a),
		newLayoutCmd(a),
		newRunCmd(a),
		newChainCmd(a),
		newCatalogCmd(a),
	)
	return root
}

// load reads the configuration, applies flag overrides and builds the
// logger.
func (a *app) load(cmd *cobra.Command, flags *rootFlags) error {
	path := flags.configPath
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return err
		}
		path = p
	}

	cfg, created, err := config.Load(path)
	if err != nil {
		return err
	}
	if created {
		fmt.Fprintf(cmd.ErrOrStderr(), "First run detected, created the config at %s\n", path)
	}

	if flags.logLevel != "" {
		cfg.Logging.Level = flags.logLevel
	}
	if flags.mock {
		cfg.Generation.Provider = config.ProviderMock
	}
	if flags.inMemory {
		cfg.Storage.InMemory = true
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	a.cfg = cfg
	a.logger = newLogger(cfg.Logging)
	slog.SetDefault(a.logger.Slog())
	return nil
}
