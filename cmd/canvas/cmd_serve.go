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
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AleutianAI/AleutianCanvas/services/canvas/api"
	"github.com/AleutianAI/AleutianCanvas/services/canvas/catalog"
	"github.com/AleutianAI/AleutianCanvas/services/canvas/graph"
	"github.com/AleutianAI/AleutianCanvas/services/canvas/pipeline"
	"github.com/AleutianAI/AleutianCanvas/services/canvas/telemetry"
	"github.com/spf13/cobra"
)

// drainTimeout bounds how long shutdown waits for running chains.
const drainTimeout = 30 * time.Second

type serveFlags struct {
	canvasPath string
	watch      bool
	name       string
	addr       string
}

func newServeCmd(a *app) *cobra.Command {
	flags := &serveFlags{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the canvas editor API",
		Long: `Serve the HTTP API used by the node editor.

The canvas is loaded from --canvas when given, otherwise from the named
canvas in the local store. With --watch, edits to the canvas file on disk
replace the served canvas. On shutdown the canvas is written back to
where it came from (a watched file is left untouched).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx, flags)
		},
	}
	cmd.Flags().StringVar(&flags.canvasPath, "canvas", "", "canvas file to serve")
	cmd.Flags().BoolVar(&flags.watch, "watch", false, "reload the canvas file when it changes on disk")
	cmd.Flags().StringVar(&flags.name, "name", "default", "stored canvas to serve when --canvas is not set")
	cmd.Flags().StringVar(&flags.addr, "addr", "", "override server.addr")
	return cmd
}

func (a *app) serve(ctx context.Context, flags *serveFlags) error {
	if flags.watch && flags.canvasPath == "" {
		return errors.New("--watch requires --canvas")
	}
	logger := a.logger.Slog()

	shutdown, err := telemetry.Init(ctx, a.cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(sctx); err != nil {
			logger.Warn("telemetry shutdown", slog.String("error", err.Error()))
		}
	}()

	db, err := a.openDB()
	if err != nil {
		return err
	}
	defer db.Close()
	cat := catalog.New(db, logger)

	store, err := a.initialStore(ctx, cat, flags)
	if err != nil {
		return err
	}

	if flags.watch {
		w, err := graph.NewFileWatcher(flags.canvasPath, store, &graph.FileWatcherOptions{Logger: logger})
		if err != nil {
			return fmt.Errorf("watching %s: %w", flags.canvasPath, err)
		}
		if err := w.Start(ctx); err != nil {
			return fmt.Errorf("watching %s: %w", flags.canvasPath, err)
		}
		defer w.Stop()
	}

	gen, err := a.generator()
	if err != nil {
		return err
	}
	hub := api.NewHub(logger)
	runner := pipeline.NewRunner(store, gen, logger)
	exec, err := pipeline.NewExecutor(store, runner, hub, logger)
	if err != nil {
		return err
	}
	runs := pipeline.NewManager(ctx, exec)

	srv, err := api.NewServer(api.Deps{
		Store:   store,
		Runner:  runner,
		Runs:    runs,
		Hub:     hub,
		Catalog: cat,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	addr := a.cfg.Server.Addr
	if flags.addr != "" {
		addr = flags.addr
	}
	serveErr := srv.Run(ctx, addr)

	wctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if err := runs.Wait(wctx); err != nil {
		logger.Warn("chains still running at shutdown", slog.String("error", err.Error()))
	}

	if err := a.persist(cat, store, flags); err != nil {
		return errors.Join(serveErr, err)
	}
	return serveErr
}

// initialStore loads the canvas to serve. A missing file or stored
// canvas starts empty.
func (a *app) initialStore(ctx context.Context, cat *catalog.Catalog, flags *serveFlags) (*graph.Store, error) {
	var (
		snap *graph.Snapshot
		err  error
	)
	if flags.canvasPath != "" {
		snap, err = graph.LoadFile(flags.canvasPath)
		if errors.Is(err, fs.ErrNotExist) {
			return graph.NewStore(), nil
		}
	} else {
		snap, err = cat.LoadCanvas(ctx, flags.name)
		if errors.Is(err, catalog.ErrNotFound) {
			return graph.NewStore(), nil
		}
	}
	if err != nil {
		return nil, err
	}
	return graph.NewStoreFrom(snap), nil
}

func (a *app) persist(cat *catalog.Catalog, store *graph.Store, flags *serveFlags) error {
	snap := store.Snapshot()
	switch {
	case flags.watch:
		return nil
	case flags.canvasPath != "":
		if err := graph.SaveFile(flags.canvasPath, snap); err != nil {
			return fmt.Errorf("saving canvas: %w", err)
		}
	default:
		if err := cat.SaveCanvas(context.Background(), flags.name, snap); err != nil {
			return fmt.Errorf("saving canvas %q: %w", flags.name, err)
		}
	}
	a.logger.Info("canvas saved", slog.Int("nodes", snap.Len()))
	return nil
}
