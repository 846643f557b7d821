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
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AleutianAI/AleutianCanvas/services/canvas/flow"
	"github.com/AleutianAI/AleutianCanvas/services/canvas/graph"
	"github.com/AleutianAI/AleutianCanvas/services/canvas/pipeline"
	"github.com/spf13/cobra"
)

// =============================================================================
// COMMAND DEFINITIONS
// =============================================================================

func newResolveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve FILE NODE [HANDLE]",
		Short: "Print the value a node emits on an output port",
		Long: `Resolve the value NODE emits on HANDLE (its default port when omitted),
following connections upstream through pass-through and aggregator nodes.

An unknown node or port prints an empty line.`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := graph.LoadFile(args[0])
			if err != nil {
				return err
			}
			handle := ""
			if len(args) == 3 {
				handle = args[2]
			}
			fmt.Fprintln(cmd.OutOrStdout(), flow.Resolve(snap, args[1], handle))
			return nil
		},
	}
}

func newLayoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "layout FILE NODE",
		Short: "Print the output port positions of a node as JSON",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := graph.LoadFile(args[0])
			if err != nil {
				return err
			}
			n, ok := snap.Node(args[1])
			if !ok {
				return &graph.NodeError{NodeID: args[1], Err: graph.ErrNodeNotFound}
			}
			return writeJSON(cmd.OutOrStdout(), flow.Layout(n))
		},
	}
}

func newRunCmd(a *app) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "run FILE NODE",
		Short: "Run one node's generation and save the result into the file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			gen, err := a.generator()
			if err != nil {
				return err
			}
			store, err := loadStore(args[0])
			if err != nil {
				return err
			}

			runner := pipeline.NewRunner(store, gen, a.logger.Slog())
			n, runErr := runner.RunNode(cmd.Context(), args[1])

			// A failed run still records its error on the node.
			if !dryRun {
				if err := graph.SaveFile(args[0], store.Snapshot()); err != nil {
					return err
				}
			}
			if runErr != nil {
				return runErr
			}
			fmt.Fprintln(cmd.OutOrStdout(), n.Value)
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the result without writing the file")
	return cmd
}

func newChainCmd(a *app) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "chain FILE START_NODE",
		Short: "Run the script chain ending at START_NODE",
		Long: `Run generate, analyze and modify steps for the script chain that ends at
START_NODE (a script prompt modifier or script analyzer). Missing upstream
steps are skipped.

Press Ctrl-C to stop: the current step finishes, its result is discarded,
and no further steps run. A stopped chain exits successfully.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			gen, err := a.generator()
			if err != nil {
				return err
			}
			store, err := loadStore(args[0])
			if err != nil {
				return err
			}

			logger := a.logger.Slog()
			out := cmd.OutOrStdout()
			runner := pipeline.NewRunner(store, gen, logger)
			exec, err := pipeline.NewExecutor(store, runner, eventPrinter(out), logger)
			if err != nil {
				return err
			}

			stop := pipeline.NewStopFlag()
			done := make(chan struct{})
			defer close(done)
			go stopOnSignal(stop, done, cmd.ErrOrStderr())

			result, runErr := exec.Run(cmd.Context(), args[1], stop)
			if result != nil && !dryRun {
				if err := graph.SaveFile(args[0], store.Snapshot()); err != nil {
					return err
				}
			}
			if runErr != nil {
				return runErr
			}
			if result.Stopped {
				fmt.Fprintf(out, "chain stopped after %d step(s)\n", len(result.Steps))
				return nil
			}
			fmt.Fprintf(out, "chain completed: %d step(s) in %s\n",
				len(result.Steps), result.Duration.Round(time.Millisecond))
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "run without writing the file")
	return cmd
}

// =============================================================================
// HELPERS
// =============================================================================

// stopOnSignal sets stop on the first SIGINT or SIGTERM until done closes.
func stopOnSignal(stop *pipeline.StopFlag, done <-chan struct{}, w io.Writer) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)

	select {
	case <-sig:
		fmt.Fprintln(w, "stopping after the current step...")
		stop.Stop()
	case <-done:
	}
}

// eventPrinter writes one line per chain event.
func eventPrinter(w io.Writer) pipeline.Observer {
	return pipeline.ObserverFunc(func(e pipeline.Event) {
		switch e.Type {
		case pipeline.EventStepStarted:
			fmt.Fprintf(w, "  %-8s %s ...\n", e.Step, e.NodeID)
		case pipeline.EventStepCompleted:
			fmt.Fprintf(w, "  %-8s %s done\n", e.Step, e.NodeID)
		case pipeline.EventChainFailed:
			fmt.Fprintf(w, "  failed: %s\n", e.Error)
		}
	})
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
