// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pipeline runs generation for canvas nodes.
//
// A Runner executes a single node: it resolves the node's input from its
// inbound connection, calls the generation service and writes the result
// back through the graph Store. An Executor sequences the script chain
// (generate, analyze, modify) with a cooperative stop flag.
//
// # Thread Safety
//
//	Runner and Executor are safe for concurrent use. Every step reads a
//	fresh snapshot from the Store; results are written through the Store's
//	single writer.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/AleutianAI/AleutianCanvas/services/canvas/graph"
	"github.com/AleutianAI/AleutianCanvas/services/canvas/payload"
	"github.com/AleutianAI/AleutianCanvas/services/llm"
)

// Runner generates output for one node at a time.
type Runner struct {
	store  *graph.Store
	gen    llm.Generator
	logger *slog.Logger
}

// NewRunner creates a runner writing to store.
//
// Inputs:
//
//	store - The canvas store. Must not be nil.
//	gen - The generation service. Must not be nil.
//	logger - Logger. If nil, uses slog.Default().
func NewRunner(store *graph.Store, gen llm.Generator, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{store: store, gen: gen, logger: logger}
}

// Runnable reports whether nodes of kind can be run.
func Runnable(kind graph.NodeKind) bool {
	_, ok := handlers[kind]
	return ok
}

// RunNode generates output for nodeID and stores it.
//
// Description:
//
//	Reads the current snapshot, resolves the node's input, calls the
//	generation service and writes the output fields into the node's
//	latest value, so edits made during the call are kept. On a
//	generation failure the failure text is written to the payload's
//	error field so the editor can show it, and the error is returned.
//
// Outputs:
//
//	graph.Node - The node as stored after the run.
//	error - graph.ErrNodeNotFound, ErrNotRunnable, ErrMissingInput, or a
//	        generation error (see llm.ServiceError).
func (r *Runner) RunNode(ctx context.Context, nodeID string) (graph.Node, error) {
	start := time.Now()
	out, err := r.generate(ctx, r.store.Snapshot(), nodeID)
	if err != nil {
		r.recordFailure(nodeID, err)
		r.logger.Warn("node run failed",
			slog.String("node", nodeID),
			slog.String("error", err.Error()),
		)
		return graph.Node{}, err
	}
	n, err := r.commit(nodeID, out)
	if err != nil {
		return graph.Node{}, err
	}
	r.logger.Info("node run completed",
		slog.String("node", nodeID),
		slog.String("kind", string(n.Kind)),
		slog.Duration("duration", time.Since(start)),
	)
	return n, nil
}

// generate computes the node's output from snap without writing it.
func (r *Runner) generate(ctx context.Context, snap *graph.Snapshot, nodeID string) (apply, error) {
	node, ok := snap.Node(nodeID)
	if !ok {
		return nil, &graph.NodeError{NodeID: nodeID, Err: graph.ErrNodeNotFound}
	}
	h, ok := handlers[node.Kind]
	if !ok {
		return nil, &graph.NodeError{NodeID: nodeID, Err: fmt.Errorf("%w: %s", ErrNotRunnable, node.Kind)}
	}

	// A malformed stored value decodes to the empty shape and is overwritten.
	p, _ := payload.DecodeNode(node)
	return h(ctx, r.gen, job{snap: snap, node: node}, p)
}

// commit applies out to the node's current value in one store update.
// Edits made to the node while out was being generated are kept.
func (r *Runner) commit(nodeID string, out apply) (graph.Node, error) {
	snap, err := r.store.Update(func(d *graph.Draft) error {
		n, ok := d.Node(nodeID)
		if !ok {
			return &graph.NodeError{NodeID: nodeID, Err: graph.ErrNodeNotFound}
		}
		p, _ := payload.DecodeNode(n)
		if err := out(p); err != nil {
			return &graph.NodeError{NodeID: nodeID, Err: err}
		}
		setError(p, "")
		value, err := payload.Encode(p)
		if err != nil {
			return err
		}
		return d.SetNodeValue(nodeID, value)
	})
	if err != nil {
		return graph.Node{}, err
	}
	n, _ := snap.Node(nodeID)
	return n, nil
}

// recordFailure writes cause into the node's error field. Lookup failures
// and cancellations leave the node untouched.
func (r *Runner) recordFailure(nodeID string, cause error) {
	if errors.Is(cause, graph.ErrNodeNotFound) || errors.Is(cause, ErrNotRunnable) ||
		errors.Is(cause, context.Canceled) {
		return
	}
	_, err := r.store.Update(func(d *graph.Draft) error {
		n, ok := d.Node(nodeID)
		if !ok {
			return graph.ErrNodeNotFound
		}
		p, _ := payload.DecodeNode(n)
		if !setError(p, cause.Error()) {
			return errNoErrorField
		}
		value, err := payload.Encode(p)
		if err != nil {
			return err
		}
		return d.SetNodeValue(nodeID, value)
	})
	if err != nil && !errors.Is(err, errNoErrorField) {
		r.logger.Debug("could not record node failure",
			slog.String("node", nodeID),
			slog.String("error", err.Error()),
		)
	}
}

var errNoErrorField = errors.New("payload has no error field")

// setError sets the payload's error message. It reports false for kinds
// that carry no error field.
func setError(p payload.Payload, msg string) bool {
	switch v := p.(type) {
	case *payload.Translator:
		v.Error = msg
		v.IsLoading = false
	case *payload.PromptAnalyzer:
		v.Error = msg
	case *payload.PromptImprover:
		v.Error = msg
	case *payload.PromptSanitizer:
		v.Error = msg
	case *payload.IdeaGenerator:
		v.Error = msg
	case *payload.CharacterGenerator:
		v.Error = msg
	case *payload.ScriptGenerator:
		v.Error = msg
	case *payload.ScriptAnalyzer:
		v.Error = msg
	case *payload.ScriptPromptModifier:
		v.Error = msg
	case *payload.ImageGenerator:
		v.Error = msg
	case *payload.ImageEditor:
		v.Error = msg
	case *payload.ImageSequenceGenerator:
		v.Error = msg
	case *payload.AudioGenerator:
		v.Error = msg
	case *payload.YouTubeTitleGenerator:
		v.Error = msg
	case *payload.YouTubeAnalytics:
		v.Error = msg
	default:
		return false
	}
	return true
}
