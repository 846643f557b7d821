// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package graph holds the canvas graph model and its single-writer store.
//
// # Description
//
//	A canvas is a set of Nodes joined by Connections. Each Node carries an
//	opaque JSON Value whose shape is determined by its Kind. The Store owns
//	the graph and publishes immutable Snapshots; every write produces a new
//	Snapshot with a higher version. Readers (the resolver, the layout
//	helper, the chain executor) always work against one Snapshot.
//
// # Thread Safety
//
//	Snapshots are immutable and safe to share between goroutines. Store
//	writes are serialized; Store.Snapshot never blocks on a writer.
package graph

import "strings"

// Position is a node's top-left corner on the canvas, in pixels.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Node is one pipeline step on the canvas.
//
// Value is free-form JSON (or raw text for leaf kinds) interpreted by the
// node's Kind. The graph package never parses it.
type Node struct {
	ID                     string   `json:"id"`
	Kind                   NodeKind `json:"type"`
	Value                  string   `json:"value"`
	Position               Position `json:"position"`
	Width                  float64  `json:"width"`
	Height                 float64  `json:"height"`
	IsCollapsed            bool     `json:"isCollapsed,omitempty"`
	AreOutputHandlesHidden bool     `json:"areOutputHandlesHidden,omitempty"`
}

// Connection is a directed edge from an output port of one node to an
// input port of another. An empty handle id names the node's default port.
type Connection struct {
	ID           string `json:"id"`
	FromNodeID   string `json:"fromNodeId"`
	ToNodeID     string `json:"toNodeId"`
	FromHandleID string `json:"fromHandleId,omitempty"`
	ToHandleID   string `json:"toHandleId,omitempty"`
}

// SameHandle reports whether two handle ids name the same port. Handle ids
// are compared after trimming whitespace.
func SameHandle(a, b string) bool {
	return strings.TrimSpace(a) == strings.TrimSpace(b)
}
