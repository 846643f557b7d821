// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package flow computes the values that travel along canvas connections and
// where each node's output ports sit on screen.
//
// # Description
//
//	Every node kind has one Behavior. A Behavior answers two questions from
//	the same decoded payload: what value does a given output port carry
//	(ResolvePort) and which output ports exist (Ports). The resolver uses
//	the first, the layout helper the second, so the two can never disagree
//	on a node's port list.
//
// # Guarantees
//
//	Resolution is total and never modifies the graph. It never returns an
//	error and never panics on user data: unknown nodes, unknown ports,
//	malformed values and connection cycles all resolve to the empty string.
//	Its only side effect is the Prometheus counters in metrics.go
//	(canvas_flow_resolutions_total, canvas_flow_cycles_total).
//
// # Thread Safety
//
//	A Resolver reads one immutable graph.Snapshot and may be shared between
//	goroutines. Visited sets are per call.
package flow

import (
	"github.com/AleutianAI/AleutianCanvas/services/canvas/graph"
	"github.com/AleutianAI/AleutianCanvas/services/canvas/payload"
)

// Visited is the set of node ids already entered on the current path.
type Visited map[string]struct{}

// Has reports whether id has been entered.
func (v Visited) Has(id string) bool {
	_, ok := v[id]
	return ok
}

// Clone returns an independent copy.
func (v Visited) Clone() Visited {
	out := make(Visited, len(v))
	for id := range v {
		out[id] = struct{}{}
	}
	return out
}

// Resolver resolves port values over one snapshot.
type Resolver struct {
	snap *graph.Snapshot
}

// NewResolver creates a resolver bound to snap.
func NewResolver(snap *graph.Snapshot) *Resolver {
	return &Resolver{snap: snap}
}

// Resolve returns the value carried by nodeID's output port handleID.
// An empty handleID names the default port.
func Resolve(snap *graph.Snapshot, nodeID, handleID string) string {
	return NewResolver(snap).ResolveValue(nodeID, handleID, nil)
}

// ResolveInput returns the value delivered to nodeID's input port
// toHandleID by the first connection ending there, or "" if none.
func ResolveInput(snap *graph.Snapshot, nodeID, toHandleID string) string {
	c, ok := snap.InboundTo(nodeID, toHandleID)
	if !ok {
		return ""
	}
	return Resolve(snap, c.FromNodeID, c.FromHandleID)
}

// ResolveValue resolves one output port.
//
// Description:
//
//	The node id is added to visited before dispatch. Entering an id a second
//	time on the same path is a cycle and yields "". Pass visited as nil at
//	the top level.
//
// Inputs:
//
//	nodeID - The producing node.
//	handleID - The output port. Empty for the default port.
//	visited - Ids already on the path. Mutated.
//
// Outputs:
//
//	string - The port value, possibly empty.
func (r *Resolver) ResolveValue(nodeID, handleID string, visited Visited) string {
	if r == nil || r.snap == nil {
		return ""
	}
	node, ok := r.snap.Node(nodeID)
	if !ok {
		resolutionsTotal.WithLabelValues("unknown", "missing").Inc()
		return ""
	}
	if visited == nil {
		visited = Visited{}
	}
	if visited.Has(nodeID) {
		cyclesTotal.WithLabelValues(string(node.Kind)).Inc()
		return ""
	}
	visited[nodeID] = struct{}{}

	behavior, ok := BehaviorFor(node.Kind)
	if !ok {
		resolutionsTotal.WithLabelValues(string(node.Kind), "missing").Inc()
		return ""
	}

	// Decode errors are deliberately dropped: the empty shape stands in.
	p, _ := payload.DecodeNode(node)
	if p == nil {
		return ""
	}

	scope := &Scope{resolver: r, node: node, visited: visited}
	value := behavior.ResolvePort(scope, p, normalizeHandle(handleID))

	outcome := "value"
	if value == "" {
		outcome = "empty"
	}
	resolutionsTotal.WithLabelValues(string(node.Kind), outcome).Inc()
	return value
}

// Scope is what a Behavior sees while resolving one port: the node being
// resolved and access to values flowing into it.
type Scope struct {
	resolver *Resolver
	node     graph.Node
	visited  Visited
}

// Node returns the node being resolved.
func (s *Scope) Node() graph.Node {
	return s.node
}

// Forward resolves the node's first inbound connection, whatever port it
// ends on, continuing the current path. Used by pass-through kinds.
func (s *Scope) Forward() string {
	in := s.resolver.snap.Inbound(s.node.ID)
	if len(in) == 0 {
		return ""
	}
	c := in[0]
	return s.resolver.ResolveValue(c.FromNodeID, c.FromHandleID, s.visited)
}

// Input resolves the first connection ending at input port toHandleID.
// Each call works on its own copy of the visited set, so sibling inputs
// that share an ancestor both see it.
func (s *Scope) Input(toHandleID string) (string, bool) {
	c, ok := s.resolver.snap.InboundTo(s.node.ID, toHandleID)
	if !ok {
		return "", false
	}
	return s.resolver.ResolveValue(c.FromNodeID, c.FromHandleID, s.visited.Clone()), true
}
