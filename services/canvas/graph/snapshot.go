// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

// Snapshot is an immutable view of the canvas graph.
//
// Description:
//
//	Nodes are kept in an id-keyed arena plus their insertion order;
//	connections keep insertion order too, which makes "first matching
//	connection" lookups deterministic. All accessors return copies.
//
// Thread Safety:
//
//	Safe for concurrent use. A Snapshot is never modified after it is built.
type Snapshot struct {
	version     uint64
	order       []string
	nodes       map[string]Node
	connections []Connection
}

// NewSnapshot builds a validated snapshot at version 0.
//
// Inputs:
//
//	nodes - Nodes in display order. Ids must be unique and kinds known.
//	connections - Connections between those nodes. Ids must be unique.
//
// Outputs:
//
//	*Snapshot - The snapshot.
//	error - Non-nil if any node or connection is invalid.
func NewSnapshot(nodes []Node, connections []Connection) (*Snapshot, error) {
	d := newDraft(emptySnapshot())
	for _, n := range nodes {
		if err := d.AddNode(n); err != nil {
			return nil, err
		}
	}
	for _, c := range connections {
		if err := d.Connect(c); err != nil {
			return nil, err
		}
	}
	return d.freeze(0), nil
}

// MustSnapshot is NewSnapshot for fixtures; it panics on invalid input.
func MustSnapshot(nodes []Node, connections []Connection) *Snapshot {
	s, err := NewSnapshot(nodes, connections)
	if err != nil {
		panic(err)
	}
	return s
}

func emptySnapshot() *Snapshot {
	return &Snapshot{nodes: map[string]Node{}}
}

// Version increments on every store write.
func (s *Snapshot) Version() uint64 {
	return s.version
}

// Len returns the number of nodes.
func (s *Snapshot) Len() int {
	return len(s.order)
}

// Node looks up a node by id.
func (s *Snapshot) Node(id string) (Node, bool) {
	n, ok := s.nodes[id]
	return n, ok
}

// Nodes returns all nodes in display order.
func (s *Snapshot) Nodes() []Node {
	out := make([]Node, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.nodes[id])
	}
	return out
}

// Connections returns all connections in insertion order.
func (s *Snapshot) Connections() []Connection {
	out := make([]Connection, len(s.connections))
	copy(out, s.connections)
	return out
}

// Connection looks up a connection by id.
func (s *Snapshot) Connection(id string) (Connection, bool) {
	for _, c := range s.connections {
		if c.ID == id {
			return c, true
		}
	}
	return Connection{}, false
}

// Inbound returns every connection ending at nodeID, in insertion order.
func (s *Snapshot) Inbound(nodeID string) []Connection {
	var out []Connection
	for _, c := range s.connections {
		if c.ToNodeID == nodeID {
			out = append(out, c)
		}
	}
	return out
}

// InboundTo returns the first connection ending at the given input port.
func (s *Snapshot) InboundTo(nodeID, toHandleID string) (Connection, bool) {
	for _, c := range s.connections {
		if c.ToNodeID == nodeID && SameHandle(c.ToHandleID, toHandleID) {
			return c, true
		}
	}
	return Connection{}, false
}

// Outbound returns every connection starting at nodeID, in insertion order.
func (s *Snapshot) Outbound(nodeID string) []Connection {
	var out []Connection
	for _, c := range s.connections {
		if c.FromNodeID == nodeID {
			out = append(out, c)
		}
	}
	return out
}
