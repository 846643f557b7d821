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

import (
	"fmt"
	"slices"
)

// Draft is a mutable working copy of a Snapshot, handed to Store.Update.
//
// Thread Safety:
//
//	NOT safe for concurrent use. A Draft lives only inside one Update call.
type Draft struct {
	order       []string
	nodes       map[string]Node
	connections []Connection
}

func newDraft(base *Snapshot) *Draft {
	nodes := make(map[string]Node, len(base.nodes))
	for id, n := range base.nodes {
		nodes[id] = n
	}
	return &Draft{
		order:       slices.Clone(base.order),
		nodes:       nodes,
		connections: slices.Clone(base.connections),
	}
}

func (d *Draft) freeze(version uint64) *Snapshot {
	return &Snapshot{
		version:     version,
		order:       d.order,
		nodes:       d.nodes,
		connections: d.connections,
	}
}

// Node looks up a node in the draft.
func (d *Draft) Node(id string) (Node, bool) {
	n, ok := d.nodes[id]
	return n, ok
}

// AddNode appends a node.
func (d *Draft) AddNode(n Node) error {
	if n.ID == "" {
		return ErrEmptyID
	}
	if !n.Kind.Valid() {
		return &NodeError{NodeID: n.ID, Err: fmt.Errorf("%w: %q", ErrUnknownKind, n.Kind)}
	}
	if _, exists := d.nodes[n.ID]; exists {
		return &NodeError{NodeID: n.ID, Err: ErrDuplicateID}
	}
	d.nodes[n.ID] = n
	d.order = append(d.order, n.ID)
	return nil
}

// RemoveNode deletes a node and every connection attached to it.
func (d *Draft) RemoveNode(id string) error {
	if _, ok := d.nodes[id]; !ok {
		return &NodeError{NodeID: id, Err: ErrNodeNotFound}
	}
	delete(d.nodes, id)
	d.order = slices.DeleteFunc(d.order, func(x string) bool { return x == id })
	d.connections = slices.DeleteFunc(d.connections, func(c Connection) bool {
		return c.FromNodeID == id || c.ToNodeID == id
	})
	return nil
}

// UpdateNode applies fn to a copy of the node and stores the result. The
// node id and kind cannot be changed through fn.
func (d *Draft) UpdateNode(id string, fn func(*Node)) error {
	n, ok := d.nodes[id]
	if !ok {
		return &NodeError{NodeID: id, Err: ErrNodeNotFound}
	}
	fn(&n)
	n.ID = id
	n.Kind = d.nodes[id].Kind
	d.nodes[id] = n
	return nil
}

// SetNodeValue replaces a node's stored value.
func (d *Draft) SetNodeValue(id, value string) error {
	return d.UpdateNode(id, func(n *Node) { n.Value = value })
}

// Connect adds a connection. Both endpoints must exist.
func (d *Draft) Connect(c Connection) error {
	if c.ID == "" {
		return ErrEmptyID
	}
	if c.FromNodeID == c.ToNodeID {
		return fmt.Errorf("connection %q: %w", c.ID, ErrSelfConnection)
	}
	for _, existing := range d.connections {
		if existing.ID == c.ID {
			return fmt.Errorf("connection %q: %w", c.ID, ErrDuplicateID)
		}
	}
	if _, ok := d.nodes[c.FromNodeID]; !ok {
		return &NodeError{NodeID: c.FromNodeID, Err: ErrNodeNotFound}
	}
	if _, ok := d.nodes[c.ToNodeID]; !ok {
		return &NodeError{NodeID: c.ToNodeID, Err: ErrNodeNotFound}
	}
	d.connections = append(d.connections, c)
	return nil
}

// Disconnect removes a connection by id.
func (d *Draft) Disconnect(id string) error {
	before := len(d.connections)
	d.connections = slices.DeleteFunc(d.connections, func(c Connection) bool { return c.ID == id })
	if len(d.connections) == before {
		return fmt.Errorf("connection %q: %w", id, ErrConnectionNotFound)
	}
	return nil
}
