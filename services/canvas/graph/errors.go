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
	"errors"
	"fmt"
)

var (
	// ErrNodeNotFound is returned when a node id is not in the graph.
	ErrNodeNotFound = errors.New("node not found")

	// ErrConnectionNotFound is returned when a connection id is not in the graph.
	ErrConnectionNotFound = errors.New("connection not found")

	// ErrDuplicateID is returned when a node or connection id is reused.
	ErrDuplicateID = errors.New("duplicate id")

	// ErrUnknownKind is returned for node kinds outside the closed set.
	ErrUnknownKind = errors.New("unknown node kind")

	// ErrSelfConnection is returned when a connection starts and ends on the same node.
	ErrSelfConnection = errors.New("connection must join two different nodes")

	// ErrEmptyID is returned when a node or connection has no id.
	ErrEmptyID = errors.New("id must not be empty")

	// ErrForeignFile is returned when a canvas file was produced by another
	// application or carries a different context tag.
	ErrForeignFile = errors.New("file was not exported as an Aleutian canvas")
)

// NodeError attaches a node id to an underlying error.
type NodeError struct {
	NodeID string
	Err    error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node %q: %v", e.NodeID, e.Err)
}

func (e *NodeError) Unwrap() error {
	return e.Err
}
