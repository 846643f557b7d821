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
	"sync"
	"sync/atomic"
)

// Listener is called after every successful write with the new snapshot.
type Listener func(*Snapshot)

// Store owns the canvas graph and is its only writer.
//
// Description:
//
//	Writes go through Update, which hands the caller a Draft copy of the
//	current snapshot. If the callback returns nil the draft is frozen into
//	a new Snapshot with version+1 and published atomically; otherwise the
//	draft is discarded and the published snapshot is unchanged.
//
// Thread Safety:
//
//	Safe for concurrent use. Writers are serialized by a mutex. Snapshot
//	reads an atomic pointer and never waits for a writer.
type Store struct {
	mu        sync.Mutex
	current   atomic.Pointer[Snapshot]
	listeners []Listener
}

// NewStore creates a store holding an empty graph at version 0.
func NewStore() *Store {
	s := &Store{}
	s.current.Store(emptySnapshot())
	return s
}

// NewStoreFrom creates a store seeded with an existing snapshot.
func NewStoreFrom(snap *Snapshot) *Store {
	s := &Store{}
	if snap == nil {
		snap = emptySnapshot()
	}
	s.current.Store(snap)
	return s
}

// Snapshot returns the latest published snapshot.
func (s *Store) Snapshot() *Snapshot {
	return s.current.Load()
}

// Subscribe registers a listener for published snapshots. Listeners run
// synchronously on the writer's goroutine, after the write lock is released.
func (s *Store) Subscribe(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// Update applies fn to a draft of the current snapshot.
//
// Inputs:
//
//	fn - Mutation callback. Returning an error aborts the write.
//
// Outputs:
//
//	*Snapshot - The newly published snapshot, or the unchanged current one on error.
//	error - The error returned by fn, if any.
func (s *Store) Update(fn func(*Draft) error) (*Snapshot, error) {
	s.mu.Lock()
	base := s.current.Load()
	d := newDraft(base)
	if err := fn(d); err != nil {
		s.mu.Unlock()
		return base, err
	}
	next := d.freeze(base.version + 1)
	s.current.Store(next)
	listeners := append([]Listener(nil), s.listeners...)
	s.mu.Unlock()

	for _, l := range listeners {
		l(next)
	}
	return next, nil
}

// Replace swaps the whole graph for the given nodes and connections.
func (s *Store) Replace(nodes []Node, connections []Connection) (*Snapshot, error) {
	return s.Update(func(d *Draft) error {
		fresh := newDraft(emptySnapshot())
		for _, n := range nodes {
			if err := fresh.AddNode(n); err != nil {
				return err
			}
		}
		for _, c := range connections {
			if err := fresh.Connect(c); err != nil {
				return err
			}
		}
		*d = *fresh
		return nil
	})
}

// AddNode adds a node.
func (s *Store) AddNode(n Node) (*Snapshot, error) {
	return s.Update(func(d *Draft) error { return d.AddNode(n) })
}

// RemoveNode removes a node and its attached connections.
func (s *Store) RemoveNode(id string) (*Snapshot, error) {
	return s.Update(func(d *Draft) error { return d.RemoveNode(id) })
}

// SetNodeValue replaces a node's stored value.
func (s *Store) SetNodeValue(id, value string) (*Snapshot, error) {
	return s.Update(func(d *Draft) error { return d.SetNodeValue(id, value) })
}

// Connect adds a connection.
func (s *Store) Connect(c Connection) (*Snapshot, error) {
	return s.Update(func(d *Draft) error { return d.Connect(c) })
}

// Disconnect removes a connection.
func (s *Store) Disconnect(id string) (*Snapshot, error) {
	return s.Update(func(d *Draft) error { return d.Disconnect(id) })
}
