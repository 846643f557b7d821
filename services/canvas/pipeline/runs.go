// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultKeepFinished is how many finished runs a Manager remembers.
const DefaultKeepFinished = 100

// RunState is the lifecycle state of a background chain run.
type RunState string

const (
	RunRunning   RunState = "running"
	RunCompleted RunState = "completed"
	RunStopped   RunState = "stopped"
	RunFailed    RunState = "failed"
)

// Run describes a background chain run.
type Run struct {
	ID          string       `json:"id"`
	StartNodeID string       `json:"startNodeId"`
	State       RunState     `json:"state"`
	Result      *ChainResult `json:"result,omitempty"`
	Error       string       `json:"error,omitempty"`
	StartedAt   time.Time    `json:"startedAt"`
	FinishedAt  *time.Time   `json:"finishedAt,omitempty"`
}

type runEntry struct {
	run  Run
	stop *StopFlag
}

// Manager starts chain runs in the background and tracks them by id.
//
// Description:
//
//	Runs are detached from the caller: they use the Manager's base context,
//	so an HTTP request ending does not end its chain. Starting a chain whose
//	start node already has a running chain returns that run. Only the
//	most recent finished runs are kept (DefaultKeepFinished); older ones
//	are forgotten as new runs finish. Running chains are never dropped.
//
// Thread Safety:
//
//	Safe for concurrent use.
type Manager struct {
	exec *Executor
	base context.Context

	mu       sync.Mutex
	runs     map[string]*runEntry
	active   map[string]string // start node id -> run id
	finished []string          // run ids, oldest finish first
	keep     int
	wg       sync.WaitGroup
}

// NewManager creates a manager whose runs live as long as base.
func NewManager(base context.Context, exec *Executor) *Manager {
	return &Manager{
		exec:   exec,
		base:   base,
		runs:   make(map[string]*runEntry),
		active: make(map[string]string),
		keep:   DefaultKeepFinished,
	}
}

// Start launches the chain ending at startNodeID.
//
// Outputs:
//
//	Run - The new run, or the run already active for startNodeID.
//	error - Discovery errors (graph.ErrNodeNotFound, ErrNotChainable).
func (m *Manager) Start(startNodeID string) (Run, error) {
	if _, err := Discover(m.exec.store.Snapshot(), startNodeID); err != nil {
		return Run{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.active[startNodeID]; ok {
		return m.runs[id].run, nil
	}

	entry := &runEntry{
		run: Run{
			ID:          uuid.NewString(),
			StartNodeID: startNodeID,
			State:       RunRunning,
			StartedAt:   time.Now().UTC(),
		},
		stop: NewStopFlag(),
	}
	m.runs[entry.run.ID] = entry
	m.active[startNodeID] = entry.run.ID

	m.wg.Add(1)
	go m.execute(entry.run.ID, startNodeID, entry.stop)
	return entry.run, nil
}

func (m *Manager) execute(id, startNodeID string, stop *StopFlag) {
	defer m.wg.Done()
	result, err := m.exec.Run(m.base, startNodeID, stop)

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.active, startNodeID)
	entry := m.runs[id]
	now := time.Now().UTC()
	entry.run.FinishedAt = &now
	entry.run.Result = result

	switch {
	case err != nil:
		entry.run.State = RunFailed
		entry.run.Error = err.Error()
	case result != nil && result.Stopped:
		entry.run.State = RunStopped
	default:
		entry.run.State = RunCompleted
	}

	m.finished = append(m.finished, id)
	for len(m.finished) > m.keep {
		delete(m.runs, m.finished[0])
		m.finished = m.finished[1:]
	}
}

// Get returns a copy of the run with the given id.
func (m *Manager) Get(id string) (Run, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.runs[id]
	if !ok {
		return Run{}, false
	}
	return entry.run, true
}

// List returns all known runs, newest first.
func (m *Manager) List() []Run {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Run, 0, len(m.runs))
	for _, entry := range m.runs {
		out = append(out, entry.run)
	}
	sortRuns(out)
	return out
}

// Stop requests a stop of run id. Stopping a finished run is a no-op.
func (m *Manager) Stop(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.runs[id]
	if !ok {
		return ErrRunNotFound
	}
	entry.stop.Stop()
	return nil
}

// Wait blocks until every started run has finished or ctx ends.
func (m *Manager) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Join(errors.New("chain runs still active"), ctx.Err())
	}
}

func sortRuns(runs []Run) {
	slices.SortFunc(runs, func(a, b Run) int {
		return b.StartedAt.Compare(a.StartedAt)
	})
}
