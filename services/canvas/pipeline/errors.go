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
	"errors"
	"fmt"
)

var (
	// ErrNotRunnable is returned for node kinds with no generation handler.
	ErrNotRunnable = errors.New("node kind cannot be run")

	// ErrNotChainable is returned when a chain is started on a node that
	// does not end a script chain.
	ErrNotChainable = errors.New("node does not end a script chain")

	// ErrChainStopped is raised between steps when a stop was requested.
	// Executor.Run swallows it and reports ChainResult.Stopped instead.
	ErrChainStopped = errors.New("chain stopped")

	// ErrMissingInput is returned when a node has neither a connected nor
	// a local value to generate from.
	ErrMissingInput = errors.New("node has no input")

	// ErrInvalidInput is returned for missing constructor arguments.
	ErrInvalidInput = errors.New("invalid input")

	// ErrRunNotFound is returned for unknown chain run ids.
	ErrRunNotFound = errors.New("chain run not found")
)

// StepError attaches the failing chain step to an underlying error.
type StepError struct {
	Step   Step
	NodeID string
	Err    error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s step on node %q: %v", e.Step, e.NodeID, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}
