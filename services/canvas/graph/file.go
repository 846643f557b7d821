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
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

const (
	// AppName tags every file this application exports.
	AppName = "aleutian-canvas"

	// CanvasContext is the context tag of a saved canvas.
	CanvasContext = "canvas"

	// CanvasFileVersion is the current canvas file format version.
	CanvasFileVersion = 1
)

// CanvasFile is the on-disk form of a canvas.
type CanvasFile struct {
	App         string       `json:"app"`
	Context     string       `json:"context"`
	Version     int          `json:"version"`
	Nodes       []Node       `json:"nodes"`
	Connections []Connection `json:"connections"`
}

// NewCanvasFile wraps a snapshot in a tagged envelope.
func NewCanvasFile(snap *Snapshot) CanvasFile {
	return CanvasFile{
		App:         AppName,
		Context:     CanvasContext,
		Version:     CanvasFileVersion,
		Nodes:       snap.Nodes(),
		Connections: snap.Connections(),
	}
}

// Decode reads a canvas envelope and builds a snapshot from it. Files from
// other applications, or tagged with another context, are rejected.
func Decode(r io.Reader) (*Snapshot, error) {
	var f CanvasFile
	if err := json.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("decoding canvas: %w", err)
	}
	if f.App != AppName || f.Context != CanvasContext {
		return nil, fmt.Errorf("%w: app=%q context=%q", ErrForeignFile, f.App, f.Context)
	}
	if f.Version > CanvasFileVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrForeignFile, f.Version)
	}
	return NewSnapshot(f.Nodes, f.Connections)
}

// Encode writes snap as an indented canvas envelope.
func Encode(w io.Writer, snap *Snapshot) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(NewCanvasFile(snap))
}

// LoadFile reads a canvas file from disk.
func LoadFile(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	snap, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return snap, nil
}

// SaveFile writes snap to path. The file is written to a temporary sibling
// and renamed so a watcher never observes a half-written canvas.
func SaveFile(path string, snap *Snapshot) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".canvas-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if err := Encode(tmp, snap); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
