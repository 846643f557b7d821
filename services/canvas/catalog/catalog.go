// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package catalog stores reusable node groups and named canvases.
//
// A catalog entry is a small self-contained graph (nodes plus the
// connections between them) that can be dropped onto any canvas. Entries
// and canvases live in BadgerDB under "catalog/<id>" and "canvas/<name>".
// The whole catalog can be exported to, and imported from, a JSON envelope
// tagged with the application name so foreign files are rejected.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianCanvas/services/canvas/graph"
	"github.com/AleutianAI/AleutianCanvas/services/canvas/storage/badger"
)

const (
	// CatalogContext is the context tag of a catalog export.
	CatalogContext = "catalog"

	// ExportVersion is the current catalog export format version.
	ExportVersion = 1

	// MaxNameLength bounds entry and canvas names.
	MaxNameLength = 120

	entryPrefix  = "catalog/"
	canvasPrefix = "canvas/"
)

var (
	// ErrNotFound is returned for unknown entry ids and canvas names.
	ErrNotFound = errors.New("catalog item not found")

	// ErrForeignExport is returned when an import was not produced by this
	// application's catalog export.
	ErrForeignExport = errors.New("file is not an Aleutian canvas catalog export")

	// ErrUnsupportedVersion is returned for export versions this build
	// cannot read.
	ErrUnsupportedVersion = errors.New("unsupported catalog export version")

	// ErrInvalidEntry is returned when an entry fails validation.
	ErrInvalidEntry = errors.New("invalid catalog entry")
)

var validate = validator.New()

// Entry is a reusable group of nodes.
type Entry struct {
	ID          string             `json:"id"`
	Name        string             `json:"name" validate:"required,max=120"`
	Description string             `json:"description,omitempty" validate:"max=2000"`
	Nodes       []graph.Node       `json:"nodes" validate:"required,min=1"`
	Connections []graph.Connection `json:"connections"`
	CreatedAt   time.Time          `json:"createdAt"`
}

// Export is the file form of the whole catalog.
type Export struct {
	App        string    `json:"app"`
	Context    string    `json:"context"`
	Version    int       `json:"version"`
	ExportedAt time.Time `json:"exportedAt"`
	Entries    []Entry   `json:"entries"`
}

// Catalog is the persistent catalog.
//
// Thread Safety:
//
//	Safe for concurrent use; every operation runs in its own transaction.
type Catalog struct {
	db     *badger.DB
	logger *slog.Logger
	now    func() time.Time
}

// New creates a catalog on db. A nil logger uses slog.Default().
func New(db *badger.DB, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{
		db:     db,
		logger: logger.With(slog.String("component", "catalog")),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// =============================================================================
// Entries
// =============================================================================

// Save stores e, assigning an id and creation time if it has none.
//
// Description:
//
//	The entry must have a name and at least one node, and its nodes and
//	connections must form a valid graph on their own: every connection
//	joins two nodes of the entry. Saving an existing id replaces it.
//
// Outputs:
//
//	Entry - The stored entry.
//	error - ErrInvalidEntry (wrapping the cause) or a storage error.
func (c *Catalog) Save(ctx context.Context, e Entry) (Entry, error) {
	e, err := c.prepare(e)
	if err != nil {
		return Entry{}, err
	}
	if err := c.db.PutJSON(ctx, entryPrefix+e.ID, e); err != nil {
		return Entry{}, err
	}
	c.logger.Info("catalog entry saved",
		slog.String("id", e.ID),
		slog.String("name", e.Name),
		slog.Int("nodes", len(e.Nodes)),
	)
	return e, nil
}

// prepare validates e and fills in its id, creation time and connections.
func (c *Catalog) prepare(e Entry) (Entry, error) {
	e.Name = strings.TrimSpace(e.Name)
	if err := checkEntry(e); err != nil {
		return Entry{}, err
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = c.now()
	}
	if e.Connections == nil {
		e.Connections = []graph.Connection{}
	}
	return e, nil
}

func checkEntry(e Entry) error {
	if err := validate.Struct(e); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	if _, err := graph.NewSnapshot(e.Nodes, e.Connections); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	return nil
}

// Get returns the entry with the given id.
func (c *Catalog) Get(ctx context.Context, id string) (Entry, error) {
	var e Entry
	if err := c.db.GetJSON(ctx, entryPrefix+id, &e); err != nil {
		return Entry{}, mapNotFound(err, "entry", id)
	}
	return e, nil
}

// List returns every entry sorted by name, then id.
func (c *Catalog) List(ctx context.Context) ([]Entry, error) {
	entries := []Entry{}
	err := c.db.ScanJSON(ctx, entryPrefix, func(key string, raw []byte) error {
		var e Entry
		if err := json.Unmarshal(raw, &e); err != nil {
			// One damaged record must not hide the rest of the catalog.
			c.logger.Warn("skipping unreadable catalog entry",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
			return nil
		}
		entries = append(entries, e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(entries, func(a, b Entry) int {
		if n := strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)); n != 0 {
			return n
		}
		return strings.Compare(a.ID, b.ID)
	})
	return entries, nil
}

// Delete removes the entry with the given id.
func (c *Catalog) Delete(ctx context.Context, id string) error {
	if err := c.db.Delete(ctx, entryPrefix+id); err != nil {
		return mapNotFound(err, "entry", id)
	}
	c.logger.Info("catalog entry deleted", slog.String("id", id))
	return nil
}

// =============================================================================
// Export and import
// =============================================================================

// Export returns the whole catalog in its tagged envelope.
func (c *Catalog) Export(ctx context.Context) (Export, error) {
	entries, err := c.List(ctx)
	if err != nil {
		return Export{}, err
	}
	return Export{
		App:        graph.AppName,
		Context:    CatalogContext,
		Version:    ExportVersion,
		ExportedAt: c.now(),
		Entries:    entries,
	}, nil
}

// WriteExport writes the catalog export to w as indented JSON.
func (c *Catalog) WriteExport(ctx context.Context, w io.Writer) error {
	exp, err := c.Export(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(exp)
}

// Import reads a catalog export and saves every entry in it.
//
// Description:
//
//	The envelope must carry this application's name and the catalog
//	context tag. Every entry is validated first and all of them are
//	written in one transaction, so a bad file or a failed write changes
//	nothing. Entries keep their ids; an imported id that already exists
//	replaces the stored entry.
//
// Outputs:
//
//	int - Number of entries imported.
//	error - ErrForeignExport, ErrUnsupportedVersion, ErrInvalidEntry, or a
//	        decode or storage error.
func (c *Catalog) Import(ctx context.Context, r io.Reader) (int, error) {
	var exp Export
	if err := json.NewDecoder(r).Decode(&exp); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrForeignExport, err)
	}
	if exp.App != graph.AppName || exp.Context != CatalogContext {
		return 0, fmt.Errorf("%w: app=%q context=%q", ErrForeignExport, exp.App, exp.Context)
	}
	if exp.Version < 1 || exp.Version > ExportVersion {
		return 0, fmt.Errorf("%w: %d", ErrUnsupportedVersion, exp.Version)
	}

	docs := make([]badger.Doc, 0, len(exp.Entries))
	for i, e := range exp.Entries {
		e, err := c.prepare(e)
		if err != nil {
			return 0, fmt.Errorf("entry %d (%q): %w", i, strings.TrimSpace(exp.Entries[i].Name), err)
		}
		docs = append(docs, badger.Doc{Key: entryPrefix + e.ID, Value: e})
	}
	if err := c.db.PutJSONBatch(ctx, docs); err != nil {
		return 0, err
	}
	c.logger.Info("catalog imported", slog.Int("entries", len(exp.Entries)))
	return len(exp.Entries), nil
}

// =============================================================================
// Instantiation
// =============================================================================

// Instantiate copies entry id onto the canvas held by store.
//
// Description:
//
//	Every node and connection gets a fresh id; connections are remapped
//	to the new node ids and node positions are shifted by offset. The copy
//	is added in a single store update, so either all of it appears or none.
//
// Outputs:
//
//	[]graph.Node - The added nodes.
//	error - ErrNotFound, or a graph validation error.
func (c *Catalog) Instantiate(ctx context.Context, id string, store *graph.Store, offset graph.Position) ([]graph.Node, error) {
	e, err := c.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	ids := make(map[string]string, len(e.Nodes))
	added := make([]graph.Node, 0, len(e.Nodes))
	for _, n := range e.Nodes {
		ids[n.ID] = uuid.NewString()
		n.ID = ids[n.ID]
		n.Position.X += offset.X
		n.Position.Y += offset.Y
		added = append(added, n)
	}

	_, err = store.Update(func(d *graph.Draft) error {
		for _, n := range added {
			if err := d.AddNode(n); err != nil {
				return err
			}
		}
		for _, conn := range e.Connections {
			conn.ID = uuid.NewString()
			conn.FromNodeID = ids[conn.FromNodeID]
			conn.ToNodeID = ids[conn.ToNodeID]
			if err := d.Connect(conn); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.logger.Info("catalog entry instantiated",
		slog.String("id", id),
		slog.Int("nodes", len(added)),
	)
	return added, nil
}

// =============================================================================
// Named canvases
// =============================================================================

// SaveCanvas stores snap under name as a canvas file envelope.
func (c *Catalog) SaveCanvas(ctx context.Context, name string, snap *graph.Snapshot) error {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > MaxNameLength {
		return fmt.Errorf("%w: canvas name must be 1-%d characters", ErrInvalidEntry, MaxNameLength)
	}
	return c.db.PutJSON(ctx, canvasPrefix+name, graph.NewCanvasFile(snap))
}

// LoadCanvas reads the canvas stored under name.
func (c *Catalog) LoadCanvas(ctx context.Context, name string) (*graph.Snapshot, error) {
	var raw json.RawMessage
	if err := c.db.GetJSON(ctx, canvasPrefix+strings.TrimSpace(name), &raw); err != nil {
		return nil, mapNotFound(err, "canvas", name)
	}
	return graph.Decode(bytes.NewReader(raw))
}

// ListCanvases returns the names of all stored canvases in key order.
func (c *Catalog) ListCanvases(ctx context.Context) ([]string, error) {
	names := []string{}
	err := c.db.ScanJSON(ctx, canvasPrefix, func(key string, _ []byte) error {
		names = append(names, strings.TrimPrefix(key, canvasPrefix))
		return nil
	})
	return names, err
}

func mapNotFound(err error, what, id string) error {
	if errors.Is(err, badger.ErrNotFound) {
		return fmt.Errorf("%w: %s %q", ErrNotFound, what, id)
	}
	return err
}
