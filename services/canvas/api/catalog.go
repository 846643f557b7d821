// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package api

import (
	"net/http"

	"github.com/AleutianAI/AleutianCanvas/services/canvas/catalog"
	"github.com/AleutianAI/AleutianCanvas/services/canvas/graph"
	"github.com/gin-gonic/gin"
)

// SaveEntryRequest stores the given canvas nodes as a catalog entry. Only
// connections between the selected nodes are kept.
type SaveEntryRequest struct {
	Name        string   `json:"name" validate:"required,max=120"`
	Description string   `json:"description" validate:"max=2000"`
	NodeIDs     []string `json:"nodeIds" validate:"required,min=1,dive,required"`
}

// InstantiateRequest places a copy of an entry on the canvas, shifted by
// the offset.
type InstantiateRequest struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (s *Server) listCatalog(c *gin.Context) {
	entries, err := s.catalog.List(c.Request.Context())
	if err != nil {
		abortWithError(c, s.logger, "failed to list catalog", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (s *Server) saveCatalogEntry(c *gin.Context) {
	var req SaveEntryRequest
	if !bindJSON(c, &req) {
		return
	}

	snap := s.store.Snapshot()
	selected := make(map[string]struct{}, len(req.NodeIDs))
	entry := catalog.Entry{Name: req.Name, Description: req.Description}
	for _, id := range req.NodeIDs {
		if _, dup := selected[id]; dup {
			continue
		}
		n, ok := snap.Node(id)
		if !ok {
			abortWithError(c, s.logger, "failed to save catalog entry", &graph.NodeError{NodeID: id, Err: graph.ErrNodeNotFound})
			return
		}
		selected[id] = struct{}{}
		entry.Nodes = append(entry.Nodes, n)
	}
	for _, conn := range snap.Connections() {
		_, from := selected[conn.FromNodeID]
		_, to := selected[conn.ToNodeID]
		if from && to {
			entry.Connections = append(entry.Connections, conn)
		}
	}

	saved, err := s.catalog.Save(c.Request.Context(), entry)
	if err != nil {
		abortWithError(c, s.logger, "failed to save catalog entry", err)
		return
	}
	c.JSON(http.StatusCreated, saved)
}

func (s *Server) getCatalogEntry(c *gin.Context) {
	e, err := s.catalog.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, s.logger, "failed to read catalog entry", err)
		return
	}
	c.JSON(http.StatusOK, e)
}

func (s *Server) deleteCatalogEntry(c *gin.Context) {
	if err := s.catalog.Delete(c.Request.Context(), c.Param("id")); err != nil {
		abortWithError(c, s.logger, "failed to delete catalog entry", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) exportCatalog(c *gin.Context) {
	export, err := s.catalog.Export(c.Request.Context())
	if err != nil {
		abortWithError(c, s.logger, "failed to export catalog", err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="canvas-catalog.json"`)
	c.JSON(http.StatusOK, export)
}

func (s *Server) importCatalog(c *gin.Context) {
	n, err := s.catalog.Import(c.Request.Context(), c.Request.Body)
	if err != nil {
		abortWithError(c, s.logger, "failed to import catalog", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"imported": n})
}

func (s *Server) instantiate(c *gin.Context) {
	var req InstantiateRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}
	nodes, err := s.catalog.Instantiate(c.Request.Context(), c.Param("id"), s.store, graph.Position{X: req.X, Y: req.Y})
	if err != nil {
		abortWithError(c, s.logger, "failed to instantiate catalog entry", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"nodes": nodes})
}
