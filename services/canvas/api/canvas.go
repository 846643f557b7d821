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
	"log/slog"
	"net/http"

	"github.com/AleutianAI/AleutianCanvas/services/canvas/flow"
	"github.com/AleutianAI/AleutianCanvas/services/canvas/graph"
	"github.com/AleutianAI/AleutianCanvas/services/canvas/payload"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// =============================================================================
// Request / Response Types
// =============================================================================

// AddNodeRequest creates a node. A blank ID is assigned; a blank Value
// starts the node with the empty shape of its kind.
type AddNodeRequest struct {
	ID       string         `json:"id" validate:"omitempty,max=128"`
	Kind     graph.NodeKind `json:"type" validate:"required"`
	Value    string         `json:"value"`
	Position graph.Position `json:"position"`
	Width    float64        `json:"width" validate:"gte=0"`
	Height   float64        `json:"height" validate:"gte=0"`
}

// SetValueRequest replaces a node's stored value.
type SetValueRequest struct {
	Value string `json:"value"`
}

// ConnectRequest joins an output port to an input port.
type ConnectRequest struct {
	ID           string `json:"id" validate:"omitempty,max=128"`
	FromNodeID   string `json:"fromNodeId" validate:"required"`
	ToNodeID     string `json:"toNodeId" validate:"required,nefield=FromNodeID"`
	FromHandleID string `json:"fromHandleId"`
	ToHandleID   string `json:"toHandleId"`
}

// ResolveResponse is the value a node emits on one output port.
type ResolveResponse struct {
	NodeID string `json:"nodeId"`
	Handle string `json:"handle"`
	Value  string `json:"value"`
}

// LayoutResponse lists the output port positions of a node.
type LayoutResponse struct {
	NodeID string              `json:"nodeId"`
	Ports  []flow.PortPosition `json:"ports"`
}

// VersionResponse reports the store version after a write.
type VersionResponse struct {
	Version uint64 `json:"version"`
}

// =============================================================================
// Handlers
// =============================================================================

func (s *Server) getCanvas(c *gin.Context) {
	c.JSON(http.StatusOK, graph.NewCanvasFile(s.store.Snapshot()))
}

func (s *Server) putCanvas(c *gin.Context) {
	snap, err := graph.Decode(c.Request.Body)
	if err != nil {
		badRequest(c, "invalid canvas", err)
		return
	}
	next, err := s.store.Replace(snap.Nodes(), snap.Connections())
	if err != nil {
		abortWithError(c, s.logger, "failed to replace canvas", err)
		return
	}
	s.logger.Info("canvas replaced",
		slog.Int("nodes", next.Len()),
		slog.Uint64("version", next.Version()),
	)
	c.JSON(http.StatusOK, VersionResponse{Version: next.Version()})
}

func (s *Server) addNode(c *gin.Context) {
	var req AddNodeRequest
	if !bindJSON(c, &req) {
		return
	}
	n := graph.Node{
		ID:       req.ID,
		Kind:     req.Kind,
		Value:    req.Value,
		Position: req.Position,
		Width:    req.Width,
		Height:   req.Height,
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Value == "" {
		if p := payload.Empty(n.Kind); p != nil {
			if v, err := payload.Encode(p); err == nil {
				n.Value = v
			}
		}
	}

	if _, err := s.store.AddNode(n); err != nil {
		abortWithError(c, s.logger, "failed to add node", err)
		return
	}
	c.JSON(http.StatusCreated, n)
}

func (s *Server) removeNode(c *gin.Context) {
	next, err := s.store.RemoveNode(c.Param("id"))
	if err != nil {
		abortWithError(c, s.logger, "failed to remove node", err)
		return
	}
	c.JSON(http.StatusOK, VersionResponse{Version: next.Version()})
}

func (s *Server) setNodeValue(c *gin.Context) {
	var req SetValueRequest
	if !bindJSON(c, &req) {
		return
	}
	id := c.Param("id")
	next, err := s.store.SetNodeValue(id, req.Value)
	if err != nil {
		abortWithError(c, s.logger, "failed to set node value", err)
		return
	}
	n, _ := next.Node(id)
	c.JSON(http.StatusOK, n)
}

func (s *Server) connect(c *gin.Context) {
	var req ConnectRequest
	if !bindJSON(c, &req) {
		return
	}
	conn := graph.Connection{
		ID:           req.ID,
		FromNodeID:   req.FromNodeID,
		ToNodeID:     req.ToNodeID,
		FromHandleID: req.FromHandleID,
		ToHandleID:   req.ToHandleID,
	}
	if conn.ID == "" {
		conn.ID = uuid.NewString()
	}
	if _, err := s.store.Connect(conn); err != nil {
		abortWithError(c, s.logger, "failed to connect nodes", err)
		return
	}
	c.JSON(http.StatusCreated, conn)
}

func (s *Server) disconnect(c *gin.Context) {
	next, err := s.store.Disconnect(c.Param("id"))
	if err != nil {
		abortWithError(c, s.logger, "failed to remove connection", err)
		return
	}
	c.JSON(http.StatusOK, VersionResponse{Version: next.Version()})
}

// resolve reports the value a node emits on ?handle= (default port when
// absent). Unknown nodes are a 404 here even though the resolver itself
// answers "" for them, so the editor can tell a typo from an empty port.
func (s *Server) resolve(c *gin.Context) {
	id := c.Param("id")
	handle := c.Query("handle")
	snap := s.store.Snapshot()
	if _, ok := snap.Node(id); !ok {
		abortWithError(c, s.logger, "failed to resolve node", &graph.NodeError{NodeID: id, Err: graph.ErrNodeNotFound})
		return
	}
	c.JSON(http.StatusOK, ResolveResponse{
		NodeID: id,
		Handle: handle,
		Value:  flow.Resolve(snap, id, handle),
	})
}

func (s *Server) layout(c *gin.Context) {
	id := c.Param("id")
	n, ok := s.store.Snapshot().Node(id)
	if !ok {
		abortWithError(c, s.logger, "failed to lay out node", &graph.NodeError{NodeID: id, Err: graph.ErrNodeNotFound})
		return
	}
	c.JSON(http.StatusOK, LayoutResponse{NodeID: id, Ports: flow.Layout(n)})
}

// runNode runs one node's generation synchronously and returns the
// updated node. A failed run still stores the error text on the node.
func (s *Server) runNode(c *gin.Context) {
	n, err := s.runner.RunNode(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, s.logger, "node run failed", err)
		return
	}
	c.JSON(http.StatusOK, n)
}
