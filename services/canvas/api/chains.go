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

	"github.com/AleutianAI/AleutianCanvas/services/canvas/pipeline"
	"github.com/gin-gonic/gin"
)

// StartChainRequest starts a script chain ending at StartNodeID.
type StartChainRequest struct {
	StartNodeID string `json:"startNodeId" validate:"required"`
}

func (s *Server) startChain(c *gin.Context) {
	var req StartChainRequest
	if !bindJSON(c, &req) {
		return
	}
	run, err := s.runs.Start(req.StartNodeID)
	if err != nil {
		abortWithError(c, s.logger, "failed to start chain", err)
		return
	}
	s.logger.Info("chain started",
		slog.String("run_id", run.ID),
		slog.String("start_node", run.StartNodeID),
	)
	c.JSON(http.StatusAccepted, run)
}

func (s *Server) listChains(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"runs": s.runs.List()})
}

func (s *Server) getChain(c *gin.Context) {
	run, ok := s.runs.Get(c.Param("id"))
	if !ok {
		abortWithError(c, s.logger, "chain run not found", pipeline.ErrRunNotFound)
		return
	}
	c.JSON(http.StatusOK, run)
}

// stopChain requests a stop and returns the run. The run may still report
// "running" until the current step returns.
func (s *Server) stopChain(c *gin.Context) {
	id := c.Param("id")
	if err := s.runs.Stop(id); err != nil {
		abortWithError(c, s.logger, "failed to stop chain", err)
		return
	}
	run, _ := s.runs.Get(id)
	c.JSON(http.StatusAccepted, run)
}
