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
	"errors"
	"log/slog"
	"net/http"

	"github.com/AleutianAI/AleutianCanvas/services/canvas/catalog"
	"github.com/AleutianAI/AleutianCanvas/services/canvas/graph"
	"github.com/AleutianAI/AleutianCanvas/services/canvas/pipeline"
	"github.com/AleutianAI/AleutianCanvas/services/llm"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// statusFor maps a domain error to an HTTP status code.
func statusFor(err error) int {
	var verrs validator.ValidationErrors
	var svcErr *llm.ServiceError

	switch {
	case errors.Is(err, graph.ErrNodeNotFound),
		errors.Is(err, graph.ErrConnectionNotFound),
		errors.Is(err, catalog.ErrNotFound),
		errors.Is(err, pipeline.ErrRunNotFound):
		return http.StatusNotFound

	case errors.Is(err, graph.ErrDuplicateID):
		return http.StatusConflict

	case errors.As(err, &verrs),
		errors.Is(err, graph.ErrUnknownKind),
		errors.Is(err, graph.ErrSelfConnection),
		errors.Is(err, graph.ErrEmptyID),
		errors.Is(err, graph.ErrForeignFile),
		errors.Is(err, catalog.ErrForeignExport),
		errors.Is(err, catalog.ErrUnsupportedVersion),
		errors.Is(err, catalog.ErrInvalidEntry),
		errors.Is(err, pipeline.ErrNotRunnable),
		errors.Is(err, pipeline.ErrNotChainable),
		errors.Is(err, pipeline.ErrMissingInput):
		return http.StatusBadRequest

	case errors.Is(err, llm.ErrQuota):
		return http.StatusTooManyRequests

	case errors.As(err, &svcErr):
		return http.StatusBadGateway

	default:
		return http.StatusInternalServerError
	}
}

// abortWithError writes the mapped status and error body. Server-side
// failures are logged; client mistakes are not.
func abortWithError(c *gin.Context, logger *slog.Logger, msg string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error(msg,
			slog.String("path", c.FullPath()),
			slog.String("error", err.Error()),
		)
	}
	c.AbortWithStatusJSON(status, ErrorResponse{Error: msg, Details: err.Error()})
}

func badRequest(c *gin.Context, msg string, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Error: msg, Details: err.Error()})
}
