// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package api serves the canvas over HTTP for the browser editor.
//
// # Description
//
// The API exposes the graph store, the upstream value resolver, the port
// layout helper, single node runs, background chain runs with a stop
// control, and the node catalog. Chain progress is pushed to websocket
// clients at /v1/events/ws.
//
// # Error Mapping
//
//   - unknown node, connection, run, or catalog entry: 404
//   - validation failures and foreign imports: 400
//   - generation quota exceeded: 429
//   - other generation service failures: 502
//
// A stopped chain is a normal outcome and is never reported as an error.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/AleutianAI/AleutianCanvas/services/canvas/catalog"
	"github.com/AleutianAI/AleutianCanvas/services/canvas/graph"
	"github.com/AleutianAI/AleutianCanvas/services/canvas/pipeline"
	"github.com/AleutianAI/AleutianCanvas/services/canvas/telemetry"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// ServiceName tags the otelgin spans of this server.
const ServiceName = "aleutian-canvas"

var validate = validator.New()

// ErrMissingDependency is returned by NewServer when a required component
// is nil.
var ErrMissingDependency = errors.New("api: missing dependency")

// Deps are the components the server exposes. Catalog is optional; without
// it the catalog routes are not registered.
type Deps struct {
	Store   *graph.Store
	Runner  *pipeline.Runner
	Runs    *pipeline.Manager
	Hub     *Hub
	Catalog *catalog.Catalog
	Logger  *slog.Logger
}

// Server holds the router and its dependencies.
type Server struct {
	store   *graph.Store
	runner  *pipeline.Runner
	runs    *pipeline.Manager
	hub     *Hub
	catalog *catalog.Catalog
	logger  *slog.Logger
	router  *gin.Engine
}

// NewServer builds the router.
//
// Inputs:
//
//	d - Components to serve. Store, Runner, Runs, and Hub are required.
//
// Outputs:
//
//	*Server - Ready to serve via Handler or Run.
//	error - ErrMissingDependency naming the first nil component.
func NewServer(d Deps) (*Server, error) {
	switch {
	case d.Store == nil:
		return nil, fmt.Errorf("%w: store", ErrMissingDependency)
	case d.Runner == nil:
		return nil, fmt.Errorf("%w: runner", ErrMissingDependency)
	case d.Runs == nil:
		return nil, fmt.Errorf("%w: run manager", ErrMissingDependency)
	case d.Hub == nil:
		return nil, fmt.Errorf("%w: event hub", ErrMissingDependency)
	}
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		store:   d.Store,
		runner:  d.Runner,
		runs:    d.Runs,
		hub:     d.Hub,
		catalog: d.Catalog,
		logger:  logger.With(slog.String("component", "api")),
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(ServiceName))
	router.Use(metricsMiddleware())
	s.setupRoutes(router)
	s.router = router
	return s, nil
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx ends, then shuts down gracefully and
// disconnects event clients.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("canvas api listening", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.hub.Close()
		return err
	case <-ctx.Done():
	}

	s.hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down api: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) setupRoutes(router *gin.Engine) {
	router.GET("/health", s.health)
	router.GET("/metrics", s.metrics)

	v1 := router.Group("/v1")
	{
		canvas := v1.Group("/canvas")
		{
			canvas.GET("", s.getCanvas)
			canvas.PUT("", s.putCanvas)
			canvas.POST("/nodes", s.addNode)
			canvas.DELETE("/nodes/:id", s.removeNode)
			canvas.PUT("/nodes/:id/value", s.setNodeValue)
			canvas.GET("/nodes/:id/resolve", s.resolve)
			canvas.GET("/nodes/:id/layout", s.layout)
			canvas.POST("/nodes/:id/run", s.runNode)
			canvas.POST("/connections", s.connect)
			canvas.DELETE("/connections/:id", s.disconnect)
		}

		chains := v1.Group("/chains")
		{
			chains.GET("", s.listChains)
			chains.POST("", s.startChain)
			chains.GET("/:id", s.getChain)
			chains.POST("/:id/stop", s.stopChain)
		}

		v1.GET("/events/ws", s.hub.handleEvents)

		if s.catalog != nil {
			cat := v1.Group("/catalog")
			{
				cat.GET("", s.listCatalog)
				cat.POST("", s.saveCatalogEntry)
				cat.GET("/export", s.exportCatalog)
				cat.POST("/import", s.importCatalog)
				cat.GET("/:id", s.getCatalogEntry)
				cat.DELETE("/:id", s.deleteCatalogEntry)
				cat.POST("/:id/instantiate", s.instantiate)
			}
		}
	}
}

func (s *Server) health(c *gin.Context) {
	snap := s.store.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"version":   snap.Version(),
		"nodes":     snap.Len(),
		"clients":   s.hub.Clients(),
		"catalog":   s.catalog != nil,
		"timestamp": time.Now().UTC(),
	})
}

// metrics serves the otel Prometheus exporter when it is installed and
// the default registry otherwise, so promauto counters are always visible.
func (s *Server) metrics(c *gin.Context) {
	h := telemetry.MetricsHandler()
	if h == nil {
		h = defaultMetricsHandler
	}
	h.ServeHTTP(c.Writer, c.Request)
}

// bindJSON decodes and validates a request body. It writes the 400 reply
// itself and reports whether the handler should continue.
func bindJSON(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		badRequest(c, "invalid request body", err)
		return false
	}
	if err := validate.Struct(v); err != nil {
		badRequest(c, "invalid request body", err)
		return false
	}
	return true
}
