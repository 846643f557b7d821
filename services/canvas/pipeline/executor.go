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
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/AleutianAI/AleutianCanvas/services/canvas/graph"
	"github.com/google/uuid"
)

var (
	tracer = otel.Tracer("aleutian.canvas.pipeline")
	meter  = otel.Meter("aleutian.canvas.pipeline")
)

// StepResult records one completed step.
type StepResult struct {
	Step     Step          `json:"step"`
	NodeID   string        `json:"nodeId"`
	Duration time.Duration `json:"duration"`
}

// ChainResult is the outcome of one chain run. Results returned to
// coalesced callers are shared and must be treated as read-only.
type ChainResult struct {
	ChainID     string        `json:"chainId"`
	StartNodeID string        `json:"startNodeId"`
	Steps       []StepResult  `json:"steps"`
	Stopped     bool          `json:"stopped"`
	Error       string        `json:"error,omitempty"`
	Duration    time.Duration `json:"duration"`
}

// Executor runs script chains.
//
// Description:
//
//	Executor discovers the chain ending at a start node and runs its steps
//	in order. A fresh snapshot is read before each step. The stop flag is
//	checked before each step and again after each generation call; a stop
//	discards that step's output and ends the run without an error.
//
// Thread Safety:
//
//	Executor is safe for concurrent use. Concurrent runs for the same start
//	node are coalesced into one.
type Executor struct {
	store    *graph.Store
	runner   *Runner
	observer Observer
	logger   *slog.Logger
	group    singleflight.Group

	// Metrics (initialized lazily)
	metricsOnce   sync.Once
	stepLatency   metric.Float64Histogram
	chainLatency  metric.Float64Histogram
	chainOutcomes metric.Int64Counter
}

// NewExecutor creates a chain executor.
//
// Inputs:
//
//	store - The canvas store. Must not be nil.
//	runner - Runs each step. Must not be nil.
//	observer - Receives chain events. May be nil.
//	logger - Logger. If nil, uses slog.Default().
//
// Outputs:
//
//	*Executor - The configured executor.
//	error - ErrInvalidInput if store or runner is nil.
func NewExecutor(store *graph.Store, runner *Runner, observer Observer, logger *slog.Logger) (*Executor, error) {
	if store == nil || runner == nil {
		return nil, ErrInvalidInput
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		store:    store,
		runner:   runner,
		observer: observer,
		logger:   logger.With(slog.String("component", "chain")),
	}, nil
}

// initMetrics lazily initializes metrics.
// Logs errors if metric creation fails but continues execution (graceful degradation).
func (e *Executor) initMetrics() {
	e.metricsOnce.Do(func() {
		var initErrors []string

		var err error
		e.stepLatency, err = meter.Float64Histogram("canvas_chain_step_duration_seconds",
			metric.WithDescription("Time spent in each chain step"),
			metric.WithUnit("s"),
		)
		if err != nil {
			initErrors = append(initErrors, "step_latency: "+err.Error())
		}

		e.chainLatency, err = meter.Float64Histogram("canvas_chain_duration_seconds",
			metric.WithDescription("Total chain run time"),
			metric.WithUnit("s"),
		)
		if err != nil {
			initErrors = append(initErrors, "chain_latency: "+err.Error())
		}

		e.chainOutcomes, err = meter.Int64Counter("canvas_chain_runs_total",
			metric.WithDescription("Chain runs by outcome"),
		)
		if err != nil {
			initErrors = append(initErrors, "chain_outcomes: "+err.Error())
		}

		if len(initErrors) > 0 {
			e.logger.Error("failed to initialize some chain metrics (observability degraded)",
				slog.Int("failed_count", len(initErrors)),
				slog.Any("errors", initErrors),
			)
		}
	})
}

// Run executes the chain ending at startNodeID.
//
// Description:
//
//	Discovers the chain and runs generate, analyze and modify in that
//	order. A stop request is not an error: Run returns a result with
//	Stopped set and a nil error. Concurrent calls for the same start node
//	share the first caller's run, including its stop flag.
//
// Inputs:
//
//	ctx - Context for the generation calls. Must not be nil.
//	startNodeID - The last node of the chain.
//	stop - Stop flag checked between steps. May be nil.
//
// Outputs:
//
//	*ChainResult - The run result. Non-nil whenever the chain was discovered.
//	error - Discovery errors, or a *StepError for a failed step.
func (e *Executor) Run(ctx context.Context, startNodeID string, stop *StopFlag) (*ChainResult, error) {
	v, err, shared := e.group.Do(startNodeID, func() (any, error) {
		return e.run(ctx, startNodeID, stop)
	})
	if shared {
		e.logger.Debug("chain run coalesced", slog.String("start_node", startNodeID))
	}
	result, _ := v.(*ChainResult)
	return result, err
}

func (e *Executor) run(ctx context.Context, startNodeID string, stop *StopFlag) (*ChainResult, error) {
	e.initMetrics()

	chainID := uuid.NewString()[:12] // 48 bits of entropy
	ctx, span := tracer.Start(ctx, "canvas.Chain",
		trace.WithAttributes(
			attribute.String("chain.id", chainID),
			attribute.String("chain.start_node", startNodeID),
		),
	)
	defer span.End()

	start := time.Now()
	result := &ChainResult{ChainID: chainID, StartNodeID: startNodeID, Steps: []StepResult{}}

	chain, err := Discover(e.store.Snapshot(), startNodeID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("chain.steps", len(chain.Steps)))

	e.logger.Info("chain started",
		slog.String("chain_id", chainID),
		slog.String("start_node", startNodeID),
		slog.Int("steps", len(chain.Steps)),
	)

	err = e.runSteps(ctx, chainID, chain, stop, result)
	result.Duration = time.Since(start)
	if e.chainLatency != nil {
		e.chainLatency.Record(ctx, result.Duration.Seconds())
	}

	switch {
	case errors.Is(err, ErrChainStopped):
		result.Stopped = true
		span.SetAttributes(attribute.Bool("chain.stopped", true))
		e.countOutcome(ctx, "stopped")
		e.emit(Event{Type: EventChainStopped, ChainID: chainID, StartNodeID: startNodeID})
		e.logger.Info("chain stopped",
			slog.String("chain_id", chainID),
			slog.Int("steps_completed", len(result.Steps)),
		)
		return result, nil

	case err != nil:
		result.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.countOutcome(ctx, "failed")
		e.emit(Event{Type: EventChainFailed, ChainID: chainID, StartNodeID: startNodeID, Error: err.Error()})
		e.logger.Error("chain failed",
			slog.String("chain_id", chainID),
			slog.String("error", err.Error()),
		)
		return result, err
	}

	span.SetStatus(codes.Ok, "")
	e.countOutcome(ctx, "completed")
	e.emit(Event{Type: EventChainCompleted, ChainID: chainID, StartNodeID: startNodeID})
	e.logger.Info("chain completed",
		slog.String("chain_id", chainID),
		slog.Duration("duration", result.Duration),
		slog.Int("steps_completed", len(result.Steps)),
	)
	return result, nil
}

func (e *Executor) runSteps(ctx context.Context, chainID string, chain *Chain, stop *StopFlag, result *ChainResult) error {
	for _, st := range chain.Steps {
		if stop.Stopped() {
			return ErrChainStopped
		}
		if err := ctx.Err(); err != nil {
			return &StepError{Step: st.Step, NodeID: st.NodeID, Err: err}
		}
		if err := e.runStep(ctx, chainID, chain.StartNodeID, st, stop, result); err != nil {
			return err
		}
	}
	return nil
}

// runStep runs one step against a fresh snapshot. The output is stored
// only if no stop was requested while the generation call was in flight.
func (e *Executor) runStep(
	ctx context.Context,
	chainID, startNodeID string,
	st ChainStep,
	stop *StopFlag,
	result *ChainResult,
) error {
	ctx, span := tracer.Start(ctx, "canvas.Chain."+string(st.Step),
		trace.WithAttributes(
			attribute.String("chain.id", chainID),
			attribute.String("chain.step", string(st.Step)),
			attribute.String("chain.node", st.NodeID),
		),
	)
	defer span.End()

	e.emit(Event{Type: EventStepStarted, ChainID: chainID, StartNodeID: startNodeID, Step: st.Step, NodeID: st.NodeID})
	e.logger.Debug("step starting",
		slog.String("chain_id", chainID),
		slog.String("step", string(st.Step)),
		slog.String("node", st.NodeID),
	)

	stepStart := time.Now()
	out, err := e.runner.generate(ctx, e.store.Snapshot(), st.NodeID)
	duration := time.Since(stepStart)
	if e.stepLatency != nil {
		e.stepLatency.Record(ctx, duration.Seconds(),
			metric.WithAttributes(attribute.String("step", string(st.Step))),
		)
	}

	if err != nil {
		e.runner.recordFailure(st.NodeID, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return &StepError{Step: st.Step, NodeID: st.NodeID, Err: err}
	}

	if stop.Stopped() {
		e.logger.Info("step result discarded",
			slog.String("chain_id", chainID),
			slog.String("step", string(st.Step)),
		)
		return ErrChainStopped
	}

	if _, err := e.runner.commit(st.NodeID, out); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return &StepError{Step: st.Step, NodeID: st.NodeID, Err: err}
	}

	result.Steps = append(result.Steps, StepResult{Step: st.Step, NodeID: st.NodeID, Duration: duration})
	e.emit(Event{Type: EventStepCompleted, ChainID: chainID, StartNodeID: startNodeID, Step: st.Step, NodeID: st.NodeID})
	return nil
}

func (e *Executor) countOutcome(ctx context.Context, outcome string) {
	if e.chainOutcomes != nil {
		e.chainOutcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
}

func (e *Executor) emit(ev Event) {
	if e.observer == nil {
		return
	}
	ev.Time = time.Now()
	e.observer.OnEvent(ev)
}
