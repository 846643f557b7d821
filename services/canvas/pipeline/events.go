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

import "time"

// EventType names a chain lifecycle event.
type EventType string

const (
	EventStepStarted    EventType = "step_started"
	EventStepCompleted  EventType = "step_completed"
	EventChainStopped   EventType = "chain_stopped"
	EventChainFailed    EventType = "chain_failed"
	EventChainCompleted EventType = "chain_completed"
)

// Event reports progress of a chain run.
type Event struct {
	Type        EventType `json:"type"`
	ChainID     string    `json:"chainId"`
	StartNodeID string    `json:"startNodeId"`
	Step        Step      `json:"step,omitempty"`
	NodeID      string    `json:"nodeId,omitempty"`
	Error       string    `json:"error,omitempty"`
	Time        time.Time `json:"time"`
}

// Observer receives chain events. OnEvent is called synchronously from the
// chain's goroutine and must not block.
type Observer interface {
	OnEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) OnEvent(e Event) { f(e) }

// Observers fans an event out to several observers in order.
type Observers []Observer

func (o Observers) OnEvent(e Event) {
	for _, obs := range o {
		if obs != nil {
			obs.OnEvent(e)
		}
	}
}
