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
	"github.com/AleutianAI/AleutianCanvas/services/canvas/graph"
)

// Step names one stage of the script chain.
type Step string

const (
	StepGenerate Step = "generate"
	StepAnalyze  Step = "analyze"
	StepModify   Step = "modify"
)

// ChainStep binds a step to the node it runs on.
type ChainStep struct {
	Step   Step   `json:"step"`
	NodeID string `json:"nodeId"`
}

// Chain is the ordered list of steps ending at StartNodeID.
type Chain struct {
	StartNodeID string      `json:"startNodeId"`
	Steps       []ChainStep `json:"steps"`
}

// Discover finds the script chain that ends at startNodeID.
//
// Description:
//
//	Walks inbound connections backwards, skipping reroute dots, collecting
//	SCRIPT_PROMPT_MODIFIER <- SCRIPT_ANALYZER <- SCRIPT_GENERATOR. A
//	missing upstream link shortens the chain. Steps are returned in run
//	order: generate, analyze, modify.
//
// Outputs:
//
//	*Chain - The discovered chain.
//	error - graph.ErrNodeNotFound for an unknown start node, ErrNotChainable
//	        when the start node is neither a prompt modifier nor an analyzer.
func Discover(snap *graph.Snapshot, startNodeID string) (*Chain, error) {
	start, ok := snap.Node(startNodeID)
	if !ok {
		return nil, &graph.NodeError{NodeID: startNodeID, Err: graph.ErrNodeNotFound}
	}

	var steps []ChainStep
	analyzerID := ""
	switch start.Kind {
	case graph.KindScriptPromptModifier:
		steps = append(steps, ChainStep{Step: StepModify, NodeID: start.ID})
		if an, ok := upstreamOfKind(snap, start.ID, graph.KindScriptAnalyzer); ok {
			analyzerID = an.ID
		}
	case graph.KindScriptAnalyzer:
		analyzerID = start.ID
	default:
		return nil, &graph.NodeError{NodeID: startNodeID, Err: ErrNotChainable}
	}

	if analyzerID != "" {
		steps = append(steps, ChainStep{Step: StepAnalyze, NodeID: analyzerID})
		if gen, ok := upstreamOfKind(snap, analyzerID, graph.KindScriptGenerator); ok {
			steps = append(steps, ChainStep{Step: StepGenerate, NodeID: gen.ID})
		}
	}

	// Collected end to start; run start to end.
	for i, k := 0, len(steps)-1; i < k; i, k = i+1, k-1 {
		steps[i], steps[k] = steps[k], steps[i]
	}
	return &Chain{StartNodeID: startNodeID, Steps: steps}, nil
}

// upstreamOfKind returns the first node of kind want feeding nodeID,
// looking through reroute dots.
func upstreamOfKind(snap *graph.Snapshot, nodeID string, want graph.NodeKind) (graph.Node, bool) {
	visited := map[string]bool{nodeID: true}
	queue := []string{nodeID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, c := range snap.Inbound(id) {
			if visited[c.FromNodeID] {
				continue
			}
			visited[c.FromNodeID] = true
			from, ok := snap.Node(c.FromNodeID)
			if !ok {
				continue
			}
			switch {
			case from.Kind == want:
				return from, true
			case from.Kind.IsPassThrough():
				queue = append(queue, from.ID)
			}
		}
	}
	return graph.Node{}, false
}
