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

// NodeKind identifies the type of a canvas node. The set is closed: every
// kind has a payload shape in package payload and a behavior in package flow.
type NodeKind string

const (
	KindTextInput              NodeKind = "TEXT_INPUT"
	KindNote                   NodeKind = "NOTE"
	KindRerouteDot             NodeKind = "REROUTE_DOT"
	KindTranslator             NodeKind = "TRANSLATOR"
	KindPromptAnalyzer         NodeKind = "PROMPT_ANALYZER"
	KindPromptImprover         NodeKind = "PROMPT_IMPROVER"
	KindPromptSanitizer        NodeKind = "PROMPT_SANITIZER"
	KindIdeaGenerator          NodeKind = "IDEA_GENERATOR"
	KindCharacterGenerator     NodeKind = "CHARACTER_GENERATOR"
	KindCharacterCard          NodeKind = "CHARACTER_CARD"
	KindScriptGenerator        NodeKind = "SCRIPT_GENERATOR"
	KindScriptAnalyzer         NodeKind = "SCRIPT_ANALYZER"
	KindScriptPromptModifier   NodeKind = "SCRIPT_PROMPT_MODIFIER"
	KindImageInput             NodeKind = "IMAGE_INPUT"
	KindImageGenerator         NodeKind = "IMAGE_GENERATOR"
	KindImageEditor            NodeKind = "IMAGE_EDITOR"
	KindImageSequenceGenerator NodeKind = "IMAGE_SEQUENCE_GENERATOR"
	KindAudioGenerator         NodeKind = "AUDIO_GENERATOR"
	KindYouTubeTitleGenerator  NodeKind = "YOUTUBE_TITLE_GENERATOR"
	KindYouTubeAnalytics       NodeKind = "YOUTUBE_ANALYTICS"
	KindChat                   NodeKind = "CHAT"
	KindDataReader             NodeKind = "DATA_READER"
)

var allKinds = []NodeKind{
	KindTextInput,
	KindNote,
	KindRerouteDot,
	KindTranslator,
	KindPromptAnalyzer,
	KindPromptImprover,
	KindPromptSanitizer,
	KindIdeaGenerator,
	KindCharacterGenerator,
	KindCharacterCard,
	KindScriptGenerator,
	KindScriptAnalyzer,
	KindScriptPromptModifier,
	KindImageInput,
	KindImageGenerator,
	KindImageEditor,
	KindImageSequenceGenerator,
	KindAudioGenerator,
	KindYouTubeTitleGenerator,
	KindYouTubeAnalytics,
	KindChat,
	KindDataReader,
}

var kindSet = func() map[NodeKind]struct{} {
	m := make(map[NodeKind]struct{}, len(allKinds))
	for _, k := range allKinds {
		m[k] = struct{}{}
	}
	return m
}()

// AllKinds returns every known node kind in declaration order.
func AllKinds() []NodeKind {
	out := make([]NodeKind, len(allKinds))
	copy(out, allKinds)
	return out
}

// Valid reports whether k is a known kind.
func (k NodeKind) Valid() bool {
	_, ok := kindSet[k]
	return ok
}

// IsPassThrough reports whether the kind only forwards its upstream value.
func (k NodeKind) IsPassThrough() bool {
	return k == KindRerouteDot
}

// IsLeafText reports whether the kind stores raw text returned verbatim.
func (k NodeKind) IsLeafText() bool {
	return k == KindTextInput || k == KindNote
}

// IsAggregator reports whether the kind merges its own value with values
// resolved from its inbound connections.
func (k NodeKind) IsAggregator() bool {
	return k == KindScriptGenerator || k == KindScriptAnalyzer
}
