// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package payload defines the typed value stored in each kind of canvas node.
//
// # Description
//
//	A node's Value is a string. For most kinds it holds a JSON object whose
//	shape depends on the node kind; for leaf text kinds it is plain text.
//	Decode is the one place that string is parsed. It always returns a
//	usable payload: when the value is malformed the empty shape for the kind
//	(or, for a mistyped field, everything else that decoded) comes back
//	together with the decode error, and callers that must never fail (the
//	resolver) simply ignore the error.
package payload

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/AleutianAI/AleutianCanvas/services/canvas/graph"
)

var (
	// ErrMalformed is returned when a node value is not valid for its kind.
	ErrMalformed = errors.New("malformed node value")

	// ErrUnknownKind is returned for kinds with no registered payload.
	ErrUnknownKind = errors.New("no payload for node kind")
)

// Payload is the decoded value of one node.
type Payload interface {
	// Kind reports the node kind this payload belongs to.
	Kind() graph.NodeKind
}

var factories = map[graph.NodeKind]func() Payload{
	graph.KindTextInput:              func() Payload { return &Text{kind: graph.KindTextInput} },
	graph.KindNote:                   func() Payload { return &Text{kind: graph.KindNote} },
	graph.KindRerouteDot:             func() Payload { return &Reroute{} },
	graph.KindTranslator:             func() Payload { return &Translator{} },
	graph.KindPromptAnalyzer:         func() Payload { return &PromptAnalyzer{} },
	graph.KindPromptImprover:         func() Payload { return &PromptImprover{} },
	graph.KindPromptSanitizer:        func() Payload { return &PromptSanitizer{} },
	graph.KindIdeaGenerator:          func() Payload { return &IdeaGenerator{} },
	graph.KindCharacterGenerator:     func() Payload { return &CharacterGenerator{} },
	graph.KindCharacterCard:          func() Payload { return &CharacterCard{} },
	graph.KindScriptGenerator:        func() Payload { return &ScriptGenerator{} },
	graph.KindScriptAnalyzer:         func() Payload { return &ScriptAnalyzer{} },
	graph.KindScriptPromptModifier:   func() Payload { return &ScriptPromptModifier{} },
	graph.KindImageInput:             func() Payload { return &ImageInput{} },
	graph.KindImageGenerator:         func() Payload { return &ImageGenerator{} },
	graph.KindImageEditor:            func() Payload { return &ImageEditor{} },
	graph.KindImageSequenceGenerator: func() Payload { return &ImageSequenceGenerator{} },
	graph.KindAudioGenerator:         func() Payload { return &AudioGenerator{} },
	graph.KindYouTubeTitleGenerator:  func() Payload { return &YouTubeTitleGenerator{} },
	graph.KindYouTubeAnalytics:       func() Payload { return &YouTubeAnalytics{} },
	graph.KindChat:                   func() Payload { return &Chat{} },
	graph.KindDataReader:             func() Payload { return &DataReader{} },
}

// Empty returns the empty shape for kind, or nil for unknown kinds.
func Empty(kind graph.NodeKind) Payload {
	f, ok := factories[kind]
	if !ok {
		return nil
	}
	return f()
}

// Decode parses a node value into the payload type for kind.
//
// Inputs:
//
//	kind - The node kind.
//	raw - The stored node value. Blank means the empty shape.
//
// Outputs:
//
//	Payload - Never nil for a known kind. Invalid JSON gives the empty
//	          shape; a field of the wrong type is left zero and the other
//	          fields are kept.
//	error - ErrMalformed (wrapped) if raw does not fit the kind, or
//	        ErrUnknownKind.
func Decode(kind graph.NodeKind, raw string) (Payload, error) {
	p := Empty(kind)
	if p == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if t, ok := p.(*Text); ok {
		t.Text = decodeText(raw)
		return t, nil
	}
	if strings.TrimSpace(raw) == "" {
		return p, nil
	}
	if err := json.Unmarshal([]byte(raw), p); err != nil {
		// A mistyped field leaves the well-typed ones decoded.
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return p, fmt.Errorf("%w (%s): %v", ErrMalformed, kind, err)
		}
		return Empty(kind), fmt.Errorf("%w (%s): %v", ErrMalformed, kind, err)
	}
	return p, nil
}

// DecodeNode decodes n.Value using n.Kind.
func DecodeNode(n graph.Node) (Payload, error) {
	return Decode(n.Kind, n.Value)
}

// Encode serializes a payload back to a node value string.
func Encode(p Payload) (string, error) {
	if t, ok := p.(*Text); ok {
		return t.Text, nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// decodeText returns leaf text. A value that is a JSON string literal is
// unquoted; anything else is kept verbatim.
func decodeText(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if len(trimmed) >= 2 && trimmed[0] == '"' && trimmed[len(trimmed)-1] == '"' {
		var s string
		if err := json.Unmarshal([]byte(trimmed), &s); err == nil {
			return s
		}
	}
	return raw
}

// JSON marshals v for use as a port value. Marshal failures yield "".
func JSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
