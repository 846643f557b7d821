// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package llm is the generation service behind canvas nodes: text, image
// and audio in, text, image and audio out.
package llm

import "context"

// RequestKind selects the modality of a generation request.
type RequestKind string

const (
	KindText  RequestKind = "text"
	KindImage RequestKind = "image"
	KindAudio RequestKind = "audio"
)

type GenerationParams struct {
	Temperature *float32 `json:"temperature,omitempty"`
	TopP        *float32 `json:"top_p,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

// Request is one call to the generation service.
type Request struct {
	Kind RequestKind `json:"kind"`

	// Prompt is the user text, the image description, or the text to speak.
	Prompt string `json:"prompt"`

	// System is an optional system instruction for text requests.
	System string `json:"system,omitempty"`

	// JSON asks a text model for a single JSON object.
	JSON bool `json:"json,omitempty"`

	// Voice names the speech voice for audio requests.
	Voice string `json:"voice,omitempty"`

	// ImageInput is a data URL or bare base64 image. For image requests it
	// turns generation into an edit of that image.
	ImageInput string `json:"imageInput,omitempty"`

	Params GenerationParams `json:"params,omitempty"`
}

// Response carries exactly one of Text, Image or Audio, matching the
// request kind. Image and Audio are data URLs.
type Response struct {
	Text  string `json:"text,omitempty"`
	Image string `json:"image,omitempty"`
	Audio string `json:"audio,omitempty"`
	Model string `json:"model,omitempty"`
}

// Generator is the generation service.
type Generator interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}

// GenerateText is a convenience wrapper for text requests.
func GenerateText(ctx context.Context, g Generator, system, prompt string, asJSON bool) (string, error) {
	resp, err := g.Generate(ctx, Request{Kind: KindText, System: system, Prompt: prompt, JSON: asJSON})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}
