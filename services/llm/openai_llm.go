// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/sashabaranov/go-openai"
	"github.com/tmc/langchaingo/textsplitter"
)

// MaxSpeechInput is the provider's character limit for one speech call.
const MaxSpeechInput = 4096

const openAISecretPath = "/run/secrets/openai_api_key"

// OpenAIConfig configures an OpenAIGenerator. Zero fields take defaults.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	TextModel   string
	ImageModel  string
	ImageSize   string
	SpeechModel string
	Voice       string
	System      string
}

// ResolveOpenAIKey returns the API key from the config value, the
// OPENAI_API_KEY environment variable, or the mounted secret, in that order.
func ResolveOpenAIKey(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		return key, nil
	}
	if b, err := os.ReadFile(openAISecretPath); err == nil {
		slog.Info("Read the OpenAI API Key from Podman Secrets")
		return strings.TrimSpace(string(b)), nil
	}
	return "", fmt.Errorf("OPENAI_API_KEY environment variable not set")
}

// OpenAIGenerator serves text, image and audio requests with the OpenAI API.
//
// Thread Safety:
//
//	Safe for concurrent use.
type OpenAIGenerator struct {
	client   *openai.Client
	cfg      OpenAIConfig
	splitter textsplitter.RecursiveCharacter
	logger   *slog.Logger
}

// NewOpenAIGenerator creates a generator.
//
// Inputs:
//
//	cfg - Provider settings. The API key is resolved with ResolveOpenAIKey.
//	logger - Logger; nil uses slog.Default().
//
// Outputs:
//
//	*OpenAIGenerator - The generator.
//	error - Non-nil if no API key is available.
func NewOpenAIGenerator(cfg OpenAIConfig, logger *slog.Logger) (*OpenAIGenerator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	key, err := ResolveOpenAIKey(cfg.APIKey)
	if err != nil {
		logger.Error("OPENAI_API_KEY environment variable not set and secret not found", "path", openAISecretPath)
		return nil, err
	}
	cfg.APIKey = key
	if cfg.TextModel == "" {
		cfg.TextModel = openai.GPT4oMini
		logger.Warn("text model not set, defaulting", "model", cfg.TextModel)
	}
	if cfg.ImageModel == "" {
		cfg.ImageModel = openai.CreateImageModelDallE3
	}
	if cfg.ImageSize == "" {
		cfg.ImageSize = openai.CreateImageSize1024x1024
	}
	if cfg.SpeechModel == "" {
		cfg.SpeechModel = string(openai.TTSModel1)
	}
	if cfg.Voice == "" {
		cfg.Voice = string(openai.VoiceAlloy)
	}
	if cfg.System == "" {
		cfg.System = "You are a helpful assistant."
	}

	clientCfg := openai.DefaultConfig(key)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	logger.Info("Initializing OpenAI generator", "text_model", cfg.TextModel, "image_model", cfg.ImageModel)
	return &OpenAIGenerator{
		client: openai.NewClientWithConfig(clientCfg),
		cfg:    cfg,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(MaxSpeechInput),
			textsplitter.WithChunkOverlap(0),
			textsplitter.WithSeparators([]string{"\n\n", "\n", ". ", " ", ""}),
		),
		logger: logger,
	}, nil
}

// Generate implements Generator.
func (o *OpenAIGenerator) Generate(ctx context.Context, req Request) (*Response, error) {
	switch req.Kind {
	case KindText, "":
		return o.generateText(ctx, req)
	case KindImage:
		if req.ImageInput != "" {
			return o.editImage(ctx, req)
		}
		return o.generateImage(ctx, req)
	case KindAudio:
		return o.generateSpeech(ctx, req)
	default:
		return nil, &ServiceError{Op: "generate", Category: ErrUnsupported, Err: fmt.Errorf("kind %q", req.Kind)}
	}
}

func (o *OpenAIGenerator) generateText(ctx context.Context, req Request) (*Response, error) {
	o.logger.Debug("Generating text via OpenAI", "model", o.cfg.TextModel, "json", req.JSON)
	system := req.System
	if system == "" {
		system = o.cfg.System
	}
	creq := openai.ChatCompletionRequest{
		Model: o.cfg.TextModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
		},
	}
	if req.JSON {
		creq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}
	p := req.Params
	if p.Temperature != nil {
		creq.Temperature = *p.Temperature
	}
	if p.MaxTokens != nil {
		creq.MaxCompletionTokens = *p.MaxTokens
	}
	if p.TopP != nil {
		creq.TopP = *p.TopP
	}
	if len(p.Stop) > 0 {
		creq.Stop = p.Stop
	}

	resp, err := o.client.CreateChatCompletion(ctx, creq)
	if err != nil {
		o.logger.Error("OpenAI API call failed", "error", err)
		return nil, classify("chat completion", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		o.logger.Warn("OpenAI returned no choices or empty content")
		return nil, Malformed("chat completion", errors.New("no content returned"))
	}
	o.logger.Debug("Received response from OpenAI", "finish_reason", resp.Choices[0].FinishReason)
	return &Response{Text: resp.Choices[0].Message.Content, Model: resp.Model}, nil
}

func (o *OpenAIGenerator) generateImage(ctx context.Context, req Request) (*Response, error) {
	resp, err := o.client.CreateImage(ctx, openai.ImageRequest{
		Prompt:         req.Prompt,
		Model:          o.cfg.ImageModel,
		N:              1,
		Size:           o.cfg.ImageSize,
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
	})
	if err != nil {
		return nil, classify("image generation", err)
	}
	return o.imageResponse("image generation", resp)
}

func (o *OpenAIGenerator) editImage(ctx context.Context, req Request) (*Response, error) {
	mime, data, err := ParseDataURL(req.ImageInput)
	if err != nil {
		return nil, &ServiceError{Op: "image edit", Category: ErrRejected, Err: err}
	}
	resp, err := o.client.CreateEditImage(ctx, openai.ImageEditRequest{
		Image:          openai.WrapReader(bytes.NewReader(data), "input"+extensionFor(mime), mime),
		Prompt:         req.Prompt,
		Model:          o.cfg.ImageModel,
		N:              1,
		Size:           o.cfg.ImageSize,
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
	})
	if err != nil {
		return nil, classify("image edit", err)
	}
	return o.imageResponse("image edit", resp)
}

func (o *OpenAIGenerator) imageResponse(op string, resp openai.ImageResponse) (*Response, error) {
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return nil, Malformed(op, errors.New("no image data returned"))
	}
	return &Response{Image: "data:image/png;base64," + resp.Data[0].B64JSON, Model: o.cfg.ImageModel}, nil
}

// generateSpeech splits long input below the provider limit and
// concatenates the returned MP3 segments.
func (o *OpenAIGenerator) generateSpeech(ctx context.Context, req Request) (*Response, error) {
	text := strings.TrimSpace(req.Prompt)
	if text == "" {
		return nil, &ServiceError{Op: "speech", Category: ErrRejected, Err: errors.New("empty input")}
	}
	chunks, err := o.splitter.SplitText(text)
	if err != nil {
		return nil, &ServiceError{Op: "speech", Category: ErrRejected, Err: err}
	}
	voice := req.Voice
	if voice == "" {
		voice = o.cfg.Voice
	}

	var audio bytes.Buffer
	for i, chunk := range chunks {
		raw, err := o.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
			Model:          openai.SpeechModel(o.cfg.SpeechModel),
			Input:          chunk,
			Voice:          openai.SpeechVoice(voice),
			ResponseFormat: openai.SpeechResponseFormatMp3,
		})
		if err != nil {
			return nil, classify(fmt.Sprintf("speech chunk %d/%d", i+1, len(chunks)), err)
		}
		_, err = io.Copy(&audio, raw)
		raw.Close()
		if err != nil {
			return nil, classify("speech read", err)
		}
	}
	if audio.Len() == 0 {
		return nil, Malformed("speech", errors.New("no audio returned"))
	}
	o.logger.Debug("Generated speech", "chunks", len(chunks), "bytes", audio.Len())
	return &Response{Audio: DataURL("audio/mpeg", audio.Bytes()), Model: o.cfg.SpeechModel}, nil
}

// =============================================================================
// Data URLs
// =============================================================================

// DataURL encodes data as a base64 data URL.
func DataURL(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// ParseDataURL decodes a base64 data URL. A bare base64 string is accepted
// and reported as image/png.
func ParseDataURL(s string) (string, []byte, error) {
	mime := "image/png"
	payload := strings.TrimSpace(s)
	if rest, ok := strings.CutPrefix(payload, "data:"); ok {
		header, body, found := strings.Cut(rest, ",")
		if !found || !strings.HasSuffix(header, ";base64") {
			return "", nil, errors.New("data URL is not base64 encoded")
		}
		if m := strings.TrimSuffix(header, ";base64"); m != "" {
			mime = m
		}
		payload = body
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("decoding image: %w", err)
	}
	return mime, data, nil
}

func extensionFor(mime string) string {
	switch mime {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}
