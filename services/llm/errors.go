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
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sashabaranov/go-openai"
)

var (
	// ErrQuota is returned when the provider rejects a call for rate or
	// quota reasons (HTTP 429).
	ErrQuota = errors.New("generation quota exceeded")

	// ErrNetwork is returned when the provider could not be reached or
	// failed on its side.
	ErrNetwork = errors.New("generation service unreachable")

	// ErrMalformedResponse is returned when the provider answered with
	// nothing usable, or with output that does not parse.
	ErrMalformedResponse = errors.New("malformed generation response")

	// ErrRejected is returned for other provider refusals (bad request,
	// content policy, auth).
	ErrRejected = errors.New("generation request rejected")

	// ErrUnsupported is returned for request kinds a generator cannot serve.
	ErrUnsupported = errors.New("unsupported generation request")
)

// ServiceError is a classified generation failure.
//
// errors.Is matches both the category sentinel (ErrQuota, ErrNetwork, ...)
// and the underlying cause.
type ServiceError struct {
	Op         string
	StatusCode int
	Category   error
	Err        error
}

func (e *ServiceError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: %v (status %d): %v", e.Op, e.Category, e.StatusCode, e.Err)
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Category)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Category, e.Err)
}

func (e *ServiceError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Category}
	}
	return []error{e.Category, e.Err}
}

// Malformed builds a ServiceError for unusable provider output.
func Malformed(op string, cause error) error {
	return &ServiceError{Op: op, Category: ErrMalformedResponse, Err: cause}
}

// classify maps a provider error onto the error taxonomy. Context
// cancellation is returned unchanged.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	category := ErrRejected
	switch {
	case status == http.StatusTooManyRequests:
		category = ErrQuota
	case status >= 500:
		category = ErrNetwork
	case status == 0:
		// No HTTP status: the request never completed.
		category = ErrNetwork
	}
	return &ServiceError{Op: op, StatusCode: status, Category: category, Err: err}
}
