package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client is a thin HTTP client for the Skillweave API, translating
// transport and HTTP failures into envelope error codes.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// do performs the request and decodes a JSON response into out. API errors
// come back as *EnvelopeError with a code derived from the status.
func (c *Client) do(ctx context.Context, method, path string, body, out any) *EnvelopeError {
	var reader io.Reader

	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return &EnvelopeError{Code: "VALIDATION_BAD_INPUT", Message: err.Error()}
		}

		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return &EnvelopeError{Code: "VALIDATION_BAD_INPUT", Message: err.Error()}
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &EnvelopeError{
			Code:    "NETWORK_UNREACHABLE",
			Message: err.Error(),
			Hint:    "check that the API server is running and --api-url points at it",
		}
	}

	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &EnvelopeError{Code: "NETWORK_READ_FAILED", Message: err.Error()}
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return errorFromStatus(resp.StatusCode, raw)
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return &EnvelopeError{Code: "INTERNAL_BAD_RESPONSE", Message: err.Error()}
		}
	}

	return nil
}

// problemBody is the RFC 7807 shape the API returns on errors.
type problemBody struct {
	Type   string `json:"type"`
	Detail string `json:"detail"`
}

func errorFromStatus(status int, raw []byte) *EnvelopeError {
	var problem problemBody

	_ = json.Unmarshal(raw, &problem)

	message := problem.Detail
	if message == "" {
		message = http.StatusText(status)
	}

	switch status {
	case http.StatusForbidden:
		return &EnvelopeError{
			Code:    "AUTH_TOOLSET_BLOCKED",
			Message: message,
			Hint:    "grant the blocked toolsets and retry with 'run authorize'",
		}
	case http.StatusNotFound:
		return &EnvelopeError{
			Code:    strings.ToUpper(resourceFromProblem(problem.Type)) + "_NOT_FOUND",
			Message: message,
		}
	case http.StatusBadRequest:
		return &EnvelopeError{Code: "VALIDATION_FAILED", Message: message}
	case http.StatusConflict:
		return &EnvelopeError{Code: "VALIDATION_CONFLICT", Message: message}
	default:
		return &EnvelopeError{
			Code:    "INTERNAL_ERROR",
			Message: fmt.Sprintf("unexpected status %d: %s", status, message),
		}
	}
}

func resourceFromProblem(problemType string) string {
	if problemType == "" || problemType == "not_found" {
		return "resource"
	}

	return strings.TrimSuffix(problemType, "_not_found")
}
