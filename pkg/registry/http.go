package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/skillweave/skillweave/pkg/models"
)

const defaultHTTPTimeout = 30 * time.Second

var httpRequestSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"url":     map[string]any{"type": "string"},
		"method":  map[string]any{"type": "string"},
		"body":    map[string]any{"type": "string"},
		"headers": map[string]any{"type": "object"},
		"retry": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"attempts": map[string]any{"type": "number"},
				"delay":    map[string]any{"type": "number"},
			},
		},
	},
	"required": []any{"url"},
}

// httpRequestSkill calls an external HTTP endpoint. Like the other built-ins
// it reports no usage.
type httpRequestSkill struct {
	method  string
	url     string
	headers map[string]string
	body    string
	retry   retryConfig
}

type retryConfig struct {
	attempts int
	delay    time.Duration
}

func newHTTPRequestSkill(config map[string]any) (Skill, error) {
	url, _ := config["url"].(string)
	method, _ := config["method"].(string)
	body, _ := config["body"].(string)

	if method == "" {
		method = http.MethodGet
	}

	headers := make(map[string]string)
	if headersConfig, ok := config["headers"].(map[string]any); ok {
		for key, value := range headersConfig {
			if strVal, ok := value.(string); ok {
				headers[key] = strVal
			}
		}
	}

	retry := retryConfig{attempts: 1}
	if retryMap, ok := config["retry"].(map[string]any); ok {
		if attempts, ok := retryMap["attempts"].(float64); ok && attempts > 0 {
			retry.attempts = int(attempts)
		}

		if delay, ok := retryMap["delay"].(float64); ok {
			retry.delay = time.Duration(delay) * time.Second
		}
	}

	return &httpRequestSkill{
		method:  strings.ToUpper(method),
		url:     url,
		headers: headers,
		body:    body,
		retry:   retry,
	}, nil
}

func (s *httpRequestSkill) Execute(ctx context.Context, inputs map[string]any) (map[string]any, *models.UsageReport, error) {
	body := s.body
	if override, ok := inputs["body"].(string); ok && override != "" {
		body = override
	}

	var lastErr error

	for attempt := 1; attempt <= s.retry.attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(s.retry.delay):
			case <-ctx.Done():
				return nil, nil, ctx.Err()
			}
		}

		output, err := s.doRequest(ctx, body)
		if err == nil {
			return output, nil, nil
		}

		lastErr = err
	}

	return nil, nil, fmt.Errorf("http request failed after %d attempts: %w", s.retry.attempts, lastErr)
}

func (s *httpRequestSkill) doRequest(ctx context.Context, body string) (map[string]any, error) {
	reqCtx, cancel := context.WithTimeout(ctx, defaultHTTPTimeout)
	defer cancel()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}

	req, err := http.NewRequestWithContext(reqCtx, s.method, s.url, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create http request: %w", err)
	}

	for key, value := range s.headers {
		req.Header.Set(key, value)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}

	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var parsed any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		parsed = string(raw)
	}

	return map[string]any{
		"status_code": resp.StatusCode,
		"body":        parsed,
	}, nil
}
