package registry

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPRequestSkill(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status": "ok"}`))
	}))
	defer server.Close()

	skill, err := newHTTPRequestSkill(map[string]any{
		"url":     server.URL,
		"headers": map[string]any{"Accept": "application/json"},
	})
	require.NoError(t, err)

	output, usage, err := skill.Execute(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, usage)
	assert.Equal(t, 200, output["status_code"])
	assert.Equal(t, map[string]any{"status": "ok"}, output["body"])
}

func TestHTTPRequestSkillRetries(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)

			return
		}

		_, _ = w.Write([]byte("recovered"))
	}))
	defer server.Close()

	skill, err := newHTTPRequestSkill(map[string]any{
		"url":   server.URL,
		"retry": map[string]any{"attempts": 3.0, "delay": 0.0},
	})
	require.NoError(t, err)

	output, _, err := skill.Execute(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "recovered", output["body"])
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPRequestSkillExhaustsRetries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	skill, err := newHTTPRequestSkill(map[string]any{
		"url":   server.URL,
		"retry": map[string]any{"attempts": 2.0, "delay": 0.0},
	})
	require.NoError(t, err)

	_, _, err = skill.Execute(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempts")
}

func TestHTTPRequestSkillRegistered(t *testing.T) {
	r := NewRegistry(slog.Default())
	RegisterBuiltins(r, t.TempDir())

	_, err := r.CreateSkill("http_request", map[string]any{"url": "http://localhost"})
	require.NoError(t, err)

	// url is required by the config schema
	_, err = r.CreateSkill("http_request", map[string]any{"method": "GET"})
	require.Error(t, err)
}
