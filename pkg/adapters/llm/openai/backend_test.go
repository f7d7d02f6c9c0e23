package openai_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/aretw0/anamnesis/pkg/adapters/llm/openai"
	"github.com/aretw0/anamnesis/pkg/completion"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const chatResponse = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1700000000,
  "model": "gpt-4o",
  "choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "TEXT\n---\nShort question?"}}]
}`

func TestBackend_Complete(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"), r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, chatResponse)
	}))
	defer srv.Close()

	backend, err := openai.New(openai.Config{APIKey: "sk-test", BaseURL: srv.URL + "/v1/", HTTPClient: srv.Client()})
	require.NoError(t, err)

	out, err := backend.Complete(context.Background(), completion.Request{
		System: "sys", User: "user", Model: "gpt-4o", Temperature: 0.7,
	})
	require.NoError(t, err)
	assert.Equal(t, "TEXT\n---\nShort question?", out)

	assert.Equal(t, "gpt-4o", body["model"])
	assert.Equal(t, 0.7, body["temperature"])
	messages, _ := body["messages"].([]any)
	require.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0].(map[string]any)["role"])
	assert.Equal(t, "user", messages[1].(map[string]any)["role"])
}

func TestBackend_NoSDKRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	backend, err := openai.New(openai.Config{APIKey: "sk-test", BaseURL: srv.URL + "/v1/"})
	require.NoError(t, err)

	_, err = backend.Complete(context.Background(), completion.Request{Model: "gpt-4o"})
	assert.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestNew_RequiresKey(t *testing.T) {
	_, err := openai.New(openai.Config{})
	assert.Error(t, err)
}
