package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tanshuai2008/HouSmart-test/internal/resilience"
)

func newTestClient(t *testing.T, h http.HandlerFunc) Client {
	t.Helper()
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	return NewClient("sk-test", WithBaseURL(ts.URL+"/v1"), WithHTTPClient(ts.Client()))
}

func TestCompleteJSON(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o-mini", req["model"])
		assert.Equal(t, map[string]any{"type": "json_object"}, req["response_format"])
		assert.EqualValues(t, 800, req["max_tokens"])
		msgs := req["messages"].([]any)
		require.Len(t, msgs, 2)
		assert.Equal(t, "system", msgs[0].(map[string]any)["role"])

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck
			"id":    "chatcmpl-1",
			"model": "gpt-4o-mini",
			"choices": []map[string]any{
				{"index": 0, "message": map[string]any{"role": "assistant", "content": `{"score":64}`}},
			},
			"usage": map[string]any{"prompt_tokens": 400, "completion_tokens": 50},
		})
	})

	resp, err := c.CompleteJSON(context.Background(), ChatRequest{
		Model: "gpt-4o-mini", System: "sys", User: "user", MaxTokens: 800, Temperature: 0.2,
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"score":64}`, resp.Content)
	assert.Equal(t, 400, resp.PromptTokens)
	assert.Equal(t, 50, resp.CompletionTokens)
}

func TestCompleteJSON_ReasoningModelUsesCompletionTokens(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.EqualValues(t, 800, req["max_completion_tokens"])
		assert.NotContains(t, req, "max_tokens")

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"{}"}}]}`))
	})
	_, err := c.CompleteJSON(context.Background(), ChatRequest{Model: "o3-mini", MaxTokens: 800})
	require.NoError(t, err)
}

func TestCompleteJSON_NoChoices(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[]}`))
	})
	_, err := c.CompleteJSON(context.Background(), ChatRequest{Model: "gpt-4o-mini"})
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestCompleteJSON_ErrorClassification(t *testing.T) {
	tests := []struct {
		status int
		quota  bool
	}{
		{http.StatusTooManyRequests, true},
		{http.StatusUnauthorized, false},
		{http.StatusBadGateway, false},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error":{"message":"nope","type":"x"}}`))
			})
			_, err := c.CompleteJSON(context.Background(), ChatRequest{Model: "gpt-4o-mini"})
			require.Error(t, err)
			assert.Equal(t, tt.quota, resilience.IsQuota(err))
		})
	}
}
