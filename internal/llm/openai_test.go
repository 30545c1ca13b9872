package llm_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalnine/toolsgen/internal/llm"
	"github.com/signalnine/toolsgen/internal/toolspec"
)

func TestOpenAIClientToolCalls(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{
			"model": "gpt-test",
			"choices": [{"message": {"content": null, "tool_calls": [
				{"id": "call_1", "type": "function", "function": {"name": "get_weather", "arguments": "{\"city\":\"Paris\"}"}}
			]}, "finish_reason": "tool_calls"}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 7}
		}`)
	}))
	defer srv.Close()

	c := llm.NewOpenAIClient("sk-test", srv.URL+"/v1/", time.Second)
	seed := int64(99)
	resp, err := c.Complete(context.Background(), &llm.Request{
		Role:       llm.RoleToolCaller,
		Model:      "gpt-test",
		Messages:   []llm.Message{{Role: "user", Content: "weather in Paris?"}},
		Tools:      toolspec.Definitions([]*toolspec.Tool{toolspec.New("get_weather", "", nil)}),
		ToolChoice: "auto",
		MaxTokens:  100,
		Seed:       &seed,
	})
	require.NoError(t, err)

	assert.Equal(t, "gpt-test", got["model"])
	assert.Equal(t, "auto", got["tool_choice"])
	assert.EqualValues(t, 99, got["seed"])
	assert.Len(t, got["tools"], 1)

	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "get_weather", resp.ToolCalls[0].Name)
	assert.Equal(t, `{"city":"Paris"}`, resp.ToolCalls[0].Arguments)
	assert.Equal(t, llm.Usage{InputTokens: 12, OutputTokens: 7}, resp.Usage)
}

func TestOpenAIClientStructured(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))
		io.WriteString(w, `{"choices": [{"message": {"content": "{\"verdict\": \"accept\"}"}}]}`)
	}))
	defer srv.Close()

	c := llm.NewOpenAIClient("k", srv.URL, time.Second)
	resp, err := c.Complete(context.Background(), &llm.Request{
		Role:           llm.RoleJudge,
		ResponseSchema: &llm.ResponseSchema{Name: "judge", Schema: json.RawMessage(`{"type":"object"}`)},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"verdict": "accept"}`, string(resp.Structured))

	rf, ok := got["response_format"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "json_schema", rf["type"])
	_, hasTools := got["tool_choice"]
	assert.False(t, hasTools)
}

func TestOpenAIClientErrors(t *testing.T) {
	tests := []struct {
		status int
		want   llm.ErrorKind
	}{
		{http.StatusTooManyRequests, llm.KindRateLimited},
		{http.StatusServiceUnavailable, llm.KindTransientNetwork},
		{http.StatusUnauthorized, llm.KindAuth},
		{http.StatusBadRequest, llm.KindInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Retry-After", "2")
				w.WriteHeader(tt.status)
				io.WriteString(w, `{"error": {"message": "nope", "type": "x"}}`)
			}))
			defer srv.Close()

			c := llm.NewOpenAIClient("k", srv.URL, time.Second)
			_, err := c.Complete(context.Background(), &llm.Request{Role: llm.RoleJudge})
			var apiErr *llm.APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.want, apiErr.Kind)
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, "nope", apiErr.Message)
			assert.Equal(t, 2*time.Second, apiErr.RetryAfter)
		})
	}
}

func TestOpenAIClientNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := llm.NewOpenAIClient("k", url, time.Second)
	_, err := c.Complete(context.Background(), &llm.Request{Role: llm.RoleJudge})
	require.Error(t, err)
	assert.True(t, llm.IsTransient(err))
}
