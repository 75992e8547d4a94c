package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"socrates/config"
)

func newTestAnthropic(t *testing.T, handler http.HandlerFunc) *Anthropic {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	a := NewAnthropic(config.AnthropicConfig{APIKey: "test-key", BaseURL: server.URL}, Deps{})
	require.NoError(t, a.BuildClient())
	return a
}

func TestTranscript(t *testing.T) {
	msgs := []Message{
		{Role: RoleUser, Content: "Start"},
		{Role: RoleAssistant, Content: "Question 1"},
		{Role: RoleUser, Content: "Answer"},
	}

	got := Transcript(msgs)
	assert.Equal(t, "\n\nHuman:Start\n\nAssistant:Question 1\n\nHuman:Answer\n\nAssistant:", got)
	assert.Equal(t, "\n\nAssistant:", Transcript(nil))
}

func TestAnthropicRequestShape(t *testing.T) {
	var got anthropicRequest
	a := newTestAnthropic(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/complete", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"completion": " Hello"}`))
	})

	msgs := []Message{UserMessage("Hi")}
	result := a.ExtractResponse(a.Execute(context.Background(), a.BuildRequest(msgs, "claude-2", true)), false)

	require.Equal(t, KindText, result.Kind)
	assert.Nil(t, result.Reasoning)
	assert.Equal(t, " Hello", result.Response)
	assert.Equal(t, "\n\nHuman:Hi\n\nAssistant:", got.Prompt)
	assert.Equal(t, "claude-2", got.Model)
	assert.Equal(t, 4000, got.MaxTokensToSample)
	assert.Equal(t, []string{"\n\nHuman:"}, got.StopSequences)
}

func TestAnthropicJSONModeParsesCompletion(t *testing.T) {
	a := newTestAnthropic(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"completion": `<scratchpad>scoring</scratchpad>{"results": [{"post_id": 1, "score": 8, "confidence": 90, "category": "Other"}]}`,
		})
	})

	result := a.ExtractResponse(a.Execute(context.Background(), a.BuildRequest(nil, "claude-2", true)), true)
	require.Equal(t, KindJSON, result.Kind)
	obj, ok := result.JSON.(map[string]any)
	require.True(t, ok)
	assert.Len(t, obj["results"], 1)
}

func TestAnthropicErrorEnvelope(t *testing.T) {
	a := newTestAnthropic(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": {"type": "invalid_request_error", "message": "prompt must start with Human"}}`))
	})

	result := a.ExtractResponse(a.Execute(context.Background(), a.BuildRequest(nil, "claude-2", false)), false)
	assert.Equal(t, KindError, result.Kind)
	assert.Equal(t, "Error: prompt must start with Human", result.Err)
}

func TestAnthropicMissingCompletion(t *testing.T) {
	a := newTestAnthropic(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"stop_reason": "stop_sequence"}`))
	})

	result := a.ExtractResponse(a.Execute(context.Background(), a.BuildRequest(nil, "claude-2", false)), false)
	assert.Equal(t, KindError, result.Kind)
	assert.Equal(t, "Error: No error message received, but no completion in response.", result.Err)
}

func TestAnthropicNonJSONBody(t *testing.T) {
	a := newTestAnthropic(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("<html>bad gateway</html>"))
	})

	result := a.ExtractResponse(a.Execute(context.Background(), a.BuildRequest(nil, "claude-2", false)), false)
	assert.Equal(t, KindError, result.Kind)
}

func TestAnthropicDefaults(t *testing.T) {
	a := NewAnthropic(config.AnthropicConfig{APIKey: "k"}, Deps{})
	assert.Equal(t, defaultAnthropicBaseURL, a.baseURL)
	assert.Equal(t, defaultAnthropicVersion, a.version)
	assert.Equal(t, defaultMaxTokens, a.maxTokens)
	assert.Error(t, NewAnthropic(config.AnthropicConfig{}, Deps{}).BuildClient())
}
