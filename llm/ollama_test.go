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

func newTestOllama(t *testing.T, cfg config.OllamaConfig, handler http.HandlerFunc) *Ollama {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg.BaseURL = server.URL
	a := NewOllama(cfg, Deps{})
	require.NoError(t, a.BuildClient())
	return a
}

func ollamaBody(content string) map[string]any {
	return map[string]any{
		"model":   "llama3",
		"message": map[string]any{"role": "assistant", "content": content},
		"done":    true,
	}
}

func TestOllamaRequestShape(t *testing.T) {
	var got map[string]any
	a := newTestOllama(t, config.OllamaConfig{NumCtx: 4096, Temperature: 0.1}, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(ollamaBody(`[]`))
	})

	result := a.ExtractResponse(a.Execute(context.Background(), a.BuildRequest([]Message{UserMessage("x")}, "llama3", true)), true)

	require.Equal(t, KindJSON, result.Kind)
	assert.Equal(t, "llama3", got["model"])
	assert.Equal(t, false, got["stream"])
	assert.Equal(t, "json", got["format"])
	assert.Equal(t, map[string]any{"num_ctx": float64(4096), "temperature": 0.1}, got["options"])
}

func TestOllamaBearerKey(t *testing.T) {
	a := newTestOllama(t, config.OllamaConfig{APIKey: "secret"}, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(ollamaBody("ok"))
	})

	result := a.ExtractResponse(a.Execute(context.Background(), a.BuildRequest(nil, "llama3", false)), false)
	require.Equal(t, KindText, result.Kind)
	assert.Equal(t, "ok", result.Response)
}

func TestOllamaTextModeOmitsFormat(t *testing.T) {
	body, err := json.Marshal(NewOllama(config.OllamaConfig{}, Deps{}).BuildRequest(nil, "llama3", false))
	require.NoError(t, err)
	assert.NotContains(t, string(body), `"format"`)
	assert.Contains(t, string(body), `"num_ctx":8192`)
}

func TestOllamaServerError(t *testing.T) {
	a := newTestOllama(t, config.OllamaConfig{}, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error": "model 'llama9' not found"}`))
	})

	result := a.ExtractResponse(a.Execute(context.Background(), a.BuildRequest(nil, "llama9", false)), false)
	assert.Equal(t, KindError, result.Kind)
	assert.Contains(t, result.Err, "Error: Ollama API Error: ")
}

func TestOllamaInvalidEnvelope(t *testing.T) {
	a := newTestOllama(t, config.OllamaConfig{}, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"done": true}`))
	})

	result := a.ExtractResponse(a.Execute(context.Background(), a.BuildRequest(nil, "llama3", false)), false)
	assert.Equal(t, KindError, result.Kind)
	assert.Equal(t, "Error: Invalid response structure from Ollama client.", result.Err)
}

func TestOllamaReasoningThenJSON(t *testing.T) {
	a := newTestOllama(t, config.OllamaConfig{}, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(ollamaBody("<think>\nlet me rate\n</think>\n{\"results\": []}"))
	})

	result := a.ExtractResponse(a.Execute(context.Background(), a.BuildRequest(nil, "deepseek-r1", true)), true)
	require.Equal(t, KindJSON, result.Kind)
	assert.Equal(t, map[string]any{"results": []any{}}, result.JSON)
}
