package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"socrates/config"
)

// recordingAdapter is a test adapter that returns a canned payload.
type recordingAdapter struct {
	deps       Deps
	buildErr   error
	payload    string
	gotModel   string
	gotJSON    bool
	gotMsgs    []Message
	execCalled bool
}

func (a *recordingAdapter) BuildClient() error { return a.buildErr }

func (a *recordingAdapter) BuildRequest(msgs []Message, model string, jsonMode bool) any {
	a.gotMsgs, a.gotModel, a.gotJSON = msgs, model, jsonMode
	return a.payload
}

func (a *recordingAdapter) Execute(ctx context.Context, req any) Raw {
	a.execCalled = true
	return Raw{Status: http.StatusOK, Body: []byte(req.(string))}
}

func (a *recordingAdapter) ExtractResponse(raw Raw, jsonMode bool) Result {
	if raw.Err != nil {
		return ErrorResult(raw.Err.Message)
	}
	return finish(a.deps.Extractor, string(raw.Body), jsonMode)
}

func registryWith(adapter *recordingAdapter) *Registry {
	r := NewRegistry()
	r.Register("fake", func(cfg config.LLMConfig, deps Deps) Adapter {
		adapter.deps = deps
		return adapter
	})
	r.RegisterModel("fake-model", "fake")
	return r
}

func TestGatewayResolvesProviderFromModel(t *testing.T) {
	adapter := &recordingAdapter{payload: "<think>r</think>answer"}
	g, err := NewGateway(config.LLMConfig{Model: "fake-model"}, WithRegistry(registryWith(adapter)))
	require.NoError(t, err)
	assert.Equal(t, "fake", g.Provider())
	assert.Equal(t, "fake-model", g.Model())

	msgs := []Message{UserMessage("hi")}
	result := g.Send(context.Background(), msgs, false)

	require.Equal(t, KindText, result.Kind)
	require.NotNil(t, result.Reasoning)
	assert.Equal(t, "r", *result.Reasoning)
	assert.Equal(t, "answer", result.Response)
	assert.Equal(t, msgs, adapter.gotMsgs)
	assert.Equal(t, "fake-model", adapter.gotModel)
	assert.False(t, adapter.gotJSON)
}

func TestGatewayExplicitProviderWins(t *testing.T) {
	adapter := &recordingAdapter{payload: `{"results": []}`}
	g, err := NewGateway(config.LLMConfig{Provider: "fake", Model: "unlisted"}, WithRegistry(registryWith(adapter)))
	require.NoError(t, err)

	result := g.Send(context.Background(), nil, true)
	assert.Equal(t, KindJSON, result.Kind)
	assert.True(t, adapter.gotJSON)
}

func TestGatewayConfigurationErrors(t *testing.T) {
	adapter := &recordingAdapter{}

	_, err := NewGateway(config.LLMConfig{Model: "nope"}, WithRegistry(registryWith(adapter)))
	assert.ErrorIs(t, err, ErrUnknownModel)

	_, err = NewGateway(config.LLMConfig{}, WithRegistry(registryWith(adapter)))
	assert.ErrorIs(t, err, ErrUnknownModel)

	_, err = NewGateway(config.LLMConfig{Provider: "mystery", Model: "fake-model"}, WithRegistry(registryWith(adapter)))
	assert.ErrorIs(t, err, ErrUnknownProvider)

	failing := &recordingAdapter{buildErr: errors.New("api key is not set")}
	_, err = NewGateway(config.LLMConfig{Model: "fake-model"}, WithRegistry(registryWith(failing)))
	assert.Error(t, err)

	_, err = NewGateway(config.LLMConfig{Model: "fake-model", ReasoningPattern: "(unclosed"}, WithRegistry(registryWith(adapter)))
	assert.Error(t, err)
}

func TestGatewayExtraModelsFromConfig(t *testing.T) {
	adapter := &recordingAdapter{payload: "ok"}
	cfg := config.LLMConfig{
		Model:  "custom-7b",
		Models: map[string]string{"custom-7b": "fake"},
	}

	g, err := NewGateway(cfg, WithRegistry(registryWith(adapter)))
	require.NoError(t, err)
	assert.Equal(t, "fake", g.Provider())
}

func TestGatewayCustomExtractor(t *testing.T) {
	ex, err := NewExtractor(`(?s)^REASON:(?P<reasoning>[^\n]*)\n(?P<response>.*)$`, nil)
	require.NoError(t, err)

	adapter := &recordingAdapter{payload: "REASON: because\nreply"}
	g, err := NewGateway(config.LLMConfig{Model: "fake-model"}, WithRegistry(registryWith(adapter)), WithExtractor(ex))
	require.NoError(t, err)

	result := g.Send(context.Background(), nil, false)
	require.NotNil(t, result.Reasoning)
	assert.Equal(t, "because", *result.Reasoning)
	assert.Equal(t, "reply", result.Response)
}

func TestGatewayDefaultRegistryOpenAI(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(openAIBody("Hello"))
	}))
	defer server.Close()

	cfg := config.LLMConfig{
		Model:  "gpt-4",
		OpenAI: config.OpenAIConfig{APIKey: "k", BaseURL: server.URL},
	}
	g, err := NewGateway(cfg, WithHTTPClient(server.Client()))
	require.NoError(t, err)
	assert.Equal(t, ProviderOpenAI, g.Provider())

	result := g.Send(context.Background(), []Message{UserMessage("hi")}, false)
	require.Equal(t, KindText, result.Kind)
	assert.Equal(t, "Hello", result.Response)
}

func TestGatewayMissingCredentialsFailsFast(t *testing.T) {
	_, err := NewGateway(config.LLMConfig{Model: "claude-2"})
	assert.Error(t, err)
}

func TestDefaultRegistryAliases(t *testing.T) {
	r := DefaultRegistry()
	for _, name := range []string{"openai", "chatgpt", "anthropic", "claude", "ollama"} {
		_, ok := r.Factory(name)
		assert.True(t, ok, name)
	}

	p, ok := r.ProviderFor("claude-instant-1")
	require.True(t, ok)
	assert.Equal(t, ProviderAnthropic, p)
	assert.Contains(t, r.Models(), "gpt-3.5-turbo")
}
