package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"socrates/config"
)

const (
	defaultAnthropicBaseURL = "https://api.anthropic.com"
	defaultAnthropicVersion = "2023-06-01"
	defaultMaxTokens        = 4000

	humanMarker     = "\n\nHuman:"
	assistantMarker = "\n\nAssistant:"
)

// Anthropic talks to the legacy text completion API, which takes a single
// transcript string instead of a message list.
type Anthropic struct {
	apiKey     string
	baseURL    string
	version    string
	maxTokens  int
	endpoint   string
	httpClient *http.Client
	extractor  *Extractor
}

// NewAnthropic creates an Anthropic adapter. BuildClient must be called before Execute.
func NewAnthropic(cfg config.AnthropicConfig, deps Deps) *Anthropic {
	deps = deps.withDefaults()
	a := &Anthropic{
		apiKey:     cfg.APIKey,
		baseURL:    trimBaseURL(cfg.BaseURL),
		version:    cfg.Version,
		maxTokens:  cfg.MaxTokens,
		httpClient: deps.HTTPClient,
		extractor:  deps.Extractor,
	}
	if a.baseURL == "" {
		a.baseURL = defaultAnthropicBaseURL
	}
	if a.version == "" {
		a.version = defaultAnthropicVersion
	}
	if a.maxTokens == 0 {
		a.maxTokens = defaultMaxTokens
	}
	return a
}

func (a *Anthropic) BuildClient() error {
	if a.apiKey == "" {
		return errors.New("anthropic api key is not set")
	}
	a.endpoint = a.baseURL + "/v1/complete"
	return nil
}

func (a *Anthropic) BuildRequest(msgs []Message, model string, jsonMode bool) any {
	return anthropicRequest{
		Prompt:            Transcript(msgs),
		Model:             model,
		MaxTokensToSample: a.maxTokens,
		StopSequences:     []string{humanMarker},
	}
}

// Transcript collapses msgs into a Human/Assistant transcript ending with an
// open assistant turn.
func Transcript(msgs []Message) string {
	var b strings.Builder
	for _, m := range msgs {
		if m.Role == RoleAssistant {
			b.WriteString(assistantMarker)
		} else {
			b.WriteString(humanMarker)
		}
		b.WriteString(m.Content)
	}
	b.WriteString(assistantMarker)
	return b.String()
}

func (a *Anthropic) Execute(ctx context.Context, req any) Raw {
	status, body, err := postJSON(ctx, a.httpClient, a.endpoint, map[string]string{
		"x-api-key":         a.apiKey,
		"anthropic-version": a.version,
	}, req)
	if err != nil {
		return rawError("Anthropic request failed: ", err.Error())
	}
	// Error envelopes are decoded by ExtractResponse.
	return Raw{Status: status, Body: body}
}

func (a *Anthropic) ExtractResponse(raw Raw, jsonMode bool) Result {
	if raw.Err != nil {
		return ErrorResult(raw.Err.Message)
	}

	var resp anthropicResponse
	if err := json.Unmarshal(raw.Body, &resp); err != nil {
		return ErrorResult("Invalid response structure from Anthropic.")
	}
	if resp.Error != nil {
		return ErrorResult(resp.Error.Message)
	}
	if resp.Completion == nil {
		return ErrorResult("No error message received, but no completion in response.")
	}

	return finish(a.extractor, *resp.Completion, jsonMode)
}

type anthropicRequest struct {
	Prompt            string   `json:"prompt"`
	Model             string   `json:"model"`
	MaxTokensToSample int      `json:"max_tokens_to_sample"`
	StopSequences     []string `json:"stop_sequences"`
}

type anthropicResponse struct {
	Completion *string `json:"completion"`
	Error      *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}
