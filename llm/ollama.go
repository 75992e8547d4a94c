package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"socrates/config"
)

const defaultOllamaBaseURL = "http://localhost:11434"

// Ollama talks to a local or remote Ollama server's /api/chat endpoint.
type Ollama struct {
	apiKey      string
	baseURL     string
	numCtx      int
	temperature float64
	endpoint    string
	httpClient  *http.Client
	extractor   *Extractor
}

// NewOllama creates an Ollama adapter. The API key is optional.
func NewOllama(cfg config.OllamaConfig, deps Deps) *Ollama {
	deps = deps.withDefaults()
	a := &Ollama{
		apiKey:      cfg.APIKey,
		baseURL:     trimBaseURL(cfg.BaseURL),
		numCtx:      cfg.NumCtx,
		temperature: cfg.Temperature,
		httpClient:  deps.HTTPClient,
		extractor:   deps.Extractor,
	}
	if a.baseURL == "" {
		a.baseURL = defaultOllamaBaseURL
	}
	if a.numCtx == 0 {
		a.numCtx = 8192
	}
	return a
}

func (a *Ollama) BuildClient() error {
	if a.baseURL == "" {
		return errors.New("ollama server url is not set")
	}
	a.endpoint = a.baseURL + "/api/chat"
	return nil
}

func (a *Ollama) BuildRequest(msgs []Message, model string, jsonMode bool) any {
	req := ollamaChatRequest{
		Model:    model,
		Messages: msgs,
		Stream:   false,
		Options: ollamaOptions{
			NumCtx:      a.numCtx,
			Temperature: a.temperature,
		},
	}
	if jsonMode {
		req.Format = "json"
	}
	return req
}

func (a *Ollama) Execute(ctx context.Context, req any) Raw {
	headers := map[string]string{}
	if a.apiKey != "" {
		headers["Authorization"] = "Bearer " + a.apiKey
	}

	status, body, err := postJSON(ctx, a.httpClient, a.endpoint, headers, req)
	if err != nil {
		return rawError("Ollama Connection/General Error: ", err.Error())
	}
	if status != http.StatusOK {
		return rawError("Ollama API Error: ", apiErrorMessage(status, body))
	}
	return Raw{Status: status, Body: body}
}

func (a *Ollama) ExtractResponse(raw Raw, jsonMode bool) Result {
	if raw.Err != nil {
		return ErrorResult(raw.Err.Message)
	}

	var resp ollamaChatResponse
	if err := json.Unmarshal(raw.Body, &resp); err != nil || resp.Message == nil || resp.Message.Content == nil {
		return ErrorResult("Invalid response structure from Ollama client.")
	}

	return finish(a.extractor, *resp.Message.Content, jsonMode)
}

type ollamaChatRequest struct {
	Model    string        `json:"model"`
	Messages []Message     `json:"messages"`
	Stream   bool          `json:"stream"`
	Format   string        `json:"format,omitempty"`
	Options  ollamaOptions `json:"options"`
}

type ollamaOptions struct {
	NumCtx      int     `json:"num_ctx"`
	Temperature float64 `json:"temperature"`
}

type ollamaChatResponse struct {
	Model   string `json:"model"`
	Message *struct {
		Role    string  `json:"role"`
		Content *string `json:"content"`
	} `json:"message"`
	Done bool `json:"done"`
}
