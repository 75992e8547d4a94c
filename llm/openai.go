package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"socrates/config"
)

const defaultOpenAIBaseURL = "https://api.openai.com"

// OpenAI talks to the chat completions API.
type OpenAI struct {
	apiKey     string
	baseURL    string
	endpoint   string
	httpClient *http.Client
	extractor  *Extractor
}

// NewOpenAI creates an OpenAI adapter. BuildClient must be called before Execute.
func NewOpenAI(cfg config.OpenAIConfig, deps Deps) *OpenAI {
	deps = deps.withDefaults()
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	return &OpenAI{
		apiKey:     cfg.APIKey,
		baseURL:    trimBaseURL(baseURL),
		httpClient: deps.HTTPClient,
		extractor:  deps.Extractor,
	}
}

func (a *OpenAI) BuildClient() error {
	if a.apiKey == "" {
		return errors.New("openai api key is not set")
	}
	a.endpoint = a.baseURL + "/v1/chat/completions"
	return nil
}

func (a *OpenAI) BuildRequest(msgs []Message, model string, jsonMode bool) any {
	req := openAIRequest{
		Model:    model,
		Messages: msgs,
	}
	if jsonMode {
		req.ResponseFormat = &openAIResponseFormat{Type: "json_object"}
	}
	return req
}

func (a *OpenAI) Execute(ctx context.Context, req any) Raw {
	status, body, err := postJSON(ctx, a.httpClient, a.endpoint, map[string]string{
		"Authorization": "Bearer " + a.apiKey,
	}, req)
	if err != nil {
		return rawError("An unexpected error occurred: ", err.Error())
	}
	if status != http.StatusOK {
		return rawError("OpenAI API Error: ", apiErrorMessage(status, body))
	}
	return Raw{Status: status, Body: body}
}

func (a *OpenAI) ExtractResponse(raw Raw, jsonMode bool) Result {
	if raw.Err != nil {
		return ErrorResult(raw.Err.Message)
	}

	var resp openAIResponse
	if err := json.Unmarshal(raw.Body, &resp); err != nil || len(resp.Choices) == 0 || resp.Choices[0].Message.Content == nil {
		return ErrorResult("Invalid response structure from OpenAI.")
	}

	return finish(a.extractor, *resp.Choices[0].Message.Content, jsonMode)
}

type openAIRequest struct {
	Model          string                `json:"model"`
	Messages       []Message             `json:"messages"`
	ResponseFormat *openAIResponseFormat `json:"response_format,omitempty"`
}

type openAIResponseFormat struct {
	Type string `json:"type"`
}

type openAIResponse struct {
	Choices []openAIChoice `json:"choices"`
}

type openAIChoice struct {
	Message struct {
		Content *string `json:"content"`
	} `json:"message"`
}
