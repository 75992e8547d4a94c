package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"
)

const defaultTimeout = 120 * time.Second

// Adapter translates provider-agnostic messages into one vendor's wire
// format and normalizes the reply. Execute and ExtractResponse never return
// Go errors: failures are carried in Raw.Err and Result.
type Adapter interface {
	// BuildClient validates credentials and endpoint config. No network I/O.
	BuildClient() error
	BuildRequest(msgs []Message, model string, jsonMode bool) any
	Execute(ctx context.Context, req any) Raw
	ExtractResponse(raw Raw, jsonMode bool) Result
}

// Deps are the collaborators a Factory hands to every adapter it builds.
type Deps struct {
	HTTPClient *http.Client
	Extractor  *Extractor
}

func (d Deps) withDefaults() Deps {
	if d.HTTPClient == nil {
		d.HTTPClient = &http.Client{Timeout: defaultTimeout}
	}
	if d.Extractor == nil {
		d.Extractor = DefaultExtractor()
	}
	return d
}

// finish runs reasoning extraction and, in JSON mode, container decoding on
// the text payload already pulled out of a provider envelope.
func finish(ex *Extractor, text string, jsonMode bool) Result {
	reasoning, response := ex.Extract(text, jsonMode)
	if !jsonMode {
		return TextResult(reasoning, response)
	}
	return decodeContainer(response)
}

func decodeContainer(s string) Result {
	s = stripMarkdownCodeBlock(s)

	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		slog.Warn("llm json decode failed", "error", err)
		return NullResult()
	}

	switch v.(type) {
	case map[string]any, []any:
		return JSONResult(v)
	default:
		slog.Warn("llm json payload is not an object or array")
		return NullResult()
	}
}

var codeBlockRegex = regexp.MustCompile("(?s)^\\s*```(?:json)?\\s*(.+?)\\s*```\\s*$")

func stripMarkdownCodeBlock(s string) string {
	s = strings.TrimSpace(s)
	if matches := codeBlockRegex.FindStringSubmatch(s); len(matches) > 1 {
		return strings.TrimSpace(matches[1])
	}
	return s
}

// postJSON sends payload and returns the status and full body. A non-nil
// error means the exchange itself failed.
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, payload any) (int, []byte, error) {
	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, body, nil
}

// apiErrorMessage pulls {"error":{"message":...}} out of a body, falling
// back to the HTTP status.
func apiErrorMessage(status int, body []byte) string {
	var env struct {
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &env); err == nil && env.Error != nil && env.Error.Message != "" {
		return env.Error.Message
	}
	return fmt.Sprintf("unexpected status: %d", status)
}

func trimBaseURL(u string) string {
	return strings.TrimRight(u, "/")
}
