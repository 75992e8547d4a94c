package llm

import "strings"

const errorPrefix = "Error: "

// Kind tags the shape of a normalized provider result.
type Kind int

const (
	// KindError carries an "Error: ..." string in Result.Err.
	KindError Kind = iota
	// KindNull means JSON mode was requested and the payload was not a JSON object or array.
	KindNull
	// KindText carries Reasoning and Response.
	KindText
	// KindJSON carries a decoded map[string]any or []any in Result.JSON.
	KindJSON
)

func (k Kind) String() string {
	switch k {
	case KindError:
		return "error"
	case KindNull:
		return "null"
	case KindText:
		return "text"
	case KindJSON:
		return "json"
	default:
		return "unknown"
	}
}

// Result is the normalized output of Adapter.ExtractResponse and Gateway.Send.
// Callers must check Kind before reading the other fields.
type Result struct {
	Kind      Kind
	Err       string
	Reasoning *string
	Response  string
	JSON      any
}

// ErrorResult builds a KindError result, adding the "Error: " prefix when missing.
func ErrorResult(msg string) Result {
	if !strings.HasPrefix(msg, errorPrefix) {
		msg = errorPrefix + msg
	}
	return Result{Kind: KindError, Err: msg}
}

// NullResult is returned for unparseable JSON-mode payloads.
func NullResult() Result {
	return Result{Kind: KindNull}
}

// TextResult builds a free-text result.
func TextResult(reasoning *string, response string) Result {
	return Result{Kind: KindText, Reasoning: reasoning, Response: response}
}

// JSONResult builds a parsed JSON container result.
func JSONResult(v any) Result {
	return Result{Kind: KindJSON, JSON: v}
}

// IsError reports whether the result is an error string.
func (r Result) IsError() bool {
	return r.Kind == KindError
}

// TaggedError is what Execute produces instead of a Go error, so every
// provider failure flows through ExtractResponse the same way.
type TaggedError struct {
	Message string
}

func (e *TaggedError) Error() string {
	return e.Message
}

// Raw is the unparsed outcome of Adapter.Execute: either a response body or a
// tagged error, never both.
type Raw struct {
	Status int
	Body   []byte
	Err    *TaggedError
}

func rawError(prefix, msg string) Raw {
	return Raw{Err: &TaggedError{Message: prefix + msg}}
}
