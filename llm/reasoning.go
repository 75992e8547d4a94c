package llm

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultReasoningPattern matches a leading <think>, <scratchpad> or <rationale>
// block. Each tag has its own alternative so a block only closes on its own
// tag name.
const DefaultReasoningPattern = `(?is)^\s*(?:<think>(?P<reasoning>.*?)</think>|<scratchpad>(?P<reasoning>.*?)</scratchpad>|<rationale>(?P<reasoning>.*?)</rationale>)\s*(?P<response>.*)$`

// PostProcessor may rewrite the extracted parts. raw is the unsplit payload.
type PostProcessor func(reasoning *string, response, raw string, jsonMode bool) (*string, string)

// Extractor splits a leading reasoning block from an LLM payload. The same
// Extractor is shared by every adapter a Gateway builds.
type Extractor struct {
	pattern   *regexp.Regexp
	reasoning []int
	response  []int
	post      PostProcessor
}

// NewExtractor compiles pattern, which must define the named groups
// "reasoning" and "response". A name may be repeated across alternatives;
// the first group of that name taking part in the match is used. An empty
// pattern disables extraction. A nil post-processor leaves the parts
// untouched.
func NewExtractor(pattern string, post PostProcessor) (*Extractor, error) {
	e := &Extractor{post: post}
	if pattern == "" {
		return e, nil
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile reasoning pattern: %w", err)
	}
	for i, name := range re.SubexpNames() {
		switch name {
		case "reasoning":
			e.reasoning = append(e.reasoning, i)
		case "response":
			e.response = append(e.response, i)
		}
	}
	if len(e.reasoning) == 0 || len(e.response) == 0 {
		return nil, fmt.Errorf("reasoning pattern must define named groups \"reasoning\" and \"response\"")
	}
	e.pattern = re
	return e, nil
}

// DefaultExtractor uses DefaultReasoningPattern and no post-processor.
func DefaultExtractor() *Extractor {
	e, err := NewExtractor(DefaultReasoningPattern, nil)
	if err != nil {
		panic(err)
	}
	return e
}

// Extract returns (reasoning, response). Without a match reasoning is nil and
// response is raw unchanged; with a match both parts are trimmed.
func (e *Extractor) Extract(raw string, jsonMode bool) (*string, string) {
	reasoning, response := e.split(raw)
	if e.post != nil {
		reasoning, response = e.post(reasoning, response, raw, jsonMode)
	}
	return reasoning, response
}

func (e *Extractor) split(raw string) (*string, string) {
	if e == nil || e.pattern == nil {
		return nil, raw
	}

	loc := e.pattern.FindStringSubmatchIndex(raw)
	if loc == nil {
		return nil, raw
	}

	reasoning, ok := group(raw, loc, e.reasoning)
	if !ok {
		return nil, raw
	}
	response, _ := group(raw, loc, e.response)

	reasoning = strings.TrimSpace(reasoning)
	return &reasoning, strings.TrimSpace(response)
}

// group returns the text of the first of the indexed groups that took part
// in the match.
func group(raw string, loc []int, indexes []int) (string, bool) {
	for _, i := range indexes {
		if start := loc[2*i]; start >= 0 {
			return raw[start:loc[2*i+1]], true
		}
	}
	return "", false
}
