package scoring

import (
	"encoding/json"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"

	"socrates/feeds"
	"socrates/llm"
)

const maxConfidence = 100

// Entry is one validated element of the LLM's results array.
type Entry struct {
	PostID     int
	Score      int
	Confidence int
	Category   string
}

// Scored is an article that cleared the threshold, annotated with its rating.
type Scored struct {
	Title      string
	URL        string
	Excerpt    string
	Score      int
	Category   string
	Confidence int
}

// Batch is the ordered list of links submitted in one prompt.
type Batch []feeds.Link

// At returns the link the LLM referred to as postID (1-based).
func (b Batch) At(postID int) (feeds.Link, bool) {
	i := postID - 1
	if i < 0 || i >= len(b) {
		return feeds.Link{}, false
	}
	return b[i], true
}

// Score correlates the LLM's JSON reply with links and keeps entries whose
// score is at least threshold, in the order the LLM returned them. Anything
// other than a JSON result yields no output.
func Score(result llm.Result, links []feeds.Link, threshold int) []Scored {
	if result.Kind != llm.KindJSON {
		slog.Warn("scoring skipped, llm result is not json", "kind", result.Kind.String(), "error", result.Err)
		return nil
	}

	entries, ok := ParseEntries(result.JSON)
	if !ok {
		slog.Warn("scoring skipped, llm json has no usable results array")
		return nil
	}

	batch := Batch(links)
	var out []Scored
	for _, e := range entries {
		link, ok := batch.At(e.PostID)
		if !ok {
			slog.Warn("skipping scored entry with unknown post_id", "post_id", e.PostID, "submitted", len(batch))
			continue
		}
		if e.Score < threshold {
			continue
		}
		out = append(out, Scored{
			Title:      link.Title,
			URL:        link.URL,
			Excerpt:    link.Excerpt,
			Score:      e.Score,
			Category:   e.Category,
			Confidence: e.Confidence,
		})
	}
	return out
}

// ParseEntries accepts either {"results": [...]} or a bare array (or a
// keyed object of entries) and returns the entries that carry all four
// fields. ok is false when there is no container to read.
func ParseEntries(v any) ([]Entry, bool) {
	items, ok := resultItems(v)
	if !ok {
		return nil, false
	}

	entries := make([]Entry, 0, len(items))
	for _, item := range items {
		e, ok := parseEntry(item)
		if !ok {
			slog.Warn("skipping invalid scored entry", "item", item)
			continue
		}
		entries = append(entries, e)
	}
	return entries, true
}

func resultItems(v any) ([]any, bool) {
	switch t := v.(type) {
	case []any:
		return t, true
	case map[string]any:
		if inner, ok := t["results"]; ok {
			return containerValues(inner)
		}
		// A single entry object or an object keyed by index.
		if _, ok := t["post_id"]; ok {
			return []any{t}, true
		}
		items, _ := containerValues(t)
		return items, true
	default:
		return nil, false
	}
}

func containerValues(v any) ([]any, bool) {
	switch t := v.(type) {
	case []any:
		return t, true
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sortKeys(keys)
		items := make([]any, 0, len(keys))
		for _, k := range keys {
			items = append(items, t[k])
		}
		return items, true
	default:
		return nil, false
	}
}

// sortKeys orders numeric keys numerically, then the rest lexically, so a
// keyed object is read in a deterministic order.
func sortKeys(keys []string) {
	less := func(a, b string) bool {
		ai, aerr := strconv.Atoi(a)
		bi, berr := strconv.Atoi(b)
		switch {
		case aerr == nil && berr == nil:
			return ai < bi
		case aerr == nil:
			return true
		case berr == nil:
			return false
		default:
			return a < b
		}
	}
	sort.Slice(keys, func(i, j int) bool { return less(keys[i], keys[j]) })
}

func parseEntry(item any) (Entry, bool) {
	m, ok := item.(map[string]any)
	if !ok {
		return Entry{}, false
	}

	postID, ok1 := m["post_id"]
	score, ok2 := m["score"]
	confidence, ok3 := m["confidence"]
	category, ok4 := m["category"]
	if !ok1 || !ok2 || !ok3 || !ok4 || postID == nil || score == nil || confidence == nil || category == nil {
		return Entry{}, false
	}

	// Post ids are 1-based; a negative id names no link.
	if number(postID) < 0 {
		return Entry{}, false
	}

	e := Entry{
		PostID:     absInt(postID),
		Score:      absInt(score),
		Confidence: min(absInt(confidence), maxConfidence),
		Category:   strings.TrimSpace(toString(category)),
	}
	return e, true
}

// absInt converts a JSON number, numeric string or bool to a non-negative int.
// Anything else is 0.
func absInt(v any) int {
	f := number(v)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return int(math.Abs(math.Trunc(f)))
}

// number reads v as a float. Values that are not numeric are 0.
func number(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case json.Number:
		f, _ := t.Float64()
		return f
	case string:
		return leadingNumber(strings.TrimSpace(t))
	case bool:
		if t {
			return 1
		}
		return 0
	default:
		return 0
	}
}

// leadingNumber parses the numeric prefix of s ("8/10" is 8).
func leadingNumber(s string) float64 {
	end := 0
	for end < len(s) {
		c := s[end]
		if (c >= '0' && c <= '9') || c == '.' || (end == 0 && (c == '-' || c == '+')) {
			end++
			continue
		}
		break
	}
	f, err := strconv.ParseFloat(s[:end], 64)
	if err != nil {
		return 0
	}
	return f
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}
