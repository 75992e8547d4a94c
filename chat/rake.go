package chat

import (
	"sort"
	"strings"

	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
)

var (
	tokenizer = unicode.NewUnicodeTokenizer()
	stopWords = loadStopWords()
)

func loadStopWords() analysis.TokenMap {
	m := analysis.NewTokenMap()
	if err := m.LoadBytes(en.EnglishStopWords); err != nil {
		panic(err)
	}
	return m
}

// Phrase is a candidate keyword phrase and its RAKE score.
type Phrase struct {
	Text  string
	Score float64
}

// ExtractPhrases scores the keyword phrases of text with RAKE and returns
// them best first. Phrases are runs of non-stop words not broken by
// punctuation; ties keep their order of first appearance.
func ExtractPhrases(text string) []Phrase {
	phrases := splitPhrases(strings.ToLower(text))
	if len(phrases) == 0 {
		return nil
	}

	freq := map[string]float64{}
	degree := map[string]float64{}
	for _, p := range phrases {
		for _, w := range p {
			freq[w]++
			degree[w] += float64(len(p) - 1)
		}
	}

	var out []Phrase
	seen := map[string]bool{}
	for _, p := range phrases {
		key := strings.Join(p, " ")
		if seen[key] {
			continue
		}
		seen[key] = true

		var score float64
		for _, w := range p {
			score += (degree[w] + freq[w]) / freq[w]
		}
		out = append(out, Phrase{Text: key, Score: score})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}

// TopKeywords returns up to limit words of the best RAKE phrase of text.
func TopKeywords(text string, limit int) []string {
	phrases := ExtractPhrases(text)
	if len(phrases) == 0 {
		return nil
	}
	words := strings.Fields(phrases[0].Text)
	if len(words) > limit {
		words = words[:limit]
	}
	return words
}

// splitPhrases breaks the word tokens of text into phrases at stop words,
// numbers and any punctuation between two tokens.
func splitPhrases(text string) [][]string {
	var (
		phrases [][]string
		current []string
		prevEnd int
	)
	flush := func() {
		if len(current) > 0 {
			phrases = append(phrases, current)
			current = nil
		}
	}

	for _, tok := range tokenizer.Tokenize([]byte(text)) {
		if strings.TrimSpace(text[prevEnd:tok.Start]) != "" {
			flush()
		}
		prevEnd = tok.End

		word := string(tok.Term)
		if tok.Type == analysis.Numeric || stopWords[word] {
			flush()
			continue
		}
		current = append(current, word)
	}
	flush()
	return phrases
}
