package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPermutationsOrder(t *testing.T) {
	assert.Equal(t, [][]string{{"a", "b"}, {"b", "a"}}, Permutations([]string{"a", "b"}))
	assert.Equal(t, [][]string{{"a"}}, Permutations([]string{"a"}))
	assert.Len(t, Permutations([]string{"a", "b", "c", "d"}), 24)
}

func TestCombinations(t *testing.T) {
	assert.Equal(t, []string{"a b", "b a"}, Combinations([]string{"a", "b"}))
	assert.Equal(t, []string{"a"}, Combinations([]string{"a"}))

	assert.Equal(t, []string{
		"a b c", "b a c", "a c b", "c a b", "b c a", "c b a",
		"b c", "c b", "a c", "c a", "a b", "b a",
		"c", "b", "a",
	}, Combinations([]string{"a", "b", "c"}))

	four := Combinations([]string{"w", "x", "y", "z"})
	assert.Len(t, four, 24+24+12)
	assert.Equal(t, "w x y z", four[0])
}

func TestCombinationsRepeatedWord(t *testing.T) {
	got := Combinations([]string{"a", "a", "b", "c"})
	assert.Len(t, got, 12+12+7)
	assert.Contains(t, got, "a a c")
	assert.Contains(t, got, "b a a")
	assert.Contains(t, got, "a a")
	assert.Contains(t, got, "a c")
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `100\%\_off\\`, escapeLike(`100%_off\`))
	assert.Equal(t, "plain", escapeLike("plain"))
}

func TestExtractPhrases(t *testing.T) {
	phrases := ExtractPhrases("Game development companies are licensing their engines.")
	assert.Equal(t, []Phrase{
		{Text: "game development companies", Score: 9},
		{Text: "licensing", Score: 1},
		{Text: "engines", Score: 1},
	}, phrases)

	assert.Empty(t, ExtractPhrases("it is what it is"))
	assert.Empty(t, ExtractPhrases(""))
}

func TestExtractPhrasesPunctuationSplits(t *testing.T) {
	phrases := ExtractPhrases("Open data, open government: public records in 2024!")
	var texts []string
	for _, p := range phrases {
		texts = append(texts, p.Text)
	}
	assert.ElementsMatch(t, []string{"open data", "open government", "public records"}, texts)

	phrases = ExtractPhrases("Users don't read privacy policies")
	require.Len(t, phrases, 2)
	assert.Equal(t, Phrase{Text: "read privacy policies", Score: 9}, phrases[0])
	assert.Equal(t, Phrase{Text: "users", Score: 1}, phrases[1])
}

func TestTopKeywords(t *testing.T) {
	assert.Equal(t, []string{"digital", "rights", "management", "systems"},
		TopKeywords("Digital rights management systems restrict lawful private copying.", 4))
	assert.Nil(t, TopKeywords("and the of", 4))
}
