package similarity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func en(id, text string) Item {
	return Item{ID: id, Text: map[string]string{"en": text}}
}

func TestFindDuplicates(t *testing.T) {
	t.Parallel()

	items := []Item{
		en("q1", "What is the capital of France?"),
		en("q2", "What is the capital of Spain?"),
		en("q3", "what is the capital of france?"),
		en("q4", "How many legs does a spider have?"),
		{ID: "q5", Text: map[string]string{"de": "Was ist die Hauptstadt von Frankreich?"}},
		en("q1", "What is the capital of France?"),
	}

	pairs := FindDuplicates(items, "en", DuplicateThreshold)
	require.NotEmpty(t, pairs)

	assert.Equal(t, "q1", pairs[0].Question1)
	assert.Equal(t, "q3", pairs[0].Question2)
	assert.Equal(t, 100, pairs[0].Similarity)

	seen := map[string]bool{}
	for i, p := range pairs {
		assert.NotEqual(t, p.Question1, p.Question2)
		key := pairKey(p.Question1, p.Question2)
		assert.False(t, seen[key], "pair %s reported twice", key)
		seen[key] = true
		assert.NotEqual(t, "q4", p.Question1)
		assert.NotEqual(t, "q5", p.Question2)
		if i > 0 {
			assert.GreaterOrEqual(t, pairs[i-1].Similarity, p.Similarity)
		}
		assert.GreaterOrEqual(t, p.Similarity, 85)
		assert.LessOrEqual(t, p.Similarity, 100)
	}
}

func TestFindDuplicatesSkipsMissingLanguage(t *testing.T) {
	t.Parallel()

	items := []Item{
		{ID: "a", Text: map[string]string{"de": "Hallo"}},
		{ID: "b", Text: map[string]string{"de": "Hallo"}},
	}
	assert.Empty(t, FindDuplicates(items, "en", DuplicateThreshold))
	assert.Len(t, FindDuplicates(items, "de", DuplicateThreshold), 1)
}

func TestFindDuplicatesAgainst(t *testing.T) {
	t.Parallel()

	corpus := []Item{
		en("c1", "Which planet is the largest in the solar system?"),
		en("c2", "Who painted the Mona Lisa?"),
	}
	candidates := []Item{
		en("n1", "Which planet is the largest in our solar system?"),
		en("n2", "What is the boiling point of water at sea level?"),
		en("n3", "What is the boiling point of water at sea level"),
	}

	pairs := FindDuplicatesAgainst(candidates, corpus, "en", DuplicateThreshold)
	require.Len(t, pairs, 2)

	byCandidate := map[string]string{}
	for _, p := range pairs {
		byCandidate[p.Question1] = p.Question2
	}
	assert.Equal(t, "c1", byCandidate["n1"])
	assert.Equal(t, "n2", byCandidate["n3"])
}
