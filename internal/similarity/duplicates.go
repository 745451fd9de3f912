package similarity

import (
	"math"
	"sort"
	"strings"
)

// Item is a piece of text content identified by ID, with text per language.
type Item struct {
	ID   string
	Text map[string]string
}

// DuplicatePair reports two items whose text in the compared language scored
// at or above the threshold. Similarity is a rounded percentage.
type DuplicatePair struct {
	Question1  string `json:"question1"`
	Question2  string `json:"question2"`
	Similarity int    `json:"similarity"`
}

// FindDuplicates compares every unordered pair of items in lang. Items
// without text in lang are skipped and a pair of IDs is never compared
// twice. Results are sorted by similarity, highest first.
//
// The comparison is quadratic in len(items). That is fine at import batch
// scale; a corpus in the tens of thousands needs a blocking index instead.
func FindDuplicates(items []Item, lang string, threshold float64) []DuplicatePair {
	seen := make(map[string]struct{})
	var pairs []DuplicatePair

	for i := 0; i < len(items); i++ {
		a := strings.TrimSpace(items[i].Text[lang])
		if a == "" {
			continue
		}
		for j := i + 1; j < len(items); j++ {
			if p, ok := compare(items[i], items[j], a, lang, threshold, seen); ok {
				pairs = append(pairs, p)
			}
		}
	}

	sortPairs(pairs)
	return pairs
}

// FindDuplicatesAgainst compares each candidate with the corpus and with the
// candidates before it. Question1 of every pair is the candidate.
func FindDuplicatesAgainst(candidates, corpus []Item, lang string, threshold float64) []DuplicatePair {
	seen := make(map[string]struct{})
	var pairs []DuplicatePair

	for i, cand := range candidates {
		a := strings.TrimSpace(cand.Text[lang])
		if a == "" {
			continue
		}
		for _, other := range corpus {
			if p, ok := compare(cand, other, a, lang, threshold, seen); ok {
				pairs = append(pairs, p)
			}
		}
		for _, earlier := range candidates[:i] {
			if p, ok := compare(cand, earlier, a, lang, threshold, seen); ok {
				pairs = append(pairs, p)
			}
		}
	}

	sortPairs(pairs)
	return pairs
}

func compare(a, b Item, aText, lang string, threshold float64, seen map[string]struct{}) (DuplicatePair, bool) {
	if a.ID == b.ID {
		return DuplicatePair{}, false
	}
	bText := strings.TrimSpace(b.Text[lang])
	if bText == "" {
		return DuplicatePair{}, false
	}

	key := pairKey(a.ID, b.ID)
	if _, done := seen[key]; done {
		return DuplicatePair{}, false
	}
	seen[key] = struct{}{}

	score := Similarity(aText, bText)
	if score < threshold {
		return DuplicatePair{}, false
	}
	return DuplicatePair{
		Question1:  a.ID,
		Question2:  b.ID,
		Similarity: int(math.Round(score * 100)),
	}, true
}

func pairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}

func sortPairs(pairs []DuplicatePair) {
	sort.SliceStable(pairs, func(i, j int) bool {
		return pairs[i].Similarity > pairs[j].Similarity
	})
}
