// Package similarity scores how alike two pieces of text are and finds
// near-duplicate answer options and questions.
package similarity

import (
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Default thresholds
const (
	// OptionThreshold flags two options of one question as near-duplicates
	OptionThreshold = 0.8
	// DuplicateThreshold flags two questions as duplicates
	DuplicateThreshold = 0.85
)

// Normalize trims, case-folds and NFC-normalizes s so that visually equal
// strings compare equal.
func Normalize(s string) string {
	// A Caser carries state and must not be shared between goroutines.
	return norm.NFC.String(cases.Fold().String(strings.TrimSpace(s)))
}

// Similarity returns a score in [0,1]: 1 when a and b are equal after
// normalization, otherwise one minus the edit distance divided by the rune
// length of the longer input.
func Similarity(a, b string) float64 {
	na, nb := Normalize(a), Normalize(b)
	if na == nb {
		return 1
	}

	longest := max(utf8.RuneCountInString(na), utf8.RuneCountInString(nb))
	if longest == 0 {
		return 1
	}

	dist := levenshtein.ComputeDistance(na, nb)
	return 1 - float64(dist)/float64(longest)
}

// OptionPair identifies two answer options of the same question that read
// almost the same.
type OptionPair struct {
	First      int     `json:"first"`
	Second     int     `json:"second"`
	Similarity float64 `json:"similarity"`
}

// DuplicateOptions compares every pair of options and returns those scoring
// at or above threshold, in index order.
func DuplicateOptions(options []string, threshold float64) []OptionPair {
	var pairs []OptionPair
	for i := 0; i < len(options); i++ {
		for j := i + 1; j < len(options); j++ {
			score := Similarity(options[i], options[j])
			if score >= threshold {
				pairs = append(pairs, OptionPair{First: i, Second: j, Similarity: score})
			}
		}
	}
	return pairs
}
