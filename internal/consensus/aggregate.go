// Package consensus asks every enabled provider to judge a question and
// decides the outcome by majority vote.
package consensus

import (
	"errors"
	"fmt"
	"strings"

	"github.com/phrazzld/quizrun-api/internal/provider"
)

// MethodMajority is the only aggregation method.
const MethodMajority = "majority"

// ErrConsensusUnavailable is returned when no provider produced a boolean
// verdict. It means the judges could not be reached, not that they rejected
// the question.
var ErrConsensusUnavailable = errors.New("consensus unavailable: no provider returned a verdict")

// ProviderVerdict is the verdict of one named provider. Unavailable is set
// when the call itself failed.
type ProviderVerdict struct {
	Provider string `json:"provider"`
	provider.Verdict
	Error       string `json:"error,omitempty"`
	Unavailable bool   `json:"unavailable,omitempty"`
}

// Counts tallies the boolean verdicts.
type Counts struct {
	Valid   int    `json:"valid"`
	Invalid int    `json:"invalid"`
	Total   int    `json:"total"`
	Method  string `json:"method"`
}

// Result is the aggregated outcome of a consensus round.
type Result struct {
	Valid                 bool              `json:"valid"`
	Consensus             Counts            `json:"consensus"`
	Issues                []string          `json:"issues"`
	SuggestedCorrectIndex *int              `json:"suggestedCorrectIndex,omitempty"`
	Reasoning             string            `json:"reasoning,omitempty"`
	ProvidersChecked      int               `json:"providersChecked"`
	Verdicts              []ProviderVerdict `json:"verdicts,omitempty"`
}

// Aggregate combines verdicts by majority. Only boolean verdicts count, and a
// tie is invalid. Issues come from the providers that voted invalid, each
// prefixed with the provider name, and the suggested answer comes from the
// first of them that offered one.
func Aggregate(verdicts []ProviderVerdict) (*Result, error) {
	res := &Result{
		Consensus:        Counts{Method: MethodMajority},
		Issues:           []string{},
		ProvidersChecked: len(verdicts),
		Verdicts:         verdicts,
	}

	var reasoning []string
	for _, v := range verdicts {
		if v.Unavailable || v.Valid == nil {
			continue
		}
		res.Consensus.Total++

		if r := strings.TrimSpace(v.Reasoning); r != "" {
			reasoning = append(reasoning, fmt.Sprintf("[%s] %s", v.Provider, r))
		}

		if *v.Valid {
			res.Consensus.Valid++
			continue
		}

		res.Consensus.Invalid++
		for _, issue := range v.Issues {
			if issue = strings.TrimSpace(issue); issue != "" {
				res.Issues = append(res.Issues, fmt.Sprintf("[%s] %s", v.Provider, issue))
			}
		}
		if res.SuggestedCorrectIndex == nil && v.SuggestedCorrectIndex != nil {
			idx := *v.SuggestedCorrectIndex
			res.SuggestedCorrectIndex = &idx
		}
	}

	if res.Consensus.Total == 0 {
		return nil, ErrConsensusUnavailable
	}

	res.Valid = res.Consensus.Valid > res.Consensus.Invalid
	res.Reasoning = strings.Join(reasoning, "\n\n")
	return res, nil
}
