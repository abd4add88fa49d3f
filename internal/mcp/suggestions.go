package mcp

import (
	"sort"
	"strings"

	"github.com/hbollon/go-edlib"
)

type scoredCandidate struct {
	value string
	score float64
}

// didYouMean ranks candidates by Jaro-Winkler similarity to query and keeps
// the best few above the threshold
func didYouMean(query string, candidates []string) []string {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil
	}

	var scored []scoredCandidate
	for _, c := range candidates {
		score := similarity(query, strings.ToLower(c))
		if score >= DefaultFuzzyThreshold {
			scored = append(scored, scoredCandidate{value: c, score: score})
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		return scored[i].value < scored[j].value
	})

	out := make([]string, 0, MaxSuggestions)
	for _, c := range scored {
		if len(out) == MaxSuggestions {
			break
		}
		out = append(out, c.value)
	}
	return out
}

func similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if a == "" || b == "" {
		return 0.0
	}
	score, err := edlib.StringsSimilarity(a, b, edlib.JaroWinkler)
	if err != nil {
		return 0.0
	}
	return float64(score)
}
