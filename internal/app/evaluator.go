package app

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"proquiz-service/internal/domain"
)

// SimilarityThreshold is the minimum ratio for a free-text answer to count.
const SimilarityThreshold = 0.90

// Normalize trims surrounding whitespace and case-folds an answer.
func Normalize(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// Evaluate reports whether raw is a correct answer to q. It is pure.
func Evaluate(q domain.Question, raw string) bool {
	answer := Normalize(raw)
	if answer == "" {
		return false
	}
	switch q.Kind {
	case domain.KindChoice:
		idx, ok := letterIndex(answer)
		if !ok || idx >= len(q.Options) {
			return false
		}
		return Normalize(q.Options[idx]) == Normalize(q.CorrectAnswer)
	case domain.KindFreeText:
		return Similarity(answer, Normalize(q.CorrectAnswer)) >= SimilarityThreshold
	default:
		return false
	}
}

// Similarity is the Ratcliff/Obershelp ratio 2*M/T over the characters of
// a and b, as computed by difflib's SequenceMatcher.
func Similarity(a, b string) float64 {
	return difflib.NewMatcher(splitRunes(a), splitRunes(b)).Ratio()
}

func splitRunes(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}

// letterIndex maps "a", "b", ... to 0, 1, ...
func letterIndex(s string) (int, bool) {
	if len(s) != 1 || s[0] < 'a' || s[0] > 'z' {
		return 0, false
	}
	return int(s[0] - 'a'), true
}
