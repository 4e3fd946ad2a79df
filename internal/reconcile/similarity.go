package reconcile

import (
	"strings"

	"github.com/agnivade/levenshtein"
)

// DefaultMaxDescriptionRunes bounds the edit-distance table for long descriptions
const DefaultMaxDescriptionRunes = 512

// Similarity returns a 0-100 score for two free-text descriptions.
// Both inputs are lowercased and trimmed; identical inputs (including two
// empty strings) score 100.
func Similarity(a, b string) float64 {
	return SimilarityWithLimit(a, b, DefaultMaxDescriptionRunes)
}

// SimilarityWithLimit is Similarity with an explicit rune cap per input.
// A non-positive limit disables truncation.
func SimilarityWithLimit(a, b string, maxRunes int) float64 {
	na := normalizeDescription(a, maxRunes)
	nb := normalizeDescription(b, maxRunes)

	if na == nb {
		return 100
	}

	maxLen := len([]rune(na))
	if l := len([]rune(nb)); l > maxLen {
		maxLen = l
	}
	if maxLen == 0 {
		return 100
	}

	distance := levenshtein.ComputeDistance(na, nb)

	return float64(maxLen-distance) * 100 / float64(maxLen)
}

func normalizeDescription(s string, maxRunes int) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if maxRunes > 0 {
		if r := []rune(s); len(r) > maxRunes {
			s = string(r[:maxRunes])
		}
	}
	return s
}
