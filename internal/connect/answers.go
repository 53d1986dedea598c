package connect

import "strings"

// RequiredCorrect is the number of matching answers needed to connect.
const RequiredCorrect = 3

const (
	PitchHigh = "high"
	PitchLow  = "low"
)

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Score counts the positions at which submitted matches target, ignoring case
// and surrounding whitespace. Positions beyond the shorter slice are ignored.
func Score(submitted, target []string) int {
	n := min(len(submitted), len(target))

	correct := 0
	for i := range n {
		if normalize(submitted[i]) == normalize(target[i]) {
			correct++
		}
	}

	return correct
}

// PitchLevel is the coarse hint returned with a failed attempt.
func PitchLevel(correct int) string {
	if correct >= 2 {
		return PitchHigh
	}
	return PitchLow
}
