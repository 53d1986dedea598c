// Package content produces the poems and cryptic messages derived from a
// user's secret answers.
package content

import (
	"context"
	"strings"
)

// Generator turns a list of inputs into text. Implementations always return
// non-empty text.
type Generator interface {
	Generate(ctx context.Context, inputs []string) string
}

var placeholders = [3]string{"mystery", "shadow", "whisper"}

// Clues holds the three answers a piece of text is built from.
type Clues struct {
	First  string
	Second string
	Third  string
}

// CluesFrom takes up to three inputs, substituting a placeholder word for
// every missing or blank one.
func CluesFrom(inputs []string) Clues {
	var vals [3]string
	for i := range vals {
		vals[i] = placeholders[i]
		if i < len(inputs) {
			if v := strings.TrimSpace(inputs[i]); v != "" {
				vals[i] = v
			}
		}
	}

	return Clues{First: vals[0], Second: vals[1], Third: vals[2]}
}

func (c Clues) slice() []string {
	return []string{c.First, c.Second, c.Third}
}
