package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Hash returns the content hash of a test body or a single step. Leading and
// trailing whitespace is ignored; everything else, including case and inner
// spacing, is significant.
func Hash(text string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(text)))
	return hex.EncodeToString(sum[:])
}

// SplitSteps returns the non-empty, trimmed lines of a test body in order.
func SplitSteps(testText string) []string {
	lines := strings.Split(testText, "\n")
	steps := make([]string, 0, len(lines))
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			steps = append(steps, line)
		}
	}
	return steps
}

// DistinctSteps counts the steps that hash differently.
func DistinctSteps(steps []string) int {
	seen := make(map[string]struct{}, len(steps))
	for _, s := range steps {
		seen[Hash(s)] = struct{}{}
	}
	return len(seen)
}
