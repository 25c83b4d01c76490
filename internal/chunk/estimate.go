package chunk

import "strings"

// EstimateTokens approximates the subword token count of text: about 1.3
// tokens per whitespace-separated word, plus a 10% safety margin. Integer
// arithmetic keeps the ceilings exact.
func EstimateTokens(text string) int {
	words := len(strings.Fields(text))
	if words == 0 {
		return 0
	}
	base := (words*13 + 9) / 10
	return (base*11 + 9) / 10
}
