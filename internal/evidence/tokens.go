package evidence

import "unicode/utf8"

// EstimateTokens approximates the token count of a text as bytes/4. Every
// budget in the pipeline uses the same estimate so selection stays
// deterministic across re-runs.
func EstimateTokens(s string) int {
	return (len(s) + 3) / 4
}

// TruncateTokens trims s to approximately maxTokens, backing up to the
// nearest rune boundary so a multi-byte character is never split.
func TruncateTokens(s string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	maxBytes := maxTokens * 4
	if len(s) <= maxBytes {
		return s
	}
	for maxBytes > 0 && !utf8.RuneStart(s[maxBytes]) {
		maxBytes--
	}
	return s[:maxBytes]
}
