package orchestrator

import (
	"regexp"
	"strings"

	"github.com/stupiduntilnot/chatrelay/internal/history"
)

// Leaked rendering prefixes, applied in order. The reply pattern spells out
// a Unicode word boundary because RE2's \b only knows ASCII.
var leakedPrefixes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^\[msg:[^\]]+\]\s*`),
	regexp.MustCompile(`^@[^\n]*?\):\s*`),
	regexp.MustCompile(`^@[^\n]*?:\s*`),
	regexp.MustCompile(`(?i)^(?:@?[^:]{0,80}?(?:^|[^\p{L}\p{N}_])(?:reply|ответ)[^:]{0,40}:)\s*`),
}

// StripPrefix removes metadata prefixes the model copied from the rendered
// history, e.g. "@ann said (message 12):".
func StripPrefix(text string) string {
	cleaned := strings.TrimSpace(text)
	for _, re := range leakedPrefixes {
		cleaned = re.ReplaceAllString(cleaned, "")
	}
	return cleaned
}

// CleanAnswer strips leaked prefixes and image markers from model output.
func CleanAnswer(text string) string {
	cleaned := StripPrefix(text)
	cleaned = strings.ReplaceAll(cleaned, history.UserImageMarker, "")
	cleaned = strings.ReplaceAll(cleaned, history.AssistantImageMarker, "")
	return strings.TrimSpace(cleaned)
}
