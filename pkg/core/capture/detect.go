package capture

import (
	"regexp"
	"strings"
)

var namePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bmy name is\s+([a-zA-Z][a-zA-Z\s'-]{1,40})`),
	regexp.MustCompile(`(?i)\bcall me\s+([a-zA-Z][a-zA-Z\s'-]{1,40})`),
}

var (
	sentenceCut   = regexp.MustCompile(`[.!?,;]`)
	trailingJoins = regexp.MustCompile(`(?i)\b(and|but|so)\b.*`)
	wordSplit     = regexp.MustCompile(`[\s-]+`)
)

const (
	maxNameWords      = 3
	minNameWordLength = 2
)

// DetectName extracts a likely personal name from a transcript fragment.
// It tries each colloquial pattern in order and validates the first capture:
// at most three alphabetic words of at least two letters each. Returns the
// title-cased name, or "" when nothing plausible is found.
func DetectName(text string) string {
	if text == "" {
		return ""
	}

	normalized := strings.TrimSpace(text)
	for _, pattern := range namePatterns {
		match := pattern.FindStringSubmatch(normalized)
		if match == nil {
			continue
		}

		candidate := sentenceCut.Split(match[1], 2)[0]
		candidate = strings.TrimSpace(trailingJoins.ReplaceAllString(candidate, ""))

		var words []string
		for _, w := range wordSplit.Split(candidate, -1) {
			if w != "" {
				words = append(words, w)
			}
		}

		if len(words) == 0 || len(words) > maxNameWords {
			continue
		}
		if !validNameWords(words) {
			continue
		}

		formatted := make([]string, len(words))
		for i, w := range words {
			formatted[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
		}
		name := strings.Join(formatted, " ")
		if len(name) <= minNameWordLength {
			continue
		}
		return name
	}

	return ""
}

func validNameWords(words []string) bool {
	for _, w := range words {
		if len(w) < minNameWordLength {
			return false
		}
		for _, r := range w {
			if !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')) {
				return false
			}
		}
	}
	return true
}
