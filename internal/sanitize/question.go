// Package sanitize validates and cleans user input before it reaches the
// retrieval or generation stages.
package sanitize

import (
	"errors"
	"fmt"
	"html"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ErrInvalidInput reports a question that is malformed, empty, or unsafe.
var ErrInvalidInput = errors.New("invalid input")

const (
	// MinQuestionLength and MaxQuestionLength bound the trimmed question in runes.
	MinQuestionLength = 3
	MaxQuestionLength = 1000

	maxSpecialRatio = 0.30
)

// bannedPhrases are matched against the lower-cased question after tag
// stripping and before encoding.
var bannedPhrases = []string{
	"ignore previous",
	"ignore all",
	"ignore instructions",
	"you are now",
	"admin mode",
	"system mode",
	"reveal password",
	"show password",
	"show database",
	"drop table",
	"delete from",
	"<script",
	"</script>",
	"javascript:",
	"onerror=",
	"onclick=",
	"onload=",
	"eval(",
	"execute(",
	"system(",
	"exec(",
}

var (
	scriptBlock  = regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script\s*>`)
	htmlTag      = regexp.MustCompile(`<[^>]*>`)
	controlChars = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F]`)
)

// ValidateQuestion enforces the request contract: 3 to 1000 runes after
// trimming. It runs before Question so short input fails without any
// downstream work.
func ValidateQuestion(raw string) error {
	n := utf8.RuneCountInString(strings.TrimSpace(raw))
	switch {
	case n == 0:
		return fmt.Errorf("%w: question is required", ErrInvalidInput)
	case n < MinQuestionLength:
		return fmt.Errorf("%w: question must be at least %d characters", ErrInvalidInput, MinQuestionLength)
	case n > MaxQuestionLength:
		return fmt.Errorf("%w: question must be at most %d characters", ErrInvalidInput, MaxQuestionLength)
	}
	return nil
}

// Question returns a cleaned, HTML-escaped copy of raw, or an error
// wrapping ErrInvalidInput. Steps run in a fixed order: trim, strip script
// blocks and tags, denylist, special-character density, truncate, strip
// control characters, escape, final emptiness check.
func Question(raw string) (string, error) {
	q := strings.TrimSpace(raw)
	if q == "" {
		return "", fmt.Errorf("%w: question cannot be empty", ErrInvalidInput)
	}

	q = scriptBlock.ReplaceAllString(q, "")
	q = htmlTag.ReplaceAllString(q, "")

	lower := strings.ToLower(q)
	for _, phrase := range bannedPhrases {
		if strings.Contains(lower, phrase) {
			return "", fmt.Errorf("%w: question contains potentially harmful content: %q", ErrInvalidInput, phrase)
		}
	}

	if ratio := specialRatio(q); ratio > maxSpecialRatio {
		return "", fmt.Errorf("%w: question contains too many special characters", ErrInvalidInput)
	}

	q = truncateRunes(q, MaxQuestionLength)
	q = controlChars.ReplaceAllString(q, "")
	q = html.EscapeString(q)

	if strings.TrimSpace(q) == "" {
		return "", fmt.Errorf("%w: question is empty after sanitization", ErrInvalidInput)
	}
	return q, nil
}

// IsSafe reports whether Question would accept raw.
func IsSafe(raw string) bool {
	_, err := Question(raw)
	return err == nil
}

// specialRatio is the share of runes that are neither letters, digits,
// combining marks, nor whitespace. Marks count as letters so decomposed
// Vietnamese text is not penalised.
func specialRatio(s string) float64 {
	total, special := 0, 0
	for _, r := range s {
		total++
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r) || unicode.IsSpace(r) {
			continue
		}
		special++
	}
	if total == 0 {
		return 0
	}
	return float64(special) / float64(total)
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
