// Package content checks and cleans user-written vouch messages.
package content

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// RedactionMarker replaces every banned term found in a message.
const RedactionMarker = "[redacted]"

// DefaultMaxLength is the message cap used when none is configured.
const DefaultMaxLength = 120

// DefaultBannedTerms is the stock term list.
var DefaultBannedTerms = []string{
	"scam", "fraud", "fake", "cheat", "steal", "hack",
	"phishing", "ponzi", "pyramid",
}

// ErrTooLong is returned by Clean when a message exceeds the length cap.
var ErrTooLong = errors.New("message too long")

// Filter holds the banned-term set and length cap applied to messages.
type Filter struct {
	maxLen  int
	pattern *regexp.Regexp
}

// NewFilter builds a Filter. Terms are matched case-insensitively anywhere in
// the text. A maxLen <= 0 falls back to DefaultMaxLength.
func NewFilter(terms []string, maxLen int) *Filter {
	if maxLen <= 0 {
		maxLen = DefaultMaxLength
	}
	f := &Filter{maxLen: maxLen}

	quoted := make([]string, 0, len(terms))
	for _, term := range terms {
		term = strings.TrimSpace(term)
		if term != "" {
			quoted = append(quoted, regexp.QuoteMeta(term))
		}
	}
	if len(quoted) > 0 {
		f.pattern = regexp.MustCompile("(?i)(" + strings.Join(quoted, "|") + ")")
	}
	return f
}

// MaxLength returns the configured cap in characters.
func (f *Filter) MaxLength() int {
	return f.maxLen
}

// Sanitize replaces banned terms with RedactionMarker. It never rejects.
func (f *Filter) Sanitize(text string) string {
	if f.pattern == nil || text == "" {
		return text
	}
	return f.pattern.ReplaceAllString(text, RedactionMarker)
}

// Clean trims text, enforces the length cap on the input, sanitizes it and
// cuts the sanitized text back to the cap, so the result never exceeds
// MaxLength runes.
func (f *Filter) Clean(text string) (string, error) {
	text = strings.TrimSpace(text)
	if n := utf8.RuneCountInString(text); n > f.maxLen {
		return "", fmt.Errorf("%w: %d characters, limit is %d", ErrTooLong, n, f.maxLen)
	}
	return truncateRunes(f.Sanitize(text), f.maxLen), nil
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
