// Package linkx finds marketplace product links inside free-form chat text.
package linkx

import (
	"reflect"
	"regexp"
	"strings"
)

// DefaultToken classifies a URL as a Shopee link.
const DefaultToken = "shopee"

// urlPattern matches http(s):// followed by a greedy run of non-whitespace.
// RE2's \s is ASCII only; Unicode separators and the BOM also end a URL.
var urlPattern = regexp.MustCompile(`https?://[^\s\v\pZ\x{feff}]+`)

var defaultExtractor = New()

// Extractor keeps URLs that contain at least one of its marketplace tokens.
// It holds no mutable state and is safe for concurrent use.
type Extractor struct {
	tokens []string
}

// New builds an Extractor for the given tokens. Blank tokens are ignored;
// with none left the extractor falls back to DefaultToken.
func New(tokens ...string) *Extractor {
	var kept []string
	for _, t := range tokens {
		if strings.TrimSpace(t) == "" {
			continue
		}
		kept = append(kept, t)
	}
	if len(kept) == 0 {
		kept = []string{DefaultToken}
	}
	return &Extractor{tokens: kept}
}

// Tokens returns a copy of the marketplace tokens.
func (e *Extractor) Tokens() []string {
	out := make([]string, len(e.tokens))
	copy(out, e.tokens)
	return out
}

// Extract returns the marketplace URLs found in input, in order of
// appearance and without deduplication. Anything that is not a non-empty
// string yields an empty slice.
func (e *Extractor) Extract(input any) []string {
	text, ok := asString(input)
	if !ok || text == "" {
		return []string{}
	}
	out := []string{}
	for _, u := range ExtractURLs(text) {
		if e.Matches(u) {
			out = append(out, u)
		}
	}
	return out
}

// Matches reports whether u contains one of the tokens (case-sensitive).
func (e *Extractor) Matches(u string) bool {
	_, ok := e.Marketplace(u)
	return ok
}

// Marketplace returns the first token contained in u.
func (e *Extractor) Marketplace(u string) (string, bool) {
	for _, t := range e.tokens {
		if strings.Contains(u, t) {
			return t, true
		}
	}
	return "", false
}

// ExtractURLs returns every http(s) URL in text, unfiltered.
func ExtractURLs(text string) []string {
	matches := urlPattern.FindAllString(text, -1)
	if matches == nil {
		return []string{}
	}
	return matches
}

// Extract runs the default Shopee extractor.
func Extract(input any) []string { return defaultExtractor.Extract(input) }

// Classify reports whether u is a Shopee link.
func Classify(u string) bool { return defaultExtractor.Matches(u) }

func asString(input any) (string, bool) {
	switch v := input.(type) {
	case nil:
		return "", false
	case string:
		return v, true
	case *string:
		if v == nil {
			return "", false
		}
		return *v, true
	}
	rv := reflect.ValueOf(input)
	if rv.Kind() == reflect.String {
		return rv.String(), true
	}
	return "", false
}
