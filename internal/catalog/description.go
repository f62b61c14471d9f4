// Package catalog holds the catalog's content pipeline: description
// cleanup, cover images and bulk import from JSON manifests.
package catalog

import (
	"regexp"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
)

// htmlTagPattern detects descriptions pasted from publisher pages.
var htmlTagPattern = regexp.MustCompile(`<(p|br|div|span|b|i|strong|em|a|ul|ol|li|h[1-6]|blockquote)[\s>/]`)

// MaxDescriptionLength caps a stored description, in runes.
const MaxDescriptionLength = 8000

func containsHTML(s string) bool {
	return htmlTagPattern.MatchString(strings.ToLower(s))
}

// NormalizeDescription converts HTML to Markdown, trims it and caps its length.
// Plain text passes through apart from trimming.
func NormalizeDescription(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	if containsHTML(s) {
		if markdown, err := htmltomarkdown.ConvertString(s); err == nil {
			s = strings.TrimSpace(markdown)
		}
	}
	if r := []rune(s); len(r) > MaxDescriptionLength {
		s = strings.TrimSpace(string(r[:MaxDescriptionLength]))
	}
	return s
}
