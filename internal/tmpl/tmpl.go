// Package tmpl renders repost templates with placeholder substitution.
package tmpl

import (
	"errors"
	"strings"
)

// Placeholders understood by Render.
const (
	Message      = "{message}"
	Link         = "{link}"
	Links        = "{links}"
	OriginalLink = "{original_link}"
	GroupName    = "{group_name}"
)

// ErrNoContent means the template would drop the converted links.
var ErrNoContent = errors.New("template must contain {message}, {link} or {links}")

// Data feeds one rendering.
type Data struct {
	// Message is the source text with product links already replaced.
	Message string
	// Links are the affiliate links in order of appearance.
	Links []string
	// Originals are the product links as posted, parallel to Links.
	Originals []string
	GroupName string
}

// Render substitutes placeholders in body. An empty body renders the message
// unchanged. Unknown placeholders are left as they are.
func Render(body string, d Data) string {
	if strings.TrimSpace(body) == "" {
		return d.Message
	}
	r := strings.NewReplacer(
		Message, d.Message,
		Links, strings.Join(d.Links, "\n"),
		Link, first(d.Links),
		OriginalLink, first(d.Originals),
		GroupName, d.GroupName,
	)
	return strings.TrimSpace(r.Replace(body))
}

// Validate checks that body carries the converted content somewhere.
func Validate(body string) error {
	if strings.TrimSpace(body) == "" {
		return nil
	}
	if strings.Contains(body, Message) || strings.Contains(body, Link) || strings.Contains(body, Links) {
		return nil
	}
	return ErrNoContent
}

func first(s []string) string {
	if len(s) == 0 {
		return ""
	}
	return s[0]
}
