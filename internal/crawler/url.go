package crawler

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var invalidFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// CitationFromURL extracts the statute citation from the cite query parameter.
// The parameter name is matched case-insensitively.
func CitationFromURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	for key, values := range u.Query() {
		if !strings.EqualFold(key, "cite") {
			continue
		}
		for _, v := range values {
			if v = strings.TrimSpace(v); v != "" {
				return v, nil
			}
		}
	}
	return "", errors.New("url has no cite parameter")
}

// ResolveURL resolves href against base.
func ResolveURL(base, href string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", fmt.Errorf("parse href: %w", err)
	}
	resolved := b.ResolveReference(ref)
	resolved.Fragment = ""
	return resolved.String(), nil
}

// SafeName makes s usable as a single path segment.
func SafeName(s string) string {
	name := invalidFilenameChars.ReplaceAllString(strings.TrimSpace(s), "_")
	if name == "" {
		return "unnamed"
	}
	return name
}
