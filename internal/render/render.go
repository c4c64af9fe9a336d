// Package render substitutes {{header}} placeholders in subject and body
// templates with per-row spreadsheet values.
//
// Substitution is a single literal-text pass: a token between {{ and }} is
// replaced only when it matches a header name exactly, values are never
// re-expanded, and header names are never interpreted as patterns.
package render

import "strings"

// Render replaces every {{header}} token for every header in headers with the
// row's value for that header. Missing values render as the empty string;
// tokens that do not name a known header are left as-is.
func Render(tmpl string, headers []string, row map[string]string) string {
	known := make(map[string]struct{}, len(headers))
	for _, h := range headers {
		if h != "" {
			known[h] = struct{}{}
		}
	}

	var b strings.Builder
	b.Grow(len(tmpl))
	i := 0
	for i < len(tmpl) {
		open := strings.Index(tmpl[i:], "{{")
		if open < 0 {
			b.WriteString(tmpl[i:])
			break
		}
		open += i
		end := strings.Index(tmpl[open+2:], "}}")
		if end < 0 {
			b.WriteString(tmpl[i:])
			break
		}
		name := tmpl[open+2 : open+2+end]
		if _, ok := known[name]; ok {
			b.WriteString(tmpl[i:open])
			b.WriteString(row[name])
			i = open + 2 + end + 2
			continue
		}
		// Unknown token: keep the opening braces literally and rescan just
		// past them, so overlapping forms like {{{{name}} still resolve.
		b.WriteString(tmpl[i : open+2])
		i = open + 2
	}
	return b.String()
}

// Subject renders the subject template and applies the per-row title
// override: when the row has a non-empty title value and the template does
// not reference the title placeholder itself, the title wins outright.
func Subject(tmpl string, headers []string, row map[string]string, titleHeader string) string {
	subject := Render(tmpl, headers, row)
	if titleHeader == "" {
		return subject
	}
	title := strings.TrimSpace(row[titleHeader])
	if title == "" {
		return subject
	}
	if strings.Contains(tmpl, "{{"+titleHeader+"}}") {
		return subject
	}
	return title
}
