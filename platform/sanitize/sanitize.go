// Package sanitize normalizes user-provided text before it is stored.
package sanitize

import (
	"html"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var (
	htmlTag      = regexp.MustCompile(`<[^>]*>`)
	spaceRun     = regexp.MustCompile(`[ \t]+`)
	blankLineRun = regexp.MustCompile(`\n{3,}`)
)

// stripMarkup removes tags, decodes entities and strips again so encoded
// tags do not survive.
func stripMarkup(s string) string {
	s = htmlTag.ReplaceAllString(s, "")
	s = html.UnescapeString(s)
	return htmlTag.ReplaceAllString(s, "")
}

// dropControl removes control and format characters. Newlines are kept when
// keepNewlines is set; every other whitespace control becomes a space.
func dropControl(s string, keepNewlines bool) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\n' && keepNewlines:
			return r
		case r == '\r':
			return -1
		case unicode.IsSpace(r):
			return ' '
		case unicode.IsControl(r), unicode.In(r, unicode.Cf):
			return -1
		}
		return r
	}, s)
}

// Line cleans a single-line value such as a lead name: markup removed,
// NFC-normalized, all whitespace collapsed to single spaces.
func Line(s string) string {
	s = norm.NFC.String(stripMarkup(s))
	return strings.Join(strings.Fields(dropControl(s, false)), " ")
}

// Text cleans a multi-line value such as a note body. Line breaks survive,
// runs of blank lines shrink to one.
func Text(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = norm.NFC.String(stripMarkup(s))
	s = dropControl(s, true)

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(spaceRun.ReplaceAllString(line, " "))
	}
	s = strings.Join(lines, "\n")
	return strings.TrimSpace(blankLineRun.ReplaceAllString(s, "\n\n"))
}
