package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// SplitSelectors splits a comma-joined alternative list. Commas nested in
// brackets, parentheses or quotes belong to the enclosing alternative.
func SplitSelectors(list string) []string {
	var (
		out   []string
		depth int
		quote rune
		start int
	)
	for i, r := range list {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '"' || r == '\'':
			quote = r
		case r == '[' || r == '(':
			depth++
		case r == ']' || r == ')':
			if depth > 0 {
				depth--
			}
		case r == ',' && depth == 0:
			if s := strings.TrimSpace(list[start:i]); s != "" {
				out = append(out, s)
			}
			start = i + 1
		}
	}
	if s := strings.TrimSpace(list[start:]); s != "" {
		out = append(out, s)
	}
	return out
}

// findFirst returns the matches of the first alternative that matches
// anything under root.
func findFirst(root *goquery.Selection, list string) *goquery.Selection {
	for _, alt := range SplitSelectors(list) {
		if found := root.Find(alt); found.Length() > 0 {
			return found
		}
	}
	return nil
}

// firstText returns the first non-empty trimmed text among the first element
// of each alternative.
func firstText(root *goquery.Selection, list string) string {
	for _, alt := range SplitSelectors(list) {
		found := root.Find(alt)
		if found.Length() == 0 {
			continue
		}
		if text := cleanText(found.First().Text()); text != "" {
			return text
		}
	}
	return ""
}

// firstAttr returns the first non-empty attribute value among the first
// element of each alternative.
func firstAttr(root *goquery.Selection, list, attr string) string {
	for _, alt := range SplitSelectors(list) {
		found := root.Find(alt)
		if found.Length() == 0 {
			continue
		}
		if v, ok := found.First().Attr(attr); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
