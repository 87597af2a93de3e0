// Package dedup implements author duplicate detection: name normalization,
// the similarity scoring cascade, population scans, and scan-run persistence.
package dedup

import "strings"

// Normalize lowercases a name, strips every character outside [a-z0-9 ],
// collapses whitespace runs to a single space, and trims. Idempotent.
func Normalize(name string) string {
	lowered := strings.ToLower(name)

	var b strings.Builder
	b.Grow(len(lowered))
	lastWasSpace := true
	for _, r := range lowered {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			lastWasSpace = false
		case r == ' ' || r == '\t' || r == '\n':
			if !lastWasSpace {
				b.WriteByte(' ')
				lastWasSpace = true
			}
		default:
			// Punctuation is dropped outright, so "J.K. Rowling"
			// normalizes to "jk rowling".
		}
	}

	return strings.TrimSpace(b.String())
}

// IsLastFirst reports whether a name is in "Last, First" form.
func IsLastFirst(name string) bool {
	return strings.Contains(name, ",")
}

// Flip converts "Last, First" to "First Last". Names without a comma, and
// names whose comma split does not yield exactly two parts, pass through
// unchanged.
func Flip(name string) string {
	if !IsLastFirst(name) {
		return name
	}

	parts := strings.Split(name, ",")
	if len(parts) != 2 {
		return name
	}

	last := strings.TrimSpace(parts[0])
	first := strings.TrimSpace(parts[1])
	if first == "" || last == "" {
		return name
	}

	return first + " " + last
}

// ParsedName is the token decomposition of an author name.
type ParsedName struct {
	First      string
	Middle     []string
	Last       string
	Normalized string
	Flipped    string
}

// Parse tokenizes the flipped form of a name on whitespace. A single token is
// treated as a last name; two tokens as first and last; three or more assign
// everything between the first and final token to Middle.
func Parse(name string) ParsedName {
	flipped := Flip(name)
	parsed := ParsedName{
		Normalized: Normalize(name),
		Flipped:    flipped,
	}

	tokens := strings.Fields(flipped)
	switch len(tokens) {
	case 0:
	case 1:
		parsed.Last = tokens[0]
	case 2:
		parsed.First = tokens[0]
		parsed.Last = tokens[1]
	default:
		parsed.First = tokens[0]
		parsed.Middle = tokens[1 : len(tokens)-1]
		parsed.Last = tokens[len(tokens)-1]
	}

	return parsed
}
