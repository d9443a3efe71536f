// Package reply decides whether a support email gets an auto-reply and
// produces its text.
package reply

import (
	"net/mail"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// SenderName derives a greeting name from a From header.
//
//	"Jane Doe <jane@x.com>" -> "Jane Doe"
//	"john.smith@x.com"      -> "John Smith"
//
// A display form with an empty name falls back to the address.
func SenderName(from string) string {
	from = strings.TrimSpace(from)
	if i := strings.Index(from, "<"); i >= 0 {
		name := strings.Trim(strings.TrimSpace(from[:i]), `"'`)
		name = strings.TrimSpace(name)
		if name != "" {
			return titleCase(name)
		}
		addr := from[i+1:]
		if j := strings.Index(addr, ">"); j >= 0 {
			addr = addr[:j]
		}
		return nameFromAddress(addr)
	}
	return nameFromAddress(from)
}

func nameFromAddress(addr string) string {
	if parsed, err := mail.ParseAddress(addr); err == nil {
		addr = parsed.Address
	}
	local := addr
	if i := strings.Index(addr, "@"); i >= 0 {
		local = addr[:i]
	}
	local = strings.ReplaceAll(local, ".", " ")
	return titleCase(strings.TrimSpace(local))
}

// titleCase upper-cases every letter that follows a non-letter and lowers the
// rest, so "o'brien" gives "O'Brien" and "jane_doe" gives "Jane_Doe".
func titleCase(s string) string {
	// cases.Caser keeps state, so a fresh one per call keeps this safe for
	// concurrent use.
	lower := cases.Lower(language.Und).String(s)

	var b strings.Builder
	b.Grow(len(lower))
	prevCased := false
	for _, r := range lower {
		if prevCased {
			b.WriteRune(r)
		} else {
			b.WriteRune(unicode.ToTitle(r))
		}
		prevCased = unicode.IsLower(r) || unicode.IsUpper(r) || unicode.IsTitle(r)
	}
	return b.String()
}
