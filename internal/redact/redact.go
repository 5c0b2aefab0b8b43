// Package redact masks credentials in free text, such as cancellation
// command output or API error bodies, before it reaches alerts, the audit
// log or the terminal.
package redact

import (
	"cmp"
	"slices"
	"strings"
)

// Mask replaces every redacted value.
const Mask = "***"

// Secrets masks every value Scan finds. Keys of key=value pairs are kept so
// the text stays readable.
func Secrets(text string) string {
	if !hasSecretShape(text) {
		return text
	}
	matches := Scan(text)
	if len(matches) == 0 {
		return text
	}
	values := make([]string, 0, len(matches))
	for _, m := range matches {
		values = append(values, m.Value)
	}
	return Literals(text, values...)
}

// Literals masks every occurrence of the given known secrets, longest first
// so a secret that contains another is masked whole. Empty values are ignored.
func Literals(text string, secrets ...string) string {
	var pairs []string
	for _, s := range sortByLength(secrets) {
		if s == "" {
			continue
		}
		pairs = append(pairs, s, Mask)
	}
	if len(pairs) == 0 {
		return text
	}
	return strings.NewReplacer(pairs...).Replace(text)
}

// sortByLength returns a copy ordered longest first; equal lengths keep
// their input order.
func sortByLength(in []string) []string {
	out := slices.Clone(in)
	slices.SortStableFunc(out, func(a, b string) int {
		return cmp.Compare(len(b), len(a))
	})
	return out
}
