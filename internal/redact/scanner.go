package redact

import (
	"regexp"
	"sort"
	"strings"
)

// PatternType identifies the category of sensitive data.
type PatternType string

const (
	PatternCred   PatternType = "CRED"
	PatternToken  PatternType = "TOKEN"
	PatternBearer PatternType = "BEARER"
)

// Match is a single occurrence of a secret value in text. Value excludes the
// key for key=value credentials.
type Match struct {
	Type  PatternType
	Value string
	Start int
	End   int
}

var (
	// Credentials: key=value pairs where key suggests a secret. Group 2 is the value.
	credKVRe = regexp.MustCompile(`(?i)((?:password|passwd|secret|token|api_key|apikey|private-token)[ \t]*[=:][ \t]*)([^\s"',;]+)`)

	// Authorization headers. Group 2 is the value.
	bearerRe = regexp.MustCompile(`(?i)(bearer[ \t]+)([A-Za-z0-9._~+/=\-]+)`)

	// Provider tokens: GitHub classic and fine-grained, GitLab personal/project.
	tokenRe = regexp.MustCompile(`\b(?:gh[pousr]_[A-Za-z0-9]{20,}|github_pat_[A-Za-z0-9_]{20,}|glpat-[A-Za-z0-9_\-]{20,})`)
)

// Scan finds secret values in text, deduplicated and sorted by position.
func Scan(text string) []Match {
	seen := make(map[string]bool)
	var matches []Match

	add := func(typ PatternType, start, end int) {
		value := text[start:end]
		if value == "" || value == Mask || seen[value] {
			return
		}
		seen[value] = true
		matches = append(matches, Match{Type: typ, Value: value, Start: start, End: end})
	}

	for _, loc := range tokenRe.FindAllStringIndex(text, -1) {
		add(PatternToken, loc[0], loc[1])
	}
	for _, sub := range credKVRe.FindAllStringSubmatchIndex(text, -1) {
		add(PatternCred, sub[4], sub[5])
	}
	for _, sub := range bearerRe.FindAllStringSubmatchIndex(text, -1) {
		add(PatternBearer, sub[4], sub[5])
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Start < matches[j].Start
	})
	return matches
}

// hasSecretShape is a cheap pre-check so clean text skips the regexes.
func hasSecretShape(text string) bool {
	lower := strings.ToLower(text)
	for _, hint := range []string{"gh", "glpat-", "pass", "secret", "token", "key", "bearer"} {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	return false
}
