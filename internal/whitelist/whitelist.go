package whitelist

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/ppiankov/egresswatch/internal/session"
)

// ErrMalformed is returned when a whitelist document cannot be used.
var ErrMalformed = errors.New("whitelist: malformed document")

// CustomName is the list name written by Create and Augment.
const CustomName = "custom_whitelist"

// Endpoint is one allowed destination. Empty fields match anything, except
// that an endpoint must name a domain pattern or an IP/CIDR to match at all.
type Endpoint struct {
	Domain      string `json:"domain,omitempty"`
	IP          string `json:"ip,omitempty"`
	Port        int    `json:"port,omitempty"`
	Protocol    string `json:"protocol,omitempty"`
	Process     string `json:"process,omitempty"`
	Description string `json:"description,omitempty"`
}

// List is a named set of endpoints, optionally extending another list.
type List struct {
	Name      string     `json:"name"`
	Extends   string     `json:"extends,omitempty"`
	Endpoints []Endpoint `json:"endpoints"`
}

// Document is the on-disk whitelist format.
type Document struct {
	Date       string `json:"date"`
	Signature  string `json:"signature,omitempty"`
	Whitelists []List `json:"whitelists"`
}

// Parse decodes a whitelist document. Documents without at least one list
// are rejected.
func Parse(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(doc.Whitelists) == 0 {
		return nil, fmt.Errorf("%w: no whitelists", ErrMalformed)
	}
	return &doc, nil
}

// JSON encodes the document with stable indentation.
func (d Document) JSON() (string, error) {
	out, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return "", fmt.Errorf("whitelist: marshal: %w", err)
	}
	return string(out), nil
}

// Set is a resolved whitelist (extends chain flattened) ready for matching.
type Set struct {
	Name      string
	Endpoints []Endpoint
	doc       *Document
}

// Default returns the built-in whitelist used when no custom document is set.
func Default() *Set {
	l := builtins[DefaultName]
	return &Set{Name: l.Name, Endpoints: append([]Endpoint(nil), l.Endpoints...)}
}

// FromDocument resolves the first list of doc, following extends through the
// document's own lists and then the built-ins.
func FromDocument(doc *Document) (*Set, error) {
	if doc == nil || len(doc.Whitelists) == 0 {
		return nil, fmt.Errorf("%w: no whitelists", ErrMalformed)
	}
	byName := make(map[string]List, len(doc.Whitelists))
	for _, l := range doc.Whitelists {
		byName[l.Name] = l
	}

	first := doc.Whitelists[0]
	var endpoints []Endpoint
	visited := make(map[string]bool)
	cur := first
	for {
		if visited[cur.Name] {
			return nil, fmt.Errorf("%w: extends cycle at %q", ErrMalformed, cur.Name)
		}
		visited[cur.Name] = true
		endpoints = append(endpoints, cur.Endpoints...)
		if cur.Extends == "" {
			break
		}
		next, found := byName[cur.Extends]
		if !found {
			next, found = builtins[cur.Extends]
		}
		if !found {
			return nil, fmt.Errorf("%w: unknown parent %q", ErrMalformed, cur.Extends)
		}
		cur = next
	}
	return &Set{Name: first.Name, Endpoints: endpoints, doc: doc}, nil
}

// Document returns the custom document the set was built from, or nil for
// built-in sets.
func (s *Set) Document() *Document {
	return s.doc
}

// Matches reports whether any endpoint allows the session.
func (s *Set) Matches(sess session.Session) bool {
	for _, e := range s.Endpoints {
		if e.Matches(sess) {
			return true
		}
	}
	return false
}

// Matches reports whether the endpoint allows the session.
func (e Endpoint) Matches(sess session.Session) bool {
	if e.Domain == "" && e.IP == "" {
		return false
	}
	if e.Domain != "" && !matchDomain(e.Domain, sess.Domain) {
		return false
	}
	if e.IP != "" && !matchIP(e.IP, sess.DstIP) {
		return false
	}
	if e.Port != 0 && strconv.Itoa(e.Port) != sess.DstPort {
		return false
	}
	if e.Protocol != "" && !strings.EqualFold(e.Protocol, sess.Protocol) {
		return false
	}
	if e.Process != "" && e.Process != sess.Process.Name {
		return false
	}
	return true
}

func matchDomain(pattern, domain string) bool {
	if domain == "" {
		return false
	}
	pattern = strings.ToLower(strings.TrimSuffix(pattern, "."))
	domain = strings.ToLower(strings.TrimSuffix(domain, "."))
	if pattern == domain {
		return true
	}
	match, _ := path.Match(pattern, domain)
	return match
}

func matchIP(pattern, ipStr string) bool {
	if pattern == ipStr {
		return true
	}
	_, cidr, err := net.ParseCIDR(pattern)
	if err != nil {
		return false
	}
	ip := net.ParseIP(ipStr)
	return ip != nil && cidr.Contains(ip)
}

// EndpointFor derives the narrowest endpoint that allows the session.
func EndpointFor(sess session.Session) Endpoint {
	e := Endpoint{
		Protocol: strings.ToUpper(sess.Protocol),
		Process:  sess.Process.Name,
	}
	if sess.HasDomain() {
		e.Domain = strings.TrimSuffix(sess.Domain, ".")
	} else {
		e.IP = sess.DstIP
	}
	if port, err := strconv.Atoi(sess.DstPort); err == nil {
		e.Port = port
	}
	if e.Process == "unknown" {
		e.Process = ""
	}
	return e
}

// Create builds a fresh custom whitelist document from observed sessions.
// The list extends the built-in default so runner infrastructure stays
// allowed.
func Create(sessions []session.Session, now time.Time) Document {
	doc := Document{
		Date:       now.UTC().Format(time.RFC3339),
		Whitelists: []List{{Name: CustomName, Extends: DefaultName}},
	}
	doc, _ = merge(doc, sessions)
	return doc
}

// Augment merges endpoints for the observed sessions into existing. Endpoints
// that differ only by description are treated as duplicates. Returns the
// merged document and the number of endpoints added.
func Augment(existing Document, sessions []session.Session, now time.Time) (Document, int) {
	if len(existing.Whitelists) == 0 {
		existing.Whitelists = []List{{Name: CustomName, Extends: DefaultName}}
	}
	existing.Date = now.UTC().Format(time.RFC3339)
	return merge(existing, sessions)
}

func merge(doc Document, sessions []session.Session) (Document, int) {
	lists := make([]List, len(doc.Whitelists))
	copy(lists, doc.Whitelists)
	target := lists[0]
	target.Endpoints = append([]Endpoint(nil), target.Endpoints...)

	seen := make(map[Endpoint]bool, len(target.Endpoints))
	for _, e := range target.Endpoints {
		seen[normalize(e)] = true
	}

	added := 0
	for _, s := range sessions {
		e := EndpointFor(s)
		key := normalize(e)
		if seen[key] {
			continue
		}
		seen[key] = true
		target.Endpoints = append(target.Endpoints, e)
		added++
	}
	lists[0] = target
	doc.Whitelists = lists
	return doc, added
}

func normalize(e Endpoint) Endpoint {
	e.Description = ""
	e.Domain = strings.ToLower(e.Domain)
	e.Protocol = strings.ToUpper(e.Protocol)
	return e
}
