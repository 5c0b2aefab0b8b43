package blacklist

import (
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/egresswatch/internal/session"
)

// Patterns holds the raw blacklist entries organized by category.
type Patterns struct {
	Domains []string `yaml:"domains"`
	IPs     []string `yaml:"ips"`
	Ports   []int    `yaml:"ports"`
}

// Blacklist holds compiled patterns for fast matching.
type Blacklist struct {
	domainPatterns []*regexp.Regexp
	ips            map[string]bool
	cidrs          []*net.IPNet
	ports          map[string]bool
	raw            Patterns
}

// New creates a Blacklist from raw patterns. Entries that fail to parse are
// skipped.
func New(p Patterns) *Blacklist {
	b := &Blacklist{
		ips:   make(map[string]bool),
		ports: make(map[string]bool),
		raw:   p,
	}

	for _, d := range p.Domains {
		if compiled, err := regexp.Compile("(?i)^" + patternToRegex(d) + "$"); err == nil {
			b.domainPatterns = append(b.domainPatterns, compiled)
		}
	}

	for _, ip := range p.IPs {
		if _, cidr, err := net.ParseCIDR(ip); err == nil {
			b.cidrs = append(b.cidrs, cidr)
			continue
		}
		if net.ParseIP(ip) != nil {
			b.ips[ip] = true
		}
	}

	for _, port := range p.Ports {
		b.ports[strconv.Itoa(port)] = true
	}

	return b
}

// NewDefault creates a Blacklist with the built-in patterns.
func NewDefault() *Blacklist {
	return New(DefaultPatterns)
}

// Load reads a blacklist from a YAML file. Empty path falls back to
// ~/.egresswatch/blacklist.yaml; a missing file yields the defaults.
func Load(path string) (*Blacklist, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return NewDefault(), nil
		}
		path = filepath.Join(home, ".egresswatch", "blacklist.yaml")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewDefault(), nil
		}
		return nil, err
	}

	var p Patterns
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, err
	}

	return New(p), nil
}

// IsBlocked checks a session against all patterns. Returns (blocked, reason).
func (b *Blacklist) IsBlocked(s session.Session) (bool, string) {
	if s.HasDomain() {
		domain := strings.TrimSuffix(s.Domain, ".")
		for _, re := range b.domainPatterns {
			if re.MatchString(domain) {
				return true, "domain pattern blocked: " + re.String()
			}
		}
	}

	if b.ips[s.DstIP] {
		return true, "ip blocked: " + s.DstIP
	}
	if ip := net.ParseIP(s.DstIP); ip != nil {
		for _, cidr := range b.cidrs {
			if cidr.Contains(ip) {
				return true, "ip range blocked: " + cidr.String()
			}
		}
	}

	if b.ports[s.DstPort] {
		return true, "port blocked: " + s.DstPort
	}

	return false, ""
}

// Patterns returns the raw patterns the blacklist was built from.
func (b *Blacklist) Patterns() Patterns {
	return b.raw
}

// patternToRegex converts a glob-like domain pattern to a regex.
// "*" spans any number of labels.
func patternToRegex(pattern string) string {
	escaped := regexp.QuoteMeta(strings.TrimSuffix(pattern, "."))
	return strings.ReplaceAll(escaped, `\*`, ".*")
}
