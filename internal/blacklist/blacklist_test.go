package blacklist

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ppiankov/egresswatch/internal/session"
)

func to(domain, ip, port string) session.Session {
	return session.Session{Domain: domain, DstIP: ip, DstPort: port, Protocol: "tcp"}
}

func TestDefaultBlocksTunnels(t *testing.T) {
	b := NewDefault()
	blocked := []session.Session{
		to("abcd-1234.ngrok-free.app", "3.1.2.3", "443"),
		to("a.b.trycloudflare.com", "104.16.1.1", "443"),
		to("transfer.sh", "144.76.1.1", "443"),
		to("xmr.pool.example", "5.5.5.5", "443"),
		to("", "198.51.100.1", "3333"),
	}
	for _, s := range blocked {
		if ok, reason := b.IsBlocked(s); !ok {
			t.Errorf("expected %s:%s to be blocked", s.Destination(), s.DstPort)
		} else if reason == "" {
			t.Errorf("expected reason for %s", s.Destination())
		}
	}
}

func TestDefaultAllowsOrdinaryTraffic(t *testing.T) {
	b := NewDefault()
	for _, s := range []session.Session{
		to("api.github.com", "140.82.112.6", "443"),
		to("registry.npmjs.org", "104.16.0.1", "443"),
		to("unknown", "8.8.8.8", "53"),
	} {
		if ok, reason := b.IsBlocked(s); ok {
			t.Errorf("expected %s to pass, blocked by %s", s.Destination(), reason)
		}
	}
}

func TestDomainPatternAnchored(t *testing.T) {
	b := New(Patterns{Domains: []string{"pastebin.com"}})
	if ok, _ := b.IsBlocked(to("notpastebin.com.example.org", "1.1.1.1", "443")); ok {
		t.Error("pattern without wildcard must not match a longer name")
	}
	if ok, _ := b.IsBlocked(to("PASTEBIN.com.", "1.1.1.1", "443")); !ok {
		t.Error("expected case-insensitive match ignoring trailing dot")
	}
}

func TestIPAndCIDR(t *testing.T) {
	b := New(Patterns{IPs: []string{"203.0.113.5", "198.51.100.0/24", "not-an-ip"}})
	if ok, _ := b.IsBlocked(to("", "203.0.113.5", "443")); !ok {
		t.Error("expected exact IP to be blocked")
	}
	if ok, _ := b.IsBlocked(to("", "198.51.100.77", "443")); !ok {
		t.Error("expected CIDR member to be blocked")
	}
	if ok, _ := b.IsBlocked(to("", "192.0.2.1", "443")); ok {
		t.Error("expected unrelated IP to pass")
	}
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	b, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(b.Patterns().Domains) != len(DefaultPatterns.Domains) {
		t.Error("expected default patterns")
	}
}

func TestLoadFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blacklist.yaml")
	data := "domains:\n  - \"*.evil.test\"\nips:\n  - 192.0.2.0/24\nports:\n  - 31337\n"
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
	b, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if ok, _ := b.IsBlocked(to("c2.evil.test", "1.1.1.1", "443")); !ok {
		t.Error("expected loaded domain pattern to block")
	}
	if ok, _ := b.IsBlocked(to("", "1.1.1.1", "31337")); !ok {
		t.Error("expected loaded port to block")
	}
	if ok, _ := b.IsBlocked(to("abc.ngrok.io", "1.1.1.1", "443")); ok {
		t.Error("file patterns replace defaults")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(path, []byte("domains: [unclosed"), 0644)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}
