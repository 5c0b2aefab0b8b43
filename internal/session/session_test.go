package session

import "testing"

func TestKeyStableAndCaseInsensitiveProtocol(t *testing.T) {
	a := Key("TCP", "10.0.0.1", "40000", "140.82.112.3", "443")
	b := Key("tcp", "10.0.0.1", "40000", "140.82.112.3", "443")
	if a != b {
		t.Fatalf("expected same key, got %q and %q", a, b)
	}
	c := Key("tcp", "10.0.0.1", "40001", "140.82.112.3", "443")
	if a == c {
		t.Fatal("expected different source port to produce a different key")
	}
}

func TestDestinationFallsBackToIP(t *testing.T) {
	s := Session{DstIP: "1.2.3.4", Domain: "unknown"}
	if s.Destination() != "1.2.3.4" {
		t.Errorf("expected IP destination, got %q", s.Destination())
	}
	s.Domain = "github.com"
	if s.Destination() != "github.com" {
		t.Errorf("expected domain destination, got %q", s.Destination())
	}
}

func TestCloneDoesNotShareContainer(t *testing.T) {
	orig := []Session{{ID: "a", Container: &Container{Name: "build"}}}
	cp := Clone(orig)
	cp[0].Container.Name = "changed"
	cp[0].Criticality = "anomaly:bytes"

	if orig[0].Container.Name != "build" {
		t.Error("clone mutated original container")
	}
	if orig[0].Criticality != "" {
		t.Error("clone mutated original annotation")
	}
}
