package ratelimit

import (
	"strings"
	"testing"
	"time"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// --- Config tests ---

func TestEnabled(t *testing.T) {
	tests := []struct {
		limit Limit
		want  bool
	}{
		{Limit{}, false},
		{Limit{MaxRequests: 10, Window: time.Minute}, true},
		{Limit{MaxRequests: 0, Window: time.Minute}, false},
		{Limit{MaxRequests: 10, Window: 0}, false},
	}
	for _, tt := range tests {
		if got := tt.limit.Enabled(); got != tt.want {
			t.Errorf("%+v.Enabled() = %v, want %v", tt.limit, got, tt.want)
		}
	}
}

func TestNewDisabledIsNil(t *testing.T) {
	if New(Limit{}) != nil {
		t.Fatal("expected nil limiter for disabled limit")
	}
}

// --- Limiter tests ---

func TestNilLimiterAllows(t *testing.T) {
	var l *Limiter
	for i := 0; i < 100; i++ {
		if l.Allow("violation", t0).Exceeded {
			t.Fatal("nil limiter must never throttle")
		}
	}
}

func TestAllowWithinLimit(t *testing.T) {
	l := New(Limit{MaxRequests: 3, Window: time.Minute})
	for i := 0; i < 3; i++ {
		if r := l.Allow("violation", t0.Add(time.Duration(i)*time.Second)); r.Exceeded {
			t.Fatalf("request %d unexpectedly throttled: %s", i+1, r.Reason)
		}
	}
	r := l.Allow("violation", t0.Add(5*time.Second))
	if !r.Exceeded {
		t.Fatal("expected fourth request to be throttled")
	}
	if r.Current != 3 || r.Limit != 3 {
		t.Errorf("expected 3/3, got %d/%d", r.Current, r.Limit)
	}
	if !strings.Contains(r.Reason, "3/3") {
		t.Errorf("unexpected reason %q", r.Reason)
	}
}

func TestWindowExpiryResets(t *testing.T) {
	l := New(Limit{MaxRequests: 1, Window: time.Minute})
	if l.Allow("violation", t0).Exceeded {
		t.Fatal("first request throttled")
	}
	if !l.Allow("violation", t0.Add(30*time.Second)).Exceeded {
		t.Fatal("expected throttle inside window")
	}
	if l.Allow("violation", t0.Add(time.Minute)).Exceeded {
		t.Fatal("expected reset after window")
	}
}

func TestKeysAreIndependent(t *testing.T) {
	l := New(Limit{MaxRequests: 1, Window: time.Minute})
	l.Allow("violation", t0)
	if l.Allow("cancellation_failed", t0).Exceeded {
		t.Fatal("a different key must have its own window")
	}
	if !l.Allow("violation", t0).Exceeded {
		t.Fatal("expected violation key to be throttled")
	}
}
