package httpapi

import (
	"testing"
	"time"
)

func TestSubmitLimiterDisabled(t *testing.T) {
	if newSubmitLimiter(0) != nil || newSubmitLimiter(-5) != nil {
		t.Fatalf("non-positive rates should disable limiting")
	}
}

func TestSubmitLimiterBurstPerPrincipal(t *testing.T) {
	l := newSubmitLimiter(3)
	for i := 0; i < 3; i++ {
		if !l.Allow(1) {
			t.Fatalf("request %d within burst was refused", i+1)
		}
	}
	if l.Allow(1) {
		t.Fatalf("expected burst to be exhausted")
	}
	if !l.Allow(2) {
		t.Fatalf("other principals keep their own budget")
	}
}

func TestSubmitLimiterEvictsIdlePrincipals(t *testing.T) {
	start := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	now := start
	l := newSubmitLimiter(2)
	l.now = func() time.Time { return now }

	if !l.Allow(1) || !l.Allow(1) || l.Allow(1) {
		t.Fatalf("expected a burst of two for principal 1")
	}
	if !l.Allow(2) {
		t.Fatalf("principal 2 should be allowed")
	}

	now = start.Add(30 * time.Second)
	if !l.Allow(2) {
		t.Fatalf("principal 2 should still have budget")
	}
	if len(l.byPrincipal) != 2 {
		t.Fatalf("nothing is idle long enough yet, got %d limiters", len(l.byPrincipal))
	}

	now = start.Add(limiterIdleTTL + time.Second)
	if !l.Allow(3) {
		t.Fatalf("principal 3 should be allowed")
	}
	if _, ok := l.byPrincipal[1]; ok {
		t.Fatalf("idle principal 1 should have been evicted")
	}
	if _, ok := l.byPrincipal[2]; !ok {
		t.Fatalf("recently active principal 2 must be kept")
	}
	if len(l.byPrincipal) != 2 {
		t.Fatalf("expected two live limiters, got %d", len(l.byPrincipal))
	}
	if !l.Allow(1) {
		t.Fatalf("evicted principal starts with a fresh bucket")
	}
}
