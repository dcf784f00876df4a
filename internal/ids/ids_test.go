package ids

import (
	"testing"
	"time"
)

func TestNewIsSortable(t *testing.T) {
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	a := At(base)
	b := At(base.Add(time.Millisecond))
	if a >= b {
		t.Fatalf("expected %s < %s", a, b)
	}
	if !Valid(a) || !Valid(New()) {
		t.Fatalf("generated ids must parse")
	}
	if Valid("not-an-id") {
		t.Fatalf("garbage accepted")
	}
}

func TestNewSecretIsUnique(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 64; i++ {
		s, err := NewSecret()
		if err != nil {
			t.Fatalf("NewSecret: %v", err)
		}
		if len(s) != 43 {
			t.Fatalf("unexpected secret length %d", len(s))
		}
		if _, dup := seen[s]; dup {
			t.Fatalf("duplicate secret %s", s)
		}
		seen[s] = struct{}{}
	}
}
