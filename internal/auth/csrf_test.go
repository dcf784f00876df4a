package auth

import (
	"errors"
	"testing"
	"time"
)

var csrfKey = []byte("0123456789abcdef0123456789abcdef")

func TestCSRFBindsToSession(t *testing.T) {
	c, err := NewCSRF(csrfKey, time.Hour)
	if err != nil {
		t.Fatalf("NewCSRF: %v", err)
	}
	tok, err := c.Issue("sess-1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if err := c.Verify(tok, "sess-1"); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if err := c.Verify(tok, "sess-2"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("token must not verify for another session, got %v", err)
	}
	again, _ := c.Issue("sess-1")
	if again == tok {
		t.Fatalf("tokens must rotate on every issue")
	}
}

func TestCSRFRejectsExpiredAndForeign(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	c, _ := NewCSRF(csrfKey, time.Minute, WithCSRFClock(func() time.Time { return now }))
	tok, _ := c.Issue("s")

	now = now.Add(2 * time.Minute)
	if err := c.Verify(tok, "s"); err == nil {
		t.Fatalf("expired token accepted")
	}

	other, _ := NewCSRF([]byte("ffffffffffffffffffffffffffffffff"), time.Hour)
	foreign, _ := other.Issue("s")
	if err := c.Verify(foreign, "s"); err == nil {
		t.Fatalf("token signed with another key accepted")
	}
	if err := c.Verify("", "s"); err == nil {
		t.Fatalf("empty token accepted")
	}
}

func TestCSRFFreshness(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	c, _ := NewCSRF(csrfKey, 2*time.Hour, WithCSRFClock(func() time.Time { return now }))
	tok, _ := c.Issue("s")

	if !c.Fresh(tok, "s") {
		t.Fatalf("new token should be fresh")
	}
	if c.Fresh(tok, "other") || c.Fresh("", "s") {
		t.Fatalf("foreign or missing tokens are never fresh")
	}
	now = now.Add(61 * time.Minute)
	if c.Fresh(tok, "s") {
		t.Fatalf("token past half its lifetime should be stale")
	}
	if err := c.Verify(tok, "s"); err != nil {
		t.Fatalf("stale token must still verify: %v", err)
	}
}

func TestNewCSRFRejectsShortKey(t *testing.T) {
	if _, err := NewCSRF([]byte("short"), time.Hour); err == nil {
		t.Fatalf("expected error for short key")
	}
}

func TestSplitToken(t *testing.T) {
	id, secret, err := SplitToken(JoinToken("01ABC", "s3cr3t"))
	if err != nil || id != "01ABC" || secret != "s3cr3t" {
		t.Fatalf("round trip failed: %q %q %v", id, secret, err)
	}
	for _, bad := range []string{"", "abc", ".x", "x.", "a.b.c"} {
		if _, _, err := SplitToken(bad); err == nil {
			t.Fatalf("SplitToken(%q) should fail", bad)
		}
	}
	if !SecretMatches(HashSecret("s3cr3t"), "s3cr3t") || SecretMatches(HashSecret("s3cr3t"), "other") {
		t.Fatalf("SecretMatches misbehaves")
	}
}
