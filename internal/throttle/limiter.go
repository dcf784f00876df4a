// Package throttle counts login attempts in fixed windows.
package throttle

import (
	"context"
	"strings"
	"time"
)

// Decision is the outcome of one attempt.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter is how long the caller should wait before trying again.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	if d.Allowed || !d.ResetAt.After(now) {
		return 0
	}
	return d.ResetAt.Sub(now)
}

type Limiter interface {
	// Allow counts one attempt against key.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (Decision, error)
	// Reset forgets key, e.g. after a successful login.
	Reset(ctx context.Context, key string) error
}

// LoginKey buckets attempts per lower-cased email and client IP.
func LoginKey(email, ip string) string {
	return "login:" + strings.ToLower(strings.TrimSpace(email)) + "|" + ip
}
