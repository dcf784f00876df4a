package throttle

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func exercise(t *testing.T, l Limiter, advance func(time.Duration)) {
	t.Helper()
	ctx := context.Background()
	key := LoginKey(" Ana@X.edu ", "10.0.0.1")
	if key != "login:ana@x.edu|10.0.0.1" {
		t.Fatalf("unexpected key %q", key)
	}

	for i := 0; i < 3; i++ {
		d, err := l.Allow(ctx, key, 3, time.Minute)
		if err != nil || !d.Allowed || d.Remaining != 2-i {
			t.Fatalf("attempt %d: %+v %v", i+1, d, err)
		}
	}
	d, err := l.Allow(ctx, key, 3, time.Minute)
	if err != nil || d.Allowed {
		t.Fatalf("fourth attempt should be throttled: %+v %v", d, err)
	}

	if err := l.Reset(ctx, key); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if d, _ := l.Allow(ctx, key, 3, time.Minute); !d.Allowed || d.Remaining != 2 {
		t.Fatalf("reset should clear the budget: %+v", d)
	}

	other := LoginKey("ana@x.edu", "10.0.0.2")
	if d, _ := l.Allow(ctx, other, 3, time.Minute); !d.Allowed {
		t.Fatalf("buckets are per ip")
	}

	for i := 0; i < 3; i++ {
		l.Allow(ctx, other, 3, time.Minute)
	}
	advance(61 * time.Second)
	if d, _ := l.Allow(ctx, other, 3, time.Minute); !d.Allowed {
		t.Fatalf("window should have rolled over: %+v", d)
	}
}

func TestMemoryLimiter(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewMemory(MemoryConfig{Now: func() time.Time { return now }})
	exercise(t, l, func(d time.Duration) { now = now.Add(d) })
}

func TestRedisLimiter(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	l, err := NewRedis(client, nil)
	if err != nil {
		t.Fatalf("NewRedis: %v", err)
	}
	exercise(t, l, mr.FastForward)
}

func TestRetryAfter(t *testing.T) {
	now := time.Now()
	d := Decision{Allowed: false, ResetAt: now.Add(30 * time.Second)}
	if got := d.RetryAfter(now); got != 30*time.Second {
		t.Fatalf("unexpected retry after %v", got)
	}
	if (Decision{Allowed: true}).RetryAfter(now) != 0 {
		t.Fatalf("allowed decisions have no retry delay")
	}
}
