package ratelimit

import (
	"testing"
	"time"

	"github.com/Edgame2/masterTrade-sub003/pkg/types"
	"go.uber.org/zap"
)

func newTestLimiter(t *testing.T) *Limiter {
	t.Helper()
	l := NewLimiter(zap.NewNop(), NewInMemoryStore())
	t.Cleanup(func() { _ = l.Stop() })
	return l
}

// Scenario 4 (spec §8): token bucket rate=5/s burst=5. Five rapid
// requests empty the bucket; a sixth is denied immediately after.
func TestTokenBucket_EmptiesAfterBurst(t *testing.T) {
	l := newTestLimiter(t)
	l.AddRule(types.RateLimitRule{
		Name: "tb", Algorithm: types.AlgoTokenBucket,
		RequestsPerSec: 5, BurstSize: 5,
		PathPatterns: []string{"/api/*"}, Methods: []string{"GET"}, Priority: 1,
	})

	for i := 0; i < 5; i++ {
		res := l.Check("user1", "/api/orders", "GET")
		if res.Status != types.RateLimitAllowed {
			t.Fatalf("request %d: expected allowed, got %s", i, res.Status)
		}
	}

	res := l.Check("user1", "/api/orders", "GET")
	if res.Status != types.RateLimitDenied {
		t.Fatalf("6th request: expected denied, got %s", res.Status)
	}
}

// Scenario 3 (spec §8): sliding window rate=10/s window=1s burst=10.
// Ten requests at t=0 allowed; 11th denied.
func TestSlidingWindow_AllowsExactlyN(t *testing.T) {
	l := newTestLimiter(t)
	l.AddRule(types.RateLimitRule{
		Name: "sw", Algorithm: types.AlgoSlidingWindow,
		RequestsPerSec: 10, WindowSeconds: 1, BurstSize: 10,
		PathPatterns: []string{"/api/*"}, Methods: []string{"GET"}, Priority: 1,
	})

	for i := 0; i < 10; i++ {
		res := l.Check("user1", "/api/orders", "GET")
		if res.Status != types.RateLimitAllowed {
			t.Fatalf("request %d: expected allowed, got %s", i, res.Status)
		}
	}

	res := l.Check("user1", "/api/orders", "GET")
	if res.Status != types.RateLimitDenied {
		t.Fatalf("11th request: expected denied, got %s", res.Status)
	}
}

func TestUnmatchedPath_AlwaysAllowed(t *testing.T) {
	l := newTestLimiter(t)
	l.AddRule(types.RateLimitRule{
		Name: "only-api", Algorithm: types.AlgoFixedWindow,
		RequestsPerSec: 1, WindowSeconds: 1, BurstSize: 1,
		PathPatterns: []string{"/api/*"}, Methods: []string{"GET"}, Priority: 1,
	})

	res := l.Check("user1", "/health", "GET")
	if res.Status != types.RateLimitAllowed || res.RuleName != sentinelRuleName {
		t.Fatalf("expected sentinel allow, got %+v", res)
	}
}

func TestMultiIdentifier_AllMustPass(t *testing.T) {
	l := newTestLimiter(t)
	l.AddRule(types.RateLimitRule{
		Name: "ip-and-user", Algorithm: types.AlgoFixedWindow,
		RequestsPerSec: 1, WindowSeconds: 60, BurstSize: 1,
		PathPatterns: []string{"/api/*"}, Methods: []string{"GET"}, Priority: 1,
	})

	// Exhaust the "ip" identifier's quota directly.
	res := l.Check("192.0.2.1", "/api/orders", "GET")
	if res.Status != types.RateLimitAllowed {
		t.Fatalf("expected first ip check allowed, got %+v", res)
	}

	// A combined check sharing the same ip must now be denied even
	// though "user2" alone has quota remaining.
	res = l.Check("user2", "/api/orders", "GET", "192.0.2.1")
	if res.Status != types.RateLimitDenied {
		t.Fatalf("expected denial from shared identifier, got %+v", res)
	}
}

func TestFixedWindow_ResetAfterWindow(t *testing.T) {
	l := newTestLimiter(t)
	l.AddRule(types.RateLimitRule{
		Name: "fw", Algorithm: types.AlgoFixedWindow,
		RequestsPerSec: 100, WindowSeconds: 0.05, BurstSize: 1,
		PathPatterns: []string{"/*"}, Methods: []string{"GET"}, Priority: 1,
	})

	res := l.Check("u", "/x", "GET")
	if res.Status != types.RateLimitAllowed {
		t.Fatalf("first request should be allowed, got %+v", res)
	}
	res = l.Check("u", "/x", "GET")
	if res.Status != types.RateLimitDenied {
		t.Fatalf("second request in same window should be denied, got %+v", res)
	}

	time.Sleep(100 * time.Millisecond)
	res = l.Check("u", "/x", "GET")
	if res.Status != types.RateLimitAllowed {
		t.Fatalf("request in next window should be allowed, got %+v", res)
	}
}
