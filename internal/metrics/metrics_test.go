package metrics

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestRegistry_NilIsNoOp(t *testing.T) {
	var r *Registry
	r.SetRateLimitTotals(1, 2, 3)
	r.SetCacheTotals("core", 1, 2, 3)
	r.ObserveSlippage("TWAP", 12.5)
	r.SetExecutionQuality("TWAP", 80)
	r.ObserveSliceFailed()
	r.SetUnrealizedPnL("BTCUSDT", "long", 100)
	r.SetPositionTotals(3, 250.5)
	r.ObserveActivationDecision("activate")
	r.ObserveRegimeChange()
	if r.Handler() != nil {
		t.Fatalf("expected nil handler for nil registry")
	}
}

func TestRegistry_ExposesGaugesViaHandler(t *testing.T) {
	r := New()
	r.SetRateLimitTotals(10, 2, 0)
	r.SetCacheTotals("core", 100, 5, 1)
	r.SetPositionTotals(4, 321.0)

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()

	buf := make([]byte, 64*1024)
	n, _ := resp.Body.Read(buf)
	body := string(buf[:n])

	for _, want := range []string{
		"trading_ratelimit_allowed_total 10",
		"trading_cache_hits_total{manager=\"core\"} 100",
		"trading_position_open_count 4",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected metrics output to contain %q, got:\n%s", want, body)
		}
	}
}

func TestPoller_PollsAllSources(t *testing.T) {
	reg := New()
	poller := NewPoller(reg, 5*time.Millisecond,
		func() (int64, int64, int64) { return 5, 1, 0 },
		map[string]CacheStatsFunc{
			"core": func() (int64, int64, int64) { return 50, 10, 2 },
		},
		func() (int, float64) { return 2, 99.5 },
	)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	poller.Run(ctx)

	srv := httptest.NewServer(reg.Handler())
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	buf := make([]byte, 64*1024)
	n, _ := resp.Body.Read(buf)
	body := string(buf[:n])
	if !strings.Contains(body, "trading_ratelimit_allowed_total 5") {
		t.Fatalf("expected poller to have updated rate limit gauge, got:\n%s", body)
	}
}

func TestPoller_NilRegistryRunReturnsImmediately(t *testing.T) {
	p := NewPoller(nil, time.Hour, nil, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p.Run(ctx) // must not block
}
