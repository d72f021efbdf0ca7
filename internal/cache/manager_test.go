package cache

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/Edgame2/masterTrade-sub003/pkg/types"
	"go.uber.org/zap"
)

func newTestManager(strategy types.CacheStrategy, maxSize int) *CacheManager {
	m := NewCacheManager(zap.NewNop(), nil, Namespace{
		Name: "default", Strategy: strategy, MaxSize: maxSize, TTL: time.Hour,
	})
	return m
}

func TestSetGet_RoundTrip(t *testing.T) {
	m := newTestManager(types.CacheStrategyLRU, 10)
	if err := m.Set("default", "k1", []byte("v1"), 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	v, ok, err := m.Get("default", "k1")
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if string(v) != "v1" {
		t.Fatalf("expected v1, got %q", v)
	}
}

func TestDelete_ThenMiss(t *testing.T) {
	m := newTestManager(types.CacheStrategyLRU, 10)
	_ = m.Set("default", "k1", []byte("v1"), 0)
	if err := m.Delete("default", "k1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	_, ok, _ := m.Get("default", "k1")
	if ok {
		t.Fatalf("expected miss after delete")
	}
}

func TestLRU_EvictsLeastRecentlyUsed(t *testing.T) {
	m := newTestManager(types.CacheStrategyLRU, 2)
	_ = m.Set("default", "a", []byte("1"), 0)
	_ = m.Set("default", "b", []byte("2"), 0)
	// touch a so b becomes least-recently-used
	_, _, _ = m.Get("default", "a")
	_ = m.Set("default", "c", []byte("3"), 0)

	if _, ok, _ := m.Get("default", "b"); ok {
		t.Fatalf("expected b evicted")
	}
	if _, ok, _ := m.Get("default", "a"); !ok {
		t.Fatalf("expected a to survive")
	}
	if _, ok, _ := m.Get("default", "c"); !ok {
		t.Fatalf("expected c present")
	}
}

func TestFIFO_EvictsInsertionOrder(t *testing.T) {
	m := newTestManager(types.CacheStrategyFIFO, 2)
	_ = m.Set("default", "a", []byte("1"), 0)
	_ = m.Set("default", "b", []byte("2"), 0)
	_, _, _ = m.Get("default", "a") // access must NOT save a from eviction
	_ = m.Set("default", "c", []byte("3"), 0)

	if _, ok, _ := m.Get("default", "a"); ok {
		t.Fatalf("expected a evicted under FIFO despite recent access")
	}
	if _, ok, _ := m.Get("default", "b"); !ok {
		t.Fatalf("expected b to survive")
	}
}

func TestLFU_EvictsLeastFrequentlyUsed(t *testing.T) {
	m := newTestManager(types.CacheStrategyLFU, 2)
	_ = m.Set("default", "a", []byte("1"), 0)
	_ = m.Set("default", "b", []byte("2"), 0)
	_, _, _ = m.Get("default", "a")
	_, _, _ = m.Get("default", "a")
	_ = m.Set("default", "c", []byte("3"), 0)

	if _, ok, _ := m.Get("default", "b"); ok {
		t.Fatalf("expected b evicted as least frequently used")
	}
	if _, ok, _ := m.Get("default", "a"); !ok {
		t.Fatalf("expected a to survive")
	}
}

func TestTTL_ExpiresEntry(t *testing.T) {
	m := newTestManager(types.CacheStrategyTTL, 10)
	ttl := 30 * time.Millisecond
	_ = m.Set("default", "k", []byte("v"), ttl)
	time.Sleep(60 * time.Millisecond)
	if _, ok, _ := m.Get("default", "k"); ok {
		t.Fatalf("expected expired entry to miss")
	}
}

func TestCompression_RoundTripsAndShrinksOnly(t *testing.T) {
	large := []byte(strings.Repeat("aaaaaaaaaa", 100))
	stored, compressed := maybeCompress(large)
	if !compressed {
		t.Fatalf("expected repetitive payload to compress")
	}
	if len(stored) >= len(large) {
		t.Fatalf("expected compressed payload smaller than original")
	}
	entry := &types.CacheEntry{Value: stored, Compressed: compressed}
	out, ok, err := decompress(entry)
	if err != nil || !ok {
		t.Fatalf("decompress failed: ok=%v err=%v", ok, err)
	}
	if !bytes.Equal(out, large) {
		t.Fatalf("round trip mismatch")
	}

	small := []byte("tiny")
	stored, compressed = maybeCompress(small)
	if compressed {
		t.Fatalf("expected tiny payload to skip compression")
	}
	if !bytes.Equal(stored, small) {
		t.Fatalf("expected tiny payload to pass through unchanged")
	}
}

func TestMaxSize_NeverExceeded(t *testing.T) {
	m := newTestManager(types.CacheStrategyLRU, 3)
	for i := 0; i < 10; i++ {
		_ = m.Set("default", string(rune('a'+i)), []byte("v"), 0)
	}
	m.mu.Lock()
	size := m.namespaces["default"].size()
	m.mu.Unlock()
	if size > 3 {
		t.Fatalf("expected size <= 3, got %d", size)
	}
}

func TestUnknownNamespace_ReturnsConfigurationError(t *testing.T) {
	m := newTestManager(types.CacheStrategyLRU, 10)
	_, _, err := m.Get("missing", "k")
	if err == nil {
		t.Fatalf("expected error for unknown namespace")
	}
	if types.IsRetryable(err) {
		t.Fatalf("configuration errors must not be retryable")
	}
}
