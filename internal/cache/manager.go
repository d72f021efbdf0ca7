package cache

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Edgame2/masterTrade-sub003/pkg/types"
	"go.uber.org/zap"
)

// compressionThresholdBytes is the minimum payload size worth trying to
// compress; anything smaller almost never shrinks net of gzip overhead.
const compressionThresholdBytes = 256

// Distributed is the optional second tier a CacheManager writes through
// to. No pack dependency provides a distributed KV client, so the
// default deployment runs local-tier only (see DESIGN.md).
type Distributed interface {
	Get(key string) ([]byte, bool, error)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
}

// Namespace groups entries under one eviction strategy and size bound.
type Namespace struct {
	Name     string
	Strategy types.CacheStrategy
	MaxSize  int
	TTL      time.Duration
}

// CacheManager is the tiered cache orchestrator (second half of C3):
// a local in-process tier per namespace, optionally backed by a
// distributed tier, with gzip compression applied only when it shrinks
// the payload.
type CacheManager struct {
	logger      *zap.Logger
	distributed Distributed

	mu         sync.Mutex
	namespaces map[string]container
	ttls       map[string]time.Duration

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
	sets      atomic.Int64

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewCacheManager builds a manager with the given namespaces registered
// up front. distributed may be nil to run local-tier only.
func NewCacheManager(logger *zap.Logger, distributed Distributed, namespaces ...Namespace) *CacheManager {
	m := &CacheManager{
		logger:      logger.Named("cache"),
		distributed: distributed,
		namespaces:  make(map[string]container),
		ttls:        make(map[string]time.Duration),
		stopCh:      make(chan struct{}),
	}
	for _, ns := range namespaces {
		m.namespaces[ns.Name] = newContainer(ns.Strategy, ns.MaxSize)
		m.ttls[ns.Name] = ns.TTL
	}
	return m
}

// RegisterNamespace adds a namespace after construction.
func (m *CacheManager) RegisterNamespace(ns Namespace) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.namespaces[ns.Name] = newContainer(ns.Strategy, ns.MaxSize)
	m.ttls[ns.Name] = ns.TTL
}

// Get fetches a value, checking the local tier first and falling back
// to the distributed tier (promoting the result locally on a hit).
func (m *CacheManager) Get(namespace, key string) ([]byte, bool, error) {
	m.mu.Lock()
	c, ok := m.namespaces[namespace]
	m.mu.Unlock()
	if !ok {
		return nil, false, types.NewConfigurationError(fmt.Sprintf("unknown cache namespace %q", namespace))
	}

	now := time.Now()
	m.mu.Lock()
	entry, found := c.get(key, now)
	m.mu.Unlock()

	if found {
		m.hits.Add(1)
		return decompress(entry)
	}

	if m.distributed != nil {
		raw, found, err := m.distributed.Get(namespaceKey(namespace, key))
		if err != nil {
			return nil, false, err
		}
		if found {
			m.hits.Add(1)
			m.mu.Lock()
			c.set(&types.CacheEntry{Key: key, Value: raw, CreatedAt: now, AccessedAt: now}, now)
			m.mu.Unlock()
			return raw, true, nil
		}
	}

	m.misses.Add(1)
	return nil, false, nil
}

// Set writes value into namespace, compressing it when doing so
// actually shrinks the payload, and writing through to the
// distributed tier if configured.
func (m *CacheManager) Set(namespace, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	c, ok := m.namespaces[namespace]
	nsTTL := m.ttls[namespace]
	m.mu.Unlock()
	if !ok {
		return types.NewConfigurationError(fmt.Sprintf("unknown cache namespace %q", namespace))
	}
	if ttl == 0 {
		ttl = nsTTL
	}

	now := time.Now()
	stored, compressed := maybeCompress(value)

	entry := &types.CacheEntry{
		Key:        key,
		Value:      stored,
		CreatedAt:  now,
		AccessedAt: now,
		SizeBytes:  len(stored),
		Compressed: compressed,
	}
	if ttl > 0 {
		entry.TTL = &ttl
	}

	m.mu.Lock()
	sizeBefore := c.size()
	c.set(entry, now)
	if c.size() < sizeBefore+1 {
		m.evictions.Add(1)
	}
	m.mu.Unlock()
	m.sets.Add(1)

	if m.distributed != nil {
		return m.distributed.Set(namespaceKey(namespace, key), value, ttl)
	}
	return nil
}

// Delete removes key from both tiers.
func (m *CacheManager) Delete(namespace, key string) error {
	m.mu.Lock()
	c, ok := m.namespaces[namespace]
	m.mu.Unlock()
	if !ok {
		return types.NewConfigurationError(fmt.Sprintf("unknown cache namespace %q", namespace))
	}
	m.mu.Lock()
	c.delete(key)
	m.mu.Unlock()

	if m.distributed != nil {
		return m.distributed.Delete(namespaceKey(namespace, key))
	}
	return nil
}

// Clear empties a namespace's local tier.
func (m *CacheManager) Clear(namespace string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.namespaces[namespace]; ok {
		c.clear()
	}
}

// Statistics reports aggregate hit/miss/eviction counters.
type Statistics struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Sets      int64
}

func (m *CacheManager) Statistics() Statistics {
	return Statistics{
		Hits:      m.hits.Load(),
		Misses:    m.misses.Load(),
		Evictions: m.evictions.Load(),
		Sets:      m.sets.Load(),
	}
}

// RunCleanup starts a background loop sweeping expired TTL entries at
// least once per minute (spec §4.2); call Stop to end it.
func (m *CacheManager) RunCleanup(interval time.Duration) {
	if interval <= 0 || interval > time.Minute {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-m.stopCh:
				return
			case now := <-ticker.C:
				m.sweep(now)
			}
		}
	}()
}

func (m *CacheManager) sweep(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.namespaces {
		if ttlC, ok := c.(*ttlContainer); ok {
			if n := ttlC.sweepExpired(now); n > 0 {
				m.evictions.Add(int64(n))
			}
		}
	}
}

// Stop ends the background cleanup loop.
func (m *CacheManager) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

func namespaceKey(namespace, key string) string {
	return namespace + ":" + key
}

func maybeCompress(value []byte) ([]byte, bool) {
	if len(value) < compressionThresholdBytes {
		return value, false
	}
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(value); err != nil {
		return value, false
	}
	if err := w.Close(); err != nil {
		return value, false
	}
	if buf.Len() >= len(value) {
		return value, false
	}
	return buf.Bytes(), true
}

func decompress(entry *types.CacheEntry) ([]byte, bool, error) {
	if !entry.Compressed {
		return entry.Value, true, nil
	}
	r, err := gzip.NewReader(bytes.NewReader(entry.Value))
	if err != nil {
		return nil, false, err
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, false, err
	}
	return out, true, nil
}
