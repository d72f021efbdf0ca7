package ratelimit

import (
	"sort"
	"sync"
	"time"
)

// Store is the shared-state collaborator required by spec §6: atomic
// increment with expiry, sorted-set semantics for sliding windows, and
// hash access for token/leaky-bucket state. A real deployment backs this
// with a distributed store; InMemoryStore below satisfies the same
// contract for single-process operation and tests.
type Store interface {
	// IncrementWithExpiry atomically increments key by 1 (creating it at
	// 0 first) and (re)sets its TTL, returning the post-increment value.
	IncrementWithExpiry(key string, ttl time.Duration) (int64, error)

	// SortedSetAdd adds member with the given score.
	SortedSetAdd(key string, score float64, member string) error
	// SortedSetRemoveByScore removes all members with score < maxScore.
	SortedSetRemoveByScore(key string, maxScore float64) error
	// SortedSetCard returns the number of members.
	SortedSetCard(key string) (int64, error)

	// HashGet returns the field values for a hash key (missing fields
	// return the zero value and ok=false).
	HashGet(key string, fields ...string) (map[string]float64, bool, error)
	// HashSet atomically sets fields on a hash key and refreshes its TTL.
	HashSet(key string, values map[string]float64, ttl time.Duration) error

	// Expire sets/refreshes a key's TTL without needing to know its type.
	Expire(key string, ttl time.Duration) error
}

// InMemoryStore is a mutex-guarded, single-process Store. Expiry is
// lazy: an expired entry is reaped when its key is next accessed, or by
// Sweep when a caller runs it; the store starts no background sweep.
type InMemoryStore struct {
	mu      sync.Mutex
	hashes  map[string]map[string]float64
	zsets   map[string]map[string]float64
	expires map[string]time.Time
}

// NewInMemoryStore builds an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		hashes:  make(map[string]map[string]float64),
		zsets:   make(map[string]map[string]float64),
		expires: make(map[string]time.Time),
	}
}

func (s *InMemoryStore) expired(key string) bool {
	at, ok := s.expires[key]
	return ok && time.Now().After(at)
}

func (s *InMemoryStore) reapLocked(key string) {
	if s.expired(key) {
		delete(s.hashes, key)
		delete(s.zsets, key)
		delete(s.expires, key)
	}
}

func (s *InMemoryStore) IncrementWithExpiry(key string, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reapLocked(key)

	h, ok := s.hashes[key]
	if !ok {
		h = make(map[string]float64)
		s.hashes[key] = h
	}
	h["count"]++
	s.expires[key] = time.Now().Add(ttl)
	return int64(h["count"]), nil
}

func (s *InMemoryStore) SortedSetAdd(key string, score float64, member string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reapLocked(key)

	z, ok := s.zsets[key]
	if !ok {
		z = make(map[string]float64)
		s.zsets[key] = z
	}
	z[member] = score
	return nil
}

func (s *InMemoryStore) SortedSetRemoveByScore(key string, maxScore float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reapLocked(key)

	z, ok := s.zsets[key]
	if !ok {
		return nil
	}
	for member, score := range z {
		if score < maxScore {
			delete(z, member)
		}
	}
	return nil
}

func (s *InMemoryStore) SortedSetCard(key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reapLocked(key)

	return int64(len(s.zsets[key])), nil
}

func (s *InMemoryStore) HashGet(key string, fields ...string) (map[string]float64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reapLocked(key)

	h, ok := s.hashes[key]
	if !ok {
		return nil, false, nil
	}
	out := make(map[string]float64, len(fields))
	found := false
	for _, f := range fields {
		if v, ok := h[f]; ok {
			out[f] = v
			found = true
		}
	}
	return out, found, nil
}

func (s *InMemoryStore) HashSet(key string, values map[string]float64, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reapLocked(key)

	h, ok := s.hashes[key]
	if !ok {
		h = make(map[string]float64)
		s.hashes[key] = h
	}
	for k, v := range values {
		h[k] = v
	}
	s.expires[key] = time.Now().Add(ttl)
	return nil
}

func (s *InMemoryStore) Expire(key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expires[key] = time.Now().Add(ttl)
	return nil
}

// Sweep removes all expired keys; callers run this on a periodic ticker.
func (s *InMemoryStore) Sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	expired := make([]string, 0)
	for k, at := range s.expires {
		if now.After(at) {
			expired = append(expired, k)
		}
	}
	sort.Strings(expired)
	for _, k := range expired {
		delete(s.hashes, k)
		delete(s.zsets, k)
		delete(s.expires, k)
	}
}
