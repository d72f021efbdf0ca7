// Package cache implements the tiered, multi-strategy cache (C3 of the
// core): TTL, LRU, LFU and FIFO eviction behind one CacheManager, with
// transparent compression and hit/miss statistics.
package cache

import (
	"container/list"
	"time"

	"github.com/Edgame2/masterTrade-sub003/pkg/types"
)

// container is one strategy-specific in-memory cache honoring a single
// eviction policy. All methods assume the caller holds the container's
// lock (CacheManager owns locking per spec §5's "per-container mutex").
type container interface {
	get(key string, now time.Time) (*types.CacheEntry, bool)
	set(entry *types.CacheEntry, now time.Time)
	delete(key string)
	clear()
	size() int
	maxSize() int
}

// --- TTL -----------------------------------------------------------

// ttlContainer expires entries by absolute age; eviction is lazy on
// read plus whatever periodic sweep the manager runs.
type ttlContainer struct {
	entries map[string]*types.CacheEntry
	limit   int
}

func newTTLContainer(limit int) *ttlContainer {
	return &ttlContainer{entries: make(map[string]*types.CacheEntry), limit: limit}
}

func (c *ttlContainer) get(key string, now time.Time) (*types.CacheEntry, bool) {
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if e.Expired(now) {
		delete(c.entries, key)
		return nil, false
	}
	return e, true
}

func (c *ttlContainer) set(entry *types.CacheEntry, now time.Time) {
	if _, exists := c.entries[entry.Key]; !exists && len(c.entries) >= c.limit {
		c.evictOneExpiredOrOldest(now)
	}
	c.entries[entry.Key] = entry
}

func (c *ttlContainer) evictOneExpiredOrOldest(now time.Time) {
	var oldestKey string
	var oldestAt time.Time
	for k, e := range c.entries {
		if e.Expired(now) {
			delete(c.entries, k)
			return
		}
		if oldestKey == "" || e.CreatedAt.Before(oldestAt) {
			oldestKey, oldestAt = k, e.CreatedAt
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

func (c *ttlContainer) delete(key string) { delete(c.entries, key) }
func (c *ttlContainer) clear()            { c.entries = make(map[string]*types.CacheEntry) }
func (c *ttlContainer) size() int         { return len(c.entries) }
func (c *ttlContainer) maxSize() int      { return c.limit }

// sweepExpired removes every expired entry; the manager calls this at
// least once per minute per spec §4.2.
func (c *ttlContainer) sweepExpired(now time.Time) int {
	removed := 0
	for k, e := range c.entries {
		if e.Expired(now) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// --- LRU -------------------------------------------------------------

type lruContainer struct {
	limit  int
	order  *list.List
	lookup map[string]*list.Element
}

type lruNode struct {
	entry *types.CacheEntry
}

func newLRUContainer(limit int) *lruContainer {
	return &lruContainer{limit: limit, order: list.New(), lookup: make(map[string]*list.Element)}
}

func (c *lruContainer) get(key string, now time.Time) (*types.CacheEntry, bool) {
	el, ok := c.lookup[key]
	if !ok {
		return nil, false
	}
	node := el.Value.(*lruNode)
	if node.entry.Expired(now) {
		c.order.Remove(el)
		delete(c.lookup, key)
		return nil, false
	}
	c.order.MoveToFront(el)
	return node.entry, true
}

func (c *lruContainer) set(entry *types.CacheEntry, now time.Time) {
	if el, ok := c.lookup[entry.Key]; ok {
		el.Value.(*lruNode).entry = entry
		c.order.MoveToFront(el)
		return
	}
	if len(c.lookup) >= c.limit {
		c.evictLRU()
	}
	el := c.order.PushFront(&lruNode{entry: entry})
	c.lookup[entry.Key] = el
}

func (c *lruContainer) evictLRU() {
	back := c.order.Back()
	if back == nil {
		return
	}
	node := back.Value.(*lruNode)
	delete(c.lookup, node.entry.Key)
	c.order.Remove(back)
}

func (c *lruContainer) delete(key string) {
	if el, ok := c.lookup[key]; ok {
		c.order.Remove(el)
		delete(c.lookup, key)
	}
}

func (c *lruContainer) clear() {
	c.order = list.New()
	c.lookup = make(map[string]*list.Element)
}

func (c *lruContainer) size() int    { return len(c.lookup) }
func (c *lruContainer) maxSize() int { return c.limit }

// --- LFU -------------------------------------------------------------

// lfuContainer evicts the lowest-frequency entry, ties broken by
// insertion order (earliest inserted loses first).
type lfuContainer struct {
	limit     int
	entries   map[string]*types.CacheEntry
	frequency map[string]int64
	insertSeq map[string]int64
	seq       int64
}

func newLFUContainer(limit int) *lfuContainer {
	return &lfuContainer{
		limit:     limit,
		entries:   make(map[string]*types.CacheEntry),
		frequency: make(map[string]int64),
		insertSeq: make(map[string]int64),
	}
}

func (c *lfuContainer) get(key string, now time.Time) (*types.CacheEntry, bool) {
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if e.Expired(now) {
		c.deleteLocked(key)
		return nil, false
	}
	c.frequency[key]++
	return e, true
}

func (c *lfuContainer) set(entry *types.CacheEntry, now time.Time) {
	if _, exists := c.entries[entry.Key]; !exists && len(c.entries) >= c.limit {
		c.evictLFU()
	}
	if _, exists := c.entries[entry.Key]; !exists {
		c.seq++
		c.insertSeq[entry.Key] = c.seq
		c.frequency[entry.Key] = 0
	}
	c.entries[entry.Key] = entry
}

func (c *lfuContainer) evictLFU() {
	var evictKey string
	var minFreq int64 = -1
	var minSeq int64
	for k, f := range c.frequency {
		if minFreq == -1 || f < minFreq || (f == minFreq && c.insertSeq[k] < minSeq) {
			evictKey, minFreq, minSeq = k, f, c.insertSeq[k]
		}
	}
	if evictKey != "" {
		c.deleteLocked(evictKey)
	}
}

func (c *lfuContainer) deleteLocked(key string) {
	delete(c.entries, key)
	delete(c.frequency, key)
	delete(c.insertSeq, key)
}

func (c *lfuContainer) delete(key string) { c.deleteLocked(key) }
func (c *lfuContainer) clear() {
	c.entries = make(map[string]*types.CacheEntry)
	c.frequency = make(map[string]int64)
	c.insertSeq = make(map[string]int64)
}
func (c *lfuContainer) size() int    { return len(c.entries) }
func (c *lfuContainer) maxSize() int { return c.limit }

// --- FIFO --------------------------------------------------------------

// fifoContainer evicts in strict insertion order; access never reorders.
type fifoContainer struct {
	limit  int
	order  *list.List
	lookup map[string]*list.Element
}

func newFIFOContainer(limit int) *fifoContainer {
	return &fifoContainer{limit: limit, order: list.New(), lookup: make(map[string]*list.Element)}
}

func (c *fifoContainer) get(key string, now time.Time) (*types.CacheEntry, bool) {
	el, ok := c.lookup[key]
	if !ok {
		return nil, false
	}
	entry := el.Value.(*types.CacheEntry)
	if entry.Expired(now) {
		c.order.Remove(el)
		delete(c.lookup, key)
		return nil, false
	}
	return entry, true
}

func (c *fifoContainer) set(entry *types.CacheEntry, now time.Time) {
	if el, ok := c.lookup[entry.Key]; ok {
		el.Value = entry
		return
	}
	if len(c.lookup) >= c.limit {
		front := c.order.Front()
		if front != nil {
			delete(c.lookup, front.Value.(*types.CacheEntry).Key)
			c.order.Remove(front)
		}
	}
	el := c.order.PushBack(entry)
	c.lookup[entry.Key] = el
}

func (c *fifoContainer) delete(key string) {
	if el, ok := c.lookup[key]; ok {
		c.order.Remove(el)
		delete(c.lookup, key)
	}
}

func (c *fifoContainer) clear() {
	c.order = list.New()
	c.lookup = make(map[string]*list.Element)
}
func (c *fifoContainer) size() int    { return len(c.lookup) }
func (c *fifoContainer) maxSize() int { return c.limit }

func newContainer(strategy types.CacheStrategy, limit int) container {
	switch strategy {
	case types.CacheStrategyLRU:
		return newLRUContainer(limit)
	case types.CacheStrategyLFU:
		return newLFUContainer(limit)
	case types.CacheStrategyFIFO:
		return newFIFOContainer(limit)
	default:
		return newTTLContainer(limit)
	}
}
