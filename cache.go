package rdns

import (
	"sync"
	"time"

	"github.com/miekg/dns"
)

// Cache stores responses to previously answered queries, keyed by question.
// The Dispatcher and the iterative resolver only ever read from it, writing
// results back is up to the layer that produced them.
type Cache interface {
	Get(q *dns.Msg) *dns.Msg
	Put(q, a *dns.Msg)
}

// MemoryCache is an in-memory LRU cache of DNS responses. Entries are keyed
// by question and the DNSSEC OK bit, so a plain answer never satisfies a
// query asking for DNSSEC records. Entries expire after the lowest TTL found
// in the answer section, or after NegativeTTL for responses without answer
// records.
type MemoryCache struct {
	mu          sync.Mutex
	capacity    int
	negativeTTL uint32
	items       map[cacheKey]*cacheItem
	head, tail  *cacheItem

	now func() time.Time
}

type cacheKey struct {
	question dns.Question
	do       bool
}

func msgKey(q *dns.Msg) cacheKey {
	key := cacheKey{question: q.Question[0]}
	if edns := q.IsEdns0(); edns != nil {
		key.do = edns.Do()
	}
	return key
}

type cacheItem struct {
	key        cacheKey
	msg        *dns.Msg
	expiry     time.Time
	prev, next *cacheItem
}

var _ Cache = &MemoryCache{}

// NewMemoryCache returns a cache holding up to capacity responses, without
// limit if capacity is 0. When full, the least-recently used entry is
// dropped.
func NewMemoryCache(capacity int) *MemoryCache {
	head := new(cacheItem)
	tail := new(cacheItem)
	head.next = tail
	tail.prev = head

	return &MemoryCache{
		capacity:    capacity,
		negativeTTL: 60,
		items:       make(map[cacheKey]*cacheItem),
		head:        head,
		tail:        tail,
		now:         time.Now,
	}
}

// Get returns a copy of the cached response for the question in q, or nil
// on a miss. The copy carries the message ID of q.
func (c *MemoryCache) Get(q *dns.Msg) *dns.Msg {
	if len(q.Question) != 1 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	item := c.items[msgKey(q)]
	if item == nil {
		return nil
	}
	if c.now().After(item.expiry) {
		c.remove(item)
		return nil
	}
	c.touch(item)
	a := item.msg.Copy()
	a.Id = q.Id
	return a
}

// Put stores a copy of response a under the question of q.
func (c *MemoryCache) Put(q, a *dns.Msg) {
	if len(q.Question) != 1 || a == nil {
		return
	}
	ttl := c.negativeTTL
	for i, rr := range a.Answer {
		if t := rr.Header().Ttl; i == 0 || t < ttl {
			ttl = t
		}
	}
	key := msgKey(q)
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing := c.items[key]; existing != nil {
		c.remove(existing)
	}
	item := &cacheItem{
		key:    key,
		msg:    a.Copy(),
		expiry: c.now().Add(time.Duration(ttl) * time.Second),
	}
	c.insert(item)
	if c.capacity > 0 && len(c.items) > c.capacity {
		c.remove(c.tail.prev)
	}
}

// Add an item at the top of the linked list (most recent).
func (c *MemoryCache) insert(item *cacheItem) {
	item.next = c.head.next
	item.prev = c.head
	c.head.next.prev = item
	c.head.next = item
	c.items[item.key] = item
}

// Move an existing item to the top of the linked list.
func (c *MemoryCache) touch(item *cacheItem) {
	item.prev.next = item.next
	item.next.prev = item.prev
	item.next = c.head.next
	item.prev = c.head
	c.head.next.prev = item
	c.head.next = item
}

func (c *MemoryCache) remove(item *cacheItem) {
	item.prev.next = item.next
	item.next.prev = item.prev
	delete(c.items, item.key)
}
