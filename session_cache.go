package tls

import (
	"container/list"
	"sync"
	"time"

	"github.com/insinfo/tlslite-sub007/handshakestate"
)

// SessionCache and TicketStore are defined in handshakestate and
// re-exported here; the LRU implementations below are this package's
// default, concrete collaborators.
type SessionCache = handshakestate.SessionCache

// LRUSessionCache is a bounded, mutex-guarded session cache evicting the
// least-recently-used entry once it is full, plus per-entry expiration.
// It is the default SessionCache implementation; callers may supply their
// own (only the eviction policy matters, not the data structure).
type LRUSessionCache struct {
	mu       sync.Mutex
	capacity int
	ll       *list.List
	items    map[string]*list.Element
}

type lruEntry struct {
	key     string
	session *Session
}

// NewLRUSessionCache creates a cache holding at most capacity entries.
func NewLRUSessionCache(capacity int) *LRUSessionCache {
	if capacity <= 0 {
		capacity = 64
	}
	return &LRUSessionCache{
		capacity: capacity,
		ll:       list.New(),
		items:    make(map[string]*list.Element, capacity),
	}
}

func (c *LRUSessionCache) Lookup(key string) (*Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return nil, false
	}
	entry := el.Value.(*lruEntry)
	if !entry.session.ExpireTime.IsZero() && time.Now().After(entry.session.ExpireTime) {
		c.removeElement(el)
		return nil, false
	}
	c.ll.MoveToFront(el)
	return entry.session, true
}

func (c *LRUSessionCache) Insert(key string, s *Session) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		el.Value.(*lruEntry).session = s
		c.ll.MoveToFront(el)
		return
	}

	el := c.ll.PushFront(&lruEntry{key: key, session: s})
	c.items[key] = el

	for c.ll.Len() > c.capacity {
		c.removeOldest()
	}
}

func (c *LRUSessionCache) EvictExpired(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var next *list.Element
	for el := c.ll.Back(); el != nil; el = next {
		next = el.Prev()
		entry := el.Value.(*lruEntry)
		if !entry.session.ExpireTime.IsZero() && now.After(entry.session.ExpireTime) {
			c.removeElement(el)
		}
	}
}

func (c *LRUSessionCache) removeOldest() {
	el := c.ll.Back()
	if el != nil {
		c.removeElement(el)
	}
}

func (c *LRUSessionCache) removeElement(el *list.Element) {
	c.ll.Remove(el)
	entry := el.Value.(*lruEntry)
	delete(c.items, entry.key)
}

type TicketStore = handshakestate.TicketStore

// LRUTicketStore mirrors LRUSessionCache for NewSessionTicket values.
type LRUTicketStore struct {
	mu       sync.Mutex
	capacity int
	ll       *list.List
	items    map[string]*list.Element
}

type ticketEntry struct {
	key    string
	ticket *NewSessionTicket
}

func NewLRUTicketStore(capacity int) *LRUTicketStore {
	if capacity <= 0 {
		capacity = 64
	}
	return &LRUTicketStore{
		capacity: capacity,
		ll:       list.New(),
		items:    make(map[string]*list.Element, capacity),
	}
}

func (c *LRUTicketStore) Lookup(ticket []byte) (*NewSessionTicket, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := string(ticket)
	el, ok := c.items[key]
	if !ok {
		return nil, false
	}
	entry := el.Value.(*ticketEntry)
	expire := entry.ticket.ReceivedAt.Add(time.Duration(entry.ticket.Lifetime) * time.Second)
	if time.Now().After(expire) {
		c.removeElement(el)
		return nil, false
	}
	c.ll.MoveToFront(el)
	return entry.ticket, true
}

func (c *LRUTicketStore) Insert(ticket []byte, t *NewSessionTicket) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := string(ticket)
	if el, ok := c.items[key]; ok {
		el.Value.(*ticketEntry).ticket = t
		c.ll.MoveToFront(el)
		return
	}
	el := c.ll.PushFront(&ticketEntry{key: key, ticket: t})
	c.items[key] = el
	for c.ll.Len() > c.capacity {
		back := c.ll.Back()
		if back != nil {
			c.removeElement(back)
		}
	}
}

func (c *LRUTicketStore) EvictExpired(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var next *list.Element
	for el := c.ll.Back(); el != nil; el = next {
		next = el.Prev()
		entry := el.Value.(*ticketEntry)
		expire := entry.ticket.ReceivedAt.Add(time.Duration(entry.ticket.Lifetime) * time.Second)
		if now.After(expire) {
			c.removeElement(el)
		}
	}
}

func (c *LRUTicketStore) removeElement(el *list.Element) {
	c.ll.Remove(el)
	entry := el.Value.(*ticketEntry)
	delete(c.items, entry.key)
}
