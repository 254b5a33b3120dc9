package tls

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRUSessionCacheInsertLookup(t *testing.T) {
	c := NewLRUSessionCache(4)
	s := &Session{SessionID: []byte{1}, MasterSecret: make([]byte, 48), ExpireTime: time.Now().Add(time.Hour)}
	c.Insert("example.com", s)

	got, ok := c.Lookup("example.com")
	require.True(t, ok)
	assert.Same(t, s, got)

	_, ok = c.Lookup("missing")
	assert.False(t, ok)
}

func TestLRUSessionCacheEviction(t *testing.T) {
	c := NewLRUSessionCache(2)
	mk := func(id byte) *Session {
		return &Session{SessionID: []byte{id}, ExpireTime: time.Now().Add(time.Hour)}
	}
	c.Insert("a", mk(1))
	c.Insert("b", mk(2))
	c.Lookup("a") // refresh a
	c.Insert("c", mk(3))

	_, ok := c.Lookup("b")
	assert.False(t, ok, "least-recently-used entry evicted")
	_, ok = c.Lookup("a")
	assert.True(t, ok)
	_, ok = c.Lookup("c")
	assert.True(t, ok)
}

func TestLRUSessionCacheExpiry(t *testing.T) {
	c := NewLRUSessionCache(4)
	c.Insert("stale", &Session{ExpireTime: time.Now().Add(-time.Minute)})
	_, ok := c.Lookup("stale")
	assert.False(t, ok, "expired entries never surface")

	c.Insert("stale2", &Session{ExpireTime: time.Now().Add(-time.Minute)})
	c.Insert("fresh", &Session{ExpireTime: time.Now().Add(time.Hour)})
	c.EvictExpired(time.Now())
	_, ok = c.Lookup("fresh")
	assert.True(t, ok)
}

func TestLRUSessionCacheConcurrentAccess(t *testing.T) {
	c := NewLRUSessionCache(32)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := string(rune('a' + i))
			for j := 0; j < 200; j++ {
				c.Insert(key, &Session{ExpireTime: time.Now().Add(time.Hour)})
				c.Lookup(key)
				c.EvictExpired(time.Now())
			}
		}(i)
	}
	wg.Wait()
}

func TestLRUTicketStore(t *testing.T) {
	s := NewLRUTicketStore(2)
	now := time.Now()
	mk := func(id byte, lifetime uint32) *NewSessionTicket {
		return &NewSessionTicket{Ticket: []byte{id}, Lifetime: lifetime, ReceivedAt: now}
	}
	s.Insert([]byte{1}, mk(1, 3600))
	s.Insert([]byte{2}, mk(2, 3600))

	got, ok := s.Lookup([]byte{1})
	require.True(t, ok)
	assert.Equal(t, []byte{1}, got.Ticket)

	s.Insert([]byte{3}, mk(3, 3600))
	_, ok = s.Lookup([]byte{2})
	assert.False(t, ok, "capacity bound enforced")

	s.Insert([]byte{9}, mk(9, 0))
	_, ok = s.Lookup([]byte{9})
	assert.False(t, ok, "zero lifetime is already expired")
}

func TestTicketExpired(t *testing.T) {
	now := time.Now()
	nt := &NewSessionTicket{ReceivedAt: now, Lifetime: 60}
	assert.False(t, TicketExpired(nt, now.Add(30*time.Second)))
	assert.True(t, TicketExpired(nt, now.Add(61*time.Second)))
}
