package inbox

import (
	"container/list"
	"sync"
	"time"
)

// seenCache tracks message ids already applied to the cache, so a sender's
// own optimistic insert arriving again over broadcast is dropped. Entries
// expire after a TTL and the oldest are evicted past maxSize.
type seenCache struct {
	mu      sync.Mutex
	entries map[string]*seenEntry
	order   *list.List
	ttl     time.Duration
	maxSize int
}

type seenEntry struct {
	at      time.Time
	element *list.Element
}

func newSeenCache(ttl time.Duration, maxSize int) *seenCache {
	return &seenCache{
		entries: make(map[string]*seenEntry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
	}
}

// checkAndMark atomically reports whether key was already seen and marks it
// if not. Expired entries count as unseen.
func (s *seenCache) checkAndMark(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if e, ok := s.entries[key]; ok {
		if now.Sub(e.at) < s.ttl {
			return true
		}
		e.at = now
		s.order.MoveToBack(e.element)
		return false
	}

	if len(s.entries) >= s.maxSize {
		s.evictOldest()
	}

	elem := s.order.PushBack(key)
	s.entries[key] = &seenEntry{at: now, element: elem}
	return false
}

func (s *seenCache) evictOldest() {
	front := s.order.Front()
	if front == nil {
		return
	}
	key, _ := front.Value.(string)
	s.order.Remove(front)
	delete(s.entries, key)
}
