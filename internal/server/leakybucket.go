package server

import (
	"container/list"
	"net/netip"
	"time"

	"golang.org/x/time/rate"
)

// newLeakyBucket builds a rate.Limiter configured as a leaky bucket that
// allows burst accepts out of every window duration, refilling continuously
// rather than all at once.
func newLeakyBucket(burst int, window time.Duration) *rate.Limiter {
	return rate.NewLimiter(rate.Every(window/time.Duration(burst)), burst)
}

// bucketSetCap bounds how many distinct per-address buckets may be live at
// once, evicting the least recently used entry once full. An unbounded map
// keyed by arbitrary remote addresses is an easy memory-exhaustion vector
// against a server that only ever talks to hostile, untrusted peers.
const bucketSetCap = 4096

// bucketSet is a bounded, LRU-evicting map of per-address leaky buckets.
// It is only ever touched from the tick goroutine, so it carries no lock.
type bucketSet struct {
	burst  int
	window time.Duration

	entries map[netip.Addr]*list.Element
	order   *list.List // front = most recently used
}

type bucketEntry struct {
	addr    netip.Addr
	limiter *rate.Limiter
}

func newBucketSet(burst int, window time.Duration) *bucketSet {
	return &bucketSet{
		burst:   burst,
		window:  window,
		entries: make(map[netip.Addr]*list.Element),
		order:   list.New(),
	}
}

// Allow reports whether the bucket for addr has capacity right now,
// creating the bucket on first use and touching its LRU position.
func (s *bucketSet) Allow(addr netip.Addr) bool {
	if el, ok := s.entries[addr]; ok {
		s.order.MoveToFront(el)
		return el.Value.(*bucketEntry).limiter.Allow()
	}

	if s.order.Len() >= bucketSetCap {
		s.evictOldest()
	}

	be := &bucketEntry{addr: addr, limiter: newLeakyBucket(s.burst, s.window)}
	el := s.order.PushFront(be)
	s.entries[addr] = el
	return be.limiter.Allow()
}

func (s *bucketSet) evictOldest() {
	oldest := s.order.Back()
	if oldest == nil {
		return
	}
	s.order.Remove(oldest)
	delete(s.entries, oldest.Value.(*bucketEntry).addr)
}
