package rest

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// bucket tracks the server-advertised rate-limit window for one route.
type bucket struct {
	mu        sync.Mutex
	limit     int
	remaining int
	reset     time.Time
	known     bool // headers seen at least once
}

// bucketSet maps route keys to their buckets.
type bucketSet struct {
	mu      sync.Mutex
	buckets map[string]*bucket
}

func newBucketSet() *bucketSet {
	return &bucketSet{
		buckets: make(map[string]*bucket),
	}
}

func (s *bucketSet) get(route string) *bucket {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[route]
	if !ok {
		b = &bucket{}
		s.buckets[route] = b
	}
	return b
}

// wait blocks until the route's window permits another request.
func (b *bucket) wait(ctx context.Context) error {
	b.mu.Lock()
	var delay time.Duration
	if b.known && b.remaining <= 0 {
		delay = time.Until(b.reset)
	}
	b.mu.Unlock()

	if delay <= 0 {
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}

// update records the rate-limit headers from a response.
func (b *bucket) update(h http.Header) {
	limit, err1 := strconv.Atoi(h.Get("X-RateLimit-Limit"))
	remaining, err2 := strconv.Atoi(h.Get("X-RateLimit-Remaining"))
	resetSec, err3 := strconv.ParseFloat(h.Get("X-RateLimit-Reset"), 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return
	}

	b.mu.Lock()
	b.limit = limit
	b.remaining = remaining
	b.reset = time.Unix(0, int64(resetSec*float64(time.Second)))
	b.known = true
	b.mu.Unlock()
}
