// Package ratelimit guards the delivery endpoints with token buckets so a
// misbehaving client cannot burn identity-provider round trips.
package ratelimit

import (
	"sync"
	"sync/atomic"
	"time"
)

type bucket struct {
	tokens   float64
	lastTime time.Time
	rps      float64
	burst    int
}

func (b *bucket) allow(now time.Time) bool {
	elapsed := now.Sub(b.lastTime).Seconds()
	b.tokens += elapsed * b.rps
	if b.tokens > float64(b.burst) {
		b.tokens = float64(b.burst)
	}
	b.lastTime = now

	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// Limiter applies per-IP and per-credential token buckets.
type Limiter struct {
	mu sync.Mutex

	ipBuckets   map[string]*bucket
	credBuckets map[string]*bucket

	ipRPS     float64
	ipBurst   int
	credRPS   float64
	credBurst int

	rejected atomic.Int64
	stopCh   chan struct{}
}

func NewLimiter(ipRPS float64, ipBurst int, credRPS float64, credBurst int) *Limiter {
	l := &Limiter{
		ipBuckets:   make(map[string]*bucket),
		credBuckets: make(map[string]*bucket),
		ipRPS:       ipRPS,
		ipBurst:     ipBurst,
		credRPS:     credRPS,
		credBurst:   credBurst,
		stopCh:      make(chan struct{}),
	}
	go l.cleanup()
	return l
}

// Allow reports whether one more request from this client fits the
// budget. The credential bucket is only consulted when a credential is
// present.
func (l *Limiter) Allow(clientIP, credential string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()

	ib, ok := l.ipBuckets[clientIP]
	if !ok {
		ib = &bucket{tokens: float64(l.ipBurst), lastTime: now, rps: l.ipRPS, burst: l.ipBurst}
		l.ipBuckets[clientIP] = ib
	}
	if !ib.allow(now) {
		l.rejected.Add(1)
		return false
	}

	if credential != "" {
		cb, ok := l.credBuckets[credential]
		if !ok {
			cb = &bucket{tokens: float64(l.credBurst), lastTime: now, rps: l.credRPS, burst: l.credBurst}
			l.credBuckets[credential] = cb
		}
		if !cb.allow(now) {
			l.rejected.Add(1)
			return false
		}
	}

	return true
}

// Rejected returns the total count of throttled requests.
func (l *Limiter) Rejected() int64 {
	return l.rejected.Load()
}

func (l *Limiter) Stop() {
	close(l.stopCh)
}

func (l *Limiter) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopCh:
			return
		case <-ticker.C:
			l.mu.Lock()
			now := time.Now()
			for ip, b := range l.ipBuckets {
				if now.Sub(b.lastTime) > 5*time.Minute {
					delete(l.ipBuckets, ip)
				}
			}
			for cred, b := range l.credBuckets {
				if now.Sub(b.lastTime) > 5*time.Minute {
					delete(l.credBuckets, cred)
				}
			}
			l.mu.Unlock()
		}
	}
}
