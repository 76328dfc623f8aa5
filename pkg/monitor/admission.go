// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package monitor

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// observerQuota is the session budget of one observer host.
type observerQuota struct {
	tokens   *rate.Limiter
	lastSeen time.Time
	rejected uint64
}

// observerLimiter bounds how often each host may open an observer session.
// A host that has not connected for staleAge loses its quota and starts
// again with a full burst.
type observerLimiter struct {
	mu       sync.Mutex
	quotas   map[string]*observerQuota
	rate     rate.Limit
	burst    int
	staleAge time.Duration
	sweep    time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

func newObserverLimiter(sessionsPerSec float64, burst int, staleAge, sweep time.Duration) *observerLimiter {
	l := &observerLimiter{
		quotas:   make(map[string]*observerQuota),
		rate:     rate.Limit(sessionsPerSec),
		burst:    burst,
		staleAge: staleAge,
		sweep:    sweep,
		stopCh:   make(chan struct{}),
	}
	go l.sweepLoop()
	return l
}

// admit reports whether host may open another observer session. When it
// may not, rejected is the number of refusals since the host's quota was
// created.
func (l *observerLimiter) admit(host string) (ok bool, rejected uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	q, found := l.quotas[host]
	if !found {
		q = &observerQuota{tokens: rate.NewLimiter(l.rate, l.burst)}
		l.quotas[host] = q
	}
	q.lastSeen = time.Now()
	if q.tokens.Allow() {
		return true, q.rejected
	}
	q.rejected++
	return false, q.rejected
}

// hosts returns how many observer hosts currently hold a quota.
func (l *observerLimiter) hosts() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.quotas)
}

// stop ends the sweep goroutine. Safe to call more than once.
func (l *observerLimiter) stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
}

func (l *observerLimiter) sweepLoop() {
	ticker := time.NewTicker(l.sweep)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopCh:
			return
		case now := <-ticker.C:
			l.forgetIdle(now)
		}
	}
}

// forgetIdle drops quotas of hosts last seen more than staleAge before now.
func (l *observerLimiter) forgetIdle(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for host, q := range l.quotas {
		if now.Sub(q.lastSeen) > l.staleAge {
			delete(l.quotas, host)
		}
	}
}
