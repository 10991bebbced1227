package middleware

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// MemoryLimiter is a per-key token bucket for single-instance deployments.
type MemoryLimiter struct {
	visitors sync.Map
	rps      rate.Limit
	burst    int
}

type visitor struct {
	mu       sync.Mutex
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewMemoryLimiter allows limit requests per window on average, with bursts up to limit.
// Idle visitors are forgotten until ctx is cancelled.
func NewMemoryLimiter(ctx context.Context, limit int, window time.Duration) *MemoryLimiter {
	if limit < 1 {
		limit = 1
	}
	l := &MemoryLimiter{
		rps:   rate.Limit(float64(limit) / window.Seconds()),
		burst: limit,
	}
	go l.cleanupVisitors(ctx, window)
	return l
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	v, _ := l.visitors.LoadOrStore(key, &visitor{limiter: rate.NewLimiter(l.rps, l.burst)})
	vi := v.(*visitor)
	vi.mu.Lock()
	vi.lastSeen = time.Now()
	vi.mu.Unlock()
	return vi.limiter.Allow(), nil
}

func (l *MemoryLimiter) cleanupVisitors(ctx context.Context, idle time.Duration) {
	t := time.NewTicker(time.Minute)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		cutoff := time.Now().Add(-idle)
		l.visitors.Range(func(k, v interface{}) bool {
			vi := v.(*visitor)
			vi.mu.Lock()
			stale := vi.lastSeen.Before(cutoff)
			vi.mu.Unlock()
			if stale {
				l.visitors.Delete(k)
			}
			return true
		})
	}
}
