package gateway

import (
	"sync"
	"time"
)

const (
	rateLimitPerMinute = 120
	rateLimitStaleAge  = 5 * time.Minute
)

// RateLimiter bounds per-connection signaling message rate, protecting the
// gateway from join storms and misbehaving clients.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientLimit
}

type clientLimit struct {
	messageCount int
	windowStart  time.Time
}

// NewRateLimiter creates a rate limiter.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		clients: make(map[string]*clientLimit),
	}
}

// Allow reports whether the connection may send another message within the
// current minute window.
func (rl *RateLimiter) Allow(connectionID string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()

	limit, exists := rl.clients[connectionID]
	if !exists {
		rl.clients[connectionID] = &clientLimit{messageCount: 1, windowStart: now}
		return true
	}

	if now.Sub(limit.windowStart) >= time.Minute {
		limit.messageCount = 1
		limit.windowStart = now
		return true
	}

	if limit.messageCount >= rateLimitPerMinute {
		return false
	}

	limit.messageCount++
	return true
}

// Cleanup removes stale per-connection state; call periodically.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	for connectionID, limit := range rl.clients {
		if now.Sub(limit.windowStart) > rateLimitStaleAge {
			delete(rl.clients, connectionID)
		}
	}
}
