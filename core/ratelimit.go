package core

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimiter is a per-client token bucket: max requests per window, refilled
// continuously. State is per process and lost on restart.
type RateLimiter struct {
	mu      sync.Mutex
	entries map[string]*limiterEntry
	every   rate.Limit
	burst   int
	idleTTL time.Duration
	now     func() time.Time
}

type limiterEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

func NewRateLimiter(maxRequests int, window time.Duration) *RateLimiter {
	if maxRequests <= 0 {
		maxRequests = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{
		entries: make(map[string]*limiterEntry),
		every:   rate.Every(window / time.Duration(maxRequests)),
		burst:   maxRequests,
		// a bucket idle for a whole window has refilled completely
		idleTTL: window,
		now:     time.Now,
	}
}

// Allow consumes one token for key. When the bucket is empty it returns false
// and the wait until the next token.
func (l *RateLimiter) Allow(key string) (bool, time.Duration) {
	now := l.now()
	lim := l.get(key, now)

	r := lim.ReserveN(now, 1)
	if !r.OK() {
		return false, l.idleTTL
	}
	if d := r.DelayFrom(now); d > 0 {
		r.CancelAt(now)
		return false, d
	}
	return true, 0
}

func (l *RateLimiter) get(key string, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if ent, ok := l.entries[key]; ok {
		ent.lastSeen = now
		return ent.lim
	}
	lim := rate.NewLimiter(l.every, l.burst)
	l.entries[key] = &limiterEntry{lim: lim, lastSeen: now}
	return lim
}

// Cleanup drops clients idle for longer than the window.
func (l *RateLimiter) Cleanup() {
	cutoff := l.now().Add(-l.idleTTL)

	l.mu.Lock()
	defer l.mu.Unlock()
	for k, ent := range l.entries {
		if ent.lastSeen.Before(cutoff) {
			delete(l.entries, k)
		}
	}
}

// Len is the number of tracked clients.
func (l *RateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// StartJanitor runs Cleanup every interval until ctx is done.
func (l *RateLimiter) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				l.Cleanup()
			}
		}
	}()
}

// RateLimitMiddleware keys clients by IP and answers 429 with Retry-After
// once they run out of tokens. stats may be nil; its errors are only logged.
func RateLimitMiddleware(l *RateLimiter, stats RateLimitStats, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		allowed, wait := l.Allow(key)

		if stats != nil {
			path := c.FullPath()
			if path == "" {
				path = "unmatched"
			}
			ev := RateLimitEvent{Key: key, Allowed: allowed, Method: c.Request.Method, Path: path, At: time.Now()}
			if err := stats.Record(c.Request.Context(), ev); err != nil {
				logger.DebugContext(c.Request.Context(), "rate limit stats not recorded", "error", err)
			}
		}

		if !allowed {
			secs := int(math.Ceil(wait.Seconds()))
			c.Header("Retry-After", strconv.Itoa(secs))
			respondError(c, http.StatusTooManyRequests, "TOO_MANY_REQUESTS", "Too many requests")
			c.Abort()
			return
		}
		c.Next()
	}
}
