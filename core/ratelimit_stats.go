package core

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimitEvent is one allow/deny decision.
type RateLimitEvent struct {
	Key     string
	Allowed bool
	Method  string
	Path    string
	At      time.Time
}

// RateLimitStats persists limiter decisions. Implementations are best-effort.
type RateLimitStats interface {
	Record(ctx context.Context, ev RateLimitEvent) error
}

// RateLimitTotals are the cumulative counters reported by /health.
type RateLimitTotals struct {
	Allowed int64 `json:"allowed"`
	Denied  int64 `json:"denied"`
}

// RateLimitTotalsReader is implemented by stats sinks that can report totals.
type RateLimitTotalsReader interface {
	Totals(ctx context.Context) (RateLimitTotals, error)
}

// RedisRateLimitStats keeps counters in Redis hashes:
//
//	<prefix>:total                 allowed|denied, never expires
//	<prefix>:minute:<YYYYMMDDhhmm> allowed|denied, expires after ttl
//	<prefix>:route                 "<METHOD> <path>:allowed|denied"
type RedisRateLimitStats struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisRateLimitStats(client *redis.Client, prefix string, ttl time.Duration) *RedisRateLimitStats {
	prefix = strings.Trim(prefix, ":")
	if prefix == "" {
		prefix = "recados:ratelimit"
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisRateLimitStats{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisRateLimitStats) Record(ctx context.Context, ev RateLimitEvent) error {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	field := "denied"
	if ev.Allowed {
		field = "allowed"
	}

	pipe := s.client.Pipeline()
	pipe.HIncrBy(ctx, s.prefix+":total", field, 1)

	bucketKey := fmt.Sprintf("%s:minute:%s", s.prefix, at.UTC().Format("200601021504"))
	pipe.HIncrBy(ctx, bucketKey, field, 1)
	pipe.Expire(ctx, bucketKey, s.ttl)

	if route := strings.TrimSpace(ev.Method + " " + ev.Path); route != "" {
		pipe.HIncrBy(ctx, s.prefix+":route", route+":"+field, 1)
	}

	_, err := pipe.Exec(ctx)
	return err
}

// Totals reads the cumulative counters; missing keys count as zero.
func (s *RedisRateLimitStats) Totals(ctx context.Context) (RateLimitTotals, error) {
	vals, err := s.client.HGetAll(ctx, s.prefix+":total").Result()
	if err != nil {
		return RateLimitTotals{}, err
	}
	return totalsFromHash(vals), nil
}

// Minute returns the counters for the minute bucket containing at.
func (s *RedisRateLimitStats) Minute(ctx context.Context, at time.Time) (RateLimitTotals, error) {
	key := fmt.Sprintf("%s:minute:%s", s.prefix, at.UTC().Format("200601021504"))
	vals, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return RateLimitTotals{}, err
	}
	return totalsFromHash(vals), nil
}

func totalsFromHash(vals map[string]string) RateLimitTotals {
	var t RateLimitTotals
	t.Allowed, _ = strconv.ParseInt(vals["allowed"], 10, 64)
	t.Denied, _ = strconv.ParseInt(vals["denied"], 10, 64)
	return t
}
