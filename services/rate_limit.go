package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RateLimiter admits at most a fixed number of events per key within a sliding
// window. When an event is refused, retryAfter says when the oldest counted
// event leaves the window.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (allowed bool, retryAfter time.Duration, err error)
}

const defaultRateLimitMaxKeys = 10_000

// MemoryRateLimiter keeps per-key event times in process. The key set is
// bounded: stale keys are pruned, and if still over capacity the keys with the
// oldest activity go first.
type MemoryRateLimiter struct {
	mu        sync.Mutex
	limit     int
	window    time.Duration
	maxKeys   int
	hits      map[string][]time.Time
	lastPrune time.Time
	now       func() time.Time
}

func NewMemoryRateLimiter(limit int, window time.Duration, maxKeys int) *MemoryRateLimiter {
	if limit <= 0 {
		limit = 3
	}
	if window <= 0 {
		window = time.Minute
	}
	if maxKeys <= 0 {
		maxKeys = defaultRateLimitMaxKeys
	}
	return &MemoryRateLimiter{
		limit:   limit,
		window:  window,
		maxKeys: maxKeys,
		hits:    make(map[string][]time.Time),
		now:     time.Now,
	}
}

func (l *MemoryRateLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	hits := l.recent(l.hits[key], now)
	if len(hits) >= l.limit {
		l.hits[key] = hits
		return false, hits[0].Add(l.window).Sub(now), nil
	}
	l.hits[key] = append(hits, now)
	l.prune(now)
	return true, 0, nil
}

// Keys reports how many callers are currently tracked.
func (l *MemoryRateLimiter) Keys() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.hits)
}

// recent drops hits that fell out of the window. hits is sorted oldest first.
func (l *MemoryRateLimiter) recent(hits []time.Time, now time.Time) []time.Time {
	i := 0
	for i < len(hits) && now.Sub(hits[i]) >= l.window {
		i++
	}
	return hits[i:]
}

func (l *MemoryRateLimiter) prune(now time.Time) {
	if len(l.hits) <= l.maxKeys && now.Sub(l.lastPrune) < l.window {
		return
	}
	l.lastPrune = now
	for k, hits := range l.hits {
		if len(l.recent(hits, now)) == 0 {
			delete(l.hits, k)
		}
	}
	if len(l.hits) <= l.maxKeys {
		return
	}

	type keyAge struct {
		key  string
		last time.Time
	}
	ages := make([]keyAge, 0, len(l.hits))
	for k, hits := range l.hits {
		ages = append(ages, keyAge{key: k, last: hits[len(hits)-1]})
	}
	sort.Slice(ages, func(i, j int) bool { return ages[i].last.Before(ages[j].last) })
	for _, a := range ages[:len(ages)-l.maxKeys] {
		delete(l.hits, a.key)
	}
}

// slidingWindowScript trims the sorted set to the window, then either records
// the event or reports the wait until the oldest member expires.
var slidingWindowScript = redis.NewScript(`
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', ARGV[2])
local count = redis.call('ZCARD', KEYS[1])
if count >= tonumber(ARGV[4]) then
  local oldest = redis.call('ZRANGE', KEYS[1], 0, 0, 'WITHSCORES')
  return {0, tonumber(oldest[2]) + tonumber(ARGV[3]) - tonumber(ARGV[1])}
end
redis.call('ZADD', KEYS[1], ARGV[1], ARGV[5])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return {1, 0}
`)

// RedisRateLimiter shares the window across instances through a Redis sorted set
// per key.
type RedisRateLimiter struct {
	rdb    redis.Scripter
	prefix string
	limit  int
	window time.Duration
	now    func() time.Time
}

func NewRedisRateLimiter(rdb redis.Scripter, prefix string, limit int, window time.Duration) *RedisRateLimiter {
	if limit <= 0 {
		limit = 3
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RedisRateLimiter{rdb: rdb, prefix: prefix, limit: limit, window: window, now: time.Now}
}

func (l *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	now := l.now().UnixMilli()
	member := fmt.Sprintf("%d-%s", now, uuid.NewString())
	window := l.window.Milliseconds()
	res, err := slidingWindowScript.Run(ctx, l.rdb, []string{l.prefix + key},
		now, now-window, window, l.limit, member).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("rate limit script: %w", err)
	}
	if len(res) != 2 {
		return false, 0, fmt.Errorf("rate limit script: unexpected reply %v", res)
	}
	if res[0] == 1 {
		return true, 0, nil
	}
	return false, time.Duration(res[1]) * time.Millisecond, nil
}

func NewRedisClient(addr, password string, db int) (*redis.Client, error) {
	if addr == "" {
		return nil, errors.New("redis addr is empty")
	}
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	}), nil
}
