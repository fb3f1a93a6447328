package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Counter counts hits on key inside a fixed window that starts at the
// first hit. It returns the count including this hit and the time left in
// the window.
type Counter interface {
	Hit(ctx context.Context, key string, window time.Duration) (count int64, ttl time.Duration, err error)
}

// hitScript increments the key and starts the window on the first hit.
// Running INCR and PEXPIRE in one script keeps a crash between them from
// leaving a counter that never expires.
var hitScript = redis.NewScript(`
	local n = redis.call('INCR', KEYS[1])
	if n == 1 then
		redis.call('PEXPIRE', KEYS[1], ARGV[1])
	end
	return { n, redis.call('PTTL', KEYS[1]) }
`)

// RedisCounter keeps windows in Redis so every server instance shares them.
type RedisCounter struct {
	rdb    redis.Scripter
	prefix string
}

// NewRedisCounter builds a Counter on rdb. Keys are namespaced by prefix.
func NewRedisCounter(rdb redis.Scripter, prefix string) *RedisCounter {
	return &RedisCounter{rdb: rdb, prefix: prefix}
}

func (c *RedisCounter) Hit(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	vals, err := hitScript.Run(ctx, c.rdb, []string{c.prefix + key}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return 0, 0, fmt.Errorf("ratelimit: redis hit: %w", err)
	}
	if len(vals) != 2 {
		return 0, 0, fmt.Errorf("ratelimit: unexpected script result %v", vals)
	}

	ttl := time.Duration(vals[1]) * time.Millisecond
	if ttl < 0 {
		ttl = window
	}
	return vals[0], ttl, nil
}

// MemoryCounter is a single-process Counter for development and tests,
// used when no Redis address is configured.
type MemoryCounter struct {
	mu      sync.Mutex
	windows map[string]memoryWindow
	now     func() time.Time
}

type memoryWindow struct {
	count   int64
	resetAt time.Time
}

func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{windows: make(map[string]memoryWindow), now: time.Now}
}

func (c *MemoryCounter) Hit(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	w, ok := c.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = memoryWindow{resetAt: now.Add(window)}
	}
	w.count++
	c.windows[key] = w

	// Drop stale windows opportunistically so the map stays bounded.
	if len(c.windows) > 10000 {
		for k, v := range c.windows {
			if !now.Before(v.resetAt) {
				delete(c.windows, k)
			}
		}
	}
	return w.count, w.resetAt.Sub(now), nil
}

// RateLimit allows at most limit requests per client IP per window. Over
// the limit it answers 429 with Retry-After. If the counter fails the
// request is let through: a broken limiter must not lock everyone out.
//
// Place it after chi's RealIP so RemoteAddr is the client address.
func RateLimit(counter Counter, name string, limit int, window time.Duration, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limit <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			key := name + ":" + clientIP(r)
			count, ttl, err := counter.Hit(r.Context(), key, window)
			if err != nil {
				logger.Warn("rate limiter unavailable, allowing request",
					slog.String("limiter", name),
					slog.String("error", err.Error()),
				)
				next.ServeHTTP(w, r)
				return
			}

			remaining := int64(limit) - count
			if remaining < 0 {
				remaining = 0
			}
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

			if count > int64(limit) {
				retry := int(math.Ceil(ttl.Seconds()))
				if retry < 1 {
					retry = 1
				}
				logger.Info("rate limit exceeded",
					slog.String("limiter", name),
					slog.String("client", clientIP(r)),
				)
				w.Header().Set("Retry-After", strconv.Itoa(retry))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]string{
					"error":   "too_many_requests",
					"message": "Too many attempts, try again later",
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
