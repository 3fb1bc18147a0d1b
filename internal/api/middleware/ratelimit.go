package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter allows limit requests per client per window. With a Redis
// client the counters are shared across replicas; without one they are
// kept in process.
type RateLimiter struct {
	rdb    *redis.Client
	limit  int
	window time.Duration
	prefix string

	mu      sync.Mutex
	windows map[string]*localWindow
	now     func() time.Time
}

type localWindow struct {
	start time.Time
	count int
}

func NewRateLimiter(rdb *redis.Client, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		rdb:     rdb,
		limit:   limit,
		window:  window,
		prefix:  "vaultmind:ratelimit:",
		windows: make(map[string]*localWindow),
		now:     time.Now,
	}
}

func (rl *RateLimiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client := clientKey(r)

		allowed, err := rl.allow(r.Context(), client)
		if err != nil {
			// Fail open: a Redis outage must not take the API down.
			slog.Warn("rate limiter unavailable", "error", err)
			allowed = true
		}
		if !allowed {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", strconv.Itoa(int(rl.window.Seconds())))
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]string{"error": "rate limit exceeded"})
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) allow(ctx context.Context, client string) (bool, error) {
	if rl.rdb == nil {
		return rl.allowLocal(client), nil
	}

	bucket := rl.now().UnixNano() / int64(rl.window)
	key := rl.prefix + client + ":" + strconv.FormatInt(bucket, 10)

	pipe := rl.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, rl.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	return incr.Val() <= int64(rl.limit), nil
}

func (rl *RateLimiter) allowLocal(client string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for k, v := range rl.windows {
		if now.Sub(v.start) >= rl.window {
			delete(rl.windows, k)
		}
	}

	v, ok := rl.windows[client]
	if !ok {
		v = &localWindow{start: now}
		rl.windows[client] = v
	}
	v.count++
	return v.count <= rl.limit
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
