package middleware

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RateLimitConfig is a fixed window limit
type RateLimitConfig struct {
	RequestsPerWindow int
	WindowDuration    time.Duration
}

// RateLimitStore counts requests per key. Allow reports whether the request
// fits the current window and, if not, how many seconds until it resets.
type RateLimitStore interface {
	Allow(ctx context.Context, key string, cfg RateLimitConfig) (bool, int)
}

type bucket struct {
	count     int
	windowEnd time.Time
}

// InMemoryRateLimitStore keeps counters in process. Replicas do not share
// them.
type InMemoryRateLimitStore struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

func NewInMemoryRateLimitStore() *InMemoryRateLimitStore {
	return &InMemoryRateLimitStore{
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

func (s *InMemoryRateLimitStore) Allow(_ context.Context, key string, cfg RateLimitConfig) (bool, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	b, ok := s.buckets[key]
	if !ok || !now.Before(b.windowEnd) {
		s.buckets[key] = &bucket{count: 1, windowEnd: now.Add(cfg.WindowDuration)}
		return true, 0
	}
	if b.count < cfg.RequestsPerWindow {
		b.count++
		return true, 0
	}
	return false, retrySeconds(b.windowEnd.Sub(now))
}

// Cleanup drops expired buckets
func (s *InMemoryRateLimitStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for key, b := range s.buckets {
		if !now.Before(b.windowEnd) {
			delete(s.buckets, key)
		}
	}
}

// StartCleanup runs Cleanup every interval until ctx is done
func (s *InMemoryRateLimitStore) StartCleanup(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Cleanup()
		}
	}
}

// RedisRateLimitStore shares counters through Redis. Each window gets its
// own key so INCR and EXPIRE are enough. Redis errors let the request
// through.
type RedisRateLimitStore struct {
	client redis.UniversalClient
	prefix string
	logger zerolog.Logger
	now    func() time.Time
}

func NewRedisRateLimitStore(client redis.UniversalClient, logger zerolog.Logger) *RedisRateLimitStore {
	return &RedisRateLimitStore{
		client: client,
		prefix: "ratelimit:",
		logger: logger.With().Str("component", "ratelimit").Logger(),
		now:    time.Now,
	}
}

func (s *RedisRateLimitStore) Allow(ctx context.Context, key string, cfg RateLimitConfig) (bool, int) {
	window := cfg.WindowDuration.Milliseconds()
	if window <= 0 {
		return true, 0
	}
	now := s.now()
	slot := now.UnixMilli() / window
	windowEnd := time.UnixMilli((slot + 1) * window)
	redisKey := s.prefix + key + ":" + strconv.FormatInt(slot, 10)

	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, cfg.WindowDuration)
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("rate limit store unavailable, allowing request")
		return true, 0
	}

	if incr.Val() <= int64(cfg.RequestsPerWindow) {
		return true, 0
	}
	return false, retrySeconds(windowEnd.Sub(now))
}

func retrySeconds(d time.Duration) int {
	secs := int((d + time.Second - 1) / time.Second)
	if secs <= 0 {
		return 1
	}
	return secs
}

// KeyFunc extracts the rate limit key from a request
type KeyFunc func(r *http.Request) string

// IPKeyFunc keys by client address. chi's RealIP has already applied any
// forwarding headers to RemoteAddr.
func IPKeyFunc() KeyFunc {
	return func(r *http.Request) string {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			return strings.TrimSpace(r.RemoteAddr)
		}
		return host
	}
}

// UserKeyFunc keys by the identity user returns, falling back to the
// client address for anonymous requests
func UserKeyFunc(user func(r *http.Request) string) KeyFunc {
	ip := IPKeyFunc()
	return func(r *http.Request) string {
		if id := user(r); id != "" {
			return "user:" + id
		}
		return "ip:" + ip(r)
	}
}

// RateLimiter rejects requests over the limit with 429 and Retry-After
func RateLimiter(store RateLimitStore, cfg RateLimitConfig, keyFunc KeyFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowed, retryAfter := store.Allow(r.Context(), keyFunc(r), cfg)
			if !allowed {
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "rate limit exceeded"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
