package middleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"zapgate/internal/pkg/errors"
)

// RateLimiter counts requests per key in one-minute windows. With a Redis
// client the count is shared by every instance; without one (or when Redis
// fails) each process keeps its own token buckets.
type RateLimiter struct {
	redis  *redis.Client
	prefix string
	local  *sync.Map // map[string]*Bucket
	now    func() time.Time
}

type Bucket struct {
	tokens     int
	lastRefill time.Time
	lastAccess time.Time
	mu         sync.Mutex
}

func NewRateLimiter(client *redis.Client) *RateLimiter {
	return &RateLimiter{
		redis:  client,
		prefix: "zapgate:rl:",
		local:  &sync.Map{},
		now:    time.Now,
	}
}

// Cleanup drops idle local buckets until ctx is done.
func (rl *RateLimiter) Cleanup(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		now := rl.now()
		rl.local.Range(func(key, value interface{}) bool {
			bucket := value.(*Bucket)
			bucket.mu.Lock()
			if now.Sub(bucket.lastAccess) > 10*time.Minute {
				rl.local.Delete(key)
			}
			bucket.mu.Unlock()
			return true
		})
	}
}

func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int) bool {
	if limit <= 0 {
		return true
	}
	if rl.redis != nil {
		allowed, err := rl.allowRedis(ctx, key, limit)
		if err == nil {
			return allowed
		}
		log.Warn().Err(err).Msg("redis rate limit failed, using local bucket")
	}
	return rl.allowLocal(key, limit)
}

// allowRedis is a fixed window: one counter per key per minute.
func (rl *RateLimiter) allowRedis(ctx context.Context, key string, limit int) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	window := rl.now().Unix() / 60
	redisKey := rl.prefix + key + ":" + strconv.FormatInt(window, 10)

	pipe := rl.redis.Pipeline()
	cnt := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, 2*time.Minute)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	return cnt.Val() <= int64(limit), nil
}

func (rl *RateLimiter) allowLocal(key string, limit int) bool {
	now := rl.now()

	val, _ := rl.local.LoadOrStore(key, &Bucket{
		tokens:     limit,
		lastRefill: now,
		lastAccess: now,
	})

	bucket := val.(*Bucket)
	bucket.mu.Lock()
	defer bucket.mu.Unlock()

	bucket.lastAccess = now

	// refill at limit tokens per minute
	elapsed := now.Sub(bucket.lastRefill)
	refillTokens := int(elapsed.Seconds() * float64(limit) / 60.0)
	if refillTokens > 0 {
		bucket.tokens += refillTokens
		if bucket.tokens > limit {
			bucket.tokens = limit
		}
		bucket.lastRefill = now
	}

	if bucket.tokens > 0 {
		bucket.tokens--
		return true
	}
	return false
}

// RateLimit limits each client address to limit requests per minute within
// scope.
func RateLimit(rl *RateLimiter, scope string, limit int) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			key := scope + ":" + clientIP(r)
			if t := Tenant(r); t != nil {
				key = scope + ":" + t.GabineteID
			}

			if !rl.Allow(r.Context(), key, limit) {
				w.Header().Set("Retry-After", "60")
				errors.WriteError(w, http.StatusTooManyRequests, errors.ErrCodeRateLimitExceeded, "Rate limit exceeded", nil)
				return
			}

			next(w, r)
		}
	}
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
