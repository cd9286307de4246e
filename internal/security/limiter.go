package security

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"qrelay/internal/constants"
)

// Limiter is a fixed-window rate limiter keyed by client.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Close() error
}

// LimiterOptions configures NewLimiter. An empty RedisHost selects the
// in-memory limiter.
type LimiterOptions struct {
	Limit         int
	Window        time.Duration
	RedisHost     string
	RedisPort     string
	RedisUsername string
	RedisPassword string
}

// NewLimiter picks Redis when a host is configured and falls back to memory
// when Redis is unreachable.
func NewLimiter(opts LimiterOptions) Limiter {
	if opts.Window <= 0 {
		opts.Window = constants.RateLimitWindow
	}

	if opts.RedisHost != "" {
		limiter, err := NewRedisLimiter(opts.RedisHost, opts.RedisPort, opts.RedisUsername, opts.RedisPassword, opts.Limit, opts.Window)
		if err != nil {
			log.Warn().Err(err).Msg("⚠️  Redis connection failed")
			log.Info().Msg("💾 Falling back to in-memory rate limiter")
			return NewMemoryLimiter(opts.Limit, opts.Window)
		}
		log.Info().Str("addr", opts.RedisHost+":"+opts.RedisPort).Msg("💾 Using Redis rate limiter")
		return limiter
	}

	log.Info().Msg("💾 Using in-memory rate limiter")
	return NewMemoryLimiter(opts.Limit, opts.Window)
}

type window struct {
	start time.Time
	count int
}

// MemoryLimiter counts requests per key in fixed windows.
type MemoryLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	windows map[string]*window
	now     func() time.Time
}

func NewMemoryLimiter(limit int, win time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		limit:   limit,
		window:  win,
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

func (ml *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	if ml.limit == constants.UnlimitedRateLimit {
		return true, nil
	}

	ml.mu.Lock()
	defer ml.mu.Unlock()

	now := ml.now()
	w, ok := ml.windows[key]
	if !ok || now.Sub(w.start) >= ml.window {
		ml.prune(now)
		ml.windows[key] = &window{start: now, count: 1}
		return true, nil
	}
	if w.count >= ml.limit {
		return false, nil
	}
	w.count++
	return true, nil
}

// prune drops finished windows so idle clients do not accumulate.
func (ml *MemoryLimiter) prune(now time.Time) {
	for key, w := range ml.windows {
		if now.Sub(w.start) >= ml.window {
			delete(ml.windows, key)
		}
	}
}

func (ml *MemoryLimiter) Close() error {
	return nil
}

// RedisLimiter shares counters between server instances.
type RedisLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
}

func NewRedisLimiter(host, port, username, password string, limit int, win time.Duration) (*RedisLimiter, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     host + ":" + port,
		Username: username,
		Password: password,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	return &RedisLimiter{client: client, limit: limit, window: win}, nil
}

func (rl *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if rl.limit == constants.UnlimitedRateLimit {
		return true, nil
	}

	slot := time.Now().UnixNano() / int64(rl.window)
	redisKey := fmt.Sprintf("%s%s:%d", constants.RedisKeyPrefix, key, slot)

	pipe := rl.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, rl.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("rate limit: %w", err)
	}
	return incr.Val() <= int64(rl.limit), nil
}

func (rl *RedisLimiter) Close() error {
	return rl.client.Close()
}
