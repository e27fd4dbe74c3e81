package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"natours/internal/cache"
)

const (
	rateLimitPrefix  = "ratelimit:"
	rateLimitTimeout = 250 * time.Millisecond
	rateLimitMessage = "Too many requests from this IP, please try again in an hour!"
)

// RedisRateLimitStore is a fixed-window echo limiter store shared across
// instances. It lets requests through when redis is unavailable.
type RedisRateLimitStore struct {
	cache  *cache.Client
	max    int64
	window time.Duration
	logger *slog.Logger
}

var _ middleware.RateLimiterStore = (*RedisRateLimitStore)(nil)

// NewRedisRateLimitStore allows max requests per identifier per window.
func NewRedisRateLimitStore(c *cache.Client, max int, window time.Duration, logger *slog.Logger) *RedisRateLimitStore {
	return &RedisRateLimitStore{cache: c, max: int64(max), window: window, logger: logger}
}

// Allow implements middleware.RateLimiterStore.
func (s *RedisRateLimitStore) Allow(identifier string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), rateLimitTimeout)
	defer cancel()

	n, err := s.cache.Incr(ctx, rateLimitPrefix+identifier, s.window)
	if err != nil {
		s.logger.Warn("rate limit store unavailable", "error", err)
		return true, nil
	}
	return n <= s.max, nil
}

// NewMemoryRateLimitStore approximates max per window with a token bucket
// local to this process.
func NewMemoryRateLimitStore(max int, window time.Duration) middleware.RateLimiterStore {
	return middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(float64(max) / window.Seconds()),
		Burst:     max,
		ExpiresIn: window,
	})
}

// RateLimit limits requests per client IP using store.
func RateLimit(store middleware.RateLimiterStore) echo.MiddlewareFunc {
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: store,
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			return echo.NewHTTPError(http.StatusTooManyRequests, rateLimitMessage)
		},
	})
}
