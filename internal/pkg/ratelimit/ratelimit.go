package ratelimit

import (
	"net"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/storage/redis"

	"github.com/ManuelReschke/CreditGate/internal/pkg/cache"
	"github.com/ManuelReschke/CreditGate/internal/pkg/env"
)

// NewRedisStorage creates limiter storage on the cache server using database 1 (cache uses DB 0)
func NewRedisStorage() fiber.Storage {
	cacheClient := cache.GetClient()
	host := "localhost"
	port := 6379
	password := env.GetEnv("CACHE_PASSWORD", "")
	if cacheClient != nil {
		addr := cacheClient.Options().Addr
		if h, p, err := net.SplitHostPort(addr); err == nil {
			host = h
			if v, err := strconv.Atoi(p); err == nil {
				port = v
			}
		}
		if p := cacheClient.Options().Password; p != "" {
			password = p
		}
	}

	return redis.New(redis.Config{
		Host:     host,
		Port:     port,
		Password: password,
		Database: env.GetEnvInt("RATE_LIMIT_REDIS_DB", 1),
		Reset:    false,
	})
}

// Config controls the per-IP limiter on webhook intake.
type Config struct {
	Max     int
	Window  time.Duration
	Storage fiber.Storage // nil keeps counters in process memory
}

// LoadConfig reads HOOKS_RATE_LIMIT_MAX and HOOKS_RATE_LIMIT_WINDOW
func LoadConfig(storage fiber.Storage) Config {
	return Config{
		Max:     env.GetEnvInt("HOOKS_RATE_LIMIT_MAX", 120),
		Window:  env.GetEnvDuration("HOOKS_RATE_LIMIT_WINDOW", time.Minute),
		Storage: storage,
	}
}

// New returns a fiber limiter keyed on client IP with a JSON 429 body.
func New(cfg Config) fiber.Handler {
	if cfg.Max <= 0 {
		cfg.Max = 120
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	return limiter.New(limiter.Config{
		Max:        cfg.Max,
		Expiration: cfg.Window,
		Storage:    cfg.Storage,
		KeyGenerator: func(c *fiber.Ctx) string {
			return "hooks:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":   "rate_limited",
				"message": "Too many requests",
			})
		},
	})
}
