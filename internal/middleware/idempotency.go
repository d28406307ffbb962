package middleware

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const idempotencyKeyPrefix = "idempotency:"

// IdempotencyMiddleware shields mutating billing routes from client retries.
// A request carrying an X-Correlation-ID whose response was already cached is
// answered from Redis without reaching the handler, so a retried invoice
// creation never issues a second charge at the gateway.
func IdempotencyMiddleware(redisClient *redis.Client, ttl time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		switch c.Method() {
		case fiber.MethodPost, fiber.MethodPut, fiber.MethodPatch:
		default:
			return c.Next()
		}

		correlationID := c.Get("X-Correlation-ID")
		if correlationID == "" {
			return c.Next()
		}
		key := idempotencyKeyPrefix + correlationID

		if cached, err := redisClient.Get(c.UserContext(), key).Bytes(); err == nil && len(cached) > 0 {
			c.Set("X-Idempotent-Replay", "true")
			c.Set("Content-Type", "application/json")
			return c.Send(cached)
		}

		if err := c.Next(); err != nil {
			return err
		}

		// only successful outcomes are replayable; a failed attempt must be
		// allowed to run again
		status := c.Response().StatusCode()
		body := c.Response().Body()
		if status >= 200 && status < 300 && len(body) > 0 {
			stored := make([]byte, len(body))
			copy(stored, body)
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				redisClient.Set(ctx, key, stored, ttl)
			}()
		}

		return nil
	}
}
