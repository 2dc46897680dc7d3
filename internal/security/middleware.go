// Package security holds the HTTP hardening middleware of serve mode.
package security

import (
	"math"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// RateLimitMiddleware rejects requests over the client's budget with 429
func RateLimitMiddleware(rl *RateLimiter) fiber.Handler {
	return func(c *fiber.Ctx) error {
		// Get client identifier (prefer API key, fallback to IP)
		clientID := c.Get("X-API-Key")
		if clientID == "" {
			clientID = c.IP()
		}

		c.Set("X-RateLimit-Limit", strconv.Itoa(rl.Limit()))

		if !rl.Allow(clientID) {
			retry := int64(math.Ceil(rl.RetryAfter(clientID).Seconds()))
			c.Set("X-RateLimit-Remaining", "0")
			c.Set("Retry-After", strconv.FormatInt(retry, 10))

			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"success":     false,
				"error":       "Rate limit exceeded",
				"retry_after": retry,
			})
		}

		c.Set("X-RateLimit-Remaining", strconv.Itoa(rl.Remaining(clientID)))
		return c.Next()
	}
}

// SecurityHeadersMiddleware adds security headers and a request ID
func SecurityHeadersMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")

		requestID := c.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set("X-Request-ID", requestID)
		c.Locals("requestID", requestID)

		return c.Next()
	}
}
