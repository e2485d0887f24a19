package middleware

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
)

// OperationDeadline bounds the user context handed to downstream handlers.
// Handlers that detach from the request (the websocket upgrade) are unaffected.
func OperationDeadline(timeout time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if timeout <= 0 {
			return c.Next()
		}
		ctx, cancel := context.WithTimeout(c.UserContext(), timeout)
		defer cancel()
		c.SetUserContext(ctx)
		return c.Next()
	}
}
