package serverutils

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"
)

// ServiceTokenMiddleware guards service-to-service routes with a shared
// bearer token. An empty token disables the check.
func ServiceTokenMiddleware(token string) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		if token == "" {
			return ctx.Next()
		}
		got := BearerToken(ctx)
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error":     "unauthorized",
				"code":      "UNAUTHORIZED",
				"retriable": false,
			})
		}
		return ctx.Next()
	}
}
