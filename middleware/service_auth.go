// middleware/service_auth.go
package middleware

import (
	"crypto/subtle"
	"log"
	"os"

	"github.com/gofiber/fiber/v2"
)

// ServiceAuthMiddleware gates the /s/ surface on the shared secret the game
// server and the admin tool present in X-Service-Token. There is exactly one
// trusted caller class; no per-caller identity is needed.
func ServiceAuthMiddleware() fiber.Handler {
	expectedToken := os.Getenv("SERVICE_API_TOKEN")
	if expectedToken == "" {
		log.Fatal("❌ SERVICE_API_TOKEN is not set — service routes cannot be secured")
	}

	return func(c *fiber.Ctx) error {
		token := c.Get("X-Service-Token")
		if token == "" {
			log.Printf("🚫 [SERVICE_AUTH] missing X-Service-Token for %s", c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "service authentication token missing",
			})
		}

		if subtle.ConstantTimeCompare([]byte(token), []byte(expectedToken)) != 1 {
			log.Printf("❌ [SERVICE_AUTH] invalid token for %s", c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid service authentication token",
			})
		}

		return c.Next()
	}
}
