// middleware/twitch_auth.go
package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"slipstream-companion/services"
	"slipstream-companion/utils"
)

const (
	ViewerIDLocal    = "viewer_id"
	ViewerLoginLocal = "viewer_login"

	// validated tokens are cached at most this long regardless of what
	// Twitch reports as the remaining token lifetime
	maxTokenCacheTTL = 5 * time.Minute
)

// tokenCacheKey hashes the access token so raw tokens never land in Redis.
func tokenCacheKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return "twitchtok:" + hex.EncodeToString(sum[:])
}

// TwitchAuthMiddleware gates viewer routes on a Twitch OAuth token in the
// Authorization header. Validation results are cached in Redis keyed by the
// token hash, so a chatty client doesn't hammer id.twitch.tv on every call.
// Sets viewer_id and viewer_login locals for handlers.
func TwitchAuthMiddleware(twitch *services.TwitchClient) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing Authorization header",
			})
		}
		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == authHeader || token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "expected Bearer token",
			})
		}

		viewerID, login, err := resolveViewer(c.Context(), twitch, token)
		if err != nil {
			log.Printf("🚫 [TWITCH_AUTH] rejected token for %s: %v", c.Path(), err)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid or expired Twitch token",
			})
		}

		c.Locals(ViewerIDLocal, viewerID)
		c.Locals(ViewerLoginLocal, login)
		return c.Next()
	}
}

// SSEAuthMiddleware is the EventSource variant: the browser EventSource API
// cannot set headers, so the token rides in the ?token= query param instead.
func SSEAuthMiddleware(twitch *services.TwitchClient) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := strings.TrimSpace(c.Query("token"))
		if token == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "missing token query param",
			})
		}

		viewerID, login, err := resolveViewer(c.Context(), twitch, token)
		if err != nil {
			log.Printf("🚫 [SSE_AUTH] rejected token for %s: %v", c.Path(), err)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid or expired Twitch token",
			})
		}

		c.Locals(ViewerIDLocal, viewerID)
		c.Locals(ViewerLoginLocal, login)
		return c.Next()
	}
}

// resolveViewer answers "whose token is this" from the Redis cache when
// possible, falling back to a live validate call. Cache values are
// "viewerID|login"; TTL is the shorter of the token's remaining lifetime
// and maxTokenCacheTTL, so a revoked token stops working within minutes.
func resolveViewer(ctx context.Context, twitch *services.TwitchClient, token string) (string, string, error) {
	key := tokenCacheKey(token)

	if cached, err := utils.KV().Get(ctx, key).Result(); err == nil {
		if id, login, ok := strings.Cut(cached, "|"); ok {
			return id, login, nil
		}
	}

	validated, err := twitch.ValidateToken(token)
	if err != nil {
		return "", "", err
	}

	ttl := maxTokenCacheTTL
	if remaining := time.Duration(validated.ExpiresIn) * time.Second; remaining > 0 && remaining < ttl {
		ttl = remaining
	}
	cacheVal := fmt.Sprintf("%s|%s", validated.UserID, validated.Login)
	if err := utils.KV().Set(ctx, key, cacheVal, ttl).Err(); err != nil {
		log.Printf("⚠️ [TWITCH_AUTH] failed to cache token validation: %v", err)
	}

	return validated.UserID, validated.Login, nil
}
