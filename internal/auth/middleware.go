package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// MiddlewareConfig controls which routes the token check applies to.
type MiddlewareConfig struct {
	Manager *Manager

	// Exact paths and path prefixes served without a token.
	PublicRoutes   []string
	PublicPrefixes []string

	// Skip disables authentication entirely (development mode).
	Skip bool
}

func (cfg *MiddlewareConfig) isPublic(path string) bool {
	for _, route := range cfg.PublicRoutes {
		if path == route {
			return true
		}
	}
	for _, prefix := range cfg.PublicPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// NewMiddleware returns a Fiber handler enforcing bearer-token authentication.
// Verified token metadata is stored in the request context for handlers and
// permission checks downstream.
func NewMiddleware(cfg MiddlewareConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if cfg.Skip || cfg.Manager == nil || cfg.isPublic(c.Path()) {
			return c.Next()
		}

		token := ExtractTokenFromRequest(c)
		if token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"error":   "Authentication required",
			})
		}

		info := cfg.Manager.VerifyToken(token)
		if info == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"error":   "Invalid or expired token",
			})
		}

		c.Locals("token_info", info)
		return c.Next()
	}
}

// RequirePermission guards a route with a per-token permission. It must run
// after NewMiddleware so the verified token is already in the context.
func RequirePermission(permission string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		info := GetTokenInfo(c)
		if info == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"error":   "Authentication required",
			})
		}
		if !info.Can(permission) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"success": false,
				"error":   "Permission denied: " + permission + " required",
			})
		}
		return c.Next()
	}
}

// GetTokenInfo retrieves the verified token metadata from the Fiber context.
func GetTokenInfo(c *fiber.Ctx) *TokenInfo {
	if info, ok := c.Locals("token_info").(*TokenInfo); ok {
		return info
	}
	return nil
}

// ExtractTokenFromRequest extracts the auth token from request headers.
// Checks in order: Authorization Bearer, Authorization plain, x-api-key.
func ExtractTokenFromRequest(c *fiber.Ctx) string {
	authHeader := c.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	if authHeader != "" {
		return authHeader
	}
	return c.Get("x-api-key")
}
