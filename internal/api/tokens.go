package api

import (
	"strconv"
	"strings"
	"time"

	"github.com/facet-labs/facet/internal/auth"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
)

// TokenHandler handles API token management endpoints.
type TokenHandler struct {
	manager *auth.Manager
	logger  zerolog.Logger
}

// NewTokenHandler creates a new token handler
func NewTokenHandler(manager *auth.Manager, logger zerolog.Logger) *TokenHandler {
	return &TokenHandler{
		manager: manager,
		logger:  logger.With().Str("component", "token-handler").Logger(),
	}
}

// RegisterRoutes registers token management endpoints
func (h *TokenHandler) RegisterRoutes(app *fiber.App) {
	authGroup := app.Group("/api/v1/auth")

	// Public endpoint - verify token
	authGroup.Get("/verify", h.verifyToken)

	authGroup.Get("/tokens", h.listTokens)

	// Minting and revoking tokens needs the admin permission.
	admin := auth.RequirePermission("admin")
	authGroup.Post("/tokens", admin, h.createToken)
	authGroup.Delete("/tokens/:id", admin, h.deleteToken)
	authGroup.Post("/tokens/:id/revoke", admin, h.revokeToken)
}

// verifyToken handles GET /api/v1/auth/verify
func (h *TokenHandler) verifyToken(c *fiber.Ctx) error {
	token := auth.ExtractTokenFromRequest(c)

	if token == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"valid": false,
			"error": "No token provided",
		})
	}

	tokenInfo := h.manager.VerifyToken(token)
	if tokenInfo == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"valid": false,
			"error": "Invalid or expired token",
		})
	}

	return c.JSON(fiber.Map{
		"valid":      true,
		"token_info": tokenInfo,
	})
}

// CreateTokenRequest represents a token creation request
type CreateTokenRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Permissions []string `json:"permissions,omitempty"` // empty = default (read,write)
	ExpiresIn   string   `json:"expires_in,omitempty"`  // e.g., "24h", "7d", "30d"
}

// createToken handles POST /api/v1/auth/tokens
func (h *TokenHandler) createToken(c *fiber.Ctx) error {
	var req CreateTokenRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Invalid request body: " + err.Error(),
		})
	}

	if req.Name == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Token name is required",
		})
	}

	permissions := strings.Join(req.Permissions, ",")

	var expiresAt *time.Time
	if req.ExpiresIn != "" {
		duration, err := parseExpiry(req.ExpiresIn)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"error":   "Invalid expires_in format. Use duration like '24h' or '7d'",
			})
		}
		t := time.Now().Add(duration)
		expiresAt = &t
	}

	token, err := h.manager.CreateToken(req.Name, req.Description, permissions, expiresAt)
	if err != nil {
		h.logger.Error().Err(err).Str("name", req.Name).Msg("Failed to create token")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   err.Error(),
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"token":   token,
		"message": "Token created successfully. Store this token securely - it cannot be retrieved again.",
	})
}

// parseExpiry supports Go durations plus a day suffix ("7d").
func parseExpiry(s string) (time.Duration, error) {
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	if len(s) > 1 && s[len(s)-1] == 'd' {
		days, err := strconv.Atoi(s[:len(s)-1])
		if err == nil {
			return time.Duration(days) * 24 * time.Hour, nil
		}
	}
	return 0, strconv.ErrSyntax
}

// listTokens handles GET /api/v1/auth/tokens
func (h *TokenHandler) listTokens(c *fiber.Ctx) error {
	tokens, err := h.manager.ListTokens()
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list tokens")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "Failed to list tokens: " + err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"tokens":  tokens,
		"count":   len(tokens),
	})
}

// deleteToken handles DELETE /api/v1/auth/tokens/:id
func (h *TokenHandler) deleteToken(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Invalid token ID",
		})
	}

	if err := h.manager.DeleteToken(id); err != nil {
		status := fiber.StatusInternalServerError
		if err.Error() == "token not found" {
			status = fiber.StatusNotFound
		}
		return c.Status(status).JSON(fiber.Map{
			"success": false,
			"error":   err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Token deleted",
	})
}

// revokeToken handles POST /api/v1/auth/tokens/:id/revoke
func (h *TokenHandler) revokeToken(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Invalid token ID",
		})
	}

	if err := h.manager.RevokeToken(id); err != nil {
		status := fiber.StatusInternalServerError
		if err.Error() == "token not found" {
			status = fiber.StatusNotFound
		}
		return c.Status(status).JSON(fiber.Map{
			"success": false,
			"error":   err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Token revoked",
	})
}
