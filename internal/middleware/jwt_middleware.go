package middleware

import (
	"log"
	"strings"

	"vouchportal/internal/services"

	"github.com/gofiber/fiber/v2"
)

// Fiber locals set by AuthRequired.
const (
	LocalUserID = "user_id"
	LocalHandle = "handle"
)

// AuthRequired is a Fiber middleware that accepts a Bearer session token issued
// by the handshake and exposes the caller through UserID and Handle.
func AuthRequired(authService *services.AuthService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"message": "Authorization header is required",
			})
		}

		// Expected format: "Bearer <token>"
		token, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"message": "Authorization header format must be 'Bearer <token>'",
			})
		}

		claims, err := authService.ValidateToken(strings.TrimSpace(token))
		if err != nil {
			log.Printf("Session token rejected: %v", err)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"message": "Invalid or expired session",
				"error":   err.Error(),
			})
		}

		// ValidateToken guarantees a non-empty user_id; handle may be absent.
		userID, _ := claims["user_id"].(string)
		handle, _ := claims["handle"].(string)
		c.Locals(LocalUserID, userID)
		c.Locals(LocalHandle, handle)

		return c.Next()
	}
}

// UserID returns the authenticated caller's external id, or "" outside
// AuthRequired.
func UserID(c *fiber.Ctx) string {
	id, _ := c.Locals(LocalUserID).(string)
	return id
}

// Handle returns the handle carried in the caller's session token.
func Handle(c *fiber.Ctx) string {
	handle, _ := c.Locals(LocalHandle).(string)
	return handle
}
