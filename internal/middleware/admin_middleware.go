package middleware

import (
	"log"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"
)

// AdminKeyHeader carries the operator key.
const AdminKeyHeader = "X-Admin-Key"

// AdminRequired checks the X-Admin-Key header against a bcrypt hash. With an
// empty hash every admin request is refused.
func AdminRequired(keyHash string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if keyHash == "" {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"message": "Admin endpoints are disabled",
			})
		}

		key := c.Get(AdminKeyHeader)
		if key == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"message": AdminKeyHeader + " header is required",
			})
		}

		if err := bcrypt.CompareHashAndPassword([]byte(keyHash), []byte(key)); err != nil {
			log.Printf("Rejected admin request from %s", c.IP())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"message": "Invalid admin key",
			})
		}
		return c.Next()
	}
}
