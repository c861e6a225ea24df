package handlers

import (
	"vouchportal/internal/services"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

// AuthHandler handles HTTP requests for authentication.
type AuthHandler struct {
	authService *services.AuthService
	validate    *validator.Validate
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(authService *services.AuthService) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		validate:    validator.New(),
	}
}

// RegisterRoutes registers the authentication routes with the Fiber app.
func (h *AuthHandler) RegisterRoutes(router fiber.Router) {
	authRoutes := router.Group("/auth")
	authRoutes.Post("/handshake", h.HandleHandshake)
}

// HandshakeRequest carries the raw WebApp initData query string.
type HandshakeRequest struct {
	InitData string `json:"init_data" validate:"required"`
}

// HandleHandshake verifies the client's signed launch data, registers or
// refreshes the user and issues a session token.
func (h *AuthHandler) HandleHandshake(c *fiber.Ctx) error {
	var req HandshakeRequest
	if ok, err := parseAndValidate(c, h.validate, &req); !ok {
		return err
	}

	token, user, err := h.authService.Handshake(c.UserContext(), req.InitData)
	if err != nil {
		return respondError(c, "Authentication failed", err)
	}

	return c.JSON(fiber.Map{
		"message": "Handshake successful",
		"token":   token,
		"user":    user,
	})
}
