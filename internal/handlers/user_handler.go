package handlers

import (
	"vouchportal/internal/middleware"
	"vouchportal/internal/services"

	"github.com/gofiber/fiber/v2"
)

// UserHandler serves user profiles.
type UserHandler struct {
	users *services.UserService
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(users *services.UserService) *UserHandler {
	return &UserHandler{users: users}
}

// RegisterRoutes registers the user routes with the Fiber app.
func (h *UserHandler) RegisterRoutes(router fiber.Router) {
	userRoutes := router.Group("/users")
	userRoutes.Get("/me", h.HandleGetMe)
	userRoutes.Get("/:id", h.HandleGetProfile)
}

// HandleGetMe returns the caller's own profile.
func (h *UserHandler) HandleGetMe(c *fiber.Ctx) error {
	return h.profile(c, middleware.UserID(c))
}

// HandleGetProfile returns another user's profile.
func (h *UserHandler) HandleGetProfile(c *fiber.Ctx) error {
	return h.profile(c, c.Params("id"))
}

func (h *UserHandler) profile(c *fiber.Ctx, userID string) error {
	profile, err := h.users.GetProfile(c.UserContext(), userID)
	if err != nil {
		return respondError(c, "Could not retrieve profile", err)
	}
	return c.JSON(profile)
}
