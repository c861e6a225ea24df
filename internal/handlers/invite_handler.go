package handlers

import (
	"vouchportal/internal/middleware"
	"vouchportal/internal/services"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

// InviteHandler handles HTTP requests for invitations.
type InviteHandler struct {
	invites  *services.InviteService
	validate *validator.Validate
}

// NewInviteHandler creates a new InviteHandler.
func NewInviteHandler(invites *services.InviteService) *InviteHandler {
	return &InviteHandler{
		invites:  invites,
		validate: validator.New(),
	}
}

// RegisterRoutes registers the invite routes with the Fiber app.
func (h *InviteHandler) RegisterRoutes(router fiber.Router) {
	router.Post("/invites", h.HandleSendInvite)
}

// InviteRequest is the body of POST /invites.
type InviteRequest struct {
	ToHandle string `json:"to_handle" validate:"required,max=64"`
}

// HandleSendInvite records an invitation from the caller.
func (h *InviteHandler) HandleSendInvite(c *fiber.Ctx) error {
	var req InviteRequest
	if ok, err := parseAndValidate(c, h.validate, &req); !ok {
		return err
	}

	invite, err := h.invites.SendInvite(c.UserContext(), middleware.UserID(c), req.ToHandle)
	if err != nil {
		return respondError(c, "Could not send invite", err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Invite logged",
		"invite":  invite,
	})
}
