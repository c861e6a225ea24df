package handlers

import (
	"log"

	"vouchportal/internal/middleware"
	"vouchportal/internal/services"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

// VouchHandler handles HTTP requests for vouches.
type VouchHandler struct {
	ledger   *services.LedgerService
	users    *services.UserService
	validate *validator.Validate
}

// NewVouchHandler creates a new VouchHandler.
func NewVouchHandler(ledger *services.LedgerService, users *services.UserService) *VouchHandler {
	return &VouchHandler{
		ledger:   ledger,
		users:    users,
		validate: validator.New(),
	}
}

// RegisterRoutes registers the vouch routes with the Fiber app.
func (h *VouchHandler) RegisterRoutes(router fiber.Router) {
	vouchRoutes := router.Group("/vouches")
	vouchRoutes.Post("/", h.HandleCreateVouch)
	vouchRoutes.Patch("/:id", h.HandleEditVouch)
}

// CreateVouchRequest is the body of POST /vouches.
type CreateVouchRequest struct {
	ToHandle string `json:"to_handle" validate:"required,max=64"`
	Message  string `json:"message"`
}

// EditVouchRequest is the body of PATCH /vouches/:id.
type EditVouchRequest struct {
	Message string `json:"message"`
}

// HandleCreateVouch records a vouch from the authenticated user. Confirmed
// vouches answer 201, pending ones 202.
func (h *VouchHandler) HandleCreateVouch(c *fiber.Ctx) error {
	var req CreateVouchRequest
	if ok, err := parseAndValidate(c, h.validate, &req); !ok {
		return err
	}

	userID := middleware.UserID(c)
	result, err := h.ledger.SubmitVouch(c.UserContext(), userID, req.ToHandle, req.Message)
	if err != nil {
		return respondError(c, "Could not record vouch", err)
	}
	h.touch(c, userID)
	log.Printf("Vouch %s from @%s for @%s is %s", result.Vouch.ID, middleware.Handle(c), result.Vouch.RecipientKey, result.Status)

	if result.Status == services.VouchPending {
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
			"message": "Vouch saved; it will count once @" + result.Vouch.RecipientKey + " joins",
			"status":  result.Status,
			"vouch":   result.Vouch,
		})
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":   "Vouch recorded",
		"status":    result.Status,
		"vouch":     result.Vouch,
		"recipient": result.Recipient,
	})
}

// HandleEditVouch replaces the message of a vouch the caller authored.
func (h *VouchHandler) HandleEditVouch(c *fiber.Ctx) error {
	var req EditVouchRequest
	if ok, err := parseAndValidate(c, h.validate, &req); !ok {
		return err
	}

	userID := middleware.UserID(c)
	vouch, err := h.ledger.EditVouch(c.UserContext(), c.Params("id"), userID, req.Message)
	if err != nil {
		return respondError(c, "Could not edit vouch", err)
	}
	h.touch(c, userID)

	return c.JSON(fiber.Map{
		"message": "Vouch updated",
		"vouch":   vouch,
	})
}

// touch counts the action toward the caller's streak. Failures only log.
func (h *VouchHandler) touch(c *fiber.Ctx, userID string) {
	if _, err := h.users.Touch(c.UserContext(), userID); err != nil {
		log.Printf("Failed to update streak for user %s: %v", userID, err)
	}
}
