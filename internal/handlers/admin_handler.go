package handlers

import (
	"log"

	"vouchportal/internal/services"

	"github.com/gofiber/fiber/v2"
)

// AdminHandler exposes operator endpoints.
type AdminHandler struct {
	ledger *services.LedgerService
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(ledger *services.LedgerService) *AdminHandler {
	return &AdminHandler{ledger: ledger}
}

// RegisterRoutes registers the admin routes. router should already carry the
// admin key middleware.
func (h *AdminHandler) RegisterRoutes(router fiber.Router) {
	router.Post("/reconcile", h.HandleReconcile)
	router.Get("/ranks", h.HandleGetRanks)
}

// HandleReconcile rebuilds cached counters from the vouch rows.
func (h *AdminHandler) HandleReconcile(c *fiber.Ctx) error {
	fixed, err := h.ledger.Reconcile(c.UserContext())
	if err != nil {
		return respondError(c, "Reconciliation failed", err)
	}
	log.Printf("Admin reconcile corrected %d user(s)", fixed)
	return c.JSON(fiber.Map{
		"message": "Reconciliation complete",
		"fixed":   fixed,
	})
}

// HandleGetRanks returns the active rank table.
func (h *AdminHandler) HandleGetRanks(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"ranks": h.ledger.Ranks().Steps(),
	})
}
