package main

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"vouchportal/internal/config"
	"vouchportal/internal/content"
	"vouchportal/internal/handlers"
	"vouchportal/internal/identity"
	"vouchportal/internal/middleware"
	"vouchportal/internal/repositories"
	"vouchportal/internal/services"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/streadway/amqp"
	"gorm.io/gorm"
)

// notificationQueue receives a copy of every published notification for the
// audit log consumer.
const notificationQueue = "vouch_notifications_log"

// NewApp wires repositories, services and handlers into a Fiber app.
// publisher may be nil; notifications are then skipped.
func NewApp(cfg *config.Config, db *gorm.DB, publisher services.EventPublisher) (*fiber.App, error) {
	if cfg == nil || db == nil {
		return nil, fmt.Errorf("config and database are required")
	}

	// --- Initialize Repositories ---
	store := repositories.NewGORMStore(db, nil)

	// --- Initialize Services ---
	ledger := services.NewLedgerService(store, publisher, services.LedgerOptions{
		Ranks:        cfg.Ranks,
		Filter:       content.NewFilter(cfg.BannedTerms, cfg.MessageMaxLen),
		MutualWindow: cfg.MutualWindow,
	})
	userService := services.NewUserService(store, ledger, nil)
	inviteService := services.NewInviteService(store, cfg.InviteCooldown, nil)
	verifier := identity.NewVerifier(cfg.BotToken, cfg.AuthMaxAge)
	authService := services.NewAuthService(userService, verifier, cfg.JWTSecret, cfg.TokenTTL)

	// --- Initialize Handlers ---
	authHandler := handlers.NewAuthHandler(authService)
	vouchHandler := handlers.NewVouchHandler(ledger, userService)
	userHandler := handlers.NewUserHandler(userService)
	inviteHandler := handlers.NewInviteHandler(inviteService)
	adminHandler := handlers.NewAdminHandler(ledger)

	// --- Initialize Fiber App ---
	app := fiber.New()

	// --- Middleware ---
	app.Use(recover.New())
	app.Use(logger.New()) // Request logger
	app.Use(cors.New())

	// --- API Routes ---
	apiV1 := app.Group("/api/v1")

	// Authentication routes (public)
	authHandler.RegisterRoutes(apiV1)

	// Admin routes (X-Admin-Key)
	adminHandler.RegisterRoutes(apiV1.Group("/admin", middleware.AdminRequired(cfg.AdminKeyHash)))

	// Protected routes (require JWT authentication)
	protectedRoutes := apiV1.Group("", middleware.AuthRequired(authService))
	vouchHandler.RegisterRoutes(protectedRoutes)
	userHandler.RegisterRoutes(protectedRoutes)
	inviteHandler.RegisterRoutes(protectedRoutes)

	// --- Health Check Endpoint ---
	app.Get("/health", func(c *fiber.Ctx) error {
		dbStatus := "connected"
		if sqlDB, err := db.DB(); err != nil || sqlDB.Ping() != nil {
			dbStatus = "unreachable"
		}
		mqStatus := "connected"
		if publisher == nil {
			mqStatus = "disabled"
		}
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status":   "healthy",
			"time":     time.Now().Format(time.RFC3339),
			"database": dbStatus,
			"rabbitMQ": mqStatus,
		})
	})

	return app, nil
}

// logNotification is the consumer side of the notification exchange. It
// records every rank-up and mutual vouch in the service log.
func logNotification(msg amqp.Delivery) error {
	var note services.Notification
	if err := json.Unmarshal(msg.Body, &note); err != nil {
		return fmt.Errorf("failed to decode notification: %w", err)
	}
	switch note.Type {
	case services.NotificationRankUp:
		log.Printf("Notification: user %s ranked up %s -> %s", note.UserID, note.OldRank, note.NewRank)
	case services.NotificationMutualVouch:
		log.Printf("Notification: users %s and %s vouched for each other", note.UserID, note.OtherUserID)
	default:
		return fmt.Errorf("unknown notification type %q (routing key %s)", note.Type, msg.RoutingKey)
	}
	return nil
}
