package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"vouchportal/internal/config"
	"vouchportal/internal/database"
	"vouchportal/internal/services"
	"vouchportal/pkg/rabbitmq"
)

func main() {
	// --- Configuration ---
	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if cfg.BotToken == "" {
		log.Println("Warning: BOT_TOKEN is empty; every handshake will be rejected")
	}

	// --- Initialize Database ---
	db, err := database.Open(cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	// --- Initialize RabbitMQ Client ---
	// The ledger keeps working without a broker; notifications are skipped.
	var publisher services.EventPublisher
	mqClient, err := rabbitmq.NewClient(rabbitmq.Config{URL: cfg.RabbitMQURL, Exchange: services.NotificationExchange})
	if err != nil {
		log.Printf("Warning: RabbitMQ unavailable, notifications disabled: %v", err)
	} else {
		defer mqClient.Close() // Ensure the connection is closed on exit
		publisher = mqClient

		log.Println("Starting RabbitMQ consumer for notifications...")
		if err := mqClient.Consume(services.NotificationExchange, notificationQueue, "vouch.#", logNotification); err != nil {
			log.Printf("Failed to start RabbitMQ consumer: %v", err)
		}
	}

	app, err := NewApp(cfg, db, publisher)
	if err != nil {
		log.Fatalf("Failed to create app: %v", err)
	}

	// --- Start HTTP Server ---
	log.Printf("Starting server on port %s", cfg.AppPort)

	// Graceful shutdown handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := app.Listen(cfg.AppPort); err != nil {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	<-quit
	log.Println("Shutting down server...")

	if err := app.Shutdown(); err != nil {
		log.Printf("Error during Fiber shutdown: %v", err)
	}

	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
	log.Println("Server gracefully stopped")
}
