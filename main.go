package main

import (
	"context"
	"log"
	"os"
	"time"

	"edublast/config"
	"edublast/middleware"
	"edublast/routes"
	"edublast/utils"
	"edublast/worker"

	"github.com/getsentry/sentry-go"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

func main() {
	// Initialize logger
	logger := log.New(os.Stdout, "EDUBLAST: ", log.Ldate|log.Ltime|log.Lshortfile)

	// Load configuration
	if err := config.LoadConfig(); err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize Sentry for error tracking
	if config.AppConfig.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         config.AppConfig.SentryDSN,
			Environment: config.AppConfig.Environment,
		}); err != nil {
			logger.Printf("Sentry init failed: %v", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	// Initialize database connection
	if err := config.ConnectDB(); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	// Structured logger for the broadcast engine
	engineLog := logrus.New()
	engineLog.SetFormatter(&logrus.JSONFormatter{})
	if config.AppConfig.Environment == "development" {
		engineLog.SetLevel(logrus.DebugLevel)
	}

	// Wire the engine: account directory, SMTP boundary, GORM stores
	directory := utils.NewHTTPAccountDirectory(
		config.AppConfig.AccountAPI.BaseURL,
		config.AppConfig.AccountAPI.ServiceKey,
		engineLog,
	)
	mailer := utils.NewSMTPMailer(
		config.AppConfig.SMTP.Host,
		config.AppConfig.SMTP.Port,
		config.AppConfig.SMTP.Username,
		config.AppConfig.SMTP.Password,
		config.AppConfig.SMTP.FromEmail,
		config.AppConfig.SMTP.FromName,
		engineLog,
	)
	engine := utils.NewBroadcaster(config.DB, directory, mailer, engineLog)
	engine.AppURL = config.AppConfig.AppURL
	engine.Provider = config.AppConfig.MailProvider
	engine.ProviderMode = config.AppConfig.MailProviderMode
	engine.Concurrency = config.AppConfig.SendConcurrency
	engine.SendTimeout = time.Duration(config.AppConfig.SendTimeoutSeconds) * time.Second

	// Create Fiber app
	app := fiber.New()

	// Add CORS middleware
	app.Use(middleware.CORS())

	// Initialize and start the broadcast scheduler
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	scheduler := worker.NewSchedulerWorker(config.DB, engine, log.New(os.Stdout, "SCHEDULER: ", log.LstdFlags))
	go scheduler.Start(ctx)

	// Setup routes
	routes.SetupRoutes(app, config.DB, engine)

	// Start server
	logger.Printf("🚀 Server starting on port %s", config.AppConfig.ServerPort)
	if err := app.Listen(":" + config.AppConfig.ServerPort); err != nil {
		logger.Fatalf("Failed to start server: %v", err)
	}
}
