package routes

import (
	"log"
	"os"

	controller "edublast/controllers"
	"edublast/middleware"
	"edublast/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/websocket/v2"
	"gorm.io/gorm"
)

func SetupRoutes(app *fiber.App, db *gorm.DB, engine *utils.Broadcaster) {
	// Health check endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	broadcastLogger := log.New(os.Stdout, "BROADCAST: ", log.Ldate|log.Ltime|log.Lshortfile)
	broadcastController := controller.NewBroadcastController(db, engine, broadcastLogger)

	progressHub := controller.NewProgressHub(log.New(os.Stdout, "PROGRESS: ", log.LstdFlags))
	engine.OnProgress = progressHub.Publish

	// Open-tracking pixel must stay public; mail clients carry no auth.
	app.Get("/track/open/:trackingID", broadcastController.HandleOpenTracking)

	// WebSocket route for dispatch progress. Registered before the API group
	// so the broadcasts/:id route cannot shadow it.
	app.Get("/api/v1/broadcasts/progress", websocket.New(progressHub.HandleProgressWS))

	// API group with versioning and protection
	api := app.Group("/api/v1", middleware.Protected(), logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	broadcastRoles := middleware.RequireRole("admin", "trainer")

	broadcasts := api.Group("/broadcasts", broadcastRoles)
	broadcasts.Post("/", middleware.BroadcastRateLimiter(), broadcastController.SendBroadcast)
	broadcasts.Post("/preview", broadcastController.PreviewBroadcast)
	broadcasts.Get("/", broadcastController.GetBroadcasts)
	broadcasts.Get("/:id", broadcastController.GetBroadcast)
	broadcasts.Get("/:id/records", broadcastController.GetBroadcastRecords)

	// Setup 404 handler
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   "Not Found",
			"message": "The requested resource was not found",
		})
	})

	log.Println("API routes initialized successfully")
}
