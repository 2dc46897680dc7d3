package api

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/websocket/v2"

	"github.com/ahrdadan/clinicprobe/internal/security"
)

// RouteConfig holds configuration for routes
type RouteConfig struct {
	BaseURL      string                    // Base URL for full URLs in responses
	Engine       string                    // reported by /browser/status
	ArtifactsDir func(runID string) string // where a run's screenshots live
	Metrics      http.Handler              // served on /metrics when set
	RateLimiter  *security.RateLimiter     // guards POST /runs when set
}

// SetupRoutes registers every serve mode endpoint on app.
func SetupRoutes(app *fiber.App, runs RunService, browser BrowserStatus, config RouteConfig) {
	handler := NewHandler(browser, config.Engine)
	runHandler := NewRunHandler(runs, config.ArtifactsDir, config.BaseURL)

	app.Use(security.SecurityHeadersMiddleware())

	app.Get("/health", handler.HealthCheck)
	app.Get("/browser/status", handler.BrowserStatus)
	if config.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(config.Metrics))
	}

	runsGroup := app.Group("/runs")
	create := []fiber.Handler{runHandler.CreateRun}
	if config.RateLimiter != nil {
		create = append([]fiber.Handler{security.RateLimitMiddleware(config.RateLimiter)}, create...)
	}
	runsGroup.Post("", create...)
	runsGroup.Get("", runHandler.ListRuns)
	runsGroup.Get("/:id", runHandler.GetRun)
	runsGroup.Post("/:id/cancel", runHandler.CancelRun)
	runsGroup.Get("/:id/events", runHandler.StreamEvents)
	runsGroup.Get("/:id/screenshots/:name", runHandler.Screenshot)

	// WebSocket endpoint for run events
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(runHandler.HandleWebSocket))
}
