// Package api exposes verification runs over HTTP for serve mode.
package api

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ahrdadan/clinicprobe/internal/queue"
)

// Response represents a standard API response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// ErrorHandler is the custom error handler for Fiber
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		code = fe.Code
	case errors.Is(err, queue.ErrNotFound):
		code = fiber.StatusNotFound
	case errors.Is(err, queue.ErrNotCancelable):
		code = fiber.StatusConflict
	case errors.Is(err, queue.ErrQueueFull), errors.Is(err, queue.ErrStopped):
		code = fiber.StatusServiceUnavailable
	}

	return c.Status(code).JSON(Response{
		Success: false,
		Error:   err.Error(),
	})
}

// BrowserStatus is what the status endpoint needs from a launcher.
type BrowserStatus interface {
	IsRunning() bool
	GetEndpoint() string
}

// Handler serves the service endpoints
type Handler struct {
	browser BrowserStatus
	engine  string
}

// NewHandler creates a new handler
func NewHandler(browser BrowserStatus, engine string) *Handler {
	return &Handler{
		browser: browser,
		engine:  engine,
	}
}

// HealthCheck returns health status
func (h *Handler) HealthCheck(c *fiber.Ctx) error {
	return c.JSON(Response{
		Success: true,
		Data: map[string]interface{}{
			"status":    "ok",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		},
	})
}

// BrowserStatus returns browser status. The browser only runs while a
// verification is in progress.
func (h *Handler) BrowserStatus(c *fiber.Ctx) error {
	return c.JSON(Response{
		Success: true,
		Data: map[string]interface{}{
			"engine":   h.engine,
			"running":  h.browser.IsRunning(),
			"endpoint": h.browser.GetEndpoint(),
		},
	})
}
