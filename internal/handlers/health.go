package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"treeline/internal/database"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	mongoDB *database.MongoDB
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(mongoDB *database.MongoDB) *HealthHandler {
	return &HealthHandler{mongoDB: mongoDB}
}

// Handle responds with server health status, including store reachability
func (h *HealthHandler) Handle(c *fiber.Ctx) error {
	store := "ok"
	status := "healthy"
	if err := h.mongoDB.Ping(c.Context()); err != nil {
		store = err.Error()
		status = "degraded"
	}

	code := fiber.StatusOK
	if status != "healthy" {
		code = fiber.StatusServiceUnavailable
	}
	return c.Status(code).JSON(fiber.Map{
		"status":    status,
		"store":     store,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}
