package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/genresorter/api/internal/client"
)

type HealthHandler struct {
	redis    *redis.Client
	provider client.Provider
}

// NewHealthHandler creates a health handler. redisClient may be nil when the
// server runs without redis.
func NewHealthHandler(redisClient *redis.Client, provider client.Provider) *HealthHandler {
	return &HealthHandler{redis: redisClient, provider: provider}
}

// Check handles GET /health
func (h *HealthHandler) Check(c *fiber.Ctx) error {
	services := fiber.Map{
		"provider": h.providerStatus(),
		"redis":    "disabled",
	}
	status := "ok"

	if h.redis != nil {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		if err := h.redis.Ping(ctx).Err(); err != nil {
			services["redis"] = "unavailable"
			status = "degraded"
		} else {
			services["redis"] = "ok"
		}
	}

	return c.JSON(fiber.Map{
		"status":   status,
		"services": services,
	})
}

func (h *HealthHandler) providerStatus() string {
	if !h.provider.IsConfigured() {
		return h.provider.Name() + ": not configured"
	}
	return h.provider.Name()
}
