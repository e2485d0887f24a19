package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-realtime-api/internal/config"
	"github.com/noah-isme/gema-realtime-api/internal/realtime"
	"github.com/noah-isme/gema-realtime-api/internal/utils"
)

// HealthResponse represents the payload returned by the health endpoint.
type HealthResponse struct {
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
	Service     string    `json:"service"`
	Environment string    `json:"environment"`
	Node        string    `json:"node,omitempty"`
	Connections int       `json:"connections"`
}

// HealthCheck reports liveness along with the number of sessions held by this node.
func HealthCheck(cfg config.Config, registry *realtime.Registry, nodeID string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		payload := HealthResponse{
			Status:      "ok",
			Timestamp:   time.Now().UTC(),
			Service:     cfg.AppName,
			Environment: cfg.AppEnv,
			Node:        nodeID,
		}
		if registry != nil {
			payload.Connections = registry.Len()
		}

		return utils.SendSuccess(c, "service healthy", payload)
	}
}
