package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-realtime-api/internal/config"
	"github.com/noah-isme/gema-realtime-api/internal/handler"
	"github.com/noah-isme/gema-realtime-api/internal/middleware"
	"github.com/noah-isme/gema-realtime-api/internal/observability"
	"github.com/noah-isme/gema-realtime-api/internal/realtime"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	RealtimeHandler *handler.RealtimeHandler
	MessageHandler  *handler.MessageHandler
	CallHandler     *handler.CallHandler
	PresenceHandler *handler.PresenceHandler
	JWTMiddleware   fiber.Handler
	Registry        *realtime.Registry
	NodeID          string
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())

	// Common v1 group for health & headers
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.Registry, deps.NodeID))

	// Use provided JWT middleware, or a no-op if nil
	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	v2 := app.Group("/api/v2", jwtMiddleware, middleware.OperationDeadline(cfg.OperationTimeout))

	if deps.RealtimeHandler != nil {
		deps.RealtimeHandler.Register(v2.Group("/realtime"))
	}
	if deps.MessageHandler != nil {
		deps.MessageHandler.Register(v2)
	}
	if deps.CallHandler != nil {
		deps.CallHandler.Register(v2)
	}
	if deps.PresenceHandler != nil {
		deps.PresenceHandler.Register(v2)
	}
}
