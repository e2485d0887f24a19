package handler

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-realtime-api/internal/middleware"
	"github.com/noah-isme/gema-realtime-api/internal/service"
)

// RealtimeHandler upgrades authenticated requests into gateway sessions.
type RealtimeHandler struct {
	service service.RealtimeService
	logger  zerolog.Logger
}

// NewRealtimeHandler creates a websocket handler instance.
func NewRealtimeHandler(svc service.RealtimeService, logger zerolog.Logger) *RealtimeHandler {
	return &RealtimeHandler{
		service: svc,
		logger:  logger.With().Str("component", "realtime_handler").Logger(),
	}
}

// Register binds the websocket route under the provided router group.
func (h *RealtimeHandler) Register(router fiber.Router) {
	router.Use("/ws", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		// The upgraded handler outlives the fiber request, so keep only its values.
		c.Locals("request_ctx", context.WithoutCancel(requestContext(c)))
		return c.Next()
	})

	router.Get("/ws", websocket.New(h.handleConnection))
}

func (h *RealtimeHandler) handleConnection(conn *websocket.Conn) {
	userID, _ := conn.Locals("user_id").(string)
	if userID == "" {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "user id missing"))
		_ = conn.Close()
		return
	}

	baseCtx, _ := conn.Locals("request_ctx").(context.Context)
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	correlation := middleware.CorrelationIDFromContext(baseCtx)

	h.logger.Info().Str("user_id", userID).Str("correlation_id", correlation).Msg("realtime websocket connected")
	h.service.ServeConnection(conn, service.ConnectionOptions{
		UserID:        userID,
		CorrelationID: correlation,
		Context:       baseCtx,
	})
	h.logger.Info().Str("user_id", userID).Str("correlation_id", correlation).Msg("realtime websocket disconnected")
}
