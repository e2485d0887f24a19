package handler

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-realtime-api/internal/service"
	"github.com/noah-isme/gema-realtime-api/internal/utils"
)

// PresenceHandler reports whether a user is connected and when they were last seen.
type PresenceHandler struct {
	service service.PresenceService
	logger  zerolog.Logger
}

// NewPresenceHandler constructs a presence handler.
func NewPresenceHandler(svc service.PresenceService, logger zerolog.Logger) *PresenceHandler {
	return &PresenceHandler{
		service: svc,
		logger:  logger.With().Str("component", "presence_handler").Logger(),
	}
}

// Register binds presence routes under the provided router group.
func (h *PresenceHandler) Register(router fiber.Router) {
	router.Get("/presence/:userId", h.get)
}

func (h *PresenceHandler) get(c *fiber.Ctx) error {
	userID := strings.TrimSpace(c.Params("userId"))
	if userID == "" {
		return utils.SendError(c, fiber.StatusBadRequest, "user id required")
	}

	presence, err := h.service.Get(requestContext(c), userID)
	if err != nil {
		return sendServiceError(c, h.logger, err, "presence")
	}

	return utils.SendSuccess(c, "presence", presence)
}
