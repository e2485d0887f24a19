package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-realtime-api/internal/dto"
	"github.com/noah-isme/gema-realtime-api/internal/service"
	"github.com/noah-isme/gema-realtime-api/internal/utils"
)

// CallHandler serves the persisted call history.
type CallHandler struct {
	service service.CallLogService
	logger  zerolog.Logger
}

// NewCallHandler constructs a call history handler.
func NewCallHandler(svc service.CallLogService, logger zerolog.Logger) *CallHandler {
	return &CallHandler{
		service: svc,
		logger:  logger.With().Str("component", "call_handler").Logger(),
	}
}

// Register binds call history routes under the provided router group.
func (h *CallHandler) Register(router fiber.Router) {
	router.Post("/calls", h.log)
	router.Get("/calls", h.history)
	router.Delete("/calls/:id", h.delete)
	router.Delete("/calls", h.clear)
}

func (h *CallHandler) log(c *fiber.Ctx) error {
	var req dto.CallLogRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request payload")
	}

	result, err := h.service.Log(requestContext(c), userIDStringFromContext(c), req)
	if err != nil {
		return sendServiceError(c, h.logger, err, "log_call")
	}

	if result.Duplicate {
		return utils.SendSuccess(c, "call already recorded", result)
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "call recorded", result)
}

func (h *CallHandler) history(c *fiber.Ctx) error {
	limit, err := parseQueryInt(c, "limit")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid limit")
	}
	offset, err := parseQueryInt(c, "offset")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid offset")
	}

	records, err := h.service.History(requestContext(c), userIDStringFromContext(c), dto.CallHistoryQuery{Limit: limit, Offset: offset})
	if err != nil {
		return sendServiceError(c, h.logger, err, "call_history")
	}

	return utils.SendSuccess(c, "call history", records)
}

func (h *CallHandler) delete(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	if err := h.service.Delete(requestContext(c), userIDStringFromContext(c), id); err != nil {
		return sendServiceError(c, h.logger, err, "delete_call")
	}

	return utils.SendSuccess(c, "call deleted", fiber.Map{"id": id})
}

func (h *CallHandler) clear(c *fiber.Ctx) error {
	removed, err := h.service.Clear(requestContext(c), userIDStringFromContext(c))
	if err != nil {
		return sendServiceError(c, h.logger, err, "clear_calls")
	}

	return utils.SendSuccess(c, "call history cleared", fiber.Map{"deleted": removed})
}
