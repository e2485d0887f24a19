package handler

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-realtime-api/internal/dto"
	"github.com/noah-isme/gema-realtime-api/internal/middleware"
	"github.com/noah-isme/gema-realtime-api/internal/service"
	"github.com/noah-isme/gema-realtime-api/internal/utils"
)

// MessageHandlerOptions tunes the message routes.
type MessageHandlerOptions struct {
	SendsPerMinute int
	PurgeRoles     []string
}

// MessageHandler exposes the delivery pipeline over REST for clients that are not
// holding a socket. Every mutation still fans out to live sessions.
type MessageHandler struct {
	service service.MessageService
	logger  zerolog.Logger
	options MessageHandlerOptions
}

// NewMessageHandler constructs a message handler.
func NewMessageHandler(svc service.MessageService, logger zerolog.Logger, opts MessageHandlerOptions) *MessageHandler {
	if len(opts.PurgeRoles) == 0 {
		opts.PurgeRoles = []string{"admin", "service"}
	}
	return &MessageHandler{
		service: svc,
		logger:  logger.With().Str("component", "message_handler").Logger(),
		options: opts,
	}
}

// Register binds message routes under the provided router group.
func (h *MessageHandler) Register(router fiber.Router) {
	messages := router.Group("/messages")
	if h.options.SendsPerMinute > 0 {
		messages.Post("/", middleware.RateLimit("messages", h.options.SendsPerMinute, time.Minute), h.send)
	} else {
		messages.Post("/", h.send)
	}
	messages.Get("/history", h.history)
	messages.Post("/read", h.markRead)
	messages.Post("/group-read", h.markGroupRead)
	messages.Post("/delivered", h.markDelivered)
	messages.Post("/delete", h.deleteMany)
	messages.Patch("/:id", h.edit)
	messages.Delete("/:id", h.deleteOne)
	messages.Post("/:id/pin", h.togglePin)
	messages.Post("/:id/forward", h.forward)
	messages.Post("/:id/reactions", h.toggleReaction)

	router.Delete("/groups/:groupId/messages", middleware.RequireRole(h.options.PurgeRoles...), h.purgeGroup)
}

func (h *MessageHandler) send(c *fiber.Ctx) error {
	var req dto.SendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request payload")
	}

	message, err := h.service.Send(requestContext(c), userIDStringFromContext(c), req)
	if err != nil {
		return sendServiceError(c, h.logger, err, "send")
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "message sent", message)
}

func (h *MessageHandler) history(c *fiber.Ctx) error {
	query := dto.MessageHistoryQuery{
		PartnerID: strings.TrimSpace(c.Query("partner_id")),
		GroupID:   strings.TrimSpace(c.Query("group_id")),
	}

	if before := strings.TrimSpace(c.Query("before")); before != "" {
		parsed, err := time.Parse(time.RFC3339, before)
		if err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, "invalid before timestamp")
		}
		query.Before = &parsed
	}

	limit, err := parseQueryInt(c, "limit")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid limit")
	}
	query.Limit = limit

	messages, err := h.service.History(requestContext(c), userIDStringFromContext(c), query)
	if err != nil {
		return sendServiceError(c, h.logger, err, "history")
	}

	return utils.SendSuccess(c, "message history", messages)
}

func (h *MessageHandler) markRead(c *fiber.Ctx) error {
	var req dto.MarkReadRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request payload")
	}

	result, err := h.service.MarkRead(requestContext(c), userIDStringFromContext(c), req.PartnerID)
	if err != nil {
		return sendServiceError(c, h.logger, err, "mark_read")
	}

	return utils.SendSuccess(c, "messages marked as read", result)
}

func (h *MessageHandler) markGroupRead(c *fiber.Ctx) error {
	var req dto.GroupReadRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request payload")
	}

	result, err := h.service.MarkGroupRead(requestContext(c), userIDStringFromContext(c), req.GroupID)
	if err != nil {
		return sendServiceError(c, h.logger, err, "mark_group_read")
	}

	return utils.SendSuccess(c, "group messages marked as read", result)
}

func (h *MessageHandler) markDelivered(c *fiber.Ctx) error {
	result, err := h.service.MarkDelivered(requestContext(c), userIDStringFromContext(c))
	if err != nil {
		return sendServiceError(c, h.logger, err, "mark_delivered")
	}

	return utils.SendSuccess(c, "messages marked as delivered", result)
}

func (h *MessageHandler) edit(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var req dto.EditMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request payload")
	}

	message, err := h.service.Edit(requestContext(c), userIDStringFromContext(c), id, req)
	if err != nil {
		return sendServiceError(c, h.logger, err, "edit")
	}

	return utils.SendSuccess(c, "message updated", message)
}

func (h *MessageHandler) deleteOne(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	result, err := h.service.DeleteOne(requestContext(c), userIDStringFromContext(c), id)
	if err != nil {
		return sendServiceError(c, h.logger, err, "delete")
	}

	return utils.SendSuccess(c, "message deleted", result)
}

func (h *MessageHandler) deleteMany(c *fiber.Ctx) error {
	var req dto.DeleteMessagesRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request payload")
	}

	result, err := h.service.DeleteMany(requestContext(c), userIDStringFromContext(c), req)
	if err != nil {
		return sendServiceError(c, h.logger, err, "delete_many")
	}

	return utils.SendSuccess(c, "messages deleted", result)
}

func (h *MessageHandler) togglePin(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	change, err := h.service.TogglePin(requestContext(c), userIDStringFromContext(c), id)
	if err != nil {
		return sendServiceError(c, h.logger, err, "pin")
	}

	message := "message unpinned"
	if change.IsPinned {
		message = "message pinned"
	}
	return utils.SendSuccess(c, message, change)
}

func (h *MessageHandler) forward(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var req dto.ForwardMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request payload")
	}

	message, err := h.service.Forward(requestContext(c), userIDStringFromContext(c), id, req)
	if err != nil {
		return sendServiceError(c, h.logger, err, "forward")
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "message forwarded", message)
}

func (h *MessageHandler) toggleReaction(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var req dto.ReactionRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request payload")
	}

	change, err := h.service.ToggleReaction(requestContext(c), userIDStringFromContext(c), id, req)
	if err != nil {
		return sendServiceError(c, h.logger, err, "reaction")
	}

	return utils.SendSuccess(c, "reaction updated", change)
}

func (h *MessageHandler) purgeGroup(c *fiber.Ctx) error {
	groupID := strings.TrimSpace(c.Params("groupId"))
	result, err := h.service.PurgeGroup(requestContext(c), groupID)
	if err != nil {
		return sendServiceError(c, h.logger, err, "purge_group")
	}

	requestLogger(h.logger, c).Info().
		Str("group_id", groupID).
		Int("deleted", result.Deleted).
		Msg("group history purged")

	return utils.SendSuccess(c, "group history purged", result)
}
