package service

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/gema-realtime-api/internal/dto"
	"github.com/noah-isme/gema-realtime-api/internal/models"
	"github.com/noah-isme/gema-realtime-api/internal/observability"
	"github.com/noah-isme/gema-realtime-api/internal/realtime"
	"github.com/noah-isme/gema-realtime-api/internal/repository"
)

const defaultMaxMessageLength = 4000

// MessageService is the message delivery pipeline. Every mutation is authorised and
// persisted first; the resulting notifications are dispatched afterwards.
type MessageService interface {
	Send(ctx context.Context, senderID string, req dto.SendMessageRequest) (dto.MessageResponse, error)
	MarkDelivered(ctx context.Context, userID string) (dto.MarkResult, error)
	MarkRead(ctx context.Context, readerID, partnerID string) (dto.MarkResult, error)
	MarkGroupRead(ctx context.Context, readerID, groupID string) (dto.MarkResult, error)
	Edit(ctx context.Context, actorID string, messageID uint, req dto.EditMessageRequest) (dto.MessageResponse, error)
	DeleteOne(ctx context.Context, actorID string, messageID uint) (dto.DeleteResult, error)
	DeleteMany(ctx context.Context, actorID string, req dto.DeleteMessagesRequest) (dto.DeleteResult, error)
	TogglePin(ctx context.Context, actorID string, messageID uint) (dto.PinChange, error)
	Forward(ctx context.Context, actorID string, messageID uint, req dto.ForwardMessageRequest) (dto.MessageResponse, error)
	ToggleReaction(ctx context.Context, actorID string, messageID uint, req dto.ReactionRequest) (dto.ReactionChange, error)
	History(ctx context.Context, actorID string, query dto.MessageHistoryQuery) ([]dto.MessageResponse, error)
	PurgeGroup(ctx context.Context, groupID string) (dto.DeleteResult, error)
}

// MessageOptions tunes the delivery pipeline.
type MessageOptions struct {
	MaxContentLength int
}

type messageService struct {
	repo          repository.MessageRepository
	users         repository.UserRepository
	relationships repository.RelationshipRepository
	groups        repository.GroupRepository
	dispatcher    *Dispatcher
	validator     *validator.Validate
	logger        zerolog.Logger
	tracer        trace.Tracer
	sanitizer     *bluemonday.Policy
	pins          *keyedLock
	maxLength     int
	now           func() time.Time
}

// NewMessageService constructs the delivery pipeline.
func NewMessageService(
	repo repository.MessageRepository,
	users repository.UserRepository,
	relationships repository.RelationshipRepository,
	groups repository.GroupRepository,
	dispatcher *Dispatcher,
	validate *validator.Validate,
	logger zerolog.Logger,
	opts MessageOptions,
) MessageService {
	sanitizer := bluemonday.UGCPolicy()
	sanitizer.AllowElements("br")

	maxLength := opts.MaxContentLength
	if maxLength <= 0 {
		maxLength = defaultMaxMessageLength
	}

	return &messageService{
		repo:          repo,
		users:         users,
		relationships: relationships,
		groups:        groups,
		dispatcher:    dispatcher,
		validator:     validate,
		logger:        logger.With().Str("component", "message_service").Logger(),
		tracer:        otel.Tracer("github.com/noah-isme/gema-realtime-api/internal/service/message"),
		sanitizer:     sanitizer,
		pins:          newKeyedLock(),
		maxLength:     maxLength,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func (s *messageService) Send(ctx context.Context, senderID string, req dto.SendMessageRequest) (dto.MessageResponse, error) {
	return s.send(ctx, senderID, req, nil)
}

func (s *messageService) send(ctx context.Context, senderID string, req dto.SendMessageRequest, forwardedFrom *uint) (dto.MessageResponse, error) {
	req.ReceiverID = strings.TrimSpace(req.ReceiverID)
	req.GroupID = strings.TrimSpace(req.GroupID)
	if err := s.validator.Struct(req); err != nil {
		return dto.MessageResponse{}, wrapValidation(err)
	}
	if err := exactlyOneDestination(req.ReceiverID, req.GroupID); err != nil {
		return dto.MessageResponse{}, err
	}

	messageType := models.MessageType(req.Type)
	if messageType == "" {
		messageType = models.MessageText
	}
	content, err := s.cleanContent(messageType, req.Content)
	if err != nil {
		return dto.MessageResponse{}, err
	}

	attrs := []attribute.KeyValue{
		attribute.String("message.sender_id", senderID),
		attribute.String("message.type", string(messageType)),
	}
	if req.ClientRef != "" {
		attrs = append(attrs, attribute.String("message.client_ref", req.ClientRef))
	}
	spanCtx, span := s.tracer.Start(ctx, "message.send", trace.WithAttributes(attrs...))
	defer span.End()

	if err := s.authoriseDestination(spanCtx, senderID, req.ReceiverID, req.GroupID); err != nil {
		span.RecordError(err)
		return dto.MessageResponse{}, err
	}

	room := realtime.ConversationRoom(senderID, req.ReceiverID, req.GroupID)
	if req.ReplyTo != nil {
		parent, err := s.repo.FindByID(spanCtx, *req.ReplyTo)
		if err != nil {
			return dto.MessageResponse{}, notFoundOr(err, "reply target")
		}
		if parent.RoomID != room {
			return dto.MessageResponse{}, fmt.Errorf("reply target: %w", ErrNotFound)
		}
	}

	model := models.Message{
		SenderID:      senderID,
		ReceiverID:    req.ReceiverID,
		GroupID:       req.GroupID,
		RoomID:        room,
		Content:       content,
		Type:          messageType,
		Status:        models.StatusSent,
		ReplyTo:       req.ReplyTo,
		ForwardedFrom: forwardedFrom,
	}
	if len(req.Metadata) > 0 {
		model.Metadata = req.Metadata
	}

	if err := s.repo.Create(spanCtx, &model); err != nil {
		span.RecordError(err)
		return dto.MessageResponse{}, err
	}

	response := dto.NewMessageResponse(model)
	response.ClientRef = req.ClientRef
	response.Sender = s.senderSummary(spanCtx, senderID)

	outbound := response
	outbound.ClientRef = ""
	event := realtime.NewEvent(realtime.KindMessageNew, outbound)

	scope := "direct"
	var report DispatchReport
	if model.IsGroup() {
		scope = "group"
		report = s.dispatcher.Apply(ToRoom(room, event, senderID))
	} else {
		report = s.dispatcher.Apply(ToUser(model.ReceiverID, event))
	}

	s.logger.Debug().
		Uint("message_id", model.ID).
		Str("room_id", room).
		Int("pushed", report.Pushed+report.Broadcast).
		Int("failed", report.Failed).
		Msg("message persisted")
	observability.MessagesSent().WithLabelValues(string(messageType), scope).Inc()

	return response, nil
}

func (s *messageService) MarkDelivered(ctx context.Context, userID string) (dto.MarkResult, error) {
	spanCtx, span := s.tracer.Start(ctx, "message.mark_delivered", trace.WithAttributes(attribute.String("message.receiver_id", userID)))
	defer span.End()

	at := s.now()
	messages, err := s.repo.MarkDelivered(spanCtx, userID, at)
	if err != nil {
		span.RecordError(err)
		return dto.MarkResult{}, err
	}

	result := dto.MarkResult{Updated: len(messages), MessageIDs: make([]uint, 0, len(messages))}
	bySender := make(map[string][]uint)
	senders := make([]string, 0)
	for _, message := range messages {
		result.MessageIDs = append(result.MessageIDs, message.ID)
		if _, seen := bySender[message.SenderID]; !seen {
			senders = append(senders, message.SenderID)
		}
		bySender[message.SenderID] = append(bySender[message.SenderID], message.ID)
	}

	notes := make([]Notification, 0, len(senders))
	for _, senderID := range senders {
		notes = append(notes, ToUser(senderID, realtime.NewEvent(realtime.KindMessageDelivered, dto.StatusReceipt{
			PeerID:     userID,
			MessageIDs: bySender[senderID],
			Status:     string(models.StatusDelivered),
			At:         at,
		})))
	}
	s.dispatcher.Apply(notes...)

	if result.Updated > 0 {
		observability.StatusTransitions().WithLabelValues(string(models.StatusDelivered)).Add(float64(result.Updated))
	}
	return result, nil
}

func (s *messageService) MarkRead(ctx context.Context, readerID, partnerID string) (dto.MarkResult, error) {
	partnerID = strings.TrimSpace(partnerID)
	if partnerID == "" {
		return dto.MarkResult{}, invalid("partner id is required")
	}

	spanCtx, span := s.tracer.Start(ctx, "message.mark_read", trace.WithAttributes(
		attribute.String("message.reader_id", readerID),
		attribute.String("message.partner_id", partnerID),
	))
	defer span.End()

	at := s.now()
	ids, err := s.repo.MarkRead(spanCtx, readerID, partnerID, at)
	if err != nil {
		span.RecordError(err)
		return dto.MarkResult{}, err
	}

	result := dto.MarkResult{Updated: len(ids), MessageIDs: ids}
	if result.MessageIDs == nil {
		result.MessageIDs = []uint{}
	}
	if len(ids) == 0 {
		return result, nil
	}

	s.dispatcher.Apply(ToUser(partnerID, realtime.NewEvent(realtime.KindMessageRead, dto.StatusReceipt{
		PeerID:     readerID,
		MessageIDs: ids,
		Status:     string(models.StatusRead),
		At:         at,
	})))
	observability.StatusTransitions().WithLabelValues(string(models.StatusRead)).Add(float64(len(ids)))

	return result, nil
}

func (s *messageService) MarkGroupRead(ctx context.Context, readerID, groupID string) (dto.MarkResult, error) {
	groupID = strings.TrimSpace(groupID)
	if groupID == "" {
		return dto.MarkResult{}, invalid("group id is required")
	}
	if err := s.requireMember(ctx, groupID, readerID); err != nil {
		return dto.MarkResult{}, err
	}

	at := s.now()
	ids, err := s.repo.MarkGroupRead(ctx, groupID, readerID, at)
	if err != nil {
		return dto.MarkResult{}, err
	}

	result := dto.MarkResult{Updated: len(ids), MessageIDs: ids}
	if result.MessageIDs == nil {
		result.MessageIDs = []uint{}
	}
	if len(ids) == 0 {
		return result, nil
	}

	s.dispatcher.Apply(ToRoom(realtime.GroupRoom(groupID), realtime.NewEvent(realtime.KindMessageGroupRead, dto.GroupReadReceipt{
		GroupID:    groupID,
		ReaderID:   readerID,
		MessageIDs: ids,
		At:         at,
	}), readerID))

	return result, nil
}

func (s *messageService) Edit(ctx context.Context, actorID string, messageID uint, req dto.EditMessageRequest) (dto.MessageResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.MessageResponse{}, wrapValidation(err)
	}

	message, err := s.repo.FindByID(ctx, messageID)
	if err != nil {
		return dto.MessageResponse{}, notFoundOr(err, "message")
	}
	if message.SenderID != actorID {
		return dto.MessageResponse{}, ErrForbidden
	}

	content, err := s.cleanContent(message.Type, req.Content)
	if err != nil {
		return dto.MessageResponse{}, err
	}

	updated, err := s.repo.UpdateContent(ctx, messageID, content)
	if err != nil {
		return dto.MessageResponse{}, notFoundOr(err, "message")
	}

	response := dto.NewMessageResponse(updated)
	s.dispatcher.Apply(s.audience(updated, actorID, realtime.NewEvent(realtime.KindMessageUpdated, response)))
	return response, nil
}

func (s *messageService) DeleteOne(ctx context.Context, actorID string, messageID uint) (dto.DeleteResult, error) {
	return s.DeleteMany(ctx, actorID, dto.DeleteMessagesRequest{IDs: []uint{messageID}})
}

func (s *messageService) DeleteMany(ctx context.Context, actorID string, req dto.DeleteMessagesRequest) (dto.DeleteResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.DeleteResult{}, wrapValidation(err)
	}

	ids := uniqueIDs(req.IDs)
	messages, err := s.repo.FindByIDs(ctx, ids)
	if err != nil {
		return dto.DeleteResult{}, err
	}
	if len(messages) != len(ids) {
		return dto.DeleteResult{}, fmt.Errorf("message: %w", ErrNotFound)
	}
	for _, message := range messages {
		if message.SenderID != actorID {
			return dto.DeleteResult{}, ErrForbidden
		}
	}

	deleted, err := s.repo.DeleteByIDs(ctx, ids)
	if err != nil {
		return dto.DeleteResult{}, err
	}

	rooms := make([]string, 0)
	byRoom := make(map[string][]uint)
	sample := make(map[string]models.Message)
	for _, message := range messages {
		if _, ok := byRoom[message.RoomID]; !ok {
			rooms = append(rooms, message.RoomID)
			sample[message.RoomID] = message
		}
		byRoom[message.RoomID] = append(byRoom[message.RoomID], message.ID)
	}

	notes := make([]Notification, 0, len(rooms))
	for _, room := range rooms {
		notes = append(notes, s.audience(sample[room], actorID, realtime.NewEvent(realtime.KindMessageDeleted, dto.MessagesDeleted{
			RoomID:     room,
			MessageIDs: byRoom[room],
		})))
	}
	s.dispatcher.Apply(notes...)

	return dto.DeleteResult{Deleted: int(deleted), MessageIDs: ids}, nil
}

func (s *messageService) TogglePin(ctx context.Context, actorID string, messageID uint) (dto.PinChange, error) {
	message, err := s.repo.FindByID(ctx, messageID)
	if err != nil {
		return dto.PinChange{}, notFoundOr(err, "message")
	}
	if err := s.requireParticipant(ctx, message, actorID); err != nil {
		return dto.PinChange{}, err
	}

	unlock := s.pins.Lock(message.RoomID)
	defer unlock()

	// Re-read under the room lock so the toggle sees the latest pin state.
	message, err = s.repo.FindByID(ctx, messageID)
	if err != nil {
		return dto.PinChange{}, notFoundOr(err, "message")
	}

	pinned := !message.IsPinned
	unpinned, err := s.repo.SetPinned(ctx, message, pinned)
	if err != nil {
		return dto.PinChange{}, err
	}

	change := dto.PinChange{RoomID: message.RoomID, MessageID: message.ID, IsPinned: pinned, Unpinned: unpinned}
	s.dispatcher.Apply(s.audience(message, actorID, realtime.NewEvent(realtime.KindMessagePinned, change)))
	return change, nil
}

func (s *messageService) Forward(ctx context.Context, actorID string, messageID uint, req dto.ForwardMessageRequest) (dto.MessageResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.MessageResponse{}, wrapValidation(err)
	}

	original, err := s.repo.FindByID(ctx, messageID)
	if err != nil {
		return dto.MessageResponse{}, notFoundOr(err, "message")
	}
	if err := s.requireParticipant(ctx, original, actorID); err != nil {
		// Messages the actor cannot see are reported as missing.
		return dto.MessageResponse{}, fmt.Errorf("message: %w", ErrNotFound)
	}

	send := dto.SendMessageRequest{
		ReceiverID: req.ReceiverID,
		GroupID:    req.GroupID,
		Content:    original.Content,
		Type:       string(original.Type),
	}
	if len(original.Metadata) > 0 {
		send.Metadata = map[string]any(original.Metadata)
	}
	return s.send(ctx, actorID, send, &original.ID)
}

func (s *messageService) ToggleReaction(ctx context.Context, actorID string, messageID uint, req dto.ReactionRequest) (dto.ReactionChange, error) {
	req.Emoji = strings.TrimSpace(req.Emoji)
	if err := s.validator.Struct(req); err != nil {
		return dto.ReactionChange{}, wrapValidation(err)
	}

	message, err := s.repo.FindByID(ctx, messageID)
	if err != nil {
		return dto.ReactionChange{}, notFoundOr(err, "message")
	}
	if err := s.requireParticipant(ctx, message, actorID); err != nil {
		return dto.ReactionChange{}, err
	}

	removed, err := s.repo.ToggleReaction(ctx, messageID, actorID, req.Emoji)
	if err != nil {
		return dto.ReactionChange{}, err
	}

	change := dto.ReactionChange{RoomID: message.RoomID, MessageID: messageID, UserID: actorID, Emoji: req.Emoji, Removed: removed}
	s.dispatcher.Apply(s.audience(message, actorID, realtime.NewEvent(realtime.KindMessageReaction, change)))
	return change, nil
}

func (s *messageService) History(ctx context.Context, actorID string, query dto.MessageHistoryQuery) ([]dto.MessageResponse, error) {
	query.PartnerID = strings.TrimSpace(query.PartnerID)
	query.GroupID = strings.TrimSpace(query.GroupID)
	if err := s.validator.Struct(query); err != nil {
		return nil, wrapValidation(err)
	}
	if err := exactlyOneDestination(query.PartnerID, query.GroupID); err != nil {
		return nil, err
	}
	if query.GroupID != "" {
		if err := s.requireMember(ctx, query.GroupID, actorID); err != nil {
			return nil, err
		}
	}

	before := time.Time{}
	if query.Before != nil {
		before = *query.Before
	}

	messages, err := s.repo.ListByRoom(ctx, realtime.ConversationRoom(actorID, query.PartnerID, query.GroupID), before, query.Limit)
	if err != nil {
		return nil, err
	}
	return dto.NewMessageResponseSlice(messages), nil
}

func (s *messageService) PurgeGroup(ctx context.Context, groupID string) (dto.DeleteResult, error) {
	groupID = strings.TrimSpace(groupID)
	if groupID == "" {
		return dto.DeleteResult{}, invalid("group id is required")
	}

	ids, err := s.repo.DeleteByGroup(ctx, groupID)
	if err != nil {
		return dto.DeleteResult{}, err
	}
	if ids == nil {
		ids = []uint{}
	}
	if len(ids) > 0 {
		room := realtime.GroupRoom(groupID)
		s.dispatcher.Apply(ToRoom(room, realtime.NewEvent(realtime.KindMessageDeleted, dto.MessagesDeleted{RoomID: room, MessageIDs: ids})))
	}
	return dto.DeleteResult{Deleted: len(ids), MessageIDs: ids}, nil
}

func (s *messageService) cleanContent(messageType models.MessageType, raw string) (string, error) {
	if utf8.RuneCountInString(raw) > s.maxLength {
		return "", invalid("content exceeds %d characters", s.maxLength)
	}

	content := strings.TrimSpace(raw)
	if messageType == models.MessageText {
		content = strings.TrimSpace(s.sanitizer.Sanitize(content))
	}
	if content == "" {
		return "", invalid("message content empty after sanitization")
	}
	return content, nil
}

func (s *messageService) authoriseDestination(ctx context.Context, senderID, receiverID, groupID string) error {
	if groupID != "" {
		return s.requireMember(ctx, groupID, senderID)
	}
	if receiverID == senderID {
		return invalid("cannot message yourself")
	}

	connected, err := s.relationships.AreConnected(ctx, senderID, receiverID)
	if err != nil {
		return err
	}
	if !connected {
		return ErrForbidden
	}
	return nil
}

func (s *messageService) requireMember(ctx context.Context, groupID, userID string) error {
	member, err := s.groups.IsMember(ctx, groupID, userID)
	if err != nil {
		return err
	}
	if !member {
		return ErrForbidden
	}
	return nil
}

func (s *messageService) requireParticipant(ctx context.Context, message models.Message, actorID string) error {
	if message.IsGroup() {
		return s.requireMember(ctx, message.GroupID, actorID)
	}
	if !message.HasParticipant(actorID) {
		return ErrForbidden
	}
	return nil
}

// audience addresses everyone in the message's conversation except the actor.
func (s *messageService) audience(message models.Message, actorID string, event realtime.Event) Notification {
	if message.IsGroup() {
		return ToRoom(message.RoomID, event, actorID)
	}
	return ToUser(message.Counterpart(actorID), event)
}

func (s *messageService) senderSummary(ctx context.Context, senderID string) *dto.UserSummary {
	user, err := s.users.FindByID(ctx, senderID)
	if err != nil {
		s.logger.Debug().Err(err).Str("user_id", senderID).Msg("sender profile unavailable")
		return &dto.UserSummary{ID: senderID}
	}
	summary := dto.NewUserSummary(user)
	return &summary
}

func exactlyOneDestination(receiverID, groupID string) error {
	switch {
	case receiverID == "" && groupID == "":
		return invalid("one of receiver or group is required")
	case receiverID != "" && groupID != "":
		return invalid("receiver and group are mutually exclusive")
	default:
		return nil
	}
}

func uniqueIDs(ids []uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
