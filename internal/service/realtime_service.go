package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-realtime-api/internal/dto"
	"github.com/noah-isme/gema-realtime-api/internal/middleware"
	"github.com/noah-isme/gema-realtime-api/internal/observability"
	"github.com/noah-isme/gema-realtime-api/internal/realtime"
	"github.com/noah-isme/gema-realtime-api/internal/repository"
)

const (
	defaultOperationTimeout = 5 * time.Second
	defaultWriteBuffer      = 32
	defaultPingInterval     = 30 * time.Second
)

// ConnectionOptions wraps metadata extracted during the HTTP upgrade.
type ConnectionOptions struct {
	UserID        string
	CorrelationID string
	Context       context.Context
}

// RealtimeOptions tunes the websocket gateway.
type RealtimeOptions struct {
	OperationTimeout time.Duration
	WriteBuffer      int
	PingInterval     time.Duration
}

// RealtimeService is the websocket gateway. It owns the connect and disconnect
// lifecycle and routes every inbound frame to the pipeline that handles its kind.
type RealtimeService interface {
	ServeConnection(conn *websocket.Conn, opts ConnectionOptions)
	Connect(ctx context.Context, userID string, conn realtime.Conn) error
	Handle(ctx context.Context, userID string, raw []byte) *realtime.Event
	Disconnect(ctx context.Context, userID, connID string)
}

type realtimeService struct {
	dispatcher    *Dispatcher
	presence      PresenceService
	messages      MessageService
	signals       SignalService
	calls         CallService
	relationships repository.RelationshipRepository
	groups        repository.GroupRepository
	logger        zerolog.Logger
	options       RealtimeOptions
}

// NewRealtimeService wires the gateway over the realtime pipelines.
func NewRealtimeService(
	dispatcher *Dispatcher,
	presence PresenceService,
	messages MessageService,
	signals SignalService,
	calls CallService,
	relationships repository.RelationshipRepository,
	groups repository.GroupRepository,
	logger zerolog.Logger,
	opts RealtimeOptions,
) RealtimeService {
	if opts.OperationTimeout <= 0 {
		opts.OperationTimeout = defaultOperationTimeout
	}
	if opts.WriteBuffer <= 0 {
		opts.WriteBuffer = defaultWriteBuffer
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = defaultPingInterval
	}

	return &realtimeService{
		dispatcher:    dispatcher,
		presence:      presence,
		messages:      messages,
		signals:       signals,
		calls:         calls,
		relationships: relationships,
		groups:        groups,
		logger:        logger.With().Str("component", "realtime_service").Logger(),
		options:       opts,
	}
}

func (s *realtimeService) ServeConnection(conn *websocket.Conn, opts ConnectionOptions) {
	baseCtx := opts.Context
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	correlation := opts.CorrelationID
	if correlation == "" {
		correlation = middleware.CorrelationIDFromContext(baseCtx)
	}
	baseCtx = middleware.ContextWithCorrelation(baseCtx, correlation)

	client := newWSClient(conn, s.options.WriteBuffer, s.options.PingInterval, s.logger.With().
		Str("user_id", opts.UserID).
		Str("correlation_id", correlation).
		Logger())
	go client.writer()

	if err := s.Connect(baseCtx, opts.UserID, client); err != nil {
		client.logger.Warn().Err(err).Msg("failed to establish realtime session")
		client.close()
		return
	}
	defer s.Disconnect(context.WithoutCancel(baseCtx), opts.UserID, client.ID())

	client.reader(func(raw []byte) {
		if reply := s.Handle(baseCtx, opts.UserID, raw); reply != nil {
			if err := client.Send(*reply); err != nil {
				client.logger.Warn().Err(err).Str("kind", reply.Kind.String()).Msg("dropping reply")
			}
		}
	})
}

func (s *realtimeService) Connect(ctx context.Context, userID string, conn realtime.Conn) error {
	if userID == "" {
		return ErrForbidden
	}

	ctx, cancel := context.WithTimeout(ctx, s.options.OperationTimeout)
	defer cancel()

	hub := s.dispatcher.Hub()
	_, replaced := hub.Registry().Register(userID, conn)
	observability.ConnectionsTotal().Inc()
	observability.ConnectionsActive().Set(float64(hub.Registry().Len()))

	groupIDs, err := s.groups.GroupIDsForUser(ctx, userID)
	if err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("failed to load group rooms")
	} else {
		s.syncGroupRooms(hub.Rooms(), userID, groupIDs)
	}

	if !replaced {
		if err := s.presence.Online(ctx, userID); err != nil {
			s.logger.Warn().Err(err).Str("user_id", userID).Msg("presence online not persisted")
		}
	}

	// Catch up on everything sent while the user was away.
	if _, err := s.messages.MarkDelivered(ctx, userID); err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("failed to mark pending messages delivered")
	}

	s.logger.Debug().Str("user_id", userID).Str("conn_id", conn.ID()).Bool("replaced", replaced).Msg("realtime client connected")
	return nil
}

// syncGroupRooms joins the user's current group rooms. A replacing connection
// inherits the previous socket's rooms, so group rooms the user no longer
// belongs to are left; conversation rooms joined explicitly are kept.
func (s *realtimeService) syncGroupRooms(rooms *realtime.Rooms, userID string, groupIDs []string) {
	current := make(map[string]struct{}, len(groupIDs))
	for _, groupID := range groupIDs {
		room := realtime.GroupRoom(groupID)
		current[room] = struct{}{}
		rooms.Join(room, userID)
	}
	for _, room := range rooms.RoomsOf(userID) {
		if _, ok := current[room]; ok || !realtime.IsGroupRoom(room) {
			continue
		}
		rooms.Leave(room, userID)
		s.logger.Debug().Str("user_id", userID).Str("room", room).Msg("left stale group room")
	}
}

func (s *realtimeService) Disconnect(ctx context.Context, userID, connID string) {
	hub := s.dispatcher.Hub()
	if !hub.Registry().Release(userID, connID) {
		// A newer connection owns the mapping.
		return
	}
	observability.ConnectionsActive().Set(float64(hub.Registry().Len()))

	ctx, cancel := context.WithTimeout(ctx, s.options.OperationTimeout)
	defer cancel()

	hub.Rooms().LeaveAll(userID)
	s.calls.Drop(ctx, userID)
	if _, err := s.presence.Offline(ctx, userID); err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("presence offline not persisted")
	}

	s.logger.Debug().Str("user_id", userID).Str("conn_id", connID).Msg("realtime client disconnected")
}

// Handle processes one inbound frame. It returns the frame to send back to the
// client, if any: a pong, or an ack when the frame carried a ref or failed.
func (s *realtimeService) Handle(ctx context.Context, userID string, raw []byte) *realtime.Event {
	frame, err := realtime.ParseFrame(raw)
	if err != nil {
		observability.FramesRejected().Inc()
		return ackFor("", nil, err)
	}

	if frame.Kind == realtime.KindPing {
		pong := realtime.NewEvent(realtime.KindPong, nil)
		pong.Ref = frame.Ref
		return &pong
	}

	ctx, cancel := context.WithTimeout(ctx, s.options.OperationTimeout)
	defer cancel()

	result, err := s.route(ctx, userID, frame)
	if err != nil {
		s.logger.Debug().Err(err).Str("user_id", userID).Str("kind", frame.Kind.String()).Msg("realtime frame failed")
		return ackFor(frame.Ref, nil, err)
	}
	if frame.Ref == "" {
		return nil
	}
	return ackFor(frame.Ref, result, nil)
}

func (s *realtimeService) route(ctx context.Context, userID string, frame realtime.Frame) (any, error) {
	switch frame.Kind {
	case realtime.KindMessageSend:
		var req dto.SendMessageRequest
		if err := decodeFrame(frame, &req); err != nil {
			return nil, err
		}
		return s.messages.Send(ctx, userID, req)

	case realtime.KindMessageRead:
		var req dto.MarkReadRequest
		if err := decodeFrame(frame, &req); err != nil {
			return nil, err
		}
		return s.messages.MarkRead(ctx, userID, req.PartnerID)

	case realtime.KindMessageGroupRead:
		var req dto.GroupReadRequest
		if err := decodeFrame(frame, &req); err != nil {
			return nil, err
		}
		return s.messages.MarkGroupRead(ctx, userID, req.GroupID)

	case realtime.KindRoomJoin, realtime.KindRoomLeave:
		var req dto.RoomRequest
		if err := decodeFrame(frame, &req); err != nil {
			return nil, err
		}
		return s.room(ctx, userID, frame.Kind == realtime.KindRoomJoin, req)

	case realtime.KindTypingStart, realtime.KindTypingStop:
		var req dto.TypingRequest
		if err := decodeFrame(frame, &req); err != nil {
			return nil, err
		}
		if frame.Kind == realtime.KindTypingStart {
			return nil, s.signals.Typing(ctx, userID, req)
		}
		return nil, s.signals.StopTyping(ctx, userID, req)

	case realtime.KindCallInitiate:
		var req dto.CallInitiateRequest
		if err := decodeFrame(frame, &req); err != nil {
			return nil, err
		}
		return nil, s.calls.Initiate(ctx, userID, req)

	case realtime.KindCallAnswer:
		var req dto.CallAnswerRequest
		if err := decodeFrame(frame, &req); err != nil {
			return nil, err
		}
		return nil, s.calls.Answer(ctx, userID, req)

	case realtime.KindCallICE:
		var req dto.CallICERequest
		if err := decodeFrame(frame, &req); err != nil {
			return nil, err
		}
		return nil, s.calls.RelayICE(ctx, userID, req)

	case realtime.KindCallTerminate:
		var req dto.CallTerminateRequest
		if err := decodeFrame(frame, &req); err != nil {
			return nil, err
		}
		return s.calls.Terminate(ctx, userID, req)

	case realtime.KindGroupCallStart, realtime.KindGroupCallJoin, realtime.KindGroupCallLeave:
		var req dto.GroupCallRequest
		if err := decodeFrame(frame, &req); err != nil {
			return nil, err
		}
		switch frame.Kind {
		case realtime.KindGroupCallStart:
			return nil, s.calls.StartGroupCall(ctx, userID, req)
		case realtime.KindGroupCallJoin:
			return nil, s.calls.JoinGroupCall(ctx, userID, req)
		default:
			return nil, s.calls.LeaveGroupCall(ctx, userID, req)
		}

	case realtime.KindGroupCallSignal:
		var req dto.GroupCallSignalRequest
		if err := decodeFrame(frame, &req); err != nil {
			return nil, err
		}
		return nil, s.calls.RelayGroupSignal(ctx, userID, req)

	default:
		return nil, fmt.Errorf("%w: unsupported kind %s", ErrValidation, frame.Kind)
	}
}

func (s *realtimeService) room(ctx context.Context, userID string, join bool, req dto.RoomRequest) (any, error) {
	if err := exactlyOneDestination(req.PartnerID, req.GroupID); err != nil {
		return nil, err
	}

	room := realtime.ConversationRoom(userID, req.PartnerID, req.GroupID)
	rooms := s.dispatcher.Hub().Rooms()
	if !join {
		rooms.Leave(room, userID)
		return roomAck{Room: room}, nil
	}

	var (
		allowed bool
		err     error
	)
	if req.GroupID != "" {
		allowed, err = s.groups.IsMember(ctx, req.GroupID, userID)
	} else {
		allowed, err = s.relationships.AreConnected(ctx, userID, req.PartnerID)
	}
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, ErrForbidden
	}

	rooms.Join(room, userID)
	return roomAck{Room: room}, nil
}

type roomAck struct {
	Room string `json:"room"`
}

func decodeFrame(frame realtime.Frame, target any) error {
	if err := frame.Decode(target); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}

func ackFor(ref string, data any, err error) *realtime.Event {
	ack := dto.Ack{OK: err == nil, Data: data}
	if err != nil {
		ack.Code = ErrorCode(err)
		ack.Error = PublicError(err)
	}
	event := realtime.NewEvent(realtime.KindAck, ack)
	event.Ref = ref
	return &event
}

// PublicError renders err for clients, hiding internal failure details.
func PublicError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "operation timed out"
	}
	if ErrorCode(err) == "internal" {
		return "internal error"
	}
	return err.Error()
}

// newConnID identifies one websocket connection.
func newConnID() string {
	return uuid.NewString()
}
