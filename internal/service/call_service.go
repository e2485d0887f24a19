package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
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

// CallState is a participant's view of a 1:1 call.
type CallState string

const (
	CallIdle     CallState = "idle"
	CallCalling  CallState = "calling"
	CallIncoming CallState = "incoming"
	CallActive   CallState = "active"
)

// CallService coordinates call signaling. Offer, answer and candidate payloads are
// forwarded verbatim. Only 1:1 calls keep server-side state; group call membership
// is inferred by clients from join and leave broadcasts.
type CallService interface {
	Initiate(ctx context.Context, callerID string, req dto.CallInitiateRequest) error
	Answer(ctx context.Context, calleeID string, req dto.CallAnswerRequest) error
	RelayICE(ctx context.Context, senderID string, req dto.CallICERequest) error
	Terminate(ctx context.Context, actorID string, req dto.CallTerminateRequest) (dto.CallEnded, error)
	Drop(ctx context.Context, userID string)
	State(userID string) (CallState, string)

	StartGroupCall(ctx context.Context, initiatorID string, req dto.GroupCallRequest) error
	JoinGroupCall(ctx context.Context, joinerID string, req dto.GroupCallRequest) error
	LeaveGroupCall(ctx context.Context, leaverID string, req dto.GroupCallRequest) error
	RelayGroupSignal(ctx context.Context, senderID string, req dto.GroupCallSignalRequest) error
}

type callSession struct {
	callerID   string
	calleeID   string
	media      models.CallMedia
	active     bool
	startedAt  time.Time
	answeredAt time.Time
}

func (c *callSession) peer(userID string) string {
	if c.callerID == userID {
		return c.calleeID
	}
	return c.callerID
}

func (c *callSession) stateOf(userID string) CallState {
	switch {
	case c.active:
		return CallActive
	case c.callerID == userID:
		return CallCalling
	default:
		return CallIncoming
	}
}

// outcome maps the terminating party's state onto the recorded status.
func (c *callSession) outcome(actorID string) models.CallStatus {
	switch c.stateOf(actorID) {
	case CallActive:
		return models.CallAnswered
	case CallCalling:
		return models.CallMissed
	default:
		return models.CallRejected
	}
}

type callService struct {
	relationships repository.RelationshipRepository
	groups        repository.GroupRepository
	callLog       CallLogService
	dispatcher    *Dispatcher
	validator     *validator.Validate
	logger        zerolog.Logger
	tracer        trace.Tracer
	now           func() time.Time

	mu       sync.Mutex
	sessions map[string]*callSession
	busy     map[string]string
}

// NewCallService constructs the signaling coordinator.
func NewCallService(
	relationships repository.RelationshipRepository,
	groups repository.GroupRepository,
	callLog CallLogService,
	dispatcher *Dispatcher,
	validate *validator.Validate,
	logger zerolog.Logger,
) CallService {
	return &callService{
		relationships: relationships,
		groups:        groups,
		callLog:       callLog,
		dispatcher:    dispatcher,
		validator:     validate,
		logger:        logger.With().Str("component", "call_service").Logger(),
		tracer:        otel.Tracer("github.com/noah-isme/gema-realtime-api/internal/service/call"),
		now:           func() time.Time { return time.Now().UTC() },
		sessions:      make(map[string]*callSession),
		busy:          make(map[string]string),
	}
}

func (s *callService) Initiate(ctx context.Context, callerID string, req dto.CallInitiateRequest) error {
	req.To = strings.TrimSpace(req.To)
	if err := s.validator.Struct(req); err != nil {
		return wrapValidation(err)
	}
	if req.To == callerID {
		return invalid("cannot call yourself")
	}

	ctx, span := s.tracer.Start(ctx, "call.initiate", trace.WithAttributes(
		attribute.String("call.caller_id", callerID),
		attribute.String("call.callee_id", req.To),
		attribute.String("call.media", req.Media),
	))
	defer span.End()

	connected, err := s.relationships.AreConnected(ctx, callerID, req.To)
	if err != nil {
		return err
	}
	if !connected {
		s.count(realtime.KindCallInitiate, "forbidden")
		return ErrForbidden
	}

	hub := s.dispatcher.Hub()
	if !hub.Reachable(req.To) {
		s.unreachable(callerID, req.To, "offline")
		return ErrUnreachable
	}

	key := realtime.DirectRoom(callerID, req.To)
	session := &callSession{
		callerID:  callerID,
		calleeID:  req.To,
		media:     models.CallMedia(req.Media),
		startedAt: s.now(),
	}

	s.mu.Lock()
	if _, ok := s.busy[callerID]; ok {
		s.mu.Unlock()
		s.count(realtime.KindCallInitiate, "busy")
		return ErrCallInProgress
	}
	if _, ok := s.busy[req.To]; ok {
		s.mu.Unlock()
		s.count(realtime.KindCallInitiate, "busy")
		return ErrCallInProgress
	}
	s.sessions[key] = session
	s.busy[callerID] = key
	s.busy[req.To] = key
	s.mu.Unlock()

	err = hub.Push(req.To, realtime.NewEvent(realtime.KindCallIncoming, dto.CallSignal{
		From:   callerID,
		To:     req.To,
		Media:  req.Media,
		Signal: req.Signal,
	}))
	if err != nil {
		s.discard(key, session)
		span.RecordError(err)
		s.unreachable(callerID, req.To, ErrorCode(err))
		return err
	}

	s.count(realtime.KindCallInitiate, "ok")
	s.logger.Debug().Str("caller_id", callerID).Str("callee_id", req.To).Str("media", req.Media).Msg("call ringing")
	return nil
}

func (s *callService) Answer(ctx context.Context, calleeID string, req dto.CallAnswerRequest) error {
	req.To = strings.TrimSpace(req.To)
	if err := s.validator.Struct(req); err != nil {
		return wrapValidation(err)
	}

	key := realtime.DirectRoom(calleeID, req.To)
	s.mu.Lock()
	session, ok := s.sessions[key]
	if !ok || session.calleeID != calleeID || session.active {
		s.mu.Unlock()
		s.count(realtime.KindCallAnswer, "not_found")
		return ErrNotFound
	}
	s.mu.Unlock()

	err := s.dispatcher.Hub().Push(session.callerID, realtime.NewEvent(realtime.KindCallAnswered, dto.CallSignal{
		From:   calleeID,
		To:     session.callerID,
		Media:  string(session.media),
		Signal: req.Signal,
	}))
	if err != nil {
		// The caller left while ringing; nothing answered, nothing to record.
		s.discard(key, session)
		s.count(realtime.KindCallAnswer, ErrorCode(err))
		return err
	}

	s.mu.Lock()
	if current, ok := s.sessions[key]; ok && current == session {
		session.active = true
		session.answeredAt = s.now()
	}
	s.mu.Unlock()

	s.count(realtime.KindCallAnswer, "ok")
	return nil
}

func (s *callService) RelayICE(ctx context.Context, senderID string, req dto.CallICERequest) error {
	req.To = strings.TrimSpace(req.To)
	if err := s.validator.Struct(req); err != nil {
		return wrapValidation(err)
	}

	s.mu.Lock()
	_, ok := s.sessions[realtime.DirectRoom(senderID, req.To)]
	s.mu.Unlock()
	if !ok {
		s.count(realtime.KindCallICE, "not_found")
		return ErrNotFound
	}

	err := s.dispatcher.Hub().Push(req.To, realtime.NewEvent(realtime.KindCallICE, dto.CallSignal{
		From:   senderID,
		To:     req.To,
		Signal: req.Signal,
	}))
	if err != nil {
		s.count(realtime.KindCallICE, ErrorCode(err))
		return err
	}
	s.count(realtime.KindCallICE, "ok")
	return nil
}

func (s *callService) Terminate(ctx context.Context, actorID string, req dto.CallTerminateRequest) (dto.CallEnded, error) {
	req.To = strings.TrimSpace(req.To)
	if err := s.validator.Struct(req); err != nil {
		return dto.CallEnded{}, wrapValidation(err)
	}

	key := realtime.DirectRoom(actorID, req.To)
	s.mu.Lock()
	session, ok := s.sessions[key]
	if ok {
		s.removeLocked(key, session)
	}
	s.mu.Unlock()

	ended := dto.CallEnded{From: actorID}
	if ok {
		ended.Status = string(session.outcome(actorID))
	} else {
		// Without a session only a connected peer may receive a teardown.
		connected, err := s.relationships.AreConnected(ctx, actorID, req.To)
		if err != nil {
			return dto.CallEnded{}, err
		}
		if !connected {
			s.count(realtime.KindCallTerminate, "forbidden")
			return dto.CallEnded{}, ErrForbidden
		}
	}

	// Teardown between the parties is always legal and best effort.
	s.dispatcher.Apply(ToUser(req.To, realtime.NewEvent(realtime.KindCallEnded, ended)))
	s.count(realtime.KindCallTerminate, "ok")

	if ok {
		s.record(ctx, session, actorID)
	}
	return ended, nil
}

func (s *callService) Drop(ctx context.Context, userID string) {
	s.mu.Lock()
	key, ok := s.busy[userID]
	var session *callSession
	if ok {
		session = s.sessions[key]
	}
	s.mu.Unlock()

	if session == nil {
		return
	}
	if _, err := s.Terminate(ctx, userID, dto.CallTerminateRequest{To: session.peer(userID)}); err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("failed to tear down call on disconnect")
	}
}

// State returns userID's call state and peer.
func (s *callService) State(userID string) (CallState, string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.busy[userID]
	if !ok {
		return CallIdle, ""
	}
	session := s.sessions[key]
	return session.stateOf(userID), session.peer(userID)
}

func (s *callService) StartGroupCall(ctx context.Context, initiatorID string, req dto.GroupCallRequest) error {
	req.GroupID = strings.TrimSpace(req.GroupID)
	if err := s.validator.Struct(req); err != nil {
		return wrapValidation(err)
	}
	if err := s.requireMember(ctx, req.GroupID, initiatorID); err != nil {
		s.count(realtime.KindGroupCallStart, "forbidden")
		return err
	}

	media := req.Media
	if media == "" {
		media = string(models.CallAudio)
	}
	s.dispatcher.Apply(ToRoom(realtime.GroupRoom(req.GroupID), realtime.NewEvent(realtime.KindGroupCallIncoming, dto.GroupCallEvent{
		GroupID: req.GroupID,
		UserID:  initiatorID,
		Media:   media,
	}), initiatorID))

	s.count(realtime.KindGroupCallStart, "ok")
	return nil
}

func (s *callService) JoinGroupCall(ctx context.Context, joinerID string, req dto.GroupCallRequest) error {
	req.GroupID = strings.TrimSpace(req.GroupID)
	if err := s.validator.Struct(req); err != nil {
		return wrapValidation(err)
	}
	if err := s.requireMember(ctx, req.GroupID, joinerID); err != nil {
		s.count(realtime.KindGroupCallJoin, "forbidden")
		return err
	}

	// Every participant already in the call answers this with its own offer to the joiner.
	s.dispatcher.Apply(ToRoom(realtime.GroupRoom(req.GroupID), realtime.NewEvent(realtime.KindGroupCallJoined, dto.GroupCallEvent{
		GroupID: req.GroupID,
		UserID:  joinerID,
		Media:   req.Media,
	}), joinerID))

	s.count(realtime.KindGroupCallJoin, "ok")
	return nil
}

func (s *callService) LeaveGroupCall(ctx context.Context, leaverID string, req dto.GroupCallRequest) error {
	req.GroupID = strings.TrimSpace(req.GroupID)
	if err := s.validator.Struct(req); err != nil {
		return wrapValidation(err)
	}
	if err := s.requireMember(ctx, req.GroupID, leaverID); err != nil {
		s.count(realtime.KindGroupCallLeave, "forbidden")
		return err
	}

	s.dispatcher.Apply(ToRoom(realtime.GroupRoom(req.GroupID), realtime.NewEvent(realtime.KindGroupCallLeft, dto.GroupCallEvent{
		GroupID: req.GroupID,
		UserID:  leaverID,
	}), leaverID))

	s.count(realtime.KindGroupCallLeave, "ok")
	return nil
}

func (s *callService) RelayGroupSignal(ctx context.Context, senderID string, req dto.GroupCallSignalRequest) error {
	req.GroupID = strings.TrimSpace(req.GroupID)
	req.To = strings.TrimSpace(req.To)
	if err := s.validator.Struct(req); err != nil {
		return wrapValidation(err)
	}
	if req.To == senderID {
		return invalid("cannot signal yourself")
	}

	room := realtime.GroupRoom(req.GroupID)
	rooms := s.dispatcher.Hub().Rooms()
	if !rooms.IsMember(room, senderID) {
		s.count(realtime.KindGroupCallSignal, "forbidden")
		return ErrForbidden
	}
	if !rooms.IsMember(room, req.To) {
		s.count(realtime.KindGroupCallSignal, "unreachable")
		return ErrUnreachable
	}

	err := s.dispatcher.Hub().Push(req.To, realtime.NewEvent(realtime.KindGroupCallSignal, dto.GroupCallSignal{
		GroupID: req.GroupID,
		From:    senderID,
		To:      req.To,
		Signal:  req.Signal,
	}))
	if err != nil {
		s.count(realtime.KindGroupCallSignal, ErrorCode(err))
		return err
	}
	s.count(realtime.KindGroupCallSignal, "ok")
	return nil
}

func (s *callService) record(ctx context.Context, session *callSession, actorID string) {
	ended := s.now()
	duration := 0
	if session.active && !session.answeredAt.IsZero() {
		duration = int(ended.Sub(session.answeredAt).Seconds())
	}

	_, err := s.callLog.Log(ctx, session.callerID, dto.CallLogRequest{
		CalleeID:        session.calleeID,
		Media:           string(session.media),
		Status:          string(session.outcome(actorID)),
		DurationSeconds: duration,
		StartedAt:       session.startedAt,
		EndedAt:         ended,
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn().Err(err).
			Str("caller_id", session.callerID).
			Str("callee_id", session.calleeID).
			Msg("failed to record call")
	}
}

func (s *callService) requireMember(ctx context.Context, groupID, userID string) error {
	member, err := s.groups.IsMember(ctx, groupID, userID)
	if err != nil {
		return err
	}
	if !member {
		return ErrForbidden
	}
	return nil
}

func (s *callService) unreachable(callerID, calleeID, reason string) {
	s.count(realtime.KindCallInitiate, "unreachable")
	s.dispatcher.Apply(ToUser(callerID, realtime.NewEvent(realtime.KindCallUnreachable, dto.CallUnreachable{
		To:     calleeID,
		Reason: reason,
	})))
}

func (s *callService) discard(key string, session *callSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.sessions[key]; ok && current == session {
		s.removeLocked(key, session)
	}
}

func (s *callService) removeLocked(key string, session *callSession) {
	delete(s.sessions, key)
	if s.busy[session.callerID] == key {
		delete(s.busy, session.callerID)
	}
	if s.busy[session.calleeID] == key {
		delete(s.busy, session.calleeID)
	}
}

func (s *callService) count(kind realtime.Kind, outcome string) {
	observability.CallSignals().WithLabelValues(kind.String(), outcome).Inc()
}
