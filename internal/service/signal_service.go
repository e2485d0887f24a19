package service

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-realtime-api/internal/dto"
	"github.com/noah-isme/gema-realtime-api/internal/realtime"
)

// SignalService relays ephemeral typing signals. Nothing is persisted and an
// unreachable destination is silently dropped.
type SignalService interface {
	Typing(ctx context.Context, senderID string, req dto.TypingRequest) error
	StopTyping(ctx context.Context, senderID string, req dto.TypingRequest) error
}

type signalService struct {
	dispatcher *Dispatcher
	logger     zerolog.Logger
}

// NewSignalService constructs the typing relay.
func NewSignalService(dispatcher *Dispatcher, logger zerolog.Logger) SignalService {
	return &signalService{
		dispatcher: dispatcher,
		logger:     logger.With().Str("component", "signal_service").Logger(),
	}
}

func (s *signalService) Typing(ctx context.Context, senderID string, req dto.TypingRequest) error {
	return s.relay(senderID, req, realtime.KindTypingStart)
}

func (s *signalService) StopTyping(ctx context.Context, senderID string, req dto.TypingRequest) error {
	return s.relay(senderID, req, realtime.KindTypingStop)
}

func (s *signalService) relay(senderID string, req dto.TypingRequest, kind realtime.Kind) error {
	to := strings.TrimSpace(req.To)
	groupID := strings.TrimSpace(req.GroupID)
	if err := exactlyOneDestination(to, groupID); err != nil {
		return err
	}

	signal := realtime.NewEvent(kind, dto.TypingSignal{From: senderID, GroupID: groupID})
	if groupID != "" {
		room := realtime.GroupRoom(groupID)
		// Only relay into rooms the sender was admitted to on connect.
		if !s.dispatcher.Hub().Rooms().IsMember(room, senderID) {
			return ErrForbidden
		}
		s.dispatcher.Apply(ToRoom(room, signal, senderID))
		return nil
	}

	if to == senderID {
		return nil
	}
	report := s.dispatcher.Apply(ToUser(to, signal))
	if report.Unreachable > 0 {
		s.logger.Debug().Str("from", senderID).Str("to", to).Msg("typing signal dropped")
	}
	return nil
}
