package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-realtime-api/internal/dto"
	"github.com/noah-isme/gema-realtime-api/internal/observability"
	"github.com/noah-isme/gema-realtime-api/internal/realtime"
	"github.com/noah-isme/gema-realtime-api/internal/repository"
)

// PresenceService derives online/offline state from registry transitions, persists
// it to the user profile and broadcasts it to every other connected client.
type PresenceService interface {
	Online(ctx context.Context, userID string) error
	Offline(ctx context.Context, userID string) (time.Time, error)
	Get(ctx context.Context, userID string) (dto.PresenceResponse, error)
}

type presenceService struct {
	users      repository.UserRepository
	dispatcher *Dispatcher
	logger     zerolog.Logger
	now        func() time.Time
}

// NewPresenceService constructs the presence tracker.
func NewPresenceService(users repository.UserRepository, dispatcher *Dispatcher, logger zerolog.Logger) PresenceService {
	return &presenceService{
		users:      users,
		dispatcher: dispatcher,
		logger:     logger.With().Str("component", "presence_service").Logger(),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Online is called after a previously absent user registers a connection.
func (s *presenceService) Online(ctx context.Context, userID string) error {
	err := s.users.SetPresence(ctx, userID, true, nil)
	if err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("failed to persist online presence")
	}

	s.dispatcher.Apply(ToEveryone(realtime.NewEvent(realtime.KindPresenceOnline, dto.PresenceResponse{
		UserID:   userID,
		IsOnline: true,
	}), userID))
	observability.PresenceTransitions().WithLabelValues("online").Inc()

	return err
}

// Offline is called after a user's mapping has been removed from the registry.
func (s *presenceService) Offline(ctx context.Context, userID string) (time.Time, error) {
	seen := s.now()
	err := s.users.SetPresence(ctx, userID, false, &seen)
	if err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("failed to persist offline presence")
	}

	s.dispatcher.Apply(ToEveryone(realtime.NewEvent(realtime.KindPresenceOffline, dto.PresenceResponse{
		UserID:     userID,
		IsOnline:   false,
		LastSeenAt: &seen,
	}), userID))
	observability.PresenceTransitions().WithLabelValues("offline").Inc()

	return seen, err
}

func (s *presenceService) Get(ctx context.Context, userID string) (dto.PresenceResponse, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return dto.PresenceResponse{}, invalid("user id is required")
	}

	response := dto.PresenceResponse{
		UserID:   userID,
		IsOnline: s.dispatcher.Hub().Reachable(userID),
	}

	user, err := s.users.FindByID(ctx, userID)
	switch {
	case err == nil:
		response.LastSeenAt = user.LastSeenAt
	case errors.Is(err, gorm.ErrRecordNotFound):
		if !response.IsOnline {
			return dto.PresenceResponse{}, notFoundOr(err, "user")
		}
	default:
		return dto.PresenceResponse{}, err
	}

	return response, nil
}
