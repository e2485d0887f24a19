package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-realtime-api/internal/dto"
	"github.com/noah-isme/gema-realtime-api/internal/models"
	"github.com/noah-isme/gema-realtime-api/internal/observability"
	"github.com/noah-isme/gema-realtime-api/internal/realtime"
	"github.com/noah-isme/gema-realtime-api/internal/repository"
)

const defaultCallDedupeWindow = 5 * time.Second

// CallLogService owns durable call history. Writes within the dedupe window for the
// same participants and caller collapse onto the first record.
type CallLogService interface {
	Log(ctx context.Context, callerID string, req dto.CallLogRequest) (dto.CallLogResult, error)
	History(ctx context.Context, userID string, query dto.CallHistoryQuery) ([]dto.CallRecordResponse, error)
	Delete(ctx context.Context, userID string, id uint) error
	Clear(ctx context.Context, userID string) (int64, error)
}

type callLogService struct {
	repo          repository.CallRecordRepository
	relationships repository.RelationshipRepository
	groups        repository.GroupRepository
	cache         *redis.Client
	validator     *validator.Validate
	logger        zerolog.Logger
	tracer        trace.Tracer
	window        time.Duration
	now           func() time.Time
}

// NewCallLogService constructs the call history service. cache may be nil, in which
// case duplicates are detected against the store only.
func NewCallLogService(
	repo repository.CallRecordRepository,
	relationships repository.RelationshipRepository,
	groups repository.GroupRepository,
	cache *redis.Client,
	validate *validator.Validate,
	logger zerolog.Logger,
	window time.Duration,
) CallLogService {
	if window <= 0 {
		window = defaultCallDedupeWindow
	}
	return &callLogService{
		repo:          repo,
		relationships: relationships,
		groups:        groups,
		cache:         cache,
		validator:     validate,
		logger:        logger.With().Str("component", "call_log_service").Logger(),
		tracer:        otel.Tracer("github.com/noah-isme/gema-realtime-api/internal/service/call_log"),
		window:        window,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func (s *callLogService) Log(ctx context.Context, callerID string, req dto.CallLogRequest) (dto.CallLogResult, error) {
	req.CalleeID = strings.TrimSpace(req.CalleeID)
	req.GroupID = strings.TrimSpace(req.GroupID)

	ctx, span := s.tracer.Start(ctx, "call_log.log", trace.WithAttributes(
		attribute.String("call.caller_id", callerID),
		attribute.String("call.status", req.Status),
	))
	defer span.End()

	if err := s.validator.Struct(req); err != nil {
		span.SetStatus(codes.Error, "validation failed")
		return dto.CallLogResult{}, wrapValidation(err)
	}
	if err := exactlyOneDestination(req.CalleeID, req.GroupID); err != nil {
		return dto.CallLogResult{}, err
	}
	if err := s.authorise(ctx, callerID, req.CalleeID, req.GroupID); err != nil {
		span.SetStatus(codes.Error, "forbidden")
		return dto.CallLogResult{}, err
	}

	key := realtime.ConversationRoom(callerID, req.CalleeID, req.GroupID)
	now := s.now()

	if existing, found, err := s.recent(ctx, key, callerID, now); err != nil {
		span.RecordError(err)
		return dto.CallLogResult{}, err
	} else if found {
		return s.duplicate(existing), nil
	}

	dedupeKey := ""
	if s.cache != nil {
		dedupeKey = fmt.Sprintf("call:dedupe:%s:%s", key, callerID)
		ok, err := s.cache.SetNX(ctx, dedupeKey, 1, s.window).Result()
		if err != nil {
			span.RecordError(err)
			return dto.CallLogResult{}, err
		}
		if !ok {
			// Another writer holds the window. Report its record if it landed,
			// otherwise the holder failed and this request writes the record.
			existing, found, err := s.recent(ctx, key, callerID, now)
			if err != nil {
				return dto.CallLogResult{}, err
			}
			if found {
				return s.duplicate(existing), nil
			}
		}
	}

	record := models.CallRecord{
		CallerID:        callerID,
		CalleeID:        req.CalleeID,
		GroupID:         req.GroupID,
		ParticipantKey:  key,
		Media:           models.CallMedia(req.Media),
		Scope:           models.CallDirect,
		Status:          models.CallStatus(req.Status),
		DurationSeconds: req.DurationSeconds,
		StartedAt:       req.StartedAt,
		EndedAt:         req.EndedAt,
		CreatedAt:       now,
	}
	if req.GroupID != "" {
		record.Scope = models.CallGroup
	}
	if record.EndedAt.IsZero() {
		record.EndedAt = now
	}
	if record.StartedAt.IsZero() {
		record.StartedAt = record.EndedAt.Add(-time.Duration(req.DurationSeconds) * time.Second)
	}

	if err := s.repo.Create(ctx, &record); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persistence failed")
		if dedupeKey != "" {
			if delErr := s.cache.Del(context.WithoutCancel(ctx), dedupeKey).Err(); delErr != nil {
				s.logger.Warn().Err(delErr).Str("key", dedupeKey).Msg("failed to release call dedupe window")
			}
		}
		return dto.CallLogResult{}, err
	}

	observability.CallRecords().WithLabelValues(string(record.Status), "false").Inc()
	s.logger.Info().
		Uint("call_id", record.ID).
		Str("participant_key", key).
		Str("status", string(record.Status)).
		Int("duration_seconds", record.DurationSeconds).
		Msg("call recorded")

	return dto.CallLogResult{Record: dto.NewCallRecordResponse(record)}, nil
}

func (s *callLogService) History(ctx context.Context, userID string, query dto.CallHistoryQuery) ([]dto.CallRecordResponse, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, wrapValidation(err)
	}

	groupIDs, err := s.groups.GroupIDsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	records, err := s.repo.ListForUser(ctx, userID, groupIDs, query.Limit, query.Offset)
	if err != nil {
		return nil, err
	}
	return dto.NewCallRecordResponseSlice(records), nil
}

func (s *callLogService) Delete(ctx context.Context, userID string, id uint) error {
	record, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return notFoundOr(err, "call record")
	}

	visible := record.CallerID == userID || record.CalleeID == userID
	if !visible && record.GroupID != "" {
		visible, err = s.groups.IsMember(ctx, record.GroupID, userID)
		if err != nil {
			return err
		}
	}
	if !visible {
		return fmt.Errorf("call record: %w", ErrNotFound)
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return notFoundOr(err, "call record")
	}
	return nil
}

func (s *callLogService) Clear(ctx context.Context, userID string) (int64, error) {
	deleted, err := s.repo.DeleteForUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	s.logger.Info().Str("user_id", userID).Int64("deleted", deleted).Msg("call history cleared")
	return deleted, nil
}

func (s *callLogService) authorise(ctx context.Context, callerID, calleeID, groupID string) error {
	if groupID != "" {
		member, err := s.groups.IsMember(ctx, groupID, callerID)
		if err != nil {
			return err
		}
		if !member {
			return ErrForbidden
		}
		return nil
	}

	if calleeID == callerID {
		return invalid("cannot log a call with yourself")
	}
	connected, err := s.relationships.AreConnected(ctx, callerID, calleeID)
	if err != nil {
		return err
	}
	if !connected {
		return ErrForbidden
	}
	return nil
}

func (s *callLogService) recent(ctx context.Context, key, callerID string, now time.Time) (models.CallRecord, bool, error) {
	record, err := s.repo.FindRecent(ctx, key, callerID, now.Add(-s.window))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.CallRecord{}, false, nil
		}
		return models.CallRecord{}, false, err
	}
	return record, true, nil
}

func (s *callLogService) duplicate(record models.CallRecord) dto.CallLogResult {
	observability.CallRecords().WithLabelValues(string(record.Status), "true").Inc()
	s.logger.Debug().Uint("call_id", record.ID).Msg("duplicate call record suppressed")
	return dto.CallLogResult{Record: dto.NewCallRecordResponse(record), Duplicate: true}
}
