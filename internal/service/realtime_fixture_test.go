package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-realtime-api/internal/models"
	"github.com/noah-isme/gema-realtime-api/internal/realtime"
	"github.com/noah-isme/gema-realtime-api/internal/realtime/realtimetest"
	"github.com/noah-isme/gema-realtime-api/internal/repository"
)

type realtimeFixture struct {
	db          *gorm.DB
	hub         *realtime.Hub
	dispatcher  *Dispatcher
	messageRepo repository.MessageRepository
	callRepo    repository.CallRecordRepository
	users       repository.UserRepository
	presence    PresenceService
	messages    MessageService
	signals     SignalService
	callLog     CallLogService
	calls       CallService
	gateway     RealtimeService
}

func newRealtimeFixture(t *testing.T, cache *redis.Client) *realtimeFixture {
	t.Helper()

	dsn := fmt.Sprintf("file:realtime_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.All()...))

	logger := zerolog.Nop()
	validate := validator.New(validator.WithRequiredStructEnabled())

	hub := realtime.NewHub(realtime.NewRegistry(), realtime.NewRooms(), logger)
	dispatcher := NewDispatcher(hub, logger)

	messageRepo := repository.NewMessageRepository(db)
	callRepo := repository.NewCallRecordRepository(db)
	users := repository.NewUserRepository(db)
	relationships := repository.NewRelationshipRepository(db)
	groups := repository.NewGroupRepository(db)

	presence := NewPresenceService(users, dispatcher, logger)
	messages := NewMessageService(messageRepo, users, relationships, groups, dispatcher, validate, logger, MessageOptions{MaxContentLength: 64})
	signals := NewSignalService(dispatcher, logger)
	callLog := NewCallLogService(callRepo, relationships, groups, cache, validate, logger, 5*time.Second)
	calls := NewCallService(relationships, groups, callLog, dispatcher, validate, logger)
	gateway := NewRealtimeService(dispatcher, presence, messages, signals, calls, relationships, groups, logger, RealtimeOptions{})

	return &realtimeFixture{
		db:          db,
		hub:         hub,
		dispatcher:  dispatcher,
		messageRepo: messageRepo,
		callRepo:    callRepo,
		users:       users,
		presence:    presence,
		messages:    messages,
		signals:     signals,
		callLog:     callLog,
		calls:       calls,
		gateway:     gateway,
	}
}

func (f *realtimeFixture) seedUsers(t *testing.T, ids ...string) {
	t.Helper()
	for _, id := range ids {
		require.NoError(t, f.db.Create(&models.User{ID: id, DisplayName: "User " + id}).Error)
	}
}

func (f *realtimeFixture) befriend(t *testing.T, a, b string) {
	t.Helper()
	require.NoError(t, f.db.Create(&models.Connection{RequesterID: a, AddresseeID: b, Status: models.ConnectionAccepted}).Error)
}

func (f *realtimeFixture) addMembers(t *testing.T, groupID string, userIDs ...string) {
	t.Helper()
	for _, userID := range userIDs {
		require.NoError(t, f.db.Create(&models.GroupMember{GroupID: groupID, UserID: userID}).Error)
	}
}

// connect runs the full gateway connect path for userID over a recording conn.
func (f *realtimeFixture) connect(t *testing.T, userID string) *realtimetest.Conn {
	t.Helper()
	conn := realtimetest.NewConn()
	require.NoError(t, f.gateway.Connect(context.Background(), userID, conn))
	return conn
}
