package handler_test

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-realtime-api/internal/config"
	"github.com/noah-isme/gema-realtime-api/internal/handler"
	"github.com/noah-isme/gema-realtime-api/internal/middleware"
	"github.com/noah-isme/gema-realtime-api/internal/models"
	"github.com/noah-isme/gema-realtime-api/internal/realtime"
	"github.com/noah-isme/gema-realtime-api/internal/repository"
	"github.com/noah-isme/gema-realtime-api/internal/router"
	"github.com/noah-isme/gema-realtime-api/internal/service"
)

const liveSecret = "live-secret"

type liveServer struct {
	app  *fiber.App
	addr string
	db   *gorm.DB
}

type wireEvent struct {
	Kind string          `json:"kind"`
	Ref  string          `json:"ref"`
	Data json.RawMessage `json:"data"`
}

func startLiveServer(t *testing.T) *liveServer {
	t.Helper()

	dsn := fmt.Sprintf("file:handler_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.All()...))

	logger := zerolog.New(io.Discard)
	validate := validator.New(validator.WithRequiredStructEnabled())

	messageRepo := repository.NewMessageRepository(db)
	callRepo := repository.NewCallRecordRepository(db)
	users := repository.NewUserRepository(db)
	relationships := repository.NewRelationshipRepository(db)
	groups := repository.NewGroupRepository(db)

	registry := realtime.NewRegistry()
	hub := realtime.NewHub(registry, realtime.NewRooms(), logger)
	dispatcher := service.NewDispatcher(hub, logger)

	presence := service.NewPresenceService(users, dispatcher, logger)
	messages := service.NewMessageService(messageRepo, users, relationships, groups, dispatcher, validate, logger, service.MessageOptions{})
	signals := service.NewSignalService(dispatcher, logger)
	callLog := service.NewCallLogService(callRepo, relationships, groups, nil, validate, logger, time.Second)
	calls := service.NewCallService(relationships, groups, callLog, dispatcher, validate, logger)
	gateway := service.NewRealtimeService(dispatcher, presence, messages, signals, calls, relationships, groups, logger, service.RealtimeOptions{})

	cfg := config.Config{AppName: "gema-realtime-test", AppEnv: "test", OperationTimeout: 5 * time.Second}
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		RealtimeHandler: handler.NewRealtimeHandler(gateway, logger),
		MessageHandler:  handler.NewMessageHandler(messages, logger, handler.MessageHandlerOptions{}),
		CallHandler:     handler.NewCallHandler(callLog, logger),
		PresenceHandler: handler.NewPresenceHandler(presence, logger),
		JWTMiddleware:   middleware.JWTProtected(middleware.NewTokenVerifier(liveSecret)),
		Registry:        registry,
		NodeID:          "node-test",
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = app.Listener(ln) }()
	t.Cleanup(func() { _ = app.Shutdown() })

	return &liveServer{app: app, addr: ln.Addr().String(), db: db}
}

func (s *liveServer) dial(t *testing.T, userID string) *websocket.Conn {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": userID}).SignedString([]byte(liveSecret))
	require.NoError(t, err)

	conn, _, err := websocket.DefaultDialer.Dial(fmt.Sprintf("ws://%s/api/v2/realtime/ws?token=%s", s.addr, token), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// readUntil reads frames until match accepts one or the deadline passes.
func readUntil(t *testing.T, conn *websocket.Conn, match func(wireEvent) bool) wireEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var event wireEvent
		require.NoError(t, conn.ReadJSON(&event))
		if match(event) {
			return event
		}
	}
}

func TestRealtimeHandler_LiveMessageFlow(t *testing.T) {
	server := startLiveServer(t)
	require.NoError(t, server.db.Create(&models.User{ID: "user-a", DisplayName: "A"}).Error)
	require.NoError(t, server.db.Create(&models.User{ID: "user-b", DisplayName: "B"}).Error)
	require.NoError(t, server.db.Create(&models.Connection{RequesterID: "user-a", AddresseeID: "user-b", Status: models.ConnectionAccepted}).Error)

	bob := server.dial(t, "user-b")
	alice := server.dial(t, "user-a")

	// A pong proves the session finished connecting.
	for i, conn := range []*websocket.Conn{bob, alice} {
		ref := fmt.Sprintf("p%d", i)
		require.NoError(t, conn.WriteJSON(map[string]any{"kind": "ping", "ref": ref}))
		pong := readUntil(t, conn, func(e wireEvent) bool { return e.Kind == "pong" })
		require.Equal(t, ref, pong.Ref)
	}

	require.NoError(t, alice.WriteJSON(map[string]any{
		"kind": "message.send",
		"ref":  "m1",
		"data": map[string]any{"receiver_id": "user-b", "content": "hello"},
	}))

	ack := readUntil(t, alice, func(e wireEvent) bool { return e.Kind == "ack" && e.Ref == "m1" })
	var ackBody struct {
		OK bool `json:"ok"`
	}
	require.NoError(t, json.Unmarshal(ack.Data, &ackBody))
	require.True(t, ackBody.OK)

	incoming := readUntil(t, bob, func(e wireEvent) bool { return e.Kind == "message.new" })
	var message struct {
		Content  string `json:"content"`
		SenderID string `json:"sender_id"`
	}
	require.NoError(t, json.Unmarshal(incoming.Data, &message))
	require.Equal(t, "hello", message.Content)
	require.Equal(t, "user-a", message.SenderID)
}

func TestRealtimeHandler_RejectsMissingToken(t *testing.T) {
	server := startLiveServer(t)

	_, resp, err := websocket.DefaultDialer.Dial(fmt.Sprintf("ws://%s/api/v2/realtime/ws", server.addr), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRealtimeHandler_PlainRequestNeedsUpgrade(t *testing.T) {
	server := startLiveServer(t)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "user-a"}).SignedString([]byte(liveSecret))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v2/realtime/ws", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := server.app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUpgradeRequired, resp.StatusCode)
}

func TestHealthCheckReportsConnections(t *testing.T) {
	server := startLiveServer(t)

	resp, err := server.app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "gema-realtime-test", resp.Header.Get("X-Application"))
	require.NotEmpty(t, resp.Header.Get("X-Correlation-ID"))

	var response struct {
		Data handler.HealthResponse `json:"data"`
	}
	decodeResponse(t, resp, &response)
	require.Equal(t, "ok", response.Data.Status)
	require.Equal(t, "node-test", response.Data.Node)
	require.Zero(t, response.Data.Connections)
}
