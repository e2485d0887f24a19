package service

import (
	"errors"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-realtime-api/internal/realtime"
)

var (
	errClientClosed = errors.New("realtime client closed")
	errSlowConsumer = errors.New("realtime client send buffer full")
)

// wsClient adapts a websocket connection to realtime.Conn. Sends are queued and
// written by a single writer goroutine.
type wsClient struct {
	id           string
	conn         *websocket.Conn
	send         chan realtime.Event
	closed       chan struct{}
	once         sync.Once
	pingInterval time.Duration
	logger       zerolog.Logger
}

func newWSClient(conn *websocket.Conn, buffer int, pingInterval time.Duration, logger zerolog.Logger) *wsClient {
	id := newConnID()
	return &wsClient{
		id:           id,
		conn:         conn,
		send:         make(chan realtime.Event, buffer),
		closed:       make(chan struct{}),
		pingInterval: pingInterval,
		logger:       logger.With().Str("conn_id", id).Logger(),
	}
}

func (c *wsClient) ID() string {
	return c.id
}

// Send queues event without blocking the caller.
func (c *wsClient) Send(event realtime.Event) error {
	select {
	case <-c.closed:
		return errClientClosed
	default:
	}

	select {
	case c.send <- event:
		return nil
	default:
		return errSlowConsumer
	}
}

func (c *wsClient) reader(handle func(raw []byte)) {
	defer c.close()

	c.conn.SetReadLimit(realtime.MaxFrameBytes)
	for {
		messageType, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.logger.Debug().Err(err).Msg("realtime read loop ended")
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		select {
		case <-c.closed:
			return
		default:
		}

		handle(raw)
	}
}

func (c *wsClient) writer() {
	defer c.close()

	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case event := <-c.send:
			if err := c.conn.WriteJSON(event); err != nil {
				c.logger.Debug().Err(err).Msg("realtime write loop terminated")
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteMessage(websocket.PingMessage, []byte("keepalive")); err != nil {
				c.logger.Debug().Err(err).Msg("realtime ping failed")
				return
			}
		case <-c.closed:
			return
		}
	}
}

func (c *wsClient) close() {
	c.once.Do(func() {
		close(c.closed)
		_ = c.conn.Close()
	})
}
