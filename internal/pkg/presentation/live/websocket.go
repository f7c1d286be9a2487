package live

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 256
)

var (
	ErrSendBufferFull   = errors.New("send buffer full")
	ErrConnectionClosed = errors.New("connection closed")
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// client adapts a websocket connection to the Sender interface.
type client struct {
	conn *websocket.Conn
	send chan []byte

	mu          sync.Mutex
	closed      bool
	closeCode   int
	closeReason string
}

func newClient(conn *websocket.Conn) *client {
	return &client{
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}
}

func (c *client) Send(message []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrConnectionClosed
	}

	select {
	case c.send <- message:
		return nil
	default:
		return ErrSendBufferFull
	}
}

func (c *client) Close(code int, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	c.closed = true
	c.closeCode = code
	c.closeReason = reason
	close(c.send)
}

func (c *client) readPump(ctx context.Context, registry *Registry, id string) {
	defer func() {
		registry.release(id, c)
		c.conn.Close()
	}()

	log := logging.GetFromContext(ctx)

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				log.Warn().Err(err).Msg("websocket read failed")
			}
			return
		}

		registry.HandleInbound(ctx, id, message)
	}
}

func (c *client) writePump(log zerolog.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.mu.Lock()
				code, reason := c.closeCode, c.closeReason
				c.mu.Unlock()

				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason))
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Debug().Err(err).Msg("websocket write failed")
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// NewWebsocketHandler upgrades the request and registers the connection. The
// connection id is taken from the path when present, the token from the query.
func NewWebsocketHandler(ctx context.Context, registry *Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "connectionID")
		if id == "" {
			id = uuid.NewString()
		}

		log := logging.GetFromContext(ctx).With().Str("connection_id", id).Logger()
		connCtx := logging.NewContextWithLogger(context.WithoutCancel(r.Context()), log)

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Error().Err(err).Msg("websocket upgrade failed")
			return
		}

		c := newClient(conn)

		state, err := registry.Connect(connCtx, id, r.URL.Query().Get("token"), c)
		if err != nil || state != StateOpen {
			code, reason := CloseInternalError, "internal error"
			if errors.Is(err, ErrConnectionAuth) {
				code, reason = CloseInvalidToken, "invalid or expired token"
			} else if errors.Is(err, ErrConnectionInUse) {
				code, reason = CloseIDInUse, "connection id in use"
			}

			log.Info().Err(err).Int("code", code).Msg("rejecting websocket connection")

			conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
			conn.Close()
			return
		}

		go c.writePump(log)
		go c.readPump(connCtx, registry, id)

		info, _ := registry.ConnectionInfo(id)
		welcome := map[string]any{
			"type":          "connected",
			"connection_id": id,
			"authenticated": info.Authenticated,
		}
		if info.Authenticated {
			welcome["user_id"] = info.SubjectID
		}
		registry.sendTo(connCtx, id, welcome)
	}
}
