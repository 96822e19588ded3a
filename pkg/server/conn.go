package server

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/balco-dev/balco/pkg/router"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Conn is one WebSocket connection. It implements session.Peer.
type Conn struct {
	id     string
	ws     *websocket.Conn
	config *SessionConfig
	logger *slog.Logger

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	closeErr  atomic.Value // error

	onError func(errorType string)

	framesIn  atomic.Int64
	framesOut atomic.Int64
}

func newConn(ws *websocket.Conn, config *SessionConfig, logger *slog.Logger) *Conn {
	id := uuid.NewString()
	return &Conn{
		id:     id,
		ws:     ws,
		config: config,
		logger: logger.With("session_id", id),
		send:   make(chan []byte, config.SendQueueSize),
		done:   make(chan struct{}),
	}
}

// ID returns the connection's session id.
func (c *Conn) ID() string { return c.id }

// Send queues a frame for the write loop without blocking.
func (c *Conn) Send(frame []byte) error {
	select {
	case <-c.done:
		return ErrSessionClosed
	default:
	}
	select {
	case c.send <- frame:
		return nil
	default:
		return ErrSendQueueFull
	}
}

// Close ends the connection with a normal close frame. Only the first call
// has an effect.
func (c *Conn) Close(reason error) {
	c.closeOnce.Do(func() {
		if reason == nil {
			reason = ErrConnectionClosed
		}
		c.closeErr.Store(reason)
		close(c.done)

		code := websocket.CloseNormalClosure
		if errors.Is(reason, ErrServerShutdown) {
			code = websocket.CloseGoingAway
		}
		_ = c.ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(code, ""),
			time.Now().Add(time.Second),
		)
		_ = c.ws.Close()

		c.logger.Debug("connection closed",
			"reason", reason,
			"frames_in", c.framesIn.Load(),
			"frames_out", c.framesOut.Load())
	})
}

// Done is closed once the connection has been closed.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Err returns the reason the connection was closed, or nil while open.
func (c *Conn) Err() error {
	if err, ok := c.closeErr.Load().(error); ok {
		return err
	}
	return nil
}

// ReadLoop submits every inbound frame to r until the connection fails or
// is closed, then queues the peer's disconnect. It blocks.
func (c *Conn) ReadLoop(ctx context.Context, r *router.Router) {
	defer c.Close(nil)
	defer r.Disconnect(ctx, c)

	c.ws.SetReadLimit(c.config.MaxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
	})

	for {
		_, msg, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.logger.Warn("read error", "error", err)
				c.reportError("read")
			}
			return
		}
		c.ws.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		c.framesIn.Add(1)

		if err := r.Submit(ctx, c, msg); err != nil {
			c.logger.Debug("submit rejected", "error", err)
			return
		}
	}
}

// WriteLoop drains the send queue and sends heartbeat pings until the
// connection is closed. It blocks.
func (c *Conn) WriteLoop() {
	ticker := time.NewTicker(c.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case frame := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.reportError("write")
				c.Close(&SessionError{SessionID: c.id, Op: "write", Err: err})
				return
			}
			c.framesOut.Add(1)

		case <-ticker.C:
			deadline := time.Now().Add(c.config.WriteTimeout)
			if err := c.ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.reportError("ping")
				c.Close(&SessionError{SessionID: c.id, Op: "ping", Err: err})
				return
			}

		case <-c.done:
			return
		}
	}
}

func (c *Conn) reportError(errorType string) {
	if c.onError != nil {
		c.onError(errorType)
	}
}
