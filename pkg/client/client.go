// Package client is a Go client for a Balco room.
//
// A Client keeps a local mirror of one room. Mutations are applied to the
// mirror first and sent to the server only while connected, so a client
// that lost its connection keeps working locally. Each (re)connect sends
// join-room again and replaces the mirror with the server's snapshot.
//
//	c := client.New("ws://localhost:1000/ws", "r1")
//	go c.Run(ctx)
//	c.UpdateNote(board.Note{ID: "n1", Title: "Hello"})
//
// Reconnection follows a bounded schedule: after a failed or lost
// connection up to MaxAttempts further dials are made, waiting BaseDelay,
// then twice that, capped at MaxDelay. Once they are exhausted the client
// is permanently offline and Run returns ErrOffline.
package client

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/balco-dev/balco/pkg/board"
	"github.com/balco-dev/balco/pkg/protocol"
	"github.com/gorilla/websocket"
)

// ErrOffline is returned by Run once every reconnect attempt has failed.
var ErrOffline = errors.New("client: offline")

// Default reconnect schedule.
const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = time.Second
	DefaultMaxDelay    = 5 * time.Second
)

// Client mirrors one room and keeps it in sync with a server.
type Client struct {
	url         string
	roomID      string
	dialer      *websocket.Dialer
	header      http.Header
	logger      *slog.Logger
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	onEvent     func(protocol.Outbound)
	onState     func(connected bool)

	mu      sync.Mutex
	room    *board.Room
	ws      *websocket.Conn
	offline bool

	writeMu sync.Mutex
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithDialer sets the WebSocket dialer. Default: websocket.DefaultDialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) {
		if d != nil {
			c.dialer = d
		}
	}
}

// WithHeader sets extra handshake headers, e.g. Origin.
func WithHeader(h http.Header) Option {
	return func(c *Client) {
		c.header = h
	}
}

// WithReconnect sets the reconnect schedule. Zero values keep the defaults.
func WithReconnect(maxAttempts int, baseDelay, maxDelay time.Duration) Option {
	return func(c *Client) {
		if maxAttempts > 0 {
			c.maxAttempts = maxAttempts
		}
		if baseDelay > 0 {
			c.baseDelay = baseDelay
		}
		if maxDelay > 0 {
			c.maxDelay = maxDelay
		}
	}
}

// WithEventHandler is called with every server event after it has been
// applied to the mirror. It runs on the read goroutine.
func WithEventHandler(fn func(protocol.Outbound)) Option {
	return func(c *Client) {
		c.onEvent = fn
	}
}

// WithConnectionHandler is called whenever the connection is established
// or lost.
func WithConnectionHandler(fn func(connected bool)) Option {
	return func(c *Client) {
		c.onState = fn
	}
}

// New creates a client for roomID on the server at url. Nothing is dialed
// until Run.
func New(url, roomID string, opts ...Option) *Client {
	c := &Client{
		url:         url,
		roomID:      roomID,
		dialer:      websocket.DefaultDialer,
		logger:      slog.Default(),
		maxAttempts: DefaultMaxAttempts,
		baseDelay:   DefaultBaseDelay,
		maxDelay:    DefaultMaxDelay,
		room:        board.NewRoom(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "client", "room_id", roomID)
	return c
}

// RoomID returns the room the client mirrors.
func (c *Client) RoomID() string { return c.roomID }

// Connected reports whether a connection is currently open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws != nil
}

// Offline reports whether the client has given up reconnecting.
func (c *Client) Offline() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.offline
}

// Snapshot returns a copy of the local mirror.
func (c *Client) Snapshot() board.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room.Snapshot()
}

// Run connects and keeps the mirror in sync until ctx is done or the
// reconnect attempts are exhausted.
func (c *Client) Run(ctx context.Context) error {
	failures := 0
	for {
		ws, err := c.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			failures++
			c.logger.Warn("connect failed", "error", err, "attempt", failures)
		} else {
			failures = 0
			err = c.session(ctx, ws)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("connection lost", "error", err)
		}

		if failures >= c.maxAttempts {
			c.mu.Lock()
			c.offline = true
			c.mu.Unlock()
			c.logger.Error("giving up, continuing offline", "attempts", failures)
			return ErrOffline
		}

		timer := time.NewTimer(c.backoff(failures))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// backoff returns the wait before the next dial after failures
// consecutive failed dials.
func (c *Client) backoff(failures int) time.Duration {
	d := c.baseDelay
	for i := 1; i < failures; i++ {
		d *= 2
		if d >= c.maxDelay {
			return c.maxDelay
		}
	}
	if d > c.maxDelay {
		d = c.maxDelay
	}
	return d
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	ws, _, err := c.dialer.DialContext(ctx, c.url, c.header)
	return ws, err
}

// session joins the room on ws and applies server events until the
// connection fails.
func (c *Client) session(ctx context.Context, ws *websocket.Conn) error {
	stop := context.AfterFunc(ctx, func() { ws.Close() })
	defer stop()

	// Mutations are only forwarded once the join is on the wire.
	if err := c.write(ws, protocol.JoinRoom{RoomID: c.roomID}); err != nil {
		ws.Close()
		return err
	}
	c.mu.Lock()
	c.ws = ws
	c.mu.Unlock()
	c.notifyState(true)
	c.logger.Info("connected")

	defer func() {
		c.mu.Lock()
		c.ws = nil
		c.mu.Unlock()
		ws.Close()
		c.notifyState(false)
	}()

	for {
		_, msg, err := ws.ReadMessage()
		if err != nil {
			return err
		}
		out, err := protocol.DecodeOutbound(msg)
		if err != nil {
			c.logger.Warn("undecodable server frame", "error", err)
			continue
		}
		c.apply(out)
		if c.onEvent != nil {
			c.onEvent(out)
		}
	}
}

func (c *Client) notifyState(connected bool) {
	if c.onState != nil {
		c.onState(connected)
	}
}

// apply folds a server event into the mirror.
func (c *Client) apply(out protocol.Outbound) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch e := out.(type) {
	case protocol.RoomState:
		c.room = board.FromSnapshot(e.Snapshot)
	case protocol.NoteUpdated:
		c.room.UpsertNote(e.Note)
	case protocol.NoteDeleted:
		c.room.DeleteNote(e.NoteID)
	case protocol.ConnectionUpdated:
		c.room.UpsertConnection(e.Connection)
	case protocol.ConnectionDeleted:
		c.room.DeleteConnection(e.ConnectionID)
	case protocol.RoomNameUpdated:
		c.room.SetName(e.Name)
	case protocol.ErrorEvent:
		c.logger.Warn("server rejected event", "code", e.Code, "message", e.Message)
	}
}

// UpdateNote creates or replaces a note locally and sends it if connected.
func (c *Client) UpdateNote(n board.Note) error {
	c.mu.Lock()
	c.room.UpsertNote(n)
	c.mu.Unlock()
	return c.send(protocol.UpdateNote{RoomID: c.roomID, Note: n})
}

// DeleteNote removes a note locally and sends the deletion if connected.
func (c *Client) DeleteNote(noteID string) error {
	c.mu.Lock()
	c.room.DeleteNote(noteID)
	c.mu.Unlock()
	return c.send(protocol.DeleteNote{RoomID: c.roomID, NoteID: noteID})
}

// UpdateConnection creates or replaces a connection locally and sends it if
// connected.
func (c *Client) UpdateConnection(conn board.Connection) error {
	c.mu.Lock()
	c.room.UpsertConnection(conn)
	c.mu.Unlock()
	return c.send(protocol.UpdateConnection{RoomID: c.roomID, Connection: conn})
}

// DeleteConnection removes a connection locally and sends the deletion if
// connected.
func (c *Client) DeleteConnection(connectionID string) error {
	c.mu.Lock()
	c.room.DeleteConnection(connectionID)
	c.mu.Unlock()
	return c.send(protocol.DeleteConnection{RoomID: c.roomID, ConnectionID: connectionID})
}

// SetRoomName renames the room locally and sends it if connected.
func (c *Client) SetRoomName(name string) error {
	c.mu.Lock()
	c.room.SetName(name)
	c.mu.Unlock()
	return c.send(protocol.UpdateRoomName{RoomID: c.roomID, Name: &name})
}

// MoveCursor shares the cursor position. It has no local effect and is
// dropped while disconnected.
func (c *Client) MoveCursor(pos board.Position) error {
	return c.send(protocol.CursorMove{RoomID: c.roomID, Position: &pos})
}

// send writes in to the current connection. While disconnected it is a
// no-op: the change stays local.
func (c *Client) send(in protocol.Inbound) error {
	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()
	if ws == nil {
		return nil
	}
	return c.write(ws, in)
}

func (c *Client) write(ws *websocket.Conn, in protocol.Inbound) error {
	frame, err := protocol.Encode(in)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return ws.WriteMessage(websocket.TextMessage, frame)
}
