package router

import (
	"context"

	"github.com/balco-dev/balco/pkg/protocol"
	"github.com/balco-dev/balco/pkg/session"
)

// Outcome summarizes how an event was handled.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeMalformed Outcome = "malformed"
	OutcomeFailed    Outcome = "failed"
)

// Context carries one event through the middleware chain. It is only
// valid during the handler call.
type Context struct {
	std     context.Context
	peer    session.Peer
	frame   []byte
	event   string
	roomID  string
	inbound protocol.Inbound
	outcome Outcome
	fanout  int
	values  map[any]any
}

func newContext(std context.Context, peer session.Peer, frame []byte) *Context {
	return &Context{
		std:   std,
		peer:  peer,
		frame: frame,
		event: protocol.PeekEvent(frame),
	}
}

// StdContext returns the standard context for the event.
func (c *Context) StdContext() context.Context { return c.std }

// SetStdContext replaces the standard context seen by later handlers,
// e.g. with one carrying a trace span.
func (c *Context) SetStdContext(ctx context.Context) { c.std = ctx }

// Peer returns the connection that sent the event.
func (c *Context) Peer() session.Peer { return c.peer }

// SessionID returns the sending connection's id.
func (c *Context) SessionID() string {
	if c.peer == nil {
		return ""
	}
	return c.peer.ID()
}

// Frame returns the raw frame. It is nil for disconnect.
func (c *Context) Frame() []byte { return c.frame }

// Event returns the event name. Before decoding it is the name claimed by
// the envelope, which may be unknown or empty.
func (c *Context) Event() string { return c.event }

// RoomID returns the room the event targets, once decoded.
func (c *Context) RoomID() string { return c.roomID }

// Inbound returns the decoded event, or nil if decoding failed or has not
// happened yet.
func (c *Context) Inbound() protocol.Inbound { return c.inbound }

// Outcome returns how the event was handled. It is set by the time the
// innermost handler returns.
func (c *Context) Outcome() Outcome { return c.outcome }

// SetOutcome overrides the outcome, e.g. after recovering a panic.
func (c *Context) SetOutcome(o Outcome) { c.outcome = o }

// Fanout returns how many peers received the resulting broadcast.
func (c *Context) Fanout() int { return c.fanout }

// SetValue stores a request-scoped value.
func (c *Context) SetValue(key, value any) {
	if c.values == nil {
		c.values = make(map[any]any)
	}
	c.values[key] = value
}

// Value returns a value stored with SetValue.
func (c *Context) Value(key any) any {
	return c.values[key]
}

// HandlerFunc handles one event.
type HandlerFunc func(c *Context) error

// Middleware wraps a HandlerFunc.
type Middleware func(next HandlerFunc) HandlerFunc

// Chain composes middleware so the first one listed runs outermost.
func Chain(h HandlerFunc, mws ...Middleware) HandlerFunc {
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i] != nil {
			h = mws[i](h)
		}
	}
	return h
}
