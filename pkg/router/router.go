package router

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/balco-dev/balco/pkg/protocol"
	"github.com/balco-dev/balco/pkg/roomstore"
	"github.com/balco-dev/balco/pkg/session"
)

// DefaultInboxSize is the number of events that may wait for dispatch.
const DefaultInboxSize = 1024

// Hooks observe side effects the middleware chain cannot see.
type Hooks struct {
	// OnPersistError is called when a mutation could not be persisted.
	OnPersistError func(roomID string, err error)

	// OnBroadcast is called after every fan-out with the number of peers
	// reached and the number that had to be dropped.
	OnBroadcast func(event string, delivered, dropped int)

	// OnMembership is called after a join or disconnect with the current
	// number of connected peers and rooms with members.
	OnMembership func(peers, rooms int)
}

// Router is the single dispatcher for every room.
type Router struct {
	store    *roomstore.Store
	registry *session.Registry
	logger   *slog.Logger
	hooks    Hooks
	mws      []Middleware
	handler  HandlerFunc

	inbox     chan job
	inboxSize int
	stopped   chan struct{}
	stopOnce  sync.Once
	running   atomic.Bool
}

type job struct {
	ctx        context.Context
	peer       session.Peer
	frame      []byte
	disconnect bool
}

// Option configures a Router.
type Option func(*Router)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMiddleware appends middleware to the chain. The first listed runs
// outermost.
func WithMiddleware(mws ...Middleware) Option {
	return func(r *Router) {
		r.mws = append(r.mws, mws...)
	}
}

// WithInboxSize sets how many events may wait for dispatch before Submit
// blocks. Default: 1024.
func WithInboxSize(n int) Option {
	return func(r *Router) {
		if n > 0 {
			r.inboxSize = n
		}
	}
}

// WithHooks sets side-effect observers.
func WithHooks(h Hooks) Option {
	return func(r *Router) {
		r.hooks = h
	}
}

// New creates a router over store and registry.
func New(store *roomstore.Store, registry *session.Registry, opts ...Option) *Router {
	r := &Router{
		store:     store,
		registry:  registry,
		logger:    slog.Default(),
		inboxSize: DefaultInboxSize,
		stopped:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "router")
	r.inbox = make(chan job, r.inboxSize)
	r.handler = Chain(r.dispatch, r.mws...)
	return r
}

// Store returns the room store.
func (r *Router) Store() *roomstore.Store { return r.store }

// Registry returns the session registry.
func (r *Router) Registry() *session.Registry { return r.registry }

// Run dispatches queued events until ctx is done or Stop is called. Events
// still queued when it returns are dropped.
func (r *Router) Run(ctx context.Context) error {
	if !r.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer r.Stop()

	r.logger.Debug("dispatch loop started")
	for {
		select {
		case <-ctx.Done():
			r.logger.Debug("dispatch loop stopped", "reason", ctx.Err())
			return nil
		case <-r.stopped:
			return nil
		case j := <-r.inbox:
			r.process(j)
		}
	}
}

// Stop ends Run. Later Submit calls return ErrRouterClosed.
func (r *Router) Stop() {
	r.stopOnce.Do(func() { close(r.stopped) })
}

// Done is closed once the router has stopped.
func (r *Router) Done() <-chan struct{} { return r.stopped }

// Submit queues a frame from peer for dispatch, blocking while the inbox is
// full.
func (r *Router) Submit(ctx context.Context, peer session.Peer, frame []byte) error {
	return r.enqueue(ctx, job{ctx: context.WithoutCancel(ctx), peer: peer, frame: frame})
}

// Disconnect queues membership cleanup for peer behind any events it
// already submitted. If the router has stopped the cleanup happens
// immediately.
func (r *Router) Disconnect(ctx context.Context, peer session.Peer) {
	err := r.enqueue(ctx, job{ctx: context.WithoutCancel(ctx), peer: peer, disconnect: true})
	if err != nil {
		r.registry.Remove(peer.ID())
	}
}

func (r *Router) enqueue(ctx context.Context, j job) error {
	select {
	case <-r.stopped:
		return ErrRouterClosed
	default:
	}
	select {
	case r.inbox <- j:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-r.stopped:
		return ErrRouterClosed
	}
}

func (r *Router) process(j job) {
	if j.disconnect {
		r.HandleDisconnect(j.ctx, j.peer)
		return
	}
	r.HandleMessage(j.ctx, j.peer, j.frame)
}

// HandleMessage runs one frame through the middleware chain to completion.
// Only the dispatch loop calls it in production; tests may call it directly
// from a single goroutine.
func (r *Router) HandleMessage(ctx context.Context, peer session.Peer, frame []byte) error {
	c := newContext(ctx, peer, frame)
	err := r.handler(c)
	r.logOutcome(c, err)
	return err
}

// HandleDisconnect runs the synthesized disconnect event for peer.
func (r *Router) HandleDisconnect(ctx context.Context, peer session.Peer) error {
	c := newContext(ctx, peer, nil)
	c.event = protocol.EventDisconnect
	c.inbound = protocol.Disconnect{}
	err := r.handler(c)
	r.logOutcome(c, err)
	return err
}

func (r *Router) logOutcome(c *Context, err error) {
	if err == nil {
		return
	}
	attrs := []any{"event", c.Event(), "room_id", c.RoomID(), "session_id", c.SessionID(), "error", err}
	switch c.Outcome() {
	case OutcomeIgnored:
		r.logger.Debug("event ignored", attrs...)
	case OutcomeMalformed:
		r.logger.Warn("malformed event", attrs...)
	default:
		r.logger.Error("event failed", attrs...)
	}
}

// dispatch is the innermost handler.
func (r *Router) dispatch(c *Context) error {
	if c.inbound == nil {
		in, err := protocol.Decode(c.frame)
		if err != nil {
			c.outcome = OutcomeMalformed
			r.reject(c, err)
			return err
		}
		c.inbound = in
		c.event = in.Event()
	}
	c.roomID = c.inbound.Room()

	err := r.apply(c)
	switch {
	case err == nil:
		c.outcome = OutcomeApplied
	case errors.Is(err, ErrRoomNotFound):
		c.outcome = OutcomeIgnored
	default:
		c.outcome = OutcomeFailed
	}
	return err
}

// reject tells the sender its frame was not accepted.
func (r *Router) reject(c *Context, cause error) {
	if c.peer == nil {
		return
	}
	frame, err := protocol.ErrorFrame(cause)
	if err != nil {
		return
	}
	if err := c.peer.Send(frame); err != nil {
		r.dropPeer(c.peer, err)
	}
}
