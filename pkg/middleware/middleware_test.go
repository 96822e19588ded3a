package middleware

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/balco-dev/balco/pkg/board"
	"github.com/balco-dev/balco/pkg/protocol"
	"github.com/balco-dev/balco/pkg/roomstore"
	"github.com/balco-dev/balco/pkg/router"
	"github.com/balco-dev/balco/pkg/session"
)

type stubPeer struct {
	id string

	mu     sync.Mutex
	frames [][]byte
}

func (p *stubPeer) ID() string { return p.id }

func (p *stubPeer) Send(frame []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frames = append(p.frames, frame)
	return nil
}

func (p *stubPeer) Close(error) {}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRouter(opts ...router.Option) *router.Router {
	store := roomstore.New(roomstore.NewMemoryBackend(), roomstore.WithLogger(quietLogger()))
	opts = append([]router.Option{router.WithLogger(quietLogger())}, opts...)
	return router.New(store, session.NewRegistry(), opts...)
}

func handle(t *testing.T, r *router.Router, p session.Peer, in protocol.Inbound) error {
	t.Helper()
	frame, err := protocol.Encode(in)
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}
	return r.HandleMessage(context.Background(), p, frame)
}

func noteUpdate(roomID, noteID string) protocol.UpdateNote {
	return protocol.UpdateNote{RoomID: roomID, Note: board.Note{ID: noteID, Title: "t"}}
}

func TestChain_OrderIsOutermostFirst(t *testing.T) {
	var order []string
	mark := func(name string) router.Middleware {
		return func(next router.HandlerFunc) router.HandlerFunc {
			return func(c *router.Context) error {
				order = append(order, name)
				return next(c)
			}
		}
	}

	r := newTestRouter(router.WithMiddleware(Recover(quietLogger()), mark("a"), mark("b")))
	if err := handle(t, r, &stubPeer{id: "A"}, protocol.JoinRoom{RoomID: "r1"}); err != nil {
		t.Fatalf("join error: %v", err)
	}
	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Fatalf("order = %v, want [a b]", order)
	}
}
