package router

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/balco-dev/balco/pkg/board"
	"github.com/balco-dev/balco/pkg/protocol"
	"github.com/balco-dev/balco/pkg/roomstore"
	"github.com/balco-dev/balco/pkg/session"
)

type fakePeer struct {
	id string

	mu      sync.Mutex
	frames  [][]byte
	sendErr error
	closed  error
}

func newPeer(id string) *fakePeer { return &fakePeer{id: id} }

func (p *fakePeer) ID() string { return p.id }

func (p *fakePeer) Send(frame []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sendErr != nil {
		return p.sendErr
	}
	p.frames = append(p.frames, append([]byte(nil), frame...))
	return nil
}

func (p *fakePeer) Close(reason error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if reason == nil {
		reason = errors.New("closed")
	}
	p.closed = reason
}

func (p *fakePeer) received() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]byte(nil), p.frames...)
}

func (p *fakePeer) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed != nil
}

// last decodes the most recent frame the peer received.
func (p *fakePeer) last(t *testing.T) protocol.Outbound {
	t.Helper()
	frames := p.received()
	if len(frames) == 0 {
		t.Fatalf("peer %s received nothing", p.id)
	}
	out, err := protocol.DecodeOutbound(frames[len(frames)-1])
	if err != nil {
		t.Fatalf("DecodeOutbound error: %v", err)
	}
	return out
}

type failingBackend struct{}

func (failingBackend) Load(ctx context.Context) (map[string]board.Snapshot, error) {
	return map[string]board.Snapshot{}, nil
}

func (failingBackend) Save(ctx context.Context, rooms map[string]board.Snapshot) error {
	return errors.New("disk full")
}

func (failingBackend) Close() error { return nil }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRouter(t *testing.T, backend roomstore.Backend, opts ...Option) *Router {
	t.Helper()
	if backend == nil {
		backend = roomstore.NewMemoryBackend()
	}
	store := roomstore.New(backend, roomstore.WithLogger(quietLogger()))
	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	return New(store, session.NewRegistry(), opts...)
}

func send(t *testing.T, r *Router, p *fakePeer, in protocol.Inbound) error {
	t.Helper()
	frame, err := protocol.Encode(in)
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}
	return r.HandleMessage(context.Background(), p, frame)
}

func sendRaw(r *Router, p *fakePeer, frame string) error {
	return r.HandleMessage(context.Background(), p, []byte(frame))
}

func TestRouter_FirstJoinReceivesEmptySnapshot(t *testing.T) {
	r := newTestRouter(t, nil)
	a := newPeer("A")

	if err := sendRaw(r, a, `{"event":"join-room","data":"abc123"}`); err != nil {
		t.Fatalf("join error: %v", err)
	}

	frames := a.received()
	if len(frames) != 1 {
		t.Fatalf("A received %d frames, want 1", len(frames))
	}
	want := `{"event":"room-state","data":{"name":"Untitled Room","notes":[],"connections":[]}}`
	if string(frames[0]) != want {
		t.Fatalf("room-state = %s, want %s", frames[0], want)
	}
	if !r.Store().Has("abc123") {
		t.Fatal("join must create the room")
	}
}

func TestRouter_JoinAnnouncesToOthersOnly(t *testing.T) {
	r := newTestRouter(t, nil)
	a, b := newPeer("A"), newPeer("B")
	send(t, r, a, protocol.JoinRoom{RoomID: "abc123"})
	send(t, r, b, protocol.JoinRoom{RoomID: "abc123"})

	joined, ok := a.last(t).(protocol.UserJoined)
	if !ok || joined.UserID != "B" {
		t.Fatalf("A last = %#v, want user-joined{B}", a.last(t))
	}
	if _, ok := b.last(t).(protocol.RoomState); !ok {
		t.Fatalf("B last = %#v, want room-state", b.last(t))
	}
	if len(b.received()) != 1 {
		t.Fatalf("B received %d frames, want only its snapshot", len(b.received()))
	}
}

func TestRouter_UpdateNoteReachesOthersExactly(t *testing.T) {
	r := newTestRouter(t, nil)
	a, b := newPeer("A"), newPeer("B")
	send(t, r, a, protocol.JoinRoom{RoomID: "abc123"})
	send(t, r, b, protocol.JoinRoom{RoomID: "abc123"})
	aBefore := len(a.received())

	note := `{"id":"note-1","title":"X","position":{"x":10,"y":20},"color":"#ffeb3b"}`
	if err := sendRaw(r, a, `{"event":"update-note","data":{"roomId":"abc123","note":`+note+`}}`); err != nil {
		t.Fatalf("update-note error: %v", err)
	}

	if len(a.received()) != aBefore {
		t.Fatal("sender received an echo of its own update")
	}

	var env protocol.Envelope
	if err := json.Unmarshal(b.received()[len(b.received())-1], &env); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	if env.Event != protocol.EventNoteUpdated {
		t.Fatalf("B event = %q, want note-updated", env.Event)
	}
	var got, want map[string]any
	json.Unmarshal(env.Data, &got)
	json.Unmarshal([]byte(note), &want)
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("B note = %v, want %v", got, want)
	}
}

func TestRouter_UpdateNoteKeepsEmptyAndMissingMembers(t *testing.T) {
	tests := []struct {
		name string
		note string
	}{
		{"toolbar note", `{"id":"note-1","content":"","title":"New Note","color":"#ffeb3b","position":{"x":1.5,"y":2}}`},
		{"no position", `{"id":"note-2","title":"","content":"hi"}`},
		{"null members", `{"id":"note-3","color":null,"position":null}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRouter(t, nil)
			a, b := newPeer("A"), newPeer("B")
			send(t, r, a, protocol.JoinRoom{RoomID: "abc123"})
			send(t, r, b, protocol.JoinRoom{RoomID: "abc123"})

			if err := sendRaw(r, a, `{"event":"update-note","data":{"roomId":"abc123","note":`+tt.note+`}}`); err != nil {
				t.Fatalf("update-note error: %v", err)
			}

			var env protocol.Envelope
			if err := json.Unmarshal(b.received()[len(b.received())-1], &env); err != nil {
				t.Fatalf("Unmarshal error: %v", err)
			}
			var got, want map[string]any
			json.Unmarshal(env.Data, &got)
			json.Unmarshal([]byte(tt.note), &want)
			if !reflect.DeepEqual(got, want) {
				t.Fatalf("B note = %s, want %s", env.Data, tt.note)
			}

			snap, _ := r.Store().Get("abc123")
			stored, err := json.Marshal(snap.Notes[0])
			if err != nil {
				t.Fatalf("Marshal error: %v", err)
			}
			var kept map[string]any
			json.Unmarshal(stored, &kept)
			if !reflect.DeepEqual(kept, want) {
				t.Fatalf("stored note = %s, want %s", stored, tt.note)
			}
		})
	}
}

func TestRouter_DeleteUnknownConnectionStillBroadcasts(t *testing.T) {
	r := newTestRouter(t, nil)
	a, b := newPeer("A"), newPeer("B")
	send(t, r, a, protocol.JoinRoom{RoomID: "abc123"})
	send(t, r, b, protocol.JoinRoom{RoomID: "abc123"})

	if err := send(t, r, a, protocol.DeleteConnection{RoomID: "abc123", ConnectionID: "conn-never"}); err != nil {
		t.Fatalf("delete-connection error: %v", err)
	}

	deleted, ok := b.last(t).(protocol.ConnectionDeleted)
	if !ok || deleted.ConnectionID != "conn-never" {
		t.Fatalf("B last = %#v, want connection-deleted{conn-never}", b.last(t))
	}
	frames := b.received()
	if string(frames[len(frames)-1]) != `{"event":"connection-deleted","data":"conn-never"}` {
		t.Fatalf("frame = %s", frames[len(frames)-1])
	}
}

func TestRouter_JoinIdempotentSnapshots(t *testing.T) {
	r := newTestRouter(t, nil)
	a := newPeer("A")
	send(t, r, a, protocol.JoinRoom{RoomID: "r"})
	send(t, r, a, protocol.UpdateNote{RoomID: "r", Note: board.Note{ID: "n1", Title: "t"}})

	c, d := newPeer("C"), newPeer("D")
	send(t, r, c, protocol.JoinRoom{RoomID: "r"})
	send(t, r, d, protocol.JoinRoom{RoomID: "r"})

	var snapC, snapD protocol.RoomState
	for _, pair := range []struct {
		p   *fakePeer
		dst *protocol.RoomState
	}{{c, &snapC}, {d, &snapD}} {
		out, err := protocol.DecodeOutbound(pair.p.received()[0])
		if err != nil {
			t.Fatalf("DecodeOutbound error: %v", err)
		}
		*pair.dst = out.(protocol.RoomState)
	}
	if !reflect.DeepEqual(snapC, snapD) {
		t.Fatalf("snapshots differ: %+v vs %+v", snapC, snapD)
	}
}

func TestRouter_SnapshotMatchesStore(t *testing.T) {
	r := newTestRouter(t, nil)
	a := newPeer("A")
	send(t, r, a, protocol.JoinRoom{RoomID: "r"})
	for _, id := range []string{"n1", "n2", "n3"} {
		send(t, r, a, protocol.UpdateNote{RoomID: "r", Note: board.Note{ID: id}})
	}
	send(t, r, a, protocol.DeleteNote{RoomID: "r", NoteID: "n2"})
	send(t, r, a, protocol.UpdateConnection{RoomID: "r", Connection: board.Connection{ID: "c1", From: "n1", To: "n2"}})

	b := newPeer("B")
	send(t, r, b, protocol.JoinRoom{RoomID: "r"})
	state := b.last(t).(protocol.RoomState)

	stored, _ := r.Store().Get("r")
	if !reflect.DeepEqual(state.NoteIDs(), stored.NoteIDs()) {
		t.Fatalf("snapshot notes %v, store %v", state.NoteIDs(), stored.NoteIDs())
	}
	if !reflect.DeepEqual(state.ConnectionIDs(), stored.ConnectionIDs()) {
		t.Fatalf("snapshot connections %v, store %v", state.ConnectionIDs(), stored.ConnectionIDs())
	}
	if !reflect.DeepEqual(state.NoteIDs(), []string{"n1", "n3"}) {
		t.Fatalf("NoteIDs = %v", state.NoteIDs())
	}
}

func TestRouter_UpsertLastWriteWins(t *testing.T) {
	r := newTestRouter(t, nil)
	a := newPeer("A")
	send(t, r, a, protocol.JoinRoom{RoomID: "r"})

	n1 := board.Note{ID: "n", Title: "first", Color: "#fff"}
	n2 := board.Note{ID: "n", Title: "second", Position: board.Position{X: 5}}
	send(t, r, a, protocol.UpdateNote{RoomID: "r", Note: n1})
	send(t, r, a, protocol.UpdateNote{RoomID: "r", Note: n2})

	snap, _ := r.Store().Get("r")
	if len(snap.Notes) != 1 || !reflect.DeepEqual(snap.Notes[0], n2) {
		t.Fatalf("notes = %+v, want exactly %+v", snap.Notes, n2)
	}
}

func TestRouter_MissingRoomIgnored(t *testing.T) {
	r := newTestRouter(t, nil)
	a := newPeer("A")

	err := send(t, r, a, protocol.UpdateNote{RoomID: "ghost", Note: board.Note{ID: "n"}})
	if !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("error = %v, want ErrRoomNotFound", err)
	}
	for _, in := range []protocol.Inbound{
		protocol.DeleteNote{RoomID: "ghost", NoteID: "n"},
		protocol.UpdateConnection{RoomID: "ghost", Connection: board.Connection{ID: "c"}},
		protocol.DeleteConnection{RoomID: "ghost", ConnectionID: "c"},
		protocol.UpdateRoomName{RoomID: "ghost", Name: new(string)},
		protocol.CursorMove{RoomID: "ghost", Position: &board.Position{}},
	} {
		if err := send(t, r, a, in); !errors.Is(err, ErrRoomNotFound) {
			t.Fatalf("%s error = %v, want ErrRoomNotFound", in.Event(), err)
		}
	}
	if r.Store().Has("ghost") {
		t.Fatal("mutations must not create rooms")
	}
	if len(a.received()) != 0 {
		t.Fatalf("sender received %d frames for ignored events", len(a.received()))
	}
}

func TestRouter_MalformedEventRepliesToSenderOnly(t *testing.T) {
	r := newTestRouter(t, nil)
	a, b := newPeer("A"), newPeer("B")
	send(t, r, a, protocol.JoinRoom{RoomID: "r"})
	send(t, r, b, protocol.JoinRoom{RoomID: "r"})
	bBefore := len(b.received())

	err := sendRaw(r, a, `{"event":"update-note","data":{"roomId":"r","note":{"title":"no id"}}}`)
	if !errors.Is(err, protocol.ErrMalformedPayload) {
		t.Fatalf("error = %v, want ErrMalformedPayload", err)
	}
	ev, ok := a.last(t).(protocol.ErrorEvent)
	if !ok || ev.Code != protocol.CodeMalformedPayload {
		t.Fatalf("A last = %#v, want error event", a.last(t))
	}
	if len(b.received()) != bBefore {
		t.Fatal("malformed event leaked to other members")
	}
	snap, _ := r.Store().Get("r")
	if len(snap.Notes) != 0 {
		t.Fatalf("malformed note stored: %+v", snap.Notes)
	}

	if err := sendRaw(r, a, `{"event":"disconnect"}`); !errors.Is(err, protocol.ErrReservedEvent) {
		t.Fatalf("client disconnect error = %v, want ErrReservedEvent", err)
	}
	if !r.Registry().IsMember("r", "A") {
		t.Fatal("client-sent disconnect must not remove membership")
	}
}

func TestRouter_PersistFailureStillBroadcasts(t *testing.T) {
	var persistErrs []string
	r := newTestRouter(t, failingBackend{}, WithHooks(Hooks{
		OnPersistError: func(roomID string, err error) { persistErrs = append(persistErrs, roomID) },
	}))
	a, b := newPeer("A"), newPeer("B")

	send(t, r, a, protocol.JoinRoom{RoomID: "r"})
	send(t, r, b, protocol.JoinRoom{RoomID: "r"})
	if err := send(t, r, a, protocol.UpdateNote{RoomID: "r", Note: board.Note{ID: "n"}}); err != nil {
		t.Fatalf("update-note error = %v, persist failures must be swallowed", err)
	}

	if _, ok := b.last(t).(protocol.NoteUpdated); !ok {
		t.Fatalf("B last = %#v, want note-updated", b.last(t))
	}
	first, err := protocol.DecodeOutbound(a.received()[0])
	if err != nil {
		t.Fatalf("DecodeOutbound error: %v", err)
	}
	if _, ok := first.(protocol.RoomState); !ok {
		t.Fatalf("A first = %#v, joiner must get a snapshot even when persisting the new room fails", first)
	}
	if len(persistErrs) == 0 {
		t.Fatal("OnPersistError not called")
	}
	snap, _ := r.Store().Get("r")
	if len(snap.Notes) != 1 {
		t.Fatal("in-memory state must survive a persist failure")
	}
}

func TestRouter_SlowPeerDropped(t *testing.T) {
	r := newTestRouter(t, nil)
	a, slow := newPeer("A"), newPeer("S")
	send(t, r, a, protocol.JoinRoom{RoomID: "r"})
	send(t, r, slow, protocol.JoinRoom{RoomID: "r"})
	slow.mu.Lock()
	slow.sendErr = errors.New("send queue full")
	slow.mu.Unlock()

	send(t, r, a, protocol.UpdateRoomName{RoomID: "r", Name: strPtr("Renamed")})

	if !slow.isClosed() {
		t.Fatal("peer that could not take a broadcast should be closed")
	}
	if a.isClosed() {
		t.Fatal("sender must not be closed")
	}
}

func TestRouter_CursorRelayAndRename(t *testing.T) {
	r := newTestRouter(t, nil)
	a, b := newPeer("A"), newPeer("B")
	send(t, r, a, protocol.JoinRoom{RoomID: "r"})
	send(t, r, b, protocol.JoinRoom{RoomID: "r"})

	send(t, r, a, protocol.CursorMove{RoomID: "r", Position: &board.Position{X: 7, Y: 8}})
	cur, ok := b.last(t).(protocol.UserCursor)
	if !ok || cur.UserID != "A" || cur.Position != (board.Position{X: 7, Y: 8}) {
		t.Fatalf("B last = %#v, want user-cursor from A", b.last(t))
	}

	send(t, r, a, protocol.UpdateRoomName{RoomID: "r", Name: strPtr("Retro")})
	renamed, ok := b.last(t).(protocol.RoomNameUpdated)
	if !ok || renamed.Name != "Retro" {
		t.Fatalf("B last = %#v, want room-name-updated", b.last(t))
	}
	snap, _ := r.Store().Get("r")
	if snap.Name != "Retro" {
		t.Fatalf("Name = %q", snap.Name)
	}
}

func TestRouter_DisconnectStopsBroadcasts(t *testing.T) {
	r := newTestRouter(t, nil)
	a, b := newPeer("A"), newPeer("B")
	send(t, r, a, protocol.JoinRoom{RoomID: "r"})
	send(t, r, b, protocol.JoinRoom{RoomID: "r"})

	if err := r.HandleDisconnect(context.Background(), b); err != nil {
		t.Fatalf("HandleDisconnect error: %v", err)
	}
	before := len(b.received())
	send(t, r, a, protocol.DeleteNote{RoomID: "r", NoteID: "x"})
	if len(b.received()) != before {
		t.Fatal("disconnected peer still receives broadcasts")
	}
	if !r.Store().Has("r") {
		t.Fatal("disconnect must not touch room state")
	}
}

func TestRouter_RunPreservesPerPeerOrder(t *testing.T) {
	r := newTestRouter(t, nil, WithInboxSize(4))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runDone := make(chan error, 1)
	go func() { runDone <- r.Run(ctx) }()

	a := newPeer("A")
	submit := func(in protocol.Inbound) {
		frame, _ := protocol.Encode(in)
		if err := r.Submit(ctx, a, frame); err != nil {
			t.Fatalf("Submit error: %v", err)
		}
	}
	submit(protocol.JoinRoom{RoomID: "r"})
	for i := 0; i < 50; i++ {
		submit(protocol.UpdateNote{RoomID: "r", Note: board.Note{ID: "n", Title: "u" + strconv.Itoa(i)}})
	}
	r.Disconnect(ctx, a)

	deadline := time.After(2 * time.Second)
	for r.Registry().Count() != 0 || !r.Store().Has("r") {
		select {
		case <-deadline:
			t.Fatal("events not processed")
		case <-time.After(5 * time.Millisecond):
		}
	}

	snap, _ := r.Store().Get("r")
	if snap.Notes[0].Title != "u49" {
		t.Fatalf("final title = %q, want u49", snap.Notes[0].Title)
	}

	cancel()
	select {
	case err := <-runDone:
		if err != nil {
			t.Fatalf("Run error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}

	if err := r.Submit(context.Background(), a, []byte(`{}`)); !errors.Is(err, ErrRouterClosed) {
		t.Fatalf("Submit after stop error = %v, want ErrRouterClosed", err)
	}
}

func TestRouter_DisconnectAfterStopCleansUp(t *testing.T) {
	r := newTestRouter(t, nil)
	a := newPeer("A")
	send(t, r, a, protocol.JoinRoom{RoomID: "r"})
	r.Stop()

	r.Disconnect(context.Background(), a)
	if r.Registry().Count() != 0 {
		t.Fatal("Disconnect after Stop must remove the peer immediately")
	}
}

func TestRouter_RunTwice(t *testing.T) {
	r := newTestRouter(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go r.Run(ctx)
	defer cancel()

	deadline := time.Now().Add(time.Second)
	for !r.running.Load() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if err := r.Run(ctx); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second Run error = %v, want ErrAlreadyRunning", err)
	}
}

func TestRouter_MiddlewareSeesOutcome(t *testing.T) {
	var order []string
	var outcomes []Outcome
	trace := func(name string) Middleware {
		return func(next HandlerFunc) HandlerFunc {
			return func(c *Context) error {
				order = append(order, name)
				err := next(c)
				if name == "outer" {
					outcomes = append(outcomes, c.Outcome())
				}
				return err
			}
		}
	}
	r := newTestRouter(t, nil, WithMiddleware(trace("outer"), trace("inner")))
	a := newPeer("A")

	send(t, r, a, protocol.JoinRoom{RoomID: "r"})
	send(t, r, a, protocol.DeleteNote{RoomID: "missing", NoteID: "n"})
	sendRaw(r, a, `garbage`)
	r.HandleDisconnect(context.Background(), a)

	if !reflect.DeepEqual(order[:2], []string{"outer", "inner"}) {
		t.Fatalf("order = %v", order)
	}
	want := []Outcome{OutcomeApplied, OutcomeIgnored, OutcomeMalformed, OutcomeApplied}
	if !reflect.DeepEqual(outcomes, want) {
		t.Fatalf("outcomes = %v, want %v", outcomes, want)
	}
}

func strPtr(s string) *string { return &s }
