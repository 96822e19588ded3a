package router

import (
	"fmt"

	"github.com/balco-dev/balco/pkg/protocol"
	"github.com/balco-dev/balco/pkg/session"
)

// apply performs the state change for a decoded event and fans out the
// result. Mutations persist before broadcasting; a persist failure does not
// stop the broadcast.
func (r *Router) apply(c *Context) error {
	switch e := c.inbound.(type) {
	case protocol.JoinRoom:
		return r.join(c, e)

	case protocol.UpdateNote:
		if _, err := r.store.UpsertNote(e.RoomID, e.Note); err != nil {
			return err
		}
		r.persist(c)
		return r.fanout(c, func() ([]byte, error) { return protocol.NoteUpdatedFrame(e.Note) })

	case protocol.DeleteNote:
		// An id the room does not hold is still broadcast.
		if _, err := r.store.DeleteNote(e.RoomID, e.NoteID); err != nil {
			return err
		}
		r.persist(c)
		return r.fanout(c, func() ([]byte, error) { return protocol.NoteDeletedFrame(e.NoteID) })

	case protocol.UpdateConnection:
		if _, err := r.store.UpsertConnection(e.RoomID, e.Connection); err != nil {
			return err
		}
		r.persist(c)
		return r.fanout(c, func() ([]byte, error) { return protocol.ConnectionUpdatedFrame(e.Connection) })

	case protocol.DeleteConnection:
		if _, err := r.store.DeleteConnection(e.RoomID, e.ConnectionID); err != nil {
			return err
		}
		r.persist(c)
		return r.fanout(c, func() ([]byte, error) { return protocol.ConnectionDeletedFrame(e.ConnectionID) })

	case protocol.UpdateRoomName:
		if err := r.store.SetName(e.RoomID, *e.Name); err != nil {
			return err
		}
		r.persist(c)
		return r.fanout(c, func() ([]byte, error) { return protocol.RoomNameUpdatedFrame(*e.Name) })

	case protocol.CursorMove:
		if !r.store.Has(e.RoomID) {
			return ErrRoomNotFound
		}
		return r.fanout(c, func() ([]byte, error) { return protocol.UserCursorFrame(c.SessionID(), *e.Position) })

	case protocol.Disconnect:
		rooms := r.registry.Remove(c.SessionID())
		r.logger.Debug("session disconnected", "session_id", c.SessionID(), "rooms", len(rooms))
		r.membershipChanged()
		return nil

	default:
		return fmt.Errorf("router: no handler for %T", c.inbound)
	}
}

// join adds the sender to the room, creating it if needed, sends it the
// snapshot and announces it to the other members.
func (r *Router) join(c *Context, e protocol.JoinRoom) error {
	lookup, err := r.store.GetOrCreate(c.StdContext(), e.RoomID)
	if err != nil {
		if !lookup.Created {
			return err
		}
		r.persistFailed(e.RoomID, err)
	}

	r.registry.Join(c.peer, e.RoomID)
	r.membershipChanged()
	if lookup.Created {
		r.logger.Info("room created", "room_id", e.RoomID, "session_id", c.SessionID())
	}

	frame, err := protocol.RoomStateFrame(lookup.Room)
	if err != nil {
		return err
	}
	if err := c.peer.Send(frame); err != nil {
		r.dropPeer(c.peer, err)
		return nil
	}
	return r.fanout(c, func() ([]byte, error) { return protocol.UserJoinedFrame(c.SessionID()) })
}

func (r *Router) persist(c *Context) {
	if err := r.store.Persist(c.StdContext(), c.roomID); err != nil {
		r.persistFailed(c.roomID, err)
	}
}

func (r *Router) persistFailed(roomID string, err error) {
	r.logger.Error("persist failed", "room_id", roomID, "error", err)
	if r.hooks.OnPersistError != nil {
		r.hooks.OnPersistError(roomID, err)
	}
}

// fanout sends a frame to every member of the event's room except the
// sender. Members that cannot take the frame are dropped.
func (r *Router) fanout(c *Context, build func() ([]byte, error)) error {
	frame, err := build()
	if err != nil {
		return err
	}
	delivered, failed := r.registry.Broadcast(c.roomID, c.SessionID(), frame)
	for _, f := range failed {
		r.dropPeer(f.Peer, f.Err)
	}
	c.fanout = delivered
	if r.hooks.OnBroadcast != nil {
		r.hooks.OnBroadcast(c.event, delivered, len(failed))
	}
	return nil
}

// dropPeer closes a peer that could not accept a frame. It will reconnect
// and rejoin with a fresh snapshot.
func (r *Router) dropPeer(p session.Peer, err error) {
	r.logger.Warn("dropping peer", "session_id", p.ID(), "error", err)
	p.Close(err)
}

func (r *Router) membershipChanged() {
	if r.hooks.OnMembership != nil {
		r.hooks.OnMembership(r.registry.Count(), r.registry.RoomCount())
	}
}
