// Package session tracks which connections belong to which rooms.
//
// A Registry answers "who else is in room R" for broadcasts. Joining is
// additive: a peer that joins a second room stays in the first. There is no
// explicit leave; Remove drops a peer from every room when its connection
// ends.
package session

import (
	"sort"
	"sync"
)

// Peer is one client connection as the registry and router see it.
type Peer interface {
	// ID returns the connection's unique identifier.
	ID() string

	// Send queues a frame for delivery. It must not block.
	Send(frame []byte) error

	// Close terminates the connection with the given reason.
	Close(reason error)
}

// Registry maps rooms to member peers. It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	peers map[string]Peer
	rooms map[string]map[string]Peer // room id -> peer id -> peer
	joins map[string][]string        // peer id -> room ids, in join order
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		peers: make(map[string]Peer),
		rooms: make(map[string]map[string]Peer),
		joins: make(map[string][]string),
	}
}

// Register records a connected peer that has not joined a room yet.
func (r *Registry) Register(p Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.peers[p.ID()] = p
}

// Join adds p to roomID's members, registering it if needed. It reports
// whether p was newly added to that room.
func (r *Registry) Join(p Peer, roomID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := p.ID()
	r.peers[id] = p

	members, ok := r.rooms[roomID]
	if !ok {
		members = make(map[string]Peer)
		r.rooms[roomID] = members
	}
	if _, already := members[id]; already {
		return false
	}
	members[id] = p
	r.joins[id] = append(r.joins[id], roomID)
	return true
}

// Remove forgets a peer and drops it from every room it joined. It returns
// the rooms it was in.
func (r *Registry) Remove(peerID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	rooms := r.joins[peerID]
	for _, roomID := range rooms {
		members := r.rooms[roomID]
		delete(members, peerID)
		if len(members) == 0 {
			delete(r.rooms, roomID)
		}
	}
	delete(r.joins, peerID)
	delete(r.peers, peerID)
	return rooms
}

// Members returns a room's peers, ordered by id.
func (r *Registry) Members(roomID string) []Peer {
	r.mu.RLock()
	members := make([]Peer, 0, len(r.rooms[roomID]))
	for _, p := range r.rooms[roomID] {
		members = append(members, p)
	}
	r.mu.RUnlock()

	sort.Slice(members, func(i, j int) bool { return members[i].ID() < members[j].ID() })
	return members
}

// IsMember reports whether a peer has joined a room. It serves callers that
// inspect membership from outside the router.
func (r *Registry) IsMember(roomID, peerID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rooms[roomID][peerID]
	return ok
}

// RoomsOf returns the rooms a peer joined, in join order.
func (r *Registry) RoomsOf(peerID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.joins[peerID]...)
}

// Failure is a peer a broadcast could not reach.
type Failure struct {
	Peer Peer
	Err  error
}

// Broadcast sends frame to every member of roomID except the peer with id
// exceptID. It returns how many peers accepted the frame and the peers that
// refused it; the caller decides what to do with those.
func (r *Registry) Broadcast(roomID, exceptID string, frame []byte) (delivered int, failed []Failure) {
	for _, p := range r.Members(roomID) {
		if p.ID() == exceptID {
			continue
		}
		if err := p.Send(frame); err != nil {
			failed = append(failed, Failure{Peer: p, Err: err})
			continue
		}
		delivered++
	}
	return delivered, failed
}

// Count returns the number of registered peers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

// RoomCount returns the number of rooms with at least one member.
func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// Peers returns every registered peer, ordered by id.
func (r *Registry) Peers() []Peer {
	r.mu.RLock()
	peers := make([]Peer, 0, len(r.peers))
	for _, p := range r.peers {
		peers = append(peers, p)
	}
	r.mu.RUnlock()

	sort.Slice(peers, func(i, j int) bool { return peers[i].ID() < peers[j].ID() })
	return peers
}
