package app

import (
	"sync"

	"github.com/google/uuid"

	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/protocol"
)

// Sink is the outbound half of a transport connection. Send must not block;
// implementations queue into a buffered channel and report false when the
// client is too slow to keep up.
type Sink interface {
	Send(msg protocol.Outbound) bool
}

type binding struct {
	roomID string
	userID string // empty until authenticated
	sink   Sink
}

// Registry tracks live transport connections per room and their identity
// bindings. It has its own lock, independent of any room's, because
// broadcast iteration and register/unregister run concurrently. Fan-out
// callers get a snapshot so the map is never iterated while mutated.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*binding
	rooms map[string]map[string]*binding
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[string]*binding),
		rooms: make(map[string]map[string]*binding),
	}
}

// Register adds a connection to a room and returns its connection ID.
func (g *Registry) Register(roomID string, sink Sink) string {
	connID := uuid.NewString()

	g.mu.Lock()
	defer g.mu.Unlock()
	b := &binding{roomID: roomID, sink: sink}
	g.conns[connID] = b
	if g.rooms[roomID] == nil {
		g.rooms[roomID] = make(map[string]*binding)
	}
	g.rooms[roomID][connID] = b
	return connID
}

// Bind associates an authenticated identity with a registered connection.
func (g *Registry) Bind(connID, userID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	b, ok := g.conns[connID]
	if !ok {
		return domain.ErrUnauthenticated
	}
	b.userID = userID
	return nil
}

// Lookup resolves a connection to its room and bound identity.
func (g *Registry) Lookup(connID string) (roomID, userID string, ok bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	b, ok := g.conns[connID]
	if !ok {
		return "", "", false
	}
	return b.roomID, b.userID, true
}

// Unregister removes the transport mapping without touching the participant
// record. last is true when no other connection still represents the bound
// identity in the room, i.e. a leave broadcast is due.
func (g *Registry) Unregister(connID string) (roomID, userID string, last bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	b, ok := g.conns[connID]
	if !ok {
		return "", "", false
	}
	delete(g.conns, connID)
	if room, ok := g.rooms[b.roomID]; ok {
		delete(room, connID)
		if len(room) == 0 {
			delete(g.rooms, b.roomID)
		}
	}

	if b.userID == "" {
		return b.roomID, "", false
	}
	for _, other := range g.rooms[b.roomID] {
		if other.userID == b.userID {
			return b.roomID, b.userID, false
		}
	}
	return b.roomID, b.userID, true
}

// BoundSinks returns a snapshot of the authenticated connections in a room,
// safe to iterate while registrations churn.
func (g *Registry) BoundSinks(roomID string) []Sink {
	g.mu.RLock()
	defer g.mu.RUnlock()
	sinks := make([]Sink, 0, len(g.rooms[roomID]))
	for _, b := range g.rooms[roomID] {
		if b.userID != "" {
			sinks = append(sinks, b.sink)
		}
	}
	return sinks
}

// SinkFor returns the outbound half of a single connection, for messages
// addressed to the originating client only.
func (g *Registry) SinkFor(connID string) Sink {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if b, ok := g.conns[connID]; ok {
		return b.sink
	}
	return nil
}

// HasConnections reports whether any connection, bound or not, remains.
func (g *Registry) HasConnections(roomID string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.rooms[roomID]) > 0
}
