package gateway

import "sync"

// Hub tracks connections and game rooms. It is owned by the Gateway;
// nothing outside this package touches it.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]*Client
	rooms map[string]map[*Client]struct{}
}

func newHub() *Hub {
	return &Hub{
		conns: make(map[string]*Client),
		rooms: make(map[string]map[*Client]struct{}),
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.conns[c.id] = c
	h.mu.Unlock()
}

// Unregister drops the connection and removes it from every room.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	delete(h.conns, c.id)
	for gameID, members := range h.rooms {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, gameID)
		}
	}
	h.mu.Unlock()
}

// Client resolves a live connection by id, nil when gone.
func (h *Hub) Client(connID string) *Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.conns[connID]
}

// JoinRoom is idempotent.
func (h *Hub) JoinRoom(gameID string, c *Client) {
	h.mu.Lock()
	members, ok := h.rooms[gameID]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[gameID] = members
	}
	members[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) LeaveRoom(gameID string, c *Client) {
	h.mu.Lock()
	if members, ok := h.rooms[gameID]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, gameID)
		}
	}
	h.mu.Unlock()
}

// Broadcast fans an event out to every room member.
func (h *Hub) Broadcast(gameID string, ev Envelope) {
	h.mu.RLock()
	members := make([]*Client, 0, len(h.rooms[gameID]))
	for c := range h.rooms[gameID] {
		members = append(members, c)
	}
	h.mu.RUnlock()
	for _, c := range members {
		c.Send(ev)
	}
}

// BroadcastExcept fans out to everyone in the room but the sender.
func (h *Hub) BroadcastExcept(gameID string, sender *Client, ev Envelope) {
	h.mu.RLock()
	members := make([]*Client, 0, len(h.rooms[gameID]))
	for c := range h.rooms[gameID] {
		if c != sender {
			members = append(members, c)
		}
	}
	h.mu.RUnlock()
	for _, c := range members {
		c.Send(ev)
	}
}

// RoomSize reports the member count of one room.
func (h *Hub) RoomSize(gameID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[gameID])
}
