package ws

import (
	"log/slog"
	"sync"

	"github.com/quizbattle/quizbattle-go/internal/model"
)

// Hub fans messages out to every client in one room. All membership
// changes and broadcasts go through its run loop, so no lock is held
// while writing to clients.
type Hub struct {
	roomID     model.RoomID
	register   chan *Client
	unregister chan *Client
	broadcast  chan model.Message
	done       chan struct{}
	logger     *slog.Logger
}

func newHub(roomID model.RoomID, logger *slog.Logger) *Hub {
	return &Hub{
		roomID:     roomID,
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan model.Message, 64),
		done:       make(chan struct{}),
		logger:     logger.With(slog.String("room_id", string(roomID))),
	}
}

func (h *Hub) run() {
	clients := make(map[*Client]struct{})
	for {
		select {
		case client := <-h.register:
			clients[client] = struct{}{}

		case client := <-h.unregister:
			delete(clients, client)

		case msg := <-h.broadcast:
			for client := range clients {
				client.Send(msg)
			}

		case <-h.done:
			return
		}
	}
}

// HubManager owns one hub per active room, creating them on demand and
// tearing them down when the last client leaves.
type HubManager struct {
	mu     sync.Mutex
	hubs   map[model.RoomID]*Hub
	counts map[model.RoomID]int
	logger *slog.Logger
}

// NewHubManager creates a new hub manager
func NewHubManager(logger *slog.Logger) *HubManager {
	return &HubManager{
		hubs:   make(map[model.RoomID]*Hub),
		counts: make(map[model.RoomID]int),
		logger: logger.With(slog.String("component", "ws")),
	}
}

// Join registers a client with the room's hub, creating the hub if the
// room has no connected clients yet.
func (m *HubManager) Join(roomID model.RoomID, client *Client) *Hub {
	m.mu.Lock()
	hub, ok := m.hubs[roomID]
	if !ok {
		hub = newHub(roomID, m.logger)
		m.hubs[roomID] = hub
		go hub.run()
	}
	m.counts[roomID]++
	m.mu.Unlock()

	hub.register <- client
	return hub
}

// Leave unregisters a client from the room's hub, stopping the hub when
// it was the last client.
func (m *HubManager) Leave(roomID model.RoomID, client *Client) {
	m.mu.Lock()
	hub, ok := m.hubs[roomID]
	if !ok {
		m.mu.Unlock()
		return
	}
	m.counts[roomID]--
	last := m.counts[roomID] <= 0
	if last {
		delete(m.hubs, roomID)
		delete(m.counts, roomID)
	}
	m.mu.Unlock()

	hub.unregister <- client
	if last {
		close(hub.done)
	}
}

// Broadcast delivers a message to every client in the room. A room
// with no connected clients drops the message.
func (m *HubManager) Broadcast(roomID model.RoomID, msg model.Message) {
	m.mu.Lock()
	hub, ok := m.hubs[roomID]
	m.mu.Unlock()
	if !ok {
		return
	}

	select {
	case hub.broadcast <- msg:
	default:
		m.logger.Warn("dropping broadcast, hub backlogged",
			slog.String("room_id", string(roomID)),
			slog.String("type", string(msg.Type)))
	}
}
