// Package hub fans live events out to the websocket clients that joined a
// scrapbook room.
package hub

import (
	"encoding/json"
	"sync"

	"github.com/dimitrije/snapbook/internal/models"
	"github.com/dimitrije/snapbook/pkg/dto"
	"github.com/golang/glog"
)

type Client struct {
	ID       string
	UserID   string
	Username string
	Avatar   string
	Rooms    map[string]bool
	Send     chan []byte
	// ConnectionID is the id the client picked for its socket. REST calls
	// name it to keep their broadcast off the calling device.
	ConnectionID string
}

func (c *Client) isOrigin(origin string) bool {
	return origin != "" && (c.ID == origin || c.ConnectionID == origin)
}

func (c *Client) activeUser() models.ActiveUser {
	return models.ActiveUser{UserID: c.UserID, Username: c.Username, Avatar: c.Avatar}
}

// RoomMessage is an event for every member of Room except the connection
// named by Origin. Other connections of the same user still receive it.
type RoomMessage struct {
	Room   string
	Origin string
	Event  dto.Event
}

type Hub struct {
	clients    map[string]*Client
	unregister chan *Client
	broadcast  chan *RoomMessage
	mu         sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *RoomMessage, 256),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.ID]; ok {
				// Collect rooms before removing
				rooms := make([]string, 0, len(client.Rooms))
				for room := range client.Rooms {
					rooms = append(rooms, room)
				}
				delete(h.clients, client.ID)
				close(client.Send)
				h.mu.Unlock()

				for _, room := range rooms {
					h.presence(dto.EventUserLeft, room, client)
				}
			} else {
				h.mu.Unlock()
			}

		case msg := <-h.broadcast:
			h.fanOut(msg)
		}
	}
}

// Register adds client before returning, so a join that follows it never
// misses the client.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	h.clients[client.ID] = client
	h.mu.Unlock()
}

func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// JoinRoom adds the client to room. The other members are told unless the
// same user is already present through another connection.
func (h *Hub) JoinRoom(clientID, room string) bool {
	h.mu.Lock()
	client, ok := h.clients[clientID]
	if !ok {
		h.mu.Unlock()
		return false
	}
	already := client.Rooms[room]
	client.Rooms[room] = true
	h.mu.Unlock()

	if !already {
		h.presence(dto.EventUserJoined, room, client)
	}
	return true
}

func (h *Hub) LeaveRoom(clientID, room string) {
	h.mu.Lock()
	client, ok := h.clients[clientID]
	if !ok || !client.Rooms[room] {
		h.mu.Unlock()
		return
	}
	delete(client.Rooms, room)
	h.mu.Unlock()

	h.presence(dto.EventUserLeft, room, client)
}

func (h *Hub) InRoom(clientID, room string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	client, ok := h.clients[clientID]
	return ok && client.Rooms[room]
}

// Members returns the distinct users present in room.
func (h *Hub) Members(room string) []models.ActiveUser {
	h.mu.RLock()
	defer h.mu.RUnlock()

	seen := make(map[string]bool)
	members := []models.ActiveUser{}
	for _, client := range h.clients {
		if client.Rooms[room] && !seen[client.UserID] {
			seen[client.UserID] = true
			members = append(members, client.activeUser())
		}
	}
	return members
}

// BroadcastToRoom queues eventType for room, skipping the connection
// origin. An empty origin reaches every member.
func (h *Hub) BroadcastToRoom(room, actorID, origin, eventType string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		glog.Errorf("[hub]marshal %s: %s", eventType, err)
		return
	}
	h.Relay(room, actorID, origin, eventType, raw)
}

// Relay is BroadcastToRoom for an already encoded payload.
func (h *Hub) Relay(room, actorID, origin, eventType string, data json.RawMessage) {
	h.broadcast <- &RoomMessage{
		Room:   room,
		Origin: origin,
		Event: dto.Event{
			Type:        eventType,
			ScrapbookID: room,
			ActorID:     actorID,
			Data:        data,
		},
	}
}

func (h *Hub) fanOut(msg *RoomMessage) {
	data, err := json.Marshal(msg.Event)
	if err != nil {
		glog.Errorf("[hub]marshal %s: %s", msg.Event.Type, err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		if !client.Rooms[msg.Room] || client.isOrigin(msg.Origin) {
			continue
		}
		select {
		case client.Send <- data:
		default:
			// Client buffer full, skip
			glog.V(1).Infof("[hub]%s buffer full, dropped %s", client.ID, msg.Event.Type)
		}
	}
}

// presence announces a join or leave of client to the rest of room. It is
// skipped while another connection of the same user remains in the room.
func (h *Hub) presence(eventType, room string, client *Client) {
	h.mu.RLock()
	for _, other := range h.clients {
		if other.ID != client.ID && other.UserID == client.UserID && other.Rooms[room] {
			h.mu.RUnlock()
			return
		}
	}
	h.mu.RUnlock()

	raw, _ := json.Marshal(client.activeUser())
	h.fanOut(&RoomMessage{
		Room:   room,
		Origin: client.ID,
		Event: dto.Event{
			Type:        eventType,
			ScrapbookID: room,
			ActorID:     client.UserID,
			Data:        raw,
		},
	})
}
