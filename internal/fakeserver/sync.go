package fakeserver

import (
	"encoding/json"
	"time"

	"github.com/dimitrije/snapbook/internal/channel"
	"github.com/dimitrije/snapbook/internal/hub"
	"github.com/dimitrije/snapbook/pkg/dto"
	"github.com/golang/glog"
	"github.com/google/uuid"
	"github.com/m1z23r/drift/pkg/drift"
	"github.com/m1z23r/drift/pkg/websocket"
)

const (
	syncPingInterval = 30 * time.Second
	syncWriteTimeout = 10 * time.Second
	syncReadTimeout  = 60 * time.Second
)

// relayed are the client actions forwarded verbatim to the rest of the room.
var relayed = map[string]bool{
	dto.ActionTitleUpdated:        true,
	dto.ActionItemRemoved:         true,
	dto.ActionCollaboratorAdded:   true,
	dto.ActionCollaboratorRemoved: true,
}

func (s *Server) Connect(c *drift.Context) {
	token := c.QueryParam("token")
	if token == "" {
		c.Unauthorized("token is required")
		return
	}

	claims, err := s.jwt.ValidateToken(token)
	if err != nil {
		c.Unauthorized("invalid token")
		return
	}

	user, err := s.store.User(claims.UserID)
	if err != nil {
		c.Unauthorized("user not found")
		return
	}

	conn, err := websocket.Upgrade(c)
	if err != nil {
		glog.Warningf("[fake]websocket upgrade failed: %s", err)
		return
	}

	client := &hub.Client{
		ID:           uuid.NewString(),
		ConnectionID: c.QueryParam(channel.ConnectionParam),
		UserID:       user.ID,
		Username:     user.Username,
		Avatar:       user.Avatar,
		Rooms:        make(map[string]bool),
		Send:         make(chan []byte, 256),
	}

	s.hub.Register(client)
	glog.V(1).Infof("[fake]%s connected as %s", client.ID, user.Username)

	_ = conn.WriteJSON(dto.Event{Type: dto.EventConnected, ActorID: user.ID})

	done := make(chan struct{})

	// Write pump
	go func() {
		ticker := time.NewTicker(syncPingInterval)
		defer ticker.Stop()
		defer func() {
			if err := conn.Close(websocket.CloseNormalClosure, ""); err != nil {
				glog.V(1).Infof("[fake]%s close error = %s", client.ID, err)
			}
		}()

		for {
			select {
			case msg, ok := <-client.Send:
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(syncWriteTimeout))
				if err := conn.WriteText(string(msg)); err != nil {
					return
				}
			case <-ticker.C:
				if err := conn.Ping(nil); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	// Read pump (blocks until disconnect)
	defer func() {
		close(done)
		s.hub.Unregister(client)
		glog.V(1).Infof("[fake]%s disconnected", client.ID)
	}()

	for {
		_ = conn.SetReadDeadline(time.Now().Add(syncReadTimeout))
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		if msgType != websocket.TextMessage {
			continue
		}

		var msg dto.ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			reply(client, dto.Event{Type: dto.EventError, Message: "invalid message format"})
			continue
		}

		switch {
		case msg.Action == dto.ActionJoinRoom:
			s.handleJoin(client, msg)
		case msg.Action == dto.ActionLeaveRoom:
			s.hub.LeaveRoom(client.ID, msg.ScrapbookID)
		case msg.Action == dto.ActionPing:
			reply(client, dto.Event{Type: dto.EventPong})
		case relayed[msg.Action]:
			s.handleRelay(client, msg)
		default:
			reply(client, dto.Event{Type: dto.EventError, Message: "unknown action " + msg.Action})
		}
	}
}

// handleJoin admits the client to a room it can access and tells it who is
// already there.
func (s *Server) handleJoin(client *hub.Client, msg dto.ClientMessage) {
	if _, err := s.store.Scrapbook(msg.ScrapbookID, client.UserID); err != nil {
		reply(client, dto.Event{Type: dto.EventError, ScrapbookID: msg.ScrapbookID, Message: "scrapbook not found or access denied"})
		return
	}

	for _, member := range s.hub.Members(msg.ScrapbookID) {
		if member.UserID == client.UserID {
			continue
		}
		raw, _ := json.Marshal(member)
		reply(client, dto.Event{Type: dto.EventUserJoined, ScrapbookID: msg.ScrapbookID, ActorID: member.UserID, Data: raw})
	}
	s.hub.JoinRoom(client.ID, msg.ScrapbookID)
}

func (s *Server) handleRelay(client *hub.Client, msg dto.ClientMessage) {
	if !s.hub.InRoom(client.ID, msg.ScrapbookID) {
		reply(client, dto.Event{Type: dto.EventError, ScrapbookID: msg.ScrapbookID, Message: "not in room"})
		return
	}
	glog.V(2).Infof("[fake]%s relay %s to %s", client.ID, msg.Action, msg.ScrapbookID)
	s.hub.Relay(msg.ScrapbookID, client.UserID, client.ID, msg.Action, msg.Data)
}

// reply queues ev for client alone. Writes go through the write pump only.
func reply(client *hub.Client, ev dto.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	select {
	case client.Send <- data:
	default:
		glog.V(1).Infof("[fake]%s buffer full, dropped %s", client.ID, ev.Type)
	}
}
