package dto

import (
	"encoding/json"

	"github.com/dimitrije/snapbook/internal/models"
)

// Event types delivered by the server on the live channel.
const (
	EventConnected           = "connected"
	EventPong                = "pong"
	EventError               = "error"
	EventUserJoined          = "user-joined"
	EventUserLeft            = "user-left"
	EventItemAdded           = "item-added"
	EventItemUpdated         = "item-updated"
	EventItemRemoved         = "item-removed"
	EventTitleUpdated        = "title-updated"
	EventCollaboratorAdded   = "collaborator-added"
	EventCollaboratorRemoved = "collaborator-removed"
	EventScrapbookDeleted    = "scrapbook-deleted"
)

// Actions a client may send on the live channel. Mutation actions share
// their name with the event the server relays to the other room members.
const (
	ActionJoinRoom            = "join-room"
	ActionLeaveRoom           = "leave-room"
	ActionPing                = "ping"
	ActionTitleUpdated        = EventTitleUpdated
	ActionItemRemoved         = EventItemRemoved
	ActionCollaboratorAdded   = EventCollaboratorAdded
	ActionCollaboratorRemoved = EventCollaboratorRemoved
)

// ClientMessage is a frame sent from a client to the server.
type ClientMessage struct {
	Action      string          `json:"action"`
	ScrapbookID string          `json:"scrapbookId,omitempty"`
	Data        json.RawMessage `json:"data,omitempty"`
}

// Event is a frame sent from the server to a client.
type Event struct {
	Type        string          `json:"type"`
	ScrapbookID string          `json:"scrapbookId,omitempty"`
	ActorID     string          `json:"actorId,omitempty"`
	Message     string          `json:"message,omitempty"`
	Data        json.RawMessage `json:"data,omitempty"`
}

type ItemEventData struct {
	Item     models.Item           `json:"item"`
	Timeline *models.TimelineEntry `json:"timeline,omitempty"`
}

type ItemRemovedData struct {
	ItemID   string                `json:"itemId"`
	Timeline *models.TimelineEntry `json:"timeline,omitempty"`
}

type TitleUpdatedData struct {
	Title    string                `json:"title"`
	Timeline *models.TimelineEntry `json:"timeline,omitempty"`
}

type CollaboratorAddedData struct {
	Collaborator models.User           `json:"collaborator"`
	Timeline     *models.TimelineEntry `json:"timeline,omitempty"`
}

type CollaboratorRemovedData struct {
	CollaboratorID string                `json:"collaboratorId"`
	Timeline       *models.TimelineEntry `json:"timeline,omitempty"`
}

type ScrapbookDeletedData struct {
	ScrapbookID string `json:"scrapbookId"`
}
