package models

import "time"

const (
	ActionAdded   = "added"
	ActionRemoved = "removed"
	ActionUpdated = "updated"
)

// Subjects a timeline entry can describe, in addition to the item types.
const (
	SubjectTitle        = "title"
	SubjectCollaborator = "collaborator"
)

// TimelineEntry is an immutable audit record of one mutation. Entries are
// produced by the durable store, never by the client.
type TimelineEntry struct {
	ID        string    `json:"_id"`
	User      User      `json:"user"`
	Action    string    `json:"action"`
	ItemType  string    `json:"itemType"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
