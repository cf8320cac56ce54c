package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type ItemType string

const (
	ItemTypeImage ItemType = "image"
	ItemTypeText  ItemType = "text"
)

func (t ItemType) Valid() bool {
	return t == ItemTypeImage || t == ItemTypeText
}

// TempIDPrefix marks ids generated on the client for items that have not
// been written to the durable store yet.
const TempIDPrefix = "temp-"

// Position is advisory layout data. It is stored and echoed but never used
// to order items.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Item struct {
	ID        string   `json:"_id"`
	Type      ItemType `json:"type"`
	Content   string   `json:"content"`
	CreatedBy string   `json:"createdBy,omitempty"`
	Position  Position `json:"position"`
}

func (i Item) Validate() error {
	if !i.Type.Valid() {
		return fmt.Errorf("unknown item type %q", i.Type)
	}
	if strings.TrimSpace(i.Content) == "" {
		return errors.New("item content is required")
	}
	return nil
}

func (i Item) IsTemporary() bool {
	return strings.HasPrefix(i.ID, TempIDPrefix)
}

type Scrapbook struct {
	ID            string    `json:"_id"`
	Title         string    `json:"title"`
	Owner         User      `json:"owner"`
	Collaborators []User    `json:"collaborators"`
	Items         []Item    `json:"items"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func (s *Scrapbook) IsOwner(userID string) bool {
	return userID != "" && s.Owner.ID == userID
}

func (s *Scrapbook) ItemIndex(itemID string) int {
	for i, item := range s.Items {
		if item.ID == itemID {
			return i
		}
	}
	return -1
}

func (s *Scrapbook) CollaboratorIndex(userID string) int {
	for i, c := range s.Collaborators {
		if c.ID == userID {
			return i
		}
	}
	return -1
}

// Clone returns a copy that shares no slices with s.
func (s *Scrapbook) Clone() *Scrapbook {
	if s == nil {
		return nil
	}
	c := *s
	c.Collaborators = append([]User(nil), s.Collaborators...)
	c.Items = append([]Item(nil), s.Items...)
	return &c
}
