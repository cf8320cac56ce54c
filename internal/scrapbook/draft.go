package scrapbook

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dimitrije/snapbook/internal/apierr"
	"github.com/dimitrije/snapbook/internal/models"
	"github.com/dimitrije/snapbook/pkg/dto"
	"github.com/golang/glog"
	"github.com/oklog/ulid/v2"
)

func newTempID() string {
	return models.TempIDPrefix + strings.ToLower(ulid.Make().String())
}

// NewDraft replaces the open scrapbook with an unsaved one. Item edits on a
// draft are applied locally and nothing reaches the server until SaveDraft.
func (s *Store) NewDraft(title string) error {
	ident, err := s.session.Require("newDraft")
	if err != nil {
		return err
	}
	now := time.Now().UTC()

	s.mu.Lock()
	s.teardownLocked()
	s.current = &models.Scrapbook{
		ID:        newTempID(),
		Title:     strings.TrimSpace(title),
		Owner:     ident.User,
		Items:     []models.Item{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.mode = ModeDraft
	s.lastErr = ""
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.publish(snap)
	return nil
}

// SaveDraft creates the draft on the server, adds its items in order and
// opens the result. Once the scrapbook exists the draft is gone: a failed
// item write is returned after the persisted scrapbook has been opened.
func (s *Store) SaveDraft(ctx context.Context) (*models.Scrapbook, error) {
	if _, err := s.session.Require("saveDraft"); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.mode != ModeDraft || s.current == nil {
		s.mu.Unlock()
		return nil, ErrNoScrapbook
	}
	gen := s.gen
	title := s.current.Title
	items := append([]models.Item(nil), s.current.Items...)
	s.mu.Unlock()

	if title == "" {
		return nil, apierr.Validation("saveDraft", "title is required")
	}

	created, err := s.backend.CreateScrapbook(ctx, title)
	if err != nil {
		return nil, s.fail(gen, err)
	}

	var itemErr error
	saved := 0
	for _, item := range items {
		_, err := s.backend.AddItem(ctx, created.ID, dto.AddItemRequest{Type: item.Type, Content: item.Content, Position: item.Position})
		if err != nil {
			itemErr = fmt.Errorf("save draft: %d of %d items saved: %w", saved, len(items), err)
			break
		}
		saved++
	}

	s.mu.Lock()
	s.list = append([]models.Scrapbook{*created.Clone()}, s.list...)
	superseded := s.gen != gen
	s.mu.Unlock()

	if superseded {
		glog.V(1).Infof("[store]draft saved as %s after switch", created.ID)
		return created, itemErr
	}
	if err := s.Open(ctx, created.ID); err != nil {
		return created, err
	}
	if itemErr != nil {
		return created, s.fail(s.generation(), itemErr)
	}
	return created, nil
}

func (s *Store) generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}
