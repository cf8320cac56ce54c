package scrapbook

import (
	"context"
	"strings"

	"github.com/dimitrije/snapbook/internal/apierr"
	"github.com/dimitrije/snapbook/internal/models"
	"github.com/dimitrije/snapbook/pkg/dto"
	"github.com/golang/glog"
)

// Open makes id the current scrapbook. Any open scrapbook is torn down
// first. The scrapbook and its timeline are fetched before anything is
// shown; if another Open, NewDraft or Close happens meanwhile the result is
// discarded and ErrSuperseded returned.
func (s *Store) Open(ctx context.Context, id string) error {
	if id == "" {
		return apierr.Validation("openScrapbook", "scrapbook id is required")
	}
	if _, err := s.session.Require("openScrapbook"); err != nil {
		return err
	}

	s.mu.Lock()
	s.teardownLocked()
	gen := s.gen
	s.target = id
	s.room.Begin(id)
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.publish(snap)

	sb, err := s.backend.GetScrapbook(ctx, id)
	var timeline []models.TimelineEntry
	if err == nil {
		timeline, err = s.backend.GetTimeline(ctx, id)
	}

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		glog.V(1).Infof("[store]open %s superseded", id)
		return ErrSuperseded
	}
	if err != nil {
		s.target = ""
		s.room.Leave()
		s.mu.Unlock()
		return s.fail(gen, err)
	}
	if sb.ID != id {
		s.target = ""
		s.room.Leave()
		s.mu.Unlock()
		return s.fail(gen, apierr.New(apierr.KindServer, "openScrapbook", "server returned scrapbook "+sb.ID))
	}

	s.current = sb.Clone()
	s.mode = ModePersisted
	s.timeline = timeline
	s.active = nil
	s.lastErr = ""
	if err := s.room.Attach(id, s.handlers(gen, id)); err != nil {
		// the document stays usable without live updates
		glog.Warningf("[store]live updates for %s unavailable: %s", id, err)
	}
	snap = s.snapshotLocked()
	s.mu.Unlock()

	s.publish(snap)
	return nil
}

func (s *Store) SetTitle(ctx context.Context, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return apierr.Validation("setTitle", "title is required")
	}
	if _, err := s.session.Require("setTitle"); err != nil {
		return err
	}

	s.mu.Lock()
	if s.current == nil {
		s.mu.Unlock()
		return ErrNoScrapbook
	}
	gen, id := s.gen, s.current.ID
	if s.mode == ModeDraft {
		s.current.Title = title
		snap := s.snapshotLocked()
		s.mu.Unlock()
		s.publish(snap)
		return nil
	}
	s.mu.Unlock()

	resp, err := s.backend.UpdateTitle(ctx, id, title)
	if err != nil {
		return s.fail(gen, err)
	}

	s.mu.Lock()
	if !s.isCurrentLocked(gen, id) {
		s.mu.Unlock()
		glog.V(1).Infof("[store]title of %s saved after switch", id)
		return nil
	}
	s.applyTitleLocked(title, &resp.Timeline)
	s.emitLocked(dto.ActionTitleUpdated, id, dto.TitleUpdatedData{Title: title, Timeline: &resp.Timeline})
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.publish(snap)
	return nil
}

// AddItem inserts item into the open scrapbook. A persisted scrapbook only
// changes once the server has assigned the item id; the server announces
// the new item to the room itself.
func (s *Store) AddItem(ctx context.Context, item models.Item) (*models.Item, error) {
	if err := item.Validate(); err != nil {
		return nil, apierr.Validation("addItem", "%v", err)
	}
	ident, err := s.session.Require("addItem")
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.current == nil {
		s.mu.Unlock()
		return nil, ErrNoScrapbook
	}
	gen, id := s.gen, s.current.ID
	if s.mode == ModeDraft {
		item.ID = newTempID()
		item.CreatedBy = ident.UserID()
		s.current.Items = append(s.current.Items, item)
		snap := s.snapshotLocked()
		s.mu.Unlock()
		s.publish(snap)
		return &item, nil
	}
	s.mu.Unlock()

	resp, err := s.backend.AddItem(ctx, id, dto.AddItemRequest{Type: item.Type, Content: item.Content, Position: item.Position})
	if err != nil {
		return nil, s.fail(gen, err)
	}

	s.mu.Lock()
	if !s.isCurrentLocked(gen, id) {
		s.mu.Unlock()
		glog.V(1).Infof("[store]item %s added to %s after switch", resp.NewItem.ID, id)
		return &resp.NewItem, nil
	}
	s.applyItemAddedLocked(resp.NewItem, &resp.Timeline)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.publish(snap)
	return &resp.NewItem, nil
}

func (s *Store) RemoveItem(ctx context.Context, itemID string) error {
	if _, err := s.session.Require("removeItem"); err != nil {
		return err
	}

	s.mu.Lock()
	if s.current == nil {
		s.mu.Unlock()
		return ErrNoScrapbook
	}
	if s.current.ItemIndex(itemID) < 0 {
		s.mu.Unlock()
		return apierr.New(apierr.KindNotFound, "removeItem", "item "+itemID+" not found")
	}
	gen, id := s.gen, s.current.ID
	if s.mode == ModeDraft {
		s.applyItemRemovedLocked(itemID, nil)
		snap := s.snapshotLocked()
		s.mu.Unlock()
		s.publish(snap)
		return nil
	}
	s.mu.Unlock()

	resp, err := s.backend.RemoveItem(ctx, id, itemID)
	if err != nil {
		return s.fail(gen, err)
	}

	s.mu.Lock()
	if !s.isCurrentLocked(gen, id) {
		s.mu.Unlock()
		glog.V(1).Infof("[store]item %s removed from %s after switch", itemID, id)
		return nil
	}
	s.applyItemRemovedLocked(itemID, &resp.Timeline)
	s.emitLocked(dto.ActionItemRemoved, id, dto.ItemRemovedData{ItemID: itemID, Timeline: &resp.Timeline})
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.publish(snap)
	return nil
}

func (s *Store) AddCollaborator(ctx context.Context, username string) (*models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, apierr.Validation("addCollaborator", "username is required")
	}
	if _, err := s.session.Require("addCollaborator"); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.current == nil {
		s.mu.Unlock()
		return nil, ErrNoScrapbook
	}
	if s.mode == ModeDraft {
		s.mu.Unlock()
		return nil, ErrDraft
	}
	gen, id := s.gen, s.current.ID
	s.mu.Unlock()

	resp, err := s.backend.AddCollaborator(ctx, id, username)
	if err != nil {
		return nil, s.fail(gen, err)
	}

	s.mu.Lock()
	if !s.isCurrentLocked(gen, id) {
		s.mu.Unlock()
		glog.V(1).Infof("[store]collaborator %s added to %s after switch", resp.Collaborator.ID, id)
		return &resp.Collaborator, nil
	}
	s.applyCollaboratorAddedLocked(resp.Collaborator, &resp.Timeline)
	s.emitLocked(dto.ActionCollaboratorAdded, id, dto.CollaboratorAddedData{Collaborator: resp.Collaborator, Timeline: &resp.Timeline})
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.publish(snap)
	return &resp.Collaborator, nil
}

// RemoveCollaborator drops collaboratorID from the open scrapbook. The owner
// cannot be removed and only the owner may remove someone other than
// themself.
func (s *Store) RemoveCollaborator(ctx context.Context, collaboratorID string) error {
	ident, err := s.session.Require("removeCollaborator")
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.current == nil {
		s.mu.Unlock()
		return ErrNoScrapbook
	}
	if s.mode == ModeDraft {
		s.mu.Unlock()
		return ErrDraft
	}
	sb := s.current
	switch {
	case sb.IsOwner(collaboratorID):
		s.mu.Unlock()
		return apierr.Validation("removeCollaborator", "the owner cannot be removed")
	case sb.CollaboratorIndex(collaboratorID) < 0:
		s.mu.Unlock()
		return apierr.New(apierr.KindNotFound, "removeCollaborator", "collaborator "+collaboratorID+" not found")
	case !sb.IsOwner(ident.UserID()) && collaboratorID != ident.UserID():
		s.mu.Unlock()
		return apierr.Validation("removeCollaborator", "only the owner can remove collaborators")
	}
	gen, id := s.gen, sb.ID
	s.mu.Unlock()

	resp, err := s.backend.RemoveCollaborator(ctx, id, collaboratorID)
	if err != nil {
		return s.fail(gen, err)
	}

	s.mu.Lock()
	if !s.isCurrentLocked(gen, id) {
		s.mu.Unlock()
		glog.V(1).Infof("[store]collaborator %s removed from %s after switch", collaboratorID, id)
		return nil
	}
	s.applyCollaboratorRemovedLocked(collaboratorID, &resp.Timeline)
	s.emitLocked(dto.ActionCollaboratorRemoved, id, dto.CollaboratorRemovedData{CollaboratorID: collaboratorID, Timeline: &resp.Timeline})
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.publish(snap)
	return nil
}

const minSearchLen = 2

// SearchUsers looks up accounts to invite by username or email.
func (s *Store) SearchUsers(ctx context.Context, query string) ([]models.User, error) {
	query = strings.TrimSpace(query)
	if len([]rune(query)) < minSearchLen {
		return nil, apierr.Validation("searchUsers", "query must be at least %d characters", minSearchLen)
	}
	if _, err := s.session.Require("searchUsers"); err != nil {
		return nil, err
	}

	gen := s.generation()
	users, err := s.backend.SearchUsers(ctx, query)
	if err != nil {
		return nil, s.fail(gen, err)
	}
	if users == nil {
		users = []models.User{}
	}
	return users, nil
}

// ListScrapbooks refreshes the dashboard list.
func (s *Store) ListScrapbooks(ctx context.Context) ([]models.Scrapbook, error) {
	if _, err := s.session.Require("listScrapbooks"); err != nil {
		return nil, err
	}

	s.mu.Lock()
	gen := s.gen
	s.mu.Unlock()

	list, err := s.backend.ListScrapbooks(ctx)
	if err != nil {
		return nil, s.fail(gen, err)
	}
	if list == nil {
		list = []models.Scrapbook{}
	}

	s.mu.Lock()
	s.list = cloneList(list)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.publish(snap)
	return cloneList(list), nil
}

// Scrapbooks returns the last fetched dashboard list.
func (s *Store) Scrapbooks() []models.Scrapbook {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneList(s.list)
}

func (s *Store) CreateScrapbook(ctx context.Context, title string) (*models.Scrapbook, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, apierr.Validation("createScrapbook", "title is required")
	}
	if _, err := s.session.Require("createScrapbook"); err != nil {
		return nil, err
	}

	s.mu.Lock()
	gen := s.gen
	s.mu.Unlock()

	sb, err := s.backend.CreateScrapbook(ctx, title)
	if err != nil {
		return nil, s.fail(gen, err)
	}

	s.mu.Lock()
	s.list = append([]models.Scrapbook{*sb.Clone()}, s.list...)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.publish(snap)
	return sb, nil
}

// DeleteScrapbook deletes id from the durable store. Other viewers are told
// by the server; the local view is closed if id is open.
func (s *Store) DeleteScrapbook(ctx context.Context, id string) error {
	if _, err := s.session.Require("deleteScrapbook"); err != nil {
		return err
	}

	s.mu.Lock()
	gen := s.gen
	s.mu.Unlock()

	if err := s.backend.DeleteScrapbook(ctx, id); err != nil {
		return s.fail(gen, err)
	}

	s.mu.Lock()
	s.removeFromListLocked(id)
	if s.current != nil && s.current.ID == id {
		s.teardownLocked()
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.publish(snap)
	return nil
}

// emitLocked relays a confirmed mutation to the other room members. The
// write is already durable, so a failed relay is only logged.
func (s *Store) emitLocked(action, id string, data any) {
	if err := s.room.Emit(action, id, data); err != nil {
		glog.V(1).Infof("[store]%s for %s not relayed: %s", action, id, err)
	}
}
