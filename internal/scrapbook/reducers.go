package scrapbook

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dimitrije/snapbook/internal/channel"
	"github.com/dimitrije/snapbook/internal/models"
	"github.com/dimitrije/snapbook/internal/room"
	"github.com/dimitrije/snapbook/pkg/dto"
	"github.com/golang/glog"
)

const resyncTimeout = 30 * time.Second

// Reducers are shared by the REST success paths and the room handlers.
// Each one is idempotent by id so an echoed event never applies twice.

func (s *Store) prependTimelineLocked(entry *models.TimelineEntry) bool {
	if entry == nil {
		return false
	}
	if entry.ID != "" {
		for _, e := range s.timeline {
			if e.ID == entry.ID {
				return false
			}
		}
	}
	s.timeline = append([]models.TimelineEntry{*entry}, s.timeline...)
	return true
}

func (s *Store) applyTitleLocked(title string, entry *models.TimelineEntry) bool {
	changed := s.current.Title != title
	s.current.Title = title
	for i := range s.list {
		if s.list[i].ID == s.current.ID {
			s.list[i].Title = title
		}
	}
	return s.prependTimelineLocked(entry) || changed
}

func (s *Store) applyItemAddedLocked(item models.Item, entry *models.TimelineEntry) bool {
	if item.ID == "" {
		glog.Warningf("[store]dropped %s item without id", item.Type)
		return false
	}
	changed := false
	if s.current.ItemIndex(item.ID) < 0 {
		s.current.Items = append(s.current.Items, item)
		changed = true
	}
	return s.prependTimelineLocked(entry) || changed
}

// applyItemUpdatedLocked replaces an item wholesale. Unknown ids are
// ignored since item creation is only ever announced as item-added.
func (s *Store) applyItemUpdatedLocked(item models.Item, entry *models.TimelineEntry) bool {
	i := s.current.ItemIndex(item.ID)
	if i < 0 {
		return false
	}
	s.current.Items[i] = item
	s.prependTimelineLocked(entry)
	return true
}

func (s *Store) applyItemRemovedLocked(itemID string, entry *models.TimelineEntry) bool {
	changed := false
	if i := s.current.ItemIndex(itemID); i >= 0 {
		s.current.Items = append(s.current.Items[:i:i], s.current.Items[i+1:]...)
		changed = true
	}
	return s.prependTimelineLocked(entry) || changed
}

func (s *Store) applyCollaboratorAddedLocked(user models.User, entry *models.TimelineEntry) bool {
	changed := false
	if s.current.CollaboratorIndex(user.ID) < 0 {
		s.current.Collaborators = append(s.current.Collaborators, user)
		changed = true
	}
	return s.prependTimelineLocked(entry) || changed
}

func (s *Store) applyCollaboratorRemovedLocked(userID string, entry *models.TimelineEntry) bool {
	changed := false
	if i := s.current.CollaboratorIndex(userID); i >= 0 {
		s.current.Collaborators = append(s.current.Collaborators[:i:i], s.current.Collaborators[i+1:]...)
		changed = true
	}
	return s.prependTimelineLocked(entry) || changed
}

func (s *Store) applyUserJoinedLocked(u models.ActiveUser) bool {
	for _, a := range s.active {
		if a.UserID == u.UserID {
			return false
		}
	}
	s.active = append(s.active, u)
	return true
}

func (s *Store) applyUserLeftLocked(userID string) bool {
	for i, a := range s.active {
		if a.UserID == userID {
			s.active = append(s.active[:i:i], s.active[i+1:]...)
			return true
		}
	}
	return false
}

func (s *Store) removeFromListLocked(id string) {
	for i := range s.list {
		if s.list[i].ID == id {
			s.list = append(s.list[:i:i], s.list[i+1:]...)
			return
		}
	}
}

func decode[T any](ev dto.Event) (T, bool) {
	var v T
	if err := json.Unmarshal(ev.Data, &v); err != nil {
		glog.Warningf("[store]bad %s payload: %s", ev.Type, err)
		return v, false
	}
	return v, true
}

// handlers builds the room handlers for scrapbook id opened under gen.
func (s *Store) handlers(gen uint64, id string) room.Handlers {
	return room.Handlers{
		dto.EventItemAdded: s.on(gen, id, func(ev dto.Event) bool {
			d, ok := decode[dto.ItemEventData](ev)
			return ok && s.applyItemAddedLocked(d.Item, d.Timeline)
		}),
		dto.EventItemUpdated: s.on(gen, id, func(ev dto.Event) bool {
			d, ok := decode[dto.ItemEventData](ev)
			return ok && s.applyItemUpdatedLocked(d.Item, d.Timeline)
		}),
		dto.EventItemRemoved: s.on(gen, id, func(ev dto.Event) bool {
			d, ok := decode[dto.ItemRemovedData](ev)
			return ok && s.applyItemRemovedLocked(d.ItemID, d.Timeline)
		}),
		dto.EventTitleUpdated: s.on(gen, id, func(ev dto.Event) bool {
			d, ok := decode[dto.TitleUpdatedData](ev)
			return ok && d.Title != "" && s.applyTitleLocked(d.Title, d.Timeline)
		}),
		dto.EventCollaboratorAdded: s.on(gen, id, func(ev dto.Event) bool {
			d, ok := decode[dto.CollaboratorAddedData](ev)
			return ok && s.applyCollaboratorAddedLocked(d.Collaborator, d.Timeline)
		}),
		dto.EventCollaboratorRemoved: s.on(gen, id, func(ev dto.Event) bool {
			d, ok := decode[dto.CollaboratorRemovedData](ev)
			return ok && s.applyCollaboratorRemovedLocked(d.CollaboratorID, d.Timeline)
		}),
		dto.EventUserJoined: s.on(gen, id, func(ev dto.Event) bool {
			u, ok := decode[models.ActiveUser](ev)
			if !ok || u.UserID == "" {
				u.UserID = ev.ActorID
			}
			return u.UserID != "" && s.applyUserJoinedLocked(u)
		}),
		dto.EventUserLeft: s.on(gen, id, func(ev dto.Event) bool {
			u, ok := decode[models.ActiveUser](ev)
			if !ok || u.UserID == "" {
				u.UserID = ev.ActorID
			}
			return s.applyUserLeftLocked(u.UserID)
		}),
		dto.EventScrapbookDeleted: s.onDeleted(gen, id),
		room.Rejoined:             s.onRejoined(gen, id),
	}
}

func (s *Store) on(gen uint64, id string, apply func(dto.Event) bool) channel.Handler {
	return func(ev dto.Event) {
		s.mu.Lock()
		if !s.isCurrentLocked(gen, id) {
			s.mu.Unlock()
			return
		}
		changed := apply(ev)
		snap := s.snapshotLocked()
		s.mu.Unlock()

		if changed {
			glog.V(2).Infof("[store]applied %s from %s", ev.Type, ev.ActorID)
			s.publish(snap)
		}
	}
}

// onDeleted tears the view down; the caller is expected to navigate away.
func (s *Store) onDeleted(gen uint64, id string) channel.Handler {
	return func(ev dto.Event) {
		s.mu.Lock()
		if !s.isCurrentLocked(gen, id) {
			s.mu.Unlock()
			return
		}
		glog.Infof("[store]scrapbook %s deleted by %s", id, ev.ActorID)
		s.teardownLocked()
		s.removeFromListLocked(id)
		snap := s.snapshotLocked()
		s.mu.Unlock()

		s.publish(snap)
		s.publishDeleted(id)
	}
}

// onRejoined clears presence, which the server replays on join, and
// refetches the document to recover the events of the disconnect.
func (s *Store) onRejoined(gen uint64, id string) channel.Handler {
	return func(dto.Event) {
		s.mu.Lock()
		if !s.isCurrentLocked(gen, id) {
			s.mu.Unlock()
			return
		}
		s.active = nil
		snap := s.snapshotLocked()
		s.mu.Unlock()

		s.publish(snap)
		go s.resync(gen, id)
	}
}

// resync replaces the open scrapbook and its timeline with the server's
// copy. Presence is left alone.
func (s *Store) resync(gen uint64, id string) {
	ctx, cancel := context.WithTimeout(context.Background(), resyncTimeout)
	defer cancel()

	sb, err := s.backend.GetScrapbook(ctx, id)
	var timeline []models.TimelineEntry
	if err == nil {
		timeline, err = s.backend.GetTimeline(ctx, id)
	}
	if err != nil {
		glog.Warningf("[store]resync %s: %s", id, err)
		_ = s.fail(gen, err)
		return
	}

	s.mu.Lock()
	if !s.isCurrentLocked(gen, id) || sb.ID != id {
		s.mu.Unlock()
		glog.V(1).Infof("[store]resync %s discarded", id)
		return
	}
	s.current = sb.Clone()
	s.timeline = timeline
	for i := range s.list {
		if s.list[i].ID == id {
			s.list[i].Title = sb.Title
		}
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	glog.V(1).Infof("[store]resynced %s", id)
	s.publish(snap)
}
