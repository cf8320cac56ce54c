// Package scrapbook is the collaborative document store. A Store owns the
// in-memory state of at most one open scrapbook and reconciles local
// edits, REST confirmations and peer events from the live room into it.
package scrapbook

import (
	"context"
	"net/http"
	"sync"

	"github.com/dimitrije/snapbook/internal/apierr"
	"github.com/dimitrije/snapbook/internal/models"
	"github.com/dimitrije/snapbook/internal/room"
	"github.com/dimitrije/snapbook/internal/session"
	"github.com/dimitrije/snapbook/pkg/dto"
	"github.com/golang/glog"
)

var (
	ErrNoScrapbook = &apierr.Error{Kind: apierr.KindValidation, Message: "no scrapbook is open"}
	ErrSuperseded  = &apierr.Error{Kind: apierr.KindConflict, Message: "scrapbook was replaced before the request completed"}
	ErrDraft       = &apierr.Error{Kind: apierr.KindValidation, Message: "operation requires a saved scrapbook"}
)

// Backend is the durable store as the Store uses it. *api.Client
// satisfies it.
type Backend interface {
	ListScrapbooks(ctx context.Context) ([]models.Scrapbook, error)
	GetScrapbook(ctx context.Context, id string) (*models.Scrapbook, error)
	GetTimeline(ctx context.Context, id string) ([]models.TimelineEntry, error)
	CreateScrapbook(ctx context.Context, title string) (*models.Scrapbook, error)
	DeleteScrapbook(ctx context.Context, id string) error
	UpdateTitle(ctx context.Context, id, title string) (*dto.UpdateTitleResponse, error)
	AddItem(ctx context.Context, id string, req dto.AddItemRequest) (*dto.AddItemResponse, error)
	RemoveItem(ctx context.Context, id, itemID string) (*dto.RemoveItemResponse, error)
	AddCollaborator(ctx context.Context, id, username string) (*dto.AddCollaboratorResponse, error)
	RemoveCollaborator(ctx context.Context, id, collaboratorID string) (*dto.RemoveCollaboratorResponse, error)
	SearchUsers(ctx context.Context, query string) ([]models.User, error)
}

// Room is the live room membership. *room.Manager satisfies it.
type Room interface {
	Begin(scrapbookID string)
	Attach(scrapbookID string, handlers room.Handlers) error
	Leave()
	Emit(action, scrapbookID string, data any) error
}

// Session gates every operation. *session.Session satisfies it.
type Session interface {
	Identity() session.Identity
	Require(op string) (session.Identity, error)
	Invalidate(reason error)
	Subscribe(fn func(session.Identity)) func()
}

type Mode int

const (
	ModeNone Mode = iota
	ModeDraft
	ModePersisted
)

func (m Mode) String() string {
	switch m {
	case ModeDraft:
		return "draft"
	case ModePersisted:
		return "persisted"
	default:
		return "none"
	}
}

// Snapshot is a deep copy of the store state handed to observers.
type Snapshot struct {
	Mode          Mode
	Scrapbook     *models.Scrapbook
	Collaborators []models.User
	Timeline      []models.TimelineEntry
	ActiveUsers   []models.ActiveUser
	Scrapbooks    []models.Scrapbook
	Err           string
}

type Store struct {
	session     Session
	backend     Backend
	room        Room
	unsubscribe func()

	mu sync.Mutex

	// gen changes whenever the current scrapbook is replaced. Responses
	// and events captured under another generation are discarded.
	gen      uint64
	target   string
	current  *models.Scrapbook
	mode     Mode
	timeline []models.TimelineEntry
	active   []models.ActiveUser
	list     []models.Scrapbook
	userID   string
	lastErr  string

	obsMu     sync.Mutex
	observers map[int]func(Snapshot)
	deleted   map[int]func(scrapbookID string)
	nextObs   int
}

func NewStore(sess Session, backend Backend, rm Room) *Store {
	s := &Store{
		session:   sess,
		backend:   backend,
		room:      rm,
		observers: make(map[int]func(Snapshot)),
		deleted:   make(map[int]func(string)),
	}
	if id := sess.Identity(); id.State == session.StateAuthenticated {
		s.userID = id.UserID()
	}
	s.unsubscribe = sess.Subscribe(s.identityChanged)
	return s
}

// Dispose closes the open scrapbook and detaches the store from the
// session. The store must not be used afterwards.
func (s *Store) Dispose() {
	s.unsubscribe()
	s.Close()

	s.obsMu.Lock()
	s.observers = make(map[int]func(Snapshot))
	s.deleted = make(map[int]func(string))
	s.obsMu.Unlock()
}

func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe registers fn for every applied change.
func (s *Store) Subscribe(fn func(Snapshot)) func() {
	s.obsMu.Lock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn
	s.obsMu.Unlock()

	return func() {
		s.obsMu.Lock()
		delete(s.observers, id)
		s.obsMu.Unlock()
	}
}

// OnDeleted registers fn for the removal of the open scrapbook by someone
// else. The store has already been cleared when fn runs.
func (s *Store) OnDeleted(fn func(scrapbookID string)) func() {
	s.obsMu.Lock()
	id := s.nextObs
	s.nextObs++
	s.deleted[id] = fn
	s.obsMu.Unlock()

	return func() {
		s.obsMu.Lock()
		delete(s.deleted, id)
		s.obsMu.Unlock()
	}
}

// Close leaves the room and clears the open scrapbook. It is a no-op when
// nothing is open.
func (s *Store) Close() {
	s.mu.Lock()
	changed := s.teardownLocked()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	if changed {
		s.publish(snap)
	}
}

func (s *Store) snapshotLocked() Snapshot {
	snap := Snapshot{
		Mode:        s.mode,
		Scrapbook:   s.current.Clone(),
		Timeline:    append([]models.TimelineEntry(nil), s.timeline...),
		ActiveUsers: append([]models.ActiveUser(nil), s.active...),
		Scrapbooks:  cloneList(s.list),
		Err:         s.lastErr,
	}
	if snap.Scrapbook != nil {
		snap.Collaborators = append([]models.User(nil), snap.Scrapbook.Collaborators...)
	}
	return snap
}

func cloneList(list []models.Scrapbook) []models.Scrapbook {
	if list == nil {
		return nil
	}
	out := make([]models.Scrapbook, len(list))
	for i := range list {
		out[i] = *list[i].Clone()
	}
	return out
}

func (s *Store) publish(snap Snapshot) {
	s.obsMu.Lock()
	fns := make([]func(Snapshot), 0, len(s.observers))
	for _, fn := range s.observers {
		fns = append(fns, fn)
	}
	s.obsMu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}

func (s *Store) publishDeleted(scrapbookID string) {
	s.obsMu.Lock()
	fns := make([]func(string), 0, len(s.deleted))
	for _, fn := range s.deleted {
		fns = append(fns, fn)
	}
	s.obsMu.Unlock()

	for _, fn := range fns {
		fn(scrapbookID)
	}
}

// teardownLocked leaves the room and resets the document state. It reports
// whether anything was open.
func (s *Store) teardownLocked() bool {
	open := s.current != nil || s.target != ""
	if open {
		s.room.Leave()
	}
	s.gen++
	s.target = ""
	s.current = nil
	s.mode = ModeNone
	s.timeline = nil
	s.active = nil
	return open
}

func (s *Store) isCurrentLocked(gen uint64, id string) bool {
	return s.gen == gen && s.current != nil && s.current.ID == id
}

// fail records err for observers and drops the session on a rejected
// token.
func (s *Store) fail(gen uint64, err error) error {
	if apierr.KindOf(err) == apierr.KindAuth && apierr.StatusOf(err) == http.StatusUnauthorized {
		s.session.Invalidate(err)
	}

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return err
	}
	s.lastErr = err.Error()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.publish(snap)
	return err
}

func (s *Store) identityChanged(id session.Identity) {
	s.mu.Lock()
	if id.State == session.StateAuthenticating {
		s.mu.Unlock()
		return
	}
	userID := ""
	if id.State == session.StateAuthenticated {
		userID = id.UserID()
	}
	if userID == s.userID {
		s.mu.Unlock()
		return
	}
	prev := s.userID
	s.userID = userID

	glog.V(1).Infof("[store]identity changed from %q to %q", prev, userID)
	changed := s.teardownLocked() || s.list != nil
	s.list = nil
	s.lastErr = ""
	snap := s.snapshotLocked()
	s.mu.Unlock()

	if changed {
		s.publish(snap)
	}
}
