package scrapbook

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/dimitrije/snapbook/internal/apierr"
	"github.com/dimitrije/snapbook/internal/models"
	"github.com/dimitrije/snapbook/internal/room"
	"github.com/dimitrije/snapbook/internal/session"
	"github.com/dimitrije/snapbook/pkg/dto"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockBackend struct {
	mock.Mock
}

func (m *mockBackend) ListScrapbooks(ctx context.Context) ([]models.Scrapbook, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Scrapbook), args.Error(1)
}

func (m *mockBackend) GetScrapbook(ctx context.Context, id string) (*models.Scrapbook, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Scrapbook), args.Error(1)
}

func (m *mockBackend) GetTimeline(ctx context.Context, id string) ([]models.TimelineEntry, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.TimelineEntry), args.Error(1)
}

func (m *mockBackend) CreateScrapbook(ctx context.Context, title string) (*models.Scrapbook, error) {
	args := m.Called(ctx, title)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Scrapbook), args.Error(1)
}

func (m *mockBackend) DeleteScrapbook(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockBackend) UpdateTitle(ctx context.Context, id, title string) (*dto.UpdateTitleResponse, error) {
	args := m.Called(ctx, id, title)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.UpdateTitleResponse), args.Error(1)
}

func (m *mockBackend) AddItem(ctx context.Context, id string, req dto.AddItemRequest) (*dto.AddItemResponse, error) {
	args := m.Called(ctx, id, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.AddItemResponse), args.Error(1)
}

func (m *mockBackend) RemoveItem(ctx context.Context, id, itemID string) (*dto.RemoveItemResponse, error) {
	args := m.Called(ctx, id, itemID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.RemoveItemResponse), args.Error(1)
}

func (m *mockBackend) AddCollaborator(ctx context.Context, id, username string) (*dto.AddCollaboratorResponse, error) {
	args := m.Called(ctx, id, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.AddCollaboratorResponse), args.Error(1)
}

func (m *mockBackend) RemoveCollaborator(ctx context.Context, id, collaboratorID string) (*dto.RemoveCollaboratorResponse, error) {
	args := m.Called(ctx, id, collaboratorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.RemoveCollaboratorResponse), args.Error(1)
}

func (m *mockBackend) SearchUsers(ctx context.Context, query string) ([]models.User, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.User), args.Error(1)
}

type emitted struct {
	Action      string
	ScrapbookID string
	Data        any
}

type fakeRoom struct {
	mu       sync.Mutex
	calls    []string
	handlers room.Handlers
	emits    []emitted
}

func (r *fakeRoom) Begin(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, "begin:"+id)
}

func (r *fakeRoom) Attach(id string, h room.Handlers) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, "attach:"+id)
	r.handlers = h
	return nil
}

func (r *fakeRoom) Leave() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, "leave")
	r.handlers = nil
}

func (r *fakeRoom) Emit(action, id string, data any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.emits = append(r.emits, emitted{Action: action, ScrapbookID: id, Data: data})
	return nil
}

// deliver plays a server event into the installed handlers the way the
// channel reader would.
func (r *fakeRoom) deliver(t *testing.T, eventType, scrapbookID, actorID string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)

	r.mu.Lock()
	h := r.handlers[eventType]
	r.mu.Unlock()
	if h != nil {
		h(dto.Event{Type: eventType, ScrapbookID: scrapbookID, ActorID: actorID, Data: raw})
	}
}

func (r *fakeRoom) emitted() []emitted {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]emitted(nil), r.emits...)
}

func (r *fakeRoom) history() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

type fakeSession struct {
	mu          sync.Mutex
	id          session.Identity
	invalidated []error
	listeners   []func(session.Identity)
}

func (f *fakeSession) Identity() session.Identity {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.id
}

func (f *fakeSession) Require(op string) (session.Identity, error) {
	id := f.Identity()
	if id.State != session.StateAuthenticated {
		return id, apierr.New(apierr.KindAuth, op, "not signed in")
	}
	return id, nil
}

func (f *fakeSession) Invalidate(reason error) {
	f.mu.Lock()
	f.invalidated = append(f.invalidated, reason)
	f.mu.Unlock()
	f.set(session.Identity{})
}

func (f *fakeSession) Subscribe(fn func(session.Identity)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listeners = append(f.listeners, fn)
	return func() {}
}

func (f *fakeSession) set(id session.Identity) {
	f.mu.Lock()
	f.id = id
	listeners := append([]func(session.Identity){}, f.listeners...)
	f.mu.Unlock()
	for _, fn := range listeners {
		fn(id)
	}
}

var (
	u1 = models.User{ID: "u1", Username: "ana"}
	u2 = models.User{ID: "u2", Username: "ben"}
	u3 = models.User{ID: "u3", Username: "cat"}
	t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
)

func signedInAs(u models.User) session.Identity {
	return session.Identity{State: session.StateAuthenticated, Token: "tok-" + u.ID, User: u}
}

func entry(id string, u models.User, action, itemType string) models.TimelineEntry {
	return models.TimelineEntry{ID: id, User: u, Action: action, ItemType: itemType, Timestamp: t0}
}

type harness struct {
	store   *Store
	backend *mockBackend
	room    *fakeRoom
	session *fakeSession
}

func newHarness(t *testing.T, as models.User) *harness {
	t.Helper()
	h := &harness{
		backend: new(mockBackend),
		room:    &fakeRoom{},
		session: &fakeSession{id: signedInAs(as)},
	}
	h.store = NewStore(h.session, h.backend, h.room)
	t.Cleanup(h.store.Dispose)
	return h
}

// open loads sb with the given timeline through the mocked backend.
func (h *harness) open(t *testing.T, sb *models.Scrapbook, timeline ...models.TimelineEntry) {
	t.Helper()
	if timeline == nil {
		timeline = []models.TimelineEntry{}
	}
	h.backend.On("GetScrapbook", mock.Anything, sb.ID).Return(sb, nil).Once()
	h.backend.On("GetTimeline", mock.Anything, sb.ID).Return(timeline, nil).Once()
	require.NoError(t, h.store.Open(context.Background(), sb.ID))
}

func tripScrapbook() *models.Scrapbook {
	return &models.Scrapbook{
		ID:            "s1",
		Title:         "Trip",
		Owner:         u1,
		Collaborators: []models.User{u2},
		Items:         []models.Item{},
		CreatedAt:     t0,
		UpdatedAt:     t0,
	}
}
