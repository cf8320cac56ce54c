// Package room maps the open scrapbook onto a live room of the event
// channel. A Manager owns the channel connection and is a member of at most
// one room at a time.
package room

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/dimitrije/snapbook/internal/apierr"
	"github.com/dimitrije/snapbook/internal/channel"
	"github.com/dimitrije/snapbook/internal/session"
	"github.com/dimitrije/snapbook/pkg/dto"
	"github.com/golang/glog"
)

var ErrNotAttached = errors.New("room not attached")

type State int

const (
	StateDetached State = iota
	StateJoining
	StateAttached
	StateDetaching
)

func (s State) String() string {
	switch s {
	case StateJoining:
		return "joining"
	case StateAttached:
		return "attached"
	case StateDetaching:
		return "detaching"
	default:
		return "detached"
	}
}

// Channel is the event channel as the manager drives it. *channel.Conn
// satisfies it.
type Channel interface {
	ID() string
	On(eventType string, h channel.Handler)
	Off(eventTypes ...string)
	OnConnect(fn func())
	Emit(msg dto.ClientMessage) error
	Close() error
}

type Dialer func(ctx context.Context, token string) (Channel, error)

// SocketDialer dials the live server at socketURL.
func SocketDialer(socketURL string, settings *channel.Settings) Dialer {
	return func(ctx context.Context, token string) (Channel, error) {
		conn, err := channel.Dial(ctx, socketURL, token, settings)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
}

// Identities is the part of the session the manager follows.
type Identities interface {
	Identity() session.Identity
	Subscribe(fn func(session.Identity)) func()
}

// Handlers maps event types to the reducers installed while attached.
type Handlers map[string]channel.Handler

// Rejoined is the Handlers key called after the room is joined again on a
// reconnected or replaced socket. Events of the gap are lost and presence
// starts over, so the handler resynchronizes. It is never called for the
// first join after Attach.
const Rejoined = "rejoined"

type Manager struct {
	ctx         context.Context
	dial        Dialer
	identities  Identities
	unsubscribe func()

	mu       sync.Mutex
	conn     Channel
	token    string
	state    State
	room     string
	handlers Handlers
	// joined is set once the join for room went out on a live connection.
	joined bool
	// wasJoined survives connection changes until the room is left.
	wasJoined bool
	closed    bool
}

func NewManager(ctx context.Context, identities Identities, dial Dialer) *Manager {
	m := &Manager{
		ctx:        ctx,
		dial:       dial,
		identities: identities,
	}
	m.unsubscribe = identities.Subscribe(m.identityChanged)
	return m
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Current returns the room the manager is joining or attached to.
func (m *Manager) Current() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateJoining || m.state == StateAttached {
		return m.room
	}
	return ""
}

// ConnectionID returns the id of the current socket, empty without one.
func (m *Manager) ConnectionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn == nil {
		return ""
	}
	return m.conn.ID()
}

// Joined reports whether the manager is attached and the server has been
// sent the join on the current connection.
func (m *Manager) Joined() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == StateAttached && m.joined
}

// Begin leaves any current room and marks scrapbookID as the room being
// joined. Nothing is emitted until Attach.
func (m *Manager) Begin(scrapbookID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.detachLocked()
	m.state = StateJoining
	m.room = scrapbookID
	m.wasJoined = false
}

// Attach installs handlers and emits the join for scrapbookID. It fails if
// another Begin or a Leave happened since the matching Begin.
func (m *Manager) Attach(scrapbookID string, handlers Handlers) error {
	id := m.identities.Identity()
	if id.State != session.StateAuthenticated {
		return apierr.New(apierr.KindAuth, "joinRoom", "not signed in")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return channel.ErrClosed
	}
	if m.state != StateJoining || m.room != scrapbookID {
		return ErrNotAttached
	}

	if err := m.ensureConnLocked(id.Token); err != nil {
		m.state = StateDetached
		m.room = ""
		return err
	}

	m.handlers = handlers
	m.installLocked()
	m.state = StateAttached

	if err := m.conn.Emit(joinMessage(scrapbookID)); err != nil {
		// the connect hook joins once the channel is up
		glog.V(1).Infof("[room]join %s deferred: %s", scrapbookID, err)
	} else {
		m.joined = true
		m.wasJoined = true
	}
	glog.V(1).Infof("[room]attached %s", scrapbookID)
	return nil
}

// Leave uninstalls handlers and leaves the current room. The leave frame is
// best effort; the manager always ends Detached.
func (m *Manager) Leave() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.detachLocked()
}

// Emit sends a room-scoped frame. It fails unless the manager is attached
// to scrapbookID.
func (m *Manager) Emit(action, scrapbookID string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateAttached || m.room != scrapbookID || m.conn == nil {
		return ErrNotAttached
	}
	return m.conn.Emit(dto.ClientMessage{Action: action, ScrapbookID: scrapbookID, Data: raw})
}

// Close leaves the room, drops the connection and stops following the
// session.
func (m *Manager) Close() error {
	m.unsubscribe()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.detachLocked()
	conn := m.conn
	m.conn = nil
	m.token = ""
	m.mu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (m *Manager) detachLocked() {
	if m.state == StateDetached {
		return
	}
	m.state = StateDetaching
	m.joined = false
	m.wasJoined = false
	room := m.room
	if m.conn != nil {
		m.uninstallLocked()
		if room != "" {
			if err := m.conn.Emit(dto.ClientMessage{Action: dto.ActionLeaveRoom, ScrapbookID: room}); err != nil {
				glog.V(1).Infof("[room]leave %s not sent: %s", room, err)
			}
		}
	}
	m.handlers = nil
	m.room = ""
	m.state = StateDetached
	glog.V(1).Infof("[room]detached %s", room)
}

func (m *Manager) ensureConnLocked(token string) error {
	if m.conn != nil && m.token == token {
		return nil
	}
	if m.conn != nil {
		old := m.conn
		go old.Close()
	}
	conn, err := m.dial(m.ctx, token)
	if err != nil {
		m.conn = nil
		m.token = ""
		return apierr.Network("joinRoom", err)
	}
	m.conn = conn
	m.token = token
	m.joined = false
	conn.OnConnect(func() { m.rejoin(conn) })
	return nil
}

// rejoin runs on every (re)connect of conn and restores room membership.
func (m *Manager) rejoin(conn Channel) {
	m.mu.Lock()
	if m.conn != conn || m.state != StateAttached {
		m.mu.Unlock()
		return
	}
	room := m.room
	if err := conn.Emit(joinMessage(room)); err != nil {
		m.mu.Unlock()
		glog.Infof("[room]rejoin %s: %s", room, err)
		return
	}
	m.joined = true
	resync := m.handlers[Rejoined]
	if !m.wasJoined {
		resync = nil
	}
	m.wasJoined = true
	m.mu.Unlock()

	if resync != nil {
		glog.V(1).Infof("[room]rejoined %s", room)
		resync(dto.Event{Type: Rejoined, ScrapbookID: room})
	}
}

func (m *Manager) installLocked() {
	room := m.room
	for eventType, h := range m.handlers {
		if eventType == Rejoined {
			continue
		}
		m.conn.On(eventType, func(ev dto.Event) {
			if ev.ScrapbookID != "" && ev.ScrapbookID != room {
				return
			}
			h(ev)
		})
	}
}

func (m *Manager) uninstallLocked() {
	types := make([]string, 0, len(m.handlers))
	for eventType := range m.handlers {
		if eventType != Rejoined {
			types = append(types, eventType)
		}
	}
	m.conn.Off(types...)
}

// identityChanged replaces the connection when the token changes. The room
// survives a re-authentication and is rejoined on the new connection.
func (m *Manager) identityChanged(id session.Identity) {
	m.mu.Lock()
	if m.closed || (id.State == session.StateAuthenticated && id.Token == m.token) {
		m.mu.Unlock()
		return
	}

	old := m.conn
	m.conn = nil
	m.token = ""
	m.joined = false

	switch {
	case id.State != session.StateAuthenticated:
		m.handlers = nil
		m.room = ""
		m.state = StateDetached
		m.wasJoined = false
	case m.state == StateAttached:
		if err := m.ensureConnLocked(id.Token); err != nil {
			glog.Warningf("[room]reconnect for %s: %s", id.UserID(), err)
			m.handlers = nil
			m.room = ""
			m.state = StateDetached
		} else {
			m.installLocked()
		}
	}
	m.mu.Unlock()

	if old != nil {
		old.Close()
	}
}

func joinMessage(scrapbookID string) dto.ClientMessage {
	return dto.ClientMessage{Action: dto.ActionJoinRoom, ScrapbookID: scrapbookID}
}
