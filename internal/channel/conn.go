// Package channel is the persistent event channel to the live server. A Conn
// keeps one websocket open for an authenticated user, reconnecting in the
// background, and dispatches inbound events to per-type handlers.
package channel

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"sync"
	"time"

	"github.com/dimitrije/snapbook/pkg/dto"
	"github.com/golang/glog"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var ErrClosed = errors.New("channel closed")
var ErrNotConnected = errors.New("channel not connected")

type Handler func(ev dto.Event)

type Settings struct {
	ReconnectTimeout time.Duration
	HandshakeTimeout time.Duration
	PingInterval     time.Duration
	WriteTimeout     time.Duration
	// ReadTimeout must be longer than PingInterval since pongs are what
	// keep an idle connection readable.
	ReadTimeout    time.Duration
	SendBufferSize int
}

func DefaultSettings() *Settings {
	return &Settings{
		ReconnectTimeout: 2 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		PingInterval:     30 * time.Second,
		WriteTimeout:     10 * time.Second,
		ReadTimeout:      75 * time.Second,
		SendBufferSize:   64,
	}
}

// ConnectionParam names the socket's id in the dial URL. The id stays the
// same across reconnects of one Conn.
const ConnectionParam = "connectionId"

type Conn struct {
	ctx    context.Context
	cancel context.CancelFunc

	id       string
	url      string
	settings *Settings
	dialer   *websocket.Dialer

	send chan []byte
	done chan struct{}

	mu        sync.Mutex
	handlers  map[string]Handler
	onConnect func()
	connected bool
}

// Dial starts a connection loop for token against the socket endpoint at
// rawURL. It returns immediately; the first connect happens in the
// background and every reconnect invokes the OnConnect hook.
func Dial(ctx context.Context, rawURL, token string, settings *Settings) (*Conn, error) {
	if settings == nil {
		settings = DefaultSettings()
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	id := uuid.NewString()
	q := u.Query()
	q.Set("token", token)
	q.Set(ConnectionParam, id)
	u.RawQuery = q.Encode()

	cancelCtx, cancel := context.WithCancel(ctx)
	c := &Conn{
		ctx:      cancelCtx,
		cancel:   cancel,
		id:       id,
		url:      u.String(),
		settings: settings,
		dialer: &websocket.Dialer{
			HandshakeTimeout: settings.HandshakeTimeout,
		},
		send:     make(chan []byte, settings.SendBufferSize),
		done:     make(chan struct{}),
		handlers: make(map[string]Handler),
	}
	go c.run()
	return c, nil
}

func (c *Conn) ID() string {
	return c.id
}

func (c *Conn) On(eventType string, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[eventType] = h
}

func (c *Conn) Off(eventTypes ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range eventTypes {
		delete(c.handlers, t)
	}
}

func (c *Conn) OffAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = make(map[string]Handler)
}

// OnConnect installs a hook run after every successful (re)connect, before
// any inbound event of that connection is dispatched.
func (c *Conn) OnConnect(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onConnect = fn
}

func (c *Conn) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Emit queues a frame for the current connection. Frames emitted while
// disconnected are dropped; Emit never blocks.
func (c *Conn) Emit(msg dto.ClientMessage) error {
	select {
	case <-c.ctx.Done():
		return ErrClosed
	default:
	}
	if !c.Connected() {
		glog.V(1).Infof("[c]%s drop %s while disconnected", c.id, msg.Action)
		return ErrNotConnected
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	select {
	case c.send <- data:
		return nil
	default:
		glog.Infof("[c]%s drop %s, send buffer full", c.id, msg.Action)
		return ErrNotConnected
	}
}

// Close stops the connection loop. It is safe to call more than once.
func (c *Conn) Close() error {
	c.cancel()
	<-c.done
	return nil
}

func (c *Conn) Done() <-chan struct{} {
	return c.done
}

func (c *Conn) run() {
	defer close(c.done)

	for {
		ws, err := c.connect()
		if err != nil {
			glog.Infof("[c]%s connect error = %s", c.id, err)
		} else {
			c.handle(ws)
		}

		select {
		case <-c.ctx.Done():
			return
		case <-time.After(c.settings.ReconnectTimeout):
		}
	}
}

func (c *Conn) connect() (*websocket.Conn, error) {
	ws, _, err := c.dialer.DialContext(c.ctx, c.url, nil)
	if err != nil {
		return nil, err
	}
	return ws, nil
}

func (c *Conn) handle(ws *websocket.Conn) {
	defer ws.Close()

	handleCtx, handleCancel := context.WithCancel(c.ctx)
	defer handleCancel()

	c.mu.Lock()
	c.connected = true
	hook := c.onConnect
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
	}()

	glog.V(1).Infof("[c]%s connected", c.id)

	written := make(chan struct{})
	go func() {
		defer close(written)
		defer handleCancel()

		ticker := time.NewTicker(c.settings.PingInterval)
		defer ticker.Stop()
		ping, _ := json.Marshal(dto.ClientMessage{Action: dto.ActionPing})

		for {
			select {
			case <-handleCtx.Done():
				c.flush(ws)
				ws.SetWriteDeadline(time.Now().Add(c.settings.WriteTimeout))
				_ = ws.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			case message := <-c.send:
				ws.SetWriteDeadline(time.Now().Add(c.settings.WriteTimeout))
				if err := ws.WriteMessage(websocket.TextMessage, message); err != nil {
					glog.Infof("[cs]%s-> error = %s", c.id, err)
					return
				}
				glog.V(2).Infof("[cs]%s-> %s", c.id, message)
			case <-ticker.C:
				ws.SetWriteDeadline(time.Now().Add(c.settings.WriteTimeout))
				if err := ws.WriteMessage(websocket.TextMessage, ping); err != nil {
					return
				}
			}
		}
	}()

	if hook != nil {
		hook()
	}

	go func() {
		defer handleCancel()

		for {
			ws.SetReadDeadline(time.Now().Add(c.settings.ReadTimeout))
			messageType, message, err := ws.ReadMessage()
			if err != nil {
				select {
				case <-handleCtx.Done():
				default:
					glog.Infof("[cr]%s<- error = %s", c.id, err)
				}
				return
			}
			if messageType != websocket.TextMessage {
				continue
			}

			var ev dto.Event
			if err := json.Unmarshal(message, &ev); err != nil {
				glog.Warningf("[cr]%s<- bad frame = %s", c.id, err)
				continue
			}
			glog.V(2).Infof("[cr]%s<- %s", c.id, ev.Type)
			c.dispatch(ev)
		}
	}()

	<-handleCtx.Done()
	<-written
}

// flush writes the frames still queued when the connection ends.
func (c *Conn) flush(ws *websocket.Conn) {
	for {
		select {
		case message := <-c.send:
			ws.SetWriteDeadline(time.Now().Add(c.settings.WriteTimeout))
			if err := ws.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
			glog.V(2).Infof("[cs]%s-> %s", c.id, message)
		default:
			return
		}
	}
}

func (c *Conn) dispatch(ev dto.Event) {
	c.mu.Lock()
	h, ok := c.handlers[ev.Type]
	c.mu.Unlock()
	if !ok {
		return
	}
	h(ev)
}
