// Package session is the identity provider: it holds the current auth token
// and user and notifies listeners whenever either changes.
package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/dimitrije/snapbook/internal/apierr"
	"github.com/dimitrije/snapbook/internal/models"
	"github.com/dimitrije/snapbook/pkg/dto"
	"github.com/golang-jwt/jwt/v5"
	"github.com/golang/glog"
)

type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticating
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unauthenticated"
	}
}

// AuthClient is the subset of the REST transport the session drives. Every
// call that needs a token receives it explicitly.
type AuthClient interface {
	Login(ctx context.Context, email, password string) (*dto.AuthResponse, error)
	Register(ctx context.Context, req dto.RegisterRequest) (*dto.AuthResponse, error)
	MeWithToken(ctx context.Context, token string) (*models.User, error)
	UpdateProfileWithToken(ctx context.Context, token string, req dto.UpdateProfileRequest) (*models.User, error)
}

// Identity is an immutable snapshot of the session.
type Identity struct {
	State State
	Token string
	User  models.User
}

func (i Identity) UserID() string {
	return i.User.ID
}

type Session struct {
	auth AuthClient
	now  func() time.Time

	mu        sync.RWMutex
	state     State
	token     string
	user      models.User
	updating  bool
	listeners map[int]func(Identity)
	nextID    int
}

func New(auth AuthClient) *Session {
	return &Session{
		auth:      auth,
		now:       time.Now,
		listeners: make(map[int]func(Identity)),
	}
}

func (s *Session) Identity() Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Identity{State: s.state, Token: s.token, User: s.user}
}

// Token implements api.TokenSource.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != StateAuthenticated {
		return ""
	}
	return s.token
}

func (s *Session) User() models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) Authenticated() bool {
	return s.State() == StateAuthenticated
}

// Subscribe registers fn for every identity change. The returned function
// removes it.
func (s *Session) Subscribe(fn func(Identity)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Session) SignIn(ctx context.Context, email, password string) (*models.User, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, apierr.Validation("signIn", "email and password are required")
	}

	prev := s.begin()
	resp, err := s.auth.Login(ctx, email, password)
	if err != nil {
		s.abort(prev)
		return nil, err
	}
	s.install(resp.Token, resp.User)
	return &resp.User, nil
}

func (s *Session) SignUp(ctx context.Context, req dto.RegisterRequest) (*models.User, error) {
	req.Email = strings.TrimSpace(req.Email)
	req.Username = strings.TrimSpace(req.Username)
	if req.Email == "" || req.Password == "" || req.Username == "" {
		return nil, apierr.Validation("signUp", "email, password and username are required")
	}

	prev := s.begin()
	resp, err := s.auth.Register(ctx, req)
	if err != nil {
		s.abort(prev)
		return nil, err
	}
	s.install(resp.Token, resp.User)
	return &resp.User, nil
}

// Restore re-establishes a session from a stored token. The token is checked
// against the server: an auth failure signs out, while an unreachable
// server keeps the session alive on the cached profile, if one is given.
func (s *Session) Restore(ctx context.Context, token string, cached *models.User) error {
	if token == "" {
		return apierr.Validation("restore", "token is required")
	}

	prev := s.begin()
	user, err := s.auth.MeWithToken(ctx, token)
	if err != nil {
		switch {
		case apierr.KindOf(err) == apierr.KindAuth:
			s.SignOut()
			return err
		case apierr.KindOf(err) == apierr.KindNetwork && cached != nil:
			glog.Warningf("[session]restore offline, keeping cached user %s: %s", cached.ID, err)
			s.install(token, *cached)
			return nil
		default:
			s.abort(prev)
			return err
		}
	}
	s.install(token, *user)
	return nil
}

func (s *Session) SignOut() {
	s.mu.Lock()
	changed := s.state != StateUnauthenticated || s.token != ""
	s.state = StateUnauthenticated
	s.token = ""
	s.user = models.User{}
	s.mu.Unlock()

	if changed {
		glog.V(1).Infof("[session]signed out")
		s.notify()
	}
}

// Invalidate drops a token the server rejected.
func (s *Session) Invalidate(reason error) {
	if s.State() == StateUnauthenticated {
		return
	}
	glog.Infof("[session]token invalidated: %v", reason)
	s.SignOut()
}

// Expired reports whether the token's exp claim has passed. The signature
// is not verified; the server remains the authority on validity.
func (s *Session) Expired() bool {
	token := s.Token()
	if token == "" {
		return false
	}
	return tokenExpired(token, s.now())
}

func tokenExpired(token string, now time.Time) bool {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return false
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return now.After(exp.Time)
}

// Require gates an operation on a live session. An expired token is
// invalidated here without a round trip.
func (s *Session) Require(op string) (Identity, error) {
	id := s.Identity()
	if id.State != StateAuthenticated || id.Token == "" {
		return id, apierr.New(apierr.KindAuth, op, "not signed in")
	}
	if tokenExpired(id.Token, s.now()) {
		err := apierr.New(apierr.KindAuth, op, "session expired")
		s.Invalidate(err)
		return id, err
	}
	return id, nil
}

func (s *Session) UpdateProfile(ctx context.Context, req dto.UpdateProfileRequest) (*models.User, error) {
	id, err := s.Require("updateProfile")
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.updating {
		s.mu.Unlock()
		return nil, apierr.Validation("updateProfile", "profile update already in progress")
	}
	s.updating = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.updating = false
		s.mu.Unlock()
	}()

	user, err := s.auth.UpdateProfileWithToken(ctx, id.Token, req)
	if err != nil {
		if apierr.KindOf(err) == apierr.KindAuth {
			s.Invalidate(err)
		}
		return nil, err
	}

	s.mu.Lock()
	if s.token != id.Token {
		// signed out or switched accounts while the update was in flight
		s.mu.Unlock()
		return user, nil
	}
	s.user = *user
	s.mu.Unlock()
	s.notify()
	return user, nil
}

func (s *Session) begin() State {
	s.mu.Lock()
	prev := s.state
	s.state = StateAuthenticating
	s.mu.Unlock()
	return prev
}

func (s *Session) abort(prev State) {
	s.mu.Lock()
	if s.state == StateAuthenticating {
		s.state = prev
	}
	s.mu.Unlock()
}

func (s *Session) install(token string, user models.User) {
	s.mu.Lock()
	s.state = StateAuthenticated
	s.token = token
	s.user = user
	s.mu.Unlock()

	glog.V(1).Infof("[session]authenticated as %s", user.ID)
	s.notify()
}

func (s *Session) notify() {
	id := s.Identity()

	s.mu.RLock()
	fns := make([]func(Identity), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()

	for _, fn := range fns {
		fn(id)
	}
}
