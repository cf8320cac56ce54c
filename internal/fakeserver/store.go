package fakeserver

import (
	"net/http"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dimitrije/snapbook/internal/models"
	"github.com/dimitrije/snapbook/pkg/dto"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Error carries the HTTP status a store failure maps to.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func invalid(msg string) *Error {
	return &Error{Status: http.StatusBadRequest, Message: msg}
}

var (
	ErrInvalidCredentials   = &Error{http.StatusUnauthorized, "invalid credentials"}
	ErrEmailTaken           = &Error{http.StatusConflict, "email already registered"}
	ErrUsernameTaken        = &Error{http.StatusConflict, "username already taken"}
	ErrUserNotFound         = &Error{http.StatusNotFound, "user not found"}
	ErrScrapbookNotFound    = &Error{http.StatusNotFound, "scrapbook not found"}
	ErrItemNotFound         = &Error{http.StatusNotFound, "item not found"}
	ErrCollaboratorNotFound = &Error{http.StatusNotFound, "collaborator not found"}
	ErrFileNotFound         = &Error{http.StatusNotFound, "file not found"}
	ErrAlreadyCollaborator  = &Error{http.StatusConflict, "already a collaborator"}
	ErrNotOwner             = &Error{http.StatusForbidden, "only the owner can do that"}
	ErrOwnerRemoval         = &Error{http.StatusBadRequest, "the owner cannot be removed"}
)

type account struct {
	user         models.User
	passwordHash []byte
}

type file struct {
	contentType string
	data        []byte
}

// Store is the in-memory durable store behind the fake backend. Every
// mutation produces exactly one timeline entry.
type Store struct {
	hashCost int
	now      func() time.Time

	mu         sync.RWMutex
	accounts   map[string]*account
	byEmail    map[string]string
	byUsername map[string]string
	scrapbooks map[string]*models.Scrapbook
	timelines  map[string][]models.TimelineEntry
	files      map[string]file
}

func NewStore(hashCost int) *Store {
	if hashCost == 0 {
		hashCost = bcrypt.DefaultCost
	}
	return &Store{
		hashCost:   hashCost,
		now:        func() time.Time { return time.Now().UTC() },
		accounts:   make(map[string]*account),
		byEmail:    make(map[string]string),
		byUsername: make(map[string]string),
		scrapbooks: make(map[string]*models.Scrapbook),
		timelines:  make(map[string][]models.TimelineEntry),
		files:      make(map[string]file),
	}
}

func (s *Store) Register(req dto.RegisterRequest) (models.User, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	username := strings.TrimSpace(req.Username)
	if email == "" || req.Password == "" || username == "" {
		return models.User{}, invalid("email, password and username are required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.hashCost)
	if err != nil {
		return models.User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byEmail[email]; ok {
		return models.User{}, ErrEmailTaken
	}
	if _, ok := s.byUsername[strings.ToLower(username)]; ok {
		return models.User{}, ErrUsernameTaken
	}

	user := models.User{
		ID:       uuid.NewString(),
		Username: username,
		Email:    email,
		Avatar:   req.Avatar,
	}
	s.accounts[user.ID] = &account{user: user, passwordHash: hash}
	s.byEmail[email] = user.ID
	s.byUsername[strings.ToLower(username)] = user.ID
	return user, nil
}

func (s *Store) Authenticate(email, password string) (models.User, error) {
	s.mu.RLock()
	id, ok := s.byEmail[strings.ToLower(strings.TrimSpace(email))]
	var acc *account
	if ok {
		acc = s.accounts[id]
	}
	s.mu.RUnlock()

	if acc == nil {
		return models.User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(acc.passwordHash, []byte(password)); err != nil {
		return models.User{}, ErrInvalidCredentials
	}
	return acc.user, nil
}

func (s *Store) User(id string) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acc, ok := s.accounts[id]
	if !ok {
		return models.User{}, ErrUserNotFound
	}
	return acc.user, nil
}

// SearchUsers matches query against usernames and emails, ignoring case.
// The searching user is left out.
func (s *Store) SearchUsers(query, excludeID string) ([]models.User, error) {
	query = strings.ToLower(strings.TrimSpace(query))
	if len([]rune(query)) < 2 {
		return nil, invalid("query must be at least 2 characters")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	users := []models.User{}
	for id, acc := range s.accounts {
		if id == excludeID {
			continue
		}
		if strings.Contains(strings.ToLower(acc.user.Username), query) ||
			strings.Contains(strings.ToLower(acc.user.Email), query) {
			users = append(users, acc.user)
		}
	}
	sort.Slice(users, func(i, j int) bool {
		return strings.ToLower(users[i].Username) < strings.ToLower(users[j].Username)
	})
	return users, nil
}

func (s *Store) UpdateProfile(id string, req dto.UpdateProfileRequest) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[id]
	if !ok {
		return models.User{}, ErrUserNotFound
	}
	user := acc.user

	if req.Username != nil {
		name := strings.TrimSpace(*req.Username)
		if name == "" {
			return models.User{}, invalid("username cannot be empty")
		}
		key := strings.ToLower(name)
		if other, taken := s.byUsername[key]; taken && other != id {
			return models.User{}, ErrUsernameTaken
		}
		delete(s.byUsername, strings.ToLower(user.Username))
		s.byUsername[key] = id
		user.Username = name
	}
	if req.Avatar != nil {
		user.Avatar = *req.Avatar
	}
	if req.Bio != nil {
		user.Bio = *req.Bio
	}

	acc.user = user
	return user, nil
}

func canAccess(sb *models.Scrapbook, userID string) bool {
	return sb.IsOwner(userID) || sb.CollaboratorIndex(userID) >= 0
}

// scrapbook returns the live record; callers hold s.mu.
func (s *Store) scrapbook(id, userID string) (*models.Scrapbook, error) {
	sb, ok := s.scrapbooks[id]
	if !ok || !canAccess(sb, userID) {
		return nil, ErrScrapbookNotFound
	}
	return sb, nil
}

// ListScrapbooks returns the scrapbooks userID owns or collaborates on,
// most recently updated first.
func (s *Store) ListScrapbooks(userID string) []models.Scrapbook {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := []models.Scrapbook{}
	for _, sb := range s.scrapbooks {
		if canAccess(sb, userID) {
			list = append(list, *sb.Clone())
		}
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].UpdatedAt.After(list[j].UpdatedAt)
	})
	return list
}

func (s *Store) Scrapbook(id, userID string) (*models.Scrapbook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sb, err := s.scrapbook(id, userID)
	if err != nil {
		return nil, err
	}
	return sb.Clone(), nil
}

// Timeline returns the entries of id, newest first.
func (s *Store) Timeline(id, userID string) ([]models.TimelineEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, err := s.scrapbook(id, userID); err != nil {
		return nil, err
	}
	return append([]models.TimelineEntry{}, s.timelines[id]...), nil
}

func (s *Store) CreateScrapbook(userID, title string) (*models.Scrapbook, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, invalid("title is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	now := s.now()
	sb := &models.Scrapbook{
		ID:            uuid.NewString(),
		Title:         title,
		Owner:         acc.user,
		Collaborators: []models.User{},
		Items:         []models.Item{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	s.scrapbooks[sb.ID] = sb
	return sb.Clone(), nil
}

func (s *Store) DeleteScrapbook(id, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sb, err := s.scrapbook(id, userID)
	if err != nil {
		return err
	}
	if !sb.IsOwner(userID) {
		return ErrNotOwner
	}
	delete(s.scrapbooks, id)
	delete(s.timelines, id)
	return nil
}

func (s *Store) UpdateTitle(id, userID, title string) (models.TimelineEntry, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return models.TimelineEntry{}, invalid("title is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sb, err := s.scrapbook(id, userID)
	if err != nil {
		return models.TimelineEntry{}, err
	}
	sb.Title = title
	return s.recordLocked(sb, userID, models.ActionUpdated, models.SubjectTitle, title), nil
}

func (s *Store) AddItem(id, userID string, req dto.AddItemRequest) (models.Item, models.TimelineEntry, error) {
	item := models.Item{Type: req.Type, Content: req.Content, Position: req.Position}
	if err := item.Validate(); err != nil {
		return models.Item{}, models.TimelineEntry{}, invalid(err.Error())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sb, err := s.scrapbook(id, userID)
	if err != nil {
		return models.Item{}, models.TimelineEntry{}, err
	}
	item.ID = uuid.NewString()
	item.CreatedBy = userID
	sb.Items = append(sb.Items, item)
	entry := s.recordLocked(sb, userID, models.ActionAdded, string(item.Type), "")
	return item, entry, nil
}

func (s *Store) RemoveItem(id, userID, itemID string) (models.TimelineEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sb, err := s.scrapbook(id, userID)
	if err != nil {
		return models.TimelineEntry{}, err
	}
	i := sb.ItemIndex(itemID)
	if i < 0 {
		return models.TimelineEntry{}, ErrItemNotFound
	}
	item := sb.Items[i]
	sb.Items = append(sb.Items[:i:i], sb.Items[i+1:]...)
	return s.recordLocked(sb, userID, models.ActionRemoved, string(item.Type), ""), nil
}

func (s *Store) AddCollaborator(id, userID, username string) (models.User, models.TimelineEntry, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return models.User{}, models.TimelineEntry{}, invalid("username is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sb, err := s.scrapbook(id, userID)
	if err != nil {
		return models.User{}, models.TimelineEntry{}, err
	}
	targetID, ok := s.byUsername[strings.ToLower(username)]
	if !ok {
		return models.User{}, models.TimelineEntry{}, ErrUserNotFound
	}
	if canAccess(sb, targetID) {
		return models.User{}, models.TimelineEntry{}, ErrAlreadyCollaborator
	}
	target := s.accounts[targetID].user
	sb.Collaborators = append(sb.Collaborators, target)
	entry := s.recordLocked(sb, userID, models.ActionAdded, models.SubjectCollaborator, target.Username)
	return target, entry, nil
}

// RemoveCollaborator lets the owner remove anyone but themself, and a
// collaborator remove only themself.
func (s *Store) RemoveCollaborator(id, userID, collaboratorID string) (models.TimelineEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sb, err := s.scrapbook(id, userID)
	if err != nil {
		return models.TimelineEntry{}, err
	}
	if sb.IsOwner(collaboratorID) {
		return models.TimelineEntry{}, ErrOwnerRemoval
	}
	i := sb.CollaboratorIndex(collaboratorID)
	if i < 0 {
		return models.TimelineEntry{}, ErrCollaboratorNotFound
	}
	if !sb.IsOwner(userID) && collaboratorID != userID {
		return models.TimelineEntry{}, ErrNotOwner
	}
	removed := sb.Collaborators[i]
	sb.Collaborators = append(sb.Collaborators[:i:i], sb.Collaborators[i+1:]...)
	return s.recordLocked(sb, userID, models.ActionRemoved, models.SubjectCollaborator, removed.Username), nil
}

func (s *Store) recordLocked(sb *models.Scrapbook, userID, action, subject, details string) models.TimelineEntry {
	now := s.now()
	sb.UpdatedAt = now
	entry := models.TimelineEntry{
		ID:        uuid.NewString(),
		User:      s.accounts[userID].user,
		Action:    action,
		ItemType:  subject,
		Details:   details,
		Timestamp: now,
	}
	s.timelines[sb.ID] = append([]models.TimelineEntry{entry}, s.timelines[sb.ID]...)
	return entry
}

// PutFile stores an upload and returns its key, which keeps the original
// extension.
func (s *Store) PutFile(name, contentType string, data []byte) string {
	key := uuid.NewString() + strings.ToLower(path.Ext(name))

	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[key] = file{contentType: contentType, data: data}
	return key
}

func (s *Store) File(key string) (string, []byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.files[key]
	if !ok {
		return "", nil, ErrFileNotFound
	}
	return f.contentType, f.data, nil
}

func (s *Store) DeleteFile(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.files[key]; !ok {
		return ErrFileNotFound
	}
	delete(s.files, key)
	return nil
}
