package fakeserver

import (
	"net/http"
	"testing"

	"github.com/dimitrije/snapbook/internal/models"
	"github.com/dimitrije/snapbook/pkg/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestStore(t *testing.T, usernames ...string) (*Store, map[string]models.User) {
	t.Helper()
	s := NewStore(bcrypt.MinCost)
	users := make(map[string]models.User)
	for _, name := range usernames {
		u, err := s.Register(dto.RegisterRequest{Email: name + "@example.com", Password: "pw-" + name, Username: name})
		require.NoError(t, err)
		users[name] = u
	}
	return s, users
}

func TestStore_Register(t *testing.T) {
	s, users := newTestStore(t, "ana")

	assert.NotEmpty(t, users["ana"].ID)
	assert.Equal(t, "ana@example.com", users["ana"].Email)

	_, err := s.Register(dto.RegisterRequest{Email: "ANA@example.com", Password: "x", Username: "other"})
	assert.ErrorIs(t, err, ErrEmailTaken)

	_, err = s.Register(dto.RegisterRequest{Email: "new@example.com", Password: "x", Username: "Ana"})
	assert.ErrorIs(t, err, ErrUsernameTaken)

	_, err = s.Register(dto.RegisterRequest{Email: "new@example.com", Username: "new"})
	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, http.StatusBadRequest, e.Status)
}

func TestStore_Authenticate(t *testing.T) {
	s, users := newTestStore(t, "ana")

	u, err := s.Authenticate(" Ana@Example.com ", "pw-ana")
	require.NoError(t, err)
	assert.Equal(t, users["ana"].ID, u.ID)

	_, err = s.Authenticate("ana@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = s.Authenticate("nobody@example.com", "pw-ana")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestStore_UpdateProfile(t *testing.T) {
	s, users := newTestStore(t, "ana", "ben")
	name, bio := "anna", "hello"

	u, err := s.UpdateProfile(users["ana"].ID, dto.UpdateProfileRequest{Username: &name, Bio: &bio})
	require.NoError(t, err)
	assert.Equal(t, "anna", u.Username)
	assert.Equal(t, "hello", u.Bio)

	taken := "ben"
	_, err = s.UpdateProfile(users["ana"].ID, dto.UpdateProfileRequest{Username: &taken})
	assert.ErrorIs(t, err, ErrUsernameTaken)

	// the old name is free again
	old := "ana"
	_, err = s.UpdateProfile(users["ben"].ID, dto.UpdateProfileRequest{Username: &old})
	assert.NoError(t, err)
}

func TestStore_SearchUsers(t *testing.T) {
	s, users := newTestStore(t, "ana", "benny", "ben", "cat")

	found, err := s.SearchUsers(" BEN ", users["ana"].ID)
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "ben", found[0].Username)
	assert.Equal(t, "benny", found[1].Username)

	found, err = s.SearchUsers("example.com", users["ana"].ID)
	require.NoError(t, err)
	assert.Len(t, found, 3, "the searching user is left out")

	found, err = s.SearchUsers("zz", users["ana"].ID)
	require.NoError(t, err)
	assert.Empty(t, found)

	_, err = s.SearchUsers("b", users["ana"].ID)
	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, http.StatusBadRequest, e.Status)
}

func TestStore_ScrapbookAccess(t *testing.T) {
	s, users := newTestStore(t, "ana", "ben", "cy")
	sb, err := s.CreateScrapbook(users["ana"].ID, "Trip")
	require.NoError(t, err)

	_, err = s.Scrapbook(sb.ID, users["ben"].ID)
	assert.ErrorIs(t, err, ErrScrapbookNotFound)
	assert.Empty(t, s.ListScrapbooks(users["ben"].ID))

	_, _, err = s.AddCollaborator(sb.ID, users["ana"].ID, "ben")
	require.NoError(t, err)

	got, err := s.Scrapbook(sb.ID, users["ben"].ID)
	require.NoError(t, err)
	assert.Equal(t, "Trip", got.Title)
	assert.Len(t, s.ListScrapbooks(users["ben"].ID), 1)

	_, err = s.Timeline(sb.ID, users["cy"].ID)
	assert.ErrorIs(t, err, ErrScrapbookNotFound)
}

func TestStore_MutationsRecordTimeline(t *testing.T) {
	s, users := newTestStore(t, "ana", "ben")
	ana := users["ana"].ID
	sb, err := s.CreateScrapbook(ana, "Trip")
	require.NoError(t, err)

	_, err = s.UpdateTitle(sb.ID, ana, "Road trip")
	require.NoError(t, err)
	item, _, err := s.AddItem(sb.ID, ana, dto.AddItemRequest{Type: models.ItemTypeText, Content: "day one"})
	require.NoError(t, err)
	_, err = s.RemoveItem(sb.ID, ana, item.ID)
	require.NoError(t, err)
	_, _, err = s.AddCollaborator(sb.ID, ana, "ben")
	require.NoError(t, err)
	_, err = s.RemoveCollaborator(sb.ID, ana, users["ben"].ID)
	require.NoError(t, err)

	timeline, err := s.Timeline(sb.ID, ana)
	require.NoError(t, err)
	require.Len(t, timeline, 5)

	// newest first
	assert.Equal(t, models.ActionRemoved, timeline[0].Action)
	assert.Equal(t, models.SubjectCollaborator, timeline[0].ItemType)
	assert.Equal(t, "ben", timeline[0].Details)
	assert.Equal(t, models.ActionUpdated, timeline[4].Action)
	assert.Equal(t, models.SubjectTitle, timeline[4].ItemType)
	assert.Equal(t, "Road trip", timeline[4].Details)

	ids := map[string]bool{}
	for _, e := range timeline {
		assert.Equal(t, ana, e.User.ID)
		ids[e.ID] = true
	}
	assert.Len(t, ids, 5)

	got, err := s.Scrapbook(sb.ID, ana)
	require.NoError(t, err)
	assert.Equal(t, "Road trip", got.Title)
	assert.Empty(t, got.Items)
	assert.Empty(t, got.Collaborators)
}

func TestStore_AddItem(t *testing.T) {
	s, users := newTestStore(t, "ana")
	ana := users["ana"].ID
	sb, err := s.CreateScrapbook(ana, "Trip")
	require.NoError(t, err)

	a, _, err := s.AddItem(sb.ID, ana, dto.AddItemRequest{Type: models.ItemTypeText, Content: "a"})
	require.NoError(t, err)
	b, _, err := s.AddItem(sb.ID, ana, dto.AddItemRequest{Type: models.ItemTypeImage, Content: "http://x/y.png"})
	require.NoError(t, err)

	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, ana, a.CreatedBy)

	got, err := s.Scrapbook(sb.ID, ana)
	require.NoError(t, err)
	require.Len(t, got.Items, 2)
	assert.Equal(t, a.ID, got.Items[0].ID)

	_, _, err = s.AddItem(sb.ID, ana, dto.AddItemRequest{Type: "video", Content: "x"})
	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, http.StatusBadRequest, e.Status)

	_, err = s.RemoveItem(sb.ID, ana, "missing")
	assert.ErrorIs(t, err, ErrItemNotFound)
}

func TestStore_Collaborators(t *testing.T) {
	s, users := newTestStore(t, "ana", "ben", "cy")
	ana, ben, cy := users["ana"].ID, users["ben"].ID, users["cy"].ID
	sb, err := s.CreateScrapbook(ana, "Trip")
	require.NoError(t, err)
	_, _, err = s.AddCollaborator(sb.ID, ana, "ben")
	require.NoError(t, err)
	_, _, err = s.AddCollaborator(sb.ID, ana, "cy")
	require.NoError(t, err)

	tests := []struct {
		name   string
		actor  string
		target string
		err    error
	}{
		{"owner cannot be removed", ana, ana, ErrOwnerRemoval},
		{"unknown collaborator", ana, "nobody", ErrCollaboratorNotFound},
		{"collaborator cannot remove others", ben, cy, ErrNotOwner},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.RemoveCollaborator(sb.ID, tt.actor, tt.target)
			assert.ErrorIs(t, err, tt.err)
		})
	}

	_, _, err = s.AddCollaborator(sb.ID, ben, "ana")
	assert.ErrorIs(t, err, ErrAlreadyCollaborator)
	_, _, err = s.AddCollaborator(sb.ID, ana, "ghost")
	assert.ErrorIs(t, err, ErrUserNotFound)

	// self removal
	_, err = s.RemoveCollaborator(sb.ID, ben, ben)
	require.NoError(t, err)
	_, err = s.Scrapbook(sb.ID, ben)
	assert.ErrorIs(t, err, ErrScrapbookNotFound)
}

func TestStore_DeleteScrapbook(t *testing.T) {
	s, users := newTestStore(t, "ana", "ben")
	sb, err := s.CreateScrapbook(users["ana"].ID, "Trip")
	require.NoError(t, err)
	_, _, err = s.AddCollaborator(sb.ID, users["ana"].ID, "ben")
	require.NoError(t, err)

	assert.ErrorIs(t, s.DeleteScrapbook(sb.ID, users["ben"].ID), ErrNotOwner)
	require.NoError(t, s.DeleteScrapbook(sb.ID, users["ana"].ID))
	assert.ErrorIs(t, s.DeleteScrapbook(sb.ID, users["ana"].ID), ErrScrapbookNotFound)
}

func TestStore_Files(t *testing.T) {
	s := NewStore(bcrypt.MinCost)

	key := s.PutFile("Photo.PNG", "image/png", []byte("png"))
	assert.Equal(t, ".png", key[len(key)-4:])

	contentType, data, err := s.File(key)
	require.NoError(t, err)
	assert.Equal(t, "image/png", contentType)
	assert.Equal(t, []byte("png"), data)

	require.NoError(t, s.DeleteFile(key))
	_, _, err = s.File(key)
	assert.ErrorIs(t, err, ErrFileNotFound)
	assert.ErrorIs(t, s.DeleteFile(key), ErrFileNotFound)
}
