package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/dimitrije/snapbook/internal/apierr"
	"github.com/dimitrije/snapbook/internal/models"
	"github.com/dimitrije/snapbook/pkg/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func staticToken(token string) TokenSource {
	return TokenFunc(func() string { return token })
}

func TestClient_GetScrapbook_SendsToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/scrapbooks/s1", r.URL.Path)
		assert.Equal(t, "tok", r.Header.Get(AuthHeader))
		_ = json.NewEncoder(w).Encode(models.Scrapbook{ID: "s1", Title: "Trip"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, staticToken("tok"))
	sb, err := c.GetScrapbook(context.Background(), "s1")

	require.NoError(t, err)
	assert.Equal(t, "Trip", sb.Title)
}

func TestClient_NoToken_NoRequest(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	_, err := c.ListScrapbooks(context.Background())

	require.Error(t, err)
	assert.True(t, errors.Is(err, apierr.ErrAuth))
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestClient_ErrorStatusMapping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/scrapbooks/s1/collaborators":
			w.WriteHeader(http.StatusConflict)
			_ = json.NewEncoder(w).Encode(dto.ErrorResponse{Message: "already a collaborator"})
		case "/api/scrapbooks/gone/items/i1":
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"error":"item not found"}`)
		default:
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = io.WriteString(w, "boom")
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, staticToken("tok"))
	ctx := context.Background()

	_, err := c.AddCollaborator(ctx, "s1", "bob")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apierr.ErrConflict))
	assert.Contains(t, err.Error(), "already a collaborator")

	_, err = c.RemoveItem(ctx, "gone", "i1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apierr.ErrNotFound))
	assert.Contains(t, err.Error(), "item not found")

	_, err = c.GetTimeline(ctx, "s2")
	require.Error(t, err)
	assert.Equal(t, apierr.KindServer, apierr.KindOf(err))
	assert.Contains(t, err.Error(), "boom")
}

func TestClient_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := NewClient(url, staticToken("tok"))
	_, err := c.GetScrapbook(context.Background(), "s1")

	require.Error(t, err)
	assert.True(t, errors.Is(err, apierr.ErrNetwork))
}

func TestClient_AddItem(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req dto.AddItemRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, models.ItemTypeText, req.Type)
		assert.Equal(t, "hello", req.Content)

		_ = json.NewEncoder(w).Encode(dto.AddItemResponse{
			NewItem:  models.Item{ID: "i1", Type: req.Type, Content: req.Content},
			Timeline: models.TimelineEntry{ID: "t1", Action: models.ActionAdded, ItemType: "text"},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, staticToken("tok"))
	resp, err := c.AddItem(context.Background(), "s1", dto.AddItemRequest{Type: models.ItemTypeText, Content: "hello"})

	require.NoError(t, err)
	assert.Equal(t, "i1", resp.NewItem.ID)
	assert.Equal(t, "t1", resp.Timeline.ID)
}

func TestClient_Login_NoTokenRequired(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get(AuthHeader))
		_ = json.NewEncoder(w).Encode(dto.AuthResponse{Token: "new", User: models.User{ID: "u1"}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	resp, err := c.Login(context.Background(), "a@b.c", "pw")

	require.NoError(t, err)
	assert.Equal(t, "new", resp.Token)
}

func TestClient_Upload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/file/upload", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))

		f, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		data, _ := io.ReadAll(f)

		assert.Equal(t, "photo.png", header.Filename)
		assert.Equal(t, "image/png", header.Header.Get("Content-Type"))
		assert.Equal(t, "pixels", string(data))

		_ = json.NewEncoder(w).Encode(dto.UploadResponse{URI: "https://cdn.example.com/photo.png"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	uri, err := c.Upload(context.Background(), "/tmp/photo.png", strings.NewReader("pixels"))

	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/photo.png", uri)
}

func TestMimeType(t *testing.T) {
	assert.Equal(t, "image/jpeg", MimeType("a.JPG"))
	assert.Equal(t, "image/webp", MimeType("x/y/z.webp"))
	assert.Equal(t, "application/octet-stream", MimeType("notes.txt"))
}

func TestClient_SendsConnectionID(t *testing.T) {
	var got []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = append(got, r.Header.Get(ConnectionHeader))
		_, _ = w.Write([]byte(`{"message":"ok"}`))
	}))
	defer srv.Close()

	id := "conn-1"
	c := NewClient(srv.URL, staticToken("tok"), WithConnectionID(func() string { return id }))
	require.NoError(t, c.DeleteScrapbook(context.Background(), "s1"))

	id = ""
	require.NoError(t, c.DeleteScrapbook(context.Background(), "s1"))

	assert.Equal(t, []string{"conn-1", ""}, got)
}

func TestClient_SearchUsers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/users/search", r.URL.Path)
		assert.Equal(t, "ben & co", r.URL.Query().Get("query"))
		assert.Equal(t, "tok", r.Header.Get(AuthHeader))
		_ = json.NewEncoder(w).Encode([]models.User{{ID: "u2", Username: "ben"}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, staticToken("tok"))
	users, err := c.SearchUsers(context.Background(), "ben & co")

	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "ben", users[0].Username)
}
