package fakeserver

import (
	"errors"
	"net/http"

	"github.com/dimitrije/snapbook/internal/api"
	"github.com/dimitrije/snapbook/internal/middleware"
	"github.com/dimitrije/snapbook/internal/models"
	"github.com/dimitrije/snapbook/pkg/dto"
	"github.com/golang/glog"
	"github.com/m1z23r/drift/pkg/drift"
)

func writeError(c *drift.Context, err error) {
	var e *Error
	if errors.As(err, &e) {
		_ = c.JSON(e.Status, dto.ErrorResponse{Message: e.Message})
		return
	}
	glog.Errorf("[fake]internal error = %s", err)
	c.InternalServerError("internal error")
}

func (s *Server) authResponse(c *drift.Context, status int, user models.User) {
	token, err := s.jwt.GenerateToken(user.ID, user.Username)
	if err != nil {
		writeError(c, err)
		return
	}
	_ = c.JSON(status, dto.AuthResponse{Token: token, User: user})
}

func (s *Server) Login(c *drift.Context) {
	var req dto.LoginRequest
	if err := c.BindJSON(&req); err != nil {
		c.BadRequest("invalid request body")
		return
	}

	user, err := s.store.Authenticate(req.Email, req.Password)
	if err != nil {
		writeError(c, err)
		return
	}
	s.authResponse(c, http.StatusOK, user)
}

func (s *Server) Register(c *drift.Context) {
	var req dto.RegisterRequest
	if err := c.BindJSON(&req); err != nil {
		c.BadRequest("invalid request body")
		return
	}

	user, err := s.store.Register(req)
	if err != nil {
		writeError(c, err)
		return
	}
	glog.V(1).Infof("[fake]registered %s", user.Username)
	s.authResponse(c, http.StatusCreated, user)
}

func (s *Server) GetMe(c *drift.Context) {
	user, err := s.store.User(middleware.GetUserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	_ = c.JSON(http.StatusOK, user)
}

func (s *Server) SearchUsers(c *drift.Context) {
	users, err := s.store.SearchUsers(c.QueryParam("query"), middleware.GetUserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	_ = c.JSON(http.StatusOK, users)
}

func (s *Server) UpdateMe(c *drift.Context) {
	var req dto.UpdateProfileRequest
	if err := c.BindJSON(&req); err != nil {
		c.BadRequest("invalid request body")
		return
	}

	user, err := s.store.UpdateProfile(middleware.GetUserID(c), req)
	if err != nil {
		writeError(c, err)
		return
	}
	_ = c.JSON(http.StatusOK, dto.UpdateProfileResponse{User: user})
}

func (s *Server) ListScrapbooks(c *drift.Context) {
	_ = c.JSON(http.StatusOK, s.store.ListScrapbooks(middleware.GetUserID(c)))
}

func (s *Server) GetScrapbook(c *drift.Context) {
	sb, err := s.store.Scrapbook(c.Param("id"), middleware.GetUserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	_ = c.JSON(http.StatusOK, sb)
}

func (s *Server) GetTimeline(c *drift.Context) {
	entries, err := s.store.Timeline(c.Param("id"), middleware.GetUserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	_ = c.JSON(http.StatusOK, entries)
}

func (s *Server) CreateScrapbook(c *drift.Context) {
	var req dto.CreateScrapbookRequest
	if err := c.BindJSON(&req); err != nil {
		c.BadRequest("invalid request body")
		return
	}

	sb, err := s.store.CreateScrapbook(middleware.GetUserID(c), req.Title)
	if err != nil {
		writeError(c, err)
		return
	}
	_ = c.JSON(http.StatusCreated, sb)
}

func (s *Server) DeleteScrapbook(c *drift.Context) {
	id := c.Param("id")
	userID := middleware.GetUserID(c)
	if err := s.store.DeleteScrapbook(id, userID); err != nil {
		writeError(c, err)
		return
	}

	s.hub.BroadcastToRoom(id, userID, c.GetHeader(api.ConnectionHeader), dto.EventScrapbookDeleted, dto.ScrapbookDeletedData{ScrapbookID: id})
	_ = c.JSON(http.StatusOK, dto.MessageResponse{Message: "scrapbook deleted"})
}

func (s *Server) UpdateTitle(c *drift.Context) {
	var req dto.UpdateTitleRequest
	if err := c.BindJSON(&req); err != nil {
		c.BadRequest("invalid request body")
		return
	}

	entry, err := s.store.UpdateTitle(c.Param("id"), middleware.GetUserID(c), req.Title)
	if err != nil {
		writeError(c, err)
		return
	}
	_ = c.JSON(http.StatusOK, dto.UpdateTitleResponse{Timeline: entry})
}

// AddItem is the one mutation the server announces itself. The socket named
// by the connection header is skipped.
func (s *Server) AddItem(c *drift.Context) {
	var req dto.AddItemRequest
	if err := c.BindJSON(&req); err != nil {
		c.BadRequest("invalid request body")
		return
	}

	id := c.Param("id")
	userID := middleware.GetUserID(c)
	item, entry, err := s.store.AddItem(id, userID, req)
	if err != nil {
		writeError(c, err)
		return
	}

	s.hub.BroadcastToRoom(id, userID, c.GetHeader(api.ConnectionHeader), dto.EventItemAdded, dto.ItemEventData{Item: item, Timeline: &entry})
	_ = c.JSON(http.StatusCreated, dto.AddItemResponse{NewItem: item, Timeline: entry})
}

func (s *Server) RemoveItem(c *drift.Context) {
	entry, err := s.store.RemoveItem(c.Param("id"), middleware.GetUserID(c), c.Param("itemId"))
	if err != nil {
		writeError(c, err)
		return
	}
	_ = c.JSON(http.StatusOK, dto.RemoveItemResponse{Timeline: entry})
}

func (s *Server) AddCollaborator(c *drift.Context) {
	var req dto.AddCollaboratorRequest
	if err := c.BindJSON(&req); err != nil {
		c.BadRequest("invalid request body")
		return
	}

	user, entry, err := s.store.AddCollaborator(c.Param("id"), middleware.GetUserID(c), req.Username)
	if err != nil {
		writeError(c, err)
		return
	}
	_ = c.JSON(http.StatusCreated, dto.AddCollaboratorResponse{Collaborator: user, Timeline: entry})
}

func (s *Server) RemoveCollaborator(c *drift.Context) {
	entry, err := s.store.RemoveCollaborator(c.Param("id"), middleware.GetUserID(c), c.Param("collaboratorId"))
	if err != nil {
		writeError(c, err)
		return
	}
	_ = c.JSON(http.StatusOK, dto.RemoveCollaboratorResponse{Timeline: entry})
}

func (s *Server) DeleteFile(c *drift.Context) {
	var req dto.DeleteFileRequest
	if err := c.BindJSON(&req); err != nil {
		c.BadRequest("invalid request body")
		return
	}
	if req.URI == "" {
		c.BadRequest("uri is required")
		return
	}

	if err := s.store.DeleteFile(fileKey(req.URI)); err != nil {
		writeError(c, err)
		return
	}
	_ = c.JSON(http.StatusOK, dto.MessageResponse{Message: "file deleted"})
}
