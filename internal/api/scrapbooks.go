package api

import (
	"context"
	"net/http"
	"net/url"

	"github.com/dimitrije/snapbook/internal/models"
	"github.com/dimitrije/snapbook/pkg/dto"
)

func scrapbookPath(id string, parts ...string) string {
	p := "/api/scrapbooks/" + url.PathEscape(id)
	for _, part := range parts {
		p += "/" + url.PathEscape(part)
	}
	return p
}

func (c *Client) ListScrapbooks(ctx context.Context) ([]models.Scrapbook, error) {
	var out []models.Scrapbook
	err := c.do(ctx, request{op: "listScrapbooks", method: http.MethodGet, path: "/api/scrapbooks", authed: true}, &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetScrapbook(ctx context.Context, id string) (*models.Scrapbook, error) {
	var out models.Scrapbook
	err := c.do(ctx, request{op: "getScrapbook", method: http.MethodGet, path: scrapbookPath(id), authed: true}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetTimeline(ctx context.Context, id string) ([]models.TimelineEntry, error) {
	var out []models.TimelineEntry
	err := c.do(ctx, request{op: "getTimeline", method: http.MethodGet, path: scrapbookPath(id, "timeline"), authed: true}, &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateScrapbook(ctx context.Context, title string) (*models.Scrapbook, error) {
	var out models.Scrapbook
	err := c.do(ctx, request{
		op:     "createScrapbook",
		method: http.MethodPost,
		path:   "/api/scrapbooks",
		body:   dto.CreateScrapbookRequest{Title: title},
		authed: true,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteScrapbook(ctx context.Context, id string) error {
	return c.do(ctx, request{op: "deleteScrapbook", method: http.MethodDelete, path: scrapbookPath(id), authed: true}, nil)
}

func (c *Client) UpdateTitle(ctx context.Context, id, title string) (*dto.UpdateTitleResponse, error) {
	var out dto.UpdateTitleResponse
	err := c.do(ctx, request{
		op:     "updateTitle",
		method: http.MethodPut,
		path:   scrapbookPath(id, "title"),
		body:   dto.UpdateTitleRequest{Title: title},
		authed: true,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) AddItem(ctx context.Context, id string, req dto.AddItemRequest) (*dto.AddItemResponse, error) {
	var out dto.AddItemResponse
	err := c.do(ctx, request{
		op:     "addItem",
		method: http.MethodPost,
		path:   scrapbookPath(id, "items"),
		body:   req,
		authed: true,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) RemoveItem(ctx context.Context, id, itemID string) (*dto.RemoveItemResponse, error) {
	var out dto.RemoveItemResponse
	err := c.do(ctx, request{op: "removeItem", method: http.MethodDelete, path: scrapbookPath(id, "items", itemID), authed: true}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) AddCollaborator(ctx context.Context, id, username string) (*dto.AddCollaboratorResponse, error) {
	var out dto.AddCollaboratorResponse
	err := c.do(ctx, request{
		op:     "addCollaborator",
		method: http.MethodPost,
		path:   scrapbookPath(id, "collaborators"),
		body:   dto.AddCollaboratorRequest{Username: username},
		authed: true,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) RemoveCollaborator(ctx context.Context, id, collaboratorID string) (*dto.RemoveCollaboratorResponse, error) {
	var out dto.RemoveCollaboratorResponse
	err := c.do(ctx, request{
		op:     "removeCollaborator",
		method: http.MethodDelete,
		path:   scrapbookPath(id, "collaborators", collaboratorID),
		authed: true,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}
