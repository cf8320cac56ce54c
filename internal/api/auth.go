package api

import (
	"context"
	"net/http"
	"net/url"

	"github.com/dimitrije/snapbook/internal/models"
	"github.com/dimitrije/snapbook/pkg/dto"
)

func (c *Client) Login(ctx context.Context, email, password string) (*dto.AuthResponse, error) {
	var out dto.AuthResponse
	err := c.do(ctx, request{
		op:     "login",
		method: http.MethodPost,
		path:   "/api/auth/login",
		body:   dto.LoginRequest{Email: email, Password: password},
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Register(ctx context.Context, req dto.RegisterRequest) (*dto.AuthResponse, error) {
	var out dto.AuthResponse
	err := c.do(ctx, request{op: "register", method: http.MethodPost, path: "/api/auth/register", body: req}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Me validates the current token and returns the account behind it.
func (c *Client) Me(ctx context.Context) (*models.User, error) {
	var out models.User
	err := c.do(ctx, request{op: "me", method: http.MethodGet, path: "/api/users/me", authed: true}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// MeWithToken is Me for an explicit token, used to validate a token before
// it is installed in a session.
func (c *Client) MeWithToken(ctx context.Context, token string) (*models.User, error) {
	return c.withToken(token).Me(ctx)
}

func (c *Client) UpdateProfile(ctx context.Context, req dto.UpdateProfileRequest) (*models.User, error) {
	var out dto.UpdateProfileResponse
	err := c.do(ctx, request{op: "updateProfile", method: http.MethodPut, path: "/api/users/me", body: req, authed: true}, &out)
	if err != nil {
		return nil, err
	}
	return &out.User, nil
}

func (c *Client) UpdateProfileWithToken(ctx context.Context, token string, req dto.UpdateProfileRequest) (*models.User, error) {
	return c.withToken(token).UpdateProfile(ctx, req)
}

// SearchUsers lists the accounts whose username or email contains query.
// The caller is never among them.
func (c *Client) SearchUsers(ctx context.Context, query string) ([]models.User, error) {
	var out []models.User
	path := "/api/users/search?query=" + url.QueryEscape(query)
	err := c.do(ctx, request{op: "searchUsers", method: http.MethodGet, path: path, authed: true}, &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) withToken(token string) *Client {
	return &Client{baseURL: c.baseURL, http: c.http, tokens: TokenFunc(func() string { return token })}
}
